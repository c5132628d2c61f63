package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pan189-link/pan189-link/internal/cloud189"
	"github.com/pan189-link/pan189-link/internal/config"
	"github.com/pan189-link/pan189-link/internal/logging"
)

// LinkResolver 是 HTTP 层对解析核心的全部依赖，测试中以假实现替换。
type LinkResolver interface {
	ResolvePath(ctx context.Context, path string) (int64, error)
	GetDownloadURL(ctx context.Context, fileID int64) (string, error)
	ClearCaches()
	CacheSizes() (pathEntries, urlEntries int)
}

// FailureNotifier 把下载失败事件送往外部通知渠道。
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, filePath, errText string)
}

// AppOptions 汇总构建 Fiber 应用所需的全部依赖。
type AppOptions struct {
	Logger   *logrus.Logger
	Config   *config.Config
	Resolver LinkResolver
	Sessions *cloud189.SessionHolder
	Notifier FailureNotifier
	LogBuf   *logging.Buffer

	// Auth 处理扫码与账号密码登录；NewClient 把 cookie 串变成会话。
	Auth      *cloud189.Authenticator
	NewClient func(cookies string) cloud189.API

	// OnDriveLogin 在网盘登录成功后回调（持久化 cookie 等）。
	OnDriveLogin func(cookies string)

	// 配置页使用的模板与用户配置文件路径，空值取包内默认。
	TemplatePath string
	EnvFilePath  string
}

const contextKeyRequestID = "_p189_request_id"

// NewApp 构建 Fiber 应用：recover + 请求 ID 中间件，管理 API 与 302
// 下载路由。路由注册顺序保证 /api、/d 前缀先于根路径通配。
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("session holder is required")
	}

	if opts.NewClient == nil {
		opts.NewClient = func(cookies string) cloud189.API {
			return cloud189.NewClientFromCookies(cookies)
		}
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	h := &handlers{
		opts:     opts,
		sessions: NewWebSessions(),
		qr:       newQRStates(),
	}
	h.registerRoutes(app)

	return app, nil
}

// requestIDMiddleware 为每个请求生成 UUID 并写入响应头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID 返回中间件生成的请求标识。
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// handlers 聚合全部路由处理器与共享状态。
type handlers struct {
	opts     AppOptions
	sessions *WebSessions
	qr       qrStates

	// exitFn 替换配置保存后的进程退出逻辑，仅测试使用。
	exitFn func()
}

func (h *handlers) registerRoutes(app *fiber.App) {
	app.Post("/api/login", h.webLogin)
	app.Get("/api/logout", h.webLogout)
	app.Post("/api/logout", h.webLogout)
	app.Get("/api/status", h.status)
	app.Post("/api/clear-cache", h.clearCache)

	// 需要管理会话的路由。
	app.Get("/api/env", h.requireWebSession(h.getEnvConfig))
	app.Post("/api/env", h.requireWebSession(h.saveEnvConfig))
	app.Get("/api/189/cookies", h.requireWebSession(h.driveCookies))

	app.Post("/api/189/login", h.driveLogin)
	app.Post("/api/189/logout", h.driveLogout)
	app.Get("/api/189/qrcode", h.qrCode)
	app.Get("/api/189/qrcode/status", h.qrCodeStatus)

	app.Get("/d/*", h.download)
	app.Get("/*", h.rootDownload)
}

// requireWebSession 包装需要管理登录的处理器。
func (h *handlers) requireWebSession(next fiber.Handler) fiber.Handler {
	return func(c fiber.Ctx) error {
		if !h.sessions.Valid(sessionToken(c)) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "未登录"})
		}
		return next(c)
	}
}
