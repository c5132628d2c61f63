package server

import (
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/sirupsen/logrus"

	"github.com/pan189-link/pan189-link/internal/cloud189"
	"github.com/pan189-link/pan189-link/internal/config"
)

// webLogin 校验管理界面账号密码并颁发会话 cookie。
func (h *handlers) webLogin(c fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "请求格式错误"})
	}

	cfg := h.opts.Config
	if req.Username != cfg.WebPassport || req.Password != cfg.WebPassword {
		return c.JSON(fiber.Map{"success": false, "error": "用户名或密码错误"})
	}

	setSessionCookie(c, h.sessions.Issue())
	return c.JSON(fiber.Map{"success": true})
}

// webLogout 注销管理会话。
func (h *handlers) webLogout(c fiber.Ctx) error {
	h.sessions.Revoke(sessionToken(c))
	clearSessionCookie(c)
	return c.JSON(fiber.Map{"success": true})
}

// status 返回网盘登录状态、管理登录状态与缓存规模。
func (h *handlers) status(c fiber.Ctx) error {
	pathEntries, urlEntries := h.opts.Resolver.CacheSizes()
	return c.JSON(fiber.Map{
		"logged_in":       h.opts.Sessions.LoggedIn(),
		"web_logged_in":   h.sessions.Valid(sessionToken(c)),
		"path_cache_size": pathEntries,
		"url_cache_size":  urlEntries,
	})
}

// clearCache 无条件清空两级缓存。
func (h *handlers) clearCache(c fiber.Ctx) error {
	h.opts.Resolver.ClearCaches()
	return c.JSON(fiber.Map{"success": true, "message": "缓存已清除"})
}

// driveCookies 导出当前网盘会话的 cookie，便于在其他部署间迁移。
func (h *handlers) driveCookies(c fiber.Ctx) error {
	api, ok := h.opts.Sessions.Current()
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "天翼网盘未登录"})
	}

	exporter, ok := api.(interface{ CookieString() string })
	if !ok {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "当前会话不支持导出 cookies"})
	}

	cookieStr := exporter.CookieString()
	cookieDict := map[string]string{}
	for _, pair := range strings.Split(cookieStr, ";") {
		if key, value, ok := strings.Cut(strings.TrimSpace(pair), "="); ok && key != "" {
			cookieDict[key] = value
		}
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"cookies":      cookieStr,
		"cookies_dict": cookieDict,
	})
}

// driveLogin 用 cookie 或账号密码登录网盘，成功后整体替换会话并清缓存。
func (h *handlers) driveLogin(c fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Cookies  string `json:"cookies"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "请求格式错误"})
	}

	var cookies string
	switch {
	case req.Cookies != "":
		cookies = req.Cookies
	case req.Username != "" && req.Password != "":
		var err error
		cookies, err = h.opts.Auth.LoginWithPassword(c.Context(), req.Username, req.Password)
		if err != nil {
			h.opts.Logger.WithField("action", "drive_login").Errorf("账号密码登录失败: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "登录失败: " + err.Error()})
		}
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "请提供用户名密码或 cookies"})
	}

	h.completeDriveLogin(cookies)
	return c.JSON(fiber.Map{"success": true, "message": "登录成功"})
}

// completeDriveLogin 替换会话、清空缓存并触发 cookie 持久化回调。
func (h *handlers) completeDriveLogin(cookies string) {
	h.opts.Sessions.Swap(h.opts.NewClient(cookies))
	h.opts.Resolver.ClearCaches()
	if h.opts.OnDriveLogin != nil {
		h.opts.OnDriveLogin(cookies)
	}
	h.opts.Logger.WithField("action", "drive_login").Info("天翼网盘登录成功")
}

// driveLogout 丢弃网盘会话并清空缓存。
func (h *handlers) driveLogout(c fiber.Ctx) error {
	h.opts.Sessions.Swap(nil)
	h.opts.Resolver.ClearCaches()
	return c.JSON(fiber.Map{"success": true, "message": "已登出"})
}

// getEnvConfig 返回模板结构 + 实际取值，驱动配置页渲染。
func (h *handlers) getEnvConfig(c fiber.Ctx) error {
	tpl, err := config.LoadTemplate(h.templatePath())
	if err != nil {
		if os.IsNotExist(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "配置模板文件不存在"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if err := tpl.FillValues(h.envPath()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"sections": tpl.Sections, "order": tpl.Order})
}

// saveEnvConfig 写回配置文件后退出进程，由容器重启加载新配置。
func (h *handlers) saveEnvConfig(c fiber.Ctx) error {
	var tpl config.Template
	if err := c.Bind().Body(&tpl); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "请求格式错误"})
	}
	if err := config.WriteEnvFile(h.envPath(), &tpl); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	h.opts.Logger.WithField("action", "save_config").Info("配置已保存，程序将退出以触发容器重启")
	go h.exit()

	return c.JSON(fiber.Map{"success": true})
}

// exit 默认延迟一秒后退出进程，延迟保证响应先行送达。
func (h *handlers) exit() {
	if h.exitFn != nil {
		h.exitFn()
		return
	}
	time.Sleep(time.Second)
	os.Exit(0)
}

func (h *handlers) templatePath() string {
	if h.opts.TemplatePath != "" {
		return h.opts.TemplatePath
	}
	return config.DefaultTemplateFile
}

func (h *handlers) envPath() string {
	if h.opts.EnvFilePath != "" {
		return h.opts.EnvFilePath
	}
	return config.DefaultEnvFile
}

// ==================== 扫码登录 ====================

// qrPending 保存一次扫码登录的中间状态，轮询时复用。
type qrPending struct {
	appID   string
	qr      *cloud189.QRCodeUUID
	conf    *cloud189.LoginConf
	appConf *cloud189.AppConf
	created time.Time
}

// qrStates 以 cookie token 为键保存进行中的扫码会话。
type qrStates struct {
	m *xsync.Map[string, *qrPending]
}

func newQRStates() qrStates {
	return qrStates{m: xsync.NewMap[string, *qrPending]()}
}

func (s *qrStates) storage() *xsync.Map[string, *qrPending] {
	return s.m
}

// qrSessionCookie 是扫码会话 cookie 名。
const qrSessionCookie = "qr_session"

// qrCode 获取新的登录二维码并记录轮询所需的上下文。
func (h *handlers) qrCode(c fiber.Ctx) error {
	ctx := c.Context()
	appID := cloud189.DefaultAppID

	qr, err := h.opts.Auth.FetchQRCodeUUID(ctx, appID)
	if err != nil {
		return h.qrError(c, "获取二维码失败", err)
	}
	conf, err := h.opts.Auth.FetchLoginConf(ctx)
	if err != nil {
		return h.qrError(c, "获取登录配置失败", err)
	}
	appConf, err := h.opts.Auth.FetchAppConf(ctx, appID, conf)
	if err != nil {
		return h.qrError(c, "获取应用配置失败", err)
	}

	token := uuid.NewString()
	h.qr.storage().Store(token, &qrPending{
		appID:   appID,
		qr:      qr,
		conf:    conf,
		appConf: appConf,
		created: time.Now(),
	})
	c.Cookie(&fiber.Cookie{Name: qrSessionCookie, Value: token, HTTPOnly: true, Path: "/"})

	return c.JSON(fiber.Map{
		"success":    true,
		"qrCodeUrl":  qr.UUID,
		"qrImageUrl": cloud189.QRImageURL(qr.UUID),
		"uuid":       qr.UUID,
	})
}

// qrCodeStatus 轮询扫码状态，登录成功后替换网盘会话。
func (h *handlers) qrCodeStatus(c fiber.Ctx) error {
	token := c.Cookies(qrSessionCookie)
	pending, ok := h.qr.storage().Load(token)
	if !ok {
		return c.JSON(fiber.Map{"error": "请先获取二维码"})
	}

	ctx := c.Context()
	state, err := h.opts.Auth.PollQRState(ctx, pending.appID, pending.qr, pending.conf, pending.appConf)
	if err != nil {
		return c.JSON(fiber.Map{"error": err.Error()})
	}

	switch state.StatusCode() {
	case cloud189.QRStatusWaiting:
		return c.JSON(fiber.Map{"status": "等待扫码..."})
	case cloud189.QRStatusScanned:
		return c.JSON(fiber.Map{"status": "已扫码，请在手机上确认"})
	case cloud189.QRStatusConfirmed:
		cookies, err := h.opts.Auth.CollectRedirectCookies(ctx, state)
		if err != nil {
			h.opts.Logger.WithField("action", "qr_login").Errorf("初始化客户端失败: %v", err)
			return c.JSON(fiber.Map{"error": "初始化客户端失败: " + err.Error()})
		}
		h.completeDriveLogin(cookies)
		h.qr.storage().Delete(token)
		return c.JSON(fiber.Map{"success": true, "message": "登录成功"})
	case cloud189.QRStatusExpired:
		h.qr.storage().Delete(token)
		return c.JSON(fiber.Map{"error": "二维码已过期，请重新获取"})
	default:
		return c.JSON(fiber.Map{"error": "扫码异常", "status_code": state.StatusCode()})
	}
}

func (h *handlers) qrError(c fiber.Ctx, msg string, err error) error {
	h.opts.Logger.WithFields(logrus.Fields{"action": "qr_login"}).Errorf("%s: %v", msg, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msg + ": " + err.Error()})
}
