package server

import (
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/pan189-link/pan189-link/internal/resolver"
)

// download 处理 /d/ 前缀的 302 直链请求。
func (h *handlers) download(c fiber.Ctx) error {
	return h.redirectToFile(c, drivePath(c))
}

// rootDownload 处理根路径通配的 302 直链请求，排除管理路由与静态资源。
func (h *handlers) rootDownload(c fiber.Ctx) error {
	rel := strings.TrimPrefix(string(c.Request().URI().Path()), "/")
	if rel == "" || rel == "login" || hasExcludedPrefix(rel) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "路径不存在"})
	}
	return h.redirectToFile(c, drivePath(c))
}

var excludedPrefixes = []string{"api/", "static/", "login", "favicon.ico"}

func hasExcludedPrefix(rel string) bool {
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(rel, prefix) {
			return true
		}
	}
	return false
}

// drivePath 把请求路径与查询串拼成网盘内的绝对路径。文件名里合法的
// "?" 会被客户端当查询分隔符发送，这里再拼回去并整体反转义。
func drivePath(c fiber.Ctx) string {
	p := string(c.Request().URI().Path())
	p = strings.TrimPrefix(p, "/d/")
	p = strings.TrimPrefix(p, "/")

	if qs := string(c.Request().URI().QueryString()); qs != "" {
		decoded, err := url.QueryUnescape(qs)
		if err != nil {
			decoded = qs
		}
		p += "?" + decoded
	}
	return "/" + p
}

// redirectToFile 解析路径、换取直链并返回 302；失败时回应 JSON 错误
// 并推送 Telegram 通知。
func (h *handlers) redirectToFile(c fiber.Ctx, filePath string) error {
	ctx := c.Context()

	fileID, err := h.opts.Resolver.ResolvePath(ctx, filePath)
	if err != nil {
		return h.downloadError(c, filePath, err)
	}

	downloadURL, err := h.opts.Resolver.GetDownloadURL(ctx, fileID)
	if err != nil {
		return h.downloadError(c, filePath, err)
	}

	h.opts.Logger.WithFields(logrus.Fields{
		"action":     "redirect",
		"path":       filePath,
		"file_id":    fileID,
		"request_id": RequestID(c),
	}).Infof("302 重定向: %s", truncateURL(downloadURL))

	return c.Redirect().Status(fiber.StatusFound).To(downloadURL)
}

// downloadError 统一失败出口：记日志、通知、按错误类别映射状态码。
func (h *handlers) downloadError(c fiber.Ctx, filePath string, err error) error {
	h.opts.Logger.WithFields(logrus.Fields{
		"action": "download_failed",
		"path":   filePath,
	}).Errorf("下载处理异常: %v", err)

	if h.opts.Notifier != nil {
		h.opts.Notifier.NotifyFailure(c.Context(), filePath, err.Error())
	}

	return c.Status(downloadStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

// downloadStatus 把解析错误映射到 HTTP 状态码。
func downloadStatus(err error) int {
	var notFound *resolver.NotFoundError
	var upstream *resolver.UpstreamError
	var unavailable *resolver.LinkUnavailableError
	switch {
	case errors.Is(err, resolver.ErrNotLoggedIn):
		return fiber.StatusUnauthorized
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.As(err, &upstream), errors.As(err, &unavailable):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// truncateURL 截断日志中的直链，避免签名参数刷屏。
func truncateURL(u string) string {
	if len(u) <= 80 {
		return u
	}
	return u[:80] + "..."
}
