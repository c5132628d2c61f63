package server

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
)

// WebSessionCookie 是管理界面会话 cookie 的名称。
const WebSessionCookie = "p189_session"

// webSessionTTL 是管理会话有效期，过期后需要重新登录。
const webSessionTTL = 24 * time.Hour

// WebSessions 维护管理界面的登录会话，token 为随机 UUID，
// 仅存在于内存中，进程重启即失效。
type WebSessions struct {
	tokens *xsync.Map[string, time.Time]
	now    func() time.Time
}

// NewWebSessions 创建空的会话表。
func NewWebSessions() *WebSessions {
	return &WebSessions{
		tokens: xsync.NewMap[string, time.Time](),
		now:    time.Now,
	}
}

// Issue 颁发一个新会话 token。
func (s *WebSessions) Issue() string {
	token := uuid.NewString()
	s.tokens.Store(token, s.now().Add(webSessionTTL))
	return token
}

// Valid 校验 token 是否有效，过期条目顺带删除。
func (s *WebSessions) Valid(token string) bool {
	if token == "" {
		return false
	}
	expiry, ok := s.tokens.Load(token)
	if !ok {
		return false
	}
	if s.now().After(expiry) {
		s.tokens.Delete(token)
		return false
	}
	return true
}

// Revoke 注销一个会话。
func (s *WebSessions) Revoke(token string) {
	s.tokens.Delete(token)
}

// sessionToken 从请求 cookie 中取出会话 token。
func sessionToken(c fiber.Ctx) string {
	return c.Cookies(WebSessionCookie)
}

// setSessionCookie 写入会话 cookie。
func setSessionCookie(c fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     WebSessionCookie,
		Value:    token,
		HTTPOnly: true,
		Path:     "/",
	})
}

// clearSessionCookie 让浏览器丢弃会话 cookie。
func clearSessionCookie(c fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     WebSessionCookie,
		Value:    "",
		HTTPOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})
}
