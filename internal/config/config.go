package config

import (
	"strings"
	"time"
)

// Config 汇总进程的全部运行配置，来源是 env 格式配置文件与环境变量。
// 字段名沿用原 env 键，便于老部署直接迁移。
type Config struct {
	Host string `mapstructure:"HOST"`
	Port int    `mapstructure:"PORT"`

	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogFilePath   string `mapstructure:"LOG_FILE_PATH"`
	LogMaxSize    int    `mapstructure:"LOG_MAX_SIZE"`
	LogMaxBackups int    `mapstructure:"LOG_MAX_BACKUPS"`
	LogCompress   bool   `mapstructure:"LOG_COMPRESS"`
	LogBufferMax  int    `mapstructure:"LOG_BUFFER_MAX"`

	// Web 管理界面凭据。
	WebPassport string `mapstructure:"ENV_WEB_PASSPORT"`
	WebPassword string `mapstructure:"ENV_WEB_PASSWORD"`

	// 天翼网盘登录信息，cookie 优先于账号密码。
	PanUsername    string `mapstructure:"ENV_189_USERNAME"`
	PanPassword    string `mapstructure:"ENV_189_PASSWORD"`
	PanCookies     string `mapstructure:"ENV_189_COOKIES"`
	PanCookiesFile string `mapstructure:"ENV_189_COOKIES_FILE"`

	// 缓存参数：直链缓存 TTL 按分钟、路径缓存 TTL 按小时解读裸数字。
	MaxPrecacheLinks int             `mapstructure:"MAX_CACHE_302LINK"`
	URLCacheTTL      DurationMinutes `mapstructure:"CACHE_EXPIRATION"`
	PathCacheTTL     DurationHours   `mapstructure:"PATH_CACHE_EXPIRATION"`

	// Telegram 通知与 /189log 机器人。
	TGBotToken      string `mapstructure:"TG_BOT_TOKEN"`
	TGNotifyChatIDs string `mapstructure:"TG_BOT_NOTIFY_CHAT_IDS"`
	TGUserWhitelist string `mapstructure:"TG_BOT_USER_WHITELIST"`
}

// DurationMinutes 在配置里既接受 Go duration 字符串（"30m"），
// 也接受裸数字（按分钟解读，兼容原 env 写法）。
type DurationMinutes time.Duration

// DurationValue 返回真实的 time.Duration。
func (d DurationMinutes) DurationValue() time.Duration { return time.Duration(d) }

// DurationHours 与 DurationMinutes 类似，裸数字按小时解读。
type DurationHours time.Duration

// DurationValue 返回真实的 time.Duration。
func (d DurationHours) DurationValue() time.Duration { return time.Duration(d) }

// NotifyChatIDs 返回通知目标 chat id 列表。
func (c *Config) NotifyChatIDs() []string {
	return splitCSV(c.TGNotifyChatIDs)
}

// BotUserWhitelist 返回允许使用机器人命令的用户 id 列表。
func (c *Config) BotUserWhitelist() []string {
	return splitCSV(c.TGUserWhitelist)
}

// Validate 做最小限度的取值检查，配置错误在启动时立刻暴露。
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return newFieldError("PORT", "必须是 1-65535 之间的端口号")
	}
	if c.MaxPrecacheLinks < 0 {
		return newFieldError("MAX_CACHE_302LINK", "不能为负数")
	}
	if c.URLCacheTTL.DurationValue() <= 0 {
		return newFieldError("CACHE_EXPIRATION", "必须为正的有效期")
	}
	if c.PathCacheTTL.DurationValue() <= 0 {
		return newFieldError("PATH_CACHE_EXPIRATION", "必须为正的有效期")
	}
	if c.LogBufferMax <= 0 {
		return newFieldError("LOG_BUFFER_MAX", "必须为正整数")
	}
	return nil
}

// splitCSV 按逗号拆分并去掉空白项。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
