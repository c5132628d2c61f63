package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultEnvFile 是用户配置文件的默认位置，沿用原部署布局。
const DefaultEnvFile = "db/user.env"

// Load 读取 env 格式的配置文件并叠加进程环境变量。配置文件缺失不算
// 错误（首次启动通过 Web 界面补全），环境变量始终生效。
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultEnvFile
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	setDefaults(v)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8515)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE_PATH", "")
	v.SetDefault("LOG_MAX_SIZE", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 10)
	v.SetDefault("LOG_COMPRESS", true)
	v.SetDefault("LOG_BUFFER_MAX", 1000)
	v.SetDefault("ENV_WEB_PASSPORT", "admin")
	v.SetDefault("ENV_WEB_PASSWORD", "123456")
	v.SetDefault("ENV_189_USERNAME", "")
	v.SetDefault("ENV_189_PASSWORD", "")
	v.SetDefault("ENV_189_COOKIES", "")
	v.SetDefault("ENV_189_COOKIES_FILE", "db/cookies.txt")
	v.SetDefault("TG_BOT_TOKEN", "")
	v.SetDefault("TG_BOT_NOTIFY_CHAT_IDS", "")
	v.SetDefault("TG_BOT_USER_WHITELIST", "")
	v.SetDefault("MAX_CACHE_302LINK", 100)
	// 裸数字分别按分钟/小时解读，见 durationDecodeHook。
	v.SetDefault("CACHE_EXPIRATION", 720)
	v.SetDefault("PATH_CACHE_EXPIRATION", 12)
}

// durationDecodeHook 把配置值解码为带默认单位的 Duration 类型：
// 字符串优先按 Go duration 语法解析，裸数字按字段自身的单位解读。
func durationDecodeHook() mapstructure.DecodeHookFunc {
	minutesType := reflect.TypeOf(DurationMinutes(0))
	hoursType := reflect.TypeOf(DurationHours(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		var unit time.Duration
		switch to {
		case minutesType:
			unit = time.Minute
		case hoursType:
			unit = time.Hour
		default:
			return data, nil
		}

		wrap := func(d time.Duration) interface{} {
			if to == minutesType {
				return DurationMinutes(d)
			}
			return DurationHours(d)
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return wrap(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return wrap(parsed), nil
			}
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				return wrap(time.Duration(n * float64(unit))), nil
			}
			return nil, fmt.Errorf("无法解析时长字段: %s", v)
		case int:
			return wrap(time.Duration(v) * unit), nil
		case int64:
			return wrap(time.Duration(v) * unit), nil
		case float64:
			return wrap(time.Duration(v * float64(unit))), nil
		case time.Duration:
			return wrap(v), nil
		default:
			return nil, fmt.Errorf("不支持的时长类型: %T", v)
		}
	}
}
