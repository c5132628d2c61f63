package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/pan189-link/pan189-link/internal/cloud189"
	"github.com/pan189-link/pan189-link/internal/config"
	"github.com/pan189-link/pan189-link/internal/logging"
	"github.com/pan189-link/pan189-link/internal/notify"
	"github.com/pan189-link/pan189-link/internal/resolver"
	"github.com/pan189-link/pan189-link/internal/server"
	"github.com/pan189-link/pan189-link/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, logBuf, err := logging.InitLogger(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		logger.WithFields(logrus.Fields{
			"action":      "check_config",
			"config_path": opts.configPath,
			"result":      "ok",
		}).Info("配置校验通过")
		return 0
	}

	sessions := cloud189.NewSessionHolder()
	auth := cloud189.NewAuthenticator(nil, "")
	autoDriveLogin(cfg, sessions, auth, logger)

	res := resolver.New(resolver.Options{
		Sessions:         sessions,
		Logger:           logger,
		PathTTL:          cfg.PathCacheTTL.DurationValue(),
		URLTTL:           cfg.URLCacheTTL.DurationValue(),
		MaxPrecacheLinks: cfg.MaxPrecacheLinks,
	})

	notifier := notify.New(notify.Options{
		Token:         cfg.TGBotToken,
		NotifyChatIDs: cfg.NotifyChatIDs(),
		UserWhitelist: cfg.BotUserWhitelist(),
		Logger:        logger,
	})
	if notifier.Enabled() {
		go notifier.RunBot(context.Background(), logBuf)
	}

	logger.WithFields(logrus.Fields{
		"action":      "startup",
		"config_path": opts.configPath,
		"listen_host": cfg.Host,
		"listen_port": cfg.Port,
		"logged_in":   sessions.LoggedIn(),
		"tg_enabled":  notifier.Enabled(),
		"version":     version.Full(),
	}).Info("配置加载完成")

	if err := startHTTPServer(cfg, opts.configPath, sessions, auth, res, notifier, logBuf, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// autoDriveLogin 按 cookie 串 → cookie 文件 → 账号密码 的顺序尝试
// 建立网盘会话。全部失败只记日志，等待用户通过 Web 界面登录。
func autoDriveLogin(cfg *config.Config, sessions *cloud189.SessionHolder, auth *cloud189.Authenticator, logger *logrus.Logger) {
	if cfg.PanCookies != "" {
		sessions.Swap(cloud189.NewClientFromCookies(cfg.PanCookies))
		logger.WithField("action", "auto_login").Info("使用环境变量 cookies 登录")
		return
	}

	if cfg.PanCookiesFile != "" {
		client, err := cloud189.NewClientFromCookieFile(cfg.PanCookiesFile)
		if err == nil {
			sessions.Swap(client)
			logger.WithFields(logrus.Fields{
				"action": "auto_login",
				"file":   cfg.PanCookiesFile,
			}).Info("使用 cookies 文件登录")
			return
		}
		logger.WithFields(logrus.Fields{
			"action": "auto_login",
			"file":   cfg.PanCookiesFile,
		}).Warnf("读取 cookies 文件失败: %v", err)
	}

	if cfg.PanUsername != "" && cfg.PanPassword != "" {
		cookies, err := auth.LoginWithPassword(context.Background(), cfg.PanUsername, cfg.PanPassword)
		if err != nil {
			logger.WithField("action", "auto_login").Warnf("账号密码登录失败: %v", err)
			return
		}
		client := cloud189.NewClientFromCookies(cookies)
		sessions.Swap(client)
		persistCookies(cfg, client, logger)
		logger.WithField("action", "auto_login").Info("账号密码登录成功")
		return
	}

	logger.WithField("action", "auto_login").Info("未配置登录信息，等待 Web 界面登录")
}

// persistCookies 把当前会话的 cookie 串写入配置指定的文件。
func persistCookies(cfg *config.Config, client *cloud189.Client, logger *logrus.Logger) {
	if cfg.PanCookiesFile == "" {
		return
	}
	if err := client.SaveCookies(cfg.PanCookiesFile); err != nil {
		logger.WithFields(logrus.Fields{
			"action": "save_cookies",
			"file":   cfg.PanCookiesFile,
		}).Warnf("保存 cookies 失败: %v", err)
	}
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("pan189-link", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 db/user.env，可被 P189_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("P189_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = config.DefaultEnvFile
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, envPath string, sessions *cloud189.SessionHolder, auth *cloud189.Authenticator, res *resolver.Resolver, notifier *notify.Notifier, logBuf *logging.Buffer, logger *logrus.Logger) error {
	app, err := server.NewApp(server.AppOptions{
		Logger:      logger,
		Config:      cfg,
		Resolver:    res,
		Sessions:    sessions,
		Notifier:    notifier,
		LogBuf:      logBuf,
		Auth:        auth,
		EnvFilePath: envPath,
		OnDriveLogin: func(cookies string) {
			persistCookies(cfg, cloud189.NewClientFromCookies(cookies), logger)
		},
	})
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"addr":   addr,
	}).Info("Fiber 服务启动")

	return app.Listen(addr)
}
