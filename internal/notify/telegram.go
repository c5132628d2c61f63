package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier 负责把失败事件推送到 Telegram。未配置 token 时所有方法都是
// 空操作，调用方不需要区分是否启用了通知。
type Notifier struct {
	token      string
	chatIDs    []string
	whitelist  map[string]struct{}
	httpClient *http.Client
	apiBase    string
	logger     *logrus.Logger
}

// Options 汇总 Notifier 的配置。
type Options struct {
	Token         string
	NotifyChatIDs []string
	UserWhitelist []string
	Logger        *logrus.Logger

	// HTTPClient 与 APIBase 主要用于测试注入。
	HTTPClient *http.Client
	APIBase    string
}

// New 构造 Notifier。
func New(opts Options) *Notifier {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	base := opts.APIBase
	if base == "" {
		base = defaultAPIBase
	}
	whitelist := make(map[string]struct{}, len(opts.UserWhitelist))
	for _, id := range opts.UserWhitelist {
		whitelist[id] = struct{}{}
	}
	return &Notifier{
		token:      opts.Token,
		chatIDs:    opts.NotifyChatIDs,
		whitelist:  whitelist,
		httpClient: hc,
		apiBase:    strings.TrimRight(base, "/"),
		logger:     opts.Logger,
	}
}

// Enabled 报告是否配置了机器人 token。
func (n *Notifier) Enabled() bool {
	return n.token != ""
}

// UserAllowed 报告用户是否在白名单内；空白名单拒绝所有用户。
func (n *Notifier) UserAllowed(userID string) bool {
	if len(n.whitelist) == 0 {
		return false
	}
	_, ok := n.whitelist[userID]
	return ok
}

// NotifyFailure 向所有通知 chat 推送一次直链获取失败事件。
func (n *Notifier) NotifyFailure(ctx context.Context, filePath, errText string) {
	if !n.Enabled() || len(n.chatIDs) == 0 {
		return
	}
	message := fmt.Sprintf("302 获取直链失败\n路径: %s\n错误: %s", filePath, errText)
	for _, chatID := range n.chatIDs {
		n.SendMessage(ctx, chatID, message, "")
	}
}

// SendMessage 发送一条消息；失败只记日志，不影响调用方。
func (n *Notifier) SendMessage(ctx context.Context, chatID, text, parseMode string) {
	if !n.Enabled() {
		return
	}
	payload := url.Values{
		"chat_id":                  {chatID},
		"text":                     {text},
		"disable_web_page_preview": {"true"},
	}
	if parseMode != "" {
		payload.Set("parse_mode", parseMode)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		n.logger.Warnf("构造 Telegram 请求失败: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warnf("发送 Telegram 消息失败: %v", err)
		return
	}
	resp.Body.Close()
}

// SendLogLines 把日志行清洗、分片后以 <pre> 代码块发送到指定 chat。
func (n *Notifier) SendLogLines(ctx context.Context, chatID string, lines []string) {
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, sanitizeLogLine(line))
	}
	payload := strings.TrimSpace(strings.Join(cleaned, "\n"))
	if payload == "" {
		n.SendMessage(ctx, chatID, "暂无日志", "")
		return
	}
	for _, part := range splitMessage(payload, messageLimit) {
		n.SendMessage(ctx, chatID, "<pre>"+escapeHTML(part)+"</pre>", "HTML")
	}
}
