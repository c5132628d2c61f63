package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pan189-link/pan189-link/internal/logging"
)

// logCommand 是查询最近日志的机器人命令。
const logCommand = "/189log"

// logTailLines 是一次命令返回的最大日志行数。
const logTailLines = 100

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		From struct {
			ID json.Number `json:"id"`
		} `json:"from"`
		Chat struct {
			ID json.Number `json:"id"`
		} `json:"chat"`
	} `json:"message"`
	EditedMessage *struct {
		Text string `json:"text"`
		From struct {
			ID json.Number `json:"id"`
		} `json:"from"`
		Chat struct {
			ID json.Number `json:"id"`
		} `json:"chat"`
	} `json:"edited_message"`
}

type updatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

// RunBot 长轮询 getUpdates 并响应 /189log 命令，ctx 取消后返回。
// 任何一次轮询失败都只是稍作等待后重试，循环本身不会退出。
func (n *Notifier) RunBot(ctx context.Context, buffer *logging.Buffer) {
	if !n.Enabled() {
		return
	}
	if len(n.whitelist) == 0 {
		n.logger.Warn("Telegram 机器人未配置用户白名单，/189log 将拒绝所有用户")
	}

	// 长轮询需要比 30s 的服务端等待更宽的客户端超时。
	pollClient := *n.httpClient
	pollClient.Timeout = 35 * time.Second

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := n.fetchUpdates(ctx, &pollClient, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			n.logger.Warnf("Telegram 轮询异常: %v", err)
			sleepCtx(ctx, 2*time.Second)
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			text, userID, chatID := extractCommand(u)
			if text == "" || chatID == "" {
				continue
			}
			if !n.UserAllowed(userID) {
				n.SendMessage(ctx, chatID, "未授权的用户", "")
				continue
			}
			n.SendLogLines(ctx, chatID, buffer.Tail(logTailLines))
		}
	}
}

// extractCommand 从 update 中取出 /189log 命令及发送者信息。
func extractCommand(u update) (text, userID, chatID string) {
	msg := u.Message
	if msg == nil {
		msg = u.EditedMessage
	}
	if msg == nil {
		return "", "", ""
	}
	if len(msg.Text) < len(logCommand) || msg.Text[:len(logCommand)] != logCommand {
		return "", "", ""
	}
	return msg.Text, msg.From.ID.String(), msg.Chat.ID.String()
}

// fetchUpdates 执行一次长轮询。
func (n *Notifier) fetchUpdates(ctx context.Context, client *http.Client, offset int64) ([]update, error) {
	query := url.Values{
		"timeout": {"30"},
		"offset":  {strconv.FormatInt(offset, 10)},
	}
	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?%s", n.apiBase, n.token, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	var decoded updatesResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, err
	}
	if !decoded.OK {
		return nil, fmt.Errorf("getUpdates 返回 ok=false")
	}
	return decoded.Result, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
