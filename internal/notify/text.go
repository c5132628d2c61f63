package notify

import (
	"html"
	"regexp"
	"strings"
)

// messageLimit 低于 Telegram 的 4096 上限，给 <pre> 标签与转义留余量。
const messageLimit = 3800

var ansiPattern = regexp.MustCompile(`\x1b?\[[0-9;]*m`)

// sanitizeLogLine 去掉 ANSI 颜色控制序列，日志发到聊天里保持纯文本。
func sanitizeLogLine(line string) string {
	line = ansiPattern.ReplaceAllString(line, "")
	return strings.ReplaceAll(line, "\x1b", "")
}

// splitMessage 按行把长文本切成不超过 limit 的片段，单行超限时独占一段。
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var parts []string
	var current []string
	length := 0
	for _, line := range strings.Split(text, "\n") {
		lineLen := len(line) + 1
		if length+lineLen > limit && len(current) > 0 {
			parts = append(parts, strings.Join(current, "\n"))
			current = []string{line}
			length = lineLen
		} else {
			current = append(current, line)
			length += lineLen
		}
	}
	if len(current) > 0 {
		parts = append(parts, strings.Join(current, "\n"))
	}
	return parts
}

// escapeHTML 转义 <pre> 代码块内容。
func escapeHTML(s string) string {
	return html.EscapeString(s)
}
