package logging

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Buffer 是保存最近日志行的环形缓冲，同时实现 logrus.Hook。
// 写满后丢弃最旧的行，容量固定。
type Buffer struct {
	mu    sync.Mutex
	lines []string
	start int
	count int
}

// NewBuffer 创建容量为 max 的环形缓冲。
func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = 1
	}
	return &Buffer{lines: make([]string, max)}
}

// Levels 让 Hook 接收所有级别的日志。
func (b *Buffer) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire 把日志条目格式化成单行文本后入队。
func (b *Buffer) Fire(entry *logrus.Entry) error {
	line := fmt.Sprintf("%s - %s - %s",
		entry.Time.Format(time.DateTime),
		entry.Level.String(),
		entry.Message,
	)
	b.Append(line)
	return nil
}

// Append 追加一行，必要时覆盖最旧的行。
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count < len(b.lines) {
		b.lines[(b.start+b.count)%len(b.lines)] = line
		b.count++
		return
	}
	b.lines[b.start] = line
	b.start = (b.start + 1) % len(b.lines)
}

// Tail 返回最近 n 行（不足 n 行时返回全部），从旧到新排序。
func (b *Buffer) Tail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.count {
		n = b.count
	}
	out := make([]string, 0, n)
	for i := b.count - n; i < b.count; i++ {
		out = append(out, b.lines[(b.start+i)%len(b.lines)])
	}
	return out
}

// Len 返回当前缓冲的行数。
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
