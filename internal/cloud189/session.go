package cloud189

import "sync"

// SessionHolder 保存进程内唯一的网盘会话。登录、登出都通过 Swap 整体
// 替换，互斥锁保证解析器不会读到半替换的会话；持有期间的 API 调用
// 直接使用取出的引用，替换不会影响进行中的请求。
type SessionHolder struct {
	mu      sync.RWMutex
	current API
}

// NewSessionHolder 创建空的会话容器，初始为未登录状态。
func NewSessionHolder() *SessionHolder {
	return &SessionHolder{}
}

// Current 返回当前会话；未登录时 ok 为 false。
func (h *SessionHolder) Current() (API, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return nil, false
	}
	return h.current, true
}

// Swap 整体替换当前会话，传入 nil 表示登出。
func (h *SessionHolder) Swap(api API) {
	h.mu.Lock()
	h.current = api
	h.mu.Unlock()
}

// LoggedIn 报告当前是否存在活跃会话。
func (h *SessionHolder) LoggedIn() bool {
	_, ok := h.Current()
	return ok
}
