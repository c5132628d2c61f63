package resolver

import (
	"errors"
	"fmt"
)

// ErrNotLoggedIn 表示进程内没有活跃的网盘会话，请求应直接失败。
var ErrNotLoggedIn = errors.New("未登录，请先登录天翼网盘账号")

// NotFoundError 表示某个路径段在上游不存在，SubPath 指向第一个无法
// 解析的累积子路径。
type NotFoundError struct {
	SubPath string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("文件或目录不存在: %s", e.SubPath)
}

// UpstreamError 表示上游接口返回了非成功状态，解析立即中止；
// 与“未找到”严格区分，避免把上游故障当作路径不存在缓存下来。
type UpstreamError struct {
	Op      string
	ResCode int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s 失败 (res_code=%d): %s", e.Op, e.ResCode, e.Message)
	}
	return fmt.Sprintf("%s 失败 (res_code=%d)", e.Op, e.ResCode)
}

// LinkUnavailableError 表示三种直链接口全部失败，携带文件 ID 便于排查。
type LinkUnavailableError struct {
	FileID int64
}

func (e *LinkUnavailableError) Error() string {
	return fmt.Sprintf("无法获取文件 %d 的下载链接", e.FileID)
}
