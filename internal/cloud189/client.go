package cloud189

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// 天翼网盘 API 入口。portal 域名承载目录列表与普通下载，
// 视频直链有独立的接口路径。
const (
	defaultAPIBase  = "https://cloud.189.cn/api"
	defaultAuthBase = "https://open.e.189.cn/api/logbox/oauth2"
)

// Client 持有一份已登录的网盘会话（cookie 串）与共享 http.Client。
// Client 本身不可变：重新登录产生新的 Client 并整体替换 SessionHolder
// 中的当前实例，调用方永远不会观察到半替换状态。
type Client struct {
	httpClient *http.Client
	apiBase    string
	authBase   string
	cookies    string
}

// Option 调整 Client 的可选行为，主要用于测试注入假上游。
type Option func(*Client)

// WithHTTPClient 替换共享 http.Client（超时、代理等由调用方统一配置）。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIBase 覆盖 API 入口地址，测试指向 httptest server。
func WithAPIBase(base string) Option {
	return func(c *Client) { c.apiBase = strings.TrimRight(base, "/") }
}

// WithAuthBase 覆盖认证入口地址。
func WithAuthBase(base string) Option {
	return func(c *Client) { c.authBase = strings.TrimRight(base, "/") }
}

// NewClientFromCookies 用 cookie 串直接构造会话，不发起任何网络请求；
// cookie 是否有效要到第一次 API 调用才能确认。
func NewClientFromCookies(cookies string, opts ...Option) *Client {
	c := &Client{
		httpClient: defaultHTTPClient(),
		apiBase:    defaultAPIBase,
		authBase:   defaultAuthBase,
		cookies:    strings.TrimSpace(cookies),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromCookieFile 读取 cookie 文件并构造会话。
func NewClientFromCookieFile(path string, opts ...Option) (*Client, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取 cookie 文件失败: %w", err)
	}
	cookies := strings.TrimSpace(string(raw))
	if cookies == "" {
		return nil, fmt.Errorf("cookie 文件为空: %s", path)
	}
	return NewClientFromCookies(cookies, opts...), nil
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// CookieString 导出当前会话的 cookie 串，供持久化与管理端查看。
func (c *Client) CookieString() string {
	return c.cookies
}

// SaveCookies 将会话 cookie 写入文件，容器重启后可直接复用。
func (c *Client) SaveCookies(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建 cookie 目录失败: %w", err)
	}
	if err := os.WriteFile(path, []byte(c.cookies), 0o600); err != nil {
		return fmt.Errorf("写入 cookie 文件失败: %w", err)
	}
	return nil
}

// ListFiles 列出目录的一页内容。
func (c *Client) ListFiles(ctx context.Context, folderID int64, pageNum, pageSize int) (*ListResponse, error) {
	query := url.Values{
		"folderId":   {strconv.FormatInt(folderID, 10)},
		"pageNum":    {strconv.Itoa(pageNum)},
		"pageSize":   {strconv.Itoa(pageSize)},
		"mediaType":  {"0"},
		"iconOption": {"5"},
		"orderBy":    {"lastOpTime"},
		"descending": {"true"},
	}
	var resp ListResponse
	if err := c.getJSON(ctx, "/portal/listFiles.action", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VideoDownloadURL 获取视频直链（优先接口）。
func (c *Client) VideoDownloadURL(ctx context.Context, fileID int64) (*LinkResponse, error) {
	query := url.Values{
		"fileId": {strconv.FormatInt(fileID, 10)},
		"type":   {"2"},
	}
	var resp LinkResponse
	if err := c.getJSON(ctx, "/portal/getNewVlcVideoPlayUrl.action", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VideoPortalDownloadURL 获取视频直链（portal 备选接口）。
func (c *Client) VideoPortalDownloadURL(ctx context.Context, fileID int64) (*LinkResponse, error) {
	query := url.Values{
		"fileId": {strconv.FormatInt(fileID, 10)},
		"type":   {"4"},
	}
	var resp LinkResponse
	if err := c.getJSON(ctx, "/portal/getVlcVideoPlayUrl.action", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FileDownloadInfo 获取普通下载链接，适合小文件。
func (c *Client) FileDownloadInfo(ctx context.Context, fileID int64) (*FileInfoResponse, error) {
	query := url.Values{
		"fileId": {strconv.FormatInt(fileID, 10)},
	}
	var resp FileInfoResponse
	if err := c.getJSON(ctx, "/portal/getFileDownloadUrl.action", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// getJSON 发起带会话 cookie 的 GET 请求并解码 JSON 响应。
// 部分接口的 Content-Type 是 text/html 但正文为 JSON，因此不校验类型。
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.apiBase + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json;charset=UTF-8")
	if c.cookies != "" {
		req.Header.Set("Cookie", c.cookies)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求 %s 失败: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("读取 %s 响应失败: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s 返回 HTTP %d: %s", path, resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("解析 %s 响应失败: %w", path, err)
	}
	return nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
