package cloud189

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// 扫码登录状态码，来自 logbox 接口。
const (
	QRStatusWaiting   = -106   // 等待扫码
	QRStatusScanned   = -11002 // 已扫码，待手机端确认
	QRStatusConfirmed = 0      // 登录成功
	QRStatusExpired   = -20099 // 二维码过期
)

// DefaultAppID 是扫码登录使用的应用标识。
const DefaultAppID = "cloud"

// Authenticator 封装登录前的 logbox 接口调用，这些接口不依赖已有会话。
type Authenticator struct {
	httpClient *http.Client
	authBase   string
}

// NewAuthenticator 构造登录辅助客户端；base 为空时使用官方入口。
func NewAuthenticator(hc *http.Client, base string) *Authenticator {
	if hc == nil {
		hc = defaultHTTPClient()
	}
	if base == "" {
		base = defaultAuthBase
	}
	return &Authenticator{httpClient: hc, authBase: strings.TrimRight(base, "/")}
}

// QRCodeUUID 获取二维码的 uuid 与 encryuuid；uuid 本身就是二维码内容。
type QRCodeUUID struct {
	EncryUUID string `json:"encryuuid"`
	UUID      string `json:"uuid"`
}

// LoginConf 是 login_url 配置，lt/reqId 用作后续请求头，URL 用作 referer。
type LoginConf struct {
	LT    string `json:"lt"`
	ReqID string `json:"reqId"`
	URL   string `json:"url"`
}

// AppConf 是应用级配置，paramId/returnUrl 用于扫码状态轮询。
type AppConf struct {
	Data struct {
		ParamID   string `json:"paramId"`
		ReturnURL string `json:"returnUrl"`
	} `json:"data"`
}

// QRState 是一次扫码状态轮询的结果。
type QRState struct {
	Status      int               `json:"status"`
	Result      json.Number       `json:"result"`
	RedirectURL string            `json:"redirectUrl"`
	Cookies     map[string]string `json:"cookies"`
}

// StatusCode 归一 status 与 result 两个字段，status 缺省时取 result。
func (s *QRState) StatusCode() int {
	if s.Status != 0 {
		return s.Status
	}
	if s.Result != "" {
		if v, err := s.Result.Int64(); err == nil {
			return int(v)
		}
	}
	return s.Status
}

// FetchQRCodeUUID 请求新的二维码标识。
func (a *Authenticator) FetchQRCodeUUID(ctx context.Context, appID string) (*QRCodeUUID, error) {
	var out QRCodeUUID
	query := url.Values{"appId": {appID}}
	if err := a.getJSON(ctx, "/getUUID.do", query, nil, &out); err != nil {
		return nil, err
	}
	if out.UUID == "" {
		return nil, fmt.Errorf("二维码响应缺少 uuid")
	}
	return &out, nil
}

// FetchLoginConf 获取 lt/reqId/url 登录配置。
func (a *Authenticator) FetchLoginConf(ctx context.Context) (*LoginConf, error) {
	var out LoginConf
	if err := a.getJSON(ctx, "/unifyAccountLogin.do", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchAppConf 获取应用配置，需携带 lt/reqId 请求头。
func (a *Authenticator) FetchAppConf(ctx context.Context, appID string, conf *LoginConf) (*AppConf, error) {
	var out AppConf
	headers := map[string]string{"lt": conf.LT, "reqId": conf.ReqID}
	query := url.Values{"version": {"2.0"}, "appKey": {appID}}
	if err := a.getJSON(ctx, "/appConf.do", query, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PollQRState 查询扫码状态。returnUrl 需 URL 编码后提交，与 web 端行为一致。
func (a *Authenticator) PollQRState(ctx context.Context, appID string, qr *QRCodeUUID, conf *LoginConf, app *AppConf) (*QRState, error) {
	query := url.Values{
		"appId":     {appID},
		"encryuuid": {qr.EncryUUID},
		"uuid":      {qr.UUID},
		"returnUrl": {url.QueryEscape(app.Data.ReturnURL)},
		"paramId":   {app.Data.ParamID},
		"date":      {time.Now().Format("2006-01-02 15:04:05")},
	}
	headers := map[string]string{
		"lt":      conf.LT,
		"reqid":   conf.ReqID,
		"referer": conf.URL,
	}
	var out QRState
	if err := a.getJSON(ctx, "/qrcodeLoginState.do", query, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CollectRedirectCookies 请求 redirectUrl（不跟随重定向），把响应 Set-Cookie
// 与轮询结果里的 cookies 合并成最终会话 cookie 串。
func (a *Authenticator) CollectRedirectCookies(ctx context.Context, state *QRState) (string, error) {
	all := map[string]string{}
	for k, v := range state.Cookies {
		all[k] = v
	}

	if state.RedirectURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, state.RedirectURL, nil)
		if err != nil {
			return "", fmt.Errorf("构造 redirectUrl 请求失败: %w", err)
		}
		noRedirect := *a.httpClient
		noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
		resp, err := noRedirect.Do(req)
		if err != nil {
			return "", fmt.Errorf("请求 redirectUrl 失败: %w", err)
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		for _, cookie := range resp.Cookies() {
			all[cookie.Name] = cookie.Value
		}
	}

	if len(all) == 0 {
		return "", fmt.Errorf("无法获取登录 cookies")
	}

	pairs := make([]string, 0, len(all))
	for k, v := range all {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, "; "), nil
}

// QRImageURL 返回官方二维码图片地址，前端可直接展示。
func QRImageURL(uuid string) string {
	return "https://open.e.189.cn/api/logbox/oauth2/image.do?uuid=" + url.QueryEscape(uuid)
}

func (a *Authenticator) getJSON(ctx context.Context, path string, query url.Values, headers map[string]string, out any) error {
	endpoint := a.authBase + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("构造请求失败: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求 %s 失败: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("读取 %s 响应失败: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s 返回 HTTP %d", path, resp.StatusCode)
	}
	// logbox 接口可能以 text/html 返回 JSON 字符串，直接按 JSON 解。
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("解析 %s 响应失败: %w", path, err)
	}
	return nil
}
