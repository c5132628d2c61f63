package cloud189

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// encryptConf 是密码登录用的 RSA 公钥配置。
type encryptConf struct {
	Data struct {
		Pre    string `json:"pre"`
		PubKey string `json:"pubKey"`
	} `json:"data"`
}

// loginSubmitResult 是提交登录表单后的结果，成功时 ToURL 用于换取会话 cookie。
type loginSubmitResult struct {
	Result int    `json:"result"`
	Msg    string `json:"msg"`
	ToURL  string `json:"toUrl"`
}

// LoginWithPassword 走 logbox 表单登录：取公钥加密账号密码、提交表单、
// 请求 toUrl 换取会话 cookie，返回可直接构造 Client 的 cookie 串。
func (a *Authenticator) LoginWithPassword(ctx context.Context, username, password string) (string, error) {
	conf, err := a.FetchLoginConf(ctx)
	if err != nil {
		return "", err
	}
	appConf, err := a.FetchAppConf(ctx, DefaultAppID, conf)
	if err != nil {
		return "", err
	}

	var enc encryptConf
	if err := a.getJSON(ctx, "/encryptConf.do", nil, nil, &enc); err != nil {
		return "", err
	}
	pub, err := parsePublicKey(enc.Data.PubKey)
	if err != nil {
		return "", err
	}
	encUser, err := rsaEncryptHex(pub, username)
	if err != nil {
		return "", fmt.Errorf("加密用户名失败: %w", err)
	}
	encPass, err := rsaEncryptHex(pub, password)
	if err != nil {
		return "", fmt.Errorf("加密密码失败: %w", err)
	}

	form := url.Values{
		"appKey":       {DefaultAppID},
		"accountType":  {"01"},
		"userName":     {enc.Data.Pre + encUser},
		"password":     {enc.Data.Pre + encPass},
		"validateCode": {""},
		"captchaToken": {""},
		"returnUrl":    {appConf.Data.ReturnURL},
		"paramId":      {appConf.Data.ParamID},
		"dynamicCheck": {"FALSE"},
		"clientType":   {"10020"},
		"cb_SaveName":  {"1"},
		"isOauth2":     {"false"},
	}

	endpoint := a.authBase + "/loginSubmit.do"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("构造登录请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("lt", conf.LT)
	req.Header.Set("reqId", conf.ReqID)
	req.Header.Set("Referer", conf.URL)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("提交登录表单失败: %w", err)
	}
	var result loginSubmitResult
	if err := decodeBody(resp, &result); err != nil {
		return "", err
	}
	if result.Result != 0 {
		return "", fmt.Errorf("登录失败 (result=%d): %s", result.Result, result.Msg)
	}
	if result.ToURL == "" {
		return "", fmt.Errorf("登录响应缺少 toUrl")
	}

	return a.CollectRedirectCookies(ctx, &QRState{RedirectURL: result.ToURL})
}

// decodeBody 读取并解码 JSON 响应体。
func decodeBody(resp *http.Response, out any) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("读取登录响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("登录接口返回 HTTP %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("解析登录响应失败: %w", err)
	}
	return nil
}

// parsePublicKey 解析 base64 DER 编码的 RSA 公钥。
func parsePublicKey(b64 string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("解析公钥失败: %w", err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("解析公钥失败: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("公钥类型不是 RSA: %T", key)
	}
	return pub, nil
}

// rsaEncryptHex 按 logbox 约定做 RSA PKCS1v15 加密并输出十六进制。
func rsaEncryptHex(pub *rsa.PublicKey, plain string) (string, error) {
	cipher, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(plain))
	if err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(cipher)), nil
}
