package cloud189

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
)

func TestQRStateStatusCode(t *testing.T) {
	cases := []struct {
		name  string
		state QRState
		want  int
	}{
		{"status 字段优先", QRState{Status: QRStatusWaiting, Result: "5"}, QRStatusWaiting},
		{"status 缺省取 result", QRState{Result: "-11002"}, QRStatusScanned},
		{"两者都缺省视为成功", QRState{}, QRStatusConfirmed},
		{"result 非数字回退 status", QRState{Result: "junk"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.state.StatusCode(); got != tc.want {
				t.Fatalf("StatusCode() = %d，期望 %d", got, tc.want)
			}
		})
	}
}

func TestFetchQRCodeUUID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/getUUID.do" {
			t.Errorf("意外的请求路径 %s", r.URL.Path)
		}
		if r.URL.Query().Get("appId") != DefaultAppID {
			t.Errorf("appId = %q", r.URL.Query().Get("appId"))
		}
		json.NewEncoder(w).Encode(map[string]string{"uuid": "u-1", "encryuuid": "e-1"})
	}))
	defer srv.Close()

	a := NewAuthenticator(srv.Client(), srv.URL)
	qr, err := a.FetchQRCodeUUID(context.Background(), DefaultAppID)
	if err != nil {
		t.Fatalf("FetchQRCodeUUID 失败: %v", err)
	}
	if qr.UUID != "u-1" || qr.EncryUUID != "e-1" {
		t.Fatalf("解析结果异常: %+v", qr)
	}
}

func TestFetchQRCodeUUIDMissingUUID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	a := NewAuthenticator(srv.Client(), srv.URL)
	if _, err := a.FetchQRCodeUUID(context.Background(), DefaultAppID); err == nil {
		t.Fatal("缺少 uuid 的响应应返回错误")
	}
}

func TestPollQRStateSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/qrcodeLoginState.do" {
			t.Errorf("意外的请求路径 %s", r.URL.Path)
		}
		if r.Header.Get("lt") != "LT1" || r.Header.Get("reqid") != "REQ1" {
			t.Errorf("缺少 lt/reqid 请求头: lt=%q reqid=%q", r.Header.Get("lt"), r.Header.Get("reqid"))
		}
		if r.URL.Query().Get("uuid") != "u-1" {
			t.Errorf("uuid = %q", r.URL.Query().Get("uuid"))
		}
		json.NewEncoder(w).Encode(map[string]any{"status": QRStatusScanned})
	}))
	defer srv.Close()

	a := NewAuthenticator(srv.Client(), srv.URL)
	conf := &LoginConf{LT: "LT1", ReqID: "REQ1", URL: "https://example.com/login"}
	app := &AppConf{}
	app.Data.ParamID = "p-1"
	app.Data.ReturnURL = "https://cloud.189.cn/web/redirect.html"

	state, err := a.PollQRState(context.Background(), DefaultAppID, &QRCodeUUID{UUID: "u-1", EncryUUID: "e-1"}, conf, app)
	if err != nil {
		t.Fatalf("PollQRState 失败: %v", err)
	}
	if state.StatusCode() != QRStatusScanned {
		t.Fatalf("状态码 %d，期望 %d", state.StatusCode(), QRStatusScanned)
	}
}

func TestCollectRedirectCookiesMerges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "COOKIE_LOGIN_USER", Value: "tok"})
		// 跳转不应被跟随，Set-Cookie 必须从首个响应取。
		http.Redirect(w, r, "/next", http.StatusFound)
	}))
	defer srv.Close()

	a := NewAuthenticator(srv.Client(), srv.URL)
	state := &QRState{
		RedirectURL: srv.URL + "/redirect",
		Cookies:     map[string]string{"JSESSIONID": "abc"},
	}
	got, err := a.CollectRedirectCookies(context.Background(), state)
	if err != nil {
		t.Fatalf("CollectRedirectCookies 失败: %v", err)
	}

	pairs := strings.Split(got, "; ")
	sort.Strings(pairs)
	want := []string{"COOKIE_LOGIN_USER=tok", "JSESSIONID=abc"}
	if len(pairs) != len(want) || pairs[0] != want[0] || pairs[1] != want[1] {
		t.Fatalf("cookie 串 %q，期望合并 %v", got, want)
	}
}

func TestCollectRedirectCookiesEmpty(t *testing.T) {
	a := NewAuthenticator(http.DefaultClient, "https://example.com")
	if _, err := a.CollectRedirectCookies(context.Background(), &QRState{}); err == nil {
		t.Fatal("没有任何 cookie 时应返回错误")
	}
}

func TestQRImageURL(t *testing.T) {
	got := QRImageURL("uuid with space")
	if !strings.Contains(got, "uuid=uuid+with+space") {
		t.Fatalf("uuid 应做 URL 编码: %s", got)
	}
}
