package cloud189

import (
	"encoding/json"
	"testing"
)

func TestFileItemDualFieldNames(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want FileItem
	}{
		{
			name: "新版字段",
			raw:  `{"fileId":123,"fileName":"电影.mkv","isFolder":false}`,
			want: FileItem{ID: 123, Name: "电影.mkv"},
		},
		{
			name: "旧版字段",
			raw:  `{"id":456,"name":"剧集","isFolder":true}`,
			want: FileItem{ID: 456, Name: "剧集", IsFolder: true},
		},
		{
			name: "字符串形式的 ID",
			raw:  `{"fileId":"789","fileName":"a.mp4"}`,
			want: FileItem{ID: 789, Name: "a.mp4"},
		},
		{
			name: "新版字段优先",
			raw:  `{"fileId":1,"id":2,"fileName":"新","name":"旧"}`,
			want: FileItem{ID: 1, Name: "新"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got FileItem
			if err := json.Unmarshal([]byte(tc.raw), &got); err != nil {
				t.Fatalf("解码失败: %v", err)
			}
			if got != tc.want {
				t.Fatalf("解码结果 %+v，期望 %+v", got, tc.want)
			}
		})
	}
}

func TestListResponseStatusCoalescing(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		wantCode int
		wantOK   bool
	}{
		{"res_code 成功", `{"res_code":0,"data":[]}`, 0, true},
		{"res_code 失败", `{"res_code":500}`, 500, false},
		{"errorCode 失败", `{"errorCode":-117}`, -117, false},
		{"res_code 优先于 errorCode", `{"res_code":0,"errorCode":500}`, 0, true},
		{"两字段均缺省视为成功", `{"data":[]}`, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var resp ListResponse
			if err := json.Unmarshal([]byte(tc.raw), &resp); err != nil {
				t.Fatalf("解码失败: %v", err)
			}
			if resp.ResCode != tc.wantCode {
				t.Fatalf("状态码 %d，期望 %d", resp.ResCode, tc.wantCode)
			}
			if resp.OK() != tc.wantOK {
				t.Fatalf("OK() = %v，期望 %v", resp.OK(), tc.wantOK)
			}
		})
	}
}

func TestListResponseListFields(t *testing.T) {
	var resp ListResponse
	raw := `{"res_code":0,"data":[{"fileId":1,"fileName":"a"}],"recordCount":150}`
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Name != "a" {
		t.Fatalf("data 字段应填充 Items，得到 %+v", resp.Items)
	}
	if resp.RecordCount != 150 {
		t.Fatalf("recordCount = %d，期望 150", resp.RecordCount)
	}

	var legacy ListResponse
	raw = `{"res_code":0,"fileList":[{"id":2,"name":"b"}]}`
	if err := json.Unmarshal([]byte(raw), &legacy); err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if len(legacy.Items) != 1 || legacy.Items[0].ID != 2 {
		t.Fatalf("fileList 字段应填充 Items，得到 %+v", legacy.Items)
	}
}

func TestListResponseInvalidCode(t *testing.T) {
	var resp ListResponse
	if err := json.Unmarshal([]byte(`{"res_code":"abc"}`), &resp); err == nil {
		t.Fatal("非数字状态码应返回解码错误")
	}
}

func TestLinkResponseOK(t *testing.T) {
	ok := LinkResponse{}
	ok.Normal.URL = "https://cdn.example.com/v.mp4"
	if !ok.OK() {
		t.Fatal("res_code 0 且有 URL 时应判定成功")
	}

	noURL := LinkResponse{}
	if noURL.OK() {
		t.Fatal("缺少 URL 时不应判定成功")
	}

	failed := LinkResponse{ResCode: -1}
	failed.Normal.URL = "https://cdn.example.com/v.mp4"
	if failed.OK() {
		t.Fatal("res_code 非 0 时不应判定成功")
	}
}

func TestFileInfoResponseOK(t *testing.T) {
	ok := FileInfoResponse{FileDownloadURL: "https://d.example.com/f?a=1&amp;b=2"}
	if !ok.OK() {
		t.Fatal("res_code 0 且有下载地址时应判定成功")
	}
	var empty FileInfoResponse
	if empty.OK() {
		t.Fatal("缺少下载地址时不应判定成功")
	}
}
