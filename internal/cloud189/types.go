package cloud189

import (
	"context"
	"encoding/json"
)

// RootFolderID 是网盘根目录的保留负数 ID，所有路径解析都从这里出发。
const RootFolderID int64 = -11

// API 抽象解析器所依赖的网盘接口，测试中以假实现替换。
type API interface {
	// ListFiles 按页列出目录内容，pageSize 固定由调用方控制。
	ListFiles(ctx context.Context, folderID int64, pageNum, pageSize int) (*ListResponse, error)

	// VideoDownloadURL 获取视频直链，适合大文件，优先使用。
	VideoDownloadURL(ctx context.Context, fileID int64) (*LinkResponse, error)

	// VideoPortalDownloadURL 是 portal 备选路径的视频直链接口。
	VideoPortalDownloadURL(ctx context.Context, fileID int64) (*LinkResponse, error)

	// FileDownloadInfo 获取普通下载链接，返回值为 HTML 实体转义后的 URL。
	FileDownloadInfo(ctx context.Context, fileID int64) (*FileInfoResponse, error)
}

// FileItem 是目录列表中的一项，文件与文件夹共用。
type FileItem struct {
	ID       int64
	Name     string
	IsFolder bool
}

// fileItemWire 兼容上游两套字段命名（fileId/fileName 与 id/name）。
type fileItemWire struct {
	FileID   json.Number `json:"fileId"`
	ID       json.Number `json:"id"`
	FileName string      `json:"fileName"`
	Name     string      `json:"name"`
	IsFolder bool        `json:"isFolder"`
}

// UnmarshalJSON 将两套命名规范归一到 FileItem。
func (f *FileItem) UnmarshalJSON(data []byte) error {
	var w fileItemWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id := w.FileID
	if id == "" {
		id = w.ID
	}
	if id != "" {
		v, err := id.Int64()
		if err != nil {
			return err
		}
		f.ID = v
	}
	f.Name = w.FileName
	if f.Name == "" {
		f.Name = w.Name
	}
	f.IsFolder = w.IsFolder
	return nil
}

// ListResponse 是目录列表响应。ResCode 为归一后的状态码，0 表示成功；
// 上游历史上同时使用 res_code 与 errorCode 两个字段，解码时取先出现的
// 非零值作为唯一判定依据（成功判定只看 ResCode == 0 这一处）。
type ListResponse struct {
	ResCode     int
	Items       []FileItem
	RecordCount int
}

type listResponseWire struct {
	ResCode   json.Number `json:"res_code"`
	ErrorCode json.Number `json:"errorCode"`
	// 新版接口用 data 字段返回列表，旧版是 fileList。
	Data        []FileItem  `json:"data"`
	FileList    []FileItem  `json:"fileList"`
	RecordCount json.Number `json:"recordCount"`
}

// UnmarshalJSON 归一状态码与列表字段。
func (r *ListResponse) UnmarshalJSON(data []byte) error {
	var w listResponseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	code, err := coalesceCode(w.ResCode, w.ErrorCode)
	if err != nil {
		return err
	}
	r.ResCode = code
	r.Items = w.Data
	if len(r.Items) == 0 {
		r.Items = w.FileList
	}
	if w.RecordCount != "" {
		count, err := w.RecordCount.Int64()
		if err != nil {
			return err
		}
		r.RecordCount = int(count)
	}
	return nil
}

// OK 是目录列表的唯一成功判定。
func (r *ListResponse) OK() bool {
	return r.ResCode == 0
}

// coalesceCode 取第一个出现的字段作为权威状态码（res_code 优先于
// errorCode），两个字段都缺省时视为成功。
func coalesceCode(codes ...json.Number) (int, error) {
	for _, c := range codes {
		if c == "" {
			continue
		}
		v, err := c.Int64()
		if err != nil {
			return 0, err
		}
		return int(v), nil
	}
	return 0, nil
}

// LinkResponse 是视频直链接口的响应，URL 位于 normal.url。
type LinkResponse struct {
	ResCode int `json:"res_code"`
	Normal  struct {
		URL string `json:"url"`
	} `json:"normal"`
}

// OK 表示接口成功且带有可用 URL。
func (r *LinkResponse) OK() bool {
	return r.ResCode == 0 && r.Normal.URL != ""
}

// FileInfoResponse 是普通下载接口的响应；FileDownloadURL 为 HTML
// 实体转义后的链接，使用前必须反转义。
type FileInfoResponse struct {
	ResCode         int    `json:"res_code"`
	FileDownloadURL string `json:"fileDownloadUrl"`
}

// OK 表示接口成功且带有下载地址。
func (r *FileInfoResponse) OK() bool {
	return r.ResCode == 0 && r.FileDownloadURL != ""
}
