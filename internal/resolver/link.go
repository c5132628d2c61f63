package resolver

import (
	"context"
	"html"

	"github.com/sirupsen/logrus"
)

// GetDownloadURL 返回文件的下载直链。
//
// 直链缓存命中时直接返回；未命中则按固定优先级依次尝试三个上游接口：
// 视频直链、portal 备选视频直链、普通下载链接。任何一个接口的传输错误
// 或缺少可用 URL 都只是跳到下一个候选，全部失败才返回 LinkUnavailable。
// 失败的尝试不会写入任何缓存。
func (r *Resolver) GetDownloadURL(ctx context.Context, fileID int64) (string, error) {
	if cached, ok := r.urls.Get(fileID); ok {
		if left, hit := r.urls.Remaining(fileID); hit {
			r.logger.WithFields(logrus.Fields{
				"action":  "url_cache_hit",
				"file_id": fileID,
			}).Infof("使用缓存的下载链接，剩余有效期 %.1f 分钟", left.Minutes())
		}
		return cached, nil
	}

	api, ok := r.sessions.Current()
	if !ok {
		return "", ErrNotLoggedIn
	}

	// 优先视频直链，大文件与视频走 CDN 更稳。
	if resp, err := api.VideoDownloadURL(ctx, fileID); err == nil && resp.OK() {
		r.urls.Put(fileID, resp.Normal.URL)
		return resp.Normal.URL, nil
	} else if err != nil {
		r.logger.WithField("file_id", fileID).Debugf("视频直链获取失败: %v", err)
	}

	// 备选：portal 路径。
	if resp, err := api.VideoPortalDownloadURL(ctx, fileID); err == nil && resp.OK() {
		r.urls.Put(fileID, resp.Normal.URL)
		return resp.Normal.URL, nil
	} else if err != nil {
		r.logger.WithField("file_id", fileID).Debugf("portal 直链获取失败: %v", err)
	}

	// 最后尝试普通下载链接（适合小文件），URL 为 HTML 实体转义。
	if resp, err := api.FileDownloadInfo(ctx, fileID); err == nil && resp.OK() {
		downloadURL := html.UnescapeString(resp.FileDownloadURL)
		r.urls.Put(fileID, downloadURL)
		return downloadURL, nil
	} else if err != nil {
		r.logger.WithField("file_id", fileID).Debugf("普通下载链接获取失败: %v", err)
	}

	return "", &LinkUnavailableError{FileID: fileID}
}
