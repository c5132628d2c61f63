package resolver

import (
	"context"

	"github.com/sirupsen/logrus"
)

// spawnPrecache 以后台 goroutine 派发一次预热，panic 会被捕获并记录，
// 不会影响任何前台请求。
func (r *Resolver) spawnPrecache(parentID, excludeID int64) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.WithFields(logrus.Fields{
					"action":    "precache_panic",
					"parent_id": parentID,
				}).Errorf("预缓存任务 panic: %v", rec)
			}
		}()
		r.PrecacheSiblings(context.Background(), parentID, excludeID)
	}()
}

// PrecacheSiblings 预热同目录兄弟文件的直链缓存。
//
// 单飞保证：进程内同一时刻最多一个预热任务，抢不到标志位立即返回，
// 不发起任何上游调用。持有标志期间分页遍历父目录，跳过文件夹、刚
// 解析的文件本身以及缓存仍新鲜的条目，其余文件逐个调用视频直链接口
// （只用首选接口，不走完整回退链）。单个文件失败只记日志不中止；
// 达到单次上限或翻完所有页即结束。标志位在任何退出路径上都会释放。
func (r *Resolver) PrecacheSiblings(ctx context.Context, parentID, excludeID int64) {
	if !r.precacheBusy.CompareAndSwap(false, true) {
		return
	}
	defer r.precacheBusy.Store(false)

	api, ok := r.sessions.Current()
	if !ok {
		return
	}

	cached := 0
	for pageNum := 1; cached < r.maxPrecache; pageNum++ {
		resp, err := api.ListFiles(ctx, parentID, pageNum, listPageSize)
		if err != nil {
			r.logger.WithField("parent_id", parentID).Errorf("预缓存拉取目录失败: %v", err)
			break
		}
		if !resp.OK() {
			r.logger.WithFields(logrus.Fields{
				"parent_id": parentID,
				"res_code":  resp.ResCode,
			}).Warn("预缓存目录列表返回错误状态")
			break
		}

		for _, item := range resp.Items {
			if cached >= r.maxPrecache {
				break
			}
			if item.IsFolder || item.ID == excludeID {
				continue
			}
			if _, fresh := r.urls.Get(item.ID); fresh {
				continue
			}

			link, err := api.VideoDownloadURL(ctx, item.ID)
			if err != nil || !link.OK() {
				r.logger.WithField("file_id", item.ID).Debugf("预缓存失败: %s (%v)", item.Name, err)
				continue
			}
			r.urls.Put(item.ID, link.Normal.URL)
			cached++
			r.logger.WithField("file_id", item.ID).Debugf("预缓存下载链接: %s", item.Name)
		}

		if pageNum*listPageSize >= resp.RecordCount {
			break
		}
	}

	if cached > 0 {
		r.logger.WithFields(logrus.Fields{
			"action":    "precache_done",
			"parent_id": parentID,
			"count":     cached,
		}).Infof("预缓存了 %d 个文件的下载链接", cached)
	}
}
