package resolver

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pan189-link/pan189-link/internal/cache"
	"github.com/pan189-link/pan189-link/internal/cloud189"
)

// listPageSize 是目录分页大小，与 web 端保持一致。
const listPageSize = 100

// Options 汇总 Resolver 的全部依赖与缓存参数。
type Options struct {
	Sessions *cloud189.SessionHolder
	Logger   *logrus.Logger

	// PathTTL 是路径缓存有效期（目录结构变化少，小时级）。
	PathTTL time.Duration
	// URLTTL 是直链缓存有效期（上游链接自身会过期，分钟级）。
	URLTTL time.Duration
	// MaxPrecacheLinks 是单次预缓存最多获取的直链数。
	MaxPrecacheLinks int
}

// Resolver 把请求路径翻译成网盘文件 ID，再换取下载直链。两级缓存
// （路径缓存与直链缓存）由前台请求与后台预缓存共同读写，对并发安全。
type Resolver struct {
	sessions *cloud189.SessionHolder
	logger   *logrus.Logger

	paths *cache.Store[string, int64]
	urls  *cache.Store[int64, string]

	maxPrecache int

	// precacheBusy 是预缓存的单飞标志：同一时刻最多一个预热任务。
	precacheBusy atomic.Bool

	// dispatch 默认为 goroutine 派发，测试中可替换以同步观察。
	dispatch func(parentID, excludeID int64)
}

// New 构造 Resolver 并初始化两级缓存。
func New(opts Options) *Resolver {
	r := &Resolver{
		sessions:    opts.Sessions,
		logger:      opts.Logger,
		paths:       cache.NewStore[string, int64](opts.PathTTL),
		urls:        cache.NewStore[int64, string](opts.URLTTL),
		maxPrecache: opts.MaxPrecacheLinks,
	}
	r.dispatch = r.spawnPrecache
	return r
}

// ResolvePath 把以 / 分隔的路径解析为文件 ID。
//
// 解析从根哨兵 ID 逐段向下：每段先查累积子路径的缓存，未命中再分页
// 拉取当前目录列表。扫描目录页时顺带缓存页内所有条目的完整路径，
// 摊薄后续同目录请求的查找成本。
func (r *Resolver) ResolvePath(ctx context.Context, filePath string) (int64, error) {
	if !strings.HasPrefix(filePath, "/") {
		filePath = "/" + filePath
	}

	// 完整路径直接命中时无需任何上游调用，也不触发预缓存。
	if id, ok := r.paths.Get(filePath); ok {
		if left, hit := r.paths.Remaining(filePath); hit {
			r.logger.WithFields(logrus.Fields{
				"action":  "path_cache_hit",
				"path":    filePath,
				"file_id": id,
			}).Infof("使用缓存的文件ID，剩余有效期 %.1f 小时", left.Hours())
		}
		return id, nil
	}

	api, ok := r.sessions.Current()
	if !ok {
		return 0, ErrNotLoggedIn
	}

	parts := splitPath(filePath)
	if len(parts) == 0 {
		return cloud189.RootFolderID, nil
	}

	currentFolderID := cloud189.RootFolderID
	parentFolderID := cloud189.RootFolderID
	currentPath := ""

	for _, part := range parts {
		currentPath += "/" + part

		if id, ok := r.paths.Get(currentPath); ok {
			parentFolderID = currentFolderID
			currentFolderID = id
			continue
		}

		matchedID, err := r.findInDirectory(ctx, api, currentFolderID, currentPath, part)
		if err != nil {
			return 0, err
		}
		parentFolderID = currentFolderID
		currentFolderID = matchedID
	}

	r.dispatch(parentFolderID, currentFolderID)

	return currentFolderID, nil
}

// findInDirectory 在 folderID 目录中分页查找名为 name 的条目，
// currentPath 是包含 name 的累积子路径。页内逐项缓存完整路径，
// 精确、区分大小写匹配，页内先出现者生效。
func (r *Resolver) findInDirectory(ctx context.Context, api cloud189.API, folderID int64, currentPath, name string) (int64, error) {
	dirPath := parentDir(currentPath)

	for pageNum := 1; ; pageNum++ {
		resp, err := api.ListFiles(ctx, folderID, pageNum, listPageSize)
		if err != nil {
			return 0, &UpstreamError{Op: "获取目录列表", Message: err.Error()}
		}
		if !resp.OK() {
			return 0, &UpstreamError{Op: "获取目录列表", ResCode: resp.ResCode}
		}

		var matchedID int64
		matched := false
		for _, item := range resp.Items {
			itemPath := dirPath + "/" + item.Name
			if _, ok := r.paths.Get(itemPath); !ok {
				r.paths.Put(itemPath, item.ID)
			}
			if !matched && item.Name == name {
				matched = true
				matchedID = item.ID
			}
		}
		if matched {
			r.paths.Put(currentPath, matchedID)
			return matchedID, nil
		}

		if pageNum*listPageSize >= resp.RecordCount {
			break
		}
	}

	return 0, &NotFoundError{SubPath: currentPath}
}

// ClearCaches 清空两级缓存，登录、登出与管理端清理都会调用。
func (r *Resolver) ClearCaches() {
	r.paths.Clear()
	r.urls.Clear()
}

// CacheSizes 返回路径缓存与直链缓存的条目数，供状态接口展示。
func (r *Resolver) CacheSizes() (pathEntries, urlEntries int) {
	return r.paths.Len(), r.urls.Len()
}

// splitPath 去掉空段后返回路径的各层名称。
func splitPath(p string) []string {
	raw := strings.Split(p, "/")
	parts := make([]string, 0, len(raw))
	for _, seg := range raw {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}

// parentDir 返回累积子路径的父目录路径，根目录下为空串。
func parentDir(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return ""
	}
	return p[:idx]
}
