package resolver

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pan189-link/pan189-link/internal/cloud189"
)

// fakeAPI 以内存目录树模拟网盘接口，并记录调用次数与顺序。
type fakeAPI struct {
	mu sync.Mutex

	dirs        map[int64][]cloud189.FileItem
	listResCode int
	listErr     error
	listCalls   int
	listGate    chan struct{} // 非 nil 时 ListFiles 在此阻塞，用于并发测试

	videoURLs  map[int64]string
	videoErr   error
	portalURLs map[int64]string
	portalErr  error
	legacyURLs map[int64]string
	legacyErr  error

	callOrder []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		dirs:       map[int64][]cloud189.FileItem{},
		videoURLs:  map[int64]string{},
		portalURLs: map[int64]string{},
		legacyURLs: map[int64]string{},
	}
}

func (f *fakeAPI) ListFiles(_ context.Context, folderID int64, pageNum, pageSize int) (*cloud189.ListResponse, error) {
	f.mu.Lock()
	f.listCalls++
	f.callOrder = append(f.callOrder, "list")
	gate := f.listGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listResCode != 0 {
		return &cloud189.ListResponse{ResCode: f.listResCode}, nil
	}

	items := f.dirs[folderID]
	start := (pageNum - 1) * pageSize
	end := start + pageSize
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}
	return &cloud189.ListResponse{
		Items:       items[start:end],
		RecordCount: len(items),
	}, nil
}

func (f *fakeAPI) VideoDownloadURL(_ context.Context, fileID int64) (*cloud189.LinkResponse, error) {
	f.mu.Lock()
	f.callOrder = append(f.callOrder, "video")
	f.mu.Unlock()
	if f.videoErr != nil {
		return nil, f.videoErr
	}
	resp := &cloud189.LinkResponse{}
	if u, ok := f.videoURLs[fileID]; ok {
		resp.Normal.URL = u
	} else {
		resp.ResCode = 1
	}
	return resp, nil
}

func (f *fakeAPI) VideoPortalDownloadURL(_ context.Context, fileID int64) (*cloud189.LinkResponse, error) {
	f.mu.Lock()
	f.callOrder = append(f.callOrder, "portal")
	f.mu.Unlock()
	if f.portalErr != nil {
		return nil, f.portalErr
	}
	resp := &cloud189.LinkResponse{}
	if u, ok := f.portalURLs[fileID]; ok {
		resp.Normal.URL = u
	} else {
		resp.ResCode = 1
	}
	return resp, nil
}

func (f *fakeAPI) FileDownloadInfo(_ context.Context, fileID int64) (*cloud189.FileInfoResponse, error) {
	f.mu.Lock()
	f.callOrder = append(f.callOrder, "legacy")
	f.mu.Unlock()
	if f.legacyErr != nil {
		return nil, f.legacyErr
	}
	resp := &cloud189.FileInfoResponse{}
	if u, ok := f.legacyURLs[fileID]; ok {
		resp.FileDownloadURL = u
	} else {
		resp.ResCode = 1
	}
	return resp, nil
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeAPI) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.callOrder))
	copy(out, f.callOrder)
	return out
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestResolver 构造挂好假上游的 Resolver，预缓存派发默认禁用，
// 避免后台任务干扰调用计数。
func newTestResolver(t *testing.T, api *fakeAPI) *Resolver {
	t.Helper()
	holder := cloud189.NewSessionHolder()
	if api != nil {
		holder.Swap(api)
	}
	r := New(Options{
		Sessions:         holder,
		Logger:           testLogger(),
		PathTTL:          12 * time.Hour,
		URLTTL:           720 * time.Minute,
		MaxPrecacheLinks: 100,
	})
	r.dispatch = func(int64, int64) {}
	return r
}

func file(id int64, name string) cloud189.FileItem {
	return cloud189.FileItem{ID: id, Name: name}
}

func folder(id int64, name string) cloud189.FileItem {
	return cloud189.FileItem{ID: id, Name: name, IsFolder: true}
}

func TestResolvePathWalksTreeAndCaches(t *testing.T) {
	api := newFakeAPI()
	api.dirs[cloud189.RootFolderID] = []cloud189.FileItem{folder(10, "movies")}
	api.dirs[10] = []cloud189.FileItem{file(55, "a.mkv"), file(56, "b.mkv")}
	r := newTestResolver(t, api)

	id, err := r.ResolvePath(context.Background(), "/movies/a.mkv")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if id != 55 {
		t.Fatalf("unexpected id: %d", id)
	}
	if api.calls() != 2 {
		t.Fatalf("expected 2 listing calls, got %d", api.calls())
	}

	// 第二次解析同一路径必须走缓存，不触发上游调用。
	id, err = r.ResolvePath(context.Background(), "/movies/a.mkv")
	if err != nil || id != 55 {
		t.Fatalf("cached resolve failed: id=%d err=%v", id, err)
	}
	if api.calls() != 2 {
		t.Fatalf("cache hit should not hit upstream, calls=%d", api.calls())
	}

	// 兄弟文件在首次扫描时已被顺带缓存，同样零上游调用。
	id, err = r.ResolvePath(context.Background(), "/movies/b.mkv")
	if err != nil || id != 56 {
		t.Fatalf("sibling resolve failed: id=%d err=%v", id, err)
	}
	if api.calls() != 2 {
		t.Fatalf("sibling should resolve from cache, calls=%d", api.calls())
	}
}

func TestResolvePathNormalizesLeadingSlash(t *testing.T) {
	api := newFakeAPI()
	api.dirs[cloud189.RootFolderID] = []cloud189.FileItem{file(7, "a.txt")}
	r := newTestResolver(t, api)

	id, err := r.ResolvePath(context.Background(), "a.txt")
	if err != nil || id != 7 {
		t.Fatalf("resolve without leading slash failed: id=%d err=%v", id, err)
	}
}

func TestResolvePathRoot(t *testing.T) {
	api := newFakeAPI()
	r := newTestResolver(t, api)

	id, err := r.ResolvePath(context.Background(), "/")
	if err != nil {
		t.Fatalf("root resolve error: %v", err)
	}
	if id != cloud189.RootFolderID {
		t.Fatalf("expected root sentinel, got %d", id)
	}
	if api.calls() != 0 {
		t.Fatalf("root must not hit upstream, calls=%d", api.calls())
	}
}

func TestResolvePathNotLoggedIn(t *testing.T) {
	r := newTestResolver(t, nil)
	if _, err := r.ResolvePath(context.Background(), "/movies/a.mkv"); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
}

func TestResolvePathNotFound(t *testing.T) {
	api := newFakeAPI()
	api.dirs[cloud189.RootFolderID] = []cloud189.FileItem{folder(10, "movies")}
	api.dirs[10] = []cloud189.FileItem{file(55, "a.mkv")}
	r := newTestResolver(t, api)

	_, err := r.ResolvePath(context.Background(), "/movies/missing.mkv")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.SubPath != "/movies/missing.mkv" {
		t.Fatalf("unexpected sub path: %s", notFound.SubPath)
	}
}

func TestResolvePathCaseSensitiveMatch(t *testing.T) {
	api := newFakeAPI()
	api.dirs[cloud189.RootFolderID] = []cloud189.FileItem{file(5, "Movie.MKV")}
	r := newTestResolver(t, api)

	if _, err := r.ResolvePath(context.Background(), "/movie.mkv"); err == nil {
		t.Fatalf("expected case-sensitive mismatch to fail")
	}
}

func TestResolvePathUpstreamError(t *testing.T) {
	api := newFakeAPI()
	api.listResCode = 500
	r := newTestResolver(t, api)

	_, err := r.ResolvePath(context.Background(), "/movies/a.mkv")
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.ResCode != 500 {
		t.Fatalf("unexpected res code: %d", upstream.ResCode)
	}
}

func TestResolvePathTransportError(t *testing.T) {
	api := newFakeAPI()
	api.listErr = errors.New("connection reset")
	r := newTestResolver(t, api)

	_, err := r.ResolvePath(context.Background(), "/a")
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError for transport failure, got %v", err)
	}
}

func TestResolvePathPagination(t *testing.T) {
	// 250 个条目，目标位于第三页：恰好 3 次列表调用。
	items := make([]cloud189.FileItem, 0, 250)
	for i := 0; i < 249; i++ {
		items = append(items, file(int64(1000+i), "filler"+string(rune('a'+i%26))))
	}
	items = append(items, file(9999, "target.bin"))

	api := newFakeAPI()
	api.dirs[cloud189.RootFolderID] = items
	r := newTestResolver(t, api)

	id, err := r.ResolvePath(context.Background(), "/target.bin")
	if err != nil || id != 9999 {
		t.Fatalf("resolve failed: id=%d err=%v", id, err)
	}
	if api.calls() != 3 {
		t.Fatalf("expected 3 listing calls, got %d", api.calls())
	}
}

func TestResolvePathPaginationExhausted(t *testing.T) {
	items := make([]cloud189.FileItem, 250)
	for i := range items {
		items[i] = file(int64(2000+i), "other")
	}

	api := newFakeAPI()
	api.dirs[cloud189.RootFolderID] = items
	r := newTestResolver(t, api)

	_, err := r.ResolvePath(context.Background(), "/absent.bin")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if api.calls() != 3 {
		t.Fatalf("expected pagination to stop at 3 calls, got %d", api.calls())
	}
}

func TestResolvePathCacheExpiry(t *testing.T) {
	api := newFakeAPI()
	api.dirs[cloud189.RootFolderID] = []cloud189.FileItem{file(7, "a.txt")}
	r := newTestResolver(t, api)

	current := time.Now()
	r.paths.SetClock(func() time.Time { return current })

	if _, err := r.ResolvePath(context.Background(), "/a.txt"); err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if api.calls() != 1 {
		t.Fatalf("expected 1 call, got %d", api.calls())
	}

	// 超过路径缓存 TTL 后必须重新拉取目录。
	current = current.Add(12*time.Hour + time.Second)
	if _, err := r.ResolvePath(context.Background(), "/a.txt"); err != nil {
		t.Fatalf("resolve after expiry error: %v", err)
	}
	if api.calls() != 2 {
		t.Fatalf("expired entry should re-trigger listing, calls=%d", api.calls())
	}
}

func TestResolvePathDispatchesPrecache(t *testing.T) {
	api := newFakeAPI()
	api.dirs[cloud189.RootFolderID] = []cloud189.FileItem{folder(10, "movies")}
	api.dirs[10] = []cloud189.FileItem{file(55, "a.mkv")}
	r := newTestResolver(t, api)

	var gotParent, gotExclude int64
	dispatched := 0
	r.dispatch = func(parentID, excludeID int64) {
		dispatched++
		gotParent, gotExclude = parentID, excludeID
	}

	if _, err := r.ResolvePath(context.Background(), "/movies/a.mkv"); err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if dispatched != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", dispatched)
	}
	if gotParent != 10 || gotExclude != 55 {
		t.Fatalf("unexpected dispatch args: parent=%d exclude=%d", gotParent, gotExclude)
	}

	// 完整路径缓存命中时不再派发预缓存。
	if _, err := r.ResolvePath(context.Background(), "/movies/a.mkv"); err != nil {
		t.Fatalf("cached resolve error: %v", err)
	}
	if dispatched != 1 {
		t.Fatalf("cache hit must not dispatch precache, got %d", dispatched)
	}
}

func TestClearCaches(t *testing.T) {
	api := newFakeAPI()
	api.dirs[cloud189.RootFolderID] = []cloud189.FileItem{file(7, "a.txt")}
	r := newTestResolver(t, api)

	if _, err := r.ResolvePath(context.Background(), "/a.txt"); err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	pathEntries, _ := r.CacheSizes()
	if pathEntries == 0 {
		t.Fatalf("expected path cache entries after resolve")
	}

	r.ClearCaches()
	pathEntries, urlEntries := r.CacheSizes()
	if pathEntries != 0 || urlEntries != 0 {
		t.Fatalf("expected empty caches after clear: %d/%d", pathEntries, urlEntries)
	}
}
