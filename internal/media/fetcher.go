package media

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"Canvas-Auto-Quiz-Backend/internal/model"
	"Canvas-Auto-Quiz-Backend/internal/session"

	"github.com/sourcegraph/conc/pool"
)

const DefaultWorkers = 20

// Result 单个下载任务的结果。失败不致命，但必须可观察，所以逐条带回错误。
type Result struct {
	Ref *model.MediaRef
	Err error
}

type Fetcher struct {
	sess       *session.Session
	workers    int
	httpClient *http.Client
}

func NewFetcher(sess *session.Session, workers, timeoutSec int) *Fetcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Fetcher{
		sess:    sess,
		workers: workers,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
	}
}

// FetchAll 以固定宽度的工作池下载全部媒体。refs 已按来源URL去重，
// 每个 MediaRef 在下载期间只属于自己的任务，成功时置 Fetched 并落盘。
// 单个资源失败只记录、不上抛，后续AI提示词按 Fetched 过滤即可。
func (f *Fetcher) FetchAll(refs map[string]*model.MediaRef) []Result {
	if len(refs) == 0 {
		return nil
	}

	fmt.Printf("开始下载 %d 个媒体文件 (并发 %d)...\n", len(refs), f.workers)

	var (
		mu      sync.Mutex
		results []Result
	)
	p := pool.New().WithMaxGoroutines(f.workers)
	for _, ref := range refs {
		p.Go(func() {
			err := f.fetchOne(ref)
			if err != nil {
				log.Printf("[Media] 警告: 下载 '%s' 失败 (跳过): %v", ref.SourceURL, err)
			}
			mu.Lock()
			results = append(results, Result{Ref: ref, Err: err})
			mu.Unlock()
		})
	}
	p.Wait()

	okCount := 0
	for _, r := range results {
		if r.Err == nil {
			okCount++
		}
	}
	fmt.Printf("媒体下载完成: 成功 %d, 失败 %d。\n", okCount, len(results)-okCount)
	return results
}

// fetchOne 只读取会话Cookie，不做 Refresh：下载是唯一的并发区，
// 会话的写入必须留给主流程串行完成。
func (f *Fetcher) fetchOne(ref *model.MediaRef) error {
	req, err := http.NewRequest("GET", ref.SourceURL, nil)
	if err != nil {
		return fmt.Errorf("构造下载请求失败: %w", err)
	}
	f.sess.Apply(req)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("下载请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("下载返回错误状态: %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(ref.LocalPath), 0755); err != nil {
		return fmt.Errorf("创建媒体目录失败: %w", err)
	}
	out, err := os.Create(ref.LocalPath)
	if err != nil {
		return fmt.Errorf("创建媒体文件失败: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("写入媒体文件失败: %w", err)
	}

	ref.Fetched = true
	return nil
}
