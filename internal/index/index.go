package index

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/John-Robertt/fpvsession/internal/domain"
	"github.com/John-Robertt/fpvsession/internal/infra/cache"
)

// DefaultMaxAge 是索引缓存的默认有效期。
const DefaultMaxAge = 600 * time.Second

// SnapshotFile 是 .fpvsession/ 下的索引快照文件名。
const SnapshotFile = "index.json"

const memoKey = "sessions"

// Index 是带缓存的会话索引，可被多个 goroutine 并发使用。
type Index struct {
	Root string
	Log  *zap.Logger

	mu   sync.RWMutex
	memo *cache.Memo
}

func New(root string, maxAge time.Duration, log *zap.Logger) *Index {
	if log == nil {
		log = zap.NewNop()
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Index{Root: root, Log: log, memo: cache.NewMemo(maxAge)}
}

// Sessions 返回缓存的索引；缓存缺失或过期时重建（并发重建只执行一次）。
// 返回的切片是副本，调用方可以自由修改。
func (x *Index) Sessions() ([]domain.SessionRecord, error) {
	v, err := x.memo.Get(memoKey, func() (any, error) {
		start := time.Now()
		recs, err := Build(x.Root)
		if err != nil {
			return nil, err
		}
		x.Log.Info("索引已重建", zap.Int("sessions", len(recs)), zap.Duration("took", time.Since(start)))
		return recs, nil
	})
	if err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	recs := v.([]domain.SessionRecord)
	return append([]domain.SessionRecord(nil), recs...), nil
}

// Refresh 丢弃缓存并立即重建。
func (x *Index) Refresh() ([]domain.SessionRecord, error) {
	x.memo.Invalidate(memoKey)
	return x.Sessions()
}

// Tags 读取单个会话的标签。
func (x *Index) Tags(name, sub string) ([]string, error) {
	return LoadTags(x.Root, name, sub)
}

// SaveTags 写入标签并就地更新已缓存的记录（不触发重建）。
func (x *Index) SaveTags(name, sub string, tags []string) ([]string, error) {
	norm, err := SaveTags(x.Root, name, sub, tags)
	if err != nil {
		return nil, err
	}

	if v, ok := x.memo.Peek(memoKey); ok {
		x.mu.Lock()
		recs := v.([]domain.SessionRecord)
		for i := range recs {
			if recs[i].Name == name && recs[i].Sub == sub {
				recs[i].Tags = norm
				break
			}
		}
		x.mu.Unlock()
	}
	x.Log.Debug("标签已保存", zap.String("session", name+"/"+sub), zap.Strings("tags", norm))
	return norm, nil
}

// WriteSnapshot 把当前索引写入 <root>/.fpvsession/index.json。
func (x *Index) WriteSnapshot(st cache.Store) error {
	recs, err := x.Sessions()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	return st.Write(SnapshotFile, b)
}

func (x *Index) Close() error { return x.memo.Close() }
