package app

import (
	"errors"
	"sort"
	"time"

	"github.com/John-Robertt/fpvsession/internal/domain"
	"github.com/John-Robertt/fpvsession/internal/stamp"
)

// DefaultMaxGap 是同一会话内相邻文件允许的最大时间间隔。
const DefaultMaxGap = 70 * time.Minute

// GroupSessions 按文件名开头的时间戳把文件切分为会话。
//
// - 文件按 (时间戳, RelPath) 稳定排序
// - 与上一个文件的间隔 <= maxGap 时并入当前会话，否则开启新会话
// - 文件名没有时间戳的文件原样放入 ungrouped（按输入顺序）
func GroupSessions(files []domain.FileRecord, maxGap time.Duration) (buckets []domain.SessionBucket, ungrouped []domain.FileRecord, err error) {
	if maxGap <= 0 {
		maxGap = DefaultMaxGap
	}

	stamped := make([]domain.FileRecord, 0, len(files))
	ungrouped = make([]domain.FileRecord, 0, 16)
	for _, f := range files {
		t, e := stamp.Extract(f.Name)
		if e != nil {
			var ue *stamp.UnmatchedError
			if errors.As(e, &ue) {
				ungrouped = append(ungrouped, f)
				continue
			}
			return nil, nil, e
		}
		f.Timestamp = t
		stamped = append(stamped, f)
	}

	sort.SliceStable(stamped, func(i, j int) bool {
		if !stamped[i].Timestamp.Equal(stamped[j].Timestamp) {
			return stamped[i].Timestamp.Before(stamped[j].Timestamp)
		}
		return stamped[i].RelPath < stamped[j].RelPath
	})

	buckets = make([]domain.SessionBucket, 0, 8)
	for _, f := range stamped {
		n := len(buckets)
		if n > 0 && f.Timestamp.Sub(buckets[n-1].End) <= maxGap {
			buckets[n-1].Members = append(buckets[n-1].Members, f)
			buckets[n-1].End = f.Timestamp
			continue
		}
		buckets = append(buckets, domain.SessionBucket{
			Start:   f.Timestamp,
			End:     f.Timestamp,
			Members: []domain.FileRecord{f},
		})
	}
	return buckets, ungrouped, nil
}
