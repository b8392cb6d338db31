// Package index 把输出目录中的会话整理成只读索引，供外部画廊使用。
package index

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/John-Robertt/fpvsession/internal/domain"
)

// ThumbSuffix 是缩略图相对视频 basename 的后缀。
const ThumbSuffix = "_thumb.jpg"

// Build 遍历 <root>/<日目录>/<会话目录>/ 并生成会话记录，按 (日期, 开始时间) 降序。
// root 不存在时返回空列表。
func Build(root string) ([]domain.SessionRecord, error) {
	days, err := readDirs(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.SessionRecord{}, nil
		}
		return nil, err
	}

	out := make([]domain.SessionRecord, 0, 32)
	for _, day := range days {
		subs, err := readDirs(filepath.Join(root, day))
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			rec, err := buildRecord(root, day, sub)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := out[i].Date+" "+out[i].Times.Start, out[j].Date+" "+out[j].Times.Start
		return ki > kj
	})
	return out, nil
}

// readDirs 返回 dir 下按名字排序的子目录（跳过 '.' 开头的目录）。
func readDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func buildRecord(root, day, sub string) (domain.SessionRecord, error) {
	rec := domain.SessionRecord{
		Name:       day,
		Sub:        sub,
		Date:       sessionDate(day, sub),
		Times:      sessionTimes(day, sub),
		Videos:     []string{},
		Images:     []string{},
		Logs:       []string{},
		Blackbox:   []string{},
		Meta:       []string{},
		Goggles:    []string{},
		Thumbnails: []domain.Thumbnail{},
		Tags:       []string{},
	}

	subPath := filepath.Join(root, day, sub)
	if tags, err := LoadTags(root, day, sub); err == nil {
		rec.Tags = tags
	}

	imgDir := filepath.Join(subPath, string(domain.CategoryIMG))
	var minSize int64 = -1
	err := filepath.WalkDir(subPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if strings.HasPrefix(d.Name(), ".") && path != subPath {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := relSlash(root, path)
		if err != nil {
			return err
		}
		name := d.Name()
		switch kindOf(path, name) {
		case fileVideo:
			rec.Videos = append(rec.Videos, rel)
			base := strings.TrimSuffix(name, filepath.Ext(name))
			thumb, err := relSlash(root, filepath.Join(imgDir, base+ThumbSuffix))
			if err != nil {
				return err
			}
			rec.Thumbnails = append(rec.Thumbnails, domain.Thumbnail{Video: rel, Thumb: thumb})
			if info, err := d.Info(); err == nil && (minSize < 0 || info.Size() < minSize) {
				minSize = info.Size()
				rec.PreviewVideo = rel
			}
		case fileImage:
			rec.Images = append(rec.Images, rel)
		case fileBlackbox:
			rec.Blackbox = append(rec.Blackbox, rel)
		case fileLog:
			rec.Logs = append(rec.Logs, rel)
		case fileMeta:
			rec.Meta = append(rec.Meta, rel)
		case fileGoggle:
			rec.Goggles = append(rec.Goggles, rel)
		}
		return nil
	})
	if err != nil {
		return domain.SessionRecord{}, err
	}

	if rec.PreviewVideo != "" {
		for _, th := range rec.Thumbnails {
			if th.Video == rec.PreviewVideo {
				rec.PreviewThumb = th.Thumb
				break
			}
		}
		if rec.PreviewThumb == "" && len(rec.Thumbnails) > 0 {
			rec.PreviewThumb = rec.Thumbnails[0].Thumb
		}
	}
	return rec, nil
}

type fileKind int

const (
	fileOther fileKind = iota
	fileVideo
	fileImage
	fileBlackbox
	fileLog
	fileMeta
	fileGoggle
)

func kindOf(path, name string) fileKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".mov":
		return fileVideo
	case ".png", ".jpg", ".jpeg":
		return fileImage
	case ".bfl":
		return fileBlackbox
	case ".txt":
		return fileLog
	case ".json":
		return fileMeta
	}
	if strings.Contains(strings.ToLower(name), "goggel") {
		return fileGoggle
	}
	// 扩展名未知：按内容嗅探（例如无扩展名的录像）。
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fileOther
	}
	switch {
	case strings.HasPrefix(mt.String(), "video/"):
		return fileVideo
	case strings.HasPrefix(mt.String(), "image/"):
		return fileImage
	default:
		return fileOther
	}
}

func relSlash(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// sessionDate 取日目录（或会话目录）名开头的 YYYY.MM.DD，输出 YYYY-MM-DD；都不可解析时为空。
func sessionDate(day, sub string) string {
	for _, name := range []string{day, sub} {
		if t, ok := parseDatePrefix(name); ok {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

func parseDatePrefix(name string) (time.Time, bool) {
	prefix, _, _ := strings.Cut(name, "_")
	parts := strings.Split(prefix, ".")
	if len(parts) < 3 {
		return time.Time{}, false
	}
	y, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	d, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.Local)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

var weekdays = [7]string{"Mo", "Di", "Mi", "Do", "Fr", "Sa", "So"}

// sessionTimes 解析 <日期>_<HH.MM.SS>-<HH.MM.SS>_FPVSession。
// 缺失的时刻按 00:00:00；end 早于 start 时夹到 start。日期不可解析时返回零值。
func sessionTimes(day, sub string) domain.SessionTimes {
	date, ok := parseDatePrefix(day)
	if !ok {
		date, ok = parseDatePrefix(sub)
	}
	if !ok {
		return domain.SessionTimes{}
	}

	_, rest, _ := strings.Cut(sub, "_")
	times, _, _ := strings.Cut(rest, "_")
	startStr, endStr, _ := strings.Cut(times, "-")

	sh, sm, ss, ok1 := parseClock(startStr)
	eh, em, es, ok2 := parseClock(endStr)
	if !ok1 || !ok2 {
		return domain.SessionTimes{}
	}

	y, mo, d := date.Date()
	start := time.Date(y, mo, d, sh, sm, ss, 0, time.Local)
	end := time.Date(y, mo, d, eh, em, es, 0, time.Local)
	if end.Before(start) {
		end = start
	}

	const iso = "2006-01-02 15:04:05"
	return domain.SessionTimes{
		Start:       start.Format(iso),
		End:         end.Format(iso),
		DurationMin: int(end.Sub(start) / time.Minute),
		Weekday:     weekdays[(int(start.Weekday())+6)%7],
		HumanDate:   start.Format("02.01.2006"),
		TimeRange:   start.Format("15:04") + "–" + end.Format("15:04"),
	}
}

// parseClock 解析 HH.MM.SS：无法解析时按 0 处理；超出范围时 ok=false。
func parseClock(s string) (h, m, sec int, ok bool) {
	parts := strings.Split(s, ".")
	if len(parts) < 3 {
		return 0, 0, 0, true
	}
	vals := [3]int{}
	for i := 0; i < 3; i++ {
		v, err := strconv.Atoi(parts[i])
		if err != nil {
			return 0, 0, 0, true
		}
		vals[i] = v
	}
	h, m, sec = vals[0], vals[1], vals[2]
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, 0, 0, false
	}
	return h, m, sec, true
}

// ByDate 按日期分组，并返回出现过的月份（YYYY-MM，升序）。无日期的记录被忽略。
func ByDate(recs []domain.SessionRecord) (map[string][]domain.SessionRecord, []string) {
	byDate := make(map[string][]domain.SessionRecord)
	seen := make(map[string]struct{})
	months := make([]string, 0, 12)
	for _, r := range recs {
		if r.Date == "" {
			continue
		}
		byDate[r.Date] = append(byDate[r.Date], r)
		m := r.Date[:7]
		if _, ok := seen[m]; !ok {
			seen[m] = struct{}{}
			months = append(months, m)
		}
	}
	sort.Strings(months)
	return byDate, months
}
