// Package flightlog 为会话目录生成飞行日志（<会话名>.txt 与 <会话名>.json）。
package flightlog

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/John-Robertt/fpvsession/internal/domain"
	"github.com/John-Robertt/fpvsession/internal/infra/fsx"
)

// DefaultLargeFileBytes：不短于该尺寸的视频视为单次录制被切分的大文件，不计入起飞次数。
const DefaultLargeFileBytes int64 = 3 << 30

// Entry 是日志中的单个文件条目。
type Entry struct {
	Type         string  `json:"type"`
	OriginalPath string  `json:"original_path"`
	NewName      string  `json:"new_name"`
	Date         string  `json:"date"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	DurationMin  float64 `json:"duration_min"`
}

// Summary 是会话的飞行摘要。Location/Pilot/CoPilot 留给用户手填。
type Summary struct {
	SessionDate        string  `json:"session_date"`
	StartTime          string  `json:"start_time"`
	EndTime            string  `json:"end_time"`
	Location           string  `json:"location"`
	Pilot              string  `json:"pilot"`
	CoPilot            string  `json:"co_pilot"`
	FlightCount        int     `json:"flight_count"`
	TotalFlightTimeMin float64 `json:"total_flight_time_min"`
	Files              []Entry `json:"files"`
}

// DurationFunc 返回视频时长（秒）；未知时为 0。
type DurationFunc func(ctx context.Context, path string) float64

type Options struct {
	LargeFileBytes int64
	Duration       DurationFunc
}

// Build 读取会话目录并计算摘要（只读）。
//
// 主分类：FPV_Camera 与 Goggel_Vison 中“最常见扩展名的文件数”更多的一方，持平取 FPV_Camera。
// 起飞次数 = 主分类文件数 - 大文件数；总时长 = 各主分类文件时长（分钟，保留两位）之和。
func Build(ctx context.Context, sessionDir string, opts Options) (Summary, error) {
	folder := filepath.Base(sessionDir)
	date, clock, ok := splitFolder(folder)
	if !ok {
		return Summary{}, fmt.Errorf("无法从会话目录名解析开始时间：%q", folder)
	}
	start, err := time.ParseInLocation(domain.StampLayout, date+"_"+clock, time.Local)
	if err != nil {
		return Summary{}, fmt.Errorf("无法从会话目录名解析开始时间：%q", folder)
	}
	if opts.LargeFileBytes <= 0 {
		opts.LargeFileBytes = DefaultLargeFileBytes
	}

	primary, files, err := primaryFiles(sessionDir)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{SessionDate: date, StartTime: clock, Files: []Entry{}}
	large := 0
	total := 0.0
	for _, f := range files {
		if f.size >= opts.LargeFileBytes {
			large++
		}
		e := entry(ctx, primary, f, opts.Duration)
		total += e.DurationMin
		s.Files = append(s.Files, e)
	}
	s.FlightCount = len(files) - large
	s.TotalFlightTimeMin = round2(total)
	s.EndTime = start.Add(time.Duration(total * float64(time.Minute))).Format(domain.ClockLayout)

	for _, c := range []domain.Category{domain.CategoryIMG, domain.CategoryBlackbox} {
		fs, err := listFiles(filepath.Join(sessionDir, string(c)))
		if err != nil {
			return Summary{}, err
		}
		for _, f := range fs {
			s.Files = append(s.Files, entry(ctx, c, f, opts.Duration))
		}
	}
	return s, nil
}

type fileInfo struct {
	path  string
	name  string
	size  int64
	mtime time.Time
}

func listFiles(dir string) ([]fileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, fileInfo{
			path:  filepath.Join(dir, e.Name()),
			name:  e.Name(),
			size:  info.Size(),
			mtime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func primaryFiles(sessionDir string) (domain.Category, []fileInfo, error) {
	var (
		best      domain.Category
		bestFiles []fileInfo
	)
	for _, c := range []domain.Category{domain.CategoryFPVCamera, domain.CategoryGoggle} {
		fs, err := listFiles(filepath.Join(sessionDir, string(c)))
		if err != nil {
			return "", nil, err
		}
		byExt := map[string][]fileInfo{}
		for _, f := range fs {
			ext := strings.ToLower(filepath.Ext(f.name))
			byExt[ext] = append(byExt[ext], f)
		}
		exts := make([]string, 0, len(byExt))
		for ext := range byExt {
			exts = append(exts, ext)
		}
		sort.Strings(exts)
		var common []fileInfo
		for _, ext := range exts {
			if len(byExt[ext]) > len(common) {
				common = byExt[ext]
			}
		}
		if len(common) > len(bestFiles) {
			best, bestFiles = c, common
		}
	}
	return best, bestFiles, nil
}

func entry(ctx context.Context, c domain.Category, f fileInfo, dur DurationFunc) Entry {
	secs := 0.0
	if dur != nil && domain.IsVideoExt(strings.ToLower(filepath.Ext(f.name))) {
		secs = dur(ctx, f.path)
	}
	start := f.mtime.In(time.Local)
	end := start.Add(time.Duration(secs * float64(time.Second)))
	return Entry{
		Type:         strings.ToLower(string(c)),
		OriginalPath: f.path,
		NewName:      f.name,
		Date:         start.Format("02.Jan.2006"),
		StartTime:    start.Format(domain.ClockLayout),
		EndTime:      end.Format(domain.ClockLayout),
		DurationMin:  round2(secs / 60),
	}
}

// splitFolder 把 2024.05.04_14.00.00-15.00.00_FPVSession 拆成日期与开始时刻。
func splitFolder(folder string) (date, clock string, ok bool) {
	parts := strings.Split(folder, "_")
	if len(parts) < 2 {
		return "", "", false
	}
	clock, _, _ = strings.Cut(parts[1], "-")
	return parts[0], clock, true
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Text 渲染纯文本飞行日志模板。
func Text(s Summary) []byte {
	var b strings.Builder
	b.WriteString("# Flight Log\n")
	b.WriteString("--------------------------------------------\n")
	b.WriteString("# Date: " + s.SessionDate + "\n")
	b.WriteString("# Location:\n")
	b.WriteString("# Start Time: " + s.StartTime + "\n")
	b.WriteString("# End Time: " + s.EndTime + "\n")
	b.WriteString("# Pilot:\n")
	b.WriteString("# Co-pilot:\n")
	b.WriteString("--------------------------------------------\n")
	b.WriteString("# Flight starts: " + strconv.Itoa(s.FlightCount) + "\n")
	b.WriteString("# Total flight time: " + decimal(s.TotalFlightTimeMin) + " min\n")
	b.WriteString("-------------------------------------------\n")
	b.WriteString("# Short report:\n#\n#\n")
	b.WriteString("# Observations:\n#\n#\n")
	return []byte(b.String())
}

// decimal 输出最短表示，但整数也保留一位小数（12 -> "12.0"）。
func decimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// JSON 以 4 空格缩进编码 {"session": …}。
func JSON(s Summary) ([]byte, error) {
	if s.Files == nil {
		s.Files = []Entry{}
	}
	return json.MarshalIndent(struct {
		Session Summary `json:"session"`
	}{s}, "", "    ")
}

// Write 原子地写入 <dir>/<folder>.txt 与 <dir>/<folder>.json（覆盖旧文件）。
func Write(dir string, s Summary) error {
	folder := filepath.Base(dir)
	if err := fsx.WriteFileAtomicReplace(dir, folder+".txt", Text(s)); err != nil {
		return err
	}
	b, err := JSON(s)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(dir, folder+".json", b)
}
