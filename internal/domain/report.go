package domain

import (
	"sort"
	"time"

	"github.com/goccy/go-json"
)

// 单文件状态。dry-run 下真实动作统一以 planned / planned_delete 表示。
const (
	FileStatusRenamed       = "renamed"
	FileStatusDeleted       = "deleted"
	FileStatusCopied        = "copied"
	FileStatusExists        = "exists"
	FileStatusPlanned       = "planned"
	FileStatusPlannedDelete = "planned_delete"
	FileStatusSkipped       = "skipped"
	FileStatusConflict      = "conflict"
	FileStatusFailed        = "failed"
)

// 会话状态。
const (
	SessionStatusCreated = "created"
	SessionStatusReused  = "reused"
	SessionStatusPlanned = "planned"
	SessionStatusFailed  = "failed"
)

const (
	ErrCodeNameConflict      = "name_conflict"
	ErrCodeTargetConflict    = "target_conflict"
	ErrCodeIOFailed          = "io_failed"
	ErrCodeCopyFailed        = "copy_failed"
	ErrCodeRenameFailed      = "rename_failed"
	ErrCodeCrossDevice       = "cross_device"
	ErrCodeProbeFailed       = "probe_failed"
	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeConfigMissingPath = "config_missing_path"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Input  string `json:"input"`
	Output string `json:"output"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Scanned 是运行开始时输入目录中的文件数。
	Scanned int `json:"scanned"`

	Summary    ReportSummary   `json:"summary"`
	Renames    []FileResult    `json:"renames"`
	Duplicates []FileResult    `json:"duplicates"`
	Sessions   []SessionResult `json:"sessions"`
	Ungrouped  []string        `json:"ungrouped"`
	Errors     []ErrorItem     `json:"errors"`
}

type ReportSummary struct {
	Processed  int `json:"processed"`
	Renamed    int `json:"renamed"`
	Deleted    int `json:"deleted"`
	Skipped    int `json:"skipped"`
	Conflicted int `json:"conflicted"`
	Failed     int `json:"failed"`
	Sessions   int `json:"sessions"`
}

type FileResult struct {
	Src       string `json:"src"`
	Dst       string `json:"dst"`
	Rule      string `json:"rule,omitempty"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

type SessionResult struct {
	Folder string `json:"folder"`
	Day    string `json:"day"`
	Start  string `json:"start"`
	End    string `json:"end"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`

	FlightCount        int          `json:"flight_count"`
	TotalFlightTimeMin float64      `json:"total_flight_time_min"`
	Files              []FileResult `json:"files"`
}

// ErrorItem 是与单个文件无关的运行级错误（配置、扫描等）。
type ErrorItem struct {
	Stage     string `json:"stage"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) 各列表稳定排序（文件按 src，会话按目录名）
// 3) summary 由条目计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Renames == nil {
		r.Renames = []FileResult{}
	}
	if r.Duplicates == nil {
		r.Duplicates = []FileResult{}
	}
	if r.Sessions == nil {
		r.Sessions = []SessionResult{}
	}
	if r.Ungrouped == nil {
		r.Ungrouped = []string{}
	}
	if r.Errors == nil {
		r.Errors = []ErrorItem{}
	}

	sortFiles(r.Renames)
	sortFiles(r.Duplicates)
	sort.Strings(r.Ungrouped)
	sort.SliceStable(r.Sessions, func(i, j int) bool {
		return r.Sessions[i].Day+"/"+r.Sessions[i].Folder < r.Sessions[j].Day+"/"+r.Sessions[j].Folder
	})

	var s ReportSummary
	for _, f := range r.Renames {
		switch f.Status {
		case FileStatusRenamed, FileStatusPlanned:
			s.Renamed++
		default:
			countCommon(&s, f.Status)
		}
	}
	for _, f := range r.Duplicates {
		countCommon(&s, f.Status)
	}
	for _, ss := range r.Sessions {
		if ss.Status == SessionStatusFailed {
			s.Failed++
		} else {
			s.Sessions++
		}
		for _, f := range ss.Files {
			switch f.Status {
			case FileStatusCopied, FileStatusPlanned, FileStatusExists:
				s.Processed++
			default:
				countCommon(&s, f.Status)
			}
		}
	}
	s.Failed += len(r.Errors)
	r.Summary = s
}

func countCommon(s *ReportSummary, status string) {
	switch status {
	case FileStatusDeleted, FileStatusPlannedDelete:
		s.Deleted++
	case FileStatusSkipped:
		s.Skipped++
	case FileStatusConflict:
		s.Conflicted++
	case FileStatusFailed:
		s.Failed++
	}
}

func sortFiles(xs []FileResult) {
	sort.SliceStable(xs, func(i, j int) bool { return xs[i].Src < xs[j].Src })
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
