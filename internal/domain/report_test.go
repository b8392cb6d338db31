package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRunReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := RunReport{
		Input:      "/abs/in",
		Output:     "/abs/out",
		DryRun:     true,
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Renames: []FileResult{
			{Src: "b.bfl", Status: FileStatusConflict},
			{Src: "a.mp4", Status: FileStatusPlanned},
			{Src: "c.bfl", Status: FileStatusPlannedDelete},
			{Src: "d.txt", Status: FileStatusSkipped},
		},
		Duplicates: []FileResult{{Src: "x.jpg", Status: FileStatusDeleted}},
		Sessions: []SessionResult{
			{Day: "2024.01.02_FPVSession", Folder: "B", Status: SessionStatusCreated, Files: []FileResult{
				{Src: "1.MP4", Status: FileStatusCopied},
				{Src: "2.MP4", Status: FileStatusFailed},
			}},
			{Day: "2024.01.01_FPVSession", Folder: "A", Status: SessionStatusFailed},
		},
		Errors: []ErrorItem{{Stage: "scan", ErrorCode: ErrCodeIOFailed}},
	}

	r.Finalize()

	if r.Renames[0].Src != "a.mp4" || r.Renames[3].Src != "d.txt" {
		t.Fatalf("renames 排序不符合契约：%+v", r.Renames)
	}
	if r.Sessions[0].Folder != "A" {
		t.Fatalf("sessions 排序不符合契约：%+v", r.Sessions)
	}
	want := ReportSummary{Processed: 1, Renamed: 1, Deleted: 2, Skipped: 1, Conflicted: 1, Failed: 3, Sessions: 1}
	if r.Summary != want {
		t.Fatalf("summary 统计不正确：got=%+v want=%+v", r.Summary, want)
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
	if !bytes.Contains(b, []byte("\"ungrouped\":[]")) {
		t.Fatalf("空列表应输出 []：%s", string(b))
	}
}
