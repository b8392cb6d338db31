package planner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/fpvsession/internal/domain"
)

func at(h, m int) time.Time { return time.Date(2024, 5, 4, h, m, 0, 0, time.Local) }

func bucket(s, e time.Time, names ...string) domain.SessionBucket {
	b := domain.SessionBucket{Start: s, End: e}
	for _, n := range names {
		b.Members = append(b.Members, domain.FileRecord{Name: n, RelPath: n})
	}
	return b
}

func TestReadDayState_MissingDir(t *testing.T) {
	st, err := ReadDayState(t.TempDir(), at(10, 0))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(st.Sessions) != 0 {
		t.Fatalf("期望空状态：%+v", st)
	}
}

func TestPlan_ReusesOverlappingFolder(t *testing.T) {
	out := t.TempDir()
	day := filepath.Join(out, "2024.05.04_FPVSession")
	mkdir(t, filepath.Join(day, "2024.05.04_14.00.00-15.00.00_FPVSession"))
	mkdir(t, filepath.Join(day, "not-a-session"))

	p := New(out)
	plan, err := p.Plan(bucket(at(14, 30), at(14, 45), "a.MP4"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !plan.Reused || plan.Folder != "2024.05.04_14.00.00-15.00.00_FPVSession" {
		t.Fatalf("期望复用既有目录：%+v", plan)
	}

	plan, err = p.Plan(bucket(at(16, 0), at(16, 10), "b.MP4"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if plan.Reused || plan.Folder != "2024.05.04_16.00.00-16.10.00_FPVSession" {
		t.Fatalf("期望新建目录：%+v", plan)
	}
	if plan.Dir != filepath.Join(day, plan.Folder) {
		t.Fatalf("Dir 不正确：%q", plan.Dir)
	}
}

func TestPlan_RemembersPlannedFoldersWithinRun(t *testing.T) {
	p := New(t.TempDir())
	first, _ := p.Plan(bucket(at(10, 0), at(10, 30), "a.MP4"))
	second, _ := p.Plan(bucket(at(10, 30), at(10, 40), "b.MP4"))
	if first.Reused || !second.Reused || second.Folder != first.Folder {
		t.Fatalf("同一次运行内应复用刚规划的目录：%+v %+v", first, second)
	}
}

func TestPlan_ExistingNamesMarked(t *testing.T) {
	out := t.TempDir()
	dir := filepath.Join(out, "2024.05.04_FPVSession", "2024.05.04_10.00.00-10.30.00_FPVSession")
	write(t, filepath.Join(dir, "IMG", "x_img.jpg"))
	write(t, filepath.Join(dir, "root.MP4"))

	plan, err := New(out).Plan(bucket(at(10, 0), at(10, 30), "x_img.jpg", "root.MP4", "new.MP4", "new.MP4"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	got := []bool{}
	for _, c := range plan.Copies {
		got = append(got, c.Exists)
	}
	want := []bool{true, true, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Exists 标记不正确：got=%v want=%v", got, want)
		}
	}
}

func mkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
}

func write(t *testing.T, path string) {
	t.Helper()
	mkdir(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
