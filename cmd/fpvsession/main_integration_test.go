package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/fpvsession/internal/config"
	"github.com/John-Robertt/fpvsession/internal/domain"
)

// runCLI 在进程内执行 CLI；stdout/stderr 是 bytes.Buffer，因此总是“非 TTY”。
func runCLI(t *testing.T, cwd string, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	c := newCLI(&out, &errOut)
	c.getwd = func() (string, error) { return cwd, nil }

	root := newRootCmd(c)
	root.SetArgs(args)
	code = exitCodeOf(root.Execute(), &errOut)
	return code, out.String(), errOut.String()
}

// exitCodeOf 与 execute 的映射保持一致（execute 自己会构造 cli，这里需要注入 getwd）。
func exitCodeOf(err error, stderr *bytes.Buffer) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exitError); ok {
		return ee.code
	}
	stderr.WriteString(err.Error())
	return 2
}

func seedCard(t *testing.T, root string) {
	t.Helper()
	ts := time.Date(2024, 5, 4, 10, 0, 0, 0, time.Local)
	p := filepath.Join(root, "card", "DJI_0001_0001_D.MP4")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(p, []byte("video"), 0o644); err != nil {
		t.Fatalf("写入视频失败：%v", err)
	}
	if err := os.Chtimes(p, ts, ts); err != nil {
		t.Fatalf("设置 mtime 失败：%v", err)
	}
	cfg := `{"output":"../sorted","ffprobe_path":"/nonexistent/ffprobe"}`
	if err := os.WriteFile(filepath.Join(root, "card", "fpvsession.json"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("写入配置失败：%v", err)
	}
}

func TestCLI_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	// 这个测试锁定对外契约：stdout 非 TTY 时只能输出一个 RunReport JSON（进度/配置必须走 stderr 或直接禁用）。
	root := t.TempDir()
	seedCard(t, root)

	code, stdout, stderr := runCLI(t, root, "run", filepath.Join(root, "card"))
	if code != 0 {
		t.Fatalf("退出码应为 0，实际 %d\nstderr=%s\nstdout=%s", code, stderr, stdout)
	}

	var rr domain.RunReport
	if err := json.Unmarshal([]byte(stdout), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout)
	}
	if !rr.DryRun || rr.Summary.Renamed != 1 || rr.Summary.Sessions != 1 {
		t.Fatalf("报告内容不正确：%+v", rr.Summary)
	}
	if strings.Contains(stdout, "配置（生效）") {
		t.Fatalf("stdout 不应包含进度/配置输出：%q", stdout)
	}
	if !strings.Contains(stderr, "完成：processed=") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr)
	}
	if _, err := os.Stat(filepath.Join(root, "sorted")); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应创建输出目录：%v", err)
	}
}

func TestCLI_ApplyThenIndexAndTags(t *testing.T) {
	root := t.TempDir()
	seedCard(t, root)
	out := filepath.Join(root, "sorted")

	code, _, stderr := runCLI(t, root, "run", filepath.Join(root, "card"), "--apply")
	if code != 0 {
		t.Fatalf("apply 退出码应为 0，实际 %d：%s", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(out, ".fpvsession", "report.json")); err != nil {
		t.Fatalf("apply 应写入 report.json：%v", err)
	}

	code, stdout, stderr := runCLI(t, root, "index", "--output", out, "--snapshot")
	if code != 0 {
		t.Fatalf("index 退出码应为 0，实际 %d：%s", code, stderr)
	}
	var recs []domain.SessionRecord
	if err := json.Unmarshal([]byte(stdout), &recs); err != nil || len(recs) != 1 {
		t.Fatalf("index 输出不正确：%v %q", err, stdout)
	}
	if recs[0].Date != "2024-05-04" || len(recs[0].Videos) != 1 {
		t.Fatalf("索引记录不正确：%+v", recs[0])
	}
	if _, err := os.Stat(filepath.Join(out, ".fpvsession", "index.json")); err != nil {
		t.Fatalf("--snapshot 应写入 index.json：%v", err)
	}

	code, stdout, _ = runCLI(t, root, "tags", "set", recs[0].Name, recs[0].Sub, " Freestyle ", "park", "freestyle", "--output", out)
	if code != 0 || strings.TrimSpace(stdout) != "[\n  \"freestyle\",\n  \"park\"\n]" {
		t.Fatalf("tags set 输出不正确：code=%d %q", code, stdout)
	}
	code, stdout, _ = runCLI(t, root, "tags", "get", recs[0].Name, recs[0].Sub, "--output", out)
	if code != 0 || !strings.Contains(stdout, "park") {
		t.Fatalf("tags get 输出不正确：code=%d %q", code, stdout)
	}

	code, _, _ = runCLI(t, root, "tags", "set", recs[0].Name, "missing", "x", "--output", out)
	if code != 1 {
		t.Fatalf("不存在的会话应返回 1，实际 %d", code)
	}
}

func TestCLI_ConfigNotFound_ReportsErrorCode(t *testing.T) {
	cwd := t.TempDir()

	code, stdout, _ := runCLI(t, cwd, "run")
	if code != 1 {
		t.Fatalf("退出码应为 1，实际 %d", code)
	}
	var rr domain.RunReport
	if err := json.Unmarshal([]byte(stdout), &rr); err != nil {
		t.Fatalf("stdout 不是合法 JSON：%v %q", err, stdout)
	}
	if len(rr.Errors) != 1 || rr.Errors[0].ErrorCode != config.ErrCodeNotFound {
		t.Fatalf("错误码不正确：%+v", rr.Errors)
	}
}

func TestCLI_UsageErrors(t *testing.T) {
	cwd := t.TempDir()
	cases := [][]string{
		{"bogus"},
		{"run", "a", "b"},
		{"run", "--max-gap", "soon"},
		{"tags", "get", "only-one"},
	}
	for _, args := range cases {
		if code, _, _ := runCLI(t, cwd, args...); code != 2 {
			t.Fatalf("%v：参数错误应返回 2，实际 %d", args, code)
		}
	}
}

func TestCLI_ThumbsDryRunListsPending(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "sorted")
	sess := filepath.Join(out, "2024.05.04_FPVSession", "2024.05.04_10.00.00-10.10.00_FPVSession", "FPV_Camera")
	if err := os.MkdirAll(sess, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(filepath.Join(sess, "a.MP4"), []byte("v"), 0o644); err != nil {
		t.Fatalf("写入视频失败：%v", err)
	}

	code, _, stderr := runCLI(t, root, "thumbs", "--output", out)
	if code != 0 || !strings.Contains(stderr, "IMG/a_thumb.jpg") || !strings.Contains(stderr, "待生成 1 个") {
		t.Fatalf("thumbs dry-run 输出不正确：code=%d %q", code, stderr)
	}
}
