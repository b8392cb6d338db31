package dedup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/John-Robertt/fpvsession/internal/domain"
	"github.com/John-Robertt/fpvsession/internal/scan"
)

func write(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func scanned(t *testing.T, root string) []domain.FileRecord {
	t.Helper()
	files, err := scan.ScanFiles(root, nil)
	require.NoError(t, err)
	return files
}

func TestEliminate_RemovesAllButFirst(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.mp4", []byte("same-bytes"))
	write(t, root, "b.mp4", []byte("same-bytes"))
	write(t, root, "sub/c.mp4", []byte("same-bytes"))
	write(t, root, "d.mp4", []byte("diff-bytes")) // 同尺寸不同内容
	write(t, root, "e.mp4", []byte("x"))

	res := Eliminate(context.Background(), scanned(t, root), Options{Log: zaptest.NewLogger(t)})
	require.NoError(t, res.Err)
	require.Len(t, res.Groups, 1)
	require.Equal(t, "a.mp4", res.Groups[0].Keep)
	require.Len(t, res.Removed, 2)
	for _, r := range res.Removed {
		require.Equal(t, domain.FileStatusDeleted, r.Status)
		_, err := os.Stat(filepath.Join(root, r.Src))
		require.True(t, os.IsNotExist(err), r.Src)
	}
	require.Len(t, res.Kept, 3)
	require.FileExists(t, filepath.Join(root, "d.mp4"))
}

func TestEliminate_SamePrefixDifferentTail(t *testing.T) {
	root := t.TempDir()
	head := bytes.Repeat([]byte{'a'}, PrefixSize)
	write(t, root, "a.bin", append(append([]byte{}, head...), '1'))
	write(t, root, "b.bin", append(append([]byte{}, head...), '2'))

	res := Eliminate(context.Background(), scanned(t, root), Options{})
	require.NoError(t, res.Err)
	require.Empty(t, res.Groups)
	require.Len(t, res.Kept, 2)
}

func TestEliminate_DryRunOnlyReports(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.jpg", []byte("img"))
	write(t, root, "b.jpg", []byte("img"))

	res := Eliminate(context.Background(), scanned(t, root), Options{DryRun: true})
	require.Len(t, res.Removed, 1)
	require.Equal(t, domain.FileStatusPlannedDelete, res.Removed[0].Status)
	require.FileExists(t, filepath.Join(root, "b.jpg"))
	require.Len(t, res.Kept, 1)
}

func TestEliminate_ExcludedNeverDeleted(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a/default_session_img.jpg", []byte("img"))
	write(t, root, "b/x.jpg", []byte("img"))
	write(t, root, "c/y.jpg", []byte("img"))

	res := Eliminate(context.Background(), scanned(t, root), Options{Excluded: []string{"default_session_img.jpg"}})
	require.NoError(t, res.Err)
	require.FileExists(t, filepath.Join(root, "a", "default_session_img.jpg"))
	// 代表是第一个非排除文件；N 个非排除副本删除 N-1 个。
	require.Equal(t, filepath.Join("b", "x.jpg"), res.Groups[0].Keep)
	require.Len(t, res.Removed, 1)
	require.Equal(t, filepath.Join("c", "y.jpg"), res.Removed[0].Src)
}

func TestEliminate_ExcludedMatchedIgnoringCase(t *testing.T) {
	root := t.TempDir()
	write(t, root, "0.jpg", []byte("img"))
	write(t, root, "Default_Session_Img.JPG", []byte("img"))

	res := Eliminate(context.Background(), scanned(t, root), Options{Excluded: []string{"default_session_img.jpg"}})
	require.NoError(t, res.Err)
	require.Empty(t, res.Removed)
	require.FileExists(t, filepath.Join(root, "Default_Session_Img.JPG"))
	require.FileExists(t, filepath.Join(root, "0.jpg"))
}

func TestEliminate_EmptyFilesAreDuplicates(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.txt", nil)
	write(t, root, "b.txt", nil)

	res := Eliminate(context.Background(), scanned(t, root), Options{})
	require.NoError(t, res.Err)
	require.Len(t, res.Removed, 1)
	require.Equal(t, "b.txt", res.Removed[0].Src)
	require.FileExists(t, filepath.Join(root, "a.txt"))
}

func TestEliminate_AllExcludedKeepsEverything(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a/default_session_img.jpg", []byte("img"))
	write(t, root, "b/default_session_img.jpg", []byte("img"))

	res := Eliminate(context.Background(), scanned(t, root), Options{Excluded: []string{"default_session_img.jpg"}})
	require.Empty(t, res.Removed)
	require.Len(t, res.Kept, 2)
}

func TestEliminate_UnreadableFileReportedAndKept(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.bin", []byte("same"))
	write(t, root, "b.bin", []byte("same"))
	files := scanned(t, root)
	files = append(files, domain.FileRecord{AbsPath: filepath.Join(root, "gone.bin"), RelPath: "gone.bin", Name: "gone.bin", Size: 4})

	res := Eliminate(context.Background(), files, Options{})
	require.Error(t, res.Err)
	require.Len(t, res.Removed, 1)
	require.Len(t, res.Kept, 2)
}
