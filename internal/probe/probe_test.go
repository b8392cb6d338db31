package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/John-Robertt/fpvsession/internal/domain"
)

const sampleJSON = `{
  "streams": [{"codec_type": "video", "duration": "118.400000", "tags": {"creation_time": "2024-01-01T09:59:00.000000Z"}}],
  "format": {"duration": "120.500000", "tags": {"creation_time": "2024-01-01T10:00:00.000000Z", "encoder": "DJI"}}
}`

func newTestExtractor(t *testing.T, run Runner, look func(string) (string, error)) *Extractor {
	t.Helper()
	e := New("", time.Second, false, zaptest.NewLogger(t))
	e.Run = run
	e.lookPath = look
	return e
}

func foundFFprobe(string) (string, error) { return "/usr/bin/ffprobe", nil }

func writeVideo(t *testing.T, name string, mtime time.Time) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(p, mtime, mtime))
	return p
}

func TestParseFFprobeJSON(t *testing.T) {
	c, err := ParseFFprobeJSON([]byte(sampleJSON))
	require.NoError(t, err)
	require.InDelta(t, 120.5, c.DurationSeconds, 1e-9)
	require.True(t, c.CreationTime.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)))
	require.Equal(t, time.Local, c.CreationTime.Location())
}

func TestParseFFprobeJSON_StreamFallbackAndEpochRejected(t *testing.T) {
	c, err := ParseFFprobeJSON([]byte(`{"format":{"duration":"N/A"},"streams":[{"duration":"3.0","tags":{"creation_time":"1904-01-01T00:00:00Z"}}]}`))
	require.NoError(t, err)
	require.InDelta(t, 3.0, c.DurationSeconds, 1e-9)
	require.True(t, c.CreationTime.IsZero(), "纪元时间应视为缺失")
}

func TestParseFFprobeJSON_Malformed(t *testing.T) {
	_, err := ParseFFprobeJSON([]byte(`not json`))
	require.Error(t, err)
}

func TestExtract_ContainerOverridesMtime(t *testing.T) {
	mtime := time.Date(2024, 2, 2, 8, 0, 0, 0, time.Local)
	p := writeVideo(t, "DJI_0001.MOV", mtime)

	var gotArgs []string
	e := newTestExtractor(t, func(ctx context.Context, bin string, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte(sampleJSON), nil
	}, foundFFprobe)

	md, err := e.Extract(context.Background(), p)
	require.NoError(t, err)
	require.NoError(t, md.ProbeErr)
	require.Equal(t, SourceContainer, md.Source)
	require.True(t, md.ModTime.Equal(mtime))
	require.True(t, md.Timestamp.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)))
	require.InDelta(t, 120.5, md.DurationSeconds, 1e-9)
	require.Equal(t, p, gotArgs[len(gotArgs)-1])
}

func TestExtract_ToolMissingFallsBackAndResolvesOnce(t *testing.T) {
	mtime := time.Date(2024, 2, 2, 8, 0, 0, 0, time.Local)
	p := writeVideo(t, "a.mp4", mtime)

	lookups := 0
	e := newTestExtractor(t, func(ctx context.Context, bin string, args ...string) ([]byte, error) {
		t.Fatalf("找不到 ffprobe 时不应执行命令")
		return nil, nil
	}, func(string) (string, error) {
		lookups++
		return "", errors.New("not found")
	})

	for i := 0; i < 3; i++ {
		md, err := e.Extract(context.Background(), p)
		require.NoError(t, err)
		require.ErrorIs(t, md.ProbeErr, ErrToolMissing)
		require.True(t, md.Timestamp.Equal(mtime))
		require.Zero(t, md.DurationSeconds)
	}
	require.Equal(t, 1, lookups, "ffprobe 路径应在实例内只解析一次")
}

func TestExtract_TimeoutFallsBack(t *testing.T) {
	mtime := time.Date(2024, 2, 2, 8, 0, 0, 0, time.Local)
	p := writeVideo(t, "slow.mp4", mtime)

	e := newTestExtractor(t, func(ctx context.Context, bin string, args ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, foundFFprobe)
	e.Timeout = 20 * time.Millisecond

	md, err := e.Extract(context.Background(), p)
	require.NoError(t, err)
	require.ErrorIs(t, md.ProbeErr, ErrTimeout)
	require.True(t, md.Timestamp.Equal(mtime))
}

func TestExtract_MalformedOutputFallsBack(t *testing.T) {
	mtime := time.Date(2024, 2, 2, 8, 0, 0, 0, time.Local)
	p := writeVideo(t, "bad.mov", mtime)

	e := newTestExtractor(t, func(ctx context.Context, bin string, args ...string) ([]byte, error) {
		return []byte("{"), nil
	}, foundFFprobe)

	md, err := e.Extract(context.Background(), p)
	require.NoError(t, err)
	var pe *ProbeError
	require.ErrorAs(t, md.ProbeErr, &pe)
	require.Equal(t, "parse", pe.Stage)
	require.True(t, md.Timestamp.Equal(mtime))
}

func TestExtract_NonVideoNotProbed(t *testing.T) {
	mtime := time.Date(2024, 2, 2, 8, 0, 0, 0, time.Local)
	p := writeVideo(t, "log.bfl", mtime)

	e := newTestExtractor(t, func(ctx context.Context, bin string, args ...string) ([]byte, error) {
		t.Fatalf("非视频不应调用 ffprobe")
		return nil, nil
	}, foundFFprobe)

	md, err := e.Extract(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, SourceMtime, md.Source)
	require.True(t, md.Timestamp.Equal(mtime))
}

func TestExtract_ImageWithoutExifFallsBack(t *testing.T) {
	mtime := time.Date(2024, 2, 2, 8, 0, 0, 0, time.Local)
	p := writeVideo(t, "photo.jpg", mtime)

	e := newTestExtractor(t, nil, foundFFprobe)
	e.ImageExif = true

	md, err := e.Extract(context.Background(), p)
	require.NoError(t, err)
	require.Error(t, md.ProbeErr)
	require.True(t, md.Timestamp.Equal(mtime))
}

func TestApply_UpdatesRecord(t *testing.T) {
	mtime := time.Date(2024, 2, 2, 8, 0, 0, 0, time.Local)
	p := writeVideo(t, "x.mp4", mtime)

	e := newTestExtractor(t, func(ctx context.Context, bin string, args ...string) ([]byte, error) {
		return []byte(`{"format":{"duration":"60"}}`), nil
	}, foundFFprobe)

	rec := domain.FileRecord{AbsPath: p, RelPath: "x.mp4", ModTime: mtime, Timestamp: mtime}
	e.Apply(context.Background(), &rec)
	require.InDelta(t, 60.0, rec.DurationSeconds, 1e-9)
	require.True(t, rec.Timestamp.Equal(mtime), "没有 creation_time 时保持 mtime")
}

func TestExtract_MissingFile(t *testing.T) {
	e := newTestExtractor(t, nil, foundFFprobe)
	_, err := e.Extract(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"))
	require.Error(t, err)
}
