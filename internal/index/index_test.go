package index

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/John-Robertt/fpvsession/internal/domain"
	"github.com/John-Robertt/fpvsession/internal/infra/cache"
)

const (
	day  = "2024.05.04_FPVSession"
	sub1 = "2024.05.04_14.00.00-15.30.00_FPVSession"
	sub2 = "2024.05.04_09.00.00-09.20.00_FPVSession"
)

func put(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	s := day + "/" + sub1 + "/"
	put(t, root, s+"FPV_Camera/a_0001_DJI-O4.MP4", make([]byte, 30))
	put(t, root, s+"Goggel_Vison/b_FPV-Goggel.MOV", make([]byte, 10))
	put(t, root, s+"IMG/c_img.jpg", []byte("x"))
	put(t, root, s+"IMG/b_FPV-Goggel_thumb.jpg", []byte("x"))
	put(t, root, s+"Blackbox/d_FPV_Blackbox_00001.BFL", []byte("x"))
	put(t, root, s+sub1+".txt", []byte("x"))
	put(t, root, s+sub1+".json", []byte("{}"))
	put(t, root, s+"Extern_Vison/e_goggel.dvr", []byte("x"))
	put(t, root, s+"Extern_Vison/noext", []byte("\x89PNG\r\n\x1a\n0000"))
	put(t, root, s+MetaFile, []byte(`{"tags":[" Wind ","wind","","Forest"]}`))
	put(t, root, day+"/"+sub2+"/IMG/x.png", []byte("x"))
	put(t, root, ".fpvsession/report.json", []byte("{}"))
	return root
}

func TestBuild_Records(t *testing.T) {
	root := fixture(t)
	recs, err := Build(root)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	r := recs[0]
	require.Equal(t, sub1, r.Sub, "按开始时间降序")
	require.Equal(t, day, r.Name)
	require.Equal(t, "2024-05-04", r.Date)
	require.Equal(t, domain.SessionTimes{
		Start:       "2024-05-04 14:00:00",
		End:         "2024-05-04 15:30:00",
		DurationMin: 90,
		Weekday:     "Sa",
		HumanDate:   "04.05.2024",
		TimeRange:   "14:00–15:30",
	}, r.Times)

	p := day + "/" + sub1 + "/"
	require.ElementsMatch(t, []string{p + "FPV_Camera/a_0001_DJI-O4.MP4", p + "Goggel_Vison/b_FPV-Goggel.MOV"}, r.Videos)
	require.ElementsMatch(t, []string{p + "IMG/c_img.jpg", p + "IMG/b_FPV-Goggel_thumb.jpg", p + "Extern_Vison/noext"}, r.Images)
	require.Equal(t, []string{p + "Blackbox/d_FPV_Blackbox_00001.BFL"}, r.Blackbox)
	require.Equal(t, []string{p + sub1 + ".txt"}, r.Logs)
	require.Equal(t, []string{p + sub1 + ".json"}, r.Meta)
	require.Equal(t, []string{p + "Extern_Vison/e_goggel.dvr"}, r.Goggles)
	require.Equal(t, []string{"wind", "forest"}, r.Tags)

	require.Equal(t, p+"Goggel_Vison/b_FPV-Goggel.MOV", r.PreviewVideo, "最小的视频")
	require.Equal(t, p+"IMG/b_FPV-Goggel_thumb.jpg", r.PreviewThumb)
	require.Len(t, r.Thumbnails, 2)

	require.Empty(t, recs[1].Videos)
	require.Equal(t, []string{}, recs[1].Tags)
}

func TestBuild_MissingRoot(t *testing.T) {
	recs, err := Build(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestSessionTimes_EdgeCases(t *testing.T) {
	// end 早于 start：夹到 start。
	tm := sessionTimes(day, "2024.05.04_23.50.00-00.20.00_FPVSession")
	require.Equal(t, 0, tm.DurationMin)
	require.Equal(t, tm.Start, tm.End)

	// 时刻缺失：按 00:00:00。
	tm = sessionTimes(day, "misc")
	require.Equal(t, "2024-05-04 00:00:00", tm.Start)

	// 日期不可解析：零值。
	require.Equal(t, domain.SessionTimes{}, sessionTimes("misc", "misc"))
	require.Equal(t, "", sessionDate("misc", "misc"))
	require.Equal(t, "2024-05-04", sessionDate("misc", sub1))
}

func TestByDate(t *testing.T) {
	recs := []domain.SessionRecord{
		{Date: "2024-05-04", Sub: "a"},
		{Date: "2024-03-01", Sub: "b"},
		{Date: "2024-05-04", Sub: "c"},
		{Sub: "d"},
	}
	byDate, months := ByDate(recs)
	require.Len(t, byDate["2024-05-04"], 2)
	require.Equal(t, []string{"2024-03", "2024-05"}, months)
}

func TestTags_SaveLoadAndValidate(t *testing.T) {
	root := fixture(t)

	got, err := SaveTags(root, day, sub2, []string{"A", " a", "b "})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got)

	loaded, err := LoadTags(root, day, sub2)
	require.NoError(t, err)
	require.Equal(t, got, loaded)

	_, err = SaveTags(root, "..", sub2, nil)
	require.True(t, errors.Is(err, ErrInvalidSession))
	_, err = SaveTags(root, day, "x/../../y", nil)
	require.True(t, errors.Is(err, ErrInvalidSession))
	_, err = SaveTags(root, day, "missing", nil)
	require.True(t, os.IsNotExist(err))
}

func TestIndex_CachesAndUpdatesTagsInPlace(t *testing.T) {
	root := fixture(t)
	x := New(root, 0, zaptest.NewLogger(t))
	defer x.Close()

	recs, err := x.Sessions()
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// 新增会话目录：缓存未过期时不可见。
	put(t, root, day+"/2024.05.04_18.00.00-18.10.00_FPVSession/IMG/y.png", []byte("x"))
	recs, _ = x.Sessions()
	require.Len(t, recs, 2)

	_, err = x.SaveTags(day, sub2, []string{"Night"})
	require.NoError(t, err)
	recs, _ = x.Sessions()
	require.Len(t, recs, 2, "保存标签不触发重建")
	require.Equal(t, []string{"night"}, recs[1].Tags)

	recs, err = x.Refresh()
	require.NoError(t, err)
	require.Len(t, recs, 3)
}

func TestIndex_WriteSnapshot(t *testing.T) {
	root := fixture(t)
	x := New(root, 0, nil)
	defer x.Close()

	st := cache.New(root, false)
	require.NoError(t, x.WriteSnapshot(st))
	_, ok, err := st.Read(SnapshotFile)
	require.NoError(t, err)
	require.True(t, ok)

	require.ErrorIs(t, x.WriteSnapshot(cache.New(root, true)), cache.ErrReadOnly)
}
