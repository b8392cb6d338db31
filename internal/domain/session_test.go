package domain

import (
	"testing"
	"time"
)

func TestSessionFolderName(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)
	end := time.Date(2024, 1, 1, 10, 30, 5, 0, time.Local)

	if got := DayFolderName(start); got != "2024.01.01_FPVSession" {
		t.Fatalf("日目录名不正确：%q", got)
	}
	if got := SessionFolderName(start, end); got != "2024.01.01_10.00.00-10.30.05_FPVSession" {
		t.Fatalf("会话目录名不正确：%q", got)
	}
}

func TestParseSessionRange(t *testing.T) {
	day := time.Date(2024, 5, 4, 0, 0, 0, 0, time.Local)

	s, e, ok := ParseSessionRange("2024.05.04_14.00.00-15.00.00_FPVSession", day)
	if !ok {
		t.Fatalf("期望解析成功")
	}
	if s.Hour() != 14 || e.Hour() != 15 || s.Day() != 4 {
		t.Fatalf("解析结果不正确：%v %v", s, e)
	}

	if _, _, ok := ParseSessionRange("random", day); ok {
		t.Fatalf("期望解析失败")
	}

	// 跨午夜：end 落到次日。
	s, e, ok = ParseSessionRange("2024.05.04_23.50.00-00.20.00_FPVSession", day)
	if !ok || !e.After(s) || e.Day() != 5 {
		t.Fatalf("跨午夜区间解析不正确：%v %v", s, e)
	}
}

func TestOverlaps(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 1, 1, h, m, 0, 0, time.Local) }

	if !Overlaps(at(14, 0), at(15, 0), at(14, 30), at(14, 45)) {
		t.Fatalf("14:30–14:45 应与 14:00–15:00 相交")
	}
	if Overlaps(at(14, 0), at(15, 0), at(16, 0), at(16, 10)) {
		t.Fatalf("16:00–16:10 不应与 14:00–15:00 相交")
	}
	// 端点相接也算相交（闭区间）。
	if !Overlaps(at(14, 0), at(15, 0), at(15, 0), at(15, 10)) {
		t.Fatalf("端点相接应视为相交")
	}
}

func TestCategoryFor(t *testing.T) {
	cases := []struct {
		name string
		kind DeviceKind
		want Category
	}{
		{"2024.01.01_10.00.00_0001_DJI-O4.MP4", KindActionCamFront, CategoryFPVCamera},
		{"2024.01.01_10.00.00_FPV-Goggel.MP4", KindGoggleCamera, CategoryGoggle},
		{"2024.01.01_10.00.00_0002_FPV-Goggel.MOV", KindGoggleCamera, CategoryGoggle},
		{"2024.01.01_10.00.00_img.JPG", KindImage, CategoryIMG},
		{"scan.tiff", KindUnknown, CategoryIMG},
		{"2024.01.01_10.00.00_FPV_Blackbox_00001.BFL", KindBlackbox, CategoryBlackbox},
		{"2024.01.01_10.00.00_Google-Pixel.MP4", KindPhoneCamera, CategoryExtern},
		{"rear.mp4", KindActionCamRear, CategoryExtern},
	}
	for _, c := range cases {
		if got := CategoryFor(c.name, c.kind); got != c.want {
			t.Fatalf("%s：期望 %s，实际 %s", c.name, c.want, got)
		}
	}
}
