package probe

import (
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

func isExifExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".tif", ".tiff":
		return true
	default:
		return false
	}
}

// readExifTime 读取 DateTimeOriginal（缺失时 DateTime）。
func readExifTime(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, err
	}
	return x.DateTime()
}
