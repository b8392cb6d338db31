package probe

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Container 是 ffprobe 对视频容器给出的最小信息集。
type Container struct {
	DurationSeconds float64
	// CreationTime 是内嵌的 creation_time（本地时区）；缺失或不可信时为零值。
	CreationTime time.Time
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string            `json:"duration"`
	Tags     map[string]string `json:"tags"`
}

type ffprobeStream struct {
	CodecType string            `json:"codec_type"`
	Duration  string            `json:"duration"`
	Tags      map[string]string `json:"tags"`
}

// 相机未设置时钟时常见 1904/1970 纪元值，这类时间视为缺失。
var minCreationTime = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

// ParseFFprobeJSON 解析 ffprobe 的 JSON 输出。导出供测试使用（无需真实 ffprobe）。
func ParseFFprobeJSON(data []byte) (Container, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return Container{}, fmt.Errorf("解析 ffprobe JSON 失败：%w", err)
	}

	var c Container
	if d, ok := parseDuration(raw.Format.Duration); ok {
		c.DurationSeconds = d
	} else {
		for _, s := range raw.Streams {
			if d, ok := parseDuration(s.Duration); ok {
				c.DurationSeconds = d
				break
			}
		}
	}

	ct := tag(raw.Format.Tags, "creation_time")
	if ct == "" {
		for _, s := range raw.Streams {
			if ct = tag(s.Tags, "creation_time"); ct != "" {
				break
			}
		}
	}
	if ct != "" {
		if t, ok := parseCreationTime(ct); ok {
			c.CreationTime = t
		}
	}
	return c, nil
}

func parseDuration(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, false
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

func tag(tags map[string]string, key string) string {
	for k, v := range tags {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// parseCreationTime 接受 ISO-8601（带 Z 或偏移），结果转为本地时区。
func parseCreationTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Before(minCreationTime) {
			return time.Time{}, false
		}
		return t.Local(), true
	}
	return time.Time{}, false
}
