package domain

// SessionRecord 是交给展示层（外部画廊）的唯一契约：一个已落盘会话的只读视图。
// 所有路径均为相对输出根目录、以 '/' 分隔。
type SessionRecord struct {
	Name string `json:"name"`
	Sub  string `json:"sub"`
	Date string `json:"date"` // YYYY-MM-DD；无法解析时为空

	Times SessionTimes `json:"times"`

	Videos     []string    `json:"videos"`
	Images     []string    `json:"images"`
	Logs       []string    `json:"logs"`
	Blackbox   []string    `json:"blackbox"`
	Meta       []string    `json:"meta"`
	Goggles    []string    `json:"goggles"`
	Thumbnails []Thumbnail `json:"thumbnails"`

	PreviewVideo string `json:"preview_video,omitempty"`
	PreviewThumb string `json:"preview_thumb,omitempty"`

	Tags []string `json:"tags"`
}

type SessionTimes struct {
	Start       string `json:"start_dt_iso"`
	End         string `json:"end_dt_iso"`
	DurationMin int    `json:"duration_min"`
	Weekday     string `json:"weekday"`
	HumanDate   string `json:"human_date"`
	TimeRange   string `json:"time_range"`
}

// Thumbnail 描述视频与其约定缩略图路径（缩略图未必已生成）。
type Thumbnail struct {
	Video string `json:"video"`
	Thumb string `json:"thumb"`
}
