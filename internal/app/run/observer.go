package run

import (
	"time"

	"github.com/John-Robertt/fpvsession/internal/config"
	"github.com/John-Robertt/fpvsession/internal/domain"
	"github.com/John-Robertt/fpvsession/internal/infra/fsx"
)

// Observer 用于把“运行进度/阶段/会话结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 事件都在调用 ExecuteWithObserver 的 goroutine 上发出；实现方仍应自行节流复制进度。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnSessionDone 在某个会话落盘（或规划）完成时调用。
	OnSessionDone(idx, total int, res domain.SessionResult, dur time.Duration)
	// OnCopyProgress 在每个复制块写入后调用。
	OnCopyProgress(p fsx.Progress)
}
