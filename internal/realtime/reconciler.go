package realtime

import (
	"time"

	"go.uber.org/zap"

	"GuardTrack/internal/model"
	"GuardTrack/pkg/logger"
)

// Reconciler 把服务端推来的状态更新并入 agent 的乐观副本。
// 本地还有未同步动作时不能盲目覆盖：乐观副本可能领先于服务端。

// LocalShift agent 端乐观副本的最小视图
type LocalShift struct {
	ShiftID   int64
	Status    model.ShiftStatus
	UpdatedAt time.Time
}

// Decision 对一条服务端更新的处理结论
type Decision int

const (
	// DecisionApply 服务端更新更新鲜，采纳
	DecisionApply Decision = iota
	// DecisionKeepLocal 本地副本更新鲜（有未同步动作），保留本地
	DecisionKeepLocal
	// DecisionNoop 状态一致，无事发生
	DecisionNoop
)

// Reconcile 比较服务端更新与本地副本。
// hasPendingActions 为 true 表示该班次还有排队未投递的动作。
func Reconcile(local LocalShift, remote ShiftStatusUpdate, hasPendingActions bool) Decision {
	if string(local.Status) == remote.Status {
		return DecisionNoop
	}

	// 本地领先：排队动作尚未到达服务端，等队列排空后服务端自然追上
	if hasPendingActions && local.UpdatedAt.After(remote.ChangedAt) {
		logger.Logger.Info("Keeping optimistic local state",
			zap.Int64("shift_id", local.ShiftID),
			zap.String("local_status", string(local.Status)),
			zap.String("remote_status", remote.Status),
		)
		return DecisionKeepLocal
	}

	// 其余情况服务端是权威
	return DecisionApply
}
