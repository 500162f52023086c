package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"GuardTrack/internal/model"
)

var reconBase = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestReconcileNoopWhenStatusesMatch(t *testing.T) {
	local := LocalShift{ShiftID: 1, Status: model.ShiftStatusInProgress, UpdatedAt: reconBase}
	remote := ShiftStatusUpdate{ShiftID: "1", Status: "IN_PROGRESS", ChangedAt: reconBase.Add(time.Minute)}

	assert.Equal(t, DecisionNoop, Reconcile(local, remote, false))
}

func TestReconcileAppliesServerUpdate(t *testing.T) {
	// 管理员在后台取消了班次，本地没有排队动作，采纳服务端
	local := LocalShift{ShiftID: 1, Status: model.ShiftStatusScheduled, UpdatedAt: reconBase}
	remote := ShiftStatusUpdate{ShiftID: "1", Status: "CANCELLED", ChangedAt: reconBase.Add(time.Minute)}

	assert.Equal(t, DecisionApply, Reconcile(local, remote, false))
}

func TestReconcileKeepsOptimisticLocalState(t *testing.T) {
	// 本地刚离线打了上岗卡，动作还在队列里；服务端的 SCHEDULED 是旧事实
	local := LocalShift{ShiftID: 1, Status: model.ShiftStatusInProgress, UpdatedAt: reconBase.Add(5 * time.Minute)}
	remote := ShiftStatusUpdate{ShiftID: "1", Status: "SCHEDULED", ChangedAt: reconBase}

	assert.Equal(t, DecisionKeepLocal, Reconcile(local, remote, true))
}

func TestReconcileServerWinsWithoutPendingActions(t *testing.T) {
	// 没有排队动作时即使时间戳更新也以服务端为准
	local := LocalShift{ShiftID: 1, Status: model.ShiftStatusInProgress, UpdatedAt: reconBase.Add(5 * time.Minute)}
	remote := ShiftStatusUpdate{ShiftID: "1", Status: "NO_SHOW", ChangedAt: reconBase}

	assert.Equal(t, DecisionApply, Reconcile(local, remote, false))
}
