package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"GuardTrack/internal/model"
)

var conflictBase = time.Date(2026, 4, 6, 8, 0, 0, 0, time.UTC)

func scheduledShift(publicID int64, start, end time.Time) *model.Shift {
	return &model.Shift{
		PublicID:       publicID,
		ScheduledStart: start,
		ScheduledEnd:   end,
		Status:         model.ShiftStatusScheduled,
	}
}

func TestOverlapIsBlocking(t *testing.T) {
	existing := scheduledShift(1, conflictBase, conflictBase.Add(8*time.Hour))

	conflicts := DetectConflicts(
		conflictBase.Add(4*time.Hour), conflictBase.Add(12*time.Hour),
		[]*model.Shift{existing}, nil,
	)

	assert.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictSeverityError, conflicts[0].Severity)
	assert.True(t, model.HasBlocking(conflicts))
}

func TestBackToBackWithinTurnaroundWarns(t *testing.T) {
	// 前一班 08:00-16:00，新班 16:10 开始，间隔 10 分钟
	existing := scheduledShift(1, conflictBase, conflictBase.Add(8*time.Hour))

	conflicts := DetectConflicts(
		conflictBase.Add(8*time.Hour+10*time.Minute), conflictBase.Add(16*time.Hour),
		[]*model.Shift{existing}, nil,
	)

	assert.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictSeverityWarning, conflicts[0].Severity)
	assert.False(t, model.HasBlocking(conflicts))
}

func TestTurnaroundBeforeExistingShiftWarns(t *testing.T) {
	// 新班结束后 20 分钟就是下一班的开始
	existing := scheduledShift(1, conflictBase.Add(8*time.Hour+20*time.Minute), conflictBase.Add(16*time.Hour))

	conflicts := DetectConflicts(
		conflictBase, conflictBase.Add(8*time.Hour),
		[]*model.Shift{existing}, nil,
	)

	assert.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictSeverityWarning, conflicts[0].Severity)
}

func TestSufficientGapIsClean(t *testing.T) {
	existing := scheduledShift(1, conflictBase, conflictBase.Add(8*time.Hour))

	conflicts := DetectConflicts(
		conflictBase.Add(9*time.Hour), conflictBase.Add(17*time.Hour),
		[]*model.Shift{existing}, nil,
	)

	assert.Empty(t, conflicts)
}

func TestAdjacentShiftsAtExactBoundary(t *testing.T) {
	// 半开区间：16:00 结束和 16:00 开始不算重叠，但间隔为零要提示
	existing := scheduledShift(1, conflictBase, conflictBase.Add(8*time.Hour))

	conflicts := DetectConflicts(
		conflictBase.Add(8*time.Hour), conflictBase.Add(16*time.Hour),
		[]*model.Shift{existing}, nil,
	)

	assert.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictSeverityWarning, conflicts[0].Severity)
}

func TestSiteOverlapWarnsOnly(t *testing.T) {
	other := scheduledShift(2, conflictBase, conflictBase.Add(8*time.Hour))

	conflicts := DetectConflicts(
		conflictBase.Add(time.Hour), conflictBase.Add(9*time.Hour),
		nil, []*model.Shift{other},
	)

	assert.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictSeverityWarning, conflicts[0].Severity)
	assert.False(t, model.HasBlocking(conflicts))
}

func TestOverlapReportedOncePerShift(t *testing.T) {
	// 重叠班次不再重复报 turnaround
	existing := scheduledShift(1, conflictBase, conflictBase.Add(8*time.Hour))

	conflicts := DetectConflicts(
		conflictBase.Add(7*time.Hour), conflictBase.Add(15*time.Hour),
		[]*model.Shift{existing}, nil,
	)

	assert.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictSeverityError, conflicts[0].Severity)
}
