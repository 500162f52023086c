package shift

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GuardTrack/internal/model"
	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/geo"
)

var (
	testLoc = geo.Location{Latitude: 31.2304, Longitude: 121.4737, AccuracyMeters: 12}
	baseT   = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
)

func newScheduledShift(guardID int64) *model.Shift {
	gid := guardID
	return &model.Shift{
		PublicID:       1001,
		GuardID:        &gid,
		ScheduledStart: baseT,
		ScheduledEnd:   baseT.Add(8 * time.Hour),
		Status:         model.ShiftStatusScheduled,
	}
}

func TestCheckInTransitionsToInProgress(t *testing.T) {
	s := newScheduledShift(7)
	at := baseT.Add(5 * time.Minute)

	changed, err := CheckIn(s, Actor{GuardID: 7}, testLoc, at)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.ShiftStatusInProgress, s.Status)
	require.NotNil(t, s.ActualStart)
	assert.Equal(t, at, *s.ActualStart)
	require.NotNil(t, s.CheckInLoc)
	assert.Equal(t, testLoc, *s.CheckInLoc)
}

func TestCheckInIdempotentKeepsActualStart(t *testing.T) {
	s := newScheduledShift(7)
	first := baseT.Add(5 * time.Minute)

	_, err := CheckIn(s, Actor{GuardID: 7}, testLoc, first)
	require.NoError(t, err)

	later := geo.Location{Latitude: 31.2305, Longitude: 121.4738, AccuracyMeters: 8}
	changed, err := CheckIn(s, Actor{GuardID: 7}, later, first.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, first, *s.ActualStart, "actualStart must survive duplicate delivery")
	assert.Equal(t, later, *s.CheckInLoc, "location updates on duplicate check-in")
}

func TestCheckInOwnership(t *testing.T) {
	s := newScheduledShift(7)

	_, err := CheckIn(s, Actor{GuardID: 8}, testLoc, baseT)
	assert.ErrorIs(t, err, pkgerrors.OwnershipMismatch)

	s.GuardID = nil
	_, err = CheckIn(s, Actor{GuardID: 8}, testLoc, baseT)
	assert.ErrorIs(t, err, pkgerrors.ShiftNotAssigned)
}

func TestCheckInRejectsBadLocation(t *testing.T) {
	s := newScheduledShift(7)
	bad := geo.Location{Latitude: 91, Longitude: 0}

	_, err := CheckIn(s, Actor{GuardID: 7}, bad, baseT)
	assert.ErrorIs(t, err, pkgerrors.InvalidLocation)
	assert.Equal(t, model.ShiftStatusScheduled, s.Status)
}

func TestCheckOutRequiresActiveShift(t *testing.T) {
	s := newScheduledShift(7)

	_, err := CheckOut(s, Actor{GuardID: 7}, testLoc, baseT, nil)
	assert.ErrorIs(t, err, pkgerrors.InvalidStateTransition)
}

func TestBreakLifecycle(t *testing.T) {
	s := newScheduledShift(7)
	actor := Actor{GuardID: 7}
	_, err := CheckIn(s, actor, testLoc, baseT.Add(5*time.Minute))
	require.NoError(t, err)

	require.NoError(t, StartBreak(s, actor, false))
	assert.Equal(t, model.ShiftStatusOnBreak, s.Status)

	// 同时只能有一条未关闭休息
	assert.ErrorIs(t, StartBreak(s, actor, true), pkgerrors.InvalidStateTransition)

	br := &model.ShiftBreak{ShiftID: s.ID, StartTime: baseT.Add(10 * time.Minute), Type: model.BreakTypeMeal}
	require.NoError(t, EndBreak(s, actor, br, baseT.Add(45*time.Minute)))
	assert.Equal(t, model.ShiftStatusInProgress, s.Status)
	require.NotNil(t, br.EndTime)

	// 已关闭的休息不能再结束
	assert.ErrorIs(t, EndBreak(s, actor, br, baseT.Add(50*time.Minute)), pkgerrors.InvalidStateTransition)
}

func TestStartBreakBlockedByOpenBreak(t *testing.T) {
	s := newScheduledShift(7)
	actor := Actor{GuardID: 7}
	_, err := CheckIn(s, actor, testLoc, baseT)
	require.NoError(t, err)

	assert.ErrorIs(t, StartBreak(s, actor, true), pkgerrors.BreakAlreadyOpen)
}

// 完整生命周期：上岗 -> 休息 35 分钟 -> 下岗，休息时长结算为 35
func TestFullLifecycleAccounting(t *testing.T) {
	s := newScheduledShift(7)
	actor := Actor{GuardID: 7}

	checkInAt := baseT.Add(5 * time.Minute)
	_, err := CheckIn(s, actor, testLoc, checkInAt)
	require.NoError(t, err)
	assert.Equal(t, checkInAt, *s.ActualStart)

	require.NoError(t, StartBreak(s, actor, false))
	br := &model.ShiftBreak{ShiftID: s.ID, StartTime: baseT.Add(2 * time.Hour), Type: model.BreakTypeMeal}
	require.NoError(t, EndBreak(s, actor, br, baseT.Add(2*time.Hour+35*time.Minute)))

	checkOutAt := baseT.Add(8*time.Hour + 10*time.Minute)
	changed, err := CheckOut(s, actor, testLoc, checkOutAt, []*model.ShiftBreak{br})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.ShiftStatusCompleted, s.Status)
	assert.Equal(t, checkOutAt, *s.ActualEnd)
	assert.Equal(t, 35, s.TotalBreakMin)
}

// 下岗时有未关闭休息：用下岗时间戳自动关闭并计入总时长
func TestCheckOutAutoClosesOpenBreak(t *testing.T) {
	s := newScheduledShift(7)
	actor := Actor{GuardID: 7}
	_, err := CheckIn(s, actor, testLoc, baseT)
	require.NoError(t, err)
	require.NoError(t, StartBreak(s, actor, false))

	open := &model.ShiftBreak{ShiftID: s.ID, StartTime: baseT.Add(4 * time.Hour), Type: model.BreakTypeRest}
	checkOutAt := baseT.Add(4*time.Hour + 20*time.Minute)

	changed, err := CheckOut(s, actor, testLoc, checkOutAt, []*model.ShiftBreak{open})
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, open.EndTime)
	assert.Equal(t, checkOutAt, *open.EndTime)
	assert.Equal(t, 20, s.TotalBreakMin)
	assert.Equal(t, model.ShiftStatusCompleted, s.Status)
}

func TestCheckOutIdempotent(t *testing.T) {
	s := newScheduledShift(7)
	actor := Actor{GuardID: 7}
	_, err := CheckIn(s, actor, testLoc, baseT)
	require.NoError(t, err)

	endAt := baseT.Add(8 * time.Hour)
	_, err = CheckOut(s, actor, testLoc, endAt, nil)
	require.NoError(t, err)

	changed, err := CheckOut(s, actor, testLoc, endAt.Add(time.Minute), nil)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, endAt, *s.ActualEnd, "actualEnd must survive duplicate delivery")
}

func TestReportIncident(t *testing.T) {
	s := newScheduledShift(7)
	actor := Actor{GuardID: 7}

	assert.ErrorIs(t, ReportIncident(s, actor), pkgerrors.InvalidStateTransition)

	_, err := CheckIn(s, actor, testLoc, baseT)
	require.NoError(t, err)

	require.NoError(t, ReportIncident(s, actor))
	require.NoError(t, StartBreak(s, actor, false))
	require.NoError(t, ReportIncident(s, actor))
	assert.Equal(t, 2, s.IncidentCount)
	assert.Equal(t, model.ShiftStatusOnBreak, s.Status, "incident never changes status")
}

func TestMarkMissedSystemOnly(t *testing.T) {
	s := newScheduledShift(7)

	assert.ErrorIs(t, MarkMissed(s, Actor{GuardID: 7}), pkgerrors.AdminRequired)
	require.NoError(t, MarkMissed(s, Actor{System: true}))
	assert.Equal(t, model.ShiftStatusNoShow, s.Status)

	assert.ErrorIs(t, MarkMissed(s, Actor{System: true}), pkgerrors.InvalidStateTransition)
}

func TestCancelRules(t *testing.T) {
	s := newScheduledShift(7)

	_, err := Cancel(s, Actor{GuardID: 7})
	assert.ErrorIs(t, err, pkgerrors.AdminRequired)

	changed, err := Cancel(s, Actor{Admin: true})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.ShiftStatusCancelled, s.Status)

	// 重复取消幂等
	changed, err = Cancel(s, Actor{Admin: true})
	require.NoError(t, err)
	assert.False(t, changed)

	// Completed 不可取消
	done := newScheduledShift(7)
	done.Status = model.ShiftStatusCompleted
	_, err = Cancel(done, Actor{Admin: true})
	assert.ErrorIs(t, err, pkgerrors.InvalidStateTransition)
}

func TestAssignGuard(t *testing.T) {
	s := &model.Shift{Status: model.ShiftStatusScheduled, ScheduledStart: baseT, ScheduledEnd: baseT.Add(8 * time.Hour)}

	assert.ErrorIs(t, AssignGuard(s, Actor{GuardID: 9}, 9), pkgerrors.AdminRequired)

	require.NoError(t, AssignGuard(s, Actor{Admin: true}, 9))
	require.NotNil(t, s.GuardID)
	assert.Equal(t, int64(9), *s.GuardID)

	s.Status = model.ShiftStatusInProgress
	assert.ErrorIs(t, AssignGuard(s, Actor{Admin: true}, 10), pkgerrors.InvalidStateTransition)
}
