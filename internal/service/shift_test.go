package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GuardTrack/internal/model"
	"GuardTrack/internal/model/dto"
	"GuardTrack/internal/realtime"
	"GuardTrack/internal/shift"
	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/geo"
)

var shiftBase = time.Date(2026, 4, 6, 8, 0, 0, 0, time.UTC)

func newTestService() (*ShiftService, *[]realtime.ShiftStatusUpdate) {
	var updates []realtime.ShiftStatusUpdate
	svc := NewShiftService(
		newMemRunner(),
		sequentialIDs(),
		func(u realtime.ShiftStatusUpdate) { updates = append(updates, u) },
		nil,
	)
	return svc, &updates
}

func strPtr(s string) *string { return &s }

func mustCreateShift(t *testing.T, svc *ShiftService, guardID string, start, end time.Time) *dto.ShiftItem {
	t.Helper()
	item, err := svc.CreateShift(context.Background(), shift.Actor{Admin: true}, dto.CreateShiftRequest{
		GuardID:        strPtr(guardID),
		ScheduledStart: start,
		ScheduledEnd:   end,
	})
	require.NoError(t, err)
	return item
}

func TestCreateShiftRejectsInvalidWindow(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateShift(context.Background(), shift.Actor{Admin: true}, dto.CreateShiftRequest{
		ScheduledStart: shiftBase,
		ScheduledEnd:   shiftBase,
	})
	assert.ErrorIs(t, err, pkgerrors.InvalidShiftWindow)
}

func TestCreateShiftRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateShift(context.Background(), shift.Actor{GuardID: 7}, dto.CreateShiftRequest{
		ScheduledStart: shiftBase,
		ScheduledEnd:   shiftBase.Add(8 * time.Hour),
	})
	assert.ErrorIs(t, err, pkgerrors.AdminRequired)
}

func TestCreateShiftBlockedByOverlap(t *testing.T) {
	svc, _ := newTestService()
	mustCreateShift(t, svc, "7", shiftBase, shiftBase.Add(8*time.Hour))

	_, err := svc.CreateShift(context.Background(), shift.Actor{Admin: true}, dto.CreateShiftRequest{
		GuardID:        strPtr("7"),
		ScheduledStart: shiftBase.Add(4 * time.Hour),
		ScheduledEnd:   shiftBase.Add(12 * time.Hour),
	})
	assert.ErrorIs(t, err, pkgerrors.ConflictDetected)
}

// 未到岗不等于取消：NO_SHOW 班次的时段重叠照样拦截
func TestCreateShiftBlockedByNoShowOverlap(t *testing.T) {
	runner := newMemRunner()
	svc := NewShiftService(runner, sequentialIDs(), func(realtime.ShiftStatusUpdate) {}, nil)

	_, err := svc.CreateShift(context.Background(), shift.Actor{Admin: true}, dto.CreateShiftRequest{
		GuardID:        strPtr("7"),
		ScheduledStart: shiftBase,
		ScheduledEnd:   shiftBase.Add(8 * time.Hour),
	})
	require.NoError(t, err)
	runner.store.shifts[0].Status = model.ShiftStatusNoShow

	_, err = svc.CreateShift(context.Background(), shift.Actor{Admin: true}, dto.CreateShiftRequest{
		GuardID:        strPtr("7"),
		ScheduledStart: shiftBase.Add(4 * time.Hour),
		ScheduledEnd:   shiftBase.Add(12 * time.Hour),
	})
	assert.ErrorIs(t, err, pkgerrors.ConflictDetected)

	// 取消的班次才让出时段
	runner.store.shifts[0].Status = model.ShiftStatusCancelled
	_, err = svc.CreateShift(context.Background(), shift.Actor{Admin: true}, dto.CreateShiftRequest{
		GuardID:        strPtr("7"),
		ScheduledStart: shiftBase.Add(4 * time.Hour),
		ScheduledEnd:   shiftBase.Add(12 * time.Hour),
	})
	require.NoError(t, err)
}

func TestCreateShiftWarningDoesNotBlock(t *testing.T) {
	svc, _ := newTestService()
	mustCreateShift(t, svc, "7", shiftBase, shiftBase.Add(8*time.Hour))

	// 间隔只有 10 分钟，应提示但不拦截
	item, err := svc.CreateShift(context.Background(), shift.Actor{Admin: true}, dto.CreateShiftRequest{
		GuardID:        strPtr("7"),
		ScheduledStart: shiftBase.Add(8*time.Hour + 10*time.Minute),
		ScheduledEnd:   shiftBase.Add(16 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "SCHEDULED", item.Status)
}

func TestCheckConflictsDryRun(t *testing.T) {
	svc, _ := newTestService()
	existing := mustCreateShift(t, svc, "7", shiftBase, shiftBase.Add(8*time.Hour))

	data, err := svc.CheckConflicts(context.Background(), dto.ConflictCheckRequest{
		GuardID:        "7",
		ScheduledStart: shiftBase.Add(4 * time.Hour),
		ScheduledEnd:   shiftBase.Add(12 * time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, data.Blocking)
	require.Len(t, data.Conflicts, 1)
	assert.Equal(t, "error", data.Conflicts[0].Severity)

	// 排除自己后不再冲突（改班场景）
	data, err = svc.CheckConflicts(context.Background(), dto.ConflictCheckRequest{
		GuardID:        "7",
		ScheduledStart: shiftBase.Add(4 * time.Hour),
		ScheduledEnd:   shiftBase.Add(12 * time.Hour),
		ExcludeShiftID: &existing.ID,
	})
	require.NoError(t, err)
	assert.False(t, data.Blocking)
	assert.Empty(t, data.Conflicts)
}

func TestCheckInFlow(t *testing.T) {
	svc, updates := newTestService()
	item := mustCreateShift(t, svc, "7", shiftBase, shiftBase.Add(8*time.Hour))
	shiftID, err := ParseID(item.ID)
	require.NoError(t, err)

	loc := geo.Location{Latitude: 31.2, Longitude: 121.5}
	got, duplicate, err := svc.CheckIn(context.Background(), shift.Actor{GuardID: 7}, shiftID, dto.CheckInRequest{
		Location:  loc,
		Timestamp: shiftBase.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Equal(t, "IN_PROGRESS", got.Status)
	require.NotNil(t, got.ActualStart)

	require.Len(t, *updates, 1)
	assert.Equal(t, "IN_PROGRESS", (*updates)[0].Status)
	assert.Equal(t, "SCHEDULED", (*updates)[0].PrevStatus)
}

func TestCheckInIdempotentOnRedelivery(t *testing.T) {
	svc, updates := newTestService()
	item := mustCreateShift(t, svc, "7", shiftBase, shiftBase.Add(8*time.Hour))
	shiftID, _ := ParseID(item.ID)

	loc := geo.Location{Latitude: 31.2, Longitude: 121.5}
	req := dto.CheckInRequest{Location: loc, Timestamp: shiftBase.Add(time.Minute)}

	_, duplicate, err := svc.CheckIn(context.Background(), shift.Actor{GuardID: 7}, shiftID, req)
	require.NoError(t, err)
	assert.False(t, duplicate)

	// 离线队列重复投递：吸收且不再广播
	got, duplicate, err := svc.CheckIn(context.Background(), shift.Actor{GuardID: 7}, shiftID, req)
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, "IN_PROGRESS", got.Status)
	assert.Len(t, *updates, 1)
}

func TestCheckInOwnershipEnforced(t *testing.T) {
	svc, _ := newTestService()
	item := mustCreateShift(t, svc, "7", shiftBase, shiftBase.Add(8*time.Hour))
	shiftID, _ := ParseID(item.ID)

	_, _, err := svc.CheckIn(context.Background(), shift.Actor{GuardID: 8}, shiftID, dto.CheckInRequest{
		Location: geo.Location{Latitude: 31.2, Longitude: 121.5},
	})
	assert.ErrorIs(t, err, pkgerrors.OwnershipMismatch)
}

func TestBreakLifecycleAndCheckOutTotals(t *testing.T) {
	svc, _ := newTestService()
	item := mustCreateShift(t, svc, "7", shiftBase, shiftBase.Add(8*time.Hour))
	shiftID, _ := ParseID(item.ID)
	actor := shift.Actor{GuardID: 7}
	loc := geo.Location{Latitude: 31.2, Longitude: 121.5}
	ctx := context.Background()

	_, _, err := svc.CheckIn(ctx, actor, shiftID, dto.CheckInRequest{Location: loc, Timestamp: shiftBase})
	require.NoError(t, err)

	br, err := svc.StartBreak(ctx, actor, shiftID, dto.StartBreakRequest{
		BreakType: "meal",
		Timestamp: shiftBase.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "meal", br.Type)

	// 休息中不能再开一条
	_, err = svc.StartBreak(ctx, actor, shiftID, dto.StartBreakRequest{Timestamp: shiftBase.Add(2 * time.Hour)})
	assert.ErrorIs(t, err, pkgerrors.InvalidStateTransition)

	breakID, err := ParseID(br.ID)
	require.NoError(t, err)
	ended, err := svc.EndBreak(ctx, actor, shiftID, breakID, dto.EndBreakRequest{Timestamp: shiftBase.Add(2*time.Hour + 30*time.Minute)})
	require.NoError(t, err)
	require.NotNil(t, ended.EndTime)

	got, duplicate, err := svc.CheckOut(ctx, actor, shiftID, dto.CheckOutRequest{
		Location:  loc,
		Timestamp: shiftBase.Add(8 * time.Hour),
		Notes:     strPtr("uneventful night"),
	})
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Equal(t, "COMPLETED", got.Status)
	assert.Equal(t, 30, got.TotalBreakMin)
}

func TestCheckOutClosesDanglingBreak(t *testing.T) {
	svc, _ := newTestService()
	item := mustCreateShift(t, svc, "7", shiftBase, shiftBase.Add(8*time.Hour))
	shiftID, _ := ParseID(item.ID)
	actor := shift.Actor{GuardID: 7}
	loc := geo.Location{Latitude: 31.2, Longitude: 121.5}
	ctx := context.Background()

	_, _, err := svc.CheckIn(ctx, actor, shiftID, dto.CheckInRequest{Location: loc, Timestamp: shiftBase})
	require.NoError(t, err)
	_, err = svc.StartBreak(ctx, actor, shiftID, dto.StartBreakRequest{Timestamp: shiftBase.Add(7 * time.Hour)})
	require.NoError(t, err)

	// 忘了结束休息直接下岗：休息按下岗时间戳自动关闭
	got, _, err := svc.CheckOut(ctx, actor, shiftID, dto.CheckOutRequest{
		Location:  loc,
		Timestamp: shiftBase.Add(8 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", got.Status)
	assert.Equal(t, 60, got.TotalBreakMin)

	detail, err := svc.Get(ctx, actor, shiftID)
	require.NoError(t, err)
	require.Len(t, detail.Breaks, 1)
	assert.NotNil(t, detail.Breaks[0].EndTime)
}

func TestEndBreakWithoutOpenBreak(t *testing.T) {
	svc, _ := newTestService()
	item := mustCreateShift(t, svc, "7", shiftBase, shiftBase.Add(8*time.Hour))
	shiftID, _ := ParseID(item.ID)
	actor := shift.Actor{GuardID: 7}
	ctx := context.Background()

	_, _, err := svc.CheckIn(ctx, actor, shiftID, dto.CheckInRequest{
		Location: geo.Location{Latitude: 31.2, Longitude: 121.5}, Timestamp: shiftBase,
	})
	require.NoError(t, err)

	_, err = svc.EndBreak(ctx, actor, shiftID, 0, dto.EndBreakRequest{Timestamp: shiftBase.Add(time.Hour)})
	assert.ErrorIs(t, err, pkgerrors.BreakNotFound)
}

func TestReportIncidentIncrementsCount(t *testing.T) {
	var alerts []realtime.IncidentAlert
	svc := NewShiftService(newMemRunner(), sequentialIDs(), nil,
		func(a realtime.IncidentAlert) { alerts = append(alerts, a) })

	item := mustCreateShift(t, svc, "7", shiftBase, shiftBase.Add(8*time.Hour))
	shiftID, _ := ParseID(item.ID)
	actor := shift.Actor{GuardID: 7}
	ctx := context.Background()

	_, _, err := svc.CheckIn(ctx, actor, shiftID, dto.CheckInRequest{
		Location: geo.Location{Latitude: 31.2, Longitude: 121.5}, Timestamp: shiftBase,
	})
	require.NoError(t, err)

	in, err := svc.ReportIncident(ctx, actor, shiftID, dto.ReportIncidentRequest{
		Type:     "suspicious_activity",
		Severity: "high",
		Title:    "Unlocked side door",
	})
	require.NoError(t, err)
	assert.Equal(t, "high", in.Severity)

	detail, err := svc.Get(ctx, actor, shiftID)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.IncidentCount)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Unlocked side door", alerts[0].Title)
}

func TestCancelIsIdempotent(t *testing.T) {
	svc, updates := newTestService()
	item := mustCreateShift(t, svc, "7", shiftBase, shiftBase.Add(8*time.Hour))
	shiftID, _ := ParseID(item.ID)
	admin := shift.Actor{Admin: true}
	ctx := context.Background()

	got, err := svc.Cancel(ctx, admin, shiftID)
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", got.Status)
	assert.Len(t, *updates, 1)

	got, err = svc.Cancel(ctx, admin, shiftID)
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", got.Status)
	assert.Len(t, *updates, 1)
}

func TestMarkMissedSweep(t *testing.T) {
	svc, updates := newTestService()
	ctx := context.Background()

	past := time.Now().Add(-2 * time.Hour)
	mustCreateShift(t, svc, "7", past, past.Add(8*time.Hour))
	future := time.Now().Add(2 * time.Hour)
	mustCreateShift(t, svc, "8", future, future.Add(8*time.Hour))

	n, err := svc.MarkMissedSweep(ctx, 15*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, *updates, 1)
	assert.Equal(t, "NO_SHOW", (*updates)[0].Status)

	// 再扫一轮不会重复处理
	n, err = svc.MarkMissedSweep(ctx, 15*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestListPaginatesByCursor(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		start := shiftBase.AddDate(0, 0, i)
		mustCreateShift(t, svc, "7", start, start.Add(8*time.Hour))
	}

	items, next, err := svc.List(ctx, 7, dto.ListShiftsQuery{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, items, 3)
	require.NotEmpty(t, next)

	items, next, err = svc.List(ctx, 7, dto.ListShiftsQuery{Limit: 3, Cursor: next})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Empty(t, next)
}

func TestGetEnforcesOwnership(t *testing.T) {
	svc, _ := newTestService()
	item := mustCreateShift(t, svc, "7", shiftBase, shiftBase.Add(8*time.Hour))
	shiftID, _ := ParseID(item.ID)
	ctx := context.Background()

	_, err := svc.Get(ctx, shift.Actor{GuardID: 8}, shiftID)
	assert.ErrorIs(t, err, pkgerrors.OwnershipMismatch)

	// 管理员可以看任意班次
	_, err = svc.Get(ctx, shift.Actor{Admin: true}, shiftID)
	assert.NoError(t, err)
}

func TestGetUnknownShift(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Get(context.Background(), shift.Actor{Admin: true}, 424242)
	assert.ErrorIs(t, err, pkgerrors.ShiftNotFound)
}
