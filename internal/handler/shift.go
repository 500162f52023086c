package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"GuardTrack/internal/middleware"
	"GuardTrack/internal/model/dto"
	"GuardTrack/internal/service"
	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/response"
)

// CreateShift 创建排班（管理员），带冲突检测
// POST /v1/shifts
func CreateShift(ctx context.Context, c *app.RequestContext) {
	actor, ok := middleware.CurrentActor(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	var req dto.CreateShiftRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	item, err := service.Shift().CreateShift(ctx, actor, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, item)
}

// CheckShiftConflicts 冲突检测 dry-run
// POST /v1/shifts/conflicts
func CheckShiftConflicts(ctx context.Context, c *app.RequestContext) {
	var req dto.ConflictCheckRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	data, err := service.Shift().CheckConflicts(ctx, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, data)
}

// ListShifts 班次列表，guard 看自己的，管理员可用 guard_id 查任意人
// GET /v1/shifts
func ListShifts(ctx context.Context, c *app.RequestContext) {
	actor, ok := middleware.CurrentActor(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	var q dto.ListShiftsQuery
	if err := c.Bind(&q); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	guardID := actor.GuardID
	if actor.Admin {
		if raw := c.Query("guard_id"); raw != "" {
			id, err := service.ParseID(raw)
			if err != nil {
				response.Error(ctx, c, err)
				return
			}
			guardID = id
		}
	}

	items, nextCursor, err := service.Shift().List(ctx, guardID, q)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	meta := map[string]interface{}{}
	if nextCursor != "" {
		meta["next_cursor"] = nextCursor
	}
	response.SuccessWithMeta(ctx, c, items, meta)
}

// GetShift 班次详情
// GET /v1/shifts/:shift_id
func GetShift(ctx context.Context, c *app.RequestContext) {
	actor, ok := middleware.CurrentActor(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	shiftID, err := service.ParseID(c.Param("shift_id"))
	if err != nil {
		response.Error(ctx, c, pkgerrors.ShiftNotFound)
		return
	}

	detail, err := service.Shift().Get(ctx, actor, shiftID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, detail)
}

// AssignGuard 给班次补挂 guard（管理员）
// POST /v1/shifts/:shift_id/assign
func AssignGuard(ctx context.Context, c *app.RequestContext) {
	actor, ok := middleware.CurrentActor(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	shiftID, err := service.ParseID(c.Param("shift_id"))
	if err != nil {
		response.Error(ctx, c, pkgerrors.ShiftNotFound)
		return
	}

	var req dto.AssignGuardRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	item, err := service.Shift().AssignGuard(ctx, actor, shiftID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, item)
}

// CancelShift 取消班次（管理员）
// POST /v1/shifts/:shift_id/cancel
func CancelShift(ctx context.Context, c *app.RequestContext) {
	actor, ok := middleware.CurrentActor(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	shiftID, err := service.ParseID(c.Param("shift_id"))
	if err != nil {
		response.Error(ctx, c, pkgerrors.ShiftNotFound)
		return
	}

	item, err := service.Shift().Cancel(ctx, actor, shiftID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, item)
}

// CheckInShift 上岗打卡
// POST /v1/shifts/:shift_id/check-in
func CheckInShift(ctx context.Context, c *app.RequestContext) {
	actor, ok := middleware.CurrentActor(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	shiftID, err := service.ParseID(c.Param("shift_id"))
	if err != nil {
		response.Error(ctx, c, pkgerrors.ShiftNotFound)
		return
	}

	var req dto.CheckInRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	item, duplicate, err := service.Shift().CheckIn(ctx, actor, shiftID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.SuccessWithMeta(ctx, c, item, map[string]interface{}{"duplicate": duplicate})
}

// CheckOutShift 下岗打卡
// POST /v1/shifts/:shift_id/check-out
func CheckOutShift(ctx context.Context, c *app.RequestContext) {
	actor, ok := middleware.CurrentActor(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	shiftID, err := service.ParseID(c.Param("shift_id"))
	if err != nil {
		response.Error(ctx, c, pkgerrors.ShiftNotFound)
		return
	}

	var req dto.CheckOutRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	item, duplicate, err := service.Shift().CheckOut(ctx, actor, shiftID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.SuccessWithMeta(ctx, c, item, map[string]interface{}{"duplicate": duplicate})
}

// StartBreak 开始休息
// POST /v1/shifts/:shift_id/breaks
func StartBreak(ctx context.Context, c *app.RequestContext) {
	actor, ok := middleware.CurrentActor(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	shiftID, err := service.ParseID(c.Param("shift_id"))
	if err != nil {
		response.Error(ctx, c, pkgerrors.ShiftNotFound)
		return
	}

	var req dto.StartBreakRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	item, err := service.Shift().StartBreak(ctx, actor, shiftID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, item)
}

// EndBreak 结束休息
// POST /v1/shifts/:shift_id/breaks/:break_id/end
func EndBreak(ctx context.Context, c *app.RequestContext) {
	actor, ok := middleware.CurrentActor(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	shiftID, err := service.ParseID(c.Param("shift_id"))
	if err != nil {
		response.Error(ctx, c, pkgerrors.ShiftNotFound)
		return
	}
	breakID, err := service.ParseID(c.Param("break_id"))
	if err != nil {
		response.Error(ctx, c, pkgerrors.BreakNotFound)
		return
	}

	var req dto.EndBreakRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	item, err := service.Shift().EndBreak(ctx, actor, shiftID, breakID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, item)
}

// ReportIncident 巡逻事件上报
// POST /v1/shifts/:shift_id/incidents
func ReportIncident(ctx context.Context, c *app.RequestContext) {
	actor, ok := middleware.CurrentActor(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	shiftID, err := service.ParseID(c.Param("shift_id"))
	if err != nil {
		response.Error(ctx, c, pkgerrors.ShiftNotFound)
		return
	}

	var req dto.ReportIncidentRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	item, err := service.Shift().ReportIncident(ctx, actor, shiftID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, item)
}
