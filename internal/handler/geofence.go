package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"GuardTrack/internal/middleware"
	"GuardTrack/internal/service"
	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/response"
)

// ListGeofences 启用中的围栏配置，agent 启动时拉取
// GET /v1/geofences
func ListGeofences(ctx context.Context, c *app.RequestContext) {
	items, err := service.Geofence().ListZones(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, items)
}

// ListGeofenceRules 启用中的自动化规则
// GET /v1/geofences/rules
func ListGeofenceRules(ctx context.Context, c *app.RequestContext) {
	items, err := service.Geofence().ListRules(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, items)
}

// ListPatrolLogs 班次的巡逻打点记录
// GET /v1/shifts/:shift_id/patrol-logs
func ListPatrolLogs(ctx context.Context, c *app.RequestContext) {
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

	items, err := service.Geofence().ListPatrolLogs(ctx, actor.GuardID, actor.Admin, shiftID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, items)
}
