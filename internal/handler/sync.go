package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"GuardTrack/internal/middleware"
	"GuardTrack/internal/model/dto"
	"GuardTrack/internal/service"
	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/response"
)

// ApplySyncAction 落地一条离线队列动作，重复投递幂等吸收
// POST /v1/sync/actions
func ApplySyncAction(ctx context.Context, c *app.RequestContext) {
	actor, ok := middleware.CurrentActor(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	var req dto.SyncActionRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	data, err := service.Sync().Apply(ctx, actor, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, data)
}

// RaiseEmergency 紧急求助，绕过队列直接投递
// POST /v1/emergency
func RaiseEmergency(ctx context.Context, c *app.RequestContext) {
	actor, ok := middleware.CurrentActor(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	var payload dto.EmergencyPayload
	if err := c.Bind(&payload); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		response.BindError(ctx, c, err)
		return
	}

	// 紧急求助没有客户端生成的动作 ID，按 guard + 秒合成一个，
	// 同一秒内的连击当同一次处理
	actionID := fmt.Sprintf("emergency:%d:%s", actor.GuardID, time.Now().Format("20060102150405"))
	data, err := service.Sync().Apply(ctx, actor, dto.SyncActionRequest{
		ID:      actionID,
		Action:  dto.SyncActionEmergency,
		Payload: body,
	})
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, data)
}
