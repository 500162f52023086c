package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"GuardTrack/internal/middleware"
	"GuardTrack/internal/service"
	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/response"
	"GuardTrack/pkg/token"
)

// IssueTokenRequest 管理员给设备签发 guard token
type IssueTokenRequest struct {
	GuardID string `json:"guard_id"`
	Role    string `json:"role"`
}

type IssueTokenData struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// IssueToken 设备部署时由管理员签发凭证，写进 agent 配置
// POST /v1/auth/token
func IssueToken(ctx context.Context, c *app.RequestContext) {
	actor, ok := middleware.CurrentActor(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}
	if !actor.Admin {
		response.Error(ctx, c, pkgerrors.AdminRequired)
		return
	}

	var req IssueTokenRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	if _, err := service.ParseID(req.GuardID); err != nil {
		response.Error(ctx, c, err)
		return
	}
	role := req.Role
	if role != token.RoleAdmin {
		role = token.RoleGuard
	}

	accessToken, expiresIn, err := token.GenerateGuardToken(req.GuardID, role)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, IssueTokenData{
		AccessToken: accessToken,
		ExpiresIn:   expiresIn,
	})
}
