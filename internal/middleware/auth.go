package middleware

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"

	"GuardTrack/internal/shift"
	"GuardTrack/pkg/token"
)

const (
	IdentityKey = token.IdentityKey
	roleCtxKey  = "guard_role"
)

var (
	authMiddleware *jwt.HertzJWTMiddleware
)

func initAuthMiddleware() error {
	// 使用 token 包中共享的生成器
	sharedGenerator := token.GetGenerator()
	if sharedGenerator == nil {
		return fmt.Errorf("token generator not initialized, call token.Init() first")
	}

	authMiddleware = &jwt.HertzJWTMiddleware{
		Realm:       "GuardTrack API",
		Key:         sharedGenerator.Key,
		Timeout:     sharedGenerator.Timeout,
		MaxRefresh:  sharedGenerator.MaxRefresh,
		IdentityKey: sharedGenerator.IdentityKey,
		TimeFunc:    sharedGenerator.TimeFunc,

		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)

			// role 顺便放进请求上下文，后面的 handler 判权限用
			if role, ok := claims[token.RoleKey].(string); ok {
				c.Set(roleCtxKey, role)
			}

			gid, ok := claims[IdentityKey].(string)
			if !ok {
				if gidFloat, ok := claims[IdentityKey].(float64); ok {
					gid = fmt.Sprintf("%.0f", gidFloat)
				} else {
					return nil
				}
			}
			return gid
		},

		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			c.JSON(code, map[string]interface{}{
				"error": map[string]interface{}{
					"code":    "UNAUTHORIZED",
					"message": message,
				},
			})
		},

		TokenLookup:   "header: Authorization, query: token",
		TokenHeadName: "Bearer",
	}

	return nil
}

func AuthMiddleware() app.HandlerFunc {
	if authMiddleware == nil {
		panic("AuthMiddleware not initialized, call Init() first")
	}
	return authMiddleware.MiddlewareFunc()
}

// GetGuardID 从请求上下文中获取 guard ID（public_id，字符串格式）
func GetGuardID(ctx context.Context, c *app.RequestContext) (string, bool) {
	guardID, exists := c.Get(IdentityKey)
	if !exists {
		return "", false
	}

	id, ok := guardID.(string)
	if !ok {
		return "", false
	}

	return id, true
}

// IsAdmin 当前请求是否持管理员角色
func IsAdmin(ctx context.Context, c *app.RequestContext) bool {
	role, exists := c.Get(roleCtxKey)
	if !exists {
		return false
	}
	return role == token.RoleAdmin
}

// CurrentActor 把鉴权结果转成业务主体
func CurrentActor(ctx context.Context, c *app.RequestContext) (shift.Actor, bool) {
	raw, ok := GetGuardID(ctx, c)
	if !ok {
		return shift.Actor{}, false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return shift.Actor{}, false
	}

	return shift.Actor{GuardID: id, Admin: IsAdmin(ctx, c)}, true
}
