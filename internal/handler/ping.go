package handler

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
)

// Ping 健康检查
// GET /ping
func Ping(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, map[string]string{"message": "pong"})
}
