package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"GuardTrack/internal/handler"
	"GuardTrack/internal/middleware"
)

func Register(h *server.Hertz) {

	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.OpenTelemetryMiddleware())

	// 健康检查，agent 的连通性探测也打这里
	h.GET("/ping", handler.Ping)

	v1 := h.Group("/v1")

	// 凭证签发（管理员）
	auth := v1.Group("/auth")
	auth.Use(middleware.AuthMiddleware())
	{
		auth.POST("/token", handler.IssueToken)
	}

	// 班次生命周期
	shifts := v1.Group("/shifts")
	shifts.Use(middleware.AuthMiddleware())
	shifts.Use(middleware.GeneralRateLimitMiddleware())
	{
		shifts.POST("", middleware.AdminRateLimitMiddleware(), handler.CreateShift)
		shifts.POST("/conflicts", handler.CheckShiftConflicts)
		shifts.GET("", handler.ListShifts)
		shifts.GET("/:shift_id", handler.GetShift)
		shifts.POST("/:shift_id/assign", middleware.AdminRateLimitMiddleware(), handler.AssignGuard)
		shifts.POST("/:shift_id/cancel", middleware.AdminRateLimitMiddleware(), handler.CancelShift)
		shifts.POST("/:shift_id/check-in", handler.CheckInShift)
		shifts.POST("/:shift_id/check-out", handler.CheckOutShift)
		shifts.POST("/:shift_id/breaks", handler.StartBreak)
		shifts.POST("/:shift_id/breaks/:break_id/end", handler.EndBreak)
		shifts.POST("/:shift_id/incidents", handler.ReportIncident)
		shifts.GET("/:shift_id/patrol-logs", handler.ListPatrolLogs)
	}

	// 离线队列回放，设备重连后会突发补投，限流窗口单独放宽
	sync := v1.Group("/sync")
	sync.Use(middleware.AuthMiddleware())
	sync.Use(middleware.SyncRateLimitMiddleware())
	{
		sync.POST("/actions", handler.ApplySyncAction)
	}

	// 紧急求助不限流
	emergency := v1.Group("/emergency")
	emergency.Use(middleware.AuthMiddleware())
	{
		emergency.POST("", handler.RaiseEmergency)
	}

	// 围栏配置下发
	geofences := v1.Group("/geofences")
	geofences.Use(middleware.AuthMiddleware())
	{
		geofences.GET("", handler.ListGeofences)
		geofences.GET("/rules", handler.ListGeofenceRules)
	}
}
