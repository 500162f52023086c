package repository

import (
	"context"
	"time"

	"GuardTrack/internal/model"
)

// 数据访问抽象。service 层只面向这些接口写业务，
// 事务内外统一经 Repos 拿到具体仓库，测试里用内存假实现替换。

// ShiftRepo 班次
type ShiftRepo interface {
	Create(ctx context.Context, s *model.Shift) error
	Save(ctx context.Context, s *model.Shift) error
	Get(ctx context.Context, publicID int64) (*model.Shift, error)
	// GetForUpdate 行锁读取，只在事务内使用
	GetForUpdate(ctx context.Context, publicID int64) (*model.Shift, error)
	List(ctx context.Context, guardID int64, status string, cursor int64, limit int) ([]*model.Shift, error)
	// ListNearbyByGuard 返回 guard 在 [from, to) 内有交集的班次，
	// 窗口由调用方按需外扩（冲突检测的 turnaround 检查）
	ListNearbyByGuard(ctx context.Context, guardID int64, from, to time.Time, excludeID int64) ([]*model.Shift, error)
	ListNearbyBySite(ctx context.Context, siteID int64, from, to time.Time, excludeID int64) ([]*model.Shift, error)
	// ListScheduledBefore no-show 扫描：仍是 SCHEDULED 且开始时间早于 deadline
	ListScheduledBefore(ctx context.Context, deadline time.Time, limit int) ([]*model.Shift, error)
}

// BreakRepo 休息记录
type BreakRepo interface {
	Create(ctx context.Context, b *model.ShiftBreak) error
	Save(ctx context.Context, b *model.ShiftBreak) error
	ListByShift(ctx context.Context, shiftID int64) ([]*model.ShiftBreak, error)
	// GetOpen 返回未关闭的休息，没有则返回 (nil, nil)
	GetOpen(ctx context.Context, shiftID int64) (*model.ShiftBreak, error)
}

// IncidentRepo 巡逻事件
type IncidentRepo interface {
	Create(ctx context.Context, in *model.Incident) error
	ListByShift(ctx context.Context, shiftID int64) ([]*model.Incident, error)
}

// GeofenceRepo 围栏配置与事件
type GeofenceRepo interface {
	ListZones(ctx context.Context, activeOnly bool) ([]*model.GeofenceZone, error)
	ListRules(ctx context.Context, activeOnly bool) ([]*model.AutomationRule, error)
	CreateEvent(ctx context.Context, ev *model.GeofenceEvent) error
	// PruneEvents 只保留每个 guard 最近 keep 条事件
	PruneEvents(ctx context.Context, guardID int64, keep int) error
	CreatePatrolLog(ctx context.Context, pl *model.PatrolLog) error
	ListPatrolLogsByShift(ctx context.Context, shiftID int64) ([]*model.PatrolLog, error)
}

// Repos 一次事务（或一次只读视图）内可用的仓库集合
type Repos interface {
	Shifts() ShiftRepo
	Breaks() BreakRepo
	Incidents() IncidentRepo
	Geofences() GeofenceRepo
}

// TxRunner 事务边界。InTx 中的 fn 返回错误即整体回滚。
type TxRunner interface {
	InTx(ctx context.Context, fn func(r Repos) error) error
	// View 非事务只读视图
	View() Repos
}
