package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"GuardTrack/internal/model"
	"GuardTrack/storage/database"
)

// gorm 实现。Repos 只是事务句柄的薄包装，本身无状态。

// NewRunner 基于全局数据库连接的事务执行器
func NewRunner() TxRunner {
	return &gormRunner{}
}

type gormRunner struct{}

func (gormRunner) InTx(ctx context.Context, fn func(r Repos) error) error {
	return database.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(gormRepos{db: tx})
	})
}

func (gormRunner) View() Repos {
	return gormRepos{db: database.DB()}
}

type gormRepos struct {
	db *gorm.DB
}

func (r gormRepos) Shifts() ShiftRepo       { return gormShifts{db: r.db} }
func (r gormRepos) Breaks() BreakRepo       { return gormBreaks{db: r.db} }
func (r gormRepos) Incidents() IncidentRepo { return gormIncidents{db: r.db} }
func (r gormRepos) Geofences() GeofenceRepo { return gormGeofences{db: r.db} }

type gormShifts struct {
	db *gorm.DB
}

func (g gormShifts) Create(ctx context.Context, s *model.Shift) error {
	return g.db.WithContext(ctx).Create(s).Error
}

func (g gormShifts) Save(ctx context.Context, s *model.Shift) error {
	return g.db.WithContext(ctx).Save(s).Error
}

func (g gormShifts) Get(ctx context.Context, publicID int64) (*model.Shift, error) {
	var s model.Shift
	err := g.db.WithContext(ctx).Where("public_id = ?", publicID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (g gormShifts) GetForUpdate(ctx context.Context, publicID int64) (*model.Shift, error) {
	var s model.Shift
	err := g.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("public_id = ?", publicID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (g gormShifts) List(ctx context.Context, guardID int64, status string, cursor int64, limit int) ([]*model.Shift, error) {
	q := g.db.WithContext(ctx).Where("guard_id = ?", guardID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if cursor > 0 {
		q = q.Where("id < ?", cursor)
	}

	var shifts []*model.Shift
	err := q.Order("id DESC").Limit(limit).Find(&shifts).Error
	return shifts, err
}

func (g gormShifts) ListNearbyByGuard(ctx context.Context, guardID int64, from, to time.Time, excludeID int64) ([]*model.Shift, error) {
	q := g.db.WithContext(ctx).
		Where("guard_id = ?", guardID).
		Where("scheduled_end > ? AND scheduled_start < ?", from, to).
		Where("status <> ?", string(model.ShiftStatusCancelled))
	if excludeID > 0 {
		q = q.Where("public_id <> ?", excludeID)
	}

	var shifts []*model.Shift
	err := q.Order("scheduled_start").Find(&shifts).Error
	return shifts, err
}

func (g gormShifts) ListNearbyBySite(ctx context.Context, siteID int64, from, to time.Time, excludeID int64) ([]*model.Shift, error) {
	q := g.db.WithContext(ctx).
		Where("site_id = ?", siteID).
		Where("scheduled_end > ? AND scheduled_start < ?", from, to).
		Where("status <> ?", string(model.ShiftStatusCancelled))
	if excludeID > 0 {
		q = q.Where("public_id <> ?", excludeID)
	}

	var shifts []*model.Shift
	err := q.Order("scheduled_start").Find(&shifts).Error
	return shifts, err
}

func (g gormShifts) ListScheduledBefore(ctx context.Context, deadline time.Time, limit int) ([]*model.Shift, error) {
	var shifts []*model.Shift
	err := g.db.WithContext(ctx).
		Where("status = ?", model.ShiftStatusScheduled).
		Where("scheduled_start < ?", deadline).
		Order("scheduled_start").
		Limit(limit).
		Find(&shifts).Error
	return shifts, err
}

type gormBreaks struct {
	db *gorm.DB
}

func (g gormBreaks) Create(ctx context.Context, b *model.ShiftBreak) error {
	return g.db.WithContext(ctx).Create(b).Error
}

func (g gormBreaks) Save(ctx context.Context, b *model.ShiftBreak) error {
	return g.db.WithContext(ctx).Save(b).Error
}

func (g gormBreaks) ListByShift(ctx context.Context, shiftID int64) ([]*model.ShiftBreak, error) {
	var breaks []*model.ShiftBreak
	err := g.db.WithContext(ctx).
		Where("shift_id = ?", shiftID).
		Order("start_time").
		Find(&breaks).Error
	return breaks, err
}

func (g gormBreaks) GetOpen(ctx context.Context, shiftID int64) (*model.ShiftBreak, error) {
	var b model.ShiftBreak
	err := g.db.WithContext(ctx).
		Where("shift_id = ? AND end_time IS NULL", shiftID).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

type gormIncidents struct {
	db *gorm.DB
}

func (g gormIncidents) Create(ctx context.Context, in *model.Incident) error {
	return g.db.WithContext(ctx).Create(in).Error
}

func (g gormIncidents) ListByShift(ctx context.Context, shiftID int64) ([]*model.Incident, error) {
	var incidents []*model.Incident
	err := g.db.WithContext(ctx).
		Where("shift_id = ?", shiftID).
		Order("reported_at").
		Find(&incidents).Error
	return incidents, err
}

type gormGeofences struct {
	db *gorm.DB
}

func (g gormGeofences) ListZones(ctx context.Context, activeOnly bool) ([]*model.GeofenceZone, error) {
	q := g.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("active = true")
	}

	var zones []*model.GeofenceZone
	err := q.Order("id").Find(&zones).Error
	return zones, err
}

func (g gormGeofences) ListRules(ctx context.Context, activeOnly bool) ([]*model.AutomationRule, error) {
	q := g.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("active = true")
	}

	var rules []*model.AutomationRule
	err := q.Order("id").Find(&rules).Error
	return rules, err
}

func (g gormGeofences) CreateEvent(ctx context.Context, ev *model.GeofenceEvent) error {
	return g.db.WithContext(ctx).Create(ev).Error
}

func (g gormGeofences) PruneEvents(ctx context.Context, guardID int64, keep int) error {
	// 按时间倒序保留 keep 条，其余删除
	sub := g.db.Model(&model.GeofenceEvent{}).
		Select("id").
		Where("guard_id = ?", guardID).
		Order("occurred_at DESC").
		Limit(keep)
	return g.db.WithContext(ctx).
		Where("guard_id = ? AND id NOT IN (?)", guardID, sub).
		Delete(&model.GeofenceEvent{}).Error
}

func (g gormGeofences) CreatePatrolLog(ctx context.Context, pl *model.PatrolLog) error {
	return g.db.WithContext(ctx).Create(pl).Error
}

func (g gormGeofences) ListPatrolLogsByShift(ctx context.Context, shiftID int64) ([]*model.PatrolLog, error) {
	var logs []*model.PatrolLog
	err := g.db.WithContext(ctx).
		Where("shift_id = ?", shiftID).
		Order("logged_at").
		Find(&logs).Error
	return logs, err
}
