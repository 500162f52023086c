package service

import (
	"context"
	"time"

	"gorm.io/gorm"

	"GuardTrack/internal/model"
	"GuardTrack/internal/repository"
)

// 内存版仓库，给 service 测试用。不模拟真实隔离级别，
// 单测里顺序执行已足够。

type memStore struct {
	shifts     []*model.Shift
	breaks     []*model.ShiftBreak
	incidents  []*model.Incident
	zones      []*model.GeofenceZone
	rules      []*model.AutomationRule
	events     []*model.GeofenceEvent
	patrolLogs []*model.PatrolLog

	nextRowID int64
}

type memRunner struct {
	store *memStore
}

func newMemRunner() *memRunner {
	return &memRunner{store: &memStore{}}
}

func (r *memRunner) InTx(_ context.Context, fn func(repository.Repos) error) error {
	return fn(&memRepos{store: r.store})
}

func (r *memRunner) View() repository.Repos {
	return &memRepos{store: r.store}
}

type memRepos struct {
	store *memStore
}

func (r *memRepos) Shifts() repository.ShiftRepo       { return &memShifts{store: r.store} }
func (r *memRepos) Breaks() repository.BreakRepo       { return &memBreaks{store: r.store} }
func (r *memRepos) Incidents() repository.IncidentRepo { return &memIncidents{store: r.store} }
func (r *memRepos) Geofences() repository.GeofenceRepo { return &memGeofences{store: r.store} }

type memShifts struct {
	store *memStore
}

func (m *memShifts) Create(_ context.Context, s *model.Shift) error {
	m.store.nextRowID++
	s.ID = m.store.nextRowID
	cp := *s
	m.store.shifts = append(m.store.shifts, &cp)
	return nil
}

func (m *memShifts) Save(_ context.Context, s *model.Shift) error {
	for i, existing := range m.store.shifts {
		if existing.ID == s.ID {
			cp := *s
			m.store.shifts[i] = &cp
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *memShifts) Get(_ context.Context, publicID int64) (*model.Shift, error) {
	for _, s := range m.store.shifts {
		if s.PublicID == publicID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memShifts) GetForUpdate(ctx context.Context, publicID int64) (*model.Shift, error) {
	return m.Get(ctx, publicID)
}

func (m *memShifts) List(_ context.Context, guardID int64, status string, cursor int64, limit int) ([]*model.Shift, error) {
	var out []*model.Shift
	for i := len(m.store.shifts) - 1; i >= 0; i-- {
		s := m.store.shifts[i]
		if s.GuardID == nil || *s.GuardID != guardID {
			continue
		}
		if status != "" && string(s.Status) != status {
			continue
		}
		if cursor > 0 && s.ID >= cursor {
			continue
		}
		cp := *s
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memShifts) ListNearbyByGuard(_ context.Context, guardID int64, from, to time.Time, excludeID int64) ([]*model.Shift, error) {
	var out []*model.Shift
	for _, s := range m.store.shifts {
		if s.GuardID == nil || *s.GuardID != guardID || s.PublicID == excludeID {
			continue
		}
		if s.Status == model.ShiftStatusCancelled {
			continue
		}
		if s.ScheduledEnd.After(from) && s.ScheduledStart.Before(to) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memShifts) ListNearbyBySite(_ context.Context, siteID int64, from, to time.Time, excludeID int64) ([]*model.Shift, error) {
	var out []*model.Shift
	for _, s := range m.store.shifts {
		if s.SiteID == nil || *s.SiteID != siteID || s.PublicID == excludeID {
			continue
		}
		if s.Status == model.ShiftStatusCancelled {
			continue
		}
		if s.ScheduledEnd.After(from) && s.ScheduledStart.Before(to) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memShifts) ListScheduledBefore(_ context.Context, deadline time.Time, limit int) ([]*model.Shift, error) {
	var out []*model.Shift
	for _, s := range m.store.shifts {
		if s.Status != model.ShiftStatusScheduled || !s.ScheduledStart.Before(deadline) {
			continue
		}
		cp := *s
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type memBreaks struct {
	store *memStore
}

func (m *memBreaks) Create(_ context.Context, b *model.ShiftBreak) error {
	m.store.nextRowID++
	b.ID = m.store.nextRowID
	cp := *b
	m.store.breaks = append(m.store.breaks, &cp)
	return nil
}

func (m *memBreaks) Save(_ context.Context, b *model.ShiftBreak) error {
	for i, existing := range m.store.breaks {
		if existing.ID == b.ID {
			cp := *b
			m.store.breaks[i] = &cp
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *memBreaks) ListByShift(_ context.Context, shiftID int64) ([]*model.ShiftBreak, error) {
	var out []*model.ShiftBreak
	for _, b := range m.store.breaks {
		if b.ShiftID == shiftID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memBreaks) GetOpen(_ context.Context, shiftID int64) (*model.ShiftBreak, error) {
	for _, b := range m.store.breaks {
		if b.ShiftID == shiftID && b.EndTime == nil {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

type memIncidents struct {
	store *memStore
}

func (m *memIncidents) Create(_ context.Context, in *model.Incident) error {
	m.store.nextRowID++
	in.ID = m.store.nextRowID
	cp := *in
	m.store.incidents = append(m.store.incidents, &cp)
	return nil
}

func (m *memIncidents) ListByShift(_ context.Context, shiftID int64) ([]*model.Incident, error) {
	var out []*model.Incident
	for _, in := range m.store.incidents {
		if in.ShiftID == shiftID {
			cp := *in
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memGeofences struct {
	store *memStore
}

func (m *memGeofences) ListZones(_ context.Context, activeOnly bool) ([]*model.GeofenceZone, error) {
	var out []*model.GeofenceZone
	for _, z := range m.store.zones {
		if activeOnly && !z.Active {
			continue
		}
		cp := *z
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memGeofences) ListRules(_ context.Context, activeOnly bool) ([]*model.AutomationRule, error) {
	var out []*model.AutomationRule
	for _, r := range m.store.rules {
		if activeOnly && !r.Active {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memGeofences) CreateEvent(_ context.Context, ev *model.GeofenceEvent) error {
	m.store.nextRowID++
	ev.ID = m.store.nextRowID
	cp := *ev
	m.store.events = append(m.store.events, &cp)
	return nil
}

func (m *memGeofences) PruneEvents(_ context.Context, guardID int64, keep int) error {
	var mine []*model.GeofenceEvent
	for _, ev := range m.store.events {
		if ev.GuardID == guardID {
			mine = append(mine, ev)
		}
	}
	if len(mine) <= keep {
		return nil
	}
	drop := make(map[int64]bool, len(mine)-keep)
	for _, ev := range mine[:len(mine)-keep] {
		drop[ev.ID] = true
	}
	var kept []*model.GeofenceEvent
	for _, ev := range m.store.events {
		if !drop[ev.ID] {
			kept = append(kept, ev)
		}
	}
	m.store.events = kept
	return nil
}

func (m *memGeofences) CreatePatrolLog(_ context.Context, pl *model.PatrolLog) error {
	m.store.nextRowID++
	pl.ID = m.store.nextRowID
	cp := *pl
	m.store.patrolLogs = append(m.store.patrolLogs, &cp)
	return nil
}

func (m *memGeofences) ListPatrolLogsByShift(_ context.Context, shiftID int64) ([]*model.PatrolLog, error) {
	var out []*model.PatrolLog
	for _, pl := range m.store.patrolLogs {
		if pl.ShiftID != nil && *pl.ShiftID == shiftID {
			cp := *pl
			out = append(out, &cp)
		}
	}
	return out, nil
}

// sequentialIDs 测试用的确定性 ID 发号器
func sequentialIDs() func() (int64, error) {
	var next int64 = 1000
	return func() (int64, error) {
		next++
		return next, nil
	}
}
