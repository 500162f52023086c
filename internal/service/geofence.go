package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"GuardTrack/config"
	"GuardTrack/internal/model"
	"GuardTrack/internal/model/dto"
	"GuardTrack/internal/realtime"
	"GuardTrack/internal/repository"
	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/logger"
	"GuardTrack/pkg/snowflake"
)

// GeofenceService 围栏配置下发与巡逻打点收录

// eventRetention 每个 guard 在服务端保留的围栏事件条数
const eventRetention = 500

type GeofenceService struct {
	runner repository.TxRunner
	ids    func() (int64, error)

	notifyEvent func(realtime.GeofenceEventNotice)
}

var (
	geofenceService *GeofenceService
	geofenceOnce    sync.Once
)

func Geofence() *GeofenceService {
	geofenceOnce.Do(func() {
		geofenceService = NewGeofenceService(
			repository.NewRunner(),
			snowflake.NextID,
			realtime.NotifyGeofenceEvent,
		)
	})
	return geofenceService
}

func NewGeofenceService(
	runner repository.TxRunner,
	ids func() (int64, error),
	notifyEvent func(realtime.GeofenceEventNotice),
) *GeofenceService {
	return &GeofenceService{runner: runner, ids: ids, notifyEvent: notifyEvent}
}

// ListZones 下发启用中的围栏配置给 agent
func (s *GeofenceService) ListZones(ctx context.Context) ([]dto.ZoneItem, error) {
	zones, err := s.runner.View().Geofences().ListZones(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}

	items := make([]dto.ZoneItem, 0, len(zones))
	for _, z := range zones {
		items = append(items, dto.ZoneItem{
			ID:           formatID(z.PublicID),
			Name:         z.Name,
			Latitude:     z.Center.Latitude,
			Longitude:    z.Center.Longitude,
			RadiusMeters: z.RadiusMeters,
			Kind:         string(z.Kind),
			Active:       z.Active,
		})
	}
	return items, nil
}

// ListRules 下发启用中的自动化规则给 agent
func (s *GeofenceService) ListRules(ctx context.Context) ([]dto.RuleItem, error) {
	rules, err := s.runner.View().Geofences().ListRules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	items := make([]dto.RuleItem, 0, len(rules))
	for _, r := range rules {
		item := dto.RuleItem{
			ID:     formatID(r.PublicID),
			ZoneID: formatID(r.ZoneID),
			Action: string(r.Action),
			Conditions: dto.RuleConditions{
				MinDwellMs:     r.MinDwellMs,
				MaxAccuracyM:   r.MaxAccuracyM,
				TimeOfDayStart: r.TimeOfDayStart,
				TimeOfDayEnd:   r.TimeOfDayEnd,
			},
			RequireConfirmation: r.RequireConfirmation,
			Active:              r.Active,
		}
		if r.DaysOfWeek != nil {
			item.Conditions.DaysOfWeek = parseDayList(*r.DaysOfWeek)
		}
		items = append(items, item)
	}
	return items, nil
}

func parseDayList(raw string) []int {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		out = append(out, n)
	}
	return out
}

// RecordPatrolPoint 收录一次巡逻打点：落 PatrolLog 和事件日志，
// 事件日志按保留窗口裁剪。打点不改变班次状态。
func (s *GeofenceService) RecordPatrolPoint(ctx context.Context, guardID int64, payload dto.ZoneActionPayload) (*dto.PatrolLogItem, error) {
	zoneID, err := ParseID(payload.ZoneID)
	if err != nil {
		return nil, pkgerrors.ZoneInvalid
	}
	if err := payload.Location.Validate(); err != nil {
		return nil, err
	}
	// 精度太差的打点没有证明价值，直接拒收
	if max := config.Cfg.LocationMaxAccuracyM; max > 0 && payload.Location.AccuracyMeters > max {
		return nil, pkgerrors.AccuracyInsufficient
	}

	ts := payload.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var shiftID *int64
	if payload.ShiftID != nil {
		id, err := ParseID(*payload.ShiftID)
		if err != nil {
			return nil, pkgerrors.ShiftNotFound
		}
		shiftID = &id
	}

	logID, err := s.ids()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate patrol log id: %w", err)
	}
	eventID, err := s.ids()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate event id: %w", err)
	}

	var item *dto.PatrolLogItem
	err = s.runner.InTx(ctx, func(r repository.Repos) error {
		pl := &model.PatrolLog{
			PublicID: logID,
			ZoneID:   zoneID,
			GuardID:  guardID,
			ShiftID:  shiftID,
			Location: payload.Location,
			LoggedAt: ts,
		}
		if err := r.Geofences().CreatePatrolLog(ctx, pl); err != nil {
			return fmt.Errorf("failed to create patrol log: %w", err)
		}

		ev := &model.GeofenceEvent{
			PublicID:   eventID,
			ZoneID:     zoneID,
			GuardID:    guardID,
			ShiftID:    shiftID,
			Type:       model.GeofenceEventPatrol,
			Location:   payload.Location,
			OccurredAt: ts,
		}
		if err := r.Geofences().CreateEvent(ctx, ev); err != nil {
			return fmt.Errorf("failed to create geofence event: %w", err)
		}
		if err := r.Geofences().PruneEvents(ctx, guardID, eventRetention); err != nil {
			return fmt.Errorf("failed to prune geofence events: %w", err)
		}

		item = &dto.PatrolLogItem{
			ID:       formatID(pl.PublicID),
			ZoneID:   formatID(pl.ZoneID),
			Location: pl.Location,
			LoggedAt: pl.LoggedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifyEvent != nil {
		s.notifyEvent(realtime.GeofenceEventNotice{
			ZoneID:     payload.ZoneID,
			GuardID:    formatID(guardID),
			Type:       string(model.GeofenceEventPatrol),
			Location:   payload.Location,
			OccurredAt: ts,
		})
	}

	logger.Logger.Info("Patrol point recorded",
		zap.Int64("guard_id", guardID),
		zap.Int64("zone_id", zoneID),
	)
	return item, nil
}

// ListPatrolLogs 班次的巡逻打点记录，非管理员只能看自己的班次
func (s *GeofenceService) ListPatrolLogs(ctx context.Context, guardID int64, admin bool, shiftPublicID int64) ([]dto.PatrolLogItem, error) {
	r := s.runner.View()

	m, err := r.Shifts().Get(ctx, shiftPublicID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ShiftNotFound
		}
		return nil, err
	}
	if !admin && (m.GuardID == nil || *m.GuardID != guardID) {
		return nil, pkgerrors.OwnershipMismatch
	}

	logs, err := r.Geofences().ListPatrolLogsByShift(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list patrol logs: %w", err)
	}

	items := make([]dto.PatrolLogItem, 0, len(logs))
	for _, pl := range logs {
		items = append(items, dto.PatrolLogItem{
			ID:       formatID(pl.PublicID),
			ZoneID:   formatID(pl.ZoneID),
			Location: pl.Location,
			LoggedAt: pl.LoggedAt,
		})
	}
	return items, nil
}
