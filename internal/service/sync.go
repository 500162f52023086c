package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"GuardTrack/internal/cache"
	"GuardTrack/internal/model/dto"
	"GuardTrack/internal/realtime"
	"GuardTrack/internal/shift"
	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/logger"
)

// SyncService 离线队列动作的服务端落地。
// 每个动作 ID 只执行一次：先抢去重标记，抢到的执行，
// 没抢到的按 duplicate 吸收。执行失败回滚标记，客户端重试还能再来。

// ActionDedup 动作去重标记，生产实现走 Redis SETNX
type ActionDedup interface {
	TryMark(ctx context.Context, actionID string) (bool, error)
	Unmark(ctx context.Context, actionID string) error
}

type redisDedup struct{}

func (redisDedup) TryMark(ctx context.Context, actionID string) (bool, error) {
	return cache.TryMarkActionProcessed(ctx, actionID)
}

func (redisDedup) Unmark(ctx context.Context, actionID string) error {
	return cache.UnmarkAction(ctx, actionID)
}

type SyncService struct {
	shifts    *ShiftService
	geofences *GeofenceService
	dedup     ActionDedup

	notifyEmergency func(realtime.EmergencyAlert)
}

var (
	syncService *SyncService
	syncOnce    sync.Once
)

func Sync() *SyncService {
	syncOnce.Do(func() {
		syncService = NewSyncService(Shift(), Geofence(), redisDedup{}, realtime.NotifyEmergency)
	})
	return syncService
}

func NewSyncService(
	shifts *ShiftService,
	geofences *GeofenceService,
	dedup ActionDedup,
	notifyEmergency func(realtime.EmergencyAlert),
) *SyncService {
	return &SyncService{
		shifts:          shifts,
		geofences:       geofences,
		dedup:           dedup,
		notifyEmergency: notifyEmergency,
	}
}

// Apply 执行一条排队动作。返回的 Duplicate 为 true 表示该动作
// 之前已经执行过（或被状态机幂等吸收），客户端应视为成功。
func (s *SyncService) Apply(ctx context.Context, actor shift.Actor, req dto.SyncActionRequest) (*dto.SyncActionData, error) {
	if req.ID == "" {
		return nil, pkgerrors.UnknownQueuedAction
	}

	data := &dto.SyncActionData{ID: req.ID, Action: req.Action}

	first, err := s.dedup.TryMark(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark action: %w", err)
	}
	if !first {
		data.Duplicate = true
		return data, nil
	}

	duplicate, err := s.dispatch(ctx, actor, req)
	if err != nil {
		if unmarkErr := s.dedup.Unmark(ctx, req.ID); unmarkErr != nil {
			logger.Logger.Error("Failed to unmark action",
				zap.String("action_id", req.ID), zap.Error(unmarkErr))
		}
		return nil, err
	}

	data.Duplicate = duplicate
	logger.Logger.Info("Queued action applied",
		zap.String("action_id", req.ID),
		zap.String("action", req.Action),
		zap.Bool("duplicate", duplicate),
	)
	return data, nil
}

func (s *SyncService) dispatch(ctx context.Context, actor shift.Actor, req dto.SyncActionRequest) (duplicate bool, err error) {
	switch req.Action {
	case dto.SyncActionCheckIn:
		var p dto.CheckInPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return false, pkgerrors.UnknownQueuedAction
		}
		shiftID, err := ParseID(p.ShiftID)
		if err != nil {
			return false, pkgerrors.ShiftNotFound
		}
		_, duplicate, err := s.shifts.CheckIn(ctx, actor, shiftID, dto.CheckInRequest{
			Location: p.Location, Timestamp: p.Timestamp,
		})
		return duplicate, err

	case dto.SyncActionCheckOut:
		var p dto.CheckOutPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return false, pkgerrors.UnknownQueuedAction
		}
		shiftID, err := ParseID(p.ShiftID)
		if err != nil {
			return false, pkgerrors.ShiftNotFound
		}
		_, duplicate, err := s.shifts.CheckOut(ctx, actor, shiftID, dto.CheckOutRequest{
			Location: p.Location, Timestamp: p.Timestamp, Notes: p.Notes,
		})
		return duplicate, err

	case dto.SyncActionBreakStart:
		var p dto.BreakStartPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return false, pkgerrors.UnknownQueuedAction
		}
		shiftID, err := ParseID(p.ShiftID)
		if err != nil {
			return false, pkgerrors.ShiftNotFound
		}
		_, err = s.shifts.StartBreak(ctx, actor, shiftID, dto.StartBreakRequest{
			BreakType: p.BreakType, Location: p.Location, Timestamp: p.Timestamp,
		})
		return false, err

	case dto.SyncActionBreakEnd:
		var p dto.BreakEndPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return false, pkgerrors.UnknownQueuedAction
		}
		shiftID, err := ParseID(p.ShiftID)
		if err != nil {
			return false, pkgerrors.ShiftNotFound
		}
		var breakID int64
		if p.BreakID != "" {
			if breakID, err = ParseID(p.BreakID); err != nil {
				return false, pkgerrors.BreakNotFound
			}
		}
		_, err = s.shifts.EndBreak(ctx, actor, shiftID, breakID, dto.EndBreakRequest{
			Location: p.Location, Timestamp: p.Timestamp,
		})
		return false, err

	case dto.SyncActionIncident:
		var p dto.IncidentPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return false, pkgerrors.UnknownQueuedAction
		}
		shiftID, err := ParseID(p.ShiftID)
		if err != nil {
			return false, pkgerrors.ShiftNotFound
		}
		_, err = s.shifts.ReportIncident(ctx, actor, shiftID, dto.ReportIncidentRequest{
			Type: p.Type, Severity: p.Severity, Title: p.Title,
			Description: p.Description, Location: p.Location,
		})
		return false, err

	case dto.SyncActionAutoCheckIn:
		var p dto.ZoneActionPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return false, pkgerrors.UnknownQueuedAction
		}
		return s.applyAutoCheckIn(ctx, actor, p)

	case dto.SyncActionPatrolPoint:
		var p dto.ZoneActionPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return false, pkgerrors.UnknownQueuedAction
		}
		_, err := s.geofences.RecordPatrolPoint(ctx, actor.GuardID, p)
		return false, err

	case dto.SyncActionEmergency:
		var p dto.EmergencyPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil {
			return false, pkgerrors.UnknownQueuedAction
		}
		return false, s.applyEmergency(actor, p)

	default:
		return false, pkgerrors.UnknownQueuedAction
	}
}

// applyAutoCheckIn 自动打卡可能没带班次 ID（规则触发时 agent 还没
// 拿到排班），此时取触发时刻正在进行的排班
func (s *SyncService) applyAutoCheckIn(ctx context.Context, actor shift.Actor, p dto.ZoneActionPayload) (bool, error) {
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var shiftID int64
	if p.ShiftID != nil {
		id, err := ParseID(*p.ShiftID)
		if err != nil {
			return false, pkgerrors.ShiftNotFound
		}
		shiftID = id
	} else {
		covering, err := s.shifts.runner.View().Shifts().ListNearbyByGuard(ctx, actor.GuardID, ts, ts.Add(time.Nanosecond), 0)
		if err != nil {
			return false, fmt.Errorf("failed to resolve covering shift: %w", err)
		}
		if len(covering) == 0 {
			return false, pkgerrors.ShiftNotFound
		}
		shiftID = covering[0].PublicID
	}

	_, duplicate, err := s.shifts.CheckIn(ctx, actor, shiftID, dto.CheckInRequest{
		Location: p.Location, Timestamp: ts,
	})
	return duplicate, err
}

func (s *SyncService) applyEmergency(actor shift.Actor, p dto.EmergencyPayload) error {
	if err := p.Location.Validate(); err != nil {
		return err
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	logger.Logger.Error("EMERGENCY raised",
		zap.Int64("guard_id", actor.GuardID),
		zap.Float64("lat", p.Location.Latitude),
		zap.Float64("lon", p.Location.Longitude),
	)

	if s.notifyEmergency != nil {
		s.notifyEmergency(realtime.EmergencyAlert{
			GuardID:  formatID(actor.GuardID),
			Location: p.Location,
			Message:  p.Message,
			RaisedAt: ts,
		})
	}
	return nil
}
