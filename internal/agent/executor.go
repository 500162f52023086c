package agent

import (
	"strconv"

	"go.uber.org/zap"

	"GuardTrack/internal/automation"
	"GuardTrack/internal/geofence"
	"GuardTrack/internal/model"
	"GuardTrack/internal/model/dto"
	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/logger"
)

// queueExecutor 把规则命中翻译成离线队列条目。
// 设备可能正处于离线，动作一律先入队，由队列负责送达。
type queueExecutor struct {
	agent *Agent
}

func (e *queueExecutor) Execute(rule automation.Rule, ev geofence.Event) error {
	zoneID := strconv.FormatInt(rule.ZoneID, 10)

	switch rule.Action {
	case model.ActionAutoCheckIn:
		payload := dto.ZoneActionPayload{
			ZoneID:    zoneID,
			Location:  ev.Fix.Location,
			Timestamp: ev.OccurredAt,
		}
		if shiftID, ok := e.agent.CurrentShiftID(); ok {
			payload.ShiftID = &shiftID
		}
		_, err := e.agent.queue.Enqueue(dto.SyncActionAutoCheckIn, payload)
		if err == nil {
			e.agent.markOptimisticStatus(model.ShiftStatusInProgress, ev.OccurredAt)
		}
		return err

	case model.ActionAutoCheckOut:
		shiftID, ok := e.agent.CurrentShiftID()
		if !ok {
			// 没有进行中的班次，自动下岗无从谈起
			logger.Logger.Warn("Auto check-out skipped, no current shift",
				zap.Int64("rule_id", rule.ID),
			)
			return pkgerrors.ShiftNotFound
		}
		_, err := e.agent.queue.Enqueue(dto.SyncActionCheckOut, dto.CheckOutPayload{
			ShiftID:   shiftID,
			Location:  ev.Fix.Location,
			Timestamp: ev.OccurredAt,
		})
		if err == nil {
			e.agent.markOptimisticStatus(model.ShiftStatusCompleted, ev.OccurredAt)
		}
		return err

	case model.ActionPatrolPoint:
		payload := dto.ZoneActionPayload{
			ZoneID:    zoneID,
			Location:  ev.Fix.Location,
			Timestamp: ev.OccurredAt,
		}
		if shiftID, ok := e.agent.CurrentShiftID(); ok {
			payload.ShiftID = &shiftID
		}
		_, err := e.agent.queue.Enqueue(dto.SyncActionPatrolPoint, payload)
		return err

	default:
		return pkgerrors.UnknownQueuedAction
	}
}

func (e *queueExecutor) RequestConfirmation(rule automation.Rule, ev geofence.Event) {
	e.agent.addPendingConfirmation(rule, ev)
}

func (e *queueExecutor) Alert(rule automation.Rule, ev geofence.Event) {
	e.agent.notify(rule, ev)
}
