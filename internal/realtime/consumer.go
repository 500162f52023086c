package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"GuardTrack/internal/cache"
	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/logger"
	"GuardTrack/storage/mq"
)

// worker 侧消费。去重后把消息转成对设备/后台的推送，
// 这里的落点是结构化日志加状态缓存，推送通道由部署方接入。

// HandleMessage storage/mq.Consume 的 handler
func HandleMessage(body []byte) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &pkgerrors.SkipMessageError{Reason: "malformed envelope: " + err.Error()}
	}
	if env.MessageID == "" {
		return &pkgerrors.SkipMessageError{Reason: "missing message id"}
	}

	ctx := context.Background()
	first, err := cache.TryMarkMessageProcessing(ctx, env.MessageID)
	if err != nil {
		return fmt.Errorf("failed to check message dedup: %w", err)
	}
	if !first {
		return &pkgerrors.SkipMessageError{Reason: "duplicate message " + env.MessageID}
	}

	if err := dispatch(ctx, env); err != nil {
		// 回滚去重标记，nack 重投后还有机会
		if unmarkErr := cache.UnmarkMessage(ctx, env.MessageID); unmarkErr != nil {
			logger.Logger.Error("Failed to unmark message", zap.Error(unmarkErr))
		}
		return err
	}

	return nil
}

func dispatch(ctx context.Context, env Envelope) error {
	switch env.Kind {
	case KindShiftStatus:
		var update ShiftStatusUpdate
		if err := json.Unmarshal(env.Payload, &update); err != nil {
			return &pkgerrors.SkipMessageError{Reason: "malformed shift status payload"}
		}
		return handleShiftStatus(ctx, update)

	case KindGeofenceEvent:
		var notice GeofenceEventNotice
		if err := json.Unmarshal(env.Payload, &notice); err != nil {
			return &pkgerrors.SkipMessageError{Reason: "malformed geofence payload"}
		}
		logger.Logger.Info("Geofence event",
			zap.String("zone_id", notice.ZoneID),
			zap.String("guard_id", notice.GuardID),
			zap.String("type", notice.Type),
		)
		return nil

	case KindIncidentAlert:
		var alert IncidentAlert
		if err := json.Unmarshal(env.Payload, &alert); err != nil {
			return &pkgerrors.SkipMessageError{Reason: "malformed incident payload"}
		}
		logger.Logger.Warn("Incident alert",
			zap.String("shift_id", alert.ShiftID),
			zap.String("severity", alert.Severity),
			zap.String("title", alert.Title),
		)
		return nil

	case KindEmergencyAlert:
		var alert EmergencyAlert
		if err := json.Unmarshal(env.Payload, &alert); err != nil {
			return &pkgerrors.SkipMessageError{Reason: "malformed emergency payload"}
		}
		logger.Logger.Error("EMERGENCY alert",
			zap.String("guard_id", alert.GuardID),
			zap.Float64("lat", alert.Location.Latitude),
			zap.Float64("lon", alert.Location.Longitude),
			zap.String("message", alert.Message),
		)
		return nil

	default:
		return &pkgerrors.SkipMessageError{Reason: "unknown kind " + string(env.Kind)}
	}
}

// handleShiftStatus 比对状态缓存，旧消息直接丢弃
func handleShiftStatus(ctx context.Context, update ShiftStatusUpdate) error {
	shiftID, err := strconv.ParseInt(update.ShiftID, 10, 64)
	if err != nil {
		return &pkgerrors.SkipMessageError{Reason: "invalid shift id " + update.ShiftID}
	}

	_, cachedAt, ok, err := cache.GetShiftStatus(ctx, shiftID)
	if err != nil {
		return fmt.Errorf("failed to read status cache: %w", err)
	}
	if ok && !update.ChangedAt.After(cachedAt) {
		return &pkgerrors.SkipMessageError{Reason: "stale shift status update"}
	}

	if err := cache.SetShiftStatus(ctx, shiftID, update.Status, update.ChangedAt); err != nil {
		return fmt.Errorf("failed to update status cache: %w", err)
	}

	logger.Logger.Info("Shift status pushed",
		zap.String("shift_id", update.ShiftID),
		zap.String("guard_id", update.GuardID),
		zap.String("status", update.Status),
	)
	return nil
}

// StartWorker 阻塞运行实时消息 worker
func StartWorker() error {
	return mq.Consume(mq.ConsumeOptions{
		Queue:         mq.QueueRealtime,
		ConsumerTag:   "guardtrack-realtime-worker",
		PrefetchCount: 16,
		Handler:       HandleMessage,
	})
}
