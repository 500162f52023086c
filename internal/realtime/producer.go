package realtime

import (
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"GuardTrack/pkg/logger"
	"GuardTrack/pkg/snowflake"
	"GuardTrack/storage/mq"
)

// 发布端。事务提交之后调用，发布失败只记日志不回滚业务——
// 实时推送是尽力而为，权威状态永远以数据库为准。

func publish(kind Kind, routingKey string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Logger.Error("Failed to marshal realtime payload",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return
	}

	id, err := snowflake.NextID()
	if err != nil {
		logger.Logger.Error("Failed to allocate message ID", zap.Error(err))
		return
	}

	env := Envelope{
		MessageID:  strconv.FormatInt(id, 10),
		Kind:       kind,
		OccurredAt: time.Now(),
		Payload:    raw,
	}

	if err := mq.PublishMessage(mq.ExchangeEvents, routingKey, env); err != nil {
		logger.Logger.Error("Failed to publish realtime message",
			zap.String("kind", string(kind)),
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}

// NotifyShiftStatus 广播已提交的班次状态变更
func NotifyShiftStatus(update ShiftStatusUpdate) {
	publish(KindShiftStatus, mq.RoutingShiftStatus, update)
}

// NotifyGeofenceEvent 广播服务端收录的围栏事件
func NotifyGeofenceEvent(notice GeofenceEventNotice) {
	publish(KindGeofenceEvent, mq.RoutingGeofenceEvent, notice)
}

// NotifyIncident 广播巡逻事件告警
func NotifyIncident(alert IncidentAlert) {
	publish(KindIncidentAlert, mq.RoutingIncidentAlert, alert)
}

// NotifyEmergency 广播紧急求助
func NotifyEmergency(alert EmergencyAlert) {
	publish(KindEmergencyAlert, mq.RoutingEmergencyAlert, alert)
}
