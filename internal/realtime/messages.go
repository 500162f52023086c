package realtime

import (
	"encoding/json"
	"time"

	"GuardTrack/pkg/geo"
)

// 实时消息协议。MessageID 全局唯一，消费端据此去重。

type Kind string

const (
	KindShiftStatus    Kind = "shift_status_update"
	KindGeofenceEvent  Kind = "geofence_event"
	KindIncidentAlert  Kind = "incident_alert"
	KindEmergencyAlert Kind = "emergency_alert"
)

// Envelope 所有实时消息的统一外层
type Envelope struct {
	MessageID  string          `json:"message_id"`
	Kind       Kind            `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// ShiftStatusUpdate 班次状态已提交变更
type ShiftStatusUpdate struct {
	ShiftID    string    `json:"shift_id"`
	GuardID    string    `json:"guard_id"`
	Status     string    `json:"status"`
	PrevStatus string    `json:"prev_status,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

// GeofenceEventNotice 服务端收录的围栏事件
type GeofenceEventNotice struct {
	ZoneID     string       `json:"zone_id"`
	GuardID    string       `json:"guard_id"`
	Type       string       `json:"type"`
	Location   geo.Location `json:"location"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// IncidentAlert 巡逻事件告警
type IncidentAlert struct {
	ShiftID    string    `json:"shift_id"`
	GuardID    string    `json:"guard_id"`
	Severity   string    `json:"severity"`
	Title      string    `json:"title"`
	ReportedAt time.Time `json:"reported_at"`
}

// EmergencyAlert 一键紧急求助，优先级最高
type EmergencyAlert struct {
	GuardID  string       `json:"guard_id"`
	Location geo.Location `json:"location"`
	Message  string       `json:"message"`
	RaisedAt time.Time    `json:"raised_at"`
}
