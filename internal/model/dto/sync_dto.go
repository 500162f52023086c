package dto

import (
	"encoding/json"
	"time"

	"GuardTrack/pkg/geo"
)

// 离线队列动作类型，tag + body 的可辨识联合。
// 服务端对每种动作的处理必须幂等：重试可能造成重复投递。
const (
	SyncActionCheckIn     = "check_in"
	SyncActionCheckOut    = "check_out"
	SyncActionBreakStart  = "break_start"
	SyncActionBreakEnd    = "break_end"
	SyncActionIncident    = "incident_report"
	SyncActionAutoCheckIn = "auto_checkin"
	SyncActionPatrolPoint = "patrol_point"
	SyncActionEmergency   = "emergency_alert"
)

// SyncActionRequest POST /v1/sync/actions 的请求体，也是队列条目的线格式
type SyncActionRequest struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
}

// CheckInPayload check_in / auto_checkin 共用主体
type CheckInPayload struct {
	ShiftID   string       `json:"shift_id"`
	Location  geo.Location `json:"location"`
	Timestamp time.Time    `json:"timestamp"`
}

// CheckOutPayload check_out 主体
type CheckOutPayload struct {
	ShiftID   string       `json:"shift_id"`
	Location  geo.Location `json:"location"`
	Timestamp time.Time    `json:"timestamp"`
	Notes     *string      `json:"notes,omitempty"`
}

// BreakStartPayload break_start 主体
type BreakStartPayload struct {
	ShiftID   string        `json:"shift_id"`
	BreakType string        `json:"break_type"`
	Location  *geo.Location `json:"location,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// BreakEndPayload break_end 主体
type BreakEndPayload struct {
	ShiftID   string        `json:"shift_id"`
	BreakID   string        `json:"break_id"`
	Location  *geo.Location `json:"location,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// IncidentPayload incident_report 主体
type IncidentPayload struct {
	ShiftID     string        `json:"shift_id"`
	Type        string        `json:"type"`
	Severity    string        `json:"severity"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Location    *geo.Location `json:"location,omitempty"`
}

// ZoneActionPayload auto_checkin / patrol_point 主体，shift 可选：
// 自动动作触发时 agent 可能还没拿到当前班次
type ZoneActionPayload struct {
	ZoneID    string        `json:"zone_id"`
	Location  geo.Location  `json:"location"`
	Timestamp time.Time     `json:"timestamp"`
	ShiftID   *string       `json:"shift_id,omitempty"`
}

// EmergencyPayload emergency_alert 主体，绕过队列直接投递
type EmergencyPayload struct {
	Location  geo.Location `json:"location"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
}

// SyncActionData 服务端应答，Duplicate 表示这次投递被幂等吸收
type SyncActionData struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	Duplicate bool   `json:"duplicate"`
}
