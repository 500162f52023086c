package model

import (
	"time"

	"GuardTrack/pkg/geo"
)

// ZoneKind 围栏用途
type ZoneKind string

const (
	ZoneKindCheckIn    ZoneKind = "check_in"
	ZoneKindPatrol     ZoneKind = "patrol"
	ZoneKindRestricted ZoneKind = "restricted"
	ZoneKindEmergency  ZoneKind = "emergency"
)

// GeofenceZone 圆形围栏配置，由后台维护，引擎只读
type GeofenceZone struct {
	BaseModel
	PublicID     int64        `gorm:"uniqueIndex;not null" json:"public_id"`
	Name         string       `gorm:"type:varchar(64);not null" json:"name"`
	Center       geo.Location `gorm:"embedded;embeddedPrefix:center_" json:"center"`
	RadiusMeters float64      `gorm:"not null" json:"radius_meters"`
	Kind         ZoneKind     `gorm:"type:varchar(16);not null;default:'patrol'" json:"kind"`
	Active       bool         `gorm:"not null;default:true;index" json:"active"`
}

// TableName 指定表名
func (GeofenceZone) TableName() string {
	return "geofence_zones"
}

// GeofenceEventType 围栏事件类型
type GeofenceEventType string

const (
	GeofenceEventEnter GeofenceEventType = "enter"
	GeofenceEventExit  GeofenceEventType = "exit"
	GeofenceEventDwell GeofenceEventType = "dwell"
	// GeofenceEventPatrol 巡逻打点确认，区别于围栏自动产生的 enter
	GeofenceEventPatrol GeofenceEventType = "patrol"
)

// GeofenceEvent 围栏事件日志，只追加，服务端保留有限窗口
type GeofenceEvent struct {
	BaseModel
	PublicID   int64             `gorm:"uniqueIndex;not null" json:"public_id"`
	ZoneID     int64             `gorm:"not null;index" json:"zone_id"`
	GuardID    int64             `gorm:"not null;index" json:"guard_id"`
	ShiftID    *int64            `gorm:"index" json:"shift_id,omitempty"`
	Type       GeofenceEventType `gorm:"type:varchar(16);not null" json:"type"`
	Location   geo.Location      `gorm:"embedded;embeddedPrefix:fix_" json:"location"`
	OccurredAt time.Time         `gorm:"type:timestamptz;not null;index" json:"occurred_at"`
	DurationMs *int64            `json:"duration_ms,omitempty"`
}

// TableName 指定表名
func (GeofenceEvent) TableName() string {
	return "geofence_events"
}

// AutomationAction 规则命中后执行的动作
type AutomationAction string

const (
	ActionAutoCheckIn  AutomationAction = "auto_checkin"
	ActionAutoCheckOut AutomationAction = "auto_checkout"
	ActionPatrolPoint  AutomationAction = "patrol_point"
	ActionAlertOnly    AutomationAction = "alert_only"
)

// AutomationRule 围栏自动化规则，一个 zone 可挂多条
type AutomationRule struct {
	BaseModel
	PublicID            int64            `gorm:"uniqueIndex;not null" json:"public_id"`
	ZoneID              int64            `gorm:"not null;index" json:"zone_id"`
	Action              AutomationAction `gorm:"type:varchar(16);not null" json:"action"`
	MinDwellMs          *int64           `json:"min_dwell_ms,omitempty"`
	MaxAccuracyM        *float64         `json:"max_accuracy_m,omitempty"`
	TimeOfDayStart      *string          `gorm:"type:varchar(8)" json:"time_of_day_start,omitempty"` // "HH:MM"
	TimeOfDayEnd        *string          `gorm:"type:varchar(8)" json:"time_of_day_end,omitempty"`
	DaysOfWeek          *string          `gorm:"type:varchar(16)" json:"days_of_week,omitempty"` // "0,1,2"，周日为 0
	RequireConfirmation bool             `gorm:"not null;default:false" json:"require_confirmation"`
	Active              bool             `gorm:"not null;default:true;index" json:"active"`
}

// TableName 指定表名
func (AutomationRule) TableName() string {
	return "automation_rules"
}

// PatrolLog 巡逻点位打点，不改变班次状态
type PatrolLog struct {
	BaseModel
	PublicID int64        `gorm:"uniqueIndex;not null" json:"public_id"`
	ZoneID   int64        `gorm:"not null;index" json:"zone_id"`
	GuardID  int64        `gorm:"not null;index" json:"guard_id"`
	ShiftID  *int64       `gorm:"index" json:"shift_id,omitempty"`
	Location geo.Location `gorm:"embedded;embeddedPrefix:patrol_" json:"location"`
	LoggedAt time.Time    `gorm:"type:timestamptz;not null" json:"logged_at"`
}

// TableName 指定表名
func (PatrolLog) TableName() string {
	return "patrol_logs"
}
