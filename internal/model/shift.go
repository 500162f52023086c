package model

import (
	"time"

	"GuardTrack/pkg/geo"
)

// ShiftStatus 班次状态枚举，字符串值是对外协议的一部分，不能改
type ShiftStatus string

const (
	ShiftStatusScheduled  ShiftStatus = "SCHEDULED"
	ShiftStatusInProgress ShiftStatus = "IN_PROGRESS"
	ShiftStatusOnBreak    ShiftStatus = "ON_BREAK"
	ShiftStatusCompleted  ShiftStatus = "COMPLETED"
	ShiftStatusNoShow     ShiftStatus = "NO_SHOW"
	ShiftStatusCancelled  ShiftStatus = "CANCELLED"
)

// Valid 判断是否是已知状态
func (s ShiftStatus) Valid() bool {
	switch s {
	case ShiftStatusScheduled, ShiftStatusInProgress, ShiftStatusOnBreak,
		ShiftStatusCompleted, ShiftStatusNoShow, ShiftStatusCancelled:
		return true
	}
	return false
}

// Terminal 终态之后不再接受任何迁移（cancel 除外，见状态机）
func (s ShiftStatus) Terminal() bool {
	switch s {
	case ShiftStatusCompleted, ShiftStatusNoShow, ShiftStatusCancelled:
		return true
	}
	return false
}

// Shift 排班记录，服务端为权威副本，agent 端持乐观副本
type Shift struct {
	BaseModel
	PublicID       int64         `gorm:"uniqueIndex;not null" json:"public_id"`
	GuardID        *int64        `gorm:"index:idx_shifts_guard_window" json:"guard_id,omitempty"`
	SiteID         *int64        `gorm:"index" json:"site_id,omitempty"`
	ScheduledStart time.Time     `gorm:"type:timestamptz;not null;index:idx_shifts_guard_window" json:"scheduled_start"`
	ScheduledEnd   time.Time     `gorm:"type:timestamptz;not null" json:"scheduled_end"`
	ActualStart    *time.Time    `gorm:"type:timestamptz" json:"actual_start,omitempty"`
	ActualEnd      *time.Time    `gorm:"type:timestamptz" json:"actual_end,omitempty"`
	Status         ShiftStatus   `gorm:"type:varchar(16);not null;default:'SCHEDULED';index" json:"status"`
	CheckInLoc     *geo.Location `gorm:"embedded;embeddedPrefix:check_in_" json:"check_in_location,omitempty"`
	CheckOutLoc    *geo.Location `gorm:"embedded;embeddedPrefix:check_out_" json:"check_out_location,omitempty"`
	Notes          *string       `gorm:"type:varchar(512)" json:"notes,omitempty"`
	TotalBreakMin  int           `gorm:"not null;default:0" json:"total_break_time_min"`
	IncidentCount  int           `gorm:"not null;default:0" json:"incident_count"`
}

// TableName 指定表名
func (Shift) TableName() string {
	return "shifts"
}

// BreakType 休息类型
type BreakType string

const (
	BreakTypeMeal   BreakType = "meal"
	BreakTypeRest   BreakType = "rest"
	BreakTypeCustom BreakType = "custom"
)

// ShiftBreak 休息记录，每个班次同一时刻最多一条未关闭
type ShiftBreak struct {
	BaseModel
	PublicID  int64         `gorm:"uniqueIndex;not null" json:"public_id"`
	ShiftID   int64         `gorm:"not null;index:idx_shift_breaks_shift" json:"shift_id"`
	StartTime time.Time     `gorm:"type:timestamptz;not null" json:"start_time"`
	EndTime   *time.Time    `gorm:"type:timestamptz;index:idx_shift_breaks_shift" json:"end_time,omitempty"`
	Type      BreakType     `gorm:"type:varchar(16);not null;default:'rest'" json:"type"`
	Location  *geo.Location `gorm:"embedded;embeddedPrefix:break_" json:"location,omitempty"`
}

// TableName 指定表名
func (ShiftBreak) TableName() string {
	return "shift_breaks"
}

// IncidentSeverity 事件严重度
type IncidentSeverity string

const (
	IncidentSeverityLow      IncidentSeverity = "low"
	IncidentSeverityMedium   IncidentSeverity = "medium"
	IncidentSeverityHigh     IncidentSeverity = "high"
	IncidentSeverityCritical IncidentSeverity = "critical"
)

// Incident 巡逻事件上报，只追加，同时累加 Shift.IncidentCount
type Incident struct {
	BaseModel
	PublicID    int64            `gorm:"uniqueIndex;not null" json:"public_id"`
	ShiftID     int64            `gorm:"not null;index" json:"shift_id"`
	Type        string           `gorm:"type:varchar(32);not null" json:"type"`
	Severity    IncidentSeverity `gorm:"type:varchar(16);not null;default:'low'" json:"severity"`
	Title       string           `gorm:"type:varchar(128);not null" json:"title"`
	Description string           `gorm:"type:text" json:"description"`
	Location    *geo.Location    `gorm:"embedded;embeddedPrefix:incident_" json:"location,omitempty"`
	ReportedAt  time.Time        `gorm:"type:timestamptz;not null;default:now()" json:"reported_at"`
}

// TableName 指定表名
func (Incident) TableName() string {
	return "incidents"
}
