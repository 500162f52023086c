package dto

import (
	"time"

	"GuardTrack/pkg/geo"
)

// CreateShiftRequest 创建排班（管理员）
type CreateShiftRequest struct {
	GuardID        *string   `json:"guard_id"`
	SiteID         *string   `json:"site_id"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
}

// AssignGuardRequest 把 guard 挂到已有班次上（管理员）
type AssignGuardRequest struct {
	GuardID string `json:"guard_id"`
}

// CheckInRequest 上岗打卡
type CheckInRequest struct {
	Location  geo.Location `json:"location"`
	Timestamp time.Time    `json:"timestamp"`
}

// CheckOutRequest 下岗打卡
type CheckOutRequest struct {
	Location  geo.Location `json:"location"`
	Timestamp time.Time    `json:"timestamp"`
	Notes     *string      `json:"notes"`
}

// StartBreakRequest 开始休息
type StartBreakRequest struct {
	BreakType string        `json:"break_type"`
	Location  *geo.Location `json:"location"`
	Timestamp time.Time     `json:"timestamp"`
}

// EndBreakRequest 结束休息
type EndBreakRequest struct {
	Location  *geo.Location `json:"location"`
	Timestamp time.Time     `json:"timestamp"`
}

// ReportIncidentRequest 巡逻事件上报
type ReportIncidentRequest struct {
	Type        string        `json:"type"`
	Severity    string        `json:"severity"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Location    *geo.Location `json:"location"`
}

// ConflictCheckRequest 排班冲突 dry-run
type ConflictCheckRequest struct {
	GuardID        string    `json:"guard_id"`
	SiteID         *string   `json:"site_id"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
	ExcludeShiftID *string   `json:"exclude_shift_id"`
}

// ListShiftsQuery 班次列表查询参数
type ListShiftsQuery struct {
	Status string `query:"status"`
	Limit  int    `query:"limit"`
	Cursor string `query:"cursor"`
}

// ShiftItem 列表项
type ShiftItem struct {
	ID             string     `json:"id"`
	GuardID        *string    `json:"guard_id,omitempty"`
	SiteID         *string    `json:"site_id,omitempty"`
	Status         string     `json:"status"`
	ScheduledStart time.Time  `json:"scheduled_start"`
	ScheduledEnd   time.Time  `json:"scheduled_end"`
	ActualStart    *time.Time `json:"actual_start,omitempty"`
	ActualEnd      *time.Time `json:"actual_end,omitempty"`
	TotalBreakMin  int        `json:"total_break_time_min"`
	IncidentCount  int        `json:"incident_count"`
}

// BreakItem 休息记录
type BreakItem struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Location  *geo.Location `json:"location,omitempty"`
}

// IncidentItem 事件记录
type IncidentItem struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	Severity   string        `json:"severity"`
	Title      string        `json:"title"`
	ReportedAt time.Time     `json:"reported_at"`
	Location   *geo.Location `json:"location,omitempty"`
}

// ShiftDetail 详情：班次 + 休息 + 事件
type ShiftDetail struct {
	ShiftItem
	CheckInLocation  *geo.Location  `json:"check_in_location,omitempty"`
	CheckOutLocation *geo.Location  `json:"check_out_location,omitempty"`
	Notes            *string        `json:"notes,omitempty"`
	Breaks           []BreakItem    `json:"breaks"`
	Incidents        []IncidentItem `json:"incidents"`
}

// ConflictCheckData 冲突检测结果
type ConflictCheckData struct {
	Conflicts []ConflictItem `json:"conflicts"`
	Blocking  bool           `json:"blocking"`
}

// ConflictItem 单条冲突
type ConflictItem struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// PatrolLogItem 巡逻打点记录
type PatrolLogItem struct {
	ID       string       `json:"id"`
	ZoneID   string       `json:"zone_id"`
	Location geo.Location `json:"location"`
	LoggedAt time.Time    `json:"logged_at"`
}
