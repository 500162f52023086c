package dto

// ZoneItem 围栏配置下发给 agent 的格式
type ZoneItem struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Latitude     float64 `json:"lat"`
	Longitude    float64 `json:"lon"`
	RadiusMeters float64 `json:"radius_meters"`
	Kind         string  `json:"kind"`
	Active       bool    `json:"active"`
}

// RuleConditions 规则生效条件，字段为空表示不限制
type RuleConditions struct {
	MinDwellMs     *int64   `json:"min_dwell_ms,omitempty"`
	MaxAccuracyM   *float64 `json:"max_accuracy_m,omitempty"`
	TimeOfDayStart *string  `json:"time_of_day_start,omitempty"`
	TimeOfDayEnd   *string  `json:"time_of_day_end,omitempty"`
	DaysOfWeek     []int    `json:"days_of_week,omitempty"`
}

// RuleItem 自动化规则下发格式
type RuleItem struct {
	ID                  string         `json:"id"`
	ZoneID              string         `json:"zone_id"`
	Action              string         `json:"action"`
	Conditions          RuleConditions `json:"conditions"`
	RequireConfirmation bool           `json:"require_confirmation"`
	Active              bool           `json:"active"`
}
