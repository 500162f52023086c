package automation

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"GuardTrack/internal/geofence"
	"GuardTrack/internal/model"
	"GuardTrack/pkg/logger"
	"GuardTrack/pkg/metrics"
	"GuardTrack/utils"
)

// Rule 一条自动化规则的引擎内快照
type Rule struct {
	ID                  int64
	ZoneID              int64
	Action              model.AutomationAction
	MinDwellMs          *int64
	MaxAccuracyM        *float64
	TimeOfDayStart      *string // "HH:MM"
	TimeOfDayEnd        *string
	DaysOfWeek          []time.Weekday // 空表示不限
	RequireConfirmation bool
	Active              bool
}

// Executor 规则命中后的出口。三条路径互斥：
// 需要确认的进确认队列，alert_only 只提醒，其余直接执行。
type Executor interface {
	// Execute 把动作投进离线队列（或直接发起）
	Execute(rule Rule, ev geofence.Event) error
	// RequestConfirmation 挂起等待人工确认
	RequestConfirmation(rule Rule, ev geofence.Event)
	// Alert 仅提醒，不产生班次动作
	Alert(rule Rule, ev geofence.Event)
}

// RuleEngine 把围栏事件翻译成班次动作。
// 冷却是全局的：任何一次自动执行之后，冷却窗口内所有 zone 的
// 自动动作都被抑制，防止在围栏边界抖动时反复触发。
type RuleEngine struct {
	mu       sync.Mutex
	rules    map[int64][]Rule // zone ID -> rules
	cooldown time.Duration
	lastExec time.Time

	// confirmFirst 为 true 时所有自动动作都先走确认
	confirmFirst bool
	clock        geofence.Clock
	exec         Executor
}

// NewRuleEngine 构造规则引擎，clock 传 nil 用系统时钟
func NewRuleEngine(cooldown time.Duration, confirmFirst bool, clock geofence.Clock, exec Executor) *RuleEngine {
	if clock == nil {
		clock = geofence.SystemClock()
	}
	return &RuleEngine{
		rules:        make(map[int64][]Rule),
		cooldown:     cooldown,
		confirmFirst: confirmFirst,
		clock:        clock,
		exec:         exec,
	}
}

// SetRules 整体替换规则表
func (r *RuleEngine) SetRules(rules []Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[int64][]Rule)
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		next[rule.ZoneID] = append(next[rule.ZoneID], rule)
	}
	r.rules = next
}

// HandleEvent 围栏引擎的 Sink。对事件所在 zone 的每条规则独立评估。
func (r *RuleEngine) HandleEvent(ev geofence.Event) {
	r.mu.Lock()
	rules := r.rules[ev.ZoneID]
	r.mu.Unlock()

	for _, rule := range rules {
		r.evaluate(rule, ev)
	}
}

func (r *RuleEngine) evaluate(rule Rule, ev geofence.Event) {
	if !r.matches(rule, ev) {
		return
	}

	// alert_only 不消耗也不受冷却约束
	if rule.Action == model.ActionAlertOnly {
		r.exec.Alert(rule, ev)
		metrics.RecordAutomation(context.Background(), string(rule.Action), false)
		return
	}

	r.mu.Lock()
	now := r.clock.Now()
	inCooldown := !r.lastExec.IsZero() && now.Sub(r.lastExec) < r.cooldown
	r.mu.Unlock()

	if inCooldown {
		logger.Logger.Info("Automation suppressed by cooldown",
			zap.Int64("rule_id", rule.ID),
			zap.Int64("zone_id", rule.ZoneID),
			zap.String("action", string(rule.Action)),
		)
		metrics.RecordAutomation(context.Background(), string(rule.Action), true)
		return
	}

	// 挂起待确认不算执行，冷却留到确认后真正下发时再消耗
	if r.confirmFirst || rule.RequireConfirmation {
		r.exec.RequestConfirmation(rule, ev)
		metrics.RecordAutomation(context.Background(), string(rule.Action), false)
		return
	}

	if err := r.exec.Execute(rule, ev); err != nil {
		logger.Logger.Error("Automation action failed",
			zap.Int64("rule_id", rule.ID),
			zap.String("action", string(rule.Action)),
			zap.Error(err),
		)
		return
	}

	r.MarkExecuted()
	metrics.RecordAutomation(context.Background(), string(rule.Action), false)
}

// MarkExecuted 记录一次成功下发的自动动作，开启冷却窗口。
// 确认路径在挂起的动作被确认并真正执行后由外部调用。
func (r *RuleEngine) MarkExecuted() {
	r.mu.Lock()
	r.lastExec = r.clock.Now()
	r.mu.Unlock()
}

// matches 事件类型与条件过滤。
// 设了 minDwellMs 的规则只认 dwell 事件，auto_checkout 只认 exit，
// 其余动作在 enter 时评估。
func (r *RuleEngine) matches(rule Rule, ev geofence.Event) bool {
	switch {
	case rule.MinDwellMs != nil:
		if ev.Type != model.GeofenceEventDwell || ev.DurationMs < *rule.MinDwellMs {
			return false
		}
	case rule.Action == model.ActionAutoCheckOut:
		if ev.Type != model.GeofenceEventExit {
			return false
		}
	default:
		if ev.Type != model.GeofenceEventEnter {
			return false
		}
	}

	if rule.MaxAccuracyM != nil && ev.Fix.Location.AccuracyMeters > *rule.MaxAccuracyM {
		return false
	}

	now := r.clock.Now()
	if len(rule.DaysOfWeek) > 0 && !containsWeekday(rule.DaysOfWeek, now.Weekday()) {
		return false
	}

	return r.withinTimeOfDay(rule, now)
}

// withinTimeOfDay 时段窗口，start > end 表示跨午夜
func (r *RuleEngine) withinTimeOfDay(rule Rule, now time.Time) bool {
	if rule.TimeOfDayStart == nil || rule.TimeOfDayEnd == nil {
		return true
	}

	start, err := utils.ParseTime(*rule.TimeOfDayStart, now)
	if err != nil {
		logger.Logger.Warn("Invalid rule time window", zap.Int64("rule_id", rule.ID), zap.Error(err))
		return false
	}
	end, err := utils.ParseTime(*rule.TimeOfDayEnd, now)
	if err != nil {
		logger.Logger.Warn("Invalid rule time window", zap.Int64("rule_id", rule.ID), zap.Error(err))
		return false
	}

	if !end.Before(start) {
		return !now.Before(start) && now.Before(end)
	}
	return !now.Before(start) || now.Before(end)
}

func containsWeekday(days []time.Weekday, d time.Weekday) bool {
	for _, day := range days {
		if day == d {
			return true
		}
	}
	return false
}

// ParseDaysOfWeek 解析 "0,1,2" 形式的配置，周日为 0；
// 非法片段忽略，全空返回 nil（不限）
func ParseDaysOfWeek(csv *string) []time.Weekday {
	if csv == nil || *csv == "" {
		return nil
	}

	var out []time.Weekday
	for _, part := range strings.Split(*csv, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		out = append(out, time.Weekday(n))
	}
	return out
}

// RuleFromModel 服务端配置换算成引擎快照
func RuleFromModel(m *model.AutomationRule) Rule {
	return Rule{
		ID:                  m.PublicID,
		ZoneID:              m.ZoneID,
		Action:              m.Action,
		MinDwellMs:          m.MinDwellMs,
		MaxAccuracyM:        m.MaxAccuracyM,
		TimeOfDayStart:      m.TimeOfDayStart,
		TimeOfDayEnd:        m.TimeOfDayEnd,
		DaysOfWeek:          ParseDaysOfWeek(m.DaysOfWeek),
		RequireConfirmation: m.RequireConfirmation,
		Active:              m.Active,
	}
}
