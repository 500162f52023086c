package geofence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"GuardTrack/internal/location"
	"GuardTrack/internal/model"
	"GuardTrack/pkg/geo"
	"GuardTrack/pkg/logger"
	"GuardTrack/pkg/metrics"
)

// Zone 引擎内部使用的围栏快照，由服务端配置换算而来
type Zone struct {
	ID           int64
	Name         string
	Center       geo.Location
	RadiusMeters float64
	Kind         model.ZoneKind
	Active       bool
}

// Contains 判断采样点是否落在围栏内（含边界）
func (z Zone) Contains(loc geo.Location) bool {
	return geo.Haversine(z.Center, loc) <= z.RadiusMeters
}

// Event 引擎产出的围栏事件
type Event struct {
	ID         int64
	ZoneID     int64
	ZoneName   string
	Type       model.GeofenceEventType
	Fix        location.Fix
	OccurredAt time.Time
	// DurationMs 仅 dwell 事件有值：进入到驻留确认的毫秒数
	DurationMs int64
}

// Sink 接收引擎事件。dwell 由定时器异步触发，只会经过 Sink，
// 不会出现在 OnFix 的返回值里。Sink 内不得回调引擎方法。
type Sink func(Event)

// Config 引擎参数
type Config struct {
	// DwellThreshold 连续停留多久算驻留
	DwellThreshold time.Duration
	// EventLogCap 本地事件环容量
	EventLogCap int
	// MaxAccuracyM 精度差于该值的采样直接丢弃，0 表示不过滤
	MaxAccuracyM float64
	// NextID 事件 ID 来源，缺省用进程内自增
	NextID func() int64
}

// zoneState 一段连续停留的内部状态
type zoneState struct {
	enteredAt  time.Time
	dwellTimer Timer
	dwellFired bool
}

// Engine 地理围栏引擎。串行处理定位流，对每个 zone 独立维护
// 进入/驻留/离开的状态，事件写入有限长度的本地日志环。
type Engine struct {
	mu     sync.Mutex
	zones  map[int64]Zone
	active map[int64]*zoneState

	cfg    Config
	clock  Clock
	timers TimerFactory
	sink   Sink

	events []Event
	seq    int64
	closed bool
}

// NewEngine 构造引擎，clock/timers 传 nil 时用系统实现
func NewEngine(cfg Config, clock Clock, timers TimerFactory, sink Sink) *Engine {
	if cfg.DwellThreshold <= 0 {
		cfg.DwellThreshold = 30 * time.Second
	}
	if cfg.EventLogCap <= 0 {
		cfg.EventLogCap = 200
	}
	if clock == nil {
		clock = SystemClock()
	}
	if timers == nil {
		timers = SystemTimers()
	}
	e := &Engine{
		zones:  make(map[int64]Zone),
		active: make(map[int64]*zoneState),
		cfg:    cfg,
		clock:  clock,
		timers: timers,
		sink:   sink,
	}
	if e.cfg.NextID == nil {
		e.cfg.NextID = func() int64 { return atomic.AddInt64(&e.seq, 1) }
	}
	return e
}

// SetZones 整体替换围栏配置。被移除或停用的 zone 如果还处于
// 进入状态，补发一条 exit 并取消挂起的驻留定时器。
func (e *Engine) SetZones(zones []Zone) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[int64]Zone, len(zones))
	for _, z := range zones {
		if z.Active {
			next[z.ID] = z
		}
	}

	for id, st := range e.active {
		if _, ok := next[id]; ok {
			continue
		}
		old := e.zones[id]
		e.exitLocked(old, st, location.Fix{CapturedAt: e.clock.Now()})
		delete(e.active, id)
	}

	e.zones = next
}

// OnFix 喂入一个定位采样，返回本次同步产生的 enter/exit 事件。
// dwell 由定时器异步经 Sink 投递。
func (e *Engine) OnFix(fix location.Fix) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	if e.cfg.MaxAccuracyM > 0 && fix.Location.AccuracyMeters > e.cfg.MaxAccuracyM {
		return nil
	}

	var out []Event
	for id, zone := range e.zones {
		inside := zone.Contains(fix.Location)
		st, wasInside := e.active[id]

		switch {
		case inside && !wasInside:
			out = append(out, e.enterLocked(zone, fix))
		case !inside && wasInside:
			out = append(out, e.exitLocked(zone, st, fix))
			delete(e.active, id)
		}
	}
	return out
}

func (e *Engine) enterLocked(zone Zone, fix location.Fix) Event {
	st := &zoneState{enteredAt: e.clock.Now()}
	zoneID := zone.ID
	st.dwellTimer = e.timers.AfterFunc(e.cfg.DwellThreshold, func() {
		e.fireDwell(zoneID, fix)
	})
	e.active[zone.ID] = st

	ev := Event{
		ID:         e.cfg.NextID(),
		ZoneID:     zone.ID,
		ZoneName:   zone.Name,
		Type:       model.GeofenceEventEnter,
		Fix:        fix,
		OccurredAt: st.enteredAt,
	}
	e.emitLocked(ev)
	return ev
}

func (e *Engine) exitLocked(zone Zone, st *zoneState, fix location.Fix) Event {
	// 离开取消还没触发的驻留定时器
	if st.dwellTimer != nil {
		st.dwellTimer.Stop()
	}

	now := e.clock.Now()
	ev := Event{
		ID:         e.cfg.NextID(),
		ZoneID:     zone.ID,
		ZoneName:   zone.Name,
		Type:       model.GeofenceEventExit,
		Fix:        fix,
		OccurredAt: now,
		DurationMs: now.Sub(st.enteredAt).Milliseconds(),
	}
	e.emitLocked(ev)
	return ev
}

// fireDwell 定时器回调。一段连续停留最多发一次 dwell，
// 期间已经离开则定时器已被取消，这里再兜一层状态检查。
func (e *Engine) fireDwell(zoneID int64, fix location.Fix) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	st, ok := e.active[zoneID]
	if !ok || st.dwellFired {
		return
	}
	zone, ok := e.zones[zoneID]
	if !ok {
		return
	}

	st.dwellFired = true
	now := e.clock.Now()
	ev := Event{
		ID:         e.cfg.NextID(),
		ZoneID:     zone.ID,
		ZoneName:   zone.Name,
		Type:       model.GeofenceEventDwell,
		Fix:        fix,
		OccurredAt: now,
		DurationMs: now.Sub(st.enteredAt).Milliseconds(),
	}
	e.emitLocked(ev)
}

func (e *Engine) emitLocked(ev Event) {
	e.events = append(e.events, ev)
	if len(e.events) > e.cfg.EventLogCap {
		e.events = e.events[len(e.events)-e.cfg.EventLogCap:]
	}

	logger.Logger.Info("Geofence event",
		zap.Int64("zone_id", ev.ZoneID),
		zap.String("zone_name", ev.ZoneName),
		zap.String("type", string(ev.Type)),
		zap.Int64("duration_ms", ev.DurationMs),
	)

	metrics.RecordGeofenceEvent(context.Background(), string(ev.Type))

	if e.sink != nil {
		e.sink(ev)
	}
}

// RecentEvents 本地事件环的副本，最旧在前
func (e *Engine) RecentEvents() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// InsideZones 当前处于进入状态的 zone ID 集合
func (e *Engine) InsideZones() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]int64, 0, len(e.active))
	for id := range e.active {
		out = append(out, id)
	}
	return out
}

// Close 停掉所有挂起的定时器，之后 OnFix 变为 no-op
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	for _, st := range e.active {
		if st.dwellTimer != nil {
			st.dwellTimer.Stop()
		}
	}
	e.active = make(map[int64]*zoneState)
}
