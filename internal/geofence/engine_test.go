package geofence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GuardTrack/internal/location"
	"GuardTrack/internal/model"
	"GuardTrack/pkg/geo"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type manualTimer struct {
	mu      sync.Mutex
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Fire 模拟定时器到点，已停止的不再触发
func (t *manualTimer) Fire() {
	t.mu.Lock()
	if t.fired || t.stopped {
		t.mu.Unlock()
		return
	}
	t.fired = true
	fn := t.fn
	t.mu.Unlock()
	fn()
}

type manualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (f *manualTimers) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &manualTimer{fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *manualTimers) FireAll() {
	f.mu.Lock()
	timers := append([]*manualTimer(nil), f.timers...)
	f.mu.Unlock()
	for _, t := range timers {
		t.Fire()
	}
}

var (
	gateCenter   = geo.Location{Latitude: 31.2304, Longitude: 121.4737}
	lobbyCenter  = geo.Location{Latitude: 31.2404, Longitude: 121.4837}
	farAwayPoint = geo.Location{Latitude: 31.5000, Longitude: 121.9000, AccuracyMeters: 10}
)

func testZones() []Zone {
	return []Zone{
		{ID: 1, Name: "south-gate", Center: gateCenter, RadiusMeters: 100, Kind: model.ZoneKindCheckIn, Active: true},
		{ID: 2, Name: "lobby", Center: lobbyCenter, RadiusMeters: 100, Kind: model.ZoneKindPatrol, Active: true},
	}
}

func fixAt(loc geo.Location, at time.Time) location.Fix {
	loc.AccuracyMeters = 10
	return location.Fix{Location: loc, CapturedAt: at}
}

func newTestEngine(sink Sink) (*Engine, *manualClock, *manualTimers) {
	clock := &manualClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	timers := &manualTimers{}
	e := NewEngine(Config{DwellThreshold: 30 * time.Second, EventLogCap: 200}, clock, timers, sink)
	e.SetZones(testZones())
	return e, clock, timers
}

func TestEnterExitEvents(t *testing.T) {
	e, clock, _ := newTestEngine(nil)

	events := e.OnFix(fixAt(gateCenter, clock.Now()))
	require.Len(t, events, 1)
	assert.Equal(t, model.GeofenceEventEnter, events[0].Type)
	assert.Equal(t, int64(1), events[0].ZoneID)

	// 同一 zone 内移动不重复发 enter
	clock.Advance(10 * time.Second)
	events = e.OnFix(fixAt(gateCenter, clock.Now()))
	assert.Empty(t, events)

	clock.Advance(10 * time.Second)
	events = e.OnFix(fixAt(farAwayPoint, clock.Now()))
	require.Len(t, events, 1)
	assert.Equal(t, model.GeofenceEventExit, events[0].Type)
	assert.Equal(t, int64(20*1000), events[0].DurationMs)
}

func TestDwellFiresExactlyOncePerStay(t *testing.T) {
	var dwells []Event
	sink := func(ev Event) {
		if ev.Type == model.GeofenceEventDwell {
			dwells = append(dwells, ev)
		}
	}
	e, clock, timers := newTestEngine(sink)

	e.OnFix(fixAt(gateCenter, clock.Now()))
	clock.Advance(30 * time.Second)
	timers.FireAll()

	require.Len(t, dwells, 1)
	assert.Equal(t, int64(1), dwells[0].ZoneID)
	assert.Equal(t, int64(30*1000), dwells[0].DurationMs)

	// 重复触发被状态标记吸收
	timers.FireAll()
	assert.Len(t, dwells, 1)

	// 离开再进入是新的一段停留，允许再次驻留
	clock.Advance(5 * time.Second)
	e.OnFix(fixAt(farAwayPoint, clock.Now()))
	e.OnFix(fixAt(gateCenter, clock.Now()))
	clock.Advance(30 * time.Second)
	timers.FireAll()
	assert.Len(t, dwells, 2)
}

func TestExitCancelsPendingDwell(t *testing.T) {
	var dwells int
	sink := func(ev Event) {
		if ev.Type == model.GeofenceEventDwell {
			dwells++
		}
	}
	e, clock, timers := newTestEngine(sink)

	e.OnFix(fixAt(gateCenter, clock.Now()))
	clock.Advance(10 * time.Second)
	e.OnFix(fixAt(farAwayPoint, clock.Now()))

	// 阈值到点后定时器早已取消
	clock.Advance(30 * time.Second)
	timers.FireAll()
	assert.Zero(t, dwells)
}

func TestZonesTrackedIndependently(t *testing.T) {
	e, clock, _ := newTestEngine(nil)

	events := e.OnFix(fixAt(gateCenter, clock.Now()))
	require.Len(t, events, 1)

	// 移动到另一个 zone：一条 exit + 一条 enter
	clock.Advance(time.Minute)
	events = e.OnFix(fixAt(lobbyCenter, clock.Now()))
	require.Len(t, events, 2)

	types := map[model.GeofenceEventType]int64{}
	for _, ev := range events {
		types[ev.Type] = ev.ZoneID
	}
	assert.Equal(t, int64(1), types[model.GeofenceEventExit])
	assert.Equal(t, int64(2), types[model.GeofenceEventEnter])

	inside := e.InsideZones()
	require.Len(t, inside, 1)
	assert.Equal(t, int64(2), inside[0])
}

func TestPoorAccuracyFixIgnored(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	timers := &manualTimers{}
	e := NewEngine(Config{MaxAccuracyM: 50}, clock, timers, nil)
	e.SetZones(testZones())

	blurry := location.Fix{
		Location:   geo.Location{Latitude: gateCenter.Latitude, Longitude: gateCenter.Longitude, AccuracyMeters: 120},
		CapturedAt: clock.Now(),
	}
	assert.Empty(t, e.OnFix(blurry))
	assert.Empty(t, e.InsideZones())
}

func TestSetZonesRemovalEmitsExit(t *testing.T) {
	e, clock, timers := newTestEngine(nil)

	e.OnFix(fixAt(gateCenter, clock.Now()))
	require.Len(t, e.InsideZones(), 1)

	// 配置刷新后 zone 消失：补 exit，取消驻留定时器
	e.SetZones(nil)
	assert.Empty(t, e.InsideZones())

	events := e.RecentEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, model.GeofenceEventExit, events[len(events)-1].Type)

	clock.Advance(time.Minute)
	timers.FireAll()
	for _, ev := range e.RecentEvents() {
		assert.NotEqual(t, model.GeofenceEventDwell, ev.Type)
	}
}

func TestEventLogBounded(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	e := NewEngine(Config{EventLogCap: 10}, clock, &manualTimers{}, nil)
	e.SetZones(testZones())

	for i := 0; i < 20; i++ {
		e.OnFix(fixAt(gateCenter, clock.Now()))
		clock.Advance(time.Second)
		e.OnFix(fixAt(farAwayPoint, clock.Now()))
		clock.Advance(time.Second)
	}

	assert.Len(t, e.RecentEvents(), 10)
}
