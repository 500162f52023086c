package agent

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"GuardTrack/internal/automation"
	"GuardTrack/internal/geofence"
	"GuardTrack/internal/location"
	"GuardTrack/internal/model"
	"GuardTrack/internal/model/dto"
	"GuardTrack/internal/realtime"
	"GuardTrack/internal/syncqueue"
	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/logger"
	"GuardTrack/pkg/retry"
)

// Agent 设备端组装层：定位流 -> 围栏引擎 -> 规则引擎 -> 离线队列。
// 本地持有班次的乐观副本，服务端推送经 Reconciler 并入。

// Notifier 把提醒投给设备 UI，nil 时只打日志
type Notifier func(title, body string)

// Confirmation 等待人工确认的自动动作
type Confirmation struct {
	ID          string
	Rule        automation.Rule
	Event       geofence.Event
	RequestedAt time.Time
}

// Config Agent 的运行参数
type Config struct {
	DwellThreshold   time.Duration
	EventLogCap      int
	MaxAccuracyM     float64
	Cooldown         time.Duration
	ConfirmFirst     bool
	LocationTimeout  time.Duration
	HistoryCap       int
	ConnPollInterval time.Duration
	ConfigRefresh    time.Duration
}

type Agent struct {
	sampler *location.Sampler
	engine  *geofence.Engine
	rules   *automation.RuleEngine
	queue   *syncqueue.Queue
	api     *API

	notifier Notifier

	mu             sync.Mutex
	shifts         map[int64]realtime.LocalShift
	currentShiftID int64
	pending        []Confirmation

	cfg    Config
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 组装 Agent。store/transport 由调用方构造，测试里可以全部替换。
func New(
	provider location.Provider,
	store syncqueue.Store,
	trans syncqueue.Transport,
	api *API,
	cfg Config,
	maxRetries int,
	notifier Notifier,
) (*Agent, error) {
	if cfg.ConnPollInterval <= 0 {
		cfg.ConnPollInterval = 30 * time.Second
	}
	if cfg.ConfigRefresh <= 0 {
		cfg.ConfigRefresh = 10 * time.Minute
	}

	a := &Agent{
		sampler:  location.NewSampler(provider, cfg.LocationTimeout, cfg.HistoryCap),
		api:      api,
		notifier: notifier,
		shifts:   make(map[int64]realtime.LocalShift),
		cfg:      cfg,
	}

	queue, err := syncqueue.NewQueue(store, trans, syncqueue.Config{
		Policy: retry.Default(maxRetries),
		OnExhausted: func(item dto.SyncActionRequest, err error) {
			a.notifyText("同步失败", "动作 "+item.Action+" 多次重试失败已丢弃")
		},
	})
	if err != nil {
		return nil, err
	}
	a.queue = queue

	a.rules = automation.NewRuleEngine(cfg.Cooldown, cfg.ConfirmFirst, nil, &queueExecutor{agent: a})
	a.engine = geofence.NewEngine(geofence.Config{
		DwellThreshold: cfg.DwellThreshold,
		EventLogCap:    cfg.EventLogCap,
		MaxAccuracyM:   cfg.MaxAccuracyM,
	}, nil, nil, a.rules.HandleEvent)

	return a, nil
}

// Start 拉起定位流和后台循环，阻塞直到定位流可用
func (a *Agent) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.RefreshConfig(runCtx); err != nil {
		// 启动时拉不到配置不致命，可能正处于离线，引擎先空转
		logger.Logger.Warn("Initial config fetch failed, starting with empty zone set", zap.Error(err))
	}

	fixes, err := a.sampler.Start(runCtx)
	if err != nil {
		cancel()
		return err
	}

	a.wg.Add(3)
	go a.runFixLoop(runCtx, fixes)
	go a.runConnectivityLoop(runCtx)
	go a.runConfigRefreshLoop(runCtx)

	logger.Logger.Info("Agent started")
	return nil
}

// Stop 停掉所有循环并清理围栏定时器
func (a *Agent) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.sampler.Stop()
	a.wg.Wait()
	a.engine.Close()
	logger.Logger.Info("Agent stopped")
}

func (a *Agent) runFixLoop(ctx context.Context, fixes <-chan location.Fix) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-fixes:
			if !ok {
				return
			}
			// enter/exit 同步返回并已经走过 Sink，这里无需二次分发
			a.engine.OnFix(fix)
		}
	}
}

// runConnectivityLoop 周期探测服务端连通性，驱动队列上下线
func (a *Agent) runConnectivityLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.ConnPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := a.api.Ping(pingCtx)
			cancel()
			a.queue.SetOnline(err == nil)
			if err == nil {
				// SetOnline 只在离线转在线时拉起投递，持续在线
				// 期间还要靠这里把退避到期的队头重新推出去
				if perr := a.queue.Process(ctx); perr != nil {
					logger.Logger.Warn("Periodic drain incomplete", zap.Error(perr))
				}
			}
		}
	}
}

func (a *Agent) runConfigRefreshLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.ConfigRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.RefreshConfig(ctx); err != nil {
				logger.Logger.Warn("Config refresh failed", zap.Error(err))
			}
		}
	}
}

// RefreshConfig 拉取围栏和规则并整体替换
func (a *Agent) RefreshConfig(ctx context.Context) error {
	zones, err := a.api.FetchZones(ctx)
	if err != nil {
		return err
	}
	rules, err := a.api.FetchRules(ctx)
	if err != nil {
		return err
	}

	a.engine.SetZones(zones)
	a.rules.SetRules(rules)

	logger.Logger.Info("Config refreshed",
		zap.Int("zones", len(zones)),
		zap.Int("rules", len(rules)),
	)
	return nil
}

// SetCurrentShift 设备登录或换班时设置当前班次的本地副本
func (a *Agent) SetCurrentShift(shiftID int64, status model.ShiftStatus, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.currentShiftID = shiftID
	a.shifts[shiftID] = realtime.LocalShift{ShiftID: shiftID, Status: status, UpdatedAt: at}
}

// CurrentShiftID 当前班次 ID 的字符串形式，没有则 ok 为 false
func (a *Agent) CurrentShiftID() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.currentShiftID == 0 {
		return "", false
	}
	return strconv.FormatInt(a.currentShiftID, 10), true
}

// markOptimisticStatus 队列动作入队后本地先行更新状态
func (a *Agent) markOptimisticStatus(status model.ShiftStatus, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.currentShiftID == 0 {
		return
	}
	a.shifts[a.currentShiftID] = realtime.LocalShift{
		ShiftID:   a.currentShiftID,
		Status:    status,
		UpdatedAt: at,
	}
}

// ApplyServerUpdate 并入服务端推来的班次状态
func (a *Agent) ApplyServerUpdate(update realtime.ShiftStatusUpdate) {
	shiftID, err := strconv.ParseInt(update.ShiftID, 10, 64)
	if err != nil {
		return
	}

	a.mu.Lock()
	local, known := a.shifts[shiftID]
	a.mu.Unlock()

	if !known {
		local = realtime.LocalShift{ShiftID: shiftID}
	}

	switch realtime.Reconcile(local, update, a.hasPendingActionsFor(update.ShiftID)) {
	case realtime.DecisionApply:
		a.mu.Lock()
		a.shifts[shiftID] = realtime.LocalShift{
			ShiftID:   shiftID,
			Status:    model.ShiftStatus(update.Status),
			UpdatedAt: update.ChangedAt,
		}
		a.mu.Unlock()
	case realtime.DecisionKeepLocal, realtime.DecisionNoop:
	}
}

// hasPendingActionsFor 队列里是否还有该班次的未投递动作
func (a *Agent) hasPendingActionsFor(shiftID string) bool {
	for _, item := range a.queue.Items() {
		var probe struct {
			ShiftID string `json:"shift_id"`
		}
		if err := json.Unmarshal(item.Payload, &probe); err != nil {
			continue
		}
		if probe.ShiftID == shiftID {
			return true
		}
	}
	return false
}

// LocalShift 某个班次的乐观副本
func (a *Agent) LocalShift(shiftID int64) (realtime.LocalShift, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.shifts[shiftID]
	return s, ok
}

// Emergency 一键求助：当前取点后绕过队列直接投递，
// 失败时由队列插到队头兜底
func (a *Agent) Emergency(ctx context.Context, message string) error {
	fix, err := a.sampler.Current(ctx)
	if err != nil {
		return err
	}

	return a.queue.SendImmediate(ctx, dto.SyncActionEmergency, dto.EmergencyPayload{
		Location:  fix.Location,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// QueueStatus 离线队列的状态快照，设备端展示用
func (a *Agent) QueueStatus() syncqueue.Status {
	return a.queue.Status()
}

func (a *Agent) addPendingConfirmation(rule automation.Rule, ev geofence.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending = append(a.pending, Confirmation{
		ID:          uuid.NewString(),
		Rule:        rule,
		Event:       ev,
		RequestedAt: time.Now(),
	})
	a.notifyText("等待确认", "围栏 "+ev.ZoneName+" 触发了 "+string(rule.Action))
}

// PendingConfirmations 等待确认的自动动作副本
func (a *Agent) PendingConfirmations() []Confirmation {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Confirmation, len(a.pending))
	copy(out, a.pending)
	return out
}

// Confirm 人工确认后执行挂起的动作
func (a *Agent) Confirm(id string) error {
	a.mu.Lock()
	var found *Confirmation
	for i := range a.pending {
		if a.pending[i].ID == id {
			c := a.pending[i]
			found = &c
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			break
		}
	}
	a.mu.Unlock()

	if found == nil {
		return pkgerrors.UnknownQueuedAction
	}

	exec := &queueExecutor{agent: a}
	if err := exec.Execute(found.Rule, found.Event); err != nil {
		return err
	}
	a.rules.MarkExecuted()
	return nil
}

// Dismiss 放弃挂起的动作
func (a *Agent) Dismiss(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.pending {
		if a.pending[i].ID == id {
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			return
		}
	}
}

func (a *Agent) notify(rule automation.Rule, ev geofence.Event) {
	a.notifyText("围栏提醒", "围栏 "+ev.ZoneName+" 触发 "+string(ev.Type)+" 事件")
	logger.Logger.Info("Zone alert",
		zap.Int64("rule_id", rule.ID),
		zap.Int64("zone_id", ev.ZoneID),
		zap.String("type", string(ev.Type)),
	)
}

func (a *Agent) notifyText(title, body string) {
	if a.notifier != nil {
		a.notifier(title, body)
		return
	}
	logger.Logger.Info("Notification", zap.String("title", title), zap.String("body", body))
}
