package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"GuardTrack/internal/model"
	"GuardTrack/internal/model/dto"
	"GuardTrack/internal/realtime"
	"GuardTrack/internal/repository"
	"GuardTrack/internal/shift"
	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/logger"
	"GuardTrack/pkg/metrics"
	"GuardTrack/pkg/snowflake"
)

// ShiftService 班次生命周期的服务端权威实现。
// 所有写操作在事务里行锁读取后套用状态机，提交后才广播。

type ShiftService struct {
	runner repository.TxRunner
	ids    func() (int64, error)

	notifyStatus   func(realtime.ShiftStatusUpdate)
	notifyIncident func(realtime.IncidentAlert)
}

var (
	shiftService *ShiftService
	shiftOnce    sync.Once
)

func Shift() *ShiftService {
	shiftOnce.Do(func() {
		shiftService = NewShiftService(
			repository.NewRunner(),
			snowflake.NextID,
			realtime.NotifyShiftStatus,
			realtime.NotifyIncident,
		)
	})
	return shiftService
}

// NewShiftService 依赖注入构造，测试里替换 runner 和广播出口
func NewShiftService(
	runner repository.TxRunner,
	ids func() (int64, error),
	notifyStatus func(realtime.ShiftStatusUpdate),
	notifyIncident func(realtime.IncidentAlert),
) *ShiftService {
	return &ShiftService{
		runner:         runner,
		ids:            ids,
		notifyStatus:   notifyStatus,
		notifyIncident: notifyIncident,
	}
}

// ParseID 解析对外的字符串 ID
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.InvalidGuard
	}
	return id, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func mapShiftNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.ShiftNotFound
	}
	return err
}

// CreateShift 管理员创建排班。指定了 guard 时先做冲突检测，
// error 级冲突直接拒绝。
func (s *ShiftService) CreateShift(ctx context.Context, actor shift.Actor, req dto.CreateShiftRequest) (*dto.ShiftItem, error) {
	if !actor.Admin {
		return nil, pkgerrors.AdminRequired
	}
	if !req.ScheduledEnd.After(req.ScheduledStart) {
		return nil, pkgerrors.InvalidShiftWindow
	}

	var guardID, siteID *int64
	if req.GuardID != nil {
		id, err := ParseID(*req.GuardID)
		if err != nil {
			return nil, err
		}
		guardID = &id
	}
	if req.SiteID != nil {
		id, err := ParseID(*req.SiteID)
		if err != nil {
			return nil, err
		}
		siteID = &id
	}

	publicID, err := s.ids()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate shift id: %w", err)
	}

	var item *dto.ShiftItem
	err = s.runner.InTx(ctx, func(r repository.Repos) error {
		conflicts, err := s.detectConflicts(ctx, r, guardID, siteID, req.ScheduledStart, req.ScheduledEnd, 0)
		if err != nil {
			return err
		}
		if model.HasBlocking(conflicts) {
			metrics.RecordConflictBlocked(ctx)
			return pkgerrors.ConflictDetected
		}

		m := &model.Shift{
			PublicID:       publicID,
			GuardID:        guardID,
			SiteID:         siteID,
			ScheduledStart: req.ScheduledStart,
			ScheduledEnd:   req.ScheduledEnd,
			Status:         model.ShiftStatusScheduled,
		}
		if err := r.Shifts().Create(ctx, m); err != nil {
			return fmt.Errorf("failed to create shift: %w", err)
		}

		item = toShiftItem(m)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Logger.Info("Shift created",
		zap.Int64("shift_id", publicID),
		zap.Time("scheduled_start", req.ScheduledStart),
	)
	return item, nil
}

// CheckConflicts 冲突检测 dry-run，不落库
func (s *ShiftService) CheckConflicts(ctx context.Context, req dto.ConflictCheckRequest) (*dto.ConflictCheckData, error) {
	if !req.ScheduledEnd.After(req.ScheduledStart) {
		return nil, pkgerrors.InvalidShiftWindow
	}

	guardID, err := ParseID(req.GuardID)
	if err != nil {
		return nil, err
	}

	var siteID *int64
	if req.SiteID != nil {
		id, err := ParseID(*req.SiteID)
		if err != nil {
			return nil, err
		}
		siteID = &id
	}

	var excludeID int64
	if req.ExcludeShiftID != nil {
		excludeID, err = ParseID(*req.ExcludeShiftID)
		if err != nil {
			return nil, err
		}
	}

	conflicts, err := s.detectConflicts(ctx, s.runner.View(), &guardID, siteID, req.ScheduledStart, req.ScheduledEnd, excludeID)
	if err != nil {
		return nil, err
	}

	data := &dto.ConflictCheckData{
		Conflicts: make([]dto.ConflictItem, 0, len(conflicts)),
		Blocking:  model.HasBlocking(conflicts),
	}
	for _, c := range conflicts {
		data.Conflicts = append(data.Conflicts, dto.ConflictItem{
			Severity: string(c.Severity),
			Message:  c.Message,
		})
	}
	return data, nil
}

func (s *ShiftService) detectConflicts(
	ctx context.Context,
	r repository.Repos,
	guardID, siteID *int64,
	start, end time.Time,
	excludeID int64,
) ([]model.ConflictInfo, error) {
	var guardShifts, siteShifts []*model.Shift
	var err error

	if guardID != nil {
		// 窗口外扩到最小间隔，一次查询覆盖重叠和 turnaround 两类检查
		guardShifts, err = r.Shifts().ListNearbyByGuard(ctx, *guardID,
			start.Add(-MinTurnaround), end.Add(MinTurnaround), excludeID)
		if err != nil {
			return nil, fmt.Errorf("failed to list guard shifts: %w", err)
		}
	}
	if siteID != nil {
		siteShifts, err = r.Shifts().ListNearbyBySite(ctx, *siteID, start, end, excludeID)
		if err != nil {
			return nil, fmt.Errorf("failed to list site shifts: %w", err)
		}
	}

	return DetectConflicts(start, end, guardShifts, siteShifts), nil
}

// AssignGuard 给已有班次补挂 guard，同样受冲突检测约束
func (s *ShiftService) AssignGuard(ctx context.Context, actor shift.Actor, shiftID int64, req dto.AssignGuardRequest) (*dto.ShiftItem, error) {
	guardID, err := ParseID(req.GuardID)
	if err != nil {
		return nil, err
	}

	var item *dto.ShiftItem
	err = s.runner.InTx(ctx, func(r repository.Repos) error {
		m, err := r.Shifts().GetForUpdate(ctx, shiftID)
		if err != nil {
			return mapShiftNotFound(err)
		}

		conflicts, err := s.detectConflicts(ctx, r, &guardID, nil, m.ScheduledStart, m.ScheduledEnd, m.PublicID)
		if err != nil {
			return err
		}
		if model.HasBlocking(conflicts) {
			metrics.RecordConflictBlocked(ctx)
			return pkgerrors.ConflictDetected
		}

		if err := shift.AssignGuard(m, actor, guardID); err != nil {
			return err
		}
		if err := r.Shifts().Save(ctx, m); err != nil {
			return fmt.Errorf("failed to save shift: %w", err)
		}

		item = toShiftItem(m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// CheckIn 上岗。重复投递幂等吸收，duplicate 返回 true。
func (s *ShiftService) CheckIn(ctx context.Context, actor shift.Actor, shiftID int64, req dto.CheckInRequest) (*dto.ShiftItem, bool, error) {
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var item *dto.ShiftItem
	var changed bool
	var update realtime.ShiftStatusUpdate

	err := s.runner.InTx(ctx, func(r repository.Repos) error {
		m, err := r.Shifts().GetForUpdate(ctx, shiftID)
		if err != nil {
			return mapShiftNotFound(err)
		}

		from := m.Status
		changed, err = shift.CheckIn(m, actor, req.Location, ts)
		if err != nil {
			return err
		}
		if err := r.Shifts().Save(ctx, m); err != nil {
			return fmt.Errorf("failed to save shift: %w", err)
		}

		item = toShiftItem(m)
		update = statusUpdate(m, from, ts)
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		s.afterTransition(ctx, update)
	}
	return item, !changed, nil
}

// CheckOut 下岗，未关闭休息按下岗时间戳自动关闭
func (s *ShiftService) CheckOut(ctx context.Context, actor shift.Actor, shiftID int64, req dto.CheckOutRequest) (*dto.ShiftItem, bool, error) {
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var item *dto.ShiftItem
	var changed bool
	var update realtime.ShiftStatusUpdate

	err := s.runner.InTx(ctx, func(r repository.Repos) error {
		m, err := r.Shifts().GetForUpdate(ctx, shiftID)
		if err != nil {
			return mapShiftNotFound(err)
		}

		breaks, err := r.Breaks().ListByShift(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("failed to list breaks: %w", err)
		}

		var wasOpen []*model.ShiftBreak
		for _, b := range breaks {
			if b.EndTime == nil {
				wasOpen = append(wasOpen, b)
			}
		}

		from := m.Status
		changed, err = shift.CheckOut(m, actor, req.Location, ts, breaks)
		if err != nil {
			return err
		}

		if req.Notes != nil {
			m.Notes = req.Notes
		}

		for _, b := range wasOpen {
			if err := r.Breaks().Save(ctx, b); err != nil {
				return fmt.Errorf("failed to close break: %w", err)
			}
		}
		if err := r.Shifts().Save(ctx, m); err != nil {
			return fmt.Errorf("failed to save shift: %w", err)
		}

		item = toShiftItem(m)
		update = statusUpdate(m, from, ts)
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		s.afterTransition(ctx, update)
	}
	return item, !changed, nil
}

// StartBreak 开始休息并生成休息记录
func (s *ShiftService) StartBreak(ctx context.Context, actor shift.Actor, shiftID int64, req dto.StartBreakRequest) (*dto.BreakItem, error) {
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	breakID, err := s.ids()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate break id: %w", err)
	}

	var item *dto.BreakItem
	var update realtime.ShiftStatusUpdate

	err = s.runner.InTx(ctx, func(r repository.Repos) error {
		m, err := r.Shifts().GetForUpdate(ctx, shiftID)
		if err != nil {
			return mapShiftNotFound(err)
		}

		open, err := r.Breaks().GetOpen(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("failed to look up open break: %w", err)
		}

		from := m.Status
		if err := shift.StartBreak(m, actor, open != nil); err != nil {
			return err
		}

		b := &model.ShiftBreak{
			PublicID:  breakID,
			ShiftID:   m.ID,
			StartTime: ts,
			Type:      normalizeBreakType(req.BreakType),
			Location:  req.Location,
		}
		if err := r.Breaks().Create(ctx, b); err != nil {
			return fmt.Errorf("failed to create break: %w", err)
		}
		if err := r.Shifts().Save(ctx, m); err != nil {
			return fmt.Errorf("failed to save shift: %w", err)
		}

		item = toBreakItem(b)
		update = statusUpdate(m, from, ts)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, update)
	return item, nil
}

// EndBreak 结束当前未关闭的休息。breakID 非零时要求和未关闭的
// 那条对得上，离线补投带旧 break ID 时直接报 BreakNotFound。
func (s *ShiftService) EndBreak(ctx context.Context, actor shift.Actor, shiftID, breakID int64, req dto.EndBreakRequest) (*dto.BreakItem, error) {
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var item *dto.BreakItem
	var update realtime.ShiftStatusUpdate

	err := s.runner.InTx(ctx, func(r repository.Repos) error {
		m, err := r.Shifts().GetForUpdate(ctx, shiftID)
		if err != nil {
			return mapShiftNotFound(err)
		}

		open, err := r.Breaks().GetOpen(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("failed to look up open break: %w", err)
		}
		if open == nil || (breakID != 0 && open.PublicID != breakID) {
			return pkgerrors.BreakNotFound
		}

		from := m.Status
		if err := shift.EndBreak(m, actor, open, ts); err != nil {
			return err
		}
		if err := r.Breaks().Save(ctx, open); err != nil {
			return fmt.Errorf("failed to save break: %w", err)
		}
		if err := r.Shifts().Save(ctx, m); err != nil {
			return fmt.Errorf("failed to save shift: %w", err)
		}

		item = toBreakItem(open)
		update = statusUpdate(m, from, ts)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, update)
	return item, nil
}

// ReportIncident 巡逻事件上报，不改变班次状态
func (s *ShiftService) ReportIncident(ctx context.Context, actor shift.Actor, shiftID int64, req dto.ReportIncidentRequest) (*dto.IncidentItem, error) {
	incidentID, err := s.ids()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate incident id: %w", err)
	}

	var item *dto.IncidentItem
	var alert realtime.IncidentAlert

	err = s.runner.InTx(ctx, func(r repository.Repos) error {
		m, err := r.Shifts().GetForUpdate(ctx, shiftID)
		if err != nil {
			return mapShiftNotFound(err)
		}

		if err := shift.ReportIncident(m, actor); err != nil {
			return err
		}

		in := &model.Incident{
			PublicID:    incidentID,
			ShiftID:     m.ID,
			Type:        req.Type,
			Severity:    normalizeSeverity(req.Severity),
			Title:       req.Title,
			Description: req.Description,
			Location:    req.Location,
			ReportedAt:  time.Now(),
		}
		if err := r.Incidents().Create(ctx, in); err != nil {
			return fmt.Errorf("failed to create incident: %w", err)
		}
		if err := r.Shifts().Save(ctx, m); err != nil {
			return fmt.Errorf("failed to save shift: %w", err)
		}

		item = toIncidentItem(in)
		alert = realtime.IncidentAlert{
			ShiftID:    formatID(m.PublicID),
			GuardID:    formatID(actor.GuardID),
			Severity:   string(in.Severity),
			Title:      in.Title,
			ReportedAt: in.ReportedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifyIncident != nil {
		s.notifyIncident(alert)
	}
	return item, nil
}

// Cancel 管理员取消班次
func (s *ShiftService) Cancel(ctx context.Context, actor shift.Actor, shiftID int64) (*dto.ShiftItem, error) {
	var item *dto.ShiftItem
	var changed bool
	var update realtime.ShiftStatusUpdate

	err := s.runner.InTx(ctx, func(r repository.Repos) error {
		m, err := r.Shifts().GetForUpdate(ctx, shiftID)
		if err != nil {
			return mapShiftNotFound(err)
		}

		from := m.Status
		changed, err = shift.Cancel(m, actor)
		if err != nil {
			return err
		}
		if err := r.Shifts().Save(ctx, m); err != nil {
			return fmt.Errorf("failed to save shift: %w", err)
		}

		item = toShiftItem(m)
		update = statusUpdate(m, from, time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.afterTransition(ctx, update)
	}
	return item, nil
}

// MarkMissedSweep 定时任务：超过宽限期仍未上岗的班次标记为 NO_SHOW。
// 返回本轮处理条数。
func (s *ShiftService) MarkMissedSweep(ctx context.Context, grace time.Duration, limit int) (int, error) {
	deadline := time.Now().Add(-grace)
	var updates []realtime.ShiftStatusUpdate

	err := s.runner.InTx(ctx, func(r repository.Repos) error {
		shifts, err := r.Shifts().ListScheduledBefore(ctx, deadline, limit)
		if err != nil {
			return fmt.Errorf("failed to list overdue shifts: %w", err)
		}

		for _, m := range shifts {
			from := m.Status
			if err := shift.MarkMissed(m, shift.Actor{System: true}); err != nil {
				// 并发下状态可能已经变了，跳过即可
				continue
			}
			if err := r.Shifts().Save(ctx, m); err != nil {
				return fmt.Errorf("failed to save shift: %w", err)
			}
			updates = append(updates, statusUpdate(m, from, time.Now()))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, u := range updates {
		s.afterTransition(ctx, u)
	}
	return len(updates), nil
}

// List 查询 guard 自己的班次，管理员可查任意 guard
func (s *ShiftService) List(ctx context.Context, guardID int64, q dto.ListShiftsQuery) ([]*dto.ShiftItem, string, error) {
	if q.Status != "" && !model.ShiftStatus(q.Status).Valid() {
		return nil, "", pkgerrors.InvalidStateTransition
	}
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var cursor int64
	if q.Cursor != "" {
		var err error
		cursor, err = ParseID(q.Cursor)
		if err != nil {
			return nil, "", err
		}
	}

	shifts, err := s.runner.View().Shifts().List(ctx, guardID, q.Status, cursor, limit+1)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list shifts: %w", err)
	}

	var nextCursor string
	if len(shifts) > limit {
		nextCursor = formatID(shifts[limit-1].ID)
		shifts = shifts[:limit]
	}

	items := make([]*dto.ShiftItem, 0, len(shifts))
	for _, m := range shifts {
		items = append(items, toShiftItem(m))
	}
	return items, nextCursor, nil
}

// Get 班次详情：基本信息 + 休息 + 事件
func (s *ShiftService) Get(ctx context.Context, actor shift.Actor, shiftID int64) (*dto.ShiftDetail, error) {
	r := s.runner.View()

	m, err := r.Shifts().Get(ctx, shiftID)
	if err != nil {
		return nil, mapShiftNotFound(err)
	}

	if !actor.Admin && (m.GuardID == nil || *m.GuardID != actor.GuardID) {
		return nil, pkgerrors.OwnershipMismatch
	}

	breaks, err := r.Breaks().ListByShift(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list breaks: %w", err)
	}
	incidents, err := r.Incidents().ListByShift(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}

	detail := &dto.ShiftDetail{
		ShiftItem:        *toShiftItem(m),
		CheckInLocation:  m.CheckInLoc,
		CheckOutLocation: m.CheckOutLoc,
		Notes:            m.Notes,
		Breaks:           make([]dto.BreakItem, 0, len(breaks)),
		Incidents:        make([]dto.IncidentItem, 0, len(incidents)),
	}
	for _, b := range breaks {
		detail.Breaks = append(detail.Breaks, *toBreakItem(b))
	}
	for _, in := range incidents {
		detail.Incidents = append(detail.Incidents, *toIncidentItem(in))
	}
	return detail, nil
}

func (s *ShiftService) afterTransition(ctx context.Context, update realtime.ShiftStatusUpdate) {
	metrics.RecordShiftTransition(ctx, update.PrevStatus, update.Status)
	if s.notifyStatus != nil {
		s.notifyStatus(update)
	}
}

func statusUpdate(m *model.Shift, from model.ShiftStatus, at time.Time) realtime.ShiftStatusUpdate {
	var guard string
	if m.GuardID != nil {
		guard = formatID(*m.GuardID)
	}
	return realtime.ShiftStatusUpdate{
		ShiftID:    formatID(m.PublicID),
		GuardID:    guard,
		Status:     string(m.Status),
		PrevStatus: string(from),
		ChangedAt:  at,
	}
}

func normalizeBreakType(raw string) model.BreakType {
	switch model.BreakType(raw) {
	case model.BreakTypeMeal, model.BreakTypeRest, model.BreakTypeCustom:
		return model.BreakType(raw)
	default:
		return model.BreakTypeRest
	}
}

func normalizeSeverity(raw string) model.IncidentSeverity {
	switch model.IncidentSeverity(raw) {
	case model.IncidentSeverityLow, model.IncidentSeverityMedium,
		model.IncidentSeverityHigh, model.IncidentSeverityCritical:
		return model.IncidentSeverity(raw)
	default:
		return model.IncidentSeverityLow
	}
}

func toShiftItem(m *model.Shift) *dto.ShiftItem {
	item := &dto.ShiftItem{
		ID:             formatID(m.PublicID),
		Status:         string(m.Status),
		ScheduledStart: m.ScheduledStart,
		ScheduledEnd:   m.ScheduledEnd,
		ActualStart:    m.ActualStart,
		ActualEnd:      m.ActualEnd,
		TotalBreakMin:  m.TotalBreakMin,
		IncidentCount:  m.IncidentCount,
	}
	if m.GuardID != nil {
		g := formatID(*m.GuardID)
		item.GuardID = &g
	}
	if m.SiteID != nil {
		s := formatID(*m.SiteID)
		item.SiteID = &s
	}
	return item
}

func toBreakItem(b *model.ShiftBreak) *dto.BreakItem {
	return &dto.BreakItem{
		ID:        formatID(b.PublicID),
		Type:      string(b.Type),
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		Location:  b.Location,
	}
}

func toIncidentItem(in *model.Incident) *dto.IncidentItem {
	return &dto.IncidentItem{
		ID:         formatID(in.PublicID),
		Type:       in.Type,
		Severity:   string(in.Severity),
		Title:      in.Title,
		ReportedAt: in.ReportedAt,
		Location:   in.Location,
	}
}
