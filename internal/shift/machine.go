package shift

import (
	"time"

	"GuardTrack/internal/model"
	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/geo"
	"GuardTrack/utils"
)

// 纯状态机，客户端乐观副本和服务端权威副本共用同一套迁移规则。
// 所有函数只改内存对象，不碰存储，落库和广播由调用方负责。

// Actor 发起迁移的主体
type Actor struct {
	GuardID int64
	Admin   bool
	System  bool // 仅 markMissed 这类定时任务使用
}

// requireOwner 校验 actor 是否持有该班次
func requireOwner(s *model.Shift, actor Actor) error {
	if s.GuardID == nil {
		return pkgerrors.ShiftNotAssigned
	}
	if *s.GuardID != actor.GuardID {
		return pkgerrors.OwnershipMismatch
	}
	return nil
}

// CheckIn 上岗：Scheduled -> InProgress。
// 已经 InProgress 且 actualStart 已写入时幂等：只更新位置，不动时间戳，
// 这样离线队列重复投递不会破坏工时记录。
func CheckIn(s *model.Shift, actor Actor, loc geo.Location, at time.Time) (changed bool, err error) {
	if err := loc.Validate(); err != nil {
		return false, err
	}
	if err := requireOwner(s, actor); err != nil {
		return false, err
	}

	switch s.Status {
	case model.ShiftStatusScheduled:
		s.Status = model.ShiftStatusInProgress
		t := at
		s.ActualStart = &t
		l := loc
		s.CheckInLoc = &l
		return true, nil
	case model.ShiftStatusInProgress:
		if s.ActualStart != nil {
			l := loc
			s.CheckInLoc = &l
			return false, nil
		}
		return false, pkgerrors.InvalidStateTransition
	default:
		return false, pkgerrors.InvalidStateTransition
	}
}

// StartBreak 开始休息：InProgress -> OnBreak，同一班次最多一条未关闭休息
func StartBreak(s *model.Shift, actor Actor, hasOpenBreak bool) error {
	if err := requireOwner(s, actor); err != nil {
		return err
	}
	if s.Status != model.ShiftStatusInProgress {
		return pkgerrors.InvalidStateTransition
	}
	if hasOpenBreak {
		return pkgerrors.BreakAlreadyOpen
	}

	s.Status = model.ShiftStatusOnBreak
	return nil
}

// EndBreak 结束休息：OnBreak -> InProgress，关闭传入的那条休息记录
func EndBreak(s *model.Shift, actor Actor, br *model.ShiftBreak, at time.Time) error {
	if err := requireOwner(s, actor); err != nil {
		return err
	}
	if s.Status != model.ShiftStatusOnBreak {
		return pkgerrors.InvalidStateTransition
	}
	if br == nil || br.EndTime != nil {
		return pkgerrors.BreakNotFound
	}

	t := at
	br.EndTime = &t
	s.Status = model.ShiftStatusInProgress
	return nil
}

// CheckOut 下岗：InProgress|OnBreak -> Completed。
// 下岗时还挂着未关闭休息的话，用下岗时间戳把它关掉再结算——
// 不让一条忘记结束的休息把整个班次卡死。
// 休息总时长在此刻汇总所有已关闭休息并写入 TotalBreakMin。
// 已 Completed 且 actualEnd 已写入时幂等，只更新位置。
func CheckOut(s *model.Shift, actor Actor, loc geo.Location, at time.Time, breaks []*model.ShiftBreak) (changed bool, err error) {
	if err := loc.Validate(); err != nil {
		return false, err
	}
	if err := requireOwner(s, actor); err != nil {
		return false, err
	}

	switch s.Status {
	case model.ShiftStatusInProgress, model.ShiftStatusOnBreak:
		// 自动关闭未结束的休息
		for _, br := range breaks {
			if br.EndTime == nil {
				t := at
				br.EndTime = &t
			}
		}

		total := 0
		for _, br := range breaks {
			if br.EndTime != nil {
				total += utils.MinutesBetween(br.StartTime, *br.EndTime)
			}
		}

		s.TotalBreakMin = total
		s.Status = model.ShiftStatusCompleted
		t := at
		s.ActualEnd = &t
		l := loc
		s.CheckOutLoc = &l
		return true, nil
	case model.ShiftStatusCompleted:
		if s.ActualEnd != nil {
			l := loc
			s.CheckOutLoc = &l
			return false, nil
		}
		return false, pkgerrors.InvalidStateTransition
	default:
		return false, pkgerrors.InvalidStateTransition
	}
}

// ReportIncident 事件上报不改状态，只累加计数；班次必须在岗（含休息中）
func ReportIncident(s *model.Shift, actor Actor) error {
	if err := requireOwner(s, actor); err != nil {
		return err
	}
	if s.Status != model.ShiftStatusInProgress && s.Status != model.ShiftStatusOnBreak {
		return pkgerrors.InvalidStateTransition
	}

	s.IncidentCount++
	return nil
}

// MarkMissed 系统定时任务专用：Scheduled -> NoShow
func MarkMissed(s *model.Shift, actor Actor) error {
	if !actor.System {
		return pkgerrors.AdminRequired
	}
	if s.Status != model.ShiftStatusScheduled {
		return pkgerrors.InvalidStateTransition
	}

	s.Status = model.ShiftStatusNoShow
	return nil
}

// Cancel 管理员取消，Completed 不可取消；重复取消幂等
func Cancel(s *model.Shift, actor Actor) (changed bool, err error) {
	if !actor.Admin {
		return false, pkgerrors.AdminRequired
	}

	switch s.Status {
	case model.ShiftStatusCompleted:
		return false, pkgerrors.InvalidStateTransition
	case model.ShiftStatusCancelled:
		return false, nil
	default:
		s.Status = model.ShiftStatusCancelled
		return true, nil
	}
}

// AssignGuard 创建后补挂 guard，仅限还未开始的班次
func AssignGuard(s *model.Shift, actor Actor, guardID int64) error {
	if !actor.Admin {
		return pkgerrors.AdminRequired
	}
	if s.Status != model.ShiftStatusScheduled {
		return pkgerrors.InvalidStateTransition
	}

	s.GuardID = &guardID
	return nil
}
