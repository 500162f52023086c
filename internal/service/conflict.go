package service

import (
	"fmt"
	"time"

	"GuardTrack/internal/model"
)

// 排班冲突检测，纯函数。调用方在同一个事务里先取出相邻班次，
// 读写同事务，写入前的检测结果不会被并发创建绕过。

// MinTurnaround 两个班次之间要求的最小间隔
const MinTurnaround = 30 * time.Minute

// overlaps 半开区间相交判定
func overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// DetectConflicts 对候选时段做冲突检测。
// guardShifts 是同一 guard 的相邻班次（调用方已按 MinTurnaround 外扩窗口取出），
// siteShifts 是同一站点时段内的其他班次。
// guard 时段重叠是硬冲突（error），站点重复排岗和间隔不足是提示（warning）。
func DetectConflicts(start, end time.Time, guardShifts, siteShifts []*model.Shift) []model.ConflictInfo {
	var conflicts []model.ConflictInfo

	for _, s := range guardShifts {
		if overlaps(start, end, s.ScheduledStart, s.ScheduledEnd) {
			conflicts = append(conflicts, model.ConflictInfo{
				Severity: model.ConflictSeverityError,
				Message: fmt.Sprintf("guard already scheduled %s ~ %s (shift %d)",
					s.ScheduledStart.Format(time.RFC3339), s.ScheduledEnd.Format(time.RFC3339), s.PublicID),
			})
			continue
		}

		// 间隔不足：上一班结束到本班开始（或反向）小于最小休息间隔
		gapBefore := start.Sub(s.ScheduledEnd)
		gapAfter := s.ScheduledStart.Sub(end)
		if (gapBefore >= 0 && gapBefore < MinTurnaround) || (gapAfter >= 0 && gapAfter < MinTurnaround) {
			conflicts = append(conflicts, model.ConflictInfo{
				Severity: model.ConflictSeverityWarning,
				Message: fmt.Sprintf("less than %d minutes turnaround from shift %d",
					int(MinTurnaround.Minutes()), s.PublicID),
			})
		}
	}

	for _, s := range siteShifts {
		if overlaps(start, end, s.ScheduledStart, s.ScheduledEnd) {
			conflicts = append(conflicts, model.ConflictInfo{
				Severity: model.ConflictSeverityWarning,
				Message:  fmt.Sprintf("site already covered by shift %d in this window", s.PublicID),
			})
		}
	}

	return conflicts
}
