package geofence

import "time"

// Clock 时间源，测试里注入手动时钟
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock 真实时钟
func SystemClock() Clock { return systemClock{} }

// Timer 可取消的延迟回调
type Timer interface {
	// Stop 返回 false 表示回调已经触发或已停止
	Stop() bool
}

// TimerFactory 驻留定时器来源，测试里注入手动触发的实现
type TimerFactory interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type systemTimers struct{}

func (systemTimers) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SystemTimers 基于 time.AfterFunc 的真实定时器
func SystemTimers() TimerFactory { return systemTimers{} }
