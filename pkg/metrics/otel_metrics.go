package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics 领域指标集合
type OTelMetrics struct {
	// 地理围栏相关
	GeofenceEventTotal   metric.Int64Counter
	GeofenceActiveZones  metric.Int64UpDownCounter

	// 自动化规则相关
	AutomationTriggered  metric.Int64Counter
	AutomationSuppressed metric.Int64Counter

	// 离线同步队列相关
	SyncAttemptTotal   metric.Int64Counter
	SyncExhaustedTotal metric.Int64Counter
	SyncQueueLength    metric.Int64UpDownCounter

	// 班次相关
	ShiftTransitionTotal metric.Int64Counter
	ConflictBlockedTotal metric.Int64Counter
}

var (
	metrics *OTelMetrics
	meter   = otel.Meter("guardtrack")
)

// InitMetrics 初始化 OpenTelemetry 指标
func InitMetrics() error {
	var err error

	metrics = &OTelMetrics{}

	metrics.GeofenceEventTotal, err = meter.Int64Counter(
		"geofence_event_total",
		metric.WithDescription("Total number of geofence enter/exit/dwell events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	metrics.GeofenceActiveZones, err = meter.Int64UpDownCounter(
		"geofence_active_zones",
		metric.WithDescription("Number of zones the device is currently inside"),
		metric.WithUnit("{zone}"),
	)
	if err != nil {
		return err
	}

	metrics.AutomationTriggered, err = meter.Int64Counter(
		"automation_triggered_total",
		metric.WithDescription("Total number of executed automation actions"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return err
	}

	metrics.AutomationSuppressed, err = meter.Int64Counter(
		"automation_suppressed_total",
		metric.WithDescription("Automation actions suppressed by the global cooldown"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return err
	}

	metrics.SyncAttemptTotal, err = meter.Int64Counter(
		"sync_attempt_total",
		metric.WithDescription("Total number of mutation queue delivery attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	metrics.SyncExhaustedTotal, err = meter.Int64Counter(
		"sync_exhausted_total",
		metric.WithDescription("Queue items dropped after exhausting retries"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return err
	}

	metrics.SyncQueueLength, err = meter.Int64UpDownCounter(
		"sync_queue_length",
		metric.WithDescription("Current number of pending mutation queue items"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return err
	}

	metrics.ShiftTransitionTotal, err = meter.Int64Counter(
		"shift_transition_total",
		metric.WithDescription("Committed shift status transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return err
	}

	metrics.ConflictBlockedTotal, err = meter.Int64Counter(
		"conflict_blocked_total",
		metric.WithDescription("Shift creations or assignments blocked by conflict detection"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordGeofenceEvent 记录一次围栏事件
func RecordGeofenceEvent(ctx context.Context, eventType string) {
	if metrics == nil {
		return
	}
	metrics.GeofenceEventTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordAutomation 记录自动化执行或被冷却抑制
func RecordAutomation(ctx context.Context, action string, suppressed bool) {
	if metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("action", action))
	if suppressed {
		metrics.AutomationSuppressed.Add(ctx, 1, attrs)
		return
	}
	metrics.AutomationTriggered.Add(ctx, 1, attrs)
}

// RecordSyncAttempt 记录一次队列投递尝试
func RecordSyncAttempt(ctx context.Context, action string, success bool) {
	if metrics == nil {
		return
	}
	metrics.SyncAttemptTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.Bool("success", success),
	))
}

// RecordSyncExhausted 记录一次重试耗尽
func RecordSyncExhausted(ctx context.Context, action string) {
	if metrics == nil {
		return
	}
	metrics.SyncExhaustedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
	))
}

// AddQueueLength 队列长度增减
func AddQueueLength(ctx context.Context, delta int64) {
	if metrics == nil {
		return
	}
	metrics.SyncQueueLength.Add(ctx, delta)
}

// RecordShiftTransition 记录一次已提交的状态迁移
func RecordShiftTransition(ctx context.Context, from, to string) {
	if metrics == nil {
		return
	}
	metrics.ShiftTransitionTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordConflictBlocked 记录一次被冲突检测拦截的操作
func RecordConflictBlocked(ctx context.Context) {
	if metrics == nil {
		return
	}
	metrics.ConflictBlockedTotal.Add(ctx, 1)
}
