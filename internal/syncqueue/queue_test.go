package syncqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GuardTrack/internal/model/dto"
	pkgerrors "GuardTrack/pkg/errors"
	"GuardTrack/pkg/retry"
)

// scriptedTransport 按调用顺序回放结果，耗尽后全部成功
type scriptedTransport struct {
	results   []error
	delivered []dto.SyncActionRequest
	onDeliver func(item dto.SyncActionRequest)
}

func (t *scriptedTransport) Deliver(_ context.Context, item dto.SyncActionRequest) (Delivery, error) {
	t.delivered = append(t.delivered, item)
	if t.onDeliver != nil {
		t.onDeliver(item)
	}
	if len(t.results) == 0 {
		return Delivery{}, nil
	}
	err := t.results[0]
	t.results = t.results[1:]
	return Delivery{}, err
}

func newTestQueue(t *testing.T, trans Transport, cfg Config) *Queue {
	t.Helper()
	q, err := NewQueue(NewMemoryStore(), trans, cfg)
	require.NoError(t, err)
	return q
}

func TestProcessDrainsInOrder(t *testing.T) {
	trans := &scriptedTransport{}
	q := newTestQueue(t, trans, Config{Policy: retry.Policy{MaxAttempts: 5}})

	_, err := q.Enqueue(dto.SyncActionCheckIn, dto.CheckInPayload{ShiftID: "1"})
	require.NoError(t, err)
	_, err = q.Enqueue(dto.SyncActionBreakStart, dto.BreakStartPayload{ShiftID: "1"})
	require.NoError(t, err)
	_, err = q.Enqueue(dto.SyncActionCheckOut, dto.CheckOutPayload{ShiftID: "1"})
	require.NoError(t, err)

	require.NoError(t, q.Process(context.Background()))

	require.Len(t, trans.delivered, 3)
	assert.Equal(t, dto.SyncActionCheckIn, trans.delivered[0].Action)
	assert.Equal(t, dto.SyncActionBreakStart, trans.delivered[1].Action)
	assert.Equal(t, dto.SyncActionCheckOut, trans.delivered[2].Action)
	assert.Zero(t, q.Status().Pending)
}

// 重试上限：第 5 次尝试失败后丢弃并回调
func TestRetryCeilingDropsAction(t *testing.T) {
	trans := &scriptedTransport{results: []error{
		pkgerrors.SyncFailure, pkgerrors.SyncFailure, pkgerrors.SyncFailure,
		pkgerrors.SyncFailure, pkgerrors.SyncFailure, pkgerrors.SyncFailure,
	}}

	var dropped []dto.SyncActionRequest
	var causes []error
	q := newTestQueue(t, trans, Config{
		Policy: retry.Policy{MaxAttempts: 5},
		OnExhausted: func(item dto.SyncActionRequest, err error) {
			dropped = append(dropped, item)
			causes = append(causes, err)
		},
	})

	_, err := q.Enqueue(dto.SyncActionCheckIn, dto.CheckInPayload{ShiftID: "1"})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_ = q.Process(context.Background())
	}

	assert.Len(t, trans.delivered, 5, "exactly maxRetries attempts, then dropped")
	require.Len(t, dropped, 1)
	assert.Equal(t, dto.SyncActionCheckIn, dropped[0].Action)
	assert.ErrorIs(t, causes[0], pkgerrors.SyncExhausted)
	assert.Zero(t, q.Status().Pending)
}

func TestHeadOfLineFailureStopsRound(t *testing.T) {
	trans := &scriptedTransport{results: []error{pkgerrors.SyncFailure}}
	q := newTestQueue(t, trans, Config{Policy: retry.Policy{MaxAttempts: 5}})

	_, err := q.Enqueue(dto.SyncActionCheckIn, dto.CheckInPayload{ShiftID: "1"})
	require.NoError(t, err)
	_, err = q.Enqueue(dto.SyncActionCheckOut, dto.CheckOutPayload{ShiftID: "1"})
	require.NoError(t, err)

	// 队头失败本轮终止，保持顺序
	err = q.Process(context.Background())
	assert.ErrorIs(t, err, pkgerrors.SyncFailure)
	assert.Len(t, trans.delivered, 1)
	assert.Equal(t, 2, q.Status().Pending)

	// 下一轮队头成功后继续排空
	require.NoError(t, q.Process(context.Background()))
	assert.Len(t, trans.delivered, 3)
	assert.Zero(t, q.Status().Pending)
}

func TestPermanentRejectionDroppedWithoutRetry(t *testing.T) {
	trans := &scriptedTransport{results: []error{
		&PermanentError{Err: pkgerrors.UnknownQueuedAction},
	}}

	var dropped []dto.SyncActionRequest
	q := newTestQueue(t, trans, Config{
		Policy:      retry.Policy{MaxAttempts: 5},
		OnExhausted: func(item dto.SyncActionRequest, _ error) { dropped = append(dropped, item) },
	})

	_, err := q.Enqueue("bogus_action", struct{}{})
	require.NoError(t, err)

	require.NoError(t, q.Process(context.Background()))
	assert.Len(t, trans.delivered, 1)
	assert.Len(t, dropped, 1)
	assert.Zero(t, q.Status().Pending)
}

// 离线场景：断网期间入队的动作在重启后原样恢复，联网一次性排空
func TestOfflineActionsSurviveRestart(t *testing.T) {
	store := NewMemoryStore()
	trans := &scriptedTransport{}

	q1, err := NewQueue(store, trans, Config{Policy: retry.Policy{MaxAttempts: 5}})
	require.NoError(t, err)
	q1.SetOnline(false)

	_, err = q1.Enqueue(dto.SyncActionCheckIn, dto.CheckInPayload{ShiftID: "1"})
	require.NoError(t, err)
	_, err = q1.Enqueue(dto.SyncActionIncident, dto.IncidentPayload{ShiftID: "1", Title: "gate damaged"})
	require.NoError(t, err)

	// 模拟进程重启
	q2, err := NewQueue(store, trans, Config{Policy: retry.Policy{MaxAttempts: 5}})
	require.NoError(t, err)
	assert.Equal(t, 2, q2.Status().Pending)

	require.NoError(t, q2.Process(context.Background()))
	require.Len(t, trans.delivered, 2)
	assert.Equal(t, dto.SyncActionCheckIn, trans.delivered[0].Action)
	assert.Equal(t, dto.SyncActionIncident, trans.delivered[1].Action)
	assert.Zero(t, q2.Status().Pending)
}

// Process 不可重入：投递回调里再触发一轮不会重复处理
func TestProcessNotReentrant(t *testing.T) {
	trans := &scriptedTransport{}
	q := newTestQueue(t, trans, Config{Policy: retry.Policy{MaxAttempts: 5}})
	trans.onDeliver = func(_ dto.SyncActionRequest) {
		assert.NoError(t, q.Process(context.Background()))
	}

	_, err := q.Enqueue(dto.SyncActionCheckIn, dto.CheckInPayload{ShiftID: "1"})
	require.NoError(t, err)
	_, err = q.Enqueue(dto.SyncActionCheckOut, dto.CheckOutPayload{ShiftID: "1"})
	require.NoError(t, err)

	require.NoError(t, q.Process(context.Background()))
	assert.Len(t, trans.delivered, 2)
}

// 处理中入队的条目归入下一轮，本轮快照不受影响
func TestEnqueueDuringProcessingDeferred(t *testing.T) {
	trans := &scriptedTransport{}
	q := newTestQueue(t, trans, Config{Policy: retry.Policy{MaxAttempts: 5}})

	enqueued := false
	trans.onDeliver = func(_ dto.SyncActionRequest) {
		if !enqueued {
			enqueued = true
			_, err := q.Enqueue(dto.SyncActionPatrolPoint, dto.ZoneActionPayload{ZoneID: "9"})
			require.NoError(t, err)
		}
	}

	_, err := q.Enqueue(dto.SyncActionCheckIn, dto.CheckInPayload{ShiftID: "1"})
	require.NoError(t, err)

	require.NoError(t, q.Process(context.Background()))
	assert.Len(t, trans.delivered, 1)
	assert.Equal(t, 1, q.Status().Pending, "mid-round enqueue waits for the next round")

	trans.onDeliver = nil
	require.NoError(t, q.Process(context.Background()))
	assert.Zero(t, q.Status().Pending)
}

func TestSendImmediateFallsBackToHeadOfQueue(t *testing.T) {
	trans := &scriptedTransport{results: []error{pkgerrors.SyncFailure}}
	q := newTestQueue(t, trans, Config{Policy: retry.Policy{MaxAttempts: 5}})

	_, err := q.Enqueue(dto.SyncActionCheckIn, dto.CheckInPayload{ShiftID: "1"})
	require.NoError(t, err)

	err = q.SendImmediate(context.Background(), dto.SyncActionEmergency, dto.EmergencyPayload{Message: "man down"})
	assert.ErrorIs(t, err, pkgerrors.SyncFailure)

	items := q.Items()
	require.Len(t, items, 2)
	assert.Equal(t, dto.SyncActionEmergency, items[0].Action, "emergency jumps the queue")
}

func TestDuplicateDeliveryCountsAsSuccess(t *testing.T) {
	trans := &dupTransport{}
	q := newTestQueue(t, trans, Config{Policy: retry.Policy{MaxAttempts: 5}})

	_, err := q.Enqueue(dto.SyncActionCheckIn, dto.CheckInPayload{ShiftID: "1"})
	require.NoError(t, err)

	require.NoError(t, q.Process(context.Background()))
	assert.Zero(t, q.Status().Pending)
}

type dupTransport struct{}

func (dupTransport) Deliver(_ context.Context, _ dto.SyncActionRequest) (Delivery, error) {
	return Delivery{Duplicate: true}, nil
}

// 退避窗口内不开新一轮，避免对不可达的服务端打空转
func TestBackoffGateDefersNextRound(t *testing.T) {
	trans := &scriptedTransport{results: []error{pkgerrors.SyncFailure, pkgerrors.SyncFailure}}
	q := newTestQueue(t, trans, Config{
		Policy: retry.Policy{MaxAttempts: 5, BaseDelay: time.Hour},
	})

	_, err := q.Enqueue(dto.SyncActionCheckIn, dto.CheckInPayload{ShiftID: "1"})
	require.NoError(t, err)

	err = q.Process(context.Background())
	assert.ErrorIs(t, err, pkgerrors.SyncFailure)
	assert.Len(t, trans.delivered, 1)

	// 门闩生效：退避未到期的调用是 no-op
	require.NoError(t, q.Process(context.Background()))
	assert.Len(t, trans.delivered, 1)
	assert.Equal(t, 1, q.Status().Pending)
}
