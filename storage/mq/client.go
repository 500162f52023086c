package mq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"GuardTrack/config"
)

// 事件广播走 topic exchange，worker 各自绑定感兴趣的 routing key

const (
	// ExchangeEvents 服务端事件广播
	ExchangeEvents = "guardtrack.events"

	// QueueRealtime worker 消费的实时下发队列
	QueueRealtime = "guardtrack.realtime"

	// 路由键按 <域>.<事件> 组织
	RoutingShiftStatus    = "shift.status"
	RoutingGeofenceEvent  = "geofence.event"
	RoutingIncidentAlert  = "alert.incident"
	RoutingEmergencyAlert = "alert.emergency"
)

var (
	conn    *amqp.Connection
	connMu  sync.Mutex
	initErr error
)

func Init() error {
	connMu.Lock()
	defer connMu.Unlock()

	if conn != nil && !conn.IsClosed() {
		return nil
	}

	conn, initErr = amqp.Dial(config.Cfg.GetRabbitMQURL())
	if initErr != nil {
		return initErr
	}

	return setupTopology()
}

// setupTopology 声明交换机和队列，幂等
func setupTopology() error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		ExchangeEvents,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		QueueRealtime,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	for _, key := range []string{RoutingShiftStatus, RoutingGeofenceEvent, RoutingIncidentAlert, RoutingEmergencyAlert} {
		if err := ch.QueueBind(QueueRealtime, key, ExchangeEvents, false, nil); err != nil {
			return err
		}
	}

	return nil
}

func Connection() *amqp.Connection {
	connMu.Lock()
	defer connMu.Unlock()
	return conn
}

func Close(ctx context.Context) error {
	connMu.Lock()
	defer connMu.Unlock()

	if conn == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
