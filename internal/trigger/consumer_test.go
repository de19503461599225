package trigger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/trigger"
)

type fakeAcknowledger struct {
	mu       sync.Mutex
	acked    []uint64
	nacked   []uint64
	rejected []uint64
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = append(f.nacked, tag)
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, tag)
	return nil
}

type countingKicker struct {
	mu    sync.Mutex
	kicks int
}

func (k *countingKicker) Kick() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.kicks++
	return k.kicks == 1
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    trigger.Message
		wantErr bool
	}{
		{
			name: "full",
			body: `{"event":"orders.loaded","source":"order-service"}`,
			want: trigger.Message{Event: "orders.loaded", Source: "order-service"},
		},
		{
			name: "event only",
			body: `{"event":" refresh "}`,
			want: trigger.Message{Event: "refresh"},
		},
		{name: "missing event", body: `{"source":"order-service"}`, wantErr: true},
		{name: "blank event", body: `{"event":"  "}`, wantErr: true},
		{name: "not json", body: `refresh please`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := trigger.ParseMessage([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDrain(t *testing.T) {
	ack := &fakeAcknowledger{}
	kicker := &countingKicker{}
	msgs := make(chan amqp.Delivery, 3)

	msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(`{"event":"orders.loaded"}`)}
	msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte(`garbage`)}
	msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: []byte(`{"event":"events.loaded"}`)}
	close(msgs)

	err := trigger.Drain(context.Background(), msgs, kicker)
	assert.ErrorIs(t, err, trigger.ErrDeliveriesClosed)

	assert.Equal(t, 2, kicker.kicks, "malformed messages do not request a refresh")
	assert.Equal(t, []uint64{1, 2, 3}, ack.acked, "every delivery is acknowledged")
	assert.Empty(t, ack.nacked)
	assert.Empty(t, ack.rejected)
}

func TestDrain_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	msgs := make(chan amqp.Delivery)

	done := make(chan error, 1)
	go func() { done <- trigger.Drain(ctx, msgs, &countingKicker{}) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("drain did not stop")
	}
}
