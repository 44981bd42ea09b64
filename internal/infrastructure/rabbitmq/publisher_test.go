package rabbitmq

import (
	"context"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
)

func TestAwaitConfirm(t *testing.T) {
	tests := []struct {
		name     string
		tag      uint64
		confirms []amqp.Confirmation
		wantErr  string
	}{
		{
			name:     "ack for own tag",
			tag:      1,
			confirms: []amqp.Confirmation{{DeliveryTag: 1, Ack: true}},
		},
		{
			name:     "nack for own tag",
			tag:      1,
			confirms: []amqp.Confirmation{{DeliveryTag: 1, Ack: false}},
			wantErr:  "nacked",
		},
		{
			name: "late ack of an abandoned send is skipped",
			tag:  2,
			confirms: []amqp.Confirmation{
				{DeliveryTag: 1, Ack: true},
				{DeliveryTag: 2, Ack: false},
			},
			wantErr: "nacked",
		},
		{
			name: "several stale confirmations",
			tag:  4,
			confirms: []amqp.Confirmation{
				{DeliveryTag: 1, Ack: false},
				{DeliveryTag: 2, Ack: false},
				{DeliveryTag: 3, Ack: true},
				{DeliveryTag: 4, Ack: true},
			},
		},
		{
			name:     "tag skipped",
			tag:      2,
			confirms: []amqp.Confirmation{{DeliveryTag: 3, Ack: true}},
			wantErr:  "missed",
		},
		{
			name:     "no confirmation",
			tag:      1,
			confirms: nil,
			wantErr:  "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			confirms := make(chan amqp.Confirmation, len(tt.confirms))
			for _, c := range tt.confirms {
				confirms <- c
			}

			err := awaitConfirm(context.Background(), confirms, tt.tag, 20*time.Millisecond)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestAwaitConfirm_ClosedChannel(t *testing.T) {
	confirms := make(chan amqp.Confirmation)
	close(confirms)

	err := awaitConfirm(context.Background(), confirms, 1, time.Second)
	assert.EqualError(t, err, "confirm channel closed")
}

func TestAwaitConfirm_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := awaitConfirm(ctx, make(chan amqp.Confirmation), 1, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
