package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type failing struct{}

func (failing) Publish(context.Context, Event) error { return errors.New("broker down") }
func (failing) Close() error { return nil }

func TestEmitLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	Emit(context.Background(), failing{}, zap.New(core), New(OrderSynced, "u1", "o1", decimal.NewFromInt(5)))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "failed to publish event", logs.All()[0].Message)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	Emit(context.Background(), r, zap.NewNop(), New(OrderCommitted, "u1", "o1", decimal.NewFromInt(250)))
	Emit(context.Background(), r, zap.NewNop(), New(OrderCancelled, "u1", "o1", decimal.NewFromInt(250)))
	assert.Equal(t, []Type{OrderCommitted, OrderCancelled}, r.Types())
}

func TestEventJSON(t *testing.T) {
	ev := New(PaymentRecorded, "u1", "o1", decimal.RequireFromString("99.50"))
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "payment.recorded", m["type"])
	assert.Equal(t, "99.5", m["amount"])
	assert.NotEmpty(t, m["id"])
}
