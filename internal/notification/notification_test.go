package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsheringkof667-bot/Bank/internal/logging"
)

func TestRedisNotifierPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, "bank:notifications")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	n := NewRedisNotifier(client, "bank:notifications")
	require.NoError(t, n.Send(ctx, Message{Kind: KindDeposit, Destination: "user-1", Body: "credited"}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, KindDeposit, got.Kind)
	assert.Equal(t, "user-1", got.Destination)
}

func TestRedisNotifierReportsFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	err := NewRedisNotifier(client, "bank:notifications").Send(context.Background(), Message{Kind: KindDeposit})
	assert.Error(t, err)
}

func TestLoggerNotifierNeverFails(t *testing.T) {
	assert.NoError(t, NewLoggerNotifier(logging.Discard()).Send(context.Background(), Message{Kind: KindWithdrawal}))
	var n *LoggerNotifier
	assert.NoError(t, n.Send(context.Background(), Message{}))
}
