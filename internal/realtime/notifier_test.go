package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/models"
)

func TestChannel(t *testing.T) {
	assert.Equal(t, "notifications:42", Channel(42))
}

func TestNotifier_PublishesToRecipient(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := NewRedis(mr.Addr(), "", zap.NewNop())
	defer rdb.Close()

	ctx := context.Background()
	sub := rdb.Subscribe(ctx, Channel(2))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	product := uint(40)
	err = NewNotifier(rdb).NewMessage(ctx, models.Message{
		ID: 9, SenderID: 1, RecipientID: 2, Subject: "Cabai", Body: "Masih ada?",
		ProductID: &product, CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	select {
	case msg := <-sub.Channel():
		var ev NewMessageEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, "new_message", ev.Type)
		assert.Equal(t, uint(9), ev.MessageID)
		assert.Equal(t, uint(1), ev.SenderID)
		require.NotNil(t, ev.ProductID)
		assert.Equal(t, uint(40), *ev.ProductID)
	case <-time.After(time.Second):
		t.Fatal("no notification received")
	}
}
