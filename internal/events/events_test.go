package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/swarm-arena/internal/domain"
)

func TestPublishOverEmbeddedServer(t *testing.T) {
	srv, err := StartEmbedded("", -1)
	require.NoError(t, err)
	defer srv.Close()

	sub, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	msgs, err := sub.SubscribeSync("test.>")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := Connect(srv.ClientURL(), "test", nil)
	require.NoError(t, err)

	event := domain.NewEvent(domain.EventMatchCompleted, domain.MatchEvent{
		MatchID: "m1", Player1: "alice", Player2: "bob", Winner: "alice", Score: [2]int{3, 1},
	})
	require.NoError(t, pub.Publish(context.Background(), event))
	require.NoError(t, pub.Close())

	msg, err := msgs.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "test.match.completed", msg.Subject)

	var got struct {
		Event string            `json:"event"`
		Data  domain.MatchEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, domain.EventMatchCompleted, got.Event)
	assert.Equal(t, "alice", got.Data.Winner)
	assert.Equal(t, [2]int{3, 1}, got.Data.Score)
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	srv, err := StartEmbedded("", -1)
	require.NoError(t, err)
	defer srv.Close()

	pub, err := Connect(srv.ClientURL(), "", nil)
	require.NoError(t, err)
	defer pub.Close()

	assert.Equal(t, "arena.battle.created", pub.Subject(domain.EventBattleCreated))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.Publish(ctx, domain.NewEvent(domain.EventBattleCreated, nil)), context.Canceled)
}
