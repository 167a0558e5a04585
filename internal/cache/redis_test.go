package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*ReservationStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewReservationStore(client, DefaultReservationTTL), mr
}

func TestReservationPutAndConsume(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	res := Reservation{
		Token:     uuid.New(),
		RoomID:    uuid.New(),
		SessionID: "s1",
		Username:  "player1",
		IsLeader:  true,
	}
	require.NoError(t, store.Put(ctx, res))

	got, err := store.Consume(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.RoomID, got.RoomID)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "player1", got.Username)
	assert.True(t, got.IsLeader)
}

func TestReservationConsumeIsExactlyOnce(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	res := Reservation{Token: uuid.New(), RoomID: uuid.New(), SessionID: "s1"}
	require.NoError(t, store.Put(ctx, res))

	_, err := store.Consume(ctx, res.Token)
	require.NoError(t, err)

	_, err = store.Consume(ctx, res.Token)
	assert.ErrorIs(t, err, ErrReservationNotFound, "a replayed token must be rejected")
}

func TestReservationUnknownToken(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Consume(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestReservationExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	res := Reservation{Token: uuid.New(), RoomID: uuid.New(), SessionID: "s1"}
	require.NoError(t, store.Put(ctx, res))

	mr.FastForward(DefaultReservationTTL + time.Second)

	_, err := store.Consume(ctx, res.Token)
	assert.ErrorIs(t, err, ErrReservationNotFound, "expired tokens no longer admit")
}

func TestConnectRedisReportsUnreachableServer(t *testing.T) {
	prev := Rdb
	t.Cleanup(func() { Rdb = prev })

	// Port 1 refuses connections; callers must see the failure instead of
	// a client that errors on first use.
	t.Setenv("REDIS_ADDR", "127.0.0.1:1")
	assert.Error(t, ConnectRedis())
}

func TestPublishRoundResult(t *testing.T) {
	mr := miniredis.RunT(t)
	prev := Rdb
	Rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { Rdb = prev })

	record := RoundResultRecord{
		RoomID:      uuid.New(),
		Winners:     []string{"player1"},
		DealerScore: 19,
		DealerBust:  false,
		Timestamp:   time.Now().Unix(),
	}
	require.NoError(t, PublishRoundResult(context.Background(), record))

	items, err := mr.List(DefaultResultQueueName)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0], record.RoomID.String())
	assert.Contains(t, items[0], "player1")
}
