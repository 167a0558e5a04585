// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Rdb is the global Redis client. Connect it once at application startup.
var Rdb *redis.Client

// DefaultResultQueueName is the Redis list (queue) round results are pushed
// onto for the downstream historian.
var DefaultResultQueueName = "deckards_results"

// DefaultReservationTTL bounds how long an unconsumed seat reservation stays
// valid before the token expires.
const DefaultReservationTTL = 60 * time.Second

// ErrReservationNotFound indicates a consume attempt with a token that never
// existed, already expired, or was already consumed.
var ErrReservationNotFound = errors.New("seat reservation not found or already consumed")

// Reservation is the opaque seat ticket the lobby issues per player when it
// hands a group off to a new game room. Each token admits exactly one
// client, exactly once.
type Reservation struct {
	Token     uuid.UUID `json:"token"`
	RoomID    uuid.UUID `json:"room_id"`
	SessionID string    `json:"session_id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
	ChannelID string    `json:"channel_id,omitempty"`
	IsLeader  bool      `json:"is_leader"`
}

// RoundResultRecord holds the minimal info pushed to the historian queue
// after each settled round.
type RoundResultRecord struct {
	RoomID      uuid.UUID `json:"room_id"`
	Winners     []string  `json:"winners"`
	DealerScore int       `json:"dealer_score"`
	DealerBust  bool      `json:"dealer_bust"`
	Timestamp   int64     `json:"timestamp"`
}

// ConnectRedis initializes the global Redis client with environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() error {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// ReservationStore persists seat reservations with a TTL and consumes them
// atomically, so a token can never admit two connections.
type ReservationStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewReservationStore builds a store around the given client.
func NewReservationStore(rdb *redis.Client, ttl time.Duration) *ReservationStore {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &ReservationStore{rdb: rdb, ttl: ttl}
}

// Put stores a reservation under its token.
func (s *ReservationStore) Put(ctx context.Context, res Reservation) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal reservation: %w", err)
	}
	if err := s.rdb.Set(ctx, reservationKey(res.Token), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store reservation: %w", err)
	}
	return nil
}

// Consume atomically fetches and deletes a reservation. The GETDEL makes
// admission exactly-once: a replayed token gets ErrReservationNotFound.
func (s *ReservationStore) Consume(ctx context.Context, token uuid.UUID) (*Reservation, error) {
	data, err := s.rdb.GetDel(ctx, reservationKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume reservation: %w", err)
	}

	var res Reservation
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reservation: %w", err)
	}
	return &res, nil
}

func reservationKey(token uuid.UUID) string {
	return "seat:" + token.String()
}

// PublishRoundResult serializes the given record to JSON, then pushes it to
// the Redis queue. This does not block game logic beyond a quick network
// send.
func PublishRoundResult(ctx context.Context, record RoundResultRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal RoundResultRecord: %w", err)
	}

	queueName := getEnv("RESULT_QUEUE_NAME", DefaultResultQueueName)
	if err := Rdb.RPush(ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", queueName, err)
	}
	return nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
