package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Controller is the registration record for one physical board controller.
// last_seen is unix milliseconds of the latest register or heartbeat.
type Controller struct {
	BoardID      string `json:"board_id"`
	BoardVersion string `json:"board_version"`
	LastSeen     int64  `json:"last_seen"`
	GameID       string `json:"game_id"`
}

// Controllers tracks board registrations in redis. A controller is live while
// its last_seen is within the liveness window; a live registration blocks a
// second controller from claiming the same board id.
type Controllers struct {
	rdb    *redis.Client
	window time.Duration
	now    func() time.Time
}

func NewControllers(rdb *redis.Client, window time.Duration) *Controllers {
	return &Controllers{rdb: rdb, window: window, now: time.Now}
}

func controllerKey(boardID string) string {
	return "chess:controller:" + strings.TrimSpace(boardID)
}

// Register claims boardID for a controller reporting version. Registering over
// a live record fails with ErrControllerActive; registering over a stale one
// succeeds and carries the previous game assignment forward, so a controller
// restart does not orphan its game.
func (s *Controllers) Register(ctx context.Context, boardID, version string) (*Controller, error) {
	key := controllerKey(boardID)
	var out *Controller
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		prev, err := fetch(ctx, tx, key)
		if err != nil {
			return err
		}
		rec := &Controller{
			BoardID:      strings.TrimSpace(boardID),
			BoardVersion: strings.TrimSpace(version),
			LastSeen:     s.now().UnixMilli(),
		}
		if prev != nil {
			if s.Live(prev) {
				return ErrControllerActive
			}
			rec.GameID = prev.GameID
		}
		if err := s.put(ctx, tx, key, rec); err != nil {
			return err
		}
		out = rec
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Heartbeat refreshes last_seen for a registered controller.
func (s *Controllers) Heartbeat(ctx context.Context, boardID string) (*Controller, error) {
	return s.mutate(ctx, boardID, func(rec *Controller) {
		rec.LastSeen = s.now().UnixMilli()
	})
}

// AssignGame records the game currently mounted on the board.
func (s *Controllers) AssignGame(ctx context.Context, boardID, gameID string) (*Controller, error) {
	return s.mutate(ctx, boardID, func(rec *Controller) {
		rec.GameID = gameID
	})
}

// Get returns the registration record for boardID.
func (s *Controllers) Get(ctx context.Context, boardID string) (*Controller, error) {
	raw, err := s.rdb.Get(ctx, controllerKey(boardID)).Bytes()
	if err == redis.Nil {
		return nil, ErrControllerUnknown
	}
	if err != nil {
		return nil, err
	}
	var rec Controller
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Live reports whether the record's last_seen falls inside the liveness window.
func (s *Controllers) Live(rec *Controller) bool {
	return s.now().Sub(time.UnixMilli(rec.LastSeen)) < s.window
}

func (s *Controllers) mutate(ctx context.Context, boardID string, apply func(*Controller)) (*Controller, error) {
	key := controllerKey(boardID)
	var out *Controller
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		rec, err := fetch(ctx, tx, key)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrControllerUnknown
		}
		apply(rec)
		if err := s.put(ctx, tx, key, rec); err != nil {
			return err
		}
		out = rec
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Controllers) put(ctx context.Context, tx *redis.Tx, key string, rec *Controller) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := tx.TxPipeline()
	pipe.Set(ctx, key, raw, 0)
	_, err = pipe.Exec(ctx)
	return err
}

func fetch(ctx context.Context, tx *redis.Tx, key string) (*Controller, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Controller
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
