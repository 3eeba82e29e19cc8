package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/robochess/server/internal/game"
)

// Games persists game documents in redis. ttl == 0 keeps records forever.
type Games struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewGames(rdb *redis.Client, ttl time.Duration) *Games {
	return &Games{rdb: rdb, ttl: ttl}
}

func gameKey(id string) string { return "chess:game:" + strings.TrimSpace(id) }

// Save writes the session's document unconditionally. Used for creation; all
// later mutations go through Update.
func (s *Games) Save(ctx context.Context, sess *game.Session) error {
	raw, err := json.Marshal(game.ToDocument(sess))
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, gameKey(sess.ID), raw, s.ttl).Err()
}

// Load reads and validates the document for id.
func (s *Games) Load(ctx context.Context, id string) (*game.Session, error) {
	raw, err := s.rdb.Get(ctx, gameKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

// Update applies fn to the stored session under an optimistic WATCH
// transaction: the read, the transition and the write form one compare-and-set
// on the game key. A concurrent writer aborts the transaction; one retry is
// attempted before the conflict is surfaced.
func (s *Games) Update(ctx context.Context, id string, fn func(*game.Session) (*game.Session, error)) (*game.Session, error) {
	key := gameKey(id)
	var out *game.Session

	attempt := func() error {
		return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return ErrGameNotFound
			}
			if err != nil {
				return err
			}
			cur, err := decode(raw)
			if err != nil {
				return err
			}
			next, err := fn(cur)
			if err != nil {
				return err
			}
			newRaw, err := json.Marshal(game.ToDocument(next))
			if err != nil {
				return err
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, newRaw, s.ttl)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			out = next
			return nil
		}, key)
	}

	err := attempt()
	if errors.Is(err, redis.TxFailedErr) {
		err = attempt()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decode(raw []byte) (*game.Session, error) {
	var d game.Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrMalformedDocument, err)
	}
	return game.FromDocument(&d)
}
