// Package redisstore keeps credcore accounts in Redis as JSON documents.
//
// Each account lives under <prefix>acct:<id> and a string key
// <prefix>email:<email> points back at the id. Writes run inside
// WATCH/MULTI so Update is an atomic read-modify-write even when several
// engine instances share the same Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/credcore"
)

var (
	// ErrRedisUnavailable wraps transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrCorrupt is returned when a stored document does not decode.
	ErrCorrupt = errors.New("corrupt account document")
)

const defaultMaxRetries = 16

// Options tunes a Store.
type Options struct {
	// Prefix namespaces every key. Defaults to "credcore:".
	Prefix string
	// MaxRetries bounds optimistic retries when a watched key changes.
	// Exhausting them returns credcore.ErrStoreConflict.
	MaxRetries int
	Logger     *zap.Logger
}

// Store implements credcore.AccountStore.
type Store struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
	log        *zap.Logger
}

// New wraps client.
func New(client redis.UniversalClient, opts Options) (*Store, error) {
	if client == nil {
		return nil, errors.New("redisstore: nil client")
	}
	if opts.Prefix == "" {
		opts.Prefix = "credcore:"
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		client:     client,
		prefix:     opts.Prefix,
		maxRetries: opts.MaxRetries,
		log:        opts.Logger.Named("redisstore"),
	}, nil
}

func (s *Store) accountKey(id string) string { return s.prefix + "acct:" + id }

func (s *Store) emailKey(email string) string { return s.prefix + "email:" + email }

func (s *Store) FindByID(ctx context.Context, id string) (*credcore.Account, error) {
	return s.load(ctx, s.client, id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*credcore.Account, error) {
	id, err := s.client.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, credcore.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	a, err := s.load(ctx, s.client, id)
	if errors.Is(err, credcore.ErrAccountNotFound) {
		s.log.Warn("dangling email index", zap.String("account_id", id))
	}
	return a, err
}

func (s *Store) load(ctx context.Context, c redis.Cmdable, id string) (*credcore.Account, error) {
	raw, err := c.Get(ctx, s.accountKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, credcore.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	var a credcore.Account
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, id, err)
	}
	return &a, nil
}

// Save inserts or replaces acct by ID.
func (s *Store) Save(ctx context.Context, acct *credcore.Account) error {
	if acct == nil || acct.ID == "" {
		return errors.New("redisstore: account id required")
	}
	doc, err := json.Marshal(acct)
	if err != nil {
		return err
	}

	return s.retry(ctx, func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			prev, err := s.load(ctx, tx, acct.ID)
			if err != nil && !errors.Is(err, credcore.ErrAccountNotFound) {
				return err
			}
			return s.write(ctx, tx, prev, acct, doc)
		}, s.accountKey(acct.ID), s.emailKey(acct.Email))
	})
}

// Update runs fn against the stored record and writes the result back in
// one MULTI. A concurrent write to the same account restarts the loop, so
// fn may run more than once.
func (s *Store) Update(ctx context.Context, id string, fn func(*credcore.Account) error) (*credcore.Account, error) {
	var out *credcore.Account

	err := s.retry(ctx, func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			prev, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			next := prev.Clone()
			if err := fn(next); err != nil {
				return callbackError{err}
			}
			next.ID = id
			if next.Email != prev.Email {
				if err := tx.Watch(ctx, s.emailKey(next.Email)).Err(); err != nil {
					return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
				}
			}
			doc, err := json.Marshal(next)
			if err != nil {
				return err
			}
			if err := s.write(ctx, tx, prev, next, doc); err != nil {
				return err
			}
			out = next
			return nil
		}, s.accountKey(id))
	})

	var cbErr callbackError
	if errors.As(err, &cbErr) {
		return nil, cbErr.err
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// write checks email ownership and queues the document, the index and the
// removal of a stale index in one transaction.
func (s *Store) write(ctx context.Context, tx *redis.Tx, prev, next *credcore.Account, doc []byte) error {
	owner, err := tx.Get(ctx, s.emailKey(next.Email)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if err == nil && owner != next.ID {
		return credcore.ErrStoreConflict
	}

	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.accountKey(next.ID), doc, 0)
		pipe.Set(ctx, s.emailKey(next.Email), next.ID, 0)
		if prev != nil && prev.Email != next.Email {
			pipe.Del(ctx, s.emailKey(prev.Email))
		}
		return nil
	})
	return err
}

// Delete removes the account and its email index.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.retry(ctx, func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			prev, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, s.accountKey(id))
				pipe.Del(ctx, s.emailKey(prev.Email))
				return nil
			})
			return err
		}, s.accountKey(id))
	})
}

func (s *Store) retry(ctx context.Context, attempt func() error) error {
	for i := 0; i < s.maxRetries; i++ {
		err := attempt()
		if !errors.Is(err, redis.TxFailedErr) {
			return s.classify(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	s.log.Warn("optimistic retries exhausted", zap.Int("retries", s.maxRetries))
	return credcore.ErrStoreConflict
}

func (s *Store) classify(err error) error {
	var cbErr callbackError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &cbErr),
		errors.Is(err, credcore.ErrAccountNotFound),
		errors.Is(err, credcore.ErrStoreConflict),
		errors.Is(err, ErrRedisUnavailable),
		errors.Is(err, ErrCorrupt):
		return err
	}
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

// callbackError carries an Update callback's error past the retry loop
// untouched.
type callbackError struct{ err error }

func (e callbackError) Error() string { return e.err.Error() }

func (e callbackError) Unwrap() error { return e.err }

var _ credcore.AccountStore = (*Store)(nil)
