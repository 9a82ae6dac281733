// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shifts

// =============================================================================
// QueryCache: short-lived backend result cache
// =============================================================================
//
// Successful backend responses are cached in BadgerDB under a key derived
// from the full request identity: base URL, endpoint, encoded query string
// and a digest of the bearer token. Different callers never share entries
// unless they would have sent byte-identical requests.
//
// Error records are never cached.
//
// Storage layout:
//
//	shifts/q/v1/{sha256}  →  JSON-encoded QueryResult
//	                          TTL: configured (default 30s)

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// defaultCacheTTL is the lifetime of a cached query result.
const defaultCacheTTL = 30 * time.Second

// cacheKeyPrefix is versioned to allow format changes without collision.
const cacheKeyPrefix = "shifts/q/v1/"

// errCacheMiss distinguishes an absent key from a storage error.
var errCacheMiss = errors.New("cache miss")

// QueryCache stores successful backend query results.
//
// Description:
//
//	Get returns (result, true, nil) on hit and (zero, false, nil) on miss
//	or expiry. A non-nil error means storage failure; callers log it and
//	fall through to the backend.
//
// Thread Safety: Implementations must be safe for concurrent use.
type QueryCache interface {
	Get(ctx context.Context, key string) (QueryResult, bool, error)
	Put(ctx context.Context, key string, result QueryResult) error
}

// BadgerQueryCache implements QueryCache on an embedded BadgerDB.
//
// Thread Safety: Safe for concurrent use. Badger transactions are per-goroutine.
type BadgerQueryCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// OpenBadgerQueryCache opens a Badger-backed cache.
//
// Inputs:
//   - dir: Data directory. Empty runs Badger fully in memory.
//   - ttl: Entry lifetime. Zero or negative uses 30s.
//   - logger: May be nil.
//
// Outputs:
//   - *BadgerQueryCache: Ready to use. Call Close when done.
//   - error: Non-nil if Badger fails to open.
func OpenBadgerQueryCache(dir string, ttl time.Duration, logger *slog.Logger) (*BadgerQueryCache, error) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening query cache: %w", err)
	}

	logger.Info("Query cache opened",
		slog.Bool("in_memory", dir == ""),
		slog.Duration("ttl", ttl),
	)
	return &BadgerQueryCache{db: db, ttl: ttl, logger: logger}, nil
}

// Close releases the underlying database.
func (c *BadgerQueryCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Get looks up a cached result.
func (c *BadgerQueryCache) Get(ctx context.Context, key string) (QueryResult, bool, error) {
	if err := ctx.Err(); err != nil {
		return QueryResult{}, false, err
	}

	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cacheKeyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, errCacheMiss) {
		return QueryResult{}, false, nil
	}
	if err != nil {
		return QueryResult{}, false, fmt.Errorf("query cache load: %w", err)
	}

	var result QueryResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return QueryResult{}, false, fmt.Errorf("query cache decode: %w", err)
	}
	return result, true, nil
}

// Put stores a successful result. Error records are ignored.
func (c *BadgerQueryCache) Put(ctx context.Context, key string, result QueryResult) error {
	if result.IsError() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("query cache encode: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(cacheKeyPrefix+key), raw).WithTTL(c.ttl))
	})
	if err != nil {
		return fmt.Errorf("query cache save: %w", err)
	}

	c.logger.Debug("query cache: saved",
		slog.String("key", shortKey(key)),
		slog.Int("records", len(result.Records)),
	)
	return nil
}

// cacheKey derives the cache key for one backend request.
//
// The bearer token is hashed with the rest so tokens never reach the store.
func cacheKey(baseURL, endpoint string, params url.Values, token string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\t%s\t%s\n", baseURL, endpoint, params.Encode())
	tokenSum := sha256.Sum256([]byte(token))
	h.Write(tokenSum[:])
	return hex.EncodeToString(h.Sum(nil))
}

// shortKey returns the first 8 characters of a key for log display.
func shortKey(k string) string {
	if len(k) > 8 {
		return k[:8] + "..."
	}
	return k
}
