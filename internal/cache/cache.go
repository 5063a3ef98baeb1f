// Package cache keeps the last known snapshot of each document and location
// so reads with source "cache" or "default" can answer without the network.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"

	"github.com/invertase/react-native-firebase/internal/nativeerr"
	"github.com/invertase/react-native-firebase/internal/snapshot"
)

var ErrMiss = errors.New("cache: no cached snapshot")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cache: CBOR decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("cache: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("cache: zstd decoder initialization failed: " + err.Error())
	}
}

type Options struct {
	// Dir holds the badger files. Empty keeps everything in memory.
	Dir     string
	HotSize int
	TTL     time.Duration
}

// Store is a two level snapshot cache: an LRU of decoded envelopes in front
// of badger holding zstd compressed CBOR.
type Store struct {
	hot    *lru.Cache[string, snapshot.Envelope]
	db     *badger.DB
	ttl    time.Duration
	sfg    singleflight.Group
	logger *slog.Logger
}

func Open(opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HotSize <= 0 {
		opts.HotSize = 512
	}
	hot, err := lru.New[string, snapshot.Envelope](opts.HotSize)
	if err != nil {
		return nil, err
	}

	bopts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.Dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot cache: %w", err)
	}

	return &Store{hot: hot, db: db, ttl: opts.TTL, logger: logger}, nil
}

func (s *Store) Close() error {
	s.hot.Purge()
	return s.db.Close()
}

func key(store, path string) string {
	return store + "\x00" + path
}

func (s *Store) Put(store, path string, env snapshot.Envelope) error {
	raw, err := encMode.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", path, err)
	}
	compressed := zstdEncoder.EncodeAll(raw, nil)

	k := key(store, path)
	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(k), compressed)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("store snapshot %s: %w", path, err)
	}
	s.hot.Add(k, env)
	return nil
}

// Get returns the cached envelope flagged as coming from the cache.
func (s *Store) Get(store, path string) (snapshot.Envelope, error) {
	k := key(store, path)
	if env, ok := s.hot.Get(k); ok {
		return fromCache(env), nil
	}

	var compressed []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(k))
		if err != nil {
			return err
		}
		compressed, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return snapshot.Envelope{}, ErrMiss
	}
	if err != nil {
		return snapshot.Envelope{}, err
	}

	raw, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return snapshot.Envelope{}, fmt.Errorf("decompress snapshot %s: %w", path, err)
	}
	var env snapshot.Envelope
	if err := decMode.Unmarshal(raw, &env); err != nil {
		return snapshot.Envelope{}, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	s.hot.Add(k, env)
	return fromCache(env), nil
}

func fromCache(env snapshot.Envelope) snapshot.Envelope {
	env.Metadata.FromCache = true
	env.Source = snapshot.SourceCache
	env.Children = slices.Clone(env.Children)
	for i := range env.Children {
		env.Children[i].Metadata.FromCache = true
	}
	return env
}

func (s *Store) Delete(store, path string) error {
	k := key(store, path)
	s.hot.Remove(k)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(k))
	})
}

// DropStore forgets every snapshot of one store instance.
func (s *Store) DropStore(store string) error {
	prefix := store + "\x00"
	for _, k := range s.hot.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.hot.Remove(k)
		}
	}
	return s.db.DropPrefix([]byte(prefix))
}

// Fetch reads a snapshot according to source. Concurrent fetches of the
// same target share one call to fn. Fresh results are written back.
func (s *Store) Fetch(
	ctx context.Context,
	store, path string,
	source snapshot.Source,
	fn func(ctx context.Context) (snapshot.Envelope, error),
) (snapshot.Envelope, error) {
	if source == snapshot.SourceCache {
		env, err := s.Get(store, path)
		if errors.Is(err, ErrMiss) {
			return snapshot.Envelope{}, nativeerr.New(nativeerr.Unavailable,
				"failed to get %s from cache", path)
		}
		return env, err
	}

	k := key(store, path)
	v, err, _ := s.sfg.Do(k, func() (any, error) {
		env, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if perr := s.Put(store, path, env); perr != nil {
			s.logger.Warn("snapshot cache write failed", "store", store, "path", path, "err", perr)
		}
		return env, nil
	})
	if err == nil {
		env := v.(snapshot.Envelope)
		env.Source = source
		return env, nil
	}

	if source == snapshot.SourceDefault && nativeerr.CodeOf(err) == nativeerr.Unavailable {
		if env, cerr := s.Get(store, path); cerr == nil {
			s.logger.Debug("serving cached snapshot", "store", store, "path", path)
			return env, nil
		}
	}
	return snapshot.Envelope{}, err
}
