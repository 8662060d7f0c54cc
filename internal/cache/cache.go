// Package cache stores rendered dependency trees in BadgerDB so repeated
// requests against an unchanged tree skip indexing and analysis.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/phobologic/deptree/internal/discover"
)

const keyPrefix = "out:"

// Cache is a persistent key/value store for rendered output. It is safe for
// concurrent use.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

type options struct {
	logger *slog.Logger
	ttl    time.Duration
}

// Option configures Open.
type Option func(*options)

// WithLogger routes badger's internal logging to logger. Without it badger
// logs nothing.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTTL expires entries after d. Zero keeps entries until overwritten.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		o.ttl = d
	}
}

// Open opens (or creates) the cache in dir. An empty dir opens an in-memory
// cache.
func Open(dir string, opts ...Option) (*Cache, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var bopts badger.Options
	if dir == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
		}
		bopts = badger.DefaultOptions(dir)
	}

	if o.logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: o.logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return &Cache{db: db, ttl: o.ttl}, nil
}

// Get returns the value stored under key. A missing or expired key reports
// false with a nil error.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return value, true, nil
}

// Put stores value under key.
func (c *Cache) Put(key string, value []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+key), value)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Close flushes and closes the store.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Request identifies one extraction: what was asked for, which files
// feed the index and how the result is rendered.
type Request struct {
	Version string
	Refs    []string
	Depth   int
	Format  string

	// Index settings. Languages is compared as a set.
	Languages   []string
	MaxFileSize int64
	SkipTests   bool
}

// Key derives the cache key of a request against a project state.
func Key(req Request, fingerprint string) string {
	h := sha256.New()
	write := func(s string) {
		io.WriteString(h, s)
		h.Write([]byte{0})
	}
	write(req.Version)
	write(strconv.Itoa(len(req.Refs)))
	for _, ref := range req.Refs {
		write(ref)
	}
	write(strconv.Itoa(req.Depth))
	write(req.Format)
	langs := slices.Clone(req.Languages)
	slices.Sort(langs)
	write(strings.Join(langs, ","))
	write(strconv.FormatInt(req.MaxFileSize, 10))
	write(strconv.FormatBool(req.SkipTests))
	write(fingerprint)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint summarizes the state of the given files by path, size and
// modification time. Any edit, addition or removal changes it.
func Fingerprint(root string, files []discover.FileEntry) (string, error) {
	h := sha256.New()
	for _, f := range files {
		info, err := os.Stat(filepath.Join(root, f.Path))
		if err != nil {
			return "", fmt.Errorf("fingerprint %s: %w", f.Path, err)
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", filepath.ToSlash(f.Path), info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
