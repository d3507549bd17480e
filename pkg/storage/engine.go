package storage

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// Options configures an Engine. Zero fields fall back to defaults.
type Options struct {
	// DataDir is the Badger directory. Ignored when InMemory is set.
	DataDir string

	// InMemory runs Badger without disk backing (tests, scratch stores).
	InMemory bool

	// Token namespace capacities, per category.
	LabelCapacity            int
	PropertyKeyCapacity      int
	RelationshipTypeCapacity int

	// InlineThreshold is the largest serialized property payload stored
	// inside its record; anything bigger goes to an overflow chain.
	InlineThreshold int

	// OverflowBlockSize is the payload capacity of one overflow block.
	OverflowBlockSize int
}

const (
	defaultTokenCapacity   = 1 << 16
	defaultInlineThreshold = 64
	defaultBlockSize       = 128
)

func (o Options) withDefaults() Options {
	if o.LabelCapacity <= 0 {
		o.LabelCapacity = defaultTokenCapacity
	}
	if o.PropertyKeyCapacity <= 0 {
		o.PropertyKeyCapacity = defaultTokenCapacity
	}
	if o.RelationshipTypeCapacity <= 0 {
		o.RelationshipTypeCapacity = defaultTokenCapacity
	}
	if o.InlineThreshold <= 0 {
		o.InlineThreshold = defaultInlineThreshold
	}
	if o.OverflowBlockSize <= 0 {
		o.OverflowBlockSize = defaultBlockSize
	}
	return o
}

// Engine is the committed store. All structural mutation goes through a
// Transaction's write-set and lands here atomically at commit; the engine
// itself only hands out ids, resolves tokens, and serves reads.
type Engine struct {
	mu     sync.Mutex
	db     *badger.DB
	opts   Options
	closed bool

	// Id counters. Monotonic for the life of the store; persisted at
	// commit and recovered on open so ids are never reused.
	nextEntityID atomic.Uint64
	nextBlockID  atomic.Uint64

	labels   *tokenRegistry
	propKeys *tokenRegistry
	relTypes *tokenRegistry
}

// Open opens (or creates) a store.
func Open(opts Options) (*Engine, error) {
	opts = opts.withDefaults()

	badgerOpts := badger.DefaultOptions(opts.DataDir).
		WithInMemory(opts.InMemory).
		WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", opts.DataDir, err)
	}

	e := &Engine{
		db:       db,
		opts:     opts,
		labels:   newTokenRegistry(TokenLabel, opts.LabelCapacity),
		propKeys: newTokenRegistry(TokenPropertyKey, opts.PropertyKeyCapacity),
		relTypes: newTokenRegistry(TokenRelationshipType, opts.RelationshipTypeCapacity),
	}

	if err := e.recover(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"dir":       opts.DataDir,
		"in_memory": opts.InMemory,
		"entities":  e.nextEntityID.Load(),
		"tokens":    e.labels.len() + e.propKeys.len() + e.relTypes.len(),
	}).Info("storage engine opened")

	return e, nil
}

// recover reloads id counters and token registries from the store.
func (e *Engine) recover() error {
	return e.db.View(func(txn *badger.Txn) error {
		for _, m := range []struct {
			name    string
			counter *atomic.Uint64
		}{
			{metaNextEntityID, &e.nextEntityID},
			{metaNextBlockID, &e.nextBlockID},
		} {
			item, err := txn.Get(metaKey(m.name))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return fmt.Errorf("reading %s: %w", m.name, err)
			}
			if err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return fmt.Errorf("%s: bad counter encoding (%d bytes)", m.name, len(val))
				}
				m.counter.Store(binary.BigEndian.Uint64(val))
				return nil
			}); err != nil {
				return err
			}
		}

		for _, reg := range []*tokenRegistry{e.labels, e.propKeys, e.relTypes} {
			prefix := tokenKeyPrefix(reg.category)
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				id := TokenID(binary.BigEndian.Uint32(item.Key()[2:]))
				var name string
				if err := item.Value(func(val []byte) error {
					name = string(val)
					return nil
				}); err != nil {
					it.Close()
					return err
				}
				if err := reg.restore(id, name); err != nil {
					it.Close()
					return err
				}
			}
			it.Close()
		}
		return nil
	})
}

// Close shuts the engine down. Open transactions become unusable; any that
// had not committed are equivalent to rolled back.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("closing badger: %w", err)
	}
	logrus.WithField("dir", e.opts.DataDir).Info("storage engine closed")
	return nil
}

func (e *Engine) ensureOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	return nil
}

func (e *Engine) registryFor(category TokenCategory) (*tokenRegistry, error) {
	switch category {
	case TokenLabel:
		return e.labels, nil
	case TokenPropertyKey:
		return e.propKeys, nil
	case TokenRelationshipType:
		return e.relTypes, nil
	default:
		return nil, fmt.Errorf("unknown token category %d", category)
	}
}

// ResolveToken interns name in the given category, allocating an id on
// first use. Newly allocated tokens are persisted immediately: they belong
// to the store, not to any one transaction, and survive rollback of the
// transaction that first used them.
func (e *Engine) ResolveToken(category TokenCategory, name string) (TokenID, error) {
	if err := e.ensureOpen(); err != nil {
		return 0, err
	}
	reg, err := e.registryFor(category)
	if err != nil {
		return 0, err
	}
	id, created, err := reg.resolve(name)
	if err != nil {
		return 0, err
	}
	if created {
		if err := e.db.Update(func(txn *badger.Txn) error {
			return txn.Set(tokenKey(category, id), []byte(name))
		}); err != nil {
			return 0, fmt.Errorf("persisting %s token %q: %w", category, name, err)
		}
	}
	return id, nil
}

// LookupToken returns the id for an already interned name.
func (e *Engine) LookupToken(category TokenCategory, name string) (TokenID, bool) {
	reg, err := e.registryFor(category)
	if err != nil {
		return 0, false
	}
	return reg.lookup(name)
}

// TokenName maps an id back to its name.
func (e *Engine) TokenName(category TokenCategory, id TokenID) (string, error) {
	reg, err := e.registryFor(category)
	if err != nil {
		return "", err
	}
	return reg.name(id)
}

// TokenCount reports allocated tokens in a category.
func (e *Engine) TokenCount(category TokenCategory) int {
	reg, err := e.registryFor(category)
	if err != nil {
		return 0
	}
	return reg.len()
}

func (e *Engine) allocEntityID() EntityID {
	return EntityID(e.nextEntityID.Add(1))
}

func (e *Engine) allocBlockID() uint64 {
	return e.nextBlockID.Add(1)
}

// countKeysWithPrefix scans the committed store. Used by recovery checks
// and tests to verify overflow chains are released.
func (e *Engine) countKeysWithPrefix(prefix []byte) (int, error) {
	count := 0
	err := e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// OverflowBlockCount reports committed overflow blocks.
func (e *Engine) OverflowBlockCount() (int, error) {
	return e.countKeysWithPrefix([]byte{prefixOverflowBlock})
}
