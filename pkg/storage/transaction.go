// Package storage - write-set transactions over the committed store.
//
// A transaction stages every mutation as buffered key writes/deletes plus
// entity-level bookkeeping, and applies the whole set in one atomic Badger
// update at commit. Until then nothing is visible to other transactions.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Transaction is a unit of isolated work against the store.
//
// Reads consult the transaction's own write-set first (read-your-writes)
// and fall back to a committed snapshot. Reads that miss the write-set
// open a fresh snapshot per operation, so a long-lived transaction
// observes other transactions' commits as whole batches, never torn.
type Transaction struct {
	mu sync.Mutex

	ID        string
	StartTime time.Time
	Status    TransactionStatus

	engine *Engine

	// Staged key-level mutations, applied at commit.
	pendingWrites  map[string][]byte
	pendingDeletes map[string]bool

	// Entity-level bookkeeping for this transaction's merged view.
	created map[EntityID]struct{}
	deleted map[EntityID]struct{}
}

// Begin starts a new transaction.
func (e *Engine) Begin() (*Transaction, error) {
	if err := e.ensureOpen(); err != nil {
		return nil, err
	}
	return &Transaction{
		ID:             uuid.NewString(),
		StartTime:      time.Now(),
		Status:         TxStatusActive,
		engine:         e,
		pendingWrites:  make(map[string][]byte),
		pendingDeletes: make(map[string]bool),
		created:        make(map[EntityID]struct{}),
		deleted:        make(map[EntityID]struct{}),
	}, nil
}

// Engine returns the owning engine.
func (tx *Transaction) Engine() *Engine { return tx.engine }

// CurrentStatus returns the transaction state.
func (tx *Transaction) CurrentStatus() TransactionStatus {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.Status
}

// set stages a write. A prior staged delete of the key is undone.
func (tx *Transaction) set(key, value []byte) {
	k := string(key)
	delete(tx.pendingDeletes, k)
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	tx.pendingWrites[k] = valueCopy
}

// del stages a delete. A prior staged write of the key is undone.
func (tx *Transaction) del(key []byte) {
	k := string(key)
	delete(tx.pendingWrites, k)
	tx.pendingDeletes[k] = true
}

// overlayReader merges the write-set over a committed Badger snapshot.
type overlayReader struct {
	tx  *Transaction
	txn *badger.Txn
}

func (r *overlayReader) get(key []byte) ([]byte, bool, error) {
	k := string(key)
	if r.tx.pendingDeletes[k] {
		return nil, false, nil
	}
	if v, ok := r.tx.pendingWrites[k]; ok {
		return v, true, nil
	}
	item, err := r.txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var out []byte
	if err := item.Value(func(val []byte) error {
		out = append([]byte{}, val...)
		return nil
	}); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// scan returns the merged view of all keys under prefix: committed keys
// from the snapshot, minus staged deletes, plus staged writes.
func (r *overlayReader) scan(prefix []byte) (map[string][]byte, error) {
	merged := make(map[string][]byte)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := r.txn.NewIterator(opts)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		k := string(item.KeyCopy(nil))
		var v []byte
		if err := item.Value(func(val []byte) error {
			v = append([]byte{}, val...)
			return nil
		}); err != nil {
			it.Close()
			return nil, err
		}
		merged[k] = v
	}
	it.Close()

	p := string(prefix)
	for k, v := range r.tx.pendingWrites {
		if strings.HasPrefix(k, p) {
			merged[k] = v
		}
	}
	for k := range r.tx.pendingDeletes {
		if strings.HasPrefix(k, p) {
			delete(merged, k)
		}
	}
	return merged, nil
}

// withView runs fn against the merged view. Caller must hold tx.mu and
// have checked tx.Status.
func (tx *Transaction) withView(fn func(r *overlayReader) error) error {
	return tx.engine.db.View(func(txn *badger.Txn) error {
		return fn(&overlayReader{tx: tx, txn: txn})
	})
}

// loadEntity fetches an entity through the merged view.
func (tx *Transaction) loadEntity(r *overlayReader, id EntityID) (*Entity, error) {
	data, ok, err := r.get(entityKey(id))
	if err != nil {
		return nil, fmt.Errorf("reading entity %d: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("entity %d: %w", id, ErrNotFound)
	}
	return decodeEntity(data)
}

// abortOnCorruption terminates the transaction when chain reconstruction
// failed. Corruption is fatal for the transaction, not the process.
func (tx *Transaction) abortOnCorruption(err error) {
	if !errors.Is(err, ErrCorruptChain) {
		return
	}
	logrus.WithFields(logrus.Fields{
		"tx":    tx.ID,
		"error": err.Error(),
	}).Error("overflow chain corruption, terminating transaction")
	tx.discardLocked()
	tx.Status = TxStatusTerminated
}

// CreateNode creates a node and returns its id. Visible immediately to
// this transaction, to others only after commit. The id is consumed even
// if the transaction rolls back; ids are never reused.
func (tx *Transaction) CreateNode() (EntityID, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status != TxStatusActive {
		return 0, ErrTransactionClosed
	}

	id := tx.engine.allocEntityID()
	data, err := encodeEntity(&Entity{ID: id, Kind: EntityNode})
	if err != nil {
		return 0, err
	}
	tx.set(entityKey(id), data)
	tx.created[id] = struct{}{}
	delete(tx.deleted, id)
	return id, nil
}

// CreateRelationship creates a typed relationship between two visible
// nodes. Resolving a brand-new type name can fail with
// ErrTokenSpaceExhausted.
func (tx *Transaction) CreateRelationship(start, end EntityID, relType string) (EntityID, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status != TxStatusActive {
		return 0, ErrTransactionClosed
	}

	typeToken, err := tx.engine.ResolveToken(TokenRelationshipType, relType)
	if err != nil {
		return 0, err
	}

	var id EntityID
	err = tx.withView(func(r *overlayReader) error {
		for _, nodeID := range []EntityID{start, end} {
			ent, err := tx.loadEntity(r, nodeID)
			if err != nil {
				return err
			}
			if ent.Kind != EntityNode {
				return fmt.Errorf("entity %d is a %s, not a node", nodeID, ent.Kind)
			}
		}

		id = tx.engine.allocEntityID()
		data, err := encodeEntity(&Entity{
			ID:    id,
			Kind:  EntityRelationship,
			Type:  typeToken,
			Start: start,
			End:   end,
		})
		if err != nil {
			return err
		}
		tx.set(entityKey(id), data)
		tx.set(outgoingIndexKey(start, id), []byte{})
		tx.set(incomingIndexKey(end, id), []byte{})
		tx.created[id] = struct{}{}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetEntity returns a copy of the entity record visible to this
// transaction.
func (tx *Transaction) GetEntity(id EntityID) (*Entity, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status != TxStatusActive {
		return nil, ErrTransactionClosed
	}
	var ent *Entity
	err := tx.withView(func(r *overlayReader) error {
		var err error
		ent, err = tx.loadEntity(r, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ent, nil
}

// EntityExists reports whether id is visible to this transaction.
func (tx *Transaction) EntityExists(id EntityID) (bool, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status != TxStatusActive {
		return false, ErrTransactionClosed
	}
	exists := false
	err := tx.withView(func(r *overlayReader) error {
		_, ok, err := r.get(entityKey(id))
		exists = ok
		return err
	})
	return exists, err
}

// DeleteEntity removes an entity from this transaction's view. Deleting a
// node cascades to its relationships. Deleting an entity that is not
// visible (never existed, committed-deleted, or already deleted earlier in
// this same transaction) returns ErrNotFound; the error is local and the
// transaction remains usable and committable.
func (tx *Transaction) DeleteEntity(id EntityID) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}

	err := tx.withView(func(r *overlayReader) error {
		ent, err := tx.loadEntity(r, id)
		if err != nil {
			return err
		}
		return tx.deleteEntityLocked(r, ent)
	})
	if err != nil {
		tx.abortOnCorruption(err)
		return err
	}
	return nil
}

// deleteEntityLocked stages removal of an entity, its properties (with
// overflow chains), its index entries, and, for nodes, its relationships.
func (tx *Transaction) deleteEntityLocked(r *overlayReader, ent *Entity) error {
	if ent.Kind == EntityNode {
		for _, prefix := range [][]byte{outgoingIndexPrefix(ent.ID), incomingIndexPrefix(ent.ID)} {
			adjacent, err := r.scan(prefix)
			if err != nil {
				return err
			}
			for k := range adjacent {
				relID := relFromAdjacencyKey([]byte(k))
				rel, err := tx.loadEntity(r, relID)
				if errors.Is(err, ErrNotFound) {
					// Index entry outlived its relationship within this
					// write-set; drop the stale key.
					tx.del([]byte(k))
					continue
				}
				if err != nil {
					return err
				}
				if err := tx.deleteEntityLocked(r, rel); err != nil {
					return err
				}
			}
		}
		for _, label := range ent.Labels {
			tx.del(labelIndexKey(label, ent.ID))
		}
	} else {
		tx.del(outgoingIndexKey(ent.Start, ent.ID))
		tx.del(incomingIndexKey(ent.End, ent.ID))
	}

	records, err := r.scan(propertyPrefix(ent.ID))
	if err != nil {
		return err
	}
	for k, data := range records {
		rec, err := decodePropertyRecord(data)
		if err != nil {
			return err
		}
		if rec.Head != 0 {
			if err := releaseOverflowChain(r, tx, rec.Head, rec.Length); err != nil {
				return err
			}
		}
		tx.del([]byte(k))
	}

	tx.del(entityKey(ent.ID))
	tx.deleted[ent.ID] = struct{}{}
	delete(tx.created, ent.ID)
	return nil
}

// SetProperty writes a property on a visible entity, replacing any prior
// value outright (a type change is a full replacement, never a coercion).
// If the previous value lived in an overflow chain the chain is released
// before the new encoding is staged.
func (tx *Transaction) SetProperty(id EntityID, key string, value PropertyValue) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}

	token, err := tx.engine.ResolveToken(TokenPropertyKey, key)
	if err != nil {
		return err
	}

	err = tx.withView(func(r *overlayReader) error {
		if _, err := tx.loadEntity(r, id); err != nil {
			return err
		}

		pk := propertyKey(id, token)
		if old, ok, err := r.get(pk); err != nil {
			return err
		} else if ok {
			oldRec, err := decodePropertyRecord(old)
			if err != nil {
				return err
			}
			if oldRec.Head != 0 {
				if err := releaseOverflowChain(r, tx, oldRec.Head, oldRec.Length); err != nil {
					return err
				}
			}
		}

		payload, err := encodeValuePayload(value)
		if err != nil {
			return fmt.Errorf("encoding property %q: %w", key, err)
		}

		rec := propertyRecord{Token: token}
		if len(payload) <= tx.engine.opts.InlineThreshold {
			rec.Inline = payload
		} else {
			head, err := writeOverflowChain(tx, tx.engine.allocBlockID, payload, tx.engine.opts.OverflowBlockSize)
			if err != nil {
				return err
			}
			rec.Head = head
			rec.Length = len(payload)
		}

		data, err := encodePropertyRecord(&rec)
		if err != nil {
			return err
		}
		tx.set(pk, data)
		return nil
	})
	if err != nil {
		tx.abortOnCorruption(err)
		return err
	}
	return nil
}

// Property reads one property. A miss is reported as ErrNotFound wrapped
// with the key name so callers can surface it.
func (tx *Transaction) Property(id EntityID, key string) (PropertyValue, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status != TxStatusActive {
		return PropertyValue{}, ErrTransactionClosed
	}

	var value PropertyValue
	err := tx.withView(func(r *overlayReader) error {
		if _, err := tx.loadEntity(r, id); err != nil {
			return err
		}
		token, ok := tx.engine.LookupToken(TokenPropertyKey, key)
		if !ok {
			return fmt.Errorf("property %q on entity %d: %w", key, id, ErrNotFound)
		}
		data, ok, err := r.get(propertyKey(id, token))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("property %q on entity %d: %w", key, id, ErrNotFound)
		}
		rec, err := decodePropertyRecord(data)
		if err != nil {
			return err
		}
		value, err = resolveRecordValue(r, rec)
		return err
	})
	if err != nil {
		tx.abortOnCorruption(err)
		return PropertyValue{}, err
	}
	return value, nil
}

// HasProperty reports whether the entity carries the key.
func (tx *Transaction) HasProperty(id EntityID, key string) (bool, error) {
	_, err := tx.Property(id, key)
	if errors.Is(err, ErrNotFound) {
		// Distinguish a missing property from a missing entity.
		if ok, exErr := tx.EntityExists(id); exErr == nil && ok {
			return false, nil
		} else if exErr != nil {
			return false, exErr
		}
		return false, err
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RemoveProperty deletes a property and releases its overflow chain.
// Removing an absent key is a no-op; the entity itself must be visible.
func (tx *Transaction) RemoveProperty(id EntityID, key string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}

	err := tx.withView(func(r *overlayReader) error {
		if _, err := tx.loadEntity(r, id); err != nil {
			return err
		}
		token, ok := tx.engine.LookupToken(TokenPropertyKey, key)
		if !ok {
			return nil
		}
		pk := propertyKey(id, token)
		data, ok, err := r.get(pk)
		if err != nil || !ok {
			return err
		}
		rec, err := decodePropertyRecord(data)
		if err != nil {
			return err
		}
		if rec.Head != 0 {
			if err := releaseOverflowChain(r, tx, rec.Head, rec.Length); err != nil {
				return err
			}
		}
		tx.del(pk)
		return nil
	})
	if err != nil {
		tx.abortOnCorruption(err)
		return err
	}
	return nil
}

// Properties returns every property of a visible entity, key names
// resolved. The result is collected from a single snapshot merged with
// this transaction's writes, so one call never observes a torn commit.
func (tx *Transaction) Properties(id EntityID) (map[string]PropertyValue, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status != TxStatusActive {
		return nil, ErrTransactionClosed
	}

	result := make(map[string]PropertyValue)
	err := tx.withView(func(r *overlayReader) error {
		if _, err := tx.loadEntity(r, id); err != nil {
			return err
		}
		records, err := r.scan(propertyPrefix(id))
		if err != nil {
			return err
		}
		for k, data := range records {
			rec, err := decodePropertyRecord(data)
			if err != nil {
				return err
			}
			name, err := tx.engine.TokenName(TokenPropertyKey, propertyTokenFromKey([]byte(k)))
			if err != nil {
				return err
			}
			value, err := resolveRecordValue(r, rec)
			if err != nil {
				return err
			}
			result[name] = value
		}
		return nil
	})
	if err != nil {
		tx.abortOnCorruption(err)
		return nil, err
	}
	return result, nil
}

// AddLabel attaches a label to a visible node, interning the name first.
// Adding an already present label is a no-op.
func (tx *Transaction) AddLabel(id EntityID, name string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}

	token, err := tx.engine.ResolveToken(TokenLabel, name)
	if err != nil {
		return err
	}

	return tx.withView(func(r *overlayReader) error {
		ent, err := tx.loadEntity(r, id)
		if err != nil {
			return err
		}
		if ent.Kind != EntityNode {
			return fmt.Errorf("entity %d is a %s, labels apply to nodes", id, ent.Kind)
		}
		if ent.hasLabel(token) {
			return nil
		}
		ent.Labels = append(ent.Labels, token)
		data, err := encodeEntity(ent)
		if err != nil {
			return err
		}
		tx.set(entityKey(id), data)
		tx.set(labelIndexKey(token, id), []byte{})
		return nil
	})
}

// Labels returns the node's label names.
func (tx *Transaction) Labels(id EntityID) ([]string, error) {
	ent, err := tx.GetEntity(id)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ent.Labels))
	for _, token := range ent.Labels {
		name, err := tx.engine.TokenName(TokenLabel, token)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// NodesWithLabel returns ids of nodes carrying the label, in id order.
// An unknown label name yields an empty result.
func (tx *Transaction) NodesWithLabel(name string) ([]EntityID, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status != TxStatusActive {
		return nil, ErrTransactionClosed
	}

	token, ok := tx.engine.LookupToken(TokenLabel, name)
	if !ok {
		return nil, nil
	}

	var ids []EntityID
	err := tx.withView(func(r *overlayReader) error {
		entries, err := r.scan(labelIndexPrefix(token))
		if err != nil {
			return err
		}
		for k := range entries {
			ids = append(ids, nodeFromLabelIndexKey([]byte(k)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// RelationshipIDs returns ids of relationships touching the node, both
// directions, in id order.
func (tx *Transaction) RelationshipIDs(id EntityID) ([]EntityID, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status != TxStatusActive {
		return nil, ErrTransactionClosed
	}

	seen := make(map[EntityID]struct{})
	err := tx.withView(func(r *overlayReader) error {
		if _, err := tx.loadEntity(r, id); err != nil {
			return err
		}
		for _, prefix := range [][]byte{outgoingIndexPrefix(id), incomingIndexPrefix(id)} {
			entries, err := r.scan(prefix)
			if err != nil {
				return err
			}
			for k := range entries {
				seen[relFromAdjacencyKey([]byte(k))] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ids := make([]EntityID, 0, len(seen))
	for relID := range seen {
		ids = append(ids, relID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// RelationshipTypes returns the distinct type names of relationships
// touching the node. A type connected many times is reported once.
func (tx *Transaction) RelationshipTypes(id EntityID) ([]string, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status != TxStatusActive {
		return nil, ErrTransactionClosed
	}

	tokens := make(map[TokenID]struct{})
	err := tx.withView(func(r *overlayReader) error {
		if _, err := tx.loadEntity(r, id); err != nil {
			return err
		}
		for _, prefix := range [][]byte{outgoingIndexPrefix(id), incomingIndexPrefix(id)} {
			entries, err := r.scan(prefix)
			if err != nil {
				return err
			}
			for k := range entries {
				rel, err := tx.loadEntity(r, relFromAdjacencyKey([]byte(k)))
				if err != nil {
					return err
				}
				tokens[rel.Type] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tokens))
	for token := range tokens {
		name, err := tx.engine.TokenName(TokenRelationshipType, token)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Commit atomically applies the write-set to the committed store. After a
// successful commit the transaction is closed; every later operation
// fails with ErrTransactionClosed.
func (tx *Transaction) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}

	writes := len(tx.pendingWrites)
	deletes := len(tx.pendingDeletes)
	entitiesCreated := len(tx.created)
	entitiesDeleted := len(tx.deleted)

	err := tx.engine.db.Update(func(txn *badger.Txn) error {
		for k := range tx.pendingDeletes {
			if err := txn.Delete([]byte(k)); err != nil {
				return fmt.Errorf("applying delete: %w", err)
			}
		}
		for k, v := range tx.pendingWrites {
			if tx.pendingDeletes[k] {
				continue
			}
			if err := txn.Set([]byte(k), v); err != nil {
				return fmt.Errorf("applying write: %w", err)
			}
		}

		// Persist id counters so ids stay retired across reopen.
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], tx.engine.nextEntityID.Load())
		if err := txn.Set(metaKey(metaNextEntityID), append([]byte{}, buf[:]...)); err != nil {
			return err
		}
		binary.BigEndian.PutUint64(buf[:], tx.engine.nextBlockID.Load())
		return txn.Set(metaKey(metaNextBlockID), append([]byte{}, buf[:]...))
	})
	if err != nil {
		tx.discardLocked()
		tx.Status = TxStatusRolledBack
		return fmt.Errorf("commit failed: %w", err)
	}

	// Durable before acknowledged. In-memory stores have nothing to sync.
	if !tx.engine.opts.InMemory {
		if err := tx.engine.db.Sync(); err != nil {
			logrus.WithFields(logrus.Fields{
				"tx":    tx.ID,
				"error": err.Error(),
			}).Warn("fsync after commit failed; data remains in the write-ahead log")
		}
	}

	tx.discardLocked()
	tx.Status = TxStatusCommitted

	logrus.WithFields(logrus.Fields{
		"tx":               tx.ID,
		"writes":           writes,
		"deletes":          deletes,
		"entities_created": entitiesCreated,
		"entities_deleted": entitiesDeleted,
	}).Debug("transaction committed")
	return nil
}

// Rollback discards the write-set.
func (tx *Transaction) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}
	tx.discardLocked()
	tx.Status = TxStatusRolledBack
	return nil
}

// Terminate forcibly closes the transaction (timeout, shutdown). It is
// reachable from any state, idempotent, and safe to call concurrently
// with in-flight operations; the committed store is left untouched.
func (tx *Transaction) Terminate() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.Status == TxStatusTerminated {
		return
	}
	if tx.Status == TxStatusActive {
		tx.discardLocked()
	}
	tx.Status = TxStatusTerminated
}

func (tx *Transaction) discardLocked() {
	tx.pendingWrites = make(map[string][]byte)
	tx.pendingDeletes = make(map[string]bool)
	tx.created = make(map[EntityID]struct{})
	tx.deleted = make(map[EntityID]struct{})
}
