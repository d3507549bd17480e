package storage

import "fmt"

// Property records and overflow chains
// ============================================================================
//
// A property record holds either the value inline or, when the serialized
// payload exceeds the inline threshold, the head of a chain of fixed-size
// overflow blocks. The chain is owned exclusively by its record: overwrite
// and removal release every block, so no blocks leak across rewrites.

// propertyRecord is the stored form of one (entity, property token) pair.
type propertyRecord struct {
	Token TokenID `msgpack:"t"`

	// Inline encoding.
	Inline []byte `msgpack:"v,omitempty"`

	// Overflow encoding: head block id and total payload length.
	Head   uint64 `msgpack:"h,omitempty"`
	Length int    `msgpack:"n,omitempty"`
}

// overflowBlock is one fixed-size link of a chain. Next is zero on the
// last block; block ids start at one, so zero is never a valid link.
type overflowBlock struct {
	Next uint64 `msgpack:"n,omitempty"`
	Data []byte `msgpack:"d"`
}

// kvReader reads keys through a transaction's merged view (write-set
// overlaid on a committed snapshot).
type kvReader interface {
	get(key []byte) ([]byte, bool, error)
}

// kvWriter stages writes and deletes into a transaction's write-set.
type kvWriter interface {
	set(key, value []byte)
	del(key []byte)
}

func encodePropertyRecord(rec *propertyRecord) ([]byte, error) {
	data, err := encodeRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding property record for token %d: %w", rec.Token, err)
	}
	return data, nil
}

func decodePropertyRecord(data []byte) (*propertyRecord, error) {
	var rec propertyRecord
	if err := decodeRecord(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding property record: %w", err)
	}
	return &rec, nil
}

// writeOverflowChain splits payload into blocks of at most blockSize bytes
// and stages them, returning the head block id. allocBlock hands out fresh
// block ids; ids are never reused, so staged chains from rolled-back
// transactions can never collide with live ones.
func writeOverflowChain(w kvWriter, allocBlock func() uint64, payload []byte, blockSize int) (uint64, error) {
	if len(payload) == 0 {
		return 0, fmt.Errorf("empty overflow payload")
	}

	blockCount := (len(payload) + blockSize - 1) / blockSize
	ids := make([]uint64, blockCount)
	for i := range ids {
		ids[i] = allocBlock()
	}

	for i := 0; i < blockCount; i++ {
		start := i * blockSize
		end := start + blockSize
		if end > len(payload) {
			end = len(payload)
		}
		block := overflowBlock{Data: payload[start:end]}
		if i+1 < blockCount {
			block.Next = ids[i+1]
		}
		data, err := encodeRecord(&block)
		if err != nil {
			return 0, fmt.Errorf("encoding overflow block %d: %w", ids[i], err)
		}
		w.set(overflowKey(ids[i]), data)
	}
	return ids[0], nil
}

// readOverflowChain walks the chain from head and reassembles the payload.
// A missing block, a cycle (walk longer than the declared length allows),
// or a reassembled length that disagrees with the record is reported as
// ErrCorruptChain; a truncated value is never returned.
func readOverflowChain(r kvReader, head uint64, length int) ([]byte, error) {
	payload := make([]byte, 0, length)
	block := head
	// length+1 hops is already one too many for any well-formed chain.
	for hops := 0; block != 0; hops++ {
		if hops > length {
			return nil, fmt.Errorf("chain from block %d does not terminate: %w", head, ErrCorruptChain)
		}
		data, ok, err := r.get(overflowKey(block))
		if err != nil {
			return nil, fmt.Errorf("reading overflow block %d: %w", block, err)
		}
		if !ok {
			return nil, fmt.Errorf("missing overflow block %d (chain head %d): %w", block, head, ErrCorruptChain)
		}
		var ob overflowBlock
		if err := decodeRecord(data, &ob); err != nil {
			return nil, fmt.Errorf("overflow block %d: %v: %w", block, err, ErrCorruptChain)
		}
		payload = append(payload, ob.Data...)
		block = ob.Next
	}
	if len(payload) != length {
		return nil, fmt.Errorf("chain from block %d reassembled %d bytes, expected %d: %w",
			head, len(payload), length, ErrCorruptChain)
	}
	return payload, nil
}

// releaseOverflowChain stages deletion of every block in the chain.
func releaseOverflowChain(r kvReader, w kvWriter, head uint64, length int) error {
	block := head
	for hops := 0; block != 0; hops++ {
		if hops > length {
			return fmt.Errorf("chain from block %d does not terminate: %w", head, ErrCorruptChain)
		}
		data, ok, err := r.get(overflowKey(block))
		if err != nil {
			return fmt.Errorf("reading overflow block %d: %w", block, err)
		}
		if !ok {
			return fmt.Errorf("missing overflow block %d (chain head %d): %w", block, head, ErrCorruptChain)
		}
		var ob overflowBlock
		if err := decodeRecord(data, &ob); err != nil {
			return fmt.Errorf("overflow block %d: %v: %w", block, err, ErrCorruptChain)
		}
		w.del(overflowKey(block))
		block = ob.Next
	}
	return nil
}

// resolveRecordValue reconstructs the logical value of a record,
// regardless of encoding.
func resolveRecordValue(r kvReader, rec *propertyRecord) (PropertyValue, error) {
	payload := rec.Inline
	if rec.Head != 0 {
		chained, err := readOverflowChain(r, rec.Head, rec.Length)
		if err != nil {
			return PropertyValue{}, err
		}
		payload = chained
	}
	return decodeValuePayload(payload)
}
