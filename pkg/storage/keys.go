package storage

import "encoding/binary"

// Key encoding
// ============================================================================
//
// Every key starts with a single prefix byte. Numeric ids are big-endian so
// prefix scans iterate in id order.

const (
	prefixEntity byte = iota + 1
	prefixProperty
	prefixOverflowBlock
	prefixLabelIndex
	prefixOutgoingIndex
	prefixIncomingIndex
	prefixToken
	prefixMeta
)

// Meta keys for counters recovered on open.
const (
	metaNextEntityID = "next_entity_id"
	metaNextBlockID  = "next_block_id"
)

// entityKey stores the Entity record.
func entityKey(id EntityID) []byte {
	key := make([]byte, 9)
	key[0] = prefixEntity
	binary.BigEndian.PutUint64(key[1:], uint64(id))
	return key
}

// propertyKey stores the property record for (entity, property token).
func propertyKey(entity EntityID, token TokenID) []byte {
	key := make([]byte, 13)
	key[0] = prefixProperty
	binary.BigEndian.PutUint64(key[1:], uint64(entity))
	binary.BigEndian.PutUint32(key[9:], uint32(token))
	return key
}

// propertyPrefix scans all property records of one entity.
func propertyPrefix(entity EntityID) []byte {
	key := make([]byte, 9)
	key[0] = prefixProperty
	binary.BigEndian.PutUint64(key[1:], uint64(entity))
	return key
}

// propertyTokenFromKey extracts the property token from a property key.
func propertyTokenFromKey(key []byte) TokenID {
	return TokenID(binary.BigEndian.Uint32(key[9:]))
}

// overflowKey stores one fixed-size overflow block.
func overflowKey(block uint64) []byte {
	key := make([]byte, 9)
	key[0] = prefixOverflowBlock
	binary.BigEndian.PutUint64(key[1:], block)
	return key
}

// labelIndexKey indexes node membership in a label.
// Format: prefix + label token + node id.
func labelIndexKey(label TokenID, node EntityID) []byte {
	key := make([]byte, 13)
	key[0] = prefixLabelIndex
	binary.BigEndian.PutUint32(key[1:], uint32(label))
	binary.BigEndian.PutUint64(key[5:], uint64(node))
	return key
}

// labelIndexPrefix scans all nodes carrying a label.
func labelIndexPrefix(label TokenID) []byte {
	key := make([]byte, 5)
	key[0] = prefixLabelIndex
	binary.BigEndian.PutUint32(key[1:], uint32(label))
	return key
}

// nodeFromLabelIndexKey extracts the node id from a label index key.
func nodeFromLabelIndexKey(key []byte) EntityID {
	return EntityID(binary.BigEndian.Uint64(key[5:]))
}

// outgoingIndexKey indexes a relationship under its start node.
func outgoingIndexKey(node EntityID, rel EntityID) []byte {
	return adjacencyKey(prefixOutgoingIndex, node, rel)
}

// outgoingIndexPrefix scans relationships leaving a node.
func outgoingIndexPrefix(node EntityID) []byte {
	return adjacencyPrefix(prefixOutgoingIndex, node)
}

// incomingIndexKey indexes a relationship under its end node.
func incomingIndexKey(node EntityID, rel EntityID) []byte {
	return adjacencyKey(prefixIncomingIndex, node, rel)
}

// incomingIndexPrefix scans relationships arriving at a node.
func incomingIndexPrefix(node EntityID) []byte {
	return adjacencyPrefix(prefixIncomingIndex, node)
}

func adjacencyKey(prefix byte, node EntityID, rel EntityID) []byte {
	key := make([]byte, 17)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:], uint64(node))
	binary.BigEndian.PutUint64(key[9:], uint64(rel))
	return key
}

func adjacencyPrefix(prefix byte, node EntityID) []byte {
	key := make([]byte, 9)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:], uint64(node))
	return key
}

// relFromAdjacencyKey extracts the relationship id from an adjacency key.
func relFromAdjacencyKey(key []byte) EntityID {
	return EntityID(binary.BigEndian.Uint64(key[9:]))
}

// tokenKey stores a token name so registries survive reopen.
// Format: prefix + category + token id. Value is the raw name.
func tokenKey(category TokenCategory, id TokenID) []byte {
	key := make([]byte, 6)
	key[0] = prefixToken
	key[1] = byte(category)
	binary.BigEndian.PutUint32(key[2:], uint32(id))
	return key
}

// tokenKeyPrefix scans all persisted tokens of one category, in id order.
func tokenKeyPrefix(category TokenCategory) []byte {
	return []byte{prefixToken, byte(category)}
}

// metaKey stores engine metadata such as id counters.
func metaKey(name string) []byte {
	return append([]byte{prefixMeta}, name...)
}
