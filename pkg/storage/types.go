// Package storage implements the transactional entity/property kernel:
// a Badger-backed committed store, bounded token registries, and
// write-set transactions that commit atomically.
package storage

// EntityID identifies a node or relationship. Ids are dense, assigned
// monotonically, and never reused within a store epoch.
type EntityID uint64

// TokenID is a dense integer id for a schema name (label, property key,
// or relationship type).
type TokenID uint32

// EntityKind distinguishes nodes from relationships.
type EntityKind uint8

const (
	EntityNode EntityKind = iota + 1
	EntityRelationship
)

func (k EntityKind) String() string {
	switch k {
	case EntityNode:
		return "node"
	case EntityRelationship:
		return "relationship"
	default:
		return "unknown"
	}
}

// Entity is the committed record for a node or relationship. Property
// records are stored separately, keyed by (entity id, property token).
type Entity struct {
	ID     EntityID   `msgpack:"id"`
	Kind   EntityKind `msgpack:"k"`
	Labels []TokenID  `msgpack:"l,omitempty"`

	// Relationship fields; zero for nodes.
	Type  TokenID  `msgpack:"t,omitempty"`
	Start EntityID `msgpack:"s,omitempty"`
	End   EntityID `msgpack:"e,omitempty"`
}

// hasLabel reports whether the entity already carries the label token.
func (e *Entity) hasLabel(id TokenID) bool {
	for _, l := range e.Labels {
		if l == id {
			return true
		}
	}
	return false
}

// TransactionStatus tracks the transaction state machine.
type TransactionStatus uint8

const (
	TxStatusActive TransactionStatus = iota + 1
	TxStatusCommitted
	TxStatusRolledBack
	TxStatusTerminated
)

func (s TransactionStatus) String() string {
	switch s {
	case TxStatusActive:
		return "active"
	case TxStatusCommitted:
		return "committed"
	case TxStatusRolledBack:
		return "rolled-back"
	case TxStatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
