package graph

import (
	"fmt"

	"github.com/libertyarow/neo4j/pkg/storage"
)

// Relationship is a proxy for a relationship entity, bound to one
// transaction.
type Relationship struct {
	entity
}

// GetRelationship returns a proxy for an existing relationship id.
func GetRelationship(tx *storage.Transaction, id storage.EntityID) (Relationship, error) {
	ent, err := tx.GetEntity(id)
	if err != nil {
		return Relationship{}, translate(err, id, "", 0, "")
	}
	if ent.Kind != storage.EntityRelationship {
		return Relationship{}, fmt.Errorf("entity %d is a %s, not a relationship", id, ent.Kind)
	}
	return Relationship{entity{id: id, tx: tx}}, nil
}

// Type returns the relationship's type name.
func (r Relationship) Type() (string, error) {
	ent, err := r.tx.GetEntity(r.id)
	if err != nil {
		return "", translate(err, r.id, "", 0, "")
	}
	return r.tx.Engine().TokenName(storage.TokenRelationshipType, ent.Type)
}

// StartNode returns the proxy for the relationship's start node.
func (r Relationship) StartNode() (Node, error) {
	ent, err := r.tx.GetEntity(r.id)
	if err != nil {
		return Node{}, translate(err, r.id, "", 0, "")
	}
	return Node{entity{id: ent.Start, tx: r.tx}}, nil
}

// EndNode returns the proxy for the relationship's end node.
func (r Relationship) EndNode() (Node, error) {
	ent, err := r.tx.GetEntity(r.id)
	if err != nil {
		return Node{}, translate(err, r.id, "", 0, "")
	}
	return Node{entity{id: ent.End, tx: r.tx}}, nil
}
