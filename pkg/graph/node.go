package graph

import (
	"github.com/libertyarow/neo4j/pkg/storage"
)

// Node is a proxy for a node entity, bound to one transaction.
type Node struct {
	entity
}

// CreateNode creates a node in the transaction and returns its proxy.
func CreateNode(tx *storage.Transaction) (Node, error) {
	id, err := tx.CreateNode()
	if err != nil {
		return Node{}, err
	}
	return Node{entity{id: id, tx: tx}}, nil
}

// GetNode returns a proxy for an existing node id, failing with
// NotFoundError when the id is not visible to the transaction.
func GetNode(tx *storage.Transaction, id storage.EntityID) (Node, error) {
	ok, err := tx.EntityExists(id)
	if err != nil {
		return Node{}, err
	}
	if !ok {
		return Node{}, &NotFoundError{EntityID: id}
	}
	return Node{entity{id: id, tx: tx}}, nil
}

// FindNodes returns proxies for every node carrying the label.
func FindNodes(tx *storage.Transaction, label string) ([]Node, error) {
	ids, err := tx.NodesWithLabel(label)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, Node{entity{id: id, tx: tx}})
	}
	return nodes, nil
}

// AddLabel attaches a label, interning the name on first use. When the
// label space is exhausted the result is a ConstraintViolationError.
func (n Node) AddLabel(name string) error {
	err := n.tx.AddLabel(n.id, name)
	return translate(err, n.id, "", storage.TokenLabel, name)
}

// Labels returns the node's label names.
func (n Node) Labels() ([]string, error) {
	labels, err := n.tx.Labels(n.id)
	if err != nil {
		return nil, translate(err, n.id, "", 0, "")
	}
	return labels, nil
}

// CreateRelationshipTo creates a typed relationship from this node to
// other. A brand-new type name can fail with ConstraintViolationError.
func (n Node) CreateRelationshipTo(other Node, relType string) (Relationship, error) {
	id, err := n.tx.CreateRelationship(n.id, other.id, relType)
	if err != nil {
		return Relationship{}, translate(err, n.id, "", storage.TokenRelationshipType, relType)
	}
	return Relationship{entity{id: id, tx: n.tx}}, nil
}

// Relationships returns proxies for every relationship touching the node.
func (n Node) Relationships() ([]Relationship, error) {
	ids, err := n.tx.RelationshipIDs(n.id)
	if err != nil {
		return nil, translate(err, n.id, "", 0, "")
	}
	rels := make([]Relationship, 0, len(ids))
	for _, id := range ids {
		rels = append(rels, Relationship{entity{id: id, tx: n.tx}})
	}
	return rels, nil
}

// RelationshipTypes returns the distinct relationship type names touching
// the node; a type used by many relationships appears once.
func (n Node) RelationshipTypes() ([]string, error) {
	types, err := n.tx.RelationshipTypes(n.id)
	if err != nil {
		return nil, translate(err, n.id, "", 0, "")
	}
	return types, nil
}

// Degree returns the number of relationships touching the node.
func (n Node) Degree() (int, error) {
	ids, err := n.tx.RelationshipIDs(n.id)
	if err != nil {
		return 0, translate(err, n.id, "", 0, "")
	}
	return len(ids), nil
}
