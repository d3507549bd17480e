package graph

import (
	"github.com/libertyarow/neo4j/pkg/storage"
)

// entity is the shared half of Node and Relationship: an id plus the
// owning transaction, nothing else. Proxies never cache entity state;
// every operation goes through the transaction's merged view, so multiple
// proxies for one entity can never disagree.
type entity struct {
	id storage.EntityID
	tx *storage.Transaction
}

// ID returns the entity id.
func (e entity) ID() storage.EntityID { return e.id }

// SetProperty writes a property, interning the key on first use. When the
// property-key space is exhausted the result is a ConstraintViolationError.
func (e entity) SetProperty(key string, value storage.PropertyValue) error {
	err := e.tx.SetProperty(e.id, key, value)
	return translate(err, e.id, "", storage.TokenPropertyKey, key)
}

// Property reads a property. A miss yields a NotFoundError naming the key.
func (e entity) Property(key string) (storage.PropertyValue, error) {
	v, err := e.tx.Property(e.id, key)
	if err != nil {
		return storage.PropertyValue{}, translate(err, e.id, key, 0, "")
	}
	return v, nil
}

// HasProperty reports whether the entity carries the key.
func (e entity) HasProperty(key string) (bool, error) {
	ok, err := e.tx.HasProperty(e.id, key)
	if err != nil {
		return false, translate(err, e.id, "", 0, "")
	}
	return ok, nil
}

// RemoveProperty deletes a property; removing an absent key succeeds.
func (e entity) RemoveProperty(key string) error {
	return translate(e.tx.RemoveProperty(e.id, key), e.id, "", 0, "")
}

// Properties returns all properties with their key names.
func (e entity) Properties() (map[string]storage.PropertyValue, error) {
	props, err := e.tx.Properties(e.id)
	if err != nil {
		return nil, translate(err, e.id, "", 0, "")
	}
	return props, nil
}

// Delete removes the entity from the transaction's view. A second delete
// of the same entity in the same transaction fails with NotFoundError but
// leaves the transaction usable; the first delete still commits.
func (e entity) Delete() error {
	return translate(e.tx.DeleteEntity(e.id), e.id, "", 0, "")
}
