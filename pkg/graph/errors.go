// Package graph exposes the user-facing handles over the storage kernel:
// Node and Relationship proxies bound to one transaction, and the typed
// errors their operations surface.
package graph

import (
	"errors"
	"fmt"

	"github.com/libertyarow/neo4j/pkg/storage"
)

// NotFoundError reports an entity or property that is not visible in the
// proxy's transaction. PropertyKey is set when a property lookup missed,
// so messages always name the key the caller asked for.
type NotFoundError struct {
	EntityID    storage.EntityID
	PropertyKey string
}

func (e *NotFoundError) Error() string {
	if e.PropertyKey != "" {
		return fmt.Sprintf("property %q not found on entity %d", e.PropertyKey, e.EntityID)
	}
	return fmt.Sprintf("entity %d not found", e.EntityID)
}

func (e *NotFoundError) Unwrap() error { return storage.ErrNotFound }

// ConstraintViolationError reports a failed token allocation: the
// category's id space is exhausted, so the name cannot be created.
type ConstraintViolationError struct {
	Category storage.TokenCategory
	Name     string
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("unable to create token %q: %s token space exhausted", e.Name, e.Category)
}

func (e *ConstraintViolationError) Unwrap() error { return storage.ErrTokenSpaceExhausted }

// translate maps storage sentinels onto the typed errors above. tokenName
// and category describe the token being resolved, if the operation
// resolved one; propertyKey names the property being read, if any.
func translate(err error, id storage.EntityID, propertyKey string, category storage.TokenCategory, tokenName string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrTokenSpaceExhausted):
		return &ConstraintViolationError{Category: category, Name: tokenName}
	case errors.Is(err, storage.ErrNotFound):
		return &NotFoundError{EntityID: id, PropertyKey: propertyKey}
	default:
		return err
	}
}
