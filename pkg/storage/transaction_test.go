package storage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadYourWrites(t *testing.T) {
	e := newTestEngine(t, Options{})

	tx, err := e.Begin()
	require.NoError(t, err)
	node, err := tx.CreateNode()
	require.NoError(t, err)
	require.NoError(t, tx.SetProperty(node, "name", StringValue("Alice")))

	// Visible to this transaction before commit.
	v, err := tx.Property(node, "name")
	require.NoError(t, err)
	require.Equal(t, StringValue("Alice"), v)

	// Invisible to a concurrent transaction.
	other, err := e.Begin()
	require.NoError(t, err)
	_, err = other.Property(node, "name")
	require.ErrorIs(t, err, ErrNotFound)
	exists, err := other.EntityExists(node)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, tx.Commit())

	// Now the other transaction sees the committed batch.
	v, err = other.Property(node, "name")
	require.NoError(t, err)
	require.Equal(t, StringValue("Alice"), v)
	require.NoError(t, other.Rollback())
}

func TestDoubleDeleteInOneTransaction(t *testing.T) {
	e := newTestEngine(t, Options{})

	setup, err := e.Begin()
	require.NoError(t, err)
	node, err := setup.CreateNode()
	require.NoError(t, err)
	require.NoError(t, setup.Commit())

	tx, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.DeleteEntity(node))

	// Second delete fails, but only locally: the transaction is not
	// poisoned and still commits with the first delete intact.
	err = tx.DeleteEntity(node)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, TxStatusActive, tx.CurrentStatus())
	require.NoError(t, tx.Commit())

	after, err := e.Begin()
	require.NoError(t, err)
	exists, err := after.EntityExists(node)
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, after.Rollback())
}

func TestDeletedIDIsNeverResurrected(t *testing.T) {
	e := newTestEngine(t, Options{})

	tx, err := e.Begin()
	require.NoError(t, err)
	node, err := tx.CreateNode()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, tx2.DeleteEntity(node))
	require.NoError(t, tx2.Commit())

	// Later creates get fresh ids; the deleted id stays invisible.
	tx3, err := e.Begin()
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		id, err := tx3.CreateNode()
		require.NoError(t, err)
		require.NotEqual(t, node, id)
	}
	err = tx3.DeleteEntity(node)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, tx3.Commit())
}

func TestPropertyTypeReplacement(t *testing.T) {
	e := newTestEngine(t, Options{})

	tx, err := e.Begin()
	require.NoError(t, err)
	node, err := tx.CreateNode()
	require.NoError(t, err)
	require.NoError(t, tx.SetProperty(node, "prop", IntValue(1337)))
	require.NoError(t, tx.Commit())

	tx2, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, tx2.SetProperty(node, "prop", FloatValue(1337.0)))
	require.NoError(t, tx2.Commit())

	tx3, err := e.Begin()
	require.NoError(t, err)
	v, err := tx3.Property(node, "prop")
	require.NoError(t, err)
	require.Equal(t, ValueFloat, v.Kind, "replacement must not coerce back to int")
	require.Equal(t, 1337.0, v.Float)
	require.NoError(t, tx3.Rollback())
}

func TestClosedTransactionRejectsEverything(t *testing.T) {
	e := newTestEngine(t, Options{})

	for _, tc := range []struct {
		name string
		do   func(tx *Transaction)
	}{
		{"committed", func(tx *Transaction) { require.NoError(t, tx.Commit()) }},
		{"rolled-back", func(tx *Transaction) { require.NoError(t, tx.Rollback()) }},
		{"terminated", func(tx *Transaction) { tx.Terminate() }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tx, err := e.Begin()
			require.NoError(t, err)
			node, err := tx.CreateNode()
			require.NoError(t, err)
			tc.do(tx)

			_, err = tx.CreateNode()
			require.ErrorIs(t, err, ErrTransactionClosed)
			_, err = tx.Property(node, "x")
			require.ErrorIs(t, err, ErrTransactionClosed)
			err = tx.SetProperty(node, "x", IntValue(1))
			require.ErrorIs(t, err, ErrTransactionClosed)
			err = tx.DeleteEntity(node)
			require.ErrorIs(t, err, ErrTransactionClosed)
			err = tx.Commit()
			require.ErrorIs(t, err, ErrTransactionClosed)
			err = tx.Rollback()
			require.ErrorIs(t, err, ErrTransactionClosed)

			// Re-termination is idempotent from any closed state.
			tx.Terminate()
			tx.Terminate()
			require.Equal(t, TxStatusTerminated, tx.CurrentStatus())
		})
	}
}

func TestRollbackDiscardsWriteSet(t *testing.T) {
	e := newTestEngine(t, Options{})

	tx, err := e.Begin()
	require.NoError(t, err)
	node, err := tx.CreateNode()
	require.NoError(t, err)
	require.NoError(t, tx.SetProperty(node, "name", StringValue("ghost")))
	require.NoError(t, tx.Rollback())

	after, err := e.Begin()
	require.NoError(t, err)
	exists, err := after.EntityExists(node)
	require.NoError(t, err)
	require.False(t, exists, "rolled-back create must not be committed")
	require.NoError(t, after.Rollback())
}

func TestTerminateRacesInFlightOperations(t *testing.T) {
	e := newTestEngine(t, Options{})

	setup, err := e.Begin()
	require.NoError(t, err)
	node, err := setup.CreateNode()
	require.NoError(t, err)
	require.NoError(t, setup.SetProperty(node, "n", IntValue(0)))
	require.NoError(t, setup.Commit())

	tx, err := e.Begin()
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			// Errors are fine once terminated; crashes or corruption are not.
			_, _ = tx.Property(node, "n")
			_ = tx.SetProperty(node, "n", IntValue(int64(i)))
		}
	}()
	go func() {
		defer wg.Done()
		tx.Terminate()
	}()
	wg.Wait()

	require.Equal(t, TxStatusTerminated, tx.CurrentStatus())

	// Committed state is untouched by the terminated transaction.
	after, err := e.Begin()
	require.NoError(t, err)
	v, err := after.Property(node, "n")
	require.NoError(t, err)
	require.Equal(t, IntValue(0), v)
	require.NoError(t, after.Rollback())
}

func TestNodeDeleteCascadesRelationships(t *testing.T) {
	e := newTestEngine(t, Options{})

	tx, err := e.Begin()
	require.NoError(t, err)
	a, err := tx.CreateNode()
	require.NoError(t, err)
	b, err := tx.CreateNode()
	require.NoError(t, err)
	rel, err := tx.CreateRelationship(a, b, "KNOWS")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2, err := e.Begin()
	require.NoError(t, err)
	require.NoError(t, tx2.DeleteEntity(a))
	require.NoError(t, tx2.Commit())

	tx3, err := e.Begin()
	require.NoError(t, err)
	exists, err := tx3.EntityExists(rel)
	require.NoError(t, err)
	require.False(t, exists, "relationship must not survive its node")

	// The surviving endpoint has no dangling adjacency.
	ids, err := tx3.RelationshipIDs(b)
	require.NoError(t, err)
	require.Empty(t, ids)
	require.NoError(t, tx3.Rollback())
}

func TestCreateRelationshipRequiresVisibleEndpoints(t *testing.T) {
	e := newTestEngine(t, Options{})

	tx, err := e.Begin()
	require.NoError(t, err)
	a, err := tx.CreateNode()
	require.NoError(t, err)

	_, err = tx.CreateRelationship(a, EntityID(9999), "KNOWS")
	require.ErrorIs(t, err, ErrNotFound)

	// Both endpoints uncommitted but visible to this transaction is fine.
	b, err := tx.CreateNode()
	require.NoError(t, err)
	_, err = tx.CreateRelationship(a, b, "KNOWS")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
}

func TestDisjointCommitsDoNotConflict(t *testing.T) {
	e := newTestEngine(t, Options{})

	setup, err := e.Begin()
	require.NoError(t, err)
	a, err := setup.CreateNode()
	require.NoError(t, err)
	b, err := setup.CreateNode()
	require.NoError(t, err)
	require.NoError(t, setup.Commit())

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2)
	errs := make(chan error, 2*rounds)
	writer := func(node EntityID, key string) {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			tx, err := e.Begin()
			if err != nil {
				errs <- err
				return
			}
			if err := tx.SetProperty(node, key, IntValue(int64(i))); err != nil {
				errs <- err
				return
			}
			if err := tx.Commit(); err != nil {
				errs <- err
				return
			}
		}
	}
	go writer(a, "a")
	go writer(b, "b")
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	check, err := e.Begin()
	require.NoError(t, err)
	va, err := check.Property(a, "a")
	require.NoError(t, err)
	require.Equal(t, int64(rounds-1), va.Int)
	vb, err := check.Property(b, "b")
	require.NoError(t, err)
	require.Equal(t, int64(rounds-1), vb.Int)
	require.NoError(t, check.Rollback())
}
