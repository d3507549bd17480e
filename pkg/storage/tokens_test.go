package storage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenRegistryAllocatesDenseIDs(t *testing.T) {
	reg := newTokenRegistry(TokenLabel, 10)

	for i := 0; i < 5; i++ {
		id, created, err := reg.resolve(fmt.Sprintf("label-%d", i))
		require.NoError(t, err)
		require.True(t, created)
		require.Equal(t, TokenID(i), id)
	}

	// Re-resolving returns the same id without allocating.
	id, created, err := reg.resolve("label-3")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, TokenID(3), id)

	name, err := reg.name(2)
	require.NoError(t, err)
	require.Equal(t, "label-2", name)
}

func TestTokenRegistryExhaustion(t *testing.T) {
	const capacity = 5
	reg := newTokenRegistry(TokenPropertyKey, capacity)

	ids := make(map[TokenID]bool)
	for i := 0; i < capacity; i++ {
		id, _, err := reg.resolve(fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
		require.False(t, ids[id], "id %d allocated twice", id)
		ids[id] = true
	}

	_, _, err := reg.resolve("one-too-many")
	require.ErrorIs(t, err, ErrTokenSpaceExhausted)

	// Existing names keep resolving after exhaustion.
	id, created, err := reg.resolve("key-0")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, TokenID(0), id)
}

func TestTokenRegistryConcurrentFirstUse(t *testing.T) {
	reg := newTokenRegistry(TokenRelationshipType, 100)

	const goroutines = 16
	ids := make([]TokenID, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(slot int) {
			defer wg.Done()
			id, _, err := reg.resolve("KNOWS")
			require.NoError(t, err)
			ids[slot] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id, "concurrent first-use produced two ids for one name")
	}
	require.Equal(t, 1, reg.len())
}

func TestTokenRegistryUnallocatedName(t *testing.T) {
	reg := newTokenRegistry(TokenLabel, 10)
	_, err := reg.name(0)
	require.Error(t, err)
}
