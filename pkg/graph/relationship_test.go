package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libertyarow/neo4j/pkg/storage"
)

func TestRelationshipEndpointsAndType(t *testing.T) {
	e := newTestEngine(t, storage.Options{})

	tx := begin(t, e)
	a, err := CreateNode(tx)
	require.NoError(t, err)
	b, err := CreateNode(tx)
	require.NoError(t, err)
	rel, err := a.CreateRelationshipTo(b, "KNOWS")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2 := begin(t, e)
	proxy, err := GetRelationship(tx2, rel.ID())
	require.NoError(t, err)

	relType, err := proxy.Type()
	require.NoError(t, err)
	assert.Equal(t, "KNOWS", relType)

	start, err := proxy.StartNode()
	require.NoError(t, err)
	assert.Equal(t, a.ID(), start.ID())

	end, err := proxy.EndNode()
	require.NoError(t, err)
	assert.Equal(t, b.ID(), end.ID())
	require.NoError(t, tx2.Rollback())
}

func TestRelationshipCarriesProperties(t *testing.T) {
	e := newTestEngine(t, storage.Options{})

	tx := begin(t, e)
	a, err := CreateNode(tx)
	require.NoError(t, err)
	b, err := CreateNode(tx)
	require.NoError(t, err)
	rel, err := a.CreateRelationshipTo(b, "KNOWS")
	require.NoError(t, err)
	require.NoError(t, rel.SetProperty("since", storage.IntValue(2020)))
	require.NoError(t, tx.Commit())

	tx2 := begin(t, e)
	proxy, err := GetRelationship(tx2, rel.ID())
	require.NoError(t, err)
	v, err := proxy.Property("since")
	require.NoError(t, err)
	assert.Equal(t, int64(2020), v.Int)
	require.NoError(t, tx2.Rollback())
}

func TestGetRelationshipRejectsNodeID(t *testing.T) {
	e := newTestEngine(t, storage.Options{})

	tx := begin(t, e)
	node, err := CreateNode(tx)
	require.NoError(t, err)
	_, err = GetRelationship(tx, node.ID())
	require.Error(t, err)
	require.NoError(t, tx.Rollback())
}

func TestRelationshipDelete(t *testing.T) {
	e := newTestEngine(t, storage.Options{})

	tx := begin(t, e)
	a, err := CreateNode(tx)
	require.NoError(t, err)
	b, err := CreateNode(tx)
	require.NoError(t, err)
	rel, err := a.CreateRelationshipTo(b, "KNOWS")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2 := begin(t, e)
	proxy, err := GetRelationship(tx2, rel.ID())
	require.NoError(t, err)
	require.NoError(t, proxy.Delete())
	require.NoError(t, tx2.Commit())

	tx3 := begin(t, e)
	aProxy, err := GetNode(tx3, a.ID())
	require.NoError(t, err)
	degree, err := aProxy.Degree()
	require.NoError(t, err)
	assert.Zero(t, degree)

	types, err := aProxy.RelationshipTypes()
	require.NoError(t, err)
	assert.Empty(t, types)
	require.NoError(t, tx3.Rollback())
}
