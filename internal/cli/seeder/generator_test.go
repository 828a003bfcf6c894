package seeder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorProducesWellFormedEvents(t *testing.T) {
	g := NewGenerator(42)

	for i := 0; i < 50; i++ {
		ev := g.Next()
		assert.Contains(t, EventTypes(), ev.Type)
		assert.NotEmpty(t, ev.Source)
		require.NotNil(t, ev.Data)
		assert.Contains(t, severities, ev.Data["severity"])
		assert.NotEmpty(t, ev.Data["description"])
		assert.NotEmpty(t, ev.Metadata["country"])
	}
}

func TestGeneratorIsDeterministicForFixedSeed(t *testing.T) {
	a := NewGenerator(7)
	b := NewGenerator(7)

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestEventTypesReturnsACopy(t *testing.T) {
	types := EventTypes()
	require.NotEmpty(t, types)
	types[0] = "mutated"
	assert.NotEqual(t, "mutated", EventTypes()[0])
}
