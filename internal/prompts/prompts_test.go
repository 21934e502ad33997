package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategories_StableOrder(t *testing.T) {
	assert.Equal(t, []Category{Creative, Technical, Analytical, Conversational, Mathematical}, Categories())
}

func TestForCategory(t *testing.T) {
	t.Run("capped subset", func(t *testing.T) {
		got := ForCategory(Creative, 2)
		assert.Len(t, got, 2)
	})

	t.Run("cap beyond catalog size returns all", func(t *testing.T) {
		got := ForCategory(Creative, 10)
		assert.Len(t, got, 3)
	})

	t.Run("non-positive cap returns all", func(t *testing.T) {
		got := ForCategory(Mathematical, 0)
		assert.Len(t, got, 3)
	})

	t.Run("every category has prompts", func(t *testing.T) {
		for _, c := range Categories() {
			require.NotEmpty(t, ForCategory(c, 0), "category %s", c)
		}
	})
}

func TestForCategory_ReturnsCopy(t *testing.T) {
	got := ForCategory(Creative, 1)
	got[0] = "mutated"

	again := ForCategory(Creative, 1)
	assert.NotEqual(t, "mutated", again[0])
}

func TestLongForm(t *testing.T) {
	got := LongForm()
	require.Len(t, got, 3)

	got[0] = "mutated"
	assert.NotEqual(t, "mutated", LongForm()[0])
}
