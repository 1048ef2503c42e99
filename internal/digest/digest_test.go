package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestIgnoresKeyOrder(t *testing.T) {
	a, err := Digest(map[string]any{"b": 1, "a": []int{1, 2}})
	require.NoError(t, err)
	b, err := Digest(map[string]any{"a": []int{1, 2}, "b": 1})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestDigestChangesWithContent(t *testing.T) {
	a, err := Digest(map[string]any{"value": 1.5})
	require.NoError(t, err)
	b, err := Digest(map[string]any{"value": 1.25})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestCanonicalSortsKeys(t *testing.T) {
	type doc struct {
		Zeta  int `json:"zeta"`
		Alpha int `json:"alpha"`
	}
	out, err := Canonical(doc{Zeta: 1, Alpha: 2})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"zeta":1}`, string(out))
}

func TestDigestRejectsUnsupportedValues(t *testing.T) {
	_, err := Digest(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
