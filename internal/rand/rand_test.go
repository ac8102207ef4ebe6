package rand

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	s := String(32)
	assert.Len(t, s, 32)
	for _, c := range s {
		assert.Contains(t, charset, string(c))
	}
	assert.NotEqual(t, s, String(32))
}

func TestPerm(t *testing.T) {
	p := Perm(10)
	assert.Len(t, p, 10)
	sorted := append([]int(nil), p...)
	sort.Ints(sorted)
	for i, v := range sorted {
		assert.Equal(t, i, v)
	}
}
