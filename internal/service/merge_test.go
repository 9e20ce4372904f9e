package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type row struct {
	k string
	v int
}

func TestMerge(t *testing.T) {
	in := []row{{"a", 1}, {"b", 2}, {"a", 3}, {"c", 4}, {"b", 1}}
	key := func(r row) string { return r.k }

	t.Run("first wins", func(t *testing.T) {
		got := Merge(in, key, nil)
		assert.Equal(t, []row{{"a", 1}, {"b", 2}, {"c", 4}}, got)
	})

	t.Run("better replaces in place", func(t *testing.T) {
		got := Merge(in, key, func(c, cur row) bool { return c.v > cur.v })
		assert.Equal(t, []row{{"a", 3}, {"b", 2}, {"c", 4}}, got)
	})

	t.Run("empty", func(t *testing.T) {
		got := Merge([]row(nil), key, nil)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}
