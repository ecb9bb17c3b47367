package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineDiff(t *testing.T) {
	t.Parallel()

	out := lineDiff([]string{"a", "b", "c"}, []string{"a", "c", "d"})

	assert.Equal(t, "  a\n- b\n  c\n+ d\n", out)
	assert.Empty(t, lineDiff(nil, nil))
}

func TestCanonical_OrdersTies(t *testing.T) {
	t.Parallel()

	byScore := func(a, b Record) int { return a.Score - b.Score }

	items := []Record{{Name: "b", Score: 1}, {Name: "a", Score: 1}, {Name: "c", Score: 0}}

	assert.Equal(t, []Record{{Name: "c"}, {Name: "a", Score: 1}, {Name: "b", Score: 1}}, canonical(items, byScore))
	assert.Equal(t, items, canonical(items, nil))
}
