package scenario_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/collview/pkg/scenario"
	"github.com/Sumatoshi-tech/collview/pkg/shaping"
)

const runTimeout = 10 * time.Second

func run(t *testing.T, sc *scenario.Scenario) *scenario.Result {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	res, err := scenario.Run(ctx, sc, scenario.Options{})
	require.NoError(t, err)

	return res
}

func TestLoad_Testdata(t *testing.T) {
	t.Parallel()

	sc, err := scenario.Load(filepath.Join("testdata", "ranking.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "ranking", sc.Name)
	assert.Len(t, sc.Items, 4)
	assert.Len(t, sc.Steps, 5)
	assert.Equal(t, []shaping.SortDescription{{Property: "score", Direction: shaping.Descending}}, sc.Sort)
	assert.Equal(t, scenario.OpAppend, sc.Steps[4].Op)
	assert.Nil(t, sc.CrossContext)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := scenario.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestParse_SchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		problem string
	}{
		{"missing name", "steps: []\n", "name"},
		{"unknown op", "name: x\nsteps:\n  - {op: shuffle}\n", "op"},
		{"insert without item", "name: x\nsteps:\n  - {op: insert, index: 0}\n", "item"},
		{"negative index", "name: x\nsteps:\n  - {op: remove, index: -1}\n", "index"},
		{"unknown field", "name: x\nsteps: []\ncolour: red\n", "colour"},
		{"bad sort property", "name: x\nsort: [{property: height}]\nsteps: []\n", "property"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := scenario.Parse([]byte(tt.input))
			require.ErrorIs(t, err, scenario.ErrInvalidScenario)

			var verr *scenario.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Problems)
			assert.Contains(t, err.Error(), tt.problem)
		})
	}
}

func TestParse_DecodeAndFilterErrors(t *testing.T) {
	t.Parallel()

	_, err := scenario.Parse([]byte("name: [unclosed\n"))
	require.ErrorIs(t, err, scenario.ErrDecode)

	_, err = scenario.Parse([]byte("name: x\nfilter: {property: score, op: gt, value: high}\nsteps: []\n"))
	require.ErrorIs(t, err, scenario.ErrFilterValue)

	_, err = scenario.Parse([]byte("name: x\nfilter: {property: score, op: prefix, value: 1}\nsteps: []\n"))
	require.ErrorIs(t, err, scenario.ErrFilterValue)
}

func TestParse_JSON(t *testing.T) {
	t.Parallel()

	input := `{"name": "json", "items": [{"name": "a", "score": 1}], "steps": [{"op": "clear"}]}`

	sc, err := scenario.Parse([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, "json", sc.Name)
	assert.Equal(t, 1, sc.Items[0].Score)
}

func TestSchema_IsJSON(t *testing.T) {
	t.Parallel()

	assert.True(t, json.Valid(scenario.Schema()))
}

func TestFilter_Predicate(t *testing.T) {
	t.Parallel()

	rec := scenario.Record{Name: "delta", Group: "g1", Score: 4}

	tests := []struct {
		filter *scenario.Filter
		want   bool
	}{
		{&scenario.Filter{Property: "score", Op: "ge", Value: 4}, true},
		{&scenario.Filter{Property: "score", Op: "lt", Value: "4"}, false},
		{&scenario.Filter{Property: "score", Op: "ne", Value: 3}, true},
		{&scenario.Filter{Property: "name", Op: "prefix", Value: "de"}, true},
		{&scenario.Filter{Property: "name", Op: "gt", Value: "echo"}, false},
		{&scenario.Filter{Property: "group", Op: "eq", Value: "g1"}, true},
	}

	for _, tt := range tests {
		keep, err := tt.filter.Predicate()
		require.NoError(t, err, tt.filter.String())
		assert.Equal(t, tt.want, keep(rec), tt.filter.String())
	}

	var none *scenario.Filter

	keep, err := none.Predicate()
	require.NoError(t, err)
	assert.Nil(t, keep)
	assert.Equal(t, "none", none.String())
}

func TestRun_Ranking(t *testing.T) {
	t.Parallel()

	sc, err := scenario.Load(filepath.Join("testdata", "ranking.yaml"))
	require.NoError(t, err)

	res := run(t, sc)

	assert.True(t, res.Passed, res.Diff)
	assert.True(t, res.Sorted)
	assert.Empty(t, res.Diff)
	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.Items, len(res.Reference))
	assert.Zero(t, res.Resets)
	assert.Positive(t, res.Events)
}

func TestRun_ReshapeMidway(t *testing.T) {
	t.Parallel()

	sc, err := scenario.Load(filepath.Join("testdata", "ranking.yaml"))
	require.NoError(t, err)

	sc.Steps = append(sc.Steps,
		scenario.Step{Op: scenario.OpFilter, Filter: &scenario.Filter{Property: "score", Op: "ge", Value: 6}},
		scenario.Step{Op: scenario.OpSort, Sort: []shaping.SortDescription{{Property: "name"}}},
		scenario.Step{Op: scenario.OpInsert, Index: 0, Item: scenario.Record{Name: "cat", Group: "c", Score: 8}},
	)
	sc.Expect = []string{"ann", "bob", "cat", "dan", "eve", "fay"}

	res := run(t, sc)

	assert.True(t, res.Passed, res.Diff)
	assert.Equal(t, int64(2), res.Resets)
}

func TestRun_CrossContextAsync(t *testing.T) {
	t.Parallel()

	cross := true
	async := 1

	sc := &scenario.Scenario{
		Name:           "cross",
		Sort:           []shaping.SortDescription{{Property: "score", Direction: shaping.Descending}, {Property: "name"}},
		CrossContext:   &cross,
		AsyncThreshold: &async,
		Parallel:       true,
	}

	for i := range 200 {
		sc.Steps = append(sc.Steps, scenario.Step{
			Op:    scenario.OpAppend,
			Items: []scenario.Record{{Name: fmt.Sprintf("r%03d", i), Score: (i * 37) % 50}},
		})
	}

	sc.Steps = append(sc.Steps,
		scenario.Step{Op: scenario.OpRefresh},
		scenario.Step{Op: scenario.OpRemove, Index: 10},
		scenario.Step{Op: scenario.OpMove, From: 0, To: 150},
		scenario.Step{Op: scenario.OpWait},
		scenario.Step{Op: scenario.OpReset, Items: []scenario.Record{{Name: "x", Score: 1}, {Name: "y", Score: 3}}},
		scenario.Step{Op: scenario.OpInsert, Index: 1, Item: scenario.Record{Name: "z", Score: 2}},
	)
	sc.Expect = []string{"y", "z", "x"}

	res := run(t, sc)

	assert.True(t, res.Passed, res.Diff)
	assert.GreaterOrEqual(t, res.Resets, int64(2))
}

func TestRun_ExpectMismatch(t *testing.T) {
	t.Parallel()

	sc := &scenario.Scenario{
		Name:   "mismatch",
		Items:  []scenario.Record{{Name: "a"}, {Name: "b"}},
		Expect: []string{"b", "a"},
	}

	res := run(t, sc)

	assert.False(t, res.Passed)
	assert.Contains(t, res.Diff, "- ")
	assert.Contains(t, res.Diff, "+ ")
}

func TestRun_StepError(t *testing.T) {
	t.Parallel()

	sc := &scenario.Scenario{
		Name:  "bad-index",
		Items: []scenario.Record{{Name: "a"}},
		Steps: []scenario.Step{{Op: scenario.OpRemove, Index: 5}},
	}

	_, err := scenario.Run(context.Background(), sc, scenario.Options{})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "step 1 (remove)"), err.Error())
}
