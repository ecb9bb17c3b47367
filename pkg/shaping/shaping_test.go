package shaping_test

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/collview/pkg/shaping"
)

type person struct {
	Name    string
	Age     int
	Joined  time.Time
	Active  bool
	Comment any
}

func personKeys() map[string]shaping.KeyFunc[person] {
	return map[string]shaping.KeyFunc[person]{
		"name":    func(p person) any { return p.Name },
		"age":     func(p person) any { return p.Age },
		"joined":  func(p person) any { return p.Joined },
		"active":  func(p person) any { return p.Active },
		"comment": func(p person) any { return p.Comment },
	}
}

func names(people []person) []string {
	out := make([]string, len(people))
	for i, p := range people {
		out[i] = p.Name
	}

	return out
}

func TestProvider_MultiLevel(t *testing.T) {
	t.Parallel()

	p := shaping.NewProvider(personKeys())

	people := []person{
		{Name: "carol", Age: 30},
		{Name: "alice", Age: 30},
		{Name: "bob", Age: 25},
		{Name: "dave", Age: 41},
	}

	compare, err := p.Comparator([]shaping.SortDescription{
		{Property: "age", Direction: shaping.Descending},
		{Property: "name", Direction: shaping.Ascending},
	})
	require.NoError(t, err)

	slices.SortFunc(people, compare)
	assert.Equal(t, []string{"dave", "alice", "carol", "bob"}, names(people))
}

func TestProvider_Locale(t *testing.T) {
	t.Parallel()

	words := []string{"zebra", "äpple", "apple"}

	sortWith := func(tag language.Tag) []string {
		p := shaping.NewProvider(map[string]shaping.KeyFunc[string]{
			"self": func(s string) any { return s },
		}, shaping.WithLocale(tag))

		compare, err := p.Comparator([]shaping.SortDescription{{Property: "self"}})
		require.NoError(t, err)

		out := slices.Clone(words)
		slices.SortFunc(out, compare)

		return out
	}

	assert.Equal(t, []string{"apple", "äpple", "zebra"}, sortWith(language.German))
	assert.Equal(t, []string{"apple", "zebra", "äpple"}, sortWith(language.Swedish))
	assert.Equal(t, language.Swedish, shaping.NewProvider(personKeys(), shaping.WithLocale(language.Swedish)).Locale())
}

func TestProvider_CollateOptions(t *testing.T) {
	t.Parallel()

	p := shaping.NewProvider(map[string]shaping.KeyFunc[string]{
		"self": func(s string) any { return s },
	}, shaping.WithLocale(language.English), shaping.WithCollateOptions(collate.Numeric))

	compare, err := p.Comparator([]shaping.SortDescription{{Property: "self"}})
	require.NoError(t, err)

	files := []string{"file10", "file2", "file1"}
	slices.SortFunc(files, compare)

	assert.Equal(t, []string{"file1", "file2", "file10"}, files)
}

func TestProvider_KeyTypes(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := shaping.NewProvider(personKeys())

	byJoined, err := p.Comparator([]shaping.SortDescription{{Property: "joined"}})
	require.NoError(t, err)
	assert.Negative(t, byJoined(person{Joined: base}, person{Joined: base.Add(time.Hour)}))

	byActive, err := p.Comparator([]shaping.SortDescription{{Property: "active"}})
	require.NoError(t, err)
	assert.Negative(t, byActive(person{Active: false}, person{Active: true}))
	assert.Zero(t, byActive(person{Active: true}, person{Active: true}))

	byComment, err := p.Comparator([]shaping.SortDescription{{Property: "comment"}})
	require.NoError(t, err)
	assert.Negative(t, byComment(person{Comment: nil}, person{Comment: 3}))
	assert.Positive(t, byComment(person{Comment: 3}, person{Comment: nil}))
	assert.Zero(t, byComment(person{}, person{}))
	assert.Negative(t, byComment(person{Comment: []int{1}}, person{Comment: []int{2}}))
}

func TestProvider_CachePerInstance(t *testing.T) {
	t.Parallel()

	descs := []shaping.SortDescription{{Property: "name"}}

	first := shaping.NewProvider(personKeys())
	second := shaping.NewProvider(personKeys())

	_, err := first.Comparator(descs)
	require.NoError(t, err)

	_, err = first.Comparator(descs)
	require.NoError(t, err)

	assert.Equal(t, 1, first.CacheSize())
	assert.Zero(t, second.CacheSize())

	stats := first.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, shaping.DefaultCacheSize, stats.MaxEntries)
}

func TestProvider_CacheBounded(t *testing.T) {
	t.Parallel()

	p := shaping.NewProvider(personKeys(), shaping.WithCacheSize(2))

	for _, prop := range []string{"name", "age", "joined"} {
		_, err := p.Comparator([]shaping.SortDescription{{Property: prop}})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, p.CacheSize())
	assert.Equal(t, int64(1), p.CacheStats().Evictions)

	// The evicted comparator is rebuilt on demand.
	byName, err := p.Comparator([]shaping.SortDescription{{Property: "name"}})
	require.NoError(t, err)
	assert.Negative(t, byName(person{Name: "a"}, person{Name: "b"}))
}

func TestProvider_Errors(t *testing.T) {
	t.Parallel()

	p := shaping.NewProvider(personKeys())

	_, err := p.Comparator(nil)
	require.ErrorIs(t, err, shaping.ErrNoDescriptions)

	_, err = p.Comparator([]shaping.SortDescription{{Property: "height"}})
	require.ErrorIs(t, err, shaping.ErrUnknownProperty)

	_, err = p.Comparator([]shaping.SortDescription{{Property: "name", Direction: shaping.Direction(7)}})
	require.ErrorIs(t, err, shaping.ErrInvalidDirection)
	assert.Zero(t, p.CacheSize())
}

func TestSortDescription_YAML(t *testing.T) {
	t.Parallel()

	var descs []shaping.SortDescription

	input := "- property: age\n  direction: desc\n- property: name\n"
	require.NoError(t, yaml.Unmarshal([]byte(input), &descs))

	assert.Equal(t, []shaping.SortDescription{
		{Property: "age", Direction: shaping.Descending},
		{Property: "name", Direction: shaping.Ascending},
	}, descs)

	err := yaml.Unmarshal([]byte("- property: age\n  direction: sideways\n"), &descs)
	require.ErrorIs(t, err, shaping.ErrInvalidDirection)
}

func TestParseDirection(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]shaping.Direction{
		"":           shaping.Ascending,
		"ASC":        shaping.Ascending,
		"ascending":  shaping.Ascending,
		" desc ":     shaping.Descending,
		"Descending": shaping.Descending,
	} {
		got, err := shaping.ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
