// Package shaping builds comparators from declarative sort descriptions.
//
// A Provider resolves each description's property through a registered key
// function and compares strings with a locale-aware collator. Comparators are
// cached per provider in a bounded LRU; providers share nothing.
package shaping

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/Sumatoshi-tech/collview/pkg/alg/lru"
)

// DefaultCacheSize bounds the comparator cache when WithCacheSize is not set.
const DefaultCacheSize = 64

// Sentinel errors.
var (
	ErrUnknownProperty  = errors.New("shaping: unknown sort property")
	ErrInvalidDirection = errors.New("shaping: invalid sort direction")
	ErrNoDescriptions   = errors.New("shaping: no sort descriptions")
)

// Direction is the sort order for one property.
type Direction int

// Directions.
const (
	Ascending Direction = iota
	Descending
)

// String returns "asc" or "desc".
func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}

	return "asc"
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}

	*d = parsed

	return nil
}

// ParseDirection parses "asc", "ascending", "desc" or "descending".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return Ascending, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

// SortDescription orders items by one property.
type SortDescription struct {
	Property  string    `json:"property"  yaml:"property"`
	Direction Direction `json:"direction" yaml:"direction"`
}

func (d SortDescription) String() string {
	return d.Property + " " + d.Direction.String()
}

// KeyFunc extracts the value of a sort property. Supported key types are
// string, the integer and float kinds, bool, time.Time and time.Duration;
// other values are compared by their fmt representation.
type KeyFunc[T any] func(item T) any

// Provider builds and caches comparators for one item type.
type Provider[T any] struct {
	keys      map[string]KeyFunc[T]
	tag       language.Tag
	collators sync.Pool
	logger    *slog.Logger

	// mu serializes builds so concurrent misses on one key build once.
	mu    sync.Mutex
	cache *lru.Cache[string, func(a, b T) int]
}

// Option configures a Provider.
type Option func(*options)

type options struct {
	tag        language.Tag
	collateOpt []collate.Option
	logger     *slog.Logger
	cacheSize  int
}

// WithLocale sets the collation locale. The default is language.Und.
func WithLocale(tag language.Tag) Option {
	return func(o *options) {
		o.tag = tag
	}
}

// WithCollateOptions adds collator options such as collate.IgnoreCase or
// collate.Numeric.
func WithCollateOptions(opts ...collate.Option) Option {
	return func(o *options) {
		o.collateOpt = append(o.collateOpt, opts...)
	}
}

// WithLogger sets the logger used for cache misses.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCacheSize bounds the number of cached comparators. Non-positive values
// select DefaultCacheSize.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// NewProvider creates a provider resolving properties through keys.
func NewProvider[T any](keys map[string]KeyFunc[T], opts ...Option) *Provider[T] {
	o := options{tag: language.Und, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}

	if o.cacheSize <= 0 {
		o.cacheSize = DefaultCacheSize
	}

	// Capacity is positive here, so New cannot fail.
	cache, _ := lru.New[string, func(a, b T) int](o.cacheSize)

	p := &Provider[T]{
		keys:   keys,
		tag:    o.tag,
		logger: o.logger,
		cache:  cache,
	}

	// Collators keep per-call scratch state, so each comparison borrows one.
	p.collators.New = func() any {
		return collate.New(o.tag, o.collateOpt...)
	}

	return p
}

// Locale returns the collation locale.
func (p *Provider[T]) Locale() language.Tag {
	return p.tag
}

// Comparator returns a comparator applying descs in order; later
// descriptions break ties of earlier ones.
func (p *Provider[T]) Comparator(descs []SortDescription) (func(a, b T) int, error) {
	if len(descs) == 0 {
		return nil, ErrNoDescriptions
	}

	key := cacheKey(descs)

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.cache.Get(key); ok {
		return c, nil
	}

	type level struct {
		key  KeyFunc[T]
		sign int
	}

	levels := make([]level, 0, len(descs))

	for _, d := range descs {
		fn, ok := p.keys[d.Property]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, d.Property)
		}

		if d.Direction != Ascending && d.Direction != Descending {
			return nil, fmt.Errorf("%w: %d", ErrInvalidDirection, int(d.Direction))
		}

		sign := 1
		if d.Direction == Descending {
			sign = -1
		}

		levels = append(levels, level{key: fn, sign: sign})
	}

	compare := func(a, b T) int {
		for _, l := range levels {
			if c := p.compareKeys(l.key(a), l.key(b)); c != 0 {
				return c * l.sign
			}
		}

		return 0
	}

	evicted := p.cache.Put(key, compare)
	p.logger.Debug("shaping: built comparator",
		"descriptions", key, "locale", p.tag.String(), "evicted", evicted)

	return compare, nil
}

// CacheSize returns the number of cached comparators.
func (p *Provider[T]) CacheSize() int {
	return p.cache.Len()
}

// CacheStats returns comparator cache counters.
func (p *Provider[T]) CacheStats() lru.Stats {
	return p.cache.Stats()
}

func (p *Provider[T]) compareKeys(a, b any) int {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return p.compareStrings(x, y)
		}
	case int:
		if y, ok := b.(int); ok {
			return cmp.Compare(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	case uint64:
		if y, ok := b.(uint64); ok {
			return cmp.Compare(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			return compareBools(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case time.Duration:
		if y, ok := b.(time.Duration); ok {
			return cmp.Compare(x, y)
		}
	case nil:
		if b == nil {
			return 0
		}

		return -1
	}

	if b == nil {
		return 1
	}

	return p.compareStrings(fmt.Sprint(a), fmt.Sprint(b))
}

func (p *Provider[T]) compareStrings(a, b string) int {
	c, _ := p.collators.Get().(*collate.Collator)
	defer p.collators.Put(c)

	return c.CompareString(a, b)
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func cacheKey(descs []SortDescription) string {
	parts := make([]string, len(descs))
	for i, d := range descs {
		parts[i] = d.String()
	}

	return strings.Join(parts, ",")
}
