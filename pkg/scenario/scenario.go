// Package scenario replays scripted source edits through a view and checks
// the incrementally maintained result against a full recompute.
//
// A scenario is a YAML (or JSON) document validated against an embedded
// JSON schema; see Schema.
package scenario

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/collview/pkg/shaping"
)

//go:embed schema.json
var schemaJSON []byte

// Sentinel errors.
var (
	ErrDecode          = errors.New("scenario: decode failed")
	ErrInvalidScenario = errors.New("scenario: schema validation failed")
	ErrFilterValue     = errors.New("scenario: filter value does not match property type")
	ErrUnknownOp       = errors.New("scenario: unknown step op")
)

// Schema returns the JSON schema scenarios are validated against.
func Schema() []byte {
	return schemaJSON
}

// Record is the item type scenarios operate on.
type Record struct {
	Name  string `json:"name"            yaml:"name"`
	Group string `json:"group,omitempty" yaml:"group,omitempty"`
	Score int    `json:"score,omitempty" yaml:"score,omitempty"`
}

func (r Record) String() string {
	return fmt.Sprintf("%s group=%q score=%d", r.Name, r.Group, r.Score)
}

// Keys returns the sort keys of Record for a shaping.Provider.
func Keys() map[string]shaping.KeyFunc[Record] {
	return map[string]shaping.KeyFunc[Record]{
		"name":  func(r Record) any { return r.Name },
		"group": func(r Record) any { return r.Group },
		"score": func(r Record) any { return r.Score },
	}
}

// Filter keeps records whose Property compares to Value under Op.
type Filter struct {
	Property string `json:"property" yaml:"property"`
	Op       string `json:"op"       yaml:"op"`
	Value    any    `json:"value"    yaml:"value"`
}

// Predicate compiles the filter. A nil filter yields a nil predicate.
func (f *Filter) Predicate() (func(Record) bool, error) {
	if f == nil {
		return nil, nil
	}

	if f.Property == "score" {
		want, err := intValue(f.Value)
		if err != nil {
			return nil, err
		}

		test, err := numericOp(f.Op)
		if err != nil {
			return nil, err
		}

		return func(r Record) bool { return test(r.Score, want) }, nil
	}

	want := fmt.Sprint(f.Value)

	test, err := stringOp(f.Op)
	if err != nil {
		return nil, err
	}

	get := func(r Record) string { return r.Name }
	if f.Property == "group" {
		get = func(r Record) string { return r.Group }
	}

	return func(r Record) bool { return test(get(r), want) }, nil
}

func (f *Filter) String() string {
	if f == nil {
		return "none"
	}

	return fmt.Sprintf("%s %s %v", f.Property, f.Op, f.Value)
}

func intValue(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrFilterValue, x)
		}

		return n, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrFilterValue, v)
	}
}

func numericOp(op string) (func(a, b int) bool, error) {
	switch op {
	case "eq":
		return func(a, b int) bool { return a == b }, nil
	case "ne":
		return func(a, b int) bool { return a != b }, nil
	case "lt":
		return func(a, b int) bool { return a < b }, nil
	case "le":
		return func(a, b int) bool { return a <= b }, nil
	case "gt":
		return func(a, b int) bool { return a > b }, nil
	case "ge":
		return func(a, b int) bool { return a >= b }, nil
	default:
		return nil, fmt.Errorf("%w: %q on score", ErrFilterValue, op)
	}
}

func stringOp(op string) (func(a, b string) bool, error) {
	switch op {
	case "eq":
		return func(a, b string) bool { return a == b }, nil
	case "ne":
		return func(a, b string) bool { return a != b }, nil
	case "lt":
		return func(a, b string) bool { return a < b }, nil
	case "le":
		return func(a, b string) bool { return a <= b }, nil
	case "gt":
		return func(a, b string) bool { return a > b }, nil
	case "ge":
		return func(a, b string) bool { return a >= b }, nil
	case "prefix":
		return strings.HasPrefix, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrFilterValue, op)
	}
}

// Op is a step kind.
type Op string

// Step kinds.
const (
	OpInsert  Op = "insert"
	OpAppend  Op = "append"
	OpRemove  Op = "remove"
	OpSet     Op = "set"
	OpMove    Op = "move"
	OpReset   Op = "reset"
	OpClear   Op = "clear"
	OpFilter  Op = "filter"
	OpSort    Op = "sort"
	OpRefresh Op = "refresh"
	OpWait    Op = "wait"
)

// Step is one scripted action.
type Step struct {
	Op     Op                        `json:"op"               yaml:"op"`
	Index  int                       `json:"index,omitempty"  yaml:"index,omitempty"`
	From   int                       `json:"from,omitempty"   yaml:"from,omitempty"`
	To     int                       `json:"to,omitempty"     yaml:"to,omitempty"`
	Item   Record                    `json:"item,omitempty"   yaml:"item,omitempty"`
	Items  []Record                  `json:"items,omitempty"  yaml:"items,omitempty"`
	Filter *Filter                   `json:"filter,omitempty" yaml:"filter,omitempty"`
	Sort   []shaping.SortDescription `json:"sort,omitempty"   yaml:"sort,omitempty"`
}

// Scenario is a decoded script.
type Scenario struct {
	Name           string                    `json:"name"                      yaml:"name"`
	Description    string                    `json:"description,omitempty"     yaml:"description,omitempty"`
	Locale         string                    `json:"locale,omitempty"          yaml:"locale,omitempty"`
	Items          []Record                  `json:"items,omitempty"           yaml:"items,omitempty"`
	Filter         *Filter                   `json:"filter,omitempty"          yaml:"filter,omitempty"`
	Sort           []shaping.SortDescription `json:"sort,omitempty"            yaml:"sort,omitempty"`
	Parallel       bool                      `json:"parallel,omitempty"        yaml:"parallel,omitempty"`
	CrossContext   *bool                     `json:"cross_context,omitempty"   yaml:"cross_context,omitempty"`
	AsyncThreshold *int                      `json:"async_threshold,omitempty" yaml:"async_threshold,omitempty"`
	Expect         []string                  `json:"expect,omitempty"          yaml:"expect,omitempty"`
	Steps          []Step                    `json:"steps"                     yaml:"steps"`
}

// ValidationError lists schema violations.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidScenario, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidScenario
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return sc, nil
}

// Parse validates data against the schema and decodes it. JSON input is
// accepted since it is valid YAML.
func Parse(data []byte) (*Scenario, error) {
	var doc any

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if err := validate(doc); err != nil {
		return nil, err
	}

	var sc Scenario

	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if _, err := sc.Filter.Predicate(); err != nil {
		return nil, err
	}

	for i := range sc.Steps {
		if _, err := sc.Steps[i].Filter.Predicate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	return &sc, nil
}

func validate(doc any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", re.Field(), re.Description()))
	}

	return &ValidationError{Problems: problems}
}
