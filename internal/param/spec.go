package param

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"golang.org/x/exp/constraints"
)

var ErrInvalidRange = errors.New("invalid parameter range")

type SpecKind string

const (
	SpecFixed       SpecKind = "fixed"
	SpecIntRange    SpecKind = "int_range"
	SpecFloatRange  SpecKind = "float_range"
	SpecCategorical SpecKind = "categorical"
	SpecRef         SpecKind = "ref"
)

// Spec is an immutable value or bounded range usable as a search gene.
// The zero Spec is invalid; build one with the constructors below.
type Spec struct {
	kind     SpecKind
	fixed    Value
	minInt   int64
	maxInt   int64
	minFloat float64
	maxFloat float64
	choices  []Value
}

func Fixed(v Value) Spec { return Spec{kind: SpecFixed, fixed: v} }

func FixedInt(v int64) Spec { return Fixed(IntValue(v)) }

func FixedFloat(v float64) Spec { return Fixed(FloatValue(v)) }

func FixedString(v string) Spec { return Fixed(StringValue(v)) }

// IntRange bounds must fit in int64.
func IntRange[T constraints.Integer](min, max T) (Spec, error) {
	if min > max {
		return Spec{}, fmt.Errorf("%w: int min=%d > max=%d", ErrInvalidRange, min, max)
	}
	lo, hi := int64(min), int64(max)
	if (min > 0 && lo < 0) || (max > 0 && hi < 0) {
		return Spec{}, fmt.Errorf("%w: int bounds %d..%d overflow int64", ErrInvalidRange, min, max)
	}
	return Spec{kind: SpecIntRange, minInt: lo, maxInt: hi}, nil
}

func FloatRange[T constraints.Float](min, max T) (Spec, error) {
	lo, hi := float64(min), float64(max)
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return Spec{}, fmt.Errorf("%w: float bounds must be finite, got %g..%g", ErrInvalidRange, lo, hi)
	}
	if min > max {
		return Spec{}, fmt.Errorf("%w: float min=%g > max=%g", ErrInvalidRange, float64(min), float64(max))
	}
	return Spec{kind: SpecFloatRange, minFloat: lo, maxFloat: hi}, nil
}

func Categorical(choices ...Value) (Spec, error) {
	if len(choices) == 0 {
		return Spec{}, fmt.Errorf("%w: categorical set is empty", ErrInvalidRange)
	}
	seen := make(map[Value]struct{}, len(choices))
	for _, c := range choices {
		if _, dup := seen[c]; dup {
			return Spec{}, fmt.Errorf("%w: duplicate categorical member %s", ErrInvalidRange, c)
		}
		seen[c] = struct{}{}
	}
	return Spec{kind: SpecCategorical, choices: append([]Value(nil), choices...)}, nil
}

// Strings builds a categorical spec over plain string members.
func Strings(choices ...string) (Spec, error) {
	values := make([]Value, len(choices))
	for i, c := range choices {
		values[i] = StringValue(c)
	}
	return Categorical(values...)
}

func Ref(name string) (Spec, error) {
	if strings.TrimSpace(name) == "" {
		return Spec{}, fmt.Errorf("%w: component reference name is required", ErrInvalidRange)
	}
	return Spec{kind: SpecRef, fixed: RefValue(name)}, nil
}

// Must panics on constructor errors. Intended for static tables.
func Must(s Spec, err error) Spec {
	if err != nil {
		panic(err)
	}
	return s
}

func (s Spec) Kind() SpecKind { return s.kind }

func (s Spec) IsZero() bool { return s.kind == "" }

func (s Spec) IntBounds() (int64, int64) { return s.minInt, s.maxInt }

func (s Spec) FloatBounds() (float64, float64) { return s.minFloat, s.maxFloat }

func (s Spec) Choices() []Value { return append([]Value(nil), s.choices...) }

// FixedValue returns the value of Fixed and Ref specs.
func (s Spec) FixedValue() (Value, bool) {
	if s.kind == SpecFixed || s.kind == SpecRef {
		return s.fixed, true
	}
	return Value{}, false
}

// Sample draws a value. The spec itself is never modified.
func (s Spec) Sample(rng *rand.Rand) Value {
	switch s.kind {
	case SpecFixed, SpecRef:
		return s.fixed
	case SpecIntRange:
		if s.minInt == s.maxInt {
			return IntValue(s.minInt)
		}
		return IntValue(s.minInt + int64(uniformUint64(rng, uint64(s.maxInt-s.minInt))))
	case SpecFloatRange:
		if s.minFloat == s.maxFloat {
			return FloatValue(s.minFloat)
		}
		r := rng.Float64()
		f := s.minFloat*(1-r) + s.maxFloat*r
		return FloatValue(math.Min(s.maxFloat, math.Max(s.minFloat, f)))
	case SpecCategorical:
		return s.choices[rng.Intn(len(s.choices))]
	default:
		return Value{}
	}
}

// uniformUint64 draws uniformly from [0, span]. span is the unsigned
// distance between the bounds, so it covers every int64 range.
func uniformUint64(rng *rand.Rand, span uint64) uint64 {
	if span < math.MaxInt64 {
		return uint64(rng.Int63n(int64(span) + 1))
	}
	if span == math.MaxUint64 {
		return rng.Uint64()
	}
	n := span + 1
	limit := math.MaxUint64 - math.MaxUint64%n
	for {
		if v := rng.Uint64(); v < limit {
			return v % n
		}
	}
}

func (s Spec) Contains(v Value) bool {
	switch s.kind {
	case SpecFixed, SpecRef:
		return s.fixed == v
	case SpecIntRange:
		n, ok := v.AsInt()
		return ok && n >= s.minInt && n <= s.maxInt
	case SpecFloatRange:
		f, ok := v.AsFloat()
		return ok && f >= s.minFloat && f <= s.maxFloat
	case SpecCategorical:
		for _, c := range s.choices {
			if c == v {
				return true
			}
		}
	}
	return false
}

// Names returns every name-typed value the spec can yield, in declaration order.
func (s Spec) Names() []string {
	var out []string
	switch s.kind {
	case SpecFixed, SpecRef:
		if name, ok := s.fixed.AsName(); ok {
			out = append(out, name)
		}
	case SpecCategorical:
		for _, c := range s.choices {
			if name, ok := c.AsName(); ok {
				out = append(out, name)
			}
		}
	}
	return out
}

func (s Spec) String() string {
	switch s.kind {
	case SpecFixed:
		return s.fixed.String()
	case SpecRef:
		return s.fixed.String()
	case SpecIntRange:
		return fmt.Sprintf("int(%d, %d)", s.minInt, s.maxInt)
	case SpecFloatRange:
		return fmt.Sprintf("float(%g, %g)", s.minFloat, s.maxFloat)
	case SpecCategorical:
		parts := make([]string, len(s.choices))
		for i, c := range s.choices {
			parts[i] = c.String()
		}
		return "choice(" + strings.Join(parts, ", ") + ")"
	default:
		return "<unset>"
	}
}

type specRecord struct {
	Kind    SpecKind `json:"kind"`
	Value   *Value   `json:"value,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	MinInt  *int64   `json:"min_int,omitempty"`
	MaxInt  *int64   `json:"max_int,omitempty"`
	Choices []Value  `json:"choices,omitempty"`
}

func (s Spec) MarshalJSON() ([]byte, error) {
	rec := specRecord{Kind: s.kind}
	switch s.kind {
	case SpecFixed, SpecRef:
		v := s.fixed
		rec.Value = &v
	case SpecIntRange:
		lo, hi := s.minInt, s.maxInt
		rec.MinInt, rec.MaxInt = &lo, &hi
	case SpecFloatRange:
		lo, hi := s.minFloat, s.maxFloat
		rec.Min, rec.Max = &lo, &hi
	case SpecCategorical:
		rec.Choices = s.choices
	default:
		return nil, fmt.Errorf("%w: cannot encode unset spec", ErrInvalidRange)
	}
	return json.Marshal(rec)
}

// UnmarshalJSON re-validates through the constructors.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var rec specRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	var (
		decoded Spec
		err     error
	)
	switch rec.Kind {
	case SpecFixed:
		if rec.Value == nil {
			return fmt.Errorf("%w: fixed spec without value", ErrInvalidRange)
		}
		decoded = Fixed(*rec.Value)
	case SpecRef:
		if rec.Value == nil {
			return fmt.Errorf("%w: ref spec without name", ErrInvalidRange)
		}
		decoded, err = Ref(rec.Value.Str)
	case SpecIntRange:
		if rec.MinInt == nil || rec.MaxInt == nil {
			return fmt.Errorf("%w: int range without bounds", ErrInvalidRange)
		}
		decoded, err = IntRange(*rec.MinInt, *rec.MaxInt)
	case SpecFloatRange:
		if rec.Min == nil || rec.Max == nil {
			return fmt.Errorf("%w: float range without bounds", ErrInvalidRange)
		}
		decoded, err = FloatRange(*rec.Min, *rec.Max)
	case SpecCategorical:
		decoded, err = Categorical(rec.Choices...)
	default:
		return fmt.Errorf("%w: unknown spec kind %q", ErrInvalidRange, rec.Kind)
	}
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}
