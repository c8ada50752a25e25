package param

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse reads the text form used in experiment files:
//
//	int(10, 100)
//	float(0.1, 0.9)
//	choice(relu, custom_activation_1)
//	ref(custom_activation_1)
//
// Anything else is a fixed literal: an integer, then a float, then a string.
func Parse(text string) (Spec, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Spec{}, fmt.Errorf("%w: empty parameter expression", ErrInvalidRange)
	}
	fn, args, ok := splitCall(text)
	if !ok {
		return Fixed(ParseValue(text)), nil
	}
	switch fn {
	case "int":
		if len(args) != 2 {
			return Spec{}, fmt.Errorf("%w: int() takes 2 bounds, got %d", ErrInvalidRange, len(args))
		}
		lo, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: int lower bound %q", ErrInvalidRange, args[0])
		}
		hi, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: int upper bound %q", ErrInvalidRange, args[1])
		}
		return IntRange(lo, hi)
	case "float":
		if len(args) != 2 {
			return Spec{}, fmt.Errorf("%w: float() takes 2 bounds, got %d", ErrInvalidRange, len(args))
		}
		lo, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: float lower bound %q", ErrInvalidRange, args[0])
		}
		hi, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: float upper bound %q", ErrInvalidRange, args[1])
		}
		return FloatRange(lo, hi)
	case "choice":
		values := make([]Value, 0, len(args))
		for _, arg := range args {
			if arg == "" {
				continue
			}
			values = append(values, ParseValue(arg))
		}
		return Categorical(values...)
	case "ref":
		if len(args) != 1 {
			return Spec{}, fmt.Errorf("%w: ref() takes 1 name, got %d", ErrInvalidRange, len(args))
		}
		return Ref(args[0])
	default:
		return Fixed(ParseValue(text)), nil
	}
}

// ParseValue types a literal: int, float, ref(name), else string.
func ParseValue(text string) Value {
	text = strings.TrimSpace(text)
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return IntValue(n)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return FloatValue(f)
	}
	if fn, args, ok := splitCall(text); ok && fn == "ref" && len(args) == 1 {
		return RefValue(args[0])
	}
	return StringValue(strings.Trim(text, `"'`))
}

func splitCall(text string) (string, []string, bool) {
	open := strings.IndexByte(text, '(')
	if open <= 0 || !strings.HasSuffix(text, ")") {
		return "", nil, false
	}
	fn := strings.ToLower(strings.TrimSpace(text[:open]))
	body := text[open+1 : len(text)-1]
	if strings.TrimSpace(body) == "" {
		return fn, nil, true
	}
	parts := strings.Split(body, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return fn, parts, true
}
