package minify

import "strconv"

type valueKind uint8

const (
	kindString valueKind = iota
	kindBool
	kindInt
)

// Value is a configuration value: a string, a boolean, or an integer.
// The engine only ever sees its text form.
type Value struct {
	kind valueKind
	str  string
	flag bool
	num  int64
}

// StringValue returns a string configuration value.
func StringValue(s string) Value { return Value{kind: kindString, str: s} }

// BoolValue returns a boolean configuration value.
func BoolValue(b bool) Value { return Value{kind: kindBool, flag: b} }

// IntValue returns an integer configuration value.
func IntValue(i int64) Value { return Value{kind: kindInt, num: i} }

// String returns the text that crosses the boundary: the string itself,
// "true"/"false", or a base-10 integer.
func (v Value) String() string {
	switch v.kind {
	case kindBool:
		return strconv.FormatBool(v.flag)
	case kindInt:
		return strconv.FormatInt(v.num, 10)
	default:
		return v.str
	}
}

// ParseValue interprets command-line text: a base-10 integer, else
// "true" or "false", else a string.
func ParseValue(text string) Value {
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return IntValue(i)
	}
	switch text {
	case "true":
		return BoolValue(true)
	case "false":
		return BoolValue(false)
	}
	return StringValue(text)
}

// Options maps engine configuration keys to values. Recognized keys are
// defined by the engine; see lib/ for the ones it accepts.
type Options map[string]Value
