package cron

import (
	"slices"
	"strconv"
	"strings"
)

// Kind identifies which form a Field takes
type Kind uint8

const (
	KindEvery  Kind = iota // *
	KindSingle             // N
	KindSet                // N,N,...
	KindRange              // N-N
)

// String returns the name of the field kind
func (k Kind) String() string {
	switch k {
	case KindEvery:
		return "every"
	case KindSingle:
		return "single"
	case KindSet:
		return "set"
	case KindRange:
		return "range"
	default:
		return "unknown"
	}
}

// Field is one positional value of a cron expression.
//
// Single stores one value, Set stores a sorted unique list and Range stores
// the inclusive bounds as [lo, hi]. Fields are immutable once constructed.
type Field struct {
	kind   Kind
	values []int
}

// Every returns a field matching any value
func Every() Field {
	return Field{kind: KindEvery}
}

// Single returns a field matching exactly n
func Single(n int) Field {
	return Field{kind: KindSingle, values: []int{n}}
}

// Set returns a field matching any of ns. Values are sorted and deduplicated.
func Set(ns ...int) Field {
	values := slices.Clone(ns)
	slices.Sort(values)
	return Field{kind: KindSet, values: slices.Compact(values)}
}

// Range returns a field matching lo through hi inclusive.
// An inverted range (lo > hi) is kept as written and never matches.
func Range(lo, hi int) Field {
	return Field{kind: KindRange, values: []int{lo, hi}}
}

// Kind returns the form of the field
func (f Field) Kind() Kind {
	return f.kind
}

// Values returns a copy of the values stored in the field.
// Every returns nil, Range returns [lo, hi].
func (f Field) Values() []int {
	return slices.Clone(f.values)
}

// Matches reports whether v satisfies the field
func (f Field) Matches(v int) bool {
	switch f.kind {
	case KindEvery:
		return true
	case KindSingle:
		return f.values[0] == v
	case KindSet:
		_, found := slices.BinarySearch(f.values, v)
		return found
	case KindRange:
		return f.values[0] <= v && v <= f.values[1]
	default:
		return false
	}
}

// Equal reports whether two fields have the same kind and values
func (f Field) Equal(other Field) bool {
	return f.kind == other.kind && slices.Equal(f.values, other.values)
}

// Inverted reports whether the field is a range whose start exceeds its end
func (f Field) Inverted() bool {
	return f.kind == KindRange && f.values[0] > f.values[1]
}

// String renders the field in cron syntax
func (f Field) String() string {
	switch f.kind {
	case KindEvery:
		return "*"
	case KindSingle:
		return strconv.Itoa(f.values[0])
	case KindSet:
		parts := make([]string, len(f.values))
		for i, v := range f.values {
			parts[i] = strconv.Itoa(v)
		}
		return strings.Join(parts, ",")
	case KindRange:
		return strconv.Itoa(f.values[0]) + "-" + strconv.Itoa(f.values[1])
	default:
		return "?"
	}
}

// each calls fn for every explicit value in the field
func (f Field) each(fn func(int) error) error {
	for _, v := range f.values {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}
