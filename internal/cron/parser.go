package cron

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	fieldCount   = 5
	startupToken = "@startup"
)

// bound is the inclusive range of values a field accepts
type bound struct {
	name     string
	min, max int
}

var bounds = [fieldCount]bound{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

// parse parses a cron expression into a Schedule
func parse(expr string) (Schedule, error) {
	text := strings.TrimSpace(expr)

	// Fields are separated by single spaces; anything past the fifth is the
	// optional startup marker
	parts := strings.SplitN(text, " ", fieldCount+1)
	if text == "" || len(parts) < fieldCount {
		got := len(parts)
		if text == "" {
			got = 0
		}
		return Schedule{}, fmt.Errorf("%w: %q: expected %d fields, got %d", ErrSyntax, expr, fieldCount, got)
	}

	var fields [fieldCount]Field
	for i := 0; i < fieldCount; i++ {
		f, err := parseField(parts[i], bounds[i])
		if err != nil {
			return Schedule{}, err
		}
		fields[i] = f
	}

	startup := false
	if len(parts) > fieldCount {
		switch trailing := strings.TrimSpace(parts[fieldCount]); trailing {
		case startupToken:
			startup = true
		case "":
		default:
			return Schedule{}, fmt.Errorf("%w: %q: unexpected trailing token %q", ErrSyntax, expr, trailing)
		}
	}

	return Schedule{
		minute:  fields[0],
		hour:    fields[1],
		day:     fields[2],
		month:   fields[3],
		weekday: fields[4],
		Startup: startup,
	}, nil
}

// parseField parses a single cron field and checks it against its bound
func parseField(token string, b bound) (Field, error) {
	f, err := parseToken(token, b)
	if err != nil {
		return Field{}, err
	}

	err = f.each(func(v int) error {
		if v < b.min || v > b.max {
			return fmt.Errorf("%w: %s value %d (field %s) exceeds [%d, %d]", ErrOutOfRange, b.name, v, f, b.min, b.max)
		}
		return nil
	})
	return f, err
}

func parseToken(token string, b bound) (Field, error) {
	switch {
	case token == "*":
		return Every(), nil

	case strings.Contains(token, ","):
		parts := strings.Split(token, ",")
		values := make([]int, 0, len(parts))
		for _, part := range parts {
			v, err := parseValue(part, b)
			if err != nil {
				return Field{}, err
			}
			values = append(values, v)
		}
		return Set(values...), nil

	case strings.Contains(token, "-"):
		parts := strings.Split(token, "-")
		if len(parts) != 2 {
			return Field{}, fmt.Errorf("%w: %s field %q must be exactly two values separated by '-'", ErrMalformedRange, b.name, token)
		}
		lo, err := parseValue(parts[0], b)
		if err != nil {
			return Field{}, err
		}
		hi, err := parseValue(parts[1], b)
		if err != nil {
			return Field{}, err
		}
		return Range(lo, hi), nil

	default:
		v, err := parseValue(token, b)
		if err != nil {
			return Field{}, err
		}
		return Single(v), nil
	}
}

// parseValue parses one unsigned integer from a field token
func parseValue(s string, b bound) (int, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s field: %q is not a number", ErrInvalidValue, b.name, s)
	}
	return int(n), nil
}
