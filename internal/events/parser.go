package events

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/livinlefevreloca/sqlcron/internal/cron"
)

// Validator checks a statement without executing it. db.Conn satisfies it.
type Validator interface {
	Validate(ctx context.Context, stmt string) error
}

type parseState int

const (
	stateIdle     parseState = iota // between events
	stateLabel                      // label seen, waiting for ':'
	stateSchedule                   // collecting schedule text
	stateBody                       // collecting indented statements
)

func (s parseState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateLabel:
		return "label"
	case stateSchedule:
		return "schedule"
	case stateBody:
		return "body"
	default:
		return "unknown"
	}
}

// parser accumulates one event at a time from the events file
type parser struct {
	ctx       context.Context
	validator Validator
	logger    *slog.Logger

	state     parseState
	startLine int
	label     []string
	schedule  []string
	body      []string

	events []*Event
}

// Parse reads event definitions from r and validates every statement with v.
// Either every event in the input is returned, in file order, or an error.
func Parse(ctx context.Context, r io.Reader, v Validator, logger *slog.Logger) ([]*Event, error) {
	p := &parser{ctx: ctx, validator: v, logger: logger}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := p.feed(scanner.Text(), lineNo); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	if err := p.finish(); err != nil {
		return nil, err
	}
	return p.events, nil
}

func (p *parser) feed(raw string, lineNo int) error {
	// Comment-only lines never affect parser state
	if strings.HasPrefix(strings.TrimSpace(raw), "#") {
		return nil
	}
	line := stripComment(raw)
	blank := strings.TrimSpace(line) == ""

	switch p.state {
	case stateIdle:
		if blank {
			return nil
		}
		p.startLine = lineNo
		label, rest, found := strings.Cut(line, ":")
		p.label = append(p.label, strings.TrimSpace(label))
		if found {
			p.schedule = append(p.schedule, rest)
			p.state = stateSchedule
		} else {
			p.state = stateLabel
		}

	case stateLabel:
		if blank {
			return nil
		}
		label, rest, found := strings.Cut(line, ":")
		p.label = append(p.label, strings.TrimSpace(label))
		if found {
			p.schedule = append(p.schedule, rest)
			p.state = stateSchedule
		}

	case stateSchedule:
		if isIndented(line) && !blank {
			p.body = append(p.body, strings.TrimSpace(line))
			p.state = stateBody
			return nil
		}
		if !blank {
			p.schedule = append(p.schedule, line)
		}

	case stateBody:
		if isIndented(line) {
			p.body = append(p.body, strings.TrimSpace(line))
			return nil
		}
		if err := p.finalize(); err != nil {
			return err
		}
		if !blank {
			return p.feed(line, lineNo)
		}
	}
	return nil
}

// finish is called at end of input
func (p *parser) finish() error {
	switch p.state {
	case stateIdle:
		return nil
	case stateBody:
		return p.finalize()
	default:
		return fmt.Errorf("line %d: %w: event %q ends before its %s is complete",
			p.startLine, ErrEventSyntax, p.labelText(), p.state)
	}
}

func (p *parser) finalize() error {
	label := p.labelText()
	line := p.startLine

	scheduleText := strings.Join(strings.Fields(strings.Join(p.schedule, " ")), " ")
	schedule, err := cron.Parse(scheduleText)
	if err != nil {
		return fmt.Errorf("line %d: event %q: %w", line, label, err)
	}

	statements := splitStatements(strings.Join(p.body, "\n"))
	if len(statements) == 0 {
		return fmt.Errorf("line %d: %w: event %q has no statements", line, ErrEventSyntax, label)
	}

	for _, stmt := range statements {
		if err := p.validator.Validate(p.ctx, stmt); err != nil {
			return fmt.Errorf("line %d: %w", line, &ValidationError{Label: label, Statement: stmt, Err: err})
		}
	}

	if schedule.Inverted() {
		p.logger.Warn("schedule contains an inverted range and will never fire",
			"event", label, "schedule", schedule.String())
	}

	p.events = append(p.events, New(label, schedule, statements))
	p.reset()
	return nil
}

func (p *parser) reset() {
	p.state = stateIdle
	p.startLine = 0
	p.label = nil
	p.schedule = nil
	p.body = nil
}

func (p *parser) labelText() string {
	return strings.Join(strings.Fields(strings.Join(p.label, " ")), " ")
}

// splitStatements breaks a body on ';' and normalizes whitespace
func splitStatements(body string) []string {
	var out []string
	for _, part := range strings.Split(body, ";") {
		stmt := strings.TrimSpace(strings.ReplaceAll(part, "\t", " "))
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

func isIndented(line string) bool {
	return strings.HasPrefix(line, "\t") || strings.HasPrefix(line, "  ")
}
