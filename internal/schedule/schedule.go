// Package schedule evaluates five-field cron expressions.
package schedule

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts strictly five fields: minute, hour, day-of-month,
// month, day-of-week. Descriptors like "@every 30s" are rejected.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseError reports an expression that is not valid five-field cron.
type ParseError struct {
	Expr string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid schedule %q: %v", e.Expr, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse validates a cron expression and returns its schedule.
func Parse(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, &ParseError{Expr: expr, Err: err}
	}
	return sched, nil
}

// Evaluator computes fire times in a fixed location. All jobs share
// the process-wide location; there is no per-job timezone.
type Evaluator struct {
	loc *time.Location
}

// NewEvaluator resolves the configured timezone, falling back to the
// TZ environment variable and then the system local zone.
func NewEvaluator(timezone string) (*Evaluator, error) {
	if timezone == "" {
		timezone = os.Getenv("TZ")
	}
	if timezone == "" {
		return &Evaluator{loc: time.Local}, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return &Evaluator{loc: loc}, nil
}

// NewEvaluatorIn returns an evaluator pinned to the given location.
func NewEvaluatorIn(loc *time.Location) *Evaluator {
	return &Evaluator{loc: loc}
}

func (e *Evaluator) Location() *time.Location {
	return e.loc
}

// Next returns the first instant after from at which the schedule
// matches. It never returns from itself, so repeated application
// always advances.
func (e *Evaluator) Next(sched cron.Schedule, from time.Time) time.Time {
	return sched.Next(from.In(e.loc))
}
