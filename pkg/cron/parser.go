package cron

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrInvalidExpression = errors.New("invalid cron expression")

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule is a parsed five-field cron expression or descriptor such as
// "@daily" or "@every 6h", evaluated in a fixed location.
type Schedule struct {
	expr string
	spec cron.Schedule
	loc  *time.Location
}

// Parse parses expr in timezone. An empty timezone means UTC.
func Parse(expr, timezone string) (*Schedule, error) {
	if expr == "" {
		return nil, ErrInvalidExpression
	}

	spec, err := parser.Parse(expr)
	if err != nil {
		return nil, errors.Join(ErrInvalidExpression, err)
	}

	loc := time.UTC
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, errors.Join(ErrInvalidExpression, fmt.Errorf("unknown timezone %q: %w", timezone, err))
		}
		loc = l
	}

	return &Schedule{expr: expr, spec: spec, loc: loc}, nil
}

func (s *Schedule) String() string {
	return s.expr
}

// Next returns the first activation strictly after from.
func (s *Schedule) Next(from time.Time) time.Time {
	if s == nil || s.spec == nil {
		return time.Time{}
	}

	return s.spec.Next(from.In(s.loc))
}
