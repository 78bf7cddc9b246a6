package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CronParser wraps robfig/cron for parsing cron expressions.
type CronParser struct {
	parser cron.Parser
}

// NewCronParser creates a new cron parser accepting five-field expressions
// and descriptors such as "@every 1m" or "@hourly".
func NewCronParser() *CronParser {
	return &CronParser{
		parser: cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
	}
}

// Parse parses a cron expression and returns a schedule.
func (p *CronParser) Parse(expression string) (cron.Schedule, error) {
	schedule, err := p.parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parsing cron expression: %w", err)
	}
	return schedule, nil
}

// NextRun calculates the next run time for a cron expression.
func (p *CronParser) NextRun(expression string, after time.Time) (time.Time, error) {
	schedule, err := p.Parse(expression)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(after), nil
}
