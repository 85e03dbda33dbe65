// Package icron answers questions about cron schedules that robfig/cron
// does not: most importantly when a schedule last fired.
package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Parser accepts standard five-field expressions, an optional leading
// seconds field and descriptors such as @every 5m or @hourly.
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
	cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// maxLookback bounds the search for a previous trigger.
const maxLookback = 366 * 24 * time.Hour

type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

func Parse(expr string) (cron.Schedule, error) {
	schedule, err := Parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := Parse(cronExpr)
	if err != nil {
		return nil, err
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       schedule.Next(refTime),
		Last:       LastTrigger(schedule, refTime),
	}
	if !info.Last.IsZero() {
		info.TimeSinceLast = refTime.Sub(info.Last)
	}
	info.TimeUntilNext = info.Next.Sub(refTime)

	return info, nil
}

// LastTrigger returns the latest activation at or before ref, or the zero
// time when none happened within a year.
func LastTrigger(schedule cron.Schedule, ref time.Time) time.Time {
	for window := time.Minute; window <= maxLookback; window *= 2 {
		t := schedule.Next(ref.Add(-window))
		if t.IsZero() || t.After(ref) {
			continue
		}
		for {
			n := schedule.Next(t)
			if n.IsZero() || n.After(ref) {
				return t
			}
			t = n
		}
	}
	return time.Time{}
}
