package recurrence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agenda-app/agenda/pkg/event"
	"github.com/teambition/rrule-go"
)

var ErrWindowInvalid = errors.New("occurrence window start must be before its end")

// maxSkipped bounds how many starts before the window are walked. Expansion of
// a fine-grained rule that began long before the window stops there and is
// reported as truncated.
const maxSkipped = 100_000

var keywords = map[string]rrule.Frequency{
	"daily":   rrule.DAILY,
	"weekly":  rrule.WEEKLY,
	"monthly": rrule.MONTHLY,
	"yearly":  rrule.YEARLY,
}

// Validate checks the recurrence settings of an event. A recurring event needs a
// pattern. A pattern is either one of the keywords daily, weekly, monthly and
// yearly or an RFC 5545 RRULE value such as "FREQ=WEEKLY;BYDAY=MO,WE".
func Validate(isRecurring bool, pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		if isRecurring {
			return fmt.Errorf("%w: recurring event needs a recurrence pattern", event.ErrInvalidRecurrence)
		}
		return nil
	}
	_, err := options(pattern)
	return err
}

// RuleValue returns the RRULE property value for pattern.
func RuleValue(pattern string) (string, error) {
	pattern = strings.TrimSpace(pattern)
	if freq, ok := keywords[strings.ToLower(pattern)]; ok {
		return "FREQ=" + freq.String(), nil
	}
	if _, err := options(pattern); err != nil {
		return "", err
	}
	return stripPrefix(pattern), nil
}

func options(pattern string) (*rrule.ROption, error) {
	if freq, ok := keywords[strings.ToLower(pattern)]; ok {
		return &rrule.ROption{Freq: freq}, nil
	}
	opt, err := rrule.StrToROption(stripPrefix(pattern))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", event.ErrInvalidRecurrence, pattern, err)
	}
	return opt, nil
}

func stripPrefix(pattern string) string {
	if len(pattern) >= 6 && strings.EqualFold(pattern[:6], "RRULE:") {
		return pattern[6:]
	}
	return pattern
}

// Occurrences expands f into the concrete time ranges that overlap window, at
// most limit of them. The second result reports whether the expansion was cut
// short. Starts are generated lazily so the work done is bounded by limit.
// A non-recurring event yields itself when it overlaps the window.
func Occurrences(f event.Fields, window event.TimeRange, limit int) ([]event.TimeRange, bool, error) {
	if !window.Valid() {
		return nil, false, ErrWindowInvalid
	}
	if !f.IsRecurring || strings.TrimSpace(f.RecurrencePattern) == "" {
		if f.Range().Overlaps(window) {
			return []event.TimeRange{f.Range()}, false, nil
		}
		return []event.TimeRange{}, false, nil
	}

	opt, err := options(strings.TrimSpace(f.RecurrencePattern))
	if err != nil {
		return nil, false, err
	}
	opt.Dtstart = f.StartTime
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", event.ErrInvalidRecurrence, err)
	}

	duration := f.Range().Duration()
	// an occurrence starting after window.Start-duration still reaches into the window
	from := window.Start.Add(-duration)

	result := make([]event.TimeRange, 0)
	skipped := 0
	next := rule.Iterator()
	for {
		s, ok := next()
		if !ok || !s.Before(window.End) {
			return result, false, nil
		}
		if !s.After(from) {
			skipped++
			if skipped > maxSkipped {
				return result, true, nil
			}
			continue
		}
		if limit > 0 && len(result) == limit {
			return result, true, nil
		}
		result = append(result, event.TimeRange{Start: s, End: s.Add(duration)})
	}
}
