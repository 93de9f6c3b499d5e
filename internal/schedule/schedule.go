// Package schedule maps salesperson quality scores to follow-up dates.
// A score of 1 means "call tomorrow"; the offsets stretch out to years
// for lukewarm leads, and 20 means the firm is never revisited.
package schedule

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/OancaAdrian/CRM/internal/model"
)

// offsetDays maps a quality score to the revisit offset in days.
// Score 20 is deliberately absent: it means "do not reschedule".
var offsetDays = map[int]int{
	1:  1,
	2:  3,
	3:  5,
	4:  10,
	5:  30,
	6:  90,
	7:  150,
	8:  270,
	9:  365,
	10: 547,
	11: 730,
	12: 912,
	13: 1095,
	14: 1277,
	15: 1460,
	16: 1825,
	17: 2190,
	18: 2555,
	19: 2920,
}

// FollowUp returns today + the offset for score. ok is false when the
// score carries no reschedule: 20, zero, or anything outside the table.
// Unknown scores are not an error; leniency here is intentional, a bad
// score in a CSV import should not block the row.
func FollowUp(today model.Date, score int) (model.Date, bool) {
	days, found := offsetDays[score]
	if !found {
		return model.Date{}, false
	}
	return today.AddDays(days), true
}

// Resolve computes the scheduled date for a new activity. An explicit
// date string always wins over the score table; an unparseable explicit
// date is a validation error naming the expected format.
func Resolve(today model.Date, score *int, explicit string) (*model.Date, error) {
	if strings.TrimSpace(explicit) != "" {
		d, err := model.ParseDate(explicit)
		if err != nil {
			return nil, eris.Wrap(err, "schedule: scheduled_date")
		}
		return &d, nil
	}
	if score == nil {
		return nil, nil
	}
	d, ok := FollowUp(today, *score)
	if !ok {
		return nil, nil
	}
	return &d, nil
}
