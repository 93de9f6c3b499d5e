package model

import "time"

// Activity is one logged sales action against a firm. Rows are written
// once and mutated only to flip the completed flag; the natural key for
// deduplication is (cui, comment, scheduled day).
type Activity struct {
	ID            int64      `json:"id" db:"id"`
	CUI           string     `json:"cui" db:"cui"`
	TypeID        *int64     `json:"activity_type_id,omitempty" db:"activity_type_id"`
	TypeName      string     `json:"type,omitempty" db:"type_name"`
	Comment       string     `json:"comment" db:"comment"`
	Score         *int       `json:"score,omitempty" db:"score"`
	ScheduledDate *Date      `json:"scheduled_date,omitempty" db:"scheduled_date"`
	Completed     bool       `json:"completed" db:"completed"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// ActivityType is a named category for activities ("contact", "oferta").
// Created on first use.
type ActivityType struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Suggestion is one ranked outreach candidate. The whole table is
// derived and replaced on every rebuild; it is never a source of truth.
type Suggestion struct {
	Rank     int    `json:"rank" db:"rank"`
	CUI      string `json:"cui" db:"cui"`
	Name     string `json:"denumire" db:"denumire"`
	Licenses *int   `json:"licente,omitempty" db:"licente"`
	Revenue  *int64 `json:"cifra_afaceri,omitempty" db:"cifra_afaceri"`
	Used     bool   `json:"used" db:"used"`
}

// AgendaItem is an activity annotated with the firm display name for
// the agenda view.
type AgendaItem struct {
	Activity
	FirmName string `json:"denumire,omitempty"`
}

// Agenda partitions the open follow-ups around a target day. The three
// buckets are disjoint: due (scheduled = day), overdue (< day) and
// upcoming (day < scheduled <= day+7).
type Agenda struct {
	Day         Date         `json:"data"`
	Due         []AgendaItem `json:"azi"`
	Overdue     []AgendaItem `json:"restante"`
	Upcoming    []AgendaItem `json:"urmatoarele"`
	Suggestions []Suggestion `json:"sugestii"`
}
