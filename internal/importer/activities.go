// Package importer loads external data files into the store: per-firm
// activity CSVs and firm registry XLSX exports.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/OancaAdrian/CRM/internal/model"
	"github.com/OancaAdrian/CRM/internal/store"
	"github.com/OancaAdrian/CRM/internal/textutil"
)

// ActivityMapping describes one CSV layout. Zero values fall back to
// the conventional column names.
type ActivityMapping struct {
	Delimiter     rune
	TypeColumn    string
	CommentColumn string
	ScoreColumn   string
	DateColumn    string
	DateFormat    string
}

// Exports in the wild disagree on column naming, so each canonical
// column carries fallback aliases tried after the mapped name.
var activityAliases = map[string][]string{
	"type":    {"activity_type", "tip"},
	"comment": {"descriere", "comentariu"},
	"score":   {"scor", "punctaj"},
	"date":    {"data"},
}

// RowError reports one CSV row that could not be imported.
type RowError struct {
	Row int    `json:"row"`
	Err string `json:"error"`
}

// Report summarizes an activity import.
type Report struct {
	Created int        `json:"created"`
	Errors  []RowError `json:"errors"`
}

func (m ActivityMapping) withDefaults() ActivityMapping {
	if m.Delimiter == 0 {
		m.Delimiter = ','
	}
	if m.TypeColumn == "" {
		m.TypeColumn = "type"
	}
	if m.CommentColumn == "" {
		m.CommentColumn = "comment"
	}
	if m.ScoreColumn == "" {
		m.ScoreColumn = "score"
	}
	if m.DateColumn == "" {
		m.DateColumn = "date"
	}
	if m.DateFormat == "" {
		m.DateFormat = "2006-01-02"
	}
	return m
}

// dateLayouts tried after the mapped format, in the order the source
// files have been seen to use.
var importDateLayouts = []string{"02.01.2006", "02/01/2006", "2006-01-02"}

// ImportActivities reads a per-firm activity CSV and inserts one
// activity per usable row. Broken rows are reported in the result and
// do not stop the import.
func ImportActivities(ctx context.Context, st store.Store, cui string, r io.Reader, m ActivityMapping) (*Report, error) {
	m = m.withDefaults()
	cui = textutil.NormalizeCUI(cui)
	if cui == "" {
		return nil, eris.New("importer: empty cui")
	}

	reader := csv.NewReader(r)
	reader.Comma = m.Delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return &Report{Errors: []RowError{}}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "importer: read header")
	}
	cols := headerIndex(header)

	field := func(record []string, mapped, canonical string) string {
		names := append([]string{mapped}, activityAliases[canonical]...)
		for _, name := range names {
			if i, ok := cols[strings.ToLower(strings.TrimSpace(name))]; ok && i < len(record) {
				if v := strings.TrimSpace(record[i]); v != "" {
					return v
				}
			}
		}
		return ""
	}

	report := &Report{Errors: []RowError{}}
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			report.Errors = append(report.Errors, RowError{Row: row, Err: err.Error()})
			continue
		}

		comment := field(record, m.CommentColumn, "comment")
		if comment == "" {
			report.Errors = append(report.Errors, RowError{Row: row, Err: "missing comment"})
			continue
		}

		a := model.Activity{CUI: cui, Comment: comment}

		if typeName := field(record, m.TypeColumn, "type"); typeName != "" {
			at, err := st.GetOrCreateActivityType(ctx, typeName)
			if err != nil {
				return nil, err
			}
			a.TypeID = &at.ID
		}

		if raw := field(record, m.ScoreColumn, "score"); raw != "" {
			if digits := textutil.DigitsOnly(raw); digits != "" {
				if score, err := strconv.Atoi(digits); err == nil {
					a.Score = &score
				}
			}
		}

		if raw := field(record, m.DateColumn, "date"); raw != "" {
			if t, ok := parseImportDate(raw, m.DateFormat); ok {
				a.CreatedAt = t
			} else {
				report.Errors = append(report.Errors, RowError{Row: row, Err: fmt.Sprintf("unparseable date %q", raw)})
				continue
			}
		}

		if err := st.InsertActivity(ctx, &a); err != nil {
			report.Errors = append(report.Errors, RowError{Row: row, Err: err.Error()})
			continue
		}
		report.Created++
	}

	zap.L().Info("activities imported",
		zap.String("cui", cui),
		zap.Int("created", report.Created),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

func parseImportDate(raw, preferred string) (time.Time, bool) {
	for _, layout := range append([]string{preferred}, importDateLayouts...) {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// headerIndex maps lowercased header names to their position. A UTF-8
// BOM on the first cell is dropped.
func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF")))
		if key != "" {
			cols[key] = i
		}
	}
	return cols
}
