// Package caen imports and serves the Romanian CAEN industry
// classification. Source files are the semicolon-delimited CSVs
// published by ONRC, keyed by grupa.
package caen

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/OancaAdrian/CRM/internal/model"
	"github.com/OancaAdrian/CRM/internal/store"
)

// columnAliases maps the header names seen across published CAEN files
// to canonical columns.
var columnAliases = map[string]string{
	"grupa":     "grupa",
	"cod":       "grupa",
	"denumire":  "denumire",
	"descriere": "denumire",
	"nace":      "nace",
	"diviziune": "diviziune",
}

// ParseCSV reads a ;-delimited CAEN CSV. Rows missing either grupa or
// denumire are skipped, matching the source files which interleave
// section headers with code rows.
func ParseCSV(r io.Reader) ([]model.CAENCode, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "caen: read header")
	}

	cols := map[string]int{}
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF")))
		if canonical, ok := columnAliases[key]; ok {
			cols[canonical] = i
		}
	}
	if _, ok := cols["grupa"]; !ok {
		return nil, eris.New("caen: header has no GRUPA column")
	}
	if _, ok := cols["denumire"]; !ok {
		return nil, eris.New("caen: header has no DENUMIRE column")
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var out []model.CAENCode
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "caen: read row")
		}
		code := model.CAENCode{
			Grupa:     field(record, "grupa"),
			Name:      field(record, "denumire"),
			NACE:      field(record, "nace"),
			Diviziune: field(record, "diviziune"),
		}
		if code.Grupa == "" || code.Name == "" {
			continue
		}
		out = append(out, code)
	}
	return out, nil
}

// Import parses a CAEN CSV and upserts the codes, returning how many
// rows landed.
func Import(ctx context.Context, st store.Store, r io.Reader) (int64, error) {
	codes, err := ParseCSV(r)
	if err != nil {
		return 0, err
	}
	if len(codes) == 0 {
		return 0, nil
	}
	n, err := st.UpsertCAENCodes(ctx, codes)
	if err != nil {
		return 0, err
	}
	zap.L().Info("caen codes imported", zap.Int64("rows", n))
	return n, nil
}
