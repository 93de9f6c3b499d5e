package importer

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/OancaAdrian/CRM/internal/model"
	"github.com/OancaAdrian/CRM/internal/store"
	"github.com/OancaAdrian/CRM/internal/textutil"
)

// FirmsOptions configures the registry XLSX load.
type FirmsOptions struct {
	SheetIndex     int
	FoldDiacritics bool
}

// firmColumns maps the header names of registry exports to Firm fields.
var firmColumns = map[string]string{
	"cui":           "cui",
	"denumire":      "denumire",
	"nume":          "denumire",
	"judet":         "judet",
	"localitate":    "localitate",
	"telefon":       "telefon",
	"caen":          "caen",
	"cifra_afaceri": "cifra_afaceri",
	"profit_net":    "profit_net",
	"angajati":      "angajati",
	"licente":       "licente",
}

// ImportFirmsXLSX loads a firm registry export and upserts the rows on
// cui. Rows without a cui are skipped.
func ImportFirmsXLSX(ctx context.Context, st store.Store, path string, opts FirmsOptions) (int64, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return 0, eris.Wrap(err, "importer: open xlsx")
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return 0, eris.Errorf("importer: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	sheet := f.Sheets[opts.SheetIndex]
	if len(sheet.Rows) == 0 {
		return 0, nil
	}

	cols := map[string]int{}
	for i, cell := range sheet.Rows[0].Cells {
		key := strings.ToLower(strings.TrimSpace(cell.String()))
		if canonical, ok := firmColumns[key]; ok {
			cols[canonical] = i
		}
	}
	if _, ok := cols["cui"]; !ok {
		return 0, eris.New("importer: xlsx header has no cui column")
	}

	field := func(row *xlsx.Row, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row.Cells) {
			return ""
		}
		return strings.TrimSpace(row.Cells[i].String())
	}
	text := func(row *xlsx.Row, name string) string {
		v := field(row, name)
		if opts.FoldDiacritics {
			v = textutil.FoldDiacritics(v)
		}
		return v
	}

	var firms []model.Firm
	for _, row := range sheet.Rows[1:] {
		cui := textutil.NormalizeCUI(field(row, "cui"))
		if cui == "" {
			continue
		}
		firms = append(firms, model.Firm{
			CUI:       cui,
			Name:      text(row, "denumire"),
			County:    text(row, "judet"),
			City:      text(row, "localitate"),
			Phone:     field(row, "telefon"),
			CAEN:      field(row, "caen"),
			Revenue:   parseInt64(field(row, "cifra_afaceri")),
			NetProfit: parseInt64(field(row, "profit_net")),
			Employees: parseInt(field(row, "angajati")),
			Licenses:  parseInt(field(row, "licente")),
		})
	}
	if len(firms) == 0 {
		return 0, nil
	}

	n, err := st.UpsertFirms(ctx, firms)
	if err != nil {
		return 0, err
	}
	zap.L().Info("firms imported", zap.String("file", path), zap.Int64("rows", n))
	return n, nil
}

func parseInt64(s string) *int64 {
	if s == "" {
		return nil
	}
	// Registry exports format large numbers with dot or space grouping.
	s = strings.NewReplacer(".", "", " ", "", ",", "").Replace(s)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt(s string) *int {
	v64 := parseInt64(s)
	if v64 == nil {
		return nil
	}
	v := int(*v64)
	return &v
}
