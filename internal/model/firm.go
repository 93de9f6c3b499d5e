// Package model defines the CRM domain types: firms from the Romanian
// trade registry, sales activities logged against them, and the derived
// suggestion list. JSON field names follow the registry vocabulary
// (denumire, judet, cifra_afaceri) so existing frontends keep working.
package model

import "time"

// Firm is a company from the trade registry, keyed by CUI. Reference
// data maintained by the importers; the API never mutates it.
type Firm struct {
	CUI       string     `json:"cui" db:"cui"`
	Name      string     `json:"denumire" db:"denumire"`
	County    string     `json:"judet,omitempty" db:"judet"`
	City      string     `json:"localitate,omitempty" db:"localitate"`
	Phone     string     `json:"telefon,omitempty" db:"telefon"`
	CAEN      string     `json:"caen,omitempty" db:"caen"`
	Revenue   *int64     `json:"cifra_afaceri,omitempty" db:"cifra_afaceri"`
	NetProfit *int64     `json:"profit_net,omitempty" db:"profit_net"`
	Employees *int       `json:"angajati,omitempty" db:"angajati"`
	Licenses  *int       `json:"licente,omitempty" db:"licente"`
	UpdatedAt *time.Time `json:"actualizat_la,omitempty" db:"actualizat_la"`
}

// Financial is one annual balance-sheet row for a firm.
type Financial struct {
	ID        int64  `json:"id" db:"id"`
	CUI       string `json:"cui" db:"cui"`
	Year      int    `json:"an" db:"an"`
	Revenue   *int64 `json:"cifra_afaceri,omitempty" db:"cifra_afaceri"`
	NetProfit *int64 `json:"profit_net,omitempty" db:"profit_net"`
}

// FirmSearchRow is a search hit: firm columns joined with the most
// recent financials_annual row, when one exists.
type FirmSearchRow struct {
	CUI           string `json:"cui"`
	Name          string `json:"denumire"`
	County        string `json:"judet,omitempty"`
	City          string `json:"localitate,omitempty"`
	Phone         string `json:"telefon,omitempty"`
	FinancialYear *int   `json:"financial_an,omitempty"`
	Revenue       *int64 `json:"cifra_afaceri,omitempty"`
	NetProfit     *int64 `json:"profit_net,omitempty"`
}

// FirmDetail is the full firm view: registry data, latest financial
// year, and the most recent activities.
type FirmDetail struct {
	Firm
	LatestFinancial *Financial `json:"financial,omitempty"`
	Activities      []Activity `json:"activities"`
}

// CAENCode is one row of the Romanian industry classification, keyed
// by grupa.
type CAENCode struct {
	Grupa     string `json:"grupa" db:"grupa"`
	Name      string `json:"denumire" db:"denumire"`
	NACE      string `json:"nace,omitempty" db:"nace"`
	Diviziune string `json:"diviziune,omitempty" db:"diviziune"`
}
