// Package schema describes the single queryable table the translator targets.
package schema

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Column is one column of the queryable table
type Column struct {
	Name        string   `yaml:"name" json:"name"`
	Type        string   `yaml:"type" json:"type"`
	Description string   `yaml:"description" json:"description"`
	Nullable    bool     `yaml:"nullable" json:"nullable"`
	Examples    []string `yaml:"examples,omitempty" json:"examples,omitempty"`
	// Timestamp marks the column date filters should use
	Timestamp bool `yaml:"timestamp,omitempty" json:"timestamp,omitempty"`
	// FreeText columns are matched with ILIKE '%...%'
	FreeText bool `yaml:"free_text,omitempty" json:"free_text,omitempty"`
}

// Descriptor is immutable once loaded
type Descriptor struct {
	Table       string   `yaml:"table" json:"table"`
	Description string   `yaml:"description" json:"description"`
	Columns     []Column `yaml:"columns" json:"columns"`
}

// Default returns the card transactions table
func Default() *Descriptor {
	return &Descriptor{
		Table:       "mcp_transactions",
		Description: "Card transactions with issuer, merchant and amount details",
		Columns: []Column{
			{Name: "transaction_id", Type: "UUID", Description: "unique transaction id"},
			{Name: "transaction_timestamp", Type: "TIMESTAMP", Description: "transaction date and time", Timestamp: true},
			{Name: "card_id", Type: "INTEGER", Description: "card id"},
			{Name: "expiry_date", Type: "VARCHAR", Description: "card expiry date, MM/YY", Nullable: true},
			{Name: "issuer_bank_name", Type: "VARCHAR", Description: "issuing bank name", FreeText: true,
				Examples: []string{"Halyk Bank", "Kaspi Bank", "ForteBank"}},
			{Name: "merchant_id", Type: "INTEGER", Description: "merchant id"},
			{Name: "merchant_mcc", Type: "INTEGER", Description: "merchant category code"},
			{Name: "mcc_category", Type: "VARCHAR", Description: "merchant category", FreeText: true,
				Examples: []string{"Grocery & Supermarkets", "Restaurants", "Fuel"}},
			{Name: "merchant_city", Type: "VARCHAR", Description: "merchant city", FreeText: true,
				Examples: []string{"Almaty", "Astana", "Shymkent"}},
			{Name: "transaction_type", Type: "VARCHAR", Description: "transaction type",
				Examples: []string{"POS", "ECOM", "ATM_WITHDRAWAL", "P2P_OUT"}},
			{Name: "transaction_amount_kzt", Type: "NUMERIC(15,2)", Description: "amount in KZT"},
			{Name: "original_amount", Type: "NUMERIC(15,2)", Description: "amount in the original currency", Nullable: true},
			{Name: "transaction_currency", Type: "VARCHAR(3)", Description: "currency code",
				Examples: []string{"KZT", "USD", "EUR"}},
			{Name: "acquirer_country_iso", Type: "VARCHAR(3)", Description: "acquirer country code"},
			{Name: "pos_entry_mode", Type: "VARCHAR", Description: "POS entry mode", Nullable: true,
				Examples: []string{"Contactless", "Chip", "Swipe"}},
			{Name: "wallet_type", Type: "VARCHAR", Description: "wallet type", Nullable: true,
				Examples: []string{"Apple Pay", "Google Pay", "Samsung Pay"}},
		},
	}
}

// LoadFile reads a YAML descriptor
func LoadFile(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse schema file %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks that the descriptor names a table and unique columns
func (d *Descriptor) Validate() error {
	if strings.TrimSpace(d.Table) == "" {
		return fmt.Errorf("schema: table name is required")
	}
	if len(d.Columns) == 0 {
		return fmt.Errorf("schema: table %s has no columns", d.Table)
	}
	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		if c.Name == "" {
			return fmt.Errorf("schema: column without a name in %s", d.Table)
		}
		if seen[c.Name] {
			return fmt.Errorf("schema: duplicate column %s", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// ColumnNames returns the names in declaration order
func (d *Descriptor) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the table has the named column (case-insensitive)
func (d *Descriptor) Has(name string) bool {
	for _, c := range d.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// TimestampColumn returns the preferred date filter column, or "".
func (d *Descriptor) TimestampColumn() string {
	for _, c := range d.Columns {
		if c.Timestamp {
			return c.Name
		}
	}
	return ""
}

// FreeTextColumns returns the columns matched with ILIKE
func (d *Descriptor) FreeTextColumns() []string {
	var out []string
	for _, c := range d.Columns {
		if c.FreeText {
			out = append(out, c.Name)
		}
	}
	return out
}
