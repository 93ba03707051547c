// Package fees computes withdrawal fees from a configurable table.
package fees

import (
	"fmt"
	"os"
	"strings"

	"wallet_settlement/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var hundred = decimal.NewFromInt(100)

// Rule charges Percent of the amount plus Flat, clamped to [Min, Max].
// A zero Max means no cap.
type Rule struct {
	Percent decimal.Decimal `yaml:"percent"`
	Flat    decimal.Decimal `yaml:"flat"`
	Min     decimal.Decimal `yaml:"min"`
	Max     decimal.Decimal `yaml:"max"`
}

func (r Rule) apply(amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(r.Percent).Div(hundred).Add(r.Flat)
	if fee.LessThan(r.Min) {
		fee = r.Min
	}
	if r.Max.IsPositive() && fee.GreaterThan(r.Max) {
		fee = r.Max
	}
	if fee.IsNegative() {
		return decimal.Zero
	}
	return fee.Round(2)
}

// Table resolves a rule by wallet type and payment method, falling back to
// the method rule and then to Default.
type Table struct {
	Default Rule                                  `yaml:"default"`
	Methods map[string]Rule                       `yaml:"methods"`
	Wallets map[models.WalletType]map[string]Rule `yaml:"wallets"`
}

func (t *Table) Fee(walletType models.WalletType, method string, amount decimal.Decimal) decimal.Decimal {
	method = strings.ToLower(strings.TrimSpace(method))
	if byMethod, ok := t.Wallets[walletType]; ok {
		if rule, ok := byMethod[method]; ok {
			return rule.apply(amount)
		}
	}
	if rule, ok := t.Methods[method]; ok {
		return rule.apply(amount)
	}
	return t.Default.apply(amount)
}

func DefaultTable() *Table {
	return &Table{
		Default: Rule{Percent: decimal.NewFromInt(2)},
		Methods: map[string]Rule{
			"mpesa":  {Percent: decimal.NewFromFloat(1.5), Min: decimal.NewFromInt(1)},
			"paypal": {Percent: decimal.NewFromInt(3), Flat: decimal.NewFromFloat(0.30)},
			"crypto": {Flat: decimal.NewFromInt(5)},
			"bank":   {Percent: decimal.NewFromInt(1), Min: decimal.NewFromInt(2), Max: decimal.NewFromInt(25)},
		},
		Wallets: map[models.WalletType]map[string]Rule{},
	}
}

// Load reads a YAML table from path. An empty path yields DefaultTable.
func Load(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fee table: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parsing fee table: %w", err)
	}
	methods := make(map[string]Rule, len(t.Methods))
	for k, v := range t.Methods {
		methods[strings.ToLower(k)] = v
	}
	t.Methods = methods
	for wt, byMethod := range t.Wallets {
		if !wt.Valid() {
			return nil, fmt.Errorf("fee table: unknown wallet type %q", wt)
		}
		normalized := make(map[string]Rule, len(byMethod))
		for k, v := range byMethod {
			normalized[strings.ToLower(k)] = v
		}
		t.Wallets[wt] = normalized
	}
	return &t, nil
}
