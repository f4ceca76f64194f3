/*
limits.go - Transaction limit policies

PURPOSE:
  Limits are configured ceilings on movable amounts, checked before any
  commit: a single-transaction cap plus rolling daily and monthly caps.
  Policies load from a YAML file with per-account-type overrides on top of
  a default, so operations teams can tune ceilings without a rebuild.

EVALUATION:
  The single-transaction cap compares the requested amount directly.
  Daily/monthly caps compare requested + already-consumed, where consumed
  is the sum of the caller's completed DEPOSIT/WITHDRAWAL/TRANSFER amounts
  in the current UTC day/month. Reversals do not count against limits.

  The check runs inside the same serialized mutation path as the commit,
  so two concurrent requests cannot both pass a nearly-exhausted cap.
*/
package ledger

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// =============================================================================
// POLICY MODEL
// =============================================================================

// LimitPolicy is one set of ceilings. Zero values fall back to defaults.
type LimitPolicy struct {
	SingleTransaction decimal.Decimal
	Daily             decimal.Decimal
	Monthly           decimal.Decimal
	Currency          string
}

// LimitPolicies maps account types to their effective policy.
type LimitPolicies struct {
	Default LimitPolicy
	PerType map[AccountType]LimitPolicy
}

// PolicyFor returns the effective policy for an account type: the per-type
// override when present, the default otherwise.
func (p *LimitPolicies) PolicyFor(t AccountType) LimitPolicy {
	if p == nil {
		return DefaultLimitPolicy()
	}
	if override, ok := p.PerType[t]; ok {
		return override
	}
	return p.Default
}

// DefaultLimitPolicy returns the built-in ceilings used when no config
// file is provided.
func DefaultLimitPolicy() LimitPolicy {
	return LimitPolicy{
		SingleTransaction: decimal.NewFromInt(10_000),
		Daily:             decimal.NewFromInt(50_000),
		Monthly:           decimal.NewFromInt(500_000),
		Currency:          DefaultCurrency,
	}
}

// DefaultLimitPolicies wraps DefaultLimitPolicy with no overrides.
func DefaultLimitPolicies() *LimitPolicies {
	return &LimitPolicies{
		Default: DefaultLimitPolicy(),
		PerType: map[AccountType]LimitPolicy{},
	}
}

// =============================================================================
// YAML LOADING
// =============================================================================

type limitPolicyYAML struct {
	SingleTransaction string `yaml:"single_transaction"`
	Daily             string `yaml:"daily"`
	Monthly           string `yaml:"monthly"`
	Currency          string `yaml:"currency"`
}

type limitsFileYAML struct {
	Default limitPolicyYAML            `yaml:"default"`
	PerType map[string]limitPolicyYAML `yaml:"account_types"`
}

// LoadLimitPolicies reads a limits YAML file. Amounts are decimal strings;
// omitted fields inherit from the built-in defaults.
func LoadLimitPolicies(path string) (*LimitPolicies, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read limits file: %w", err)
	}

	var file limitsFileYAML
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse limits file: %w", err)
	}

	def, err := parseLimitPolicy(file.Default, DefaultLimitPolicy())
	if err != nil {
		return nil, fmt.Errorf("invalid default limits: %w", err)
	}

	policies := &LimitPolicies{Default: def, PerType: map[AccountType]LimitPolicy{}}
	for name, raw := range file.PerType {
		t := AccountType(name)
		if !t.Valid() {
			return nil, fmt.Errorf("unknown account type %q in limits file", name)
		}
		policy, err := parseLimitPolicy(raw, def)
		if err != nil {
			return nil, fmt.Errorf("invalid limits for %s: %w", name, err)
		}
		policies.PerType[t] = policy
	}
	return policies, nil
}

func parseLimitPolicy(raw limitPolicyYAML, base LimitPolicy) (LimitPolicy, error) {
	policy := base
	var err error
	if raw.SingleTransaction != "" {
		if policy.SingleTransaction, err = parsePositiveDecimal(raw.SingleTransaction); err != nil {
			return policy, fmt.Errorf("single_transaction: %w", err)
		}
	}
	if raw.Daily != "" {
		if policy.Daily, err = parsePositiveDecimal(raw.Daily); err != nil {
			return policy, fmt.Errorf("daily: %w", err)
		}
	}
	if raw.Monthly != "" {
		if policy.Monthly, err = parsePositiveDecimal(raw.Monthly); err != nil {
			return policy, fmt.Errorf("monthly: %w", err)
		}
	}
	if raw.Currency != "" {
		policy.Currency = raw.Currency
	}
	return policy, nil
}

func parsePositiveDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}

// =============================================================================
// WINDOW HELPERS
// =============================================================================

// DayWindow returns the UTC day containing t.
func DayWindow(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// MonthWindow returns the UTC calendar month containing t.
func MonthWindow(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
