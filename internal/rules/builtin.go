package rules

import (
	"github.com/opensource-finance/txmon/internal/domain"
)

// BuildRules returns the enabled rules of cfg in evaluation order: high_value,
// cross_border, frequent_tx, then enabled custom rules as listed.
// Invalid parameters fail here, before any data is read.
func BuildRules(cfg domain.RulesConfig) ([]Rule, error) {
	var out []Rule

	if cfg.HighValue.Enabled {
		r, err := NewHighValueRule(cfg.HighValue.Threshold)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	if cfg.CrossBorder.Enabled {
		out = append(out, NewCrossBorderRule())
	}

	if cfg.Frequency.Enabled {
		r, err := NewFrequencyRule(cfg.Frequency.MaxPerDay)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	for _, c := range cfg.Custom {
		if !c.Enabled {
			continue
		}
		r, err := NewExpressionRule(c)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, nil
}

// BuiltinRules returns the three built-in rules with default parameters.
func BuiltinRules() []Rule {
	hv, _ := NewHighValueRule(domain.DefaultHighValueThreshold)
	fq, _ := NewFrequencyRule(domain.DefaultMaxPerDay)
	return []Rule{hv, NewCrossBorderRule(), fq}
}
