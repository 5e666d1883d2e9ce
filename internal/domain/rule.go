package domain

// Built-in rule identifiers. They double as configuration keys.
const (
	RuleHighValue   = "high_value"
	RuleCrossBorder = "cross_border"
	RuleFrequentTx  = "frequent_tx"
)

// Default rule parameters.
const (
	DefaultHighValueThreshold = 10000.0
	DefaultMaxPerDay          = 10
)

// RulesConfig configures the rule set of the engine.
// Built-in rules always run first, in the order high_value, cross_border,
// frequent_tx; custom rules follow in the order listed.
type RulesConfig struct {
	HighValue   HighValueConfig        `yaml:"high_value" json:"highValue"`
	CrossBorder CrossBorderConfig      `yaml:"cross_border" json:"crossBorder"`
	Frequency   FrequencyConfig        `yaml:"frequent_tx" json:"frequentTx"`
	Custom      []ExpressionRuleConfig `yaml:"custom" json:"custom,omitempty"`

	// MaxWorkers bounds how many rules evaluate concurrently.
	MaxWorkers int `yaml:"max_workers" json:"maxWorkers"`
}

// HighValueConfig holds parameters of the high-value rule.
type HighValueConfig struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// CrossBorderConfig holds parameters of the cross-border rule.
type CrossBorderConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// FrequencyConfig holds parameters of the per-account daily frequency rule.
type FrequencyConfig struct {
	Enabled   bool `yaml:"enabled" json:"enabled"`
	MaxPerDay int  `yaml:"max_per_day" json:"maxPerDay"`
}

// ExpressionRuleConfig defines a CEL rule evaluated once per transaction.
// The expression must return bool; true flags the transaction.
type ExpressionRuleConfig struct {
	ID         string   `yaml:"id" json:"id"`
	FlagType   FlagType `yaml:"flag_type" json:"flagType"`
	Expression string   `yaml:"expression" json:"expression"`
	Reason     string   `yaml:"reason" json:"reason"`
	Enabled    bool     `yaml:"enabled" json:"enabled"`
}

// DefaultRulesConfig enables the three built-in rules with their default parameters.
func DefaultRulesConfig() RulesConfig {
	return RulesConfig{
		HighValue: HighValueConfig{
			Enabled:   true,
			Threshold: DefaultHighValueThreshold,
		},
		CrossBorder: CrossBorderConfig{
			Enabled: true,
		},
		Frequency: FrequencyConfig{
			Enabled:   true,
			MaxPerDay: DefaultMaxPerDay,
		},
		MaxWorkers: 4,
	}
}
