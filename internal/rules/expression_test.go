package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/txmon/internal/domain"
)

func TestExpressionRuleFlags(t *testing.T) {
	rule, err := NewExpressionRule(domain.ExpressionRuleConfig{
		ID:         "high_risk_abroad",
		FlagType:   "high_risk_abroad",
		Expression: `risk_rating == "high" && country != home_country`,
		Reason:     "High risk customer transacting abroad",
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("NewExpressionRule: %v", err)
	}

	snap := baseSnapshot()
	snap.Customers = append(snap.Customers, domain.Customer{ID: "CUST0002", Country: "AZ", RiskRating: domain.RiskHigh})
	snap.Accounts = append(snap.Accounts, domain.Account{ID: "ACC00002", CustomerID: "CUST0002"})
	snap.Transactions = []domain.Transaction{
		tx("TXN0000001", "ACC00001", fixedNow, 10, "TR"),
		tx("TXN0000002", "ACC00002", fixedNow, 10, "TR"),
		tx("TXN0000003", "ACC00002", fixedNow, 10, "AZ"),
	}

	cands, err := rule.Evaluate(context.Background(), NewInput(snap, fixedNow))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(cands) != 1 || cands[0].TransactionID != "TXN0000002" {
		t.Fatalf("unexpected candidates %+v", cands)
	}
	if cands[0].Reason != "High risk customer transacting abroad" {
		t.Errorf("unexpected reason %q", cands[0].Reason)
	}
}

func TestExpressionRuleHourVariable(t *testing.T) {
	rule, err := NewExpressionRule(domain.ExpressionRuleConfig{
		ID:         "night",
		FlagType:   "night",
		Expression: "hour < 5",
	})
	if err != nil {
		t.Fatalf("NewExpressionRule: %v", err)
	}

	snap := baseSnapshot()
	snap.Transactions = []domain.Transaction{
		tx("TXN0000001", "ACC00001", time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC), 10, "AZ"),
		tx("TXN0000002", "ACC00001", time.Date(2025, 1, 1, 13, 0, 0, 0, time.UTC), 10, "AZ"),
	}

	cands, err := rule.Evaluate(context.Background(), NewInput(snap, fixedNow))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(cands) != 1 || cands[0].TransactionID != "TXN0000001" {
		t.Errorf("unexpected candidates %+v", cands)
	}
	if cands[0].Reason != "Matched expression: hour < 5" {
		t.Errorf("unexpected default reason %q", cands[0].Reason)
	}
}

func TestExpressionRuleInvalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  domain.ExpressionRuleConfig
	}{
		{"syntax", domain.ExpressionRuleConfig{ID: "a", FlagType: "a", Expression: "this is not valid CEL !!!"}},
		{"non-bool", domain.ExpressionRuleConfig{ID: "b", FlagType: "b", Expression: "amount * 2.0"}},
		{"unknown variable", domain.ExpressionRuleConfig{ID: "c", FlagType: "c", Expression: "velocity_count > 3"}},
		{"missing id", domain.ExpressionRuleConfig{FlagType: "d", Expression: "true"}},
		{"missing flag type", domain.ExpressionRuleConfig{ID: "e", Expression: "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExpressionRule(tt.cfg)
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestExpressionRuleUnknownAccount(t *testing.T) {
	rule, _ := NewExpressionRule(domain.ExpressionRuleConfig{ID: "any", FlagType: "any", Expression: "true"})

	snap := baseSnapshot()
	snap.Transactions = []domain.Transaction{tx("TXN0000001", "ACC404", fixedNow, 10, "AZ")}

	_, err := rule.Evaluate(context.Background(), NewInput(snap, fixedNow))
	if !errors.Is(err, domain.ErrReferentialIntegrity) {
		t.Fatalf("expected referential integrity error, got %v", err)
	}
}
