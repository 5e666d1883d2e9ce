package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrReferentialIntegrity is wrapped by every ReferentialIntegrityError.
	ErrReferentialIntegrity = errors.New("referential integrity violation")

	// ErrConfiguration is wrapped by every ConfigurationError.
	ErrConfiguration = errors.New("invalid configuration")
)

// WarnEmptyInput is recorded on a ledger produced from zero transactions.
const WarnEmptyInput = "empty_input: no transactions supplied"

// ReferentialIntegrityError reports a foreign key that does not resolve,
// e.g. a transaction pointing at an unknown account.
type ReferentialIntegrityError struct {
	Entity      string // "transaction" or "account"
	EntityID    string
	Reference   string // "account" or "customer"
	ReferenceID string
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("%s %s references unknown %s %q", e.Entity, e.EntityID, e.Reference, e.ReferenceID)
}

func (e *ReferentialIntegrityError) Unwrap() error {
	return ErrReferentialIntegrity
}

// ConfigurationError reports an invalid rule parameter. It is raised when a
// rule is built, before any data is read.
type ConfigurationError struct {
	RuleID string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("rule ")
	b.WriteString(e.RuleID)
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}
