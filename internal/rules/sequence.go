package rules

import (
	"fmt"
	"sync"

	"github.com/opensource-finance/txmon/internal/domain"
)

// Sequence hands out flag identifiers FLAG000001, FLAG000002, ... for one run.
// Numbers beyond six digits keep growing without truncation.
type Sequence struct {
	mu   sync.Mutex
	next int
}

// NewSequence returns a sequence starting at 1.
func NewSequence() *Sequence {
	return &Sequence{next: 1}
}

// Next returns the next identifier.
func (s *Sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("FLAG%06d", s.next)
	s.next++
	return id
}

// Aggregate numbers candidate batches into a ledger. Batches are consumed in
// the order given and candidates within a batch in their emission order, so
// the result is a pure function of the batches.
func Aggregate(seq *Sequence, batches [][]domain.FlagCandidate) []domain.Flag {
	total := 0
	for _, b := range batches {
		total += len(b)
	}

	flags := make([]domain.Flag, 0, total)
	for _, b := range batches {
		for _, c := range b {
			flags = append(flags, domain.Flag{
				ID:            seq.Next(),
				TransactionID: c.TransactionID,
				Type:          c.Type,
				Reason:        c.Reason,
				FlaggedAt:     c.FlaggedAt,
			})
		}
	}
	return flags
}
