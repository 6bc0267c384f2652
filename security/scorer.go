package security

import (
	"context"
	"strings"
)

// DefaultRecipientRisk is the risk assigned to recipients without reputation data
const DefaultRecipientRisk = 0.1

// RecipientScorer estimates the risk of sending tx to its recipient, in [0,1]
type RecipientScorer interface {
	ScoreRecipient(ctx context.Context, userID string, tx Transaction) (float64, error)
}

// RecipientScorerFunc adapts a function to RecipientScorer
type RecipientScorerFunc func(ctx context.Context, userID string, tx Transaction) (float64, error)

func (f RecipientScorerFunc) ScoreRecipient(ctx context.Context, userID string, tx Transaction) (float64, error) {
	return f(ctx, userID, tx)
}

// ConstantRecipientScorer scores every recipient with the same value
type ConstantRecipientScorer float64

func (c ConstantRecipientScorer) ScoreRecipient(context.Context, string, Transaction) (float64, error) {
	return float64(c), nil
}

// StaticRecipientScorer scores deny-listed recipients as 1.0 and everything else as Default
type StaticRecipientScorer struct {
	denied  map[string]struct{}
	Default float64
}

// NewStaticRecipientScorer creates a scorer for the given deny-list; addresses
// are compared case-insensitively
func NewStaticRecipientScorer(denied ...string) *StaticRecipientScorer {
	s := &StaticRecipientScorer{
		denied:  make(map[string]struct{}, len(denied)),
		Default: DefaultRecipientRisk,
	}
	for _, addr := range denied {
		s.denied[strings.ToLower(strings.TrimSpace(addr))] = struct{}{}
	}
	return s
}

func (s *StaticRecipientScorer) ScoreRecipient(_ context.Context, _ string, tx Transaction) (float64, error) {
	if _, ok := s.denied[strings.ToLower(strings.TrimSpace(tx.To))]; ok {
		return 1, nil
	}
	return s.Default, nil
}
