package security

import (
	"context"
	"math"
	"time"

	"github.com/oddbit-project/walletguard/log"
)

// anomaly score weights
const (
	weightFrequency = 0.3
	weightAmount    = 0.4
	weightTime      = 0.2
	weightRecipient = 0.1

	nightRisk = 0.7
	dayRisk   = 0.1
)

// AnomalyScore returns the [0,1] risk estimate for tx. Returns 0 if the score
// cannot be computed
func (m *Manager) AnomalyScore(ctx context.Context, tx Transaction, userID string) (score float64) {
	defer m.recoverFault("anomalyScore", func() {
		score = 0
	})

	score, err := m.anomalyScore(ctx, tx, userID)
	if err != nil {
		m.logger.Error(err, "anomaly scoring failed", log.KV{"user_id": userID, "transaction_id": tx.ID})
		return 0
	}
	return score
}

// DetectAnomaly returns true if the anomaly score of tx is above the configured threshold
func (m *Manager) DetectAnomaly(ctx context.Context, tx Transaction, userID string) bool {
	return m.AnomalyScore(ctx, tx, userID) > m.cfg.AnomalyThreshold
}

func (m *Manager) anomalyScore(ctx context.Context, tx Transaction, userID string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := m.now()

	recent, err := m.store.countSince(userID, EventTransactionCreated, now.Add(-time.Hour))
	if err != nil {
		return 0, err
	}
	frequency := clamp(float64(recent) / float64(m.cfg.MaxTransactionsPerHour))

	amount := 0.0
	if tx.Amount.IsPositive() {
		amount = clamp(tx.Amount.Div(m.cfg.MaxAmountPerTransaction).InexactFloat64())
	}

	recipient, err := m.scorer.ScoreRecipient(ctx, userID, tx)
	if err != nil {
		return 0, err
	}

	score := frequency*weightFrequency +
		amount*weightAmount +
		m.timeRisk(now)*weightTime +
		clamp(recipient)*weightRecipient
	return clamp(score), nil
}

func (m *Manager) timeRisk(t time.Time) float64 {
	if _, ok := m.night[t.In(m.loc).Hour()]; ok {
		return nightRisk
	}
	return dayRisk
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
