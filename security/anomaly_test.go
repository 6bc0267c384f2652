package security

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnomalyScore(t *testing.T) {
	tests := []struct {
		name    string
		offset  time.Duration // from noon UTC
		history int
		amount  int64
		to      string
		want    float64
	}{
		{"quiet daytime", 0, 0, 10, "wallet-b", 0.04 + 0.02 + 0.01},
		{"max amount daytime", 0, 0, 100, "wallet-b", 0.4 + 0.02 + 0.01},
		{"amount is capped", 0, 0, 5000, "wallet-b", 0.4 + 0.02 + 0.01},
		{"night", 11 * time.Hour, 0, 100, "wallet-b", 0.4 + 0.14 + 0.01},
		{"early morning", -7 * time.Hour, 0, 100, "wallet-b", 0.4 + 0.14 + 0.01},
		{"history", 0, 5, 50, "wallet-b", 0.15 + 0.2 + 0.02 + 0.01},
		{"denied recipient", 0, 0, 10, "WALLET-BAD", 0.04 + 0.02 + 0.1},
		{"everything", 11 * time.Hour, 10, 100, "wallet-bad", 0.3 + 0.4 + 0.14 + 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, WithRecipientScorer(NewStaticRecipientScorer("wallet-bad")))
			ctx := context.Background()
			env.clock.Advance(tt.offset)
			for i := 0; i < tt.history; i++ {
				_, err := env.manager.RecordEvent(ctx, EventTransactionCreated, "user-1", nil, SeverityLow)
				require.NoError(t, err)
			}

			tx := Transaction{ID: "tx", To: tt.to, Amount: decimal.NewFromInt(tt.amount)}
			score := env.manager.AnomalyScore(ctx, tx, "user-1")
			assert.InDelta(t, tt.want, score, 1e-9)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
			assert.Equal(t, score > DefaultAnomalyThreshold, env.manager.DetectAnomaly(ctx, tx, "user-1"))
		})
	}
}

func TestAnomalyScoreHistoryWindow(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := env.manager.RecordEvent(ctx, EventTransactionCreated, "user-1", nil, SeverityLow)
		require.NoError(t, err)
	}
	tx := Transaction{Amount: decimal.NewFromInt(10)}

	assert.InDelta(t, 0.3+0.04+0.02+0.01, env.manager.AnomalyScore(ctx, tx, "user-1"), 1e-9)
	// other users' history does not count
	assert.InDelta(t, 0.04+0.02+0.01, env.manager.AnomalyScore(ctx, tx, "user-2"), 1e-9)

	env.clock.Advance(time.Hour + time.Second)
	assert.InDelta(t, 0.04+0.02+0.01, env.manager.AnomalyScore(ctx, tx, "user-1"), 1e-9)
}

func TestAnomalyScoreFaults(t *testing.T) {
	tx := Transaction{Amount: decimal.NewFromInt(10)}

	t.Run("scorer error", func(t *testing.T) {
		env := newTestEnv(t, nil, WithRecipientScorer(RecipientScorerFunc(
			func(context.Context, string, Transaction) (float64, error) {
				return 0, errStoreDown
			})))
		assert.Equal(t, 0.0, env.manager.AnomalyScore(context.Background(), tx, "user-1"))
	})

	t.Run("out of range scorer", func(t *testing.T) {
		env := newTestEnv(t, nil, WithRecipientScorer(ConstantRecipientScorer(7)))
		assert.InDelta(t, 0.04+0.02+0.1, env.manager.AnomalyScore(context.Background(), tx, "user-1"), 1e-9)
	})

	t.Run("cancelled context", func(t *testing.T) {
		env := newTestEnv(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Equal(t, 0.0, env.manager.AnomalyScore(ctx, tx, "user-1"))
	})
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, clamp(-1))
	assert.Equal(t, 1.0, clamp(3))
	assert.Equal(t, 0.5, clamp(0.5))
	zero := 0.0
	assert.Equal(t, 0.0, clamp(zero/zero))
}
