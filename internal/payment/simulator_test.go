package payment

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-group-buying/internal/teams"
)

var fixed = time.Date(2026, 5, 4, 13, 7, 9, 0, time.UTC)

func newPayment(ok bool, delay int) *teams.Payment {
	return &teams.Payment{
		ID:                     "3f2a9c1e-77b0-4d0e-9a51-0b7d5c2e8f10",
		Amount:                 decimal.NewFromInt(250),
		Method:                 teams.MethodCard,
		Status:                 teams.PaymentPending,
		SimulateSuccess:        ok,
		SimulationDelaySeconds: delay,
	}
}

func newSim() *Simulator {
	s := NewSimulator(nil, time.Second)
	s.Now = func() time.Time { return fixed }
	return s
}

func TestProcessSuccess(t *testing.T) {
	p := newPayment(true, 0)
	require.True(t, newSim().Process(context.Background(), p))
	assert.Equal(t, teams.PaymentCompleted, p.Status)
	assert.Equal(t, "TXN_20260504130709_3F2A9C1E", p.TransactionReference)
	require.NotNil(t, p.CompletedAt)
	assert.Equal(t, fixed, *p.CompletedAt)
	assert.Empty(t, p.FailureReason)
}

func TestProcessFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*teams.Payment)
		reason string
	}{
		{name: "declined", mutate: func(p *teams.Payment) { p.SimulateSuccess = false }, reason: "Simulated payment failure - insufficient funds"},
		{name: "zero amount", mutate: func(p *teams.Payment) { p.Amount = decimal.Zero }, reason: "Processing error: amount must be greater than 0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newPayment(true, 0)
			tc.mutate(p)
			assert.False(t, newSim().Process(context.Background(), p))
			assert.Equal(t, teams.PaymentFailed, p.Status)
			assert.Equal(t, tc.reason, p.FailureReason)
			assert.Empty(t, p.TransactionReference)
			assert.Nil(t, p.CompletedAt)
		})
	}
}

func TestProcessHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newPayment(true, 5)

	start := time.Now()
	assert.False(t, newSim().Process(ctx, p))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, teams.PaymentFailed, p.Status)
	assert.Contains(t, p.FailureReason, "context canceled")
}

func TestProcessTimesOut(t *testing.T) {
	s := newSim()
	s.Timeout = 20 * time.Millisecond
	p := newPayment(true, 1)
	assert.False(t, s.Process(context.Background(), p))
	assert.Contains(t, p.FailureReason, "deadline exceeded")
}

func TestProcessLeavesTerminalPaymentAlone(t *testing.T) {
	p := newPayment(false, 0)
	p.Status = teams.PaymentCompleted
	p.TransactionReference = "TXN_X"
	assert.True(t, newSim().Process(context.Background(), p))
	assert.Equal(t, "TXN_X", p.TransactionReference)
}

func TestGenerateTransactionReference(t *testing.T) {
	assert.Equal(t, "TXN_20260504130709_AB", GenerateTransactionReference("ab", fixed))
	loc := time.FixedZone("WIB", 7*3600)
	assert.Equal(t, "TXN_20260504130709_ABCDEF12",
		GenerateTransactionReference("abcd-ef12-3456", fixed.In(loc)))
}
