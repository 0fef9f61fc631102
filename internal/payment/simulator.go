package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ariefcatur/go-group-buying/internal/teams"
)

const (
	declineReason  = "Simulated payment failure - insufficient funds"
	defaultTimeout = 30 * time.Second
)

// Simulator stands in for a payment gateway: it waits SimulationDelaySeconds
// and resolves the payment according to its SimulateSuccess flag.
type Simulator struct {
	Log     *slog.Logger
	Now     func() time.Time
	Timeout time.Duration // upper bound on one simulated call
}

func NewSimulator(log *slog.Logger, timeout time.Duration) *Simulator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Simulator{Log: log, Now: time.Now, Timeout: timeout}
}

func (s *Simulator) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Process drives p to Completed or Failed and reports whether it completed.
// It never returns an error; the reason is left on p.FailureReason.
func (s *Simulator) Process(ctx context.Context, p *teams.Payment) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(p, fmt.Sprintf("Processing error: %v", r))
			ok = false
		}
	}()

	if !p.Amount.IsPositive() {
		s.fail(p, "Processing error: amount must be greater than 0")
		return false
	}
	if p.Status == teams.PaymentPending {
		if err := p.Transition(teams.PaymentProcessing); err != nil {
			s.fail(p, "Processing error: "+err.Error())
			return false
		}
	}
	if p.Status != teams.PaymentProcessing {
		// already resolved; never revert a terminal payment
		return p.Status == teams.PaymentCompleted
	}

	if err := s.wait(ctx, time.Duration(p.SimulationDelaySeconds)*time.Second); err != nil {
		s.fail(p, "Processing error: "+err.Error())
		return false
	}

	if !p.SimulateSuccess {
		s.fail(p, declineReason)
		return false
	}
	at := s.now()
	p.Status = teams.PaymentCompleted
	p.CompletedAt = &at
	p.FailureReason = ""
	p.TransactionReference = GenerateTransactionReference(p.ID, at)
	if s.Log != nil {
		s.Log.Debug("payment completed", "payment_id", p.ID, "reference", p.TransactionReference)
	}
	return true
}

func (s *Simulator) wait(ctx context.Context, d time.Duration) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Simulator) fail(p *teams.Payment, reason string) {
	p.Status = teams.PaymentFailed
	p.FailureReason = reason
	p.CompletedAt = nil
	p.TransactionReference = ""
	if s.Log != nil {
		s.Log.Debug("payment failed", "payment_id", p.ID, "reason", reason)
	}
}

// GenerateTransactionReference builds TXN_<yyyyMMddHHmmss>_<first 8 id chars>.
func GenerateTransactionReference(paymentID string, at time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(paymentID, "-", ""))
	if len(id) > 8 {
		id = id[:8]
	}
	return "TXN_" + at.UTC().Format("20060102150405") + "_" + id
}
