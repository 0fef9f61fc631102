package teams

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TeamLifetime is fixed at creation and never recalculated.
const TeamLifetime = 72 * time.Hour

var hundred = decimal.NewFromInt(100)

// TotalCommitted sums member quantities regardless of payment state.
func (t *Team) TotalCommitted() decimal.Decimal {
	sum := decimal.Zero
	for _, m := range t.Members {
		sum = sum.Add(m.Quantity)
	}
	return sum
}

// TotalPaid sums amounts of members whose payment completed.
func (t *Team) TotalPaid() decimal.Decimal {
	sum := decimal.Zero
	for _, m := range t.Members {
		if m.PaymentStatus == PaymentCompleted {
			sum = sum.Add(m.AmountPaid)
		}
	}
	return sum
}

func (t *Team) RemainingQuantity() decimal.Decimal {
	return t.TargetQuantity.Sub(t.TotalCommitted())
}

func (t *Team) RemainingAmount() decimal.Decimal {
	return t.TargetAmount.Sub(t.TotalPaid())
}

func (t *Team) ProgressPercentage() decimal.Decimal {
	if !t.TargetAmount.IsPositive() {
		return decimal.Zero
	}
	return t.TotalPaid().Div(t.TargetAmount).Mul(hundred).Round(2)
}

func (t *Team) QuantityProgressPercentage() decimal.Decimal {
	if !t.TargetQuantity.IsPositive() {
		return decimal.Zero
	}
	return t.TotalCommitted().Div(t.TargetQuantity).Mul(hundred).Round(2)
}

func (t *Team) IsQuantityTargetReached() bool {
	return t.TotalCommitted().GreaterThanOrEqual(t.TargetQuantity)
}

func (t *Team) IsAmountTargetReached() bool {
	return t.TotalPaid().GreaterThanOrEqual(t.TargetAmount)
}

// IsSuccessful requires both targets; reaching only one keeps the team Active.
func (t *Team) IsSuccessful() bool {
	return t.IsQuantityTargetReached() && t.IsAmountTargetReached()
}

func (t *Team) IsExpired(now time.Time) bool { return now.After(t.ExpiresAt) }

func (t *Team) CanJoin(now time.Time) bool {
	return t.Status == TeamActive && !t.IsAmountTargetReached() && !t.IsExpired(now)
}

type JoinRejection int

const (
	RejectNone JoinRejection = iota
	RejectExpired
	RejectInactive
	RejectQuantity
	RejectCapacity
)

// CanMemberJoin reports whether the requested units still fit, and why not.
func (t *Team) CanMemberJoin(requested decimal.Decimal, now time.Time) (bool, string) {
	rej, reason := t.checkJoin(requested, now)
	return rej == RejectNone, reason
}

func (t *Team) checkJoin(requested decimal.Decimal, now time.Time) (JoinRejection, string) {
	switch {
	case t.IsExpired(now):
		return RejectExpired, "Team has expired"
	case t.Status != TeamActive:
		return RejectInactive, "Team is not active"
	case !requested.IsPositive():
		return RejectQuantity, "Quantity must be greater than 0"
	case t.TotalCommitted().Add(requested).GreaterThan(t.TargetQuantity):
		return RejectCapacity, fmt.Sprintf("Only %s %s remaining", t.RemainingQuantity().String(), t.Unit.Display())
	}
	return RejectNone, ""
}

// Reconcile recomputes status from time and the member set. It reports whether
// the status changed so callers know to persist it.
func (t *Team) Reconcile(now time.Time) bool {
	if t.Status != TeamActive {
		return false
	}
	switch {
	case t.IsExpired(now):
		if t.IsSuccessful() {
			t.complete(now)
		} else {
			t.Status = TeamExpired
		}
		return true
	case t.IsSuccessful():
		t.complete(now)
		return true
	}
	return false
}

func (t *Team) complete(now time.Time) {
	t.Status = TeamCompleted
	at := now.UTC()
	t.CompletedAt = &at
}

// Countdown renders the time left until expiry, e.g. "2d 5h left".
func (t *Team) Countdown(now time.Time) string {
	left := t.ExpiresAt.Sub(now)
	if left <= 0 {
		return "Expired"
	}
	days := int(left / (24 * time.Hour))
	hours := int(left % (24 * time.Hour) / time.Hour)
	mins := int(left % time.Hour / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh left", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm left", hours, mins)
	}
	return fmt.Sprintf("%dm left", mins)
}

func (t *Team) UrgencyLevel(now time.Time) string {
	left := t.ExpiresAt.Sub(now)
	switch {
	case left <= 0:
		return "expired"
	case left < 6*time.Hour:
		return "critical"
	case left < 24*time.Hour:
		return "high"
	}
	return "normal"
}

// ProgressDisplay renders e.g. "10.00 kg of 50.00 kg | ₦1,000.00 of ₦5,000.00 (20.0%)".
func (t *Team) ProgressDisplay() string {
	unit := t.Unit.Display()
	return fmt.Sprintf("%s %s of %s %s | ₦%s of ₦%s (%s%%)",
		grouped(t.TotalCommitted()), unit, grouped(t.TargetQuantity), unit,
		grouped(t.TotalPaid()), grouped(t.TargetAmount), t.ProgressPercentage().StringFixed(1))
}

// StatusDisplay reports an Active team whose targets are both met as Completed,
// ahead of the next reconcile.
func (t *Team) StatusDisplay() string {
	switch t.Status {
	case TeamActive:
		if t.IsSuccessful() {
			return "Completed"
		}
		return "Active"
	case TeamCompleted:
		return "Completed"
	case TeamExpired:
		return "Expired"
	case TeamCancelled:
		return "Cancelled"
	}
	return "Unknown"
}

// grouped formats with two decimals and comma thousands separators.
func grouped(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	out := make([]byte, 0, len(s)+len(intPart)/3+1)
	if d.IsNegative() {
		out = append(out, '-')
	}
	for i := 0; i < len(intPart); i++ {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, intPart[i])
	}
	return string(append(out, frac...))
}
