package teams

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// amountTolerance guards against client-supplied amounts drifting from price.
var amountTolerance = decimal.RequireFromString("0.01")

type ContributionInput struct {
	TeamID     string
	CustomerID string
	Quantity   decimal.Decimal
	Amount     decimal.Decimal
	PaymentID  string
}

type MemberInput struct {
	TeamID     string
	CustomerID string
	Quantity   decimal.Decimal
	AmountPaid decimal.Decimal
	PaymentID  string
}

// Ledger records contributions and memberships. All methods expect to run
// inside a Store.InTx with the team already locked by the caller.
type Ledger struct {
	Now func() time.Time
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// AddContribution records a participant's commitment. The creator's first
// contribution skips the duplicate and ceiling checks.
func (l *Ledger) AddContribution(ctx context.Context, q Queries, in ContributionInput, isCreator bool) (*Contribution, error) {
	team, err := q.GetTeam(ctx, in.TeamID, false)
	if errors.Is(err, ErrNotFound) {
		return nil, errTeamNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("load team: %w", err)
	}

	if !isCreator {
		_, err := q.GetContribution(ctx, in.TeamID, in.CustomerID)
		switch {
		case err == nil:
			return nil, newErr(KindConflict, CodeDuplicateContribution, "Contribution already exists for this customer in the team")
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("load contribution: %w", err)
		}

		total, err := q.SumContributionQuantity(ctx, in.TeamID)
		if err != nil {
			return nil, fmt.Errorf("sum contributions: %w", err)
		}
		if total.Add(in.Quantity).GreaterThan(team.TargetQuantity) {
			return nil, newErr(KindConflict, CodeQuantityExceeded, "Total contributions exceed the team's quantity limit")
		}
	}

	c := &Contribution{
		ID:         uuid.NewString(),
		TeamID:     in.TeamID,
		CustomerID: in.CustomerID,
		Quantity:   in.Quantity,
		Amount:     in.Amount,
		IsCreator:  isCreator,
		CreatedAt:  l.now(),
	}
	if in.PaymentID != "" {
		pid := in.PaymentID
		c.PaymentID = &pid
	}
	if err := q.InsertContribution(ctx, c); err != nil {
		return nil, fmt.Errorf("insert contribution: %w", err)
	}
	return c, nil
}

// CreateMember validates every precondition before inserting, then re-evaluates
// the team status. The returned team includes the new member.
func (l *Ledger) CreateMember(ctx context.Context, q Queries, in MemberInput) (*Member, *Team, error) {
	now := l.now()

	team, err := q.GetTeam(ctx, in.TeamID, false)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, errTeamNotFound()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load team: %w", err)
	}

	if rej, reason := team.checkJoin(in.Quantity, now); rej != RejectNone {
		return nil, nil, joinNotAllowed(reason, rej)
	}

	ok, err := q.CustomerExists(ctx, in.CustomerID)
	if err != nil {
		return nil, nil, fmt.Errorf("check customer: %w", err)
	}
	if !ok {
		return nil, nil, newErr(KindNotFound, CodeCustomerNotFound, "Customer not found")
	}

	pay, err := q.GetPayment(ctx, in.PaymentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, nil, fmt.Errorf("load payment: %w", err)
	}
	if pay == nil || pay.CustomerID != in.CustomerID || pay.TeamID != in.TeamID {
		return nil, nil, newErr(KindNotFound, CodePaymentMismatch, "Payment not found or does not belong to customer")
	}
	if pay.Status != PaymentCompleted {
		return nil, nil, newErr(KindConflict, CodePaymentMismatch, "Payment is %s, not completed", pay.Status)
	}

	_, err = q.GetMember(ctx, in.TeamID, in.CustomerID)
	switch {
	case err == nil:
		return nil, nil, newErr(KindConflict, CodeDuplicateMember, "Member already exists in this team")
	case !errors.Is(err, ErrNotFound):
		return nil, nil, fmt.Errorf("load member: %w", err)
	}

	expected := in.Quantity.Mul(team.UnitPrice)
	if in.AmountPaid.Sub(expected).Abs().GreaterThan(amountTolerance) {
		return nil, nil, newErr(KindValidation, CodeAmountMismatch,
			"Amount paid %s does not match expected amount of %s", in.AmountPaid.StringFixed(2), expected.StringFixed(2))
	}

	m := &Member{
		ID:            uuid.NewString(),
		TeamID:        in.TeamID,
		CustomerID:    in.CustomerID,
		Quantity:      in.Quantity,
		AmountPaid:    in.AmountPaid,
		PaymentID:     pay.ID,
		PaymentStatus: pay.Status,
		JoinedAt:      now,
	}
	if err := q.InsertMember(ctx, m); err != nil {
		return nil, nil, fmt.Errorf("insert member: %w", err)
	}

	team.Members = append(team.Members, *m)
	if team.Reconcile(now) {
		if err := q.UpdateTeamStatus(ctx, team); err != nil {
			return nil, nil, fmt.Errorf("update team status: %w", err)
		}
	}
	return m, team, nil
}
