package teams_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-group-buying/internal/memstore"
	"github.com/ariefcatur/go-group-buying/internal/teams"
)

var ledgerNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// ledgerStore holds one Active team (50 kg at 100) with no members yet and a
// completed payment for bob.
func ledgerStore(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.New()
	s.AddCustomer("alice")
	s.AddCustomer("bob")
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(q teams.Queries) error {
		if err := q.InsertTeam(ctx, &teams.Team{
			ID: "t1", ProductID: "rice", Unit: teams.UnitKilogram,
			UnitPrice: dec("100"), TargetQuantity: dec("50"), TargetAmount: dec("1000"),
			CreatedBy: "alice", Status: teams.TeamActive,
			CreatedAt: ledgerNow, ExpiresAt: ledgerNow.Add(teams.TeamLifetime),
		}); err != nil {
			return err
		}
		return q.InsertPayment(ctx, &teams.Payment{
			ID: "pay-bob", CustomerID: "bob", TeamID: "t1", Amount: dec("500"),
			Status: teams.PaymentCompleted, CreatedAt: ledgerNow,
		})
	}))
	return s
}

func TestAddContribution(t *testing.T) {
	s := ledgerStore(t)
	l := &teams.Ledger{Now: func() time.Time { return ledgerNow }}
	ctx := context.Background()

	err := s.InTx(ctx, func(q teams.Queries) error {
		c, err := l.AddContribution(ctx, q, teams.ContributionInput{TeamID: "t1", CustomerID: "alice", Quantity: dec("45"), Amount: dec("4500")}, true)
		require.NoError(t, err)
		assert.True(t, c.IsCreator)
		assert.Nil(t, c.PaymentID)

		_, err = l.AddContribution(ctx, q, teams.ContributionInput{TeamID: "t1", CustomerID: "bob", Quantity: dec("6"), PaymentID: "pay-bob"}, false)
		assert.Equal(t, teams.CodeQuantityExceeded, teams.CodeOf(err))

		c, err = l.AddContribution(ctx, q, teams.ContributionInput{TeamID: "t1", CustomerID: "bob", Quantity: dec("5"), PaymentID: "pay-bob"}, false)
		require.NoError(t, err)
		require.NotNil(t, c.PaymentID)
		assert.Equal(t, "pay-bob", *c.PaymentID)

		_, err = l.AddContribution(ctx, q, teams.ContributionInput{TeamID: "t1", CustomerID: "bob", Quantity: dec("1")}, false)
		assert.Equal(t, teams.CodeDuplicateContribution, teams.CodeOf(err))

		_, err = l.AddContribution(ctx, q, teams.ContributionInput{TeamID: "nope", CustomerID: "bob", Quantity: dec("1")}, false)
		assert.Equal(t, teams.CodeTeamNotFound, teams.CodeOf(err))
		return nil
	})
	require.NoError(t, err)
}

func TestCreateMemberValidation(t *testing.T) {
	tests := []struct {
		name string
		in   teams.MemberInput
		code teams.Code
	}{
		{"unknown team", teams.MemberInput{TeamID: "nope", CustomerID: "bob", Quantity: dec("5"), AmountPaid: dec("500"), PaymentID: "pay-bob"}, teams.CodeTeamNotFound},
		{"unknown customer", teams.MemberInput{TeamID: "t1", CustomerID: "zed", Quantity: dec("5"), AmountPaid: dec("500"), PaymentID: "pay-bob"}, teams.CodeCustomerNotFound},
		{"payment of someone else", teams.MemberInput{TeamID: "t1", CustomerID: "alice", Quantity: dec("5"), AmountPaid: dec("500"), PaymentID: "pay-bob"}, teams.CodePaymentMismatch},
		{"missing payment", teams.MemberInput{TeamID: "t1", CustomerID: "bob", Quantity: dec("5"), AmountPaid: dec("500"), PaymentID: "pay-x"}, teams.CodePaymentMismatch},
		{"amount off by more than a cent", teams.MemberInput{TeamID: "t1", CustomerID: "bob", Quantity: dec("5"), AmountPaid: dec("499.98"), PaymentID: "pay-bob"}, teams.CodeAmountMismatch},
		{"over capacity", teams.MemberInput{TeamID: "t1", CustomerID: "bob", Quantity: dec("51"), AmountPaid: dec("5100"), PaymentID: "pay-bob"}, teams.CodeJoinNotAllowed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := ledgerStore(t)
			l := &teams.Ledger{Now: func() time.Time { return ledgerNow }}
			ctx := context.Background()
			err := s.InTx(ctx, func(q teams.Queries) error {
				_, _, err := l.CreateMember(ctx, q, tc.in)
				return err
			})
			require.Error(t, err)
			assert.Equal(t, tc.code, teams.CodeOf(err))
		})
	}
}

func TestCreateMemberToleratesRoundingAndRejectsDuplicates(t *testing.T) {
	s := ledgerStore(t)
	l := &teams.Ledger{Now: func() time.Time { return ledgerNow }}
	ctx := context.Background()
	in := teams.MemberInput{TeamID: "t1", CustomerID: "bob", Quantity: dec("5"), AmountPaid: dec("499.99"), PaymentID: "pay-bob"}

	err := s.InTx(ctx, func(q teams.Queries) error {
		m, team, err := l.CreateMember(ctx, q, in)
		require.NoError(t, err)
		assert.Equal(t, teams.PaymentCompleted, m.PaymentStatus)
		assert.Len(t, team.Members, 1)
		assert.True(t, team.TotalCommitted().Equal(decimal.NewFromInt(5)))
		assert.Equal(t, teams.TeamActive, team.Status)

		_, _, err = l.CreateMember(ctx, q, in)
		assert.Equal(t, teams.CodeDuplicateMember, teams.CodeOf(err))
		return nil
	})
	require.NoError(t, err)
}

func TestCreateMemberRequiresCompletedPayment(t *testing.T) {
	s := ledgerStore(t)
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(q teams.Queries) error {
		return q.UpdatePayment(ctx, &teams.Payment{ID: "pay-bob", CustomerID: "bob", TeamID: "t1", Amount: dec("500"), Status: teams.PaymentProcessing})
	}))

	l := &teams.Ledger{Now: func() time.Time { return ledgerNow }}
	err := s.InTx(ctx, func(q teams.Queries) error {
		_, _, err := l.CreateMember(ctx, q, teams.MemberInput{TeamID: "t1", CustomerID: "bob", Quantity: dec("5"), AmountPaid: dec("500"), PaymentID: "pay-bob"})
		return err
	})
	assert.Equal(t, teams.CodePaymentMismatch, teams.CodeOf(err))
	assert.Contains(t, err.Error(), "PROCESSING")
}
