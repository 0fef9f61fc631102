package teams

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeamTransitions(t *testing.T) {
	assert.True(t, CanTransitionTeam(TeamActive, TeamCompleted))
	assert.True(t, CanTransitionTeam(TeamActive, TeamExpired))
	assert.True(t, CanTransitionTeam(TeamActive, TeamCancelled))
	for _, from := range []TeamStatus{TeamCompleted, TeamExpired, TeamCancelled} {
		for _, to := range []TeamStatus{TeamActive, TeamCompleted, TeamExpired, TeamCancelled} {
			assert.False(t, CanTransitionTeam(from, to), "%s -> %s", from, to)
		}
	}
}

func TestParseTeamStatus(t *testing.T) {
	st, err := ParseTeamStatus("EXPIRED")
	require.NoError(t, err)
	assert.Equal(t, TeamExpired, st)

	_, err = ParseTeamStatus("expired")
	assert.Error(t, err)
}

func TestPaymentTransition(t *testing.T) {
	tests := []struct {
		from, to PaymentStatus
		ok       bool
	}{
		{PaymentPending, PaymentProcessing, true},
		{PaymentPending, PaymentFailed, true},
		{PaymentPending, PaymentCompleted, false},
		{PaymentProcessing, PaymentCompleted, true},
		{PaymentProcessing, PaymentFailed, true},
		{PaymentCompleted, PaymentFailed, false},
		{PaymentFailed, PaymentProcessing, false},
	}
	for _, tc := range tests {
		p := &Payment{ID: "p1", Status: tc.from}
		err := p.Transition(tc.to)
		if tc.ok {
			assert.NoError(t, err)
			assert.Equal(t, tc.to, p.Status)
		} else {
			assert.Error(t, err)
			assert.Equal(t, tc.from, p.Status)
		}
	}
}

func TestErrorMatchesOnCode(t *testing.T) {
	err := error(newErr(KindConflict, CodeAlreadyMember, "You're already a member"))
	assert.True(t, errors.Is(err, &Error{Code: CodeAlreadyMember}))
	assert.False(t, errors.Is(err, &Error{Code: CodeTeamNotFound}))
	assert.Equal(t, CodeAlreadyMember, CodeOf(err))
	assert.Equal(t, Code(""), CodeOf(errors.New("boom")))

	assert.Equal(t, KindConflict, joinNotAllowed("x", RejectCapacity).Kind)
	assert.Equal(t, KindValidation, joinNotAllowed("x", RejectQuantity).Kind)
	assert.Equal(t, KindState, joinNotAllowed("x", RejectExpired).Kind)
}

func TestMeasurementUnitDisplay(t *testing.T) {
	assert.Equal(t, "kg", UnitKilogram.Display())
	assert.Equal(t, "L", UnitLiter.Display())
	assert.Equal(t, "unit", MeasurementUnit("crate").Display())
}
