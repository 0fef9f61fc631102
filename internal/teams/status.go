package teams

import "fmt"

type TeamStatus string

const (
	TeamActive    TeamStatus = "ACTIVE"
	TeamCompleted TeamStatus = "COMPLETED"
	TeamCancelled TeamStatus = "CANCELLED"
	TeamExpired   TeamStatus = "EXPIRED"
)

var validNextTeam = map[TeamStatus]map[TeamStatus]bool{
	TeamActive:    {TeamCompleted: true, TeamExpired: true, TeamCancelled: true},
	TeamCompleted: {},
	TeamCancelled: {},
	TeamExpired:   {},
}

func CanTransitionTeam(from, to TeamStatus) bool {
	return validNextTeam[from][to]
}

func ParseTeamStatus(s string) (TeamStatus, error) {
	switch st := TeamStatus(s); st {
	case TeamActive, TeamCompleted, TeamCancelled, TeamExpired:
		return st, nil
	}
	return "", fmt.Errorf("unknown team status %q", s)
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
)

// Pending may fail directly when the payment never reaches the gateway.
var validNextPayment = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending:    {PaymentProcessing: true, PaymentFailed: true},
	PaymentProcessing: {PaymentCompleted: true, PaymentFailed: true},
	PaymentCompleted:  {},
	PaymentFailed:     {},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return validNextPayment[from][to]
}

// Transition moves the payment to the next status or reports why it cannot.
func (p *Payment) Transition(to PaymentStatus) error {
	if !CanTransitionPayment(p.Status, to) {
		return fmt.Errorf("payment %s: invalid transition %s -> %s", p.ID, p.Status, to)
	}
	p.Status = to
	return nil
}
