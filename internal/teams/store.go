package teams

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TeamFilter narrows ListTeams. Zero fields are ignored.
type TeamFilter struct {
	CreatedBy     string
	MemberID      string
	ProductID     string
	Status        TeamStatus
	ExpiresAfter  *time.Time
	ExpiresBefore *time.Time
}

// Queries is the persistence surface of the core. Every call made through the
// Queries handed to Store.InTx belongs to the same atomic unit of work.
// Lookups that find nothing return ErrNotFound.
type Queries interface {
	GetProduct(ctx context.Context, id string, forUpdate bool) (*Product, error)
	// DecrementStockSlot removes one stock slot; ErrOutOfStock when none is left.
	DecrementStockSlot(ctx context.Context, productID string) error
	CustomerExists(ctx context.Context, id string) (bool, error)

	InsertTeam(ctx context.Context, t *Team) error
	// GetTeam loads the team with members. forUpdate serializes writers on the team.
	GetTeam(ctx context.Context, id string, forUpdate bool) (*Team, error)
	ListTeams(ctx context.Context, f TeamFilter) ([]Team, error)
	// UpdateTeamStatus persists Status/CompletedAt, only if the stored row is still Active.
	UpdateTeamStatus(ctx context.Context, t *Team) error

	InsertPayment(ctx context.Context, p *Payment) error
	UpdatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id string) (*Payment, error)

	InsertContribution(ctx context.Context, c *Contribution) error
	GetContribution(ctx context.Context, teamID, customerID string) (*Contribution, error)
	SumContributionQuantity(ctx context.Context, teamID string) (decimal.Decimal, error)

	InsertMember(ctx context.Context, m *Member) error
	GetMember(ctx context.Context, teamID, customerID string) (*Member, error)
}

// Store opens atomic units of work. If fn returns an error every write made
// through q is discarded.
type Store interface {
	InTx(ctx context.Context, fn func(q Queries) error) error
}
