package teams

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TeamView is the read model returned to callers. Derived fields are computed at
// the moment the view is built and never stored.
type TeamView struct {
	ID                         string          `json:"id"`
	Name                       string          `json:"name"`
	Description                string          `json:"description,omitempty"`
	ProductID                  string          `json:"product_id"`
	Unit                       string          `json:"unit"`
	UnitPrice                  decimal.Decimal `json:"unit_price"`
	TargetQuantity             decimal.Decimal `json:"target_quantity"`
	TargetAmount               decimal.Decimal `json:"target_amount"`
	CreatedBy                  string          `json:"created_by"`
	Status                     TeamStatus      `json:"status"`
	CreatedAt                  time.Time       `json:"created_at"`
	ExpiresAt                  time.Time       `json:"expires_at"`
	CompletedAt                *time.Time      `json:"completed_at,omitempty"`
	MemberCount                int             `json:"member_count"`
	TotalCommitted             decimal.Decimal `json:"total_committed"`
	TotalPaid                  decimal.Decimal `json:"total_paid"`
	RemainingQuantity          decimal.Decimal `json:"remaining_quantity"`
	RemainingAmount            decimal.Decimal `json:"remaining_amount"`
	ProgressPercentage         decimal.Decimal `json:"progress_percentage"`
	QuantityProgressPercentage decimal.Decimal `json:"quantity_progress_percentage"`
	IsQuantityTargetReached    bool            `json:"is_quantity_target_reached"`
	IsAmountTargetReached      bool            `json:"is_amount_target_reached"`
	IsSuccessful               bool            `json:"is_successful"`
	IsExpired                  bool            `json:"is_expired"`
	CanJoin                    bool            `json:"can_join"`
	Countdown                  string          `json:"countdown"`
	UrgencyLevel               string          `json:"urgency_level"`
	ProgressDisplay            string          `json:"progress_display"`
	StatusDisplay              string          `json:"status_display"`
	Members                    []MemberView    `json:"members,omitempty"`
}

type MemberView struct {
	ID            string          `json:"id"`
	TeamID        string          `json:"team_id"`
	CustomerID    string          `json:"customer_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	PaymentID     string          `json:"payment_id"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	IsCreator     bool            `json:"is_creator"`
	JoinedAt      time.Time       `json:"joined_at"`
}

func (t *Team) View(now time.Time, withMembers bool) TeamView {
	v := TeamView{
		ID:                         t.ID,
		Name:                       t.Name,
		Description:                t.Description,
		ProductID:                  t.ProductID,
		Unit:                       t.Unit.Display(),
		UnitPrice:                  t.UnitPrice,
		TargetQuantity:             t.TargetQuantity,
		TargetAmount:               t.TargetAmount,
		CreatedBy:                  t.CreatedBy,
		Status:                     t.Status,
		CreatedAt:                  t.CreatedAt,
		ExpiresAt:                  t.ExpiresAt,
		CompletedAt:                t.CompletedAt,
		MemberCount:                len(t.Members),
		TotalCommitted:             t.TotalCommitted(),
		TotalPaid:                  t.TotalPaid(),
		RemainingQuantity:          t.RemainingQuantity(),
		RemainingAmount:            t.RemainingAmount(),
		ProgressPercentage:         t.ProgressPercentage(),
		QuantityProgressPercentage: t.QuantityProgressPercentage(),
		IsQuantityTargetReached:    t.IsQuantityTargetReached(),
		IsAmountTargetReached:      t.IsAmountTargetReached(),
		IsSuccessful:               t.IsSuccessful(),
		IsExpired:                  t.IsExpired(now),
		CanJoin:                    t.CanJoin(now),
		Countdown:                  t.Countdown(now),
		UrgencyLevel:               t.UrgencyLevel(now),
		ProgressDisplay:            t.ProgressDisplay(),
		StatusDisplay:              t.StatusDisplay(),
	}
	if withMembers {
		v.Members = make([]MemberView, 0, len(t.Members))
		for _, m := range t.orderedMembers() {
			v.Members = append(v.Members, t.memberView(m))
		}
	}
	return v
}

func (t *Team) memberView(m Member) MemberView {
	return MemberView{
		ID:            m.ID,
		TeamID:        m.TeamID,
		CustomerID:    m.CustomerID,
		Quantity:      m.Quantity,
		AmountPaid:    m.AmountPaid,
		PaymentID:     m.PaymentID,
		PaymentStatus: m.PaymentStatus,
		IsCreator:     m.CustomerID == t.CreatedBy,
		JoinedAt:      m.JoinedAt,
	}
}

// orderedMembers lists the creator first, then everyone else by join time.
func (t *Team) orderedMembers() []Member {
	out := append([]Member(nil), t.Members...)
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := out[i].CustomerID == t.CreatedBy, out[j].CustomerID == t.CreatedBy
		if ci != cj {
			return ci
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Snapshot is the compact status record cached for fast status reads and
// carried by every team event.
type Snapshot struct {
	TeamID         string          `json:"team_id"`
	ProductID      string          `json:"product_id"`
	Status         TeamStatus      `json:"status"`
	MemberCount    int             `json:"member_count"`
	TotalCommitted decimal.Decimal `json:"total_committed"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	TargetQuantity decimal.Decimal `json:"target_quantity"`
	TargetAmount   decimal.Decimal `json:"target_amount"`
	ExpiresAt      time.Time       `json:"expires_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
	// Version orders snapshots of one team; a later committed state never
	// has a lower version.
	Version int64 `json:"version"`
}

func (t *Team) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		TeamID:         t.ID,
		ProductID:      t.ProductID,
		Status:         t.Status,
		MemberCount:    len(t.Members),
		TotalCommitted: t.TotalCommitted(),
		TotalPaid:      t.TotalPaid(),
		TargetQuantity: t.TargetQuantity,
		TargetAmount:   t.TargetAmount,
		ExpiresAt:      t.ExpiresAt,
		CompletedAt:    t.CompletedAt,
		UpdatedAt:      now.UTC(),
		Version:        t.stateVersion(),
	}
}

// stateVersion grows with every committed change: status only ever leaves
// Active and members are never removed.
func (t *Team) stateVersion() int64 {
	var rank int64
	if t.Status != TeamActive {
		rank = 1
	}
	return rank<<32 | int64(len(t.Members))
}

// Stale reports whether a cached snapshot can no longer be trusted as-is:
// an Active snapshot past its expiry must be re-read from the store.
func (s Snapshot) Stale(now time.Time) bool {
	return s.Status == TeamActive && now.After(s.ExpiresAt)
}
