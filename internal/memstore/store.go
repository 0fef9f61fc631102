// Package memstore is an in-memory teams.Store. A unit of work runs against a
// private copy of the data under one lock and is swapped in only on success.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-group-buying/internal/teams"
)

type state struct {
	users         map[string]bool // id -> can participate
	products      map[string]teams.Product
	teams         map[string]teams.Team // without Members
	payments      map[string]teams.Payment
	contributions map[string]teams.Contribution
	members       map[string]teams.Member
}

func newState() *state {
	return &state{
		users:         map[string]bool{},
		products:      map[string]teams.Product{},
		teams:         map[string]teams.Team{},
		payments:      map[string]teams.Payment{},
		contributions: map[string]teams.Contribution{},
		members:       map[string]teams.Member{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		users:         cloneMap(s.users),
		products:      cloneMap(s.products),
		teams:         cloneMap(s.teams),
		payments:      cloneMap(s.payments),
		contributions: cloneMap(s.contributions),
		members:       cloneMap(s.members),
	}
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store { return &Store{st: newState()} }

// InTx serializes all units of work, which gives the same per-team ordering a
// row lock would.
func (s *Store) InTx(ctx context.Context, fn func(q teams.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&queries{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// ---- seeding and inspection (dev mode and tests) ----

// AddCustomer registers a user who may create and join teams.
func (s *Store) AddCustomer(id string) { s.addUser(id, true) }

// AddSeller registers a user that exists but cannot participate in teams.
func (s *Store) AddSeller(id string) { s.addUser(id, false) }

func (s *Store) addUser(id string, customer bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[id] = customer
}

func (s *Store) AddProduct(p teams.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

func (s *Store) Product(id string) (teams.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	return p, ok
}

func (s *Store) TeamCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.teams)
}

func (s *Store) Payments() []teams.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]teams.Payment, 0, len(s.st.payments))
	for _, p := range s.st.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) Contributions(teamID string) []teams.Contribution {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []teams.Contribution
	for _, c := range s.st.contributions {
		if c.TeamID == teamID {
			out = append(out, c)
		}
	}
	return out
}

// UpdateTeam edits a stored team in place, e.g. to move it past its deadline.
func (s *Store) UpdateTeam(teamID string, fn func(t *teams.Team)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.st.teams[teamID]
	if !ok {
		return false
	}
	fn(&t)
	s.st.teams[teamID] = t
	return true
}

// ---- teams.Queries ----

type queries struct{ st *state }

func (q *queries) GetProduct(_ context.Context, id string, _ bool) (*teams.Product, error) {
	p, ok := q.st.products[id]
	if !ok {
		return nil, teams.ErrNotFound
	}
	return &p, nil
}

func (q *queries) DecrementStockSlot(_ context.Context, productID string) error {
	p, ok := q.st.products[productID]
	if !ok {
		return teams.ErrNotFound
	}
	if p.Quantity <= 0 {
		return teams.ErrOutOfStock
	}
	p.Quantity--
	q.st.products[productID] = p
	return nil
}

func (q *queries) CustomerExists(_ context.Context, id string) (bool, error) {
	return q.st.users[id], nil
}

func (q *queries) InsertTeam(_ context.Context, t *teams.Team) error {
	if _, ok := q.st.teams[t.ID]; ok {
		return errDuplicate("team", t.ID)
	}
	row := *t
	row.Members = nil
	q.st.teams[t.ID] = row
	return nil
}

func (q *queries) withMembers(t teams.Team) teams.Team {
	t.Members = nil
	for _, m := range q.st.members {
		if m.TeamID == t.ID {
			t.Members = append(t.Members, m)
		}
	}
	sort.Slice(t.Members, func(i, j int) bool { return t.Members[i].JoinedAt.Before(t.Members[j].JoinedAt) })
	return t
}

func (q *queries) GetTeam(_ context.Context, id string, _ bool) (*teams.Team, error) {
	t, ok := q.st.teams[id]
	if !ok {
		return nil, teams.ErrNotFound
	}
	t = q.withMembers(t)
	return &t, nil
}

func (q *queries) ListTeams(_ context.Context, f teams.TeamFilter) ([]teams.Team, error) {
	var out []teams.Team
	for _, t := range q.st.teams {
		if f.CreatedBy != "" && t.CreatedBy != f.CreatedBy {
			continue
		}
		if f.ProductID != "" && t.ProductID != f.ProductID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.ExpiresAfter != nil && !t.ExpiresAt.After(*f.ExpiresAfter) {
			continue
		}
		if f.ExpiresBefore != nil && !t.ExpiresAt.Before(*f.ExpiresBefore) {
			continue
		}
		if f.MemberID != "" {
			if _, ok := q.st.members[memberKey(t.ID, f.MemberID)]; !ok {
				continue
			}
		}
		out = append(out, q.withMembers(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (q *queries) UpdateTeamStatus(_ context.Context, t *teams.Team) error {
	row, ok := q.st.teams[t.ID]
	if !ok {
		return teams.ErrNotFound
	}
	if row.Status != teams.TeamActive {
		return nil
	}
	row.Status = t.Status
	row.CompletedAt = t.CompletedAt
	q.st.teams[t.ID] = row
	return nil
}

func (q *queries) InsertPayment(_ context.Context, p *teams.Payment) error {
	if _, ok := q.st.payments[p.ID]; ok {
		return errDuplicate("payment", p.ID)
	}
	q.st.payments[p.ID] = *p
	return nil
}

func (q *queries) UpdatePayment(_ context.Context, p *teams.Payment) error {
	if _, ok := q.st.payments[p.ID]; !ok {
		return teams.ErrNotFound
	}
	q.st.payments[p.ID] = *p
	return nil
}

func (q *queries) GetPayment(_ context.Context, id string) (*teams.Payment, error) {
	p, ok := q.st.payments[id]
	if !ok {
		return nil, teams.ErrNotFound
	}
	return &p, nil
}

func (q *queries) InsertContribution(_ context.Context, c *teams.Contribution) error {
	key := memberKey(c.TeamID, c.CustomerID)
	if _, ok := q.st.contributions[key]; ok {
		return errDuplicate("contribution", key)
	}
	q.st.contributions[key] = *c
	return nil
}

func (q *queries) GetContribution(_ context.Context, teamID, customerID string) (*teams.Contribution, error) {
	c, ok := q.st.contributions[memberKey(teamID, customerID)]
	if !ok {
		return nil, teams.ErrNotFound
	}
	return &c, nil
}

func (q *queries) SumContributionQuantity(_ context.Context, teamID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, c := range q.st.contributions {
		if c.TeamID == teamID {
			sum = sum.Add(c.Quantity)
		}
	}
	return sum, nil
}

func (q *queries) InsertMember(_ context.Context, m *teams.Member) error {
	key := memberKey(m.TeamID, m.CustomerID)
	if _, ok := q.st.members[key]; ok {
		return errDuplicate("member", key)
	}
	q.st.members[key] = *m
	return nil
}

func (q *queries) GetMember(_ context.Context, teamID, customerID string) (*teams.Member, error) {
	m, ok := q.st.members[memberKey(teamID, customerID)]
	if !ok {
		return nil, teams.ErrNotFound
	}
	return &m, nil
}

func memberKey(teamID, customerID string) string { return teamID + "/" + customerID }

func errDuplicate(kind, key string) error {
	return fmt.Errorf("memstore: duplicate %s %s", kind, key)
}
