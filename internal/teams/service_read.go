package teams

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// loadTeam fetches a team and brings its status up to date, persisting any
// transition. Callers publish transitions after their unit of work commits.
func (s *Service) loadTeam(ctx context.Context, q Queries, id string, forUpdate bool, now time.Time) (*Team, bool, error) {
	t, err := q.GetTeam(ctx, id, forUpdate)
	if errors.Is(err, ErrNotFound) {
		return nil, false, errTeamNotFound()
	}
	if err != nil {
		return nil, false, fmt.Errorf("load team: %w", err)
	}
	if !t.Reconcile(now) {
		return t, false, nil
	}
	if err := q.UpdateTeamStatus(ctx, t); err != nil {
		return nil, false, fmt.Errorf("update team status: %w", err)
	}
	return t, true, nil
}

// readTeam runs loadTeam in its own unit of work and reports a transition.
func (s *Service) readTeam(ctx context.Context, id string) (*Team, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errInvalid("Team ID is required")
	}
	var (
		t       *Team
		changed bool
	)
	err := s.Store.InTx(ctx, func(q Queries) error {
		var err error
		t, changed, err = s.loadTeam(ctx, q, id, false, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.transitioned(ctx, t)
	}
	return t, nil
}

func (s *Service) GetTeamDetails(ctx context.Context, teamID string) (*TeamView, error) {
	t, err := s.readTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	v := t.View(s.now(), false)
	return &v, nil
}

func (s *Service) GetTeamWithMembers(ctx context.Context, teamID string) (*TeamView, error) {
	t, err := s.readTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	v := t.View(s.now(), true)
	return &v, nil
}

// GetTeamStatus returns the compact status record of one team.
func (s *Service) GetTeamStatus(ctx context.Context, teamID string) (Snapshot, error) {
	t, err := s.readTeam(ctx, teamID)
	if err != nil {
		return Snapshot{}, err
	}
	return t.Snapshot(s.now()), nil
}

// listTeams loads and reconciles every team matching f. Persisted transitions
// are published once the unit of work commits.
func (s *Service) listTeams(ctx context.Context, f TeamFilter) ([]Team, error) {
	now := s.now()
	var (
		list    []Team
		changed []*Team
	)
	err := s.Store.InTx(ctx, func(q Queries) error {
		var err error
		list, err = q.ListTeams(ctx, f)
		if err != nil {
			return fmt.Errorf("list teams: %w", err)
		}
		changed = changed[:0]
		for i := range list {
			if !list[i].Reconcile(now) {
				continue
			}
			if err := q.UpdateTeamStatus(ctx, &list[i]); err != nil {
				return fmt.Errorf("update team status: %w", err)
			}
			changed = append(changed, &list[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, t := range changed {
		s.transitioned(ctx, t)
	}
	return list, nil
}

func (s *Service) views(list []Team, keep func(*Team) bool) []TeamView {
	now := s.now()
	out := make([]TeamView, 0, len(list))
	for i := range list {
		if keep != nil && !keep(&list[i]) {
			continue
		}
		out = append(out, list[i].View(now, false))
	}
	return out
}

func byExpiry(list []Team) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].ExpiresAt.Before(list[j].ExpiresAt) })
}

// byRelevance puts Active teams first, soonest expiry first, then the rest newest first.
func byRelevance(list []Team) {
	sort.SliceStable(list, func(i, j int) bool {
		ai, aj := list[i].Status == TeamActive, list[j].Status == TeamActive
		if ai != aj {
			return ai
		}
		if ai {
			return list[i].ExpiresAt.Before(list[j].ExpiresAt)
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

// GetTeamsByCustomer lists the teams a customer created.
func (s *Service) GetTeamsByCustomer(ctx context.Context, customerID string) ([]TeamView, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, errInvalid("Customer ID is required")
	}
	list, err := s.listTeams(ctx, TeamFilter{CreatedBy: customerID})
	if err != nil {
		return nil, err
	}
	byRelevance(list)
	return s.views(list, nil), nil
}

// GetTeamsJoinedByCustomer lists the teams a customer is a member of, including
// the ones they created.
func (s *Service) GetTeamsJoinedByCustomer(ctx context.Context, customerID string) ([]TeamView, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, errInvalid("Customer ID is required")
	}
	list, err := s.listTeams(ctx, TeamFilter{MemberID: customerID})
	if err != nil {
		return nil, err
	}
	byRelevance(list)
	return s.views(list, nil), nil
}

func (s *Service) GetTeamsByProduct(ctx context.Context, productID string) ([]TeamView, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, errInvalid("Product ID is required")
	}
	list, err := s.listTeams(ctx, TeamFilter{ProductID: productID})
	if err != nil {
		return nil, err
	}
	byRelevance(list)
	return s.views(list, nil), nil
}

// GetActiveTeams lists joinable teams, soonest expiry first.
func (s *Service) GetActiveTeams(ctx context.Context) ([]TeamView, error) {
	list, err := s.listTeams(ctx, TeamFilter{Status: TeamActive})
	if err != nil {
		return nil, err
	}
	byExpiry(list)
	now := s.now()
	return s.views(list, func(t *Team) bool { return t.CanJoin(now) }), nil
}

// maxExpiringHours bounds the window: no Active team expires more than
// TeamLifetime from now, so anything wider returns the same list.
const maxExpiringHours = int(TeamLifetime/time.Hour) + 1

// GetExpiringTeams lists Active teams that expire within the next hours.
func (s *Service) GetExpiringTeams(ctx context.Context, hours int) ([]TeamView, error) {
	if hours <= 0 {
		return nil, errInvalid("Hours must be greater than 0")
	}
	window := time.Duration(min(hours, maxExpiringHours)) * time.Hour
	now := s.now()
	until := now.Add(window)
	list, err := s.listTeams(ctx, TeamFilter{Status: TeamActive, ExpiresAfter: &now, ExpiresBefore: &until})
	if err != nil {
		return nil, err
	}
	byExpiry(list)
	return s.views(list, func(t *Team) bool { return t.Status == TeamActive }), nil
}

// GetTeamsByStatus lists teams in a status. Active means joinable.
func (s *Service) GetTeamsByStatus(ctx context.Context, status TeamStatus) ([]TeamView, error) {
	if _, err := ParseTeamStatus(string(status)); err != nil {
		return nil, errInvalid("Unknown team status %q", status)
	}
	if status == TeamActive {
		return s.GetActiveTeams(ctx)
	}
	list, err := s.listTeams(ctx, TeamFilter{Status: status})
	if err != nil {
		return nil, err
	}
	// Active teams reconciled into status during this read are not in list;
	// they show up on the next call.
	byRelevance(list)
	return s.views(list, func(t *Team) bool { return t.Status == status }), nil
}

// SweepExpired settles every Active team whose expiry has passed and returns
// how many changed status. Each team is settled under its own row lock.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()
	var due []Team
	err := s.Store.InTx(ctx, func(q Queries) error {
		var err error
		due, err = q.ListTeams(ctx, TeamFilter{Status: TeamActive, ExpiresBefore: &now})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list due teams: %w", err)
	}

	n := 0
	for _, d := range due {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		var t *Team
		err := s.Store.InTx(ctx, func(q Queries) error {
			cur, err := q.GetTeam(ctx, d.ID, true)
			if err != nil {
				return err
			}
			if !cur.Reconcile(s.now()) {
				return nil
			}
			if err := q.UpdateTeamStatus(ctx, cur); err != nil {
				return err
			}
			t = cur
			return nil
		})
		if err != nil {
			s.log().Error("sweep team", "team_id", d.ID, "error", err)
			continue
		}
		if t != nil {
			n++
			s.transitioned(ctx, t)
		}
	}
	return n, nil
}

// RunSweeper calls SweepExpired every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil && ctx.Err() == nil {
				s.log().Error("sweep expired teams", "error", err)
				continue
			}
			if n > 0 {
				s.log().Info("swept expired teams", "count", n)
			}
		}
	}
}
