package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-group-buying/internal/teams"
)

// Store: teams.Store di atas pgx. Satu InTx = satu transaksi Postgres.
type Store struct{ DB *pgxpool.Pool }

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) InTx(ctx context.Context, fn func(q teams.Queries) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&queries{tx: tx}); err != nil {
		return err // rollback via defer
	}
	return tx.Commit(ctx)
}

type queries struct{ tx pgx.Tx }

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return teams.ErrNotFound
	}
	return err
}

func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ---- products & users ----

func (q *queries) GetProduct(ctx context.Context, id string, forUpdate bool) (*teams.Product, error) {
	sql := `SELECT id, name, unit_price, package_size, unit, quantity, is_active, created_at, updated_at
	        FROM products WHERE id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var p teams.Product
	var unit string
	err := q.tx.QueryRow(ctx, sql, id).Scan(&p.ID, &p.Name, &p.UnitPrice, &p.PackageSize, &unit,
		&p.Quantity, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	p.Unit = teams.MeasurementUnit(unit)
	return &p, nil
}

// DecrementStockSlot: 1 team = 1 slot stok, guard supaya tidak pernah negatif.
func (q *queries) DecrementStockSlot(ctx context.Context, productID string) error {
	ct, err := q.tx.Exec(ctx, `
		UPDATE products SET quantity = quantity - 1, updated_at = now()
		WHERE id=$1 AND quantity > 0`, productID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := q.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, productID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return teams.ErrNotFound
	}
	return teams.ErrOutOfStock
}

// CustomerExists: seller juga user, tapi bukan customer.
func (q *queries) CustomerExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := q.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1 AND kind='customer')`, id).Scan(&ok)
	return ok, err
}

// ---- teams ----

const teamColumns = `t.id, t.name, t.description, t.product_id, t.unit, t.unit_price, t.target_quantity,
	t.target_amount, t.created_by, t.status, t.created_at, t.expires_at, t.completed_at`

func scanTeam(row pgx.Row) (teams.Team, error) {
	var t teams.Team
	var unit, status string
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.ProductID, &unit, &t.UnitPrice, &t.TargetQuantity,
		&t.TargetAmount, &t.CreatedBy, &status, &t.CreatedAt, &t.ExpiresAt, &t.CompletedAt)
	t.Unit = teams.MeasurementUnit(unit)
	t.Status = teams.TeamStatus(status)
	return t, err
}

func (q *queries) InsertTeam(ctx context.Context, t *teams.Team) error {
	_, err := q.tx.Exec(ctx, `
		INSERT INTO teams(id, name, description, product_id, unit, unit_price, target_quantity,
		                  target_amount, created_by, status, created_at, expires_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		t.ID, t.Name, t.Description, t.ProductID, string(t.Unit), t.UnitPrice, t.TargetQuantity,
		t.TargetAmount, t.CreatedBy, string(t.Status), t.CreatedAt, t.ExpiresAt, t.CompletedAt)
	return err
}

// GetTeam: forUpdate = lock baris team, semua writer di team yg sama jadi antre.
func (q *queries) GetTeam(ctx context.Context, id string, forUpdate bool) (*teams.Team, error) {
	sql := `SELECT ` + teamColumns + ` FROM teams t WHERE t.id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	t, err := scanTeam(q.tx.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, notFound(err)
	}
	members, err := q.membersOf(ctx, []string{t.ID})
	if err != nil {
		return nil, err
	}
	t.Members = members[t.ID]
	return &t, nil
}

func (q *queries) ListTeams(ctx context.Context, f teams.TeamFilter) ([]teams.Team, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.CreatedBy != "" {
		add("t.created_by = $%d", f.CreatedBy)
	}
	if f.ProductID != "" {
		add("t.product_id = $%d", f.ProductID)
	}
	if f.Status != "" {
		add("t.status = $%d", string(f.Status))
	}
	if f.ExpiresAfter != nil {
		add("t.expires_at > $%d", *f.ExpiresAfter)
	}
	if f.ExpiresBefore != nil {
		add("t.expires_at < $%d", *f.ExpiresBefore)
	}
	if f.MemberID != "" {
		add("EXISTS (SELECT 1 FROM team_members m WHERE m.team_id = t.id AND m.customer_id = $%d)", f.MemberID)
	}

	sql := `SELECT ` + teamColumns + ` FROM teams t`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY t.created_at DESC`

	rows, err := q.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var out []teams.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	members, err := q.membersOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Members = members[out[i].ID]
	}
	return out, nil
}

// UpdateTeamStatus: hanya dari ACTIVE; kalau sudah final, no-op.
func (q *queries) UpdateTeamStatus(ctx context.Context, t *teams.Team) error {
	_, err := q.tx.Exec(ctx, `
		UPDATE teams SET status=$2, completed_at=$3
		WHERE id=$1 AND status='ACTIVE'`, t.ID, string(t.Status), t.CompletedAt)
	return err
}

// ---- payments ----

func (q *queries) InsertPayment(ctx context.Context, p *teams.Payment) error {
	_, err := q.tx.Exec(ctx, `
		INSERT INTO payments(id, customer_id, team_id, amount, method, status, transaction_reference,
		                     failure_reason, simulate_success, simulation_delay_seconds, created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.CustomerID, p.TeamID, p.Amount, string(p.Method), string(p.Status), p.TransactionReference,
		p.FailureReason, p.SimulateSuccess, p.SimulationDelaySeconds, p.CreatedAt, p.CompletedAt)
	return err
}

func (q *queries) UpdatePayment(ctx context.Context, p *teams.Payment) error {
	ct, err := q.tx.Exec(ctx, `
		UPDATE payments SET status=$2, transaction_reference=$3, failure_reason=$4, completed_at=$5
		WHERE id=$1`, p.ID, string(p.Status), p.TransactionReference, p.FailureReason, p.CompletedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return teams.ErrNotFound
	}
	return nil
}

func (q *queries) GetPayment(ctx context.Context, id string) (*teams.Payment, error) {
	var p teams.Payment
	var method, status string
	err := q.tx.QueryRow(ctx, `
		SELECT id, customer_id, team_id, amount, method, status, transaction_reference, failure_reason,
		       simulate_success, simulation_delay_seconds, created_at, completed_at
		FROM payments WHERE id=$1`, id).Scan(&p.ID, &p.CustomerID, &p.TeamID, &p.Amount, &method, &status,
		&p.TransactionReference, &p.FailureReason, &p.SimulateSuccess, &p.SimulationDelaySeconds,
		&p.CreatedAt, &p.CompletedAt)
	if err != nil {
		return nil, notFound(err)
	}
	p.Method = teams.PaymentMethod(method)
	p.Status = teams.PaymentStatus(status)
	return &p, nil
}

// ---- contributions ----

func (q *queries) InsertContribution(ctx context.Context, c *teams.Contribution) error {
	_, err := q.tx.Exec(ctx, `
		INSERT INTO contributions(id, team_id, customer_id, quantity, amount, payment_id, is_creator, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ID, c.TeamID, c.CustomerID, c.Quantity, c.Amount, c.PaymentID, c.IsCreator, c.CreatedAt)
	if uniqueViolation(err) {
		return fmt.Errorf("contribution %s/%s: %w", c.TeamID, c.CustomerID, err)
	}
	return err
}

func (q *queries) GetContribution(ctx context.Context, teamID, customerID string) (*teams.Contribution, error) {
	var c teams.Contribution
	err := q.tx.QueryRow(ctx, `
		SELECT id, team_id, customer_id, quantity, amount, payment_id, is_creator, created_at
		FROM contributions WHERE team_id=$1 AND customer_id=$2`, teamID, customerID).
		Scan(&c.ID, &c.TeamID, &c.CustomerID, &c.Quantity, &c.Amount, &c.PaymentID, &c.IsCreator, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (q *queries) SumContributionQuantity(ctx context.Context, teamID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := q.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM contributions WHERE team_id=$1`, teamID).Scan(&sum)
	return sum, err
}

// ---- members ----

func (q *queries) InsertMember(ctx context.Context, m *teams.Member) error {
	_, err := q.tx.Exec(ctx, `
		INSERT INTO team_members(id, team_id, customer_id, quantity, amount_paid, payment_id, joined_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.TeamID, m.CustomerID, m.Quantity, m.AmountPaid, m.PaymentID, m.JoinedAt)
	if uniqueViolation(err) {
		return fmt.Errorf("member %s/%s: %w", m.TeamID, m.CustomerID, err)
	}
	return err
}

// payment_status diambil live dari tabel payments, bukan disimpan dobel.
const memberColumns = `m.id, m.team_id, m.customer_id, m.quantity, m.amount_paid, m.payment_id, p.status, m.joined_at`

func scanMember(row pgx.Row) (teams.Member, error) {
	var m teams.Member
	var status string
	err := row.Scan(&m.ID, &m.TeamID, &m.CustomerID, &m.Quantity, &m.AmountPaid, &m.PaymentID, &status, &m.JoinedAt)
	m.PaymentStatus = teams.PaymentStatus(status)
	return m, err
}

func (q *queries) GetMember(ctx context.Context, teamID, customerID string) (*teams.Member, error) {
	m, err := scanMember(q.tx.QueryRow(ctx, `
		SELECT `+memberColumns+`
		FROM team_members m JOIN payments p ON p.id = m.payment_id
		WHERE m.team_id=$1 AND m.customer_id=$2`, teamID, customerID))
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (q *queries) membersOf(ctx context.Context, teamIDs []string) (map[string][]teams.Member, error) {
	rows, err := q.tx.Query(ctx, `
		SELECT `+memberColumns+`
		FROM team_members m JOIN payments p ON p.id = m.payment_id
		WHERE m.team_id = ANY($1)
		ORDER BY m.joined_at`, teamIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]teams.Member, len(teamIDs))
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out[m.TeamID] = append(out[m.TeamID], m)
	}
	return out, rows.Err()
}

// ---- seeding (cmd/migrate seed, dev) ----

// UpsertUser dan UpsertProduct dipakai untuk seed data dev.
func (s *Store) UpsertUser(ctx context.Context, id, kind string) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO users(id, kind) VALUES ($1,$2)
		ON CONFLICT (id) DO UPDATE SET kind = EXCLUDED.kind`, id, kind)
	return err
}

func (s *Store) UpsertProduct(ctx context.Context, p teams.Product) error {
	now := time.Now().UTC()
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products(id, name, unit_price, package_size, unit, quantity, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, unit_price=EXCLUDED.unit_price,
		    package_size=EXCLUDED.package_size, unit=EXCLUDED.unit, quantity=EXCLUDED.quantity,
		    is_active=EXCLUDED.is_active, updated_at=EXCLUDED.updated_at`,
		p.ID, p.Name, p.UnitPrice, p.PackageSize, string(p.Unit), p.Quantity, p.IsActive, now)
	return err
}
