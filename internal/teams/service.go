package teams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentProcessor resolves a payment to Completed or Failed. It never returns
// an error: failures are recorded on the payment itself.
type PaymentProcessor interface {
	Process(ctx context.Context, p *Payment) bool
}

// Observer receives business counters. Implementations must be cheap.
type Observer interface {
	TeamCreated()
	JoinResult(result string)
	PaymentResolved(status PaymentStatus)
	TeamTransitioned(to TeamStatus)
}

type nopObserver struct{}

func (nopObserver) TeamCreated()                  {}
func (nopObserver) JoinResult(string)             {}
func (nopObserver) PaymentResolved(PaymentStatus) {}
func (nopObserver) TeamTransitioned(TeamStatus)   {}

const defaultPaymentDelaySeconds = 2

type Service struct {
	Store     Store
	Payments  PaymentProcessor
	Publisher Publisher // optional
	Observer  Observer  // optional
	Log       *slog.Logger
	Producer  string // producer name stamped on events

	// PaymentDelaySeconds is the simulated gateway latency; negative means none.
	PaymentDelaySeconds int
	Now                 func() time.Time
}

type CreateTeamRequest struct {
	CustomerID      string
	ProductID       string
	Name            string
	Description     string
	CreatorQuantity decimal.Decimal
	PaymentMethod   PaymentMethod
	SimulateSuccess bool
}

type JoinTeamRequest struct {
	CustomerID      string
	TeamID          string
	Quantity        decimal.Decimal
	PaymentMethod   PaymentMethod
	SimulateSuccess bool
}

type MembershipResult struct {
	Member               MemberView `json:"member"`
	Team                 TeamView   `json:"team"`
	TransactionReference string     `json:"transaction_reference"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func (s *Service) observer() Observer {
	if s.Observer != nil {
		return s.Observer
	}
	return nopObserver{}
}

func (s *Service) ledger() *Ledger { return &Ledger{Now: s.Now} }

func (r CreateTeamRequest) validate() error {
	switch {
	case strings.TrimSpace(r.CustomerID) == "":
		return errInvalid("Customer ID is required")
	case strings.TrimSpace(r.ProductID) == "":
		return errInvalid("Product ID is required")
	case len(r.Name) > 100:
		return errInvalid("Name must be at most 100 characters")
	case len(r.Description) > 500:
		return errInvalid("Description must be at most 500 characters")
	case !r.CreatorQuantity.IsPositive():
		return errInvalid("Creator quantity must be greater than 0")
	case !r.PaymentMethod.Valid():
		return errInvalid("Unsupported payment method %q", r.PaymentMethod)
	}
	return nil
}

func (r JoinTeamRequest) validate() error {
	switch {
	case strings.TrimSpace(r.CustomerID) == "":
		return errInvalid("Customer ID is required")
	case strings.TrimSpace(r.TeamID) == "":
		return errInvalid("Team ID is required")
	case !r.Quantity.IsPositive():
		return errInvalid("Quantity must be greater than 0")
	case !r.PaymentMethod.Valid():
		return errInvalid("Unsupported payment method %q", r.PaymentMethod)
	}
	return nil
}

// checkProduct applies the create-team product rules and returns the creator amount.
func checkProduct(p *Product, creatorQty decimal.Decimal) (decimal.Decimal, error) {
	if p == nil || !p.InStock() {
		return decimal.Zero, newErr(KindNotFound, CodeProductUnavailable, "Product is not available")
	}
	if creatorQty.GreaterThan(p.PackageSize) {
		return decimal.Zero, newErr(KindValidation, CodeInvalidQuantity, "Creator's quantity cannot be greater than target quantity")
	}
	totalPrice := p.UnitPrice.Mul(p.PackageSize)
	amount := creatorQty.Mul(p.UnitPrice)
	if amount.GreaterThan(totalPrice) {
		return decimal.Zero, newErr(KindValidation, CodeInvalidAmount, "Creator's amount cannot be greater than total product price")
	}
	return amount, nil
}

func (s *Service) newPayment(teamID, customerID string, amount decimal.Decimal, method PaymentMethod, simulate bool, now time.Time) *Payment {
	delay := s.PaymentDelaySeconds
	if delay == 0 {
		delay = defaultPaymentDelaySeconds
	}
	if delay < 0 {
		delay = 0
	}
	return &Payment{
		ID:                     uuid.NewString(),
		CustomerID:             customerID,
		TeamID:                 teamID,
		Amount:                 amount,
		Method:                 method,
		Status:                 PaymentPending,
		SimulateSuccess:        simulate,
		SimulationDelaySeconds: delay,
		CreatedAt:              now,
	}
}

func (s *Service) resolvePayment(ctx context.Context, p *Payment) bool {
	ok := s.Payments.Process(ctx, p)
	s.observer().PaymentResolved(p.Status)
	if !ok {
		s.log().Warn("payment failed", "payment_id", p.ID, "team_id", p.TeamID, "customer_id", p.CustomerID, "reason", p.FailureReason)
	}
	return ok
}

// CreateTeam validates the product, resolves the creator's payment, then writes
// team, payment, contribution, stock slot and creator membership atomically.
// The payment is resolved before the transaction opens so no lock is held
// across the gateway delay.
func (s *Service) CreateTeam(ctx context.Context, req CreateTeamRequest) (*TeamView, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	now := s.now()

	var product *Product
	err := s.Store.InTx(ctx, func(q Queries) error {
		p, err := q.GetProduct(ctx, req.ProductID, false)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("load product: %w", err)
		}
		product = p
		ok, err := q.CustomerExists(ctx, req.CustomerID)
		if err != nil {
			return fmt.Errorf("check customer: %w", err)
		}
		if !ok {
			return newErr(KindNotFound, CodeCustomerNotFound, "Customer not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	amount, err := checkProduct(product, req.CreatorQuantity)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = product.Name
	}
	team := &Team{
		ID:             uuid.NewString(),
		Name:           name,
		Description:    req.Description,
		ProductID:      product.ID,
		Unit:           product.Unit,
		UnitPrice:      product.UnitPrice,
		TargetQuantity: product.PackageSize,
		TargetAmount:   amount,
		CreatedBy:      req.CustomerID,
		Status:         TeamActive,
		CreatedAt:      now,
		ExpiresAt:      now.Add(TeamLifetime),
	}

	pay := s.newPayment(team.ID, req.CustomerID, amount, req.PaymentMethod, req.SimulateSuccess, now)
	if !s.resolvePayment(ctx, pay) {
		s.publishPaymentFailed(context.WithoutCancel(ctx), pay)
		return nil, errPaymentFailed(pay.FailureReason)
	}

	var created *Team
	err = s.Store.InTx(ctx, func(q Queries) error {
		p, err := q.GetProduct(ctx, product.ID, true)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("lock product: %w", err)
		}
		if p == nil || !p.InStock() {
			return newErr(KindNotFound, CodeProductUnavailable, "Product is not available")
		}
		if err := q.InsertTeam(ctx, team); err != nil {
			return fmt.Errorf("insert team: %w", err)
		}
		if err := q.InsertPayment(ctx, pay); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		l := s.ledger()
		if _, err := l.AddContribution(ctx, q, ContributionInput{
			TeamID:     team.ID,
			CustomerID: req.CustomerID,
			Quantity:   req.CreatorQuantity,
			Amount:     amount,
			PaymentID:  pay.ID,
		}, true); err != nil {
			return err
		}
		if err := q.DecrementStockSlot(ctx, product.ID); err != nil {
			if errors.Is(err, ErrOutOfStock) {
				return newErr(KindNotFound, CodeProductUnavailable, "Product is not available")
			}
			return fmt.Errorf("decrement stock: %w", err)
		}
		if _, _, err := l.CreateMember(ctx, q, MemberInput{
			TeamID:     team.ID,
			CustomerID: req.CustomerID,
			Quantity:   req.CreatorQuantity,
			AmountPaid: amount,
			PaymentID:  pay.ID,
		}); err != nil {
			return err
		}
		created, err = q.GetTeam(ctx, team.ID, false)
		if err != nil {
			return fmt.Errorf("reload team: %w", err)
		}
		return nil
	})
	if err != nil {
		s.log().Error("create team rolled back", "team_id", team.ID, "payment_id", pay.ID, "customer_id", req.CustomerID, "error", err)
		return nil, err
	}

	s.observer().TeamCreated()
	s.log().Info("team created", "team_id", created.ID, "product_id", created.ProductID, "customer_id", req.CustomerID,
		"target_quantity", created.TargetQuantity.String(), "target_amount", created.TargetAmount.String())
	s.publishTeam(ctx, EventTeamCreated, created, req.CustomerID, "")
	if created.Status != TeamActive {
		s.transitioned(ctx, created)
	}

	v := created.View(s.now(), true)
	return &v, nil
}

// JoinTeam adds a customer to a team. The payment row is persisted as
// Processing, resolved outside any transaction, and then the membership is
// written under the team's row lock after re-validating capacity.
func (s *Service) JoinTeam(ctx context.Context, req JoinTeamRequest) (*MembershipResult, error) {
	if err := req.validate(); err != nil {
		s.observer().JoinResult("rejected")
		return nil, err
	}
	now := s.now()

	var (
		pay      *Payment
		settled  *Team
		rejected error
	)
	err := s.Store.InTx(ctx, func(q Queries) error {
		t, changed, err := s.loadTeam(ctx, q, req.TeamID, false, now)
		if err != nil {
			return err
		}
		if changed {
			settled = t
		}
		// A rejection still commits so a status transition found here sticks.
		if rej, reason := t.checkJoin(req.Quantity, now); rej != RejectNone {
			rejected = joinNotAllowed(reason, rej)
			return nil
		}
		if err := s.ensureNotMember(ctx, q, t.ID, req.CustomerID); err != nil {
			return err
		}
		ok, err := q.CustomerExists(ctx, req.CustomerID)
		if err != nil {
			return fmt.Errorf("check customer: %w", err)
		}
		if !ok {
			return newErr(KindNotFound, CodeCustomerNotFound, "Customer not found")
		}

		pay = s.newPayment(t.ID, req.CustomerID, req.Quantity.Mul(t.UnitPrice), req.PaymentMethod, req.SimulateSuccess, now)
		if err := pay.Transition(PaymentProcessing); err != nil {
			return err
		}
		if err := q.InsertPayment(ctx, pay); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return nil
	})
	if err == nil && settled != nil {
		s.transitioned(ctx, settled)
	}
	if err == nil {
		err = rejected
	}
	if err != nil {
		s.joinFailed(err)
		return nil, err
	}

	if !s.resolvePayment(ctx, pay) {
		s.savePayment(ctx, pay)
		s.publishPaymentFailed(context.WithoutCancel(ctx), pay)
		s.observer().JoinResult("payment_failed")
		return nil, errPaymentFailed(pay.FailureReason)
	}

	var (
		member *Member
		team   *Team
	)
	err = s.Store.InTx(ctx, func(q Queries) error {
		t, _, err := s.loadTeam(ctx, q, req.TeamID, true, s.now())
		if err != nil {
			return err
		}
		if rej, reason := t.checkJoin(req.Quantity, s.now()); rej != RejectNone {
			return joinNotAllowed(reason, rej)
		}
		if err := s.ensureNotMember(ctx, q, t.ID, req.CustomerID); err != nil {
			return err
		}
		l := s.ledger()
		if _, err := l.AddContribution(ctx, q, ContributionInput{
			TeamID:     t.ID,
			CustomerID: req.CustomerID,
			Quantity:   req.Quantity,
			Amount:     pay.Amount,
			PaymentID:  pay.ID,
		}, false); err != nil {
			return err
		}
		if err := q.UpdatePayment(ctx, pay); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		member, team, err = l.CreateMember(ctx, q, MemberInput{
			TeamID:     t.ID,
			CustomerID: req.CustomerID,
			Quantity:   req.Quantity,
			AmountPaid: pay.Amount,
			PaymentID:  pay.ID,
		})
		return err
	})
	if err != nil {
		s.voidPayment(ctx, pay, err)
		s.joinFailed(err)
		return nil, err
	}

	s.observer().JoinResult("joined")
	s.log().Info("member joined", "team_id", team.ID, "customer_id", req.CustomerID, "quantity", req.Quantity.String(),
		"total_committed", team.TotalCommitted().String(), "status", team.Status)
	s.publishTeam(ctx, EventMemberJoined, team, req.CustomerID, member.ID)
	if team.Status != TeamActive {
		s.transitioned(ctx, team)
	}

	return &MembershipResult{
		Member:               team.memberView(*member),
		Team:                 team.View(s.now(), false),
		TransactionReference: pay.TransactionReference,
	}, nil
}

func (s *Service) ensureNotMember(ctx context.Context, q Queries, teamID, customerID string) error {
	_, err := q.GetMember(ctx, teamID, customerID)
	switch {
	case err == nil:
		return newErr(KindConflict, CodeAlreadyMember, "You're already a member")
	case errors.Is(err, ErrNotFound):
		return nil
	}
	return fmt.Errorf("load member: %w", err)
}

func (s *Service) joinFailed(err error) {
	if CodeOf(err) != "" {
		s.observer().JoinResult("rejected")
		return
	}
	s.observer().JoinResult("error")
}

// savePayment persists a terminal payment state, detached from the request
// context so a cancelled join never leaves the row Processing. Storage faults
// are only logged; the join already reports failure.
func (s *Service) savePayment(ctx context.Context, p *Payment) {
	ctx = context.WithoutCancel(ctx)
	err := s.Store.InTx(ctx, func(q Queries) error { return q.UpdatePayment(ctx, p) })
	if err != nil {
		s.log().Error("persist payment status", "payment_id", p.ID, "status", p.Status, "error", err)
	}
}

// voidPayment marks a payment Failed when its membership could not be written,
// so a completed charge never exists without a member.
func (s *Service) voidPayment(ctx context.Context, p *Payment, cause error) {
	reason := cause.Error()
	var e *Error
	if errors.As(cause, &e) {
		reason = e.Message
	}
	p.Status = PaymentFailed
	p.CompletedAt = nil
	p.TransactionReference = ""
	p.FailureReason = "Payment voided: " + reason
	s.observer().PaymentResolved(p.Status)
	s.savePayment(ctx, p)
}

func (s *Service) publishTeam(ctx context.Context, eventType string, t *Team, actorID, memberID string) {
	s.publish(ctx, eventType, t.ID, TeamEventPayload{Team: t.Snapshot(s.now()), ActorID: actorID, MemberID: memberID})
}

func (s *Service) publishPaymentFailed(ctx context.Context, p *Payment) {
	s.publish(ctx, EventPaymentFailed, p.TeamID, PaymentFailedPayload{
		TeamID:     p.TeamID,
		PaymentID:  p.ID,
		CustomerID: p.CustomerID,
		Amount:     p.Amount.StringFixed(2),
		Reason:     p.FailureReason,
	})
}

func (s *Service) publish(ctx context.Context, eventType, teamID string, payload any) {
	pub := s.Publisher
	if pub == nil {
		pub = nopPublisher{}
	}
	env, err := NewEnvelope(eventType, s.Producer, teamID, payload)
	if err != nil {
		s.log().Error("build event", "event_type", eventType, "team_id", teamID, "error", err)
		return
	}
	if err := pub.Publish(ctx, topicFor(eventType), env); err != nil {
		s.log().Error("publish event", "event_type", eventType, "team_id", teamID, "error", err)
	}
}

// transitioned reports a team that left Active.
func (s *Service) transitioned(ctx context.Context, t *Team) {
	s.observer().TeamTransitioned(t.Status)
	s.log().Info("team status changed", "team_id", t.ID, "status", t.Status)
	switch t.Status {
	case TeamCompleted:
		s.publishTeam(ctx, EventTeamCompleted, t, "", "")
	case TeamExpired:
		s.publishTeam(ctx, EventTeamExpired, t, "", "")
	}
}
