package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-group-buying/internal/redisx"
	"github.com/ariefcatur/go-group-buying/internal/teams"
)

// TeamService: permukaan teams.Service yang dipakai handler.
type TeamService interface {
	CreateTeam(ctx context.Context, req teams.CreateTeamRequest) (*teams.TeamView, error)
	JoinTeam(ctx context.Context, req teams.JoinTeamRequest) (*teams.MembershipResult, error)
	GetTeamDetails(ctx context.Context, teamID string) (*teams.TeamView, error)
	GetTeamWithMembers(ctx context.Context, teamID string) (*teams.TeamView, error)
	GetTeamStatus(ctx context.Context, teamID string) (teams.Snapshot, error)
	GetTeamsByCustomer(ctx context.Context, customerID string) ([]teams.TeamView, error)
	GetTeamsJoinedByCustomer(ctx context.Context, customerID string) ([]teams.TeamView, error)
	GetTeamsByProduct(ctx context.Context, productID string) ([]teams.TeamView, error)
	GetActiveTeams(ctx context.Context) ([]teams.TeamView, error)
	GetExpiringTeams(ctx context.Context, hours int) ([]teams.TeamView, error)
	GetTeamsByStatus(ctx context.Context, status teams.TeamStatus) ([]teams.TeamView, error)
}

type StatusCache interface {
	Get(ctx context.Context, teamID string) (teams.Snapshot, bool, error)
	Put(ctx context.Context, s teams.Snapshot) error
}

type IdempotencyStore interface {
	Begin(ctx context.Context, customerID, key string) (teamID string, fresh bool, err error)
	Finish(ctx context.Context, customerID, key, teamID string) error
	Abort(ctx context.Context, customerID, key string) error
}

type TeamsHandler struct {
	Teams    TeamService
	Cache    StatusCache      // optional
	Idem     IdempotencyStore // optional
	Validate *validator.Validate
	Log      *slog.Logger
	Now      func() time.Time
}

type createTeamReq struct {
	ProductID       string          `json:"product_id" validate:"required"`
	Name            string          `json:"name" validate:"max=100"`
	Description     string          `json:"description" validate:"max=500"`
	CreatorQuantity decimal.Decimal `json:"creator_quantity"`
	PaymentMethod   string          `json:"payment_method" validate:"required,oneof=card bank_transfer wallet ussd"`
	SimulateSuccess *bool           `json:"simulate_success"`
}

type joinTeamReq struct {
	TeamID          string          `json:"team_id" validate:"required"`
	Quantity        decimal.Decimal `json:"quantity"`
	PaymentMethod   string          `json:"payment_method" validate:"required,oneof=card bank_transfer wallet ussd"`
	SimulateSuccess *bool           `json:"simulate_success"`
}

const defaultExpiringHours = 24

// Register: public reads di r, write + data milik user di authed.
func (h *TeamsHandler) Register(r chi.Router, authed chi.Router) {
	r.Get("/api/teams/active", h.activeTeams)
	r.Get("/api/teams/expiring", h.expiringTeams)
	r.Get("/api/teams/status/{status}", h.teamsByStatus)
	r.Get("/api/teams/product/{id}", h.teamsByProduct)
	r.Get("/api/teams/{id}", h.teamDetails)
	r.Get("/api/teams/{id}/member", h.teamWithMembers)
	r.Get("/api/teams/{id}/status", h.teamStatus)

	authed.Get("/api/teams/myteams", h.myTeams)
	authed.Get("/api/teams/joined", h.joinedTeams)
	authed.With(RequireCustomer).Post("/api/teams/create", h.createTeam)
	authed.With(RequireCustomer).Post("/api/teams/join", h.joinTeam)
}

func (h *TeamsHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *TeamsHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeFail(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	if err := h.Validate.Struct(dst); err != nil {
		writeFail(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fe.Field()+" must be one of: "+fe.Param())
		case "max":
			msgs = append(msgs, fe.Field()+" must be at most "+fe.Param()+" characters")
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

func simulate(b *bool) bool { return b == nil || *b }

func (h *TeamsHandler) createTeam(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	var req createTeamReq
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	// Idempotency-Key: replay request yang sama balikin team yang sudah dibuat
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	useIdem := key != "" && h.Idem != nil
	if useIdem {
		teamID, fresh, err := h.Idem.Begin(ctx, claims.UserID, key)
		switch {
		case errors.Is(err, redisx.ErrInFlight):
			writeFail(w, http.StatusConflict, "A request with this Idempotency-Key is already in progress")
			return
		case err != nil:
			// Redis bermasalah: lanjut tanpa idempotency, DB tetap jadi kebenaran
			h.Log.Warn("idempotency unavailable", "error", err)
			useIdem = false
		case !fresh:
			v, err := h.Teams.GetTeamWithMembers(ctx, teamID)
			if err != nil {
				writeError(w, r, h.Log, err)
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			writeOK(w, http.StatusOK, "Team already created", v)
			return
		}
	}

	v, err := h.Teams.CreateTeam(ctx, teams.CreateTeamRequest{
		CustomerID:      claims.UserID,
		ProductID:       req.ProductID,
		Name:            req.Name,
		Description:     req.Description,
		CreatorQuantity: req.CreatorQuantity,
		PaymentMethod:   teams.PaymentMethod(req.PaymentMethod),
		SimulateSuccess: simulate(req.SimulateSuccess),
	})
	if err != nil {
		if useIdem {
			if aerr := h.Idem.Abort(context.WithoutCancel(ctx), claims.UserID, key); aerr != nil {
				h.Log.Warn("release idempotency key", "error", aerr)
			}
		}
		writeError(w, r, h.Log, err)
		return
	}
	if useIdem {
		if ferr := h.Idem.Finish(context.WithoutCancel(ctx), claims.UserID, key, v.ID); ferr != nil {
			h.Log.Warn("store idempotency result", "team_id", v.ID, "error", ferr)
		}
	}
	writeOK(w, http.StatusCreated, "Team created successfully", v)
}

func (h *TeamsHandler) joinTeam(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	var req joinTeamReq
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Teams.JoinTeam(r.Context(), teams.JoinTeamRequest{
		CustomerID:      claims.UserID,
		TeamID:          req.TeamID,
		Quantity:        req.Quantity,
		PaymentMethod:   teams.PaymentMethod(req.PaymentMethod),
		SimulateSuccess: simulate(req.SimulateSuccess),
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeOK(w, http.StatusCreated, "Successfully joined the team", res)
}

func (h *TeamsHandler) teamDetails(w http.ResponseWriter, r *http.Request) {
	v, err := h.Teams.GetTeamDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeOK(w, http.StatusOK, "Team retrieved successfully", v)
}

func (h *TeamsHandler) teamWithMembers(w http.ResponseWriter, r *http.Request) {
	v, err := h.Teams.GetTeamWithMembers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeOK(w, http.StatusOK, "Team retrieved successfully", v)
}

// teamStatus: 1) coba cache, 2) fallback service (reconcile) lalu isi cache.
// Snapshot Active yang sudah lewat expiry tidak pernah dipercaya.
func (h *TeamsHandler) teamStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	if h.Cache != nil {
		snap, ok, err := h.Cache.Get(ctx, id)
		if err != nil {
			h.Log.Warn("status cache read", "team_id", id, "error", err)
		}
		if ok && !snap.Stale(h.now()) {
			w.Header().Set("X-Cache", "HIT")
			writeOK(w, http.StatusOK, "Team status retrieved", snap)
			return
		}
	}

	snap, err := h.Teams.GetTeamStatus(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.Put(ctx, snap); err != nil {
			h.Log.Warn("status cache write", "team_id", id, "error", err)
		}
	}
	w.Header().Set("X-Cache", "MISS")
	writeOK(w, http.StatusOK, "Team status retrieved", snap)
}

func (h *TeamsHandler) writeList(w http.ResponseWriter, r *http.Request, list []teams.TeamView, err error) {
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeOK(w, http.StatusOK, "Teams retrieved successfully", list)
}

func (h *TeamsHandler) myTeams(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	list, err := h.Teams.GetTeamsByCustomer(r.Context(), claims.UserID)
	h.writeList(w, r, list, err)
}

func (h *TeamsHandler) joinedTeams(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	list, err := h.Teams.GetTeamsJoinedByCustomer(r.Context(), claims.UserID)
	h.writeList(w, r, list, err)
}

func (h *TeamsHandler) teamsByProduct(w http.ResponseWriter, r *http.Request) {
	list, err := h.Teams.GetTeamsByProduct(r.Context(), chi.URLParam(r, "id"))
	h.writeList(w, r, list, err)
}

func (h *TeamsHandler) activeTeams(w http.ResponseWriter, r *http.Request) {
	list, err := h.Teams.GetActiveTeams(r.Context())
	h.writeList(w, r, list, err)
}

func (h *TeamsHandler) expiringTeams(w http.ResponseWriter, r *http.Request) {
	hours := defaultExpiringHours
	if q := r.URL.Query().Get("hours"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "hours must be an integer")
			return
		}
		hours = n
	}
	list, err := h.Teams.GetExpiringTeams(r.Context(), hours)
	h.writeList(w, r, list, err)
}

func (h *TeamsHandler) teamsByStatus(w http.ResponseWriter, r *http.Request) {
	status := teams.TeamStatus(strings.ToUpper(chi.URLParam(r, "status")))
	list, err := h.Teams.GetTeamsByStatus(r.Context(), status)
	h.writeList(w, r, list, err)
}
