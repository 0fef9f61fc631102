package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-group-buying/internal/auth"
	"github.com/ariefcatur/go-group-buying/internal/memstore"
	"github.com/ariefcatur/go-group-buying/internal/metrics"
	"github.com/ariefcatur/go-group-buying/internal/payment"
	"github.com/ariefcatur/go-group-buying/internal/redisx"
	"github.com/ariefcatur/go-group-buying/internal/teams"
)

var testSecret = []byte("test-secret")

type fakeIdem struct {
	mu   sync.Mutex
	keys map[string]string
}

func (f *fakeIdem) Begin(_ context.Context, customerID, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := customerID + ":" + key
	v, ok := f.keys[k]
	switch {
	case !ok:
		f.keys[k] = "PENDING"
		return "", true, nil
	case v == "PENDING":
		return "", false, redisx.ErrInFlight
	}
	return v, false, nil
}

func (f *fakeIdem) Finish(_ context.Context, customerID, key, teamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[customerID+":"+key] = teamID
	return nil
}

func (f *fakeIdem) Abort(_ context.Context, customerID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, customerID+":"+key)
	return nil
}

type fakeCache struct {
	mu    sync.Mutex
	snaps map[string]teams.Snapshot
}

func (f *fakeCache) Get(_ context.Context, id string) (teams.Snapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snaps[id]
	return s, ok, nil
}

func (f *fakeCache) Put(_ context.Context, s teams.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[s.TeamID] = s
	return nil
}

type fakeRevoker struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (f *fakeRevoker) Revoke(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[id] = true
	return nil
}

func (f *fakeRevoker) Revoked(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[id], nil
}

type testEnv struct {
	srv   *httptest.Server
	store *memstore.Store
	cache *fakeCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memstore.New()
	store.AddCustomer("alice")
	store.AddCustomer("bob")
	store.AddSeller("sam")
	store.AddProduct(teams.Product{
		ID:          "rice",
		Name:        "Rice 50kg",
		UnitPrice:   decimal.NewFromInt(100),
		PackageSize: decimal.NewFromInt(50),
		Unit:        teams.UnitKilogram,
		Quantity:    5,
		IsActive:    true,
	})

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	svc := &teams.Service{
		Store:               store,
		Payments:            payment.NewSimulator(log, time.Second),
		Observer:            m,
		Log:                 log,
		PaymentDelaySeconds: -1,
	}
	cache := &fakeCache{snaps: map[string]teams.Snapshot{}}
	revoker := &fakeRevoker{revoked: map[string]bool{}}

	r := NewRouter(m, 5*time.Second)
	h := &TeamsHandler{
		Teams:    svc,
		Cache:    cache,
		Idem:     &fakeIdem{keys: map[string]string{}},
		Validate: validator.New(),
		Log:      log,
	}
	authn := &Authenticator{Secret: testSecret, Revoker: revoker, Log: log}
	r.Group(func(ar chi.Router) {
		ar.Use(authn.Require)
		h.Register(r, ar)
		(&AuthHandler{Revoker: revoker, Log: log}).Register(ar)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, cache: cache}
}

func token(t *testing.T, id string, kind auth.Kind) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, auth.User{ID: id, Kind: kind}, time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

type apiResp struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, tok string, body any, headers ...string) (*http.Response, apiResp) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	res, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out apiResp
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res, out
}

func createBody(qty string) map[string]any {
	return map[string]any{
		"product_id":       "rice",
		"name":             "Office rice run",
		"creator_quantity": qty,
		"payment_method":   "card",
	}
}

func (e *testEnv) createTeam(t *testing.T, tok string) teams.TeamView {
	t.Helper()
	res, out := e.do(t, http.MethodPost, "/api/teams/create", tok, createBody("10"))
	require.Equal(t, http.StatusCreated, res.StatusCode, out.Message)
	var v teams.TeamView
	require.NoError(t, json.Unmarshal(out.Data, &v))
	return v
}

func TestCreateAndJoinFlow(t *testing.T) {
	e := newTestEnv(t)
	alice := token(t, "alice", auth.KindCustomer)
	bob := token(t, "bob", auth.KindCustomer)

	team := e.createTeam(t, alice)
	assert.Equal(t, teams.TeamActive, team.Status)
	assert.True(t, team.TargetAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, team.TargetQuantity.Equal(decimal.NewFromInt(50)))
	require.Len(t, team.Members, 1)
	assert.True(t, team.Members[0].IsCreator)

	res, out := e.do(t, http.MethodPost, "/api/teams/join", bob, map[string]any{
		"team_id": team.ID, "quantity": "45", "payment_method": "wallet",
	})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.False(t, out.Success)
	assert.Equal(t, "Only 40 kg remaining", out.Message)

	res, out = e.do(t, http.MethodPost, "/api/teams/join", bob, map[string]any{
		"team_id": team.ID, "quantity": "40", "payment_method": "wallet",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, out.Message)
	var joined teams.MembershipResult
	require.NoError(t, json.Unmarshal(out.Data, &joined))
	assert.Equal(t, teams.TeamCompleted, joined.Team.Status)
	assert.Regexp(t, `^TXN_\d{14}_[0-9A-F]{8}$`, joined.TransactionReference)

	res, out = e.do(t, http.MethodGet, "/api/teams/"+team.ID+"/member", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var withMembers teams.TeamView
	require.NoError(t, json.Unmarshal(out.Data, &withMembers))
	assert.Len(t, withMembers.Members, 2)
	assert.Equal(t, "alice", withMembers.Members[0].CustomerID)
}

func TestCreateTeamErrors(t *testing.T) {
	e := newTestEnv(t)
	alice := token(t, "alice", auth.KindCustomer)

	tests := []struct {
		name string
		tok  string
		body map[string]any
		code int
	}{
		{"no token", "", createBody("10"), http.StatusUnauthorized},
		{"garbage token", "nope", createBody("10"), http.StatusUnauthorized},
		{"seller forbidden", token(t, "sam", auth.KindSeller), createBody("10"), http.StatusForbidden},
		{"over package size", alice, createBody("51"), http.StatusBadRequest},
		{"zero quantity", alice, createBody("0"), http.StatusBadRequest},
		{"bad payment method", alice, map[string]any{
			"product_id": "rice", "creator_quantity": "1", "payment_method": "cash",
		}, http.StatusBadRequest},
		{"unknown product", alice, map[string]any{
			"product_id": "beans", "creator_quantity": "1", "payment_method": "card",
		}, http.StatusNotFound},
		{"declined payment", alice, map[string]any{
			"product_id": "rice", "creator_quantity": "1", "payment_method": "card", "simulate_success": false,
		}, http.StatusPaymentRequired},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, out := e.do(t, http.MethodPost, "/api/teams/create", tc.tok, tc.body)
			assert.Equal(t, tc.code, res.StatusCode, out.Message)
			assert.False(t, out.Success)
		})
	}
	assert.Zero(t, e.store.TeamCount())
}

func TestCreateTeamIdempotencyKey(t *testing.T) {
	e := newTestEnv(t)
	alice := token(t, "alice", auth.KindCustomer)

	res, out := e.do(t, http.MethodPost, "/api/teams/create", alice, createBody("10"), "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, res.StatusCode, out.Message)
	var first teams.TeamView
	require.NoError(t, json.Unmarshal(out.Data, &first))

	res, out = e.do(t, http.MethodPost, "/api/teams/create", alice, createBody("10"), "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, res.StatusCode, out.Message)
	assert.Equal(t, "true", res.Header.Get("Idempotent-Replayed"))
	var replay teams.TeamView
	require.NoError(t, json.Unmarshal(out.Data, &replay))
	assert.Equal(t, first.ID, replay.ID)
	assert.Equal(t, 1, e.store.TeamCount())
}

func TestTeamStatusUsesCache(t *testing.T) {
	e := newTestEnv(t)
	team := e.createTeam(t, token(t, "alice", auth.KindCustomer))

	res, _ := e.do(t, http.MethodGet, "/api/teams/"+team.ID+"/status", "", nil)
	assert.Equal(t, "MISS", res.Header.Get("X-Cache"))
	res, out := e.do(t, http.MethodGet, "/api/teams/"+team.ID+"/status", "", nil)
	assert.Equal(t, "HIT", res.Header.Get("X-Cache"))
	var snap teams.Snapshot
	require.NoError(t, json.Unmarshal(out.Data, &snap))
	assert.Equal(t, team.ID, snap.TeamID)

	// snapshot Active yang sudah lewat expiry harus dibaca ulang
	e.cache.mu.Lock()
	s := e.cache.snaps[team.ID]
	s.ExpiresAt = time.Now().Add(-time.Minute)
	e.cache.snaps[team.ID] = s
	e.cache.mu.Unlock()
	res, _ = e.do(t, http.MethodGet, "/api/teams/"+team.ID+"/status", "", nil)
	assert.Equal(t, "MISS", res.Header.Get("X-Cache"))
}

func TestListEndpoints(t *testing.T) {
	e := newTestEnv(t)
	alice := token(t, "alice", auth.KindCustomer)
	bob := token(t, "bob", auth.KindCustomer)
	team := e.createTeam(t, alice)

	res, out := e.do(t, http.MethodPost, "/api/teams/join", bob, map[string]any{
		"team_id": team.ID, "quantity": "5", "payment_method": "ussd",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode, out.Message)

	count := func(path, tok string) int {
		res, out := e.do(t, http.MethodGet, path, tok, nil)
		require.Equal(t, http.StatusOK, res.StatusCode, out.Message)
		var list []teams.TeamView
		require.NoError(t, json.Unmarshal(out.Data, &list))
		return len(list)
	}
	assert.Equal(t, 1, count("/api/teams/myteams", alice))
	assert.Equal(t, 0, count("/api/teams/myteams", bob))
	assert.Equal(t, 1, count("/api/teams/joined", bob))
	assert.Equal(t, 1, count("/api/teams/product/rice", ""))
	assert.Equal(t, 1, count("/api/teams/expiring?hours=100", ""))
	assert.Equal(t, 0, count("/api/teams/expiring", ""))
	assert.Equal(t, 0, count("/api/teams/status/completed", ""))

	res, _ = e.do(t, http.MethodGet, "/api/teams/expiring?hours=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res, _ = e.do(t, http.MethodGet, "/api/teams/status/bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res, _ = e.do(t, http.MethodGet, "/api/teams/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestLogoutRevokesToken(t *testing.T) {
	e := newTestEnv(t)
	alice := token(t, "alice", auth.KindCustomer)

	res, _ := e.do(t, http.MethodPost, "/api/auth/logout", alice, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, out := e.do(t, http.MethodGet, "/api/teams/myteams", alice, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "Token has been revoked", out.Message)
}
