package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/bat-bot-referral/internal/referral"
	"github.com/BatmanBruc/bat-bot-referral/store"
	"github.com/BatmanBruc/bat-bot-referral/types"
)

const testSecret = "provider-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	svc    *referral.Service
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := discardLogger()
	kv := store.NewMemoryStore()
	svc := referral.NewService(kv, referral.Config{CompletionAward: 1, CallbackSecret: testSecret}, log)
	router := NewRouter(log, true,
		NewCallbackController(svc.Processor, 1024, log),
		NewLeaderboardController(svc.Board, svc.Users, log),
		NewHealthController(nil, log),
	)
	return &fixture{svc: svc, router: router}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) callback(body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/offers/callback", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(referral.SignatureHeader, signature)
	}
	return f.do(req)
}

func signed(body string) ([]byte, string) {
	b := []byte(body)
	return b, referral.NewVerifier(testSecret).Sign(b)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCallbackCreditsReferrer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Resolver.RegisterOrTouch(ctx, "A", "Alice", "")
	require.NoError(t, err)
	_, err = f.svc.Resolver.RegisterOrTouch(ctx, "B", "Bob", "A")
	require.NoError(t, err)

	body, sig := signed(`{"installId":"i1","userRefId":"B","providerStatus":"completed"}`)
	w := f.callback(body, sig)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, "credited", resp["result"])

	w = f.callback(body, sig)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", decode(t, w)["result"])

	a, err := f.svc.Users.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.Points)
}

func TestCallbackRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"installId":"i1","userRefId":"B"}`)

	w := f.callback(body, "deadbeef")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, false, decode(t, w)["ok"])

	w = f.callback(body, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	_, err := f.svc.Ledger.Get(context.Background(), "i1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestCallbackValidation(t *testing.T) {
	f := newFixture(t)

	body, sig := signed(`{"userRefId":"B"}`)
	w := f.callback(body, sig)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, sig = signed(`not json`)
	w = f.callback(body, sig)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallbackBodyTooLarge(t *testing.T) {
	f := newFixture(t)
	body, sig := signed(`{"installId":"` + strings.Repeat("x", 2048) + `","userRefId":"B"}`)
	w := f.callback(body, sig)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

type failingProcessor struct{ err error }

func (p failingProcessor) HandleCallback(context.Context, []byte, string) (*referral.Result, error) {
	return &referral.Result{State: types.StateLedgered}, p.err
}

func TestCallbackStoreFaultHidesDetail(t *testing.T) {
	log := discardLogger()
	fault := &referral.Error{Kind: referral.KindStoreFault, Op: "credit referrer", Err: errors.New("dial tcp 10.0.0.1:6379")}
	router := NewRouter(log, false, NewCallbackController(failingProcessor{err: fault}, 0, log))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/offers/callback", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.1")
}

func TestLeaderboardTop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for id, pts := range map[string]int64{"a": 3, "b": 7, "c": 3} {
		_, err := f.svc.Board.Credit(ctx, id, pts, strings.ToUpper(id))
		require.NoError(t, err)
	}

	w := f.do(httptest.NewRequest(http.MethodGet, "/leaderboard/top/2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var entries []rankedEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].UserID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "a", entries[1].UserID)
	assert.Equal(t, int64(3), entries[1].Points)

	w = f.do(httptest.NewRequest(http.MethodGet, "/leaderboard/top/0", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)

	w = f.do(httptest.NewRequest(http.MethodGet, "/leaderboard/top/1000", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Len(t, entries, 3)

	w = f.do(httptest.NewRequest(http.MethodGet, "/leaderboard/top/ten", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeaderboardTopEmpty(t *testing.T) {
	f := newFixture(t)
	w := f.do(httptest.NewRequest(http.MethodGet, "/leaderboard/top/5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestUserLookup(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Resolver.RegisterOrTouch(context.Background(), "42", "Zed", "7")
	require.NoError(t, err)

	w := f.do(httptest.NewRequest(http.MethodGet, "/users/42", nil))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "42", resp["id"])
	assert.Equal(t, true, resp["referred"])
	assert.NotContains(t, w.Body.String(), `"7"`)

	w = f.do(httptest.NewRequest(http.MethodGet, "/users/nobody", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	log := discardLogger()

	router := NewRouter(log, false, NewHealthController(pinger{}, log))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	router = NewRouter(log, false, NewHealthController(pinger{err: errors.New("down")}, log))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type panicController struct{}

func (panicController) RegisterRoutes(r *gin.Engine) {
	r.GET("/boom", func(*gin.Context) { panic("boom") })
}

func TestRecoveryAndRequestID(t *testing.T) {
	router := NewRouter(discardLogger(), true, panicController{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(requestIDHeader, "abc")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(requestIDHeader))
}
