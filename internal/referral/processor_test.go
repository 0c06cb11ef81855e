package referral

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/bat-bot-referral/store"
	"github.com/BatmanBruc/bat-bot-referral/types"
)

func TestProcessor_ReferralScenario(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	a, err := svc.Resolver.RegisterOrTouch(ctx, "A", "Alice", "")
	require.NoError(t, err)
	assert.Empty(t, a.Referrer)
	b, err := svc.Resolver.RegisterOrTouch(ctx, "B", "Bob", "A")
	require.NoError(t, err)
	assert.Equal(t, "A", b.Referrer)

	body := callbackBody(t, "I1", "B", "completed")
	res, err := svc.Processor.HandleCallback(ctx, body, sign(body))
	require.NoError(t, err)
	assert.Equal(t, types.StateDone, res.State)
	assert.Equal(t, types.OutcomeCredited, res.Outcome)
	assert.Equal(t, "A", res.ReferrerID)
	assert.Equal(t, int64(1), res.Awarded)

	userPts, boardPts := points(t, svc, "A")
	assert.Equal(t, int64(1), userPts)
	assert.Equal(t, int64(1), boardPts)

	referred, err := svc.Users.Get(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, int64(1), referred.CompletedInstalls)
	assert.True(t, referred.TaskCompleted)
	assert.Zero(t, referred.Points)

	res, err = svc.Processor.HandleCallback(ctx, body, sign(body))
	require.NoError(t, err)
	assert.Equal(t, types.StateDuplicate, res.State)
	assert.Equal(t, types.OutcomeDuplicate, res.Outcome)

	userPts, boardPts = points(t, svc, "A")
	assert.Equal(t, int64(1), userPts)
	assert.Equal(t, int64(1), boardPts)

	rec, err := svc.Ledger.Get(ctx, "I1")
	require.NoError(t, err)
	assert.Equal(t, "B", rec.UserRefID)
	assert.Equal(t, "completed", rec.ProviderStatus)
}

func TestProcessor_IgnoredStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	_, err := svc.Resolver.RegisterOrTouch(ctx, "B", "", "A")
	require.NoError(t, err)

	body := callbackBody(t, "I1", "B", "pending")
	res, err := svc.Processor.HandleCallback(ctx, body, sign(body))
	require.NoError(t, err)
	assert.Equal(t, types.StateIgnored, res.State)
	assert.Equal(t, types.OutcomeIgnored, res.Outcome)

	_, err = svc.Ledger.Get(ctx, "I1")
	assert.ErrorIs(t, err, types.ErrNotFound)
	userPts, boardPts := points(t, svc, "A")
	assert.Zero(t, userPts)
	assert.Zero(t, boardPts)
}

func TestProcessor_StatusNormalization(t *testing.T) {
	ctx := context.Background()
	for i, status := range []string{"completed", " APPROVED ", "Paid", "success", ""} {
		svc := newTestService(t, nil)
		_, err := svc.Resolver.RegisterOrTouch(ctx, "B", "", "A")
		require.NoError(t, err)

		body := callbackBody(t, "I", "B", status)
		res, err := svc.Processor.HandleCallback(ctx, body, sign(body))
		require.NoError(t, err, "case %d", i)
		assert.Equal(t, types.OutcomeCredited, res.Outcome, "status %q", status)
	}
}

func TestProcessor_RejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	_, err := svc.Resolver.RegisterOrTouch(ctx, "B", "", "A")
	require.NoError(t, err)

	body := callbackBody(t, "I1", "B", "completed")
	tampered := callbackBody(t, "I1", "B", "paid")

	cases := map[string]struct {
		body []byte
		sig  string
	}{
		"missing":  {body, ""},
		"garbage":  {body, "not-hex"},
		"tampered": {tampered, sign(body)},
		"foreign":  {body, NewVerifier("other").Sign(body)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := svc.Processor.HandleCallback(ctx, tc.body, tc.sig)
			assert.True(t, IsKind(err, KindAuth), "got %v", err)
			assert.Equal(t, types.StateRejected, res.State)
		})
	}

	_, err = svc.Ledger.Get(ctx, "I1")
	assert.ErrorIs(t, err, types.ErrNotFound)
	u, err := svc.Users.Get(ctx, "B")
	require.NoError(t, err)
	assert.Zero(t, u.CompletedInstalls)
}

func TestProcessor_NoSecretRejectsEverything(t *testing.T) {
	svc := NewService(store.NewMemoryStore(), Config{}, discardLogger())
	body := callbackBody(t, "I1", "B", "completed")
	_, err := svc.Processor.HandleCallback(context.Background(), body, NewVerifier("").Sign(body))
	assert.True(t, IsKind(err, KindAuth))
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestProcessor_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	for name, body := range map[string][]byte{
		"no install":  callbackBody(t, "", "B", "completed"),
		"no user":     callbackBody(t, "I1", " ", "completed"),
		"not json":    []byte("installId=I1"),
		"wrong shape": []byte(`{"installId": {"a": 1}, "userRefId": "B"}`),
		"null":        []byte(`null`),
	} {
		t.Run(name, func(t *testing.T) {
			res, err := svc.Processor.HandleCallback(ctx, body, sign(body))
			assert.True(t, IsKind(err, KindValidation), "got %v", err)
			assert.Equal(t, types.StateRejected, res.State)
		})
	}
}

func TestProcessor_NumericIDs(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	_, err := svc.Resolver.RegisterOrTouch(ctx, "42", "", "7")
	require.NoError(t, err)

	body := []byte(`{"installId": 1001, "userRefId": 42, "providerStatus": "completed"}`)
	res, err := svc.Processor.HandleCallback(ctx, body, sign(body))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeCredited, res.Outcome)
	assert.Equal(t, "1001", res.InstallID)

	userPts, _ := points(t, svc, "7")
	assert.Equal(t, int64(1), userPts)
}

func TestProcessor_UnknownUser(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	res, err := svc.Processor.Process(ctx, CallbackPayload{InstallID: "I1", UserRefID: "ghost", ProviderStatus: "completed"})
	require.NoError(t, err)
	assert.Equal(t, types.StateDone, res.State)
	assert.Equal(t, types.OutcomeUserNotFound, res.Outcome)

	_, err = svc.Users.Get(ctx, "ghost")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = svc.Ledger.Get(ctx, "I1")
	assert.NoError(t, err)
}

func TestProcessor_NoReferrer(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	_, err := svc.Resolver.RegisterOrTouch(ctx, "A", "", "")
	require.NoError(t, err)

	res, err := svc.Processor.Process(ctx, CallbackPayload{InstallID: "I1", UserRefID: "A"})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeNoReferrer, res.Outcome)

	u, err := svc.Users.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.CompletedInstalls)
	assert.True(t, u.TaskCompleted)
	assert.Zero(t, u.Points)
}

func TestProcessor_MultipleInstallsCreditEach(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	_, err := svc.Resolver.RegisterOrTouch(ctx, "B", "", "A")
	require.NoError(t, err)
	_, err = svc.Resolver.RegisterOrTouch(ctx, "C", "", "A")
	require.NoError(t, err)

	for _, p := range []CallbackPayload{
		{InstallID: "I1", UserRefID: "B"},
		{InstallID: "I2", UserRefID: "B"},
		{InstallID: "I3", UserRefID: "C"},
		{InstallID: "I3", UserRefID: "C"},
	} {
		_, err := svc.Processor.Process(ctx, p)
		require.NoError(t, err)
	}

	userPts, boardPts := points(t, svc, "A")
	assert.Equal(t, int64(3), userPts)
	assert.Equal(t, int64(3), boardPts)

	b, err := svc.Users.Get(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.CompletedInstalls)
}

func TestProcessor_PlaceholderReferrer(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	_, err := svc.Resolver.RegisterOrTouch(ctx, "B", "", "A")
	require.NoError(t, err)

	_, err = svc.Processor.Process(ctx, CallbackPayload{InstallID: "I1", UserRefID: "B"})
	require.NoError(t, err)

	a, err := svc.Users.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.Points)
	assert.Empty(t, a.Referrer)

	a, err = svc.Resolver.RegisterOrTouch(ctx, "A", "Alice", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.Points)
	entry, err := svc.Board.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "Alice", entry.DisplayName)
	assert.Equal(t, int64(1), entry.Points)
}

func TestProcessor_ConfiguredAward(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemoryStore(), Config{CompletionAward: 5, CallbackSecret: testSecret}, discardLogger())
	_, err := svc.Resolver.RegisterOrTouch(ctx, "B", "", "A")
	require.NoError(t, err)

	res, err := svc.Processor.Process(ctx, CallbackPayload{InstallID: "I1", UserRefID: "B"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Awarded)
	userPts, boardPts := points(t, svc, "A")
	assert.Equal(t, int64(5), userPts)
	assert.Equal(t, int64(5), boardPts)
}

func TestProcessor_ConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)
	_, err := svc.Resolver.RegisterOrTouch(ctx, "B", "", "A")
	require.NoError(t, err)

	body := callbackBody(t, "I1", "B", "completed")
	sig := sign(body)

	const n = 24
	outcomes := make(chan types.Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Processor.HandleCallback(ctx, body, sig)
			assert.NoError(t, err)
			outcomes <- res.Outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	counts := map[types.Outcome]int{}
	for o := range outcomes {
		counts[o]++
	}
	assert.Equal(t, 1, counts[types.OutcomeCredited])
	assert.Equal(t, n-1, counts[types.OutcomeDuplicate])

	userPts, boardPts := points(t, svc, "A")
	assert.Equal(t, int64(1), userPts)
	assert.Equal(t, int64(1), boardPts)
}

func TestProcessor_FaultAfterLedgerIsNotRetried(t *testing.T) {
	ctx := context.Background()
	kv := &flakyStore{KeyValueStore: store.NewMemoryStore(), prefix: "users/A"}
	svc := newTestService(t, kv)
	_, err := svc.Resolver.RegisterOrTouch(ctx, "B", "", "A")
	require.NoError(t, err)

	kv.armed = true
	res, err := svc.Processor.Process(ctx, CallbackPayload{InstallID: "I1", UserRefID: "B"})
	assert.True(t, IsKind(err, KindStoreFault))
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, types.StateUserUpdated, res.State)

	kv.armed = false
	res, err = svc.Processor.Process(ctx, CallbackPayload{InstallID: "I1", UserRefID: "B"})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeDuplicate, res.Outcome)

	userPts, boardPts := points(t, svc, "A")
	assert.Zero(t, userPts)
	assert.Zero(t, boardPts)
}

func TestProcessor_LedgerFault(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &failingCreate{KeyValueStore: store.NewMemoryStore()})

	res, err := svc.Processor.Process(ctx, CallbackPayload{InstallID: "I1", UserRefID: "B"})
	assert.True(t, IsKind(err, KindStoreFault))
	assert.Equal(t, types.StateValidated, res.State)
}

type failingCreate struct {
	types.KeyValueStore
}

func (f *failingCreate) CreateIfAbsent(context.Context, string, types.Mutation) (bool, error) {
	return false, types.ErrConflict
}
