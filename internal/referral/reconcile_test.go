package referral

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/bat-bot-referral/store"
)

func TestReconciler_ConsistentAfterTraffic(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	for _, reg := range [][2]string{{"A", ""}, {"B", "A"}, {"C", "A"}, {"D", "B"}, {"E", "E"}} {
		_, err := svc.Resolver.RegisterOrTouch(ctx, reg[0], "", reg[1])
		require.NoError(t, err)
	}
	for _, p := range []CallbackPayload{
		{InstallID: "1", UserRefID: "B"},
		{InstallID: "2", UserRefID: "C", ProviderStatus: "approved"},
		{InstallID: "2", UserRefID: "C"},
		{InstallID: "3", UserRefID: "D"},
		{InstallID: "4", UserRefID: "E"},
		{InstallID: "5", UserRefID: "A", ProviderStatus: "pending"},
		{InstallID: "6", UserRefID: "ghost"},
	} {
		_, err := svc.Processor.Process(ctx, p)
		require.NoError(t, err)
	}

	report, err := svc.Reconciler.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "drifts: %+v", report.Drifts)
	assert.Equal(t, 5, report.Installs)
	assert.Equal(t, 3, report.Credits)
}

func TestReconciler_DetectsLostCredit(t *testing.T) {
	ctx := context.Background()
	kv := &flakyStore{KeyValueStore: store.NewMemoryStore(), prefix: "leaderboard/A"}
	svc := newTestService(t, kv)
	_, err := svc.Resolver.RegisterOrTouch(ctx, "B", "", "A")
	require.NoError(t, err)

	kv.armed = true
	_, err = svc.Processor.Process(ctx, CallbackPayload{InstallID: "I1", UserRefID: "B"})
	require.Error(t, err)
	kv.armed = false

	report, err := svc.Reconciler.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, Drift{UserID: "A", Expected: 1, UserPoints: 1, BoardPoints: 0}, report.Drifts[0])
}

func TestReconciler_SkipsInstallsBeforeJoin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	res, err := svc.Processor.Process(ctx, CallbackPayload{InstallID: "early", UserRefID: "B"})
	require.NoError(t, err)
	require.Equal(t, "user_not_found", string(res.Outcome))

	_, err = svc.Resolver.RegisterOrTouch(ctx, "B", "", "A")
	require.NoError(t, err)

	report, err := svc.Reconciler.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Zero(t, report.Credits)
}
