package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/mtfscan/backend/internal/contracts"
	"github.com/wonny/mtfscan/backend/internal/store/memory"
	"github.com/wonny/mtfscan/backend/pkg/config"
	"github.com/wonny/mtfscan/backend/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Plans: config.PlanConfig{
			DurationDays:            30,
			TrialDays:               7,
			FreePremiumThreshold:    5,
			FreePlusThreshold:       5,
			PlusPremiumThreshold:    5,
			PlusPlusThreshold:       5,
			PremiumPremiumThreshold: 5,
			PremiumPlusThreshold:    10,
		},
	}
}

func newTestService() (*Service, *memory.Store) {
	store := memory.New()
	svc := NewService(testConfig(), logger.NewNop(), store.Subscribers(), store.Referrals())
	return svc, store
}

func TestRegisterStartsTrial(t *testing.T) {
	svc, _ := newTestService()

	sub, err := svc.Register(context.Background(), 100, "alice", nil)
	require.NoError(t, err)

	assert.Equal(t, contracts.TierFree, sub.Tier)
	assert.True(t, sub.IsTrialActive(time.Now()))
	assert.True(t, sub.HasAccess(time.Now()))
	assert.Equal(t, "ref_100", sub.RefCode)
}

func TestRegisterRejectsSelfReferral(t *testing.T) {
	svc, _ := newTestService()

	self := int64(100)
	_, err := svc.Register(context.Background(), 100, "alice", &self)
	assert.ErrorIs(t, err, ErrSelfReferral)
}

func TestRegisterDropsUnknownReferrer(t *testing.T) {
	svc, _ := newTestService()

	ghost := int64(999)
	sub, err := svc.Register(context.Background(), 100, "alice", &ghost)
	require.NoError(t, err)
	assert.Nil(t, sub.ReferrerID)
}

func TestRegisterIsIdempotent(t *testing.T) {
	svc, _ := newTestService()

	first, err := svc.Register(context.Background(), 100, "alice", nil)
	require.NoError(t, err)

	referrer := int64(200)
	again, err := svc.Register(context.Background(), 100, "alice", &referrer)
	require.NoError(t, err)

	// The second contact must not attach a referrer retroactively.
	assert.Equal(t, first.ID, again.ID)
	assert.Nil(t, again.ReferrerID)
}

func TestActivateSetsPlanAndClearsTrial(t *testing.T) {
	svc, store := newTestService()

	_, err := svc.Register(context.Background(), 100, "alice", nil)
	require.NoError(t, err)

	require.NoError(t, svc.Activate(context.Background(), 100, contracts.TierPremium))

	sub, err := store.Subscribers().Get(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, contracts.TierPremium, sub.Tier)
	assert.Nil(t, sub.TrialEnd)
	require.NotNil(t, sub.PlanEnd)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), *sub.PlanEnd, time.Minute)
}

func TestActivateExtendsRunningPlan(t *testing.T) {
	svc, store := newTestService()

	_, err := svc.Register(context.Background(), 100, "alice", nil)
	require.NoError(t, err)

	require.NoError(t, svc.Activate(context.Background(), 100, contracts.TierPlus))
	require.NoError(t, svc.Activate(context.Background(), 100, contracts.TierPlus))

	sub, err := store.Subscribers().Get(context.Background(), 100)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(60*24*time.Hour), *sub.PlanEnd, time.Minute)
}

func TestActivateRejectsFreeTier(t *testing.T) {
	svc, _ := newTestService()
	assert.Error(t, svc.Activate(context.Background(), 100, contracts.TierFree))
}

func TestExtendRequiresActivePlan(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Register(context.Background(), 100, "alice", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ExtendCurrent(context.Background(), 100, 30), ErrNoActivePlan)
}

func TestExpireDueDowngrades(t *testing.T) {
	svc, store := newTestService()

	_, err := svc.Register(context.Background(), 100, "alice", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Activate(context.Background(), 100, contracts.TierPremium))

	// Push the check past the plan end.
	svc.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }

	expired, err := svc.ExpireDue(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	sub, err := store.Subscribers().Get(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, contracts.TierFree, sub.Tier)
	assert.Nil(t, sub.PlanEnd)
}

func TestExpireDueHonorsBatchLimit(t *testing.T) {
	svc, _ := newTestService()

	for id := int64(1); id <= 5; id++ {
		_, err := svc.Register(context.Background(), id, "user", nil)
		require.NoError(t, err)
		require.NoError(t, svc.Activate(context.Background(), id, contracts.TierPlus))
	}

	svc.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }

	expired, err := svc.ExpireDue(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, expired)
}
