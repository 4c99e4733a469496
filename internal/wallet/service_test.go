package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockCache struct{ mock.Mock }
type MockBalancer struct{ mock.Mock }

func (m *MockCache) GetOrCreate(ctx context.Context, userID int) (*Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Wallet), args.Error(1)
}

func (m *MockCache) ApplyCorrection(ctx context.Context, userID int, balance int64) error {
	return m.Called(ctx, userID, balance).Error(0)
}

func (m *MockCache) StampSynced(ctx context.Context, userID int) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockCache) ListUserIDs(ctx context.Context) ([]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockBalancer) BalanceOf(ctx context.Context, userID int) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func newTestService(cache *MockCache, bal *MockBalancer) Service {
	return NewService(cache, bal, 5*time.Minute, time.Second)
}

func TestReconcile_CorrectsDrift(t *testing.T) {
	cache := new(MockCache)
	bal := new(MockBalancer)
	svc := newTestService(cache, bal)

	// Ledger says 120, cache says 0: the scenario after a cold init.
	bal.On("BalanceOf", mock.Anything, 1).Return(int64(120), nil)
	cache.On("GetOrCreate", mock.Anything, 1).Return(&Wallet{UserID: 1, Available: 0}, nil)
	cache.On("ApplyCorrection", mock.Anything, 1, int64(120)).Return(nil)

	result, err := svc.Reconcile(context.Background(), 1)
	assert.NoError(t, err)
	assert.True(t, result.Corrected)
	assert.Equal(t, int64(120), result.LedgerBalance)
	assert.Equal(t, int64(0), result.CacheBalance)
	cache.AssertExpectations(t)
}

func TestReconcile_OpenHoldIsNotDrift(t *testing.T) {
	cache := new(MockCache)
	bal := new(MockBalancer)
	svc := newTestService(cache, bal)

	// Balance 500 with 100 on hold: available 400, pending 100. The hold
	// moved coins out of available without a ledger entry, so the pass is
	// clean and must not write the full balance back into available.
	bal.On("BalanceOf", mock.Anything, 1).Return(int64(500), nil)
	cache.On("GetOrCreate", mock.Anything, 1).Return(&Wallet{UserID: 1, Available: 400, Pending: 100}, nil)
	cache.On("StampSynced", mock.Anything, 1).Return(nil)

	result, err := svc.Reconcile(context.Background(), 1)
	assert.NoError(t, err)
	assert.False(t, result.Corrected)
	assert.Equal(t, int64(500), result.CacheBalance)
	cache.AssertNumberOfCalls(t, "ApplyCorrection", 0)
}

func TestReconcile_CorrectsDriftUnderOpenHold(t *testing.T) {
	cache := new(MockCache)
	bal := new(MockBalancer)
	svc := newTestService(cache, bal)

	// Genuine drift with a hold open: available + pending disagrees with
	// the ledger. The correction carries the ledger balance; the repository
	// subtracts the row's pending when writing available.
	bal.On("BalanceOf", mock.Anything, 1).Return(int64(500), nil)
	cache.On("GetOrCreate", mock.Anything, 1).Return(&Wallet{UserID: 1, Available: 500, Pending: 100}, nil)
	cache.On("ApplyCorrection", mock.Anything, 1, int64(500)).Return(nil)

	result, err := svc.Reconcile(context.Background(), 1)
	assert.NoError(t, err)
	assert.True(t, result.Corrected)
	assert.Equal(t, int64(600), result.CacheBalance)
	cache.AssertExpectations(t)
}

func TestReconcile_CleanPassIsNoOp(t *testing.T) {
	cache := new(MockCache)
	bal := new(MockBalancer)
	svc := newTestService(cache, bal)

	bal.On("BalanceOf", mock.Anything, 1).Return(int64(120), nil)
	cache.On("GetOrCreate", mock.Anything, 1).Return(&Wallet{UserID: 1, Available: 120}, nil)
	cache.On("StampSynced", mock.Anything, 1).Return(nil)

	// Two consecutive passes with no intervening writes behave identically.
	for i := 0; i < 2; i++ {
		result, err := svc.Reconcile(context.Background(), 1)
		assert.NoError(t, err)
		assert.False(t, result.Corrected)
	}

	cache.AssertNumberOfCalls(t, "ApplyCorrection", 0)
	cache.AssertNumberOfCalls(t, "StampSynced", 2)
}

func TestRead_FreshCacheSkipsReconciliation(t *testing.T) {
	cache := new(MockCache)
	bal := new(MockBalancer)
	svc := newTestService(cache, bal)

	synced := time.Now().Add(-time.Minute)
	cache.On("GetOrCreate", mock.Anything, 1).Return(&Wallet{UserID: 1, Available: 70, LastSyncedAt: &synced}, nil)

	w, err := svc.Read(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, int64(70), w.Available)
	bal.AssertNumberOfCalls(t, "BalanceOf", 0)
}

func TestRead_StaleCacheReconcilesInline(t *testing.T) {
	cache := new(MockCache)
	bal := new(MockBalancer)
	svc := newTestService(cache, bal)

	synced := time.Now().Add(-time.Hour)
	stale := &Wallet{UserID: 1, Available: 50, LastSyncedAt: &synced}

	cache.On("GetOrCreate", mock.Anything, 1).Return(stale, nil)
	bal.On("BalanceOf", mock.Anything, 1).Return(int64(80), nil)
	cache.On("ApplyCorrection", mock.Anything, 1, int64(80)).Return(nil)

	_, err := svc.Read(context.Background(), 1)
	assert.NoError(t, err)
	cache.AssertCalled(t, "ApplyCorrection", mock.Anything, 1, int64(80))
}

func TestRead_NeverSyncedWalletReconciles(t *testing.T) {
	cache := new(MockCache)
	bal := new(MockBalancer)
	svc := newTestService(cache, bal)

	cache.On("GetOrCreate", mock.Anything, 1).Return(&Wallet{UserID: 1}, nil)
	bal.On("BalanceOf", mock.Anything, 1).Return(int64(0), nil)
	cache.On("StampSynced", mock.Anything, 1).Return(nil)

	_, err := svc.Read(context.Background(), 1)
	assert.NoError(t, err)
	bal.AssertCalled(t, "BalanceOf", mock.Anything, 1)
}

func TestRead_ServesStaleCacheWhenLedgerDown(t *testing.T) {
	cache := new(MockCache)
	bal := new(MockBalancer)
	svc := newTestService(cache, bal)

	synced := time.Now().Add(-time.Hour)
	stale := &Wallet{UserID: 1, Available: 50, LastSyncedAt: &synced}

	cache.On("GetOrCreate", mock.Anything, 1).Return(stale, nil)
	bal.On("BalanceOf", mock.Anything, 1).Return(int64(0), errors.New("connection refused"))

	w, err := svc.Read(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, int64(50), w.Available)
}

func TestSweepAll_ContinuesPastFailures(t *testing.T) {
	cache := new(MockCache)
	bal := new(MockBalancer)
	svc := newTestService(cache, bal)

	cache.On("ListUserIDs", mock.Anything).Return([]int{1, 2, 3}, nil)

	bal.On("BalanceOf", mock.Anything, 1).Return(int64(10), nil)
	cache.On("GetOrCreate", mock.Anything, 1).Return(&Wallet{UserID: 1, Available: 10}, nil)
	cache.On("StampSynced", mock.Anything, 1).Return(nil)

	bal.On("BalanceOf", mock.Anything, 2).Return(int64(0), errors.New("timeout"))

	bal.On("BalanceOf", mock.Anything, 3).Return(int64(99), nil)
	cache.On("GetOrCreate", mock.Anything, 3).Return(&Wallet{UserID: 3, Available: 50}, nil)
	cache.On("ApplyCorrection", mock.Anything, 3, int64(99)).Return(nil)

	stats, err := svc.SweepAll(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 3, stats.Checked)
	assert.Equal(t, 1, stats.Corrected)
	assert.Equal(t, 1, stats.Failed)
}
