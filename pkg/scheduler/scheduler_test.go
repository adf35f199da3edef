package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_RejectsBadSchedule(t *testing.T) {
	r := newTestReconciler(enabled, &fakePayments{}, time.Now())
	_, err := New("every five minutes", r, zap.NewNop())
	assert.Error(t, err)

	// five-field expressions lack the seconds field
	_, err = New("*/5 * * * *", r, zap.NewNop())
	assert.Error(t, err)
}

func TestNew_AcceptsDefaultSchedule(t *testing.T) {
	r := newTestReconciler(enabled, &fakePayments{}, time.Now())
	s, err := New("0 0/5 * * * ?", r, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_RunsReconciler(t *testing.T) {
	p := &fakePayments{pending: []models.Payment{{ID: "p1", TransactionID: "pi_1"}}}
	r := NewReconciler(enabled, p, nil, zap.NewNop())

	s, err := New("* * * * * *", r, zap.NewNop())
	require.NoError(t, err)
	s.Start()

	require.Eventually(t, func() bool {
		return len(p.syncedIDs()) > 0
	}, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "second stop is a no-op")
}
