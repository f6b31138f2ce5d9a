package mobilemoneywebhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rentwise-payments/internal/payments"
	"github.com/angelmondragon/rentwise-payments/internal/reconcile"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
)

type stubReconciler struct {
	kind      enums.PaymentKind
	reference string
	err       error
}

func (s *stubReconciler) ReconcileReference(_ context.Context, kind enums.PaymentKind, reference string) (*reconcile.ReferenceResult, error) {
	s.kind = kind
	s.reference = reference
	if s.err != nil {
		return nil, s.err
	}
	return &reconcile.ReferenceResult{
		Reference: reference,
		Status:    enums.PaymentStatusSuccess,
		Outcome:   &payments.SyncOutcome{PaymentUpdated: true},
	}, nil
}

func newService(t *testing.T, rec *stubReconciler) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Reconciler: rec, Logger: logger.Nop()})
	require.NoError(t, err)
	return svc
}

func TestHandleEventDefaultsToSubscriptionKind(t *testing.T) {
	rec := &stubReconciler{}
	svc := newService(t, rec)

	require.NoError(t, svc.HandleEvent(context.Background(), &Event{EventID: "evt-1", Reference: " ref-1 "}))
	assert.Equal(t, enums.PaymentKindSubscription, rec.kind)
	assert.Equal(t, "ref-1", rec.reference)
}

func TestHandleEventRoutesPartnerKind(t *testing.T) {
	rec := &stubReconciler{}
	svc := newService(t, rec)

	require.NoError(t, svc.HandleEvent(context.Background(), &Event{EventID: "evt-1", Reference: "ref-1", Kind: "partner"}))
	assert.Equal(t, enums.PaymentKindPartner, rec.kind)
}

func TestHandleEventValidatesInput(t *testing.T) {
	svc := newService(t, &stubReconciler{})

	err := svc.HandleEvent(context.Background(), &Event{EventID: "evt-1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = svc.HandleEvent(context.Background(), &Event{EventID: "evt-1", Reference: "ref", Kind: "rent"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestHandleEventPropagatesReconcileError(t *testing.T) {
	cause := pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("timeout"), "payment status query failed")
	svc := newService(t, &stubReconciler{err: cause})

	err := svc.HandleEvent(context.Background(), &Event{EventID: "evt-1", Reference: "ref-1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

type memoryGuardStore struct {
	claims map[string]time.Duration
}

func (m *memoryGuardStore) ClaimEvent(_ context.Context, source, eventID string, ttl time.Duration) (bool, error) {
	if m.claims == nil {
		m.claims = map[string]time.Duration{}
	}
	k := source + ":" + eventID
	if _, ok := m.claims[k]; ok {
		return false, nil
	}
	m.claims[k] = ttl
	return true, nil
}

func (m *memoryGuardStore) ReleaseEvent(_ context.Context, source, eventID string) error {
	delete(m.claims, source+":"+eventID)
	return nil
}

func TestEventGuardMarksAndReleases(t *testing.T) {
	store := &memoryGuardStore{}
	guard, err := NewEventGuard(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, time.Hour, store.claims[GuardScope+":evt-1"])

	seen, err = guard.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, guard.Delete(ctx, "evt-1"))
	seen, err = guard.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestEventGuardRequiresEventID(t *testing.T) {
	guard, err := NewEventGuard(&memoryGuardStore{}, time.Hour)
	require.NoError(t, err)

	_, err = guard.CheckAndMark(context.Background(), "")
	require.Error(t, err)
	require.Error(t, guard.Delete(context.Background(), ""))
}
