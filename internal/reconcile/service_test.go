package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentwise-payments/internal/payments"
	"github.com/angelmondragon/rentwise-payments/pkg/db"
	"github.com/angelmondragon/rentwise-payments/pkg/db/models"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
	"github.com/angelmondragon/rentwise-payments/pkg/mobilemoney"
	"github.com/angelmondragon/rentwise-payments/pkg/outbox"
)

type stubGateway struct {
	queries []mobilemoney.StatusQuery
	status  enums.PaymentStatus
	err     error
}

func (s *stubGateway) QueryStatus(_ context.Context, query mobilemoney.StatusQuery) (*mobilemoney.PaymentResult, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return &mobilemoney.PaymentResult{ID: query.ID, Reference: query.Reference, Status: s.status}, nil
}

type reconcileFixture struct {
	svc        Service
	gateway    *stubGateway
	payments   *payments.PaymentRepository
	dependents *payments.DependentRepository
	now        time.Time
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, payments.AutoMigrate(conn))

	f := &reconcileFixture{
		gateway:    &stubGateway{status: enums.PaymentStatusSuccess},
		payments:   payments.NewPaymentRepository(conn),
		dependents: payments.NewDependentRepository(conn),
		now:        time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	syncer, err := payments.NewSyncer(payments.SyncerParams{
		DB:         db.NewFromGorm(conn),
		Payments:   f.payments,
		Dependents: f.dependents,
		Outbox:     outbox.NewEmitter(outbox.NewStore(conn), logger.Nop()),
		Logger:     logger.Nop(),
		Now:        func() time.Time { return f.now },
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Payments:   f.payments,
		Dependents: f.dependents,
		Gateway:    f.gateway,
		Syncer:     syncer,
		Logger:     logger.Nop(),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *reconcileFixture) seed(t *testing.T, kind enums.PaymentKind, reference, userID string, status enums.PaymentStatus) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.payments.Create(ctx, kind, &models.PaymentRecord{
		Reference:    reference,
		PaymentID:    "pid-" + reference,
		UserID:       userID,
		DependentID:  userID,
		Kind:         kind,
		Amount:       decimal.NewFromInt(500),
		Currency:     "ZMW",
		Network:      enums.NetworkAirtel,
		MSISDN:       "0977123456",
		MaskedMSISDN: "*******3456",
		Status:       status,
		CreatedAt:    f.now.Add(-time.Hour),
	}))
	require.NoError(t, f.dependents.Upsert(ctx, kind, &models.DependentRecord{
		UserID:            userID,
		PlanID:            "t1",
		PlanName:          "Pro",
		Status:            enums.DependentStatusPending,
		PaymentReference:  reference,
		PaymentID:         "pid-" + reference,
		LastPaymentStatus: enums.PaymentStatusPending,
	}))
}

func TestCheckSubscriptionActivatesOnSuccess(t *testing.T) {
	f := newReconcileFixture(t)
	f.seed(t, enums.PaymentKindSubscription, "r1", "u1", enums.PaymentStatusPending)

	result, err := f.svc.CheckSubscription(context.Background(), "u1", "")
	require.NoError(t, err)

	require.NotNil(t, result.PaymentStatus)
	assert.Equal(t, enums.PaymentStatusSuccess, *result.PaymentStatus)
	assert.Equal(t, enums.DependentStatusActive, result.Subscription.Status)
	require.NotNil(t, result.Subscription.CurrentPeriodStart)
	assert.True(t, result.Subscription.CurrentPeriodStart.Equal(f.now))
	require.Len(t, f.gateway.queries, 1)
	assert.Equal(t, mobilemoney.StatusQuery{ID: "pid-r1", Reference: "r1"}, f.gateway.queries[0])

	payment, err := f.payments.FindByReference(context.Background(), enums.PaymentKindSubscription, "r1")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusSuccess, payment.Status)
	assert.Nil(t, payment.LastSyncedAt)
}

func TestCheckSubscriptionPartnerKind(t *testing.T) {
	f := newReconcileFixture(t)
	f.seed(t, enums.PaymentKindPartner, "r9", "u1", enums.PaymentStatusPending)
	f.gateway.status = enums.PaymentStatusCancelled

	result, err := f.svc.CheckSubscription(context.Background(), "u1", enums.PaymentKindPartner)
	require.NoError(t, err)
	assert.Equal(t, enums.DependentStatusPastDue, result.Subscription.Status)
}

func TestCheckSubscriptionNotFound(t *testing.T) {
	f := newReconcileFixture(t)

	_, err := f.svc.CheckSubscription(context.Background(), "ghost", enums.PaymentKindSubscription)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Empty(t, f.gateway.queries)
}

func TestCheckSubscriptionWithoutPaymentReturnsRecord(t *testing.T) {
	f := newReconcileFixture(t)
	require.NoError(t, f.dependents.Upsert(context.Background(), enums.PaymentKindSubscription, &models.DependentRecord{
		UserID:   "u1",
		PlanID:   "free",
		PlanName: "Free",
		Status:   enums.DependentStatusActive,
	}))

	result, err := f.svc.CheckSubscription(context.Background(), "u1", enums.PaymentKindSubscription)
	require.NoError(t, err)
	assert.Nil(t, result.PaymentStatus)
	assert.Equal(t, enums.DependentStatusActive, result.Subscription.Status)
	assert.Empty(t, f.gateway.queries)
}

func TestCheckSubscriptionGatewayFailureMutatesNothing(t *testing.T) {
	f := newReconcileFixture(t)
	f.seed(t, enums.PaymentKindSubscription, "r1", "u1", enums.PaymentStatusPending)
	f.gateway.err = pkgerrors.New(pkgerrors.CodeDependency, "status request failed")

	_, err := f.svc.CheckSubscription(context.Background(), "u1", enums.PaymentKindSubscription)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	dep, err := f.dependents.FindByUserID(context.Background(), enums.PaymentKindSubscription, "u1")
	require.NoError(t, err)
	assert.Equal(t, enums.DependentStatusPending, dep.Status)
	payment, err := f.payments.FindByReference(context.Background(), enums.PaymentKindSubscription, "r1")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)
}

func TestCheckSubscriptionRejectsBadInput(t *testing.T) {
	f := newReconcileFixture(t)

	_, err := f.svc.CheckSubscription(context.Background(), " ", enums.PaymentKindSubscription)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.CheckSubscription(context.Background(), "u1", enums.PaymentKind("booking"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestReconcileReferenceQueriesPendingPayment(t *testing.T) {
	f := newReconcileFixture(t)
	f.seed(t, enums.PaymentKindSubscription, "r1", "u1", enums.PaymentStatusPending)
	f.gateway.status = enums.PaymentStatusFailed

	result, err := f.svc.ReconcileReference(context.Background(), enums.PaymentKindSubscription, "r1")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, result.Status)
	assert.True(t, result.Outcome.PaymentUpdated)
	assert.Equal(t, enums.DependentStatusPastDue, result.Outcome.Dependent.Status)
}

func TestReconcileReferenceReplaysTerminalPaymentWithoutGateway(t *testing.T) {
	f := newReconcileFixture(t)
	f.seed(t, enums.PaymentKindSubscription, "r1", "u1", enums.PaymentStatusSuccess)

	result, err := f.svc.ReconcileReference(context.Background(), enums.PaymentKindSubscription, "r1")
	require.NoError(t, err)
	assert.Empty(t, f.gateway.queries)
	assert.False(t, result.Outcome.PaymentUpdated)
	assert.True(t, result.Outcome.DependentChanged)
	assert.Equal(t, enums.DependentStatusActive, result.Outcome.Dependent.Status)
}

func TestReconcileReferenceUnknownPayment(t *testing.T) {
	f := newReconcileFixture(t)

	_, err := f.svc.ReconcileReference(context.Background(), enums.PaymentKindSubscription, "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
