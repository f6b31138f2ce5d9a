package payments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rentwise-payments/pkg/db/models"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
)

func pendingDependent() *models.DependentRecord {
	return &models.DependentRecord{
		UserID:            "u1",
		PlanID:            "t1",
		PlanName:          "Pro",
		Status:            enums.DependentStatusPending,
		PaymentReference:  "r1",
		LastPaymentStatus: enums.PaymentStatusPending,
	}
}

func TestApplyPaymentStatusSuccessActivates(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	dep := pendingDependent()

	changed := ApplyPaymentStatus(dep, enums.PaymentStatusSuccess, now)

	require.True(t, changed)
	assert.Equal(t, enums.DependentStatusActive, dep.Status)
	assert.Equal(t, enums.PaymentStatusSuccess, dep.LastPaymentStatus)
	require.NotNil(t, dep.CurrentPeriodStart)
	assert.True(t, dep.CurrentPeriodStart.Equal(now))
	assert.True(t, dep.UpdatedAt.Equal(now))
}

func TestApplyPaymentStatusIsIdempotent(t *testing.T) {
	first := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	second := first.Add(15 * time.Minute)

	for _, status := range []enums.PaymentStatus{
		enums.PaymentStatusSuccess,
		enums.PaymentStatusFailed,
		enums.PaymentStatusCancelled,
	} {
		t.Run(status.String(), func(t *testing.T) {
			once := pendingDependent()
			ApplyPaymentStatus(once, status, first)

			twice := pendingDependent()
			ApplyPaymentStatus(twice, status, first)
			changed := ApplyPaymentStatus(twice, status, second)

			assert.False(t, changed)
			assert.Equal(t, once.Status, twice.Status)
			assert.Equal(t, once.LastPaymentStatus, twice.LastPaymentStatus)
			assert.Equal(t, once.CurrentPeriodStart, twice.CurrentPeriodStart)
		})
	}
}

func TestApplyPaymentStatusFailureMarksPastDue(t *testing.T) {
	now := time.Now()
	for _, status := range []enums.PaymentStatus{enums.PaymentStatusFailed, enums.PaymentStatusCancelled} {
		dep := pendingDependent()
		require.True(t, ApplyPaymentStatus(dep, status, now))
		assert.Equal(t, enums.DependentStatusPastDue, dep.Status)
		assert.Equal(t, status, dep.LastPaymentStatus)
		assert.Nil(t, dep.CurrentPeriodStart)
	}
}

func TestApplyPaymentStatusPendingKeepsStatus(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	dep := pendingDependent()
	dep.Status = enums.DependentStatusActive
	dep.LastPaymentStatus = ""

	changed := ApplyPaymentStatus(dep, enums.PaymentStatusPending, now)

	assert.True(t, changed)
	assert.Equal(t, enums.DependentStatusActive, dep.Status)
	assert.Equal(t, enums.PaymentStatusPending, dep.LastPaymentStatus)
	assert.True(t, dep.UpdatedAt.Equal(now))

	assert.False(t, ApplyPaymentStatus(dep, enums.PaymentStatusPending, now))
}

func TestApplyPaymentStatusRestampsAfterLapse(t *testing.T) {
	first := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	renewed := first.AddDate(0, 1, 0)
	dep := pendingDependent()

	ApplyPaymentStatus(dep, enums.PaymentStatusSuccess, first)
	ApplyPaymentStatus(dep, enums.PaymentStatusFailed, first.Add(time.Hour))
	ApplyPaymentStatus(dep, enums.PaymentStatusSuccess, renewed)

	require.NotNil(t, dep.CurrentPeriodStart)
	assert.True(t, dep.CurrentPeriodStart.Equal(renewed))
}

func TestApplyPaymentStatusIgnoresInvalidInput(t *testing.T) {
	assert.False(t, ApplyPaymentStatus(nil, enums.PaymentStatusSuccess, time.Now()))
	dep := pendingDependent()
	assert.False(t, ApplyPaymentStatus(dep, enums.PaymentStatus("REVERSED"), time.Now()))
	assert.Equal(t, enums.DependentStatusPending, dep.Status)
}
