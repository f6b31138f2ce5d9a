package payments

import (
	"time"

	"github.com/angelmondragon/rentwise-payments/pkg/db/models"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
)

// ApplyPaymentStatus derives the dependent record's state from an observed payment
// status. It is the only place the payment -> dependent mapping lives; checkout,
// the on-demand check, the sweep and the webhook all call it.
//
//	SUCCESS            -> active, period start stamped once
//	FAILED, CANCELLED  -> past_due
//	PENDING            -> status untouched
//
// lastPaymentStatus and updatedAt always refresh. Re-applying the same terminal
// status leaves the record as it was, including currentPeriodStart. The return
// value reports whether any derived field other than updatedAt changed.
func ApplyPaymentStatus(dep *models.DependentRecord, status enums.PaymentStatus, now time.Time) bool {
	if dep == nil || !status.IsValid() {
		return false
	}
	changed := false

	switch status {
	case enums.PaymentStatusSuccess:
		alreadyActive := dep.Status == enums.DependentStatusActive &&
			dep.LastPaymentStatus == enums.PaymentStatusSuccess &&
			dep.CurrentPeriodStart != nil
		if !alreadyActive {
			dep.Status = enums.DependentStatusActive
			stamp := now.UTC()
			dep.CurrentPeriodStart = &stamp
			changed = true
		}
	case enums.PaymentStatusFailed, enums.PaymentStatusCancelled:
		if dep.Status != enums.DependentStatusPastDue {
			dep.Status = enums.DependentStatusPastDue
			changed = true
		}
	}

	if dep.LastPaymentStatus != status {
		dep.LastPaymentStatus = status
		changed = true
	}
	dep.UpdatedAt = now.UTC()
	return changed
}
