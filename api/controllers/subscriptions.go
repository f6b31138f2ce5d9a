package controllers

import (
	"net/http"

	"github.com/angelmondragon/rentwise-payments/api/middleware"
	"github.com/angelmondragon/rentwise-payments/api/responses"
	"github.com/angelmondragon/rentwise-payments/api/validators"
	reconcilesvc "github.com/angelmondragon/rentwise-payments/internal/reconcile"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
)

type checkSubscriptionRequest struct {
	Kind string `json:"kind,omitempty" validate:"omitempty,oneof=subscription partner"`
}

// CheckSubscription re-queries the caller's latest payment and returns the refreshed record.
func CheckSubscription(svc reconcilesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}

		var payload checkSubscriptionRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CheckSubscription(r.Context(), middleware.UserIDFromContext(r.Context()), enums.PaymentKind(payload.Kind))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
