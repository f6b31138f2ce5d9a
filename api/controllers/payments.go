package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rentwise-payments/api/middleware"
	"github.com/angelmondragon/rentwise-payments/api/responses"
	"github.com/angelmondragon/rentwise-payments/api/validators"
	checkoutsvc "github.com/angelmondragon/rentwise-payments/internal/checkout"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
)

type subscriptionCheckoutRequest struct {
	SubscriptionTierID   string          `json:"subscriptionTierId" validate:"required,max=64"`
	SubscriptionTierName string          `json:"subscriptionTierName" validate:"required,max=128"`
	Amount               decimal.Decimal `json:"amount" validate:"decimal_positive"`
	Currency             string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	MobileMoneyNetwork   string          `json:"mobileMoneyNetwork" validate:"required"`
	MSISDN               string          `json:"msisdn" validate:"required,max=20"`
	CustomerName         string          `json:"customerName,omitempty" validate:"omitempty,max=128"`
}

type partnerCheckoutRequest struct {
	PartnerName        string          `json:"partnerName" validate:"required,max=128"`
	TierName           string          `json:"tierName,omitempty" validate:"omitempty,max=128"`
	Amount             decimal.Decimal `json:"amount" validate:"decimal_positive"`
	Currency           string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	MobileMoneyNetwork string          `json:"mobileMoneyNetwork" validate:"required"`
	MSISDN             string          `json:"msisdn" validate:"required,max=20"`
}

// SubscriptionCheckout starts a mobile-money charge for a tenant subscription tier.
func SubscriptionCheckout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload subscriptionCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.InitiateCheckout(r.Context(), checkoutsvc.Input{
			UserID:         middleware.UserIDFromContext(r.Context()),
			Kind:           enums.PaymentKindSubscription,
			TierID:         validators.SanitizeString(payload.SubscriptionTierID, 64),
			TierName:       validators.SanitizeString(payload.SubscriptionTierName, 128),
			Amount:         payload.Amount,
			Currency:       strings.ToUpper(strings.TrimSpace(payload.Currency)),
			Network:        payload.MobileMoneyNetwork,
			MSISDN:         payload.MSISDN,
			CustomerName:   validators.SanitizeString(payload.CustomerName, 128),
			IdempotencyKey: strings.TrimSpace(r.Header.Get(middleware.IdempotencyKeyHeader)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// PartnerCheckout starts a mobile-money charge for a partner listing subscription.
func PartnerCheckout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload partnerCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.InitiateCheckout(r.Context(), checkoutsvc.Input{
			UserID:         middleware.UserIDFromContext(r.Context()),
			Kind:           enums.PaymentKindPartner,
			PartnerName:    validators.SanitizeString(payload.PartnerName, 128),
			TierName:       validators.SanitizeString(payload.TierName, 128),
			Amount:         payload.Amount,
			Currency:       strings.ToUpper(strings.TrimSpace(payload.Currency)),
			Network:        payload.MobileMoneyNetwork,
			MSISDN:         payload.MSISDN,
			IdempotencyKey: strings.TrimSpace(r.Header.Get(middleware.IdempotencyKeyHeader)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
