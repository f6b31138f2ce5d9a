package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rentwise-payments/api/middleware"
	checkoutsvc "github.com/angelmondragon/rentwise-payments/internal/checkout"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
)

type stubCheckoutService struct {
	input  checkoutsvc.Input
	calls  int
	result *checkoutsvc.Result
	err    error
}

func (s *stubCheckoutService) InitiateCheckout(_ context.Context, input checkoutsvc.Input) (*checkoutsvc.Result, error) {
	s.calls++
	s.input = input
	return s.result, s.err
}

func authedRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	return req.WithContext(middleware.WithUserID(req.Context(), "user-1"))
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func decodeErrorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

func TestSubscriptionCheckoutForwardsInput(t *testing.T) {
	svc := &stubCheckoutService{result: &checkoutsvc.Result{
		Success:          true,
		PaymentReference: "ref-1",
		PaymentID:        "pay-1",
		Status:           enums.PaymentStatusPending,
		IntentPath:       "subscription_payments/ref-1",
	}}

	req := authedRequest(http.MethodPost, "/api/v1/payments/checkout", `{
		"subscriptionTierId": "tier-basic",
		"subscriptionTierName": "Basic",
		"amount": "150.00",
		"currency": "zmw",
		"mobileMoneyNetwork": "MTN",
		"msisdn": "0971234567"
	}`)
	req.Header.Set(middleware.IdempotencyKeyHeader, "key-1")
	resp := httptest.NewRecorder()
	SubscriptionCheckout(svc, logger.Nop()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "user-1", svc.input.UserID)
	assert.Equal(t, enums.PaymentKindSubscription, svc.input.Kind)
	assert.Equal(t, "tier-basic", svc.input.TierID)
	assert.Equal(t, "Basic", svc.input.TierName)
	assert.True(t, svc.input.Amount.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, "ZMW", svc.input.Currency)
	assert.Equal(t, "key-1", svc.input.IdempotencyKey)

	var result checkoutsvc.Result
	decodeData(t, resp, &result)
	assert.Equal(t, "ref-1", result.PaymentReference)
	assert.Equal(t, enums.PaymentStatusPending, result.Status)
}

func TestSubscriptionCheckoutRejectsInvalidBodyBeforeService(t *testing.T) {
	svc := &stubCheckoutService{}
	req := authedRequest(http.MethodPost, "/api/v1/payments/checkout", `{"subscriptionTierId":"tier","amount":"0"}`)
	resp := httptest.NewRecorder()
	SubscriptionCheckout(svc, logger.Nop()).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), decodeErrorCode(t, resp))
	assert.Zero(t, svc.calls)
}

func TestSubscriptionCheckoutMapsGatewayError(t *testing.T) {
	svc := &stubCheckoutService{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("timeout"), "payment gateway unavailable")}
	req := authedRequest(http.MethodPost, "/api/v1/payments/checkout", `{
		"subscriptionTierId": "tier",
		"subscriptionTierName": "Basic",
		"amount": 150,
		"mobileMoneyNetwork": "airtel",
		"msisdn": "0971234567"
	}`)
	resp := httptest.NewRecorder()
	SubscriptionCheckout(svc, logger.Nop()).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeDependency), decodeErrorCode(t, resp))
}

func TestPartnerCheckoutForwardsInput(t *testing.T) {
	svc := &stubCheckoutService{result: &checkoutsvc.Result{Success: true, PaymentReference: "ref-p"}}
	req := authedRequest(http.MethodPost, "/api/v1/payments/partner-checkout", `{
		"partnerName": "Acme Movers",
		"tierName": "Gold",
		"amount": "300.50",
		"mobileMoneyNetwork": "ZAMTEL",
		"msisdn": "+260951234567"
	}`)
	resp := httptest.NewRecorder()
	PartnerCheckout(svc, logger.Nop()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, enums.PaymentKindPartner, svc.input.Kind)
	assert.Equal(t, "Acme Movers", svc.input.PartnerName)
	assert.Equal(t, "Gold", svc.input.TierName)
	assert.Empty(t, svc.input.Currency)
}

func TestPartnerCheckoutMapsFailedPrecondition(t *testing.T) {
	svc := &stubCheckoutService{err: pkgerrors.New(pkgerrors.CodeFailedPrecondition, "payments portal url is not configured")}
	req := authedRequest(http.MethodPost, "/api/v1/payments/partner-checkout", `{
		"partnerName": "Acme",
		"amount": "10",
		"mobileMoneyNetwork": "MTN",
		"msisdn": "0971234567"
	}`)
	resp := httptest.NewRecorder()
	PartnerCheckout(svc, logger.Nop()).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusPreconditionFailed, resp.Code)
}
