package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mobilemoneywebhook "github.com/angelmondragon/rentwise-payments/internal/webhooks/mobilemoney"
	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
)

const testSecret = "whsec"

type stubWebhookService struct {
	events []mobilemoneywebhook.Event
	err    error
}

func (s *stubWebhookService) HandleEvent(_ context.Context, event *mobilemoneywebhook.Event) error {
	s.events = append(s.events, *event)
	return s.err
}

type stubGuard struct {
	seen    map[string]bool
	deleted []string
	err     error
}

func (g *stubGuard) CheckAndMark(_ context.Context, eventID string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if g.seen == nil {
		g.seen = map[string]bool{}
	}
	if g.seen[eventID] {
		return true, nil
	}
	g.seen[eventID] = true
	return false, nil
}

func (g *stubGuard) Delete(_ context.Context, eventID string) error {
	delete(g.seen, eventID)
	g.deleted = append(g.deleted, eventID)
	return nil
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookRequest(body, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/mobile-money", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	return req
}

const eventBody = `{"eventId":"evt-1","reference":"ref-1","kind":"subscription","status":"SUCCESS"}`

func TestMobileMoneyWebhookProcessesSignedEvent(t *testing.T) {
	svc := &stubWebhookService{}
	guard := &stubGuard{}
	handler := MobileMoneyWebhook(svc, testSecret, guard, logger.Nop())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, webhookRequest(eventBody, sign(eventBody)))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, svc.events, 1)
	assert.Equal(t, "ref-1", svc.events[0].Reference)
	assert.Equal(t, "subscription", svc.events[0].Kind)
}

func TestMobileMoneyWebhookRejectsBadSignature(t *testing.T) {
	svc := &stubWebhookService{}
	handler := MobileMoneyWebhook(svc, testSecret, &stubGuard{}, logger.Nop())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, webhookRequest(eventBody, sign(`{"eventId":"other"}`)))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, webhookRequest(eventBody, ""))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	assert.Empty(t, svc.events)
}

func TestMobileMoneyWebhookAcknowledgesDuplicates(t *testing.T) {
	svc := &stubWebhookService{}
	handler := MobileMoneyWebhook(svc, testSecret, &stubGuard{}, logger.Nop())

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, webhookRequest(eventBody, sign(eventBody)))
		require.Equal(t, http.StatusOK, resp.Code)
	}
	assert.Len(t, svc.events, 1)
}

func TestMobileMoneyWebhookReleasesGuardOnFailure(t *testing.T) {
	svc := &stubWebhookService{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("timeout"), "payment status query failed")}
	guard := &stubGuard{}
	handler := MobileMoneyWebhook(svc, testSecret, guard, logger.Nop())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, webhookRequest(eventBody, sign(eventBody)))

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Equal(t, []string{"evt-1"}, guard.deleted)

	svc.err = nil
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, webhookRequest(eventBody, sign(eventBody)))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, svc.events, 2)
}

func TestMobileMoneyWebhookRequiresEventID(t *testing.T) {
	body := `{"reference":"ref-1"}`
	handler := MobileMoneyWebhook(&stubWebhookService{}, testSecret, &stubGuard{}, logger.Nop())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, webhookRequest(body, sign(body)))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMobileMoneyWebhookWithoutSecretIsPrecondition(t *testing.T) {
	handler := MobileMoneyWebhook(&stubWebhookService{}, "", &stubGuard{}, logger.Nop())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, webhookRequest(eventBody, sign(eventBody)))
	assert.Equal(t, http.StatusPreconditionFailed, resp.Code)
}
