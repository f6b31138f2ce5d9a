package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/rentwise-payments/api/responses"
	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
)

// IdempotencyKeyHeader carries the client-chosen replay key. The same key is
// sent to the gateway with the charge.
const IdempotencyKeyHeader = "Idempotency-Key"

// checkoutReplayTTL outlives the provider's own duplicate-charge window.
const checkoutReplayTTL = 7 * 24 * time.Hour

// checkoutRoutes are the endpoints that debit a wallet.
var checkoutRoutes = map[string]struct{}{
	http.MethodPost + " /api/v1/payments/checkout":         {},
	http.MethodPost + " /api/v1/payments/partner-checkout": {},
}

type replayStore interface {
	LoadReplay(ctx context.Context, scope, idempotencyKey string) ([]byte, bool, error)
	StoreReplay(ctx context.Context, scope, idempotencyKey string, payload []byte, ttl time.Duration) (bool, error)
}

// checkoutReplay is what a retried checkout gets back instead of a second charge.
type checkoutReplay struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// CheckoutIdempotency makes checkout requests safe to retry: the first
// non-5xx response for a user's Idempotency-Key is stored and replayed, and
// reusing the key for a different request body is rejected.
func CheckoutIdempotency(store replayStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || !isCheckoutRoute(r) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			idemKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if idemKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			scope := UserIDFromContext(ctx) + "|" + r.Method + "|" + r.URL.Path
			fingerprint := fingerprintOf(body)

			raw, found, err := store.LoadReplay(ctx, scope, idemKey)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if found {
				var prior checkoutReplay
				if err := json.Unmarshal(raw, &prior); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode stored checkout"))
					return
				}
				if prior.Fingerprint != fingerprint {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "Idempotency-Key already used for a different checkout").
						WithDetails(map[string]any{"paymentReference": paymentReferenceIn(prior.Body)}))
					return
				}
				if logg != nil {
					logg.Info(logg.WithPaymentReference(ctx, paymentReferenceIn(prior.Body)), "checkout replayed")
				}
				prior.writeTo(w)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			// a gateway or store failure is not final; the client retries with the same key
			if status >= http.StatusInternalServerError {
				return
			}
			payload, err := json.Marshal(checkoutReplay{
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				Fingerprint: fingerprint,
			})
			if err == nil {
				_, err = store.StoreReplay(ctx, scope, idemKey, payload, checkoutReplayTTL)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "store checkout replay", err)
			}
		})
	}
}

func isCheckoutRoute(r *http.Request) bool {
	candidates := []string{r.URL.Path}
	// on a subrouter chi reports a wildcard pattern, so the raw path is the fallback
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		candidates = append(candidates, rctx.RoutePattern())
	}
	for _, path := range candidates {
		if _, ok := checkoutRoutes[r.Method+" "+path]; ok {
			return true
		}
	}
	return false
}

func fingerprintOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// paymentReferenceIn digs the reference out of a stored checkout envelope.
func paymentReferenceIn(body []byte) string {
	var envelope struct {
		Data struct {
			PaymentReference string `json:"paymentReference"`
		} `json:"data"`
	}
	if json.Unmarshal(body, &envelope) != nil {
		return ""
	}
	return envelope.Data.PaymentReference
}

func (c checkoutReplay) writeTo(w http.ResponseWriter) {
	if c.ContentType != "" {
		w.Header().Set("Content-Type", c.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(c.Status)
	_, _ = w.Write(c.Body)
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
