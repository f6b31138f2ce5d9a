package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
)

// Envelope wraps every successful payload.
type Envelope struct {
	Data any `json:"data"`
}

// ErrorBody is the client-facing part of a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every failed request.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Data: data})
}

// WriteError renders err under its code's policy and logs it with the
// payment reference when one is attached. Unclassified errors become 500s and
// never leak their message.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	policy := pkgerrors.PolicyFor(typed.Code())

	body := ErrorBody{Code: string(typed.Code()), Message: policy.PublicMessage}
	if policy.ClientMessage && typed.Message() != "" {
		body.Message = typed.Message()
	}
	if policy.ExposeDetails {
		body.Details = typed.Details()
	}
	if policy.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(policy.RetryAfter.Seconds())))
	}

	if logg != nil {
		fields := pkgerrors.Diagnose(err).Fields()
		if ref := paymentReferenceOf(typed); ref != "" {
			fields["payment_reference"] = ref
		}
		logg.Error(logg.WithFields(ctx, fields), "request.error", err)
	}

	writeJSON(w, policy.HTTPStatus, ErrorEnvelope{Error: body})
}

func paymentReferenceOf(err *pkgerrors.Error) string {
	details, ok := err.Details().(map[string]any)
	if !ok {
		return ""
	}
	ref, _ := details["paymentReference"].(string)
	return ref
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// the status line is already out; an encode failure here is the client hanging up
	_ = json.NewEncoder(w).Encode(payload)
}
