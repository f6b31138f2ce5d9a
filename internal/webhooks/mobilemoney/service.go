package mobilemoneywebhook

import (
	"context"
	"strings"

	"github.com/angelmondragon/rentwise-payments/internal/reconcile"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
)

// Event is the provider callback body. Any status it carries is ignored; the
// gateway is re-queried instead.
type Event struct {
	EventID   string `json:"eventId"`
	Reference string `json:"reference"`
	Kind      string `json:"kind,omitempty"`
}

type referenceReconciler interface {
	ReconcileReference(ctx context.Context, kind enums.PaymentKind, reference string) (*reconcile.ReferenceResult, error)
}

type ServiceParams struct {
	Reconciler referenceReconciler
	Logger     *logger.Logger
}

type Service struct {
	reconciler referenceReconciler
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{reconciler: params.Reconciler, logg: params.Logger}, nil
}

// HandleEvent reconciles the payment the callback refers to.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}
	reference := strings.TrimSpace(event.Reference)
	if reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	kind, err := enums.ParsePaymentKind(event.Kind)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment kind")
	}

	ctx = s.logg.WithPaymentReference(ctx, reference)
	result, err := s.reconciler.ReconcileReference(ctx, kind, reference)
	if err != nil {
		return err
	}

	changed := result.Outcome != nil && (result.Outcome.PaymentUpdated || result.Outcome.DependentChanged)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event_id": event.EventID,
		"kind":     kind.String(),
		"status":   string(result.Status),
		"changed":  changed,
	}), "mobile money webhook reconciled")
	return nil
}
