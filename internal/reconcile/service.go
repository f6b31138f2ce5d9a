package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/rentwise-payments/internal/payments"
	"github.com/angelmondragon/rentwise-payments/pkg/db/models"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
	"github.com/angelmondragon/rentwise-payments/pkg/mobilemoney"
)

type gatewayQuerier interface {
	QueryStatus(ctx context.Context, query mobilemoney.StatusQuery) (*mobilemoney.PaymentResult, error)
}

type statusSyncer interface {
	Apply(ctx context.Context, kind enums.PaymentKind, dependentID string, obs payments.Observation, opts payments.SyncOptions) (*payments.SyncOutcome, error)
}

// Service re-queries payments on demand and propagates the result.
type Service interface {
	CheckSubscription(ctx context.Context, userID string, kind enums.PaymentKind) (*CheckResult, error)
	ReconcileReference(ctx context.Context, kind enums.PaymentKind, reference string) (*ReferenceResult, error)
}

// CheckResult is the user's dependent record after reconciliation. PaymentStatus
// is nil when the record has no linked payment.
type CheckResult struct {
	Subscription  *models.DependentRecord `json:"subscription"`
	PaymentStatus *enums.PaymentStatus    `json:"paymentStatus,omitempty"`
}

// ReferenceResult reports a reconciliation keyed by payment reference.
type ReferenceResult struct {
	Reference string
	Status    enums.PaymentStatus
	Outcome   *payments.SyncOutcome
}

// ServiceParams configure the reconcile service.
type ServiceParams struct {
	Payments   *payments.PaymentRepository
	Dependents *payments.DependentRepository
	Gateway    gatewayQuerier
	Syncer     statusSyncer
	Logger     *logger.Logger
}

type service struct {
	payments   *payments.PaymentRepository
	dependents *payments.DependentRepository
	gateway    gatewayQuerier
	syncer     statusSyncer
	logg       *logger.Logger
}

// NewService builds the reconcile service.
func NewService(params ServiceParams) (Service, error) {
	if params.Payments == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Dependents == nil {
		return nil, fmt.Errorf("dependent repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.Syncer == nil {
		return nil, fmt.Errorf("status syncer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		payments:   params.Payments,
		dependents: params.Dependents,
		gateway:    params.Gateway,
		syncer:     params.Syncer,
		logg:       params.Logger,
	}, nil
}

// CheckSubscription refreshes the user's dependent record from the provider.
// A gateway failure leaves every local record untouched.
func (s *service) CheckSubscription(ctx context.Context, userID string, kind enums.PaymentKind) (*CheckResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "userId is required")
	}
	kind, err := resolveKind(kind)
	if err != nil {
		return nil, err
	}

	dep, err := s.dependents.FindByUserID(ctx, kind, userID)
	if err != nil {
		return nil, err
	}
	if dep.PaymentReference == "" && dep.PaymentID == "" {
		return &CheckResult{Subscription: dep}, nil
	}

	logCtx := s.logg.WithUserID(ctx, userID)
	logCtx = s.logg.WithPaymentReference(logCtx, dep.PaymentReference)
	remote, err := s.gateway.QueryStatus(logCtx, mobilemoney.StatusQuery{
		ID:        dep.PaymentID,
		Reference: dep.PaymentReference,
	})
	if err != nil {
		return nil, asGatewayError(err)
	}

	reference := dep.PaymentReference
	if reference == "" {
		reference = remote.Reference
	}
	outcome, err := s.syncer.Apply(logCtx, kind, userID, payments.Observation{
		Reference:  reference,
		PaymentID:  remote.ID,
		Status:     remote.Status,
		CustomerID: remote.CustomerID,
	}, payments.SyncOptions{Source: payments.SourceCheck})
	if err != nil {
		return nil, err
	}

	result := &CheckResult{Subscription: dep}
	if outcome.Dependent != nil {
		result.Subscription = outcome.Dependent
	}
	status := remote.Status
	result.PaymentStatus = &status
	return result, nil
}

// ReconcileReference re-derives state for one payment. Pending payments are
// re-queried; terminal ones are replayed from the stored status so a lagging
// dependent record catches up without a provider call.
func (s *service) ReconcileReference(ctx context.Context, kind enums.PaymentKind, reference string) (*ReferenceResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	kind, err := resolveKind(kind)
	if err != nil {
		return nil, err
	}
	payment, err := s.payments.FindByReference(ctx, kind, reference)
	if err != nil {
		return nil, err
	}

	obs := payments.Observation{
		Reference: payment.Reference,
		PaymentID: payment.PaymentID,
		Status:    payment.Status,
	}
	if !payment.Status.IsTerminal() {
		remote, err := s.gateway.QueryStatus(ctx, mobilemoney.StatusQuery{
			ID:        payment.PaymentID,
			Reference: payment.Reference,
		})
		if err != nil {
			return nil, asGatewayError(err)
		}
		obs.PaymentID = remote.ID
		obs.Status = remote.Status
		obs.CustomerID = remote.CustomerID
	}

	outcome, err := s.syncer.Apply(ctx, kind, payment.DependentID, obs, payments.SyncOptions{Source: payments.SourceWebhook})
	if err != nil {
		return nil, err
	}
	return &ReferenceResult{Reference: payment.Reference, Status: obs.Status, Outcome: outcome}, nil
}

func resolveKind(kind enums.PaymentKind) (enums.PaymentKind, error) {
	if kind == "" {
		return enums.PaymentKindSubscription, nil
	}
	if !kind.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment kind").
			WithDetails(map[string]any{"kind": kind})
	}
	return kind, nil
}

func asGatewayError(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment status query failed")
}
