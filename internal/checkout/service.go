package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentwise-payments/internal/payments"
	"github.com/angelmondragon/rentwise-payments/pkg/config"
	"github.com/angelmondragon/rentwise-payments/pkg/db"
	"github.com/angelmondragon/rentwise-payments/pkg/db/models"
	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
	"github.com/angelmondragon/rentwise-payments/pkg/logger"
	"github.com/angelmondragon/rentwise-payments/pkg/metrics"
	"github.com/angelmondragon/rentwise-payments/pkg/mobilemoney"
	"github.com/angelmondragon/rentwise-payments/pkg/outbox"
	"github.com/angelmondragon/rentwise-payments/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gatewayCharger interface {
	Charge(ctx context.Context, req mobilemoney.ChargeRequest) (*mobilemoney.PaymentResult, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service starts mobile-money checkouts for subscriptions and partner subscriptions.
type Service interface {
	InitiateCheckout(ctx context.Context, input Input) (*Result, error)
}

// Input is a checkout request for either kind.
type Input struct {
	UserID         string
	Kind           enums.PaymentKind
	TierID         string
	TierName       string
	PartnerName    string
	Amount         decimal.Decimal
	Currency       string
	Network        string
	MSISDN         string
	CustomerName   string
	IdempotencyKey string
}

// Result is returned to the caller once the charge is recorded.
type Result struct {
	Success          bool                `json:"success"`
	PaymentReference string              `json:"paymentReference"`
	PaymentID        string              `json:"paymentId"`
	Status           enums.PaymentStatus `json:"status"`
	CustomerID       *string             `json:"customerId,omitempty"`
	IntentPath       string              `json:"intentPath"`
}

// ServiceParams configure the checkout service.
type ServiceParams struct {
	DB         txRunner
	Payments   *payments.PaymentRepository
	Dependents *payments.DependentRepository
	Gateway    gatewayCharger
	Outbox     outboxPublisher
	Metrics    *metrics.PaymentMetrics
	Logger     *logger.Logger
	Config     config.PaymentsConfig
	Now        func() time.Time
}

type service struct {
	db         txRunner
	payments   *payments.PaymentRepository
	dependents *payments.DependentRepository
	gateway    gatewayCharger
	outbox     outboxPublisher
	metrics    *metrics.PaymentMetrics
	logg       *logger.Logger
	cfg        config.PaymentsConfig
	now        func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Dependents == nil {
		return nil, fmt.Errorf("dependent repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:         params.DB,
		payments:   params.Payments,
		dependents: params.Dependents,
		gateway:    params.Gateway,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		logg:       params.Logger,
		cfg:        params.Config,
		now:        now,
	}, nil
}

func (s *service) InitiateCheckout(ctx context.Context, input Input) (*Result, error) {
	req, err := s.validate(input)
	if err != nil {
		return nil, err
	}
	portal := strings.TrimSpace(s.cfg.PortalURL)
	if portal == "" {
		return nil, pkgerrors.New(pkgerrors.CodeFailedPrecondition, "payments portal url is not configured")
	}

	logCtx := s.logg.WithUserID(ctx, req.userID)
	logCtx = s.logg.WithField(logCtx, "kind", req.kind)

	charge, err := s.gateway.Charge(logCtx, mobilemoney.ChargeRequest{
		Amount:        req.amount,
		Currency:      req.currency,
		CustomerName:  req.customerName,
		CustomerPhone: req.msisdn,
		Narration:     req.narration(),
		Network:       req.network,
		Metadata: map[string]string{
			"userId":                           req.userID,
			"kind":                             req.kind.String(),
			"planId":                           req.planID,
			"returnUrl":                        returnURL(portal, req.kind),
			mobilemoney.MetadataIdempotencyKey: req.idempotencyKey,
		},
	})
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "checkout charge failed")
		return nil, err
	}

	logCtx = s.logg.WithPaymentReference(logCtx, charge.Reference)
	now := s.now().UTC()
	payment := req.paymentRecord(charge, now)
	dependent := req.dependentRecord(charge, now)

	err = s.db.WithTx(logCtx, func(tx *gorm.DB) error {
		if err := s.payments.WithTx(tx).Create(logCtx, req.kind, payment); err != nil {
			return err
		}
		if err := s.dependents.WithTx(tx).Upsert(logCtx, req.kind, dependent); err != nil {
			return err
		}
		return s.outbox.Emit(logCtx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentInitiated,
			AggregateType: enums.AggregatePayment,
			AggregateID:   charge.Reference,
			Actor:         &outbox.ActorRef{UserID: req.userID, Source: "checkout"},
			Data: payloads.PaymentInitiatedEvent{
				Reference:    charge.Reference,
				PaymentID:    charge.ID,
				UserID:       req.userID,
				Kind:         req.kind,
				PlanID:       req.planID,
				Amount:       req.amount,
				Currency:     req.currency,
				Network:      req.network,
				MaskedMSISDN: payment.MaskedMSISDN,
				Status:       charge.Status,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, s.orphanedCharge(logCtx, req.kind, charge, err)
	}

	s.metrics.IncCheckout(req.kind.String(), charge.Status.String())
	s.logg.Info(s.logg.WithField(logCtx, "payment_status", charge.Status), "checkout recorded")

	return &Result{
		Success:          true,
		PaymentReference: charge.Reference,
		PaymentID:        charge.ID,
		Status:           charge.Status,
		CustomerID:       charge.CustomerID,
		IntentPath:       req.kind.PaymentsTable() + "/" + charge.Reference,
	}, nil
}

// orphanedCharge reports a charge the provider accepted that has no local record.
// The provider may still debit the customer, so the reference has to reach an
// operator.
func (s *service) orphanedCharge(ctx context.Context, kind enums.PaymentKind, charge *mobilemoney.PaymentResult, cause error) error {
	s.metrics.IncOrphanedCharge(kind.String())
	logCtx := s.logg.WithField(ctx, "payment_id", charge.ID)
	s.logg.Error(logCtx, "charge accepted but not recorded", cause)

	code := pkgerrors.CodeInternal
	if db.IsUniqueViolation(cause, "") {
		code = pkgerrors.CodeConflict
	}
	return pkgerrors.Wrap(code, cause, "payment could not be recorded").
		WithDetails(map[string]any{"paymentReference": charge.Reference, "paymentId": charge.ID})
}

type chargeRequest struct {
	userID         string
	kind           enums.PaymentKind
	planID         string
	planName       string
	partnerName    *string
	amount         decimal.Decimal
	currency       string
	network        enums.Network
	msisdn         string
	customerName   string
	idempotencyKey string
}

func (s *service) validate(input Input) (*chargeRequest, error) {
	kind := input.Kind
	if kind == "" {
		kind = enums.PaymentKindSubscription
	}
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported checkout kind").
			WithDetails(map[string]any{"kind": input.Kind})
	}

	req := &chargeRequest{
		userID:         strings.TrimSpace(input.UserID),
		kind:           kind,
		amount:         input.Amount,
		currency:       strings.ToUpper(strings.TrimSpace(input.Currency)),
		customerName:   strings.TrimSpace(input.CustomerName),
		idempotencyKey: strings.TrimSpace(input.IdempotencyKey),
	}

	var missing []string
	if req.userID == "" {
		missing = append(missing, "userId")
	}
	switch kind {
	case enums.PaymentKindPartner:
		partner := strings.TrimSpace(input.PartnerName)
		if partner == "" {
			missing = append(missing, "partnerName")
		} else {
			req.partnerName = &partner
			req.planID = partner
			req.planName = firstNonEmpty(input.TierName, partner)
		}
	default:
		req.planID = strings.TrimSpace(input.TierID)
		req.planName = strings.TrimSpace(input.TierName)
		if req.planID == "" {
			missing = append(missing, "subscriptionTierId")
		}
		if req.planName == "" {
			missing = append(missing, "subscriptionTierName")
		}
	}
	if input.Amount.IsZero() {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(input.Network) == "" {
		missing = append(missing, "mobileMoneyNetwork")
	}
	if strings.TrimSpace(input.MSISDN) == "" {
		missing = append(missing, "msisdn")
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "missing required fields").
			WithDetails(map[string]any{"missing": missing})
	}

	if !req.amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !req.amount.Equal(req.amount.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimal places")
	}
	if req.currency == "" {
		req.currency = strings.ToUpper(strings.TrimSpace(s.cfg.DefaultCurrency))
	}
	if len(req.currency) != 3 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency must be a three-letter code").
			WithDetails(map[string]any{"currency": input.Currency})
	}

	network, err := payments.NormalizeNetwork(input.Network)
	if err != nil {
		return nil, err
	}
	req.network = network
	msisdn, err := payments.NormalizeMSISDN(input.MSISDN)
	if err != nil {
		return nil, err
	}
	req.msisdn = msisdn
	if req.customerName == "" {
		req.customerName = req.userID
	}
	return req, nil
}

func (r *chargeRequest) narration() string {
	if r.kind == enums.PaymentKindPartner {
		return "RentWise partner subscription: " + *r.partnerName
	}
	return "RentWise subscription: " + r.planName
}

func (r *chargeRequest) paymentRecord(charge *mobilemoney.PaymentResult, now time.Time) *models.PaymentRecord {
	return &models.PaymentRecord{
		Reference:    charge.Reference,
		PaymentID:    charge.ID,
		UserID:       r.userID,
		DependentID:  r.userID,
		Kind:         r.kind,
		Amount:       r.amount,
		Currency:     r.currency,
		Network:      r.network,
		MSISDN:       r.msisdn,
		MaskedMSISDN: payments.MaskMSISDN(r.msisdn),
		Status:       charge.Status,
		CustomerID:   charge.CustomerID,
		Narration:    r.narration(),
		PlanID:       r.planID,
		PlanName:     r.planName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// dependentRecord builds the checkout's merge into the user's dependent record.
// The status starts from pending and goes through the shared mapping, so an
// immediate SUCCESS activates it.
func (r *chargeRequest) dependentRecord(charge *mobilemoney.PaymentResult, now time.Time) *models.DependentRecord {
	dep := &models.DependentRecord{
		UserID:           r.userID,
		PlanID:           r.planID,
		PlanName:         r.planName,
		PartnerName:      r.partnerName,
		Status:           enums.DependentStatusPending,
		PaymentReference: charge.Reference,
		PaymentID:        charge.ID,
		CustomerID:       charge.CustomerID,
		MaskedMSISDN:     payments.MaskMSISDN(r.msisdn),
		Amount:           r.amount,
		Currency:         r.currency,
		Network:          r.network,
		CreatedAt:        now,
	}
	payments.ApplyPaymentStatus(dep, charge.Status, now)
	return dep
}

func returnURL(portal string, kind enums.PaymentKind) string {
	return strings.TrimRight(portal, "/") + "/billing/" + url.PathEscape(kind.String())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
