package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	razorpay "github.com/razorpay/razorpay-go"
	"go.uber.org/zap"

	"github.com/taxdesk/taxdesk-api/internal/models"
	"github.com/taxdesk/taxdesk-api/pkg/config"
	appErrors "github.com/taxdesk/taxdesk-api/pkg/errors"
)

type paymentStore interface {
	Create(ctx context.Context, payment *models.PaymentOrder) error
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.PaymentOrder, error)
	MarkPaid(ctx context.Context, id, gatewayPaymentID, orderID string, paidAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	ListByCustomer(ctx context.Context, customerID string) ([]models.PaymentOrder, error)
}

type paymentCatalogStore interface {
	FindServiceByID(ctx context.Context, id string) (*models.Service, error)
	FindPackage(ctx context.Context, serviceID, name string) (*models.Package, error)
}

type paymentOrderCreator interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
}

type paymentAccountStore interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
}

type referralRewarder interface {
	RewardReferrer(ctx context.Context, referrerID, referredID string) error
}

// VerifyPaymentRequest carries the gateway callback fields.
type VerifyPaymentRequest struct {
	GatewayOrderID   string `json:"gateway_order_id" validate:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" validate:"required"`
	Signature        string `json:"signature" validate:"required"`
}

// PaymentService runs the package purchase flow through the payment gateway.
// Checkout creates a gateway order in paise; verification checks the HMAC
// signature and only then opens the service order. Verification is
// idempotent: a replayed callback returns the already-created order.
type PaymentService struct {
	payments paymentStore
	catalog  paymentCatalogStore
	orders   paymentOrderCreator
	accounts paymentAccountStore
	wallets  referralRewarder
	client   *razorpay.Client
	cfg      config.PaymentsConfig
	logger   *zap.Logger
}

// NewPaymentService constructs the service. A nil client disables checkout.
func NewPaymentService(payments paymentStore, catalog paymentCatalogStore, orders paymentOrderCreator, accounts paymentAccountStore, wallets referralRewarder, cfg config.PaymentsConfig, logger *zap.Logger) *PaymentService {
	var client *razorpay.Client
	if cfg.Enabled && cfg.KeyID != "" && cfg.KeySecret != "" {
		client = razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	}
	return &PaymentService{
		payments: payments,
		catalog:  catalog,
		orders:   orders,
		accounts: accounts,
		wallets:  wallets,
		client:   client,
		cfg:      cfg,
		logger:   logger,
	}
}

// Enabled reports whether the gateway is configured.
func (s *PaymentService) Enabled() bool {
	return s.client != nil
}

// Checkout creates a gateway order for a package purchase and returns the
// widget payload. The amount charged is the discounted price plus GST.
func (s *PaymentService) Checkout(ctx context.Context, customerID, serviceID, packageName string) (*models.PaymentCheckout, error) {
	if !s.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "online payments are disabled")
	}

	service, err := s.catalog.FindServiceByID(ctx, serviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
		}
		return nil, appErrors.FromError(err)
	}
	pkg, err := s.catalog.FindPackage(ctx, serviceID, packageName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "package not found")
		}
		return nil, appErrors.FromError(err)
	}

	amount := pkg.DiscountedPrice
	tax := amount * service.GSTRate / 100
	total := amount + tax
	amountPaise := int(total*100 + 0.5)

	orderData := map[string]interface{}{
		"amount":   amountPaise,
		"currency": s.cfg.Currency,
		"receipt":  fmt.Sprintf("rcpt_%s_%d", customerID, time.Now().Unix()),
		"notes": map[string]interface{}{
			"customer_id":  customerID,
			"service_id":   serviceID,
			"package_name": packageName,
		},
	}
	gatewayOrder, err := s.client.Order.Create(orderData, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create gateway order")
	}
	gatewayOrderID, _ := gatewayOrder["id"].(string)
	if gatewayOrderID == "" {
		return nil, appErrors.Clone(appErrors.ErrInternal, "gateway returned no order id")
	}

	payment := &models.PaymentOrder{
		ID:             uuid.NewString(),
		GatewayOrderID: gatewayOrderID,
		CustomerID:     customerID,
		ServiceID:      serviceID,
		PackageName:    pkg.Name,
		Amount:         amount,
		TaxAmount:      tax,
		TotalAmount:    total,
		Currency:       s.cfg.Currency,
		Status:         models.PaymentStatusCreated,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, appErrors.FromError(err)
	}

	return &models.PaymentCheckout{
		GatewayOrderID: gatewayOrderID,
		AmountPaise:    amountPaise,
		Currency:       s.cfg.Currency,
		KeyID:          s.cfg.KeyID,
		Amount:         amount,
		TaxAmount:      tax,
		TotalAmount:    total,
	}, nil
}

// Verify validates the gateway signature and opens the service order. A
// first completed purchase by a referred customer rewards the referrer.
func (s *PaymentService) Verify(ctx context.Context, customerID string, req VerifyPaymentRequest) (*models.Order, error) {
	payment, err := s.payments.FindByGatewayOrderID(ctx, req.GatewayOrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment order not found")
		}
		return nil, appErrors.FromError(err)
	}
	if payment.CustomerID != customerID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "payment belongs to another customer")
	}
	if payment.Status == models.PaymentStatusPaid {
		if payment.OrderID == nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "payment already verified")
		}
		return &models.Order{ID: *payment.OrderID}, nil
	}

	if !s.verifySignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		if err := s.payments.MarkFailed(ctx, payment.ID, "invalid signature"); err != nil {
			s.logger.Warn("mark payment failed", zap.String("payment_id", payment.ID), zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid payment signature")
	}

	order, err := s.orders.Create(ctx, CreateOrderInput{
		CustomerID:  payment.CustomerID,
		ServiceID:   payment.ServiceID,
		PackageName: payment.PackageName,
	})
	if err != nil {
		return nil, err
	}
	if err := s.payments.MarkPaid(ctx, payment.ID, req.GatewayPaymentID, order.ID, time.Now().UTC()); err != nil {
		s.logger.Error("mark payment paid", zap.String("payment_id", payment.ID), zap.Error(err))
	}

	s.rewardReferrerOnFirstPurchase(ctx, payment.CustomerID)

	s.logger.Info("payment verified",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", order.ID),
		zap.String("customer_id", payment.CustomerID))
	return order, nil
}

// History returns the customer's payment records.
func (s *PaymentService) History(ctx context.Context, customerID string) ([]models.PaymentOrder, error) {
	payments, err := s.payments.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return payments, nil
}

func (s *PaymentService) verifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if s.cfg.KeySecret == "" {
		return false
	}
	data := gatewayOrderID + "|" + gatewayPaymentID
	h := hmac.New(sha256.New, []byte(s.cfg.KeySecret))
	h.Write([]byte(data))
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *PaymentService) rewardReferrerOnFirstPurchase(ctx context.Context, customerID string) {
	customer, err := s.accounts.FindByID(ctx, customerID)
	if err != nil || customer.ReferredBy == nil {
		return
	}
	history, err := s.payments.ListByCustomer(ctx, customerID)
	if err != nil {
		return
	}
	paid := 0
	for _, p := range history {
		if p.Status == models.PaymentStatusPaid {
			paid++
		}
	}
	// Only the first successful purchase earns the reward.
	if paid > 1 {
		return
	}
	if err := s.wallets.RewardReferrer(ctx, *customer.ReferredBy, customerID); err != nil {
		s.logger.Warn("referral reward failed",
			zap.String("referrer_id", *customer.ReferredBy),
			zap.String("customer_id", customerID),
			zap.Error(err))
	}
}
