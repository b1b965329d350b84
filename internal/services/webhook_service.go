package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"order_fulfillment/internal/models"
	"order_fulfillment/internal/repository"
	apperrors "order_fulfillment/pkg/errors"
	"order_fulfillment/pkg/shipstation"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	ResourceShipNotify     = "SHIP_NOTIFY"
	ResourceItemShipNotify = "ITEM_SHIP_NOTIFY"
	ResourceOrderNotify    = "ORDER_NOTIFY"

	webhookActor = "shipstation"
)

type WebhookStatus string

const (
	WebhookProcessed   WebhookStatus = "processed"
	WebhookIgnored     WebhookStatus = "ignored"
	WebhookFetchFailed WebhookStatus = "fetch_failed"
)

type ShipmentOutcome string

const (
	ShipmentApplied       ShipmentOutcome = "applied"
	ShipmentDuplicate     ShipmentOutcome = "duplicate"
	ShipmentOrderNotFound ShipmentOutcome = "order_not_found"
	ShipmentSkipped       ShipmentOutcome = "skipped"
)

type WebhookEnvelope struct {
	ResourceURL  string `json:"resource_url"`
	ResourceType string `json:"resource_type"`
}

type ShipmentResult struct {
	OrderNumber    string          `json:"orderNumber"`
	TrackingNumber string          `json:"trackingNumber"`
	Outcome        ShipmentOutcome `json:"outcome"`
	Reason         string          `json:"reason,omitempty"`
}

type WebhookResult struct {
	Status       WebhookStatus    `json:"status"`
	ResourceType string           `json:"resourceType,omitempty"`
	Message      string           `json:"message,omitempty"`
	Shipments    []ShipmentResult `json:"shipments,omitempty"`
}

type ShipmentFetcher interface {
	FetchShipments(ctx context.Context, resourceURL string) ([]shipstation.Shipment, error)
}

// Locker guards a shipment while it is being applied.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type WebhookService interface {
	// HandleWebhook returns an ErrUnauthorized when the signature does not verify and a
	// plain error only when persistence failed. Everything else is acknowledged.
	HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error)
}

type WebhookOptions struct {
	Secret       string
	FetchTimeout time.Duration
	Locker       Locker
	LockTTL      time.Duration
	Now          func() time.Time
}

type webhookService struct {
	store    repository.Store
	fetcher  ShipmentFetcher
	settings SettingsService
	notifier Notifier
	opts     WebhookOptions
	log      *zap.Logger
}

func NewWebhookService(store repository.Store, fetcher ShipmentFetcher, settings SettingsService, notifier Notifier, opts WebhookOptions, log *zap.Logger) WebhookService {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &webhookService{store: store, fetcher: fetcher, settings: settings, notifier: notifier, opts: opts, log: log}
}

// VerifySignature checks an HMAC-SHA256 of body. The signature may be hex or base64 encoded.
func VerifySignature(secret string, body []byte, signature string) bool {
	sig := strings.TrimSpace(signature)
	sig = strings.TrimPrefix(sig, "sha256=")
	if sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sum := mac.Sum(nil)

	hexOK := hmac.Equal([]byte(strings.ToLower(sig)), []byte(hex.EncodeToString(sum)))
	b64OK := hmac.Equal([]byte(sig), []byte(base64.StdEncoding.EncodeToString(sum)))
	return hexOK || b64OK
}

func (s *webhookService) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error) {
	if s.opts.Secret == "" {
		s.log.Warn("Webhook secret not configured, accepting unsigned webhook")
	} else if !VerifySignature(s.opts.Secret, rawBody, signature) {
		s.log.Warn("Webhook signature verification failed")
		return nil, &apperrors.ErrUnauthorized{Message: "invalid webhook signature"}
	}

	var env WebhookEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		s.log.Warn("Webhook payload is not valid JSON", zap.Error(err))
		return &WebhookResult{Status: WebhookIgnored, Message: "invalid payload"}, nil
	}

	log := s.log.With(zap.String("resource_type", env.ResourceType))
	switch env.ResourceType {
	case ResourceShipNotify, ResourceItemShipNotify:
	case ResourceOrderNotify:
		log.Info("Order notification acknowledged")
		return &WebhookResult{Status: WebhookIgnored, ResourceType: env.ResourceType}, nil
	default:
		log.Info("Unhandled webhook resource type")
		return &WebhookResult{Status: WebhookIgnored, ResourceType: env.ResourceType}, nil
	}

	if env.ResourceURL == "" {
		log.Warn("Ship notification without resource_url")
		return &WebhookResult{Status: WebhookIgnored, ResourceType: env.ResourceType, Message: "missing resource_url"}, nil
	}
	if s.fetcher == nil {
		log.Error("Carrier API not configured, cannot fetch shipments")
		return &WebhookResult{Status: WebhookFetchFailed, ResourceType: env.ResourceType, Message: "received, not processed"}, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	shipments, err := s.fetcher.FetchShipments(fetchCtx, env.ResourceURL)
	cancel()
	if err != nil {
		log.Error("Failed to fetch shipments", zap.String("resource_url", env.ResourceURL), zap.Error(err))
		return &WebhookResult{Status: WebhookFetchFailed, ResourceType: env.ResourceType, Message: "received, not processed"}, nil
	}

	settings := s.settings.Resolve(ctx)
	result := &WebhookResult{Status: WebhookProcessed, ResourceType: env.ResourceType}
	for _, sh := range shipments {
		res, notice, err := s.applyShipment(ctx, sh)
		if err != nil {
			return nil, fmt.Errorf("apply shipment for order %s: %w", sh.OrderNumber, err)
		}
		result.Shipments = append(result.Shipments, res)
		if notice != nil {
			s.notifier.OrderShipped(ctx, settings, *notice)
		}
	}

	log.Info("Webhook processed", zap.Int("shipments", len(shipments)))
	return result, nil
}

var (
	errOrderNotFound     = errors.New("order not found")
	errDuplicateShipment = errors.New("shipment already applied")
	errOrderClosed       = errors.New("order is closed")
)

func (s *webhookService) applyShipment(ctx context.Context, sh shipstation.Shipment) (ShipmentResult, *ShipmentNotice, error) {
	number := strings.TrimPrefix(strings.TrimSpace(sh.OrderNumber), "#")
	tracking := strings.TrimSpace(sh.TrackingNumber)
	res := ShipmentResult{OrderNumber: number, TrackingNumber: tracking}
	log := s.log.With(zap.String("order_number", number), zap.String("tracking_number", tracking))

	if number == "" || tracking == "" {
		res.Outcome, res.Reason = ShipmentSkipped, "missing order number or tracking number"
		return res, nil, nil
	}
	if sh.Voided {
		res.Outcome, res.Reason = ShipmentSkipped, "shipment voided"
		return res, nil, nil
	}

	if s.opts.Locker != nil {
		key := "shipment:" + number + ":" + tracking
		ok, err := s.opts.Locker.Acquire(ctx, key, s.opts.LockTTL)
		switch {
		case err != nil:
			log.Warn("Shipment lock unavailable, relying on database constraints", zap.Error(err))
		case !ok:
			res.Outcome, res.Reason = ShipmentDuplicate, "already being processed"
			return res, nil, nil
		default:
			defer func() {
				if err := s.opts.Locker.Release(context.WithoutCancel(ctx), key); err != nil {
					log.Warn("Failed to release shipment lock", zap.Error(err))
				}
			}()
		}
	}

	now := s.opts.Now()
	shipDate := parseShipDate(sh.ShipDate, now)
	eta := EstimateDelivery(shipDate, sh.ServiceCode)

	var notice *ShipmentNotice
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		order, err := tx.Orders().GetByOrderNumber(ctx, number)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return errOrderNotFound
			}
			return err
		}
		if order.TrackingNumber == tracking {
			return errDuplicateShipment
		}
		if order.IsClosed() {
			return errOrderClosed
		}

		from := order.Status
		carrier := CarrierDisplayName(sh.CarrierCode)
		order.Status = models.OrderShipped
		order.ShippingCarrier = carrier
		order.ShippingService = sh.ServiceCode
		order.TrackingNumber = tracking
		order.ShippedAt = &shipDate
		order.EstimatedDeliveryDate = &eta
		if err := tx.Orders().Update(ctx, order); err != nil {
			return err
		}

		if err := tx.Orders().AppendHistory(ctx, &models.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: from,
			ToStatus:   models.OrderShipped,
			Notes: fmt.Sprintf("Shipped via %s %s, tracking %s, estimated delivery %s",
				carrier, sh.ServiceCode, tracking, eta.Format("2006-01-02")),
			ChangedBy: webhookActor,
		}); err != nil {
			return err
		}

		voided, err := tx.Labels().VoidActive(ctx, order.ID, tracking, now)
		if err != nil {
			return err
		}
		if voided > 0 {
			log.Info("Voided superseded shipping labels", zap.Int64("count", voided))
		}

		label := labelFromShipment(order.ID, tracking, carrier, sh, shipDate)
		if err := tx.Labels().Create(ctx, &label); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return errDuplicateShipment
			}
			return err
		}

		notice = &ShipmentNotice{Order: *order, Label: label, EstimatedDelivery: eta}
		return nil
	})

	switch {
	case err == nil:
		res.Outcome = ShipmentApplied
		log.Info("Shipment applied", zap.String("carrier", notice.Label.Carrier), zap.Time("estimated_delivery", eta))
		return res, notice, nil
	case errors.Is(err, errOrderNotFound):
		log.Warn("Shipment references unknown order")
		res.Outcome = ShipmentOrderNotFound
		return res, nil, nil
	case errors.Is(err, errDuplicateShipment):
		log.Info("Shipment already applied")
		res.Outcome = ShipmentDuplicate
		return res, nil, nil
	case errors.Is(err, errOrderClosed):
		log.Warn("Shipment for closed order ignored")
		res.Outcome, res.Reason = ShipmentSkipped, "order is closed"
		return res, nil, nil
	}
	return res, nil, err
}

func labelFromShipment(orderID uint, tracking, carrier string, sh shipstation.Shipment, shipDate time.Time) models.ShippingLabel {
	label := models.ShippingLabel{
		OrderID:        orderID,
		TrackingNumber: tracking,
		Carrier:        carrier,
		CarrierCode:    sh.CarrierCode,
		ServiceCode:    sh.ServiceCode,
		CostCents:      shipstation.Cents(sh.ShipmentCost),
		ShipDate:       &shipDate,
		RawShipment:    datatypes.JSON(sh.Raw),
	}
	if sh.Weight != nil {
		label.WeightOz = weightToOunces(sh.Weight.Value, sh.Weight.Units)
	}
	if sh.Dimensions != nil {
		factor := 1.0
		if strings.HasPrefix(strings.ToLower(sh.Dimensions.Units), "centimet") {
			factor = 1 / 2.54
		}
		label.LengthIn = sh.Dimensions.Length * factor
		label.WidthIn = sh.Dimensions.Width * factor
		label.HeightIn = sh.Dimensions.Height * factor
	}
	return label
}

// weightToOunces keeps the carrier's value as ounces when the unit is unknown.
func weightToOunces(value float64, units string) float64 {
	if oz, ok := unitToOunces(value, units); ok {
		return oz
	}
	return value
}

// parseShipDate accepts a date or a timestamp and falls back to now.
func parseShipDate(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return now
}
