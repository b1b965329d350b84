package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"order_fulfillment/internal/models"
	"order_fulfillment/pkg/events"
	"order_fulfillment/pkg/mailer"

	"go.uber.org/zap"
)

type Mailer interface {
	Send(ctx context.Context, email mailer.Email) (*mailer.SendResponse, error)
}

type ChatNotifier interface {
	SendText(ctx context.Context, text string) error
}

// ShipmentNotice describes a shipment that has just been applied to an order.
type ShipmentNotice struct {
	Order             models.Order
	Label             models.ShippingLabel
	EstimatedDelivery time.Time
}

// Notifier delivers best-effort side effects. Calls return immediately; failures are
// logged and never reach the caller.
type Notifier interface {
	OrderShipped(ctx context.Context, settings Settings, notice ShipmentNotice)
	FulfillmentCompleted(ctx context.Context, order models.Order, fulfillment models.Fulfillment)
	// Wait blocks until every in-flight notification has finished.
	Wait()
}

type notifier struct {
	mail      Mailer
	chat      ChatNotifier
	publisher events.Publisher
	timeout   time.Duration
	log       *zap.Logger
	wg        sync.WaitGroup
}

// NewNotifier accepts nil mail or chat clients; those channels are then skipped.
func NewNotifier(mail Mailer, chat ChatNotifier, publisher events.Publisher, timeout time.Duration, log *zap.Logger) Notifier {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &notifier{mail: mail, chat: chat, publisher: publisher, timeout: timeout, log: log}
}

func (n *notifier) OrderShipped(ctx context.Context, settings Settings, notice ShipmentNotice) {
	order := notice.Order
	log := n.log.With(zap.String("order_number", order.OrderNumber), zap.String("tracking_number", notice.Label.TrackingNumber))

	if settings.NotifyCustomerEmail && n.mail != nil && order.CustomerEmail != "" {
		n.run(ctx, log, "customer_email", func(ctx context.Context) error {
			_, err := n.mail.Send(ctx, shippedEmail(notice))
			return err
		})
	}

	if settings.NotifyTeamChat && n.chat != nil {
		n.run(ctx, log, "team_chat", func(ctx context.Context) error {
			return n.chat.SendText(ctx, shippedChatText(notice))
		})
	}

	n.run(ctx, log, "event", func(ctx context.Context) error {
		return n.publisher.Publish(ctx, events.TopicOrderShipped, map[string]interface{}{
			"orderId":           order.ID,
			"orderNumber":       order.OrderNumber,
			"carrier":           notice.Label.Carrier,
			"serviceCode":       notice.Label.ServiceCode,
			"trackingNumber":    notice.Label.TrackingNumber,
			"estimatedDelivery": notice.EstimatedDelivery.Format("2006-01-02"),
		})
	})
}

func (n *notifier) FulfillmentCompleted(ctx context.Context, order models.Order, fulfillment models.Fulfillment) {
	log := n.log.With(zap.String("order_number", order.OrderNumber))
	n.run(ctx, log, "event", func(ctx context.Context) error {
		return n.publisher.Publish(ctx, events.TopicFulfillmentCompleted, map[string]interface{}{
			"orderId":         order.ID,
			"orderNumber":     order.OrderNumber,
			"fulfillmentId":   fulfillment.ID,
			"packagingTypeId": fulfillment.PackagingTypeID,
			"completedBy":     fulfillment.CompletedByName,
		})
	})
}

func (n *notifier) Wait() {
	n.wg.Wait()
}

// run executes fn in its own goroutine on a context detached from the caller's cancellation.
func (n *notifier) run(parent context.Context, log *zap.Logger, channel string, fn func(ctx context.Context) error) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("Notification panicked", zap.String("channel", channel), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), n.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			log.Warn("Notification failed", zap.String("channel", channel), zap.Error(err))
			return
		}
		log.Debug("Notification sent", zap.String("channel", channel))
	}()
}

func shippedEmail(notice ShipmentNotice) mailer.Email {
	order := notice.Order
	label := notice.Label
	eta := notice.EstimatedDelivery.Format("Monday, January 2")
	trackURL := TrackingURL(label.CarrierCode, label.TrackingNumber)

	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\nYour order %s has shipped via %s.\n", order.CustomerName, order.OrderNumber, label.Carrier)
	fmt.Fprintf(&text, "Tracking number: %s\n", label.TrackingNumber)
	if trackURL != "" {
		fmt.Fprintf(&text, "Track it: %s\n", trackURL)
	}
	fmt.Fprintf(&text, "Estimated delivery: %s\n", eta)

	var body strings.Builder
	fmt.Fprintf(&body, "<p>Hi %s,</p>", html.EscapeString(order.CustomerName))
	fmt.Fprintf(&body, "<p>Your order <strong>%s</strong> has shipped via %s.</p>",
		html.EscapeString(order.OrderNumber), html.EscapeString(label.Carrier))
	if trackURL != "" {
		fmt.Fprintf(&body, `<p>Tracking number: <a href="%s">%s</a></p>`,
			html.EscapeString(trackURL), html.EscapeString(label.TrackingNumber))
	} else {
		fmt.Fprintf(&body, "<p>Tracking number: %s</p>", html.EscapeString(label.TrackingNumber))
	}
	fmt.Fprintf(&body, "<p>Estimated delivery: %s</p>", eta)

	return mailer.Email{
		To:      []string{order.CustomerEmail},
		Subject: fmt.Sprintf("Your order %s has shipped", order.OrderNumber),
		HTML:    body.String(),
		Text:    text.String(),
	}
}

func shippedChatText(notice ShipmentNotice) string {
	return fmt.Sprintf(":package: Order %s shipped via %s (%s), tracking %s, label cost $%.2f, est. delivery %s",
		notice.Order.OrderNumber,
		notice.Label.Carrier,
		notice.Label.ServiceCode,
		notice.Label.TrackingNumber,
		float64(notice.Label.CostCents)/100,
		notice.EstimatedDelivery.Format("2006-01-02"))
}
