package sideeffects

import (
	"context"
	"fmt"

	"github.com/mamadbah2/restock/internal/domain/models"
	client "github.com/mamadbah2/restock/pkg/clients/whatsapp"
)

// WhatsAppNotifier delivers notifications as WhatsApp text messages.
type WhatsAppNotifier struct {
	client client.Client
}

// NewWhatsAppNotifier wraps a WhatsApp client.
func NewWhatsAppNotifier(c client.Client) *WhatsAppNotifier {
	return &WhatsAppNotifier{client: c}
}

// NotifyDelivery sends a one-line summary of the delivery.
func (n *WhatsAppNotifier) NotifyDelivery(ctx context.Context, note models.DeliveryNotification) error {
	_, err := n.client.SendDeliveryAlert(ctx, client.Alert{
		Body:      FormatNotification(note),
		Reference: note.OrderNumber,
	})
	return err
}

// FormatNotification renders the message body for a delivery notification.
func FormatNotification(note models.DeliveryNotification) string {
	state := "partially received"
	if note.FullyDelivered {
		state = "fully received"
	}
	return fmt.Sprintf("PO %s from %s %s at %s by %s (%d item(s) restocked).",
		note.OrderNumber, note.SupplierName, state, note.BranchName, note.Actor, note.ItemCount)
}
