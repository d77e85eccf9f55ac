// Package services – notification sink boundary.
//
// Notification delivery is fire-and-observe: a false return is logged and
// counted but never blocks reconciliation of other transactions.
package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-payment-backend/internal/domain"
)

// Notifier delivers a status-change notification for a payment. The content
// and channel of delivery are out of scope here; implementations report
// success with their return value and must never panic.
type Notifier interface {
	Notify(ctx context.Context, userID, paymentKey string, oldStatus, newStatus domain.TransactionStatus) bool
}

// LogNotifier is the default sink: it writes the notification to the
// structured log. Useful in development and as a safe fallback when no real
// channel is configured.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, userID, paymentKey string, oldStatus, newStatus domain.TransactionStatus) bool {
	log.Info().
		Str("user_id", userID).
		Str("payment_key", paymentKey).
		Str("old_status", string(oldStatus)).
		Str("new_status", string(newStatus)).
		Msg("payment status changed")
	return true
}
