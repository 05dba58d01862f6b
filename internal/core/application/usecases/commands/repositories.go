// Package commands contains the merchant's write operations on orders. Every
// command follows the same pattern: validate locally, apply optimistically through
// the reconciliation engine, then send the status change to the backend. A failed
// send raises an alert and leaves the optimistic state in place; the next poll
// reconciles it.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/ports"
)

type (
	// OrderStore is the part of the reconciliation engine the commands write through.
	OrderStore interface {
		Order(orderID string) (*order.Order, bool)
		Mutate(orderID string, fn func(o *order.Order) error) (*order.Order, error)
	}

	// Deps are shared by every command handler.
	Deps struct {
		Orders OrderStore
		API    ports.OrderAPI
		Sink   ports.StateSink
		Logger *slog.Logger
	}
)

// sendStatus performs the PUT and turns a failure into a user-visible alert.
func (d Deps) sendStatus(ctx context.Context, o *order.Order, change ports.StatusChange) error {
	err := d.API.UpdateStatus(ctx, o.Code(), change)
	if err == nil {
		d.Logger.InfoContext(ctx, "Order status sent", "order_id", o.Key(), "status", change.Status)
		return nil
	}

	d.Logger.ErrorContext(ctx, "Order status update failed",
		"order_id", o.Key(), "status", change.Status, "error", err)
	d.Sink.Notify(ports.Notification{
		Kind:    ports.NotifyAlert,
		OrderID: o.Key(),
		Status:  o.Status(),
		Message: fmt.Sprintf("Could not update order %s: %v", o.Code(), err),
		At:      time.Now(),
	})
	return fmt.Errorf("update status of %s: %w", o.Code(), err)
}

func chosenOption(o *order.Order) order.DeliveryOption {
	if o.DeliveryOption() == order.Both {
		return o.ChosenOption()
	}
	return ""
}
