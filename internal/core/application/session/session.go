// Package session hosts merchant screen sessions. A session is what the mobile
// screen used to own: one reconciliation engine, one dispatch coordinator, the
// order commands and a notification feed, all bound to a single business and torn
// down together.
package session

import (
	"context"
	"sync"
	"time"

	"merchantdispatch/internal/core/application/coordinator"
	"merchantdispatch/internal/core/application/reconcile"
	"merchantdispatch/internal/core/application/usecases/commands"
	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/ports"
	"merchantdispatch/internal/jobs"
)

// Commands are the order command handlers bound to a session's engine and feed.
type Commands struct {
	Confirm        commands.ConfirmOrderCommandHandler
	Decline        commands.DeclineOrderCommandHandler
	Advance        commands.AdvanceOrderCommandHandler
	ChooseDelivery commands.ChooseDeliveryCommandHandler
}

// Session is one open merchant screen.
type Session struct {
	ID       string
	Business ports.BusinessDetails
	OpenedAt time.Time

	Engine      *reconcile.Engine
	Coordinator *coordinator.Coordinator
	Commands    Commands
	Feed        ports.NotificationFeed
	Poll        *jobs.LivePollJob

	closeOnce sync.Once
	closers   []func()
}

// Orders returns snapshots of the tracked orders sorted by key.
func (s *Session) Orders() []*order.Order {
	return s.Engine.Orders()
}

// Focus refreshes immediately and restarts the live poll if it stopped.
func (s *Session) Focus(ctx context.Context) error {
	return s.Poll.Focus(ctx)
}

// Close stops the poll, the coordinator and the engine. Later calls are no-ops.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for i := len(s.closers) - 1; i >= 0; i-- {
			s.closers[i]()
		}
	})
}
