package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"merchantdispatch/internal/core/ports"

	"github.com/samber/lo"
)

type roomKind string

const (
	roomOrder    roomKind = "order"
	roomBatch    roomKind = "batch"
	roomBusiness roomKind = "business"
)

type room struct {
	kind roomKind
	id   string
}

func (r room) key() string { return string(r.kind) + ":" + r.id }

func (r room) frame() (string, map[string]string) {
	switch r.kind {
	case roomOrder:
		return ports.EventJoinOrder, map[string]string{"orderId": r.id}
	case roomBatch:
		return ports.EventJoinBatchRoom, map[string]string{"batch_id": r.id}
	default:
		return ports.EventJoinBusinessRoom, map[string]string{"business_id": r.id}
	}
}

// JoinOrder subscribes to an order room. Repeated calls are no-ops.
func (c *Coordinator) JoinOrder(ctx context.Context, orderID string) error {
	return c.join(ctx, room{kind: roomOrder, id: orderID})
}

// JoinBatchRoom subscribes to a batch room. Repeated calls are no-ops.
func (c *Coordinator) JoinBatchRoom(ctx context.Context, batchID string) error {
	return c.join(ctx, room{kind: roomBatch, id: batchID})
}

// JoinBusinessRoom subscribes to the business room. Repeated calls are no-ops.
func (c *Coordinator) JoinBusinessRoom(ctx context.Context, businessID string) error {
	return c.join(ctx, room{kind: roomBusiness, id: businessID})
}

func (c *Coordinator) join(ctx context.Context, r room) error {
	if r.id == "" {
		return nil
	}
	if !c.mounted.Load() {
		return ErrCoordinatorClosed
	}

	c.mu.Lock()
	if _, joined := c.rooms[r.key()]; joined {
		c.mu.Unlock()
		return nil
	}
	c.rooms[r.key()] = r
	c.mu.Unlock()

	event, data := r.frame()
	if err := c.deps.Push.Emit(ctx, event, data); err != nil {
		c.mu.Lock()
		delete(c.rooms, r.key())
		c.mu.Unlock()
		return fmt.Errorf("join %s: %w", r.key(), err)
	}
	return nil
}

// Rooms lists the joined rooms as "kind:id", sorted.
func (c *Coordinator) Rooms() []string {
	c.mu.Lock()
	keys := lo.Keys(c.rooms)
	c.mu.Unlock()
	slices.Sort(keys)
	return keys
}

// Rejoin re-issues every join after the push channel reconnected.
func (c *Coordinator) Rejoin(ctx context.Context) error {
	if !c.mounted.Load() {
		return ErrCoordinatorClosed
	}
	c.mu.Lock()
	rooms := lo.Values(c.rooms)
	c.mu.Unlock()

	var errList []error
	for _, r := range rooms {
		event, data := r.frame()
		if err := c.deps.Push.Emit(ctx, event, data); err != nil {
			errList = append(errList, fmt.Errorf("rejoin %s: %w", r.key(), err))
		}
	}
	return errors.Join(errList...)
}

func (c *Coordinator) rejoinInBackground() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
		defer cancel()
		if err := c.Rejoin(ctx); err != nil {
			c.logger.WarnContext(ctx, "Room rejoin failed", "error", err)
		}
	}()
}
