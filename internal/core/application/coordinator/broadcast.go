package coordinator

import (
	"context"
	"time"

	"merchantdispatch/internal/core/domain/model/dispatch"
	"merchantdispatch/internal/core/ports"
	"merchantdispatch/internal/pkg/errs"
)

// SendBroadcast posts the first dispatch broadcast for a batch. Validation errors
// are returned before any network call. On success the resend prompt timer is
// armed; on failure an alert is raised and no timer is armed.
func (c *Coordinator) SendBroadcast(ctx context.Context, key string) error {
	if !c.mounted.Load() {
		return ErrCoordinatorClosed
	}
	payload, err := c.BuildDispatchPayload(key)
	if err != nil {
		return err
	}

	c.mu.Lock()
	st, ok := c.batches[key]
	if !ok {
		c.mu.Unlock()
		return errs.NewObjectNotFoundError("batch", key)
	}
	if st.sending || (st.request != nil && st.request.Failure() == "") {
		c.mu.Unlock()
		return ErrAlreadyBroadcast
	}
	req, err := dispatch.NewRequest(st.batch.Key(), payload, c.now())
	if err != nil {
		c.mu.Unlock()
		return err
	}
	st.sending = true
	c.mu.Unlock()

	return c.post(ctx, key, req)
}

// Resend posts a new request for a batch whose previous broadcast was not accepted
// (or failed) and re-arms the prompt timer. The new request supersedes the old one.
func (c *Coordinator) Resend(ctx context.Context, key string) error {
	if !c.mounted.Load() {
		return ErrCoordinatorClosed
	}

	c.mu.Lock()
	st, ok := c.batches[key]
	if !ok {
		c.mu.Unlock()
		return errs.NewObjectNotFoundError("batch", key)
	}
	if st.sending {
		c.mu.Unlock()
		return ErrAlreadyBroadcast
	}
	prev := st.request
	if prev == nil || prev.Acknowledged() || st.assignment != nil {
		c.mu.Unlock()
		return ErrNothingToResend
	}
	st.sending = true
	st.awaitingResend = false
	c.stopTimerLocked(st)
	c.mu.Unlock()

	return c.post(ctx, key, prev.Resend(c.now()))
}

// DeclineResend dismisses the resend prompt. No timer is re-armed.
func (c *Coordinator) DeclineResend(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.batches[key]
	if !ok {
		return errs.NewObjectNotFoundError("batch", key)
	}
	st.awaitingResend = false
	c.stopTimerLocked(st)
	return nil
}

func (c *Coordinator) post(ctx context.Context, key string, req *dispatch.Request) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	res, sendErr := c.deps.Dispatch.Broadcast(ctx, req.Payload())

	if !c.mounted.Load() {
		return ErrCoordinatorClosed
	}

	c.mu.Lock()
	st, ok := c.batches[key]
	if !ok {
		c.mu.Unlock()
		return errs.NewObjectNotFoundError("batch", key)
	}
	st.sending = false
	var assigned *dispatch.Assignment
	switch {
	case sendErr != nil:
		req.MarkFailed(sendErr)
	case st.assignment != nil:
		// A driver accepted while the POST was in flight.
		st.batch.SetBatchID(res.BatchID)
		st.batch.SetRideID(res.RideID)
		req.Acknowledge()
		assigned = st.assignment.Clone()
	default:
		st.batch.SetBatchID(res.BatchID)
		st.batch.SetRideID(res.RideID)
		c.armTimerLocked(key, st)
	}
	st.request = req
	snapshot := req.Clone()
	batchID := st.batch.BatchID()
	c.mu.Unlock()

	c.record(ctx, func(ctx context.Context, log ports.DispatchLog) error {
		if err := log.RecordBroadcast(ctx, snapshot); err != nil || assigned == nil {
			return err
		}
		return log.RecordAcceptance(ctx, snapshot, assigned)
	})

	if sendErr != nil {
		c.logger.ErrorContext(ctx, "Dispatch broadcast failed", "batch_key", key, "error", sendErr)
		c.deps.Sink.Notify(ports.Notification{
			Kind:     ports.NotifyAlert,
			BatchKey: key,
			Message:  "Could not request a driver: " + sendErr.Error(),
			At:       c.now(),
		})
		return sendErr
	}

	c.logger.InfoContext(ctx, "Dispatch broadcast sent",
		"batch_key", key, "batch_id", batchID, "retry", req.RetryCount(), "drops", len(req.Payload().Drops))
	if err := c.JoinBatchRoom(ctx, batchID); err != nil {
		c.logger.WarnContext(ctx, "Batch room join failed", "batch_id", batchID, "error", err)
	}
	return nil
}

func (c *Coordinator) armTimerLocked(key string, st *batchState) {
	c.stopTimerLocked(st)
	st.retryTimer = time.AfterFunc(c.cfg.RetryPrompt, func() { c.promptResend(key) })
}

func (c *Coordinator) stopTimerLocked(st *batchState) {
	if st.retryTimer != nil {
		st.retryTimer.Stop()
		st.retryTimer = nil
	}
}

func (c *Coordinator) promptResend(key string) {
	if !c.mounted.Load() {
		return
	}
	c.mu.Lock()
	st, ok := c.batches[key]
	if !ok || st.assignment != nil || st.request == nil || st.request.Acknowledged() {
		c.mu.Unlock()
		return
	}
	st.awaitingResend = true
	st.retryTimer = nil
	c.mu.Unlock()

	c.deps.Sink.Notify(ports.Notification{
		Kind:     ports.NotifyResendPrompt,
		BatchKey: key,
		Message:  "No driver accepted yet. Resend the request?",
		At:       c.now(),
	})
}

// record writes to the dispatch log in the background. Failures are logged only.
func (c *Coordinator) record(ctx context.Context, fn func(ctx context.Context, log ports.DispatchLog) error) {
	if c.deps.Log == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RequestTimeout)
		defer cancel()
		if err := fn(ctx, c.deps.Log); err != nil {
			c.logger.WarnContext(ctx, "Dispatch log write failed", "error", err)
		}
	}()
}
