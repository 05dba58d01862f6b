package dispatch

import (
	"errors"
	"time"

	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/pkg/guard"
)

// ErrRequestIsNotConstructed is returned when a Request was not created through NewRequest.
var ErrRequestIsNotConstructed = errors.New("Request must be created via NewRequest constructor")

// Request is one broadcast attempt for a batch. A resend creates a new Request and
// supersedes the previous one; the latest request per batch wins.
type Request struct {
	id           kernel.UUID
	batchKey     kernel.UUID
	payload      Payload
	sentAt       time.Time
	retryCount   int
	acknowledged bool
	superseded   bool
	failure      string
	guard        guard.ConstructorGuard
}

// NewRequest records the first broadcast for a batch.
func NewRequest(batchKey kernel.UUID, payload Payload, sentAt time.Time) (*Request, error) {
	if err := errors.Join(batchKey.Validate(), payload.Validate()); err != nil {
		return nil, err
	}
	return &Request{
		id:       kernel.NewUUID(),
		batchKey: batchKey,
		payload:  payload.Clone(),
		sentAt:   sentAt,
		guard:    guard.NewConstructorGuard(),
	}, nil
}

// Resend supersedes r and returns the next attempt with the same payload.
func (r *Request) Resend(sentAt time.Time) *Request {
	r.superseded = true
	return &Request{
		id:         kernel.NewUUID(),
		batchKey:   r.batchKey,
		payload:    r.payload.Clone(),
		sentAt:     sentAt,
		retryCount: r.retryCount + 1,
		guard:      guard.NewConstructorGuard(),
	}
}

// Validate ensures the Request was built by NewRequest.
func (r *Request) Validate() error {
	if r == nil {
		return ErrRequestIsNotConstructed
	}
	return r.guard.Validate(ErrRequestIsNotConstructed)
}

// ID returns the request id.
func (r *Request) ID() kernel.UUID { return r.id }

// BatchKey returns the local batch key.
func (r *Request) BatchKey() kernel.UUID { return r.batchKey }

// Payload returns a copy of the broadcast payload.
func (r *Request) Payload() Payload { return r.payload.Clone() }

// SentAt returns when the request was posted.
func (r *Request) SentAt() time.Time { return r.sentAt }

// RetryCount is 0 for the first broadcast.
func (r *Request) RetryCount() int { return r.retryCount }

// Acknowledged reports whether a driver accepted.
func (r *Request) Acknowledged() bool { return r.acknowledged }

// Superseded reports whether a later resend replaced r.
func (r *Request) Superseded() bool { return r.superseded }

// IsActive is true for the latest request that no driver has accepted yet.
func (r *Request) IsActive() bool { return !r.superseded && !r.acknowledged }

// Acknowledge marks the request as accepted by a driver.
func (r *Request) Acknowledge() { r.acknowledged = true }

// MarkFailed records why the broadcast POST failed. A failed request is never active.
func (r *Request) MarkFailed(err error) {
	if err == nil {
		return
	}
	r.failure = err.Error()
	r.superseded = true
}

// Failure returns the recorded broadcast error, or "".
func (r *Request) Failure() string { return r.failure }

// Clone returns an independent copy, safe to hand to another goroutine.
func (r *Request) Clone() *Request {
	c := *r
	c.payload = r.payload.Clone()
	return &c
}
