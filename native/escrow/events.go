package escrow

import (
	"strconv"

	"escrowd/core/types"
	"escrowd/crypto"
)

// Event type names match the original contract ABI so downstream indexers can
// correlate log entries with on-chain history.
const (
	EventTypeJobCreated   = "JobCreated"
	EventTypeJobLocked    = "JobLocked"
	EventTypeJobRelease   = "JobRelease"
	EventTypeJobCancelled = "JobCancelled"
)

// NewJobCreatedEvent returns the canonical event payload for a newly created
// job. It carries the full party set and amount; the per-transition events
// carry only the job id.
func NewJobCreatedEvent(j *Job) *types.Event {
	attrs := jobAttrs(j)
	if j != nil {
		attrs["client"] = crypto.NewAddress(crypto.EscPrefix, j.Client[:]).String()
		attrs["freelancer"] = crypto.NewAddress(crypto.EscPrefix, j.Freelancer[:]).String()
		attrs["arbitrator"] = crypto.NewAddress(crypto.EscPrefix, j.Arbitrator[:]).String()
		if j.Amount != nil {
			attrs["amount"] = j.Amount.String()
		}
		attrs["method"] = j.Method.String()
	}
	return &types.Event{Type: EventTypeJobCreated, Attributes: attrs}
}

// NewJobLockedEvent returns the canonical event payload emitted when a job is
// locked against cancellation.
func NewJobLockedEvent(j *Job) *types.Event {
	return &types.Event{Type: EventTypeJobLocked, Attributes: jobAttrs(j)}
}

// NewJobReleaseEvent returns the canonical event payload for a release of
// escrowed funds to the freelancer.
func NewJobReleaseEvent(j *Job) *types.Event {
	return &types.Event{Type: EventTypeJobRelease, Attributes: jobAttrs(j)}
}

// NewJobCancelledEvent returns the canonical event payload for a refund of
// escrowed funds to the client.
func NewJobCancelledEvent(j *Job) *types.Event {
	return &types.Event{Type: EventTypeJobCancelled, Attributes: jobAttrs(j)}
}

func jobAttrs(j *Job) map[string]string {
	attrs := make(map[string]string)
	if j == nil {
		return attrs
	}
	attrs["jobId"] = strconv.FormatUint(j.ID, 10)
	return attrs
}
