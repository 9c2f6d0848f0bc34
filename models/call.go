package models

import "time"

// Cycle is one search request: the dataset it produced and the criterion
// that later call answers are judged against.
type Cycle struct {
	ID           string
	SearchTerm   string
	FirstMessage string
	Criterion    string
	StartedAt    time.Time
}

// CallSession is the correlation context for one outbound call. Its
// outcome is folded back into the matching Lead row. Finalizing is held by
// the one handler currently writing the outcome back.
type CallSession struct {
	CallID         string    `json:"call_id"`
	CycleID        string    `json:"cycle_id"`
	CustomerNumber string    `json:"customer_number"`
	AssistantID    string    `json:"assistant_id,omitempty"`
	FirstMessage   string    `json:"first_message,omitempty"`
	Question       string    `json:"question,omitempty"`
	Answer         string    `json:"answer,omitempty"`
	UpdateCount    int       `json:"update_count"`
	Finalized      bool      `json:"finalized"`
	Finalizing     bool      `json:"finalizing,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// WebhookEvent is the payload the voice platform posts to the webhook.
type WebhookEvent struct {
	Message *WebhookMessage `json:"message"`
}

// WebhookMessage is the nested message object of a WebhookEvent.
type WebhookMessage struct {
	Type     string          `json:"type"`
	Call     WebhookCall     `json:"call"`
	Artifact WebhookArtifact `json:"artifact"`
}

// WebhookCall describes the call the event belongs to.
type WebhookCall struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Customer WebhookCustomer `json:"customer"`
}

// WebhookCustomer carries the callee's number, the correlation key.
type WebhookCustomer struct {
	Number string `json:"number"`
}

// WebhookArtifact carries the running transcript.
type WebhookArtifact struct {
	Transcript string `json:"transcript"`
}

// QualifiedSnapshot is the current set of leads judged to meet the
// active criterion.
type QualifiedSnapshot struct {
	CycleID   string              `json:"cycle_id"`
	Leads     []map[string]string `json:"leads"`
	UpdatedAt time.Time           `json:"updated_at"`
}
