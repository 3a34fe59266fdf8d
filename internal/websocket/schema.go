package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave  Action = "autosave"
	ActionFlag      Action = "flag"
	ActionNavigate  Action = "navigate"
	ActionViolation Action = "violation"
	ActionAck       Action = "ack"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// Request is the single client frame shape; which fields matter depends on
// the action.
type Request struct {
	Action Action `json:"action"`
	QID    string `json:"q_id,omitempty"`
	Answer string `json:"ans,omitempty"`
	Index  *int   `json:"index,omitempty"`
	Kind   string `json:"kind,omitempty"`   // violation kind
	Reason string `json:"reason,omitempty"` // submit: "manual" or "exit"
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventSaved   Event = "saved"
	EventFlagged Event = "flagged"
	EventWarning Event = "warning"
	EventGraded  Event = "graded"
	EventExpired Event = "expired"
	EventPong    Event = "pong"
)

type SavedResponse struct {
	Event Event  `json:"event"`
	QID   string `json:"q_id"`
}

type FlaggedResponse struct {
	Event   Event  `json:"event"`
	QID     string `json:"q_id"`
	Flagged bool   `json:"flagged"`
}

// WarningResponse notifies the candidate that a violation was counted and a
// warning overlay must be acknowledged.
type WarningResponse struct {
	Event Event  `json:"event"`
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

type GradedResponse struct {
	Event            Event  `json:"event"`
	Score            int    `json:"score"`
	TotalMarks       int    `json:"total_marks"`
	TimeTakenSeconds int    `json:"time_taken_seconds"`
	AutoSubmitted    bool   `json:"auto_submitted"`
	SubmittedAt      string `json:"submitted_at"`
}

// ExpiredResponse tells the client the server timer fired and the attempt was
// auto-submitted.
type ExpiredResponse struct {
	Event Event `json:"event"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}
