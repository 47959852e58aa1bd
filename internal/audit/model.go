package audit

import "time"

// Action enumerates the recordable action kinds. The lending kinds keep the
// names the reading room has always used in its records.
type Action string

const (
	ActionLogin       Action = "LOGIN"
	ActionLoginFailed Action = "LOGIN_FAILED"

	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"

	ActionEmprestimo   Action = "EMPRESTIMO"
	ActionDevolucao    Action = "DEVOLUCAO"
	ActionRenovacao    Action = "RENOVACAO"
	ActionConsistencia Action = "CONSISTENCIA"
)

// Change is one field-level before/after pair inside an entry diff.
type Change struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// ClientContext identifies the request that caused the entry.
type ClientContext struct {
	IP        string
	UserAgent string
	RequestID string
}

// Entry is what collaborators hand to the Recorder.
type Entry struct {
	ActorID      string
	Action       Action
	ResourceType string
	ResourceID   string
	Success      bool
	Message      string
	Diff         map[string]Change
	Client       ClientContext
}

// Log is a persisted audit row.
type Log struct {
	AuditID      int64             `json:"audit_id"`
	ActorID      *string           `json:"actor_id,omitempty"`
	Action       Action            `json:"action"`
	ResourceType *string           `json:"resource_type,omitempty"`
	ResourceID   *string           `json:"resource_id,omitempty"`
	Success      bool              `json:"success"`
	Message      *string           `json:"message,omitempty"`
	Diff         map[string]Change `json:"diff,omitempty"`
	IPAddress    *string           `json:"ip_address,omitempty"`
	UserAgent    *string           `json:"user_agent,omitempty"`
	RequestID    *string           `json:"request_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// LogFilter narrows the /logs listing.
type LogFilter struct {
	Action  *Action
	ActorID *string
	Success *bool
	From    *time.Time
	To      *time.Time
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}
