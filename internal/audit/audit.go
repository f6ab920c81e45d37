// Package audit emits structured audit events for secret operations.
// Events carry identifiers only; ciphertext, IVs, and salts never reach
// the log.
package audit

import "log/slog"

// Enabled controls whether audit log entries are emitted. Set to false to
// suppress all audit output (useful in tests that don't exercise auditing).
var Enabled = true

// Outcome values for Event.Status.
const (
	StatusGranted = "granted"
	StatusDenied  = "denied"
	StatusFailed  = "failed"
)

// Event represents a structured audit log entry with typed fields.
// Only non-zero fields are included in the log output.
type Event struct {
	Actor     string // Who performed the action (uid, or "anonymous").
	Action    string // What was done (operation ID or action name).
	Status    string // Outcome: StatusGranted, StatusDenied, StatusFailed.
	SecretID  string // Target secret identifier.
	Reason    string // Explanation for denial or failure.
	IP        string // Client IP address.
	RequestID string // Correlates the event with the request log line.
}

// Info emits the event as an INFO-level structured audit log entry.
func (e Event) Info(msg string) {
	if !Enabled {
		return
	}
	slog.Info(msg, slog.Group("audit", e.attrs()...))
}

// Warn emits the event as a WARN-level structured audit log entry.
func (e Event) Warn(msg string) {
	if !Enabled {
		return
	}
	slog.Warn(msg, slog.Group("audit", e.attrs()...))
}

// attrs builds the slog attribute list, skipping zero-value fields.
func (e Event) attrs() []any {
	var attrs []any
	if e.Actor != "" {
		attrs = append(attrs, slog.String("actor", e.Actor))
	}
	if e.Action != "" {
		attrs = append(attrs, slog.String("action", e.Action))
	}
	if e.Status != "" {
		attrs = append(attrs, slog.String("status", e.Status))
	}
	if e.SecretID != "" {
		attrs = append(attrs, slog.String("secret_id", e.SecretID))
	}
	if e.Reason != "" {
		attrs = append(attrs, slog.String("reason", e.Reason))
	}
	if e.IP != "" {
		attrs = append(attrs, slog.String("ip_address", e.IP))
	}
	if e.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", e.RequestID))
	}
	return attrs
}
