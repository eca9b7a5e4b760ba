package signature

// Header names carried by every outbound delivery.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderEventType = "X-Webhook-Event-Type"
	HeaderEventID   = "X-Webhook-Event-Id"
	HeaderAttempt   = "X-Webhook-Attempt"
)

// Reserved reports whether name is set by the executor and must not be
// overridden by endpoint-level custom headers.
func Reserved(name string) bool {
	switch canonical(name) {
	case HeaderSignature, HeaderTimestamp, HeaderEventType, HeaderEventID, HeaderAttempt,
		"Content-Type", "User-Agent", "Content-Length", "Host":
		return true
	}
	return false
}
