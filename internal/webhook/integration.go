package webhook

import "fmt"

// Integration parses one provider's webhook payload into a chat message body.
// Implementations are stateless; one instance serves all requests.
type Integration interface {
	// Name is the URL slug under /api/v1/external/.
	Name() string

	// DefaultTopic is used when the caller supplies no ?topic parameter.
	DefaultTopic() string

	// Parse extracts the outbound message body from the raw payload.
	// Malformed payloads return a *PayloadError.
	Parse(payload []byte) (string, error)
}

// PayloadError reports a malformed inbound payload. Field names the missing
// or invalid field as a dotted path; it is empty for JSON syntax errors.
type PayloadError struct {
	Field string
	Msg   string
}

func (e *PayloadError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("missing required field %q", e.Field)
	}
	return e.Msg
}

func missingField(path string) *PayloadError {
	return &PayloadError{Field: path}
}

func invalidJSON() *PayloadError {
	return &PayloadError{Msg: "request body is not valid JSON"}
}

// BuiltinIntegrations returns every integration compiled into the gateway,
// keyed by slug.
func BuiltinIntegrations() map[string]Integration {
	out := make(map[string]Integration)
	for _, i := range []Integration{
		AzureDevOps{},
		Generic{},
	} {
		out[i.Name()] = i
	}
	return out
}
