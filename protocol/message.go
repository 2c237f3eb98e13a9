package protocol

type Verb string

const (
	ReadVerb   Verb = "READ"
	NotifyVerb Verb = "NOTIFY"
	PatchVerb  Verb = "PATCH"
)

func (v Verb) Valid() bool {
	switch v {
	case ReadVerb, NotifyVerb, PatchVerb:
		return true
	}
	return false
}

type Kind string

const (
	ConfigurationKind Kind = "CONFIGURATION"
	ErrorKind         Kind = "ERROR"
)

func (k Kind) Valid() bool {
	switch k {
	case ConfigurationKind, ErrorKind:
		return true
	}
	return false
}

// ErrorCode is the payload of an ERROR message.
type ErrorCode string

const (
	CodeUnsupportedMessage ErrorCode = "UNSUPPORTED_MESSAGE"
	CodeUnsupportedVerb    ErrorCode = "UNSUPPORTED_VERB"
	CodeJSONParse          ErrorCode = "JSON_PARSE_ERROR"
	CodeApplyFailed        ErrorCode = "APPLY_FAILED"
)

// Message is the unit of exchange between two peers. Build messages with the
// helpers in build.go rather than by hand so that ID is always populated.
type Message struct {
	Verb Verb   `json:"verb"`
	Kind Kind   `json:"msg"`
	Data any    `json:"data,omitempty"`
	ID   string `json:"id,omitempty"`
}

// ErrorCode returns the code carried by an ERROR message.
func (m Message) ErrorCode() (ErrorCode, bool) {
	if m.Kind != ErrorKind {
		return "", false
	}
	switch v := m.Data.(type) {
	case ErrorCode:
		return v, true
	case string:
		return ErrorCode(v), true
	}
	return "", false
}

// PatchSet returns the patch set carried by a CONFIGURATION PATCH message.
func (m Message) PatchSet() (PatchSet, error) {
	if ps, ok := m.Data.(PatchSet); ok {
		return ps, nil
	}
	return ParsePatchSet(m.Data)
}
