package protocol

// IDFunc produces correlation tokens.
type IDFunc func() string

// Builder constructs messages. An empty id argument means a fresh token is
// taken from NewID, or from PhraseID when NewID is nil.
type Builder struct {
	NewID IDFunc
}

var defaultBuilder = Builder{NewID: PhraseID}

func (b Builder) id(id string) string {
	if id != "" {
		return id
	}
	if b.NewID == nil {
		return PhraseID()
	}
	return b.NewID()
}

func (b Builder) Read(id string) Message {
	return Message{Verb: ReadVerb, Kind: ConfigurationKind, ID: b.id(id)}
}

func (b Builder) Notify(kind Kind, payload any, id string) Message {
	return Message{Verb: NotifyVerb, Kind: kind, Data: payload, ID: b.id(id)}
}

// Patch diffs oldDoc against newDoc and frames the result as a PATCH.
func (b Builder) Patch(oldDoc, newDoc any, id string, opts ...DiffOption) (Message, error) {
	ps, err := Diff(oldDoc, newDoc, opts...)
	if err != nil {
		return Message{}, err
	}
	return b.PatchOps(ps, id), nil
}

func (b Builder) PatchOps(ps PatchSet, id string) Message {
	if ps == nil {
		ps = PatchSet{}
	}
	return Message{Verb: PatchVerb, Kind: ConfigurationKind, Data: ps, ID: b.id(id)}
}

func (b Builder) Error(code ErrorCode, id string) Message {
	return b.Notify(ErrorKind, string(code), id)
}

func (b Builder) UnsupportedMessage(id string) Message {
	return b.Error(CodeUnsupportedMessage, id)
}

func (b Builder) UnsupportedVerb(id string) Message {
	return b.Error(CodeUnsupportedVerb, id)
}

// JSONParseError carries no id: the frame it answers never produced one.
func (b Builder) JSONParseError() Message {
	return Message{Verb: NotifyVerb, Kind: ErrorKind, Data: string(CodeJSONParse)}
}

func (b Builder) ApplyFailed(id string) Message {
	return b.Error(CodeApplyFailed, id)
}

func Read(id string) Message {
	return defaultBuilder.Read(id)
}

func Notify(kind Kind, payload any, id string) Message {
	return defaultBuilder.Notify(kind, payload, id)
}

func Patch(oldDoc, newDoc any, id string, opts ...DiffOption) (Message, error) {
	return defaultBuilder.Patch(oldDoc, newDoc, id, opts...)
}

func PatchOps(ps PatchSet, id string) Message {
	return defaultBuilder.PatchOps(ps, id)
}

func Error(code ErrorCode, id string) Message {
	return defaultBuilder.Error(code, id)
}

func UnsupportedMessage(id string) Message {
	return defaultBuilder.UnsupportedMessage(id)
}

func UnsupportedVerb(id string) Message {
	return defaultBuilder.UnsupportedVerb(id)
}

func JSONParseError() Message {
	return defaultBuilder.JSONParseError()
}

func ApplyFailed(id string) Message {
	return defaultBuilder.ApplyFailed(id)
}
