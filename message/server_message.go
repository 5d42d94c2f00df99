package message

import (
	"fmt"
	"hash/fnv"
	"strings"

	"tuplespace/tuple"
)

// ServerMessage is a response envelope.
//
// Tuples and ClientSession are optional. An absent tuple sequence is different from an
// empty one: a GET_RESPONSE with no match carries an empty sequence, every other
// response carries none. The session is absent only on server-level failures.
type ServerMessage struct {
	messageType   ServerMessageType
	status        bool
	statusCode    string
	statusMessage string
	tuples        []tuple.Tuple // nil means absent
	clientSession *string
}

// NewServerMessage builds a response from every field. It does not check that status
// and statusCode agree; use the factories for conventional responses.
//
// A nil tuples slice means absent, a non-nil empty slice means an empty result. A nil
// clientSession means absent.
func NewServerMessage(
	messageType ServerMessageType,
	status bool,
	statusCode string,
	statusMessage string,
	tuples []tuple.Tuple,
	clientSession *string,
) ServerMessage {
	m := ServerMessage{
		messageType:   messageType,
		status:        status,
		statusCode:    statusCode,
		statusMessage: statusMessage,
	}
	if tuples != nil {
		m.tuples = make([]tuple.Tuple, len(tuples))
		copy(m.tuples, tuples)
	}
	if clientSession != nil {
		s := *clientSession
		m.clientSession = &s
	}
	return m
}

// SuccessfulPut acknowledges a stored tuple.
func SuccessfulPut(clientSession string) ServerMessage {
	return NewServerMessage(PutResponse, true, Code200, StatusOK, nil, &clientSession)
}

// FailedPut reports a put the server refused.
func FailedPut(clientSession string) ServerMessage {
	return NewServerMessage(PutResponse, false, Code400, StatusBadRequest, nil, &clientSession)
}

// PutResult picks SuccessfulPut or FailedPut.
func PutResult(ok bool, clientSession string) ServerMessage {
	if ok {
		return SuccessfulPut(clientSession)
	}
	return FailedPut(clientSession)
}

// GetResult answers a read with raw field sequences, one per result tuple.
func GetResult(tuples [][]any, clientSession string) (ServerMessage, error) {
	converted := make([]tuple.Tuple, len(tuples))
	for i, fields := range tuples {
		t, err := tuple.Of(fields...)
		if err != nil {
			return ServerMessage{}, fmt.Errorf("message: result %d: %w", i, err)
		}
		converted[i] = t
	}
	return GetResultTuples(converted, clientSession), nil
}

// GetResultTuples answers a read with tuples. A nil slice is treated as an empty result.
func GetResultTuples(tuples []tuple.Tuple, clientSession string) ServerMessage {
	if tuples == nil {
		tuples = []tuple.Tuple{}
	}
	return NewServerMessage(GetResponse, true, Code200, StatusOK, tuples, &clientSession)
}

// BadRequest reports a request the server could not act on.
func BadRequest(clientSession string) ServerMessage {
	return NewServerMessage(Failure, false, Code400, StatusBadRequest, nil, &clientSession)
}

// InternalError reports a server-side failure. It carries no session: the failure is not
// attributed to any single request.
func InternalError() ServerMessage {
	return NewServerMessage(Failure, false, Code500, StatusServerErr, nil, nil)
}

// Unavailable reports a request the server declined without executing it (rate limit,
// deadline). Clients may retry it.
func Unavailable(clientSession string) ServerMessage {
	return NewServerMessage(Failure, false, Code503, StatusUnavail, nil, &clientSession)
}

func (m ServerMessage) MessageType() ServerMessageType { return m.messageType }
func (m ServerMessage) Status() bool                    { return m.status }
func (m ServerMessage) StatusCode() string              { return m.statusCode }
func (m ServerMessage) StatusMessage() string           { return m.statusMessage }
func (m ServerMessage) IsSuccessful() bool              { return m.status }

// ClientSession returns the echoed session and whether it is present.
func (m ServerMessage) ClientSession() (string, bool) {
	if m.clientSession == nil {
		return "", false
	}
	return *m.clientSession, true
}

// Tuples returns a copy of the result tuples and whether they are present.
func (m ServerMessage) Tuples() ([]tuple.Tuple, bool) {
	if m.tuples == nil {
		return nil, false
	}
	out := make([]tuple.Tuple, len(m.tuples))
	copy(out, m.tuples)
	return out, true
}

// ResultTuples returns every result as its raw field values, in order. It returns nil
// when the response carries no tuples.
func (m ServerMessage) ResultTuples() [][]any {
	if m.tuples == nil {
		return nil
	}
	out := make([][]any, len(m.tuples))
	for i, t := range m.tuples {
		out[i] = t.Values()
	}
	return out
}

// CheckInvariants reports the first way m departs from the conventional status model:
// status must agree with the code class, and tuples must be present exactly on
// successful GET_RESPONSEs.
func (m ServerMessage) CheckInvariants() error {
	success := strings.HasPrefix(m.statusCode, "2")
	if m.status != success {
		return fmt.Errorf("message: status=%t disagrees with code %q", m.status, m.statusCode)
	}
	wantTuples := m.status && m.messageType == GetResponse
	if hasTuples := m.tuples != nil; hasTuples != wantTuples {
		return fmt.Errorf("message: %s with status=%t must %scarry tuples", m.messageType, m.status, negate(!wantTuples))
	}
	return nil
}

func negate(not bool) string {
	if not {
		return "not "
	}
	return ""
}

func (m ServerMessage) Equal(o ServerMessage) bool {
	if m.messageType != o.messageType ||
		m.status != o.status ||
		m.statusCode != o.statusCode ||
		m.statusMessage != o.statusMessage {
		return false
	}
	if (m.clientSession == nil) != (o.clientSession == nil) {
		return false
	}
	if m.clientSession != nil && *m.clientSession != *o.clientSession {
		return false
	}
	if (m.tuples == nil) != (o.tuples == nil) || len(m.tuples) != len(o.tuples) {
		return false
	}
	for i := range m.tuples {
		if !m.tuples[i].Equal(o.tuples[i]) {
			return false
		}
	}
	return true
}

func (m ServerMessage) Hash() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%t|%s|%s|", m.messageType, m.status, m.statusCode, m.statusMessage)
	if m.clientSession != nil {
		fmt.Fprintf(h, "s%s|", *m.clientSession)
	}
	if m.tuples != nil {
		fmt.Fprintf(h, "n%d|", len(m.tuples))
		for _, t := range m.tuples {
			fmt.Fprintf(h, "%d|", t.Hash())
		}
	}
	return h.Sum64()
}

func (m ServerMessage) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ServerMessage [messageType=%s, status=%t, statusCode=%s, statusMessage=%s",
		m.messageType, m.status, m.statusCode, m.statusMessage)
	if m.tuples != nil {
		b.WriteString(", tuples=[")
		for i, t := range m.tuples {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(t.String())
		}
		b.WriteString("]")
	}
	if m.clientSession != nil {
		fmt.Fprintf(&b, ", clientSession=%s", *m.clientSession)
	}
	b.WriteString("]")
	return b.String()
}
