package message

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"tuplespace/tuple"
)

// ClientMessage is a request envelope.
//
//   - PUT_REQUEST carries a Tuple.
//   - GET_REQUEST and QUERY_REQUEST carry a Template; GET removes the match, QUERY does not.
//   - Blocking asks the server to wait for a match, All asks for every match at once.
type ClientMessage struct {
	messageType   ClientMessageType
	target        string
	tuple         *tuple.Tuple
	template      *tuple.Template
	blocking      bool
	all           bool
	clientSession string
}

// NewClientMessage builds a request from every field. A nil tuple or template means the
// payload is absent.
func NewClientMessage(
	messageType ClientMessageType,
	target string,
	tp *tuple.Tuple,
	tmpl *tuple.Template,
	blocking bool,
	all bool,
	clientSession string,
) ClientMessage {
	m := ClientMessage{
		messageType:   messageType,
		target:        target,
		blocking:      blocking,
		all:           all,
		clientSession: clientSession,
	}
	if tp != nil {
		c := *tp
		m.tuple = &c
	}
	if tmpl != nil {
		c := *tmpl
		m.template = &c
	}
	return m
}

// NewPutRequest asks the server to add t to the target space.
func NewPutRequest(target string, t tuple.Tuple, clientSession string) ClientMessage {
	return NewClientMessage(PutRequest, target, &t, nil, false, false, clientSession)
}

// NewGetRequest asks the server to remove tuples matching tmpl.
func NewGetRequest(target string, tmpl tuple.Template, blocking, all bool, clientSession string) ClientMessage {
	return NewClientMessage(GetRequest, target, nil, &tmpl, blocking, all, clientSession)
}

// NewQueryRequest asks the server for tuples matching tmpl without removing them.
func NewQueryRequest(target string, tmpl tuple.Template, blocking, all bool, clientSession string) ClientMessage {
	return NewClientMessage(QueryRequest, target, nil, &tmpl, blocking, all, clientSession)
}

func (m ClientMessage) MessageType() ClientMessageType { return m.messageType }
func (m ClientMessage) Target() string                  { return m.target }
func (m ClientMessage) Blocking() bool                  { return m.blocking }
func (m ClientMessage) All() bool                       { return m.all }
func (m ClientMessage) ClientSession() string           { return m.clientSession }

// Tuple returns the write payload and whether it is present.
func (m ClientMessage) Tuple() (tuple.Tuple, bool) {
	if m.tuple == nil {
		return tuple.Tuple{}, false
	}
	return *m.tuple, true
}

// Template returns the read payload and whether it is present.
func (m ClientMessage) Template() (tuple.Template, bool) {
	if m.template == nil {
		return tuple.Template{}, false
	}
	return *m.template, true
}

// ValidationError names the request field that makes a ClientMessage unusable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("message: invalid %s: %s", e.Field, e.Reason)
}

// Validate checks that the request carries what its type needs.
func (m ClientMessage) Validate() error {
	if strings.TrimSpace(m.target) == "" {
		return &ValidationError{Field: "target", Reason: "empty"}
	}
	switch m.messageType {
	case PutRequest:
		if m.tuple == nil {
			return &ValidationError{Field: "tuple", Reason: "missing for " + m.messageType.String()}
		}
	case GetRequest, QueryRequest:
		if m.template == nil {
			return &ValidationError{Field: "template", Reason: "missing for " + m.messageType.String()}
		}
	default:
		return &ValidationError{Field: "messageType", Reason: m.messageType.String()}
	}
	return nil
}

func (m ClientMessage) Equal(o ClientMessage) bool {
	if m.messageType != o.messageType ||
		m.target != o.target ||
		m.blocking != o.blocking ||
		m.all != o.all ||
		m.clientSession != o.clientSession {
		return false
	}
	if (m.tuple == nil) != (o.tuple == nil) || (m.tuple != nil && !m.tuple.Equal(*o.tuple)) {
		return false
	}
	if (m.template == nil) != (o.template == nil) || (m.template != nil && !m.template.Equal(*o.template)) {
		return false
	}
	return true
}

func (m ClientMessage) Hash() uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%t|%t|%s|", m.messageType, m.target, m.blocking, m.all, m.clientSession)
	if m.tuple != nil {
		fmt.Fprintf(h, "t%d|", m.tuple.Hash())
	}
	if m.template != nil {
		fmt.Fprintf(h, "p%d|", m.template.Hash())
	}
	return h.Sum64()
}

func (m ClientMessage) String() string {
	var b strings.Builder
	b.WriteString("ClientMessage [messageType=")
	b.WriteString(m.messageType.String())
	b.WriteString(", target=")
	b.WriteString(strconv.Quote(m.target))
	if m.tuple != nil {
		b.WriteString(", tuple=")
		b.WriteString(m.tuple.String())
	}
	if m.template != nil {
		b.WriteString(", template=")
		b.WriteString(m.template.String())
	}
	fmt.Fprintf(&b, ", blocking=%t, all=%t, clientSession=%s]", m.blocking, m.all, strconv.Quote(m.clientSession))
	return b.String()
}
