// Package message defines the envelopes exchanged between tuple-space clients and servers.
//
// A ClientMessage is a request naming a target space and carrying either a Tuple (writes)
// or a Template (reads). A ServerMessage is the response: a status, a status code and
// text, the result tuples of a read, and the session of the request it answers.
//
// Both envelopes are immutable values. They get serialized by the codec layer and wrapped
// in a protocol frame for transmission, and may be shared between goroutines freely.
package message

import (
	"errors"
	"fmt"
)

// ClientMessageType is the kind of request.
type ClientMessageType uint8

const (
	PutRequest ClientMessageType = iota + 1
	GetRequest
	QueryRequest
)

// ServerMessageType is the kind of response.
type ServerMessageType uint8

const (
	PutResponse ServerMessageType = iota + 1
	GetResponse
	Failure
)

var ErrUnknownMessageType = errors.New("message: unknown message type")

var clientTypeNames = map[ClientMessageType]string{
	PutRequest:   "PUT_REQUEST",
	GetRequest:   "GET_REQUEST",
	QueryRequest: "QUERY_REQUEST",
}

var serverTypeNames = map[ServerMessageType]string{
	PutResponse: "PUT_RESPONSE",
	GetResponse: "GET_RESPONSE",
	Failure:     "FAILURE",
}

func (t ClientMessageType) String() string {
	if name, ok := clientTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ClientMessageType(%d)", uint8(t))
}

// IsRead reports whether the request carries a template.
func (t ClientMessageType) IsRead() bool {
	return t == GetRequest || t == QueryRequest
}

func ParseClientMessageType(name string) (ClientMessageType, error) {
	for t, n := range clientTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMessageType, name)
}

func (t ServerMessageType) String() string {
	if name, ok := serverTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ServerMessageType(%d)", uint8(t))
}

func ParseServerMessageType(name string) (ServerMessageType, error) {
	for t, n := range serverTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMessageType, name)
}

// Status codes and texts produced by the ServerMessage factories. The statusCode field
// itself is an open string; these are only the conventional pairs.
const (
	Code200          = "200"
	StatusOK         = "OK"
	Code400          = "400"
	StatusBadRequest = "Bad Request"
	Code500          = "500"
	StatusServerErr  = "Internal Server Error"
	Code503          = "503"
	StatusUnavail    = "Service Unavailable"
)
