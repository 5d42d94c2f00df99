package message

import (
	"errors"
	"reflect"
	"testing"

	"tuplespace/tuple"
)

func TestServerMessageFactories(t *testing.T) {
	tests := []struct {
		name        string
		msg         ServerMessage
		messageType ServerMessageType
		status      bool
		code        string
		text        string
		hasTuples   bool
		session     string
		hasSession  bool
	}{
		{"SuccessfulPut", SuccessfulPut("s1"), PutResponse, true, "200", "OK", false, "s1", true},
		{"FailedPut", FailedPut("s1"), PutResponse, false, "400", "Bad Request", false, "s1", true},
		{"GetResult", GetResultTuples(nil, "s1"), GetResponse, true, "200", "OK", true, "s1", true},
		{"BadRequest", BadRequest("s1"), Failure, false, "400", "Bad Request", false, "s1", true},
		{"InternalError", InternalError(), Failure, false, "500", "Internal Server Error", false, "", false},
		{"Unavailable", Unavailable("s1"), Failure, false, "503", "Service Unavailable", false, "s1", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := tc.msg
			if m.MessageType() != tc.messageType {
				t.Errorf("messageType: got %s, want %s", m.MessageType(), tc.messageType)
			}
			if m.Status() != tc.status || m.IsSuccessful() != tc.status {
				t.Errorf("status: got %t, want %t", m.Status(), tc.status)
			}
			if m.StatusCode() != tc.code {
				t.Errorf("statusCode: got %s, want %s", m.StatusCode(), tc.code)
			}
			if m.StatusMessage() != tc.text {
				t.Errorf("statusMessage: got %s, want %s", m.StatusMessage(), tc.text)
			}
			if _, ok := m.Tuples(); ok != tc.hasTuples {
				t.Errorf("tuples presence: got %t, want %t", ok, tc.hasTuples)
			}
			session, ok := m.ClientSession()
			if ok != tc.hasSession || session != tc.session {
				t.Errorf("session: got %q/%t, want %q/%t", session, ok, tc.session, tc.hasSession)
			}
			if err := m.CheckInvariants(); err != nil {
				t.Errorf("factory output breaks invariants: %v", err)
			}
		})
	}
}

func TestPutResult(t *testing.T) {
	if !PutResult(true, "s").Equal(SuccessfulPut("s")) {
		t.Fatal("PutResult(true) must equal SuccessfulPut")
	}
	if !PutResult(false, "s").Equal(FailedPut("s")) {
		t.Fatal("PutResult(false) must equal FailedPut")
	}
}

func TestGetResultRoundTripsRawTuples(t *testing.T) {
	raw := [][]any{{int64(1), int64(2), int64(3)}, {int64(2), int64(3), int64(4)}}
	m, err := GetResult(raw, "sessA")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if got := m.ResultTuples(); !reflect.DeepEqual(got, raw) {
		t.Fatalf("ResultTuples: got %#v, want %#v", got, raw)
	}

	tuples, ok := m.Tuples()
	if !ok || len(tuples) != 2 || !tuples[0].Equal(tuple.MustOf(1, 2, 3)) {
		t.Fatalf("unexpected tuples: %v", tuples)
	}
}

func TestGetResultRejectsUnsupportedField(t *testing.T) {
	_, err := GetResult([][]any{{1, make(chan int)}}, "s")
	if !errors.Is(err, tuple.ErrUnsupportedValue) {
		t.Fatalf("expect ErrUnsupportedValue, got %v", err)
	}
}

func TestResultTuplesAbsent(t *testing.T) {
	if got := SuccessfulPut("s").ResultTuples(); got != nil {
		t.Fatalf("expect nil, got %v", got)
	}
}

func TestEmptyAndAbsentTuplesDiffer(t *testing.T) {
	empty := NewServerMessage(GetResponse, true, Code200, StatusOK, []tuple.Tuple{}, nil)
	absent := NewServerMessage(GetResponse, true, Code200, StatusOK, nil, nil)
	if empty.Equal(absent) {
		t.Fatal("empty and absent tuple sequences must differ")
	}
}

func TestServerMessageEqualEveryField(t *testing.T) {
	s := "clientSession"
	other := "other"
	tuples := []tuple.Tuple{tuple.MustOf(1, 2, 3), tuple.MustOf(2, 3, 4)}
	base := NewServerMessage(GetResponse, true, "202", "OK", tuples, &s)

	same := NewServerMessage(GetResponse, true, "202", "OK",
		[]tuple.Tuple{tuple.MustOf(1, 2, 3), tuple.MustOf(2, 3, 4)}, &s)
	if !base.Equal(same) || base.Hash() != same.Hash() {
		t.Fatal("structurally equal messages must be Equal with equal hashes")
	}

	variants := []ServerMessage{
		NewServerMessage(PutResponse, true, "202", "OK", tuples, &s),
		NewServerMessage(GetResponse, false, "202", "OK", tuples, &s),
		NewServerMessage(GetResponse, true, "200", "OK", tuples, &s),
		NewServerMessage(GetResponse, true, "202", "Ok", tuples, &s),
		NewServerMessage(GetResponse, true, "202", "OK", tuples[:1], &s),
		NewServerMessage(GetResponse, true, "202", "OK", []tuple.Tuple{tuples[1], tuples[0]}, &s),
		NewServerMessage(GetResponse, true, "202", "OK", nil, &s),
		NewServerMessage(GetResponse, true, "202", "OK", tuples, &other),
		NewServerMessage(GetResponse, true, "202", "OK", tuples, nil),
	}
	for i, v := range variants {
		if base.Equal(v) || v.Equal(base) {
			t.Errorf("variant %d must differ: %s", i, v)
		}
	}
}

func TestInternalErrorDiffersFromSessionBearingResponses(t *testing.T) {
	ie := InternalError()
	withSession := NewServerMessage(Failure, false, Code500, StatusServerErr, nil, strPtr("s"))
	if ie.Equal(withSession) || withSession.Equal(ie) {
		t.Fatal("absent session must not equal a present one")
	}
}

func TestServerMessageIsImmutable(t *testing.T) {
	tuples := []tuple.Tuple{tuple.MustOf(1)}
	s := "s"
	m := NewServerMessage(GetResponse, true, Code200, StatusOK, tuples, &s)

	tuples[0] = tuple.MustOf(2)
	s = "changed"
	got, _ := m.Tuples()
	got[0] = tuple.MustOf(3)

	again, _ := m.Tuples()
	if !again[0].Equal(tuple.MustOf(1)) {
		t.Fatalf("tuples changed: %v", again)
	}
	if session, _ := m.ClientSession(); session != "s" {
		t.Fatalf("session changed: %s", session)
	}
}

func TestCheckInvariantsIsPermissive(t *testing.T) {
	m := NewServerMessage(GetResponse, false, Code200, StatusOK, nil, nil)
	if err := m.CheckInvariants(); err == nil {
		t.Fatal("expect inconsistent status/code to be reported")
	}
	m = NewServerMessage(PutResponse, true, Code200, StatusOK, []tuple.Tuple{}, nil)
	if err := m.CheckInvariants(); err == nil {
		t.Fatal("expect tuples on PUT_RESPONSE to be reported")
	}
}

func TestServerMessageString(t *testing.T) {
	got := GetResultTuples([]tuple.Tuple{tuple.MustOf(1, "a")}, "s").String()
	want := `ServerMessage [messageType=GET_RESPONSE, status=true, statusCode=200, statusMessage=OK, tuples=[<1, "a">], clientSession=s]`
	if got != want {
		t.Fatalf("got %s\nwant %s", got, want)
	}
	got = InternalError().String()
	want = "ServerMessage [messageType=FAILURE, status=false, statusCode=500, statusMessage=Internal Server Error]"
	if got != want {
		t.Fatalf("got %s\nwant %s", got, want)
	}
}

func TestClientMessageFactories(t *testing.T) {
	tp := tuple.MustOf(1, true, 3.0, "4")
	tmpl := tuple.MustTemplateOf(1, tuple.KindInt)

	put := NewPutRequest("space", tp, "s")
	if put.MessageType() != PutRequest || put.Target() != "space" || put.ClientSession() != "s" {
		t.Fatalf("unexpected put request: %s", put)
	}
	if got, ok := put.Tuple(); !ok || !got.Equal(tp) {
		t.Fatalf("put tuple: %v %t", got, ok)
	}
	if _, ok := put.Template(); ok {
		t.Fatal("put must not carry a template")
	}

	get := NewGetRequest("space", tmpl, true, false, "s")
	if get.MessageType() != GetRequest || !get.Blocking() || get.All() {
		t.Fatalf("unexpected get request: %s", get)
	}
	if _, ok := get.Tuple(); ok {
		t.Fatal("get must not carry a tuple")
	}

	query := NewQueryRequest("space", tmpl, false, true, "s")
	if query.MessageType() != QueryRequest || query.Blocking() || !query.All() {
		t.Fatalf("unexpected query request: %s", query)
	}
}

func TestClientMessageEqualEveryField(t *testing.T) {
	tp := tuple.MustOf(1, true, 3.0, "4")
	tmpl := tuple.MustTemplateOf(1, tuple.KindInt)
	base := NewClientMessage(PutRequest, "target", &tp, &tmpl, false, false, "clientSession")

	if !base.Equal(NewClientMessage(PutRequest, "target", &tp, &tmpl, false, false, "clientSession")) {
		t.Fatal("expect equal")
	}

	otherTuple := tuple.MustOf(1, true, 3.0, "5")
	otherTmpl := tuple.MustTemplateOf(1, tuple.KindFloat)
	variants := []ClientMessage{
		NewClientMessage(GetRequest, "target", &tp, &tmpl, false, false, "clientSession"),
		NewClientMessage(PutRequest, "targeti", &tp, &tmpl, false, false, "clientSession"),
		NewClientMessage(PutRequest, "target", &otherTuple, &tmpl, false, false, "clientSession"),
		NewClientMessage(PutRequest, "target", nil, &tmpl, false, false, "clientSession"),
		NewClientMessage(PutRequest, "target", &tp, &otherTmpl, false, false, "clientSession"),
		NewClientMessage(PutRequest, "target", &tp, nil, false, false, "clientSession"),
		NewClientMessage(PutRequest, "target", &tp, &tmpl, true, false, "clientSession"),
		NewClientMessage(PutRequest, "target", &tp, &tmpl, false, true, "clientSession"),
		NewClientMessage(PutRequest, "target", &tp, &tmpl, false, false, "other"),
	}
	for i, v := range variants {
		if base.Equal(v) || v.Equal(base) {
			t.Errorf("variant %d must differ: %s", i, v)
		}
	}
}

func TestClientMessageValidate(t *testing.T) {
	tmpl := tuple.MustTemplateOf(tuple.KindInt)
	tests := []struct {
		name  string
		msg   ClientMessage
		field string
	}{
		{"ok put", NewPutRequest("s", tuple.MustOf(1), "x"), ""},
		{"ok get", NewGetRequest("s", tmpl, false, false, "x"), ""},
		{"empty target", NewPutRequest(" ", tuple.MustOf(1), "x"), "target"},
		{"put without tuple", NewClientMessage(PutRequest, "s", nil, &tmpl, false, false, "x"), "tuple"},
		{"query without template", NewClientMessage(QueryRequest, "s", nil, nil, false, false, "x"), "template"},
		{"unknown type", NewClientMessage(0, "s", nil, nil, false, false, "x"), "messageType"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("expect valid, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.field {
				t.Fatalf("expect ValidationError on %s, got %v", tc.field, err)
			}
		})
	}
}

func TestParseMessageTypes(t *testing.T) {
	for _, typ := range []ClientMessageType{PutRequest, GetRequest, QueryRequest} {
		got, err := ParseClientMessageType(typ.String())
		if err != nil || got != typ {
			t.Errorf("ParseClientMessageType(%s) = %v, %v", typ, got, err)
		}
	}
	for _, typ := range []ServerMessageType{PutResponse, GetResponse, Failure} {
		got, err := ParseServerMessageType(typ.String())
		if err != nil || got != typ {
			t.Errorf("ParseServerMessageType(%s) = %v, %v", typ, got, err)
		}
	}
	if _, err := ParseServerMessageType("NOPE"); !errors.Is(err, ErrUnknownMessageType) {
		t.Fatalf("expect ErrUnknownMessageType, got %v", err)
	}
}

func strPtr(s string) *string { return &s }
