package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestAnyMessageClassification(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, "request"},
		{"string id", `{"jsonrpc":"2.0","id":"a","method":"ping"}`, "request"},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, "notification"},
		{"response", `{"jsonrpc":"2.0","id":1,"result":{}}`, "response"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m AnyMessage
			if err := json.Unmarshal([]byte(tc.in), &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := m.Type(); got != tc.want {
				t.Fatalf("Type() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAnyMessageRejectsInvalid(t *testing.T) {
	for _, in := range []string{
		`{"jsonrpc":"1.0","id":1,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`,
		`{"jsonrpc":"2.0","id":1}`,
		`not json`,
	} {
		var m AnyMessage
		if err := json.Unmarshal([]byte(in), &m); err == nil {
			t.Fatalf("expected error for %s", in)
		}
	}
}

func TestErrorResponseNullID(t *testing.T) {
	resp := NewErrorResponse(nil, ErrorCodeParseError, "parse error", nil)
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","error":{"code":-32700,"message":"parse error"},"id":null}`
	if string(b) != want {
		t.Fatalf("got %s\nwant %s", b, want)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	for _, in := range []string{`7`, `"abc"`} {
		var id RequestID
		if err := json.Unmarshal([]byte(in), &id); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		out, err := json.Marshal(&id)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(out) != in {
			t.Fatalf("round trip %s -> %s", in, out)
		}
	}
	var id RequestID
	if err := json.Unmarshal([]byte(`{}`), &id); err == nil {
		t.Fatalf("expected error for object id")
	}
}

func TestNewNotificationOmitsID(t *testing.T) {
	n, err := NewNotification("notifications/resources/list_changed", nil)
	if err != nil {
		t.Fatalf("NewNotification: %v", err)
	}
	b, _ := json.Marshal(n)
	if string(b) != `{"jsonrpc":"2.0","method":"notifications/resources/list_changed"}` {
		t.Fatalf("unexpected notification: %s", b)
	}
}
