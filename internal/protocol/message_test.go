package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/mhesketh/srag-ml/internal/protocol"
)

func TestNewResult_EchoesIDAndMarshalsResult(t *testing.T) {
	resp, err := protocol.NewResult(42, map[string]string{"status": "ok"})
	if err != nil {
		t.Fatalf("NewResult: %v", err)
	}
	if resp.ID != 42 {
		t.Fatalf("ID = %d, want 42", resp.ID)
	}
	if resp.JSONRPC != "2.0" {
		t.Fatalf("JSONRPC = %q, want 2.0", resp.JSONRPC)
	}
	var result map[string]string
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result["status"] != "ok" {
		t.Fatalf("result = %v", result)
	}
}

func TestNewError_CarriesCodeAndMessage(t *testing.T) {
	resp := protocol.NewError(7, protocol.CodeParseError, "malformed JSON")
	if resp.ID != 7 {
		t.Fatalf("ID = %d, want 7", resp.ID)
	}
	if resp.Err == nil || resp.Err.Code != protocol.CodeParseError || resp.Err.Message != "malformed JSON" {
		t.Fatalf("Err = %+v", resp.Err)
	}
	if resp.Result != nil {
		t.Fatal("Result should be nil on error response")
	}
}

func TestRequest_UnmarshalsWireShape(t *testing.T) {
	raw := []byte(`{"id":5,"method":"ping","params":{},"_auth":"tok"}`)
	var req protocol.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.ID != 5 || req.Method != "ping" || req.Auth != "tok" {
		t.Fatalf("req = %+v", req)
	}
}
