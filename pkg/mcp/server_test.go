package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/pario-ai/backstop/pkg/config"
	"github.com/pario-ai/backstop/pkg/kv/memory"
	"github.com/pario-ai/backstop/pkg/orchestrator"
)

type testResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func newTestServer(t *testing.T) (*Server, *orchestrator.Orchestrator) {
	t.Helper()
	cfg := config.Default()
	cfg.Providers = []config.ProviderConfig{
		{ID: "mock", Priority: 1, DailyLimit: 5, MonthlyLimit: -1, ResponseShape: config.ShapeMock},
	}
	logger := zaptest.NewLogger(t)
	orch, err := orchestrator.New(context.Background(), cfg, memory.New(), orchestrator.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	return New(orch, "test", logger), orch
}

func roundTrip(t *testing.T, srv *Server, lines ...string) []testResponse {
	t.Helper()
	var out bytes.Buffer
	in := strings.Join(lines, "\n") + "\n"
	if err := srv.Run(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatal(err)
	}

	var resps []testResponse
	dec := json.NewDecoder(&out)
	for dec.More() {
		var r testResponse
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		resps = append(resps, r)
	}
	return resps
}

func toolText(t *testing.T, r testResponse) (string, bool) {
	t.Helper()
	if r.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", r.Error)
	}
	var res ToolResult
	if err := json.Unmarshal(r.Result, &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("content blocks = %d, want 1", len(res.Content))
	}
	return res.Content[0].Text, res.IsError
}

func TestInitializeAndNotification(t *testing.T) {
	srv, _ := newTestServer(t)
	resps := roundTrip(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
	)
	if len(resps) != 1 {
		t.Fatalf("responses = %d, want 1 (notifications get no reply)", len(resps))
	}

	var res initializeResult
	if err := json.Unmarshal(resps[0].Result, &res); err != nil {
		t.Fatal(err)
	}
	if res.ServerInfo.Name != "backstop" || res.ServerInfo.Version != "test" {
		t.Errorf("server info = %+v", res.ServerInfo)
	}
	if res.ProtocolVersion != protocolVersion {
		t.Errorf("protocol = %q", res.ProtocolVersion)
	}
}

func TestToolsList(t *testing.T) {
	srv, _ := newTestServer(t)
	resps := roundTrip(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)

	var res struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(resps[0].Result, &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Tools) != len(handlers) {
		t.Fatalf("listed %d tools, have %d handlers", len(res.Tools), len(handlers))
	}
	for _, tool := range res.Tools {
		if _, ok := handlers[tool.Name]; !ok {
			t.Errorf("tool %q has no handler", tool.Name)
		}
	}
}

func TestProtocolErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	resps := roundTrip(t, srv,
		`not json`,
		`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":"oops"}`,
	)
	want := []int{codeParseError, codeMethodNotFound, codeInvalidParams}
	if len(resps) != len(want) {
		t.Fatalf("responses = %d, want %d", len(resps), len(want))
	}
	for i, code := range want {
		if resps[i].Error == nil || resps[i].Error.Code != code {
			t.Errorf("response %d error = %+v, want code %d", i, resps[i].Error, code)
		}
	}
}

func TestRequestTool(t *testing.T) {
	srv, orch := newTestServer(t)
	resps := roundTrip(t, srv,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"backstop_request","arguments":{"kind":"recipe","items":["chicken","rice"]}}}`,
	)
	text, isErr := toolText(t, resps[0])
	if isErr {
		t.Fatalf("request tool failed: %s", text)
	}

	var res struct {
		Success bool   `json:"success"`
		Source  string `json:"source"`
	}
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Source != "provider:mock" {
		t.Errorf("result = %+v", res)
	}

	rem, err := orch.RemainingQuota(context.Background(), "mock")
	if err != nil {
		t.Fatal(err)
	}
	if rem.Daily != 4 {
		t.Errorf("daily remaining = %d, want 4", rem.Daily)
	}
}

func TestRequestToolInvalidInput(t *testing.T) {
	srv, _ := newTestServer(t)
	resps := roundTrip(t, srv,
		`{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"backstop_request","arguments":{"kind":"recipe"}}}`,
		`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"backstop_request","arguments":{"kind":"caption","items":["beach"],"ttl":"soon"}}}`,
	)
	for _, r := range resps {
		if text, isErr := toolText(t, r); !isErr {
			t.Errorf("expected tool error, got %s", text)
		}
	}
}

func TestQuotaAndModeTools(t *testing.T) {
	srv, orch := newTestServer(t)
	resps := roundTrip(t, srv,
		`{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"backstop_quota"}}`,
		`{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"backstop_quota","arguments":{"provider_id":"ghost"}}}`,
		`{"jsonrpc":"2.0","id":10,"method":"tools/call","params":{"name":"backstop_mode"}}`,
		`{"jsonrpc":"2.0","id":11,"method":"tools/call","params":{"name":"backstop_nope"}}`,
	)

	text, isErr := toolText(t, resps[0])
	if isErr || !strings.Contains(text, "mock") || !strings.Contains(text, "unlimited") {
		t.Errorf("quota table = %q", text)
	}
	if _, isErr := toolText(t, resps[1]); !isErr {
		t.Error("unknown provider should be a tool error")
	}
	text, _ = toolText(t, resps[2])
	if !strings.Contains(text, "Mode: "+string(orch.CurrentMode(context.Background()))) {
		t.Errorf("mode text = %q", text)
	}
	if _, isErr := toolText(t, resps[3]); !isErr {
		t.Error("unknown tool should be a tool error")
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := srv.Run(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), &out)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}
