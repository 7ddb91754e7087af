package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/newtron-network/cmlkit/internal/testutil"
	"github.com/newtron-network/cmlkit/pkg/cache"
	"github.com/newtron-network/cmlkit/pkg/catalog"
	"github.com/newtron-network/cmlkit/pkg/cml"
	"github.com/newtron-network/cmlkit/pkg/configlet"
	"github.com/newtron-network/cmlkit/pkg/labgen"
	"github.com/newtron-network/cmlkit/pkg/lifecycle"
)

type rawResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *ResponseError  `json:"error"`
}

func newTestServer(t *testing.T, timeout time.Duration) (*Server, *testutil.CMLServer) {
	t.Helper()
	srv := testutil.NewCMLServer(t)
	client, err := cml.New(cml.Config{
		BaseURL:     srv.URL,
		Username:    testutil.TestUsername,
		Password:    testutil.TestPassword,
		MaxRetries:  1,
		BackoffBase: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("cml.New() error = %v", err)
	}
	ctrl := lifecycle.New(client, cache.New(), lifecycle.Config{
		PollInterval:       5 * time.Millisecond,
		ConvergenceTimeout: timeout,
	})
	configs, err := configlet.NewRegistry()
	if err != nil {
		t.Fatalf("configlet.NewRegistry() error = %v", err)
	}
	templates, err := labgen.NewRegistry(configs)
	if err != nil {
		t.Fatalf("labgen.NewRegistry() error = %v", err)
	}
	cat := catalog.New(catalog.Deps{Controller: ctrl, Templates: templates, Configlets: configs})
	return NewServer(cat, configs, "cmlkit", "test"), srv
}

// exchange runs a whole session over the given request lines and returns
// the responses keyed by raw id.
func exchange(t *testing.T, s *Server, lines ...string) map[string]rawResponse {
	t.Helper()
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	if err := s.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	return parseResponses(t, out.String())
}

func parseResponses(t *testing.T, text string) map[string]rawResponse {
	t.Helper()
	got := map[string]rawResponse{}
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if line == "" {
			continue
		}
		var r rawResponse
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("bad response line %q: %v", line, err)
		}
		got[string(r.ID)] = r
	}
	return got
}

func request(id int, method, params string) string {
	if params == "" {
		return fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":%q}`, id, method)
	}
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":%q,"params":%s}`, id, method, params)
}

func toolText(t *testing.T, r rawResponse) (string, bool) {
	t.Helper()
	if r.Error != nil {
		t.Fatalf("rpc error = %v", r.Error)
	}
	var res callResult
	if err := json.Unmarshal(r.Result, &res); err != nil {
		t.Fatalf("decoding tool result: %v", err)
	}
	if len(res.Content) != 1 || res.Content[0].Type != "text" {
		t.Fatalf("content = %+v, want one text item", res.Content)
	}
	return res.Content[0].Text, res.IsError
}

// ===================== Session Tests =====================

func TestInitialize(t *testing.T) {
	s, _ := newTestServer(t, time.Second)
	got := exchange(t, s,
		request(1, "initialize", `{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"t","version":"0"}}`),
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		request(2, "ping", ""),
	)
	if len(got) != 2 {
		t.Fatalf("responses = %d, want 2 (notification must not be answered)", len(got))
	}

	var init initializeResult
	if err := json.Unmarshal(got["1"].Result, &init); err != nil {
		t.Fatalf("decoding initialize: %v", err)
	}
	if init.ProtocolVersion != ProtocolVersion {
		t.Errorf("protocolVersion = %q, want %q", init.ProtocolVersion, ProtocolVersion)
	}
	if init.ServerInfo.Name != "cmlkit" {
		t.Errorf("serverInfo.name = %q", init.ServerInfo.Name)
	}
	for _, capability := range []string{"tools", "resources", "prompts"} {
		if _, ok := init.Capabilities[capability]; !ok {
			t.Errorf("missing capability %s", capability)
		}
	}
	if string(got["2"].Result) != "{}" {
		t.Errorf("ping result = %s, want {}", got["2"].Result)
	}
}

func TestProtocolErrors(t *testing.T) {
	s, _ := newTestServer(t, time.Second)
	got := exchange(t, s,
		`{not json`,
		`{"jsonrpc":"1.0","id":1,"method":"ping"}`,
		request(2, "does/not/exist", ""),
		request(3, "tools/call", `{}`),
		request(4, "resources/read", `{"uri":"cml://configlets/nope"}`),
		request(5, "prompts/get", `{"name":"nope"}`),
		request(6, "prompts/get", `{"name":"cml-describe-topology","arguments":{}}`),
	)

	tests := []struct {
		id   string
		code int
	}{
		{"null", CodeParseError},
		{"1", CodeInvalidRequest},
		{"2", CodeMethodNotFound},
		{"3", CodeInvalidParams},
		{"4", CodeInvalidParams},
		{"5", CodeInvalidParams},
		{"6", CodeInvalidParams},
	}
	for _, tt := range tests {
		r, ok := got[tt.id]
		if !ok {
			t.Errorf("no response for id %s", tt.id)
			continue
		}
		if r.Error == nil || r.Error.Code != tt.code {
			t.Errorf("id %s error = %v, want code %d", tt.id, r.Error, tt.code)
		}
	}
}

// ===================== Tool Tests =====================

func TestToolsList(t *testing.T) {
	s, _ := newTestServer(t, time.Second)
	got := exchange(t, s, request(1, "tools/list", ""))

	var list struct {
		Tools []tool `json:"tools"`
	}
	if err := json.Unmarshal(got["1"].Result, &list); err != nil {
		t.Fatalf("decoding tools/list: %v", err)
	}
	if want := len(s.catalog.Definitions()); len(list.Tools) != want {
		t.Fatalf("tools = %d, want %d", len(list.Tools), want)
	}
	for _, tl := range list.Tools {
		if tl.InputSchema["type"] != "object" {
			t.Errorf("%s schema type = %v, want object", tl.Name, tl.InputSchema["type"])
		}
		if tl.Description == "" {
			t.Errorf("%s has no description", tl.Name)
		}
	}
}

func TestToolsCall(t *testing.T) {
	s, srv := newTestServer(t, time.Second)
	labID := srv.SeedLab("demo")
	srv.SeedNode(labID, "R1", "iosv", 2)

	got := exchange(t, s,
		request(1, "tools/call", fmt.Sprintf(`{"name":"get_lab_topology","arguments":{"lab_id":%q}}`, labID)),
		request(2, "tools/call", `{"name":"list_labs"}`),
		request(3, "tools/call", `{"name":"create_lab","arguments":{}}`),
		request(4, "tools/call", `{"name":"no_such_tool","arguments":{}}`),
	)

	text, isErr := toolText(t, got["1"])
	if isErr || !strings.HasPrefix(text, "Lab Topology: demo\n") {
		t.Errorf("topology = %q (isError %v)", text, isErr)
	}
	if !strings.Contains(text, "- R1 (ID: ") {
		t.Errorf("topology missing node:\n%s", text)
	}

	text, isErr = toolText(t, got["2"])
	if isErr {
		t.Fatalf("list_labs failed: %s", text)
	}
	var res struct {
		OK   bool             `json:"ok"`
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatalf("list_labs text is not JSON: %v", err)
	}
	if !res.OK || len(res.Data) != 1 || res.Data[0]["title"] != "demo" {
		t.Errorf("list_labs = %+v", res)
	}

	for id, code := range map[string]string{"3": catalog.CodeInvalidArgument, "4": catalog.CodeUnknownOperation} {
		text, isErr := toolText(t, got[id])
		if !isErr {
			t.Errorf("id %s: isError = false", id)
		}
		var failed catalog.Result
		if err := json.Unmarshal([]byte(text), &failed); err != nil {
			t.Fatalf("id %s: text is not JSON: %v", id, err)
		}
		if failed.Error == nil || failed.Error.Code != code {
			t.Errorf("id %s error = %+v, want %s", id, failed.Error, code)
		}
	}
}

func TestToolsCall_Cancelled(t *testing.T) {
	s, srv := newTestServer(t, 10*time.Second)
	labID := srv.SeedLab("slow")
	nodeID := srv.SeedNode(labID, "R1", "iosv", 2)
	srv.NeverBoot()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(context.Background(), inR, outW)
		outW.Close()
	}()

	write := func(line string) {
		if _, err := io.WriteString(inW, line+"\n"); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write(request(7, "tools/call", fmt.Sprintf(`{"name":"start_node","arguments":{"lab_id":%q,"node_id":%q}}`, labID, nodeID)))

	// let the call reach its polling loop before cancelling it
	deadline := time.Now().Add(2 * time.Second)
	for srv.Calls("/state") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	write(`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":7,"reason":"user abort"}}`)

	scanner := bufio.NewScanner(outR)
	if !scanner.Scan() {
		t.Fatalf("no response: %v", scanner.Err())
	}
	inW.Close()

	resp := parseResponses(t, scanner.Text())["7"]
	text, isErr := toolText(t, resp)
	if !isErr || !strings.Contains(text, `"CANCELED"`) {
		t.Errorf("cancelled call = %s (isError %v)", text, isErr)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after EOF")
	}
}

// ===================== Resource and Prompt Tests =====================

func TestResources(t *testing.T) {
	s, _ := newTestServer(t, time.Second)
	got := exchange(t, s,
		request(1, "resources/list", ""),
		request(2, "resources/read", `{"uri":"cml://configlets/ospf-router"}`),
	)

	var list struct {
		Resources []resource `json:"resources"`
	}
	if err := json.Unmarshal(got["1"].Result, &list); err != nil {
		t.Fatalf("decoding resources/list: %v", err)
	}
	if len(list.Resources) != len(s.configs.List()) {
		t.Errorf("resources = %d, want %d", len(list.Resources), len(s.configs.List()))
	}
	for _, r := range list.Resources {
		if !strings.HasPrefix(r.URI, ResourcePrefix) || r.MimeType != "text/plain" {
			t.Errorf("resource = %+v", r)
		}
	}

	var read struct {
		Contents []resourceContent `json:"contents"`
	}
	if err := json.Unmarshal(got["2"].Result, &read); err != nil {
		t.Fatalf("decoding resources/read: %v", err)
	}
	if len(read.Contents) != 1 || !strings.Contains(read.Contents[0].Text, "{{area_id}}") {
		t.Errorf("contents = %+v", read.Contents)
	}
}

func TestResources_NoRegistry(t *testing.T) {
	s, _ := newTestServer(t, time.Second)
	s.configs = nil
	got := exchange(t, s,
		request(1, "resources/list", ""),
		request(2, "resources/read", `{"uri":"cml://configlets/ospf-router"}`),
	)
	if string(got["1"].Result) != `{"resources":[]}` {
		t.Errorf("resources/list = %s", got["1"].Result)
	}
	if got["2"].Error == nil || got["2"].Error.Code != CodeInvalidParams {
		t.Errorf("resources/read error = %v", got["2"].Error)
	}
}

func TestPrompts(t *testing.T) {
	s, _ := newTestServer(t, time.Second)
	got := exchange(t, s,
		request(1, "prompts/list", ""),
		request(2, "prompts/get", `{"name":"cml-describe-topology","arguments":{"lab_id":"lab-42"}}`),
		request(3, "prompts/get", `{"name":"cml-create-lab"}`),
	)

	var list struct {
		Prompts []prompt `json:"prompts"`
	}
	if err := json.Unmarshal(got["1"].Result, &list); err != nil {
		t.Fatalf("decoding prompts/list: %v", err)
	}
	if len(list.Prompts) != 2 {
		t.Fatalf("prompts = %d, want 2", len(list.Prompts))
	}

	tests := []struct {
		id   string
		want string
	}{
		{"2", "(Lab ID: lab-42)"},
		{"3", "requirements:\n(not specified)\n"},
	}
	for _, tt := range tests {
		var msg struct {
			Messages []promptMessage `json:"messages"`
		}
		if err := json.Unmarshal(got[tt.id].Result, &msg); err != nil {
			t.Fatalf("decoding prompts/get %s: %v", tt.id, err)
		}
		if len(msg.Messages) != 1 || msg.Messages[0].Role != "user" {
			t.Fatalf("messages = %+v", msg.Messages)
		}
		if !strings.Contains(msg.Messages[0].Content.Text, tt.want) {
			t.Errorf("prompt %s text missing %q:\n%s", tt.id, tt.want, msg.Messages[0].Content.Text)
		}
	}
}
