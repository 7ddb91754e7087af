// Package mcp serves the operation catalog to agents over the Model Context
// Protocol: newline-delimited JSON-RPC 2.0 on a pair of streams, normally the
// process's stdin and stdout.
//
// Requests are handled concurrently; responses are written whole, one per
// line, in completion order. A tools/call can be aborted with a
// notifications/cancelled message naming its request id.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/newtron-network/cmlkit/pkg/catalog"
	"github.com/newtron-network/cmlkit/pkg/configlet"
	"github.com/newtron-network/cmlkit/pkg/util"
)

// ResourcePrefix is the URI prefix of configlet resources.
const ResourcePrefix = "cml://configlets/"

const maxMessageSize = 4 << 20

const instructions = "Tools drive a Cisco Modeling Labs controller. Labs must be stopped before " +
	"their topology changes; use list_templates and apply_template to build common topologies in one call."

// Server answers MCP requests. One Server may serve several sessions in turn
// but not concurrently.
type Server struct {
	catalog *catalog.Catalog
	configs *configlet.Registry
	info    serverInfo

	writeMu sync.Mutex
	out     io.Writer

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer creates a server for cat. configs backs the resource methods
// and may be nil.
func NewServer(cat *catalog.Catalog, configs *configlet.Registry, name, version string) *Server {
	return &Server{
		catalog:  cat,
		configs:  configs,
		info:     serverInfo{Name: name, Version: version},
		inflight: make(map[string]context.CancelFunc),
	}
}

// Serve reads requests from r until EOF and writes responses to w. It
// returns after every in-flight request has been answered.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.out = w
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.wg.Wait()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxMessageSize)
	util.Infof("mcp session started (%s %s)", s.info.Name, s.info.Version)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(Response{JSONRPC: JSONRPCVersion, ID: json.RawMessage("null"), Error: rpcError(CodeParseError, "parse error: %v", err)})
			continue
		}
		if req.JSONRPC != JSONRPCVersion || req.Method == "" {
			if !req.IsNotification() {
				s.write(Response{JSONRPC: JSONRPCVersion, ID: req.ID, Error: rpcError(CodeInvalidRequest, "invalid request")})
			}
			continue
		}
		s.dispatch(ctx, req)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading requests: %w", err)
	}
	util.Info("mcp session ended")
	return nil
}

func (s *Server) dispatch(ctx context.Context, req Request) {
	if req.Method == "notifications/cancelled" {
		var p cancelParams
		if json.Unmarshal(req.Params, &p) == nil {
			s.cancel(p.RequestID, p.Reason)
		}
		return
	}

	callCtx := ctx
	key := string(req.ID)
	if !req.IsNotification() {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithCancel(ctx)
		s.mu.Lock()
		s.inflight[key] = cancel
		s.mu.Unlock()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		result, rerr := s.handle(callCtx, req)
		if req.IsNotification() {
			return
		}

		s.mu.Lock()
		if cancel, ok := s.inflight[key]; ok {
			cancel()
			delete(s.inflight, key)
		}
		s.mu.Unlock()

		resp := Response{JSONRPC: JSONRPCVersion, ID: req.ID}
		if rerr != nil {
			resp.Error = rerr
		} else {
			if result == nil {
				result = struct{}{}
			}
			resp.Result = result
		}
		s.write(resp)
	}()
}

func (s *Server) cancel(id json.RawMessage, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.inflight[string(id)]; ok {
		util.WithField("request", string(id)).Infof("request cancelled: %s", reason)
		cancel()
	}
}

func (s *Server) write(resp Response) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	enc := json.NewEncoder(s.out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(resp); err != nil {
		util.WithField("id", string(resp.ID)).Errorf("writing response: %v", err)
	}
}

func (s *Server) handle(ctx context.Context, req Request) (any, *ResponseError) {
	util.WithField("method", req.Method).Debug("mcp request")

	switch req.Method {
	case "initialize":
		return initializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities: map[string]any{
				"tools":     map[string]any{},
				"resources": map[string]any{},
				"prompts":   map[string]any{},
			},
			ServerInfo:   s.info,
			Instructions: instructions,
		}, nil

	case "ping":
		return struct{}{}, nil

	case "tools/list":
		defs := s.catalog.Definitions()
		tools := make([]tool, 0, len(defs))
		for _, d := range defs {
			tools = append(tools, tool{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema()})
		}
		return map[string]any{"tools": tools}, nil

	case "tools/call":
		var p callParams
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Name == "" {
			return nil, rpcError(CodeInvalidParams, "tools/call needs a tool name")
		}
		return toolResult(s.catalog.Call(ctx, p.Name, p.Arguments)), nil

	case "resources/list":
		return map[string]any{"resources": s.resources()}, nil

	case "resources/read":
		var p struct {
			URI string `json:"uri"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, rpcError(CodeInvalidParams, "resources/read needs a uri")
		}
		return s.readResource(p.URI)

	case "prompts/list":
		list := make([]prompt, 0, len(prompts))
		for _, p := range prompts {
			list = append(list, p.prompt)
		}
		return map[string]any{"prompts": list}, nil

	case "prompts/get":
		var p struct {
			Name      string            `json:"name"`
			Arguments map[string]string `json:"arguments"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, rpcError(CodeInvalidParams, "prompts/get needs a name")
		}
		def, ok := findPrompt(p.Name)
		if !ok {
			return nil, rpcError(CodeInvalidParams, "unknown prompt %q", p.Name)
		}
		text, rerr := def.render(p.Arguments)
		if rerr != nil {
			return nil, rerr
		}
		return map[string]any{
			"description": def.Description,
			"messages":    []promptMessage{{Role: "user", Content: content{Type: "text", Text: text}}},
		}, nil

	default:
		if strings.HasPrefix(req.Method, "notifications/") {
			return nil, nil
		}
		return nil, rpcError(CodeMethodNotFound, "method %q not found", req.Method)
	}
}

// toolResult wraps a catalog result. Text results are passed through as is;
// everything else is sent as indented JSON of the whole result so the agent
// sees the error code.
func toolResult(res catalog.Result) callResult {
	if text, ok := res.Data.(string); ok && res.OK {
		return callResult{Content: []content{{Type: "text", Text: text}}}
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf(`{"ok":false,"error":{"code":%q,"message":%q}}`, catalog.CodeInternal, err.Error()))
		res.OK = false
	}
	return callResult{Content: []content{{Type: "text", Text: string(data)}}, IsError: !res.OK}
}

func (s *Server) resources() []resource {
	out := []resource{}
	if s.configs == nil {
		return out
	}
	for _, c := range s.configs.List() {
		out = append(out, resource{
			URI:         ResourcePrefix + c.Name,
			Name:        c.Name,
			Description: c.Description,
			MimeType:    "text/plain",
		})
	}
	return out
}

func (s *Server) readResource(uri string) (any, *ResponseError) {
	name, ok := strings.CutPrefix(uri, ResourcePrefix)
	if !ok || s.configs == nil {
		return nil, rpcError(CodeInvalidParams, "unknown resource %q", uri)
	}
	c, ok := s.configs.Get(name)
	if !ok {
		return nil, rpcError(CodeInvalidParams, "unknown resource %q", uri)
	}
	return map[string]any{
		"contents": []resourceContent{{URI: uri, MimeType: "text/plain", Text: c.Body}},
	}, nil
}
