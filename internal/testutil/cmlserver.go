// Package testutil provides test helpers, most importantly an in-memory
// fake of the simulation platform's REST API.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// Fake platform credentials accepted by NewCMLServer.
const (
	TestUsername = "admin"
	TestPassword = "secret"
)

// DefaultNodeDefinitions are the device types the fake platform knows.
var DefaultNodeDefinitions = map[string]int{
	"iosv":               4,
	"iosvl2":             8,
	"csr1000v":           4,
	"nxosv9000":          8,
	"alpine":             1,
	"ubuntu":             1,
	"server":             1,
	"unmanaged_switch":   8,
	"external_connector": 1,
}

type fakeLab struct {
	id, title, description string
	state                  string
	nodes                  map[string]*fakeNode
	nodeOrder              []string
	interfaces             map[string]*fakeInterface
	links                  map[string]*fakeLink
	linkOrder              []string
}

type fakeNode struct {
	id, label, definition string
	state                 string
	x, y                  int
	interfaces            []string
	config                string
	polls                 int
}

type fakeInterface struct {
	id, node, label string
	slot            int
	linkID          string
}

type fakeLink struct {
	id, a, b string
}

type failure struct {
	method   string
	contains string
	status   int // 0 closes the connection without a response
	times    int
}

type hold struct {
	method   string
	contains string
	entered  chan struct{}
	release  chan struct{}
}

// CMLServer is an httptest-backed fake of the platform API. Nodes boot
// after BootPolls state observations unless NeverBoot or FailBoot is set.
type CMLServer struct {
	*httptest.Server

	mu          sync.Mutex
	tokens      map[string]bool
	labs        map[string]*fakeLab
	labOrder    []string
	failures    []*failure
	calls       map[string]int
	bootPolls   int
	neverBoot   bool
	failBoot    bool
	failCreate  int
	nodeCreates int

	holdMu sync.Mutex
	holds  []*hold
}

// NewCMLServer starts a fake platform that is closed with the test.
func NewCMLServer(t testing.TB) *CMLServer {
	t.Helper()
	s := &CMLServer{
		tokens:    make(map[string]bool),
		labs:      make(map[string]*fakeLab),
		calls:     make(map[string]int),
		bootPolls: 1,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// ================ Test controls ================

// ExpireTokens invalidates every issued token, so the next call gets a 401.
func (s *CMLServer) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]bool)
}

// FailNext makes the next times requests whose method matches and whose
// path contains the given substring fail with status. Status 0 drops the
// connection instead, which clients see as a network error.
func (s *CMLServer) FailNext(method, pathContains string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{method: method, contains: pathContains, status: status, times: times})
}

// Hold parks the next request whose method matches and whose path contains
// the given substring before it is handled. entered is closed once the
// request arrives; the request proceeds when release is called. Other
// requests are served normally meanwhile.
func (s *CMLServer) Hold(method, pathContains string) (entered <-chan struct{}, release func()) {
	h := &hold{method: method, contains: pathContains, entered: make(chan struct{}), release: make(chan struct{})}
	s.holdMu.Lock()
	s.holds = append(s.holds, h)
	s.holdMu.Unlock()
	var once sync.Once
	return h.entered, func() { once.Do(func() { close(h.release) }) }
}

func (s *CMLServer) waitHold(method, path string) {
	s.holdMu.Lock()
	var h *hold
	for i, c := range s.holds {
		if c.method == method && strings.Contains(path, c.contains) {
			h = c
			s.holds = append(s.holds[:i], s.holds[i+1:]...)
			break
		}
	}
	s.holdMu.Unlock()
	if h == nil {
		return
	}
	close(h.entered)
	<-h.release
}

// FailNodeCreate rejects the n-th node creation (1-based) with a 400.
func (s *CMLServer) FailNodeCreate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCreate = n
}

// SetBootPolls sets how many state observations a starting node needs
// before it reports BOOTED.
func (s *CMLServer) SetBootPolls(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bootPolls = n
}

// NeverBoot keeps started nodes in STARTED forever.
func (s *CMLServer) NeverBoot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.neverBoot = true
}

// FailBoot makes started nodes report FAILED instead of BOOTED.
func (s *CMLServer) FailBoot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failBoot = true
}

// Calls returns the number of requests received whose "METHOD /path"
// contains substr.
func (s *CMLServer) Calls(substr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, v := range s.calls {
		if strings.Contains(k, substr) {
			n += v
		}
	}
	return n
}

// SeedLab creates a lab directly and returns its id.
func (s *CMLServer) SeedLab(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newLab(title, "").id
}

// SeedNode creates a node with ifaces interfaces and returns its id.
func (s *CMLServer) SeedNode(labID, label, definition string, ifaces int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lab := s.labs[labID]
	n := s.newNode(lab, label, definition, 0, 0)
	if ifaces > 0 {
		s.ensureInterfaces(lab, n, ifaces-1)
	}
	return n.id
}

// SeedLink connects two interfaces directly and returns the link id.
func (s *CMLServer) SeedLink(labID, a, b string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newLink(s.labs[labID], a, b).id
}

// InterfaceIDs returns the interface ids of a node in slot order.
func (s *CMLServer) InterfaceIDs(labID, nodeID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.labs[labID].nodes[nodeID].interfaces...)
}

// NodeIDs returns node ids of a lab in creation order.
func (s *CMLServer) NodeIDs(labID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lab, ok := s.labs[labID]
	if !ok {
		return nil
	}
	return append([]string(nil), lab.nodeOrder...)
}

// LinkCount returns the number of links in a lab.
func (s *CMLServer) LinkCount(labID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lab, ok := s.labs[labID]; ok {
		return len(lab.links)
	}
	return 0
}

// HasLab reports whether the lab exists.
func (s *CMLServer) HasLab(labID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.labs[labID]
	return ok
}

// LabState returns the raw platform state of a lab.
func (s *CMLServer) LabState(labID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lab, ok := s.labs[labID]; ok {
		return lab.state
	}
	return ""
}

// SetLabState overrides the raw platform state of a lab and its nodes.
func (s *CMLServer) SetLabState(labID, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lab := s.labs[labID]
	lab.state = state
	for _, n := range lab.nodes {
		switch state {
		case "STARTED":
			n.state = "BOOTED"
		case "STOPPED":
			n.state = "STOPPED"
		case "DEFINED_ON_CORE":
			n.state = "DEFINED_ON_CORE"
		}
	}
}

// NodeConfig returns the stored configuration of a node.
func (s *CMLServer) NodeConfig(labID, nodeID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.labs[labID].nodes[nodeID].config
}

// ================ Fake state ================

func (s *CMLServer) newLab(title, description string) *fakeLab {
	lab := &fakeLab{
		id:          uuid.NewString(),
		title:       title,
		description: description,
		state:       "DEFINED_ON_CORE",
		nodes:       make(map[string]*fakeNode),
		interfaces:  make(map[string]*fakeInterface),
		links:       make(map[string]*fakeLink),
	}
	s.labs[lab.id] = lab
	s.labOrder = append(s.labOrder, lab.id)
	return lab
}

func (s *CMLServer) newNode(lab *fakeLab, label, definition string, x, y int) *fakeNode {
	n := &fakeNode{
		id:         uuid.NewString(),
		label:      label,
		definition: definition,
		state:      "DEFINED_ON_CORE",
		x:          x,
		y:          y,
	}
	lab.nodes[n.id] = n
	lab.nodeOrder = append(lab.nodeOrder, n.id)
	return n
}

// ensureInterfaces creates every missing interface up to slot and returns
// the ones it created.
func (s *CMLServer) ensureInterfaces(lab *fakeLab, n *fakeNode, slot int) []*fakeInterface {
	var created []*fakeInterface
	for i := len(n.interfaces); i <= slot; i++ {
		ifc := &fakeInterface{
			id:    uuid.NewString(),
			node:  n.id,
			label: "GigabitEthernet0/" + strconv.Itoa(i),
			slot:  i,
		}
		lab.interfaces[ifc.id] = ifc
		n.interfaces = append(n.interfaces, ifc.id)
		created = append(created, ifc)
	}
	return created
}

func (s *CMLServer) newLink(lab *fakeLab, a, b string) *fakeLink {
	l := &fakeLink{id: uuid.NewString(), a: a, b: b}
	lab.links[l.id] = l
	lab.linkOrder = append(lab.linkOrder, l.id)
	lab.interfaces[a].linkID = l.id
	lab.interfaces[b].linkID = l.id
	return l
}

func (s *CMLServer) deleteLink(lab *fakeLab, id string) {
	l, ok := lab.links[id]
	if !ok {
		return
	}
	if ifc, ok := lab.interfaces[l.a]; ok {
		ifc.linkID = ""
	}
	if ifc, ok := lab.interfaces[l.b]; ok {
		ifc.linkID = ""
	}
	delete(lab.links, id)
	lab.linkOrder = remove(lab.linkOrder, id)
}

// observe advances a booting node by one poll.
func (s *CMLServer) observe(n *fakeNode) {
	if n.state != "STARTED" || s.neverBoot {
		return
	}
	n.polls++
	if n.polls >= s.bootPolls {
		if s.failBoot {
			n.state = "FAILED"
		} else {
			n.state = "BOOTED"
		}
	}
}

func (s *CMLServer) refreshLabState(lab *fakeLab) {
	active := false
	for _, n := range lab.nodes {
		if n.state == "STARTED" || n.state == "BOOTED" || n.state == "QUEUED" {
			active = true
		}
	}
	switch {
	case active:
		lab.state = "STARTED"
	case lab.state == "STARTED":
		lab.state = "STOPPED"
	}
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// ================ HTTP ================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"code": status, "description": msg})
}

func (s *CMLServer) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v0")
	s.waitHold(r.Method, path)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Method + " " + path
	s.calls[key]++

	for _, f := range s.failures {
		if f.times > 0 && f.method == r.Method && strings.Contains(path, f.contains) {
			f.times--
			if f.status == 0 {
				if hj, ok := w.(http.Hijacker); ok {
					if conn, _, err := hj.Hijack(); err == nil {
						conn.Close()
						return
					}
				}
				f.status = http.StatusBadGateway
			}
			writeError(w, f.status, "injected failure")
			return
		}
	}

	if r.Method == http.MethodPost && path == "/authenticate" {
		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Username != TestUsername || creds.Password != TestPassword {
			writeError(w, http.StatusForbidden, "Authentication failed!")
			return
		}
		token := uuid.NewString()
		s.tokens[token] = true
		writeJSON(w, http.StatusOK, token)
		return
	}

	auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !s.tokens[auth] {
		writeError(w, http.StatusUnauthorized, "No authorization token provided.")
		return
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case path == "/authok":
		writeJSON(w, http.StatusOK, true)
	case path == "/node_definitions" && r.Method == http.MethodGet:
		s.nodeDefinitions(w)
	case parts[0] == "labs":
		s.routeLabs(w, r, parts[1:])
	default:
		writeError(w, http.StatusNotFound, "no route "+path)
	}
}

func (s *CMLServer) nodeDefinitions(w http.ResponseWriter) {
	names := make([]string, 0, len(DefaultNodeDefinitions))
	for name := range DefaultNodeDefinitions {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		physical := make([]string, DefaultNodeDefinitions[name])
		for i := range physical {
			physical[i] = fmt.Sprintf("eth%d", i)
		}
		out = append(out, map[string]any{
			"id":      name,
			"general": map[string]any{"description": name + " device", "nature": "router"},
			"ui":      map[string]any{"label": strings.ToUpper(name)},
			"device":  map[string]any{"interfaces": map[string]any{"physical": physical}},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *CMLServer) routeLabs(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 0 || parts[0] == "" {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, append([]string{}, s.labOrder...))
		case http.MethodPost:
			var body struct {
				Title       string `json:"title"`
				Description string `json:"description"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			lab := s.newLab(body.Title, body.Description)
			writeJSON(w, http.StatusOK, s.labJSON(lab))
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	lab, ok := s.labs[parts[0]]
	if !ok {
		writeError(w, http.StatusNotFound, "Lab not found: "+parts[0])
		return
	}
	rest := parts[1:]

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, s.labJSON(lab))
		case http.MethodDelete:
			if lab.state == "STARTED" {
				writeError(w, http.StatusConflict, "Lab is running")
				return
			}
			delete(s.labs, lab.id)
			s.labOrder = remove(s.labOrder, lab.id)
			writeJSON(w, http.StatusNoContent, nil)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	switch rest[0] {
	case "start":
		for _, id := range lab.nodeOrder {
			n := lab.nodes[id]
			if n.state != "BOOTED" {
				n.state, n.polls = "STARTED", 0
			}
		}
		lab.state = "STARTED"
		writeJSON(w, http.StatusOK, nil)
	case "stop":
		for _, n := range lab.nodes {
			n.state = "STOPPED"
		}
		lab.state = "STOPPED"
		writeJSON(w, http.StatusOK, nil)
	case "wipe":
		if lab.state == "STARTED" {
			writeError(w, http.StatusConflict, "Lab is running")
			return
		}
		for _, n := range lab.nodes {
			n.state = "DEFINED_ON_CORE"
		}
		lab.state = "DEFINED_ON_CORE"
		writeJSON(w, http.StatusOK, nil)
	case "state":
		for _, n := range lab.nodes {
			s.observe(n)
		}
		writeJSON(w, http.StatusOK, lab.state)
	case "nodes":
		s.routeNodes(w, r, lab, rest[1:])
	case "interfaces":
		s.routeInterfaces(w, r, lab, rest[1:])
	case "links":
		s.routeLinks(w, r, lab, rest[1:])
	default:
		writeError(w, http.StatusNotFound, "no route")
	}
}

func (s *CMLServer) labJSON(lab *fakeLab) map[string]any {
	return map[string]any{
		"id":              lab.id,
		"lab_title":       lab.title,
		"lab_description": lab.description,
		"state":           lab.state,
		"node_count":      len(lab.nodes),
		"link_count":      len(lab.links),
	}
}

func (s *CMLServer) nodeJSON(lab *fakeLab, n *fakeNode) map[string]any {
	return map[string]any{
		"id":              n.id,
		"lab_id":          lab.id,
		"label":           n.label,
		"node_definition": n.definition,
		"state":           n.state,
		"x":               n.x,
		"y":               n.y,
		"interfaces":      append([]string{}, n.interfaces...),
	}
}

func (s *CMLServer) interfaceJSON(lab *fakeLab, ifc *fakeInterface) map[string]any {
	return map[string]any{
		"id":           ifc.id,
		"lab_id":       lab.id,
		"node":         ifc.node,
		"label":        ifc.label,
		"slot":         ifc.slot,
		"type":         "physical",
		"is_connected": ifc.linkID != "",
	}
}

func (s *CMLServer) linkJSON(lab *fakeLab, l *fakeLink) map[string]any {
	return map[string]any{
		"id":          l.id,
		"lab_id":      lab.id,
		"interface_a": l.a,
		"interface_b": l.b,
		"node_a":      lab.interfaces[l.a].node,
		"node_b":      lab.interfaces[l.b].node,
		"state":       "DEFINED_ON_CORE",
	}
}

func (s *CMLServer) routeNodes(w http.ResponseWriter, r *http.Request, lab *fakeLab, parts []string) {
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("data") != "true" {
				writeJSON(w, http.StatusOK, append([]string{}, lab.nodeOrder...))
				return
			}
			out := make([]map[string]any, 0, len(lab.nodeOrder))
			for _, id := range lab.nodeOrder {
				s.observe(lab.nodes[id])
				out = append(out, s.nodeJSON(lab, lab.nodes[id]))
			}
			writeJSON(w, http.StatusOK, out)
		case http.MethodPost:
			s.createNode(w, r, lab)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	n, ok := lab.nodes[parts[0]]
	if !ok {
		writeError(w, http.StatusNotFound, "Node not found: "+parts[0])
		return
	}
	rest := parts[1:]

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			s.observe(n)
			writeJSON(w, http.StatusOK, s.nodeJSON(lab, n))
		case http.MethodDelete:
			if n.state == "STARTED" || n.state == "BOOTED" {
				writeError(w, http.StatusConflict, "Node is running")
				return
			}
			for _, ifcID := range n.interfaces {
				if ifc := lab.interfaces[ifcID]; ifc != nil && ifc.linkID != "" {
					s.deleteLink(lab, ifc.linkID)
				}
				delete(lab.interfaces, ifcID)
			}
			delete(lab.nodes, n.id)
			lab.nodeOrder = remove(lab.nodeOrder, n.id)
			writeJSON(w, http.StatusNoContent, nil)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	switch rest[0] {
	case "state":
		if len(rest) == 1 {
			s.observe(n)
			writeJSON(w, http.StatusOK, map[string]string{"state": n.state})
			return
		}
		switch rest[1] {
		case "start":
			if n.state != "BOOTED" {
				n.state, n.polls = "STARTED", 0
			}
		case "stop":
			n.state = "STOPPED"
		}
		s.refreshLabState(lab)
		writeJSON(w, http.StatusOK, nil)
	case "wipe_disks":
		if n.state == "STARTED" || n.state == "BOOTED" {
			writeError(w, http.StatusConflict, "Node is running")
			return
		}
		n.state = "DEFINED_ON_CORE"
		writeJSON(w, http.StatusOK, nil)
	case "config":
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, n.config)
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			n.config = string(body)
			writeJSON(w, http.StatusOK, n.id)
		}
	case "interfaces":
		if r.URL.Query().Get("data") != "true" {
			writeJSON(w, http.StatusOK, append([]string{}, n.interfaces...))
			return
		}
		out := make([]map[string]any, 0, len(n.interfaces))
		for _, id := range n.interfaces {
			out = append(out, s.interfaceJSON(lab, lab.interfaces[id]))
		}
		writeJSON(w, http.StatusOK, out)
	default:
		writeError(w, http.StatusNotFound, "no route")
	}
}

func (s *CMLServer) createNode(w http.ResponseWriter, r *http.Request, lab *fakeLab) {
	var body struct {
		Label          string `json:"label"`
		NodeDefinition string `json:"node_definition"`
		X              int    `json:"x"`
		Y              int    `json:"y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.nodeCreates++
	if s.failCreate > 0 && s.nodeCreates == s.failCreate {
		writeError(w, http.StatusBadRequest, "Node definition rejected")
		return
	}
	defaults, ok := DefaultNodeDefinitions[body.NodeDefinition]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown node definition: "+body.NodeDefinition)
		return
	}
	for _, n := range lab.nodes {
		if n.label == body.Label {
			writeError(w, http.StatusBadRequest, "Node label already in use: "+body.Label)
			return
		}
	}

	n := s.newNode(lab, body.Label, body.NodeDefinition, body.X, body.Y)
	if r.URL.Query().Get("populate_interfaces") == "true" {
		s.ensureInterfaces(lab, n, defaults-1)
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": n.id})
}

func (s *CMLServer) routeInterfaces(w http.ResponseWriter, r *http.Request, lab *fakeLab, parts []string) {
	if len(parts) == 0 {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var body struct {
			Node string `json:"node"`
			Slot *int   `json:"slot"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		n, ok := lab.nodes[body.Node]
		if !ok {
			writeError(w, http.StatusBadRequest, "Node not found: "+body.Node)
			return
		}
		slot := len(n.interfaces)
		if body.Slot != nil {
			slot = *body.Slot
		}
		created := s.ensureInterfaces(lab, n, slot)
		if len(created) == 0 {
			writeJSON(w, http.StatusOK, s.interfaceJSON(lab, lab.interfaces[n.interfaces[slot]]))
			return
		}
		if len(created) == 1 {
			writeJSON(w, http.StatusOK, s.interfaceJSON(lab, created[0]))
			return
		}
		out := make([]map[string]any, 0, len(created))
		for _, ifc := range created {
			out = append(out, s.interfaceJSON(lab, ifc))
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	ifc, ok := lab.interfaces[parts[0]]
	if !ok {
		writeError(w, http.StatusNotFound, "Interface not found: "+parts[0])
		return
	}
	writeJSON(w, http.StatusOK, s.interfaceJSON(lab, ifc))
}

func (s *CMLServer) routeLinks(w http.ResponseWriter, r *http.Request, lab *fakeLab, parts []string) {
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("data") != "true" {
				writeJSON(w, http.StatusOK, append([]string{}, lab.linkOrder...))
				return
			}
			out := make([]map[string]any, 0, len(lab.linkOrder))
			for _, id := range lab.linkOrder {
				out = append(out, s.linkJSON(lab, lab.links[id]))
			}
			writeJSON(w, http.StatusOK, out)
		case http.MethodPost:
			var body struct {
				SrcInt string `json:"src_int"`
				DstInt string `json:"dst_int"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			a, okA := lab.interfaces[body.SrcInt]
			b, okB := lab.interfaces[body.DstInt]
			switch {
			case !okA || !okB:
				writeError(w, http.StatusBadRequest, "Interface not found")
			case a.id == b.id:
				writeError(w, http.StatusBadRequest, "Cannot link an interface to itself")
			case a.linkID != "" || b.linkID != "":
				writeError(w, http.StatusConflict, "Interface already connected")
			default:
				l := s.newLink(lab, a.id, b.id)
				writeJSON(w, http.StatusOK, s.linkJSON(lab, l))
			}
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	l, ok := lab.links[parts[0]]
	if !ok {
		writeError(w, http.StatusNotFound, "Link not found: "+parts[0])
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.linkJSON(lab, l))
	case http.MethodDelete:
		s.deleteLink(lab, l.id)
		writeJSON(w, http.StatusNoContent, nil)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
