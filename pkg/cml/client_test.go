package cml

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/newtron-network/cmlkit/internal/testutil"
	"github.com/newtron-network/cmlkit/pkg/model"
)

// recordingSleep returns immediately and records the requested delays.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) after(d time.Duration) <-chan time.Time {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func newTestClient(t *testing.T, srv *testutil.CMLServer) (*Client, *recordingSleep) {
	t.Helper()
	sleep := &recordingSleep{}
	c, err := New(Config{
		BaseURL:  srv.URL,
		Username: testutil.TestUsername,
		Password: testutil.TestPassword,
	}, WithSleep(sleep.after))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, sleep
}

// ===================== Config Tests =====================

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"cml.lab", "https://cml.lab"},
		{"https://cml.lab/", "https://cml.lab"},
		{"http://10.0.0.1:8080", "http://10.0.0.1:8080"},
		{"https://cml.lab/api/v0", "https://cml.lab"},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeBaseURL(tt.in); got != tt.want {
			t.Errorf("NormalizeBaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Error("Validate() on empty config should fail")
	}
	if err := (Config{BaseURL: "x", Username: "u", Password: "p"}).Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("RequestTimeout = %v, want %v", cfg.RequestTimeout, DefaultRequestTimeout)
	}
	if cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", cfg.MaxRetries, DefaultMaxRetries)
	}
	if cfg.BackoffBase != DefaultBackoffBase || cfg.BackoffFactor != DefaultBackoffFactor {
		t.Errorf("backoff = %v x%v, want %v x%v", cfg.BackoffBase, cfg.BackoffFactor, DefaultBackoffBase, DefaultBackoffFactor)
	}
	if got := (Config{MaxRetries: -1}).withDefaults().MaxRetries; got != 0 {
		t.Errorf("MaxRetries(-1) = %d, want 0", got)
	}
}

// ===================== Error Mapping Tests =====================

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{404, KindNotFound},
		{409, KindConflict},
		{400, KindValidation},
		{422, KindValidation},
		{429, KindServer},
		{500, KindServer},
		{503, KindServer},
	}
	for _, tt := range tests {
		if got := KindForStatus(tt.status); got != tt.want {
			t.Errorf("KindForStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestRemoteMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"description", `{"code": 400, "description": "bad node"}`, "bad node"},
		{"detail string", `{"detail": "not here"}`, "not here"},
		{"detail object", `{"detail": [{"loc": "x"}]}`, `[{"loc": "x"}]`},
		{"message", `{"message": "nope"}`, "nope"},
		{"json string", `"plain"`, "plain"},
		{"raw text", "Internal Server Error", "Internal Server Error"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := remoteMessage([]byte(tt.body)); got != tt.want {
				t.Errorf("remoteMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitEntries(t *testing.T) {
	objects, ids, err := splitEntries([]byte(`{"b": {"title": "B"}, "a": {"id": "a", "title": "A"}}`))
	if err != nil {
		t.Fatalf("splitEntries() error = %v", err)
	}
	if len(ids) != 0 || len(objects) != 2 {
		t.Fatalf("splitEntries() = %d objects, %d ids", len(objects), len(ids))
	}
	if string(objects[0]) != `{"id": "a", "title": "A"}` {
		t.Errorf("objects[0] = %s", objects[0])
	}

	_, ids, err = splitEntries([]byte(`["x", "y"]`))
	if err != nil || len(ids) != 2 {
		t.Errorf("splitEntries(ids) = %v, %v", ids, err)
	}

	if _, _, err := splitEntries([]byte(`42`)); err == nil {
		t.Error("splitEntries(42) should fail")
	}
}

// ===================== Retry Tests =====================

// flakyTransport fails the first n round trips with a transport error.
// Authentication requests are only failed when auth is set; when only is
// set, nothing but requests to that path fail.
type flakyTransport struct {
	mu       sync.Mutex
	n        int
	auth     bool
	only     string
	attempts int
	next     http.RoundTripper
}

func (f *flakyTransport) failOnly(n int, path string) {
	f.mu.Lock()
	f.n, f.only = n, path
	f.mu.Unlock()
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.attempts++
	var fail bool
	switch {
	case f.n == 0:
	case f.only != "":
		fail = req.URL.Path == f.only
	default:
		fail = f.auth || req.URL.Path != authPath
	}
	if fail {
		f.n--
	}
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset by peer")
	}
	return f.next.RoundTrip(req)
}

func TestCall_RetriesNetworkFailures(t *testing.T) {
	srv := testutil.NewCMLServer(t)
	flaky := &flakyTransport{n: 2, next: http.DefaultTransport}
	sleep := &recordingSleep{}
	c, err := New(Config{
		BaseURL:  srv.URL,
		Username: testutil.TestUsername,
		Password: testutil.TestPassword,
	}, WithHTTPClient(&http.Client{Transport: flaky}), WithSleep(sleep.after))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.ListLabs(context.Background()); err != nil {
		t.Fatalf("ListLabs() error = %v", err)
	}
	if got := srv.Calls("GET /labs"); got != 1 {
		t.Errorf("GET /labs calls reaching server = %d, want 1", got)
	}
	want := []time.Duration{500 * time.Millisecond, time.Second}
	if len(sleep.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", sleep.delays, want)
	}
	for i := range want {
		if sleep.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, sleep.delays[i], want[i])
		}
	}
}

func TestCall_RetriesAuthenticationNetworkFailures(t *testing.T) {
	srv := testutil.NewCMLServer(t)
	flaky := &flakyTransport{n: 2, auth: true, next: http.DefaultTransport}
	sleep := &recordingSleep{}
	c, err := New(Config{
		BaseURL:  srv.URL,
		Username: testutil.TestUsername,
		Password: testutil.TestPassword,
	}, WithHTTPClient(&http.Client{Transport: flaky}), WithSleep(sleep.after))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.ListLabs(context.Background()); err != nil {
		t.Fatalf("ListLabs() on a fresh client error = %v", err)
	}
	if got := srv.Calls("POST /authenticate"); got != 1 {
		t.Errorf("authenticate calls reaching server = %d, want 1", got)
	}
	if got := srv.Calls("GET /labs"); got != 1 {
		t.Errorf("GET /labs calls reaching server = %d, want 1", got)
	}
	want := []time.Duration{500 * time.Millisecond, time.Second}
	if len(sleep.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", sleep.delays, want)
	}
	for i := range want {
		if sleep.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, sleep.delays[i], want[i])
		}
	}
}

func TestCall_RetriesReauthenticationNetworkFailure(t *testing.T) {
	srv := testutil.NewCMLServer(t)
	flaky := &flakyTransport{next: http.DefaultTransport}
	sleep := &recordingSleep{}
	c, err := New(Config{
		BaseURL:  srv.URL,
		Username: testutil.TestUsername,
		Password: testutil.TestPassword,
	}, WithHTTPClient(&http.Client{Transport: flaky}), WithSleep(sleep.after))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := c.ListLabs(ctx); err != nil {
		t.Fatalf("first ListLabs() error = %v", err)
	}

	srv.ExpireTokens()
	flaky.failOnly(1, authPath)
	if _, err := c.ListLabs(ctx); err != nil {
		t.Fatalf("ListLabs() with a failing re-authentication error = %v", err)
	}
	if got := srv.Calls("POST /authenticate"); got != 2 {
		t.Errorf("authenticate calls reaching server = %d, want 2", got)
	}
	if len(sleep.delays) != 1 || sleep.delays[0] != 500*time.Millisecond {
		t.Errorf("delays = %v, want [500ms]", sleep.delays)
	}
}

func TestCall_NetworkFailureKind(t *testing.T) {
	srv := testutil.NewCMLServer(t)
	flaky := &flakyTransport{n: 100, next: http.DefaultTransport}
	c, err := New(Config{
		BaseURL:  srv.URL,
		Username: testutil.TestUsername,
		Password: testutil.TestPassword,
	}, WithHTTPClient(&http.Client{Transport: flaky}), WithSleep((&recordingSleep{}).after))
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.ListLabs(context.Background())
	if !IsKind(err, KindNetwork) {
		t.Fatalf("error = %v, want NETWORK", err)
	}
	// authenticate + 1 attempt + 3 retries
	if flaky.attempts != 5 {
		t.Errorf("attempts = %d, want 5", flaky.attempts)
	}
}

func TestCall_RetriesExhausted(t *testing.T) {
	srv := testutil.NewCMLServer(t)
	c, _ := newTestClient(t, srv)
	srv.FailNext(http.MethodGet, "/labs", http.StatusServiceUnavailable, 10)

	_, err := c.ListLabs(context.Background())
	if !IsKind(err, KindServer) {
		t.Fatalf("ListLabs() error = %v, want SERVER", err)
	}
	if got := srv.Calls("GET /labs"); got != 1+DefaultMaxRetries {
		t.Errorf("GET /labs calls = %d, want %d", got, 1+DefaultMaxRetries)
	}
}

func TestCall_NoRetryOnClientErrors(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict} {
		srv := testutil.NewCMLServer(t)
		c, sleep := newTestClient(t, srv)
		srv.FailNext(http.MethodPost, "/labs", status, 5)

		_, err := c.CreateLab(context.Background(), "x", "")
		var re *RemoteError
		if !errors.As(err, &re) || re.Status != status {
			t.Errorf("status %d: error = %v", status, err)
		}
		if got := srv.Calls("POST /labs"); got != 1 {
			t.Errorf("status %d: calls = %d, want 1", status, got)
		}
		if len(sleep.delays) != 0 {
			t.Errorf("status %d: slept %v", status, sleep.delays)
		}
	}
}

func TestCall_ReauthenticatesOnExpiredToken(t *testing.T) {
	srv := testutil.NewCMLServer(t)
	c, _ := newTestClient(t, srv)
	ctx := context.Background()

	if _, err := c.ListLabs(ctx); err != nil {
		t.Fatalf("first ListLabs() error = %v", err)
	}
	srv.ExpireTokens()
	if _, err := c.ListLabs(ctx); err != nil {
		t.Fatalf("ListLabs() after expiry error = %v", err)
	}
	if got := srv.Calls("POST /authenticate"); got != 2 {
		t.Errorf("authenticate calls = %d, want 2", got)
	}
}

func TestCall_PersistentUnauthorized(t *testing.T) {
	srv := testutil.NewCMLServer(t)
	c, _ := newTestClient(t, srv)
	srv.FailNext(http.MethodGet, "/labs", http.StatusUnauthorized, 5)

	_, err := c.ListLabs(context.Background())
	if !IsKind(err, KindAuth) {
		t.Fatalf("error = %v, want AUTH", err)
	}
	if got := srv.Calls("GET /labs"); got != 2 {
		t.Errorf("GET /labs calls = %d, want 2 (one re-authentication)", got)
	}
}

func TestCall_BadCredentials(t *testing.T) {
	srv := testutil.NewCMLServer(t)
	c, err := New(Config{BaseURL: srv.URL, Username: "admin", Password: "wrong"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.ListLabs(context.Background())
	if !IsKind(err, KindAuth) {
		t.Errorf("error = %v, want AUTH", err)
	}
}

func TestCall_CanceledContext(t *testing.T) {
	srv := testutil.NewCMLServer(t)
	c, _ := newTestClient(t, srv)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListLabs(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if got := srv.Calls("GET /labs"); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
}

func TestCall_ConcurrentReauthentication(t *testing.T) {
	srv := testutil.NewCMLServer(t)
	c, _ := newTestClient(t, srv)
	ctx := context.Background()
	if err := c.AuthOK(ctx); err != nil {
		t.Fatalf("AuthOK() error = %v", err)
	}

	srv.ExpireTokens()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ListLabs(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("ListLabs() error = %v", err)
		}
	}
	if got := srv.Calls("POST /authenticate"); got > 1+8 {
		t.Errorf("authenticate calls = %d", got)
	}
}

// ===================== Endpoint Tests =====================

func TestEndpoints_LabNodeLink(t *testing.T) {
	srv := testutil.NewCMLServer(t)
	c, _ := newTestClient(t, srv)
	ctx := context.Background()

	lab, err := c.CreateLab(ctx, "demo", "a test lab")
	if err != nil {
		t.Fatalf("CreateLab() error = %v", err)
	}
	if lab.State != model.LabDefined || lab.Title != "demo" {
		t.Errorf("CreateLab() = %+v", lab)
	}

	r1, err := c.CreateNode(ctx, lab.ID, model.NodeSpec{Label: "R1", NodeDefinition: "iosv", X: 10, PopulateInterfaces: true})
	if err != nil {
		t.Fatalf("CreateNode(R1) error = %v", err)
	}
	r2, err := c.CreateNode(ctx, lab.ID, model.NodeSpec{Label: "R2", NodeDefinition: "iosv"})
	if err != nil {
		t.Fatalf("CreateNode(R2) error = %v", err)
	}
	if r1.State != model.NodeDefined || r1.Label != "R1" || r1.X != 10 {
		t.Errorf("CreateNode() = %+v", r1)
	}

	ifs1, err := c.ListNodeInterfaces(ctx, lab.ID, r1.ID)
	if err != nil || len(ifs1) != 4 {
		t.Fatalf("ListNodeInterfaces(R1) = %d, %v; want 4", len(ifs1), err)
	}
	slot := 1
	ifs2, err := c.CreateInterface(ctx, lab.ID, r2.ID, &slot)
	if err != nil || len(ifs2) != 2 {
		t.Fatalf("CreateInterface(R2, slot 1) = %d, %v; want 2", len(ifs2), err)
	}

	link, err := c.CreateLink(ctx, lab.ID, ifs1[0].ID, ifs2[0].ID)
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	if link.NodeA != r1.ID || link.NodeB != r2.ID {
		t.Errorf("CreateLink() nodes = %s,%s", link.NodeA, link.NodeB)
	}

	_, err = c.CreateLink(ctx, lab.ID, ifs1[0].ID, ifs2[1].ID)
	if !IsKind(err, KindConflict) {
		t.Errorf("second CreateLink() error = %v, want CONFLICT", err)
	}

	got, err := c.GetInterface(ctx, lab.ID, ifs1[0].ID)
	if err != nil || !got.IsConnected() {
		t.Errorf("GetInterface() = %+v, %v; want connected", got, err)
	}

	links, err := c.ListLinks(ctx, lab.ID)
	if err != nil || len(links) != 1 || links[0].ID != link.ID {
		t.Errorf("ListLinks() = %v, %v", links, err)
	}

	if err := c.DeleteLink(ctx, lab.ID, link.ID); err != nil {
		t.Errorf("DeleteLink() error = %v", err)
	}
	if err := c.DeleteLink(ctx, lab.ID, link.ID); !IsNotFound(err) {
		t.Errorf("second DeleteLink() error = %v, want NOT_FOUND", err)
	}
}

func TestEndpoints_StateAndConfig(t *testing.T) {
	srv := testutil.NewCMLServer(t)
	c, _ := newTestClient(t, srv)
	ctx := context.Background()

	labID := srv.SeedLab("cfg")
	nodeID := srv.SeedNode(labID, "R1", "iosv", 2)

	if err := c.SetNodeConfig(ctx, labID, nodeID, "hostname R1\n"); err != nil {
		t.Fatalf("SetNodeConfig() error = %v", err)
	}
	cfg, err := c.GetNodeConfig(ctx, labID, nodeID)
	if err != nil || cfg != "hostname R1\n" {
		t.Errorf("GetNodeConfig() = %q, %v", cfg, err)
	}

	if err := c.StartLab(ctx, labID); err != nil {
		t.Fatalf("StartLab() error = %v", err)
	}
	ls, err := c.LabState(ctx, labID)
	if err != nil || ls != model.LabStarted {
		t.Errorf("LabState() = %s, %v", ls, err)
	}
	ns, err := c.NodeState(ctx, labID, nodeID)
	if err != nil || ns != model.NodeRunning {
		t.Errorf("NodeState() = %s, %v; want RUNNING after one poll", ns, err)
	}
	if err := c.DeleteLab(ctx, labID); !IsKind(err, KindConflict) {
		t.Errorf("DeleteLab(started) error = %v, want CONFLICT", err)
	}
}

func TestEndpoints_NodeDefinitions(t *testing.T) {
	srv := testutil.NewCMLServer(t)
	c, _ := newTestClient(t, srv)

	defs, err := c.ListNodeDefinitions(context.Background())
	if err != nil {
		t.Fatalf("ListNodeDefinitions() error = %v", err)
	}
	found := false
	for _, d := range defs {
		if d.ID == "iosv" {
			found = true
			if d.Interfaces != 4 {
				t.Errorf("iosv interfaces = %d, want 4", d.Interfaces)
			}
		}
	}
	if !found {
		t.Error("iosv not in node definitions")
	}
}

func TestEndpoints_NotFound(t *testing.T) {
	srv := testutil.NewCMLServer(t)
	c, _ := newTestClient(t, srv)

	_, err := c.GetLab(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Errorf("GetLab(missing) error = %v, want NOT_FOUND", err)
	}
	var re *RemoteError
	if errors.As(err, &re) && re.Message == "" {
		t.Error("RemoteError.Message is empty")
	}
}
