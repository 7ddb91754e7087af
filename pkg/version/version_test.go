package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	if Version != "dev" {
		t.Errorf("default Version = %q, want %q", Version, "dev")
	}
	if GitCommit != "unknown" {
		t.Errorf("default GitCommit = %q, want %q", GitCommit, "unknown")
	}
}

func TestInfo(t *testing.T) {
	saved := Version
	Version = "v1.2.3"
	defer func() { Version = saved }()

	got := Info()
	if !strings.HasPrefix(got, "v1.2.3 (unknown) built ") {
		t.Errorf("Info() = %q", got)
	}
	if !strings.HasSuffix(got, runtime.Version()) {
		t.Errorf("Info() = %q, want Go version suffix %s", got, runtime.Version())
	}
}
