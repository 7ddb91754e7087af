package util

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func saveLoggerState() (io.Writer, logrus.Level, logrus.Formatter) {
	return Logger.Out, Logger.Level, Logger.Formatter
}

func restoreLoggerState(out io.Writer, level logrus.Level, formatter logrus.Formatter) {
	Logger.SetOutput(out)
	Logger.SetLevel(level)
	Logger.SetFormatter(formatter)
}

func TestSetLogLevel(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"error", false},
		{"loud", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			err := SetLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("SetLogLevel(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
		})
	}
}

func TestDebugfSuppressedAtInfo(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetLogLevel("info")

	Debugf("GET %s", "/api/v0/labs")
	if buf.Len() != 0 {
		t.Errorf("debug output at info level: %q", buf.String())
	}

	SetLogLevel("debug")
	Debugf("GET %s", "/api/v0/labs")
	if !strings.Contains(buf.String(), "/api/v0/labs") {
		t.Errorf("expected debug output, got %q", buf.String())
	}
}

func TestWithNodeJSONFields(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetJSONFormat()

	WithNode("lab-1", "n0").Info("node booted")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["lab"] != "lab-1" || entry["node"] != "n0" {
		t.Errorf("fields = %v, want lab=lab-1 node=n0", entry)
	}
	if entry["msg"] != "node booted" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestWithLabAndOperation(t *testing.T) {
	if e := WithLab("lab-1"); e.Data["lab"] != "lab-1" {
		t.Errorf("WithLab data = %v", e.Data)
	}
	if e := WithOperation("add_link"); e.Data["operation"] != "add_link" {
		t.Errorf("WithOperation data = %v", e.Data)
	}
	e := WithFields(map[string]interface{}{"a": 1, "b": "x"})
	if len(e.Data) != 2 {
		t.Errorf("WithFields data = %v", e.Data)
	}
}

func TestLevelHelpersWrite(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetLogLevel("info")

	Info("one")
	Infof("two %d", 2)
	Warnf("three %d", 3)
	Errorf("four %d", 4)

	for _, want := range []string{"one", "two 2", "three 3", "four 4"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q: %s", want, buf.String())
		}
	}
}
