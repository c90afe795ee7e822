package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := versionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(nil)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "sessiond dev") {
		t.Fatalf("unexpected version output: %q", out.String())
	}
}

func TestGCCmd_RejectsNegativeLifetime(t *testing.T) {
	cmd := gcCmd()
	cmd.SetArgs([]string{"--max-lifetime=-5s"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "must not be negative") {
		t.Fatalf("expected negative lifetime error, got %v", err)
	}
}
