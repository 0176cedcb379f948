package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunWithoutArgsPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(nil, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Usage:") {
		t.Fatalf("expected usage output, got %q", stderr.String())
	}
}

func TestRunUnknownSubcommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"frobnicate"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Unknown subcommand") {
		t.Fatalf("expected unknown subcommand message, got %q", stderr.String())
	}
}

func TestCreateRequiresFrom(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"create", "--amount", "5"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "--from is required") {
		t.Fatalf("expected missing --from error, got %q", stderr.String())
	}
}

func TestTransitionRejectsBadJobID(t *testing.T) {
	for _, name := range []string{"lock", "release", "cancel"} {
		var stdout, stderr bytes.Buffer
		code := run([]string{name, "--from", "esc1caller", "--id", "zero"}, &stdout, &stderr)
		if code != 1 {
			t.Fatalf("%s: expected exit code 1, got %d", name, code)
		}
		if !strings.Contains(stderr.String(), "--id must be a positive integer") {
			t.Fatalf("%s: expected id validation error, got %q", name, stderr.String())
		}
	}
}
