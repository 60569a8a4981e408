package sandbox

import (
	"bytes"
	"testing"
)

func TestDockerNetworkMode_DefaultsToNone(t *testing.T) {
	if got := dockerNetworkMode(""); got != "none" {
		t.Errorf("dockerNetworkMode(\"\") = %q, want none", got)
	}
}

func TestDockerNetworkMode_PassesThroughExplicitMode(t *testing.T) {
	if got := dockerNetworkMode("bridge"); got != "bridge" {
		t.Errorf("dockerNetworkMode(bridge) = %q, want bridge", got)
	}
}

func TestSafeString_NilResultReturnsEmpty(t *testing.T) {
	if got := safeString(nil); got != "" {
		t.Errorf("safeString(nil) = %q, want empty", got)
	}
}

func TestSafeString_ReturnsStdout(t *testing.T) {
	if got := safeString(&ExecResult{Stdout: "hi"}); got != "hi" {
		t.Errorf("safeString() = %q, want hi", got)
	}
}

func TestTrackingWriter_EmitsCompletedLinesOnly(t *testing.T) {
	var buf bytes.Buffer
	var got []string
	w := &trackingWriter{buf: &buf, stream: "stdout", onLine: func(stream, line string) {
		got = append(got, line)
	}}

	w.Write([]byte("first\nsecond\npartial"))

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("emitted lines = %v, want [first second] with the trailing partial line held back", got)
	}
	if buf.String() != "first\nsecond\npartial" {
		t.Errorf("buf = %q, want the full write buffered regardless of line completion", buf.String())
	}
}

func TestTrackingWriter_NilCallbackStillBuffers(t *testing.T) {
	var buf bytes.Buffer
	w := &trackingWriter{buf: &buf, stream: "stdout"}
	if _, err := w.Write([]byte("data")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if buf.String() != "data" {
		t.Errorf("buf = %q, want data", buf.String())
	}
}
