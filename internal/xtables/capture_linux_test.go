//go:build linux

package xtables

import (
	"fmt"
	"strings"
	"testing"
)

func TestCaptureReturnsPrintedText(t *testing.T) {
	out, err := Capture(100, func() {
		fmt.Print(" --dport")
		fmt.Print(" 22")
	})
	if err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}
	if string(out) != " --dport 22" {
		t.Fatalf("unexpected capture %q", out)
	}
}

func TestCaptureTruncatesAtLimit(t *testing.T) {
	out, err := Capture(10, func() {
		// Larger than a pipe buffer, so the reader must keep draining.
		fmt.Print(strings.Repeat("x", 200000))
	})
	if err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}
	if len(out) != 10 {
		t.Fatalf("expected 10 bytes, got %d", len(out))
	}
}

func TestCaptureRestoresStdoutAfterPanic(t *testing.T) {
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_, _ = Capture(100, func() {
			fmt.Print("lost")
			panic("serializer failed")
		})
	}()

	out, err := Capture(100, func() { fmt.Print("after") })
	if err != nil {
		t.Fatalf("Capture after panic returned error: %v", err)
	}
	if string(out) != "after" {
		t.Fatalf("unexpected capture after panic %q", out)
	}
}

func TestCaptureEmpty(t *testing.T) {
	out, err := Capture(0, func() {})
	if err != nil {
		t.Fatalf("Capture returned error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no output, got %q", out)
	}
}
