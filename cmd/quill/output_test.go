package main

import (
	"os"
	"testing"
)

func TestColorizeRespectsNoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if got := colorize(colorGreen, "ok"); got != "ok" {
		t.Errorf("colorize with NO_COLOR set = %q, want plain text", got)
	}
}

func TestColorizeRespectsFlag(t *testing.T) {
	orig := noColor
	noColor = true
	t.Cleanup(func() { noColor = orig })

	if got := colorize(colorRed, "fail"); got != "fail" {
		t.Errorf("colorize with --no-color = %q, want plain text", got)
	}
}

func TestColorizeWrapsWithReset(t *testing.T) {
	if v, ok := os.LookupEnv("NO_COLOR"); ok {
		os.Unsetenv("NO_COLOR")
		t.Cleanup(func() { os.Setenv("NO_COLOR", v) })
	}
	orig := noColor
	noColor = false
	t.Cleanup(func() { noColor = orig })

	want := colorGreen + "ok" + colorReset
	if got := colorize(colorGreen, "ok"); got != want {
		t.Errorf("colorize = %q, want %q", got, want)
	}
}
