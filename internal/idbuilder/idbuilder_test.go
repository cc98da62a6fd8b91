package idbuilder

import (
	"errors"
	"strings"
	"testing"
)

func build(t *testing.T, b *Builder, allowReserved bool, segments ...string) string {
	t.Helper()
	for _, s := range segments {
		b.AppendSegment(s)
	}
	id, err := b.Build(allowReserved, DefaultMaxLength)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return id
}

func TestBuildJoinsSegments(t *testing.T) {
	b := New()
	if got := build(t, b, false, "build", "1"); got != "build_1" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildCollisions(t *testing.T) {
	b := New()
	first := build(t, b, false, "build")
	second := build(t, b, false, "build")
	third := build(t, b, false, "BUILD")
	if first != "build" || second != "build_2" || third != "BUILD_3" {
		t.Fatalf("got %q %q %q", first, second, third)
	}
}

func TestBuildSanitises(t *testing.T) {
	b := New()
	if got := build(t, b, false, "1st job", "linux/x64"); got != "_1st_job_linux_x64" {
		t.Fatalf("got %q", got)
	}
	if got := build(t, b, false, "-x", "-y"); got != "_-x_-y" {
		t.Fatalf("only the first segment gets a prefix, got %q", got)
	}
}

func TestBuildReservedPrefix(t *testing.T) {
	b := New()
	if got := build(t, b, false, "__x"); got != "_x" {
		t.Fatalf("got %q", got)
	}
	if got := build(t, b, true, "__run"); got != "__run" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildTruncatesPreservingSuffix(t *testing.T) {
	b := New()
	long := strings.Repeat("a", 120)
	first := build(t, b, false, long)
	b.AppendSegment(long)
	second, err := b.Build(false, DefaultMaxLength)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(first) != 100 || len(second) != 100 || !strings.HasSuffix(second, "_2") {
		t.Fatalf("got %q (%d) and %q (%d)", first, len(first), second, len(second))
	}
}

func TestBuildExhausted(t *testing.T) {
	b := New()
	for i := 0; i < 1002; i++ {
		b.AppendSegment("x")
		if _, err := b.Build(false, DefaultMaxLength); err != nil {
			if !errors.Is(err, ErrExhausted) {
				t.Fatalf("unexpected error %v", err)
			}
			return
		}
	}
	t.Fatalf("expected exhaustion after 1000 attempts")
}

func TestTryAddKnownID(t *testing.T) {
	b := New()
	if err := b.TryAddKnownID("build", 0); err != nil {
		t.Fatalf("TryAddKnownID: %v", err)
	}
	for _, bad := range []string{"build", "Build", "__auto", "1abc", "a b", strings.Repeat("a", 101)} {
		if err := b.TryAddKnownID(bad, 0); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if got := build(t, b, false, "build"); got != "build_2" {
		t.Fatalf("known ids must participate in collisions, got %q", got)
	}
}
