package workflow

import (
	"strings"
	"testing"
)

func TestReadAllLeavesIDTokenNone(t *testing.T) {
	p := ReadAll()
	if p.Level(ScopeContents) != Read || p.Level(ScopeIDToken) != NoAccess {
		t.Fatalf("unexpected read-all permissions %s", p)
	}
	w := WriteAll()
	if w.Level(ScopeIDToken) != Write {
		t.Fatalf("write-all must grant id-token")
	}
}

func TestLimitedReadCeiling(t *testing.T) {
	ceiling, err := PolicyCeiling(PolicyLimitedRead, true, PolicyFeatures{})
	if err != nil {
		t.Fatalf("PolicyCeiling: %v", err)
	}
	req := NewPermissions()
	req.Set(ScopeContents, Write)
	req.Set(ScopePackages, Read)
	got := req.Exceeding(ceiling)
	if len(got) != 1 || got[0] != ScopeContents {
		t.Fatalf("expected only contents to exceed, got %v", got)
	}
}

func TestWritePolicyConditionalScopes(t *testing.T) {
	untrusted, _ := PolicyCeiling(PolicyWrite, false, PolicyFeatures{})
	if untrusted.Level(ScopeIDToken) != NoAccess || untrusted.Level(ScopeAttestations) != NoAccess {
		t.Fatalf("untrusted callee must not receive id-token: %s", untrusted)
	}
	if untrusted.Level(ScopeContents) != Write || untrusted.Level(ScopeModels) != NoAccess {
		t.Fatalf("unexpected write policy %s", untrusted)
	}
	trusted, _ := PolicyCeiling(PolicyWrite, true, PolicyFeatures{Models: true})
	if trusted.Level(ScopeIDToken) != Write || trusted.Level(ScopeModels) != Write {
		t.Fatalf("unexpected trusted write policy %s", trusted)
	}
	if _, err := PolicyCeiling("admin", true, PolicyFeatures{}); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestParseWorkflowRef(t *testing.T) {
	local, err := ParseWorkflowRef("./.github/workflows/build.yml")
	if err != nil || !local.Local || local.Qualified() {
		t.Fatalf("unexpected local ref %+v %v", local, err)
	}
	q := local.Qualify("octo/app", "main")
	if q.String() != "octo/app/.github/workflows/build.yml@main" || !q.Local {
		t.Fatalf("unexpected qualified ref %q", q)
	}

	remote, err := ParseWorkflowRef("octo/lib/.github/workflows/release.yaml@v1")
	if err != nil || remote.Owner() != "octo" || remote.Version != "v1" {
		t.Fatalf("unexpected remote ref %+v %v", remote, err)
	}

	for _, bad := range []string{"octo/lib@v1", "./build.yml", "./.github/workflows/a.yml@v1", "octo/lib/.github/workflows/a.txt@v1"} {
		if _, err := ParseWorkflowRef(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestParseActionRef(t *testing.T) {
	a, err := ParseActionRef("actions/setup-go/sub@v5")
	if err != nil || a.Owner != "actions" || a.Repo != "setup-go" || a.Path != "sub" || a.Version != "v5" {
		t.Fatalf("unexpected action %+v %v", a, err)
	}
	d, err := ParseActionRef("docker://ghcr.io/org/tool:1.2@sha256:abc")
	if err != nil || d.ImageName() != "ghcr.io/org/tool" {
		t.Fatalf("unexpected docker image %q %v", d.ImageName(), err)
	}
	if _, err := ParseActionRef("actions/checkout"); err == nil || !strings.Contains(err.Error(), "{org}/{repo}") {
		t.Fatalf("expected format error, got %v", err)
	}
}
