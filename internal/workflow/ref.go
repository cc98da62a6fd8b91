package workflow

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	remoteWorkflowPattern = regexp.MustCompile(`^([^/@\s]+/[^/@\s]+)/([^@\s]+)@([^@\s]+)$`)
	actionPattern         = regexp.MustCompile(`^([^/@\s]+)/([^/@\s]+)(/[^@\s]*)?@([^@\s]+)$`)
)

// WorkflowRef locates a reusable workflow file.
type WorkflowRef struct {
	// Repository is "owner/repo". It is empty for an unqualified local ref.
	Repository string
	Path       string
	Version    string
	// Local is set when the ref was written as "./path".
	Local bool
}

// Qualified reports whether the ref names a repository and version.
func (r WorkflowRef) Qualified() bool {
	return r.Repository != "" && r.Version != ""
}

// Owner returns the repository owner.
func (r WorkflowRef) Owner() string {
	owner, _, _ := strings.Cut(r.Repository, "/")
	return owner
}

func (r WorkflowRef) String() string {
	if !r.Qualified() {
		return "./" + r.Path
	}
	return r.Repository + "/" + r.Path + "@" + r.Version
}

// Qualify resolves a local ref against the repository and version of the
// workflow that references it.
func (r WorkflowRef) Qualify(repository, version string) WorkflowRef {
	if r.Qualified() {
		return r
	}
	r.Repository = repository
	r.Version = version
	return r
}

// ParseWorkflowRef parses the value of a job-level `uses`.
func ParseWorkflowRef(s string) (WorkflowRef, error) {
	if strings.HasPrefix(s, "./") {
		path := strings.TrimPrefix(s, "./")
		if strings.Contains(path, "@") {
			return WorkflowRef{}, fmt.Errorf("invalid workflow reference '%s': a version is not allowed for a local workflow", s)
		}
		if err := checkWorkflowPath(s, path); err != nil {
			return WorkflowRef{}, err
		}
		return WorkflowRef{Path: path, Local: true}, nil
	}
	m := remoteWorkflowPattern.FindStringSubmatch(s)
	if m == nil {
		return WorkflowRef{}, fmt.Errorf("invalid workflow reference '%s': references must start with './' or have the form '{owner}/{repo}/{path}@{ref}'", s)
	}
	if err := checkWorkflowPath(s, m[2]); err != nil {
		return WorkflowRef{}, err
	}
	return WorkflowRef{Repository: m[1], Path: m[2], Version: m[3]}, nil
}

func checkWorkflowPath(ref, path string) error {
	if !strings.HasPrefix(path, ".github/workflows/") {
		return fmt.Errorf("invalid workflow reference '%s': workflows must be defined in the .github/workflows directory", ref)
	}
	if !strings.HasSuffix(path, ".yml") && !strings.HasSuffix(path, ".yaml") {
		return fmt.Errorf("invalid workflow reference '%s': the file extension must be .yml or .yaml", ref)
	}
	return nil
}

// ActionKind classifies a step `uses` value.
type ActionKind int

const (
	ActionRepository ActionKind = iota
	ActionLocal
	ActionDocker
)

// ActionRef is a parsed step `uses` value.
type ActionRef struct {
	Kind ActionKind
	// Owner and Repo are set for repository actions.
	Owner, Repo string
	// Path is the sub-directory of a repository action or the local path.
	Path    string
	Version string
	// Image is the docker image for docker actions.
	Image string
}

// ParseActionRef validates a step `uses` value.
func ParseActionRef(s string) (ActionRef, error) {
	switch {
	case strings.HasPrefix(s, "docker://"):
		image := strings.TrimPrefix(s, "docker://")
		if image == "" {
			return ActionRef{}, fmt.Errorf("expected a docker image after 'docker://'. Actual '%s'", s)
		}
		return ActionRef{Kind: ActionDocker, Image: image}, nil
	case strings.HasPrefix(s, "./"), strings.HasPrefix(s, ".\\"):
		return ActionRef{Kind: ActionLocal, Path: s}, nil
	}
	m := actionPattern.FindStringSubmatch(s)
	if m == nil {
		return ActionRef{}, fmt.Errorf("expected format {org}/{repo}[/path]@ref. Actual '%s'", s)
	}
	return ActionRef{
		Kind:    ActionRepository,
		Owner:   m[1],
		Repo:    m[2],
		Path:    strings.TrimPrefix(m[3], "/"),
		Version: m[4],
	}, nil
}

// ImageName strips the registry tag or digest from a docker image.
func (a ActionRef) ImageName() string {
	image := a.Image
	if i := strings.Index(image, "@"); i >= 0 {
		image = image[:i]
	}
	if i := strings.LastIndex(image, ":"); i > strings.LastIndex(image, "/") {
		image = image[:i]
	}
	return image
}
