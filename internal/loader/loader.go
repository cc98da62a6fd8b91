// Package loader reads workflow files through a FileProvider, converts them
// and recursively loads the reusable workflows they call.
package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/bgricker/workflowc/internal/convert"
	"github.com/bgricker/workflowc/internal/expression"
	"github.com/bgricker/workflowc/internal/schema"
	"github.com/bgricker/workflowc/internal/template"
	"github.com/bgricker/workflowc/internal/token"
	"github.com/bgricker/workflowc/internal/workflow"
)

var (
	ErrMaxDepthExceeded = errors.New("maximum reusable workflow depth exceeded")
	ErrMaxFilesExceeded = errors.New("maximum number of workflow files exceeded")
	ErrFileTooLarge     = errors.New("workflow file exceeds the maximum size")
	ErrWorkflowNotFound = errors.New("referenced workflow not found")
)

// errStop ends loading after a file produced diagnostics.
var errStop = errors.New("stop loading")

const (
	DefaultMaxFiles    = 50
	DefaultMaxFileSize = 1 << 20
	DefaultMaxDepth    = 10
	DefaultMaxJobs     = 256
	DefaultRepository  = "local/workspace"
	DefaultRef         = "HEAD"
)

// Options configure a Loader. Zero values select defaults.
type Options struct {
	// Repository and Ref qualify local references made by the entry file.
	Repository string
	Ref        string

	MaxFiles         int
	MaxFileSize      int
	MaxDepth         int
	MaxJobs          int
	MaxNodes         int
	MaxErrors        int
	MaxMessageLength int
	AllowAnchors     bool

	// PermissionsPolicy names the default ceiling for called workflows
	// whose caller grants no explicit permissions.
	PermissionsPolicy string
	PolicyFeatures    workflow.PolicyFeatures

	// Schemas enables schema validation with the variant selected by
	// Features. Nil skips validation.
	Schemas  *schema.Cache
	Features []string

	Expressions expression.Engine
	Logger      *zap.Logger
}

// Loader loads workflows. Each Load call owns its state, so a Loader may be
// shared by concurrent callers.
type Loader struct {
	provider FileProvider
	opts     Options
}

// New returns a Loader reading through provider.
func New(provider FileProvider, opts Options) *Loader {
	if opts.Repository == "" {
		opts.Repository = DefaultRepository
	}
	if opts.Ref == "" {
		opts.Ref = DefaultRef
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxJobs <= 0 {
		opts.MaxJobs = DefaultMaxJobs
	}
	if opts.PermissionsPolicy == "" {
		opts.PermissionsPolicy = workflow.PolicyWrite
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Loader{provider: provider, opts: opts}
}

// NewDirectory returns a Loader serving the checkout at root. Files over
// MaxFileSize are rejected before they are read.
func NewDirectory(root string, opts Options) *Loader {
	l := New(nil, opts)
	l.provider = &DirectoryProvider{Root: root, MaxSize: l.opts.MaxFileSize}
	return l
}

// state is the per-call bookkeeping of one Load.
type state struct {
	*Loader
	tctx     *template.Context
	schema   *jsonschema.Schema
	contents map[string]*file
	refs     map[int]workflow.WorkflowRef
	jobs     int
}

func (l *Loader) newState() (*state, error) {
	st := &state{
		Loader: l,
		tctx: template.NewContext(template.Options{
			MaxErrors:        l.opts.MaxErrors,
			MaxMessageLength: l.opts.MaxMessageLength,
			MaxNodes:         l.opts.MaxNodes,
			AllowAnchors:     l.opts.AllowAnchors,
			Expressions:      l.opts.Expressions,
			Logger:           l.opts.Logger,
		}),
		contents: map[string]*file{},
		refs:     map[int]workflow.WorkflowRef{},
	}
	if l.opts.Schemas != nil {
		s, err := l.opts.Schemas.Get(l.opts.Features)
		if err != nil {
			return nil, err
		}
		st.schema = s
	}
	return st, nil
}

// Load parses the workflow at path, a path relative to the workspace
// repository, and every reusable workflow it calls. The returned template
// is non-nil unless err reports a configuration problem. Diagnostics are in
// Template.Errors; a non-nil error means loading was aborted.
func (l *Loader) Load(ctx context.Context, path string) (*workflow.Template, error) {
	st, err := l.newState()
	if err != nil {
		return nil, err
	}
	ref := workflow.WorkflowRef{Repository: l.opts.Repository, Path: path, Version: l.opts.Ref}
	tmpl, err := st.parse(ctx, ref, 0)
	if tmpl == nil {
		tmpl = &workflow.Template{}
	}
	if err == nil && !st.tctx.HasErrors() {
		err = st.loadAll(ctx, tmpl)
	}
	if errors.Is(err, errStop) {
		err = nil
	}
	if err != nil || st.tctx.HasErrors() {
		unload(tmpl.Jobs)
	}
	st.finish(tmpl)
	return tmpl, err
}

// Tokens reads the workflow at path without converting it.
func (l *Loader) Tokens(ctx context.Context, path string) (token.Token, []workflow.Error, error) {
	st, err := l.newState()
	if err != nil {
		return nil, nil, err
	}
	ref := workflow.WorkflowRef{Repository: l.opts.Repository, Path: path, Version: l.opts.Ref}
	id, data, err := st.fetch(ctx, ref)
	if err != nil {
		return nil, st.tctx.Errors(), err
	}
	root, err := template.Read(st.tctx, id, data)
	return root, st.tctx.Errors(), err
}

func (st *state) loadAll(ctx context.Context, tmpl *workflow.Template) error {
	st.jobs = len(tmpl.Jobs)
	if st.jobs > st.opts.MaxJobs {
		st.tctx.Errorf(nil, workflow.CodeJobLimit, "The workflow may not contain more than %d jobs across all referenced files", st.opts.MaxJobs)
		return errStop
	}
	return st.loadJobs(ctx, tmpl.Jobs, 1, nil)
}

func (st *state) finish(tmpl *workflow.Template) {
	tmpl.Errors = st.tctx.Errors()
	tmpl.FileTable = st.tctx.FileTable()
	tmpl.Telemetry = st.tctx.Telemetry
	if n := st.tctx.Dropped(); n > 0 {
		st.opts.Logger.Warn("diagnostics dropped", zap.Int("dropped", n), zap.Int("max_errors", st.tctx.Options().MaxErrors))
	}
}

// workspace reports whether ref points into the entry repository.
func (st *state) workspace(ref workflow.WorkflowRef) bool {
	return !ref.Qualified() || strings.EqualFold(ref.Repository, st.opts.Repository) && ref.Version == st.opts.Ref
}

type file struct {
	id   int
	data []byte
}

// fetch returns the file id and content of ref, reading it at most once.
func (st *state) fetch(ctx context.Context, ref workflow.WorkflowRef) (int, []byte, error) {
	lookup, display := ref, ref.String()
	if st.workspace(ref) {
		lookup = workflow.WorkflowRef{Path: ref.Path}
		display = ref.Path
	}
	path, err := st.provider.ResolvePath(lookup)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrWorkflowNotFound, err)
	}
	key := strings.ToLower(path)
	if f, ok := st.contents[key]; ok {
		return f.id, f.data, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if len(st.contents) >= st.opts.MaxFiles {
		st.opts.Logger.Warn("workflow file limit reached", zap.Int("max_files", st.opts.MaxFiles), zap.String("path", display))
		st.tctx.Errorf(nil, workflow.CodeLimit, "%s: the maximum of %d workflow files was exceeded", display, st.opts.MaxFiles)
		return 0, nil, ErrMaxFilesExceeded
	}
	data, err := st.provider.GetFileContent(ctx, path)
	if errors.Is(err, ErrFileTooLarge) {
		st.opts.Logger.Warn("workflow file too large", zap.String("path", display), zap.Error(err))
		st.tctx.Errorf(nil, workflow.CodeLimit, "%s: the file size exceeds the maximum of %d bytes", display, st.opts.MaxFileSize)
		return 0, nil, fmt.Errorf("%w: %s", ErrFileTooLarge, display)
	}
	if err != nil {
		return 0, nil, err
	}
	if len(data) > st.opts.MaxFileSize {
		st.opts.Logger.Warn("workflow file too large", zap.String("path", display), zap.Int("bytes", len(data)))
		st.tctx.Errorf(nil, workflow.CodeLimit, "%s: the file size of %d bytes exceeds the maximum of %d bytes", display, len(data), st.opts.MaxFileSize)
		return 0, nil, fmt.Errorf("%w: %s", ErrFileTooLarge, display)
	}
	id := st.tctx.AddFile(display)
	st.contents[key] = &file{id: id, data: data}
	st.tctx.Telemetry.FilesLoaded++
	return id, data, nil
}

// parse fetches, reads, validates and converts ref. A nil template with a
// nil error means diagnostics were recorded.
func (st *state) parse(ctx context.Context, ref workflow.WorkflowRef, depth int) (*workflow.Template, error) {
	id, data, err := st.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	st.opts.Logger.Debug("loaded workflow",
		zap.String("path", st.tctx.FileName(id)),
		zap.Int("file_id", id),
		zap.Int("depth", depth),
		zap.Int("bytes", len(data)))

	root, err := template.Read(st.tctx, id, data)
	if err != nil {
		st.opts.Logger.Warn("workflow node limit reached", zap.String("path", st.tctx.FileName(id)))
		return nil, err
	}
	if root == nil {
		return nil, nil
	}
	if st.schema != nil {
		violations := schema.Validate(st.schema, root)
		for _, v := range violations {
			st.tctx.ErrorAt(v.Token, workflow.CodeSchema, "%s", v)
		}
		if len(violations) > 0 {
			return nil, nil
		}
	}
	tmpl := convert.Convert(st.tctx, root)
	st.refs[id] = ref
	return tmpl, nil
}

func (st *state) loadJobs(ctx context.Context, jobs []workflow.JobItem, depth int, ceiling *workflow.Permissions) error {
	for _, j := range jobs {
		rj, ok := j.(*workflow.ReusableWorkflowJob)
		if !ok {
			continue
		}
		if err := st.loadReusable(ctx, rj, depth, ceiling); err != nil {
			return err
		}
	}
	return nil
}

func (st *state) loadReusable(ctx context.Context, job *workflow.ReusableWorkflowJob, depth int, parentCeiling *workflow.Permissions) error {
	at := job.RefSource
	if at == nil {
		at = job.Source
	}
	if depth > st.opts.MaxDepth {
		st.opts.Logger.Warn("reusable workflow depth limit reached", zap.Int("max_depth", st.opts.MaxDepth), zap.String("job", job.ID))
		st.tctx.Errorf(at, workflow.CodeLimit, "Job '%s' exceeds the maximum reusable workflow depth of %d", job.ID, st.opts.MaxDepth)
		return fmt.Errorf("%w: %d", ErrMaxDepthExceeded, st.opts.MaxDepth)
	}
	if job.Ref.Path == "" {
		return nil
	}
	if job.Source == nil {
		return fmt.Errorf("%w: job '%s' has no caller", ErrWorkflowNotFound, job.ID)
	}
	caller, ok := st.refs[job.Source.FileID]
	if !ok {
		return fmt.Errorf("%w: no resolved caller for file %d", ErrWorkflowNotFound, job.Source.FileID)
	}

	ref := job.Ref
	if ref.Local {
		if !caller.Qualified() {
			return fmt.Errorf("%w: caller %s is not qualified", ErrWorkflowNotFound, caller)
		}
		ref = ref.Qualify(caller.Repository, caller.Version)
		st.tctx.Telemetry.LocalReferences++
	} else {
		st.tctx.Telemetry.RemoteReferences++
	}
	if depth > st.tctx.Telemetry.MaxDepth {
		st.tctx.Telemetry.MaxDepth = depth
	}

	before := st.tctx.ErrorCount()
	prefix := st.tctx.Prefix(at)
	stop := func(err error) error {
		st.tctx.PrefixErrors(before, prefix)
		return err
	}

	callee, err := st.parse(ctx, ref, depth)
	if errors.Is(err, ErrWorkflowNotFound) {
		st.tctx.Errorf(at, workflow.CodeReference, "Unable to find reusable workflow '%s'", ref)
		return stop(errStop)
	}
	if err != nil {
		return stop(err)
	}
	if callee == nil || st.tctx.ErrorCount() > before {
		return stop(errStop)
	}
	callee.Errors, callee.FileTable = nil, nil

	if callee.WorkflowCall == nil {
		st.tctx.Errorf(at, workflow.CodeReference, "The workflow '%s' must define 'on.workflow_call' to be called", ref)
		return stop(errStop)
	}
	st.checkInputs(job, callee.WorkflowCall, at)

	ceiling := job.Permissions
	if ceiling == nil {
		ceiling = parentCeiling
	}
	if ceiling == nil {
		trusted := strings.EqualFold(ref.Owner(), workflow.WorkflowRef{Repository: st.opts.Repository}.Owner())
		ceiling, err = workflow.PolicyCeiling(st.opts.PermissionsPolicy, trusted, st.opts.PolicyFeatures)
		if err != nil {
			return stop(err)
		}
	}
	st.checkPermissions(callee, ceiling, at)
	if st.tctx.ErrorCount() > before {
		return stop(errStop)
	}

	job.Loaded = true
	job.Jobs = callee.Jobs
	job.InputDefinitions = callee.WorkflowCall.Inputs
	job.SecretDefinitions = callee.WorkflowCall.Secrets
	job.Outputs = callee.WorkflowCall.Outputs
	job.CalleePermissions = callee.Permissions

	st.jobs += len(callee.Jobs)
	if st.jobs > st.opts.MaxJobs {
		st.tctx.Errorf(at, workflow.CodeJobLimit, "The workflow may not contain more than %d jobs across all referenced files", st.opts.MaxJobs)
		return stop(errStop)
	}

	if err := st.loadJobs(ctx, callee.Jobs, depth+1, ceiling); err != nil {
		return stop(err)
	}
	return nil
}

// checkPermissions reports, once per job, every scope the callee requests
// above ceiling. Callee jobs without permissions receive the ceiling. Jobs
// that inherited the callee's root permissions are covered by the workflow
// level report.
func (st *state) checkPermissions(callee *workflow.Template, ceiling *workflow.Permissions, at *token.Source) {
	if callee.Permissions != nil {
		st.reportExceeding("workflow", callee.Permissions, ceiling, at)
	}
	for _, j := range callee.Jobs {
		var perms **workflow.Permissions
		var inherited bool
		switch v := j.(type) {
		case *workflow.Job:
			perms, inherited = &v.Permissions, v.InheritedPermissions
		case *workflow.ReusableWorkflowJob:
			perms, inherited = &v.Permissions, v.InheritedPermissions
		}
		if perms == nil {
			continue
		}
		if *perms == nil {
			*perms = ceiling.Clone()
			continue
		}
		if inherited {
			continue
		}
		st.reportExceeding("job '"+j.JobID()+"'", *perms, ceiling, at)
	}
}

func (st *state) reportExceeding(what string, requested, ceiling *workflow.Permissions, at *token.Source) {
	scopes := requested.Exceeding(ceiling)
	if len(scopes) == 0 {
		return
	}
	want := make([]string, len(scopes))
	allowed := make([]string, len(scopes))
	for i, s := range scopes {
		want[i] = s.String() + ": " + requested.Level(s).String()
		allowed[i] = s.String() + ": " + ceiling.Level(s).String()
	}
	st.tctx.Errorf(at, workflow.CodePermissions,
		"The nested %s is requesting '%s', but is only allowed '%s'.",
		what, strings.Join(want, ", "), strings.Join(allowed, ", "))
}

// checkInputs compares the caller's `with` and `secrets` against the
// callee's workflow_call contract.
func (st *state) checkInputs(job *workflow.ReusableWorkflowJob, call *workflow.WorkflowCall, at *token.Source) {
	if with, ok := job.InputValues.(*token.Mapping); ok || job.InputValues == nil {
		provided := keys(with)
		for _, in := range call.Inputs {
			if in.Required && in.Default == nil && !provided[strings.ToLower(in.Name)] {
				st.tctx.Errorf(at, workflow.CodeSemantic, "Input %s is required, but not provided while calling.", in.Name)
			}
			delete(provided, strings.ToLower(in.Name))
		}
		for _, name := range sortedKeys(with, provided) {
			st.tctx.Errorf(at, workflow.CodeSemantic, "Invalid input, %s is not defined in the referenced workflow.", name)
		}
	}
	if job.InheritSecrets {
		return
	}
	if secrets, ok := job.SecretValues.(*token.Mapping); ok || job.SecretValues == nil {
		provided := keys(secrets)
		for _, s := range call.Secrets {
			if s.Required && !provided[strings.ToLower(s.Name)] {
				st.tctx.Errorf(at, workflow.CodeSemantic, "Secret %s is required, but not provided while calling.", s.Name)
			}
			delete(provided, strings.ToLower(s.Name))
		}
		for _, name := range sortedKeys(secrets, provided) {
			st.tctx.Errorf(at, workflow.CodeSemantic, "Invalid secret, %s is not defined in the referenced workflow.", name)
		}
	}
}

func keys(m *token.Mapping) map[string]bool {
	out := map[string]bool{}
	if m == nil {
		return out
	}
	for k := range m.All() {
		out[strings.ToLower(k.String())] = true
	}
	return out
}

// sortedKeys returns the keys of m still present in remaining, in
// declaration order.
func sortedKeys(m *token.Mapping, remaining map[string]bool) []string {
	if m == nil {
		return nil
	}
	var out []string
	for k := range m.All() {
		if remaining[strings.ToLower(k.String())] {
			out = append(out, k.String())
			delete(remaining, strings.ToLower(k.String()))
		}
	}
	return out
}

// unload discards callee data after loading stopped early.
func unload(jobs []workflow.JobItem) {
	for _, j := range jobs {
		if rj, ok := j.(*workflow.ReusableWorkflowJob); ok {
			rj.Loaded = false
			rj.Jobs = nil
			rj.InputDefinitions = nil
			rj.SecretDefinitions = nil
			rj.Outputs = nil
			rj.CalleePermissions = nil
		}
	}
}
