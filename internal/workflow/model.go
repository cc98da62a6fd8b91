// Package workflow holds the typed workflow model produced by the converter.
// Fields that may still contain unresolved expressions are kept as tokens and
// converted on demand once the expressions have been substituted.
package workflow

import "github.com/bgricker/workflowc/internal/token"

// Template is the result of converting a workflow file and everything it
// references. Callers must check len(Errors) == 0 before using the model.
type Template struct {
	Name         string
	RunName      token.Token
	Events       *token.Mapping
	WorkflowCall *WorkflowCall
	Env          token.Token
	Defaults     *Defaults
	Concurrency  token.Token
	Permissions  *Permissions
	Jobs         []JobItem
	Errors       []Error
	// FileTable maps file ids to paths.
	FileTable []string
	Telemetry Telemetry
}

// HasErrors reports whether conversion produced diagnostics.
func (t *Template) HasErrors() bool {
	return len(t.Errors) > 0
}

// WorkflowCall is the `on.workflow_call` contract of a reusable workflow.
type WorkflowCall struct {
	Inputs  []InputDefinition
	Secrets []SecretDefinition
	Outputs []OutputDefinition
}

type InputDefinition struct {
	Name        string
	Description string
	Type        string
	Required    bool
	Default     token.Token
}

type SecretDefinition struct {
	Name        string
	Description string
	Required    bool
}

type OutputDefinition struct {
	Name        string
	Description string
	Value       token.Token
}

// Defaults are the `defaults.run` settings.
type Defaults struct {
	Shell            string
	WorkingDirectory string
}

// JobItem is a Job or a ReusableWorkflowJob.
type JobItem interface {
	JobID() string
	JobName() string
	JobNeeds() []string
	JobSource() *token.Source
	isJob()
}

// Job runs steps on a runner.
type Job struct {
	ID          string
	Name        string
	Needs       []string
	If          string
	RunsOn      token.Token
	Strategy    *Strategy
	Container   token.Token
	Services    token.Token
	Env         token.Token
	Environment token.Token
	Permissions *Permissions
	// InheritedPermissions is set when Permissions were copied from the
	// workflow's root permissions.
	InheritedPermissions bool
	Concurrency          token.Token
	TimeoutMinutes       token.Token
	CancelTimeoutMinutes token.Token
	ContinueOnError      token.Token
	Outputs              token.Token
	Defaults             *Defaults
	Snapshot             *Snapshot
	Steps                []Step
	Source               *token.Source
}

func (j *Job) JobID() string            { return j.ID }
func (j *Job) JobName() string          { return j.Name }
func (j *Job) JobNeeds() []string       { return j.Needs }
func (j *Job) JobSource() *token.Source { return j.Source }
func (*Job) isJob()                     {}

// ReusableWorkflowJob calls another workflow file. The callee fields are
// populated by the loader.
type ReusableWorkflowJob struct {
	ID          string
	Name        string
	Needs       []string
	If          string
	Strategy    *Strategy
	Permissions *Permissions
	// InheritedPermissions is set when Permissions were copied from the
	// workflow's root permissions.
	InheritedPermissions bool
	Concurrency          token.Token
	Ref                  WorkflowRef
	InputValues          token.Token
	SecretValues         token.Token
	InheritSecrets       bool
	Source               *token.Source
	// RefSource is the position of the `uses` value.
	RefSource *token.Source

	Loaded            bool
	Jobs              []JobItem
	InputDefinitions  []InputDefinition
	SecretDefinitions []SecretDefinition
	Outputs           []OutputDefinition
	// CalleePermissions are the root permissions declared by the callee.
	CalleePermissions *Permissions
}

func (j *ReusableWorkflowJob) JobID() string            { return j.ID }
func (j *ReusableWorkflowJob) JobName() string          { return j.Name }
func (j *ReusableWorkflowJob) JobNeeds() []string       { return j.Needs }
func (j *ReusableWorkflowJob) JobSource() *token.Source { return j.Source }
func (*ReusableWorkflowJob) isJob()                     {}

// Strategy is a job's `strategy`. Configurations is nil when the matrix
// still contains expressions.
type Strategy struct {
	FailFast       bool
	MaxParallel    int
	Configurations []StrategyConfiguration
	Token          token.Token
}

// StrategyConfiguration is one expanded matrix cell. ExpressionData holds
// the `matrix` and `strategy` contexts for the cell.
type StrategyConfiguration struct {
	ID             string
	Name           string
	ExpressionData map[string]token.Token
}

// Snapshot requests a custom image snapshot after the job completes.
type Snapshot struct {
	ImageName string
	If        string
	Version   string
}

// Concurrency is a converted `concurrency` value.
type Concurrency struct {
	Group            string
	CancelInProgress bool
}

// Container is a converted `container` or service value.
type Container struct {
	Image       string
	Env         map[string]string
	Ports       []string
	Volumes     []string
	Options     string
	Credentials *Credentials
}

type Credentials struct {
	Username string
	Password string
}

// Environment is a converted `environment` value.
type Environment struct {
	Name string
	URL  token.Token
}

// Step is a RunStep or an ActionStep.
type Step interface {
	Common() *StepCommon
	isStep()
}

// StepCommon carries the fields shared by every step.
type StepCommon struct {
	ID              string
	Name            string
	If              string
	ContinueOnError token.Token
	TimeoutMinutes  token.Token
	Env             token.Token
	Source          *token.Source
}

type RunStep struct {
	StepCommon
	Run              string
	Shell            string
	WorkingDirectory string
}

func (s *RunStep) Common() *StepCommon { return &s.StepCommon }
func (*RunStep) isStep()               {}

type ActionStep struct {
	StepCommon
	Uses   string
	Action ActionRef
	With   token.Token
}

func (s *ActionStep) Common() *StepCommon { return &s.StepCommon }
func (*ActionStep) isStep()               {}
