package workflow

// Diagnostic codes.
const (
	CodeSyntax               = "syntax"
	CodeType                 = "type"
	CodeUnexpectedValue      = "unexpected-value"
	CodeSemantic             = "semantic"
	CodeExpression           = "expression"
	CodeJobCycle             = "job-cycle"
	CodeJobUnknownDependency = "job-unknown-dependency"
	CodeJobNoRoot            = "job-no-root"
	CodeJobLimit             = "job-limit"
	CodeLimit                = "limit"
	CodeReference            = "reference"
	CodePermissions          = "permissions"
	CodeSchema               = "schema"
)

// Error is a diagnostic produced while converting a workflow.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	return e.Message
}

// Telemetry counts usage observed while loading a workflow.
type Telemetry struct {
	Anchors          int `json:"anchors"`
	Aliases          int `json:"aliases"`
	FilesLoaded      int `json:"files_loaded"`
	LocalReferences  int `json:"local_references"`
	RemoteReferences int `json:"remote_references"`
	MaxDepth         int `json:"max_depth"`
}
