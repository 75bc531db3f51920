package classify

import (
	"prism/internal/canonical"
)

// Severity grades an issue collected during evaluation.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityFatal   Severity = "fatal"
)

// Issue is one problem observed while evaluating a definition.
type Issue struct {
	Severity Severity     `json:"severity"`
	ID       canonical.ID `json:"id,omitempty"`
	Message  string       `json:"message"`
}

// IssueRegistry collects issues raised during evaluation. It is passed
// explicitly into the evaluator and classifier rather than living in
// process-global state, so concurrent builds and tests cannot leak issues
// into each other.
type IssueRegistry struct {
	issues []Issue
}

// NewIssueRegistry creates an empty issue registry.
func NewIssueRegistry() *IssueRegistry {
	return &IssueRegistry{}
}

// Report records an issue.
func (r *IssueRegistry) Report(issue Issue) {
	r.issues = append(r.issues, issue)
}

// Warnf records a warning for the given definition.
func (r *IssueRegistry) Warnf(id canonical.ID, message string) {
	r.Report(Issue{Severity: SeverityWarning, ID: id, Message: message})
}

// All returns every recorded issue in report order.
func (r *IssueRegistry) All() []Issue {
	return append([]Issue(nil), r.issues...)
}

// Fatal returns only the fatal issues.
func (r *IssueRegistry) Fatal() []Issue {
	var fatal []Issue
	for _, issue := range r.issues {
		if issue.Severity == SeverityFatal {
			fatal = append(fatal, issue)
		}
	}
	return fatal
}

// HasFatal reports whether any fatal issue was recorded.
func (r *IssueRegistry) HasFatal() bool {
	return len(r.Fatal()) > 0
}
