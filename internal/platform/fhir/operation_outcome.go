package fhir

import "fmt"

// OperationOutcome severity levels per FHIR R4.
const (
	IssueSeverityFatal       = "fatal"
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes used by the generator and the mock
// acknowledgement server.
const (
	IssueTypeInvalid       = "invalid"
	IssueTypeStructure     = "structure"
	IssueTypeRequired      = "required"
	IssueTypeValue         = "value"
	IssueTypeNotFound      = "not-found"
	IssueTypeProcessing    = "processing"
	IssueTypeException     = "exception"
	IssueTypeTimeout       = "timeout"
	IssueTypeTooCostly     = "too-costly"
	IssueTypeSecurity      = "security"
	IssueTypeDuplicate     = "duplicate"
	IssueTypeInformational = "informational"
)

// OutcomeBuilder provides a fluent API for constructing OperationOutcome resources.
type OutcomeBuilder struct {
	outcome *OperationOutcome
}

// NewOutcomeBuilder creates a new OutcomeBuilder.
func NewOutcomeBuilder() *OutcomeBuilder {
	return &OutcomeBuilder{
		outcome: &OperationOutcome{
			ResourceType: "OperationOutcome",
		},
	}
}

// WithID sets the id used when the outcome travels inside a Bundle.
func (b *OutcomeBuilder) WithID(id string) *OutcomeBuilder {
	b.outcome.ID = id
	return b
}

// AddIssue adds a single issue to the OperationOutcome.
func (b *OutcomeBuilder) AddIssue(severity, code, diagnostics string) *OutcomeBuilder {
	b.outcome.Issue = append(b.outcome.Issue, OperationOutcomeIssue{
		Severity:    severity,
		Code:        code,
		Diagnostics: diagnostics,
	})
	return b
}

// AddIssueWithDetails adds an issue with a CodeableConcept details field.
func (b *OutcomeBuilder) AddIssueWithDetails(severity, code, diagnostics string, details *CodeableConcept) *OutcomeBuilder {
	b.outcome.Issue = append(b.outcome.Issue, OperationOutcomeIssue{
		Severity:    severity,
		Code:        code,
		Diagnostics: diagnostics,
		Details:     details,
	})
	return b
}

// AddIssueWithLocation adds an issue including an expression/location path.
func (b *OutcomeBuilder) AddIssueWithLocation(severity, code, diagnostics, location string) *OutcomeBuilder {
	b.outcome.Issue = append(b.outcome.Issue, OperationOutcomeIssue{
		Severity:    severity,
		Code:        code,
		Diagnostics: diagnostics,
		Expression:  []string{location},
	})
	return b
}

// Build returns the constructed OperationOutcome.
func (b *OutcomeBuilder) Build() *OperationOutcome {
	return b.outcome
}

// HasErrors returns true if the outcome contains any error or fatal issues.
func (o *OperationOutcome) HasErrors() bool {
	for _, issue := range o.Issue {
		if issue.Severity == IssueSeverityError || issue.Severity == IssueSeverityFatal {
			return true
		}
	}
	return false
}

// AddRequiredFields adds one required issue per missing case record field,
// with the field as expression. prefix is prepended to each diagnostic.
func (b *OutcomeBuilder) AddRequiredFields(prefix string, fields []string) *OutcomeBuilder {
	for _, field := range fields {
		b.AddIssueWithLocation(IssueSeverityError, IssueTypeRequired,
			fmt.Sprintf("%s%s is required", prefix, field), field)
	}
	return b
}

// AddDanglingReferences adds one not-found issue per reference that does not
// resolve inside a Bundle, located at the reference's path.
func (b *OutcomeBuilder) AddDanglingReferences(prefix string, errs []*DanglingReferenceError) *OutcomeBuilder {
	for _, e := range errs {
		b.AddIssueWithLocation(IssueSeverityError, IssueTypeNotFound, prefix+e.Error(), e.Path)
	}
	return b
}
