package fhir

import (
	"github.com/google/uuid"
	"github.com/mitchellh/copystructure"
)

// Resource is implemented by every resource variant that can be placed in a
// Bundle. Locator returns the "{resourceType}/{id}" string other resources use
// to point at this one.
type Resource interface {
	Locator() string
	ToFHIR() map[string]interface{}
}

// Base holds the identity shared by all resource variants. The locator is
// derived once in NewBase and cannot be changed afterwards.
type Base struct {
	resourceType string
	id           string
	locator      string
}

// NewBase returns the identity for a resource of the given type. An empty id
// is replaced with a random UUID.
func NewBase(resourceType, id string) Base {
	if id == "" {
		id = uuid.New().String()
	}
	return Base{
		resourceType: resourceType,
		id:           id,
		locator:      FormatReference(resourceType, id),
	}
}

func (b Base) ResourceType() string { return b.resourceType }

func (b Base) ID() string { return b.id }

func (b Base) Locator() string { return b.locator }

// Ref returns a Reference pointing at this resource.
func (b Base) Ref() Reference {
	return Reference{Reference: b.locator}
}

// ToFHIR renders the minimal fragment every variant starts from.
func (b Base) ToFHIR() map[string]interface{} {
	return map[string]interface{}{
		"resourceType": b.resourceType,
		"id":           b.id,
	}
}

// CloneFragment returns a deep copy of a rendered fragment.
func CloneFragment(fragment map[string]interface{}) map[string]interface{} {
	if fragment == nil {
		return nil
	}
	return copystructure.Must(copystructure.Copy(fragment)).(map[string]interface{})
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return resourceType + "/" + id
}

// RefOrNil returns a pointer to a Reference for locator, or nil when locator
// is empty so the field can be left out of the rendered fragment.
func RefOrNil(locator string) *Reference {
	if locator == "" {
		return nil
	}
	return &Reference{Reference: locator}
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Identifier struct {
	Use      string           `json:"use,omitempty"`
	Type     *CodeableConcept `json:"type,omitempty"`
	System   string           `json:"system,omitempty"`
	Value    string           `json:"value,omitempty"`
	Period   *Period          `json:"period,omitempty"`
	Assigner *Reference       `json:"assigner,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Prefix []string `json:"prefix,omitempty"`
	Suffix []string `json:"suffix,omitempty"`
}

type Address struct {
	Use        string   `json:"use,omitempty"`
	Type       string   `json:"type,omitempty"`
	Text       string   `json:"text,omitempty"`
	Line       []string `json:"line,omitempty"`
	City       string   `json:"city,omitempty"`
	District   string   `json:"district,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Country    string   `json:"country,omitempty"`
}

// NewHomeAddress builds the single-line home address used by people and
// places, folding the structured parts into the free text form as well.
func NewHomeAddress(line, city, state, postalCode string) Address {
	return Address{
		Use:        "home",
		Type:       "both",
		Text:       line + ", " + city + ", " + state + " " + postalCode,
		Line:       []string{line},
		City:       city,
		State:      state,
		PostalCode: postalCode,
	}
}

type ContactPoint struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
	Use    string `json:"use,omitempty"`
	Rank   int    `json:"rank,omitempty"`
}

// Period carries dateTime strings as supplied by the caller; values are not
// reparsed.
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type Quantity struct {
	Value   float64 `json:"value"`
	Unit    string  `json:"unit,omitempty"`
	System  string  `json:"system,omitempty"`
	Code    string  `json:"code,omitempty"`
	Display string  `json:"display,omitempty"`
}

type Ratio struct {
	Numerator   *Quantity `json:"numerator,omitempty"`
	Denominator *Quantity `json:"denominator,omitempty"`
}

type Extension struct {
	URL          string `json:"url"`
	ValueString  string `json:"valueString,omitempty"`
	ValueCode    string `json:"valueCode,omitempty"`
	ValueBoolean *bool  `json:"valueBoolean,omitempty"`
	ValueInteger *int   `json:"valueInteger,omitempty"`
}

// OperationOutcome represents a FHIR OperationOutcome for errors and
// acknowledgements.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	ID           string                  `json:"id,omitempty"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string           `json:"severity"`
	Code        string           `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics string           `json:"diagnostics,omitempty"`
	Expression  []string         `json:"expression,omitempty"`
}

// Locator lets an OperationOutcome with an id be placed in a Bundle.
func (o *OperationOutcome) Locator() string {
	return FormatReference("OperationOutcome", o.ID)
}

func (o *OperationOutcome) ToFHIR() map[string]interface{} {
	issues := make([]OperationOutcomeIssue, len(o.Issue))
	copy(issues, o.Issue)
	return map[string]interface{}{
		"resourceType": "OperationOutcome",
		"id":           o.ID,
		"issue":        issues,
	}
}

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    severity,
				Code:        code,
				Diagnostics: diagnostics,
			},
		},
	}
}
