package clinical

import (
	"github.com/ehr/fhirgen/internal/platform/fhir"
	"github.com/ehr/fhirgen/pkg/fhirmodels"
)

// DefaultPathology is the condition display used when none is supplied.
const DefaultPathology = "Type 2 Diabetes"

// Condition is the diagnosis an exam is requested for.
type Condition struct {
	fhir.Base
	Identifier     string
	ClinicalStatus string
	SubjectRef     string
	Pathology      string
}

// NewCondition creates an active Condition with the default pathology.
func NewCondition(id string) *Condition {
	return &Condition{
		Base:           fhir.NewBase("Condition", id),
		ClinicalStatus: fhirmodels.ConditionActive,
		Pathology:      DefaultPathology,
	}
}

func (c *Condition) ToFHIR() map[string]interface{} {
	result := c.Base.ToFHIR()
	result["identifier"] = []fhir.Identifier{{
		System: fhirmodels.SystemDiagnosisIDs,
		Value:  c.Identifier,
	}}
	result["clinicalStatus"] = c.ClinicalStatus
	if ref := fhir.RefOrNil(c.SubjectRef); ref != nil {
		result["subject"] = *ref
	}
	// severity and category text are fixed in the published message samples
	result["severity"] = fhir.CodeableConcept{
		Coding: []fhir.Coding{{System: fhirmodels.SystemSNOMED, Code: "44054006", Display: "Severe"}},
		Text:   DefaultPathology,
	}
	result["category"] = fhir.CodeableConcept{
		Coding: []fhir.Coding{{System: fhirmodels.SystemPathologyType, Code: "394577000", Display: "Main condition"}},
		Text:   DefaultPathology,
	}
	result["code"] = fhir.CodeableConcept{
		Coding: []fhir.Coding{{System: fhirmodels.SystemPathologyCode, Code: "44054006", Display: c.Pathology}},
	}
	return result
}

// Manifestation is the observed reaction to an allergen.
type Manifestation struct {
	Text string `json:"text"`
}

// Reaction groups the manifestations of one allergic reaction.
type Reaction struct {
	Manifestation []Manifestation `json:"manifestation"`
}

// AllergyIntolerance records a substance the patient reacts to.
type AllergyIntolerance struct {
	fhir.Base
	SubstanceCode        string
	SubstanceDescription string
	Reaction             string
	PatientRef           string
}

func NewAllergyIntolerance(id string) *AllergyIntolerance {
	return &AllergyIntolerance{Base: fhir.NewBase("AllergyIntolerance", id)}
}

func (a *AllergyIntolerance) ToFHIR() map[string]interface{} {
	result := a.Base.ToFHIR()
	if ref := fhir.RefOrNil(a.PatientRef); ref != nil {
		result["patient"] = *ref
	}
	result["reaction"] = []Reaction{{
		Manifestation: []Manifestation{{Text: a.Reaction}},
	}}
	result["code"] = fhir.CodeableConcept{
		Coding: []fhir.Coding{{
			System:  fhirmodels.SystemAllergenCode,
			Code:    a.SubstanceCode,
			Display: a.SubstanceDescription,
		}},
	}
	return result
}
