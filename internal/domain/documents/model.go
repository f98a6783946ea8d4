package documents

import (
	"github.com/ehr/fhirgen/internal/platform/fhir"
	"github.com/ehr/fhirgen/pkg/fhirmodels"
)

// Section is one titled part of a Composition.
type Section struct {
	Code  fhir.CodeableConcept `json:"code"`
	Entry []fhir.Reference     `json:"entry"`
}

// Composition is the signed prescription document. Its single section lists
// the MedicationRequest it prescribes.
type Composition struct {
	fhir.Base
	Identifier           string
	Status               string
	SubjectRef           string
	AuthorRef            string
	Date                 string
	MedicationRequestRef string
}

// NewComposition creates a final Composition.
func NewComposition(id string) *Composition {
	return &Composition{
		Base:   fhir.NewBase("Composition", id),
		Status: "final",
	}
}

func (c *Composition) ToFHIR() map[string]interface{} {
	result := c.Base.ToFHIR()
	result["status"] = c.Status
	result["identifier"] = []fhir.Identifier{{
		System: fhirmodels.SystemCompositionIDs,
		Value:  c.Identifier,
	}}
	result["code"] = fhir.CodeableConcept{
		Coding: []fhir.Coding{
			{System: fhirmodels.SystemLOINC, Code: "57833-6", Display: "Prescription for medication"},
			{System: fhirmodels.SystemSNOMED, Code: "761938008", Display: "Medicinal prescription record (record artifact)"},
		},
	}
	if ref := fhir.RefOrNil(c.SubjectRef); ref != nil {
		result["subject"] = *ref
	}
	if ref := fhir.RefOrNil(c.AuthorRef); ref != nil {
		result["author"] = *ref
	}
	result["date"] = c.Date
	entries := []fhir.Reference{}
	if ref := fhir.RefOrNil(c.MedicationRequestRef); ref != nil {
		entries = append(entries, *ref)
	}
	result["section"] = []Section{{
		Code: fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: fhirmodels.SystemLOINC, Code: "57828-6", Display: "Prescription list"}},
		},
		Entry: entries,
	}}
	return result
}
