package encounter

import (
	"github.com/ehr/fhirgen/internal/platform/fhir"
	"github.com/ehr/fhirgen/pkg/fhirmodels"
)

// Diagnosis links an Encounter to the Condition it addresses.
type Diagnosis struct {
	Condition fhir.Reference `json:"condition"`
}

// Encounter is the clinical visit an order is placed in.
type Encounter struct {
	fhir.Base
	Status       string
	SubjectRef   string
	ConditionRef string

	basedOn []fhir.Reference
}

// NewEncounter creates an Encounter with status "planned".
func NewEncounter(id string) *Encounter {
	return &Encounter{
		Base:   fhir.NewBase("Encounter", id),
		Status: fhirmodels.EncounterStatusPlanned,
	}
}

// AddBasedOn appends an order the encounter fulfils.
func (e *Encounter) AddBasedOn(locator string) *Encounter {
	if locator != "" {
		e.basedOn = append(e.basedOn, fhir.Reference{Reference: locator})
	}
	return e
}

// BasedOn returns a copy of the order references.
func (e *Encounter) BasedOn() []fhir.Reference {
	out := make([]fhir.Reference, len(e.basedOn))
	copy(out, e.basedOn)
	return out
}

func (e *Encounter) ToFHIR() map[string]interface{} {
	result := e.Base.ToFHIR()
	result["status"] = e.Status
	result["basedOn"] = e.BasedOn()
	if ref := fhir.RefOrNil(e.SubjectRef); ref != nil {
		result["subject"] = *ref
	}
	if ref := fhir.RefOrNil(e.ConditionRef); ref != nil {
		result["diagnosis"] = []Diagnosis{{Condition: *ref}}
	}
	return result
}
