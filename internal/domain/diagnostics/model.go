package diagnostics

import (
	"time"

	"github.com/ehr/fhirgen/internal/platform/fhir"
	"github.com/ehr/fhirgen/pkg/fhirmodels"
)

// ServiceRequest is the exam order.
type ServiceRequest struct {
	fhir.Base
	Identifier      string
	Status          string
	Intent          string
	SubjectRef      string
	EncounterRef    string
	RequesterRef    string
	PerformerRef    string
	SpecimenRef     string
	ExamCode        string
	ExamDescription string
}

// NewServiceRequest creates an active order.
func NewServiceRequest(id string) *ServiceRequest {
	return &ServiceRequest{
		Base:   fhir.NewBase("ServiceRequest", id),
		Status: fhirmodels.RequestStatusActive,
		Intent: fhirmodels.RequestIntentOrder,
	}
}

func (sr *ServiceRequest) ToFHIR() map[string]interface{} {
	result := sr.Base.ToFHIR()
	result["identifier"] = []fhir.Identifier{{
		System: fhirmodels.SystemPlacerOrderIDs,
		Value:  sr.Identifier,
	}}
	result["status"] = sr.Status
	result["intent"] = sr.Intent
	if ref := fhir.RefOrNil(sr.SubjectRef); ref != nil {
		result["subject"] = *ref
	}
	if ref := fhir.RefOrNil(sr.EncounterRef); ref != nil {
		result["encounter"] = *ref
	}
	if ref := fhir.RefOrNil(sr.RequesterRef); ref != nil {
		result["requester"] = *ref
	}
	if ref := fhir.RefOrNil(sr.PerformerRef); ref != nil {
		result["performer"] = *ref
	}
	if ref := fhir.RefOrNil(sr.SpecimenRef); ref != nil {
		result["specimen"] = []fhir.Reference{*ref}
	}
	result["code"] = fhir.CodeableConcept{
		Coding: []fhir.Coding{{
			System:  fhirmodels.SystemExamCode,
			Code:    sr.ExamCode,
			Display: sr.ExamDescription,
		}},
	}
	result["quantityQuantity"] = fhir.Quantity{Value: 1}
	return result
}

// SpecimenCollection records when the specimen was taken.
type SpecimenCollection struct {
	CollectedDateTime string `json:"collectedDateTime"`
}

// Specimen is the sample an exam runs on.
type Specimen struct {
	fhir.Base
	Identifier  string
	SubjectRef  string
	TypeCode    string
	TypeDisplay string
	CollectedAt time.Time
}

// NewSpecimen creates a Specimen collected at the given time.
func NewSpecimen(id string, collectedAt time.Time) *Specimen {
	return &Specimen{
		Base:        fhir.NewBase("Specimen", id),
		CollectedAt: collectedAt,
	}
}

func (sp *Specimen) ToFHIR() map[string]interface{} {
	result := sp.Base.ToFHIR()
	result["identifier"] = []fhir.Identifier{{
		System: fhirmodels.SystemPlacerOrderIDs,
		Value:  sp.Identifier,
	}}
	if ref := fhir.RefOrNil(sp.SubjectRef); ref != nil {
		result["subject"] = *ref
	}
	result["type"] = fhir.CodeableConcept{
		Coding: []fhir.Coding{{
			System:  fhirmodels.SystemSpecimenCode,
			Code:    sp.TypeCode,
			Display: sp.TypeDisplay,
		}},
	}
	result["collection"] = SpecimenCollection{
		CollectedDateTime: sp.CollectedAt.Format(time.RFC3339),
	}
	return result
}

// Observation is one measured exam result.
type Observation struct {
	fhir.Base
	Status            string
	SubjectRef        string
	PerformerRef      string
	EffectiveDateTime string
	Value             float64
	ValueUnit         string
	ValueCode         string
	ValueDisplay      string
	ResultCode        string
	ResultDisplay     string
}

// NewObservation creates a final Observation.
func NewObservation(id string) *Observation {
	return &Observation{
		Base:   fhir.NewBase("Observation", id),
		Status: fhirmodels.ResultStatusFinal,
	}
}

func (o *Observation) ToFHIR() map[string]interface{} {
	result := o.Base.ToFHIR()
	result["status"] = o.Status
	result["code"] = fhir.CodeableConcept{
		Coding: []fhir.Coding{{
			System:  fhirmodels.SystemResultCode,
			Code:    o.ResultCode,
			Display: o.ResultDisplay,
		}},
	}
	if ref := fhir.RefOrNil(o.SubjectRef); ref != nil {
		result["subject"] = *ref
	}
	result["effectiveDateTime"] = o.EffectiveDateTime
	if ref := fhir.RefOrNil(o.PerformerRef); ref != nil {
		result["performer"] = []fhir.Reference{*ref}
	}
	result["valueQuantity"] = fhir.Quantity{
		Value:   o.Value,
		Unit:    o.ValueUnit,
		System:  fhirmodels.SystemSNOMED,
		Code:    o.ValueCode,
		Display: o.ValueDisplay,
	}
	return result
}

// DiagnosticReport aggregates the Observations of one exam. Identifier is
// carried from the case record but is not rendered.
type DiagnosticReport struct {
	fhir.Base
	Identifier   string
	Status       string
	SubjectRef   string
	EncounterRef string
	PerformerRef string

	results []fhir.Reference
}

// NewDiagnosticReport creates a final report with no results.
func NewDiagnosticReport(id string) *DiagnosticReport {
	return &DiagnosticReport{
		Base:   fhir.NewBase("DiagnosticReport", id),
		Status: fhirmodels.ResultStatusFinal,
	}
}

// AddObservation appends an Observation reference to the result list.
func (dr *DiagnosticReport) AddObservation(locator string) *DiagnosticReport {
	if locator != "" {
		dr.results = append(dr.results, fhir.Reference{Reference: locator})
	}
	return dr
}

// Results returns a copy of the result references.
func (dr *DiagnosticReport) Results() []fhir.Reference {
	out := make([]fhir.Reference, len(dr.results))
	copy(out, dr.results)
	return out
}

func (dr *DiagnosticReport) ToFHIR() map[string]interface{} {
	result := dr.Base.ToFHIR()
	if ref := fhir.RefOrNil(dr.SubjectRef); ref != nil {
		result["patient"] = *ref
	}
	if ref := fhir.RefOrNil(dr.EncounterRef); ref != nil {
		result["encounter"] = *ref
	}
	if ref := fhir.RefOrNil(dr.PerformerRef); ref != nil {
		result["performer"] = *ref
	}
	result["result"] = dr.Results()
	result["status"] = dr.Status
	return result
}
