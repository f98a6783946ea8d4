package diagnostics

import (
	"testing"
	"time"

	"github.com/ehr/fhirgen/internal/platform/fhir"
	"github.com/ehr/fhirgen/pkg/fhirmodels"
)

// ---------------------------------------------------------------------------
// ServiceRequest
// ---------------------------------------------------------------------------

func TestServiceRequestToFHIR(t *testing.T) {
	sr := NewServiceRequest("sr-1")
	sr.Identifier = "order-1"
	sr.SubjectRef = "Patient/patient-1"
	sr.EncounterRef = "Encounter/encounter-1"
	sr.RequesterRef = "Practitioner/doctor-1"
	sr.PerformerRef = "Organization/hospital-1"
	sr.SpecimenRef = "Specimen/specimen-1"
	sr.ExamCode = "26604007"
	sr.ExamDescription = "Complete blood count"

	result := sr.ToFHIR()
	if s := result["status"]; s != "active" {
		t.Errorf("status = %v, want active", s)
	}
	if i := result["intent"]; i != "order" {
		t.Errorf("intent = %v, want order", i)
	}
	ids := result["identifier"].([]fhir.Identifier)
	if ids[0].System != fhirmodels.SystemPlacerOrderIDs || ids[0].Value != "order-1" {
		t.Errorf("identifier = %+v", ids[0])
	}
	specimens := result["specimen"].([]fhir.Reference)
	if len(specimens) != 1 || specimens[0].Reference != "Specimen/specimen-1" {
		t.Errorf("specimen = %+v", specimens)
	}
	if q := result["quantityQuantity"].(fhir.Quantity); q.Value != 1 {
		t.Errorf("quantityQuantity = %+v, want value 1", q)
	}
	code := result["code"].(fhir.CodeableConcept)
	if code.Coding[0].Code != "26604007" || code.Coding[0].System != fhirmodels.SystemExamCode {
		t.Errorf("code = %+v", code)
	}
	for _, key := range []string{"subject", "encounter", "requester", "performer"} {
		if _, ok := result[key].(fhir.Reference); !ok {
			t.Errorf("expected %s to be a Reference", key)
		}
	}
}

func TestServiceRequestToFHIR_OmitsEmptyReferences(t *testing.T) {
	sr := NewServiceRequest("sr-1")
	sr.SubjectRef = "Patient/patient-1"
	result := sr.ToFHIR()
	for _, key := range []string{"encounter", "requester", "performer", "specimen"} {
		if _, ok := result[key]; ok {
			t.Errorf("expected %s to be absent when not wired", key)
		}
	}
}

// ---------------------------------------------------------------------------
// Specimen
// ---------------------------------------------------------------------------

func TestSpecimenToFHIR_CollectedAtIsFixed(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	sp := NewSpecimen("specimen-1", at)
	sp.Identifier = "order-1"
	sp.SubjectRef = "Patient/patient-1"
	sp.TypeCode = "119297000"
	sp.TypeDisplay = "Blood specimen"

	first := sp.ToFHIR()
	second := sp.ToFHIR()

	c1 := first["collection"].(SpecimenCollection)
	c2 := second["collection"].(SpecimenCollection)
	if c1.CollectedDateTime != "2024-03-01T08:30:00Z" {
		t.Errorf("collectedDateTime = %q", c1.CollectedDateTime)
	}
	if c1 != c2 {
		t.Error("collectedDateTime changed between renders")
	}
	typ := first["type"].(fhir.CodeableConcept)
	if typ.Coding[0].Display != "Blood specimen" {
		t.Errorf("type = %+v", typ)
	}
}

// ---------------------------------------------------------------------------
// Observation / DiagnosticReport
// ---------------------------------------------------------------------------

func TestObservationToFHIR(t *testing.T) {
	o := NewObservation("obs-1-1")
	o.SubjectRef = "Patient/patient-1"
	o.PerformerRef = "Practitioner/doctor-1"
	o.EffectiveDateTime = "2024-03-02T10:00:00Z"
	o.Value = 13.5
	o.ValueUnit = "g/dL"
	o.ValueCode = "259695003"
	o.ValueDisplay = "Hemoglobin"
	o.ResultCode = "718-7"
	o.ResultDisplay = "Hemoglobin [Mass/volume] in Blood"

	result := o.ToFHIR()
	if s := result["status"]; s != "final" {
		t.Errorf("status = %v, want final", s)
	}
	vq := result["valueQuantity"].(fhir.Quantity)
	if vq.Value != 13.5 || vq.Unit != "g/dL" || vq.System != fhirmodels.SystemSNOMED {
		t.Errorf("valueQuantity = %+v", vq)
	}
	perf := result["performer"].([]fhir.Reference)
	if perf[0].Reference != "Practitioner/doctor-1" {
		t.Errorf("performer = %+v", perf)
	}
	code := result["code"].(fhir.CodeableConcept)
	if code.Coding[0].System != fhirmodels.SystemResultCode {
		t.Errorf("code system = %q", code.Coding[0].System)
	}
}

func TestDiagnosticReportToFHIR(t *testing.T) {
	dr := NewDiagnosticReport("dr-1")
	dr.Identifier = "report-1"
	dr.SubjectRef = "Patient/patient-1"
	dr.EncounterRef = "Encounter/encounter-1"
	dr.PerformerRef = "Organization/hospital-1"
	dr.AddObservation("Observation/obs-1-1").
		AddObservation("Observation/obs-1-2").
		AddObservation("")

	result := dr.ToFHIR()
	if s := result["status"]; s != "final" {
		t.Errorf("status = %v, want final", s)
	}
	if ref := result["patient"].(fhir.Reference); ref.Reference != "Patient/patient-1" {
		t.Errorf("patient = %q", ref.Reference)
	}
	results := result["result"].([]fhir.Reference)
	if len(results) != 2 {
		t.Fatalf("result len = %d, want 2", len(results))
	}
	if results[1].Reference != "Observation/obs-1-2" {
		t.Errorf("result[1] = %q", results[1].Reference)
	}
	if _, ok := result["identifier"]; ok {
		t.Error("expected identifier to be absent from the rendered fragment")
	}
}

func TestDiagnosticReportResults_IsCopy(t *testing.T) {
	dr := NewDiagnosticReport("dr-1")
	dr.AddObservation("Observation/obs-1-1")
	out := dr.Results()
	out[0].Reference = "changed"
	if dr.Results()[0].Reference != "Observation/obs-1-1" {
		t.Error("Results() aliases internal state")
	}
}
