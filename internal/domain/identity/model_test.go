package identity

import (
	"strings"
	"testing"

	"github.com/ehr/fhirgen/internal/platform/fhir"
)

func samplePatient() *Patient {
	p := NewPatient("patient-1")
	p.Demographics = Demographics{
		Identifier:  "pat-1001",
		FamilyName:  "Doe",
		GivenName:   "Jane",
		Gender:      "female",
		AddressLine: "1 Main St",
		City:        "Springfield",
		State:       "IL",
		PostalCode:  "62701",
		Phone:       "555-0100",
	}
	p.BirthDate = "1980-01-01"
	return p
}

// ---------------------------------------------------------------------------
// Patient.ToFHIR
// ---------------------------------------------------------------------------

func TestPatientToFHIR_Identity(t *testing.T) {
	p := samplePatient()
	result := p.ToFHIR()

	if rt := result["resourceType"]; rt != "Patient" {
		t.Errorf("resourceType = %v, want Patient", rt)
	}
	if id := result["id"]; id != "patient-1" {
		t.Errorf("id = %v, want patient-1", id)
	}
	if p.Locator() != "Patient/patient-1" {
		t.Errorf("Locator() = %q, want Patient/patient-1", p.Locator())
	}
}

func TestPatientToFHIR_Demographics(t *testing.T) {
	result := samplePatient().ToFHIR()

	if g := result["gender"]; g != "female" {
		t.Errorf("gender = %v, want female", g)
	}
	if a := result["active"]; a != "true" {
		t.Errorf("active = %v, want \"true\"", a)
	}
	if b := result["birthDate"]; b != "1980-01-01" {
		t.Errorf("birthDate = %v, want 1980-01-01", b)
	}

	names, ok := result["name"].([]fhir.HumanName)
	if !ok || len(names) != 1 {
		t.Fatalf("name = %#v, want one HumanName", result["name"])
	}
	if names[0].Use != "official" || names[0].Family != "Doe" || names[0].Given[0] != "Jane" {
		t.Errorf("name = %+v, want official Doe/Jane", names[0])
	}

	addrs, ok := result["address"].([]fhir.Address)
	if !ok || len(addrs) != 1 {
		t.Fatalf("address = %#v, want one Address", result["address"])
	}
	if addrs[0].Text != "1 Main St, Springfield, IL 62701" {
		t.Errorf("address text = %q", addrs[0].Text)
	}
	if addrs[0].Use != "home" || addrs[0].Type != "both" {
		t.Errorf("address use/type = %s/%s, want home/both", addrs[0].Use, addrs[0].Type)
	}

	telecom, ok := result["telecom"].([]fhir.ContactPoint)
	if !ok || len(telecom) != 1 {
		t.Fatalf("telecom = %#v, want one ContactPoint", result["telecom"])
	}
	if telecom[0].System != "phone" || telecom[0].Value != "555-0100" || telecom[0].Use != "mobile" {
		t.Errorf("telecom = %+v", telecom[0])
	}
}

func TestPatientToFHIR_Identifier(t *testing.T) {
	result := samplePatient().ToFHIR()

	ids, ok := result["identifier"].([]fhir.Identifier)
	if !ok || len(ids) != 1 {
		t.Fatalf("identifier = %#v, want one Identifier", result["identifier"])
	}
	id := ids[0]
	if id.Value != "pat-1001" {
		t.Errorf("identifier value = %q, want pat-1001", id.Value)
	}
	if id.Use != "usual" {
		t.Errorf("identifier use = %q, want usual", id.Use)
	}
	if id.Type == nil || id.Type.Coding[0].Code != "MR" {
		t.Errorf("identifier type = %+v, want MR", id.Type)
	}
	if id.Period == nil || id.Period.Start != "2001-05-06" {
		t.Errorf("identifier period = %+v", id.Period)
	}
	if id.Assigner == nil || id.Assigner.Display != "Acme Healthcare" {
		t.Errorf("identifier assigner = %+v", id.Assigner)
	}
}

func TestNewPatient_EmptyIDGetsUUID(t *testing.T) {
	p := NewPatient("")
	if p.ID() == "" {
		t.Fatal("expected generated id")
	}
	if !strings.HasPrefix(p.Locator(), "Patient/") || p.Locator() != "Patient/"+p.ID() {
		t.Errorf("Locator() = %q, want Patient/%s", p.Locator(), p.ID())
	}
}

// ---------------------------------------------------------------------------
// Practitioner
// ---------------------------------------------------------------------------

func TestPractitionerToFHIR_NoPatientFields(t *testing.T) {
	d := NewPractitioner("doctor-1")
	d.Demographics = Demographics{GivenName: "John", FamilyName: "Smith", Gender: "male"}

	result := d.ToFHIR()
	if rt := result["resourceType"]; rt != "Practitioner" {
		t.Errorf("resourceType = %v, want Practitioner", rt)
	}
	for _, key := range []string{"birthDate", "identifier"} {
		if _, ok := result[key]; ok {
			t.Errorf("expected %s to be absent on Practitioner", key)
		}
	}
	if _, ok := result["telecom"]; !ok {
		t.Error("expected telecom to be present")
	}
}

func TestPractitionerDisplayName(t *testing.T) {
	d := NewPractitioner("doctor-1")
	d.GivenName = "John"
	d.FamilyName = "Smith"
	if got := d.DisplayName(); got != "Dr. John Smith" {
		t.Errorf("DisplayName() = %q, want Dr. John Smith", got)
	}
	if got := d.Demographics.DisplayName(); got != "John Smith" {
		t.Errorf("Demographics.DisplayName() = %q, want John Smith", got)
	}
}

func TestPatientToFHIR_Idempotent(t *testing.T) {
	p := samplePatient()
	first := p.ToFHIR()
	second := p.ToFHIR()
	if len(first) != len(second) {
		t.Fatalf("render produced %d and %d keys", len(first), len(second))
	}
	for k := range first {
		if _, ok := second[k]; !ok {
			t.Errorf("key %s missing on second render", k)
		}
	}
}
