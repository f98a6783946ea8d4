package identity

import (
	"github.com/ehr/fhirgen/internal/platform/fhir"
	"github.com/ehr/fhirgen/pkg/fhirmodels"
)

// Demographics holds the person fields shared by Patient and Practitioner.
type Demographics struct {
	Identifier  string
	FamilyName  string
	GivenName   string
	Gender      string
	AddressLine string
	City        string
	State       string
	PostalCode  string
	Phone       string
}

// DisplayName returns "Given Family".
func (d Demographics) DisplayName() string {
	return d.GivenName + " " + d.FamilyName
}

func (d Demographics) render(result map[string]interface{}) {
	result["gender"] = d.Gender
	result["active"] = "true"
	result["name"] = []fhir.HumanName{{
		Use:    "official",
		Family: d.FamilyName,
		Given:  []string{d.GivenName},
	}}
	result["address"] = []fhir.Address{
		fhir.NewHomeAddress(d.AddressLine, d.City, d.State, d.PostalCode),
	}
	result["telecom"] = []fhir.ContactPoint{{
		System: "phone",
		Value:  d.Phone,
		Use:    "mobile",
	}}
}

// Patient is the subject of every generated message.
type Patient struct {
	fhir.Base
	Demographics
	BirthDate string
}

func NewPatient(id string) *Patient {
	return &Patient{Base: fhir.NewBase("Patient", id)}
}

func (p *Patient) ToFHIR() map[string]interface{} {
	result := p.Base.ToFHIR()
	p.Demographics.render(result)
	result["birthDate"] = p.BirthDate

	// Medical record number block; the assigning system is fixed.
	result["identifier"] = []fhir.Identifier{{
		Use: "usual",
		Type: &fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: fhirmodels.SystemIdentifierType, Code: "MR"}},
		},
		System:   fhirmodels.SystemPatientMRN,
		Value:    p.Identifier,
		Period:   &fhir.Period{Start: "2001-05-06"},
		Assigner: &fhir.Reference{Display: "Acme Healthcare"},
	}}
	return result
}

// Practitioner is the doctor responsible for the case.
type Practitioner struct {
	fhir.Base
	Demographics
}

func NewPractitioner(id string) *Practitioner {
	return &Practitioner{Base: fhir.NewBase("Practitioner", id)}
}

// DisplayName returns "Dr. Given Family".
func (p *Practitioner) DisplayName() string {
	return "Dr. " + p.Demographics.DisplayName()
}

func (p *Practitioner) ToFHIR() map[string]interface{} {
	result := p.Base.ToFHIR()
	p.Demographics.render(result)
	return result
}
