package casegen

import (
	"github.com/ehr/fhirgen/internal/domain/clinical"
	"github.com/ehr/fhirgen/internal/domain/diagnostics"
	"github.com/ehr/fhirgen/internal/domain/encounter"
	"github.com/ehr/fhirgen/internal/domain/endpoint"
	"github.com/ehr/fhirgen/internal/platform/fhir"
)

// ExamRequestBuilder produces "exam-request" messages.
type ExamRequestBuilder struct {
	opts Options
}

func NewExamRequestBuilder(opts Options) *ExamRequestBuilder {
	return &ExamRequestBuilder{opts: opts}
}

func (b *ExamRequestBuilder) DocumentType() string { return DocExamRequest }

// Build wires an Encounter for the Condition, based on a ServiceRequest that
// the Practitioner places with the Organization for a Specimen of the
// Patient. The header focuses the Encounter and the AllergyIntolerance.
func (b *ExamRequestBuilder) Build(record Record, index int) (*fhir.Bundle, error) {
	var c examRequestCase
	if err := decodeRecord(record, &c); err != nil {
		return nil, err
	}
	ids := caseIDs(index)
	clock := b.opts.clock()

	patient := newPatient(ids, c.patientFields)
	doctor := newPractitioner(ids, c.doctorFields)
	ep := endpoint.NewEndpoint(ids.of("endpoint"), b.opts.EndpointURL)
	org := newOrganization(ids, c.OrganizationName, ep)

	specimen := diagnostics.NewSpecimen(ids.of("specimen"), clock())
	specimen.Identifier = c.SpecimenIdentifier
	specimen.TypeCode = c.SpecimenCode
	specimen.TypeDisplay = c.SpecimenDescription
	specimen.SubjectRef = patient.Locator()

	condition := clinical.NewCondition(ids.of("condition"))
	condition.Identifier = c.ConditionIdentifier
	condition.SubjectRef = patient.Locator()
	condition.Pathology = c.Pathology

	allergy := clinical.NewAllergyIntolerance(ids.of("allergy"))
	allergy.PatientRef = patient.Locator()
	allergy.SubstanceCode = c.SubstanceCode
	allergy.SubstanceDescription = c.SubstanceDescription
	allergy.Reaction = c.AllergenReaction

	enc := encounter.NewEncounter(ids.of("encounter"))
	enc.SubjectRef = patient.Locator()
	enc.ConditionRef = condition.Locator()

	order := diagnostics.NewServiceRequest(ids.of("sr"))
	order.Identifier = c.ServiceRequestIdentifier
	order.SubjectRef = patient.Locator()
	order.EncounterRef = enc.Locator()
	order.SpecimenRef = specimen.Locator()
	order.RequesterRef = doctor.Locator()
	order.PerformerRef = org.Locator()
	order.ExamCode = c.ExamCode
	order.ExamDescription = c.ExamDescription

	enc.AddBasedOn(order.Locator())

	header := newHeader(ids, fhir.EventExamRequest, c.messageFields, ep)
	header.AddFocus(enc.Locator()).AddFocus(allergy.Locator())

	bundle := fhir.NewMessageBundle(ids.of("bundle"), clock).AddEntry(
		header, enc, allergy, order, condition, specimen, org, doctor, patient, ep,
	)
	return bundle, nil
}
