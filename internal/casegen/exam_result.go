package casegen

import (
	"github.com/ehr/fhirgen/internal/domain/diagnostics"
	"github.com/ehr/fhirgen/internal/domain/encounter"
	"github.com/ehr/fhirgen/internal/domain/endpoint"
	"github.com/ehr/fhirgen/internal/platform/fhir"
)

// ExamResultBuilder produces "exam-result" messages.
type ExamResultBuilder struct {
	opts Options
}

func NewExamResultBuilder(opts Options) *ExamResultBuilder {
	return &ExamResultBuilder{opts: opts}
}

func (b *ExamResultBuilder) DocumentType() string { return DocExamResult }

// Build wires one Observation per entry of the record's observations list and
// a DiagnosticReport over all of them. There is no Specimen or Condition in a
// result message, so the Encounter and ServiceRequest carry no references to
// them.
func (b *ExamResultBuilder) Build(record Record, index int) (*fhir.Bundle, error) {
	var c examResultCase
	if err := decodeRecord(record, &c); err != nil {
		return nil, err
	}
	ids := caseIDs(index)

	patient := newPatient(ids, c.patientFields)
	doctor := newPractitioner(ids, c.doctorFields)
	ep := endpoint.NewEndpoint(ids.of("endpoint"), b.opts.EndpointURL)
	org := newOrganization(ids, c.OrganizationName, ep)

	enc := encounter.NewEncounter(ids.of("encounter"))
	enc.SubjectRef = patient.Locator()

	order := diagnostics.NewServiceRequest(ids.of("sr"))
	order.Identifier = c.ServiceRequestIdentifier
	order.SubjectRef = patient.Locator()
	order.EncounterRef = enc.Locator()
	order.RequesterRef = doctor.Locator()
	order.PerformerRef = org.Locator()
	order.ExamCode = c.ExamCode
	order.ExamDescription = c.ExamDescription

	enc.AddBasedOn(order.Locator())

	report := diagnostics.NewDiagnosticReport(ids.of("dr"))
	report.Identifier = c.DiagnosticReportIdentifier
	report.SubjectRef = patient.Locator()
	report.EncounterRef = enc.Locator()
	report.PerformerRef = org.Locator()

	observations := make([]fhir.Resource, 0, len(c.Observations))
	for j, o := range c.Observations {
		obs := diagnostics.NewObservation(ids.sub("obs", j+1))
		obs.SubjectRef = patient.Locator()
		obs.PerformerRef = org.Locator()
		obs.EffectiveDateTime = o.EffectiveDateTime
		obs.Value = o.Value
		obs.ValueUnit = o.Unit
		obs.ValueCode = o.Code
		obs.ValueDisplay = o.Display
		obs.ResultCode = o.ResultCode
		obs.ResultDisplay = o.ResultDisplay
		report.AddObservation(obs.Locator())
		observations = append(observations, obs)
	}

	header := newHeader(ids, fhir.EventExamResult, c.messageFields, ep)
	header.AddFocus(report.Locator())

	bundle := fhir.NewMessageBundle(ids.of("bundle"), b.opts.clock()).AddEntry(
		header, enc, order, org, doctor, patient, ep, report,
	)
	bundle.AddEntry(observations...)
	return bundle, nil
}
