package casegen

import (
	"fmt"

	"github.com/ehr/fhirgen/internal/domain/documents"
	"github.com/ehr/fhirgen/internal/domain/endpoint"
	"github.com/ehr/fhirgen/internal/domain/medication"
	"github.com/ehr/fhirgen/internal/platform/fhir"
)

// PrescriptionBuilder produces "medical-prescription" messages.
type PrescriptionBuilder struct {
	opts Options
}

func NewPrescriptionBuilder(opts Options) *PrescriptionBuilder {
	return &PrescriptionBuilder{opts: opts}
}

func (b *PrescriptionBuilder) DocumentType() string { return DocMedicalPrescription }

// Build wires a MedicationRequest embedding every Medication of the record
// and a Composition whose section lists the request. Medications are not
// separate entries and the Endpoint only supplies the source address.
func (b *PrescriptionBuilder) Build(record Record, index int) (*fhir.Bundle, error) {
	var c prescriptionCase
	if err := decodeRecord(record, &c); err != nil {
		return nil, err
	}
	frequency, err := wholeNumber("dosage_frequency", c.DosageFrequency)
	if err != nil {
		return nil, err
	}
	ids := caseIDs(index)

	patient := newPatient(ids, c.patientFields)
	doctor := newPractitioner(ids, c.doctorFields)
	ep := endpoint.NewEndpoint(ids.of("endpoint"), b.opts.EndpointURL)

	request := medication.NewMedicationRequest(ids.of("medreq"))
	request.SubjectRef = patient.Locator()
	request.PerformerRef = doctor.Locator()
	request.DosageFrequency = frequency
	request.DosagePeriod = c.DosagePeriod
	request.DosageUnit = c.DosageUnit
	request.DosageMethod = c.DosageMethod
	request.DosageDescription = c.DosageDescription

	for j, m := range c.Medications {
		med := medication.NewMedication(ids.sub("med", j+1))
		med.Code = m.MedicationCode
		med.Description = m.MedicationDescription
		med.AmountValue = m.AmountValue
		med.AmountUnit = m.AmountUnit
		med.DenominatorValue = m.DenominatorValue
		med.DenominatorUnit = m.DenominatorUnit
		request.AddMedication(med)
	}

	composition := documents.NewComposition(ids.of("comp"))
	composition.Identifier = fmt.Sprintf("comp-%d", 3000+index)
	composition.SubjectRef = patient.Locator()
	composition.AuthorRef = doctor.Locator()
	composition.Date = c.CompositionDate
	composition.MedicationRequestRef = request.Locator()

	header := newHeader(ids, fhir.EventMedicalPrescription, c.messageFields, ep)
	header.AddFocus(composition.Locator())

	bundle := fhir.NewMessageBundle(ids.of("bundle"), b.opts.clock()).AddEntry(
		header, doctor, patient, composition, request,
	)
	return bundle, nil
}
