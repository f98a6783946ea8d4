package casegen

import (
	"github.com/ehr/fhirgen/internal/domain/admin"
	"github.com/ehr/fhirgen/internal/domain/endpoint"
	"github.com/ehr/fhirgen/internal/domain/scheduling"
	"github.com/ehr/fhirgen/internal/platform/fhir"
)

// AppointmentBuilder produces "appointment-booked" messages.
type AppointmentBuilder struct {
	opts Options
}

func NewAppointmentBuilder(opts Options) *AppointmentBuilder {
	return &AppointmentBuilder{opts: opts}
}

func (b *AppointmentBuilder) DocumentType() string { return DocAppointment }

// Build wires Patient, Practitioner, Organization, Location, Schedule, Slot
// and Appointment. The doctor and the location are the Schedule's actors; the
// doctor, the patient and the location attend the Appointment.
func (b *AppointmentBuilder) Build(record Record, index int) (*fhir.Bundle, error) {
	var c appointmentCase
	if err := decodeRecord(record, &c); err != nil {
		return nil, err
	}
	ids := caseIDs(index)

	patient := newPatient(ids, c.patientFields)
	doctor := newPractitioner(ids, c.doctorFields)
	ep := endpoint.NewEndpoint(ids.of("endpoint"), b.opts.EndpointURL)
	org := newOrganization(ids, c.OrganizationName, ep)

	location := admin.NewLocation(ids.of("location"), b.opts.LocationDefaults)
	location.Name = c.LocationName
	location.Phone = c.LocationPhone
	location.Email = c.LocationEmail
	location.AddressLine = c.LocationAddress
	location.City = c.LocationCity
	location.State = c.LocationState
	location.PostalCode = c.LocationPostalCode
	location.SetOrganization(org.Locator())

	schedule := scheduling.NewSchedule(ids.of("schedule"))
	schedule.Description = c.ScheduleDescription
	schedule.Start = c.SlotStartTime
	schedule.End = c.SlotEndTime
	schedule.AddActor(doctor.Locator(), doctor.DisplayName()).
		AddActor(location.Locator(), location.Name)

	slot := scheduling.NewSlot(ids.of("slot"))
	slot.Start = c.SlotStartTime
	slot.End = c.SlotEndTime
	slot.Specialty = c.SlotSpecialty
	slot.ScheduleRef = schedule.Locator()

	appointment := scheduling.NewAppointment(ids.of("appointment"), b.opts.randFor(index))
	appointment.TypeCode = c.AppointmentType
	appointment.TypeDisplay = c.AppointmentTypeDesc
	appointment.Description = c.AppointmentDescription
	appointment.SlotRef = slot.Locator()
	appointment.AddActor(doctor.Locator(), doctor.DisplayName(), "").
		AddActor(patient.Locator(), patient.Demographics.DisplayName(), "").
		AddActor(location.Locator(), location.Name, "")

	header := newHeader(ids, fhir.EventAppointmentBooked, c.messageFields, ep)
	header.AddFocus(appointment.Locator())

	bundle := fhir.NewMessageBundle(ids.of("bundle"), b.opts.clock()).AddEntry(
		header, appointment, slot, schedule, location, org, doctor, patient, ep,
	)
	return bundle, nil
}
