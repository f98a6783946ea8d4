package scheduling

import (
	"github.com/ehr/fhirgen/internal/platform/fhir"
	"github.com/ehr/fhirgen/pkg/fhirmodels"
)

// Schedule is a practitioner's availability window at a location.
type Schedule struct {
	fhir.Base
	Description string
	Start       string
	End         string

	actors []fhir.Reference
}

func NewSchedule(id string) *Schedule {
	return &Schedule{Base: fhir.NewBase("Schedule", id)}
}

// AddActor appends an actor reference with a display name.
func (s *Schedule) AddActor(locator, display string) *Schedule {
	s.actors = append(s.actors, fhir.Reference{Reference: locator, Display: display})
	return s
}

func (s *Schedule) ToFHIR() map[string]interface{} {
	result := s.Base.ToFHIR()
	result["serviceCategory"] = []fhir.CodeableConcept{{
		Coding: []fhir.Coding{{Code: "17", Display: s.Description}},
	}}
	result["planningHorizon"] = fhir.Period{Start: s.Start, End: s.End}
	actors := make([]fhir.Reference, len(s.actors))
	copy(actors, s.actors)
	result["actor"] = actors
	return result
}

// Slot is one bookable interval of a Schedule.
type Slot struct {
	fhir.Base
	Start       string
	End         string
	Specialty   string
	ScheduleRef string
}

func NewSlot(id string) *Slot {
	return &Slot{Base: fhir.NewBase("Slot", id)}
}

func (sl *Slot) ToFHIR() map[string]interface{} {
	result := sl.Base.ToFHIR()
	result["start"] = sl.Start
	result["end"] = sl.End
	result["status"] = "free"
	result["specialty"] = []fhir.CodeableConcept{{
		Coding: []fhir.Coding{{Code: "408480009", Display: sl.Specialty}},
	}}
	if ref := fhir.RefOrNil(sl.ScheduleRef); ref != nil {
		result["schedule"] = *ref
	}
	return result
}

// RandomSource supplies the random values an Appointment is booked with.
// *math/rand.Rand satisfies it.
type RandomSource interface {
	Intn(n int) int
}

// Ranges of the randomly drawn Appointment fields, inclusive.
const (
	MaxAppointmentIdentifier = 100000
	MinPriority              = 1
	MaxPriority              = 10
	MinDurationMinutes       = 10
	MaxDurationMinutes       = 60
)

// AppointmentParticipant is one attendee of an Appointment.
type AppointmentParticipant struct {
	Actor    fhir.Reference `json:"actor"`
	Required string         `json:"required"`
	Status   string         `json:"status"`
}

// Appointment is a booked visit. Identifier, Priority and MinutesDuration are
// not taken from the case record: they are drawn from the RandomSource passed
// to NewAppointment, so output varies between runs unless the source is
// seeded. Identifier is kept for callers but is not part of the rendered
// fragment.
type Appointment struct {
	fhir.Base
	TypeCode        string
	TypeDisplay     string
	Description     string
	SlotRef         string
	Identifier      int
	Priority        int
	MinutesDuration int

	participants []AppointmentParticipant
}

// NewAppointment creates an Appointment and draws its random fields from rng.
func NewAppointment(id string, rng RandomSource) *Appointment {
	return &Appointment{
		Base:            fhir.NewBase("Appointment", id),
		Identifier:      rng.Intn(MaxAppointmentIdentifier + 1),
		Priority:        MinPriority + rng.Intn(MaxPriority-MinPriority+1),
		MinutesDuration: MinDurationMinutes + rng.Intn(MaxDurationMinutes-MinDurationMinutes+1),
	}
}

// AddActor appends a required participant. An empty status defaults to
// "needs-action".
func (a *Appointment) AddActor(locator, display, status string) *Appointment {
	if status == "" {
		status = "needs-action"
	}
	a.participants = append(a.participants, AppointmentParticipant{
		Actor:    fhir.Reference{Reference: locator, Display: display},
		Required: "required",
		Status:   status,
	})
	return a
}

// Participants returns a copy of the participant list.
func (a *Appointment) Participants() []AppointmentParticipant {
	out := make([]AppointmentParticipant, len(a.participants))
	copy(out, a.participants)
	return out
}

func (a *Appointment) ToFHIR() map[string]interface{} {
	result := a.Base.ToFHIR()
	result["status"] = "proposed"
	result["serviceCategory"] = []fhir.CodeableConcept{{
		Coding: []fhir.Coding{{
			System:  fhirmodels.SystemServiceCategory,
			Code:    "gp",
			Display: "General Practice",
		}},
	}}
	result["specialty"] = []fhir.CodeableConcept{{
		Coding: []fhir.Coding{{
			System:  fhirmodels.SystemSNOMED,
			Code:    "394814009",
			Display: "General Practice",
		}},
	}}
	result["appointmentType"] = []fhir.CodeableConcept{{
		Coding: []fhir.Coding{{
			System:  fhirmodels.SystemAppointmentReason,
			Code:    a.TypeCode,
			Display: a.TypeDisplay,
		}},
	}}
	result["reasonCode"] = []fhir.CodeableConcept{{
		Coding: []fhir.Coding{{System: fhirmodels.SystemSNOMED, Code: "413095006"}},
		Text:   "Clinical Review",
	}}
	result["priority"] = a.Priority
	result["description"] = a.Description
	result["minutesDuration"] = a.MinutesDuration
	if ref := fhir.RefOrNil(a.SlotRef); ref != nil {
		result["slot"] = []fhir.Reference{*ref}
	}
	result["participant"] = a.Participants()
	return result
}
