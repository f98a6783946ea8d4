package fhir

// MessageEventSystem is the code system for message event codes.
const MessageEventSystem = "http://hl7.org/fhir/message-events"

// Message event codes emitted by the generator pipelines.
const (
	EventAppointmentBooked   = "appointment-booked"
	EventExamRequest         = "exam-request"
	EventExamResult          = "exam-result"
	EventMedicalPrescription = "medical-prescription"
	EventOperationComplete   = "operation-complete"
)

// MessageResponse identifies the message a response header acknowledges.
type MessageResponse struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

// MessageSource names the system that produced a message.
type MessageSource struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
}

// MessageHeader is the first entry of every message Bundle. It names the
// business event and focuses the clinical resources the event concerns.
type MessageHeader struct {
	Base
	EventCode      string
	EventDisplay   string
	SourceName     string
	SourceEndpoint string
	Response       *MessageResponse

	focus []Reference
}

func NewMessageHeader(id string) *MessageHeader {
	return &MessageHeader{Base: NewBase("MessageHeader", id)}
}

// AddFocus appends a focus reference. Empty locators are ignored.
func (m *MessageHeader) AddFocus(locator string) *MessageHeader {
	if locator != "" {
		m.focus = append(m.focus, Reference{Reference: locator})
	}
	return m
}

// Focus returns a copy of the focus references.
func (m *MessageHeader) Focus() []Reference {
	out := make([]Reference, len(m.focus))
	copy(out, m.focus)
	return out
}

func (m *MessageHeader) ToFHIR() map[string]interface{} {
	result := m.Base.ToFHIR()
	result["eventCoding"] = Coding{
		System:  MessageEventSystem,
		Code:    m.EventCode,
		Display: m.EventDisplay,
	}
	result["source"] = MessageSource{
		Name:     m.SourceName,
		Endpoint: m.SourceEndpoint,
	}
	result["focus"] = m.Focus()
	if m.Response != nil {
		result["response"] = *m.Response
	}
	return result
}
