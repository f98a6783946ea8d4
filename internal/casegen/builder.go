// Package casegen turns case records into FHIR message Bundles, one builder
// per document type, and runs batches of them to storage.
package casegen

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/ehr/fhirgen/internal/domain/admin"
	"github.com/ehr/fhirgen/internal/domain/endpoint"
	"github.com/ehr/fhirgen/internal/domain/identity"
	"github.com/ehr/fhirgen/internal/domain/scheduling"
	"github.com/ehr/fhirgen/internal/platform/fhir"
)

// Document types, in the order "generate all" runs them.
const (
	DocAppointment         = "appointment"
	DocExamRequest         = "exam_request"
	DocExamResult          = "exam_result"
	DocMedicalPrescription = "medical_prescription"
)

// ErrUnknownDocumentType is returned by Lookup for unregistered names.
var ErrUnknownDocumentType = errors.New("unknown document type")

// Builder converts one case record into a message Bundle. index is the
// 1-based position of the record in its batch and seeds every resource id.
type Builder interface {
	DocumentType() string
	Build(record Record, index int) (*fhir.Bundle, error)
}

// Options are the environment values builders read instead of hardcoding.
type Options struct {
	EndpointURL      string
	LocationDefaults admin.LocationDefaults
	// Clock supplies Bundle timestamps and Specimen collection times.
	Clock func() time.Time
	// Seed makes Appointment random fields reproducible. Zero seeds from the
	// clock.
	Seed int64
}

// DefaultOptions returns the sample endpoint and location values.
func DefaultOptions() Options {
	return Options{
		EndpointURL:      endpoint.DefaultAddress,
		LocationDefaults: admin.DefaultLocationDefaults(),
		Clock:            time.Now,
	}
}

func (o Options) clock() func() time.Time {
	if o.Clock == nil {
		return time.Now
	}
	return o.Clock
}

// randFor returns the random source for case index. Each case gets its own
// source so concurrent cases share no state.
func (o Options) randFor(index int) scheduling.RandomSource {
	seed := o.Seed
	if seed == 0 {
		seed = o.clock()().UnixNano()
	}
	return rand.New(rand.NewSource(seed + int64(index)))
}

// Registry maps document types to builders.
type Registry struct {
	builders map[string]Builder
}

// NewRegistry returns a registry holding the four standard builders.
func NewRegistry(opts Options) *Registry {
	r := &Registry{builders: make(map[string]Builder)}
	r.Register(NewAppointmentBuilder(opts))
	r.Register(NewExamRequestBuilder(opts))
	r.Register(NewExamResultBuilder(opts))
	r.Register(NewPrescriptionBuilder(opts))
	return r
}

// Register adds or replaces a builder.
func (r *Registry) Register(b Builder) {
	r.builders[b.DocumentType()] = b
}

// Lookup returns the builder for docType.
func (r *Registry) Lookup(docType string) (Builder, error) {
	b, ok := r.builders[docType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocumentType, docType)
	}
	return b, nil
}

// DocumentTypes lists the registered types, standard ones first in pipeline
// order.
func (r *Registry) DocumentTypes() []string {
	standard := []string{DocAppointment, DocExamRequest, DocExamResult, DocMedicalPrescription}
	seen := make(map[string]bool)
	var out []string
	for _, t := range standard {
		if _, ok := r.builders[t]; ok {
			out = append(out, t)
			seen[t] = true
		}
	}
	var extra []string
	for t := range r.builders {
		if !seen[t] {
			extra = append(extra, t)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// caseIDs derives the deterministic resource ids of case i.
type caseIDs int

func (i caseIDs) of(prefix string) string { return fmt.Sprintf("%s-%d", prefix, int(i)) }

func (i caseIDs) sub(prefix string, j int) string {
	return fmt.Sprintf("%s-%d-%d", prefix, int(i), j)
}

// newPatient builds the case's Patient from the shared patient columns.
func newPatient(ids caseIDs, f patientFields) *identity.Patient {
	p := identity.NewPatient(ids.of("patient"))
	p.Demographics = identity.Demographics{
		Identifier:  fmt.Sprintf("pat-%d", 1000+int(ids)),
		FamilyName:  f.PatientFamilyName,
		GivenName:   f.PatientName,
		Gender:      f.PatientGender,
		AddressLine: f.PatientAddress,
		City:        f.PatientCity,
		State:       f.PatientState,
		PostalCode:  f.PatientPostalCode,
		Phone:       f.PatientPhone,
	}
	p.BirthDate = f.PatientBirthDate
	return p
}

// newPractitioner builds the case's Practitioner from the doctor columns.
func newPractitioner(ids caseIDs, f doctorFields) *identity.Practitioner {
	d := identity.NewPractitioner(ids.of("doctor"))
	d.Demographics = identity.Demographics{
		Identifier:  fmt.Sprintf("doc-%d", 2000+int(ids)),
		FamilyName:  f.DoctorFamilyName,
		GivenName:   f.DoctorName,
		Gender:      f.DoctorGender,
		AddressLine: f.DoctorAddress,
		City:        f.DoctorCity,
		State:       f.DoctorState,
		PostalCode:  f.DoctorPostalCode,
		Phone:       f.DoctorPhone,
	}
	return d
}

// newOrganization builds the performing organization wired to ep.
func newOrganization(ids caseIDs, name string, ep *endpoint.Endpoint) *admin.Organization {
	org := admin.NewOrganization(ids.of("hospital"))
	org.Name = name
	org.EndpointRef = ep.Locator()
	return org
}

// newHeader builds the MessageHeader of case i for event.
func newHeader(ids caseIDs, event string, f messageFields, ep *endpoint.Endpoint) *fhir.MessageHeader {
	h := fhir.NewMessageHeader(ids.of("msg"))
	h.EventCode = event
	h.SourceName = f.SourceName
	h.SourceEndpoint = ep.Address
	return h
}
