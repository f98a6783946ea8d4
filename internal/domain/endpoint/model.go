package endpoint

import (
	"github.com/ehr/fhirgen/internal/platform/fhir"
	"github.com/ehr/fhirgen/pkg/fhirmodels"
)

// DefaultAddress is the receiving FHIR base used when none is configured.
const DefaultAddress = "https://acme.example.org/fhir"

// Endpoint is the technical address of the organization's FHIR interface.
type Endpoint struct {
	fhir.Base
	Address string
}

// NewEndpoint creates an Endpoint; an empty address falls back to
// DefaultAddress.
func NewEndpoint(id, address string) *Endpoint {
	if address == "" {
		address = DefaultAddress
	}
	return &Endpoint{Base: fhir.NewBase("Endpoint", id), Address: address}
}

func (e *Endpoint) ToFHIR() map[string]interface{} {
	result := e.Base.ToFHIR()
	result["status"] = "active"
	result["connectionType"] = fhir.Coding{
		System: fhirmodels.SystemConnectionType,
		Code:   "hl7-fhir-rest",
	}
	result["address"] = e.Address
	return result
}
