package endpoint

import (
	"testing"

	"github.com/ehr/fhirgen/internal/platform/fhir"
)

func TestEndpointToFHIR(t *testing.T) {
	e := NewEndpoint("endpoint-1", "https://lab.example.org/fhir")
	result := e.ToFHIR()

	if rt := result["resourceType"]; rt != "Endpoint" {
		t.Errorf("resourceType = %v, want Endpoint", rt)
	}
	if s := result["status"]; s != "active" {
		t.Errorf("status = %v, want active", s)
	}
	if a := result["address"]; a != "https://lab.example.org/fhir" {
		t.Errorf("address = %v", a)
	}
	ct, ok := result["connectionType"].(fhir.Coding)
	if !ok || ct.Code != "hl7-fhir-rest" {
		t.Errorf("connectionType = %#v, want hl7-fhir-rest", result["connectionType"])
	}
}

func TestNewEndpoint_DefaultAddress(t *testing.T) {
	e := NewEndpoint("endpoint-1", "")
	if e.Address != DefaultAddress {
		t.Errorf("Address = %q, want %q", e.Address, DefaultAddress)
	}
	if e.Locator() != "Endpoint/endpoint-1" {
		t.Errorf("Locator() = %q", e.Locator())
	}
}
