package admin

import (
	"github.com/ehr/fhirgen/internal/platform/fhir"
	"github.com/ehr/fhirgen/pkg/fhirmodels"
)

// Organization is the hospital or lab that owns the endpoint and performs
// orders.
type Organization struct {
	fhir.Base
	Name        string
	EndpointRef string
}

func NewOrganization(id string) *Organization {
	return &Organization{Base: fhir.NewBase("Organization", id)}
}

func (o *Organization) ToFHIR() map[string]interface{} {
	result := o.Base.ToFHIR()
	result["name"] = o.Name
	if ref := fhir.RefOrNil(o.EndpointRef); ref != nil {
		result["endpoint"] = *ref
	}
	return result
}

// Position is a WGS84 geocoordinate.
type Position struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Altitude  float64 `json:"altitude"`
}

// LocationDefaults carries the values a Location uses when the case record
// does not provide them.
type LocationDefaults struct {
	Position             Position
	ManagingOrganization string
}

// DefaultLocationDefaults returns the Ann Arbor sample coordinates and the
// example organization placeholder.
func DefaultLocationDefaults() LocationDefaults {
	return LocationDefaults{
		Position: Position{
			Longitude: -83.6945691,
			Latitude:  42.25475478,
			Altitude:  0,
		},
		ManagingOrganization: "Organization/example",
	}
}

// Location is the place where an appointment happens.
type Location struct {
	fhir.Base
	Name        string
	Phone       string
	Email       string
	AddressLine string
	City        string
	State       string
	PostalCode  string
	Position    Position

	organizationRef string
	defaultOrgRef   string
}

func NewLocation(id string, defaults LocationDefaults) *Location {
	return &Location{
		Base:          fhir.NewBase("Location", id),
		Position:      defaults.Position,
		defaultOrgRef: defaults.ManagingOrganization,
	}
}

// SetOrganization wires the managing organization.
func (l *Location) SetOrganization(locator string) *Location {
	l.organizationRef = locator
	return l
}

// ManagingOrganization returns the wired organization, or the configured
// placeholder when none has been set.
func (l *Location) ManagingOrganization() string {
	if l.organizationRef != "" {
		return l.organizationRef
	}
	return l.defaultOrgRef
}

func (l *Location) ToFHIR() map[string]interface{} {
	result := l.Base.ToFHIR()
	result["active"] = "true"
	result["name"] = l.Name
	result["telecom"] = []fhir.ContactPoint{
		{System: "phone", Value: l.Phone, Use: "work"},
		{System: "email", Value: l.Email, Use: "work"},
	}
	result["address"] = []fhir.Address{
		fhir.NewHomeAddress(l.AddressLine, l.City, l.State, l.PostalCode),
	}
	result["position"] = l.Position
	if ref := fhir.RefOrNil(l.ManagingOrganization()); ref != nil {
		result["managingOrganization"] = *ref
	}
	result["characteristic"] = []fhir.CodeableConcept{{
		Coding: []fhir.Coding{{
			System:  fhirmodels.SystemLocationFeature,
			Code:    "wheelchair",
			Display: "Wheelchair accessible",
		}},
	}}
	return result
}
