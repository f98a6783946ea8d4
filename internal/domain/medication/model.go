package medication

import (
	"github.com/ehr/fhirgen/internal/platform/fhir"
	"github.com/ehr/fhirgen/pkg/fhirmodels"
)

// Medication is a prescribed product with its strength.
type Medication struct {
	fhir.Base
	Code             string
	Description      string
	AmountValue      float64
	AmountUnit       string
	DenominatorValue float64
	DenominatorUnit  string
}

// NewMedication creates a Medication with a denominator of one.
func NewMedication(id string) *Medication {
	return &Medication{
		Base:             fhir.NewBase("Medication", id),
		DenominatorValue: 1,
	}
}

func (m *Medication) ToFHIR() map[string]interface{} {
	result := m.Base.ToFHIR()
	result["code"] = fhir.CodeableConcept{
		Coding: []fhir.Coding{{
			System:  fhirmodels.SystemMedicationCode,
			Code:    m.Code,
			Display: m.Description,
		}},
	}
	result["amount"] = fhir.Ratio{
		Numerator: &fhir.Quantity{
			Value:  m.AmountValue,
			Unit:   m.AmountUnit,
			System: fhirmodels.SystemSNOMED,
			Code:   m.Code,
		},
		Denominator: &fhir.Quantity{
			Value:  m.DenominatorValue,
			Unit:   m.DenominatorUnit,
			System: fhirmodels.SystemSNOMED,
			Code:   m.Code,
		},
	}
	return result
}

// Dosage defaults applied by NewMedicationRequest.
const (
	DefaultDosageFrequency = 1
	DefaultDosagePeriod    = 1
	DefaultDosageUnit      = "d"
	DefaultDosageMethod    = "Oral"
)

// RepeatTiming is how often a dose is taken.
type RepeatTiming struct {
	Frequency  int     `json:"frequency"`
	Period     float64 `json:"period"`
	PeriodUnit string  `json:"periodUnit"`
}

// Timing wraps the repeat rule.
type Timing struct {
	Repeat RepeatTiming `json:"repeat"`
}

// Dosage is one dosageInstruction of a MedicationRequest.
type Dosage struct {
	Text   string               `json:"text"`
	Timing Timing               `json:"timing"`
	Method fhir.CodeableConcept `json:"method"`
}

// MedicationRequest is the order for one or more Medications. Medications are
// embedded by value, so later changes to a Medication do not reach the
// request.
type MedicationRequest struct {
	fhir.Base
	Status            string
	Intent            string
	SubjectRef        string
	PerformerRef      string
	DosageFrequency   int
	DosagePeriod      float64
	DosageUnit        string
	DosageMethod      string
	DosageDescription string

	medications []map[string]interface{}
}

// NewMedicationRequest creates an active order with a once-daily oral dosage.
func NewMedicationRequest(id string) *MedicationRequest {
	return &MedicationRequest{
		Base:            fhir.NewBase("MedicationRequest", id),
		Status:          fhirmodels.RequestStatusActive,
		Intent:          fhirmodels.RequestIntentOrder,
		DosageFrequency: DefaultDosageFrequency,
		DosagePeriod:    DefaultDosagePeriod,
		DosageUnit:      DefaultDosageUnit,
		DosageMethod:    DefaultDosageMethod,
	}
}

// AddMedication renders med and appends the fragment to the request.
func (mr *MedicationRequest) AddMedication(med *Medication) *MedicationRequest {
	mr.medications = append(mr.medications, med.ToFHIR())
	return mr
}

// Medications returns deep copies of the embedded fragments.
func (mr *MedicationRequest) Medications() []map[string]interface{} {
	out := make([]map[string]interface{}, len(mr.medications))
	for i, m := range mr.medications {
		out[i] = fhir.CloneFragment(m)
	}
	return out
}

func (mr *MedicationRequest) ToFHIR() map[string]interface{} {
	result := mr.Base.ToFHIR()
	result["status"] = mr.Status
	result["intent"] = mr.Intent
	result["medication"] = mr.Medications()
	if ref := fhir.RefOrNil(mr.SubjectRef); ref != nil {
		result["subject"] = *ref
	}
	if ref := fhir.RefOrNil(mr.PerformerRef); ref != nil {
		result["performer"] = []fhir.Reference{*ref}
	}
	result["dosageInstruction"] = []Dosage{{
		Text: mr.DosageDescription,
		Timing: Timing{Repeat: RepeatTiming{
			Frequency:  mr.DosageFrequency,
			Period:     mr.DosagePeriod,
			PeriodUnit: mr.DosageUnit,
		}},
		Method: fhir.CodeableConcept{
			Coding: []fhir.Coding{{
				System:  fhirmodels.SystemSNOMED,
				Code:    "421661004",
				Display: mr.DosageMethod,
			}},
		},
	}}
	return result
}
