package casegen

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Record is one decoded case object from a batch file.
type Record map[string]interface{}

// Label returns the patient name of the record for log lines, or "Unnamed".
func (r Record) Label() string {
	given, _ := r["patient_name"].(string)
	family, _ := r["patient_family_name"].(string)
	switch {
	case given == "" && family == "":
		return "Unnamed"
	case family == "":
		return given
	case given == "":
		return family
	}
	return given + " " + family
}

// CaseError reports a case that could not be generated. Index is 1-based.
type CaseError struct {
	Index int
	Label string
	Err   error
}

func (e *CaseError) Error() string {
	return fmt.Sprintf("case %d (%s): %v", e.Index, e.Label, e.Err)
}

func (e *CaseError) Unwrap() error { return e.Err }

// patientFields are the patient columns shared by every document type.
type patientFields struct {
	PatientName       string `mapstructure:"patient_name"`
	PatientFamilyName string `mapstructure:"patient_family_name"`
	PatientGender     string `mapstructure:"patient_gender"`
	PatientBirthDate  string `mapstructure:"patient_birthdate"`
	PatientAddress    string `mapstructure:"patient_address"`
	PatientCity       string `mapstructure:"patient_city"`
	PatientState      string `mapstructure:"patient_state"`
	PatientPostalCode string `mapstructure:"patient_postalcode"`
	PatientPhone      string `mapstructure:"patient_phone"`
}

// doctorFields are the practitioner columns shared by every document type.
type doctorFields struct {
	DoctorName       string `mapstructure:"doctor_name"`
	DoctorFamilyName string `mapstructure:"doctor_family_name"`
	DoctorGender     string `mapstructure:"doctor_gender"`
	DoctorAddress    string `mapstructure:"doctor_address"`
	DoctorCity       string `mapstructure:"doctor_city"`
	DoctorState      string `mapstructure:"doctor_state"`
	DoctorPostalCode string `mapstructure:"doctor_postalcode"`
	DoctorPhone      string `mapstructure:"doctor_phone"`
}

// messageFields name the sender and the output file of a case.
type messageFields struct {
	SourceName string `mapstructure:"source_name"`
	OutputDir  string `mapstructure:"output_dir"`
}

type appointmentCase struct {
	patientFields `mapstructure:",squash"`
	doctorFields  `mapstructure:",squash"`
	messageFields `mapstructure:",squash"`

	OrganizationName       string `mapstructure:"organization_name"`
	LocationName           string `mapstructure:"location_name"`
	LocationPhone          string `mapstructure:"location_phone"`
	LocationEmail          string `mapstructure:"location_email"`
	LocationAddress        string `mapstructure:"location_address"`
	LocationCity           string `mapstructure:"location_city"`
	LocationState          string `mapstructure:"location_state"`
	LocationPostalCode     string `mapstructure:"location_postalcode"`
	ScheduleDescription    string `mapstructure:"schedule_description"`
	SlotStartTime          string `mapstructure:"slot_start_time"`
	SlotEndTime            string `mapstructure:"slot_end_time"`
	SlotSpecialty          string `mapstructure:"slot_specialty"`
	AppointmentType        string `mapstructure:"appointment_type"`
	AppointmentTypeDesc    string `mapstructure:"appointment_type_desc"`
	AppointmentDescription string `mapstructure:"appointment_description"`
}

type examRequestCase struct {
	patientFields `mapstructure:",squash"`
	doctorFields  `mapstructure:",squash"`
	messageFields `mapstructure:",squash"`

	OrganizationName         string `mapstructure:"organization_name"`
	SpecimenIdentifier       string `mapstructure:"specimen_identifier"`
	SpecimenCode             string `mapstructure:"specimen_code"`
	SpecimenDescription      string `mapstructure:"specimen_description"`
	ConditionIdentifier      string `mapstructure:"condition_identifier"`
	Pathology                string `mapstructure:"pathology"`
	SubstanceCode            string `mapstructure:"substance_code"`
	SubstanceDescription     string `mapstructure:"substance_description"`
	AllergenReaction         string `mapstructure:"allergen_reaction"`
	ServiceRequestIdentifier string `mapstructure:"service_request_identifier"`
	ExamCode                 string `mapstructure:"exam_code"`
	ExamDescription          string `mapstructure:"exam_description"`
}

type observationRecord struct {
	EffectiveDateTime string  `mapstructure:"effectiveDateTime"`
	Value             float64 `mapstructure:"value"`
	Unit              string  `mapstructure:"unit"`
	Code              string  `mapstructure:"code"`
	Display           string  `mapstructure:"display"`
	ResultCode        string  `mapstructure:"result_code"`
	ResultDisplay     string  `mapstructure:"result_display"`
}

type examResultCase struct {
	patientFields `mapstructure:",squash"`
	doctorFields  `mapstructure:",squash"`
	messageFields `mapstructure:",squash"`

	OrganizationName           string              `mapstructure:"organization_name"`
	ServiceRequestIdentifier   string              `mapstructure:"service_request_identifier"`
	ExamCode                   string              `mapstructure:"exam_code"`
	ExamDescription            string              `mapstructure:"exam_description"`
	DiagnosticReportIdentifier string              `mapstructure:"diagnostic_report_identifier"`
	Observations               []observationRecord `mapstructure:"observations"`
}

type medicationRecord struct {
	MedicationCode        string  `mapstructure:"medication_code"`
	MedicationDescription string  `mapstructure:"medication_description"`
	AmountValue           float64 `mapstructure:"amount_value"`
	AmountUnit            string  `mapstructure:"amount_unit"`
	DenominatorValue      float64 `mapstructure:"denominator_value"`
	DenominatorUnit       string  `mapstructure:"denominator_unit"`
}

type prescriptionCase struct {
	patientFields `mapstructure:",squash"`
	doctorFields  `mapstructure:",squash"`
	messageFields `mapstructure:",squash"`

	DosageFrequency   float64            `mapstructure:"dosage_frequency"`
	DosagePeriod      float64            `mapstructure:"dosage_period"`
	DosageUnit        string             `mapstructure:"dosage_unit"`
	DosageMethod      string             `mapstructure:"dosage_method"`
	DosageDescription string             `mapstructure:"dosage_description"`
	CompositionDate   string             `mapstructure:"composition_date"`
	Medications       []medicationRecord `mapstructure:"medications"`
}

// ErrNotWholeNumber is returned for a count that has a fractional part.
var ErrNotWholeNumber = errors.New("value must be a whole number")

// wholeNumber converts a decoded count to int, rejecting fractions that
// mapstructure would otherwise truncate.
func wholeNumber(key string, v float64) (int, error) {
	if v != math.Trunc(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s: %w, got %v", key, ErrNotWholeNumber, v)
	}
	return int(v), nil
}

// MissingFieldsError lists the keys a case record lacks. Keys of list items
// are prefixed with the item path, e.g. "observations[0].unit".
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// unsetFields extracts the keys reported by mapstructure's ErrorUnset check.
func unsetFields(err error) []string {
	var merr *mapstructure.Error
	if !errors.As(err, &merr) {
		return nil
	}
	const marker = " has unset fields: "
	var fields []string
	for _, msg := range merr.Errors {
		idx := strings.Index(msg, marker)
		if idx < 0 {
			continue
		}
		parent := strings.Trim(msg[:idx], "'")
		for _, f := range strings.Split(msg[idx+len(marker):], ", ") {
			if parent != "" {
				f = parent + "." + f
			}
			fields = append(fields, f)
		}
	}
	return fields
}

// decodeRecord decodes r into out. Every tagged field must be present in the
// record with a non-null value; the error names the missing keys. Scalars are weakly typed so
// numeric phone numbers and postal codes decode into strings.
func decodeRecord(r Record, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnset:       true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("creating record decoder: %w", err)
	}
	if err := dec.Decode(withoutNulls(map[string]interface{}(r))); err != nil {
		if missing := unsetFields(err); len(missing) > 0 {
			return &MissingFieldsError{Fields: missing}
		}
		return fmt.Errorf("decoding case record: %w", err)
	}
	return nil
}

// withoutNulls copies m, dropping null values at any depth so that they count
// as unset.
func withoutNulls(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			continue
		case map[string]interface{}:
			out[k] = withoutNulls(val)
		case []interface{}:
			items := make([]interface{}, len(val))
			for i, item := range val {
				if obj, ok := item.(map[string]interface{}); ok {
					items[i] = withoutNulls(obj)
				} else {
					items[i] = item
				}
			}
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}
