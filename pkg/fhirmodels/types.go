package fhirmodels

// Common FHIR value set constants used across the generator.

// EncounterStatus values per FHIR R4.
const (
	EncounterStatusPlanned        = "planned"
	EncounterStatusArrived        = "arrived"
	EncounterStatusTriaged        = "triaged"
	EncounterStatusInProgress     = "in-progress"
	EncounterStatusOnLeave        = "onleave"
	EncounterStatusFinished       = "finished"
	EncounterStatusCancelled      = "cancelled"
	EncounterStatusEnteredInError = "entered-in-error"
)

// ConditionClinicalStatus codes.
const (
	ConditionActive     = "active"
	ConditionRecurrence = "recurrence"
	ConditionRelapse    = "relapse"
	ConditionInactive   = "inactive"
	ConditionRemission  = "remission"
	ConditionResolved   = "resolved"
)

// Request status and intent codes shared by ServiceRequest and
// MedicationRequest.
const (
	RequestStatusActive    = "active"
	RequestStatusDraft     = "draft"
	RequestStatusCompleted = "completed"
	RequestIntentOrder     = "order"
	RequestIntentPlan      = "plan"
)

// Result status codes shared by Observation, DiagnosticReport and Composition.
const (
	ResultStatusPreliminary = "preliminary"
	ResultStatusFinal       = "final"
	ResultStatusAmended     = "amended"
)

// AdministrativeGender codes.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)

// Code systems and identifier systems that appear in generated messages.
const (
	SystemSNOMED            = "http://snomed.info/sct"
	SystemLOINC             = "http://loinc.org"
	SystemIdentifierType    = "http://terminology.hl7.org/CodeSystem/v2-0203"
	SystemAppointmentReason = "http://terminology.hl7.org/CodeSystem/v2-0276"
	SystemConnectionType    = "http://terminology.hl7.org/CodeSystem/endpoint-connection-type"
	SystemLocationFeature   = "http://hl7.org/fhir/location-characteristic"
	SystemServiceCategory   = "http://example.org/service-category"
	SystemPatientMRN        = "urn:oid:1.2.36.146.595.217.0.1"
	SystemDiagnosisIDs      = "http://hospital.smarthealthit.org/diagnosis-ids"
	SystemPlacerOrderIDs    = "http://hospital.smarthealthit.org/placer-order-ids"
	SystemCompositionIDs    = "http://hospital.smarthealthit.org/compose-ids"
	SystemPathologyType     = "http://snomed.info/pathologytype"
	SystemPathologyCode     = "http://snomed.info/pathologycode"
	SystemExamCode          = "http://snomed.info/exam-code"
	SystemSpecimenCode      = "http://snomed.info/specimen-code"
	SystemAllergenCode      = "http://snomed.info/allergen-code"
	SystemResultCode        = "http://result-code"
	SystemMedicationCode    = "http://medication-code"
)
