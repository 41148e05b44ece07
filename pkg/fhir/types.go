// Package fhir provides a read-only model of FHIR R4 patient bundles as
// produced by the synthetic patient generator. Only the resource types and
// fields consumed by the dataset pipeline are modeled; everything else in a
// bundle is carried as raw JSON and ignored.
package fhir

import "encoding/json"

// Bundle is a patient's full collection of medical resource records.
type Bundle struct {
	ResourceType string        `json:"resourceType,omitempty"`
	Type         string        `json:"type,omitempty"`
	Entry        []BundleEntry `json:"entry"`
}

// BundleEntry wraps one resource inside a bundle. The resource payload is
// kept raw until grouping decodes it into its typed form.
type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource"`
}

// Coding is one (system, code, display) triple of a coded concept.
type Coding struct {
	System  string `json:"system,omitempty"`
	Version string `json:"version,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept is free text plus a list of codings.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Quantity is a measured value with its unit.
type Quantity struct {
	Value      *float64 `json:"value,omitempty"`
	Comparator string   `json:"comparator,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	System     string   `json:"system,omitempty"`
	Code       string   `json:"code,omitempty"`
}

// Period is a start/end pair of ISO-8601 date-times.
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// HumanName is a patient or practitioner name.
type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Prefix []string `json:"prefix,omitempty"`
}

// Address is a postal address.
type Address struct {
	Use        string   `json:"use,omitempty"`
	Line       []string `json:"line,omitempty"`
	City       string   `json:"city,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Country    string   `json:"country,omitempty"`
}

// Reference points at another resource.
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

// Patient carries the demographic fields of a Patient resource.
type Patient struct {
	ID               string           `json:"id,omitempty"`
	Name             []HumanName      `json:"name,omitempty"`
	Gender           string           `json:"gender,omitempty"`
	BirthDate        string           `json:"birthDate,omitempty"`
	DeceasedDateTime string           `json:"deceasedDateTime,omitempty"`
	Address          []Address        `json:"address,omitempty"`
	MaritalStatus    *CodeableConcept `json:"maritalStatus,omitempty"`
}

// Condition is a diagnosis entry.
type Condition struct {
	ID             string           `json:"id,omitempty"`
	ClinicalStatus *CodeableConcept `json:"clinicalStatus,omitempty"`
	Code           CodeableConcept  `json:"code,omitempty"`
	OnsetDateTime  string           `json:"onsetDateTime,omitempty"`
	RecordedDate   string           `json:"recordedDate,omitempty"`
}

// ObservationComponent is one sub-value of a composite observation,
// e.g. the systolic half of a blood pressure reading.
type ObservationComponent struct {
	Code          CodeableConcept `json:"code,omitempty"`
	ValueQuantity *Quantity       `json:"valueQuantity,omitempty"`
}

// Observation is a clinical measurement or finding.
type Observation struct {
	ID                   string                 `json:"id,omitempty"`
	Category             []CodeableConcept      `json:"category,omitempty"`
	Code                 CodeableConcept        `json:"code,omitempty"`
	EffectiveDateTime    string                 `json:"effectiveDateTime,omitempty"`
	Issued               string                 `json:"issued,omitempty"`
	ValueQuantity        *Quantity              `json:"valueQuantity,omitempty"`
	ValueCodeableConcept *CodeableConcept       `json:"valueCodeableConcept,omitempty"`
	ValueString          *string                `json:"valueString,omitempty"`
	ValueBoolean         *bool                  `json:"valueBoolean,omitempty"`
	Component            []ObservationComponent `json:"component,omitempty"`
}

// MedicationRequest is a prescription entry.
type MedicationRequest struct {
	ID                        string           `json:"id,omitempty"`
	Status                    string           `json:"status,omitempty"`
	MedicationCodeableConcept *CodeableConcept `json:"medicationCodeableConcept,omitempty"`
	AuthoredOn                string           `json:"authoredOn,omitempty"`
}

// AllergyIntolerance is an allergy or intolerance record.
type AllergyIntolerance struct {
	ID       string          `json:"id,omitempty"`
	Type     string          `json:"type,omitempty"`
	Category []string        `json:"category,omitempty"`
	Code     CodeableConcept `json:"code,omitempty"`
}

// Procedure is a performed medical act.
type Procedure struct {
	ID                string          `json:"id,omitempty"`
	Code              CodeableConcept `json:"code,omitempty"`
	PerformedDateTime string          `json:"performedDateTime,omitempty"`
	PerformedPeriod   *Period         `json:"performedPeriod,omitempty"`
}

// Encounter is a consultation or hospital visit.
type Encounter struct {
	ID              string            `json:"id,omitempty"`
	Type            []CodeableConcept `json:"type,omitempty"`
	Period          *Period           `json:"period,omitempty"`
	ServiceProvider *Reference        `json:"serviceProvider,omitempty"`
	ReasonCode      []CodeableConcept `json:"reasonCode,omitempty"`
}

// Immunization is a vaccination record.
type Immunization struct {
	ID                 string          `json:"id,omitempty"`
	VaccineCode        CodeableConcept `json:"vaccineCode,omitempty"`
	OccurrenceDateTime string          `json:"occurrenceDateTime,omitempty"`
}
