package fhir

import (
	"encoding/json"
	"strings"
)

// Resource type discriminators as they appear on the wire.
const (
	TypePatient            = "Patient"
	TypeCondition          = "Condition"
	TypeObservation        = "Observation"
	TypeMedicationRequest  = "MedicationRequest"
	TypeAllergyIntolerance = "AllergyIntolerance"
	TypeProcedure          = "Procedure"
	TypeEncounter          = "Encounter"
	TypeImmunization       = "Immunization"
)

// ResourceSet holds a bundle's resources partitioned by type. Entries whose
// type is not modeled, or that fail to decode, are skipped; a bundle is a
// read-only input and a single malformed entry must not lose the rest.
type ResourceSet struct {
	Patients      []Patient
	Conditions    []Condition
	Observations  []Observation
	Medications   []MedicationRequest
	Allergies     []AllergyIntolerance
	Procedures    []Procedure
	Encounters    []Encounter
	Immunizations []Immunization
}

// Patient returns the bundle's identity resource, or nil when none is present.
func (s *ResourceSet) Patient() *Patient {
	if len(s.Patients) == 0 {
		return nil
	}
	return &s.Patients[0]
}

type typeProbe struct {
	ResourceType string `json:"resourceType"`
}

// GroupByType partitions a bundle's entries by resource type, preserving
// entry order within each type.
func GroupByType(bundle *Bundle) *ResourceSet {
	set := &ResourceSet{}
	if bundle == nil {
		return set
	}

	for _, entry := range bundle.Entry {
		if len(entry.Resource) == 0 {
			continue
		}

		var probe typeProbe
		if err := json.Unmarshal(entry.Resource, &probe); err != nil {
			continue
		}

		switch probe.ResourceType {
		case TypePatient:
			var r Patient
			if json.Unmarshal(entry.Resource, &r) == nil {
				set.Patients = append(set.Patients, r)
			}
		case TypeCondition:
			var r Condition
			if json.Unmarshal(entry.Resource, &r) == nil {
				set.Conditions = append(set.Conditions, r)
			}
		case TypeObservation:
			var r Observation
			if json.Unmarshal(entry.Resource, &r) == nil {
				set.Observations = append(set.Observations, r)
			}
		case TypeMedicationRequest:
			var r MedicationRequest
			if json.Unmarshal(entry.Resource, &r) == nil {
				set.Medications = append(set.Medications, r)
			}
		case TypeAllergyIntolerance:
			var r AllergyIntolerance
			if json.Unmarshal(entry.Resource, &r) == nil {
				set.Allergies = append(set.Allergies, r)
			}
		case TypeProcedure:
			var r Procedure
			if json.Unmarshal(entry.Resource, &r) == nil {
				set.Procedures = append(set.Procedures, r)
			}
		case TypeEncounter:
			var r Encounter
			if json.Unmarshal(entry.Resource, &r) == nil {
				set.Encounters = append(set.Encounters, r)
			}
		case TypeImmunization:
			var r Immunization
			if json.Unmarshal(entry.Resource, &r) == nil {
				set.Immunizations = append(set.Immunizations, r)
			}
		}
	}

	return set
}

// Display returns the concept's free text, falling back to the first
// coding's display label.
func (c CodeableConcept) Display() string {
	if c.Text != "" {
		return c.Text
	}
	if len(c.Coding) > 0 {
		return c.Coding[0].Display
	}
	return ""
}

// FirstCode returns the code of the first coding, or "".
func (c CodeableConcept) FirstCode() string {
	if len(c.Coding) > 0 {
		return c.Coding[0].Code
	}
	return ""
}

// Full returns the full name as "given... family", trimmed.
func (n HumanName) Full() string {
	given := strings.Join(n.Given, " ")
	return strings.TrimSpace(given + " " + n.Family)
}

// ClinicalStatusCode returns the condition's clinical status code
// ("active", "resolved", ...), or "" when absent.
func (c Condition) ClinicalStatusCode() string {
	if c.ClinicalStatus == nil {
		return ""
	}
	return c.ClinicalStatus.FirstCode()
}

// OnsetDate returns the onset date-time, falling back to the recorded date.
func (c Condition) OnsetDate() string {
	if c.OnsetDateTime != "" {
		return c.OnsetDateTime
	}
	return c.RecordedDate
}

// CategoryCode returns the observation's first category code, or "" when
// the observation carries no category.
func (o Observation) CategoryCode() string {
	if len(o.Category) == 0 {
		return ""
	}
	return o.Category[0].FirstCode()
}

// HasCategory reports whether any of the observation's categories carries
// the given code.
func (o Observation) HasCategory(code string) bool {
	for _, c := range o.Category {
		if c.FirstCode() == code {
			return true
		}
	}
	return false
}

// EffectiveDate returns the effective date-time, falling back to the
// issued timestamp.
func (o Observation) EffectiveDate() string {
	if o.EffectiveDateTime != "" {
		return o.EffectiveDateTime
	}
	return o.Issued
}

// PerformedDate returns the procedure's performed date-time, falling back
// to the start of the performed period.
func (p Procedure) PerformedDate() string {
	if p.PerformedDateTime != "" {
		return p.PerformedDateTime
	}
	if p.PerformedPeriod != nil {
		return p.PerformedPeriod.Start
	}
	return ""
}
