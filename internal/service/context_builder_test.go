package service

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhir-dataset-forge/pkg/fhir"
)

func parseBundle(t *testing.T, raw string) *fhir.Bundle {
	t.Helper()
	var bundle fhir.Bundle
	require.NoError(t, json.Unmarshal([]byte(raw), &bundle))
	return &bundle
}

func fixedClockBuilder(year, month, day int) *ContextBuilder {
	b := NewContextBuilder(0, 0)
	b.now = func() time.Time {
		return time.Date(year, time.Month(month), day, 12, 0, 0, 0, time.UTC)
	}
	return b
}

const demoBundle = `{
	"entry": [
		{"resource": {"resourceType": "Patient", "id": "p1", "gender": "female",
			"birthDate": "1990-06-15",
			"name": [{"family": "Durand", "given": ["Marie"]}],
			"address": [{"city": "Lyon", "postalCode": "69001", "state": "Rhône"}],
			"maritalStatus": {"text": "Mariée"}}}
	]
}`

func TestBuildFullContext_Demographics(t *testing.T) {
	b := fixedClockBuilder(2024, 9, 1)

	got := b.BuildFullContext(parseBundle(t, demoBundle))

	assert.Contains(t, got, "## Informations Patient")
	assert.Contains(t, got, "- Nom: Marie Durand")
	assert.Contains(t, got, "- Sexe: Femme")
	assert.Contains(t, got, "- Âge: 34 ans (né(e) le 15/06/1990)")
	assert.Contains(t, got, "- Localisation: 69001 Lyon, Rhône")
	assert.Contains(t, got, "- Situation familiale: Mariée")
}

func TestBuildFullContext_AgeBeforeBirthday(t *testing.T) {
	// The day before the birthday the age must not have ticked yet.
	b := fixedClockBuilder(2024, 6, 14)
	got := b.BuildFullContext(parseBundle(t, demoBundle))
	assert.Contains(t, got, "- Âge: 33 ans")

	b = fixedClockBuilder(2024, 6, 15)
	got = b.BuildFullContext(parseBundle(t, demoBundle))
	assert.Contains(t, got, "- Âge: 34 ans")
}

func TestBuildFullContext_DeceasedPatientAge(t *testing.T) {
	raw := `{
		"entry": [
			{"resource": {"resourceType": "Patient", "id": "p1", "gender": "male",
				"birthDate": "1940-03-10",
				"deceasedDateTime": "2020-01-05T08:30:00Z"}}
		]
	}`

	b := fixedClockBuilder(2024, 9, 1)
	got := b.BuildFullContext(parseBundle(t, raw))

	// Age is computed against the date of death, not today.
	assert.Contains(t, got, "- Âge: 79 ans")
	assert.Contains(t, got, "- Décédé(e) le: 05/01/2020")
}

func TestBuildFullContext_Conditions(t *testing.T) {
	raw := `{
		"entry": [
			{"resource": {"resourceType": "Condition",
				"code": {"text": "Diabète de type 2"},
				"clinicalStatus": {"coding": [{"code": "active"}]},
				"onsetDateTime": "2018-03-01"}},
			{"resource": {"resourceType": "Condition",
				"code": {"text": "Pneumonie"},
				"clinicalStatus": {"coding": [{"code": "resolved"}]},
				"recordedDate": "2015-11-20"}},
			{"resource": {"resourceType": "Condition",
				"code": {"coding": []}}}
		]
	}`

	b := fixedClockBuilder(2024, 9, 1)
	got := b.BuildFullContext(parseBundle(t, raw))

	assert.Contains(t, got, "## Antécédents Médicaux")
	assert.Contains(t, got, "### Pathologies Actives")
	assert.Contains(t, got, "- Diabète de type 2 (depuis 01/03/2018)")
	assert.Contains(t, got, "### Antécédents Résolus")
	assert.Contains(t, got, "- Pneumonie (20/11/2015, résolu)")
}

func TestBuildFullContext_ObservationBudget(t *testing.T) {
	var entries []string
	for i := 0; i < 30; i++ {
		entries = append(entries, `{"resource": {"resourceType": "Observation",
			"category": [{"coding": [{"code": "laboratory"}]}],
			"code": {"text": "Glycémie"},
			"valueQuantity": {"value": 5.5, "unit": "mmol/L"}}}`)
	}
	raw := `{"entry": [` + strings.Join(entries, ",") + `]}`

	b := fixedClockBuilder(2024, 9, 1)
	got := b.BuildFullContext(parseBundle(t, raw))

	// A single category gets the whole default budget of 20.
	assert.Equal(t, 20, strings.Count(got, "- Glycémie"))
}

func TestBuildFullContext_EmptyBundle(t *testing.T) {
	b := fixedClockBuilder(2024, 9, 1)
	assert.Equal(t, "", b.BuildFullContext(&fhir.Bundle{}))
}

func TestBuildFullContext_Deterministic(t *testing.T) {
	raw := `{
		"entry": [
			{"resource": {"resourceType": "Patient", "id": "p1", "birthDate": "1975-01-01", "gender": "male"}},
			{"resource": {"resourceType": "Observation",
				"category": [{"coding": [{"code": "vital-signs"}]}],
				"code": {"text": "Tension artérielle"},
				"component": [
					{"code": {"text": "Systolique"}, "valueQuantity": {"value": 120, "unit": "mmHg"}},
					{"code": {"text": "Diastolique"}, "valueQuantity": {"value": 80, "unit": "mmHg"}}
				]}},
			{"resource": {"resourceType": "AllergyIntolerance", "type": "allergy",
				"category": ["medication"], "code": {"text": "Pénicilline"}}},
			{"resource": {"resourceType": "Immunization",
				"vaccineCode": {"text": "Vaccin grippe"}, "occurrenceDateTime": "2023-10-12"}}
		]
	}`

	b := fixedClockBuilder(2024, 9, 1)
	bundle := parseBundle(t, raw)

	first := b.BuildFullContext(bundle)
	second := b.BuildFullContext(bundle)
	assert.Equal(t, first, second)

	assert.Contains(t, first, "- Tension artérielle: Systolique: 120 mmHg; Diastolique: 80 mmHg")
	assert.Contains(t, first, "- Pénicilline (allergie, médicamenteuse)")
	assert.Contains(t, first, "- Vaccin grippe (12/10/2023)")
}

func TestBuildCompactContext(t *testing.T) {
	raw := `{
		"entry": [
			{"resource": {"resourceType": "Patient", "id": "p1", "gender": "male",
				"birthDate": "1960-02-20",
				"name": [{"family": "Petit", "given": ["Jean"]}]}},
			{"resource": {"resourceType": "Condition",
				"code": {"text": "Insuffisance cardiaque"},
				"clinicalStatus": {"coding": [{"code": "active"}]}}},
			{"resource": {"resourceType": "Condition",
				"code": {"text": "Fracture du poignet"},
				"clinicalStatus": {"coding": [{"code": "resolved"}]}}},
			{"resource": {"resourceType": "MedicationRequest", "status": "active",
				"medicationCodeableConcept": {"text": "Furosémide 40mg"}}},
			{"resource": {"resourceType": "MedicationRequest", "status": "stopped",
				"medicationCodeableConcept": {"text": "Aspirine"}}},
			{"resource": {"resourceType": "Observation",
				"category": [{"coding": [{"code": "vital-signs"}]}],
				"code": {"text": "Fréquence cardiaque"},
				"valueQuantity": {"value": 88, "unit": "bpm"}}}
		]
	}`

	b := fixedClockBuilder(2024, 9, 1)
	got := b.BuildCompactContext(parseBundle(t, raw))

	lines := strings.Split(got, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Patient: Jean Petit, H, 64ans", lines[0])
	assert.Equal(t, "Diagnostics actifs: Insuffisance cardiaque", lines[1])
	assert.Equal(t, "Traitements: Furosémide 40mg", lines[2])
	assert.Equal(t, "Constantes: Fréquence cardiaque: 88 bpm", lines[3])
}

func TestBuildCompactContext_UnnamedEntriesConsumeSlots(t *testing.T) {
	// Six active conditions where the third has no display name. Only the
	// first five are considered before empty names are dropped, so the
	// sixth never appears.
	raw := `{
		"entry": [
			{"resource": {"resourceType": "Condition", "code": {"text": "Diabète"},
				"clinicalStatus": {"coding": [{"code": "active"}]}}},
			{"resource": {"resourceType": "Condition", "code": {"text": "Hypertension"},
				"clinicalStatus": {"coding": [{"code": "active"}]}}},
			{"resource": {"resourceType": "Condition", "code": {},
				"clinicalStatus": {"coding": [{"code": "active"}]}}},
			{"resource": {"resourceType": "Condition", "code": {"text": "Asthme"},
				"clinicalStatus": {"coding": [{"code": "active"}]}}},
			{"resource": {"resourceType": "Condition", "code": {"text": "Arythmie"},
				"clinicalStatus": {"coding": [{"code": "active"}]}}},
			{"resource": {"resourceType": "Condition", "code": {"text": "Anémie"},
				"clinicalStatus": {"coding": [{"code": "active"}]}}},
			{"resource": {"resourceType": "MedicationRequest", "status": "active"}},
			{"resource": {"resourceType": "MedicationRequest", "status": "active",
				"medicationCodeableConcept": {"text": "Metformine 500mg"}}}
		]
	}`

	b := fixedClockBuilder(2024, 9, 1)
	got := b.BuildCompactContext(parseBundle(t, raw))

	assert.Contains(t, got, "Diagnostics actifs: Diabète, Hypertension, Asthme, Arythmie")
	assert.NotContains(t, got, "Anémie")
	assert.Contains(t, got, "Traitements: Metformine 500mg")
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "15/06/1990", formatDate("1990-06-15"))
	assert.Equal(t, "05/01/2020", formatDate("2020-01-05T08:30:00Z"))
	assert.Equal(t, "", formatDate(""))
	assert.Equal(t, "not-a-date", formatDate("not-a-date"))
	assert.Equal(t, "2020-13-45", formatDate("2020-13-45-xtrailing"))
}

func TestFormatObservationValue(t *testing.T) {
	quantity := 72.0
	obs := fhir.Observation{ValueQuantity: &fhir.Quantity{Value: &quantity, Unit: "bpm"}}
	assert.Equal(t, "72 bpm", formatObservationValue(obs))

	fractional := 5.456
	obs = fhir.Observation{ValueQuantity: &fhir.Quantity{Value: &fractional, Unit: "mmol/L"}}
	assert.Equal(t, "5.46 mmol/L", formatObservationValue(obs))

	obs = fhir.Observation{ValueCodeableConcept: &fhir.CodeableConcept{Text: "Positif"}}
	assert.Equal(t, "Positif", formatObservationValue(obs))

	s := "Texte libre"
	obs = fhir.Observation{ValueString: &s}
	assert.Equal(t, "Texte libre", formatObservationValue(obs))

	yes, no := true, false
	assert.Equal(t, "Oui", formatObservationValue(fhir.Observation{ValueBoolean: &yes}))
	assert.Equal(t, "Non", formatObservationValue(fhir.Observation{ValueBoolean: &no}))

	assert.Equal(t, "", formatObservationValue(fhir.Observation{}))
}
