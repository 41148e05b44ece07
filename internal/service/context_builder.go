package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/fhir-dataset-forge/pkg/fhir"
)

// ContextBuilder renders a patient bundle into structured French text used as
// the model input during dataset generation. Output is deterministic for a
// given bundle and reference time.
type ContextBuilder struct {
	maxObservations     int
	maxItemsPerCategory int
	now                 func() time.Time
}

// NewContextBuilder creates a builder. Zero limits fall back to 20
// observations and 10 items per category.
func NewContextBuilder(maxObservations, maxItemsPerCategory int) *ContextBuilder {
	if maxObservations <= 0 {
		maxObservations = 20
	}
	if maxItemsPerCategory <= 0 {
		maxItemsPerCategory = 10
	}
	return &ContextBuilder{
		maxObservations:     maxObservations,
		maxItemsPerCategory: maxItemsPerCategory,
		now:                 time.Now,
	}
}

// BuildFullContext renders the complete patient record as markdown-like
// sections. Sections without content are omitted.
func (b *ContextBuilder) BuildFullContext(bundle *fhir.Bundle) string {
	set := fhir.GroupByType(bundle)

	var sections []string
	appendSection := func(s string) {
		if s != "" {
			sections = append(sections, s)
		}
	}

	if p := set.Patient(); p != nil {
		appendSection(b.buildDemographics(p))
	}
	if len(set.Conditions) > 0 {
		appendSection(b.buildConditions(set.Conditions))
	}
	if len(set.Observations) > 0 {
		appendSection(b.buildObservations(set.Observations))
	}
	if len(set.Medications) > 0 {
		appendSection(b.buildMedications(set.Medications))
	}
	if len(set.Allergies) > 0 {
		appendSection(b.buildAllergies(set.Allergies))
	}
	if len(set.Procedures) > 0 {
		appendSection(b.buildProcedures(set.Procedures))
	}
	if len(set.Encounters) > 0 {
		appendSection(b.buildEncounters(set.Encounters))
	}
	if len(set.Immunizations) > 0 {
		appendSection(b.buildImmunizations(set.Immunizations))
	}

	return strings.Join(sections, "\n\n")
}

// BuildCompactContext renders a short token-efficient summary: one
// demographics line, active diagnoses, active treatments and the latest
// vital signs.
func (b *ContextBuilder) BuildCompactContext(bundle *fhir.Bundle) string {
	set := fhir.GroupByType(bundle)

	var lines []string

	if p := set.Patient(); p != nil {
		name := ""
		if len(p.Name) > 0 {
			name = p.Name[0].Full()
		}

		gender := "?"
		switch p.Gender {
		case "male":
			gender = "H"
		case "female":
			gender = "F"
		}

		age := ""
		if p.BirthDate != "" {
			if birth, err := time.Parse("2006-01-02", p.BirthDate); err == nil {
				age = fmt.Sprintf("%dans", b.now().Year()-birth.Year())
			}
		}

		lines = append(lines, fmt.Sprintf("Patient: %s, %s, %s", name, gender, age))
	}

	var activeConds []string
	taken := 0
	for _, c := range set.Conditions {
		if c.ClinicalStatusCode() != "active" {
			continue
		}
		if taken == 5 {
			break
		}
		taken++
		if display := c.Code.Display(); display != "" {
			activeConds = append(activeConds, display)
		}
	}
	if len(activeConds) > 0 {
		lines = append(lines, "Diagnostics actifs: "+strings.Join(activeConds, ", "))
	}

	var activeMeds []string
	taken = 0
	for _, m := range set.Medications {
		if m.Status != "active" {
			continue
		}
		if taken == 5 {
			break
		}
		taken++
		if m.MedicationCodeableConcept == nil {
			continue
		}
		if display := m.MedicationCodeableConcept.Display(); display != "" {
			activeMeds = append(activeMeds, display)
		}
	}
	if len(activeMeds) > 0 {
		lines = append(lines, "Traitements: "+strings.Join(activeMeds, ", "))
	}

	var vitals []string
	seen := 0
	for _, o := range set.Observations {
		if !o.HasCategory("vital-signs") {
			continue
		}
		if seen == 3 {
			break
		}
		seen++
		name := o.Code.Display()
		value := formatObservationValue(o)
		if name != "" && value != "" {
			vitals = append(vitals, name+": "+value)
		}
	}
	if len(vitals) > 0 {
		lines = append(lines, "Constantes: "+strings.Join(vitals, "; "))
	}

	return strings.Join(lines, "\n")
}

func (b *ContextBuilder) buildDemographics(p *fhir.Patient) string {
	lines := []string{"## Informations Patient"}

	if len(p.Name) > 0 {
		lines = append(lines, strings.TrimSpace("- Nom: "+p.Name[0].Full()))
	}

	gender := map[string]string{"male": "Homme", "female": "Femme", "other": "Autre"}[p.Gender]
	if gender == "" {
		gender = p.Gender
	}
	if gender != "" {
		lines = append(lines, "- Sexe: "+gender)
	}

	var deceased time.Time
	deceasedKnown := false
	if p.DeceasedDateTime != "" {
		if dt, err := parseFHIRDate(p.DeceasedDateTime); err == nil {
			deceased = dt
			deceasedKnown = true
		}
	}

	if p.BirthDate != "" {
		if birth, err := time.Parse("2006-01-02", p.BirthDate); err == nil {
			// Aging stops at the date of death.
			ref := b.now()
			if deceasedKnown {
				ref = deceased
			}
			age := ref.Year() - birth.Year()
			if ref.Month() < birth.Month() || (ref.Month() == birth.Month() && ref.Day() < birth.Day()) {
				age--
			}
			lines = append(lines, fmt.Sprintf("- Âge: %d ans (né(e) le %s)", age, birth.Format("02/01/2006")))
		} else {
			lines = append(lines, "- Date de naissance: "+p.BirthDate)
		}
	}

	if p.DeceasedDateTime != "" {
		if deceasedKnown {
			lines = append(lines, "- Décédé(e) le: "+deceased.Format("02/01/2006"))
		} else {
			lines = append(lines, "- Décédé(e): "+p.DeceasedDateTime)
		}
	}

	if len(p.Address) > 0 {
		addr := p.Address[0]
		if addr.City != "" || addr.State != "" {
			location := strings.TrimSpace(addr.PostalCode + " " + addr.City)
			if addr.State != "" {
				location += ", " + addr.State
			}
			lines = append(lines, "- Localisation: "+location)
		}
	}

	if p.MaritalStatus != nil && p.MaritalStatus.Text != "" {
		lines = append(lines, "- Situation familiale: "+p.MaritalStatus.Text)
	}

	return strings.Join(lines, "\n")
}

func (b *ContextBuilder) buildConditions(conditions []fhir.Condition) string {
	lines := []string{"## Antécédents Médicaux"}

	type condEntry struct {
		name   string
		date   string
		status string
	}
	var active, others []condEntry

	for _, c := range conditions {
		display := c.Code.Display()
		if display == "" {
			continue
		}

		status := c.ClinicalStatusCode()
		date := formatDate(c.OnsetDate())

		if status == "active" {
			active = append(active, condEntry{name: display, date: date})
		} else {
			others = append(others, condEntry{name: display, date: date, status: status})
		}
	}

	if len(active) > 0 {
		lines = append(lines, "", "### Pathologies Actives")
		for _, e := range truncate(active, b.maxItemsPerCategory) {
			if e.date != "" {
				lines = append(lines, fmt.Sprintf("- %s (depuis %s)", e.name, e.date))
			} else {
				lines = append(lines, "- "+e.name)
			}
		}
	}

	if len(others) > 0 {
		lines = append(lines, "", "### Antécédents Résolus")
		statusFR := map[string]string{"resolved": "résolu", "inactive": "inactif", "remission": "en rémission"}
		for _, e := range truncate(others, b.maxItemsPerCategory) {
			status := statusFR[e.status]
			if status == "" {
				status = e.status
			}
			switch {
			case e.date != "" && status != "":
				lines = append(lines, fmt.Sprintf("- %s (%s, %s)", e.name, e.date, status))
			case e.date != "":
				lines = append(lines, fmt.Sprintf("- %s (%s)", e.name, e.date))
			case status != "":
				lines = append(lines, fmt.Sprintf("- %s (%s)", e.name, status))
			default:
				lines = append(lines, "- "+e.name)
			}
		}
	}

	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

// observationCategoryLabels maps FHIR category codes to French headings.
var observationCategoryLabels = map[string]string{
	"vital-signs":    "Signes Vitaux",
	"laboratory":     "Résultats de Laboratoire",
	"social-history": "Histoire Sociale",
	"survey":         "Questionnaires",
	"imaging":        "Imagerie",
	"autres":         "Autres Observations",
}

func (b *ContextBuilder) buildObservations(observations []fhir.Observation) string {
	lines := []string{"## Observations Cliniques"}

	type obsEntry struct {
		name  string
		value string
		date  string
	}
	byCategory := map[string][]obsEntry{}
	var categoryOrder []string

	for _, o := range observations {
		category := o.CategoryCode()
		if category == "" {
			category = "autres"
		}

		display := o.Code.Display()
		if display == "" {
			continue
		}

		if _, ok := byCategory[category]; !ok {
			categoryOrder = append(categoryOrder, category)
		}
		byCategory[category] = append(byCategory[category], obsEntry{
			name:  display,
			value: formatObservationValue(o),
			date:  formatDate(o.EffectiveDate()),
		})
	}

	if len(categoryOrder) == 0 {
		return ""
	}

	// Budget spread evenly over the categories present.
	perCategory := b.maxObservations / len(categoryOrder)

	for _, cat := range categoryOrder {
		label := observationCategoryLabels[cat]
		if label == "" {
			label = titleCase(strings.ReplaceAll(cat, "-", " "))
		}
		lines = append(lines, "", "### "+label)

		for _, e := range truncate(byCategory[cat], perCategory) {
			switch {
			case e.value != "" && e.date != "":
				lines = append(lines, fmt.Sprintf("- %s: %s (%s)", e.name, e.value, e.date))
			case e.value != "":
				lines = append(lines, fmt.Sprintf("- %s: %s", e.name, e.value))
			case e.date != "":
				lines = append(lines, fmt.Sprintf("- %s (%s)", e.name, e.date))
			default:
				lines = append(lines, "- "+e.name)
			}
		}
	}

	return strings.Join(lines, "\n")
}

func (b *ContextBuilder) buildMedications(medications []fhir.MedicationRequest) string {
	lines := []string{"## Traitements"}

	type medEntry struct {
		name   string
		date   string
		status string
	}
	var active, others []medEntry

	for _, m := range medications {
		if m.MedicationCodeableConcept == nil {
			continue
		}
		display := m.MedicationCodeableConcept.Display()
		if display == "" {
			continue
		}

		date := formatDate(m.AuthoredOn)

		if m.Status == "active" {
			active = append(active, medEntry{name: display, date: date})
		} else {
			others = append(others, medEntry{name: display, date: date, status: m.Status})
		}
	}

	if len(active) > 0 {
		lines = append(lines, "", "### Traitements En Cours")
		for _, e := range truncate(active, b.maxItemsPerCategory) {
			if e.date != "" {
				lines = append(lines, fmt.Sprintf("- %s (prescrit le %s)", e.name, e.date))
			} else {
				lines = append(lines, "- "+e.name)
			}
		}
	}

	if len(others) > 0 {
		lines = append(lines, "", "### Traitements Antérieurs")
		statusFR := map[string]string{"completed": "terminé", "stopped": "arrêté", "cancelled": "annulé"}
		for _, e := range truncate(others, b.maxItemsPerCategory) {
			status := statusFR[e.status]
			if status == "" {
				status = e.status
			}
			switch {
			case e.date != "" && status != "":
				lines = append(lines, fmt.Sprintf("- %s (%s, %s)", e.name, e.date, status))
			case e.date != "":
				lines = append(lines, fmt.Sprintf("- %s (%s)", e.name, e.date))
			case status != "":
				lines = append(lines, fmt.Sprintf("- %s (%s)", e.name, status))
			default:
				lines = append(lines, "- "+e.name)
			}
		}
	}

	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func (b *ContextBuilder) buildAllergies(allergies []fhir.AllergyIntolerance) string {
	lines := []string{"## Allergies et Intolérances"}

	typeFR := map[string]string{"allergy": "allergie", "intolerance": "intolérance"}
	catFR := map[string]string{"food": "alimentaire", "medication": "médicamenteuse", "environment": "environnementale"}

	for _, a := range truncate(allergies, b.maxItemsPerCategory) {
		display := a.Code.Display()
		if display == "" {
			continue
		}

		var info []string
		if t := typeFR[a.Type]; t != "" {
			info = append(info, t)
		}
		var cats []string
		for _, c := range a.Category {
			if fr := catFR[c]; fr != "" {
				cats = append(cats, fr)
			} else {
				cats = append(cats, c)
			}
		}
		if len(cats) > 0 {
			info = append(info, strings.Join(cats, ", "))
		}

		if len(info) > 0 {
			lines = append(lines, fmt.Sprintf("- %s (%s)", display, strings.Join(info, ", ")))
		} else {
			lines = append(lines, "- "+display)
		}
	}

	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func (b *ContextBuilder) buildProcedures(procedures []fhir.Procedure) string {
	lines := []string{"## Actes Médicaux et Procédures"}

	for _, p := range truncate(procedures, b.maxItemsPerCategory) {
		display := p.Code.Display()
		if display == "" {
			continue
		}

		if date := formatDate(p.PerformedDate()); date != "" {
			lines = append(lines, fmt.Sprintf("- %s (%s)", display, date))
		} else {
			lines = append(lines, "- "+display)
		}
	}

	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func (b *ContextBuilder) buildEncounters(encounters []fhir.Encounter) string {
	lines := []string{"## Consultations Récentes"}

	for _, e := range truncate(encounters, b.maxItemsPerCategory) {
		typeText := "Consultation"
		if len(e.Type) > 0 && e.Type[0].Text != "" {
			typeText = e.Type[0].Text
		}

		date := ""
		if e.Period != nil {
			date = formatDate(e.Period.Start)
		}

		provider := ""
		if e.ServiceProvider != nil {
			provider = e.ServiceProvider.Display
		}

		reason := ""
		if len(e.ReasonCode) > 0 && len(e.ReasonCode[0].Coding) > 0 {
			reason = e.ReasonCode[0].Coding[0].Display
		}

		parts := []string{typeText}
		if provider != "" {
			parts = append(parts, "à "+provider)
		}
		if reason != "" {
			parts = append(parts, "pour "+reason)
		}
		if date != "" {
			parts = append(parts, "("+date+")")
		}

		lines = append(lines, "- "+strings.Join(parts, " "))
	}

	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func (b *ContextBuilder) buildImmunizations(immunizations []fhir.Immunization) string {
	lines := []string{"## Vaccinations"}

	for _, i := range truncate(immunizations, b.maxItemsPerCategory) {
		display := i.VaccineCode.Display()
		if display == "" {
			continue
		}

		if date := formatDate(i.OccurrenceDateTime); date != "" {
			lines = append(lines, fmt.Sprintf("- %s (%s)", display, date))
		} else {
			lines = append(lines, "- "+display)
		}
	}

	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

// parseFHIRDate parses a FHIR date or dateTime string.
func parseFHIRDate(s string) (time.Time, error) {
	if strings.Contains(s, "T") {
		return time.Parse(time.RFC3339, s)
	}
	return time.Parse("2006-01-02", s)
}

// formatDate renders an ISO date as dd/mm/yyyy. Unparseable values keep
// their first ten characters so a malformed date still shows something.
func formatDate(s string) string {
	if s == "" {
		return ""
	}
	dt, err := parseFHIRDate(s)
	if err != nil {
		if len(s) >= 10 {
			return s[:10]
		}
		return s
	}
	return dt.Format("02/01/2006")
}

// formatObservationValue extracts an observation's value as display text,
// trying the quantity, coded, string and boolean variants in order, then
// falling back to composite components.
func formatObservationValue(o fhir.Observation) string {
	if o.ValueQuantity != nil && o.ValueQuantity.Value != nil {
		unit := o.ValueQuantity.Unit
		if unit == "" {
			unit = o.ValueQuantity.Code
		}
		return strings.TrimSpace(formatNumber(*o.ValueQuantity.Value) + " " + unit)
	}

	if o.ValueCodeableConcept != nil {
		return o.ValueCodeableConcept.Display()
	}

	if o.ValueString != nil {
		return *o.ValueString
	}

	if o.ValueBoolean != nil {
		if *o.ValueBoolean {
			return "Oui"
		}
		return "Non"
	}

	var parts []string
	for _, comp := range o.Component {
		name := comp.Code.Display()
		if comp.ValueQuantity == nil || comp.ValueQuantity.Value == nil {
			continue
		}
		parts = append(parts, strings.TrimSpace(
			name+": "+formatNumber(*comp.ValueQuantity.Value)+" "+comp.ValueQuantity.Unit))
	}
	if len(parts) > 0 {
		return strings.Join(parts, "; ")
	}

	return ""
}

// formatNumber renders whole values without a fraction and others rounded
// to two decimals.
func formatNumber(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// titleCase capitalizes the first letter of each word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// truncate returns at most n leading elements of s.
func truncate[T any](s []T, n int) []T {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s
	}
	return s[:n]
}
