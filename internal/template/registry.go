package template

import "github.com/fhir-dataset-forge/internal/domain"

// registry maps use-case ids to their templates. Built once, never mutated.
var registry = map[string]*UseCaseTemplate{
	domain.UseCaseClinicalSummary:         clinicalSummary,
	domain.UseCaseDiagnosisPrediction:     diagnosisPrediction,
	domain.UseCaseMedicalQA:               medicalQA,
	domain.UseCaseTreatmentRecommendation: treatmentRecommendation,
}

// Get returns the template for a use-case id.
func Get(useCase string) (*UseCaseTemplate, error) {
	t, ok := registry[useCase]
	if !ok {
		return nil, &domain.UnknownUseCaseError{
			UseCase:   useCase,
			Available: domain.KnownUseCases,
		}
	}
	return t, nil
}

// All returns every registered template in display order.
func All() []*UseCaseTemplate {
	templates := make([]*UseCaseTemplate, 0, len(registry))
	for _, id := range domain.KnownUseCases {
		templates = append(templates, registry[id])
	}
	return templates
}

// Info describes one use case for configuration surfaces.
type Info struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// UseCaseInfo returns id, label and description for every registered use case.
func UseCaseInfo() []Info {
	infos := make([]Info, 0, len(registry))
	for _, t := range All() {
		infos = append(infos, Info{ID: t.UseCase, Label: t.NameFR, Description: t.Description})
	}
	return infos
}
