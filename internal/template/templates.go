// Package template holds the use-case templates driving dataset generation.
// The registry is built once at startup and is read-only afterwards.
package template

import (
	"math/rand"

	"github.com/fhir-dataset-forge/internal/domain"
)

// UseCaseTemplate describes one training-data generation task: its pool of
// base instructions, the system prompt, and the prompt template used to
// generate the expected output. Instances are immutable.
type UseCaseTemplate struct {
	UseCase           string
	NameFR            string
	Description       string
	BaseInstructions  []string
	SystemPrompt      string
	OutputFormat      string
	LLMPromptTemplate string
}

// RandomInstruction picks one instruction uniformly from the pool. A nil rng
// falls back to the shared source.
func (t *UseCaseTemplate) RandomInstruction(rng *rand.Rand) string {
	if rng == nil {
		return t.BaseInstructions[rand.Intn(len(t.BaseInstructions))]
	}
	return t.BaseInstructions[rng.Intn(len(t.BaseInstructions))]
}

var clinicalSummary = &UseCaseTemplate{
	UseCase:     domain.UseCaseClinicalSummary,
	NameFR:      "Résumé Clinique",
	Description: "Générer un résumé médical structuré du dossier patient",
	BaseInstructions: []string{
		"Génère un résumé clinique complet pour ce patient.",
		"Rédige une synthèse médicale de ce dossier patient.",
		"Fais un compte-rendu médical détaillé de ce patient.",
		"Résume l'historique médical de ce patient de manière structurée.",
		"Établis un résumé clinique incluant antécédents, traitements et observations.",
		"Synthétise les informations médicales essentielles de ce patient.",
		"Produis un résumé médical complet et organisé pour ce dossier.",
		"Rédige une note de synthèse clinique pour ce patient.",
	},
	SystemPrompt: "Tu es un médecin expert en synthèse de dossiers médicaux. " +
		"Tu produis des résumés cliniques clairs, structurés et professionnels " +
		"en français médical. Tes résumés incluent les antécédents pertinents, " +
		"les diagnostics actuels, les traitements en cours et les observations " +
		"cliniques importantes.",
	OutputFormat: "Résumé structuré avec sections: Identité, Antécédents, Diagnostics actuels, Traitements, Observations récentes",
	LLMPromptTemplate: `Tu es un médecin expert. Génère un résumé clinique professionnel et structuré pour ce patient.

DONNÉES PATIENT:
{context}

CONSIGNES:
- Structure le résumé avec des sections claires
- Inclus: identité, antécédents, diagnostics actifs, traitements en cours, observations récentes
- Utilise un langage médical approprié
- Sois concis mais complet
- Ne fabrique pas d'informations non présentes dans les données

RÉSUMÉ CLINIQUE:`,
}

var diagnosisPrediction = &UseCaseTemplate{
	UseCase:     domain.UseCaseDiagnosisPrediction,
	NameFR:      "Prédiction Diagnostique",
	Description: "Analyser les symptômes et suggérer des diagnostics différentiels",
	BaseInstructions: []string{
		"Quels diagnostics sont les plus probables pour ce patient ?",
		"Analyse les données cliniques et propose des diagnostics différentiels.",
		"Quelles pathologies suspecter chez ce patient ?",
		"Établis une liste de diagnostics possibles basée sur ce dossier.",
		"Quels diagnostics envisager au vu de l'historique médical ?",
		"Propose une analyse diagnostique de ce cas clinique.",
		"Quelles sont les hypothèses diagnostiques pour ce patient ?",
		"Identifie les diagnostics probables à partir des données disponibles.",
	},
	SystemPrompt: "Tu es un médecin spécialiste en diagnostic médical. " +
		"Tu analyses les dossiers patients pour identifier les diagnostics " +
		"les plus probables, en te basant sur les antécédents, symptômes, " +
		"résultats d'examens et traitements. Tu fournis des diagnostics " +
		"différentiels argumentés.",
	OutputFormat: "Liste de diagnostics probables avec justification et niveau de confiance",
	LLMPromptTemplate: `Tu es un médecin diagnosticien expert. Analyse ce dossier patient et propose des diagnostics.

DONNÉES PATIENT:
{context}

CONSIGNES:
- Liste les diagnostics les plus probables
- Justifie chaque diagnostic avec les éléments du dossier
- Indique le niveau de probabilité (très probable, probable, à considérer)
- Mentionne les examens complémentaires éventuels
- Base-toi uniquement sur les données fournies

ANALYSE DIAGNOSTIQUE:`,
}

var medicalQA = &UseCaseTemplate{
	UseCase:     domain.UseCaseMedicalQA,
	NameFR:      "Questions-Réponses Médicales",
	Description: "Répondre à des questions spécifiques sur le dossier patient",
	BaseInstructions: []string{
		"Quels sont les antécédents cardiovasculaires du patient ?",
		"Quel est le dernier résultat de glycémie de ce patient ?",
		"Depuis quand le patient prend-il ce traitement ?",
		"Quelles allergies sont documentées pour ce patient ?",
		"Quel est l'historique des vaccinations du patient ?",
		"Quand a eu lieu la dernière consultation du patient ?",
		"Quels traitements le patient prend-il actuellement ?",
		"Y a-t-il des observations anormales récentes ?",
		"Quel est le profil tensionnel du patient ?",
		"Quelles procédures médicales le patient a-t-il subies ?",
	},
	SystemPrompt: "Tu es un assistant médical expert en extraction d'informations " +
		"de dossiers patients. Tu réponds aux questions de manière précise, " +
		"concise et factuelle, en te basant uniquement sur les données " +
		"disponibles dans le dossier.",
	OutputFormat: "Réponse factuelle et précise basée sur les données du dossier",
	LLMPromptTemplate: `Tu es un assistant médical. Réponds à la question en te basant sur le dossier patient.

QUESTION: {instruction}

DONNÉES PATIENT:
{context}

CONSIGNES:
- Réponds de manière précise et factuelle
- Cite les données pertinentes du dossier
- Si l'information n'est pas disponible, indique-le clairement
- Sois concis et direct

RÉPONSE:`,
}

var treatmentRecommendation = &UseCaseTemplate{
	UseCase:     domain.UseCaseTreatmentRecommendation,
	NameFR:      "Recommandation de Traitement",
	Description: "Suggérer des ajustements ou recommandations thérapeutiques",
	BaseInstructions: []string{
		"Quels traitements recommander pour ce patient ?",
		"Propose un plan de traitement adapté à ce profil.",
		"Quelles modifications thérapeutiques suggères-tu ?",
		"Recommande des ajustements de traitement pour ce patient.",
		"Quel plan thérapeutique serait approprié ?",
		"Suggère des interventions thérapeutiques adaptées.",
		"Quelles recommandations de prise en charge proposes-tu ?",
		"Établis un plan de soins pour ce patient.",
	},
	SystemPrompt: "Tu es un médecin expert en thérapeutique. Tu analyses les dossiers " +
		"patients pour proposer des recommandations de traitement appropriées, " +
		"en tenant compte des antécédents, interactions médicamenteuses, " +
		"et bonnes pratiques cliniques.",
	OutputFormat: "Recommandations thérapeutiques avec justification et précautions",
	LLMPromptTemplate: `Tu es un médecin expert en thérapeutique. Propose des recommandations de traitement.

DONNÉES PATIENT:
{context}

CONSIGNES:
- Propose des recommandations thérapeutiques adaptées au profil
- Justifie chaque recommandation
- Tiens compte des traitements actuels et des interactions possibles
- Mentionne les précautions et contre-indications
- Base-toi sur les données disponibles

RECOMMANDATIONS THÉRAPEUTIQUES:`,
}
