// Package export renders generated examples into wire-level training-record
// shapes (Alpaca, ShareGPT, OpenAI fine-tuning, ChatML) and serializes them
// to JSONL or pretty JSON. All formatters are pure mappings.
package export

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/fhir-dataset-forge/internal/domain"
)

// Record is one formatted training record.
type Record map[string]interface{}

// Formatter converts a generated (instruction, context, output) triple into
// one training-record shape. A systemPrompt of "" means none was supplied.
type Formatter interface {
	Format(instruction, inputContext, output, systemPrompt string) Record
	FormatBatch(records []Record) (string, error)
}

// AlpacaFormatter emits the Stanford Alpaca shape:
// {"instruction": ..., "input": ..., "output": ...}.
// The system prompt is ignored; the format has no system-message concept.
type AlpacaFormatter struct{}

func (AlpacaFormatter) Format(instruction, inputContext, output, systemPrompt string) Record {
	return Record{
		"instruction": strings.TrimSpace(instruction),
		"input":       strings.TrimSpace(inputContext),
		"output":      strings.TrimSpace(output),
	}
}

func (AlpacaFormatter) FormatBatch(records []Record) (string, error) {
	return EncodeJSONL(records)
}

// ShareGPTFormatter emits {"conversations": [{"from": ..., "value": ...}]},
// with a leading system turn only when a system prompt is supplied.
type ShareGPTFormatter struct{}

func (ShareGPTFormatter) Format(instruction, inputContext, output, systemPrompt string) Record {
	var conversations []map[string]string

	if systemPrompt != "" {
		conversations = append(conversations, map[string]string{
			"from":  "system",
			"value": strings.TrimSpace(systemPrompt),
		})
	}

	conversations = append(conversations, map[string]string{
		"from":  "human",
		"value": joinUserMessage(instruction, inputContext),
	})
	conversations = append(conversations, map[string]string{
		"from":  "gpt",
		"value": strings.TrimSpace(output),
	})

	return Record{"conversations": conversations}
}

func (ShareGPTFormatter) FormatBatch(records []Record) (string, error) {
	return EncodeJSONL(records)
}

// OpenAIFormatter emits the OpenAI fine-tuning chat shape:
// {"messages": [{"role": ..., "content": ...}]}. A system message is always
// present, defaulting when none is supplied.
type OpenAIFormatter struct{}

// DefaultOpenAISystemPrompt is used when no template system prompt is given.
const DefaultOpenAISystemPrompt = "Tu es un assistant médical expert. Tu analyses les dossiers patients " +
	"et fournis des informations médicales précises et pertinentes. " +
	"Réponds de manière professionnelle et structurée."

func (OpenAIFormatter) Format(instruction, inputContext, output, systemPrompt string) Record {
	system := systemPrompt
	if system == "" {
		system = DefaultOpenAISystemPrompt
	}

	messages := []map[string]string{
		{"role": "system", "content": strings.TrimSpace(system)},
		{"role": "user", "content": joinUserMessage(instruction, inputContext)},
		{"role": "assistant", "content": strings.TrimSpace(output)},
	}

	return Record{"messages": messages}
}

func (OpenAIFormatter) FormatBatch(records []Record) (string, error) {
	return EncodeJSONL(records)
}

// ChatMLFormatter emits a single {"text": ...} field holding the
// delimiter-tagged transcript used by ChatML-template models.
type ChatMLFormatter struct{}

// DefaultChatMLSystemPrompt is used when no template system prompt is given.
const DefaultChatMLSystemPrompt = "Tu es un assistant médical expert spécialisé dans l'analyse " +
	"de dossiers patients et la synthèse d'informations médicales."

func (ChatMLFormatter) Format(instruction, inputContext, output, systemPrompt string) Record {
	system := systemPrompt
	if system == "" {
		system = DefaultChatMLSystemPrompt
	}

	text := "<|im_start|>system\n" + strings.TrimSpace(system) + "<|im_end|>\n" +
		"<|im_start|>user\n" + joinUserMessage(instruction, inputContext) + "<|im_end|>\n" +
		"<|im_start|>assistant\n" + strings.TrimSpace(output) + "<|im_end|>"

	return Record{"text": text}
}

func (ChatMLFormatter) FormatBatch(records []Record) (string, error) {
	return EncodeJSONL(records)
}

// joinUserMessage combines instruction and context into one user turn,
// separated by a blank line when context is non-empty.
func joinUserMessage(instruction, inputContext string) string {
	msg := strings.TrimSpace(instruction)
	if ctx := strings.TrimSpace(inputContext); ctx != "" {
		msg += "\n\n" + ctx
	}
	return msg
}

// EncodeJSONL serializes records as newline-delimited JSON. Non-ASCII
// characters are emitted as-is; the datasets are French text.
func EncodeJSONL(records []Record) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, record := range records {
		if err := enc.Encode(record); err != nil {
			return "", err
		}
		// Encode appends a newline; keep it only between records.
		if i == len(records)-1 {
			buf.Truncate(buf.Len() - 1)
		}
	}

	return buf.String(), nil
}

// EncodeJSON serializes records as a pretty-printed JSON array with 2-space
// indentation.
func EncodeJSON(records []Record) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(records); err != nil {
		return "", err
	}

	return strings.TrimRight(buf.String(), "\n"), nil
}

// Labels and descriptions for configuration surfaces.
var (
	formatLabels = map[string]string{
		domain.FormatAlpaca:   "Alpaca (Stanford)",
		domain.FormatShareGPT: "ShareGPT",
		domain.FormatOpenAI:   "OpenAI Fine-tuning",
		domain.FormatChatML:   "ChatML",
	}

	formatDescriptions = map[string]string{
		domain.FormatAlpaca:   "Format simple avec instruction/input/output. Compatible avec LLaMA, Mistral, etc.",
		domain.FormatShareGPT: "Format conversationnel multi-tours. Idéal pour les chatbots.",
		domain.FormatOpenAI:   "Format officiel OpenAI pour le fine-tuning de GPT-3.5/4.",
		domain.FormatChatML:   "Format ChatML pour les modèles utilisant ce template.",
	}
)

// New returns the formatter registered under the given format id.
func New(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case domain.FormatAlpaca:
		return AlpacaFormatter{}, nil
	case domain.FormatShareGPT:
		return ShareGPTFormatter{}, nil
	case domain.FormatOpenAI:
		return OpenAIFormatter{}, nil
	case domain.FormatChatML:
		return ChatMLFormatter{}, nil
	default:
		return nil, &domain.UnsupportedFormatError{
			Format:    format,
			Available: domain.KnownFormats,
		}
	}
}

// FormatInfo describes one output format for configuration surfaces.
type FormatInfo struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// AvailableFormats returns every registered format with label and description.
func AvailableFormats() []FormatInfo {
	infos := make([]FormatInfo, 0, len(domain.KnownFormats))
	for _, id := range domain.KnownFormats {
		infos = append(infos, FormatInfo{
			ID:          id,
			Label:       formatLabels[id],
			Description: formatDescriptions[id],
		})
	}
	return infos
}
