package export

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhir-dataset-forge/internal/domain"
)

func TestAlpacaFormat(t *testing.T) {
	record := AlpacaFormatter{}.Format(
		" Résume le dossier ", "contexte patient", " La synthèse. ", "ignored system")

	assert.Equal(t, Record{
		"instruction": "Résume le dossier",
		"input":       "contexte patient",
		"output":      "La synthèse.",
	}, record)
}

func TestShareGPTFormat(t *testing.T) {
	record := ShareGPTFormatter{}.Format(
		"Question", "Patient: X", "Réponse", "Tu es un expert.")

	conversations, ok := record["conversations"].([]map[string]string)
	require.True(t, ok)
	require.Len(t, conversations, 3)

	assert.Equal(t, "system", conversations[0]["from"])
	assert.Equal(t, "Tu es un expert.", conversations[0]["value"])
	assert.Equal(t, "human", conversations[1]["from"])
	assert.Equal(t, "Question\n\nPatient: X", conversations[1]["value"])
	assert.Equal(t, "gpt", conversations[2]["from"])
	assert.Equal(t, "Réponse", conversations[2]["value"])
}

func TestShareGPTFormat_NoSystemPrompt(t *testing.T) {
	record := ShareGPTFormatter{}.Format("Question", "", "Réponse", "")

	conversations := record["conversations"].([]map[string]string)
	require.Len(t, conversations, 2)
	assert.Equal(t, "human", conversations[0]["from"])
	assert.Equal(t, "Question", conversations[0]["value"])
}

func TestOpenAIFormat(t *testing.T) {
	record := OpenAIFormatter{}.Format("Question", "ctx", "Réponse", "Système.")

	messages, ok := record["messages"].([]map[string]string)
	require.True(t, ok)
	require.Len(t, messages, 3)

	assert.Equal(t, "system", messages[0]["role"])
	assert.Equal(t, "Système.", messages[0]["content"])
	assert.Equal(t, "user", messages[1]["role"])
	assert.Equal(t, "assistant", messages[2]["role"])
}

func TestOpenAIFormat_DefaultSystemPrompt(t *testing.T) {
	record := OpenAIFormatter{}.Format("Question", "", "Réponse", "")

	messages := record["messages"].([]map[string]string)
	assert.Equal(t, DefaultOpenAISystemPrompt, messages[0]["content"])
}

func TestChatMLFormat(t *testing.T) {
	record := ChatMLFormatter{}.Format("Question", "ctx", "Réponse", "Système.")

	text, ok := record["text"].(string)
	require.True(t, ok)

	assert.True(t, strings.HasPrefix(text, "<|im_start|>system\nSystème.<|im_end|>\n"))
	assert.Contains(t, text, "<|im_start|>user\nQuestion\n\nctx<|im_end|>\n")
	assert.True(t, strings.HasSuffix(text, "<|im_start|>assistant\nRéponse<|im_end|>"))
}

func TestEncodeJSONL(t *testing.T) {
	records := []Record{
		{"instruction": "A", "output": "résultat <b>"},
		{"instruction": "B", "output": "autre"},
	}

	out, err := EncodeJSONL(records)
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2, "one line per record, no trailing newline")

	// HTML and accented characters stay literal.
	assert.Contains(t, lines[0], "résultat <b>")

	for _, line := range lines {
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	}
}

func TestEncodeJSON(t *testing.T) {
	out, err := EncodeJSON([]Record{{"instruction": "A"}})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "[\n  {"))
	assert.False(t, strings.HasSuffix(out, "\n"))

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 1)
}

func TestNew(t *testing.T) {
	for _, format := range domain.KnownFormats {
		formatter, err := New(format)
		require.NoError(t, err, format)
		require.NotNil(t, formatter)
	}

	// Lookup is case-insensitive.
	formatter, err := New("ALPACA")
	require.NoError(t, err)
	assert.IsType(t, AlpacaFormatter{}, formatter)

	_, err = New("parquet")
	require.Error(t, err)
	var unsupported *domain.UnsupportedFormatError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "parquet", unsupported.Format)
}

func TestAvailableFormats(t *testing.T) {
	infos := AvailableFormats()
	require.Len(t, infos, len(domain.KnownFormats))

	assert.Equal(t, domain.FormatAlpaca, infos[0].ID)
	assert.Equal(t, "Alpaca (Stanford)", infos[0].Label)
	assert.NotEmpty(t, infos[0].Description)
}
