package render

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"

	"github.com/kpetrov/driplane/internal/domain"
)

func TestPlaceholder_Render(t *testing.T) {
	order := domain.Order{
		ID:      "ord-1",
		Payload: json.RawMessage(`{"recipient":"Anna","product_type":"song","age":7}`),
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{"no markers", "Hello there", "Hello there"},
		{"one marker", "A song for {{recipient}}!", "A song for Anna!"},
		{"repeated marker", "{{recipient}}, {{recipient}}", "Anna, Anna"},
		{"unknown marker kept", "Hi {{nickname}}", "Hi {{nickname}}"},
		{"non-string field kept", "Age {{age}}", "Age {{age}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Placeholder{}.Render(domain.MessageTemplate{Body: tt.body}, order)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlaceholder_NormalizesToNFC(t *testing.T) {
	// "Zoe" followed by a combining diaeresis, the decomposed spelling.
	decomposed := "Zoe\u0308"
	order := domain.Order{
		Payload: json.RawMessage(`{"recipient":"` + decomposed + `"}`),
	}

	got, err := Placeholder{}.Render(domain.MessageTemplate{Body: "For {{recipient}}"}, order)
	require.NoError(t, err)
	assert.Equal(t, "For "+norm.NFC.String(decomposed), got)
	assert.NotContains(t, got, "\u0308", "combining mark must be composed away")
}

func TestPlaceholder_MalformedPayload(t *testing.T) {
	order := domain.Order{Payload: json.RawMessage(`{"recipient":`)}

	_, err := Placeholder{}.Render(domain.MessageTemplate{Body: "Hi {{recipient}}"}, order)
	require.Error(t, err)

	// Without markers the payload is never touched.
	got, err := Placeholder{}.Render(domain.MessageTemplate{Body: "Hi"}, order)
	require.NoError(t, err)
	assert.Equal(t, "Hi", got)
}
