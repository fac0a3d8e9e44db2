// Package render produces final message content from a template and its
// order context.
//
// Real content management lives outside the engine; this package is the
// built-in renderer used when no richer one is plugged in. It does plain
// {{field}} substitution from the order payload.
package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/kpetrov/driplane/internal/domain"
)

// Renderer turns a template plus order context into the text to send.
type Renderer interface {
	Render(tmpl domain.MessageTemplate, order domain.Order) (string, error)
}

// Placeholder substitutes {{field}} markers in a template body with
// top-level string fields of the order's JSON payload.
//
// Substituted values are normalized to Unicode NFC first: payloads arrive
// from chat clients and web forms that disagree about composed versus
// decomposed accents, and a recipient name must render identically either
// way. Markers without a matching payload field are left intact so a
// content editor can spot them in the delivered message.
type Placeholder struct{}

// Render implements Renderer.
// Fails only when the order payload is present but not valid JSON.
func (Placeholder) Render(tmpl domain.MessageTemplate, order domain.Order) (string, error) {
	body := tmpl.Body
	if !strings.Contains(body, "{{") {
		return body, nil
	}

	fields := map[string]any{}
	if len(order.Payload) > 0 {
		if err := json.Unmarshal(order.Payload, &fields); err != nil {
			return "", fmt.Errorf("render template %d: parse order payload: %w", tmpl.ID, err)
		}
	}

	for key, value := range fields {
		text, ok := value.(string)
		if !ok {
			continue
		}
		marker := "{{" + key + "}}"
		body = strings.ReplaceAll(body, marker, norm.NFC.String(text))
	}

	return body, nil
}
