package volc

import (
	"encoding/json"
	"strings"
)

// extractor pulls text out of the "result" member of a query answer.
type extractor func(result any) (string, bool)

// extractors are tried in order; the first non-empty text wins.
var extractors = []extractor{
	directText,
	utteranceText,
	listText,
}

// ExtractText returns the transcript carried by a query answer, or nil when
// the document holds no text in any known shape. It never fails: malformed
// input simply yields nil.
func ExtractText(raw []byte) *string {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return ExtractTextValue(doc)
}

// ExtractTextValue is ExtractText over an already decoded document.
func ExtractTextValue(doc any) *string {
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	result, ok := obj["result"]
	if !ok || result == nil {
		return nil
	}
	for _, extract := range extractors {
		if text, ok := extract(result); ok && text != "" {
			return &text
		}
	}
	return nil
}

// {"result": {"text": "..."}}
func directText(result any) (string, bool) {
	obj, ok := result.(map[string]any)
	if !ok {
		return "", false
	}
	return textOf(obj)
}

// {"result": {"utterances": [{"text": "..."}, ...]}}
func utteranceText(result any) (string, bool) {
	obj, ok := result.(map[string]any)
	if !ok {
		return "", false
	}
	utterances, ok := obj["utterances"].([]any)
	if !ok || len(utterances) == 0 {
		return "", false
	}
	return joinTexts(utterances), true
}

// {"result": [{"text": "..."}, ...]}: the first element's text, falling back
// to every element's text joined.
func listText(result any) (string, bool) {
	items, ok := result.([]any)
	if !ok || len(items) == 0 {
		return "", false
	}
	first, ok := items[0].(map[string]any)
	if !ok {
		return "", false
	}
	if text, ok := textOf(first); ok && text != "" {
		return text, true
	}
	return joinTexts(items), true
}

func textOf(obj map[string]any) (string, bool) {
	text, ok := obj["text"].(string)
	return text, ok
}

func joinTexts(items []any) string {
	var b strings.Builder
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			if text, ok := textOf(obj); ok {
				b.WriteString(text)
			}
		}
	}
	return b.String()
}
