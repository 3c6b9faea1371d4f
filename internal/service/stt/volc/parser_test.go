package volc

import "testing"

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *string
	}{
		{"direct text", `{"result":{"text":"hello"}}`, strptr("hello")},
		{"utterances joined", `{"result":{"utterances":[{"text":"he"},{"text":"llo"}]}}`, strptr("hello")},
		{"direct text wins over utterances", `{"result":{"text":"full","utterances":[{"text":"part"}]}}`, strptr("full")},
		{"empty text falls through to utterances", `{"result":{"text":"","utterances":[{"text":"a"},{"text":"b"}]}}`, strptr("ab")},
		{"list first element", `{"result":[{"text":"hi"},{"text":" there"}]}`, strptr("hi")},
		{"list first empty joins all", `{"result":[{"text":""},{"text":"a"},{"text":"b"}]}`, strptr("ab")},
		{"list first missing text joins all", `{"result":[{"id":1},{"text":"x"}]}`, strptr("x")},
		{"utterances skip non-objects", `{"result":{"utterances":["junk",{"text":"ok"},{"text":5}]}}`, strptr("ok")},
		{"empty result object", `{"result":{}}`, nil},
		{"missing result", `{"audio_info":{"duration":1200}}`, nil},
		{"null result", `{"result":null}`, nil},
		{"empty list", `{"result":[]}`, nil},
		{"list of scalars", `{"result":["hi"]}`, nil},
		{"text wrong type", `{"result":{"text":42}}`, nil},
		{"utterances wrong type", `{"result":{"utterances":"hello"}}`, nil},
		{"result is string", `{"result":"hello"}`, nil},
		{"document is array", `[{"result":{"text":"hi"}}]`, nil},
		{"malformed json", `{"result":`, nil},
		{"empty body", ``, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractText([]byte(tt.raw))
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("expected nil, got %q", *got)
			case tt.want != nil && got == nil:
				t.Errorf("expected %q, got nil", *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("expected %q, got %q", *tt.want, *got)
			}
		})
	}
}

func strptr(s string) *string { return &s }
