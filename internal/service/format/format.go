// Package format maps caller-supplied language and audio-format hints onto the
// canonical values the object store and the speech service expect.
package format

import (
	"strings"

	"ai-voice-transcription-service/internal/apperror"
)

// Format is an audio container/encoding name as sent to the speech service.
type Format string

const (
	WebM Format = "webm"
	OGG  Format = "ogg"
	Opus Format = "opus"
	WAV  Format = "wav"
	MP3  Format = "mp3"
	Raw  Format = "raw"
)

// Codec is the audio codec declared alongside the format.
type Codec string

const (
	CodecOpus Codec = "opus"
	CodecRaw  Codec = "raw"
)

// Canonical language tags.
const (
	LanguageChinese = "zh-CN"
	LanguageEnglish = "en-US"
)

// Fixed capture parameters of the recorder clients.
const (
	SampleRateHz  = 16000
	BitsPerSample = 16
	Channels      = 1
)

var known = map[Format]bool{WebM: true, OGG: true, Opus: true, WAV: true, MP3: true, Raw: true}

// Parse validates a caller-supplied format name.
func Parse(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if !known[f] {
		return "", apperror.Invalid("fmt", "unsupported audio format "+`"`+s+`"`)
	}
	return f, nil
}

// ResolveCodec returns opus for the ogg/webm/opus family and raw otherwise.
func ResolveCodec(f Format) Codec {
	switch f {
	case OGG, WebM, Opus:
		return CodecOpus
	default:
		return CodecRaw
	}
}

// ContentType is the MIME type stored with an uploaded object.
func ContentType(f Format) string {
	switch f {
	case WebM:
		return "audio/webm"
	case OGG, Opus:
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

// AudioSpec describes the uploaded clip to the speech service.
type AudioSpec struct {
	Format        Format
	Codec         Codec
	SampleRateHz  int
	BitsPerSample int
	Channels      int
}

// SpecFor builds the AudioSpec for a format; codec always follows ResolveCodec.
func SpecFor(f Format) AudioSpec {
	return AudioSpec{
		Format:        f,
		Codec:         ResolveCodec(f),
		SampleRateHz:  SampleRateHz,
		BitsPerSample: BitsPerSample,
		Channels:      Channels,
	}
}

// Negotiator applies the configured defaults.
type Negotiator struct {
	defaultLanguage string
	defaultFormat   Format
}

// NewNegotiator falls back to zh-CN and webm when defaults are empty or invalid.
func NewNegotiator(defaultLanguage, defaultFormat string) *Negotiator {
	if defaultLanguage == "" {
		defaultLanguage = LanguageChinese
	}
	f, err := Parse(defaultFormat)
	if err != nil {
		f = WebM
	}
	return &Negotiator{defaultLanguage: defaultLanguage, defaultFormat: f}
}

// DefaultLanguage returns the configured fallback language tag.
func (n *Negotiator) DefaultLanguage() string { return n.defaultLanguage }

// NormalizeLanguage matches on the two-letter prefix; anything it does not
// recognize becomes the configured default, never the raw input.
func (n *Negotiator) NormalizeLanguage(input string) string {
	l := strings.ToLower(strings.TrimSpace(input))
	switch {
	case l == "":
		return n.defaultLanguage
	case strings.HasPrefix(l, "zh"):
		return LanguageChinese
	case strings.HasPrefix(l, "en"):
		return LanguageEnglish
	default:
		return n.defaultLanguage
	}
}

// ResolveFormat parses input, using the default format when input is empty.
func (n *Negotiator) ResolveFormat(input string) (Format, error) {
	if strings.TrimSpace(input) == "" {
		return n.defaultFormat, nil
	}
	return Parse(input)
}
