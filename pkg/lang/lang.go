package lang

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Default is the language prompts ask the model to answer in.
var Default = language.BrazilianPortuguese

// Parse reads a BCP-47 tag, falling back to Default.
func Parse(s string) language.Tag {
	tag, err := language.Parse(strings.TrimSpace(s))
	if err != nil || tag == language.Und {
		return Default
	}
	return tag
}

// Name renders tag in English, e.g. "Brazilian Portuguese".
func Name(tag language.Tag) string {
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return tag.String()
}

// Directive is the closing instruction appended to every prompt.
func Directive(tag language.Tag) string {
	return "IMPORTANT: Always respond in " + Name(tag) + " (" + strings.ToLower(tag.String()) + "), without additional explanations."
}

// Detect returns the ISO 639-1 code of the language of text, or "" when
// the detector is not confident. Speaker labels are ignored.
func Detect(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = stripSpeaker(strings.TrimSpace(line))
	}
	body := strings.TrimSpace(strings.Join(lines, "\n"))
	if body == "" {
		return ""
	}

	info := whatlanggo.DetectWithOptions(body, whatlanggo.Options{})
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

// stripSpeaker drops a "Speaker A:" style prefix so labels do not skew
// detection.
func stripSpeaker(line string) string {
	if !strings.HasPrefix(line, "Speaker ") {
		return line
	}
	if i := strings.Index(line, ":"); i > 0 {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}
