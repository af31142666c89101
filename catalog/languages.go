// Package catalog holds the fixed tables a submission is validated against: languages, release rights,
// media types with their upload policies, and the fallback content categories.
package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Language is the wire code of a content language.
type Language string

// Supported languages.
const (
	Telugu    Language = "telugu"
	English   Language = "english"
	Hindi     Language = "hindi"
	Tamil     Language = "tamil"
	Bengali   Language = "bengali"
	Marathi   Language = "marathi"
	Gujarati  Language = "gujarati"
	Kannada   Language = "kannada"
	Malayalam Language = "malayalam"
	Punjabi   Language = "punjabi"
	Odia      Language = "odia"
	Urdu      Language = "urdu"
	Assamese  Language = "assamese"
)

var languages = []Language{
	Telugu, English, Hindi, Tamil, Bengali, Marathi, Gujarati,
	Kannada, Malayalam, Punjabi, Odia, Urdu, Assamese,
}

var languageAliases = map[string]Language{
	"oriya":  Odia,
	"bangla": Bengali,
}

var languageBases = map[Language]string{
	Telugu:    "te",
	English:   "en",
	Hindi:     "hi",
	Tamil:     "ta",
	Bengali:   "bn",
	Marathi:   "mr",
	Gujarati:  "gu",
	Kannada:   "kn",
	Malayalam: "ml",
	Punjabi:   "pa",
	Odia:      "or",
	Urdu:      "ur",
	Assamese:  "as",
}

// Languages returns the supported languages in display order.
func Languages() []Language {
	return append([]Language(nil), languages...)
}

// ParseLanguage maps a display name ("Telugu", "TELUGU") or a BCP 47 tag ("te", "te-IN") to its wire code.
func ParseLanguage(input string) (Language, error) {
	name := strings.TrimSpace(input)
	if name == "" {
		return "", fmt.Errorf("language is required")
	}

	if lang, ok := lookupLanguage(name); ok {
		return lang, nil
	}

	if tag, err := language.Parse(name); err == nil {
		base, _ := tag.Base()
		for _, lang := range languages {
			if languageBases[lang] == base.String() {
				return lang, nil
			}
		}
	}

	return "", fmt.Errorf("language %q is not supported", input)
}

func lookupLanguage(name string) (Language, bool) {
	key := cases.Fold().String(name)
	for _, lang := range languages {
		if string(lang) == key {
			return lang, true
		}
	}
	lang, ok := languageAliases[key]
	return lang, ok
}

// Tag returns the BCP 47 tag of the language.
func (l Language) Tag() language.Tag {
	base, ok := languageBases[l]
	if !ok {
		return language.Und
	}
	return language.Make(base)
}

// DisplayName is the language's name in English, title cased.
func (l Language) DisplayName() string {
	return cases.Title(language.English).String(string(l))
}
