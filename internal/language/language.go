package language

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

const (
	Default       = "tr"
	defaultLocale = "tr-TR"
)

type Language struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Locale string `json:"locale"`
}

var supported = []Language{
	{Code: "tr", Name: "Türkçe", Locale: "tr-TR"},
	{Code: "en", Name: "English", Locale: "en-US"},
	{Code: "es", Name: "Español", Locale: "es-ES"},
	{Code: "fr", Name: "Français", Locale: "fr-FR"},
	{Code: "de", Name: "Deutsch", Locale: "de-DE"},
	{Code: "it", Name: "Italiano", Locale: "it-IT"},
	{Code: "pt", Name: "Português", Locale: "pt-BR"},
	{Code: "ru", Name: "Русский", Locale: "ru-RU"},
	{Code: "ja", Name: "日本語", Locale: "ja-JP"},
	{Code: "ko", Name: "한국어", Locale: "ko-KR"},
	{Code: "zh", Name: "中文", Locale: "zh-CN"},
	{Code: "ar", Name: "العربية", Locale: "ar-SA"},
}

func Supported() []Language {
	out := make([]Language, len(supported))
	copy(out, supported)
	return out
}

func Lookup(code string) (Language, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, l := range supported {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

func Valid(code string) bool {
	_, ok := Lookup(code)
	return ok
}

// Locale maps a language code to the recognition locale. Unknown codes get the
// default locale.
func Locale(code string) string {
	if l, ok := Lookup(code); ok {
		return l.Locale
	}
	return defaultLocale
}

// minConfidence is the lowest whatlanggo confidence Detect accepts. Caption
// fragments are short, so this sits well below whatlanggo's reliability
// threshold; the whitelist keeps the guess among languages we can translate.
const minConfidence = 0.1

var detectOptions = whatlanggo.Options{Whitelist: whitelist()}

func whitelist() map[whatlanggo.Lang]bool {
	out := make(map[whatlanggo.Lang]bool)
	for lang := range whatlanggo.Langs {
		if Valid(lang.Iso6391()) {
			out[lang] = true
		}
	}
	return out
}

// Detect guesses the ISO 639-1 code of text among the supported languages.
// It returns "" when no supported language is a confident enough match.
func Detect(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	info := whatlanggo.DetectWithOptions(text, detectOptions)
	if info.Lang < 0 || info.Confidence < minConfidence {
		return ""
	}
	code := info.Lang.Iso6391()
	if !Valid(code) {
		return ""
	}
	return code
}
