package i18n

import (
	"embed"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

//go:embed active.*.toml
var localeFS embed.FS

const (
	MsgCheckinSuccess             = "CheckinSuccess"
	MsgCheckinAlreadyCheckedIn    = "CheckinAlreadyCheckedIn"
	MsgCheckinWaitlisted          = "CheckinWaitlisted"
	MsgCheckinParticipantNotFound = "CheckinParticipantNotFound"
	MsgCheckinEventNotFound       = "CheckinEventNotFound"
	MsgCheckinInvalidRequest      = "CheckinInvalidRequest"
)

var localeFiles = []string{"active.pt-BR.toml", "active.en.toml"}

// Translator is a thin wrapper around go-i18n's Bundle/Localizer.
type Translator struct {
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
	matcher         language.Matcher
	supported       []language.Tag
	logger          *slog.Logger
}

// NewTranslator loads the embedded catalogues. Unknown default locales fall
// back to Brazilian Portuguese.
func NewTranslator(defaultLocale string, logger *slog.Logger) *Translator {
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		tag = language.BrazilianPortuguese
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, file := range localeFiles {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			logger.Error("i18n: failed to load message file", slog.String("file", file), slog.Any("error", err))
		}
	}

	// The default goes first so that it wins when nothing matches.
	supported := []language.Tag{tag}
	for _, t := range bundle.LanguageTags() {
		if t != tag {
			supported = append(supported, t)
		}
	}

	return &Translator{
		bundle:          bundle,
		defaultLanguage: tag,
		matcher:         language.NewMatcher(supported),
		supported:       supported,
		logger:          logger,
	}
}

// Locale picks the best supported locale for an Accept-Language header value.
func (t *Translator) Locale(acceptLanguage string) string {
	if acceptLanguage == "" {
		return t.defaultLanguage.String()
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return t.defaultLanguage.String()
	}
	_, index, _ := t.matcher.Match(tags...)
	return t.supported[index].String()
}

// T renders the message identified by key for the given locale.
// If the key/locale is not found, it falls back to the default locale,
// then finally to the key itself.
func (t *Translator) T(locale, key string, data map[string]any) string {
	if key == "" {
		return ""
	}

	languages := []string{}
	if locale != "" {
		languages = append(languages, locale)
	}
	languages = append(languages, t.defaultLanguage.String())

	localizer := i18n.NewLocalizer(t.bundle, languages...)
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	if err != nil {
		t.logger.Warn("i18n: localize failed", slog.String("key", key), slog.Any("locales", languages), slog.Any("error", err))
		return key
	}
	return msg
}
