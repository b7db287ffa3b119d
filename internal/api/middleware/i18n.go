package middleware

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Schlüssel im gin.Context und in der Session
const (
	LanguageKey   = "language"
	translatorKey = "translator"
)

// I18nConfig definiert die Konfiguration für die i18n-Middleware
type I18nConfig struct {
	DefaultLanguage string
}

// Translator hält die Übersetzungen aller eingebetteten Sprachen
type Translator struct {
	defaultLanguage string
	localizer       map[string]*i18n.Localizer
}

// NewTranslator lädt alle eingebetteten Übersetzungsdateien
func NewTranslator(config I18nConfig) (*Translator, error) {
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = "de"
	}

	defaultTag, err := language.Parse(config.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", config.DefaultLanguage, err)
	}

	bundle := i18n.NewBundle(defaultTag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	t := &Translator{
		defaultLanguage: config.DefaultLanguage,
		localizer:       make(map[string]*i18n.Localizer),
	}

	files, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		// Sprachcode aus dem Dateinamen ("de.json" -> "de")
		langCode := strings.TrimSuffix(file.Name(), path.Ext(file.Name()))

		data, err := localeFS.ReadFile(path.Join("locales", file.Name()))
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(data, file.Name()); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file.Name(), err)
		}
		t.localizer[langCode] = i18n.NewLocalizer(bundle, langCode, config.DefaultLanguage)
	}

	if _, ok := t.localizer[config.DefaultLanguage]; !ok {
		return nil, fmt.Errorf("no translations for default language %q", config.DefaultLanguage)
	}
	return t, nil
}

// Supports meldet, ob für lang Übersetzungen vorliegen
func (t *Translator) Supports(lang string) bool {
	_, ok := t.localizer[lang]
	return ok
}

// Translate übersetzt key; unbekannte Schlüssel werden unverändert zurückgegeben
func (t *Translator) Translate(lang, key string, data map[string]any) string {
	localizer, ok := t.localizer[lang]
	if !ok {
		localizer = t.localizer[t.defaultLanguage]
	}
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	if err != nil {
		log.Debugf("Keine Übersetzung für %q (%s): %v", key, lang, err)
		return key
	}
	return msg
}

// I18n bestimmt die Sprache aus ?lang= oder der Session und legt den
// Translator im Kontext ab. Benötigt die sessions-Middleware.
func I18n(translator *Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		lang := c.Query("lang")

		if lang != "" && translator.Supports(lang) {
			session.Set(LanguageKey, lang)
			if err := session.Save(); err != nil {
				log.Warnf("Sprache konnte nicht in der Session gespeichert werden: %v", err)
			}
		} else if sessionLang, ok := session.Get(LanguageKey).(string); ok {
			lang = sessionLang
		}

		if !translator.Supports(lang) {
			lang = translator.defaultLanguage
		}

		c.Set(LanguageKey, lang)
		c.Set(translatorKey, translator)
		c.Next()
	}
}

// T übersetzt key in der Sprache der aktuellen Anfrage
func T(c *gin.Context, key string, data map[string]any) string {
	translator, ok := c.Get(translatorKey)
	if !ok {
		return key
	}
	return translator.(*Translator).Translate(c.GetString(LanguageKey), key, data)
}
