package preferences

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/tranex/internal/storage"
	"go.uber.org/zap"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

type Language string

const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"
)

const (
	ThemeKey    = "tranex-theme"
	LanguageKey = "tranex-language"
)

var (
	ErrInvalidTheme        = errors.New("invalid theme")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

func ParseTheme(s string) (Theme, error) {
	switch t := Theme(s); t {
	case ThemeLight, ThemeDark:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTheme, s)
}

func ParseLanguage(s string) (Language, error) {
	switch l := Language(s); l {
	case LanguageEnglish, LanguageArabic:
		return l, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, s)
}

// Direction is the text direction pages use for the language.
func (l Language) Direction() string {
	if l == LanguageArabic {
		return "rtl"
	}
	return "ltr"
}

type Preferences struct {
	Theme     Theme    `json:"theme"`
	Language  Language `json:"language"`
	Direction string   `json:"dir"`
}

// Service stores theme and language choices per browser session. Without a
// saved theme the browser's color scheme preference decides.
type Service struct {
	storage storage.Storage
	log     *zap.Logger
}

func NewService(st storage.Storage, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{storage: st, log: log}
}

func (s *Service) Get(ctx context.Context, sessionID string, prefersDark bool) Preferences {
	lang := s.language(ctx, sessionID)
	return Preferences{
		Theme:     s.theme(ctx, sessionID, prefersDark),
		Language:  lang,
		Direction: lang.Direction(),
	}
}

func (s *Service) ToggleTheme(ctx context.Context, sessionID string, prefersDark bool) Theme {
	next := ThemeDark
	if s.theme(ctx, sessionID, prefersDark) == ThemeDark {
		next = ThemeLight
	}
	s.save(ctx, s.key(ThemeKey, sessionID), string(next))
	return next
}

func (s *Service) SetTheme(ctx context.Context, sessionID string, theme Theme) error {
	if _, err := ParseTheme(string(theme)); err != nil {
		return err
	}
	s.save(ctx, s.key(ThemeKey, sessionID), string(theme))
	return nil
}

func (s *Service) SetLanguage(ctx context.Context, sessionID string, lang Language) error {
	if _, err := ParseLanguage(string(lang)); err != nil {
		return err
	}
	s.save(ctx, s.key(LanguageKey, sessionID), string(lang))
	return nil
}

// SwitchLanguage flips between English and Arabic.
func (s *Service) SwitchLanguage(ctx context.Context, sessionID string) Language {
	next := LanguageArabic
	if s.language(ctx, sessionID) == LanguageArabic {
		next = LanguageEnglish
	}
	s.save(ctx, s.key(LanguageKey, sessionID), string(next))
	return next
}

func (s *Service) theme(ctx context.Context, sessionID string, prefersDark bool) Theme {
	if raw, ok := s.read(ctx, s.key(ThemeKey, sessionID)); ok {
		if t, err := ParseTheme(raw); err == nil {
			return t
		}
	}
	if prefersDark {
		return ThemeDark
	}
	return ThemeLight
}

func (s *Service) language(ctx context.Context, sessionID string) Language {
	if raw, ok := s.read(ctx, s.key(LanguageKey, sessionID)); ok {
		if l, err := ParseLanguage(raw); err == nil {
			return l
		}
	}
	return LanguageEnglish
}

func (s *Service) read(ctx context.Context, key string) (string, bool) {
	raw, err := s.storage.Get(ctx, key)
	if err == nil {
		return raw, true
	}
	if !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("preference read failed", zap.String("key", key), zap.Error(err))
	}
	return "", false
}

func (s *Service) save(ctx context.Context, key, value string) {
	if err := s.storage.Set(ctx, key, value); err != nil {
		s.log.Error("preference write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) key(name, sessionID string) string {
	return name + ":" + sessionID
}
