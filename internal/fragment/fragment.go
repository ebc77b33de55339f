package fragment

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

//go:embed components/*.html
var components embed.FS

var (
	ErrNotFound            = errors.New("fragment not found")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

var (
	namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	langPattern = regexp.MustCompile(`^[a-z]{2}$`)
)

// Embedded returns the fragments compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(components, "components")
	if err != nil {
		panic(err)
	}
	return sub
}

// Loader serves shared page fragments such as the header and footer. Raw
// HTML is read once per name and cached for the life of the loader.
type Loader struct {
	fsys fs.FS

	mu    sync.RWMutex
	cache map[string]string
}

func NewLoader(fsys fs.FS) *Loader {
	return &Loader{fsys: fsys, cache: make(map[string]string)}
}

// Load returns fragment name as HTML. With a language, the text of every
// element carrying a data-<lang> attribute is replaced by that attribute.
func (l *Loader) Load(ctx context.Context, name, lang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := l.raw(name)
	if err != nil {
		return "", err
	}
	if lang == "" {
		return raw, nil
	}
	if !langPattern.MatchString(lang) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	return localize(raw, lang)
}

// LoadAll loads several fragments concurrently and fails on the first error.
func (l *Loader) LoadAll(ctx context.Context, names []string, lang string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			html, err := l.Load(ctx, name, lang)
			if err != nil {
				return fmt.Errorf("load %s: %w", name, err)
			}
			mu.Lock()
			out[name] = html
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Loader) raw(name string) (string, error) {
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	l.mu.RLock()
	html, ok := l.cache[name]
	l.mu.RUnlock()
	if ok {
		return html, nil
	}

	data, err := fs.ReadFile(l.fsys, name+".html")
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("read fragment %s: %w", name, err)
	}

	html = string(data)
	l.mu.Lock()
	l.cache[name] = html
	l.mu.Unlock()
	return html, nil
}

func localize(raw, lang string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse fragment: %w", err)
	}

	attr := "data-" + lang
	doc.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
		if text, ok := s.Attr(attr); ok && text != "" {
			s.SetText(text)
		}
	})

	html, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("render fragment: %w", err)
	}
	return strings.TrimSpace(html), nil
}
