// Package template renders notebook exports with text/template.
package template

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	rperrors "github.com/relicta-tech/notebase/internal/errors"
)

// bufferPool is used to reuse buffers for template execution.
var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// DefaultExecutionTimeout is the maximum time allowed for one render.
const DefaultExecutionTimeout = 5 * time.Second

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

// Service renders named templates.
type Service struct {
	mu               sync.RWMutex
	templates        map[string]*template.Template
	customDir        string
	funcMap          template.FuncMap
	executionTimeout time.Duration
}

// ServiceConfig configures the template service.
type ServiceConfig struct {
	// CustomDir holds *.tmpl files that override or add to the built-ins.
	CustomDir string
	// ExecutionTimeout bounds one render. Zero or negative values use
	// DefaultExecutionTimeout.
	ExecutionTimeout time.Duration
}

// DefaultServiceConfig returns the default service configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{ExecutionTimeout: DefaultExecutionTimeout}
}

// ServiceOption configures the template service.
type ServiceOption func(*ServiceConfig)

// WithCustomDir sets the custom templates directory.
func WithCustomDir(dir string) ServiceOption {
	return func(cfg *ServiceConfig) {
		cfg.CustomDir = dir
	}
}

// WithExecutionTimeout sets the maximum template execution time.
func WithExecutionTimeout(timeout time.Duration) ServiceOption {
	return func(cfg *ServiceConfig) {
		cfg.ExecutionTimeout = timeout
	}
}

// NewService loads the built-in templates and, when configured, the custom
// directory. A broken custom directory is logged and skipped.
func NewService(opts ...ServiceOption) (*Service, error) {
	cfg := DefaultServiceConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	timeout := cfg.ExecutionTimeout
	if timeout <= 0 {
		timeout = DefaultExecutionTimeout
	}

	s := &Service{
		templates:        make(map[string]*template.Template),
		customDir:        cfg.CustomDir,
		funcMap:          createFuncMap(),
		executionTimeout: timeout,
	}

	if err := s.loadEmbeddedTemplates(); err != nil {
		return nil, rperrors.Wrap(err, rperrors.KindInternal, "template.NewService", "failed to load built-in templates")
	}
	if cfg.CustomDir != "" {
		if err := s.loadCustomTemplates(); err != nil {
			slog.Warn("failed to load custom templates", "dir", cfg.CustomDir, "error", err)
		}
	}
	return s, nil
}

func (s *Service) loadEmbeddedTemplates() error {
	return fs.WalkDir(embeddedTemplates, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".tmpl") {
			return nil
		}
		content, err := embeddedTemplates.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read built-in template %s: %w", path, err)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(path, "templates/"), ".tmpl")
		tmpl, err := template.New(name).Funcs(s.funcMap).Parse(string(content))
		if err != nil {
			return fmt.Errorf("parse built-in template %s: %w", name, err)
		}
		s.templates[name] = tmpl
		return nil
	})
}

func (s *Service) loadCustomTemplates() error {
	return filepath.WalkDir(s.customDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".tmpl") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read custom template %s: %w", path, err)
		}
		rel, err := filepath.Rel(s.customDir, path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.ToSlash(rel), ".tmpl")
		tmpl, err := template.New(name).Funcs(s.funcMap).Parse(string(content))
		if err != nil {
			return fmt.Errorf("parse custom template %s: %w", name, err)
		}
		// Custom templates override built-in ones.
		s.templates[name] = tmpl
		return nil
	})
}

// Render executes the named template.
func (s *Service) Render(ctx context.Context, name string, data any) (string, error) {
	const op = "template.Render"

	s.mu.RLock()
	tmpl, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return "", rperrors.NotFound(op, fmt.Sprintf("template not found: %s (available: %s)", name, strings.Join(s.Names(), ", ")))
	}
	return s.execute(ctx, op, tmpl, data)
}

// RenderString parses and executes an inline template.
func (s *Service) RenderString(ctx context.Context, text string, data any) (string, error) {
	const op = "template.RenderString"

	tmpl, err := template.New("inline").Funcs(s.funcMap).Parse(text)
	if err != nil {
		return "", rperrors.ValidationWrap(err, op, "failed to parse template")
	}
	return s.execute(ctx, op, tmpl, data)
}

// RenderFile parses and executes the template stored at path.
func (s *Service) RenderFile(ctx context.Context, path string, data any) (string, error) {
	const op = "template.RenderFile"

	content, err := os.ReadFile(path)
	if err != nil {
		return "", rperrors.IOWrap(err, op, fmt.Sprintf("failed to read template file: %s", path))
	}
	return s.RenderString(ctx, string(content), data)
}

// Register adds or replaces a named template.
func (s *Service) Register(name, content string) error {
	tmpl, err := template.New(name).Funcs(s.funcMap).Parse(content)
	if err != nil {
		return rperrors.ValidationWrap(err, "template.Register", fmt.Sprintf("failed to parse template %s", name))
	}
	s.mu.Lock()
	s.templates[name] = tmpl
	s.mu.Unlock()
	return nil
}

// Names returns the available template names, sorted.
func (s *Service) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// execute runs tmpl under the execution timeout. text/template cannot be
// interrupted, so a timed out render keeps running in its goroutine until
// it finishes; the caller gets the error immediately.
func (s *Service) execute(ctx context.Context, op string, tmpl *template.Template, data any) (string, error) {
	type result struct {
		output string
		err    error
	}

	ctx, cancel := context.WithTimeout(ctx, s.executionTimeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		buf := bufferPool.Get().(*bytes.Buffer)
		buf.Reset()
		defer func() {
			bufferPool.Put(buf)
			if r := recover(); r != nil {
				done <- result{err: rperrors.Internal(op, fmt.Sprintf("template %s panicked: %v", tmpl.Name(), r))}
			}
		}()

		if err := tmpl.Execute(buf, data); err != nil {
			done <- result{err: rperrors.ValidationWrap(err, op, fmt.Sprintf("failed to render template %s", tmpl.Name()))}
			return
		}
		done <- result{output: buf.String()}
	}()

	select {
	case <-ctx.Done():
		return "", rperrors.Wrap(ctx.Err(), rperrors.KindCanceled, op, fmt.Sprintf("rendering %s did not finish", tmpl.Name()))
	case r := <-done:
		return r.output, r.err
	}
}

func createFuncMap() template.FuncMap {
	return template.FuncMap{
		"upper":      strings.ToUpper,
		"lower":      strings.ToLower,
		"title":      cases.Title(language.English).String,
		"trim":       strings.TrimSpace,
		"replace":    strings.ReplaceAll,
		"contains":   strings.Contains,
		"hasPrefix":  strings.HasPrefix,
		"join":       strings.Join,
		"formatDate": formatDate,
		"dateISO":    dateISO,
		"default":    defaultFunc,
		"indent":     indentFunc,
		"inc":        func(n int) int { return n + 1 },
		"heading":    headingFunc,
		"checkbox":   checkboxFunc,
		"tags":       tagsFunc,
		"mdQuote":    mdQuoteFunc,
		"mdCode":     mdCodeFunc,
	}
}

func formatDate(format string, t time.Time) string {
	return t.Format(format)
}

// dateISO accepts time.Time or *time.Time; nil renders as "".
func dateISO(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02")
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format("2006-01-02")
	}
	return ""
}

func defaultFunc(def, value any) any {
	if value == nil || value == "" {
		return def
	}
	return value
}

func indentFunc(spaces int, s string) string {
	indent := strings.Repeat(" ", spaces)
	return indent + strings.ReplaceAll(s, "\n", "\n"+indent)
}

// headingFunc returns a markdown heading of the given level, capped at 6.
func headingFunc(level int, text string) string {
	level = max(1, min(level, 6))
	return strings.Repeat("#", level) + " " + text
}

func checkboxFunc(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

func tagsFunc(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = "#" + t
	}
	return strings.Join(out, " ")
}

func mdCodeFunc(text string) string {
	return "`" + text + "`"
}

func mdQuoteFunc(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}
