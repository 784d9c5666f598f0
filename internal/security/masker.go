// Package security keeps configured secrets out of CLI output and logs.
package security

import (
	"cmp"
	"io"
	"slices"
	"strings"

	"github.com/relicta-tech/notebase/internal/config"
	"github.com/relicta-tech/notebase/internal/errors"
)

// Redacted replaces every masked secret.
const Redacted = "********"

// minSecretLen keeps short values like "a" from masking half the output.
const minSecretLen = 4

// Masker replaces known secret values and URL credentials.
type Masker struct {
	replacer *strings.Replacer
}

// NewMasker masks the given secrets. Empty and very short values are
// ignored.
func NewMasker(secrets ...string) *Masker {
	uniq := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if len(s) >= minSecretLen && !slices.Contains(uniq, s) {
			uniq = append(uniq, s)
		}
	}
	// Longest first so a secret containing another is replaced whole.
	slices.SortFunc(uniq, func(a, b string) int { return cmp.Compare(len(b), len(a)) })

	m := &Masker{}
	if len(uniq) > 0 {
		pairs := make([]string, 0, 2*len(uniq))
		for _, s := range uniq {
			pairs = append(pairs, s, Redacted)
		}
		m.replacer = strings.NewReplacer(pairs...)
	}
	return m
}

// FromConfig masks the API keys, webhook secrets and cache credentials in cfg.
func FromConfig(cfg *config.Config) *Masker {
	if cfg == nil {
		return NewMasker()
	}
	secrets := []string{cfg.Cache.Redis.Password}
	for _, k := range cfg.Server.Auth.APIKeys {
		secrets = append(secrets, k.Key)
	}
	for _, w := range cfg.Webhooks {
		secrets = append(secrets, w.Secret)
	}
	return NewMasker(secrets...)
}

// Mask redacts s.
func (m *Masker) Mask(s string) string {
	if m != nil && m.replacer != nil {
		s = m.replacer.Replace(s)
	}
	return errors.RedactSensitive(s)
}

// Writer wraps w so everything written through it is masked. A secret
// split across two writes is not caught; loggers write whole lines.
func (m *Masker) Writer(w io.Writer) io.Writer {
	return &maskedWriter{m: m, w: w}
}

type maskedWriter struct {
	m *Masker
	w io.Writer
}

func (mw *maskedWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(mw.w, mw.m.Mask(string(p))); err != nil {
		return 0, err
	}
	// Report the caller's length; the masked text may differ in size.
	return len(p), nil
}
