// Package session holds the currently loaded analysis for one user.
package session

import (
	"bytes"
	"context"
	"crypto/sha256"
	"sync"

	"github.com/logflow/pmdash/pkg/analysis"
	"github.com/logflow/pmdash/pkg/eventlog"
)

// Session keeps at most one bundle. It is safe for concurrent use.
type Session struct {
	analyzer *analysis.Analyzer
	opts     eventlog.Options

	mu     sync.RWMutex
	bundle *analysis.Bundle
	name   string
	sum    [sha256.Size]byte
}

// New creates an empty session that loads with opts.
func New(a *analysis.Analyzer, opts eventlog.Options) *Session {
	return &Session{analyzer: a, opts: opts}
}

// Load analyzes content and makes it the current bundle. If name and
// content are the same as the current bundle's, that bundle is returned
// and nothing is recomputed. On failure the session is cleared.
func (s *Session) Load(ctx context.Context, name string, content []byte) (*analysis.Bundle, error) {
	sum := sha256.Sum256(content)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bundle != nil && s.name == name && s.sum == sum {
		return s.bundle, nil
	}

	opts := s.opts
	if opts.Format == eventlog.FormatUnknown {
		opts.Format = eventlog.DetectFormat(name, content[:min(len(content), 8)])
	}

	b, err := s.analyzer.Run(ctx, name, bytes.NewReader(content), opts)
	if err != nil {
		s.reset()
		return nil, err
	}
	s.bundle, s.name, s.sum = b, name, sum
	return b, nil
}

// Current returns the loaded bundle, if any.
func (s *Session) Current() (*analysis.Bundle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundle, s.bundle != nil
}

// Clear drops the current bundle.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Session) reset() {
	s.bundle, s.name, s.sum = nil, "", [sha256.Size]byte{}
}
