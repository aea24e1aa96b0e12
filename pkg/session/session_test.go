package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/logflow/pmdash/pkg/analysis"
	"github.com/logflow/pmdash/pkg/eventlog"
	"github.com/logflow/pmdash/pkg/logger"
)

const valid = "Case ID,Activity Name,Start Time,End Time\n" +
	"A,X,2024-01-01 00:00:00,2024-01-01 00:10:00\n"

func newSession() *Session {
	a := analysis.New(analysis.WithLogger(logger.New(&strings.Builder{}, logger.Off)))
	return New(a, eventlog.DefaultOptions())
}

func TestSession_Empty(t *testing.T) {
	s := newSession()
	if b, ok := s.Current(); ok || b != nil {
		t.Error("Expected empty session")
	}
}

func TestSession_CachesUnchangedUpload(t *testing.T) {
	s := newSession()
	ctx := context.Background()

	first, err := s.Load(ctx, "log.csv", []byte(valid))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	second, err := s.Load(ctx, "log.csv", []byte(valid))
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("Expected the cached bundle for identical content")
	}

	changed := valid + "B,Y,2024-01-01 00:00:00,2024-01-01 00:01:00\n"
	third, err := s.Load(ctx, "log.csv", []byte(changed))
	if err != nil {
		t.Fatal(err)
	}
	if third == first || third.Log.Len() != 2 {
		t.Error("Expected a new bundle for changed content")
	}

	renamed, err := s.Load(ctx, "other.csv", []byte(changed))
	if err != nil {
		t.Fatal(err)
	}
	if renamed == third {
		t.Error("Expected a new bundle for a new name")
	}
	if cur, _ := s.Current(); cur != renamed {
		t.Error("Current should return the latest bundle")
	}
}

func TestSession_FailureClears(t *testing.T) {
	s := newSession()
	ctx := context.Background()
	if _, err := s.Load(ctx, "log.csv", []byte(valid)); err != nil {
		t.Fatal(err)
	}

	_, err := s.Load(ctx, "bad.csv", []byte("Case ID\nA\n"))
	var mce *eventlog.MissingColumnsError
	if !errors.As(err, &mce) {
		t.Fatalf("Expected MissingColumnsError, got %v", err)
	}
	if _, ok := s.Current(); ok {
		t.Error("Session should be cleared after a failed load")
	}

	// The previous content is recomputed, not served from a stale cache.
	b, err := s.Load(ctx, "log.csv", []byte(valid))
	if err != nil || b == nil {
		t.Fatalf("Reload failed: %v", err)
	}
}

func TestSession_Clear(t *testing.T) {
	s := newSession()
	if _, err := s.Load(context.Background(), "log.csv", []byte(valid)); err != nil {
		t.Fatal(err)
	}
	s.Clear()
	if _, ok := s.Current(); ok {
		t.Error("Expected empty session after Clear")
	}
}
