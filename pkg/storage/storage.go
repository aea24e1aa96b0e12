// Package storage opens event log sources and output sinks by URI.
// Supports: local files, file://, s3://bucket/key, http(s) (read-only) and "-".
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	lferrors "github.com/logflow/pmdash/pkg/errors"
)

// Stdio is the URI for stdin (sources) and stdout (sinks).
const Stdio = "-"

// Object is an opened source.
type Object struct {
	io.ReadCloser
	// Name is the base name used for format detection.
	Name string
	// Size is the content length in bytes, or -1 when unknown.
	Size int64
}

// Location is a parsed URI.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// Parse splits uri into scheme, bucket and key. Plain paths and
// Windows drive letters are local files.
func Parse(uri string) (Location, error) {
	if uri == Stdio {
		return Location{Scheme: "stdio"}, nil
	}
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return Location{Scheme: "file", Key: uri}, nil
	}

	switch u.Scheme {
	case "file":
		return Location{Scheme: "file", Key: u.Path}, nil
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Location{}, lferrors.New(lferrors.CodeInvalidFormat,
				fmt.Sprintf("s3 uri %q needs a bucket and a key", uri))
		}
		return Location{Scheme: "s3", Bucket: u.Host, Key: key}, nil
	case "http", "https":
		return Location{Scheme: u.Scheme, Key: uri}, nil
	default:
		return Location{}, lferrors.New(lferrors.CodeInvalidFormat,
			fmt.Sprintf("unsupported storage scheme: %s", u.Scheme))
	}
}

// Store resolves URIs to readers and writers. The S3 client is built on
// first use.
type Store struct {
	cfg    S3Config
	stdin  io.Reader
	stdout io.Writer
	http   *http.Client

	mu sync.Mutex
	s3 *s3Client
}

// New creates a Store.
func New(cfg S3Config) *Store {
	return &Store{
		cfg:    cfg.withDefaults(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		http:   http.DefaultClient,
	}
}

// WithStdio replaces the streams used for "-".
func (s *Store) WithStdio(in io.Reader, out io.Writer) *Store {
	s.stdin, s.stdout = in, out
	return s
}

// Open returns a reader for uri.
func (s *Store) Open(ctx context.Context, uri string) (*Object, error) {
	loc, err := Parse(uri)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "stdio":
		return &Object{ReadCloser: io.NopCloser(s.stdin), Name: "stdin", Size: -1}, nil
	case "file":
		return openLocal(loc.Key)
	case "s3":
		c, err := s.client(ctx)
		if err != nil {
			return nil, err
		}
		return c.open(ctx, loc.Bucket, loc.Key)
	default:
		return s.openHTTP(ctx, loc.Key)
	}
}

// Create returns a writer for uri. For S3 the object is uploaded on Close.
func (s *Store) Create(ctx context.Context, uri string) (io.WriteCloser, error) {
	loc, err := Parse(uri)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "stdio":
		return nopWriteCloser{s.stdout}, nil
	case "file":
		return createLocal(loc.Key)
	case "s3":
		c, err := s.client(ctx)
		if err != nil {
			return nil, err
		}
		return c.create(ctx, loc.Bucket, loc.Key), nil
	default:
		return nil, lferrors.New(lferrors.CodeWriteFailed, "HTTP storage is read-only")
	}
}

func (s *Store) client(ctx context.Context) (*s3Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.s3 != nil {
		return s.s3, nil
	}
	c, err := newS3Client(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	s.s3 = c
	return c, nil
}

// --- Local ---

func openLocal(p string) (*Object, error) {
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, lferrors.Wrap(err, lferrors.CodeFileNotFound, "file not found").
				WithContext("path", p)
		}
		return nil, lferrors.Wrap(err, lferrors.CodeFileNotFound, "cannot open file").
			WithContext("path", p)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, lferrors.Wrap(err, lferrors.CodeFileNotFound, "cannot stat file")
	}
	if info.IsDir() {
		f.Close()
		return nil, lferrors.New(lferrors.CodeInvalidFormat, "path is a directory").
			WithContext("path", p)
	}

	return &Object{ReadCloser: f, Name: filepath.Base(p), Size: info.Size()}, nil
}

func createLocal(p string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, lferrors.Wrap(err, lferrors.CodeWriteFailed, "cannot create output directory")
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, lferrors.Wrap(err, lferrors.CodeWriteFailed, "cannot create file").
			WithContext("path", p)
	}
	return f, nil
}

// --- HTTP (read-only) ---

func (s *Store) openHTTP(ctx context.Context, uri string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, lferrors.Wrap(err, lferrors.CodeInvalidFormat, "invalid url")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, lferrors.Wrap(err, lferrors.CodeFileNotFound, "http get failed")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, lferrors.New(lferrors.CodeFileNotFound, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Status)).
			WithContext("url", uri)
	}

	return &Object{ReadCloser: resp.Body, Name: path.Base(req.URL.Path), Size: resp.ContentLength}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
