package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	lferrors "github.com/logflow/pmdash/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		uri     string
		want    Location
		wantErr bool
	}{
		{"-", Location{Scheme: "stdio"}, false},
		{"data/log.csv", Location{Scheme: "file", Key: "data/log.csv"}, false},
		{`C:\logs\log.csv`, Location{Scheme: "file", Key: `C:\logs\log.csv`}, false},
		{"file:///tmp/log.csv", Location{Scheme: "file", Key: "/tmp/log.csv"}, false},
		{"s3://bucket/dir/log.xlsx", Location{Scheme: "s3", Bucket: "bucket", Key: "dir/log.xlsx"}, false},
		{"https://example.com/log.csv", Location{Scheme: "https", Key: "https://example.com/log.csv"}, false},
		{"s3://bucket", Location{}, true},
		{"ftp://host/log.csv", Location{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := Parse(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.uri, got, tt.want)
			}
		})
	}
}

func TestLocal_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(S3Config{})
	p := filepath.Join(t.TempDir(), "out", "views.json")

	w, err := s.Create(ctx, p)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	io.WriteString(w, `{"ok":true}`)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	obj, err := s.Open(ctx, p)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer obj.Close()
	data, _ := io.ReadAll(obj)
	if string(data) != `{"ok":true}` {
		t.Errorf("Unexpected content: %s", data)
	}
	if obj.Name != "views.json" || obj.Size != int64(len(data)) {
		t.Errorf("Unexpected object metadata: %s %d", obj.Name, obj.Size)
	}
}

func TestLocal_Errors(t *testing.T) {
	s := New(S3Config{})
	dir := t.TempDir()

	_, err := s.Open(context.Background(), filepath.Join(dir, "missing.csv"))
	if !lferrors.IsCode(err, lferrors.CodeFileNotFound) {
		t.Errorf("Expected E101, got %v", err)
	}
	_, err = s.Open(context.Background(), dir)
	if !lferrors.IsCode(err, lferrors.CodeInvalidFormat) {
		t.Errorf("Expected E103 for a directory, got %v", err)
	}
}

func TestStdio(t *testing.T) {
	var out bytes.Buffer
	s := New(S3Config{}).WithStdio(strings.NewReader("a,b\n"), &out)

	obj, err := s.Open(context.Background(), Stdio)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(obj)
	if string(data) != "a,b\n" || obj.Size != -1 {
		t.Errorf("Unexpected stdin object: %q %d", data, obj.Size)
	}

	w, _ := s.Create(context.Background(), Stdio)
	io.WriteString(w, "digraph")
	w.Close()
	if out.String() != "digraph" {
		t.Errorf("Unexpected stdout: %q", out.String())
	}
}

func TestHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/logs/log.csv" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "Case ID\n")
	}))
	defer srv.Close()

	s := New(S3Config{})
	obj, err := s.Open(context.Background(), srv.URL+"/logs/log.csv")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer obj.Close()
	if obj.Name != "log.csv" {
		t.Errorf("Expected name log.csv, got %s", obj.Name)
	}

	if _, err := s.Open(context.Background(), srv.URL+"/nope.csv"); !lferrors.IsCode(err, lferrors.CodeFileNotFound) {
		t.Errorf("Expected E101 for 404, got %v", err)
	}
	if _, err := s.Create(context.Background(), srv.URL+"/out.json"); err == nil {
		t.Error("HTTP sinks should be rejected")
	}
}

// fakeS3 serves path-style GetObject and PutObject requests.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Write(data)
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = data
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3_RoundTrip(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := New(S3Config{
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		UsePathStyle:    true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	ctx := context.Background()

	w, err := s.Create(ctx, "s3://logs/out/flow.dot")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	io.WriteString(w, "digraph process {}\n")
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := fake.objects["/logs/out/flow.dot"]; !ok {
		t.Fatalf("Object not uploaded: %v", fake.objects)
	}

	obj, err := s.Open(ctx, "s3://logs/out/flow.dot")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer obj.Close()
	data, _ := io.ReadAll(obj)
	if string(data) != "digraph process {}\n" {
		t.Errorf("Unexpected content: %q", data)
	}
	if obj.Name != "flow.dot" {
		t.Errorf("Expected name flow.dot, got %s", obj.Name)
	}

	if _, err := s.Open(ctx, "s3://logs/missing.csv"); !lferrors.IsCode(err, lferrors.CodeFileNotFound) {
		t.Errorf("Expected E101 for missing key, got %v", err)
	}
}
