package httpclient

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestNewBodySource(t *testing.T) {
	t.Run("both body and body file", func(t *testing.T) {
		if _, err := NewBodySource("inline", "file.txt"); err == nil {
			t.Error("NewBodySource(both) error = nil, want error")
		}
	})

	t.Run("inline body", func(t *testing.T) {
		content := "hello world"
		source, err := NewBodySource(content, "")
		if err != nil {
			t.Fatalf("NewBodySource(inline) error = %v", err)
		}
		if length, ok := source.ContentLength(); !ok || length != int64(len(content)) {
			t.Errorf("ContentLength() = %d, %v; want %d, true", length, ok, len(content))
		}
		rc, err := source.NewReader()
		if err != nil {
			t.Fatalf("NewReader() error = %v", err)
		}
		defer rc.Close()
		got, _ := io.ReadAll(rc)
		if string(got) != content {
			t.Errorf("ReadAll() = %q, want %q", string(got), content)
		}
	})

	t.Run("file body", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "body.json")
		if err := os.WriteFile(path, []byte(`{"a":1}`), 0o600); err != nil {
			t.Fatalf("write file: %v", err)
		}
		source, err := NewBodySource("", path)
		if err != nil {
			t.Fatalf("NewBodySource(file) error = %v", err)
		}
		data, err := LoadBody(source)
		if err != nil {
			t.Fatalf("LoadBody() error = %v", err)
		}
		if string(data) != `{"a":1}` {
			t.Errorf("LoadBody() = %q", data)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := NewBodySource("", filepath.Join(t.TempDir(), "nope")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("directory", func(t *testing.T) {
		if _, err := NewBodySource("", t.TempDir()); err == nil {
			t.Error("expected error for directory")
		}
	})

	t.Run("empty", func(t *testing.T) {
		source, err := NewBodySource("", "")
		if err != nil {
			t.Fatalf("NewBodySource(empty) error = %v", err)
		}
		data, err := LoadBody(source)
		if err != nil || data != nil {
			t.Errorf("LoadBody(empty) = %q, %v; want nil, nil", data, err)
		}
	})
}
