// Package blob stores rendered export artifacts on the local filesystem,
// addressed by content digest.
package blob

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

type LocalFS struct {
	Root string
}

// Digest returns the hex blake2b-256 sum of body.
func Digest(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// PutContent writes body under <prefix>/<digest><ext> and returns the relative
// path and digest. Writing identical content twice yields the same path.
func (l LocalFS) PutContent(prefix, ext string, body []byte) (string, string, error) {
	digest := Digest(body)
	relPath := filepath.Join(prefix, digest+ext)
	if l.Exists(relPath) {
		return filepath.Clean(relPath), digest, nil
	}
	clean, err := l.Put(relPath, bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	return clean, digest, nil
}

// Put writes r to relPath through a temp file so readers never see a partial artifact.
func (l LocalFS) Put(relPath string, r io.Reader) (string, error) {
	clean, abs, err := l.resolve(relPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(abs), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp, abs); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename artifact: %w", err)
	}
	return clean, nil
}

func (l LocalFS) Open(relPath string) (*os.File, error) {
	_, abs, err := l.resolve(relPath)
	if err != nil {
		return nil, err
	}
	return os.Open(abs)
}

func (l LocalFS) Exists(relPath string) bool {
	_, abs, err := l.resolve(relPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

func (l LocalFS) resolve(relPath string) (string, string, error) {
	clean := filepath.Clean(relPath)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("artifact path %q escapes the store root", relPath)
	}
	return clean, filepath.Join(l.Root, clean), nil
}
