// Package upload persists user-supplied media and hands back a reference that
// every chat client can resolve.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// PathPrefix is the URL prefix stored assets are served under.
const PathPrefix = "/uploads/"

const (
	sniffLen        = 512
	maxNameAttempts = 32
)

var (
	ErrNoFile   = errors.New("no file uploaded")
	ErrTooLarge = errors.New("upload exceeds size limit")
)

// Asset describes a stored upload.
type Asset struct {
	Filename  string
	URL       string
	MediaType string
	Size      int64
}

// Store saves uploaded bytes and serves them back.
type Store interface {
	Save(ctx context.Context, baseURL, originalName, declaredType string, r io.Reader) (Asset, error)
	FileSystem() http.FileSystem
}

// DiskStore keeps uploads as plain files in one directory.
type DiskStore struct {
	dir      string
	maxBytes int64
	now      func() time.Time
	log      *zap.Logger
}

// NewDiskStore prepares dir for writing. maxBytes <= 0 disables the size limit.
func NewDiskStore(dir string, maxBytes int64, log *zap.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %q: %w", dir, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DiskStore{dir: dir, maxBytes: maxBytes, now: time.Now, log: log.Named("upload")}, nil
}

// FileSystem exposes stored assets for static serving. Directories are
// reported as missing so the upload dir cannot be listed.
func (s *DiskStore) FileSystem() http.FileSystem {
	return filesOnly{root: http.Dir(s.dir)}
}

type filesOnly struct {
	root http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}

// Save writes r to a uniquely named file and returns its public reference.
// baseURL must be absolute (scheme and host) so the URL resolves for every client.
func (s *DiskStore) Save(ctx context.Context, baseURL, originalName, declaredType string, r io.Reader) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	if r == nil {
		return Asset{}, ErrNoFile
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Asset{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	f, filename, err := s.create(originalName)
	if err != nil {
		return Asset{}, err
	}
	path := f.Name()

	size, err := s.copyLimited(f, io.MultiReader(bytes.NewReader(head), r))
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return Asset{}, err
		}
		return Asset{}, fmt.Errorf("write %s: %w", filename, err)
	}

	asset := Asset{
		Filename:  filename,
		URL:       strings.TrimRight(baseURL, "/") + PathPrefix + url.PathEscape(filename),
		MediaType: resolveMediaType(declaredType, head),
		Size:      size,
	}
	s.log.Info("asset stored",
		zap.String("file", asset.Filename),
		zap.String("type", asset.MediaType),
		zap.Int64("bytes", asset.Size),
	)
	return asset, nil
}

func (s *DiskStore) copyLimited(dst io.Writer, src io.Reader) (int64, error) {
	if s.maxBytes <= 0 {
		return io.Copy(dst, src)
	}
	written, err := io.Copy(dst, io.LimitReader(src, s.maxBytes+1))
	if err != nil {
		return written, err
	}
	if written > s.maxBytes {
		return written, ErrTooLarge
	}
	return written, nil
}

// create opens a new file named <unix-millis>-<original name>. Two uploads of
// the same name in the same millisecond get a counter after the timestamp.
func (s *DiskStore) create(originalName string) (*os.File, string, error) {
	stamp := s.now().UnixMilli()
	name := sanitizeName(originalName)
	filename := fmt.Sprintf("%d-%s", stamp, name)
	for attempt := 1; ; attempt++ {
		f, err := os.OpenFile(filepath.Join(s.dir, filename), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, filename, nil
		}
		if !errors.Is(err, fs.ErrExist) || attempt >= maxNameAttempts {
			return nil, "", fmt.Errorf("create %s: %w", filename, err)
		}
		filename = fmt.Sprintf("%d-%d-%s", stamp, attempt, name)
	}
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == '/', r == ':':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}

// resolveMediaType trusts a specific declared type and sniffs otherwise.
func resolveMediaType(declared string, head []byte) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	detected := mimetype.Detect(head).String()
	if mt, _, err := mime.ParseMediaType(detected); err == nil {
		return mt
	}
	return detected
}
