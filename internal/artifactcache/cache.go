package artifactcache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/vincent-petithory/dataurl"
	"github.com/zeebo/blake3"

	"betamode/internal/logging"
	"betamode/internal/protocol"
	"betamode/internal/services"
)

const tempPattern = ".artifact-*.tmp"

// Meta describes how an artifact was produced.
type Meta struct {
	JobID protocol.JobID
	// Censored is false when the original bytes were stored verbatim.
	Censored bool
	Regions  int
}

// Cache is the on-disk artifact store.
type Cache struct {
	root   string
	index  *Index
	logger *slog.Logger
}

// New returns a cache rooted at root. index may be nil.
func New(root string, index *Index, logger *slog.Logger) *Cache {
	return &Cache{
		root:   root,
		index:  index,
		logger: logging.NewComponentLogger(logger, "artifactcache"),
	}
}

// Root returns the cache directory.
func (c *Cache) Root() string {
	return c.root
}

// Key returns the hex BLAKE3 digest identifying the artifact produced for id
// from source. A reused id with a different source gets a different key.
func Key(id protocol.JobID, source string) string {
	h := blake3.New()
	_, _ = h.Write([]byte(id.String()))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

func validKey(key string) bool {
	if len(key) != hex.EncodedLen(32) {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}

// Path returns the artifact location for key whether or not it exists. key
// must come from Key.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.root, key[:2], key)
}

// Exists reports whether an artifact for key is present.
func (c *Cache) Exists(key string) bool {
	if !validKey(key) {
		return false
	}
	info, err := os.Stat(c.Path(key))
	return err == nil && info.Mode().IsRegular()
}

// Write persists data as the artifact for key. The file appears atomically.
func (c *Cache) Write(key string, data []byte, meta Meta) error {
	if !validKey(key) {
		return services.Wrap(services.ErrValidation, "censor", "write artifact", "invalid artifact key", nil)
	}
	dest := c.Path(key)
	if err := writeAtomic(dest, data); err != nil {
		return services.Wrap(services.ErrCache, "censor", "write artifact", dest, err)
	}
	if c.index != nil {
		entry := Entry{Key: key, JobID: meta.JobID.String(), Size: int64(len(data)), Censored: meta.Censored, Regions: meta.Regions}
		if err := c.index.Record(context.Background(), entry); err != nil {
			logging.WarnWithContext(c.logger, "artifact index update failed", "cache_index_failed",
				logging.String("key", key),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run 'betamode cache stats' to rebuild the index"),
				logging.String(logging.FieldImpact, "cache stats and prune ordering may be stale"),
			)
		}
	}
	return nil
}

// Read returns the artifact bytes for key.
func (c *Cache) Read(key string) ([]byte, error) {
	if !validKey(key) {
		return nil, services.Wrap(services.ErrCache, "censor", "read artifact", "invalid artifact key", nil)
	}
	path := c.Path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrCache, "censor", "read artifact", path, err)
	}
	if c.index != nil {
		if err := c.index.Touch(context.Background(), key); err != nil {
			c.logger.Debug("artifact index touch failed", logging.String("key", key), logging.Error(err))
		}
	}
	return data, nil
}

func writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create fan-out directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		cleanup()
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// DataURI renders data as a base64 data: URI with a MIME type sniffed from
// the bytes.
func DataURI(data []byte) string {
	return dataurl.New(data, SniffMIME(data)).String()
}

// SniffMIME returns the bare media type of data, without parameters.
func SniffMIME(data []byte) string {
	mediaType, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return strings.TrimSpace(mediaType)
}

// artifactFile is one artifact found on disk.
type artifactFile struct {
	key  string
	path string
	size int64
	mod  int64
}

// scan walks the fan-out directories and returns every artifact file.
func (c *Cache) scan() ([]artifactFile, error) {
	var files []artifactFile
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache root: %w", err)
	}
	for _, bucket := range entries {
		if !bucket.IsDir() || len(bucket.Name()) != 2 {
			continue
		}
		dir := filepath.Join(c.root, bucket.Name())
		children, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read cache bucket %s: %w", dir, err)
		}
		for _, child := range children {
			name := child.Name()
			if child.IsDir() || !strings.HasPrefix(name, bucket.Name()) || len(name) != hex.EncodedLen(32) {
				continue
			}
			info, err := child.Info()
			if err != nil {
				continue
			}
			files = append(files, artifactFile{
				key:  name,
				path: filepath.Join(dir, name),
				size: info.Size(),
				mod:  info.ModTime().Unix(),
			})
		}
	}
	return files, nil
}
