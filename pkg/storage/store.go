// Package storage persists user files as <root>/<username>/<filename> on an
// afero filesystem and enforces a per-user byte quota by scanning the
// user's directory before every upload.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sync"

	"github.com/spf13/afero"

	"github.com/marmos91/dittobox/internal/bytesize"
	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/internal/protocol"
)

// DefaultQuota is the per-user byte budget.
const DefaultQuota = 10 * bytesize.MiB

// DefaultRoot is the storage directory, relative to the working directory.
const DefaultRoot = "storage"

const (
	dirMode  os.FileMode = 0755
	fileMode os.FileMode = 0644
)

// Config holds storage settings.
type Config struct {
	// Root is the directory holding one subdirectory per user.
	Root string

	// Quota is the maximum total size of a user's regular files.
	Quota bytesize.ByteSize

	// SerializeUserUploads holds a per-user lock across the usage scan and
	// the write, closing the window in which two concurrent uploads for the
	// same user can both pass the quota check. Off by default.
	SerializeUserUploads bool
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig() Config {
	return Config{Root: DefaultRoot, Quota: DefaultQuota}
}

// Store is the user storage used by the storage workers. It holds no
// in-memory index: every answer comes from the filesystem at call time.
// Concurrent writers to the same file race at the filesystem level and the
// last full rewrite wins.
type Store struct {
	fs    afero.Fs
	root  string
	quota int64

	serialize bool
	userLocks sync.Map // username -> *sync.Mutex
}

// New creates a Store rooted at cfg.Root inside base. A nil base means the
// host filesystem. The root directory is created if missing.
func New(base afero.Fs, cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, errors.New("storage: root is required")
	}
	if cfg.Quota == 0 {
		cfg.Quota = DefaultQuota
	}
	if base == nil {
		base = afero.NewOsFs()
	}

	if err := base.MkdirAll(cfg.Root, dirMode); err != nil {
		return nil, fmt.Errorf("storage: create root %q: %w", cfg.Root, err)
	}
	info, err := base.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root %q: %w", cfg.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root %q is not a directory", cfg.Root)
	}

	return &Store{
		fs:        afero.NewBasePathFs(base, cfg.Root),
		root:      cfg.Root,
		quota:     cfg.Quota.Int64(),
		serialize: cfg.SerializeUserUploads,
	}, nil
}

// Root returns the configured root directory.
func (s *Store) Root() string {
	return s.root
}

// Quota returns the per-user quota in bytes.
func (s *Store) Quota() int64 {
	return s.quota
}

func userDir(username string) string {
	return "/" + username
}

func filePath(username, filename string) string {
	return path.Join("/", username, filename)
}

func checkNames(username, filename string) error {
	if protocol.ValidateName(username, protocol.MaxUsernameLen) != nil {
		return fmt.Errorf("%w: username %q", ErrInvalidName, username)
	}
	if filename != "" && protocol.ValidateName(filename, protocol.MaxFilenameLen) != nil {
		return fmt.Errorf("%w: filename %q", ErrInvalidName, filename)
	}
	return nil
}

// EnsureUserDir creates the user's directory if it does not exist.
func (s *Store) EnsureUserDir(username string) error {
	if err := checkNames(username, ""); err != nil {
		return err
	}
	if err := s.fs.MkdirAll(userDir(username), dirMode); err != nil {
		return fmt.Errorf("storage: create user dir: %w", err)
	}
	return nil
}

// Usage returns the total size of the regular files directly under the
// user's directory. A missing directory has zero usage.
func (s *Store) Usage(username string) (int64, error) {
	if err := checkNames(username, ""); err != nil {
		return 0, err
	}
	entries, err := s.readUserDir(username)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, e := range entries {
		if e.Mode().IsRegular() {
			total += e.Size()
		}
	}
	return total, nil
}

// Upload writes data to the user's file, replacing any previous content.
// It fails with ErrQuotaExceeded, without touching the file, when the
// current usage plus len(data) would exceed the quota. Existing bytes of a
// file being replaced still count toward current usage.
func (s *Store) Upload(username, filename string, data []byte) error {
	if err := checkNames(username, filename); err != nil {
		return err
	}
	if err := s.EnsureUserDir(username); err != nil {
		return err
	}

	if s.serialize {
		mu := s.userLock(username)
		mu.Lock()
		defer mu.Unlock()
	}

	used, err := s.Usage(username)
	if err != nil {
		return err
	}
	if used+int64(len(data)) > s.quota {
		logger.Debug("upload rejected by quota",
			logger.Username(username), logger.Filename(filename),
			logger.Usage(used), logger.Size(int64(len(data))), logger.Quota(s.quota))
		return ErrQuotaExceeded
	}

	// afero.WriteFile reports io.ErrShortWrite when not every byte lands.
	if err := afero.WriteFile(s.fs, filePath(username, filename), data, fileMode); err != nil {
		return fmt.Errorf("storage: write %s/%s: %w", username, filename, err)
	}
	return nil
}

// Download returns the full contents of the user's file.
func (s *Store) Download(username, filename string) ([]byte, error) {
	if err := checkNames(username, filename); err != nil {
		return nil, err
	}
	p := filePath(username, filename)
	if err := s.requireRegular(p); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return nil, mapNotExist(err)
	}
	return data, nil
}

// Delete removes the user's file.
func (s *Store) Delete(username, filename string) error {
	if err := checkNames(username, filename); err != nil {
		return err
	}
	p := filePath(username, filename)
	if err := s.requireRegular(p); err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil {
		return mapNotExist(err)
	}
	return nil
}

// List returns the names of the regular files directly under the user's
// directory, sorted by name. exists is false when the user has no
// directory at all, which is not an error.
func (s *Store) List(username string) (names []string, exists bool, err error) {
	if err := checkNames(username, ""); err != nil {
		return nil, false, err
	}
	if _, err := s.fs.Stat(userDir(username)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("storage: stat user dir: %w", err)
	}

	entries, err := s.readUserDir(username)
	if err != nil {
		return nil, true, err
	}
	names = make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Mode().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, true, nil
}

// readUserDir returns the directory entries sorted by name, or nil when the
// directory does not exist.
func (s *Store) readUserDir(username string) ([]os.FileInfo, error) {
	entries, err := afero.ReadDir(s.fs, userDir(username))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: read user dir: %w", err)
	}
	return entries, nil
}

func (s *Store) requireRegular(p string) error {
	info, err := s.fs.Stat(p)
	if err != nil {
		return mapNotExist(err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrNotFound, p)
	}
	return nil
}

func (s *Store) userLock(username string) *sync.Mutex {
	mu, _ := s.userLocks.LoadOrStore(username, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func mapNotExist(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
