// Package config loads and writes the per-task TOML configuration file
// (spec.md §1/§6's "configuration parsing" is named an external collaborator
// for the distilled core, but a runnable repo still needs a thin version of
// it — see SPEC_FULL.md's AMBIENT STACK). One TOML file describes one sync
// task: its variant (tree or database dump), its local root, and the
// object-store it talks to.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Variant distinguishes the tree-sync task from the database-dump task
// (spec §1's "third core").
type Variant string

const (
	VariantTree Variant = "tree"
	VariantBlob Variant = "blob"
)

// StoreKind names the object-store driver a task talks to.
type StoreKind string

const (
	StoreLocal StoreKind = "local"
	StoreS3    StoreKind = "s3"
)

// StoreConfig is the object-store half of a task: which driver, and the
// parameters it needs to resolve a bucket (spec §6).
type StoreConfig struct {
	Kind StoreKind `toml:"kind"`

	// Bucket is the S3 bucket name (kind=s3) or a directory standing in for
	// one (kind=local).
	Bucket string `toml:"bucket"`
	Region string `toml:"region,omitempty"`

	// Endpoint overrides the default AWS endpoint resolution, for
	// S3-compatible providers.
	Endpoint string `toml:"endpoint,omitempty"`
}

// TaskConfig is one task's full configuration.
type TaskConfig struct {
	// Name is the user-supplied task name, before sanitization.
	Name    string  `toml:"name"`
	Variant Variant `toml:"variant"`

	// LocalRoot is the synced directory (tree variant only).
	LocalRoot string `toml:"local_root,omitempty"`

	// Database names the blob task's database (blob variant only): a
	// SQLite file path for internal/dumpdriver.SQLiteDriver, and the
	// "DB" component of the remote keys in spec §6's blob layout.
	Database string `toml:"database,omitempty"`

	Store StoreConfig `toml:"store"`
}

// reservedTaskNameChars are the filesystem-reserved characters spec.md §6
// requires replaced with "_" in the on-disk task directory name.
const reservedTaskNameChars = `/\:*?|<>"`

// SanitizeTaskName replaces filesystem-reserved characters in name with "_"
// (spec §6), exactly as original_source/shared/configuration.py does.
func SanitizeTaskName(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(reservedTaskNameChars, r) {
			return '_'
		}

		return r
	}, name)
}

// taskDirPermissions matches the rest of the stack's directory mode.
const taskDirPermissions = 0o755

// taskFilePermissions matches the rest of the stack's file mode.
const taskFilePermissions = 0o644

// DefaultAppDir returns "<home>/.bsync", the default application directory
// housing every task's conf subdirectory (spec §6).
func DefaultAppDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home directory: %w", err)
	}

	return filepath.Join(home, ".bsync"), nil
}

// TaskDir returns "<appDir>/conf/<sanitized task name>", the directory
// holding a task's config file and manifest state (spec §6).
func TaskDir(appDir, taskName string) string {
	return filepath.Join(appDir, "conf", SanitizeTaskName(taskName))
}

// FilePath returns the task config file's path within its task directory.
func FilePath(appDir, taskName string) string {
	return filepath.Join(TaskDir(appDir, taskName), "task.toml")
}

// Load reads and parses a task config file.
func Load(path string) (*TaskConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg TaskConfig

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate checks the minimal invariants a task config must satisfy before
// a sync engine can be built from it.
func Validate(cfg *TaskConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("config: task name is required")
	}

	switch cfg.Variant {
	case VariantTree:
		if cfg.LocalRoot == "" {
			return fmt.Errorf("config: tree task %q requires local_root", cfg.Name)
		}
	case VariantBlob:
		if cfg.Database == "" {
			return fmt.Errorf("config: blob task %q requires database", cfg.Name)
		}
	default:
		return fmt.Errorf("config: task %q has unknown variant %q", cfg.Name, cfg.Variant)
	}

	switch cfg.Store.Kind {
	case StoreLocal, StoreS3:
	default:
		return fmt.Errorf("config: task %q has unknown store kind %q", cfg.Name, cfg.Store.Kind)
	}

	if cfg.Store.Bucket == "" {
		return fmt.Errorf("config: task %q requires store.bucket", cfg.Name)
	}

	return nil
}

// Save writes cfg to path, creating its directory if needed. The write is
// atomic (temp file in the same directory, fsync, rename), matching the
// teacher's own atomicWriteFile discipline for config files.
func Save(path string, cfg *TaskConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	var buf bytes.Buffer

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("config: encoding %s: %w", path, err)
	}

	return atomicWriteFile(path, buf.Bytes())
}

func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, taskDirPermissions); err != nil {
		return fmt.Errorf("config: creating directory %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, ".task-*.tmp")
	if err != nil {
		return fmt.Errorf("config: creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("config: writing temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("config: syncing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("config: closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, taskFilePermissions); err != nil {
		return fmt.Errorf("config: setting permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("config: renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}

// TreePaths is the on-disk manifest layout for a tree task (spec §6):
// filesystem.current and filesystem.last-local in the task directory. No
// filesystem.remote file is kept there; the downloaded remote manifest is
// read from a temporary file that is removed after use.
type TreePaths struct {
	CurrentManifest   string
	LastLocalManifest string
}

// NewTreePaths builds a TreePaths rooted at taskDir.
func NewTreePaths(taskDir string) TreePaths {
	return TreePaths{
		CurrentManifest:   filepath.Join(taskDir, "filesystem.current"),
		LastLocalManifest: filepath.Join(taskDir, "filesystem.last-local"),
	}
}

// BlobPaths is the on-disk layout for a blob task (spec §6): database.current,
// database.last-local, plus the dump file and its pre-fetch backup.
type BlobPaths struct {
	CurrentManifest   string
	LastLocalManifest string
	DumpFile          string
	BackupFile        string
}

// NewBlobPaths builds a BlobPaths rooted at taskDir.
func NewBlobPaths(taskDir string) BlobPaths {
	return BlobPaths{
		CurrentManifest:   filepath.Join(taskDir, "database.current"),
		LastLocalManifest: filepath.Join(taskDir, "database.last-local"),
		DumpFile:          filepath.Join(taskDir, "database.sql"),
		BackupFile:        filepath.Join(taskDir, "database.backup.sql"),
	}
}

// TreeManifestKey is the remote object key holding a tree task's manifest
// (spec §6): "/filesystem.checksum.tsv".
const TreeManifestKey = "/filesystem.checksum.tsv"

// BlobManifestKey is the remote object key holding a blob task's manifest
// row for database name db (spec §6): "/database.DB.checksum.tsv".
func BlobManifestKey(db string) string {
	return fmt.Sprintf("/database.%s.checksum.tsv", db)
}

// BlobDumpKey is the remote object key holding a blob task's dump for
// database name db (spec §6): "/database.DB.sql".
func BlobDumpKey(db string) string {
	return fmt.Sprintf("/database.%s.sql", db)
}
