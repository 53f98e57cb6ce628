// Package migrations embeds and validates the SQL migrations that bring a
// fresh database up to the bucket/event/key-value/api-key schema.
package migrations

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var embeddedMigrations embed.FS

// migrationFilenameRegex matches 001_name.up.sql / 001_name.down.sql.
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

type (
	// Set provides validated access to the embedded migration files.
	Set struct {
		fs        fs.FS
		checksums map[string]string
	}

	// fileInfo holds the parsed components of a migration filename.
	fileInfo struct {
		Sequence  int
		Name      string
		Direction string
		Filename  string
	}
)

// NewSet wraps filesystem with validation helpers. Pass nil to use the
// embedded *.sql files built into the binary.
func NewSet(filesystem fs.FS) *Set {
	if filesystem == nil {
		filesystem = embeddedMigrations
	}

	return &Set{fs: filesystem, checksums: make(map[string]string)}
}

// FS returns the underlying filesystem, for wiring into golang-migrate's
// iofs source driver.
func (s *Set) FS() fs.FS {
	return s.fs
}

// List returns every embedded file matching the strict naming convention,
// sorted lexicographically (which also orders down before up within a
// sequence, and sequence N before N+1).
func (s *Set) List() ([]string, error) {
	entries, err := fs.ReadDir(s.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) == ".sql" && migrationFilenameRegex.MatchString(name) {
			files = append(files, name)
		}
	}

	sort.Strings(files)

	return files, nil
}

// Validate checks filename format, up/down pairing, sequence contiguity,
// and (once a prior run has recorded them) checksum stability.
func (s *Set) Validate() error {
	files, err := s.List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no embedded migration files found")
	}

	for _, file := range files {
		if _, err := s.Content(file); err != nil {
			return fmt.Errorf("read migration file %s: %w", file, err)
		}
	}

	if err := s.validateFilenames(files); err != nil {
		return err
	}

	if err := s.validatePairing(files); err != nil {
		return err
	}

	if err := s.validateSequence(files); err != nil {
		return err
	}

	if len(s.checksums) > 0 {
		if err := s.validateChecksums(files); err != nil {
			return err
		}
	}

	for _, file := range files {
		content, err := s.Content(file)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", file, err)
		}

		s.checksums[file] = checksum(content)
	}

	return nil
}

// Content returns the raw bytes of a named migration file.
func (s *Set) Content(filename string) ([]byte, error) {
	return fs.ReadFile(s.fs, filename)
}

func parseFilename(filename string) (*fileInfo, error) {
	matches := migrationFilenameRegex.FindStringSubmatch(filename)
	if len(matches) != 4 {
		return nil, fmt.Errorf(
			"invalid migration filename %s (expected 001_name.up.sql or 001_name.down.sql)",
			filename,
		)
	}

	seq, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid sequence number in %s: %w", filename, err)
	}

	return &fileInfo{Sequence: seq, Name: matches[2], Direction: matches[3], Filename: filename}, nil
}

func (s *Set) validateFilenames(files []string) error {
	for _, file := range files {
		if _, err := parseFilename(file); err != nil {
			return fmt.Errorf("filename validation failed for %s: %w", file, err)
		}
	}

	return nil
}

func (s *Set) validatePairing(files []string) error {
	byKey := make(map[string]map[string]*fileInfo)

	for _, file := range files {
		info, err := parseFilename(file)
		if err != nil {
			return err
		}

		key := fmt.Sprintf("%03d_%s", info.Sequence, info.Name)
		if byKey[key] == nil {
			byKey[key] = make(map[string]*fileInfo)
		}

		byKey[key][info.Direction] = info
	}

	for key, directions := range byKey {
		if len(directions) != 2 {
			if _, hasUp := directions["up"]; !hasUp {
				return fmt.Errorf("orphaned down migration: missing up migration for %s", key)
			}

			if _, hasDown := directions["down"]; !hasDown {
				return fmt.Errorf("orphaned up migration: missing down migration for %s", key)
			}
		}
	}

	return nil
}

func (s *Set) validateSequence(files []string) error {
	seen := make(map[int]bool)

	for _, file := range files {
		info, err := parseFilename(file)
		if err != nil {
			return err
		}

		seen[info.Sequence] = true
	}

	var sequences []int
	for seq := range seen {
		sequences = append(sequences, seq)
	}

	sort.Ints(sequences)

	if len(sequences) == 0 {
		return nil
	}

	if sequences[0] != 1 {
		return fmt.Errorf("migration sequence should start with 001, but found %03d", sequences[0])
	}

	for i := 1; i < len(sequences); i++ {
		expected := sequences[i-1] + 1
		if sequences[i] != expected {
			return fmt.Errorf("gap in migration sequence: expected %03d, found %03d", expected, sequences[i])
		}
	}

	return nil
}

func (s *Set) validateChecksums(files []string) error {
	for _, file := range files {
		content, err := s.Content(file)
		if err != nil {
			return fmt.Errorf("read file %s for checksum validation: %w", file, err)
		}

		current := checksum(content)
		if stored, ok := s.checksums[file]; ok && current != stored {
			return fmt.Errorf("checksum mismatch for %s: file has been modified", file)
		}
	}

	return nil
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)

	return fmt.Sprintf("%x", sum)
}
