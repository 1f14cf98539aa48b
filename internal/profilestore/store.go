// Package profilestore persists per-profile writing samples as flat text
// files, one file per profile under a profiles directory.
//
// Canonical sample segmentation: a sample boundary is either a separator
// line consisting solely of "---" or a blank-line gap (one or more empty
// lines) between paragraphs. Importers normalize samples to this
// convention; Append joins with a single blank line.
package profilestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// DefaultProfile is the reserved, always-present profile.
const DefaultProfile = "default"

var (
	// ErrProfileExists is returned by Create when the profile already has a sample file.
	ErrProfileExists = errors.New("profile already exists")
	// ErrProfileNotFound is returned when no sample file exists for the profile.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrInvalidName is returned when a profile name slugifies to nothing.
	ErrInvalidName = errors.New("invalid profile name")
)

// Store manages per-profile sample files. Writes to the same profile are
// serialized with a per-profile mutex; file replaces are atomic
// (write to temp, rename).
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Store rooted at dir, creating the directory and the
// reserved default profile's (possibly empty) sample file if missing.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating profiles directory: %w", err)
	}
	s := &Store{dir: dir, locks: make(map[string]*sync.Mutex)}

	defaultPath := s.path(DefaultProfile)
	if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
		if err := os.WriteFile(defaultPath, nil, 0o644); err != nil {
			return nil, fmt.Errorf("creating default profile: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("checking default profile: %w", err)
	}
	return s, nil
}

var slugStrip = regexp.MustCompile(`[^a-z0-9 _-]`)

// Slugify normalizes a profile name to a filesystem-safe identifier:
// lowercase, alphanumerics plus underscore and hyphen, spaces collapsed
// to underscores.
func Slugify(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = slugStrip.ReplaceAllString(name, "")
	name = strings.Join(strings.Fields(name), "_")
	return name
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, Slugify(name)+".txt")
}

// lock returns the write mutex for a profile, creating it on first use.
func (s *Store) lock(slug string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[slug]
	if !ok {
		l = &sync.Mutex{}
		s.locks[slug] = l
	}
	return l
}

// Exists reports whether the profile has a sample file.
func (s *Store) Exists(name string) bool {
	if Slugify(name) == "" {
		return false
	}
	_, err := os.Stat(s.path(name))
	return err == nil
}

// Create writes a new profile's sample file. Returns ErrProfileExists if
// the profile is already present and ErrInvalidName for unusable names.
func (s *Store) Create(name, samples string) error {
	slug := Slugify(name)
	if slug == "" {
		return ErrInvalidName
	}

	l := s.lock(slug)
	l.Lock()
	defer l.Unlock()

	path := s.path(name)
	if _, err := os.Stat(path); err == nil {
		return ErrProfileExists
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking profile %s: %w", slug, err)
	}

	return atomicWrite(path, strings.TrimSpace(samples))
}

// Append adds samples to an existing profile, separated by a blank line.
// Returns ErrProfileNotFound if the profile has no sample file.
func (s *Store) Append(name, samples string) error {
	slug := Slugify(name)
	if slug == "" {
		return ErrInvalidName
	}

	l := s.lock(slug)
	l.Lock()
	defer l.Unlock()

	path := s.path(name)
	existing, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ErrProfileNotFound
	}
	if err != nil {
		return fmt.Errorf("reading profile %s: %w", slug, err)
	}

	content := strings.TrimSpace(string(existing))
	addition := strings.TrimSpace(samples)
	if addition == "" {
		return nil
	}
	if content == "" {
		content = addition
	} else {
		content = content + "\n\n" + addition
	}
	return atomicWrite(path, content)
}

// Samples returns the profile's samples split by the canonical
// segmentation rule. Returns ErrProfileNotFound for a missing profile;
// an existing profile with no parseable samples yields an empty slice.
func (s *Store) Samples(name string) ([]string, error) {
	if Slugify(name) == "" {
		return nil, ErrInvalidName
	}
	data, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", Slugify(name), err)
	}
	return SplitSamples(string(data)), nil
}

// SampleCount returns the number of samples stored for the profile,
// zero for a missing profile.
func (s *Store) SampleCount(name string) int {
	samples, err := s.Samples(name)
	if err != nil {
		return 0
	}
	return len(samples)
}

// List returns all profile names: the default profile first, the rest
// sorted alphabetically.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}

	names := []string{DefaultProfile}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".txt")
		if name == DefaultProfile {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names[1:])
	return names, nil
}

var sampleGap = regexp.MustCompile(`\n[ \t]*\n+`)

// SplitSamples applies the canonical segmentation rule: split at "---"
// separator lines and at blank-line gaps, trim each piece, drop empties.
func SplitSamples(text string) []string {
	var samples []string
	for _, block := range sampleGap.Split(text, -1) {
		for _, piece := range splitMarkers(block) {
			piece = strings.TrimSpace(piece)
			if piece != "" {
				samples = append(samples, piece)
			}
		}
	}
	return samples
}

// splitMarkers splits a block at lines that consist solely of "---".
func splitMarkers(block string) []string {
	lines := strings.Split(block, "\n")
	var pieces []string
	var current []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "---" {
			pieces = append(pieces, strings.Join(current, "\n"))
			current = current[:0]
			continue
		}
		current = append(current, line)
	}
	pieces = append(pieces, strings.Join(current, "\n"))
	return pieces
}

// atomicWrite replaces path's content via a temp file and rename.
func atomicWrite(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".quill-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
