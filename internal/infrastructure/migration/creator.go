package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"
)

const (
	upSuffix      = ".up.sql"
	downSuffix    = ".down.sql"
	versionDigits = 6
)

const upTemplate = `-- {{.Version}} {{.Name}}
-- {{.Description}}
-- Created {{.Timestamp}}

`

const downTemplate = `-- {{.Version}} {{.Name}} (rollback)
-- Reverts: {{.Description}}

`

// ErrUnpairedMigration is returned when a version has an up file without a
// matching down file or the other way round.
var ErrUnpairedMigration = errors.New("migration: up/down files are not paired")

// ScriptPair describes one versioned migration.
type ScriptPair struct {
	Version     uint
	Name        string
	Description string
	Timestamp   string
	UpPath      string
	DownPath    string
}

// BaseName returns the file stem shared by the up and down scripts.
func (p ScriptPair) BaseName() string {
	return fmt.Sprintf("%0*d_%s", versionDigits, p.Version, p.Name)
}

// NewScript writes an empty up/down pair into dir using the next free
// sequential version.
func NewScript(dir, name, description string) (*ScriptPair, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create migrations directory: %w", err)
	}
	slug := slugify(name)
	if slug == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}

	existing, err := Scan(os.DirFS(dir))
	if err != nil {
		return nil, err
	}
	var next uint = 1
	if n := len(existing); n > 0 {
		next = existing[n-1].Version + 1
	}

	pair := &ScriptPair{
		Version:     next,
		Name:        slug,
		Description: description,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	pair.UpPath = filepath.Join(dir, pair.BaseName()+upSuffix)
	pair.DownPath = filepath.Join(dir, pair.BaseName()+downSuffix)

	if err := renderScript(pair.UpPath, upTemplate, pair); err != nil {
		return nil, err
	}
	if err := renderScript(pair.DownPath, downTemplate, pair); err != nil {
		_ = os.Remove(pair.UpPath)
		return nil, err
	}
	return pair, nil
}

func renderScript(dst, body string, pair *ScriptPair) error {
	tmpl, err := template.New(filepath.Base(dst)).Parse(body)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer f.Close()
	if err := tmpl.Execute(f, pair); err != nil {
		return fmt.Errorf("render %s: %w", dst, err)
	}
	return nil
}

// Scan lists the migration pairs found at the root of fsys, ordered by
// version. Files that do not follow the NNNNNN_name.{up,down}.sql scheme are
// ignored. A missing directory yields no pairs.
func Scan(fsys fs.FS) ([]ScriptPair, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := make(map[uint]*ScriptPair)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		file := entry.Name()
		var stem string
		var up bool
		switch {
		case strings.HasSuffix(file, upSuffix):
			stem, up = strings.TrimSuffix(file, upSuffix), true
		case strings.HasSuffix(file, downSuffix):
			stem = strings.TrimSuffix(file, downSuffix)
		default:
			continue
		}
		version, name, ok := splitStem(stem)
		if !ok {
			continue
		}
		pair, seen := byVersion[version]
		if !seen {
			pair = &ScriptPair{Version: version, Name: name}
			byVersion[version] = pair
		} else if pair.Name != name {
			return nil, fmt.Errorf("migration: version %d used by %q and %q", version, pair.Name, name)
		}
		if up {
			pair.UpPath = path.Clean(file)
		} else {
			pair.DownPath = path.Clean(file)
		}
	}

	pairs := make([]ScriptPair, 0, len(byVersion))
	for _, p := range byVersion {
		if p.UpPath == "" || p.DownPath == "" {
			return nil, fmt.Errorf("%w: %s", ErrUnpairedMigration, p.BaseName())
		}
		pairs = append(pairs, *p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Version < pairs[j].Version })
	return pairs, nil
}

func splitStem(stem string) (uint, string, bool) {
	prefix, name, found := strings.Cut(stem, "_")
	if !found || name == "" {
		return 0, "", false
	}
	v, err := strconv.ParseUint(prefix, 10, 32)
	if err != nil || v == 0 {
		return 0, "", false
	}
	return uint(v), name, true
}

// slugify lowercases name and collapses separators into single underscores.
func slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			pendingSep = true
		}
	}
	return b.String()
}
