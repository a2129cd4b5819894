// Package migrate implements the Migration Runner (spec §4.9):
// file-based UP/DOWN SQL migrations tracked in a `_migrations` table,
// checksum-verified before every apply, run one-per-transaction so a
// failing statement halts the run without touching later files.
package migrate

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/util"
)

const (
	upMarker   = "-- UP"
	downMarker = "-- DOWN"

	versionLayout = "20060102_150405"
)

// Migration is one parsed migration file (spec §4.9 file format).
type Migration struct {
	Version     string
	Description string
	Up          string
	Down        string
	Checksum    string
	Path        string
}

var filenamePattern = regexp.MustCompile(`^(\d{8}_\d{6})_(.+)\.sql$`)

// parseFilename splits a migration filename into its version and
// description, per spec §4.9's `YYYYMMDD_HHMMSS_snake_case_description.sql`.
func parseFilename(name string) (version, description string, ok bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// parseContent splits raw file content into its UP and DOWN sections.
// Both are required (spec §4.9).
func parseContent(content string) (up, down string, err error) {
	upIdx := strings.Index(content, upMarker)
	downIdx := strings.Index(content, downMarker)
	if upIdx < 0 || downIdx < 0 {
		return "", "", dberrors.NewValidation("", "migration file must contain both -- UP and -- DOWN sections")
	}
	if downIdx < upIdx {
		return "", "", dberrors.NewValidation("", "-- DOWN section must follow -- UP")
	}
	up = strings.TrimSpace(content[upIdx+len(upMarker) : downIdx])
	down = strings.TrimSpace(content[downIdx+len(downMarker):])
	if up == "" || down == "" {
		return "", "", dberrors.NewValidation("", "migration file's UP and DOWN sections must both be non-empty")
	}
	return up, down, nil
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// loadFile reads and parses one migration file from disk.
func loadFile(path string) (*Migration, error) {
	version, description, ok := parseFilename(filepath.Base(path))
	if !ok {
		return nil, dberrors.NewValidation("", "migration filename does not match YYYYMMDD_HHMMSS_description.sql")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, dberrors.NewMigrationFileMissing(version)
	}
	up, down, err := parseContent(string(raw))
	if err != nil {
		return nil, err
	}
	return &Migration{
		Version:     version,
		Description: description,
		Up:          up,
		Down:        down,
		Checksum:    checksum(raw),
		Path:        path,
	}, nil
}

// loadDir reads every *.sql migration file in dir, sorted ascending by
// version.
func loadDir(dir string) ([]*Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, dberrors.NewValidation("", "cannot read migration directory: "+err.Error())
	}
	var out []*Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m, err := loadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Create generates a new migration file in dir with a current-timestamp
// version and a commented UP/DOWN template (spec §4.9 `create`).
func Create(dir, description string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", dberrors.NewValidation("", "cannot create migration directory: "+err.Error())
	}
	version := time.Now().UTC().Format(versionLayout)
	slug := util.SnakeCase(description)
	name := version + "_" + slug + ".sql"
	path := filepath.Join(dir, name)

	body := "-- UP\n-- write your forward migration statements here\n\n-- DOWN\n-- write the statements that undo the UP section here\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", dberrors.NewValidation("", "cannot write migration file: "+err.Error())
	}
	return path, nil
}
