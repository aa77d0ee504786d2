package migrate

import (
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

const (
	upMarker    = "-- +goose Up"
	downMarker  = "-- +goose Down"
	beginMarker = "-- +goose StatementBegin"
	endMarker   = "-- +goose StatementEnd"
)

// ValidateDir checks every migration in dir and reports all problems at once.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return Validate(Source(dir))
}

// Validate checks file naming, version and name uniqueness, and goose
// annotations for the migrations in fsys.
func Validate(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var (
		problems error
		versions = map[string]string{}
		names    = map[string]string{}
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		file := entry.Name()

		m := sqlFileRe.FindStringSubmatch(file)
		if m == nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: expected YYYYMMDDHHMMSS_name.sql", file))
			continue
		}
		if prev, ok := versions[m[1]]; ok {
			problems = multierr.Append(problems, fmt.Errorf("%s: version %s already used by %s", file, m[1], prev))
		}
		versions[m[1]] = file
		if prev, ok := names[m[2]]; ok {
			problems = multierr.Append(problems, fmt.Errorf("%s: name %q already used by %s", file, m[2], prev))
		}
		names[m[2]] = file

		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: %w", file, err))
			continue
		}
		problems = multierr.Append(problems, checkAnnotations(file, string(body)))
	}

	if len(versions) == 0 {
		problems = multierr.Append(problems, fmt.Errorf("no migrations found"))
	}
	return problems
}

func checkAnnotations(file, body string) error {
	up := strings.Index(body, upMarker)
	down := strings.Index(body, downMarker)

	var problems error
	switch {
	case up < 0:
		problems = multierr.Append(problems, fmt.Errorf("%s: missing %q", file, upMarker))
	case down < 0:
		problems = multierr.Append(problems, fmt.Errorf("%s: missing %q", file, downMarker))
	case down < up:
		problems = multierr.Append(problems, fmt.Errorf("%s: Down section precedes Up", file))
	}
	if begins, ends := strings.Count(body, beginMarker), strings.Count(body, endMarker); begins != ends {
		problems = multierr.Append(problems, fmt.Errorf("%s: %d StatementBegin and %d StatementEnd markers", file, begins, ends))
	}
	return problems
}
