package build

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrCompilerNotFound is returned by Check when the compiler is not on PATH.
	ErrCompilerNotFound = errors.New("document compiler not found")

	// ErrUnsupportedVersion is returned by Check when the compiler version
	// does not satisfy the configured constraint.
	ErrUnsupportedVersion = errors.New("unsupported compiler version")
)

const versionTimeout = 10 * time.Second

// Check verifies that the compiler can be launched and, when MinVersion is
// set, that its reported version satisfies the constraint. It returns the
// detected version, or "" when no constraint is configured.
func (r *Runner) Check(ctx context.Context) (string, error) {
	path, err := exec.LookPath(r.opts.Command)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrCompilerNotFound, r.opts.Command, err)
	}

	if r.opts.MinVersion == "" {
		return "", nil
	}

	constraint, err := semver.NewConstraint(r.opts.MinVersion)
	if err != nil {
		return "", fmt.Errorf("parsing compiler version constraint %q: %w", r.opts.MinVersion, err)
	}

	vctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	out, err := exec.CommandContext(vctx, path, "--version").CombinedOutput() //nolint:gosec
	if err != nil {
		return "", fmt.Errorf("querying %s version: %w", r.opts.Command, err)
	}

	v, err := ParseVersion(string(out))
	if err != nil {
		return "", err
	}

	if !constraint.Check(v) {
		return v.String(), fmt.Errorf("%w: %s %s does not satisfy %q",
			ErrUnsupportedVersion, r.opts.Command, v, r.opts.MinVersion)
	}

	return v.String(), nil
}

// ParseVersion extracts the first semantic version from the output of
// `<compiler> --version`, e.g. "sphinx-build 7.2.6" or
// "Sphinx (sphinx-build) 1.8.5".
func ParseVersion(out string) (*semver.Version, error) {
	for _, field := range strings.Fields(out) {
		field = strings.Trim(field, "(),")
		if field == "" || (field[0] < '0' || field[0] > '9') && field[0] != 'v' {
			continue
		}

		if v, err := semver.NewVersion(field); err == nil {
			return v, nil
		}
	}

	return nil, fmt.Errorf("no version found in %q", strings.TrimSpace(out))
}
