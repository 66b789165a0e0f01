package etherscan

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// minCompilerVersion is the oldest solc release Etherscan accepts for single file verification.
var minCompilerVersion = semver.MustParse("0.4.11")

// ValidateCompilerVersion checks a long form solc version such as v0.8.8+commit.dddeac2f. The
// commit suffix is required because explorers match on the exact build.
func ValidateCompilerVersion(version string) error {
	if !strings.HasPrefix(version, "v") {
		return fmt.Errorf("compiler version %q must start with v", version)
	}

	v, err := semver.StrictNewVersion(strings.TrimPrefix(version, "v"))
	if err != nil {
		return fmt.Errorf("invalid compiler version %q: %w", version, err)
	}
	if !strings.HasPrefix(v.Metadata(), "commit.") {
		return fmt.Errorf("compiler version %q is missing the +commit.<hash> build suffix", version)
	}
	if v.LessThan(minCompilerVersion) {
		return fmt.Errorf("compiler version %q is older than %s", version, minCompilerVersion)
	}

	return nil
}
