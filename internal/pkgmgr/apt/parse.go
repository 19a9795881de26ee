// Package apt implements the Package Manager Adapter for Debian/Ubuntu
// systems, driving apt-get/apt-cache and parsing their textual output.
package apt

import (
	"strings"

	"github.com/amidaware/patchcore/internal/model"
	"github.com/amidaware/patchcore/internal/pkgmgr"
)

// ParseUpgradable parses `apt list --upgradable` stdout into candidates.
// Exposed as a pure function per spec §4.B "Parsers expose a pure
// parse(stdout,stderr,exit) entry for table-driven testing".
//
// Typical line:
//
//	openssl/focal-security 1.1.1f-1ubuntu2.19 amd64 [upgradable from: 1.1.1f-1ubuntu2.17]
func ParseUpgradable(stdout, stderr string, exitCode int) ([]pkgmgr.Candidate, error) {
	if exitCode != 0 && !strings.Contains(stdout, "/") {
		return nil, model.Wrap(model.KindPackageManagerFailed, errorFromStderr(stderr), "apt list --upgradable failed")
	}

	var out []pkgmgr.Candidate
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Listing...") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		nameAndPocket := fields[0]
		parts := strings.SplitN(nameAndPocket, "/", 2)
		name := parts[0]
		pocket := ""
		if len(parts) == 2 {
			pocket = parts[1]
		}
		version := fields[1]

		out = append(out, pkgmgr.Candidate{
			Name:           name,
			Version:        version,
			Classification: classifyPocket(pocket),
		})
	}
	return out, nil
}

// classifyPocket derives classification from the apt archive pocket
// (spec §4.B: "for apt, classification derives from the source repository
// (security pocket -> Security; other pockets -> Other)"), plus the
// Ubuntu-Pro ESM pocket suffix recovered from original_source/
// UbuntuProClient.py (SPEC_FULL.md module addition 1).
func classifyPocket(pocket string) model.Classification {
	if pocket == "" {
		return model.ClassificationUnknown
	}
	lower := strings.ToLower(pocket)
	switch {
	case strings.Contains(lower, "esm-infra") || strings.Contains(lower, "esm-apps"):
		return model.ClassificationSecurity
	case strings.Contains(lower, "security"):
		return model.ClassificationSecurity
	case strings.Contains(lower, "updates") || strings.Contains(lower, "backports"):
		return model.ClassificationOther
	default:
		return model.ClassificationOther
	}
}

// ParseInstalled parses `dpkg-query -W -f='${Package} ${Version}\n'` output.
func ParseInstalled(stdout string) []pkgmgr.Installed {
	var out []pkgmgr.Installed
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		out = append(out, pkgmgr.Installed{Name: fields[0], Version: fields[1]})
	}
	return out
}

// ParseSimulate parses `apt-get install --assume-no -s <names>` output into
// a dependency-closure result. Tolerates the "Operation aborted." footer
// assume-no runs emit (spec §4.B) and the "0 upgraded, N newly installed"
// summary line.
func ParseSimulate(stdout, stderr string, exitCode int, requested []string) (pkgmgr.SimulateResult, error) {
	res := pkgmgr.SimulateResult{Requested: requested}

	if strings.Contains(stdout, "E:") || strings.Contains(stderr, "E:") {
		// apt-get prefixes hard errors with "E:"; a pure dependency
		// conflict is reported this way rather than via exit code alone.
		for _, line := range strings.Split(stdout+"\n"+stderr, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "E:") {
				res.Conflicts = append(res.Conflicts, strings.TrimSpace(line))
			}
		}
	}

	inBlock := false
	for _, rawLine := range strings.Split(stdout, "\n") {
		line := strings.TrimSpace(rawLine)
		switch {
		case strings.HasPrefix(line, "The following additional packages will be installed:"):
			inBlock = true
			continue
		case strings.HasPrefix(line, "The following NEW packages will be installed:"):
			inBlock = true
			continue
		case strings.HasPrefix(line, "Suggested packages:"),
			strings.HasPrefix(line, "Recommended packages:"),
			strings.HasPrefix(line, "0 upgraded"),
			strings.HasPrefix(line, "Inst "),
			strings.HasPrefix(line, "Conf "),
			strings.HasPrefix(line, "Abort."),
			strings.HasPrefix(line, "Operation aborted."):
			inBlock = false
		default:
			if inBlock && line != "" {
				res.AdditionalDependencies = append(res.AdditionalDependencies, strings.Fields(line)...)
			}
		}
	}

	// Remove anything already explicitly requested from the discovered
	// "additional" set so callers see only the true closure delta.
	req := make(map[string]bool, len(requested))
	for _, r := range requested {
		req[r] = true
	}
	deduped := res.AdditionalDependencies[:0]
	seen := make(map[string]bool)
	for _, d := range res.AdditionalDependencies {
		if req[d] || seen[d] {
			continue
		}
		seen[d] = true
		deduped = append(deduped, d)
	}
	res.AdditionalDependencies = deduped

	if exitCode != 0 && len(res.Conflicts) == 0 {
		return res, model.Wrap(model.KindPackageManagerFailed, errorFromStderr(stderr), "apt-get simulate failed")
	}

	return res, nil
}

func errorFromStderr(stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		stderr = "no stderr captured"
	}
	return &stringError{stderr}
}

type stringError struct{ s string }

func (e *stringError) Error() string { return e.s }
