// Package yum implements the Package Manager Adapter shared by RHEL/CentOS
// (yum) and Fedora/RHEL8+ (dnf) hosts — both tools share a NEVRA-based
// check-update output format, so one Adapter parametrized by binary name
// serves both families (spec §4.B capability-uniform wrapper).
package yum

import (
	"strconv"
	"strings"

	"github.com/amidaware/patchcore/internal/model"
	"github.com/amidaware/patchcore/internal/pkgmgr"
)

var archSuffixes = []string{".x86_64", ".noarch", ".i686", ".aarch64", ".s390x", ".ppc64le"}

func stripArch(nameDotArch string) (name string) {
	for _, suf := range archSuffixes {
		if strings.HasSuffix(nameDotArch, suf) {
			return strings.TrimSuffix(nameDotArch, suf)
		}
	}
	return nameDotArch
}

// ParseCheckUpdate parses `yum check-update` / `dnf check-update` output
// into candidates. Tolerates the multi-line wrapping dnf performs when a
// long package name pushes the version/repo columns onto the next line
// (spec §4.B), and skips the "Loaded plugins"/blank-line preamble and the
// "Obsoleting Packages" trailer section.
func ParseCheckUpdate(stdout string, exitCode int) ([]pkgmgr.Candidate, error) {
	// check-update's own exit codes: 0 = no updates, 100 = updates
	// available, anything else = real failure.
	if exitCode != 0 && exitCode != 100 {
		return nil, model.New(model.KindPackageManagerFailed, "check-update failed with exit code "+strconv.Itoa(exitCode))
	}

	lines := strings.Split(stdout, "\n")
	var out []pkgmgr.Candidate

	pendingNameArch := ""
	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Obsoleting Packages") {
			// The trailer lists obsoleting/obsoleted pairs, not updates.
			break
		}
		if trimmed == "" || strings.HasPrefix(trimmed, "Loaded plugins") ||
			strings.HasPrefix(trimmed, "Last metadata") ||
			strings.HasPrefix(trimmed, "Security:") {
			continue
		}

		fields := strings.Fields(trimmed)

		if pendingNameArch != "" {
			// Continuation line: version + repo only.
			if len(fields) >= 2 {
				out = append(out, pkgmgr.Candidate{
					Name:           stripArch(pendingNameArch),
					Version:        fields[0],
					Classification: model.ClassificationUnknown,
				})
			}
			pendingNameArch = ""
			continue
		}

		if len(fields) == 1 {
			// Name.arch alone on its own line; version/repo wrapped to
			// the next line.
			pendingNameArch = fields[0]
			continue
		}

		if len(fields) >= 3 {
			out = append(out, pkgmgr.Candidate{
				Name:           stripArch(fields[0]),
				Version:        fields[1],
				Classification: model.ClassificationUnknown,
			})
		}
	}

	return dedupe(out), nil
}

func dedupe(in []pkgmgr.Candidate) []pkgmgr.Candidate {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, c := range in {
		key := c.Name + "\x00" + c.Version
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// ParseInstalled parses `rpm -qa --qf '%{NAME} %{VERSION}-%{RELEASE}\n'`.
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

// ParseSimulate parses `yum/dnf install --assumeno <names>` dry-run output.
func ParseSimulate(stdout, stderr string, exitCode int, requested []string) (pkgmgr.SimulateResult, error) {
	res := pkgmgr.SimulateResult{Requested: requested}

	req := make(map[string]bool, len(requested))
	for _, r := range requested {
		req[r] = true
	}

	inBlock := false
	for _, raw := range strings.Split(stdout, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "Installing for dependencies:"),
			strings.HasPrefix(line, "Dependencies Resolved"):
			inBlock = strings.HasPrefix(line, "Installing for dependencies:")
			continue
		case strings.HasPrefix(line, "Transaction Summary"),
			strings.HasPrefix(line, "Is this ok"):
			inBlock = false
		default:
			if inBlock && line != "" {
				fields := strings.Fields(line)
				if len(fields) > 0 {
					name := stripArch(fields[0])
					if !req[name] {
						res.AdditionalDependencies = append(res.AdditionalDependencies, name)
					}
				}
			}
		}
	}

	if strings.Contains(stdout, "Error:") || strings.Contains(stderr, "Error:") {
		for _, line := range strings.Split(stdout+"\n"+stderr, "\n") {
			if strings.Contains(line, "Error:") {
				res.Conflicts = append(res.Conflicts, strings.TrimSpace(line))
			}
		}
	}

	if exitCode != 0 && exitCode != 1 && len(res.Conflicts) == 0 {
		return res, model.New(model.KindPackageManagerFailed, "simulate install failed with exit code "+strconv.Itoa(exitCode))
	}

	return res, nil
}
