// Package zypper implements the Package Manager Adapter for SUSE/openSUSE
// hosts, parsing zypper's pipe-delimited tabular output.
package zypper

import (
	"strconv"
	"strings"

	"github.com/amidaware/patchcore/internal/model"
	"github.com/amidaware/patchcore/internal/pkgmgr"
)

// ParseListPatches parses `zypper --non-interactive list-patches` output:
//
//	Repository          | Name               | Category    | Severity  | Interactive | Status     | Summary
//	----------------------------------------------------------------------------------------------------------
//	SLES12-SP5-Updates  | SUSE-SLE-SERVER-...| security    | important | ---         | needed     | ...
//
// Category maps to classification per spec §4.C ("for zypper, from patch
// categories"): security -> Security, recommended/optional/feature/document
// -> Other, anything unrecognized -> Unknown.
func ParseListPatches(stdout string) ([]pkgmgr.Candidate, error) {
	var out []pkgmgr.Candidate
	lines := strings.Split(stdout, "\n")
	headerSeen := false

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "---") {
			continue
		}
		cols := splitPipe(line)
		if !headerSeen {
			if len(cols) > 0 && strings.EqualFold(strings.TrimSpace(cols[0]), "Repository") {
				headerSeen = true
			}
			continue
		}
		if len(cols) < 6 {
			continue
		}
		name := strings.TrimSpace(cols[1])
		category := strings.ToLower(strings.TrimSpace(cols[2]))
		status := strings.ToLower(strings.TrimSpace(cols[5]))
		if status != "needed" {
			continue
		}

		out = append(out, pkgmgr.Candidate{
			Name:           name,
			Version:        "", // zypper patches identify by name; version resolved at install time
			Classification: classifyCategory(category),
		})
	}
	return out, nil
}

func classifyCategory(category string) model.Classification {
	switch category {
	case "security":
		return model.ClassificationSecurity
	case "recommended", "optional", "feature", "document", "yast":
		return model.ClassificationOther
	default:
		return model.ClassificationUnknown
	}
}

func splitPipe(line string) []string {
	parts := strings.Split(line, "|")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

// ParseInstalled parses `rpm -qa --qf '%{NAME} %{VERSION}-%{RELEASE}\n'`
// (zypper hosts are RPM-based too).
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

// ParseSimulate parses `zypper --non-interactive install --dry-run <names>`.
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
		case strings.HasPrefix(line, "The following") && strings.Contains(line, "NEW package"):
			inBlock = true
			continue
		case strings.HasPrefix(line, "The following") && !strings.Contains(line, "NEW package"):
			inBlock = false
		default:
			if inBlock && line != "" {
				for _, name := range strings.Fields(line) {
					if !req[name] {
						res.AdditionalDependencies = append(res.AdditionalDependencies, name)
					}
				}
			}
		}
	}

	if strings.Contains(stdout, "Problem:") || strings.Contains(stderr, "Problem:") {
		for _, line := range strings.Split(stdout+"\n"+stderr, "\n") {
			if strings.Contains(line, "Problem:") {
				res.Conflicts = append(res.Conflicts, strings.TrimSpace(line))
			}
		}
	}

	if exitCode != 0 && len(res.Conflicts) == 0 {
		return res, model.New(model.KindPackageManagerFailed, "zypper simulate failed with exit code "+strconv.Itoa(exitCode))
	}

	return res, nil
}

// ParsePsRebootHint parses `zypper ps -s` output, which prints a summary
// line naming processes using deleted files after a library update (spec
// §4.B "zypper's ps -s hints"). It reports true only when a line other than
// the table header or separator mentions "reboot" (case-insensitive); table
// rows listing processes or services do not by themselves count.
func ParsePsRebootHint(stdout string) bool {
	lines := strings.Split(stdout, "\n")
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "PID") || strings.HasPrefix(line, "---") {
			continue
		}
		if strings.Contains(strings.ToLower(line), "reboot") {
			return true
		}
	}
	return false
}
