// Package distro implements the Environment & Distro Resolver (spec §4.A):
// it detects the Linux distribution family and selects the matching
// Package Manager Adapter family name. The actual adapter construction
// lives in internal/pkgmgr/registry, which imports this package for the
// Family type.
package distro

import (
	"bufio"
	"os"
	"strings"

	"github.com/amidaware/patchcore/internal/model"
)

// Family names the package-manager family this host uses.
type Family string

const (
	FamilyAPT    Family = "apt"
	FamilyYum    Family = "yum"
	FamilyDNF    Family = "dnf"
	FamilyZypper Family = "zypper"
)

// Info is the resolved distribution identity.
type Info struct {
	ID        string // e.g. "ubuntu", "rhel", "sles"
	VersionID string
	Family    Family
}

var osReleasePaths = []string{"/etc/os-release", "/usr/lib/os-release"}

// Resolve detects the distribution and selects an adapter family. It
// returns *model.Error{Kind: UnsupportedDistro} when nothing matches,
// per spec §4.A.
func Resolve() (*Info, error) {
	for _, p := range osReleasePaths {
		if fields, err := parseOSRelease(p); err == nil {
			if info := classify(fields); info != nil {
				return info, nil
			}
		}
	}

	// Fallback release files for older distros without os-release.
	if fileExists("/etc/redhat-release") {
		return &Info{ID: "rhel", Family: familyForRedHat("")}, nil
	}
	if fileExists("/etc/SuSE-release") {
		return &Info{ID: "sles", Family: FamilyZypper}, nil
	}
	if fileExists("/etc/debian_version") {
		return &Info{ID: "debian", Family: FamilyAPT}, nil
	}

	return nil, model.New(model.KindUnsupportedDistro, "no matching package manager family found")
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func parseOSRelease(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fields := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := parts[0]
		val := strings.Trim(parts[1], `"'`)
		fields[key] = val
	}
	return fields, scanner.Err()
}

func classify(fields map[string]string) *Info {
	id := strings.ToLower(fields["ID"])
	idLike := strings.ToLower(fields["ID_LIKE"])
	version := fields["VERSION_ID"]

	if id == "" {
		return nil
	}

	switch {
	case id == "ubuntu" || id == "debian" || strings.Contains(idLike, "debian"):
		return &Info{ID: id, VersionID: version, Family: FamilyAPT}
	case id == "fedora" || strings.Contains(idLike, "fedora"):
		return &Info{ID: id, VersionID: version, Family: FamilyDNF}
	case id == "rhel" || id == "centos" || id == "rocky" || id == "almalinux" ||
		id == "amzn" || strings.Contains(idLike, "rhel") || strings.Contains(idLike, "fedora"):
		return &Info{ID: id, VersionID: version, Family: familyForRedHat(version)}
	case id == "sles" || id == "opensuse" || id == "opensuse-leap" || strings.Contains(idLike, "suse"):
		return &Info{ID: id, VersionID: version, Family: FamilyZypper}
	default:
		return nil
	}
}

// familyForRedHat picks dnf for RHEL 8+/Fedora-descended releases and yum
// for older ones, matching the real-world cutover (RHEL/CentOS 8 switched
// the default CLI from yum to dnf, though both are usually present).
func familyForRedHat(versionID string) Family {
	major := 0
	for _, r := range versionID {
		if r < '0' || r > '9' {
			break
		}
		major = major*10 + int(r-'0')
	}
	if major >= 8 {
		return FamilyDNF
	}
	if versionID == "" {
		return FamilyDNF
	}
	return FamilyYum
}
