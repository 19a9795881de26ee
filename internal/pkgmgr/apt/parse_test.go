package apt

import (
	"testing"

	"github.com/amidaware/patchcore/internal/model"
)

// TestParseUpgradableScenario mirrors spec §8 scenario 1: "Assessment, apt,
// Ubuntu, no filters." openssl is in the focal-security pocket, vim in
// focal-updates.
func TestParseUpgradableScenario(t *testing.T) {
	stdout := `Listing...
openssl/focal-security 1.1.1f-1ubuntu2.19 amd64 [upgradable from: 1.1.1f-1ubuntu2.17]
vim/focal-updates 8.2.0000-1ubuntu2.1 amd64 [upgradable from: 8.2.0000-1ubuntu2]
`
	got, err := ParseUpgradable(stdout, "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(got), got)
	}
	if got[0].Name != "openssl" || got[0].Classification != model.ClassificationSecurity {
		t.Errorf("openssl: got %+v", got[0])
	}
	if got[1].Name != "vim" || got[1].Classification != model.ClassificationOther {
		t.Errorf("vim: got %+v", got[1])
	}
}

func TestParseUpgradableEmpty(t *testing.T) {
	got, err := ParseUpgradable("Listing...\n", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}

func TestParseUpgradableUnicodeName(t *testing.T) {
	// Checks that the parser keeps a package name containing non-ASCII
	// characters intact and does not error on it, per spec §4.B.
	stdout := "café-tools/focal-security 1.0 amd64 [upgradable from: 0.9]\n"
	got, err := ParseUpgradable(stdout, "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "café-tools" {
		t.Errorf("got %+v", got)
	}
}

func TestParseSimulateAdditionalPackagesClosure(t *testing.T) {
	stdout := `Reading package lists...
Building dependency tree...
The following additional packages will be installed:
  selinux-policy-targeted
0 upgraded, 2 newly installed, 0 to remove and 0 not upgraded.
`
	res, err := ParseSimulate(stdout, "", 0, []string{"selinux-basics"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.AdditionalDependencies) != 1 || res.AdditionalDependencies[0] != "selinux-policy-targeted" {
		t.Errorf("got deps %+v", res.AdditionalDependencies)
	}
}

func TestParseSimulateAssumeNoAbortedFooter(t *testing.T) {
	stdout := "The following additional packages will be installed:\n  libfoo\nAbort.\nOperation aborted.\n"
	res, err := ParseSimulate(stdout, "", 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.AdditionalDependencies) != 1 || res.AdditionalDependencies[0] != "libfoo" {
		t.Errorf("got %+v", res)
	}
}
