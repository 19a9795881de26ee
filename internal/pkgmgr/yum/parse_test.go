package yum

import (
	"testing"
)

func TestParseCheckUpdateSimple(t *testing.T) {
	stdout := `Loaded plugins: fastestmirror, langpacks
Last metadata expiration check: 0:12:34 ago.
bash.x86_64              4.2.46-34.el7                updates
kernel.x86_64            3.10.0-1160.el7              updates
`
	got, err := ParseCheckUpdate(stdout, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(got), got)
	}
	if got[0].Name != "bash" || got[0].Version != "4.2.46-34.el7" {
		t.Errorf("bash: got %+v", got[0])
	}
	if got[1].Name != "kernel" {
		t.Errorf("kernel: got %+v", got[1])
	}
}

func TestParseCheckUpdateWrappedLine(t *testing.T) {
	// dnf wraps the version/repo columns to the next line when the
	// name.arch is long enough to push past the terminal width.
	stdout := "NetworkManager-libreswan-gnome.x86_64\n" +
		"                         1.2.8-1.el8                   updates\n"
	got, err := ParseCheckUpdate(stdout, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "NetworkManager-libreswan-gnome" || got[0].Version != "1.2.8-1.el8" {
		t.Errorf("got %+v", got)
	}
}

func TestParseCheckUpdateNoUpdatesExitCode(t *testing.T) {
	got, err := ParseCheckUpdate("", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %+v", got)
	}
}

func TestParseCheckUpdateRealFailureExitCode(t *testing.T) {
	_, err := ParseCheckUpdate("some repo error", 1)
	if err == nil {
		t.Fatal("expected an error for exit code 1")
	}
}

func TestParseSimulateDependencyClosure(t *testing.T) {
	stdout := `Dependencies Resolved

Installing for dependencies:
 selinux-policy-targeted  noarch  3.13.1-268.el7  updates  500 k

Transaction Summary
`
	res, err := ParseSimulate(stdout, "", 0, []string{"selinux-basics"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.AdditionalDependencies) != 1 || res.AdditionalDependencies[0] != "selinux-policy-targeted" {
		t.Errorf("got %+v", res.AdditionalDependencies)
	}
}

func TestStripArch(t *testing.T) {
	cases := map[string]string{
		"bash.x86_64":   "bash",
		"kernel.noarch": "kernel",
		"glibc.i686":    "glibc",
		"plainname":     "plainname",
	}
	for in, want := range cases {
		if got := stripArch(in); got != want {
			t.Errorf("stripArch(%q) = %q, want %q", in, got, want)
		}
	}
}
