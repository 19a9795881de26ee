package filter

import (
	"context"
	"testing"

	"github.com/amidaware/patchcore/internal/model"
	"github.com/amidaware/patchcore/internal/pkgmgr"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type fakeAdapter struct {
	sim pkgmgr.SimulateResult
}

func (f *fakeAdapter) Name() string { return "fake" }
func (f *fakeAdapter) ListAvailableUpdates(ctx context.Context) ([]pkgmgr.Candidate, error) {
	return nil, nil
}
func (f *fakeAdapter) ListInstalled(ctx context.Context) ([]pkgmgr.Installed, error) { return nil, nil }
func (f *fakeAdapter) Classify(ctx context.Context, names []string) (map[string]model.Classification, error) {
	return nil, nil
}
func (f *fakeAdapter) SimulateInstall(ctx context.Context, names []string) (pkgmgr.SimulateResult, error) {
	return f.sim, nil
}
func (f *fakeAdapter) InstallOne(ctx context.Context, name, version string) (pkgmgr.InstallOutcome, error) {
	return pkgmgr.InstallOutcome{}, nil
}
func (f *fakeAdapter) RebootRequired(ctx context.Context) (bool, error) { return false, nil }

// TestScenario2WildcardIncludeDependencyClosure mirrors spec §8 scenario 2.
func TestScenario2WildcardIncludeDependencyClosure(t *testing.T) {
	adapter := &fakeAdapter{sim: pkgmgr.SimulateResult{AdditionalDependencies: []string{"selinux-policy-targeted"}}}
	eng := New(adapter)

	req := &model.Request{
		ClassificationsToInclude: []model.Classification{model.ClassificationCritical, model.ClassificationSecurity},
		PatchesToInclude:         []string{"selinux-*"},
	}
	candidates := []pkgmgr.Candidate{
		{Name: "selinux-basics", Version: "1.0", Classification: model.ClassificationSecurity},
		{Name: "unrelated-pkg", Version: "2.0", Classification: model.ClassificationSecurity},
	}

	patches, err := eng.Select(context.Background(), req, candidates, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byName := map[string]model.Patch{}
	for _, p := range patches {
		byName[p.Name] = p
	}

	if p, ok := byName["selinux-basics"]; !ok || p.SelectedState != model.SelectedStateSelected {
		t.Errorf("selinux-basics should be selected, got %+v", p)
	}
	if p, ok := byName["selinux-policy-targeted"]; !ok || p.SelectedState != model.SelectedStateSelected {
		t.Errorf("selinux-policy-targeted (closure dep) should be selected, got %+v", p)
	}
	if p, ok := byName["unrelated-pkg"]; ok && p.SelectedState == model.SelectedStateSelected {
		t.Errorf("unrelated-pkg should not be selected, got %+v", p)
	}
}

// TestScenario3ExcludeOverridesIncludeClosure mirrors spec §8 scenario 3.
func TestScenario3ExcludeOverridesIncludeClosure(t *testing.T) {
	adapter := &fakeAdapter{sim: pkgmgr.SimulateResult{AdditionalDependencies: []string{"kernel-core"}}}
	eng := New(adapter)

	req := &model.Request{
		PatchesToInclude: []string{"kernel*"},
		PatchesToExclude: []string{"kernel-core"},
	}
	candidates := []pkgmgr.Candidate{
		{Name: "kernel-modules", Version: "5.0", Classification: model.ClassificationOther},
	}

	patches, err := eng.Select(context.Background(), req, candidates, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, p := range patches {
		if p.SelectedState != model.SelectedStateExcluded {
			t.Errorf("expected %s to be Excluded, got %+v", p.Name, p)
		}
		if p.InstallState != model.InstallStateExcluded && p.InstallState != model.InstallStateNotStarted {
			t.Errorf("expected %s installState in {Excluded,NotStarted}, got %v", p.Name, p.InstallState)
		}
	}
}

// TestInvariantExclusiveExclusion is spec §8 invariant 3, stated as a
// property over randomly generated candidates and exclude patterns.
func TestInvariantExclusiveExclusion(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	names := []string{"alpha", "beta", "gamma", "delta"}

	properties.Property("excluded patches never end up installable", prop.ForAll(
		func(excludeIdx int) bool {
			excludeName := names[excludeIdx%len(names)]
			adapter := &fakeAdapter{}
			eng := New(adapter)
			req := &model.Request{PatchesToExclude: []string{excludeName}}

			var candidates []pkgmgr.Candidate
			for _, n := range names {
				candidates = append(candidates, pkgmgr.Candidate{Name: n, Version: "1.0", Classification: model.ClassificationOther})
			}

			patches, err := eng.Select(context.Background(), req, candidates, false)
			if err != nil {
				return false
			}
			for _, p := range patches {
				if p.Name == excludeName {
					if p.SelectedState != model.SelectedStateExcluded {
						return false
					}
					if p.InstallState != model.InstallStateNotStarted && p.InstallState != model.InstallStateExcluded {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

// TestInvariantClassificationSecurityOnly is spec §8 invariant 6.
func TestInvariantClassificationSecurityOnly(t *testing.T) {
	adapter := &fakeAdapter{}
	eng := New(adapter)
	req := &model.Request{ClassificationsToInclude: []model.Classification{model.ClassificationSecurity}}

	candidates := []pkgmgr.Candidate{
		{Name: "crit-pkg", Version: "1.0", Classification: model.ClassificationCritical},
		{Name: "sec-pkg", Version: "1.0", Classification: model.ClassificationSecurity},
		{Name: "other-pkg", Version: "1.0", Classification: model.ClassificationOther},
	}

	patches, err := eng.Select(context.Background(), req, candidates, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, p := range patches {
		if p.SelectedState == model.SelectedStateSelected && p.Classification != model.ClassificationSecurity {
			t.Errorf("classification filter leaked %s (%s) into the selection", p.Name, p.Classification)
		}
	}
}

func TestGlobMatchCaseSensitivity(t *testing.T) {
	if !matchesAny("OpenSSL", "", []string{"openssl"}) {
		t.Error("package name matching should be case-insensitive")
	}
	if matchesAny("foo", "1.0.0", []string{"foo=1.0.1"}) {
		t.Error("version matching should be case-sensitive/exact, should not have matched")
	}
	if !matchesAny("foo", "1.0.0", []string{"foo=1.0.*"}) {
		t.Error("version glob should have matched")
	}
}
