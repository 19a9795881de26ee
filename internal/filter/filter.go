// Package filter implements the Filter Engine (spec §4.C): classification
// and wildcard include/exclude filtering over a candidate set, plus
// dependency-closure expansion via the adapter's SimulateInstall.
package filter

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/amidaware/patchcore/internal/model"
	"github.com/amidaware/patchcore/internal/pkgmgr"
)

// Engine applies a Request's filters to a candidate set.
type Engine struct {
	Adapter pkgmgr.Adapter
}

func New(adapter pkgmgr.Adapter) *Engine {
	return &Engine{Adapter: adapter}
}

// Select runs the full pipeline of spec §4.C steps 1-5 and returns the
// deterministically ordered selection. assessmentOnly=true (Assessment
// runs) skips steps 1-4 (classification/include/exclude/closure) entirely —
// "Assessment's selection = all candidates" per spec §4.G.
func (e *Engine) Select(ctx context.Context, req *model.Request, candidates []pkgmgr.Candidate, assessmentOnly bool) ([]model.Patch, error) {
	patches := make([]model.Patch, 0, len(candidates))
	for _, c := range candidates {
		patches = append(patches, model.Patch{
			ID:             model.NewPatchID(),
			Name:           c.Name,
			Version:        c.Version,
			Classification: c.Classification,
			SelectedState:  model.SelectedStatePending,
			InstallState:   model.InstallStatePending,
		})
	}

	if assessmentOnly {
		for i := range patches {
			patches[i].SelectedState = model.SelectedStateSelected
			patches[i].InstallState = model.InstallStateNotStarted
		}
		sortPatches(patches)
		return patches, nil
	}

	// Step 1: classification filter, including the Unknown-classification
	// rule (included when classification filter is empty or includes
	// Other, excluded otherwise).
	for i := range patches {
		p := &patches[i]
		included := classificationIncluded(req, p.Classification)
		if !included {
			p.SelectedState = model.SelectedStateNotSelected
			p.InstallState = model.InstallStateNotStarted
			continue
		}
		p.SelectedState = model.SelectedStateSelected
	}

	// Step 2 + 3: include/exclude glob patterns, ANDed with classification
	// per Open Question (ii). Exclude always wins over include.
	for i := range patches {
		p := &patches[i]
		if p.SelectedState != model.SelectedStateSelected {
			continue
		}
		if matchesAny(p.Name, p.Version, req.PatchesToExclude) {
			p.Exclude()
			continue
		}
		if len(req.PatchesToInclude) > 0 && !matchesAny(p.Name, p.Version, req.PatchesToInclude) {
			p.SelectedState = model.SelectedStateNotSelected
			p.InstallState = model.InstallStateNotStarted
		}
	}

	selectedNames := make([]string, 0)
	for _, p := range patches {
		if p.SelectedState == model.SelectedStateSelected {
			selectedNames = append(selectedNames, p.Name)
		}
	}

	// Step 4: dependency closure.
	if len(selectedNames) > 0 && e.Adapter != nil {
		sim, err := e.Adapter.SimulateInstall(ctx, selectedNames)
		if err != nil {
			return nil, err
		}

		existing := make(map[string]int, len(patches))
		for i, p := range patches {
			existing[p.Name] = i
		}

		for _, depName := range sim.AdditionalDependencies {
			if idx, ok := existing[depName]; ok {
				// Already a candidate row; if it wasn't selected, the
				// closure pulls it in unless explicitly excluded.
				p := &patches[idx]
				if p.SelectedState == model.SelectedStateExcluded {
					excludeTransaction(patches, selectedNames)
					break
				}
				if matchesAny(p.Name, p.Version, req.PatchesToExclude) {
					excludeTransaction(patches, selectedNames)
					break
				}
				p.SelectedState = model.SelectedStateSelected
				continue
			}

			if matchesAny(depName, "", req.PatchesToExclude) {
				excludeTransaction(patches, selectedNames)
				break
			}

			patches = append(patches, model.Patch{
				ID:             model.NewPatchID(),
				Name:           depName,
				Version:        "",
				Classification: model.ClassificationUnknown,
				SelectedState:  model.SelectedStateSelected,
				InstallState:   model.InstallStatePending,
			})
		}
	}

	sortPatches(patches)
	return patches, nil
}

// excludeTransaction marks every patch in the requested transaction as
// Excluded with reason excluded-dep, per spec §4.C.4: "the entire
// transaction involving them is marked Excluded with reason excluded-dep".
func excludeTransaction(patches []model.Patch, names []string) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	for i := range patches {
		if want[patches[i].Name] {
			patches[i].Exclude()
			patches[i].ErrorMessage = "excluded-dep"
		}
	}
}

func classificationIncluded(req *model.Request, c model.Classification) bool {
	if c == model.ClassificationUnknown {
		return req.IncludesAllClassifications() || req.IncludesOther()
	}
	return req.Includes(c)
}

// matchesAny reports whether name or name=version matches any of the glob
// patterns. Matching is case-insensitive on the package name and
// case-sensitive on the version, per spec §4.C "Glob semantics".
func matchesAny(name, version string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	lowerName := strings.ToLower(name)
	nameVersion := name
	if version != "" {
		nameVersion = name + "=" + version
	}
	for _, pat := range patterns {
		pat = strings.TrimSpace(pat)
		if pat == "" {
			continue
		}
		if strings.Contains(pat, "=") {
			// Version-qualified pattern: name part case-insensitive,
			// version part case-sensitive.
			parts := strings.SplitN(pat, "=", 2)
			namePat := strings.ToLower(parts[0])
			versionPat := parts[1]
			if ok, _ := filepath.Match(namePat, lowerName); ok {
				if ok2, _ := filepath.Match(versionPat, version); ok2 {
					return true
				}
			}
			continue
		}
		if ok, _ := filepath.Match(strings.ToLower(pat), lowerName); ok {
			return true
		}
	}
	return false
}

// sortPatches orders the selection deterministically: (classification
// rank, name, version), per spec §4.C.5.
func sortPatches(patches []model.Patch) {
	sort.SliceStable(patches, func(i, j int) bool {
		a, b := patches[i], patches[j]
		if a.Classification != b.Classification {
			return a.Classification.Less(b.Classification)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Version < b.Version
	})
}
