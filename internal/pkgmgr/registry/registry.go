// Package registry resolves a distro.Family to its concrete pkgmgr.Adapter
// implementation. It lives outside package pkgmgr to avoid an import cycle:
// each family subpackage (apt, yum, zypper) imports pkgmgr for the Adapter
// contract, so the resolver that imports all of them cannot itself live in
// pkgmgr.
package registry

import (
	"github.com/amidaware/patchcore/internal/distro"
	"github.com/amidaware/patchcore/internal/pkgmgr"
	"github.com/amidaware/patchcore/internal/pkgmgr/apt"
	"github.com/amidaware/patchcore/internal/pkgmgr/yum"
	"github.com/amidaware/patchcore/internal/pkgmgr/zypper"
)

// For resolves the Adapter for a distro.Family, implementing the second
// half of spec §4.A ("selects a Package Manager Adapter").
func For(family distro.Family) (pkgmgr.Adapter, error) {
	switch family {
	case distro.FamilyAPT:
		return apt.New(), nil
	case distro.FamilyYum:
		return yum.New("yum"), nil
	case distro.FamilyDNF:
		return yum.New("dnf"), nil
	case distro.FamilyZypper:
		return zypper.New(), nil
	default:
		return nil, pkgmgr.NewUnsupported(string(family))
	}
}
