package models

import (
	"strings"

	"github.com/package-url/packageurl-go"
)

// PackageKey is the identity of a dependency.
type PackageKey struct {
	Ecosystem Ecosystem `json:"ecosystem"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
}

// String returns the key in the "ecosystem:name:version" form used by the cache.
func (k PackageKey) String() string {
	return string(k.Ecosystem) + ":" + k.Name + ":" + k.Version
}

// Dependency is a single resolved (or placeholder) package in a project's dependency graph.
type Dependency struct {
	Ecosystem Ecosystem `json:"ecosystem"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	// Path holds package names from the resolution root down to this package.
	Path []string `json:"path"`
	// IsDirect is true iff len(Path) == 1.
	IsDirect bool `json:"isDirect"`
	// IsDev is true iff every path reaching this package only uses development edges.
	IsDev      bool     `json:"isDev"`
	RequiredBy []string `json:"requiredBy,omitempty"`
	// Unresolved marks a dependency whose Version is still a range taken from a manifest.
	Unresolved bool   `json:"unresolved,omitempty"`
	Source     string `json:"source,omitempty"`
}

func (d Dependency) Key() PackageKey {
	return PackageKey{Ecosystem: d.Ecosystem, Name: d.Name, Version: d.Version}
}

var ecosystemToPURLType = map[Ecosystem]string{
	EcosystemNPM:      packageurl.TypeNPM,
	EcosystemPyPI:     packageurl.TypePyPi,
	EcosystemCratesIO: packageurl.TypeCargo,
	EcosystemGo:       packageurl.TypeGolang,
}

// PURL returns the package URL of the dependency, or an empty string if the
// ecosystem has no purl type.
func (d Dependency) PURL() string {
	purlType, ok := ecosystemToPURLType[d.Ecosystem]
	if !ok {
		return ""
	}

	namespace := ""
	name := d.Name

	switch d.Ecosystem {
	case EcosystemNPM:
		if strings.HasPrefix(name, "@") {
			namespace, name, _ = strings.Cut(name, "/")
		}
	case EcosystemGo:
		if i := strings.LastIndex(name, "/"); i != -1 {
			namespace, name = name[:i], name[i+1:]
		}
	case EcosystemPyPI:
		name = strings.ToLower(name)
	}

	version := d.Version
	if d.Unresolved {
		version = ""
	}

	return packageurl.NewPackageURL(purlType, namespace, name, version, nil, "").ToString()
}
