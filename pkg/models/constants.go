package models

import osvschema "github.com/ossf/osv-schema/bindings/go/osvconstants"

// Ecosystem is the OSV name of a packaging system.
type Ecosystem = osvschema.Ecosystem

const (
	EcosystemNPM      = osvschema.EcosystemNPM
	EcosystemPyPI     = osvschema.EcosystemPyPI
	EcosystemCratesIO = osvschema.EcosystemCratesIO
	EcosystemGo       = osvschema.EcosystemGo
)

// Format identifies a manifest or lockfile format, e.g. "package-lock.json".
type Format string

// FormatUnknown is the tag given to content no registered parser recognizes.
const FormatUnknown Format = ""

// Priorities used to choose the source of truth within an ecosystem.
const (
	PriorityLockfile = 10
	PriorityManifest = 5
	PriorityUnknown  = 0
)
