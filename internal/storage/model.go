// Package storage implements the storage engine (C5): location/container
// allocation under row locks, temperature-zone compatibility, and capacity
// reporting, grounded on spec.md §4.4.
package storage

import (
	"time"

	"github.com/google/uuid"
)

// Zone is a configured temperature zone (spec.md §3: "one of a configured
// set, e.g. -80, -20, 4, RT, 37").
type Zone string

const (
	ZoneMinus80 Zone = "-80"
	ZoneMinus20 Zone = "-20"
	ZonePlus4   Zone = "4"
	ZoneRT      Zone = "RT"
	ZonePlus37  Zone = "37"
)

// zoneColdness ranks zones from coldest to warmest (spec.md §4.4's "-80
// cannot be placed at 4"; SPEC_FULL.md §4.4 makes the table concrete: a
// sample's required zone is compatible with a location iff equal, or the
// location is colder-or-equal).
var zoneColdness = map[Zone]int{
	ZoneMinus80: 0,
	ZoneMinus20: 1,
	ZonePlus4:   2,
	ZoneRT:      3,
	ZonePlus37:  4,
}

var validZones = map[Zone]struct{}{
	ZoneMinus80: {}, ZoneMinus20: {}, ZonePlus4: {}, ZoneRT: {}, ZonePlus37: {},
}

// ValidZone reports whether z belongs to the configured set.
func ValidZone(z Zone) bool {
	_, ok := validZones[z]
	return ok
}

// ZoneCompatible reports whether a sample requiring requiredZone may be
// placed in a location whose zone is locationZone.
func ZoneCompatible(requiredZone, locationZone Zone) bool {
	req, reqOK := zoneColdness[requiredZone]
	loc, locOK := zoneColdness[locationZone]

	if !reqOK || !locOK {
		return false
	}

	return loc <= req
}

// LocationStatus is a StorageLocation's operational state.
type LocationStatus string

const (
	LocationActive         LocationStatus = "active"
	LocationMaintenance    LocationStatus = "maintenance"
	LocationDecommissioned LocationStatus = "decommissioned"
)

// Location is the C5 StorageLocation entity (spec.md §3).
type Location struct {
	ID              uuid.UUID
	Name            string
	TemperatureZone Zone
	MaxCapacity     int
	CurrentCapacity int
	Status          LocationStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Container is the C5 Container entity (spec.md §3).
type Container struct {
	ID         uuid.UUID
	Barcode    string
	LocationID uuid.UUID
	Position   string
	Capacity   int
	Occupants  int
}

// ReportStatus is the capacity_report status band (spec.md §4.4).
type ReportStatus string

const (
	ReportNormal   ReportStatus = "Normal"
	ReportWarning  ReportStatus = "Warning"
	ReportCritical ReportStatus = "Critical"
)

// CapacityReport is the result of Engine.CapacityReport.
type CapacityReport struct {
	LocationID     uuid.UUID
	MaxCapacity    int
	UsedCapacity   int
	UtilizationPct float64
	Status         ReportStatus
}

// Thresholds configures the capacity_report status bands (spec.md §4.4:
// "default 0.8 / 0.95, configurable").
type Thresholds struct {
	Warning  float64
	Critical float64
}

// DefaultThresholds returns spec.md's default warning/critical bands.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 0.8, Critical: 0.95}
}

func (t Thresholds) classify(used, max int) ReportStatus {
	if max <= 0 {
		return ReportNormal
	}

	ratio := float64(used) / float64(max)

	switch {
	case ratio >= t.Critical:
		return ReportCritical
	case ratio >= t.Warning:
		return ReportWarning
	default:
		return ReportNormal
	}
}
