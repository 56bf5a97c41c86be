package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tracseq/lims-core/internal/storage"
)

func TestZoneCompatibleAllowsColderOrEqual(t *testing.T) {
	assert.True(t, storage.ZoneCompatible(storage.ZoneMinus20, storage.ZoneMinus20))
	assert.True(t, storage.ZoneCompatible(storage.ZoneMinus20, storage.ZoneMinus80))
	assert.True(t, storage.ZoneCompatible(storage.ZonePlus4, storage.ZoneMinus80))
}

func TestZoneCompatibleRejectsWarmerLocation(t *testing.T) {
	assert.False(t, storage.ZoneCompatible(storage.ZoneMinus80, storage.ZonePlus4))
	assert.False(t, storage.ZoneCompatible(storage.ZoneMinus20, storage.ZoneRT))
	assert.False(t, storage.ZoneCompatible(storage.ZonePlus4, storage.ZonePlus37))
}

func TestValidZone(t *testing.T) {
	assert.True(t, storage.ValidZone(storage.ZoneRT))
	assert.False(t, storage.ValidZone(storage.Zone("-196")))
}
