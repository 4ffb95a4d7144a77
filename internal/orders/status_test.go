package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCatalog(t *testing.T) {
	require.Len(t, AllStatuses, 17)

	seen := map[Status]bool{}
	for _, s := range AllStatuses {
		assert.True(t, s.Valid(), "catalog status %q must validate", s)
		assert.NotEmpty(t, s.Phase(), "catalog status %q must map to a phase", s)
		assert.False(t, seen[s], "duplicate status %q", s)
		seen[s] = true
	}
}

func TestStatusValidRejectsOutsiders(t *testing.T) {
	for _, s := range []Status{
		"",
		"bogus_status",
		"Pending",    // case sensitive
		"PAID",       // case sensitive
		"delivered ", // whitespace matters
		"demo",
	} {
		assert.False(t, s.Valid(), "%q must be rejected", s)
	}
}

func TestStatusPhases(t *testing.T) {
	assert.Equal(t, PhaseIntake, StatusPending.Phase())
	assert.Equal(t, PhaseDemo, StatusDemoEditing.Phase())
	assert.Equal(t, PhaseFinance, StatusPaid.Phase())
	assert.Equal(t, PhaseProduction, StatusManufacturing.Phase())
	assert.Equal(t, PhaseFulfillment, StatusDelivered.Phase())
	assert.Equal(t, PhaseAfterSales, StatusComplaintClosed.Phase())
}
