package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_MatchesDocumentedValues(t *testing.T) {
	d := Defaults()
	assert.Equal(t, 3, d.Retry)
	assert.Equal(t, 20, d.RetryFast)
	assert.Equal(t, 600, d.RetrySlow)
	assert.Equal(t, 8000, d.AGWPEPort)
	assert.Equal(t, 8001, d.TNCPort)
	assert.Equal(t, 8002, d.WebUIPort)
}

func TestValidate_RequiresCallsign(t *testing.T) {
	c := Defaults()
	assert.Error(t, c.Validate())
	c.MyCallsign = "K1FSY-9"
	assert.NoError(t, c.Validate())
}

func TestValidate_RejectsPortCollision(t *testing.T) {
	c := Defaults()
	c.MyCallsign = "K1FSY-9"
	c.TNCPort = c.AGWPEPort
	assert.Error(t, c.Validate())
}

func TestParseFlags_OverridesDefaults(t *testing.T) {
	base := Defaults()
	merged, err := ParseFlags(base, []string{"--mycall=K1FSY-9", "--digipeat", "--retry-fast=15"})
	require.NoError(t, err)
	assert.Equal(t, "K1FSY-9", merged.MyCallsign)
	assert.True(t, merged.Digipeat)
	assert.Equal(t, 15, merged.RetryFast)
	assert.Equal(t, base.RetrySlow, merged.RetrySlow) // untouched flags keep base value
}
