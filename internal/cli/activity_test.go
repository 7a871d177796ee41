package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/puma/internal/core/shift"
)

func TestParseActivityID(t *testing.T) {
	id, err := parseActivityID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"0", "-3", "abc", ""} {
		_, err := parseActivityID(bad)
		assert.Error(t, err, bad)
	}
}

func TestActivityCmd_Flags(t *testing.T) {
	cmd := activityAddCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--start", "06:00", "--end", "07:00", "--code", "LOG", "--allow-overlap"}))

	for _, name := range []string{"start", "end", "code", "label", "notes", "tool", "hole", "allow-overlap"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	v, err := cmd.Flags().GetBool("allow-overlap")
	require.NoError(t, err)
	assert.True(t, v)
}

func TestShiftSaveCmd_DefaultHours(t *testing.T) {
	cmd := shiftSaveCmd()
	hours, err := cmd.Flags().GetFloat64("hours")
	require.NoError(t, err)
	assert.Equal(t, shift.DefaultHours, hours)
}
