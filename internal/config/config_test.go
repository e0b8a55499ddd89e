package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursecal/internal/model"
)

func TestLoadCreatesDefault(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Taipei", cfg.Timezone)
	assert.Equal(t, AnchorOnOrAfter, cfg.Export.Anchor)
	assert.Equal(t, 18, cfg.Export.Occurrences)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Campuses, again.Campuses)
	assert.Equal(t, cfg.DefaultCampus, again.DefaultCampus)
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "listen: 0.0.0.0:9000\nexport:\n  anchor: strictly_next\n  occurrences: 16\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, AnchorStrictlyNext, cfg.Export.Anchor)
	assert.Equal(t, 16, cfg.Export.Occurrences)
	assert.Equal(t, 50, cfg.Export.FallbackPeriodMinutes)
	assert.Len(t, cfg.Campuses, 2)
	assert.Equal(t, "main", cfg.DefaultCampus)
}

func TestLoadRejectsInvalidTable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `campuses:
  - id: x
    name: X
    periods:
      - {period: 1, start_time: "08:00", end_time: "09:00"}
      - {period: 1, start_time: "09:00", end_time: "10:00"}
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	_, err := Load(path)
	assert.ErrorIs(t, err, model.ErrInvalidPeriodTable)
}

func TestDefaultCampuses(t *testing.T) {
	t.Parallel()

	for _, c := range DefaultCampuses() {
		table, err := c.Table()
		require.NoError(t, err, c.ID)
		assert.Len(t, table, 14, c.ID)
		assert.Equal(t, "第1節", table[1].Label)
	}
}

func TestCampusLookup(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	c, err := cfg.Campus("")
	require.NoError(t, err)
	assert.Equal(t, "main", c.ID)
	assert.Equal(t, "08:10", c.Periods[0].StartTime)

	c, err = cfg.Campus("secondary")
	require.NoError(t, err)
	assert.Equal(t, "08:00", c.Periods[0].StartTime)

	_, err = cfg.Campus("nowhere")
	assert.ErrorIs(t, err, ErrUnknownCampus)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Campuses = append(cfg.Campuses, cfg.Campuses[0])
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DefaultCampus = "nowhere"
	assert.ErrorIs(t, cfg.Validate(), ErrUnknownCampus)
}
