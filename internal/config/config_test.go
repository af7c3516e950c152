package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upkeep/internal/domain"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3, cfg.MaxAssets(domain.PlanStarter))
	assert.Equal(t, 50, cfg.MaxAssets(domain.PlanGrowth))
	assert.Equal(t, 999999, cfg.MaxAssets(domain.PlanScale))
	assert.Equal(t, 90, cfg.Planning.HorizonDays)
	assert.Equal(t, 3, cfg.Planning.Occurrences)
	assert.Equal(t, 10, cfg.Planning.Limit)
	assert.Empty(t, cfg.Webhooks)
}

func TestFromYAMLFillsPlanningDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("plans:\n  starter:\n    max_assets: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxAssets(domain.PlanStarter))
	assert.Equal(t, 0, cfg.MaxAssets(domain.PlanGrowth))
	assert.Equal(t, 90, cfg.Planning.HorizonDays)
	assert.Equal(t, "300-M", cfg.RateLimit)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"unknown tier":     "plans:\n  gold:\n    max_assets: 5\n",
		"zero ceiling":     "plans:\n  starter:\n    max_assets: 0\n",
		"negative horizon": "planning:\n  horizon_days: -1\n",
		"webhook no url":   "webhooks:\n  - events: [asset.created]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxAssets(domain.PlanStarter))

	_, err = Load(dir)
	assert.Error(t, err)

	doc := "planning:\n  horizon_days: 30\nwebhooks:\n  - url: http://localhost:9/hook\n    events: [work_order.completed]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "upkeep.yml"), []byte(doc), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Planning.HorizonDays)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, []string{"work_order.completed"}, cfg.Webhooks[0].Events)
}
