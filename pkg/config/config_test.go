package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.ProposalTTL)
	assert.Equal(t, 4, cfg.Scheduler.BatchConcurrency)
	assert.Equal(t, []string{"xlsx", "pdf", "ics"}, cfg.Publish.Formats)
	assert.Equal(t, ';', cfg.Exports.Comma())
	assert.False(t, cfg.Notifications.EmailEnabled)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("SCHEDULER_BATCH_CONCURRENCY", 0)
	v.Set("NOTIFY_RECIPIENTS", " a@example.org, ,b@example.org ")
	v.Set("SCHEDULER_PROPOSAL_TTL", "not-a-duration")
	cfg := fromViper(v)

	assert.Equal(t, 4, cfg.Scheduler.BatchConcurrency)
	assert.Equal(t, []string{"a@example.org", "b@example.org"}, cfg.Notifications.Recipients)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.ProposalTTL)
}

func TestExportsLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, ExportsConfig{}.Location())
	assert.Equal(t, time.UTC, ExportsConfig{Timezone: "Nowhere/Invalid"}.Location())
	assert.Equal(t, ',', ExportsConfig{}.Comma())
}
