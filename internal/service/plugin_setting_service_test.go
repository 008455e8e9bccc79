package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPluginSettings_LoadDefaults(t *testing.T) {
	svc := NewPluginSettingService(newFakePluginStore(nil), zerolog.Nop())

	cfg, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.AutoReconfigureSEB)
	assert.False(t, cfg.QuizPasswordRequired)
	assert.True(t, cfg.ShowsLink("seb"))
	assert.True(t, cfg.ShowsLink("http"))
	assert.Equal(t, model.DefaultSEBSettings(), cfg.Defaults)
}

func TestPluginSettings_LoadAppliesFieldDefaults(t *testing.T) {
	store := newFakePluginStore(map[string]string{
		"default_showtime":               "0",
		"default_requiresafeexambrowser": "1",
		"default_allowedbrowserexamkeys": "AAA\nbbb, aaa",
		"default_showwificontrol":        "not-a-bool",
		model.PluginShowSEBLinks:         "http",
	})
	svc := NewPluginSettingService(store, zerolog.Nop())

	cfg, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, cfg.Defaults.ShowTime)
	assert.Equal(t, model.ModeManual, cfg.Defaults.RequireSafeExamBrowser)
	assert.Equal(t, []string{"aaa", "bbb"}, cfg.Defaults.AllowedBrowserExamKeys)
	assert.False(t, cfg.Defaults.ShowWifiControl, "malformed values keep the built-in default")
	assert.False(t, cfg.ShowsLink("seb"))
	assert.Len(t, cfg.DefaultsFingerprint, 12)

	before := cfg.DefaultsFingerprint
	store.values["default_showtime"] = "1"
	cfg, err = svc.Load(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, before, cfg.DefaultsFingerprint)
}

func TestPluginSettings_UpdateValidatesAll(t *testing.T) {
	store := newFakePluginStore(nil)
	svc := NewPluginSettingService(store, zerolog.Nop())

	err := svc.UpdateSettings(context.Background(), map[string]string{
		model.PluginAutoReconfigureSEB:   "maybe",
		model.PluginShowSEBLinks:         "seb,ftp",
		"default_requiresafeexambrowser": "7",
		"colour":                         "blue",
		model.PluginDownloadLink:         "https://safeexambrowser.org/download",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 4)
	assert.Empty(t, store.values, "nothing is written when any value is invalid")

	require.NoError(t, svc.UpdateSettings(context.Background(), map[string]string{
		model.PluginAutoReconfigureSEB: "false",
		"default_showtime":             "true",
	}))
	assert.Equal(t, "false", store.values[model.PluginAutoReconfigureSEB])
}
