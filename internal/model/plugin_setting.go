package model

import "time"

// Plugin-wide setting keys stored in seb_plugin_settings.
const (
	PluginDownloadLink              = "downloadlink"
	PluginQuizPasswordRequired      = "quizpasswordrequired"
	PluginAutoReconfigureSEB        = "autoreconfigureseb"
	PluginShowSEBLinks              = "showseblinks"
	PluginDisplayBlocksBeforeStart  = "displayblocksbeforestart"
	PluginDisplayBlocksWhenFinished = "displayblockswhenfinished"
	// PluginDefaultPrefix prefixes per-field defaults, e.g. default_showsebtaskbar.
	PluginDefaultPrefix = "default_"
)

// PluginSetting is a key-value pair of plugin-wide configuration.
type PluginSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdatePluginSettingsRequest is the payload for bulk updating plugin settings.
type UpdatePluginSettingsRequest struct {
	Settings map[string]string `json:"settings" binding:"required"`
}
