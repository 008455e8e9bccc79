package model

// QuizBackup is the portable export of one quiz's SEB configuration.
type QuizBackup struct {
	// SiteID identifies the deployment the backup was taken on. Restores on
	// the same site reuse template ids directly.
	SiteID    string            `json:"site_id"`
	QuizID    int64             `json:"quizid"`
	CMID      int64             `json:"cmid"`
	Settings  *SEBSettings      `json:"settings,omitempty"`
	Template  *TemplateBackup   `json:"template,omitempty"`
	Overrides []OverrideBackup  `json:"overrides,omitempty"`
	File      *ConfigFileBackup `json:"config_file,omitempty"`
}

// TemplateBackup carries enough of a template to match or recreate it.
type TemplateBackup struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Enabled     bool   `json:"enabled"`
}

// OverrideBackup is one exported override row.
type OverrideBackup struct {
	OverrideID int64           `json:"overrideid"`
	Enabled    bool            `json:"enabled"`
	Settings   PartialSettings `json:"settings"`
	Template   *TemplateBackup `json:"template,omitempty"`
}

// ConfigFileBackup is an uploaded .seb file, base64 encoded by encoding/json.
type ConfigFileBackup struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

// RestoreRequest restores a backup into an existing quiz.
type RestoreRequest struct {
	Backup QuizBackup `json:"backup" binding:"required"`
	// OverrideMap maps backed-up override ids to the new override ids.
	OverrideMap map[int64]int64 `json:"override_map"`
}
