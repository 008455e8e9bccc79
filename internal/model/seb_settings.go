package model

import (
	"strings"
	"time"
)

// RequireMode selects how Safe Exam Browser is enforced for a quiz.
type RequireMode int

const (
	ModeNo       RequireMode = 0 // no enforcement
	ModeManual   RequireMode = 1 // configure manually
	ModeTemplate RequireMode = 2 // use a shared template
	ModeUpload   RequireMode = 3 // use an uploaded .seb file
	ModeClient   RequireMode = 4 // use whatever config the client brings
)

// Valid reports whether m is one of the known modes.
func (m RequireMode) Valid() bool {
	return m >= ModeNo && m <= ModeClient
}

// Enforced reports whether any SEB check applies.
func (m RequireMode) Enforced() bool {
	return m != ModeNo
}

// ValidatesConfigKey reports whether requests must carry a matching config key.
// Client mode has no server-side configuration to hash.
func (m RequireMode) ValidatesConfigKey() bool {
	return m == ModeManual || m == ModeTemplate || m == ModeUpload
}

func (m RequireMode) String() string {
	switch m {
	case ModeNo:
		return "no"
	case ModeManual:
		return "manual"
	case ModeTemplate:
		return "template"
	case ModeUpload:
		return "upload"
	case ModeClient:
		return "client"
	default:
		return "unknown"
	}
}

// SEBSettings is the full set of enforcement fields shared by quiz settings,
// overrides (after merging) and plugin-wide defaults.
type SEBSettings struct {
	RequireSafeExamBrowser RequireMode `json:"requiresafeexambrowser"`
	TemplateID             int64       `json:"templateid"`
	ShowSEBTaskbar         bool        `json:"showsebtaskbar"`
	ShowWifiControl        bool        `json:"showwificontrol"`
	ShowReloadButton       bool        `json:"showreloadbutton"`
	ShowTime               bool        `json:"showtime"`
	ShowKeyboardLayout     bool        `json:"showkeyboardlayout"`
	AllowUserQuitSEB       bool        `json:"allowuserquitseb"`
	QuitPassword           string      `json:"quitpassword"`
	LinkQuitSEB            string      `json:"linkquitseb"`
	UserConfirmQuit        bool        `json:"userconfirmquit"`
	EnableAudioControl     bool        `json:"enableaudiocontrol"`
	MuteOnStartup          bool        `json:"muteonstartup"`
	AllowSpellChecking     bool        `json:"allowspellchecking"`
	AllowReloadInExam      bool        `json:"allowreloadinexam"`
	ActivateURLFiltering   bool        `json:"activateurlfiltering"`
	FilterEmbeddedContent  bool        `json:"filterembeddedcontent"`
	ExpressionsAllowed     string      `json:"expressionsallowed"`
	RegexAllowed           string      `json:"regexallowed"`
	ExpressionsBlocked     string      `json:"expressionsblocked"`
	RegexBlocked           string      `json:"regexblocked"`
	AllowedBrowserExamKeys []string    `json:"allowedbrowserexamkeys"`
	ShowSEBDownloadLink    bool        `json:"showsebdownloadlink"`
}

// DefaultSEBSettings returns the built-in defaults used when neither the quiz
// nor the plugin-wide settings table provide a value.
func DefaultSEBSettings() SEBSettings {
	return SEBSettings{
		RequireSafeExamBrowser: ModeNo,
		ShowSEBTaskbar:         true,
		ShowWifiControl:        false,
		ShowReloadButton:       true,
		ShowTime:               true,
		ShowKeyboardLayout:     true,
		AllowUserQuitSEB:       true,
		UserConfirmQuit:        true,
		AllowReloadInExam:      true,
		ShowSEBDownloadLink:    true,
		AllowedBrowserExamKeys: []string{},
	}
}

// QuizSettings is the persisted per-quiz SEB configuration.
type QuizSettings struct {
	ID     int64 `json:"id"`
	QuizID int64 `json:"quizid"`
	CMID   int64 `json:"cmid"`
	SEBSettings
	Revision       int64     `json:"revision"`
	UserModifiedID int       `json:"usermodified"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PartialSettings holds only the fields an override sets. A nil field falls
// back to the quiz's base settings.
type PartialSettings struct {
	RequireSafeExamBrowser *RequireMode `json:"requiresafeexambrowser,omitempty"`
	TemplateID             *int64       `json:"templateid,omitempty"`
	ShowSEBTaskbar         *bool        `json:"showsebtaskbar,omitempty"`
	ShowWifiControl        *bool        `json:"showwificontrol,omitempty"`
	ShowReloadButton       *bool        `json:"showreloadbutton,omitempty"`
	ShowTime               *bool        `json:"showtime,omitempty"`
	ShowKeyboardLayout     *bool        `json:"showkeyboardlayout,omitempty"`
	AllowUserQuitSEB       *bool        `json:"allowuserquitseb,omitempty"`
	QuitPassword           *string      `json:"quitpassword,omitempty"`
	LinkQuitSEB            *string      `json:"linkquitseb,omitempty"`
	UserConfirmQuit        *bool        `json:"userconfirmquit,omitempty"`
	EnableAudioControl     *bool        `json:"enableaudiocontrol,omitempty"`
	MuteOnStartup          *bool        `json:"muteonstartup,omitempty"`
	AllowSpellChecking     *bool        `json:"allowspellchecking,omitempty"`
	AllowReloadInExam      *bool        `json:"allowreloadinexam,omitempty"`
	ActivateURLFiltering   *bool        `json:"activateurlfiltering,omitempty"`
	FilterEmbeddedContent  *bool        `json:"filterembeddedcontent,omitempty"`
	ExpressionsAllowed     *string      `json:"expressionsallowed,omitempty"`
	RegexAllowed           *string      `json:"regexallowed,omitempty"`
	ExpressionsBlocked     *string      `json:"expressionsblocked,omitempty"`
	RegexBlocked           *string      `json:"regexblocked,omitempty"`
	AllowedBrowserExamKeys *[]string    `json:"allowedbrowserexamkeys,omitempty"`
	ShowSEBDownloadLink    *bool        `json:"showsebdownloadlink,omitempty"`
}

// ApplyTo returns base with every set field of p replacing the base value.
func (p PartialSettings) ApplyTo(base SEBSettings) SEBSettings {
	out := base
	setMode(&out.RequireSafeExamBrowser, p.RequireSafeExamBrowser)
	setInt64(&out.TemplateID, p.TemplateID)
	setBool(&out.ShowSEBTaskbar, p.ShowSEBTaskbar)
	setBool(&out.ShowWifiControl, p.ShowWifiControl)
	setBool(&out.ShowReloadButton, p.ShowReloadButton)
	setBool(&out.ShowTime, p.ShowTime)
	setBool(&out.ShowKeyboardLayout, p.ShowKeyboardLayout)
	setBool(&out.AllowUserQuitSEB, p.AllowUserQuitSEB)
	setString(&out.QuitPassword, p.QuitPassword)
	setString(&out.LinkQuitSEB, p.LinkQuitSEB)
	setBool(&out.UserConfirmQuit, p.UserConfirmQuit)
	setBool(&out.EnableAudioControl, p.EnableAudioControl)
	setBool(&out.MuteOnStartup, p.MuteOnStartup)
	setBool(&out.AllowSpellChecking, p.AllowSpellChecking)
	setBool(&out.AllowReloadInExam, p.AllowReloadInExam)
	setBool(&out.ActivateURLFiltering, p.ActivateURLFiltering)
	setBool(&out.FilterEmbeddedContent, p.FilterEmbeddedContent)
	setString(&out.ExpressionsAllowed, p.ExpressionsAllowed)
	setString(&out.RegexAllowed, p.RegexAllowed)
	setString(&out.ExpressionsBlocked, p.ExpressionsBlocked)
	setString(&out.RegexBlocked, p.RegexBlocked)
	if p.AllowedBrowserExamKeys != nil {
		out.AllowedBrowserExamKeys = append([]string(nil), (*p.AllowedBrowserExamKeys)...)
	}
	setBool(&out.ShowSEBDownloadLink, p.ShowSEBDownloadLink)
	return out
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}

func setMode(dst *RequireMode, v *RequireMode) {
	if v != nil {
		*dst = *v
	}
}

// Override is a per-user or per-group SEB override tied to a quiz override
// window. Disabled overrides are ignored by the resolver.
type Override struct {
	ID         int64 `json:"id"`
	OverrideID int64 `json:"overrideid"`
	QuizID     int64 `json:"quizid"`
	Enabled    bool  `json:"enabled"`
	PartialSettings
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OverrideTarget is the parent quiz override window a SEB override hangs off.
type OverrideTarget struct {
	ID      int64 `json:"id"`
	QuizID  int64 `json:"quizid"`
	UserID  *int  `json:"userid,omitempty"`
	GroupID *int  `json:"groupid,omitempty"`
}

// EffectiveSettings is the merged configuration a request is checked against.
type EffectiveSettings struct {
	QuizID     int64 `json:"quizid"`
	CMID       int64 `json:"cmid"`
	OverrideID int64 `json:"overrideid,omitempty"`
	SEBSettings
	// Fingerprint changes whenever any source row changes.
	Fingerprint string `json:"fingerprint"`
	// Template is loaded when the effective mode is ModeTemplate.
	Template *Template `json:"-"`
}

// NormalizeBrowserExamKeys splits a newline or comma separated list, trims,
// lowercases and deduplicates keys while keeping their first-seen order.
func NormalizeBrowserExamKeys(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ',' || r == ' ' || r == '\t'
	})
	seen := make(map[string]struct{}, len(fields))
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		k := strings.ToLower(strings.TrimSpace(f))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// JoinBrowserExamKeys is the storage form of a key list.
func JoinBrowserExamKeys(keys []string) string {
	return strings.Join(keys, "\n")
}

// SaveQuizSettingsRequest is the payload for saving a quiz's SEB settings.
type SaveQuizSettingsRequest struct {
	RequireSafeExamBrowser RequireMode `json:"requiresafeexambrowser" binding:"sebmode"`
	TemplateID             int64       `json:"templateid" binding:"min=0"`
	ShowSEBTaskbar         *bool       `json:"showsebtaskbar"`
	ShowWifiControl        *bool       `json:"showwificontrol"`
	ShowReloadButton       *bool       `json:"showreloadbutton"`
	ShowTime               *bool       `json:"showtime"`
	ShowKeyboardLayout     *bool       `json:"showkeyboardlayout"`
	AllowUserQuitSEB       *bool       `json:"allowuserquitseb"`
	QuitPassword           *string     `json:"quitpassword" binding:"omitempty,max=255"`
	LinkQuitSEB            *string     `json:"linkquitseb" binding:"omitempty,max=1024"`
	UserConfirmQuit        *bool       `json:"userconfirmquit"`
	EnableAudioControl     *bool       `json:"enableaudiocontrol"`
	MuteOnStartup          *bool       `json:"muteonstartup"`
	AllowSpellChecking     *bool       `json:"allowspellchecking"`
	AllowReloadInExam      *bool       `json:"allowreloadinexam"`
	ActivateURLFiltering   *bool       `json:"activateurlfiltering"`
	FilterEmbeddedContent  *bool       `json:"filterembeddedcontent"`
	ExpressionsAllowed     *string     `json:"expressionsallowed"`
	RegexAllowed           *string     `json:"regexallowed" binding:"omitempty,regexlist"`
	ExpressionsBlocked     *string     `json:"expressionsblocked"`
	RegexBlocked           *string     `json:"regexblocked" binding:"omitempty,regexlist"`
	AllowedBrowserExamKeys *string     `json:"allowedbrowserexamkeys" binding:"omitempty,keylist"`
	ShowSEBDownloadLink    *bool       `json:"showsebdownloadlink"`
	// QuizPassword is the quiz's own access password, checked when the
	// plugin requires one alongside SEB.
	QuizPassword string `json:"quizpassword" binding:"max=255"`
}

// Partial converts the request into the set of explicitly supplied fields.
func (r SaveQuizSettingsRequest) Partial() PartialSettings {
	mode := r.RequireSafeExamBrowser
	tid := r.TemplateID
	p := PartialSettings{
		RequireSafeExamBrowser: &mode,
		TemplateID:             &tid,
		ShowSEBTaskbar:         r.ShowSEBTaskbar,
		ShowWifiControl:        r.ShowWifiControl,
		ShowReloadButton:       r.ShowReloadButton,
		ShowTime:               r.ShowTime,
		ShowKeyboardLayout:     r.ShowKeyboardLayout,
		AllowUserQuitSEB:       r.AllowUserQuitSEB,
		QuitPassword:           r.QuitPassword,
		LinkQuitSEB:            r.LinkQuitSEB,
		UserConfirmQuit:        r.UserConfirmQuit,
		EnableAudioControl:     r.EnableAudioControl,
		MuteOnStartup:          r.MuteOnStartup,
		AllowSpellChecking:     r.AllowSpellChecking,
		AllowReloadInExam:      r.AllowReloadInExam,
		ActivateURLFiltering:   r.ActivateURLFiltering,
		FilterEmbeddedContent:  r.FilterEmbeddedContent,
		ExpressionsAllowed:     r.ExpressionsAllowed,
		RegexAllowed:           r.RegexAllowed,
		ExpressionsBlocked:     r.ExpressionsBlocked,
		RegexBlocked:           r.RegexBlocked,
		ShowSEBDownloadLink:    r.ShowSEBDownloadLink,
	}
	if r.AllowedBrowserExamKeys != nil {
		keys := NormalizeBrowserExamKeys(*r.AllowedBrowserExamKeys)
		p.AllowedBrowserExamKeys = &keys
	}
	return p
}

// SaveOverrideRequest is the payload for saving a SEB override. Only fields
// present in the JSON body are applied.
type SaveOverrideRequest struct {
	Enabled                bool         `json:"enabled"`
	RequireSafeExamBrowser *RequireMode `json:"requiresafeexambrowser" binding:"omitempty,sebmode"`
	TemplateID             *int64       `json:"templateid" binding:"omitempty,min=0"`
	ShowSEBTaskbar         *bool        `json:"showsebtaskbar"`
	ShowWifiControl        *bool        `json:"showwificontrol"`
	ShowReloadButton       *bool        `json:"showreloadbutton"`
	ShowTime               *bool        `json:"showtime"`
	ShowKeyboardLayout     *bool        `json:"showkeyboardlayout"`
	AllowUserQuitSEB       *bool        `json:"allowuserquitseb"`
	QuitPassword           *string      `json:"quitpassword" binding:"omitempty,max=255"`
	LinkQuitSEB            *string      `json:"linkquitseb" binding:"omitempty,max=1024"`
	UserConfirmQuit        *bool        `json:"userconfirmquit"`
	EnableAudioControl     *bool        `json:"enableaudiocontrol"`
	MuteOnStartup          *bool        `json:"muteonstartup"`
	AllowSpellChecking     *bool        `json:"allowspellchecking"`
	AllowReloadInExam      *bool        `json:"allowreloadinexam"`
	ActivateURLFiltering   *bool        `json:"activateurlfiltering"`
	FilterEmbeddedContent  *bool        `json:"filterembeddedcontent"`
	ExpressionsAllowed     *string      `json:"expressionsallowed"`
	RegexAllowed           *string      `json:"regexallowed" binding:"omitempty,regexlist"`
	ExpressionsBlocked     *string      `json:"expressionsblocked"`
	RegexBlocked           *string      `json:"regexblocked" binding:"omitempty,regexlist"`
	AllowedBrowserExamKeys *string      `json:"allowedbrowserexamkeys" binding:"omitempty,keylist"`
	ShowSEBDownloadLink    *bool        `json:"showsebdownloadlink"`
}

// Partial converts the request into override fields.
func (r SaveOverrideRequest) Partial() PartialSettings {
	p := PartialSettings{
		RequireSafeExamBrowser: r.RequireSafeExamBrowser,
		TemplateID:             r.TemplateID,
		ShowSEBTaskbar:         r.ShowSEBTaskbar,
		ShowWifiControl:        r.ShowWifiControl,
		ShowReloadButton:       r.ShowReloadButton,
		ShowTime:               r.ShowTime,
		ShowKeyboardLayout:     r.ShowKeyboardLayout,
		AllowUserQuitSEB:       r.AllowUserQuitSEB,
		QuitPassword:           r.QuitPassword,
		LinkQuitSEB:            r.LinkQuitSEB,
		UserConfirmQuit:        r.UserConfirmQuit,
		EnableAudioControl:     r.EnableAudioControl,
		MuteOnStartup:          r.MuteOnStartup,
		AllowSpellChecking:     r.AllowSpellChecking,
		AllowReloadInExam:      r.AllowReloadInExam,
		ActivateURLFiltering:   r.ActivateURLFiltering,
		FilterEmbeddedContent:  r.FilterEmbeddedContent,
		ExpressionsAllowed:     r.ExpressionsAllowed,
		RegexAllowed:           r.RegexAllowed,
		ExpressionsBlocked:     r.ExpressionsBlocked,
		RegexBlocked:           r.RegexBlocked,
		ShowSEBDownloadLink:    r.ShowSEBDownloadLink,
	}
	if r.AllowedBrowserExamKeys != nil {
		keys := NormalizeBrowserExamKeys(*r.AllowedBrowserExamKeys)
		p.AllowedBrowserExamKeys = &keys
	}
	return p
}
