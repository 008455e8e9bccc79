package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/model"
)

// PluginConfig is the parsed form of seb_plugin_settings.
type PluginConfig struct {
	DownloadLink              string
	QuizPasswordRequired      bool
	AutoReconfigureSEB        bool
	ShowSEBLinks              []string
	DisplayBlocksBeforeStart  bool
	DisplayBlocksWhenFinished bool
	// Defaults are the field values used when a quiz has no settings row.
	Defaults model.SEBSettings
	// DefaultsFingerprint changes whenever any default_ value changes.
	DefaultsFingerprint string
}

// ShowsLink reports whether kind ("seb" or "http") is enabled in showseblinks.
func (c *PluginConfig) ShowsLink(kind string) bool {
	for _, k := range c.ShowSEBLinks {
		if k == kind {
			return true
		}
	}
	return false
}

type PluginSettingService struct {
	repo PluginSettingStore
	log  zerolog.Logger
}

func NewPluginSettingService(repo PluginSettingStore, log zerolog.Logger) *PluginSettingService {
	return &PluginSettingService{
		repo: repo,
		log:  log.With().Str("component", "plugin_setting_service").Logger(),
	}
}

func (s *PluginSettingService) GetAllSettings(ctx context.Context) (map[string]string, error) {
	list, err := s.repo.GetAll(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get plugin settings")
		return nil, err
	}

	settings := make(map[string]string, len(list))
	for _, setting := range list {
		settings[setting.Key] = setting.Value
	}
	return settings, nil
}

// UpdateSettings validates every pair before writing any of them.
func (s *PluginSettingService) UpdateSettings(ctx context.Context, values map[string]string) error {
	fields := make(map[string]string)
	probe := model.DefaultSEBSettings()
	for key, value := range values {
		switch key {
		case model.PluginDownloadLink:
		case model.PluginShowSEBLinks:
			for _, k := range splitList(value) {
				if k != "seb" && k != "http" {
					fields[key] = "must list only seb and http"
				}
			}
		case model.PluginQuizPasswordRequired, model.PluginAutoReconfigureSEB,
			model.PluginDisplayBlocksBeforeStart, model.PluginDisplayBlocksWhenFinished:
			if _, err := strconv.ParseBool(value); err != nil {
				fields[key] = "must be a boolean"
			}
		default:
			field, ok := strings.CutPrefix(key, model.PluginDefaultPrefix)
			if !ok {
				fields[key] = "unknown setting"
				continue
			}
			if err := applyDefault(&probe, field, value); err != nil {
				fields[key] = err.Error()
			}
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}

	if err := s.repo.UpsertMany(ctx, values); err != nil {
		s.log.Error().Err(err).Msg("failed to update plugin settings")
		return err
	}
	return nil
}

// Load reads and parses all plugin settings. Malformed values fall back to
// built-in defaults and are logged.
func (s *PluginSettingService) Load(ctx context.Context) (*PluginConfig, error) {
	values, err := s.GetAllSettings(ctx)
	if err != nil {
		return nil, err
	}

	cfg := &PluginConfig{
		DownloadLink:              values[model.PluginDownloadLink],
		QuizPasswordRequired:      parseBool(values[model.PluginQuizPasswordRequired], false),
		AutoReconfigureSEB:        parseBool(values[model.PluginAutoReconfigureSEB], true),
		ShowSEBLinks:              splitList(values[model.PluginShowSEBLinks]),
		DisplayBlocksBeforeStart:  parseBool(values[model.PluginDisplayBlocksBeforeStart], false),
		DisplayBlocksWhenFinished: parseBool(values[model.PluginDisplayBlocksWhenFinished], true),
		Defaults:                  model.DefaultSEBSettings(),
	}
	if _, ok := values[model.PluginShowSEBLinks]; !ok {
		cfg.ShowSEBLinks = []string{"seb", "http"}
	}

	var defaultKeys []string
	for key := range values {
		if strings.HasPrefix(key, model.PluginDefaultPrefix) {
			defaultKeys = append(defaultKeys, key)
		}
	}
	sort.Strings(defaultKeys)

	h := sha256.New()
	for _, key := range defaultKeys {
		field := strings.TrimPrefix(key, model.PluginDefaultPrefix)
		if err := applyDefault(&cfg.Defaults, field, values[key]); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("ignoring malformed default")
			continue
		}
		fmt.Fprintf(h, "%s=%s\n", key, values[key])
	}
	cfg.DefaultsFingerprint = hex.EncodeToString(h.Sum(nil))[:12]

	return cfg, nil
}

func applyDefault(s *model.SEBSettings, field, value string) error {
	boolFields := map[string]*bool{
		"showsebtaskbar":        &s.ShowSEBTaskbar,
		"showwificontrol":       &s.ShowWifiControl,
		"showreloadbutton":      &s.ShowReloadButton,
		"showtime":              &s.ShowTime,
		"showkeyboardlayout":    &s.ShowKeyboardLayout,
		"allowuserquitseb":      &s.AllowUserQuitSEB,
		"userconfirmquit":       &s.UserConfirmQuit,
		"enableaudiocontrol":    &s.EnableAudioControl,
		"muteonstartup":         &s.MuteOnStartup,
		"allowspellchecking":    &s.AllowSpellChecking,
		"allowreloadinexam":     &s.AllowReloadInExam,
		"activateurlfiltering":  &s.ActivateURLFiltering,
		"filterembeddedcontent": &s.FilterEmbeddedContent,
		"showsebdownloadlink":   &s.ShowSEBDownloadLink,
	}
	stringFields := map[string]*string{
		"quitpassword":       &s.QuitPassword,
		"linkquitseb":        &s.LinkQuitSEB,
		"expressionsallowed": &s.ExpressionsAllowed,
		"regexallowed":       &s.RegexAllowed,
		"expressionsblocked": &s.ExpressionsBlocked,
		"regexblocked":       &s.RegexBlocked,
	}

	if dst, ok := boolFields[field]; ok {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("must be a boolean")
		}
		*dst = b
		return nil
	}
	if dst, ok := stringFields[field]; ok {
		*dst = value
		return nil
	}
	switch field {
	case "requiresafeexambrowser":
		n, err := strconv.Atoi(value)
		if err != nil || !model.RequireMode(n).Valid() {
			return fmt.Errorf("must be a mode between 0 and 4")
		}
		s.RequireSafeExamBrowser = model.RequireMode(n)
		return nil
	case "allowedbrowserexamkeys":
		s.AllowedBrowserExamKeys = model.NormalizeBrowserExamKeys(value)
		return nil
	}
	return fmt.Errorf("unknown field %q", field)
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
