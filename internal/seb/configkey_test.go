package seb

import (
	"strings"
	"testing"

	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quizURL = "https://lms.example.com/quiz/view?id=12"

func manualSettings() model.SEBSettings {
	s := model.DefaultSEBSettings()
	s.RequireSafeExamBrowser = model.ModeManual
	return s
}

func TestConfigKey_Deterministic(t *testing.T) {
	s := manualSettings()
	s.ExpressionsAllowed = "example.com\nexample.org"
	s.RegexBlocked = `^https?://blocked\..*$`

	first := ConfigKey(ManualConfig(s, quizURL))
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ConfigKey(ManualConfig(s, quizURL)))
	}
	assert.Len(t, first, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", first)
}

func TestConfigKey_FieldSensitivity(t *testing.T) {
	base := manualSettings()
	baseKey := ConfigKey(ManualConfig(base, quizURL))

	mutations := map[string]func(s *model.SEBSettings){
		"showsebtaskbar":        func(s *model.SEBSettings) { s.ShowSEBTaskbar = !s.ShowSEBTaskbar },
		"showwificontrol":       func(s *model.SEBSettings) { s.ShowWifiControl = !s.ShowWifiControl },
		"showreloadbutton":      func(s *model.SEBSettings) { s.ShowReloadButton = !s.ShowReloadButton },
		"showtime":              func(s *model.SEBSettings) { s.ShowTime = !s.ShowTime },
		"showkeyboardlayout":    func(s *model.SEBSettings) { s.ShowKeyboardLayout = !s.ShowKeyboardLayout },
		"allowuserquitseb":      func(s *model.SEBSettings) { s.AllowUserQuitSEB = !s.AllowUserQuitSEB },
		"quitpassword":          func(s *model.SEBSettings) { s.QuitPassword = "secret" },
		"linkquitseb":           func(s *model.SEBSettings) { s.LinkQuitSEB = "https://lms.example.com/quit" },
		"userconfirmquit":       func(s *model.SEBSettings) { s.UserConfirmQuit = !s.UserConfirmQuit },
		"enableaudiocontrol":    func(s *model.SEBSettings) { s.EnableAudioControl = !s.EnableAudioControl },
		"muteonstartup":         func(s *model.SEBSettings) { s.MuteOnStartup = !s.MuteOnStartup },
		"allowspellchecking":    func(s *model.SEBSettings) { s.AllowSpellChecking = !s.AllowSpellChecking },
		"allowreloadinexam":     func(s *model.SEBSettings) { s.AllowReloadInExam = !s.AllowReloadInExam },
		"activateurlfiltering":  func(s *model.SEBSettings) { s.ActivateURLFiltering = !s.ActivateURLFiltering },
		"filterembeddedcontent": func(s *model.SEBSettings) { s.FilterEmbeddedContent = !s.FilterEmbeddedContent },
		"expressionsallowed":    func(s *model.SEBSettings) { s.ExpressionsAllowed = "example.com" },
		"regexallowed":          func(s *model.SEBSettings) { s.RegexAllowed = `^example\.com$` },
		"expressionsblocked":    func(s *model.SEBSettings) { s.ExpressionsBlocked = "example.net" },
		"regexblocked":          func(s *model.SEBSettings) { s.RegexBlocked = `^example\.net$` },
	}

	seen := map[string]string{baseKey: "base"}
	for field, mutate := range mutations {
		t.Run(field, func(t *testing.T) {
			s := base
			mutate(&s)
			key := ConfigKey(ManualConfig(s, quizURL))
			assert.NotEqual(t, baseKey, key)
			if other, dup := seen[key]; dup {
				t.Fatalf("%s produced the same key as %s", field, other)
			}
			seen[key] = field
		})
	}
}

func TestConfigKey_ServerSideFieldsDoNotChangeKey(t *testing.T) {
	base := manualSettings()
	baseKey := ConfigKey(ManualConfig(base, quizURL))

	s := base
	s.ShowSEBDownloadLink = !s.ShowSEBDownloadLink
	s.AllowedBrowserExamKeys = []string{"abc"}
	assert.Equal(t, baseKey, ConfigKey(ManualConfig(s, quizURL)))
}

func TestConfigKey_DependsOnStartURL(t *testing.T) {
	s := manualSettings()
	assert.NotEqual(t,
		ConfigKey(ManualConfig(s, quizURL)),
		ConfigKey(ManualConfig(s, "https://lms.example.com/quiz/view?id=13")),
	)
}

func TestCanonical_SortsKeysCaseInsensitively(t *testing.T) {
	d := Dict{
		"b":                 true,
		"A":                 "x",
		"originatorVersion": "SEB_OSX_2.1.4",
		"c": map[string]interface{}{
			"Z": false,
			"y": int64(2),
		},
		"list": []interface{}{uint64(3), "q"},
	}
	assert.Equal(t, `{"A":"x","b":1,"c":{"y":2,"Z":0},"list":[3,"q"]}`, Canonical(d))
}

func TestCanonical_IgnoresOriginatorVersion(t *testing.T) {
	d := ManualConfig(manualSettings(), quizURL)
	withVersion := Dict{}
	for k, v := range d {
		withVersion[k] = v
	}
	withVersion["originatorVersion"] = "SEB_Win_3.0"
	assert.Equal(t, ConfigKey(d), ConfigKey(withVersion))
}

func TestDeriveKey_MatchesQueryVariants(t *testing.T) {
	key := ConfigKey(ManualConfig(manualSettings(), quizURL))
	page := "https://lms.example.com/quiz/attempt?attempt=5&page=2"

	full := DeriveKey(key, page)
	stripped := DeriveKey(key, "https://lms.example.com/quiz/attempt")

	hash := func(u string) string { return DeriveKey(key, u) }
	assert.True(t, MatchesAny(full, page, hash))
	assert.True(t, MatchesAny(stripped, page, hash))
	assert.True(t, MatchesAny(full, page+"#question-3", hash))
	assert.False(t, MatchesAny(DeriveKey("other", page), page, hash))
	assert.False(t, MatchesAny("", page, hash))
	assert.True(t, MatchesAny(" "+strings.ToUpper(full)+"\n", page, hash))
	assert.False(t, MatchesAny(full[:63], page, hash), "a truncated digest never matches")
}

func TestURLVariants(t *testing.T) {
	assert.Equal(t, []string{"https://a/b"}, URLVariants("https://a/b"))
	assert.Equal(t, []string{"https://a/b?x=1", "https://a/b"}, URLVariants("https://a/b?x=1#f"))
}

func TestParse(t *testing.T) {
	data, err := Encode(ManualConfig(manualSettings(), quizURL))
	require.NoError(t, err)

	d, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, quizURL, d["startURL"])
	assert.Equal(t, true, d["sendBrowserExamKey"])

	_, err = Parse([]byte("not a plist at all {"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBindToQuiz_Template(t *testing.T) {
	stored := Dict{
		"startURL":           "https://elsewhere.example.com",
		"sendBrowserExamKey": false,
		"hashedQuitPassword": "stale",
		"quitURL":            "https://elsewhere.example.com/quit",
		"showTaskBar":        true,
	}
	s := manualSettings()
	s.QuitPassword = "exit"
	s.LinkQuitSEB = ""

	bound := BindToQuiz(stored, s, quizURL, true)
	assert.Equal(t, quizURL, bound["startURL"])
	assert.Equal(t, true, bound["sendBrowserExamKey"])
	assert.Equal(t, HashQuitPassword("exit"), bound["hashedQuitPassword"])
	assert.NotContains(t, bound, "quitURL")
	assert.Equal(t, true, bound["showTaskBar"])
	assert.Equal(t, "stale", stored["hashedQuitPassword"], "input must not be modified")

	uploaded := BindToQuiz(stored, s, quizURL, false)
	assert.Equal(t, "stale", uploaded["hashedQuitPassword"])
}
