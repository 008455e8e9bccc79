// Package seb builds Safe Exam Browser configuration files and derives the
// hashes the browser sends back with every request.
package seb

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/stemsi/exstem-seb/internal/model"
	"howett.net/plist"
)

// ErrInvalidConfig is returned when a .seb payload is not an XML plist dictionary.
var ErrInvalidConfig = errors.New("invalid seb config file")

// URL filter actions as understood by the browser.
const (
	filterActionBlock = 0
	filterActionAllow = 1
)

// Dict is a decoded plist dictionary.
type Dict map[string]interface{}

// ManualConfig builds the configuration dictionary for settings entered by
// hand. startURL is the page the browser opens first.
func ManualConfig(s model.SEBSettings, startURL string) Dict {
	d := Dict{
		"startURL":                       startURL,
		"sendBrowserExamKey":             true,
		"examSessionClearCookiesOnStart": false,
		"showTaskBar":                    s.ShowSEBTaskbar,
		"allowWlan":                      s.ShowWifiControl,
		"showReloadButton":               s.ShowReloadButton,
		"showTime":                       s.ShowTime,
		"showInputLanguage":              s.ShowKeyboardLayout,
		"allowQuit":                      s.AllowUserQuitSEB,
		"quitURLConfirm":                 s.UserConfirmQuit,
		"audioControlEnabled":            s.EnableAudioControl,
		"audioMute":                      s.MuteOnStartup,
		"allowSpellCheck":                s.AllowSpellChecking,
		"browserWindowAllowReload":       s.AllowReloadInExam,
		"URLFilterEnable":                s.ActivateURLFiltering,
		"URLFilterEnableContentFilter":   s.FilterEmbeddedContent,
		"URLFilterRules":                 filterRules(s),
	}
	if s.AllowUserQuitSEB && s.QuitPassword != "" {
		d["hashedQuitPassword"] = HashQuitPassword(s.QuitPassword)
	}
	if s.LinkQuitSEB != "" {
		d["quitURL"] = s.LinkQuitSEB
	}
	return d
}

// filterRules turns the four expression lists into URLFilterRules entries.
// Allow rules come first, then block rules, each in stored order.
func filterRules(s model.SEBSettings) []interface{} {
	rules := make([]interface{}, 0)
	add := func(list string, regex bool, action int) {
		for _, expr := range splitExpressions(list) {
			rules = append(rules, map[string]interface{}{
				"active":     true,
				"regex":      regex,
				"expression": expr,
				"action":     action,
			})
		}
	}
	add(s.ExpressionsAllowed, false, filterActionAllow)
	add(s.RegexAllowed, true, filterActionAllow)
	add(s.ExpressionsBlocked, false, filterActionBlock)
	add(s.RegexBlocked, true, filterActionBlock)
	return rules
}

// splitExpressions splits a newline separated list, dropping blank lines.
func splitExpressions(list string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(list, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Parse decodes an XML plist into a dictionary.
func Parse(data []byte) (Dict, error) {
	var d map[string]interface{}
	format, err := plist.Unmarshal(data, &d)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if format != plist.XMLFormat {
		return nil, fmt.Errorf("%w: expected XML plist", ErrInvalidConfig)
	}
	if d == nil {
		return nil, fmt.Errorf("%w: empty dictionary", ErrInvalidConfig)
	}
	return Dict(d), nil
}

// Validate reports whether data is a usable .seb file.
func Validate(data []byte) error {
	_, err := Parse(bytes.TrimSpace(data))
	return err
}

// BindToQuiz overlays the keys that tie a stored configuration to one quiz.
// Templates also take the quiz's quit settings.
func BindToQuiz(d Dict, s model.SEBSettings, startURL string, isTemplate bool) Dict {
	out := make(Dict, len(d)+4)
	for k, v := range d {
		out[k] = v
	}
	out["startURL"] = startURL
	out["sendBrowserExamKey"] = true

	if isTemplate {
		out["allowQuit"] = s.AllowUserQuitSEB
		out["quitURLConfirm"] = s.UserConfirmQuit
		delete(out, "hashedQuitPassword")
		if s.AllowUserQuitSEB && s.QuitPassword != "" {
			out["hashedQuitPassword"] = HashQuitPassword(s.QuitPassword)
		}
		delete(out, "quitURL")
		if s.LinkQuitSEB != "" {
			out["quitURL"] = s.LinkQuitSEB
		}
	}
	return out
}

// Encode renders d as an indented XML plist.
func Encode(d Dict) ([]byte, error) {
	out, err := plist.MarshalIndent(map[string]interface{}(d), plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("encode plist: %w", err)
	}
	return out, nil
}
