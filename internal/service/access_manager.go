package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/cache"
	"github.com/stemsi/exstem-seb/internal/config"
	"github.com/stemsi/exstem-seb/internal/metrics"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/seb"
)

// sebMarker is present in the User-Agent of every Safe Exam Browser build.
const sebMarker = "SEB"

// defaultAccessTTL applies when the caller's session has no known expiry.
const defaultAccessTTL = 12 * time.Hour

// User-facing texts.
const (
	msgSEBRequired     = "Kuis ini mewajibkan penggunaan Safe Exam Browser."
	msgNotSEB          = "Kuis ini hanya dapat dikerjakan menggunakan Safe Exam Browser."
	msgInvalidKeys     = "Konfigurasi Safe Exam Browser tidak sesuai dengan kuis ini. Muat ulang konfigurasi kuis atau hubungi pengawas."
	labelDownloadSEB   = "Unduh Safe Exam Browser"
	labelLaunchSEB     = "Buka dengan Safe Exam Browser"
	labelDownloadConf  = "Unduh konfigurasi"
	labelQuitSEB       = "Keluar dari Safe Exam Browser"
	linkKindDownload   = "download_seb"
	linkKindLaunch     = "launch_seb"
	linkKindConfig     = "download_config"
	linkKindQuit       = "quit_seb"
	showLinkKindSEB    = "seb"
	showLinkKindHTTP   = "http"
	decisionOutcomeErr = "error"
)

// AccessContext is everything the SEB rule looks at for one request.
type AccessContext struct {
	CMID int64
	// QuizID is looked up from CMID when zero.
	QuizID      int64
	UserID      int
	SessionID   string
	SessionEnds time.Time
	Permissions []string
	// URL is the absolute URL of the page being requested.
	URL           string
	UserAgent     string
	ConfigKeyHash string
	RequestHash   string
	IP            string
}

// AccessRule decides whether a request may proceed. Rules are composed by
// the caller; this package provides the SEB one.
type AccessRule interface {
	Evaluate(ctx context.Context, ac AccessContext) (model.Decision, error)
}

// SettingsSource resolves effective settings.
type SettingsSource interface {
	Resolve(ctx context.Context, quizID int64, userID int) (*model.EffectiveSettings, error)
}

// ConfigKeySource derives the config key of effective settings.
type ConfigKeySource interface {
	ConfigKey(ctx context.Context, eff *model.EffectiveSettings) (string, error)
}

// SessionKeyIssuer issues session continuation keys for launch links.
type SessionKeyIssuer interface {
	Issue(ctx context.Context, userID int, remoteIP string) (*model.SessionKey, error)
}

// Description is the notice shown on the quiz page.
type Description struct {
	Messages []string     `json:"messages"`
	Links    []model.Link `json:"links,omitempty"`
	// ValidateInBrowser asks the page to run the JavaScript key check.
	ValidateInBrowser  bool `json:"validate_in_browser"`
	AutoReconfigureSEB bool `json:"auto_reconfigure_seb"`
}

// AccessManager is the SEB access rule.
type AccessManager struct {
	resolver SettingsSource
	keys     ConfigKeySource
	flags    cache.Store
	quizzes  QuizStore
	plugin   PluginConfigLoader
	sessions SessionKeyIssuer
	links    *seb.Links
	events   AccessEventSink
	metrics  *metrics.Metrics
	now      func() time.Time
	log      zerolog.Logger
}

var _ AccessRule = (*AccessManager)(nil)

// NewAccessManager creates a new AccessManager.
func NewAccessManager(
	resolver SettingsSource,
	keys ConfigKeySource,
	flags cache.Store,
	quizzes QuizStore,
	plugin PluginConfigLoader,
	sessions SessionKeyIssuer,
	links *seb.Links,
	events AccessEventSink,
	m *metrics.Metrics,
	log zerolog.Logger,
) *AccessManager {
	return &AccessManager{
		resolver: resolver,
		keys:     keys,
		flags:    flags,
		quizzes:  quizzes,
		plugin:   plugin,
		sessions: sessions,
		links:    links,
		events:   events,
		metrics:  m,
		now:      time.Now,
		log:      log.With().Str("component", "access_manager").Logger(),
	}
}

// evaluation carries the state built up while checking one request.
type evaluation struct {
	ac       AccessContext
	quizID   int64
	eff      *model.EffectiveSettings
	plugin   *PluginConfig
	finished int
}

// Evaluate runs the checks in order and stops at the first failure. Any
// error means the caller must deny.
func (m *AccessManager) Evaluate(ctx context.Context, ac AccessContext) (model.Decision, error) {
	d, _, err := m.evaluate(ctx, ac, true)
	if err != nil {
		m.metrics.AccessDecision(decisionOutcomeErr, "")
		return model.Decision{Allowed: false, State: model.StateDenied}, err
	}
	m.metrics.AccessDecision(string(d.State), string(d.Reason))
	return d, nil
}

// Check is Evaluate returning an *AccessDeniedError for a denial.
func (m *AccessManager) Check(ctx context.Context, ac AccessContext) (model.Decision, error) {
	d, err := m.Evaluate(ctx, ac)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		return d, &AccessDeniedError{Reason: d.Reason, Decision: d}
	}
	return d, nil
}

// Make returns the rule when SEB applies to the quiz for this user, or nil.
func (m *AccessManager) Make(ctx context.Context, cmid int64, userID int) (AccessRule, error) {
	quiz, err := m.quiz(ctx, AccessContext{CMID: cmid})
	if err != nil {
		return nil, err
	}
	eff, err := m.resolver.Resolve(ctx, quiz, userID)
	if errors.Is(err, ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !eff.RequireSafeExamBrowser.Enforced() {
		return nil, nil
	}
	return m, nil
}

func (m *AccessManager) quiz(ctx context.Context, ac AccessContext) (int64, error) {
	if ac.QuizID != 0 {
		return ac.QuizID, nil
	}
	q, err := m.quizzes.GetByCMID(ctx, ac.CMID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrQuizNotFound
		}
		return 0, fmt.Errorf("get quiz: %w", err)
	}
	return q.ID, nil
}

// evaluate returns the decision and the state it was based on. record
// controls the side effects: audit events, issued session keys and the
// session access flag.
func (m *AccessManager) evaluate(ctx context.Context, ac AccessContext, record bool) (model.Decision, *evaluation, error) {
	quizID, err := m.quiz(ctx, ac)
	if err != nil {
		return model.Decision{}, nil, err
	}
	ev := &evaluation{ac: ac, quizID: quizID}

	eff, err := m.resolver.Resolve(ctx, quizID, ac.UserID)
	if errors.Is(err, ErrNotConfigured) {
		return model.Decision{Allowed: true, State: model.StateNotRequired}, ev, nil
	}
	if err != nil {
		return model.Decision{}, nil, fmt.Errorf("resolve settings: %w", err)
	}
	ev.eff = eff
	if !eff.RequireSafeExamBrowser.Enforced() {
		return model.Decision{Allowed: true, State: model.StateNotRequired}, ev, nil
	}

	if model.HasPermission(ac.Permissions, model.PermissionSEBBypass) {
		return model.Decision{Allowed: true, State: model.StateBypassed}, ev, nil
	}

	if ev.plugin, err = m.plugin.Load(ctx); err != nil {
		return model.Decision{}, nil, fmt.Errorf("load plugin settings: %w", err)
	}
	if ac.UserID > 0 {
		if ev.finished, err = m.quizzes.CountFinishedAttempts(ctx, quizID, ac.UserID); err != nil {
			return model.Decision{}, nil, fmt.Errorf("count finished attempts: %w", err)
		}
	}

	d := model.Decision{
		SecureLayout: true,
		HideBlocks:   m.hideBlocks(ev),
	}

	if m.sessionValidated(ctx, ac, quizID) {
		d.Allowed = true
		d.State = model.StateSessionValidated
		return d, ev, nil
	}

	if !strings.Contains(ac.UserAgent, sebMarker) {
		return m.deny(ctx, ev, d, model.ReasonNotSEB, record), ev, nil
	}

	if eff.RequireSafeExamBrowser.ValidatesConfigKey() {
		configKey, err := m.keys.ConfigKey(ctx, eff)
		if err != nil {
			return model.Decision{}, nil, fmt.Errorf("derive config key: %w", err)
		}
		if !seb.MatchesAny(ac.ConfigKeyHash, ac.URL, func(u string) string { return seb.DeriveKey(configKey, u) }) {
			if record && ev.plugin.AutoReconfigureSEB && ac.ConfigKeyHash != "" {
				d.RedirectURL = seb.Launch(m.configLink(ctx, ev))
			}
			return m.deny(ctx, ev, d, model.ReasonInvalidConfigKey, record), ev, nil
		}
	}

	if !m.browserKeyMatches(eff, ac.RequestHash, ac.URL) {
		return m.deny(ctx, ev, d, model.ReasonInvalidBrowserKey, record), ev, nil
	}

	if record {
		m.setSessionAccess(ctx, ac, quizID)
	}
	d.Allowed = true
	d.State = model.StateGranted
	return d, ev, nil
}

func (m *AccessManager) hideBlocks(ev *evaluation) bool {
	if ev.finished == 0 {
		return !ev.plugin.DisplayBlocksBeforeStart
	}
	return !ev.plugin.DisplayBlocksWhenFinished
}

// browserKeyMatches checks the request hash against the allow-list. An
// empty allow-list accepts any browser.
func (m *AccessManager) browserKeyMatches(eff *model.EffectiveSettings, requestHash, url string) bool {
	if len(eff.AllowedBrowserExamKeys) == 0 {
		return true
	}
	for _, key := range eff.AllowedBrowserExamKeys {
		k := key
		if seb.MatchesAny(requestHash, url, func(u string) string { return seb.BrowserExamKeyHash(k, u) }) {
			return true
		}
	}
	return false
}

func (m *AccessManager) sessionValidated(ctx context.Context, ac AccessContext, quizID int64) bool {
	if ac.SessionID == "" {
		return false
	}
	v, err := m.flags.Get(ctx, config.CacheKey.SessionAccessKey(ac.SessionID, quizID))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			m.log.Warn().Err(err).Int64("quiz_id", quizID).Msg("session access lookup failed")
		}
		return false
	}
	return v == "1"
}

func (m *AccessManager) setSessionAccess(ctx context.Context, ac AccessContext, quizID int64) {
	if ac.SessionID == "" {
		return
	}
	ttl := defaultAccessTTL
	if !ac.SessionEnds.IsZero() {
		ttl = ac.SessionEnds.Sub(m.now())
		if ttl <= 0 {
			return
		}
	}
	if err := m.flags.Set(ctx, config.CacheKey.SessionAccessKey(ac.SessionID, quizID), "1", ttl); err != nil {
		m.log.Warn().Err(err).Int64("quiz_id", quizID).Msg("failed to record session access")
	}
}

// CurrentAttemptFinished clears the session access flag so the next attempt
// is validated again.
func (m *AccessManager) CurrentAttemptFinished(ctx context.Context, sessionID string, cmid int64) error {
	quizID, err := m.quiz(ctx, AccessContext{CMID: cmid})
	if err != nil {
		return err
	}
	if sessionID == "" {
		return nil
	}
	return m.flags.Delete(ctx, config.CacheKey.SessionAccessKey(sessionID, quizID))
}

func (m *AccessManager) deny(ctx context.Context, ev *evaluation, d model.Decision, reason model.DenyReason, record bool) model.Decision {
	d.Allowed = false
	d.State = model.StateDenied
	d.Reason = reason

	if reason == model.ReasonNotSEB {
		d.Message = msgNotSEB
		if l, ok := m.downloadSEBLink(ev); ok {
			d.Links = append(d.Links, l)
		}
	} else {
		d.Message = msgInvalidKeys
		if record {
			d.Links = m.actionLinks(ctx, ev)
		}
	}

	if record {
		m.audit(ctx, ev, reason)
	}
	return d
}

// audit logs and publishes an access-prevented event. Header values stay
// out of both.
func (m *AccessManager) audit(ctx context.Context, ev *evaluation, reason model.DenyReason) {
	e := &model.AccessEvent{
		ID:                    uuid.New(),
		UserID:                ev.ac.UserID,
		QuizID:                ev.quizID,
		CMID:                  ev.eff.CMID,
		Reason:                reason,
		ConfigKeyHashPresent:  ev.ac.ConfigKeyHash != "",
		BrowserKeyHashPresent: ev.ac.RequestHash != "",
		IP:                    ev.ac.IP,
		CreatedAt:             m.now().UTC(),
	}

	m.log.Warn().
		Int("user_id", e.UserID).
		Int64("quiz_id", e.QuizID).
		Int64("cmid", e.CMID).
		Str("reason", string(reason)).
		Msg("quiz access prevented")

	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, e); err != nil {
		m.log.Error().Err(err).Str("event_id", e.ID.String()).Msg("failed to publish access event")
	}
}

func (m *AccessManager) downloadSEBLink(ev *evaluation) (model.Link, bool) {
	if !ev.eff.ShowSEBDownloadLink || ev.plugin.DownloadLink == "" {
		return model.Link{}, false
	}
	return model.Link{Kind: linkKindDownload, Label: labelDownloadSEB, URL: ev.plugin.DownloadLink}, true
}

func (m *AccessManager) actionLinks(ctx context.Context, ev *evaluation) []model.Link {
	var links []model.Link
	if l, ok := m.downloadSEBLink(ev); ok {
		links = append(links, l)
	}
	if !ev.eff.RequireSafeExamBrowser.ValidatesConfigKey() {
		return links
	}
	if ev.plugin.ShowsLink(showLinkKindSEB) {
		links = append(links, model.Link{Kind: linkKindLaunch, Label: labelLaunchSEB, URL: seb.Launch(m.configLink(ctx, ev))})
	}
	if ev.plugin.ShowsLink(showLinkKindHTTP) {
		links = append(links, model.Link{Kind: linkKindConfig, Label: labelDownloadConf, URL: m.links.ConfigURL(ev.eff.CMID)})
	}
	return links
}

// configLink points at the config page. For a logged-in user it goes through
// session continuation so the exam browser starts out logged in.
func (m *AccessManager) configLink(ctx context.Context, ev *evaluation) string {
	cmid := ev.eff.CMID
	if ev.ac.UserID <= 0 || m.sessions == nil {
		return m.links.ConfigURL(cmid)
	}
	key, err := m.sessions.Issue(ctx, ev.ac.UserID, ev.ac.IP)
	if err != nil {
		m.log.Warn().Err(err).Int("user_id", ev.ac.UserID).Msg("failed to issue session key, using plain config link")
		return m.links.ConfigURL(cmid)
	}
	return m.links.ContinueURL(key.Value, ev.ac.UserID, cmid)
}

// Description builds the quiz page notice. It evaluates the request without
// recording anything.
func (m *AccessManager) Description(ctx context.Context, ac AccessContext) (*Description, error) {
	d, ev, err := m.evaluate(ctx, ac, false)
	if err != nil {
		return nil, err
	}
	if d.State == model.StateNotRequired {
		return &Description{Messages: []string{}}, nil
	}

	out := &Description{Messages: []string{msgSEBRequired}}

	if d.State == model.StateBypassed && ev.eff.RequireSafeExamBrowser.ValidatesConfigKey() {
		out.Links = append(out.Links, model.Link{Kind: linkKindConfig, Label: labelDownloadConf, URL: m.links.ConfigURL(ev.eff.CMID)})
	}

	if d.Allowed {
		if ev.eff.LinkQuitSEB != "" {
			finished := ev.finished
			if d.State == model.StateBypassed && ac.UserID > 0 {
				if finished, err = m.quizzes.CountFinishedAttempts(ctx, ev.quizID, ac.UserID); err != nil {
					return nil, fmt.Errorf("count finished attempts: %w", err)
				}
			}
			if finished > 0 {
				out.Links = append(out.Links, model.Link{Kind: linkKindQuit, Label: labelQuitSEB, URL: ev.eff.LinkQuitSEB})
			}
		}
		return out, nil
	}

	plugin := ev.plugin
	out.ValidateInBrowser = true
	out.AutoReconfigureSEB = plugin != nil && plugin.AutoReconfigureSEB
	return out, nil
}

// ValidateKeys checks hashes reported by the in-browser SEB API. Requests
// from other browsers fail both checks. Passing both checks records session
// access like a header-validated request.
func (m *AccessManager) ValidateKeys(ctx context.Context, ac AccessContext, configKeyHash, browserKeyHash string) (*model.ValidateKeysResponse, error) {
	quizID, err := m.quiz(ctx, ac)
	if err != nil {
		return nil, err
	}
	eff, err := m.resolver.Resolve(ctx, quizID, ac.UserID)
	if errors.Is(err, ErrNotConfigured) {
		return &model.ValidateKeysResponse{ConfigKey: true, BrowserExamKey: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve settings: %w", err)
	}
	if !eff.RequireSafeExamBrowser.Enforced() {
		return &model.ValidateKeysResponse{ConfigKey: true, BrowserExamKey: true}, nil
	}

	ac.ConfigKeyHash = configKeyHash
	ac.RequestHash = browserKeyHash
	ev := &evaluation{ac: ac, quizID: quizID, eff: eff}

	// Only SEB exposes the key API.
	if !strings.Contains(ac.UserAgent, sebMarker) {
		m.audit(ctx, ev, model.ReasonNotSEB)
		m.metrics.AccessDecision(string(model.StateDenied), string(model.ReasonNotSEB))
		return &model.ValidateKeysResponse{}, nil
	}

	res := &model.ValidateKeysResponse{ConfigKey: true}
	if eff.RequireSafeExamBrowser.ValidatesConfigKey() {
		configKey, err := m.keys.ConfigKey(ctx, eff)
		if err != nil {
			return nil, fmt.Errorf("derive config key: %w", err)
		}
		res.ConfigKey = seb.MatchesAny(configKeyHash, ac.URL, func(u string) string { return seb.DeriveKey(configKey, u) })
	}
	res.BrowserExamKey = m.browserKeyMatches(eff, browserKeyHash, ac.URL)

	switch {
	case !res.ConfigKey:
		m.audit(ctx, ev, model.ReasonInvalidConfigKey)
		m.metrics.AccessDecision(string(model.StateDenied), string(model.ReasonInvalidConfigKey))
	case !res.BrowserExamKey:
		m.audit(ctx, ev, model.ReasonInvalidBrowserKey)
		m.metrics.AccessDecision(string(model.StateDenied), string(model.ReasonInvalidBrowserKey))
	default:
		m.setSessionAccess(ctx, ac, quizID)
		m.metrics.AccessDecision(string(model.StateGranted), "")
	}
	return res, nil
}
