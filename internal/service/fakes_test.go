package service

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/cache"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/seb"
)

// ─── Stores ─────────────────────────────────────────────────────────

type fakeSettingsStore struct {
	rows map[int64]*model.QuizSettings
}

func newFakeSettingsStore() *fakeSettingsStore {
	return &fakeSettingsStore{rows: make(map[int64]*model.QuizSettings)}
}

func (f *fakeSettingsStore) GetByQuizID(_ context.Context, quizID int64) (*model.QuizSettings, error) {
	row, ok := f.rows[quizID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *row
	return &cp, nil
}

func (f *fakeSettingsStore) Upsert(_ context.Context, s *model.QuizSettings) error {
	rev := int64(1)
	if existing, ok := f.rows[s.QuizID]; ok {
		rev = existing.Revision + 1
	}
	s.ID = s.QuizID
	s.Revision = rev
	cp := *s
	f.rows[s.QuizID] = &cp
	return nil
}

func (f *fakeSettingsStore) TouchRevision(_ context.Context, quizID int64) error {
	if row, ok := f.rows[quizID]; ok {
		row.Revision++
	}
	return nil
}

func (f *fakeSettingsStore) DeleteByQuizID(_ context.Context, quizID int64) error {
	delete(f.rows, quizID)
	return nil
}

type fakeOverrideStore struct {
	rows    map[int64]*model.Override
	quizzes *fakeQuizStore
	// groups maps a user to the groups they belong to.
	groups map[int][]int
}

func newFakeOverrideStore(quizzes *fakeQuizStore) *fakeOverrideStore {
	return &fakeOverrideStore{
		rows:    make(map[int64]*model.Override),
		quizzes: quizzes,
		groups:  make(map[int][]int),
	}
}

func (f *fakeOverrideStore) GetByOverrideID(_ context.Context, overrideID int64) (*model.Override, error) {
	o, ok := f.rows[overrideID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOverrideStore) FindApplicable(_ context.Context, quizID int64, userID int) (*model.Override, error) {
	var groupMatch *model.Override
	ids := make([]int64, 0, len(f.rows))
	for id := range f.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		o := f.rows[id]
		if o.QuizID != quizID || !o.Enabled {
			continue
		}
		target, ok := f.quizzes.targets[o.OverrideID]
		if !ok {
			continue
		}
		if target.UserID != nil && *target.UserID == userID {
			cp := *o
			return &cp, nil
		}
		if target.GroupID != nil && groupMatch == nil {
			for _, g := range f.groups[userID] {
				if g == *target.GroupID {
					cp := *o
					groupMatch = &cp
					break
				}
			}
		}
	}
	if groupMatch != nil {
		return groupMatch, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeOverrideStore) ListByQuizID(_ context.Context, quizID int64) ([]model.Override, error) {
	var out []model.Override
	for _, o := range f.rows {
		if o.QuizID == quizID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OverrideID < out[j].OverrideID })
	return out, nil
}

func (f *fakeOverrideStore) Upsert(_ context.Context, o *model.Override) error {
	rev := int64(1)
	if existing, ok := f.rows[o.OverrideID]; ok {
		rev = existing.Revision + 1
	}
	o.ID = o.OverrideID
	o.Revision = rev
	cp := *o
	f.rows[o.OverrideID] = &cp
	return nil
}

func (f *fakeOverrideStore) DeleteByOverrideIDs(_ context.Context, overrideIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64)
	for _, id := range overrideIDs {
		if o, ok := f.rows[id]; ok {
			out[id] = o.QuizID
			delete(f.rows, id)
		}
	}
	return out, nil
}

type fakeTemplateStore struct {
	rows   map[int64]*model.Template
	nextID int64
}

func newFakeTemplateStore() *fakeTemplateStore {
	return &fakeTemplateStore{rows: make(map[int64]*model.Template), nextID: 100}
}

func (f *fakeTemplateStore) GetByID(_ context.Context, id int64) (*model.Template, error) {
	t, ok := f.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTemplateStore) List(_ context.Context, enabledOnly bool) ([]model.Template, error) {
	var out []model.Template
	for _, t := range f.rows {
		if enabledOnly && !t.Enabled {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTemplateStore) FindByNameAndHash(_ context.Context, name, contentHash string) (*model.Template, error) {
	var best *model.Template
	for _, t := range f.rows {
		if t.Name == name && t.ContentHash == contentHash && (best == nil || t.ID < best.ID) {
			best = t
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	cp := *best
	return &cp, nil
}

func (f *fakeTemplateStore) Create(_ context.Context, t *model.Template) error {
	f.nextID++
	t.ID = f.nextID
	t.Revision = 1
	cp := *t
	f.rows[t.ID] = &cp
	return nil
}

func (f *fakeTemplateStore) Update(_ context.Context, t *model.Template) error {
	existing, ok := f.rows[t.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	t.Revision = existing.Revision + 1
	cp := *t
	f.rows[t.ID] = &cp
	return nil
}

func (f *fakeTemplateStore) SetEnabled(_ context.Context, id int64, enabled bool) error {
	t, ok := f.rows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	t.Enabled = enabled
	t.Revision++
	return nil
}

func (f *fakeTemplateStore) Delete(_ context.Context, id int64) error {
	if _, ok := f.rows[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.rows, id)
	return nil
}

type fakeQuizStore struct {
	quizzes  map[int64]*model.Quiz
	attempts map[int64]int
	finished map[int64]map[int]int
	targets  map[int64]*model.OverrideTarget
}

func newFakeQuizStore() *fakeQuizStore {
	return &fakeQuizStore{
		quizzes:  make(map[int64]*model.Quiz),
		attempts: make(map[int64]int),
		finished: make(map[int64]map[int]int),
		targets:  make(map[int64]*model.OverrideTarget),
	}
}

func (f *fakeQuizStore) add(q *model.Quiz) {
	f.quizzes[q.ID] = q
}

func (f *fakeQuizStore) addUserOverride(overrideID, quizID int64, userID int) {
	f.targets[overrideID] = &model.OverrideTarget{ID: overrideID, QuizID: quizID, UserID: &userID}
}

func (f *fakeQuizStore) addGroupOverride(overrideID, quizID int64, groupID int) {
	f.targets[overrideID] = &model.OverrideTarget{ID: overrideID, QuizID: quizID, GroupID: &groupID}
}

func (f *fakeQuizStore) GetByCMID(_ context.Context, cmid int64) (*model.Quiz, error) {
	for _, q := range f.quizzes {
		if q.CMID == cmid {
			cp := *q
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeQuizStore) GetByID(_ context.Context, id int64) (*model.Quiz, error) {
	q, ok := f.quizzes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *q
	return &cp, nil
}

func (f *fakeQuizStore) CountAttempts(_ context.Context, quizID int64) (int, error) {
	return f.attempts[quizID], nil
}

func (f *fakeQuizStore) CountFinishedAttempts(_ context.Context, quizID int64, userID int) (int, error) {
	return f.finished[quizID][userID], nil
}

func (f *fakeQuizStore) GetOverrideTarget(_ context.Context, overrideID int64) (*model.OverrideTarget, error) {
	t, ok := f.targets[overrideID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (f *fakeQuizStore) SetPassword(_ context.Context, quizID int64, password string) error {
	if q, ok := f.quizzes[quizID]; ok {
		q.Password = password
	}
	return nil
}

type fakePluginStore struct {
	values map[string]string
}

func newFakePluginStore(values map[string]string) *fakePluginStore {
	if values == nil {
		values = make(map[string]string)
	}
	return &fakePluginStore{values: values}
}

func (f *fakePluginStore) GetAll(_ context.Context) ([]model.PluginSetting, error) {
	out := make([]model.PluginSetting, 0, len(f.values))
	for k, v := range f.values {
		out = append(out, model.PluginSetting{Key: k, Value: v})
	}
	return out, nil
}

func (f *fakePluginStore) UpsertMany(_ context.Context, values map[string]string) error {
	for k, v := range values {
		f.values[k] = v
	}
	return nil
}

type fakeUserStore struct {
	users map[int]*model.User
}

func (f *fakeUserStore) GetByID(_ context.Context, id int) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeUserStore) UpdateLastIP(_ context.Context, id int, ip string) error {
	if u, ok := f.users[id]; ok {
		u.LastIP = ip
	}
	return nil
}

// fakeFiles keeps uploaded .seb files in memory.
type fakeFiles struct {
	files map[int64]*model.ConfigFile
	data  map[int64][]byte
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{files: make(map[int64]*model.ConfigFile), data: make(map[int64][]byte)}
}

func (f *fakeFiles) Save(_ context.Context, cmid int64, filename string, r io.Reader) (*model.ConfigFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if err := seb.Validate(data); err != nil {
		return nil, err
	}
	cf := &model.ConfigFile{CMID: cmid, Filename: filename, SHA256: seb.ContentHash(string(data))}
	f.files[cmid] = cf
	f.data[cmid] = data
	return cf, nil
}

func (f *fakeFiles) Get(_ context.Context, cmid int64) (*model.ConfigFile, error) {
	cf, ok := f.files[cmid]
	if !ok {
		return nil, ErrNoConfigFile
	}
	return cf, nil
}

func (f *fakeFiles) Delete(_ context.Context, cmid int64) error {
	delete(f.files, cmid)
	delete(f.data, cmid)
	return nil
}

func (f *fakeFiles) ReadConfigFile(_ context.Context, cmid int64) ([]byte, error) {
	d, ok := f.data[cmid]
	if !ok {
		return nil, ErrNoConfigFile
	}
	return d, nil
}

// GetByCMID lets fakeFiles double as the ConfigFileStore the resolver reads.
func (f *fakeFiles) GetByCMID(_ context.Context, cmid int64) (*model.ConfigFile, error) {
	cf, ok := f.files[cmid]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cf, nil
}

func (f *fakeFiles) Upsert(_ context.Context, cf *model.ConfigFile) error {
	f.files[cf.CMID] = cf
	return nil
}

// ─── Collaborators ──────────────────────────────────────────────────

type recordingSink struct {
	mu     sync.Mutex
	events []model.AccessEvent
}

func (r *recordingSink) Publish(_ context.Context, e *model.AccessEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

func (r *recordingSink) reasons() []model.DenyReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.DenyReason, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Reason)
	}
	return out
}

type fakeAuth struct {
	logouts []int
	logins  []int
}

func (f *fakeAuth) ForceLogout(_ context.Context, userID int) error {
	f.logouts = append(f.logouts, userID)
	return nil
}

func (f *fakeAuth) CompleteLogin(_ context.Context, userID int, _ string) (string, error) {
	f.logins = append(f.logins, userID)
	return "token-for-user", nil
}

// ─── Fixture ────────────────────────────────────────────────────────

const (
	testWWWRoot = "https://lms.example.com"
	testQuizID  = int64(3)
	testCMID    = int64(30)
	testUserID  = 7
)

// fixture wires the real services over in-memory stores.
type fixture struct {
	settings  *fakeSettingsStore
	overrides *fakeOverrideStore
	templates *fakeTemplateStore
	quizzes   *fakeQuizStore
	files     *fakeFiles
	plugin    *fakePluginStore
	users     *fakeUserStore
	cache     *cache.MemoryStore
	links     *seb.Links

	pluginSvc   *PluginSettingService
	resolver    *SettingsResolver
	configs     *ConfigService
	settingsSvc *SettingsService
}

func newFixture() *fixture {
	f := &fixture{
		settings:  newFakeSettingsStore(),
		templates: newFakeTemplateStore(),
		quizzes:   newFakeQuizStore(),
		files:     newFakeFiles(),
		plugin:    newFakePluginStore(nil),
		users: &fakeUserStore{users: map[int]*model.User{
			testUserID: {ID: testUserID, Email: "siswa@example.com", Name: "Siswa"},
		}},
		cache: cache.NewMemoryStore(),
		links: seb.NewLinks(testWWWRoot, "/quiz/view?id={cmid}"),
	}
	f.overrides = newFakeOverrideStore(f.quizzes)
	f.quizzes.add(&model.Quiz{ID: testQuizID, CMID: testCMID, CourseID: 1, Name: "Ujian Akhir"})

	log := zerolog.Nop()
	f.pluginSvc = NewPluginSettingService(f.plugin, log)
	f.resolver = NewSettingsResolver(f.settings, f.overrides, f.templates, f.files, f.quizzes, f.pluginSvc, log)
	f.configs = NewConfigService(f.cache, f.files, f.links, nil, log)
	f.settingsSvc = NewSettingsService(f.settings, f.overrides, f.templates, f.quizzes, f.files, f.configs, f.pluginSvc, log)
	return f
}

// manualSettings returns enforcing manual-mode settings.
func manualSettings() model.SEBSettings {
	s := model.DefaultSEBSettings()
	s.RequireSafeExamBrowser = model.ModeManual
	return s
}

func (f *fixture) storeBase(s model.SEBSettings) {
	_ = f.settings.Upsert(context.Background(), &model.QuizSettings{QuizID: testQuizID, CMID: testCMID, SEBSettings: s})
}

func (f *fixture) storeUserOverride(overrideID int64, userID int, p model.PartialSettings) {
	f.quizzes.addUserOverride(overrideID, testQuizID, userID)
	_ = f.overrides.Upsert(context.Background(), &model.Override{
		OverrideID: overrideID, QuizID: testQuizID, Enabled: true, PartialSettings: p,
	})
}

const testTemplateXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>showTaskBar</key>
	<true/>
	<key>allowQuit</key>
	<false/>
	<key>startURL</key>
	<string>https://elsewhere.example.org/</string>
</dict>
</plist>`

func (f *fixture) storeTemplate(name string, enabled bool) *model.Template {
	t := &model.Template{
		Name:        name,
		Content:     testTemplateXML,
		ContentHash: seb.ContentHash(testTemplateXML),
		Enabled:     enabled,
	}
	_ = f.templates.Create(context.Background(), t)
	return t
}

func boolPtr(b bool) *bool       { return &b }
func strPtr(s string) *string    { return &s }
func int64Ptr(n int64) *int64    { return &n }
func modePtr(m model.RequireMode) *model.RequireMode { return &m }
