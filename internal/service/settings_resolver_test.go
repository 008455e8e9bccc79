package service

import (
	"context"
	"testing"

	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_NothingConfigured(t *testing.T) {
	f := newFixture()

	_, err := f.resolver.Resolve(context.Background(), testQuizID, testUserID)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestResolve_BaseOnly(t *testing.T) {
	f := newFixture()
	s := manualSettings()
	s.ShowSEBTaskbar = false
	f.storeBase(s)

	eff, err := f.resolver.Resolve(context.Background(), testQuizID, testUserID)
	require.NoError(t, err)
	assert.Equal(t, testCMID, eff.CMID)
	assert.Equal(t, int64(0), eff.OverrideID)
	assert.Equal(t, model.ModeManual, eff.RequireSafeExamBrowser)
	assert.False(t, eff.ShowSEBTaskbar)
}

func TestResolve_UserOverrideWinsOverGroup(t *testing.T) {
	f := newFixture()
	f.storeBase(manualSettings())

	f.quizzes.addGroupOverride(10, testQuizID, 5)
	f.overrides.groups[testUserID] = []int{5}
	_ = f.overrides.Upsert(context.Background(), &model.Override{
		OverrideID: 10, QuizID: testQuizID, Enabled: true,
		PartialSettings: model.PartialSettings{ShowTime: boolPtr(false)},
	})
	f.storeUserOverride(20, testUserID, model.PartialSettings{RequireSafeExamBrowser: modePtr(model.ModeClient)})

	eff, err := f.resolver.Resolve(context.Background(), testQuizID, testUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), eff.OverrideID)
	assert.Equal(t, model.ModeClient, eff.RequireSafeExamBrowser)
	// Fields the override leaves alone come from the base row.
	assert.True(t, eff.ShowTime)
}

func TestResolve_GroupOverride(t *testing.T) {
	f := newFixture()
	f.storeBase(manualSettings())
	f.quizzes.addGroupOverride(10, testQuizID, 5)
	f.overrides.groups[testUserID] = []int{5}
	_ = f.overrides.Upsert(context.Background(), &model.Override{
		OverrideID: 10, QuizID: testQuizID, Enabled: true,
		PartialSettings: model.PartialSettings{ShowTime: boolPtr(false)},
	})

	eff, err := f.resolver.Resolve(context.Background(), testQuizID, testUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), eff.OverrideID)
	assert.False(t, eff.ShowTime)

	other, err := f.resolver.Resolve(context.Background(), testQuizID, 99)
	require.NoError(t, err)
	assert.Equal(t, int64(0), other.OverrideID)
	assert.True(t, other.ShowTime)
}

func TestResolve_DisabledOverrideIgnored(t *testing.T) {
	f := newFixture()
	f.storeBase(manualSettings())
	f.quizzes.addUserOverride(20, testQuizID, testUserID)
	_ = f.overrides.Upsert(context.Background(), &model.Override{
		OverrideID: 20, QuizID: testQuizID, Enabled: false,
		PartialSettings: model.PartialSettings{RequireSafeExamBrowser: modePtr(model.ModeNo)},
	})

	eff, err := f.resolver.Resolve(context.Background(), testQuizID, testUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), eff.OverrideID)
	assert.Equal(t, model.ModeManual, eff.RequireSafeExamBrowser)
}

func TestResolve_OverrideWithoutBaseStartsFromPluginDefaults(t *testing.T) {
	f := newFixture()
	f.plugin.values["default_showtime"] = "false"
	f.storeUserOverride(20, testUserID, model.PartialSettings{RequireSafeExamBrowser: modePtr(model.ModeManual)})

	eff, err := f.resolver.Resolve(context.Background(), testQuizID, testUserID)
	require.NoError(t, err)
	assert.Equal(t, testCMID, eff.CMID)
	assert.Equal(t, model.ModeManual, eff.RequireSafeExamBrowser)
	assert.False(t, eff.ShowTime)
}

func TestResolve_ZeroUserSkipsOverrides(t *testing.T) {
	f := newFixture()
	f.storeUserOverride(20, testUserID, model.PartialSettings{RequireSafeExamBrowser: modePtr(model.ModeManual)})

	_, err := f.resolver.Resolve(context.Background(), testQuizID, 0)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestResolve_TemplateMode(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		missing  bool
		wantMode model.RequireMode
	}{
		{name: "enabled template", enabled: true, wantMode: model.ModeTemplate},
		{name: "disabled template degrades", enabled: false, wantMode: model.ModeNo},
		{name: "missing template degrades", missing: true, wantMode: model.ModeNo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			s := manualSettings()
			s.RequireSafeExamBrowser = model.ModeTemplate
			s.TemplateID = 9999
			if !tt.missing {
				s.TemplateID = f.storeTemplate("Ujian", tt.enabled).ID
			}
			f.storeBase(s)

			eff, err := f.resolver.Resolve(context.Background(), testQuizID, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, eff.RequireSafeExamBrowser)
			if tt.wantMode == model.ModeTemplate {
				require.NotNil(t, eff.Template)
				assert.Equal(t, s.TemplateID, eff.Template.ID)
			} else {
				assert.Nil(t, eff.Template)
			}
		})
	}
}

func TestResolve_FingerprintTracksEverySource(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := manualSettings()
	s.RequireSafeExamBrowser = model.ModeTemplate
	tpl := f.storeTemplate("Ujian", true)
	s.TemplateID = tpl.ID
	f.storeBase(s)

	fingerprint := func() string {
		eff, err := f.resolver.Resolve(ctx, testQuizID, testUserID)
		require.NoError(t, err)
		return eff.Fingerprint
	}

	first := fingerprint()
	assert.Equal(t, first, fingerprint(), "unchanged sources keep the fingerprint")

	require.NoError(t, f.settings.TouchRevision(ctx, testQuizID))
	afterBase := fingerprint()
	assert.NotEqual(t, first, afterBase)

	require.NoError(t, f.templates.SetEnabled(ctx, tpl.ID, true))
	afterTemplate := fingerprint()
	assert.NotEqual(t, afterBase, afterTemplate)

	f.storeUserOverride(20, testUserID, model.PartialSettings{ShowTime: boolPtr(false)})
	afterOverride := fingerprint()
	assert.NotEqual(t, afterTemplate, afterOverride)

	f.plugin.values["default_showtime"] = "false"
	assert.NotEqual(t, afterOverride, fingerprint())
}
