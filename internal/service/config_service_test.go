package service

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/config"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/seb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigKey_DeterministicAcrossEviction(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.storeBase(manualSettings())

	eff, err := f.resolver.Resolve(ctx, testQuizID, 0)
	require.NoError(t, err)

	first, err := f.configs.ConfigKey(ctx, eff)
	require.NoError(t, err)
	assert.Len(t, first, 64)

	require.NoError(t, f.configs.Invalidate(ctx, testQuizID, 0))
	assert.Equal(t, "", f.configs.GetCached(ctx, "3"))

	second, err := f.configs.ConfigKey(ctx, eff)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, first, f.configs.GetCached(ctx, "3"))
}

func TestConfigKey_MatchesGeneratedFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := manualSettings()
	s.ExpressionsAllowed = "lms.example.com/*"
	f.storeBase(s)

	eff, err := f.resolver.Resolve(ctx, testQuizID, 0)
	require.NoError(t, err)

	key, err := f.configs.ConfigKey(ctx, eff)
	require.NoError(t, err)

	xml, err := f.configs.ConfigXML(ctx, eff)
	require.NoError(t, err)
	d, err := seb.Parse(xml)
	require.NoError(t, err)

	assert.Equal(t, key, seb.ConfigKey(d), "the downloaded file hashes to the key the server checks")
	assert.Equal(t, f.links.QuizURL(testCMID), d["startURL"])
}

func TestConfigKey_StaleFingerprintRecomputes(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.storeBase(manualSettings())

	eff, err := f.resolver.Resolve(ctx, testQuizID, 0)
	require.NoError(t, err)
	before, err := f.configs.ConfigKey(ctx, eff)
	require.NoError(t, err)

	// Change the row behind the cache's back: no invalidation happens.
	s := manualSettings()
	s.ShowTime = false
	f.storeBase(s)

	eff, err = f.resolver.Resolve(ctx, testQuizID, 0)
	require.NoError(t, err)
	after, err := f.configs.ConfigKey(ctx, eff)
	require.NoError(t, err)

	assert.NotEqual(t, before, after)

	raw, err := f.cache.Get(ctx, config.CacheKey.ConfigHashKey("3"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, eff.Fingerprint+"\n"))
}

func TestConfigKey_OverrideHasItsOwnIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.storeBase(manualSettings())
	f.storeUserOverride(20, testUserID, model.PartialSettings{ShowTime: boolPtr(false)})

	base, err := f.resolver.Resolve(ctx, testQuizID, 0)
	require.NoError(t, err)
	user, err := f.resolver.Resolve(ctx, testQuizID, testUserID)
	require.NoError(t, err)

	baseKey, err := f.configs.ConfigKey(ctx, base)
	require.NoError(t, err)
	userKey, err := f.configs.ConfigKey(ctx, user)
	require.NoError(t, err)

	assert.Equal(t, "3", Identity(base))
	assert.Equal(t, "3-20", Identity(user))
	assert.NotEqual(t, baseKey, userKey)
	assert.Equal(t, userKey, f.configs.GetCached(ctx, "3-20"))
}

func TestBuildConfig_TemplateIsBoundToQuiz(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := manualSettings()
	s.RequireSafeExamBrowser = model.ModeTemplate
	s.TemplateID = f.storeTemplate("Ujian", true).ID
	s.AllowUserQuitSEB = true
	s.QuitPassword = "rahasia"
	f.storeBase(s)

	eff, err := f.resolver.Resolve(ctx, testQuizID, 0)
	require.NoError(t, err)

	d, err := f.configs.BuildConfig(ctx, eff)
	require.NoError(t, err)
	assert.Equal(t, f.links.QuizURL(testCMID), d["startURL"])
	assert.Equal(t, true, d["allowQuit"])
	assert.Equal(t, seb.HashQuitPassword("rahasia"), d["hashedQuitPassword"])
	assert.Equal(t, true, d["showTaskBar"], "template keys are kept")
}

func TestBuildConfig_UploadUsesStoredFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.files.Save(ctx, testCMID, "ujian.seb", strings.NewReader(testTemplateXML))
	require.NoError(t, err)

	s := manualSettings()
	s.RequireSafeExamBrowser = model.ModeUpload
	f.storeBase(s)

	eff, err := f.resolver.Resolve(ctx, testQuizID, 0)
	require.NoError(t, err)
	assert.Contains(t, eff.Fingerprint, ".f"+f.files.files[testCMID].SHA256[:12])

	d, err := f.configs.BuildConfig(ctx, eff)
	require.NoError(t, err)
	assert.Equal(t, f.links.QuizURL(testCMID), d["startURL"])
	assert.Equal(t, false, d["allowQuit"], "uploaded files keep their own quit settings")
}

func TestBuildConfig_ClientModeHasNoConfig(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := manualSettings()
	s.RequireSafeExamBrowser = model.ModeClient
	f.storeBase(s)

	eff, err := f.resolver.Resolve(ctx, testQuizID, 0)
	require.NoError(t, err)

	_, err = f.configs.ConfigXML(ctx, eff)
	assert.ErrorIs(t, err, ErrNoConfigFile)
}

func TestConfigDownload(t *testing.T) {
	ctx := context.Background()

	t.Run("not configured", func(t *testing.T) {
		f := newFixture()
		d := NewConfigDownloadService(f.quizzes, f.resolver, f.configs, zerolog.Nop())
		_, err := d.Download(ctx, testCMID, testUserID)
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("unknown quiz", func(t *testing.T) {
		f := newFixture()
		d := NewConfigDownloadService(f.quizzes, f.resolver, f.configs, zerolog.Nop())
		_, err := d.Download(ctx, 999, testUserID)
		assert.ErrorIs(t, err, ErrQuizNotFound)
	})

	t.Run("client mode", func(t *testing.T) {
		f := newFixture()
		s := model.DefaultSEBSettings()
		s.RequireSafeExamBrowser = model.ModeClient
		f.storeBase(s)
		d := NewConfigDownloadService(f.quizzes, f.resolver, f.configs, zerolog.Nop())
		_, err := d.Download(ctx, testCMID, testUserID)
		assert.ErrorIs(t, err, ErrNoConfigFile)
	})

	t.Run("override applies to its user", func(t *testing.T) {
		f := newFixture()
		f.storeBase(manualSettings())
		f.storeUserOverride(20, testUserID, model.PartialSettings{ShowSEBTaskbar: boolPtr(false)})
		d := NewConfigDownloadService(f.quizzes, f.resolver, f.configs, zerolog.Nop())

		forUser, err := d.Download(ctx, testCMID, testUserID)
		require.NoError(t, err)
		forOthers, err := d.Download(ctx, testCMID, 0)
		require.NoError(t, err)

		userDict, err := seb.Parse(forUser)
		require.NoError(t, err)
		otherDict, err := seb.Parse(forOthers)
		require.NoError(t, err)
		assert.Equal(t, false, userDict["showTaskBar"])
		assert.Equal(t, true, otherDict["showTaskBar"])
	})
}
