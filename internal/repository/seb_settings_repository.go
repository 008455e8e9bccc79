package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-seb/internal/model"
)

const quizSettingsColumns = `id, quiz_id, cmid, templateid, requiresafeexambrowser,
	showsebtaskbar, showwificontrol, showreloadbutton, showtime, showkeyboardlayout,
	allowuserquitseb, quitpassword, linkquitseb, userconfirmquit, enableaudiocontrol,
	muteonstartup, allowspellchecking, allowreloadinexam, activateurlfiltering,
	filterembeddedcontent, expressionsallowed, regexallowed, expressionsblocked,
	regexblocked, allowedbrowserexamkeys, showsebdownloadlink, revision, usermodified,
	created_at, updated_at`

// SEBSettingsRepository handles per-quiz SEB settings.
type SEBSettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSEBSettingsRepository creates a new SEBSettingsRepository.
func NewSEBSettingsRepository(pool *pgxpool.Pool) *SEBSettingsRepository {
	return &SEBSettingsRepository{pool: pool}
}

func scanQuizSettings(row pgx.Row) (*model.QuizSettings, error) {
	s := &model.QuizSettings{}
	var mode int16
	var keys string
	err := row.Scan(&s.ID, &s.QuizID, &s.CMID, &s.TemplateID, &mode,
		&s.ShowSEBTaskbar, &s.ShowWifiControl, &s.ShowReloadButton, &s.ShowTime, &s.ShowKeyboardLayout,
		&s.AllowUserQuitSEB, &s.QuitPassword, &s.LinkQuitSEB, &s.UserConfirmQuit, &s.EnableAudioControl,
		&s.MuteOnStartup, &s.AllowSpellChecking, &s.AllowReloadInExam, &s.ActivateURLFiltering,
		&s.FilterEmbeddedContent, &s.ExpressionsAllowed, &s.RegexAllowed, &s.ExpressionsBlocked,
		&s.RegexBlocked, &keys, &s.ShowSEBDownloadLink, &s.Revision, &s.UserModifiedID,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.RequireSafeExamBrowser = model.RequireMode(mode)
	s.AllowedBrowserExamKeys = model.NormalizeBrowserExamKeys(keys)
	return s, nil
}

// GetByQuizID returns pgx.ErrNoRows when the quiz has no SEB settings.
func (r *SEBSettingsRepository) GetByQuizID(ctx context.Context, quizID int64) (*model.QuizSettings, error) {
	return scanQuizSettings(r.pool.QueryRow(ctx,
		`SELECT `+quizSettingsColumns+` FROM seb_quiz_settings WHERE quiz_id = $1`, quizID))
}

// GetByCMID looks settings up by course module id.
func (r *SEBSettingsRepository) GetByCMID(ctx context.Context, cmid int64) (*model.QuizSettings, error) {
	return scanQuizSettings(r.pool.QueryRow(ctx,
		`SELECT `+quizSettingsColumns+` FROM seb_quiz_settings WHERE cmid = $1`, cmid))
}

// Upsert inserts or replaces the settings row of s.QuizID and bumps its
// revision. s.ID, s.Revision and timestamps are filled from the database.
func (r *SEBSettingsRepository) Upsert(ctx context.Context, s *model.QuizSettings) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO seb_quiz_settings (quiz_id, cmid, templateid, requiresafeexambrowser,
			showsebtaskbar, showwificontrol, showreloadbutton, showtime, showkeyboardlayout,
			allowuserquitseb, quitpassword, linkquitseb, userconfirmquit, enableaudiocontrol,
			muteonstartup, allowspellchecking, allowreloadinexam, activateurlfiltering,
			filterembeddedcontent, expressionsallowed, regexallowed, expressionsblocked,
			regexblocked, allowedbrowserexamkeys, showsebdownloadlink, usermodified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26)
		 ON CONFLICT (quiz_id) DO UPDATE SET
			cmid = EXCLUDED.cmid,
			templateid = EXCLUDED.templateid,
			requiresafeexambrowser = EXCLUDED.requiresafeexambrowser,
			showsebtaskbar = EXCLUDED.showsebtaskbar,
			showwificontrol = EXCLUDED.showwificontrol,
			showreloadbutton = EXCLUDED.showreloadbutton,
			showtime = EXCLUDED.showtime,
			showkeyboardlayout = EXCLUDED.showkeyboardlayout,
			allowuserquitseb = EXCLUDED.allowuserquitseb,
			quitpassword = EXCLUDED.quitpassword,
			linkquitseb = EXCLUDED.linkquitseb,
			userconfirmquit = EXCLUDED.userconfirmquit,
			enableaudiocontrol = EXCLUDED.enableaudiocontrol,
			muteonstartup = EXCLUDED.muteonstartup,
			allowspellchecking = EXCLUDED.allowspellchecking,
			allowreloadinexam = EXCLUDED.allowreloadinexam,
			activateurlfiltering = EXCLUDED.activateurlfiltering,
			filterembeddedcontent = EXCLUDED.filterembeddedcontent,
			expressionsallowed = EXCLUDED.expressionsallowed,
			regexallowed = EXCLUDED.regexallowed,
			expressionsblocked = EXCLUDED.expressionsblocked,
			regexblocked = EXCLUDED.regexblocked,
			allowedbrowserexamkeys = EXCLUDED.allowedbrowserexamkeys,
			showsebdownloadlink = EXCLUDED.showsebdownloadlink,
			usermodified = EXCLUDED.usermodified,
			revision = seb_quiz_settings.revision + 1,
			updated_at = NOW()
		 RETURNING id, revision, created_at, updated_at`,
		s.QuizID, s.CMID, s.TemplateID, int16(s.RequireSafeExamBrowser),
		s.ShowSEBTaskbar, s.ShowWifiControl, s.ShowReloadButton, s.ShowTime, s.ShowKeyboardLayout,
		s.AllowUserQuitSEB, s.QuitPassword, s.LinkQuitSEB, s.UserConfirmQuit, s.EnableAudioControl,
		s.MuteOnStartup, s.AllowSpellChecking, s.AllowReloadInExam, s.ActivateURLFiltering,
		s.FilterEmbeddedContent, s.ExpressionsAllowed, s.RegexAllowed, s.ExpressionsBlocked,
		s.RegexBlocked, model.JoinBrowserExamKeys(s.AllowedBrowserExamKeys), s.ShowSEBDownloadLink,
		s.UserModifiedID,
	).Scan(&s.ID, &s.Revision, &s.CreatedAt, &s.UpdatedAt)
}

// TouchRevision bumps the revision of a quiz's settings without changing
// them. Used when the uploaded config file is replaced.
func (r *SEBSettingsRepository) TouchRevision(ctx context.Context, quizID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE seb_quiz_settings SET revision = revision + 1, updated_at = NOW() WHERE quiz_id = $1`, quizID)
	return err
}

// DeleteByQuizID removes a quiz's settings. Missing rows are not an error.
func (r *SEBSettingsRepository) DeleteByQuizID(ctx context.Context, quizID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM seb_quiz_settings WHERE quiz_id = $1`, quizID)
	return err
}
