package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-seb/internal/model"
)

const overrideColumns = `o.id, o.overrideid, o.quiz_id, o.enabled, o.templateid, o.requiresafeexambrowser,
	o.showsebtaskbar, o.showwificontrol, o.showreloadbutton, o.showtime, o.showkeyboardlayout,
	o.allowuserquitseb, o.quitpassword, o.linkquitseb, o.userconfirmquit, o.enableaudiocontrol,
	o.muteonstartup, o.allowspellchecking, o.allowreloadinexam, o.activateurlfiltering,
	o.filterembeddedcontent, o.expressionsallowed, o.regexallowed, o.expressionsblocked,
	o.regexblocked, o.allowedbrowserexamkeys, o.showsebdownloadlink, o.revision,
	o.created_at, o.updated_at`

// SEBOverrideRepository handles per-user and per-group SEB overrides.
type SEBOverrideRepository struct {
	pool *pgxpool.Pool
}

// NewSEBOverrideRepository creates a new SEBOverrideRepository.
func NewSEBOverrideRepository(pool *pgxpool.Pool) *SEBOverrideRepository {
	return &SEBOverrideRepository{pool: pool}
}

func scanOverride(row pgx.Row) (*model.Override, error) {
	o := &model.Override{}
	var mode *int16
	var keys *string
	err := row.Scan(&o.ID, &o.OverrideID, &o.QuizID, &o.Enabled, &o.TemplateID, &mode,
		&o.ShowSEBTaskbar, &o.ShowWifiControl, &o.ShowReloadButton, &o.ShowTime, &o.ShowKeyboardLayout,
		&o.AllowUserQuitSEB, &o.QuitPassword, &o.LinkQuitSEB, &o.UserConfirmQuit, &o.EnableAudioControl,
		&o.MuteOnStartup, &o.AllowSpellChecking, &o.AllowReloadInExam, &o.ActivateURLFiltering,
		&o.FilterEmbeddedContent, &o.ExpressionsAllowed, &o.RegexAllowed, &o.ExpressionsBlocked,
		&o.RegexBlocked, &keys, &o.ShowSEBDownloadLink, &o.Revision,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if mode != nil {
		m := model.RequireMode(*mode)
		o.RequireSafeExamBrowser = &m
	}
	if keys != nil {
		k := model.NormalizeBrowserExamKeys(*keys)
		o.AllowedBrowserExamKeys = &k
	}
	return o, nil
}

// GetByOverrideID returns pgx.ErrNoRows when no SEB override exists.
func (r *SEBOverrideRepository) GetByOverrideID(ctx context.Context, overrideID int64) (*model.Override, error) {
	return scanOverride(r.pool.QueryRow(ctx,
		`SELECT `+overrideColumns+` FROM seb_overrides o WHERE o.overrideid = $1`, overrideID))
}

// FindApplicable returns the enabled override that applies to userID on a
// quiz: the user's own override if any, otherwise the group override with
// the lowest override id among the user's groups.
func (r *SEBOverrideRepository) FindApplicable(ctx context.Context, quizID int64, userID int) (*model.Override, error) {
	return scanOverride(r.pool.QueryRow(ctx,
		`SELECT `+overrideColumns+`
		 FROM seb_overrides o
		 JOIN quiz_overrides qo ON qo.id = o.overrideid
		 LEFT JOIN group_members gm ON gm.group_id = qo.group_id AND gm.user_id = $2
		 WHERE o.quiz_id = $1 AND o.enabled
		   AND (qo.user_id = $2 OR gm.user_id IS NOT NULL)
		 ORDER BY (qo.user_id IS NOT NULL) DESC, o.overrideid ASC
		 LIMIT 1`, quizID, userID))
}

// ListByQuizID returns all SEB overrides of a quiz.
func (r *SEBOverrideRepository) ListByQuizID(ctx context.Context, quizID int64) ([]model.Override, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+overrideColumns+` FROM seb_overrides o WHERE o.quiz_id = $1 ORDER BY o.overrideid`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []model.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, *o)
	}
	return overrides, rows.Err()
}

// Upsert inserts or replaces the SEB override of o.OverrideID and bumps its revision.
func (r *SEBOverrideRepository) Upsert(ctx context.Context, o *model.Override) error {
	var mode *int16
	if o.RequireSafeExamBrowser != nil {
		m := int16(*o.RequireSafeExamBrowser)
		mode = &m
	}
	var keys *string
	if o.AllowedBrowserExamKeys != nil {
		k := model.JoinBrowserExamKeys(*o.AllowedBrowserExamKeys)
		keys = &k
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO seb_overrides (overrideid, quiz_id, enabled, templateid, requiresafeexambrowser,
			showsebtaskbar, showwificontrol, showreloadbutton, showtime, showkeyboardlayout,
			allowuserquitseb, quitpassword, linkquitseb, userconfirmquit, enableaudiocontrol,
			muteonstartup, allowspellchecking, allowreloadinexam, activateurlfiltering,
			filterembeddedcontent, expressionsallowed, regexallowed, expressionsblocked,
			regexblocked, allowedbrowserexamkeys, showsebdownloadlink)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26)
		 ON CONFLICT (overrideid) DO UPDATE SET
			quiz_id = EXCLUDED.quiz_id,
			enabled = EXCLUDED.enabled,
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
			revision = seb_overrides.revision + 1,
			updated_at = NOW()
		 RETURNING id, revision, created_at, updated_at`,
		o.OverrideID, o.QuizID, o.Enabled, o.TemplateID, mode,
		o.ShowSEBTaskbar, o.ShowWifiControl, o.ShowReloadButton, o.ShowTime, o.ShowKeyboardLayout,
		o.AllowUserQuitSEB, o.QuitPassword, o.LinkQuitSEB, o.UserConfirmQuit, o.EnableAudioControl,
		o.MuteOnStartup, o.AllowSpellChecking, o.AllowReloadInExam, o.ActivateURLFiltering,
		o.FilterEmbeddedContent, o.ExpressionsAllowed, o.RegexAllowed, o.ExpressionsBlocked,
		o.RegexBlocked, keys, o.ShowSEBDownloadLink,
	).Scan(&o.ID, &o.Revision, &o.CreatedAt, &o.UpdatedAt)
}

// DeleteByOverrideIDs removes SEB overrides and returns the quiz id of each
// deleted row keyed by override id.
func (r *SEBOverrideRepository) DeleteByOverrideIDs(ctx context.Context, overrideIDs []int64) (map[int64]int64, error) {
	rows, err := r.pool.Query(ctx,
		`DELETE FROM seb_overrides WHERE overrideid = ANY($1) RETURNING overrideid, quiz_id`, overrideIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deleted := make(map[int64]int64)
	for rows.Next() {
		var overrideID, quizID int64
		if err := rows.Scan(&overrideID, &quizID); err != nil {
			return nil, err
		}
		deleted[overrideID] = quizID
	}
	return deleted, rows.Err()
}
