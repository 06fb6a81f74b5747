package fingerprint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sixfinger/sixfinger/internal/risk"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
// The schema lives in migrations/.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed fingerprint store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const componentColumns = `canvas, webgl, audio, fonts, hardware, screen, browser, timezone,
	plugins, touch, battery, network, media, color_depth, do_not_track`

const selectColumns = `SELECT hash, risk_score, is_bot, visit_count, first_seen, last_seen, ` +
	componentColumns + ` FROM fingerprints`

// RecordVisit upserts the row and holds its lock until the new score is
// written, so concurrent visits to one hash see consecutive counts.
func (p *PostgresStore) RecordVisit(ctx context.Context, hash string, c risk.Components, score ScoreFunc) (*Fingerprint, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	fp := &Fingerprint{Hash: hash, Components: c}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO fingerprints (hash, visit_count, first_seen, last_seen, `+componentColumns+`)
		VALUES ($1, 1, NOW(), NOW(), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (hash) DO UPDATE SET
			visit_count  = fingerprints.visit_count + 1,
			last_seen    = NOW(),
			canvas       = EXCLUDED.canvas,
			webgl        = EXCLUDED.webgl,
			audio        = EXCLUDED.audio,
			fonts        = EXCLUDED.fonts,
			hardware     = EXCLUDED.hardware,
			screen       = EXCLUDED.screen,
			browser      = EXCLUDED.browser,
			timezone     = EXCLUDED.timezone,
			plugins      = EXCLUDED.plugins,
			touch        = EXCLUDED.touch,
			battery      = EXCLUDED.battery,
			network      = EXCLUDED.network,
			media        = EXCLUDED.media,
			color_depth  = EXCLUDED.color_depth,
			do_not_track = EXCLUDED.do_not_track
		RETURNING visit_count, first_seen, last_seen
	`, hash,
		c.Canvas, c.WebGL, c.Audio, c.Fonts, c.Hardware, c.Screen, c.Browser, c.Timezone,
		c.Plugins, c.Touch, c.Battery, c.Network, c.Media, c.ColorDepth, c.DoNotTrack,
	).Scan(&fp.VisitCount, &fp.FirstSeen, &fp.LastSeen)
	if err != nil {
		return nil, fmt.Errorf("upsert fingerprint: %w", err)
	}

	result, err := score(fp.VisitCount)
	if err != nil {
		return nil, err
	}
	fp.RiskScore = result.RiskScore
	fp.IsBot = result.IsBot

	if _, err := tx.ExecContext(ctx,
		`UPDATE fingerprints SET risk_score = $2, is_bot = $3 WHERE hash = $1`,
		hash, fp.RiskScore, fp.IsBot,
	); err != nil {
		return nil, fmt.Errorf("update score: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return fp, nil
}

// Get retrieves a fingerprint by hash.
func (p *PostgresStore) Get(ctx context.Context, hash string) (*Fingerprint, error) {
	row := p.db.QueryRowContext(ctx, selectColumns+" WHERE hash = $1", hash)
	fp, err := scanFingerprint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fingerprint: %w", err)
	}
	return fp, nil
}

// List returns fingerprints by (last_seen, hash) descending.
func (p *PostgresStore) List(ctx context.Context, opts ListOptions) ([]*Fingerprint, error) {
	var (
		afterSeen sql.NullTime
		afterHash string
	)
	if opts.Cursor != nil {
		afterSeen = sql.NullTime{Time: opts.Cursor.LastSeen, Valid: true}
		afterHash = opts.Cursor.Hash
	}

	rows, err := p.db.QueryContext(ctx, selectColumns+`
		WHERE ($1 = FALSE OR is_bot)
		  AND ($2::TIMESTAMPTZ IS NULL OR (last_seen, hash) < ($2::TIMESTAMPTZ, $3::TEXT))
		ORDER BY last_seen DESC, hash DESC
		LIMIT $4
	`, opts.BotsOnly, afterSeen, afterHash, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Fingerprint
	for rows.Next() {
		fp, err := scanFingerprint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		result = append(result, fp)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFingerprint(row scanner) (*Fingerprint, error) {
	fp := &Fingerprint{}
	c := &fp.Components
	err := row.Scan(
		&fp.Hash, &fp.RiskScore, &fp.IsBot, &fp.VisitCount, &fp.FirstSeen, &fp.LastSeen,
		&c.Canvas, &c.WebGL, &c.Audio, &c.Fonts, &c.Hardware, &c.Screen, &c.Browser, &c.Timezone,
		&c.Plugins, &c.Touch, &c.Battery, &c.Network, &c.Media, &c.ColorDepth, &c.DoNotTrack,
	)
	if err != nil {
		return nil, err
	}
	fp.FirstSeen = fp.FirstSeen.UTC()
	fp.LastSeen = fp.LastSeen.UTC()
	return fp, nil
}
