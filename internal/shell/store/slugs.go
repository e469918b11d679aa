package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/dynroute/internal/core/domain"
	"github.com/google/uuid"
)

// =============================================================================
// Slug Operations
// =============================================================================

type slugRow struct {
	ID        string `db:"id"`
	NodeID    string `db:"node_id"`
	SiteID    string `db:"site_id"`
	Locale    string `db:"locale"`
	Text      string `db:"text"`
	IsCustom  bool   `db:"is_custom"`
	UpdatedAt string `db:"updated_at"`
}

func rowToSlug(r *slugRow) domain.SlugRecord {
	return domain.SlugRecord{
		ID:        r.ID,
		NodeID:    r.NodeID,
		SiteID:    r.SiteID,
		Locale:    r.Locale,
		Text:      r.Text,
		IsCustom:  r.IsCustom,
		UpdatedAt: parseTime(r.UpdatedAt),
	}
}

func slugWriteError(op string, rec *domain.SlugRecord, err error) error {
	switch {
	case isUnique(err, "slugs.site_id, slugs.text"):
		return NewStoreError(op, "slug", rec.Text, "slug text already used by another node", ErrDuplicateSlug)
	case isUnique(err, "slugs.node_id, slugs.locale"):
		return wrapf(op, "slug", rec.NodeID, ErrDuplicateID, "node already has a slug for locale %s", rec.Locale)
	case isUnique(err, "slugs.id"):
		return NewStoreError(op, "slug", rec.ID, "slug already exists", ErrDuplicateID)
	case isForeignKey(err):
		return NewStoreError(op, "slug", rec.ID, "node or site does not exist", ErrForeignKey)
	}
	return NewStoreError(op, "slug", rec.ID, err.Error(), err)
}

func (q queries) GetSlug(ctx context.Context, id string) (*domain.SlugRecord, error) {
	var row slugRow
	if err := q.exec.GetContext(ctx, &row, `SELECT * FROM slugs WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetSlug", "slug", id, "slug not found", ErrNotFound)
		}
		return nil, NewStoreError("GetSlug", "slug", id, err.Error(), err)
	}
	rec := rowToSlug(&row)
	return &rec, nil
}

func (q queries) GetSlugByNodeLocale(ctx context.Context, nodeID, locale string) (*domain.SlugRecord, error) {
	var row slugRow
	err := q.exec.GetContext(ctx, &row, `SELECT * FROM slugs WHERE node_id = ? AND locale = ?`, nodeID, locale)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetSlugByNodeLocale", "slug", nodeID, "no slug for locale "+locale, ErrNotFound)
		}
		return nil, NewStoreError("GetSlugByNodeLocale", "slug", nodeID, err.Error(), err)
	}
	rec := rowToSlug(&row)
	return &rec, nil
}

func (q queries) ListSlugsByNode(ctx context.Context, nodeID string) ([]domain.SlugRecord, error) {
	var rows []slugRow
	if err := q.exec.SelectContext(ctx, &rows, `SELECT * FROM slugs WHERE node_id = ? ORDER BY locale`, nodeID); err != nil {
		return nil, NewStoreError("ListSlugsByNode", "slug", nodeID, err.Error(), err)
	}
	out := make([]domain.SlugRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rowToSlug(&rows[i]))
	}
	return out, nil
}

// FindSlugsByText returns every record on the site using text, across nodes
// and locales.
func (q queries) FindSlugsByText(ctx context.Context, siteID, text string) ([]domain.SlugRecord, error) {
	var rows []slugRow
	err := q.exec.SelectContext(ctx, &rows,
		`SELECT * FROM slugs WHERE site_id = ? AND text = ? ORDER BY node_id, locale`, siteID, text)
	if err != nil {
		return nil, NewStoreError("FindSlugsByText", "slug", text, err.Error(), err)
	}
	out := make([]domain.SlugRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rowToSlug(&rows[i]))
	}
	return out, nil
}

func (q queries) CountSlugsBySite(ctx context.Context, siteID string) (int, error) {
	var n int
	if err := q.exec.GetContext(ctx, &n, `SELECT COUNT(*) FROM slugs WHERE site_id = ?`, siteID); err != nil {
		return 0, NewStoreError("CountSlugsBySite", "slug", siteID, err.Error(), err)
	}
	return n, nil
}

// InsertSlug creates a slug record. The site-wide text uniqueness check runs
// in the database, so concurrent writers get ErrDuplicateSlug.
func (q queries) InsertSlug(ctx context.Context, rec *domain.SlugRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.UpdatedAt = time.Now()
	return q.inTx(ctx, func(tx queries) error {
		_, err := tx.exec.ExecContext(ctx, `
			INSERT INTO slugs (id, node_id, site_id, locale, text, is_custom, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.NodeID, rec.SiteID, rec.Locale, rec.Text, rec.IsCustom, formatTime(rec.UpdatedAt))
		if err != nil {
			return slugWriteError("InsertSlug", rec, err)
		}
		return tx.clearRedirects(ctx, rec)
	})
}

// UpdateSlug rewrites the text of a non-custom record. The replaced text is
// kept as a redirect for the node.
func (q queries) UpdateSlug(ctx context.Context, rec *domain.SlugRecord) error {
	rec.UpdatedAt = time.Now()
	return q.inTx(ctx, func(tx queries) error {
		current, err := tx.GetSlug(ctx, rec.ID)
		if err != nil {
			return err
		}
		if current.IsCustom {
			return NewStoreError("UpdateSlug", "slug", rec.ID, "custom slugs are not regenerated", ErrCustomSlug)
		}
		if current.Text == rec.Text {
			return nil
		}
		_, err = tx.exec.ExecContext(ctx,
			`UPDATE slugs SET text = ?, updated_at = ? WHERE id = ? AND is_custom = 0`,
			rec.Text, formatTime(rec.UpdatedAt), rec.ID)
		if err != nil {
			return slugWriteError("UpdateSlug", rec, err)
		}
		if err := tx.addRedirect(ctx, current); err != nil {
			return err
		}
		return tx.clearRedirects(ctx, rec)
	})
}

func (q queries) DeleteSlug(ctx context.Context, id string) error {
	res, err := q.exec.ExecContext(ctx, `DELETE FROM slugs WHERE id = ?`, id)
	if err != nil {
		return NewStoreError("DeleteSlug", "slug", id, err.Error(), err)
	}
	if rowsAffected(res) == 0 {
		return NewStoreError("DeleteSlug", "slug", id, "slug not found", ErrNotFound)
	}
	return nil
}

// PinSlug stores rec as the custom slug for its node and locale, replacing
// any generated record.
func (q queries) PinSlug(ctx context.Context, rec *domain.SlugRecord) error {
	rec.IsCustom = true
	rec.UpdatedAt = time.Now()
	return q.inTx(ctx, func(tx queries) error {
		current, err := tx.GetSlugByNodeLocale(ctx, rec.NodeID, rec.Locale)
		switch {
		case err == nil:
			rec.ID = current.ID
			_, err = tx.exec.ExecContext(ctx,
				`UPDATE slugs SET text = ?, is_custom = 1, updated_at = ? WHERE id = ?`,
				rec.Text, formatTime(rec.UpdatedAt), rec.ID)
			if err != nil {
				return slugWriteError("PinSlug", rec, err)
			}
			if current.Text != rec.Text {
				if err := tx.addRedirect(ctx, current); err != nil {
					return err
				}
			}
		case IsNotFound(err):
			if rec.ID == "" {
				rec.ID = uuid.New().String()
			}
			_, err = tx.exec.ExecContext(ctx, `
				INSERT INTO slugs (id, node_id, site_id, locale, text, is_custom, updated_at)
				VALUES (?, ?, ?, ?, ?, 1, ?)`,
				rec.ID, rec.NodeID, rec.SiteID, rec.Locale, rec.Text, formatTime(rec.UpdatedAt))
			if err != nil {
				return slugWriteError("PinSlug", rec, err)
			}
		default:
			return err
		}
		return tx.clearRedirects(ctx, rec)
	})
}

// UnpinSlug clears the custom flag so the next build regenerates the slug.
func (q queries) UnpinSlug(ctx context.Context, nodeID, locale string) error {
	res, err := q.exec.ExecContext(ctx,
		`UPDATE slugs SET is_custom = 0, updated_at = ? WHERE node_id = ? AND locale = ? AND is_custom = 1`,
		formatTime(time.Now()), nodeID, locale)
	if err != nil {
		return NewStoreError("UnpinSlug", "slug", nodeID, err.Error(), err)
	}
	if rowsAffected(res) == 0 {
		return NewStoreError("UnpinSlug", "slug", nodeID, "no custom slug for locale "+locale, ErrNotFound)
	}
	return nil
}

// =============================================================================
// Redirect Operations
// =============================================================================

type redirectRow struct {
	ID        string `db:"id"`
	NodeID    string `db:"node_id"`
	SiteID    string `db:"site_id"`
	Locale    string `db:"locale"`
	Text      string `db:"text"`
	CreatedAt string `db:"created_at"`
}

func rowToRedirect(r *redirectRow) domain.SlugRedirect {
	return domain.SlugRedirect{
		ID:        r.ID,
		NodeID:    r.NodeID,
		SiteID:    r.SiteID,
		Locale:    r.Locale,
		Text:      r.Text,
		CreatedAt: parseTime(r.CreatedAt),
	}
}

func (q queries) addRedirect(ctx context.Context, old *domain.SlugRecord) error {
	_, err := q.exec.ExecContext(ctx, `
		INSERT OR IGNORE INTO slug_redirects (id, node_id, site_id, locale, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), old.NodeID, old.SiteID, old.Locale, old.Text, formatTime(time.Now()))
	if err != nil {
		return NewStoreError("addRedirect", "redirect", old.NodeID, err.Error(), err)
	}
	return nil
}

// clearRedirects drops redirects that now shadow a live slug: a live slug
// always wins over a redirect with the same text.
func (q queries) clearRedirects(ctx context.Context, live *domain.SlugRecord) error {
	_, err := q.exec.ExecContext(ctx,
		`DELETE FROM slug_redirects WHERE site_id = ? AND text = ?`, live.SiteID, live.Text)
	if err != nil {
		return NewStoreError("clearRedirects", "redirect", live.Text, err.Error(), err)
	}
	return nil
}

func (q queries) ListRedirectsByNode(ctx context.Context, nodeID string) ([]domain.SlugRedirect, error) {
	var rows []redirectRow
	err := q.exec.SelectContext(ctx, &rows,
		`SELECT * FROM slug_redirects WHERE node_id = ? ORDER BY created_at, text`, nodeID)
	if err != nil {
		return nil, NewStoreError("ListRedirectsByNode", "redirect", nodeID, err.Error(), err)
	}
	out := make([]domain.SlugRedirect, 0, len(rows))
	for i := range rows {
		out = append(out, rowToRedirect(&rows[i]))
	}
	return out, nil
}

// FindRedirect returns the most recent redirect for text on the site.
func (q queries) FindRedirect(ctx context.Context, siteID, text string) (*domain.SlugRedirect, error) {
	var row redirectRow
	err := q.exec.GetContext(ctx, &row,
		`SELECT * FROM slug_redirects WHERE site_id = ? AND text = ? ORDER BY created_at DESC LIMIT 1`, siteID, text)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("FindRedirect", "redirect", text, "redirect not found", ErrNotFound)
		}
		return nil, NewStoreError("FindRedirect", "redirect", text, err.Error(), err)
	}
	r := rowToRedirect(&row)
	return &r, nil
}
