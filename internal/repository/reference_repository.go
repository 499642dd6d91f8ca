package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/medconcierge/internal/model"
)

const referenceColumns = "id,code,name_de,name_en,name_ru,name_uk,sort_order,is_active"

func tableFor(kind model.LookupKind) (string, error) {
	t := kind.Table()
	if t == "" {
		return "", fmt.Errorf("unknown lookup kind %q", kind)
	}
	return t, nil
}

func scanReference(r rowScanner) (model.Reference, error) {
	var ref model.Reference
	err := r.Scan(&ref.ID, &ref.Code, &ref.Names.De, &ref.Names.En, &ref.Names.Ru, &ref.Names.Uk,
		&ref.SortOrder, &ref.IsActive)
	return ref, mapError(err)
}

// ResolveReferenceID maps an active lookup code to its row ID. Empty or
// unknown codes resolve to nil rather than an error.
func (q *Queries) ResolveReferenceID(ctx context.Context, kind model.LookupKind, code string) (*uint64, error) {
	if code == "" {
		return nil, nil
	}
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	var id uint64
	err = q.db.QueryRowContext(ctx,
		"SELECT id FROM "+table+" WHERE code=? AND is_active=1 LIMIT 1", code).Scan(&id)
	switch err = mapError(err); {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &id, nil
}

// ListReferences returns the rows of one lookup table ordered for display.
func (q *Queries) ListReferences(ctx context.Context, kind model.LookupKind, activeOnly bool) ([]model.Reference, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + referenceColumns + " FROM " + table
	if activeOnly {
		query += " WHERE is_active=1"
	}
	rows, err := q.db.QueryContext(ctx, query+" ORDER BY sort_order, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Reference{}
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// UpsertReference inserts or refreshes a lookup row keyed by code.
func (q *Queries) UpsertReference(ctx context.Context, kind model.LookupKind, ref model.Reference) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx,
		"INSERT INTO "+table+" (code,name_de,name_en,name_ru,name_uk,sort_order,is_active) VALUES (?,?,?,?,?,?,?)"+
			" ON DUPLICATE KEY UPDATE name_de=VALUES(name_de), name_en=VALUES(name_en), name_ru=VALUES(name_ru),"+
			" name_uk=VALUES(name_uk), sort_order=VALUES(sort_order), is_active=VALUES(is_active)",
		ref.Code, ref.Names.De, ref.Names.En, ref.Names.Ru, ref.Names.Uk, ref.SortOrder, ref.IsActive)
	return mapError(err)
}
