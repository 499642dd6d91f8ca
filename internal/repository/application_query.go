package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/medconcierge/internal/model"
)

const detailSelect = `SELECT a.id, a.application_num, a.status, a.is_eu_resident, COALESCE(a.client_notes,''), a.created_at, a.updated_at,
 u.id, u.first_name, u.last_name, u.email, u.phone,
 l.id, l.code, l.name_de, l.name_en, l.name_ru, l.name_uk, l.sort_order, l.is_active,
 i.id, i.code, i.name_de, i.name_en, i.name_ru, i.name_uk, i.sort_order, i.is_active,
 t.id, t.code, t.name_de, t.name_en, t.name_ru, t.name_uk, t.sort_order, t.is_active
FROM applications a
JOIN users u ON u.id = a.user_id
LEFT JOIN locations l ON l.id = a.location_id
LEFT JOIN insurance_statuses i ON i.id = a.insurance_id
LEFT JOIN travel_abilities t ON t.id = a.travel_ability_id`

// nullRef receives a LEFT JOINed lookup row.
type nullRef struct {
	id                   sql.NullInt64
	code, de, en, ru, uk sql.NullString
	sortOrder            sql.NullInt64
	active               sql.NullBool
}

func (n *nullRef) targets() []any {
	return []any{&n.id, &n.code, &n.de, &n.en, &n.ru, &n.uk, &n.sortOrder, &n.active}
}

func (n *nullRef) ref() *model.Reference {
	if !n.id.Valid {
		return nil
	}
	return &model.Reference{
		ID:        uint64(n.id.Int64),
		Code:      n.code.String,
		Names:     model.LocalizedNames{De: n.de.String, En: n.en.String, Ru: n.ru.String, Uk: n.uk.String},
		SortOrder: int(n.sortOrder.Int64),
		IsActive:  n.active.Bool,
	}
}

func scanDetail(r rowScanner) (model.ApplicationDetail, error) {
	var (
		d            model.ApplicationDetail
		eu           sql.NullBool
		loc, ins, tr nullRef
	)
	dest := []any{&d.ID, &d.ApplicationNum, &d.Status, &eu, &d.ClientNotes, &d.CreatedAt, &d.UpdatedAt,
		&d.User.ID, &d.User.FirstName, &d.User.LastName, &d.User.Email, &d.User.Phone}
	dest = append(dest, loc.targets()...)
	dest = append(dest, ins.targets()...)
	dest = append(dest, tr.targets()...)
	if err := r.Scan(dest...); err != nil {
		return model.ApplicationDetail{}, mapError(err)
	}
	if eu.Valid {
		d.IsEuResident = &eu.Bool
	}
	d.Location, d.Insurance, d.TravelAbility = loc.ref(), ins.ref(), tr.ref()
	d.Services = []model.Reference{}
	return d, nil
}

func filterClause(f model.ApplicationFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.UserID != nil {
		conds = append(conds, "a.user_id=?")
		args = append(args, *f.UserID)
	}
	if f.Status != nil {
		conds = append(conds, "a.status=?")
		args = append(args, *f.Status)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListApplications returns one page of joined applications, newest first,
// and the total number of rows matching the filter.
func (q *Queries) ListApplications(ctx context.Context, f model.ApplicationFilter) ([]model.ApplicationDetail, int, error) {
	where, args := filterClause(f)

	var total int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM applications a"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	out := []model.ApplicationDetail{}
	if total == 0 || f.Offset >= total {
		return out, total, nil
	}

	pageArgs := append(append([]any{}, args...), f.Limit, f.Offset)
	rows, err := q.db.QueryContext(ctx, detailSelect+where+" ORDER BY a.created_at DESC, a.id DESC LIMIT ? OFFSET ?", pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := q.attachServices(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetApplicationDetail loads one joined application with services and history.
func (q *Queries) GetApplicationDetail(ctx context.Context, id uint64) (model.ApplicationDetail, error) {
	d, err := scanDetail(q.db.QueryRowContext(ctx, detailSelect+" WHERE a.id=?", id))
	if err != nil {
		return model.ApplicationDetail{}, err
	}
	list := []model.ApplicationDetail{d}
	if err := q.attachServices(ctx, list); err != nil {
		return model.ApplicationDetail{}, err
	}
	d = list[0]
	if d.History, err = q.ListStatusHistory(ctx, id); err != nil {
		return model.ApplicationDetail{}, err
	}
	return d, nil
}

func (q *Queries) attachServices(ctx context.Context, apps []model.ApplicationDetail) error {
	if len(apps) == 0 {
		return nil
	}
	idx := make(map[uint64]int, len(apps))
	args := make([]any, 0, len(apps))
	for i, a := range apps {
		idx[a.ID] = i
		args = append(args, a.ID)
	}
	rows, err := q.db.QueryContext(ctx,
		"SELECT aps.application_id, s.id, s.code, s.name_de, s.name_en, s.name_ru, s.name_uk, s.sort_order, s.is_active"+
			" FROM application_services aps JOIN services s ON s.id = aps.service_id"+
			" WHERE aps.application_id IN ("+placeholders(len(apps))+") ORDER BY s.sort_order, s.id", args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var appID uint64
		var ref model.Reference
		if err := rows.Scan(&appID, &ref.ID, &ref.Code, &ref.Names.De, &ref.Names.En, &ref.Names.Ru, &ref.Names.Uk,
			&ref.SortOrder, &ref.IsActive); err != nil {
			return err
		}
		if i, ok := idx[appID]; ok {
			apps[i].Services = append(apps[i].Services, ref)
		}
	}
	return rows.Err()
}
