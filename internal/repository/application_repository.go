package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/medconcierge/internal/model"
)

const applicationColumns = "id,application_num,user_id,location_id,insurance_id,travel_ability_id,is_eu_resident,status,COALESCE(client_notes,''),created_at,updated_at"

func scanApplication(r rowScanner) (model.Application, error) {
	var (
		a                           model.Application
		location, insurance, travel sql.NullInt64
		eu                          sql.NullBool
	)
	err := r.Scan(&a.ID, &a.ApplicationNum, &a.UserID, &location, &insurance, &travel, &eu,
		&a.Status, &a.ClientNotes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Application{}, mapError(err)
	}
	a.LocationID = nullID(location)
	a.InsuranceID = nullID(insurance)
	a.TravelAbilityID = nullID(travel)
	if eu.Valid {
		a.IsEuResident = &eu.Bool
	}
	return a, nil
}

func nullID(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	id := uint64(n.Int64)
	return &id
}

func (q *Queries) ApplicationNumExists(ctx context.Context, num string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM applications WHERE application_num=?", num).Scan(&n)
	return n > 0, mapError(err)
}

// CreateApplication inserts a. A colliding application_num surfaces as a
// DuplicateError with Key "uq_applications_num".
func (q *Queries) CreateApplication(ctx context.Context, a model.Application) (uint64, error) {
	if a.Status == "" {
		a.Status = model.StatusNew
	}
	var notes any
	if a.ClientNotes != "" {
		notes = a.ClientNotes
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO applications
		 (application_num, user_id, location_id, insurance_id, travel_ability_id, is_eu_resident, status, client_notes)
		 VALUES (?,?,?,?,?,?,?,?)`,
		a.ApplicationNum, a.UserID, a.LocationID, a.InsuranceID, a.TravelAbilityID, a.IsEuResident, a.Status, notes)
	if err != nil {
		return 0, mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// AddApplicationServices links the active services named by codes. Unknown
// codes are skipped; the number of linked rows is returned.
func (q *Queries) AddApplicationServices(ctx context.Context, applicationID uint64, codes []string) (int, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(codes)+1)
	args = append(args, applicationID)
	for _, c := range codes {
		args = append(args, c)
	}
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO application_services (application_id, service_id) SELECT ?, id FROM services WHERE is_active=1 AND code IN ("+
			placeholders(len(codes))+")", args...)
	if err != nil {
		return 0, mapError(err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (q *Queries) AppendStatusHistory(ctx context.Context, h model.StatusHistory) (uint64, error) {
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO application_status_history (application_id, new_status, comment, changed_by) VALUES (?,?,?,?)",
		h.ApplicationID, h.NewStatus, h.Comment, h.ChangedBy)
	if err != nil {
		return 0, mapError(err)
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

// GetApplicationForUpdate locks the row until the surrounding transaction ends.
func (q *Queries) GetApplicationForUpdate(ctx context.Context, id uint64) (model.Application, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+applicationColumns+" FROM applications WHERE id=? FOR UPDATE", id)
	return scanApplication(row)
}

func (q *Queries) UpdateApplicationStatus(ctx context.Context, id uint64, status model.Status) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE applications SET status=? WHERE id=?", status, id)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetApplicationOwner returns the owning user of an application.
func (q *Queries) GetApplicationOwner(ctx context.Context, id uint64) (uint64, error) {
	var owner uint64
	err := q.db.QueryRowContext(ctx,
		"SELECT user_id FROM applications WHERE id=?", id).Scan(&owner)
	return owner, mapError(err)
}

func (q *Queries) ListStatusHistory(ctx context.Context, applicationID uint64) ([]model.StatusHistory, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, application_id, new_status, comment, changed_by, created_at
		 FROM application_status_history WHERE application_id=? ORDER BY created_at, id`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.StatusHistory{}
	for rows.Next() {
		var (
			h  model.StatusHistory
			by sql.NullInt64
		)
		if err := rows.Scan(&h.ID, &h.ApplicationID, &h.NewStatus, &h.Comment, &by, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.ChangedBy = nullID(by)
		out = append(out, h)
	}
	return out, rows.Err()
}

// CountByStatus groups applications by status, optionally for one owner.
func (q *Queries) CountByStatus(ctx context.Context, userID *uint64) (map[model.Status]int, error) {
	query := "SELECT status, COUNT(*) FROM applications"
	var args []any
	if userID != nil {
		query += " WHERE user_id=?"
		args = append(args, *userID)
	}
	rows, err := q.db.QueryContext(ctx, query+" GROUP BY status", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[model.Status]int{}
	for rows.Next() {
		var (
			st model.Status
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
