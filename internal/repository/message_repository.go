package repository

import (
	"context"
	"errors"

	"github.com/iliyamo/medconcierge/internal/model"
)

func (q *Queries) CreateMessage(ctx context.Context, m model.Message) (model.Message, error) {
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO messages (application_id, sender_id, sender_role, content, created_at) VALUES (?,?,?,?,?)",
		m.ApplicationID, m.SenderID, m.SenderRole, m.Content, m.CreatedAt)
	if err != nil {
		return model.Message{}, mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Message{}, err
	}
	m.ID = uint64(id)
	return m, nil
}

// ListMessages returns the thread oldest first. afterID > 0 restricts the
// result to messages newer than that ID.
func (q *Queries) ListMessages(ctx context.Context, applicationID, afterID uint64) ([]model.Message, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, application_id, sender_id, sender_role, content, created_at
		 FROM messages WHERE application_id=? AND id>? ORDER BY id`, applicationID, afterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ApplicationID, &m.SenderID, &m.SenderRole, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LastReadMessageID returns the viewer's read marker, 0 when none exists.
func (q *Queries) LastReadMessageID(ctx context.Context, applicationID, userID uint64) (uint64, error) {
	var id uint64
	err := q.db.QueryRowContext(ctx,
		"SELECT last_read_message_id FROM chat_read_markers WHERE application_id=? AND user_id=?",
		applicationID, userID).Scan(&id)
	if err = mapError(err); errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	return id, err
}

// CountUnread counts messages from other senders newer than the marker.
func (q *Queries) CountUnread(ctx context.Context, applicationID, userID, lastReadID uint64) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE application_id=? AND sender_id<>? AND id>?",
		applicationID, userID, lastReadID).Scan(&n)
	return n, mapError(err)
}

// MarkThreadRead advances the viewer's marker to the newest message. The
// marker never moves backwards.
func (q *Queries) MarkThreadRead(ctx context.Context, applicationID, userID uint64) (uint64, error) {
	var last uint64
	if err := q.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(id),0) FROM messages WHERE application_id=?", applicationID).Scan(&last); err != nil {
		return 0, mapError(err)
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO chat_read_markers (application_id, user_id, last_read_message_id) VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE last_read_message_id=GREATEST(last_read_message_id, VALUES(last_read_message_id))`,
		applicationID, userID, last)
	return last, mapError(err)
}
