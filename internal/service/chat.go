package service

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/iliyamo/medconcierge/internal/metrics"
	"github.com/iliyamo/medconcierge/internal/model"
)

const maxMessageLen = 2000

// MessageStore is the chat side of *repository.Queries.
type MessageStore interface {
	GetApplicationOwner(ctx context.Context, id uint64) (uint64, error)
	CreateMessage(ctx context.Context, m model.Message) (model.Message, error)
	ListMessages(ctx context.Context, applicationID, afterID uint64) ([]model.Message, error)
	LastReadMessageID(ctx context.Context, applicationID, userID uint64) (uint64, error)
	CountUnread(ctx context.Context, applicationID, userID, lastReadID uint64) (int, error)
	MarkThreadRead(ctx context.Context, applicationID, userID uint64) (uint64, error)
}

// ChatCache keeps the full recent thread of an application. It is
// implemented by *cache.ChatCache; nil disables caching.
type ChatCache interface {
	Recent(ctx context.Context, applicationID uint64) ([]model.Message, bool, error)
	Generation(ctx context.Context, applicationID uint64) (int64, error)
	Fill(ctx context.Context, applicationID uint64, gen int64, msgs []model.Message) error
	Append(ctx context.Context, applicationID uint64, m model.Message) error
}

// Thread is the viewer-specific state of a chat.
type Thread struct {
	Messages    []model.Message `json:"messages"`
	UnreadCount int             `json:"unreadCount"`
	LastReadID  uint64          `json:"lastReadId"`
}

type ChatService struct {
	store MessageStore
	cache ChatCache
	log   *zap.Logger
	now   func() time.Time
}

func NewChatService(store MessageStore, cache ChatCache, log *zap.Logger) *ChatService {
	return &ChatService{
		store: store,
		cache: cache,
		log:   log.Named("chat"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *ChatService) authorize(ctx context.Context, actor Actor, applicationID uint64) error {
	owner, err := s.store.GetApplicationOwner(ctx, applicationID)
	if err != nil {
		return err
	}
	if !actor.canSee(owner) {
		return ErrNotFound
	}
	return nil
}

// List returns the thread oldest first. afterID > 0 returns only newer
// messages, which is what polling clients ask for.
func (s *ChatService) List(ctx context.Context, actor Actor, applicationID, afterID uint64) (Thread, error) {
	if err := s.authorize(ctx, actor, applicationID); err != nil {
		return Thread{}, err
	}
	msgs, err := s.messages(ctx, applicationID, afterID)
	if err != nil {
		return Thread{}, err
	}
	lastRead, err := s.store.LastReadMessageID(ctx, applicationID, actor.UserID)
	if err != nil {
		return Thread{}, err
	}
	unread, err := s.store.CountUnread(ctx, applicationID, actor.UserID, lastRead)
	if err != nil {
		return Thread{}, err
	}
	for i := range msgs {
		msgs[i].IsRead = msgs[i].SenderID == actor.UserID || msgs[i].ID <= lastRead
	}
	return Thread{Messages: msgs, UnreadCount: unread, LastReadID: lastRead}, nil
}

func (s *ChatService) messages(ctx context.Context, applicationID, afterID uint64) ([]model.Message, error) {
	if afterID > 0 || s.cache == nil {
		return s.store.ListMessages(ctx, applicationID, afterID)
	}
	msgs, ok, err := s.cache.Recent(ctx, applicationID)
	if err != nil {
		s.log.Warn("chat cache read failed", zap.Uint64("application_id", applicationID), zap.Error(err))
	}
	if ok {
		metrics.CacheLookups.WithLabelValues("chat", "hit").Inc()
		return msgs, nil
	}
	metrics.CacheLookups.WithLabelValues("chat", "miss").Inc()
	gen, genErr := s.cache.Generation(ctx, applicationID)
	if genErr != nil {
		s.log.Warn("chat cache generation failed", zap.Uint64("application_id", applicationID), zap.Error(genErr))
	}
	msgs, err = s.store.ListMessages(ctx, applicationID, 0)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return msgs, nil
	}
	if err := s.cache.Fill(ctx, applicationID, gen, msgs); err != nil {
		s.log.Warn("chat cache fill failed", zap.Uint64("application_id", applicationID), zap.Error(err))
	}
	return msgs, nil
}

// Post appends a message from the actor. The sender role comes from the
// session, never from the request.
func (s *ChatService) Post(ctx context.Context, actor Actor, applicationID uint64, content string) (model.Message, error) {
	content = StripTags(content)
	switch n := utf8.RuneCountInString(content); {
	case n == 0:
		return model.Message{}, invalid(FieldError{Field: "content", Message: "is required"})
	case n > maxMessageLen:
		return model.Message{}, invalid(FieldError{Field: "content", Message: "must be at most 2000 characters"})
	}
	if err := s.authorize(ctx, actor, applicationID); err != nil {
		return model.Message{}, err
	}

	m, err := s.store.CreateMessage(ctx, model.Message{
		ApplicationID: applicationID,
		SenderID:      actor.UserID,
		SenderRole:    actor.Role,
		Content:       content,
		CreatedAt:     s.now(),
	})
	if err != nil {
		return model.Message{}, err
	}
	m.IsRead = true
	if s.cache != nil {
		if err := s.cache.Append(ctx, applicationID, m); err != nil {
			s.log.Warn("chat cache append failed", zap.Uint64("application_id", applicationID), zap.Error(err))
		}
	}
	metrics.MessagesPosted.WithLabelValues(string(actor.Role)).Inc()
	return m, nil
}

// MarkRead moves the actor's read marker to the newest message.
func (s *ChatService) MarkRead(ctx context.Context, actor Actor, applicationID uint64) (uint64, error) {
	if err := s.authorize(ctx, actor, applicationID); err != nil {
		return 0, err
	}
	return s.store.MarkThreadRead(ctx, applicationID, actor.UserID)
}
