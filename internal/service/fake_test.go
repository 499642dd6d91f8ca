package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/medconcierge/internal/model"
	"github.com/iliyamo/medconcierge/internal/repository"
)

// memDB is an in-memory repository.Querier. memStore runs units of work
// against it and restores the snapshot when fn fails.
type memDB struct {
	nextID   uint64
	users    []model.User
	apps     []model.Application
	services map[uint64][]string
	history  []model.StatusHistory
	resets   map[uint64]model.PasswordReset
	revoked  map[uint64]bool
	refs     map[model.LookupKind]map[string]uint64

	// failOn makes the named method return errBoom.
	failOn        string
	createUserErr error
	takenNums     map[string]bool
}

var errBoom = errors.New("boom")

func newMemDB() *memDB {
	db := &memDB{
		nextID:    100,
		services:  map[uint64][]string{},
		resets:    map[uint64]model.PasswordReset{},
		revoked:   map[uint64]bool{},
		takenNums: map[string]bool{},
		refs:      map[model.LookupKind]map[string]uint64{},
	}
	seed := map[model.LookupKind][]string{
		model.KindLocation:      {"germany", "eu", "other"},
		model.KindInsurance:     {"yes", "no", "not_sure"},
		model.KindTravelAbility: {"yes", "no", "need_help"},
		model.KindService:       {"charter", "transport", "visa", "interpreter", "hotel"},
	}
	for kind, codes := range seed {
		db.refs[kind] = map[string]uint64{}
		for i, c := range codes {
			db.refs[kind][c] = uint64(i + 1)
		}
	}
	return db
}

func (db *memDB) clone() memDB {
	c := *db
	c.users = append([]model.User(nil), db.users...)
	c.apps = append([]model.Application(nil), db.apps...)
	c.history = append([]model.StatusHistory(nil), db.history...)
	c.services = map[uint64][]string{}
	for k, v := range db.services {
		c.services[k] = append([]string(nil), v...)
	}
	c.resets = map[uint64]model.PasswordReset{}
	for k, v := range db.resets {
		c.resets[k] = v
	}
	c.revoked = map[uint64]bool{}
	for k, v := range db.revoked {
		c.revoked[k] = v
	}
	return c
}

func (db *memDB) id() uint64 {
	db.nextID++
	return db.nextID
}

func (db *memDB) fail(method string) error {
	if db.failOn == method {
		return errBoom
	}
	return nil
}

type memStore struct {
	mu sync.Mutex
	db *memDB
}

func (s *memStore) WithTx(ctx context.Context, fn func(repository.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.db.clone()
	if err := fn(s.db); err != nil {
		*s.db = snap
		return err
	}
	return nil
}

func (db *memDB) FindUserByEmailOrPhone(_ context.Context, email, phone string) (model.User, error) {
	for _, u := range db.users {
		if u.Email == email {
			return u, nil
		}
	}
	for _, u := range db.users {
		if u.Phone == phone {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (db *memDB) GetUserByPhone(_ context.Context, phone string) (model.User, error) {
	for _, u := range db.users {
		if u.Phone == phone {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (db *memDB) CreateUser(_ context.Context, u model.User) (uint64, error) {
	if db.createUserErr != nil {
		return 0, db.createUserErr
	}
	u.ID = db.id()
	db.users = append(db.users, u)
	return u.ID, nil
}

func (db *memDB) user(id uint64) *model.User {
	for i := range db.users {
		if db.users[i].ID == id {
			return &db.users[i]
		}
	}
	return nil
}

func (db *memDB) UpdateUserNames(_ context.Context, id uint64, first, last string) error {
	u := db.user(id)
	if u == nil {
		return repository.ErrNotFound
	}
	u.FirstName, u.LastName = first, last
	return nil
}

func (db *memDB) UpdateUserPassword(_ context.Context, id uint64, hash string) error {
	u := db.user(id)
	if u == nil {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (db *memDB) RevokeAllForUser(_ context.Context, userID uint64) error {
	db.revoked[userID] = true
	return nil
}

func (db *memDB) ResolveReferenceID(_ context.Context, kind model.LookupKind, code string) (*uint64, error) {
	if code == "" {
		return nil, nil
	}
	id, ok := db.refs[kind][code]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func (db *memDB) ApplicationNumExists(_ context.Context, num string) (bool, error) {
	if db.takenNums[num] {
		return true, nil
	}
	for _, a := range db.apps {
		if a.ApplicationNum == num {
			return true, nil
		}
	}
	return false, nil
}

func (db *memDB) CreateApplication(_ context.Context, a model.Application) (uint64, error) {
	if err := db.fail("CreateApplication"); err != nil {
		return 0, err
	}
	a.ID = db.id()
	db.apps = append(db.apps, a)
	return a.ID, nil
}

func (db *memDB) AddApplicationServices(_ context.Context, applicationID uint64, codes []string) (int, error) {
	if err := db.fail("AddApplicationServices"); err != nil {
		return 0, err
	}
	db.services[applicationID] = append(db.services[applicationID], codes...)
	return len(codes), nil
}

func (db *memDB) AppendStatusHistory(_ context.Context, h model.StatusHistory) (uint64, error) {
	h.ID = db.id()
	db.history = append(db.history, h)
	return h.ID, nil
}

func (db *memDB) app(id uint64) *model.Application {
	for i := range db.apps {
		if db.apps[i].ID == id {
			return &db.apps[i]
		}
	}
	return nil
}

func (db *memDB) GetApplicationForUpdate(_ context.Context, id uint64) (model.Application, error) {
	a := db.app(id)
	if a == nil {
		return model.Application{}, repository.ErrNotFound
	}
	return *a, nil
}

func (db *memDB) UpdateApplicationStatus(_ context.Context, id uint64, status model.Status) error {
	a := db.app(id)
	if a == nil {
		return repository.ErrNotFound
	}
	a.Status = status
	return nil
}

func (db *memDB) historyOf(appID uint64) []model.StatusHistory {
	var out []model.StatusHistory
	for _, h := range db.history {
		if h.ApplicationID == appID {
			out = append(out, h)
		}
	}
	return out
}

func (db *memDB) GetPasswordResetForUpdate(_ context.Context, userID uint64) (model.PasswordReset, error) {
	p, ok := db.resets[userID]
	if !ok {
		return model.PasswordReset{}, repository.ErrNotFound
	}
	return p, nil
}

func (db *memDB) IncrementResetAttempts(_ context.Context, userID uint64) error {
	if p, ok := db.resets[userID]; ok {
		p.Attempts++
		db.resets[userID] = p
	}
	return nil
}

func (db *memDB) DeletePasswordReset(_ context.Context, userID uint64) error {
	delete(db.resets, userID)
	return nil
}

func (db *memDB) UpsertPasswordReset(_ context.Context, userID uint64, codeHash string, expiresAt time.Time) error {
	db.resets[userID] = model.PasswordReset{UserID: userID, CodeHash: codeHash, ExpiresAt: expiresAt}
	return nil
}

type published struct {
	queue, eventType string
	payload          any
}

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent []published
}

func (p *fakePublisher) Publish(_ context.Context, queueName, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{queueName, eventType, payload})
	return nil
}

// memReader serves the read side from a fixed set of details.
type memReader struct {
	rows    []model.ApplicationDetail
	filters []model.ApplicationFilter
	// db, when set, replaces rows with a join over what the write side stored.
	db *memDB
}

func (r *memReader) all() []model.ApplicationDetail {
	if r.db != nil {
		return r.db.details()
	}
	return r.rows
}

func (db *memDB) ref(kind model.LookupKind, id *uint64) *model.Reference {
	if id == nil {
		return nil
	}
	for code, rid := range db.refs[kind] {
		if rid == *id {
			return &model.Reference{ID: rid, Code: code, IsActive: true}
		}
	}
	return nil
}

func (db *memDB) details() []model.ApplicationDetail {
	out := make([]model.ApplicationDetail, 0, len(db.apps))
	for _, a := range db.apps {
		d := model.ApplicationDetail{
			ID:             a.ID,
			ApplicationNum: a.ApplicationNum,
			Status:         a.Status,
			IsEuResident:   a.IsEuResident,
			ClientNotes:    a.ClientNotes,
			CreatedAt:      a.CreatedAt,
			UpdatedAt:      a.UpdatedAt,
			Location:       db.ref(model.KindLocation, a.LocationID),
			Insurance:      db.ref(model.KindInsurance, a.InsuranceID),
			TravelAbility:  db.ref(model.KindTravelAbility, a.TravelAbilityID),
			Services:       []model.Reference{},
		}
		for _, u := range db.users {
			if u.ID == a.UserID {
				d.User = model.UserSummary{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email, Phone: u.Phone}
			}
		}
		for _, code := range db.services[a.ID] {
			id := db.refs[model.KindService][code]
			d.Services = append(d.Services, *db.ref(model.KindService, &id))
		}
		out = append(out, d)
	}
	return out
}

func (r *memReader) ListApplications(_ context.Context, f model.ApplicationFilter) ([]model.ApplicationDetail, int, error) {
	r.filters = append(r.filters, f)
	var out []model.ApplicationDetail
	for _, d := range r.all() {
		if f.UserID != nil && d.User.ID != *f.UserID {
			continue
		}
		if f.Status != nil && d.Status != *f.Status {
			continue
		}
		out = append(out, d)
	}
	total := len(out)
	if f.Offset >= len(out) {
		return []model.ApplicationDetail{}, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (r *memReader) GetApplicationDetail(_ context.Context, id uint64) (model.ApplicationDetail, error) {
	for _, d := range r.all() {
		if d.ID == id {
			return d, nil
		}
	}
	return model.ApplicationDetail{}, repository.ErrNotFound
}

func (r *memReader) CountByStatus(_ context.Context, userID *uint64) (map[model.Status]int, error) {
	out := map[model.Status]int{}
	for _, d := range r.all() {
		if userID == nil || d.User.ID == *userID {
			out[d.Status]++
		}
	}
	return out, nil
}

// memChat implements MessageStore.
type memChat struct {
	owners  map[uint64]uint64
	msgs    []model.Message
	markers map[[2]uint64]uint64
	lists   int
	// afterList runs once the snapshot is taken, standing in for a
	// concurrent writer.
	afterList func()
}

func newMemChat() *memChat {
	return &memChat{owners: map[uint64]uint64{}, markers: map[[2]uint64]uint64{}}
}

func (c *memChat) GetApplicationOwner(_ context.Context, id uint64) (uint64, error) {
	o, ok := c.owners[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return o, nil
}

func (c *memChat) CreateMessage(_ context.Context, m model.Message) (model.Message, error) {
	m.ID = uint64(len(c.msgs) + 1)
	c.msgs = append(c.msgs, m)
	return m, nil
}

func (c *memChat) ListMessages(_ context.Context, appID, afterID uint64) ([]model.Message, error) {
	c.lists++
	out := []model.Message{}
	for _, m := range c.msgs {
		if m.ApplicationID == appID && m.ID > afterID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f := c.afterList; f != nil {
		c.afterList = nil
		f()
	}
	return out, nil
}

func (c *memChat) LastReadMessageID(_ context.Context, appID, userID uint64) (uint64, error) {
	return c.markers[[2]uint64{appID, userID}], nil
}

func (c *memChat) CountUnread(_ context.Context, appID, userID, lastRead uint64) (int, error) {
	n := 0
	for _, m := range c.msgs {
		if m.ApplicationID == appID && m.SenderID != userID && m.ID > lastRead {
			n++
		}
	}
	return n, nil
}

func (c *memChat) MarkThreadRead(_ context.Context, appID, userID uint64) (uint64, error) {
	var last uint64
	for _, m := range c.msgs {
		if m.ApplicationID == appID && m.ID > last {
			last = m.ID
		}
	}
	key := [2]uint64{appID, userID}
	if last > c.markers[key] {
		c.markers[key] = last
	}
	return last, nil
}

// memCache implements ChatCache.
type memCache struct {
	threads map[uint64][]model.Message
	gens    map[uint64]int64
	err     error
}

func (c *memCache) Recent(_ context.Context, appID uint64) ([]model.Message, bool, error) {
	if c.err != nil {
		return nil, false, c.err
	}
	m, ok := c.threads[appID]
	return append([]model.Message(nil), m...), ok, nil
}

func (c *memCache) Generation(_ context.Context, appID uint64) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	return c.gens[appID], nil
}

func (c *memCache) Fill(_ context.Context, appID uint64, gen int64, msgs []model.Message) error {
	if c.gens[appID] != gen {
		return nil
	}
	if c.threads == nil {
		c.threads = map[uint64][]model.Message{}
	}
	c.threads[appID] = append([]model.Message(nil), msgs...)
	return nil
}

func (c *memCache) Append(_ context.Context, appID uint64, m model.Message) error {
	if c.gens == nil {
		c.gens = map[uint64]int64{}
	}
	c.gens[appID]++
	if t, ok := c.threads[appID]; ok {
		c.threads[appID] = append(t, m)
	}
	return nil
}
