package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ReilBleem13/ChatRelay/internal/domain"
)

var errBackendDown = errors.New("backend down")

func cloneGroup(g *domain.ChatGroup) *domain.ChatGroup {
	c := *g
	c.Members = append([]domain.ChatGroupMember(nil), g.Members...)
	return &c
}

func cloneMessage(m *domain.ChatMessage) *domain.ChatMessage {
	c := *m
	c.Mentions = append([]domain.Mention(nil), m.Mentions...)
	return &c
}

type fakeGroupRepo struct {
	mu       sync.Mutex
	groups   map[int]*domain.ChatGroup
	nextID   int
	saveErr  error
	getCalls int
}

func newFakeGroupRepo(groups ...*domain.ChatGroup) *fakeGroupRepo {
	r := &fakeGroupRepo{groups: make(map[int]*domain.ChatGroup), nextID: 100}
	for _, g := range groups {
		r.groups[g.ID] = cloneGroup(g)
	}
	return r
}

func (r *fakeGroupRepo) Save(_ context.Context, g *domain.ChatGroup) (*domain.ChatGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveErr != nil {
		return nil, r.saveErr
	}
	if g.ID == 0 {
		r.nextID++
		g.ID = r.nextID
	}
	r.groups[g.ID] = cloneGroup(g)
	return g, nil
}

// Update holds the repository lock across op, like the row lock of the
// real repository.
func (r *fakeGroupRepo) Update(_ context.Context, groupID int, op func(*domain.ChatGroup) error) (*domain.ChatGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.groups[groupID]
	if !ok {
		return nil, domain.ErrNotFound.WithMessage("group not found")
	}
	g := cloneGroup(stored)
	if err := op(g); err != nil {
		return nil, err
	}
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	r.groups[groupID] = cloneGroup(g)
	return g, nil
}

func (r *fakeGroupRepo) GetByID(_ context.Context, groupID int) (*domain.ChatGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.getCalls++
	g, ok := r.groups[groupID]
	if !ok {
		return nil, domain.ErrNotFound.WithMessage("group not found")
	}
	return cloneGroup(g), nil
}

func (r *fakeGroupRepo) GetUserGroups(_ context.Context, userID int) ([]domain.UserGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.UserGroup
	for _, g := range r.groups {
		if role, ok := g.RoleOf(userID); ok {
			out = append(out, domain.UserGroup{ID: g.ID, Name: g.Name, Role: role})
		}
	}
	return out, nil
}

func (r *fakeGroupRepo) IsMember(_ context.Context, groupID, userID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[groupID]
	return ok && g.IsMember(userID), nil
}

func (r *fakeGroupRepo) Delete(_ context.Context, groupID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.groups[groupID]
	delete(r.groups, groupID)
	return ok, nil
}

type fakeMessageRepo struct {
	mu        sync.Mutex
	messages  map[int]*domain.ChatMessage
	nextID    int
	saveErr   error
	saveCalls int
	deleted   []int
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[int]*domain.ChatMessage), nextID: 1000}
}

func (r *fakeMessageRepo) Save(_ context.Context, m *domain.ChatMessage) (*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saveCalls++
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	if m.ID == 0 {
		r.nextID++
		m.ID = r.nextID
	}
	r.messages[m.ID] = cloneMessage(m)
	return m, nil
}

func (r *fakeMessageRepo) UpdateContent(_ context.Context, m *domain.ChatMessage) (*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saveCalls++
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	stored, ok := r.messages[m.ID]
	if !ok || stored.IsDeleted {
		return nil, domain.ErrConflict.WithMessage("message is deleted or does not exist")
	}
	stored.Content = m.Content
	stored.EditedAt = m.EditedAt
	return m, nil
}

func (r *fakeMessageRepo) GetByID(_ context.Context, messageID int) (*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[messageID]
	if !ok {
		return nil, domain.ErrNotFound.WithMessage("message not found")
	}
	return cloneMessage(m), nil
}

func (r *fakeMessageRepo) GetGroupMessages(_ context.Context, groupID, limit int, before *int) ([]domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.ChatMessage
	for _, m := range r.messages {
		if m.GroupID == groupID && (before == nil || m.ID < *before) && len(out) < limit {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) SearchMessages(_ context.Context, groupID int, text string, limit int) ([]domain.ChatMessage, error) {
	return nil, nil
}

func (r *fakeMessageRepo) Delete(_ context.Context, messageID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[messageID]
	if !ok || m.IsDeleted {
		return false, nil
	}
	m.IsDeleted = true
	m.Content = domain.DeletedPlaceholder
	r.deleted = append(r.deleted, messageID)
	return true, nil
}

func (r *fakeMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type fakeCache struct {
	mu          sync.Mutex
	groups      map[int]*domain.ChatGroup
	messages    map[int]*domain.ChatMessage
	err         error
	invalidated []int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		groups:   make(map[int]*domain.ChatGroup),
		messages: make(map[int]*domain.ChatMessage),
	}
}

func (c *fakeCache) GetGroup(_ context.Context, groupID int) (*domain.ChatGroup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	if g, ok := c.groups[groupID]; ok {
		return cloneGroup(g), nil
	}
	return nil, nil
}

func (c *fakeCache) SetGroup(_ context.Context, g *domain.ChatGroup, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	c.groups[g.ID] = cloneGroup(g)
	return nil
}

func (c *fakeCache) InvalidateGroup(_ context.Context, groupID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invalidated = append(c.invalidated, groupID)
	if c.err != nil {
		return c.err
	}
	delete(c.groups, groupID)
	return nil
}

func (c *fakeCache) GetMessage(_ context.Context, messageID int) (*domain.ChatMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	if m, ok := c.messages[messageID]; ok {
		return cloneMessage(m), nil
	}
	return nil, nil
}

func (c *fakeCache) SetMessage(_ context.Context, m *domain.ChatMessage, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	c.messages[m.ID] = cloneMessage(m)
	return nil
}

func (c *fakeCache) hasGroup(groupID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.groups[groupID]
	return ok
}

type publishedEvent struct {
	groupID int
	event   *domain.Event
}

type fakeRelay struct {
	mu               sync.Mutex
	handlers         map[int]domain.EventHandler
	subscribeCalls   int
	unsubscribeCalls int
	doubleSubscribe  int
	subscribeErr     error
	publishErr       error
	published        []publishedEvent
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{handlers: make(map[int]domain.EventHandler)}
}

func (r *fakeRelay) Publish(_ context.Context, groupID int, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.publishErr != nil {
		return r.publishErr
	}
	r.published = append(r.published, publishedEvent{groupID: groupID, event: event})
	return nil
}

func (r *fakeRelay) Subscribe(_ context.Context, groupID int, handler domain.EventHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subscribeErr != nil {
		return r.subscribeErr
	}
	if _, ok := r.handlers[groupID]; ok {
		r.doubleSubscribe++
	}
	r.subscribeCalls++
	r.handlers[groupID] = handler
	return nil
}

func (r *fakeRelay) Unsubscribe(_ context.Context, groupID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unsubscribeCalls++
	delete(r.handlers, groupID)
	return nil
}

// deliver simulates an event arriving from the backend.
func (r *fakeRelay) deliver(groupID int, event *domain.Event) bool {
	r.mu.Lock()
	h, ok := r.handlers[groupID]
	r.mu.Unlock()

	if ok {
		h(context.Background(), event)
	}
	return ok
}

func (r *fakeRelay) active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

func (r *fakeRelay) events(eventType domain.EventType) []publishedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []publishedEvent
	for _, p := range r.published {
		if p.event.Type == eventType {
			out = append(out, p)
		}
	}
	return out
}

type fakePresence struct {
	mu      sync.Mutex
	online  map[int]map[int]bool
	err     error
	offline int
}

func newFakePresence() *fakePresence {
	return &fakePresence{online: make(map[int]map[int]bool)}
}

func (p *fakePresence) SetUserOnline(_ context.Context, userID, groupID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	if p.online[groupID] == nil {
		p.online[groupID] = make(map[int]bool)
	}
	p.online[groupID][userID] = true
	return nil
}

func (p *fakePresence) SetUserOffline(_ context.Context, userID, groupID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.offline++
	delete(p.online[groupID], userID)
	return p.err
}

func (p *fakePresence) IsUserOnline(_ context.Context, userID, groupID int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[groupID][userID], p.err
}

func (p *fakePresence) GetOnlineUsers(_ context.Context, groupID int) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []int
	for id := range p.online[groupID] {
		out = append(out, id)
	}
	return out, p.err
}

type fakeNotifier struct {
	mu       sync.Mutex
	attempts []domain.MentionNotification
	failFor  map[int]bool
	panicFor map[int]bool
}

func (n *fakeNotifier) NotifyMention(_ context.Context, mn domain.MentionNotification) error {
	n.mu.Lock()
	n.attempts = append(n.attempts, mn)
	fail, panics := n.failFor[mn.UserID], n.panicFor[mn.UserID]
	n.mu.Unlock()

	if panics {
		panic("notifier exploded")
	}
	if fail {
		return errBackendDown
	}
	return nil
}

func (n *fakeNotifier) attempted() []int {
	n.mu.Lock()
	defer n.mu.Unlock()

	ids := make([]int, len(n.attempts))
	for i, a := range n.attempts {
		ids[i] = a.UserID
	}
	return ids
}

type fakeConn struct {
	id      string
	userID  int
	mu      sync.Mutex
	events  []*domain.Event
	sendErr error
	closed  bool
}

func newFakeConn(id string, userID int) *fakeConn {
	return &fakeConn{id: id, userID: userID}
}

func (c *fakeConn) ID() string  { return c.id }
func (c *fakeConn) UserID() int { return c.userID }

func (c *fakeConn) Send(event *domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		return c.sendErr
	}
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
