package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"memories-social/internal/imtypes"
	"memories-social/internal/models"
	"memories-social/internal/storage"
)

// ---- users ----

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (r *fakeUserRepo) add(username string, verified bool) *models.User {
	u := &models.User{Username: username, Nickname: strings.ToUpper(username), Verified: verified}
	u.ID = uuid.NewString()
	r.mu.Lock()
	r.users[u.ID] = u
	r.mu.Unlock()
	return u
}

func (r *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username {
			return fmt.Errorf("create user: %w", storage.ErrDuplicateKey)
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, fmt.Errorf("get user: %w", imtypes.ErrNotFound)
}

func (r *fakeUserRepo) find(match func(*models.User) bool) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("find user: %w", imtypes.ErrNotFound)
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Username == username })
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return email != "" && u.Email == email })
}

func (r *fakeUserRepo) SearchUsers(_ context.Context, query, excludeUserID string, verifiedOnly bool, limit, offset int) ([]models.UserBasicInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.UserBasicInfo
	for _, u := range r.users {
		if u.ID == excludeUserID || (verifiedOnly && !u.Verified) {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), strings.ToLower(query)) {
			out = append(out, u.BasicInfo())
		}
	}
	slices.SortFunc(out, func(a, b models.UserBasicInfo) int { return strings.Compare(a.Username, b.Username) })
	if offset >= len(out) {
		return []models.UserBasicInfo{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeUserRepo) GetBasicInfoByID(ctx context.Context, id string) (*models.UserBasicInfo, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	info := u.BasicInfo()
	return &info, nil
}

func (r *fakeUserRepo) GetMultipleBasicInfoByIDs(_ context.Context, ids []string) ([]models.UserBasicInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.UserBasicInfo{}
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u.BasicInfo())
		}
	}
	return out, nil
}

// ---- friend requests ----

type fakeFriendRepo struct {
	mu       sync.Mutex
	requests map[string]*models.FriendRequest
	// skipFind hides existing rows from FindBetween, as a concurrent writer would.
	skipFind bool
}

func newFakeFriendRepo() *fakeFriendRepo {
	return &fakeFriendRepo{requests: make(map[string]*models.FriendRequest)}
}

func (r *fakeFriendRepo) Create(_ context.Context, req *models.FriendRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req.PairKey = models.PairKey(req.SenderID, req.RecipientID)
	for _, existing := range r.requests {
		if existing.PairKey == req.PairKey {
			return fmt.Errorf("create friend request: %w", storage.ErrDuplicateKey)
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.FriendRequestStatusPending
	}
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *fakeFriendRepo) GetByID(_ context.Context, id string) (*models.FriendRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.requests[id]; ok {
		cp := *req
		return &cp, nil
	}
	return nil, fmt.Errorf("get friend request: %w", imtypes.ErrNotFound)
}

func (r *fakeFriendRepo) FindBetween(_ context.Context, a, b string) (*models.FriendRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.skipFind {
		return nil, nil
	}
	key := models.PairKey(a, b)
	for _, req := range r.requests {
		if req.PairKey == key {
			cp := *req
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeFriendRepo) UpdateStatusIfPending(_ context.Context, id string, status models.FriendRequestStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != models.FriendRequestStatusPending {
		return false, nil
	}
	req.Status = status
	return true, nil
}

func (r *fakeFriendRepo) list(match func(*models.FriendRequest) bool) []models.FriendRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.FriendRequest{}
	for _, req := range r.requests {
		if match(req) {
			out = append(out, *req)
		}
	}
	return out
}

func (r *fakeFriendRepo) ListAccepted(_ context.Context, userID string) ([]models.FriendRequest, error) {
	return r.list(func(req *models.FriendRequest) bool {
		return req.Status == models.FriendRequestStatusAccepted && (req.SenderID == userID || req.RecipientID == userID)
	}), nil
}

func (r *fakeFriendRepo) ListPendingForRecipient(_ context.Context, userID string) ([]models.FriendRequest, error) {
	return r.list(func(req *models.FriendRequest) bool {
		return req.Status == models.FriendRequestStatusPending && req.RecipientID == userID
	}), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.FriendRequestEvent
}

func (n *recordingNotifier) NotifyFriendRequest(_ context.Context, ev models.FriendRequestEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

// ---- conversations ----

type fakeConvoRepo struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	creates       int
	// beforeCreate runs outside the lock right before an insert.
	beforeCreate func()
}

func newFakeConvoRepo() *fakeConvoRepo {
	return &fakeConvoRepo{conversations: make(map[string]*models.Conversation)}
}

func (r *fakeConvoRepo) Create(_ context.Context, c *models.Conversation) error {
	if r.beforeCreate != nil {
		r.beforeCreate()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := r.conversations[c.ID]; ok {
		return fmt.Errorf("create conversation: %w", storage.ErrDuplicateKey)
	}
	for i := range c.Participants {
		c.Participants[i].ConversationID = c.ID
	}
	r.creates++
	r.conversations[c.ID] = cloneConversation(c)
	return nil
}

func (r *fakeConvoRepo) GetByID(_ context.Context, id string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conversations[id]; ok {
		return cloneConversation(c), nil
	}
	return nil, fmt.Errorf("get conversation: %w", imtypes.ErrNotFound)
}

func (r *fakeConvoRepo) FindDirectByUsers(_ context.Context, a, b string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conversations {
		if !c.IsGroup && c.HasParticipant(a) && c.HasParticipant(b) {
			return cloneConversation(c), nil
		}
	}
	return nil, nil
}

func (r *fakeConvoRepo) ListForUser(_ context.Context, userID string, _, _ int) ([]models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Conversation{}
	for _, c := range r.conversations {
		if c.HasParticipant(userID) {
			out = append(out, *cloneConversation(c))
		}
	}
	return out, nil
}

func (r *fakeConvoRepo) ListDirect(_ context.Context) ([]models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Conversation{}
	for _, c := range r.conversations {
		if !c.IsGroup {
			out = append(out, *cloneConversation(c))
		}
	}
	return out, nil
}

func (r *fakeConvoRepo) IsParticipant(ctx context.Context, id, userID string) (bool, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return c.HasParticipant(userID), nil
}

func (r *fakeConvoRepo) GetParticipants(ctx context.Context, id string) ([]models.ConversationParticipant, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Participants, nil
}

func (r *fakeConvoRepo) createCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}

// ---- messages ----

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []models.Message
	failNext error
	// onList runs after the stored messages were read and before they are returned.
	onList func()
}

func (r *fakeMessageRepo) Create(_ context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failNext; err != nil {
		r.failNext = nil
		return err
	}
	r.messages = append(r.messages, *m)
	return nil
}

// store inserts m directly, as another node would.
func (r *fakeMessageRepo) store(m models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

func (r *fakeMessageRepo) GetByID(_ context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			cp := m
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get message: %w", imtypes.ErrNotFound)
}

func (r *fakeMessageRepo) ListByConversation(_ context.Context, conversationID string, limit int) ([]models.Message, error) {
	r.mu.Lock()
	out := []models.Message{}
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	hook := r.onList
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b models.Message) int { return models.CompareMessages(&a, &b) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if hook != nil {
		hook()
	}
	return out, nil
}
