package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store implementation. Safe for concurrent
// use; contents are lost on process exit.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]UserRecord
	usersByEmail  map[string]string
	sessions      map[string]SessionRecord // keyed by token
	conversations map[string]ConversationRecord
	workflows     map[string]WorkflowRecord
	workflowOrder []string
	runs          map[string][]RunRecord // workflow id -> runs, newest last
	runIndex      map[string]string      // run id -> workflow id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]UserRecord),
		usersByEmail:  make(map[string]string),
		sessions:      make(map[string]SessionRecord),
		conversations: make(map[string]ConversationRecord),
		workflows:     make(map[string]WorkflowRecord),
		runs:          make(map[string][]RunRecord),
		runIndex:      make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, rec UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(rec.Email)
	if _, exists := s.users[rec.ID]; exists {
		return ErrUserExists
	}
	if _, exists := s.usersByEmail[email]; exists {
		return ErrUserExists
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	s.users[rec.ID] = rec
	s.usersByEmail[email] = rec.ID
	return nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (UserRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return UserRecord{}, false, nil
	}
	rec, ok := s.users[id]
	return rec, ok, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (UserRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[id]
	return rec, ok, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, sess SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	s.sessions[sess.Token] = sess
	return nil
}

func (s *MemoryStore) GetSessionByToken(_ context.Context, token string) (SessionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	if !ok {
		return SessionRecord{}, false, nil
	}
	if time.Now().After(sess.ExpiresAt) {
		return SessionRecord{}, false, ErrSessionExpired
	}
	return sess, true, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, sess := range s.sessions {
		if sess.ID == id {
			delete(s.sessions, token)
			return nil
		}
	}
	return ErrSessionNotFound
}

func (s *MemoryStore) CleanExpiredSessions(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for token, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, token)
		}
	}
	return nil
}

func (s *MemoryStore) SaveConversation(_ context.Context, rec ConversationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.conversations[rec.ID]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.conversations[rec.ID] = rec
	return nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (ConversationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.conversations[id]
	return rec, ok, nil
}

func (s *MemoryStore) ListConversations(_ context.Context, userID string) ([]ConversationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []ConversationRecord
	for _, rec := range s.conversations {
		if userID == "" || rec.UserID == userID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}

func (s *MemoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return ErrConversationNotFound
	}
	delete(s.conversations, id)
	return nil
}

func (s *MemoryStore) ListWorkflows(_ context.Context, userID string) ([]WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []WorkflowRecord
	for _, id := range s.workflowOrder {
		rec := s.workflows[id]
		if userID == "" || rec.UserID == userID {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (s *MemoryStore) GetWorkflow(_ context.Context, id string) (WorkflowRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.workflows[id]
	return rec, ok, nil
}

func (s *MemoryStore) CreateWorkflow(_ context.Context, rec WorkflowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[rec.ID]; exists {
		return ErrWorkflowExists
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	s.workflows[rec.ID] = rec
	s.workflowOrder = append(s.workflowOrder, rec.ID)
	return nil
}

func (s *MemoryStore) UpdateWorkflow(_ context.Context, rec WorkflowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.workflows[rec.ID]
	if !ok {
		return ErrWorkflowNotFound
	}
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now().UTC()
	s.workflows[rec.ID] = rec
	return nil
}

func (s *MemoryStore) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return ErrWorkflowNotFound
	}
	delete(s.workflows, id)
	for i, wid := range s.workflowOrder {
		if wid == id {
			s.workflowOrder = append(s.workflowOrder[:i], s.workflowOrder[i+1:]...)
			break
		}
	}
	delete(s.runs, id)
	return nil
}

func (s *MemoryStore) ListScheduled(_ context.Context) ([]WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []WorkflowRecord
	for _, id := range s.workflowOrder {
		rec := s.workflows[id]
		if rec.Active && rec.CronExpr != "" {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (s *MemoryStore) CreateRun(_ context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	s.runs[rec.WorkflowID] = append(s.runs[rec.WorkflowID], rec)
	s.runIndex[rec.ID] = rec.WorkflowID
	return nil
}

func (s *MemoryStore) FinishRun(_ context.Context, id, status, detail string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wid, ok := s.runIndex[id]
	if !ok {
		return ErrRunNotFound
	}
	runs := s.runs[wid]
	for i := range runs {
		if runs[i].ID == id {
			runs[i].Status = status
			runs[i].Detail = detail
			runs[i].FinishedAt = finishedAt
			return nil
		}
	}
	return ErrRunNotFound
}

func (s *MemoryStore) ListRuns(_ context.Context, workflowID string, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := s.runs[workflowID]
	records := make([]RunRecord, len(runs))
	copy(records, runs)
	// Newest first.
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

var _ Store = (*MemoryStore)(nil)
