package state

import (
	"sort"
	"sync"

	"github.com/bibledive/bibledive-go/pkg/wire"
)

// UserStore caches the authenticated user's id and profile.
type UserStore struct {
	mu     sync.RWMutex
	userID string
	user   *wire.User
}

// NewUserStore creates an empty store.
func NewUserStore() *UserStore {
	return &UserStore{}
}

// SetUserID records the id derived from the access token.
func (s *UserStore) SetUserID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = id
}

// UserID returns the cached user id, empty when logged out.
func (s *UserStore) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// SetUser caches the fetched profile.
func (s *UserStore) SetUser(u wire.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
}

// User returns the cached profile.
func (s *UserStore) User() (wire.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return wire.User{}, false
	}
	return *s.user, true
}

// Clear empties the store.
func (s *UserStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = ""
	s.user = nil
}

// LessonStore caches lessons by id.
type LessonStore struct {
	mu      sync.RWMutex
	lessons map[uint64]wire.Lesson
}

// NewLessonStore creates an empty store.
func NewLessonStore() *LessonStore {
	return &LessonStore{lessons: make(map[uint64]wire.Lesson)}
}

// SetAll merges a batch of lessons, last write winning per id.
func (s *LessonStore) SetAll(lessons []wire.Lesson) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range lessons {
		s.lessons[l.ID] = l
	}
}

// Lesson returns one lesson by id.
func (s *LessonStore) Lesson(id uint64) (wire.Lesson, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lessons[id]
	return l, ok
}

// ByTopicPlan returns the cached lessons of one plan, ordered by id.
func (s *LessonStore) ByTopicPlan(topicPlanID uint64) []wire.Lesson {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []wire.Lesson
	for _, l := range s.lessons {
		if l.TopicPlanID == topicPlanID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clear empties the store.
func (s *LessonStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lessons = make(map[uint64]wire.Lesson)
}

// TopicPlanStore caches the user's study plans by id.
type TopicPlanStore struct {
	mu    sync.RWMutex
	plans map[uint64]wire.TopicPlan
}

// NewTopicPlanStore creates an empty store.
func NewTopicPlanStore() *TopicPlanStore {
	return &TopicPlanStore{plans: make(map[uint64]wire.TopicPlan)}
}

// SetAll replaces the plan set wholesale.
func (s *TopicPlanStore) SetAll(plans []wire.TopicPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = make(map[uint64]wire.TopicPlan, len(plans))
	for _, p := range plans {
		s.plans[p.ID] = p
	}
}

// Upsert stores one plan.
func (s *TopicPlanStore) Upsert(p wire.TopicPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p
}

// Plan returns one plan by id.
func (s *TopicPlanStore) Plan(id uint64) (wire.TopicPlan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	return p, ok
}

// Plans returns all cached plans, ordered by id.
func (s *TopicPlanStore) Plans() []wire.TopicPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]wire.TopicPlan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clear empties the store.
func (s *TopicPlanStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = make(map[uint64]wire.TopicPlan)
}
