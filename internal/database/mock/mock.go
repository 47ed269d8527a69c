// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cadetops/muster/internal/database"
)

// MockEmbeddingStore is a mock implementation of database.EmbeddingStore
type MockEmbeddingStore struct {
	mu         sync.RWMutex
	embeddings map[int64]*database.EnrolledEmbedding
	cadets     map[int64]*database.Cadet // for CandidatesFor joins
	nextID     int64

	// Track calls
	EnrollCalls []int64
	RemoveCalls []int64

	// Error injection
	EnrollError        error
	GetError           error
	CandidatesForError error
	RemoveError        error
	AllError           error
	CountError         error
}

// NewMockEmbeddingStore creates a new mock embedding store
func NewMockEmbeddingStore() *MockEmbeddingStore {
	return &MockEmbeddingStore{
		embeddings: make(map[int64]*database.EnrolledEmbedding),
		cadets:     make(map[int64]*database.Cadet),
	}
}

// AddCadet registers a cadet so CandidatesFor can join on unit
func (m *MockEmbeddingStore) AddCadet(c database.Cadet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cadets[c.ID] = &c
}

// Enroll replaces any prior embedding for the cadet
func (m *MockEmbeddingStore) Enroll(ctx context.Context, cadetID int64, embedding []float32, model string, thumbnail []byte) (*database.EnrolledEmbedding, error) {
	if m.EnrollError != nil {
		return nil, m.EnrollError
	}
	if err := database.ValidateEmbedding(embedding); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EnrollCalls = append(m.EnrollCalls, cadetID)
	m.nextID++
	now := time.Now()
	emb := &database.EnrolledEmbedding{
		ID:        m.nextID,
		CadetID:   cadetID,
		Embedding: embedding,
		Dim:       len(embedding),
		Model:     model,
		Thumbnail: thumbnail,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.embeddings[cadetID] = emb
	return emb, nil
}

// Get retrieves the cadet's embedding, nil if none
func (m *MockEmbeddingStore) Get(ctx context.Context, cadetID int64) (*database.EnrolledEmbedding, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.embeddings[cadetID], nil
}

// CandidatesFor returns embeddings for cadets in the session's unit,
// ordered by cadet ID like the postgres query.
func (m *MockEmbeddingStore) CandidatesFor(ctx context.Context, session *database.AttendanceSession) ([]database.CandidateEmbedding, error) {
	if m.CandidatesForError != nil {
		return nil, m.CandidatesForError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []database.CandidateEmbedding
	for cadetID, emb := range m.embeddings {
		cadet, ok := m.cadets[cadetID]
		if !ok || cadet.UnitID != session.UnitID {
			continue
		}
		candidates = append(candidates, database.CandidateEmbedding{
			CadetID:       cadetID,
			CadetName:     cadet.FullName,
			ServiceNumber: cadet.ServiceNumber,
			Embedding:     emb.Embedding,
		})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CadetID < candidates[j].CadetID })
	return candidates, nil
}

// Remove deletes the cadet's embedding, no error if absent
func (m *MockEmbeddingStore) Remove(ctx context.Context, cadetID int64) error {
	if m.RemoveError != nil {
		return m.RemoveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveCalls = append(m.RemoveCalls, cadetID)
	delete(m.embeddings, cadetID)
	return nil
}

// All returns every stored embedding
func (m *MockEmbeddingStore) All(ctx context.Context) ([]database.EnrolledEmbedding, error) {
	if m.AllError != nil {
		return nil, m.AllError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []database.EnrolledEmbedding
	for _, emb := range m.embeddings {
		result = append(result, *emb)
	}
	return result, nil
}

// Count returns the number of stored embeddings
func (m *MockEmbeddingStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.embeddings), nil
}

type attendanceKey struct {
	sessionID int64
	cadetID   int64
}

// MockAttendanceStore is a mock implementation of database.AttendanceStore
type MockAttendanceStore struct {
	mu      sync.RWMutex
	records map[attendanceKey]*database.AttendanceRecord
	nextID  int64

	// Track calls
	UpsertCalls []database.AttendanceUpsert

	// Error injection
	UpsertError error
	GetError    error
	ListError   error
	StatsError  error

	// TotalCadets is used by Stats as the unit roster size
	TotalCadets int
}

// NewMockAttendanceStore creates a new mock attendance store
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{
		records: make(map[attendanceKey]*database.AttendanceRecord),
	}
}

// Upsert performs the atomic get-or-create on (session, cadet)
func (m *MockAttendanceStore) Upsert(ctx context.Context, u database.AttendanceUpsert) (*database.AttendanceRecord, bool, error) {
	if m.UpsertError != nil {
		return nil, false, m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls = append(m.UpsertCalls, u)

	key := attendanceKey{u.SessionID, u.CadetID}
	now := time.Now()
	if existing, ok := m.records[key]; ok {
		existing.Status = u.Status
		existing.MarkedBy = u.MarkedBy
		existing.CheckInTime = u.CheckInTime
		existing.Remarks = u.UpdateRemarks
		existing.UpdatedAt = now
		rec := *existing
		return &rec, false, nil
	}

	m.nextID++
	rec := &database.AttendanceRecord{
		ID:          m.nextID,
		SessionID:   u.SessionID,
		CadetID:     u.CadetID,
		Status:      u.Status,
		MarkedBy:    u.MarkedBy,
		CheckInTime: u.CheckInTime,
		Remarks:     u.InsertRemarks,
		MarkedAt:    now,
		UpdatedAt:   now,
	}
	m.records[key] = rec
	out := *rec
	return &out, true, nil
}

// Get returns the record for (session, cadet), nil if none
func (m *MockAttendanceStore) Get(ctx context.Context, sessionID, cadetID int64) (*database.AttendanceRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[attendanceKey{sessionID, cadetID}]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

// ListBySession returns all records for a session
func (m *MockAttendanceStore) ListBySession(ctx context.Context, sessionID int64) ([]database.AttendanceRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []database.AttendanceRecord
	for key, rec := range m.records {
		if key.sessionID == sessionID {
			records = append(records, *rec)
		}
	}
	return records, nil
}

// Stats summarizes attendance for a session
func (m *MockAttendanceStore) Stats(ctx context.Context, sessionID int64) (*database.SessionStats, error) {
	if m.StatsError != nil {
		return nil, m.StatsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &database.SessionStats{Total: m.TotalCadets}
	for key, rec := range m.records {
		if key.sessionID != sessionID {
			continue
		}
		switch rec.Status {
		case database.StatusPresent:
			stats.Present++
		case database.StatusAbsent:
			stats.Absent++
		case database.StatusLate:
			stats.Late++
		}
	}
	if stats.Total > 0 {
		stats.Percentage = float64(stats.Present+stats.Late) / float64(stats.Total) * 100
	}
	return stats, nil
}

// MockAttemptLogStore is a mock implementation of database.AttemptLogStore
type MockAttemptLogStore struct {
	mu     sync.RWMutex
	logs   []database.AttemptLog
	nextID int64

	// Error injection
	AppendError error
	ListError   error
}

// NewMockAttemptLogStore creates a new mock attempt log store
func NewMockAttemptLogStore() *MockAttemptLogStore {
	return &MockAttemptLogStore{}
}

// Append writes one log row
func (m *MockAttemptLogStore) Append(ctx context.Context, log *database.AttemptLog) error {
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	log.ID = m.nextID
	log.CreatedAt = time.Now()
	m.logs = append(m.logs, *log)
	return nil
}

// ListBySession returns log rows for a session, newest first
func (m *MockAttemptLogStore) ListBySession(ctx context.Context, sessionID int64, limit int) ([]database.AttemptLog, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var logs []database.AttemptLog
	for i := len(m.logs) - 1; i >= 0 && len(logs) < limit; i-- {
		if m.logs[i].SessionID == sessionID {
			logs = append(logs, m.logs[i])
		}
	}
	return logs, nil
}

// Logs returns a copy of all appended rows for assertions
func (m *MockAttemptLogStore) Logs() []database.AttemptLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.AttemptLog, len(m.logs))
	copy(out, m.logs)
	return out
}

// MockSessionStore is a mock implementation of database.SessionStore
type MockSessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*database.AttendanceSession
	nextID   int64

	// Error injection
	CreateError       error
	GetError          error
	ListError         error
	CloseError        error
	CloseExpiredError error
}

// NewMockSessionStore creates a new mock session store
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		sessions: make(map[int64]*database.AttendanceSession),
	}
}

// AddSession adds a session to the mock store
func (m *MockSessionStore) AddSession(s database.AttendanceSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &s
}

// Create inserts a new session
func (m *MockSessionStore) Create(ctx context.Context, s *database.AttendanceSession) (*database.AttendanceSession, error) {
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	created := *s
	created.ID = m.nextID
	created.IsActive = true
	created.CreatedAt = time.Now()
	m.sessions[created.ID] = &created
	out := created
	return &out, nil
}

// Get returns the session regardless of active state
func (m *MockSessionStore) Get(ctx context.Context, id int64) (*database.AttendanceSession, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := *s
	return &out, nil
}

// GetActive returns the session only if active
func (m *MockSessionStore) GetActive(ctx context.Context, id int64) (*database.AttendanceSession, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok || !s.IsActive {
		return nil, database.ErrNotFound
	}
	out := *s
	return &out, nil
}

// ListActive returns all active sessions
func (m *MockSessionStore) ListActive(ctx context.Context) ([]database.AttendanceSession, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []database.AttendanceSession
	for _, s := range m.sessions {
		if s.IsActive {
			sessions = append(sessions, *s)
		}
	}
	return sessions, nil
}

// Close deactivates a session
func (m *MockSessionStore) Close(ctx context.Context, id int64) error {
	if m.CloseError != nil {
		return m.CloseError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return database.ErrNotFound
	}
	s.IsActive = false
	return nil
}

// CloseExpired deactivates active sessions dated before the given day
func (m *MockSessionStore) CloseExpired(ctx context.Context, before time.Time) (int64, error) {
	if m.CloseExpiredError != nil {
		return 0, m.CloseExpiredError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var closed int64
	for _, s := range m.sessions {
		if s.IsActive && s.Date.Before(before) {
			s.IsActive = false
			closed++
		}
	}
	return closed, nil
}

// MockCadetStore is a mock implementation of database.CadetStore
type MockCadetStore struct {
	mu     sync.RWMutex
	cadets map[int64]*database.Cadet

	// Error injection
	GetError          error
	FindError         error
	ListError         error
	UpsertRosterError error
}

// NewMockCadetStore creates a new mock cadet store
func NewMockCadetStore() *MockCadetStore {
	return &MockCadetStore{
		cadets: make(map[int64]*database.Cadet),
	}
}

// AddCadet adds a cadet to the mock store
func (m *MockCadetStore) AddCadet(c database.Cadet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cadets[c.ID] = &c
}

// Get returns a cadet by ID
func (m *MockCadetStore) Get(ctx context.Context, id int64) (*database.Cadet, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cadets[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := *c
	return &out, nil
}

// GetByServiceNumber returns a cadet by service number
func (m *MockCadetStore) GetByServiceNumber(ctx context.Context, serviceNumber string) (*database.Cadet, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.cadets {
		if c.ServiceNumber == serviceNumber {
			out := *c
			return &out, nil
		}
	}
	return nil, database.ErrNotFound
}

// FindByName matches cadets on normalized full name
func (m *MockCadetStore) FindByName(ctx context.Context, name string) ([]database.Cadet, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	normalized := database.NormalizeCadetName(name)
	var result []database.Cadet
	for _, c := range m.cadets {
		if database.NormalizeCadetName(c.FullName) == normalized {
			result = append(result, *c)
		}
	}
	return result, nil
}

// ListByUnit returns all cadets in a unit
func (m *MockCadetStore) ListByUnit(ctx context.Context, unitID int64) ([]database.Cadet, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []database.Cadet
	for _, c := range m.cadets {
		if c.UnitID == unitID {
			result = append(result, *c)
		}
	}
	return result, nil
}

// UpsertRoster imports units and cadets
func (m *MockCadetStore) UpsertRoster(ctx context.Context, units []database.Unit, cadets []database.Cadet) (int, error) {
	if m.UpsertRosterError != nil {
		return 0, m.UpsertRosterError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range cadets {
		c := cadets[i]
		m.cadets[c.ID] = &c
	}
	return len(cadets), nil
}

// MockOfficerStore is a mock implementation of database.OfficerStore
type MockOfficerStore struct {
	mu       sync.RWMutex
	officers map[string]*database.Officer

	// Error injection
	GetError error
}

// NewMockOfficerStore creates a new mock officer store
func NewMockOfficerStore() *MockOfficerStore {
	return &MockOfficerStore{
		officers: make(map[string]*database.Officer),
	}
}

// AddOfficer adds an officer to the mock store
func (m *MockOfficerStore) AddOfficer(o database.Officer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.officers[o.Username] = &o
}

// GetByUsername returns the officer for a login name
func (m *MockOfficerStore) GetByUsername(ctx context.Context, username string) (*database.Officer, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.officers[username]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := *o
	return &out, nil
}

// Verify interface compliance
var _ database.EmbeddingStore = (*MockEmbeddingStore)(nil)
var _ database.AttendanceStore = (*MockAttendanceStore)(nil)
var _ database.AttemptLogStore = (*MockAttemptLogStore)(nil)
var _ database.SessionStore = (*MockSessionStore)(nil)
var _ database.CadetStore = (*MockCadetStore)(nil)
var _ database.OfficerStore = (*MockOfficerStore)(nil)
