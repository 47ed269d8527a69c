package database

import (
	"time"
)

// AttendanceStatus is the state of one cadet's attendance in one session.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "PRESENT"
	StatusAbsent  AttendanceStatus = "ABSENT"
	StatusLate    AttendanceStatus = "LATE"
	StatusExcused AttendanceStatus = "EXCUSED"
	StatusOnLeave AttendanceStatus = "ON_LEAVE"
)

// ValidAttendanceStatus reports whether s is a known attendance status.
func ValidAttendanceStatus(s AttendanceStatus) bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused, StatusOnLeave:
		return true
	}
	return false
}

// AttemptStatus classifies the outcome of one face-recognition probe.
type AttemptStatus string

const (
	AttemptSuccess  AttemptStatus = "SUCCESS"  // matched, attendance marked
	AttemptFailed   AttemptStatus = "FAILED"   // bad input, embedder or store failure
	AttemptUnknown  AttemptStatus = "UNKNOWN"  // face found but nobody matched
	AttemptMultiple AttemptStatus = "MULTIPLE" // more than one face in frame
	AttemptNone     AttemptStatus = "NONE"     // no face detected
)

// SessionType categorizes an attendance session.
type SessionType string

const (
	SessionDaily   SessionType = "DAILY"
	SessionWeekly  SessionType = "WEEKLY"
	SessionSpecial SessionType = "SPECIAL"
	SessionCamp    SessionType = "CAMP"
)

// ValidSessionType reports whether t is a known session type.
func ValidSessionType(t SessionType) bool {
	switch t {
	case SessionDaily, SessionWeekly, SessionSpecial, SessionCamp:
		return true
	}
	return false
}

// Unit is an organizational unit cadets belong to.
type Unit struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// Cadet is an enrolled member identity. Face embeddings reference cadets;
// they never own them.
type Cadet struct {
	ID            int64     `json:"id"`
	UnitID        int64     `json:"unit_id"`
	ServiceNumber string    `json:"service_number"`
	FullName      string    `json:"full_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// Officer can create sessions and mark attendance.
type Officer struct {
	ID           int64
	UnitID       int64
	Username     string
	FullName     string
	PasswordHash string
	CreatedAt    time.Time
}

// AttendanceSession is a bounded attendance-taking event scoped to a unit.
type AttendanceSession struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	SessionType SessionType `json:"session_type"`
	Date        time.Time   `json:"date"` // date only, time portion ignored
	StartTime   time.Time   `json:"start_time"`
	EndTime     time.Time   `json:"end_time"`
	UnitID      int64       `json:"unit_id"`
	CreatedBy   *int64      `json:"created_by,omitempty"` // officer ID, nullable
	IsMandatory bool        `json:"is_mandatory"`
	Location    string      `json:"location,omitempty"`
	Notes       string      `json:"notes,omitempty"`
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"`
}

// EnrolledEmbedding is the single active face embedding for a cadet.
// Re-enrollment replaces it; it is never appended to.
type EnrolledEmbedding struct {
	ID        int64
	CadetID   int64
	Embedding []float32
	Dim       int
	Model     string
	Thumbnail []byte // JPEG face crop for human verification
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CandidateEmbedding is an enrolled embedding joined with the cadet fields
// the attendance pipeline needs to build its response.
type CandidateEmbedding struct {
	CadetID       int64
	CadetName     string
	ServiceNumber string
	Embedding     []float32
}

// AttendanceRecord is one cadet's attendance state in one session.
// (session, cadet) is unique; writes go through a single upsert.
type AttendanceRecord struct {
	ID          int64            `json:"id"`
	SessionID   int64            `json:"session_id"`
	CadetID     int64            `json:"cadet_id"`
	Status      AttendanceStatus `json:"status"`
	MarkedBy    *int64           `json:"marked_by,omitempty"` // officer ID, nullable for system-marked records
	CheckInTime *time.Time       `json:"check_in_time,omitempty"`
	Remarks     string           `json:"remarks,omitempty"`
	MarkedAt    time.Time        `json:"marked_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// AttendanceUpsert describes one atomic get-or-create write of an
// attendance record. InsertRemarks is used when the row is created,
// UpdateRemarks when an existing row is overwritten.
type AttendanceUpsert struct {
	SessionID     int64
	CadetID       int64
	Status        AttendanceStatus
	MarkedBy      *int64
	CheckInTime   *time.Time
	InsertRemarks string
	UpdateRemarks string
}

// AttemptLog is one append-only row per face-recognition probe, written
// whatever the outcome.
type AttemptLog struct {
	ID         int64         `json:"id"`
	SessionID  int64         `json:"session_id"`
	CadetID    *int64        `json:"cadet_id,omitempty"` // nil unless a cadet was matched
	Status     AttemptStatus `json:"status"`
	Confidence *float64      `json:"confidence,omitempty"` // nil when no meaningful score exists
	Origin     string        `json:"origin"` // caller network/device identifier
	CreatedAt  time.Time     `json:"created_at"`
}

// SessionStats summarizes attendance for one session.
type SessionStats struct {
	Total      int     `json:"total"`
	Present    int     `json:"present"`
	Absent     int     `json:"absent"`
	Late       int     `json:"late"`
	Percentage float64 `json:"percentage"`
}
