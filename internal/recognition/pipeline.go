// Package recognition implements the face-recognition attendance pipeline
// and the enrollment flow on top of the embedder client and the stores.
package recognition

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/cadetops/muster/internal/database"
	"github.com/cadetops/muster/internal/embedder"
	"github.com/cadetops/muster/internal/facematch"
)

// API error codes returned to clients. Stable contract; kiosks switch on
// these values.
const (
	CodeNoFace              = "no_face"
	CodeMultipleFaces       = "multiple_faces"
	CodeNoEncoding          = "no_encoding"
	CodeNoRegisteredFaces   = "no_registered_faces"
	CodeNoMatch             = "no_match"
	CodeUnauthorized        = "unauthorized"
	CodeEmbedderUnavailable = "embedder_unavailable"
	CodeServerError         = "server_error"
)

// Remarks written on attendance records. The update variant tells reviewers
// the cadet scanned more than once.
const (
	remarkMarked    = "Marked via face recognition"
	remarkUpdated   = "Updated via face recognition"
	remarkSimulated = " (simulated)"
)

// simulatedConfidence is reported for simulation-mode matches.
const simulatedConfidence = 0.99

// Detector is the slice of the embedder client the pipeline needs.
type Detector interface {
	DetectFaces(ctx context.Context, image []byte) (*embedder.Detection, error)
}

// Result is the outcome of one attendance probe. On failure Success is
// false and Code carries the API error code.
type Result struct {
	Success       bool     `json:"success"`
	CadetID       *int64   `json:"cadet_id,omitempty"`
	CadetName     string   `json:"cadet_name,omitempty"`
	ServiceNumber string   `json:"service_number,omitempty"`
	Confidence    *float64 `json:"confidence,omitempty"`
	Code          string   `json:"error,omitempty"`
	Message       string   `json:"message"`
}

// PipelineConfig carries the tunables the pipeline reads per probe.
type PipelineConfig struct {
	Threshold float64
	Simulate  bool
}

// Pipeline runs one captured frame through decode, detection, matching and
// attendance resolution. Every probe writes exactly one attempt-log row,
// whatever the outcome.
type Pipeline struct {
	embeddings database.EmbeddingStore
	attendance database.AttendanceStore
	attempts   database.AttemptLogStore
	detector   Detector
	matcher    *facematch.Matcher
	cfg        PipelineConfig
}

// NewPipeline wires the attendance pipeline.
func NewPipeline(
	embeddings database.EmbeddingStore,
	attendance database.AttendanceStore,
	attempts database.AttemptLogStore,
	detector Detector,
	matcher *facematch.Matcher,
	cfg PipelineConfig,
) *Pipeline {
	return &Pipeline{
		embeddings: embeddings,
		attendance: attendance,
		attempts:   attempts,
		detector:   detector,
		matcher:    matcher,
		cfg:        cfg,
	}
}

// DecodeImage accepts a raw base64 payload or a data URL
// ("data:image/jpeg;base64,...") and returns the image bytes.
func DecodeImage(data string) ([]byte, error) {
	if idx := strings.Index(data, ";base64,"); idx >= 0 {
		data = data[idx+len(";base64,"):]
	}
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, errors.New("empty image payload")
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

// Process runs one probe against an active session. The returned Result is
// always non-nil; transport-level failures surface as server_error.
func (p *Pipeline) Process(ctx context.Context, session *database.AttendanceSession, imageData, origin string) *Result {
	if p.cfg.Simulate {
		return p.processSimulated(ctx, session, origin)
	}

	image, err := DecodeImage(imageData)
	if err != nil {
		p.logAttempt(ctx, session.ID, nil, database.AttemptFailed, nil, origin)
		return &Result{Code: CodeNoEncoding, Message: "Could not decode image data"}
	}

	detection, err := p.detector.DetectFaces(ctx, image)
	if err != nil {
		p.logAttempt(ctx, session.ID, nil, database.AttemptFailed, nil, origin)
		if errors.Is(err, embedder.ErrUnavailable) {
			return &Result{Code: CodeEmbedderUnavailable, Message: "Face recognition service is unavailable"}
		}
		log.Printf("face detection failed: %v", err)
		return &Result{Code: CodeServerError, Message: "Face detection failed"}
	}

	switch {
	case len(detection.Faces) == 0:
		p.logAttempt(ctx, session.ID, nil, database.AttemptNone, nil, origin)
		return &Result{Code: CodeNoFace, Message: "No face detected in the image"}
	case len(detection.Faces) > 1:
		p.logAttempt(ctx, session.ID, nil, database.AttemptMultiple, nil, origin)
		return &Result{Code: CodeMultipleFaces, Message: "Multiple faces detected, please capture one cadet at a time"}
	}

	probe := detection.Faces[0].Embedding
	if len(probe) == 0 {
		p.logAttempt(ctx, session.ID, nil, database.AttemptFailed, nil, origin)
		return &Result{Code: CodeNoEncoding, Message: "Could not extract a face encoding"}
	}

	candidates, err := p.embeddings.CandidatesFor(ctx, session)
	if err != nil {
		log.Printf("loading candidates failed: %v", err)
		p.logAttempt(ctx, session.ID, nil, database.AttemptFailed, nil, origin)
		return &Result{Code: CodeServerError, Message: "Could not load enrolled faces"}
	}
	if len(candidates) == 0 {
		p.logAttempt(ctx, session.ID, nil, database.AttemptUnknown, nil, origin)
		return &Result{Code: CodeNoRegisteredFaces, Message: "No faces are enrolled for this unit"}
	}

	matchCandidates := make([]facematch.Candidate, len(candidates))
	for i, c := range candidates {
		matchCandidates[i] = facematch.Candidate{CadetID: c.CadetID, Embedding: c.Embedding}
	}

	match, err := p.matcher.BestMatch(probe, matchCandidates, p.cfg.Threshold)
	if err != nil {
		log.Printf("matching failed: %v", err)
		p.logAttempt(ctx, session.ID, nil, database.AttemptFailed, nil, origin)
		return &Result{Code: CodeServerError, Message: "Face matching failed"}
	}
	if match == nil {
		p.logAttempt(ctx, session.ID, nil, database.AttemptUnknown, nil, origin)
		return &Result{Code: CodeNoMatch, Message: "Face does not match any enrolled cadet"}
	}

	matched := candidates[match.Index]
	return p.resolve(ctx, session, matched, match.Confidence, false, origin)
}

// processSimulated marks the first candidate present without calling the
// embedder. Only reachable outside production with FACE_SIMULATE set.
func (p *Pipeline) processSimulated(ctx context.Context, session *database.AttendanceSession, origin string) *Result {
	candidates, err := p.embeddings.CandidatesFor(ctx, session)
	if err != nil {
		log.Printf("loading candidates failed: %v", err)
		p.logAttempt(ctx, session.ID, nil, database.AttemptFailed, nil, origin)
		return &Result{Code: CodeServerError, Message: "Could not load enrolled faces"}
	}
	if len(candidates) == 0 {
		p.logAttempt(ctx, session.ID, nil, database.AttemptUnknown, nil, origin)
		return &Result{Code: CodeNoRegisteredFaces, Message: "No faces are enrolled for this unit"}
	}
	return p.resolve(ctx, session, candidates[0], simulatedConfidence, true, origin)
}

// resolve upserts attendance for the matched cadet and writes the SUCCESS
// log row.
func (p *Pipeline) resolve(ctx context.Context, session *database.AttendanceSession, matched database.CandidateEmbedding, confidence float64, simulated bool, origin string) *Result {
	insertRemarks, updateRemarks := remarkMarked, remarkUpdated
	if simulated {
		insertRemarks += remarkSimulated
		updateRemarks += remarkSimulated
	}

	now := time.Now()
	_, created, err := p.attendance.Upsert(ctx, database.AttendanceUpsert{
		SessionID:     session.ID,
		CadetID:       matched.CadetID,
		Status:        database.StatusPresent,
		CheckInTime:   &now,
		InsertRemarks: insertRemarks,
		UpdateRemarks: updateRemarks,
	})
	if err != nil {
		log.Printf("attendance upsert failed: %v", err)
		p.logAttempt(ctx, session.ID, nil, database.AttemptFailed, nil, origin)
		return &Result{Code: CodeServerError, Message: "Could not record attendance"}
	}

	cadetID := matched.CadetID
	conf := confidence
	p.logAttempt(ctx, session.ID, &cadetID, database.AttemptSuccess, &conf, origin)

	message := "Attendance marked"
	if !created {
		message = "Attendance updated"
	}

	return &Result{
		Success:       true,
		CadetID:       &cadetID,
		CadetName:     matched.CadetName,
		ServiceNumber: matched.ServiceNumber,
		Confidence:    &conf,
		Message:       message,
	}
}

// logAttempt appends one probe log row. Best effort: a failure is printed
// and never propagated to the caller.
func (p *Pipeline) logAttempt(ctx context.Context, sessionID int64, cadetID *int64, status database.AttemptStatus, confidence *float64, origin string) {
	err := p.attempts.Append(ctx, &database.AttemptLog{
		SessionID:  sessionID,
		CadetID:    cadetID,
		Status:     status,
		Confidence: confidence,
		Origin:     origin,
	})
	if err != nil {
		log.Printf("attempt log write failed: %v", err)
	}
}
