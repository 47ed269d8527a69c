package recognition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/cadetops/muster/internal/database"
	"github.com/cadetops/muster/internal/embedder"
)

// Enrollment gate errors, mapped to no_face / multiple_faces at the API.
var (
	ErrNoFaceDetected        = errors.New("no face detected in the image")
	ErrMultipleFacesDetected = errors.New("multiple faces detected in the image")
)

const thumbnailSize = 150

// duplicateWarnDistance is the cosine distance under which a new
// enrollment is flagged as suspiciously close to another identity.
const duplicateWarnDistance = 0.3

// Enroller turns an enrollment photo into a stored embedding. Exactly one
// face must be present; the face crop is kept as a small thumbnail for
// human verification.
type Enroller struct {
	embeddings database.EmbeddingStore
	detector   Detector
	index      *database.EnrollmentIndex
	model      string
}

// NewEnroller wires the enrollment flow. The index may be nil when
// duplicate warnings are not wanted.
func NewEnroller(embeddings database.EmbeddingStore, detector Detector, index *database.EnrollmentIndex, model string) *Enroller {
	return &Enroller{
		embeddings: embeddings,
		detector:   detector,
		index:      index,
		model:      model,
	}
}

// Enroll extracts the single face from the image and stores its embedding,
// replacing any prior enrollment for the cadet. The returned warnings list
// other cadets whose enrolled faces are suspiciously close to the new one.
func (e *Enroller) Enroll(ctx context.Context, cadetID int64, img []byte) (*database.EnrolledEmbedding, []database.SimilarFace, error) {
	face, err := e.detectOne(ctx, img)
	if err != nil {
		return nil, nil, err
	}
	return e.store(ctx, cadetID, img, face)
}

// EnrollFirstFace behaves like Enroll but takes the first detected face
// when several are present. Used by the bulk import, where archival photos
// sometimes contain bystanders.
func (e *Enroller) EnrollFirstFace(ctx context.Context, cadetID int64, img []byte) (*database.EnrolledEmbedding, []database.SimilarFace, error) {
	detection, err := e.detector.DetectFaces(ctx, img)
	if err != nil {
		return nil, nil, err
	}
	if len(detection.Faces) == 0 {
		return nil, nil, ErrNoFaceDetected
	}
	return e.store(ctx, cadetID, img, &detection.Faces[0])
}

func (e *Enroller) detectOne(ctx context.Context, img []byte) (*embedder.Face, error) {
	detection, err := e.detector.DetectFaces(ctx, img)
	if err != nil {
		return nil, err
	}
	switch {
	case len(detection.Faces) == 0:
		return nil, ErrNoFaceDetected
	case len(detection.Faces) > 1:
		return nil, ErrMultipleFacesDetected
	}
	return &detection.Faces[0], nil
}

func (e *Enroller) store(ctx context.Context, cadetID int64, img []byte, face *embedder.Face) (*database.EnrolledEmbedding, []database.SimilarFace, error) {
	if len(face.Embedding) == 0 {
		return nil, nil, database.ErrInvalidVector
	}

	thumbnail, err := FaceThumbnail(img, face.Box)
	if err != nil {
		// The embedding is the product; a broken thumbnail should not block
		// enrollment.
		thumbnail = nil
	}

	warnings := e.similarFaces(cadetID, face.Embedding)

	stored, err := e.embeddings.Enroll(ctx, cadetID, face.Embedding, e.model, thumbnail)
	if err != nil {
		return nil, nil, fmt.Errorf("storing enrollment: %w", err)
	}
	return stored, warnings, nil
}

// similarFaces returns enrolled faces of OTHER cadets close to the new
// embedding. Checked before the store write so the new enrollment cannot
// match itself.
func (e *Enroller) similarFaces(cadetID int64, embedding []float32) []database.SimilarFace {
	if e.index == nil || e.index.Count() == 0 {
		return nil
	}
	hits, err := e.index.Search(embedding, 3, duplicateWarnDistance)
	if err != nil {
		return nil
	}
	var warnings []database.SimilarFace
	for _, h := range hits {
		if h.CadetID != cadetID {
			warnings = append(warnings, h)
		}
	}
	return warnings
}

// FaceThumbnail crops the face bounding box out of the enrollment photo and
// scales it to a 150x150 JPEG.
func FaceThumbnail(img []byte, box embedder.BoundingBox) ([]byte, error) {
	decoded, err := imaging.Decode(bytes.NewReader(img), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding enrollment image: %w", err)
	}

	rect := image.Rect(box.X, box.Y, box.X+box.W, box.Y+box.H)
	crop := imaging.Crop(decoded, rect)
	if crop.Bounds().Empty() {
		crop = imaging.Clone(decoded)
	}

	thumb := imaging.Fill(crop, thumbnailSize, thumbnailSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
