package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cardex/internal/blob"
	"cardex/internal/observability/metrics"
	"cardex/internal/storage"
)

const (
	// MaxAttachments limits how many photos a single submission may carry.
	MaxAttachments = 5
	// MaxAttachmentSize caps each photo payload at 5 MB.
	MaxAttachmentSize = 5 << 20

	attachmentKeyPrefix      = "car-photos"
	defaultUploadConcurrency = 3
)

// SubmissionFields carries the raw multipart form values of a submission.
// Numeric fields stay strings here; parsing happens during record build where
// unparseable values degrade to null rather than failing the request.
type SubmissionFields struct {
	Plate   string
	VIN     string
	Make    string
	Model   string
	Year    string
	HP      string
	Mileage string
	Notes   string
	Consent string
}

// Attachment is one uploaded photo, fully buffered by the HTTP layer.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SubmitResult reports the persisted record id and how many photos actually
// reached the attachment store.
type SubmitResult struct {
	ID             string
	PhotosUploaded int
}

// Submitter validates submissions, uploads attachments, and persists vehicle
// records. Like the resolver it is stateless between calls.
type Submitter struct {
	Store  storage.Repository
	Blobs  blob.Client
	Logger *slog.Logger

	// UploadConcurrency bounds parallel attachment uploads. Output order is
	// restored by original attachment index, so parallelism never reorders
	// the photos sequence.
	UploadConcurrency int

	// Clock is overridable for tests.
	Clock func() time.Time
}

// Submit runs the full submission pipeline. Validation failures return a
// ValidationError; a store insert failure is returned as-is and surfaces as a
// storage error. Individual attachment upload failures are logged and
// skipped, never failing the submission.
func (s *Submitter) Submit(ctx context.Context, fields SubmissionFields, attachments []Attachment) (SubmitResult, error) {
	if strings.TrimSpace(fields.Consent) != "true" {
		return SubmitResult{}, consentRequired()
	}
	plate := optionalIdentifier(fields.Plate)
	vin := optionalIdentifier(fields.VIN)
	if plate == nil && vin == nil {
		return SubmitResult{}, missingIdentifier()
	}
	if err := validateAttachments(attachments); err != nil {
		return SubmitResult{}, err
	}

	photos := s.uploadAttachments(ctx, attachments)

	params := storage.CreateVehicleParams{
		Plate:   plate,
		VIN:     vin,
		Make:    optionalString(fields.Make),
		Model:   optionalString(fields.Model),
		Year:    optionalInt(fields.Year),
		HP:      optionalInt(fields.HP),
		Mileage: optionalInt(fields.Mileage),
		Notes:   optionalString(fields.Notes),
		Photos:  photos,
	}
	vehicle, err := s.Store.CreateVehicle(ctx, params)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("persist vehicle: %w", err)
	}
	metrics.ObserveSubmission()
	return SubmitResult{ID: vehicle.ID, PhotosUploaded: len(photos)}, nil
}

func validateAttachments(attachments []Attachment) error {
	if len(attachments) > MaxAttachments {
		return attachmentRejected(fmt.Sprintf("at most %d photos are allowed", MaxAttachments))
	}
	for _, attachment := range attachments {
		if len(attachment.Data) > MaxAttachmentSize {
			return attachmentRejected(fmt.Sprintf("photo %s exceeds the %d byte limit", attachment.Filename, MaxAttachmentSize))
		}
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(attachment.ContentType)), "image/") {
			return attachmentRejected(fmt.Sprintf("photo %s is not an image", attachment.Filename))
		}
	}
	return nil
}

// uploadAttachments stores each photo independently: a failed upload is
// logged and leaves a gap that is compacted away, preserving the order of the
// successful ones.
func (s *Submitter) uploadAttachments(ctx context.Context, attachments []Attachment) []string {
	if len(attachments) == 0 {
		return nil
	}
	uploaded := make([]string, len(attachments))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.uploadConcurrency())
	for index, attachment := range attachments {
		index, attachment := index, attachment
		group.Go(func() error {
			key := s.attachmentKey(attachment.Filename)
			metrics.ObserveUploadAttempt()
			ref, err := s.Blobs.Upload(groupCtx, key, attachment.ContentType, attachment.Data)
			if err != nil {
				metrics.ObserveUploadFailure()
				s.logger().Warn("photo upload failed, skipping attachment",
					"filename", attachment.Filename,
					"key", key,
					"error", err)
				return nil
			}
			uploaded[index] = ref.URL
			return nil
		})
	}
	// Goroutines recover their own failures, so Wait never reports an error.
	_ = group.Wait()

	photos := make([]string, 0, len(attachments))
	for _, url := range uploaded {
		if url != "" {
			photos = append(photos, url)
		}
	}
	if len(photos) == 0 {
		return nil
	}
	return photos
}

// attachmentKey builds a collision-resistant storage key from the upload time,
// a random identifier, and the original filename.
func (s *Submitter) attachmentKey(filename string) string {
	return fmt.Sprintf("%s/%d-%s-%s",
		attachmentKeyPrefix,
		s.now().UnixMilli(),
		uuid.NewString(),
		sanitizeFilename(filename))
}

func sanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "photo"
	}
	return strings.ReplaceAll(base, " ", "-")
}

func (s *Submitter) uploadConcurrency() int {
	if s.UploadConcurrency > 0 {
		return s.UploadConcurrency
	}
	return defaultUploadConcurrency
}

func (s *Submitter) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

func (s *Submitter) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
