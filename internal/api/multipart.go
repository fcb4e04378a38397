package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"cardex/internal/registry"
)

// readSubmission streams the multipart payload, collecting form fields and
// buffering photo attachments. Each photo read is capped one byte past the
// size limit so the submitter can reject oversized files without the handler
// ever buffering an unbounded payload. Collection stops once the attachment
// count is already over the limit; the submitter rejects the count.
func readSubmission(r *http.Request) (registry.SubmissionFields, []registry.Attachment, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return registry.SubmissionFields{}, nil, &registry.ValidationError{
			Field:   "body",
			Message: "invalid multipart payload",
		}
	}
	var fields registry.SubmissionFields
	var attachments []registry.Attachment
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return registry.SubmissionFields{}, nil, fmt.Errorf("read multipart data: %w", err)
		}
		name := part.FormName()
		if name == "" {
			_ = part.Close()
			continue
		}
		if name == "photos" {
			attachment, readErr := readAttachment(part)
			if readErr != nil {
				return registry.SubmissionFields{}, nil, readErr
			}
			attachments = append(attachments, attachment)
			if len(attachments) > registry.MaxAttachments {
				break
			}
			continue
		}
		payload, readErr := io.ReadAll(part)
		_ = part.Close()
		if readErr != nil {
			return registry.SubmissionFields{}, nil, fmt.Errorf("read form field %s: %w", name, readErr)
		}
		setField(&fields, name, strings.TrimSpace(string(payload)))
	}
	return fields, attachments, nil
}

func readAttachment(part *multipart.Part) (registry.Attachment, error) {
	defer part.Close()
	data, err := io.ReadAll(io.LimitReader(part, registry.MaxAttachmentSize+1))
	if err != nil {
		return registry.Attachment{}, fmt.Errorf("read photo %s: %w", part.FileName(), err)
	}
	return registry.Attachment{
		Filename:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func setField(fields *registry.SubmissionFields, name, value string) {
	switch name {
	case "plate":
		fields.Plate = value
	case "vin":
		fields.VIN = value
	case "make":
		fields.Make = value
	case "model":
		fields.Model = value
	case "year":
		fields.Year = value
	case "hp":
		fields.HP = value
	case "mileage":
		fields.Mileage = value
	case "notes":
		fields.Notes = value
	case "consent":
		fields.Consent = value
	}
}
