package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"

	"cardex/internal/blob"
	"cardex/internal/decode"
	"cardex/internal/registry"
	"cardex/internal/storage"
)

type stubDecoder struct {
	calls  int
	result decode.Result
	usable bool
	err    error
}

func (s *stubDecoder) DecodeVIN(ctx context.Context, vin string) (decode.Result, bool, error) {
	s.calls++
	if s.err != nil {
		return decode.Result{}, false, s.err
	}
	result := s.result
	result.VIN = vin
	return result, s.usable, nil
}

type stubBlobClient struct {
	uploads int
}

func (s *stubBlobClient) Enabled() bool { return true }

func (s *stubBlobClient) Upload(ctx context.Context, key, contentType string, body []byte) (blob.ObjectRef, error) {
	s.uploads++
	return blob.ObjectRef{Key: key, URL: "https://cdn.example.com/" + key}, nil
}

func newTestHandler(t *testing.T, decoder registry.VINDecoder, blobs blob.Client) (*Handler, storage.Repository) {
	t.Helper()
	store, err := storage.NewJSONRepository(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewJSONRepository: %v", err)
	}
	if blobs == nil {
		blobs = blob.NewClient(blob.Config{})
	}
	resolver := &registry.Resolver{Store: store, Decoder: decoder}
	submitter := &registry.Submitter{Store: store, Blobs: blobs}
	handler := NewHandler(resolver, submitter)
	handler.Store = store
	handler.Blobs = blobs
	return handler, store
}

func seedVehicle(t *testing.T, store storage.Repository, plate string) {
	t.Helper()
	makeName := "Opel"
	if _, err := store.CreateVehicle(context.Background(), storage.CreateVehicleParams{
		Plate: &plate,
		Make:  &makeName,
	}); err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}
}

func postSearch(t *testing.T, handler *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.Search(recorder, request)
	return recorder
}

func TestSearchReturnsLocalRecord(t *testing.T) {
	handler, store := newTestHandler(t, &stubDecoder{}, nil)
	seedVehicle(t, store, "CA1234BM")

	recorder := postSearch(t, handler, `{"query":" ca1234bm "}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", recorder.Code, recorder.Body.String())
	}

	var response struct {
		Source string `json:"source"`
		Data   struct {
			Plate  *string  `json:"plate"`
			Make   *string  `json:"make"`
			Photos []string `json:"photos"`
		} `json:"data"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Source != "local" {
		t.Fatalf("source = %q, want local", response.Source)
	}
	if response.Data.Plate == nil || *response.Data.Plate != "CA1234BM" {
		t.Fatalf("plate = %v, want CA1234BM", response.Data.Plate)
	}
	if response.Data.Photos == nil {
		t.Fatalf("photos missing from payload: %s", recorder.Body.String())
	}
}

func TestSearchFallsBackToDecode(t *testing.T) {
	makeName := "VOLKSWAGEN"
	decoder := &stubDecoder{usable: true, result: decode.Result{Make: &makeName}}
	handler, _ := newTestHandler(t, decoder, nil)

	recorder := postSearch(t, handler, `{"query":"WVWZZZ1JZ3W386752"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", recorder.Code, recorder.Body.String())
	}
	if decoder.calls != 1 {
		t.Fatalf("decoder called %d times, want 1", decoder.calls)
	}
	if !strings.Contains(recorder.Body.String(), `"source":"external"`) {
		t.Fatalf("body = %s, want external source", recorder.Body.String())
	}
}

func TestSearchMissReturns404(t *testing.T) {
	handler, _ := newTestHandler(t, &stubDecoder{}, nil)

	recorder := postSearch(t, handler, `{"query":"PB0000XX"}`)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", recorder.Code)
	}
	var response map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response["query"] != "PB0000XX" {
		t.Fatalf("query = %q, want normalized identifier", response["query"])
	}
}

func TestSearchDecodeOutageReturns503(t *testing.T) {
	decoder := &stubDecoder{err: fmt.Errorf("%w: dial tcp: refused", decode.ErrUnavailable)}
	handler, _ := newTestHandler(t, decoder, nil)

	recorder := postSearch(t, handler, `{"query":"WVWZZZ1JZ3W386752"}`)
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", recorder.Code)
	}
}

func TestSearchEmptyQueryReturns400(t *testing.T) {
	handler, _ := newTestHandler(t, &stubDecoder{}, nil)

	recorder := postSearch(t, handler, `{"query":"   "}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
}

func TestSearchRejectsMalformedJSON(t *testing.T) {
	handler, _ := newTestHandler(t, &stubDecoder{}, nil)

	recorder := postSearch(t, handler, `{"query":`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
}

func TestSearchRejectsNonPOST(t *testing.T) {
	handler, _ := newTestHandler(t, &stubDecoder{}, nil)

	request := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	recorder := httptest.NewRecorder()
	handler.Search(recorder, request)
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", recorder.Code)
	}
	if allow := recorder.Header().Get("Allow"); allow != "POST" {
		t.Fatalf("Allow = %q, want POST", allow)
	}
}

type submissionForm struct {
	fields map[string]string
	photos []formPhoto
}

type formPhoto struct {
	name        string
	contentType string
	data        []byte
}

func encodeSubmission(t *testing.T, form submissionForm) (string, *bytes.Buffer) {
	t.Helper()
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	for name, value := range form.fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("WriteField %s: %v", name, err)
		}
	}
	for _, photo := range form.photos {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photos"; filename=%q`, photo.name))
		header.Set("Content-Type", photo.contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		if _, err := part.Write(photo.data); err != nil {
			t.Fatalf("write photo: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return writer.FormDataContentType(), &buffer
}

func postSubmit(t *testing.T, handler *Handler, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodPost, "/api/submit", body)
	request.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	handler.Submit(recorder, request)
	return recorder
}

func TestSubmitPersistsVehicleWithPhotos(t *testing.T) {
	blobs := &stubBlobClient{}
	handler, store := newTestHandler(t, &stubDecoder{}, blobs)

	contentType, body := encodeSubmission(t, submissionForm{
		fields: map[string]string{
			"plate":   "ca1234bm",
			"make":    "Opel",
			"model":   "Astra",
			"year":    "2005",
			"consent": "true",
		},
		photos: []formPhoto{
			{name: "front.jpg", contentType: "image/jpeg", data: []byte("jpeg-1")},
			{name: "rear.jpg", contentType: "image/png", data: []byte("png-2")},
		},
	})
	recorder := postSubmit(t, handler, contentType, body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", recorder.Code, recorder.Body.String())
	}

	var response struct {
		Success        bool   `json:"success"`
		ID             string `json:"id"`
		PhotosUploaded int    `json:"photosUploaded"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !response.Success || response.ID == "" {
		t.Fatalf("response = %+v, want success with id", response)
	}
	if response.PhotosUploaded != 2 {
		t.Fatalf("photosUploaded = %d, want 2", response.PhotosUploaded)
	}
	if blobs.uploads != 2 {
		t.Fatalf("blob uploads = %d, want 2", blobs.uploads)
	}

	vehicle, found, err := store.FindVehicleByIdentifier(context.Background(), "CA1234BM")
	if err != nil || !found {
		t.Fatalf("persisted vehicle lookup found=%v err=%v", found, err)
	}
	if len(vehicle.Photos) != 2 {
		t.Fatalf("stored photos = %v, want 2 URLs", vehicle.Photos)
	}
}

func TestSubmitWithoutConsentReturns400(t *testing.T) {
	handler, _ := newTestHandler(t, &stubDecoder{}, nil)

	contentType, body := encodeSubmission(t, submissionForm{
		fields: map[string]string{"plate": "CA1234BM"},
	})
	recorder := postSubmit(t, handler, contentType, body)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	var response map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response["field"] != "consent" {
		t.Fatalf("field = %q, want consent", response["field"])
	}
}

func TestSubmitWithoutIdentifierReturns400(t *testing.T) {
	handler, _ := newTestHandler(t, &stubDecoder{}, nil)

	contentType, body := encodeSubmission(t, submissionForm{
		fields: map[string]string{"make": "Opel", "consent": "true"},
	})
	recorder := postSubmit(t, handler, contentType, body)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"field":"plate"`) {
		t.Fatalf("body = %s, want plate validation error", recorder.Body.String())
	}
}

func TestSubmitRejectsNonImagePhoto(t *testing.T) {
	handler, _ := newTestHandler(t, &stubDecoder{}, &stubBlobClient{})

	contentType, body := encodeSubmission(t, submissionForm{
		fields: map[string]string{"plate": "CA1234BM", "consent": "true"},
		photos: []formPhoto{{name: "doc.pdf", contentType: "application/pdf", data: []byte("%PDF")}},
	})
	recorder := postSubmit(t, handler, contentType, body)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"field":"photos"`) {
		t.Fatalf("body = %s, want photos validation error", recorder.Body.String())
	}
}

func TestSubmitRejectsTooManyPhotos(t *testing.T) {
	handler, _ := newTestHandler(t, &stubDecoder{}, &stubBlobClient{})

	photos := make([]formPhoto, registry.MaxAttachments+1)
	for i := range photos {
		photos[i] = formPhoto{
			name:        fmt.Sprintf("photo-%d.jpg", i),
			contentType: "image/jpeg",
			data:        []byte("jpeg"),
		}
	}
	contentType, body := encodeSubmission(t, submissionForm{
		fields: map[string]string{"plate": "CA1234BM", "consent": "true"},
		photos: photos,
	})
	recorder := postSubmit(t, handler, contentType, body)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
}

func TestSubmitRequiresMultipartBody(t *testing.T) {
	handler, _ := newTestHandler(t, &stubDecoder{}, nil)

	recorder := postSubmit(t, handler, "application/json", strings.NewReader(`{"plate":"CA1234BM"}`))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
}

func TestSubmitRejectsNonPOST(t *testing.T) {
	handler, _ := newTestHandler(t, &stubDecoder{}, nil)

	request := httptest.NewRequest(http.MethodGet, "/api/submit", nil)
	recorder := httptest.NewRecorder()
	handler.Submit(recorder, request)
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", recorder.Code)
	}
}

func TestHealthAlwaysAnswers200(t *testing.T) {
	handler, _ := newTestHandler(t, &stubDecoder{}, nil)

	request := httptest.NewRequest(http.MethodGet, "/health", nil)
	recorder := httptest.NewRecorder()
	handler.Health(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}

	var response struct {
		Status     string `json:"status"`
		Timestamp  string `json:"timestamp"`
		Components []struct {
			Component string `json:"component"`
			Status    string `json:"status"`
		} `json:"components"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Status != "ok" {
		t.Fatalf("status = %q, want ok", response.Status)
	}
	if response.Timestamp == "" {
		t.Fatalf("timestamp missing from payload")
	}
	seen := make(map[string]string)
	for _, component := range response.Components {
		seen[component.Component] = component.Status
	}
	if seen["datastore"] != "ok" {
		t.Fatalf("datastore status = %q, want ok", seen["datastore"])
	}
	if seen["attachment_store"] != "disabled" {
		t.Fatalf("attachment_store status = %q, want disabled", seen["attachment_store"])
	}
	if seen["decode_service"] != "ok" {
		t.Fatalf("decode_service status = %q, want ok", seen["decode_service"])
	}
}
