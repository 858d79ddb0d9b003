package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docscan/internal/ocr"
	"docscan/internal/pixel"
	"docscan/internal/session"
	"docscan/pkg/models"
	"docscan/pkg/services"
)

type scannerFunc func(ctx context.Context, img *image.NRGBA, opts ocr.Options) (*models.RecognitionResult, error)

func (f scannerFunc) PerformOCR(ctx context.Context, img *image.NRGBA, opts ocr.Options) (*models.RecognitionResult, error) {
	return f(ctx, img, opts)
}

// recorder is a scanner that remembers every call.
type recorder struct {
	mu     sync.Mutex
	opts   []ocr.Options
	result *models.RecognitionResult
	err    error
}

func (r *recorder) PerformOCR(_ context.Context, _ *image.NRGBA, opts ocr.Options) (*models.RecognitionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts = append(r.opts, opts)
	return r.result, r.err
}

func (r *recorder) calls() []ocr.Options {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ocr.Options(nil), r.opts...)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	data, err := pixel.EncodeBytes(img, pixel.FormatPNG)
	require.NoError(t, err)
	return data
}

func multipartRequest(t *testing.T, target string, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "document.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newTestServer(t *testing.T, scanner services.Scanner, config Config) *Server {
	t.Helper()
	s := New(scanner, config)
	t.Cleanup(s.Close)
	return s
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func getState(t *testing.T, s *Server, id string) scanResponse {
	t.Helper()
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/v1/scans/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func noLimit() Config {
	config := DefaultConfig()
	config.RateLimitRPS = 0
	return config
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &recorder{}, noLimit())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestCreateScanRunsInBackground(t *testing.T) {
	scanner := &recorder{result: &models.RecognitionResult{
		Source:     models.ServiceGoogle,
		Confidence: 90,
		Fields:     models.FieldMap{models.FieldDocumentNumber: {Value: "P1234567", Confidence: 90}},
	}}
	s := newTestServer(t, scanner, noLimit())

	rec := serve(s, multipartRequest(t, "/v1/scans", pngBytes(t), map[string]string{
		"language":         "de",
		"documentType":     "passport",
		"preferredService": "google",
	}))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	_, err := uuid.Parse(created.ID)
	require.NoError(t, err)
	assert.Contains(t, []services.ScanStatus{services.ScanProcessing, services.ScanDone}, created.State.Status)
	assert.True(t, created.State.HasImage)

	require.Eventually(t, func() bool {
		return getState(t, s, created.ID).State.Status == services.ScanDone
	}, 2*time.Second, 10*time.Millisecond)

	state := getState(t, s, created.ID).State
	assert.Equal(t, 100, state.Progress)
	require.NotNil(t, state.Result)
	assert.Equal(t, 90, state.Result.Confidence)
	assert.Equal(t, "P1234567", state.Result.Fields[models.FieldDocumentNumber].Value)

	calls := scanner.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "de", calls[0].Language)
	assert.Equal(t, models.DocumentTypePassport, calls[0].DocumentType)
	assert.Equal(t, models.ServiceGoogle, calls[0].PreferredService)
}

func TestScanFailureCarriesUserMessage(t *testing.T) {
	s := newTestServer(t, &recorder{err: ocr.WrapOCRError("PerformOCR", ocr.ErrAllBackendsExhausted, "")}, noLimit())

	rec := serve(s, multipartRequest(t, "/v1/scans", pngBytes(t), nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	require.Eventually(t, func() bool {
		return getState(t, s, created.ID).State.Status == services.ScanError
	}, 2*time.Second, 10*time.Millisecond)

	state := getState(t, s, created.ID).State
	assert.Equal(t, ocr.UserMessageExhausted, state.Message)
	assert.Contains(t, state.Error, ocr.ErrAllBackendsExhausted.Error())
	assert.Nil(t, state.Result)
}

func TestCreateScanRejectsBadInput(t *testing.T) {
	s := newTestServer(t, &recorder{}, noLimit())

	tests := []struct {
		name   string
		image  []byte
		fields map[string]string
		status int
	}{
		{name: "missing image", status: http.StatusBadRequest},
		{name: "undecodable image", image: []byte("definitely not an image"), status: http.StatusBadRequest},
		{name: "unknown service", image: pngBytes(t), fields: map[string]string{"preferredService": "abbyy"}, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, multipartRequest(t, "/v1/scans", tt.image, tt.fields))
			assert.Equal(t, tt.status, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
	assert.Equal(t, 0, s.sessions.len())
}

func TestUndecodableImageHasUserMessage(t *testing.T) {
	s := newTestServer(t, &recorder{}, noLimit())

	rec := serve(s, multipartRequest(t, "/v1/quality", []byte("GIF89a-but-truncated"), nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Message)
}

func TestUploadTooLarge(t *testing.T) {
	config := noLimit()
	config.MaxUploadBytes = 16
	s := newTestServer(t, &recorder{}, config)

	rec := serve(s, multipartRequest(t, "/v1/scans", pngBytes(t), nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestScanLookupErrors(t *testing.T) {
	s := newTestServer(t, &recorder{}, noLimit())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/v1/scans/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/v1/scans/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodPost, "/v1/scans/"+uuid.NewString()+"/retry", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodDelete, "/v1/scans/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRetryAndDelete(t *testing.T) {
	scanner := &recorder{result: &models.RecognitionResult{Source: models.ServiceTesseract}}
	s := newTestServer(t, scanner, noLimit())

	rec := serve(s, multipartRequest(t, "/v1/scans", pngBytes(t), map[string]string{"language": "fr"}))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Eventually(t, func() bool { return len(scanner.calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return getState(t, s, created.ID).State.Status == services.ScanDone
	}, 2*time.Second, 10*time.Millisecond)

	rec = serve(s, httptest.NewRequest(http.MethodPost, "/v1/scans/"+created.ID+"/retry", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool { return len(scanner.calls()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "fr", scanner.calls()[1].Language)

	rec = serve(s, httptest.NewRequest(http.MethodDelete, "/v1/scans/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/v1/scans/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteSupersedesRunningScan(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := newTestServer(t, scannerFunc(func(context.Context, *image.NRGBA, ocr.Options) (*models.RecognitionResult, error) {
		close(started)
		<-release
		return &models.RecognitionResult{}, nil
	}), noLimit())
	defer close(release)

	rec := serve(s, multipartRequest(t, "/v1/scans", pngBytes(t), nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created scanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, services.ScanProcessing, created.State.Status)

	<-started
	rec = serve(s, httptest.NewRequest(http.MethodDelete, "/v1/scans/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, s.sessions.len())
}

func TestQualityEndpoint(t *testing.T) {
	s := newTestServer(t, &recorder{}, noLimit())
	data := pngBytes(t)
	img, err := pixel.Decode(data, "")
	require.NoError(t, err)
	want := s.assessor.Assess(img)

	rec := serve(s, multipartRequest(t, "/v1/quality", data, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.QualityAssessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, want.Score, got.Score)
	assert.Equal(t, want.Tier, got.Tier)
	assert.Len(t, got.Issues, len(want.Issues))
}

func TestRateLimitPerClient(t *testing.T) {
	config := DefaultConfig()
	config.RateLimitRPS = 1
	config.RateLimitBurst = 2
	s := newTestServer(t, &recorder{}, config)

	request := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = addr
		return serve(s, req)
	}

	assert.Equal(t, http.StatusOK, request("192.0.2.1:1000").Code)
	assert.Equal(t, http.StatusOK, request("192.0.2.1:1001").Code)

	limited := request("192.0.2.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, request("192.0.2.2:1000").Code)
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	rl.get("a", now)
	now = now.Add(clientIdleTimeout + time.Second)
	rl.get("b", now)

	assert.Len(t, rl.clients, 1)
	assert.Contains(t, rl.clients, "b")
}

func TestStoreEvictsIdleSessions(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	st := newStore(time.Minute)
	st.now = func() time.Time { return now }

	first, second := uuid.New(), uuid.New()
	st.add(first, session.New(&recorder{}, first.String()))
	now = now.Add(2 * time.Minute)
	st.add(second, session.New(&recorder{}, second.String()))

	_, ok := st.get(first)
	assert.False(t, ok)
	_, ok = st.get(second)
	assert.True(t, ok)
	assert.Equal(t, 1, st.len())
}
