package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"echotrace/internal/chunker"
	"echotrace/internal/index"
	"echotrace/internal/matcher"
	"echotrace/internal/refset"
	"echotrace/internal/service"
)

type hashProvider struct{}

func hashVector(text string) []float32 {
	vec := make([]float32, 8)
	for i, r := range text {
		vec[(i+int(r))%len(vec)] += float32(r%13) + 1
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (hashProvider) Embed(_ context.Context, text string) ([]float32, error) {
	return hashVector(text), nil
}

func (hashProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t)
	}
	return out, nil
}

func newTestHandler(t *testing.T) (*Handler, *index.Memory) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	idx := index.NewMemory()

	refCfg := refset.DefaultConfig()
	refCfg.Waiter = refset.WaiterConfig{MaxRetries: 2, BaseDelay: time.Millisecond, Multiplier: 1.5}
	registrar, err := refset.New(hashProvider{}, idx, refCfg, nil, logger)
	if err != nil {
		t.Fatalf("registrar: %v", err)
	}
	m, err := matcher.New(hashProvider{}, idx, matcher.DefaultConfig(), logger)
	if err != nil {
		t.Fatalf("matcher: %v", err)
	}
	svc, err := service.New(chunker.DefaultConfig(), registrar, m, nil, logger)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return &Handler{Service: svc, Index: idx, DefaultThreshold: 0.7}, idx
}

func doRequest(t *testing.T, h *Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := newEcho(log.New(io.Discard, "", 0))
	h.Register(e.Group("/api"))

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const refBody = `{
	"source": "broadcast-2026-01-10",
	"transcription": {
		"success": true,
		"text": "the quick brown fox jumps over the lazy dog",
		"segments": [
			{"start": 0, "end": 3, "text": "the quick brown fox"},
			{"start": 3, "end": 6, "text": "jumps over the lazy dog"}
		]
	}
}`

func TestRegisterReferenceEndpoint(t *testing.T) {
	h, idx := newTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/api/reference", refBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res service.RegisterResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || res.ChunksStored != 2 {
		t.Fatalf("result = %+v", res)
	}
	stats, _ := idx.Stats(context.Background())
	if stats.VectorCount != 2 {
		t.Fatalf("vector count = %d", stats.VectorCount)
	}
}

func TestCompareEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	if rec := doRequest(t, h, http.MethodPost, "/api/reference", refBody); rec.Code != http.StatusOK {
		t.Fatalf("register status = %d", rec.Code)
	}

	cmpBody := `{
		"threshold": 0.7,
		"transcription": {
			"success": true,
			"segments": [{"start": 0, "end": 2, "text": "the quick brown fox"}]
		}
	}`
	rec := doRequest(t, h, http.MethodPost, "/api/compare", cmpBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res service.CompareResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || len(res.Matches) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Matches[0].StartTime != 0 || res.Matches[0].EndTime != 3 {
		t.Fatalf("match = %+v, want reference interval [0, 3]", res.Matches[0])
	}
}

func TestCompareEndpointRejectsBadThreshold(t *testing.T) {
	h, _ := newTestHandler(t)
	body := `{"threshold": 1.5, "transcription": {"success": true, "text": "anything"}}`
	rec := doRequest(t, h, http.MethodPost, "/api/compare", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRegisterEmptyTranscriptReturns400(t *testing.T) {
	h, _ := newTestHandler(t)
	body := `{"transcription": {"success": true, "text": "   "}}`
	rec := doRequest(t, h, http.MethodPost, "/api/reference", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var res service.RegisterResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Code != service.CodeEmptyInput {
		t.Fatalf("code = %q, want %q", res.Code, service.CodeEmptyInput)
	}
}

func TestFailedTranscriptionReturns422(t *testing.T) {
	h, _ := newTestHandler(t)
	body := `{"transcription": {"success": false, "error": "audio unreadable"}}`
	rec := doRequest(t, h, http.MethodPost, "/api/reference", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestIndexStatsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	if rec := doRequest(t, h, http.MethodPost, "/api/reference", refBody); rec.Code != http.StatusOK {
		t.Fatalf("register status = %d", rec.Code)
	}

	rec := doRequest(t, h, http.MethodGet, "/api/index/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats index.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.VectorCount != 2 {
		t.Fatalf("vector count = %d, want 2", stats.VectorCount)
	}
}
