package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/nutrilens/internal/db"
	"github.com/vbonduro/nutrilens/internal/domain"
	"github.com/vbonduro/nutrilens/internal/llm"
	"github.com/vbonduro/nutrilens/internal/store"
)

// stubGenerator answers every request through respond.
type stubGenerator struct {
	mu      sync.Mutex
	calls   []domain.AnalysisRequest
	respond func(req domain.AnalysisRequest) (string, error)
}

func (g *stubGenerator) Generate(_ context.Context, req domain.AnalysisRequest) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	return g.respond(req)
}

func (g *stubGenerator) Model() string { return "stub-model" }

func reply(text string) *stubGenerator {
	return &stubGenerator{respond: func(domain.AnalysisRequest) (string, error) { return text, nil }}
}

// stubPhotoStore is a minimal in-memory photostore.PhotoStore for tests.
type stubPhotoStore struct {
	mu      sync.Mutex
	saved   map[string][]byte
	saveErr error
}

func newStubPhotoStore() *stubPhotoStore {
	return &stubPhotoStore{saved: make(map[string][]byte)}
}

func (s *stubPhotoStore) Save(_ context.Context, prefix, _ string, r io.Reader) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	data, _ := io.ReadAll(r)
	key := prefix + "/photo.jpg"
	s.mu.Lock()
	s.saved[key] = data
	s.mu.Unlock()
	return key, nil
}

func (s *stubPhotoStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.saved[key]
	if !ok {
		return nil, "", errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), "image/jpeg", nil
}

func (s *stubPhotoStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.saved, key)
	s.mu.Unlock()
	return nil
}

type stubRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *stubRecorder) ObserveAnalysis(requestType, status string, _ time.Duration) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, requestType+"/"+status)
	r.mu.Unlock()
}

type testEnv struct {
	svc      *NutritionService
	photos   *stubPhotoStore
	recorder *stubRecorder
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, gen llm.Generator) *testEnv {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	logger := newTestLogger()
	handle := llm.Initialize(logger, func() (llm.Generator, error) { return gen, nil })
	env := &testEnv{photos: newStubPhotoStore(), recorder: &stubRecorder{}}
	env.svc = NewNutritionService(handle, store.NewAnalysisStore(d), env.photos, env.recorder, logger)
	env.svc.now = func() time.Time { return time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC) }
	return env
}

func TestAnalyzeFoodByNameSuccess(t *testing.T) {
	env := newTestService(t, reply(`{"foodName":"banana","calories":"105"}`))

	result := env.svc.AnalyzeFoodByName(context.Background(), "banana", []string{"diabetes"})

	assert.Equal(t, "banana", result["foodName"])
	assert.Equal(t, "105", result["calories"])
	meta := result.Metadata()
	require.NotNil(t, meta)
	assert.Equal(t, domain.StatusSuccess, meta["status"])
	assert.Equal(t, "stub-model", meta["model"])
	assert.Equal(t, "2026-05-04T10:30:00Z", meta["timestamp"])
	assert.Equal(t, []string{"diabetes"}, meta["healthConditions"])
	assert.Equal(t, "name", meta["requestType"])
	assert.NotEmpty(t, meta["id"])
	assert.Equal(t, []string{"name/success"}, env.recorder.outcomes)
}

func TestAnalyzeFoodByNameFencedResponse(t *testing.T) {
	env := newTestService(t, reply("Sure!\n```json\n{\"foodName\":\"oats\"}\n```\nEnjoy {\"x\":1}"))

	result := env.svc.AnalyzeFoodByName(context.Background(), "oats", nil)

	assert.Equal(t, "oats", result["foodName"])
	assert.NotContains(t, result, "x")
	assert.Equal(t, domain.StatusSuccess, result.Status())
}

func TestModelMetadataIsMerged(t *testing.T) {
	env := newTestService(t, reply(`{"foodName":"kiwi","analysisMetadata":{"confidence":"high","status":"bogus"}}`))

	result := env.svc.AnalyzeFoodByName(context.Background(), "kiwi", nil)

	meta := result.Metadata()
	assert.Equal(t, "high", meta["confidence"])
	assert.Equal(t, domain.StatusSuccess, meta["status"])
	assert.Equal(t, []string{}, meta["healthConditions"])
}

func TestInvocationFailureFallsBackForEveryOperation(t *testing.T) {
	gen := &stubGenerator{respond: func(domain.AnalysisRequest) (string, error) {
		return "", errors.New("deadline exceeded")
	}}
	env := newTestService(t, gen)
	ctx := context.Background()
	conditions := []string{"hypertension"}

	results := map[string]domain.Result{
		"image":  env.svc.AnalyzeFoodImage(ctx, ImageFile{Data: []byte{0xFF, 0xD8}, MimeType: "image/jpeg"}, conditions),
		"name":   env.svc.AnalyzeFoodByName(ctx, "pizza", conditions),
		"recipe": env.svc.GenerateHealthyRecipe(ctx, []string{"rice", "beans"}, conditions, nil),
	}

	for name, result := range results {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, "Analysis Failed", result["foodName"])
			meta := result.Metadata()
			assert.Equal(t, domain.StatusError, meta["status"])
			assert.Contains(t, meta["error"], "deadline exceeded")
			assert.Equal(t, []string{"hypertension"}, meta["healthConditions"])
			assert.Equal(t, name, meta["requestType"])
		})
	}
	assert.Len(t, gen.calls, 3)
}

func TestNoRetryOnInvocationFailure(t *testing.T) {
	gen := &stubGenerator{respond: func(domain.AnalysisRequest) (string, error) {
		return "", errors.New("unavailable")
	}}
	env := newTestService(t, gen)

	env.svc.AnalyzeFoodByName(context.Background(), "pizza", nil)

	assert.Len(t, gen.calls, 1)
}

func TestDegradedHandleFallsBack(t *testing.T) {
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	logger := newTestLogger()
	handle := llm.Initialize(logger, func() (llm.Generator, error) {
		return nil, errors.New("no credentials for vertex-ai")
	})
	svc := NewNutritionService(handle, store.NewAnalysisStore(d), nil, nil, logger)

	result := svc.GenerateHealthyRecipe(context.Background(), []string{"tofu"}, nil, map[string]any{"vegan": true})

	assert.Equal(t, domain.StatusError, result.Status())
	assert.Equal(t, "Recipe Generation Failed", result["recipeName"])
	assert.Equal(t, "unavailable", result.Metadata()["model"])
	assert.Contains(t, result.Metadata()["error"], "not initialized")
}

func TestUnparseableResponseFallsBack(t *testing.T) {
	env := newTestService(t, reply("I cannot help with that."))

	result := env.svc.AnalyzeFoodByName(context.Background(), "mystery", nil)

	assert.Equal(t, domain.StatusError, result.Status())
	assert.Equal(t, ErrUnparseableResponse.Error(), result.Metadata()["error"])
	assert.Equal(t, []string{"name/error"}, env.recorder.outcomes)
}

func TestPanickingGeneratorFallsBack(t *testing.T) {
	env := newTestService(t, &stubGenerator{respond: func(domain.AnalysisRequest) (string, error) {
		panic("nil candidate")
	}})

	var result domain.Result
	require.NotPanics(t, func() {
		result = env.svc.AnalyzeFoodByName(context.Background(), "apple", nil)
	})
	assert.Equal(t, domain.StatusError, result.Status())
	assert.Contains(t, result.Metadata()["error"], "nil candidate")
}

func TestConcurrentRequestsAreIndependent(t *testing.T) {
	gen := &stubGenerator{respond: func(req domain.AnalysisRequest) (string, error) {
		name := req.(domain.NameAnalysis).FoodName
		if name == "bad" {
			return "", errors.New("boom")
		}
		return `{"foodName":"` + name + `"}`, nil
	}}
	env := newTestService(t, gen)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]domain.Result, 2)
	for i, name := range []string{"apple", "bad"} {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = env.svc.AnalyzeFoodByName(ctx, name, []string{name + "-condition"})
		}(i, name)
	}
	wg.Wait()

	assert.Equal(t, "apple", results[0]["foodName"])
	assert.Equal(t, domain.StatusSuccess, results[0].Status())
	assert.Equal(t, []string{"apple-condition"}, results[0].Metadata()["healthConditions"])

	assert.Equal(t, domain.StatusError, results[1].Status())
	assert.Equal(t, []string{"bad-condition"}, results[1].Metadata()["healthConditions"])
}

func TestRequestsCarryNormalizedInput(t *testing.T) {
	gen := reply(`{"recipeName":"Bowl"}`)
	env := newTestService(t, gen)

	env.svc.GenerateHealthyRecipe(context.Background(),
		[]string{" quinoa ", "", "kale"},
		[]string{" Celiac ", "celiac", "", "gout"},
		map[string]any{"maxCalories": 500})

	require.Len(t, gen.calls, 1)
	req := gen.calls[0].(domain.RecipeRequest)
	assert.Equal(t, []string{"quinoa", "kale"}, req.Ingredients)
	assert.Equal(t, []string{"Celiac", "gout"}, req.HealthConditions)
	assert.Equal(t, 500, req.DietaryPreferences["maxCalories"])
}

func TestAnalyzeFoodImageStoresPhotoAndRecord(t *testing.T) {
	env := newTestService(t, reply(`{"foodName":"salad"}`))
	ctx := context.Background()
	image := []byte{0xFF, 0xD8, 0xFF}

	result := env.svc.AnalyzeFoodImage(ctx, ImageFile{Data: image, MimeType: "image/jpeg"}, nil)
	id, _ := result.Metadata()["id"].(string)
	require.NotEmpty(t, id)

	rec, err := env.svc.GetAnalysis(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.RequestImage, rec.RequestType)
	assert.Equal(t, domain.StatusSuccess, rec.Status)
	assert.Equal(t, "salad", rec.Result["foodName"])
	assert.NotEmpty(t, rec.PhotoKey)

	rc, mimeType, err := env.svc.GetPhoto(ctx, id)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, image, data)
	assert.Equal(t, "image/jpeg", mimeType)
}

func TestPhotoSaveFailureStillReturnsResult(t *testing.T) {
	env := newTestService(t, reply(`{"foodName":"soup"}`))
	env.photos.saveErr = errors.New("disk full")
	ctx := context.Background()

	result := env.svc.AnalyzeFoodImage(ctx, ImageFile{Data: []byte{1}, MimeType: "image/png"}, nil)
	assert.Equal(t, domain.StatusSuccess, result.Status())

	id := result.Metadata()["id"].(string)
	_, _, err := env.svc.GetPhoto(ctx, id)
	assert.ErrorIs(t, err, ErrPhotoNotFound)
}

func TestGetPhotoForNameAnalysis(t *testing.T) {
	env := newTestService(t, reply(`{"foodName":"tea"}`))
	ctx := context.Background()

	result := env.svc.AnalyzeFoodByName(ctx, "tea", nil)

	_, _, err := env.svc.GetPhoto(ctx, result.Metadata()["id"].(string))
	assert.ErrorIs(t, err, ErrPhotoNotFound)
	_, _, err = env.svc.GetPhoto(ctx, "unknown")
	assert.ErrorIs(t, err, ErrPhotoNotFound)
}

func TestListAnalyses(t *testing.T) {
	env := newTestService(t, reply(`{"foodName":"x"}`))
	ctx := context.Background()

	env.svc.AnalyzeFoodByName(ctx, "first", nil)
	env.svc.AnalyzeFoodByName(ctx, "second", nil)

	records, err := env.svc.ListAnalyses(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestDeleteAnalysis(t *testing.T) {
	env := newTestService(t, reply(`{"foodName":"toast"}`))
	ctx := context.Background()

	result := env.svc.AnalyzeFoodImage(ctx, ImageFile{Data: []byte{1, 2}, MimeType: "image/jpeg"}, nil)
	id := result.Metadata()["id"].(string)
	require.Len(t, env.photos.saved, 1)

	require.NoError(t, env.svc.DeleteAnalysis(ctx, id))
	assert.Empty(t, env.photos.saved)

	rec, err := env.svc.GetAnalysis(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.ErrorIs(t, env.svc.DeleteAnalysis(ctx, id), ErrAnalysisNotFound)
}

func TestNormalizeConditions(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, nil},
		{"blank only", []string{" ", ""}, nil},
		{"dedupe keeps first spelling", []string{"Diabetes", "diabetes", "DIABETES"}, []string{"Diabetes"}},
		{"order preserved", []string{"gout", " lactose intolerance "}, []string{"gout", "lactose intolerance"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeConditions(tt.in))
		})
	}
}
