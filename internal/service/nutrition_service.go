package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/nutrilens/internal/domain"
	"github.com/vbonduro/nutrilens/internal/llm"
	"github.com/vbonduro/nutrilens/internal/photostore"
)

// ErrPhotoNotFound is returned by GetPhoto when the analysis is unknown or
// has no stored photo.
var ErrPhotoNotFound = errors.New("photo not found")

// ErrAnalysisNotFound is returned by DeleteAnalysis for an unknown id.
var ErrAnalysisNotFound = errors.New("analysis not found")

// modelInvoker is the subset of *llm.Handle that NutritionService requires.
type modelInvoker interface {
	Invoke(ctx context.Context, req domain.AnalysisRequest) (string, error)
	Model() string
}

// analysisRepository is the subset of store.AnalysisStore that NutritionService requires.
type analysisRepository interface {
	Create(ctx context.Context, rec *domain.AnalysisRecord) error
	GetByID(ctx context.Context, id string) (*domain.AnalysisRecord, error)
	List(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error)
	Delete(ctx context.Context, id string) error
}

// outcomeRecorder is the subset of *metrics.Metrics that NutritionService requires.
type outcomeRecorder interface {
	ObserveAnalysis(requestType, status string, elapsed time.Duration)
}

// ImageFile is an uploaded food photo.
type ImageFile struct {
	Data     []byte
	MimeType string
}

type NutritionService struct {
	model    modelInvoker
	analyses analysisRepository
	photoStg photostore.PhotoStore
	metrics  outcomeRecorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewNutritionService(
	model modelInvoker,
	analyses analysisRepository,
	photoStg photostore.PhotoStore,
	metrics outcomeRecorder,
	logger *slog.Logger,
) *NutritionService {
	return &NutritionService{
		model:    model,
		analyses: analyses,
		photoStg: photoStg,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// AnalyzeFoodImage estimates nutrition for the food in a photo. It always
// returns a Result; failures produce a fallback record.
func (s *NutritionService) AnalyzeFoodImage(ctx context.Context, image ImageFile, healthConditions []string) domain.Result {
	req := domain.ImageAnalysis{
		Image:            image.Data,
		MimeType:         image.MimeType,
		HealthConditions: normalizeConditions(healthConditions),
	}
	return s.analyze(ctx, req, "photo", &image)
}

// AnalyzeFoodByName estimates nutrition for a named food.
func (s *NutritionService) AnalyzeFoodByName(ctx context.Context, foodName string, healthConditions []string) domain.Result {
	req := domain.NameAnalysis{
		FoodName:         strings.TrimSpace(foodName),
		HealthConditions: normalizeConditions(healthConditions),
	}
	return s.analyze(ctx, req, req.FoodName, nil)
}

// GenerateHealthyRecipe asks the model for a recipe built from ingredients.
func (s *NutritionService) GenerateHealthyRecipe(ctx context.Context, ingredients []string, healthConditions []string, dietaryPreferences map[string]any) domain.Result {
	cleaned := make([]string, 0, len(ingredients))
	for _, ing := range ingredients {
		if ing = strings.TrimSpace(ing); ing != "" {
			cleaned = append(cleaned, ing)
		}
	}
	req := domain.RecipeRequest{
		Ingredients:        cleaned,
		HealthConditions:   normalizeConditions(healthConditions),
		DietaryPreferences: dietaryPreferences,
	}
	return s.analyze(ctx, req, strings.Join(cleaned, ", "), nil)
}

func (s *NutritionService) analyze(ctx context.Context, req domain.AnalysisRequest, subject string, photo *ImageFile) domain.Result {
	start := s.now()
	id := uuid.NewString()
	s.logger.Info("analysis started", "analysis_id", id, "request_type", req.Type(), "subject", subject)

	result := s.run(ctx, req)
	result.Metadata()["id"] = id

	status := result.Status()
	elapsed := s.now().Sub(start)
	s.logger.Info("analysis complete", "analysis_id", id, "request_type", req.Type(), "status", status, "duration_ms", elapsed.Milliseconds())
	if s.metrics != nil {
		s.metrics.ObserveAnalysis(string(req.Type()), status, elapsed)
	}

	s.record(ctx, id, req, subject, result, photo)
	return result
}

// run converts every failure, including a panicking backend, into a
// fallback result.
func (s *NutritionService) run(ctx context.Context, req domain.AnalysisRequest) (result domain.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("model backend panicked", "request_type", req.Type(), "panic", r)
			result = BuildFallback(req.Type(), fmt.Errorf("internal error: %v", r), req.Conditions(), s.model.Model(), s.now())
		}
	}()

	text, err := s.model.Invoke(ctx, req)
	if err != nil {
		s.logger.Error("model invocation failed", "request_type", req.Type(), "error", err)
		return BuildFallback(req.Type(), err, req.Conditions(), s.model.Model(), s.now())
	}

	parsed := llm.ExtractJSON(text)
	if parsed == nil {
		s.logger.Warn("model response held no usable json", "request_type", req.Type(), "response_bytes", len(text))
		return BuildFallback(req.Type(), ErrUnparseableResponse, req.Conditions(), s.model.Model(), s.now())
	}

	return withMetadata(parsed, req, s.model.Model(), s.now())
}

// withMetadata adds analysisMetadata to a parsed model record. Keys the model
// put in its own analysisMetadata survive unless they collide with ours.
func withMetadata(parsed map[string]any, req domain.AnalysisRequest, model string, now time.Time) domain.Result {
	meta := map[string]any{}
	if existing, ok := parsed[domain.MetadataKey].(map[string]any); ok {
		for k, v := range existing {
			meta[k] = v
		}
	}
	conditions := req.Conditions()
	if conditions == nil {
		conditions = []string{}
	}
	meta["timestamp"] = now.UTC().Format(time.RFC3339)
	meta["model"] = model
	meta["status"] = domain.StatusSuccess
	meta["healthConditions"] = conditions
	meta["requestType"] = string(req.Type())

	result := domain.Result(parsed)
	result[domain.MetadataKey] = meta
	return result
}

// record persists the outcome. Storage failures are logged and never change
// what the caller receives.
func (s *NutritionService) record(ctx context.Context, id string, req domain.AnalysisRequest, subject string, result domain.Result, photo *ImageFile) {
	if s.analyses == nil {
		return
	}
	rec := &domain.AnalysisRecord{
		ID:          id,
		RequestType: req.Type(),
		Subject:     subject,
		Status:      result.Status(),
		Model:       s.model.Model(),
		Result:      result,
	}

	if photo != nil && s.photoStg != nil && len(photo.Data) > 0 {
		key, err := s.photoStg.Save(ctx, "analysis_"+id, photo.MimeType, bytes.NewReader(photo.Data))
		if err != nil {
			s.logger.Error("failed to save photo", "analysis_id", id, "error", err)
		} else {
			s.logger.Debug("photo saved", "analysis_id", id, "storage_key", key)
			rec.PhotoKey = key
			rec.MimeType = photo.MimeType
		}
	}

	if err := s.analyses.Create(ctx, rec); err != nil {
		s.logger.Error("failed to record analysis", "analysis_id", id, "error", err)
		if rec.PhotoKey != "" {
			if stgErr := s.photoStg.Delete(ctx, rec.PhotoKey); stgErr != nil {
				s.logger.Error("failed to roll back photo after record error", "analysis_id", id, "error", stgErr)
			}
		}
	}
}

// ListAnalyses returns the most recent analyses, newest first.
func (s *NutritionService) ListAnalyses(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	if s.analyses == nil {
		return []*domain.AnalysisRecord{}, nil
	}
	return s.analyses.List(ctx, limit)
}

// GetAnalysis returns nil, nil when id is unknown.
func (s *NutritionService) GetAnalysis(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	if s.analyses == nil {
		return nil, nil
	}
	return s.analyses.GetByID(ctx, id)
}

// GetPhoto opens the photo stored with an image analysis.
func (s *NutritionService) GetPhoto(ctx context.Context, id string) (io.ReadCloser, string, error) {
	rec, err := s.GetAnalysis(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get analysis: %w", err)
	}
	if rec == nil || rec.PhotoKey == "" || s.photoStg == nil {
		return nil, "", ErrPhotoNotFound
	}
	return s.photoStg.Get(ctx, rec.PhotoKey)
}

// DeleteAnalysis removes the record and then its photo. A missing photo file
// is logged, not returned.
func (s *NutritionService) DeleteAnalysis(ctx context.Context, id string) error {
	rec, err := s.GetAnalysis(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get analysis: %w", err)
	}
	if rec == nil {
		return ErrAnalysisNotFound
	}

	if err := s.analyses.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}

	if rec.PhotoKey != "" && s.photoStg != nil {
		if err := s.photoStg.Delete(ctx, rec.PhotoKey); err != nil {
			s.logger.Error("failed to delete photo file", "analysis_id", id, "storage_key", rec.PhotoKey, "error", err)
		}
	}
	return nil
}

// normalizeConditions trims, drops blanks and de-duplicates case-insensitively,
// keeping the first spelling seen.
func normalizeConditions(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
