package domain

import "time"

// RequestType identifies which analysis variant produced a result.
type RequestType string

const (
	RequestImage  RequestType = "image"
	RequestName   RequestType = "name"
	RequestRecipe RequestType = "recipe"
)

// AnalysisRequest is implemented by ImageAnalysis, NameAnalysis and RecipeRequest.
type AnalysisRequest interface {
	Type() RequestType
	Conditions() []string
}

type ImageAnalysis struct {
	Image            []byte
	MimeType         string
	HealthConditions []string
}

func (r ImageAnalysis) Type() RequestType    { return RequestImage }
func (r ImageAnalysis) Conditions() []string { return r.HealthConditions }

type NameAnalysis struct {
	FoodName         string
	HealthConditions []string
}

func (r NameAnalysis) Type() RequestType    { return RequestName }
func (r NameAnalysis) Conditions() []string { return r.HealthConditions }

type RecipeRequest struct {
	Ingredients        []string
	HealthConditions   []string
	DietaryPreferences map[string]any
}

func (r RecipeRequest) Type() RequestType    { return RequestRecipe }
func (r RecipeRequest) Conditions() []string { return r.HealthConditions }

// MetadataKey is the Result field every analysis carries, successful or not.
const MetadataKey = "analysisMetadata"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the structured nutrition or recipe record returned to callers.
type Result map[string]any

// Metadata returns the analysisMetadata block, or nil if absent.
func (r Result) Metadata() map[string]any {
	m, _ := r[MetadataKey].(map[string]any)
	return m
}

// Status returns analysisMetadata.status, or "" when missing.
func (r Result) Status() string {
	s, _ := r.Metadata()["status"].(string)
	return s
}

// AnalysisRecord is a persisted analysis outcome.
type AnalysisRecord struct {
	ID          string
	RequestType RequestType
	Subject     string
	Status      string
	Model       string
	PhotoKey    string
	MimeType    string
	Result      Result
	CreatedAt   time.Time
}
