package service

import (
	"errors"
	"time"

	"github.com/vbonduro/nutrilens/internal/domain"
)

// ErrUnparseableResponse is recorded when the model answered but no JSON
// object could be extracted from its text.
var ErrUnparseableResponse = errors.New("model response did not contain a valid JSON object")

// BuildFallback returns the placeholder record served whenever an analysis
// cannot be completed. It has the same top-level shape as a successful
// result; analysisMetadata.status is "error".
func BuildFallback(requestType domain.RequestType, cause error, healthConditions []string, model string, now time.Time) domain.Result {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	conditions := healthConditions
	if conditions == nil {
		conditions = []string{}
	}

	result := domain.Result{
		"foodName":    "Analysis Failed",
		"status":      domain.StatusError,
		"error":       msg,
		"servingSize": "Unknown",
		"calories":    "0",
		"macronutrients": map[string]any{
			"protein":       "0g",
			"carbohydrates": "0g",
			"fat":           "0g",
			"fiber":         "0g",
			"sugar":         "0g",
		},
		"micronutrients": map[string]any{},
		"healthAnalysis": map[string]any{
			"overallRating":   "unknown",
			"benefits":        []any{},
			"concerns":        []any{"The analysis could not be completed."},
			"recommendations": []any{"Please try again later."},
		},
		"conditionWarnings": []any{},
	}

	if requestType == domain.RequestRecipe {
		result["recipeName"] = "Recipe Generation Failed"
		result["description"] = "A recipe could not be generated."
		result["ingredients"] = []any{}
		result["instructions"] = []any{}
		result["nutritionPerServing"] = map[string]any{}
		result["healthBenefits"] = []any{}
	}

	result[domain.MetadataKey] = map[string]any{
		"timestamp":        now.UTC().Format(time.RFC3339),
		"model":            model,
		"status":           domain.StatusError,
		"error":            msg,
		"healthConditions": conditions,
		"requestType":      string(requestType),
	}
	return result
}
