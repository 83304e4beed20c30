package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vbonduro/nutrilens/internal/domain"
)

// jsonOnly is appended to every prompt. ExtractJSON still copes with models
// that wrap the object in prose or a code fence.
const jsonOnly = `Respond with exactly one JSON object matching the structure above and nothing else.`

const nutritionShape = `{
  "foodName": "string",
  "servingSize": "string",
  "calories": "string",
  "macronutrients": {"protein": "string", "carbohydrates": "string", "fat": "string", "fiber": "string", "sugar": "string"},
  "micronutrients": {"sodium": "string", "potassium": "string", "calcium": "string", "iron": "string", "vitaminC": "string"},
  "healthAnalysis": {"overallRating": "string", "benefits": ["string"], "concerns": ["string"], "recommendations": ["string"]},
  "conditionWarnings": [{"condition": "string", "severity": "low|medium|high", "advice": "string"}]
}`

const recipeShape = `{
  "recipeName": "string",
  "description": "string",
  "servings": "string",
  "prepTime": "string",
  "cookTime": "string",
  "ingredients": [{"name": "string", "quantity": "string"}],
  "instructions": ["string"],
  "nutritionPerServing": {"calories": "string", "protein": "string", "carbohydrates": "string", "fat": "string", "fiber": "string", "sodium": "string"},
  "healthBenefits": ["string"],
  "conditionNotes": [{"condition": "string", "advice": "string"}]
}`

// BuildPrompt renders the instruction text sent alongside a request. For
// image requests the image itself travels as a separate part.
func BuildPrompt(req domain.AnalysisRequest) string {
	var b strings.Builder
	switch r := req.(type) {
	case domain.ImageAnalysis:
		b.WriteString("Identify the food in this photo and estimate its nutritional content for the portion shown.\n")
	case domain.NameAnalysis:
		fmt.Fprintf(&b, "Estimate the nutritional content of a typical serving of %q.\n", r.FoodName)
	case domain.RecipeRequest:
		fmt.Fprintf(&b, "Create a healthy recipe that uses these ingredients: %s.\n", strings.Join(r.Ingredients, ", "))
		b.WriteString("You may add common pantry staples.\n")
	}

	shape := nutritionShape
	if req.Type() == domain.RequestRecipe {
		shape = recipeShape
	}
	b.WriteString("\nUse this structure:\n")
	b.WriteString(shape)
	b.WriteString("\n")

	if conditions := req.Conditions(); len(conditions) > 0 {
		fmt.Fprintf(&b, "\nThe person has these health conditions: %s. ", strings.Join(conditions, ", "))
		b.WriteString("Tailor the analysis to them and flag anything they should avoid.\n")
	}
	if r, ok := req.(domain.RecipeRequest); ok && len(r.DietaryPreferences) > 0 {
		b.WriteString("\nDietary preferences:\n")
		b.WriteString(formatPreferences(r.DietaryPreferences))
	}

	b.WriteString("\n")
	b.WriteString(jsonOnly)
	return b.String()
}

func formatPreferences(prefs map[string]any) string {
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		switch v := prefs[k].(type) {
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, fmt.Sprint(p))
			}
			fmt.Fprintf(&b, "- %s: %s\n", k, strings.Join(parts, ", "))
		case []string:
			fmt.Fprintf(&b, "- %s: %s\n", k, strings.Join(v, ", "))
		default:
			fmt.Fprintf(&b, "- %s: %v\n", k, v)
		}
	}
	return b.String()
}
