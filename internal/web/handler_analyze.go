package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vbonduro/nutrilens/internal/service"
)

const (
	maxPhotoSize = 20 * 1024 * 1024 // 20 MB
	maxJSONBody  = 1 * 1024 * 1024
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// allowedImageTypes is the set of MIME types accepted for uploaded photos.
// net/http.DetectContentType handles JPEG, PNG, and GIF via magic-byte
// sniffing. WebP and HEIC have no stdlib signature and are checked separately.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// heicBrands are ISO-BMFF major brands used by HEIC/HEIF phone photos.
var heicBrands = map[string]string{
	"heic": "image/heic",
	"heix": "image/heic",
	"hevc": "image/heic",
	"mif1": "image/heif",
	"msf1": "image/heif",
}

// heicMIME inspects the ftyp box at offset 4.
func heicMIME(data []byte) (string, bool) {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return "", false
	}
	mime, ok := heicBrands[string(data[8:12])]
	return mime, ok
}

// allowedImageMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func allowedImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	if mime, ok := heicMIME(data); ok {
		return mime, true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

type analyzeNameRequest struct {
	FoodName         string   `json:"foodName"         validate:"required,max=200"`
	HealthConditions []string `json:"healthConditions" validate:"max=20,dive,max=100"`
}

type recipeRequest struct {
	Ingredients        []string       `json:"ingredients"        validate:"required,min=1,max=50,dive,required,max=100"`
	HealthConditions   []string       `json:"healthConditions"   validate:"max=20,dive,max=100"`
	DietaryPreferences map[string]any `json:"dietaryPreferences" validate:"max=30"`
}

func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoSize+1024*1024)
	if err := r.ParseMultipartForm(maxPhotoSize); err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer closeWithLog(file, "upload file", s.logger)

	imageData, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read file")
		s.logger.Error("read upload failed", "error", err)
		return
	}

	mimeType, ok := allowedImageMIME(imageData)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unsupported image format")
		return
	}

	conditions := splitConditions(r.MultipartForm.Value["healthConditions"])
	if err := validate.Var(conditions, "max=20,dive,max=100"); err != nil {
		s.writeError(w, http.StatusBadRequest, "healthConditions failed validation")
		return
	}

	// Detached so the analysis and its history record complete even if the
	// client disconnects.
	result := s.service.AnalyzeFoodImage(context.WithoutCancel(r.Context()),
		service.ImageFile{Data: imageData, MimeType: mimeType}, conditions)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnalyzeName(w http.ResponseWriter, r *http.Request) {
	var req analyzeNameRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.FoodName) == "" {
		s.writeError(w, http.StatusBadRequest, "foodName is required")
		return
	}

	result := s.service.AnalyzeFoodByName(context.WithoutCancel(r.Context()), req.FoodName, req.HealthConditions)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGenerateRecipe(w http.ResponseWriter, r *http.Request) {
	var req recipeRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	result := s.service.GenerateHealthyRecipe(context.WithoutCancel(r.Context()),
		req.Ingredients, req.HealthConditions, req.DietaryPreferences)
	s.writeJSON(w, http.StatusOK, result)
}

// decodeAndValidate writes a 400 and returns false when the body is not a
// single valid JSON object of the target shape.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage renders the first failing field, e.g.
// "ingredients failed min validation".
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("%s failed %s validation", verrs[0].Field(), verrs[0].Tag())
	}
	return "invalid request"
}

// splitConditions accepts repeated form fields as well as one comma-separated
// value.
func splitConditions(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
