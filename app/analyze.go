// Package app orchestrates food-medication interaction analysis.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ZakirShahzad/allergy-med-scan-guide/app/config"
	"github.com/ZakirShahzad/allergy-med-scan-guide/app/models"

	"github.com/gin-gonic/gin"
)

// Seams for handler tests; production wiring stays on the DB-backed
// implementations.
var (
	checkScanUsage      = checkScanUsageDB
	commitScanUsage     = commitScanUsageDB
	listMedications     = listMedicationsDB
	saveAnalysisHistory = saveAnalysisHistoryDB
)

const scanLimitMessage = "You have reached your monthly scan limit. Please upgrade to continue scanning."

// AnalyzeMedication handles POST /analyze-medication.
//
// The quota check is deliberately best-effort: when it errors we log
// and continue rather than blocking the analysis. The real counter
// commit happens only after a product was positively identified.
func AnalyzeMedication(c *gin.Context) {
	var req models.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failAnalysis(c, "invalid request body")
		return
	}

	if req.UserID == "" {
		failAnalysis(c, "User authentication required")
		return
	}
	if req.ImageData == "" && req.ProductName == "" {
		failAnalysis(c, "Either image data or product name is required")
		return
	}
	if req.ImageData != "" && !strings.HasPrefix(req.ImageData, "data:image/") {
		failAnalysis(c, "Invalid image data format provided")
		return
	}

	ctx := c.Request.Context()

	usage, err := checkScanUsage(ctx, req.UserID)
	if err != nil {
		log.Printf("scan usage check failed for user=%s, continuing: %v", req.UserID, err)
	} else if usage.ScansRemaining == 0 {
		// Capped tiers report 0 when spent; unlimited tiers report -1
		// and never hit this branch.
		c.JSON(http.StatusTooManyRequests, models.ScanLimitResponse{
			Error:          models.ScanLimitReached,
			Message:        scanLimitMessage,
			ScansRemaining: 0,
			IsSubscribed:   usage.IsSubscribed,
		})
		return
	}

	meds, err := listMedications(ctx, req.UserID)
	if err != nil {
		log.Printf("medications fetch failed for user=%s, continuing without: %v", req.UserID, err)
		meds = nil
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		failAnalysis(c, "failed to load config")
		return
	}

	if cfg.OpenAI.APIKey == "" {
		c.JSON(http.StatusOK, demoResult(req, meds))
		return
	}

	if len(meds) == 0 {
		c.JSON(http.StatusOK, noMedicationsResult(req))
		return
	}

	prompt := buildAnalysisPrompt(meds, req.ProductName, req.ImageData != "")

	text, err := callOpenAI(ctx, cfg.OpenAI, prompt, req.ImageData)
	if err != nil {
		log.Printf("openai call failed for user=%s: %v", req.UserID, err)
		c.JSON(http.StatusOK, fallbackResult(req.ProductName, meds))
		return
	}

	raw, err := parseAnalysisResponse(text)
	if err != nil {
		log.Printf("openai response unusable for user=%s: %v", req.UserID, err)
		c.JSON(http.StatusOK, fallbackResult(req.ProductName, meds))
		return
	}

	result := normalizeAnalysis(raw)
	ident := models.ClassifyProduct(result.ProductName)

	if ident.Identified {
		if err := commitScanUsage(ctx, req.UserID); err != nil {
			log.Printf("failed to increment scan usage for user=%s: %v", req.UserID, err)
		}
		if req.AnalysisType != "" {
			saveHistoryBestEffort(ctx, req, result)
		}
	}

	result.UserMedications = medicationNames(meds)
	result.Timestamp = time.Now().UTC()
	c.JSON(http.StatusOK, result)
}

// rawAnalysis mirrors the loosely typed JSON the model returns.
type rawAnalysis struct {
	ProductName        string `json:"productName"`
	CompatibilityScore any    `json:"compatibilityScore"`
	InteractionLevel   string `json:"interactionLevel"`
	Pros               any    `json:"pros"`
	Cons               any    `json:"cons"`
	Alternatives       any    `json:"alternatives"`
}

func parseAnalysisResponse(text string) (rawAnalysis, error) {
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &raw); err != nil {
		return rawAnalysis{}, err
	}
	if raw.ProductName == "" || raw.InteractionLevel == "" {
		return rawAnalysis{}, errors.New("missing required fields in AI response")
	}
	return raw, nil
}

// normalizeAnalysis coerces the model's loose JSON into the response
// contract: bare strings become single-element arrays, a missing or
// non-numeric score defaults to 75 for identified products only, and a
// low-scoring identified product always carries at least one
// alternative.
func normalizeAnalysis(raw rawAnalysis) models.AnalysisResult {
	result := models.AnalysisResult{
		ProductName:        raw.ProductName,
		CompatibilityScore: coerceScore(raw.CompatibilityScore),
		InteractionLevel:   models.InteractionLevel(raw.InteractionLevel),
		Pros:               coerceStringList(raw.Pros),
		Cons:               coerceStringList(raw.Cons),
		Alternatives:       coerceStringList(raw.Alternatives),
	}

	ident := models.ClassifyProduct(result.ProductName)
	if result.CompatibilityScore == nil && ident.Identified {
		score := models.DefaultIdentifiedScore
		result.CompatibilityScore = &score
	}
	if ident.Identified && result.CompatibilityScore != nil &&
		*result.CompatibilityScore < 60 && len(result.Alternatives) == 0 {
		result.Alternatives = []string{"Consult your pharmacist for safer alternatives"}
	}
	return result
}

func coerceScore(v any) *int {
	switch n := v.(type) {
	case float64:
		score := int(n)
		return &score
	case json.Number:
		if f, err := n.Float64(); err == nil {
			score := int(f)
			return &score
		}
	}
	return nil
}

func coerceStringList(v any) []string {
	switch val := v.(type) {
	case nil:
		return []string{}
	case string:
		if val == "" {
			return []string{}
		}
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

func noMedicationsResult(req models.AnalyzeRequest) models.AnalysisResult {
	score := 85
	return models.AnalysisResult{
		ProductName:        productNameOr(req.ProductName, "Product from image"),
		CompatibilityScore: &score,
		InteractionLevel:   models.InteractionNeutral,
		Pros:               []string{"No current medications to check interactions with"},
		Cons:               []string{"Add your medications to get personalized food-medication interaction analysis"},
		Alternatives:       []string{},
		UserMedications:    []string{},
		Timestamp:          time.Now().UTC(),
		Note:               "No medications to analyze interactions with",
	}
}

func fallbackResult(productName string, meds []models.Medication) models.AnalysisResult {
	return models.AnalysisResult{
		ProductName:        productNameOr(productName, models.AnalysisUnavailable),
		CompatibilityScore: nil,
		InteractionLevel:   models.InteractionNeutral,
		Pros:               []string{},
		Cons: []string{
			"Analysis temporarily unavailable - please try again later",
			"Consult with a pharmacist about food-drug interactions",
		},
		Alternatives:    []string{},
		UserMedications: medicationNames(meds),
		Timestamp:       time.Now().UTC(),
		Note:            "Analysis temporarily unavailable due to service error",
	}
}

// demoResult keeps local development working without an OpenAI key.
func demoResult(req models.AnalyzeRequest, meds []models.Medication) models.AnalysisResult {
	name := productNameOr(req.ProductName, "Demo Product")
	if len(meds) == 0 {
		score := 85
		return models.AnalysisResult{
			ProductName:        name,
			CompatibilityScore: &score,
			InteractionLevel:   models.InteractionNeutral,
			Pros:               []string{"No medications to check interactions with"},
			Cons:               []string{"Add your medications to get personalized interaction analysis"},
			Alternatives:       []string{},
			UserMedications:    []string{},
			Timestamp:          time.Now().UTC(),
			Note:               "Please add your medications for personalized analysis",
		}
	}
	score := models.DefaultIdentifiedScore
	return models.AnalysisResult{
		ProductName:        name,
		CompatibilityScore: &score,
		InteractionLevel:   models.InteractionNeutral,
		Pros:               []string{"Demo analysis - configure OpenAI API key for detailed results"},
		Cons:               []string{"Limited analysis available for your medications without API access"},
		Alternatives:       []string{},
		UserMedications:    medicationNames(meds),
		Timestamp:          time.Now().UTC(),
		Note:               "Demo response - configure OpenAI API key for real analysis",
	}
}

func saveHistoryBestEffort(ctx context.Context, req models.AnalyzeRequest, result models.AnalysisResult) {
	err := saveAnalysisHistory(ctx, models.AnalysisHistory{
		UserID:             req.UserID,
		ProductName:        result.ProductName,
		AnalysisType:       req.AnalysisType,
		CompatibilityScore: result.CompatibilityScore,
		InteractionLevel:   string(result.InteractionLevel),
		Warnings:           result.Cons,
		Recommendations:    result.Pros,
	})
	if err != nil {
		log.Printf("failed to save analysis history for user=%s: %v", req.UserID, err)
	}
}

func productNameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

func failAnalysis(c *gin.Context, details string) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":     "Analysis failed",
		"details":   details,
		"timestamp": time.Now().UTC(),
	})
}
