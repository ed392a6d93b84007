package app

import (
	"fmt"
	"strings"

	"github.com/ZakirShahzad/allergy-med-scan-guide/app/models"
)

// The rubric text is identical for the image and text-search variants;
// only the identification instruction differs.
const scoringRubric = `SCORING CRITERIA (based on medication interaction safety only):
- 90-100: No interaction concerns, may provide nutritional benefits for condition
- 80-89: Safe from medication perspective, no significant interactions
- 70-79: Generally safe, minor timing considerations may apply
- 60-69: Caution advised, timing or quantity may matter
- 50-59: Moderate interaction risk, monitoring recommended
- 30-49: Significant interaction, careful monitoring needed
- 0-29: High interaction risk, avoid or consult healthcare provider`

// medicationProfile renders the full profile, one medication per line.
func medicationProfile(meds []models.Medication) string {
	lines := make([]string, 0, len(meds))
	for _, med := range meds {
		details := med.Name
		if med.Dosage != "" {
			details += fmt.Sprintf(" (%s)", med.Dosage)
		}
		if med.Frequency != "" {
			details += " taken " + med.Frequency
		}
		if med.Purpose != "" {
			details += " for " + med.Purpose
		}
		if med.Notes != "" {
			details += " - Additional notes: " + med.Notes
		}
		lines = append(lines, details)
	}
	return strings.Join(lines, "\n")
}

func medicationNames(meds []models.Medication) []string {
	names := make([]string, 0, len(meds))
	for _, med := range meds {
		names = append(names, med.Name)
	}
	return names
}

// buildAnalysisPrompt produces the clinical-pharmacist prompt for either
// an image scan (hasImage) or a product-name lookup.
func buildAnalysisPrompt(meds []models.Medication, productName string, hasImage bool) string {
	profile := medicationProfile(meds)

	var b strings.Builder
	if hasImage {
		b.WriteString("You are a clinical pharmacist with expertise in food-drug interactions. Analyze this food/product image for potential interactions with the following medications:\n\n")
	} else {
		fmt.Fprintf(&b, "You are a clinical pharmacist with expertise in food-drug interactions. Analyze the food/product %q for potential interactions with the following medications:\n\n", productName)
	}

	b.WriteString("PATIENT MEDICATION PROFILE:\n")
	b.WriteString(profile)
	b.WriteString("\n\nANALYSIS REQUIREMENTS:\n")

	if hasImage {
		fmt.Fprintf(&b, "1. First identify the food/product in the image. If unclear or not a real food/product, return productName: %q and compatibilityScore: null.\n", models.ProductNotRecognized)
		b.WriteString(`2. For identified foods/products, research and consider:
   - Known food-drug interactions based on clinical evidence
`)
	} else {
		fmt.Fprintf(&b, "1. First determine if %q is a real, recognizable food or product. If it's gibberish, nonsense, or not a real food/product, respond with productName: %q and compatibilityScore: null.\n", productName, models.ProductNotRecognized)
		fmt.Fprintf(&b, `2. For real foods/products, research and consider:
   - Known food-drug interactions with %s based on clinical evidence
`, productName)
	}

	b.WriteString(`   - Effects on medication absorption (timing, bioavailability)
   - Potential for increased/decreased medication effects
   - Risk of side effect amplification
   - Nutritional impact on the medical condition being treated
3. Consider dosage and frequency when assessing interaction severity
4. Account for the specific medical purposes when making assessments
5. Be factual and evidence-based - only mention what is clinically relevant

`)
	b.WriteString(scoringRubric)
	b.WriteString(`

IMPORTANT: Focus only on medication safety - do not make general health/nutrition judgments.

If the compatibility score is below 60 (high interaction risk), MUST provide 2-3 alternative products that would be safer with the patient's medications.

Return ONLY valid JSON with:
- productName: string
- compatibilityScore: number (0-100) or null if unidentifiable
- interactionLevel: "positive" | "neutral" | "negative"
- pros: array of positive aspects regarding medication interactions
- cons: array of concerns or precautions regarding medication interactions
- alternatives: array of 2-3 safer alternative products (only if score < 60, otherwise empty array)`)

	return b.String()
}
