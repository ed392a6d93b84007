package models

import "time"

type InteractionLevel string

const (
	InteractionPositive InteractionLevel = "positive"
	InteractionNeutral  InteractionLevel = "neutral"
	InteractionNegative InteractionLevel = "negative"
)

// Wire values the mobile client keys off when a product could not be
// identified. They must round-trip byte-for-byte.
const (
	ProductNotRecognized   = "Sorry, we couldn't catch that"
	AnalysisUnavailable    = "Unable to analyze at this time"
	DefaultIdentifiedScore = 75
)

// Identification is the typed form of the two sentinel product names.
type Identification struct {
	Identified bool
	Reason     string
}

// ClassifyProduct maps a product name onto an identification outcome.
// An empty name counts as unidentified.
func ClassifyProduct(name string) Identification {
	switch name {
	case "", ProductNotRecognized, AnalysisUnavailable:
		return Identification{Identified: false, Reason: name}
	}
	return Identification{Identified: true}
}

// Medication is one entry of a user's medication profile.
type Medication struct {
	ID        int64  `json:"id,omitempty"`
	Name      string `json:"medication_name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Purpose   string `json:"purpose,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// AnalysisResult is the normalized response for one analysis request.
// A nil CompatibilityScore means "do not grade", which is distinct
// from a score of zero.
type AnalysisResult struct {
	ProductName        string           `json:"productName"`
	CompatibilityScore *int             `json:"compatibilityScore"`
	InteractionLevel   InteractionLevel `json:"interactionLevel"`
	Pros               []string         `json:"pros"`
	Cons               []string         `json:"cons"`
	Alternatives       []string         `json:"alternatives"`
	UserMedications    []string         `json:"userMedications"`
	Timestamp          time.Time        `json:"timestamp"`
	Note               string           `json:"note,omitempty"`
}

// ScanUsage is what the quota check reports before an analysis runs.
type ScanUsage struct {
	ScansRemaining int  `json:"scans_remaining"`
	IsSubscribed   bool `json:"is_subscribed"`
}

// AnalysisHistory is the record persisted after an identified analysis.
type AnalysisHistory struct {
	ID                 int64     `json:"id,omitempty"`
	UserID             string    `json:"user_id"`
	ProductName        string    `json:"product_name"`
	AnalysisType       string    `json:"analysis_type"`
	CompatibilityScore *int      `json:"compatibility_score"`
	InteractionLevel   string    `json:"interaction_level"`
	Warnings           []string  `json:"warnings"`
	Recommendations    []string  `json:"recommendations"`
	CreatedAt          time.Time `json:"created_at,omitempty"`
}
