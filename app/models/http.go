package models

// Request body for POST /analyze-medication.
type AnalyzeRequest struct {
	UserID       string `json:"userId"`
	ImageData    string `json:"imageData,omitempty"`
	ProductName  string `json:"productName,omitempty"`
	AnalysisType string `json:"analysisType,omitempty"`
}

// ScanLimitResponse is the structured 429 body returned when a capped
// tier has exhausted its monthly scans.
type ScanLimitResponse struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	ScansRemaining int    `json:"scans_remaining"`
	IsSubscribed   bool   `json:"is_subscribed"`
}

const ScanLimitReached = "scan_limit_reached"
