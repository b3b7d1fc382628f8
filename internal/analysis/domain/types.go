// Package domain contains the business logic for contract analysis.
package domain

// Impact is the severity classification a detector assigns to a finding.
type Impact string

// Impact levels reported by Slither detectors.
const (
	ImpactHigh          Impact = "High"
	ImpactMedium        Impact = "Medium"
	ImpactLow           Impact = "Low"
	ImpactInformational Impact = "Informational"
	ImpactOptimization  Impact = "Optimization"
)

// Confidence is how certain a detector is about a finding.
type Confidence string

// Confidence levels reported by Slither detectors.
const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// Finding is one normalized analysis result returned to callers,
// independent of the raw report structure the analyzer produces.
type Finding struct {
	Check       string     `json:"check"`
	Description string     `json:"description"`
	Impact      Impact     `json:"impact"`
	Confidence  Confidence `json:"confidence"`
}

// Request identifies what to analyze: either a deployed contract by
// blockchain and address, or raw Solidity source. Code is plain text; the
// transport layer decodes the base64 query form before building a Request.
type Request struct {
	Blockchain string
	Address    string
	Code       string
}
