package transport

import "github.com/iardlabs/slitherd/internal/analysis/domain"

// AnalyzeRequest is the v1 JSON request body. Code carries raw Solidity
// source; it is mutually exclusive with Blockchain/Address.
type AnalyzeRequest struct {
	Blockchain string `json:"blockchain,omitempty"`
	Address    string `json:"address,omitempty"`
	Code       string `json:"code,omitempty"`
}

// AnalyzeResponse is the v1 JSON response body.
type AnalyzeResponse struct {
	Result []domain.Finding `json:"result"`
}

// legacyResult is the historical wire shape of GET /analyze.
type legacyResult struct {
	Result []domain.Finding `json:"result"`
}

// legacyError is the historical error shape of GET /analyze.
type legacyError struct {
	Error string `json:"error"`
}
