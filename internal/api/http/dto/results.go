package dto

// ResultRequest carries one task result. Pointer fields distinguish a missing
// field from an empty result.
type ResultRequest struct {
	AgentID       string  `json:"agentId"`
	TaskResult    *string `json:"taskResult,omitempty"`
	EncryptedData *string `json:"encryptedData,omitempty"`
}

type ResultResponse struct {
	Message string `json:"message"`
	Key     string `json:"s3_key"`
}
