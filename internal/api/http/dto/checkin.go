package dto

// NoTask is returned in CheckinResponse.Task when nothing is pending.
const NoTask = "no-task-for-now"

// CheckinRequest is sent by the agent on every poll. In encrypted mode only
// AgentID and EncryptedData are set and EncryptedData seals a HostMetadata.
type CheckinRequest struct {
	AgentID       string `json:"agentId,omitempty"`
	Hostname      string `json:"hostname,omitempty"`
	OSName        string `json:"os_name,omitempty"`
	EncryptedData string `json:"encryptedData,omitempty"`
}

type CheckinResponse struct {
	Message string `json:"message"`
	AgentID string `json:"agentId"`
	Task    string `json:"task"`
}
