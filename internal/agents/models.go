package agents

// CheckinInput is a decoded check-in request plus what the server observed
// about the connection.
type CheckinInput struct {
	AgentID       string
	Hostname      string
	OSName        string
	EncryptedData string
	SourceIP      string
}

type CheckinOutput struct {
	AgentID string
	Task    string
}
