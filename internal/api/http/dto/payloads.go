package dto

// Payloads sealed by the envelope package. The backend never sees them in
// plaintext.

type HostMetadata struct {
	Hostname string `json:"hostname"`
	OSName   string `json:"os_name"`
}

type TaskPayload struct {
	Command string `json:"command"`
}

type ResultPayload struct {
	Output string `json:"output"`
}
