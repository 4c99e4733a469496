package api

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
}

type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// WebhookResponse is returned for every gateway notification, duplicates included.
type WebhookResponse struct {
	Accepted bool   `json:"accepted" example:"true"`
	Reason   string `json:"reason,omitempty" example:"duplicate"`
}
