package models

// ErrorResponse is the JSON error body returned by every handler.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SaveStagesRequest carries the full proposed pipeline from the editor.
type SaveStagesRequest struct {
	Stages          []StageEdit `json:"stages" validate:"required,dive"`
	DeletedStageIDs []string    `json:"deleted_stage_ids"`
}

// MoveLeadRequest moves a lead to another stage of its pipeline.
type MoveLeadRequest struct {
	ToStageID string `json:"to_stage_id" validate:"required"`
}

// CreateLeadRequest is a broker's manual lead entry.
type CreateLeadRequest struct {
	Name             string     `json:"name" validate:"required,max=120"`
	ContactPhone     string     `json:"contact_phone" validate:"omitempty,max=32"`
	ContactEmail     string     `json:"contact_email" validate:"omitempty,email"`
	PropertyInterest string     `json:"property_interest" validate:"omitempty,max=200"`
	Source           LeadSource `json:"source" validate:"omitempty,oneof=site referral paid messaging-app"`
}

// PublicLeadRequest is the payload of the public capture form.
type PublicLeadRequest struct {
	Name             string `json:"name" validate:"required,max=120"`
	ContactPhone     string `json:"contact_phone" validate:"required,max=32"`
	ContactEmail     string `json:"contact_email" validate:"omitempty,email"`
	PropertyInterest string `json:"property_interest" validate:"omitempty,max=200"`
	PropertyCity     string `json:"property_city" validate:"required,max=80"`
	PropertyState    string `json:"property_state" validate:"required,max=40"`
}

// RouteLeadResponse is returned to the public capture form.
type RouteLeadResponse struct {
	LeadID             string `json:"lead_id"`
	BrokerName         string `json:"broker_name"`
	WhatsAppHandoffURL string `json:"whatsapp_handoff_url"`
}

// StageColumn is one kanban column with its leads, for the board view.
type StageColumn struct {
	Stage Stage  `json:"stage"`
	Leads []Lead `json:"leads"`
}

// BoardResponse is the kanban board for one broker.
type BoardResponse struct {
	Columns []StageColumn `json:"columns"`
}
