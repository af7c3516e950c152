package server

import (
	"upkeep/internal/domain"
	"upkeep/internal/engine"
	"upkeep/internal/planner"
	"upkeep/internal/quota"
)

type MeResponse struct {
	Account domain.Account `json:"account"`
	Quota   quota.Status   `json:"quota"`
	Source  string         `json:"auth_source"`
}

type UpgradePlanRequest struct {
	Plan string `json:"plan_type" enum:"starter,growth,scale"`
}

type CreateAssetRequest struct {
	Name         string `json:"name" minLength:"1" maxLength:"200"`
	Model        string `json:"model,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Location     string `json:"location,omitempty"`
	Status       string `json:"status,omitempty"`
	HealthScore  *int   `json:"health_score,omitempty" minimum:"0" maximum:"100"`
	TemplateID   string `json:"template_id,omitempty"`
}

type UpdateAssetRequest struct {
	Name         *string `json:"name,omitempty"`
	Model        *string `json:"model,omitempty"`
	SerialNumber *string `json:"serial_number,omitempty"`
	Location     *string `json:"location,omitempty"`
	Status       *string `json:"status,omitempty"`
	HealthScore  *int    `json:"health_score,omitempty" minimum:"0" maximum:"100"`
}

type AssetListResponse struct {
	Items   []domain.Asset `json:"items"`
	Total   int            `json:"total"`
	HasMore bool           `json:"has_more"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

type UpdateProfileRequest struct {
	Email       *string `json:"email,omitempty"`
	CompanyName *string `json:"company_name,omitempty" maxLength:"200"`
}

type ScheduleRequest struct {
	AssetName  string   `json:"asset_name"`
	Multiplier *float64 `json:"multiplier,omitempty" doc:"Cadence multiplier; 2 means twice as often. Defaults to 1."`
}

type ScheduleResponse struct {
	Template       domain.EquipmentTemplate `json:"template"`
	AssetName      string                   `json:"asset_name"`
	Multiplier     string                   `json:"multiplier"`
	Schedule       []planner.ScheduledTask  `json:"schedule"`
	TotalScheduled int                      `json:"total_scheduled"`
}

func scheduleResponse(p engine.Plan) ScheduleResponse {
	return ScheduleResponse{
		Template:       p.Template,
		AssetName:      p.AssetName,
		Multiplier:     p.Multiplier.String(),
		Schedule:       p.Schedule,
		TotalScheduled: p.TotalScheduled,
	}
}

type CreateWorkOrderRequest struct {
	AssetID             string   `json:"asset_id,omitempty"`
	ChecklistTemplateID string   `json:"checklist_template_id,omitempty"`
	Title               string   `json:"title"`
	Description         string   `json:"description,omitempty"`
	Priority            string   `json:"priority,omitempty"`
	DueDate             string   `json:"due_date,omitempty" doc:"RFC 3339 timestamp or YYYY-MM-DD"`
	Tasks               []string `json:"tasks,omitempty"`
}

type SetStatusRequest struct {
	Status string `json:"status" doc:"Open, In Progress, Completed or Cancelled"`
}

type ToggleTaskRequest struct {
	IsCompleted *bool `json:"is_completed"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty" maxLength:"100"`
}

type DevLoginRequest struct {
	AccountID   string `json:"account_id"`
	Email       string `json:"email,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type EventListResponse struct {
	Items []domain.Event `json:"items"`
}
