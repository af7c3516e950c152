package domain

// PlanTier is the billing plan of an account.
type PlanTier string

const (
	PlanStarter PlanTier = "starter"
	PlanGrowth  PlanTier = "growth"
	PlanScale   PlanTier = "scale"
)

// PlanTiers lists tiers from lowest to highest.
var PlanTiers = []PlanTier{PlanStarter, PlanGrowth, PlanScale}

// WorkOrderStatus is the lifecycle state of a work order.
type WorkOrderStatus string

const (
	StatusOpen       WorkOrderStatus = "Open"
	StatusInProgress WorkOrderStatus = "In Progress"
	StatusCompleted  WorkOrderStatus = "Completed"
	StatusCancelled  WorkOrderStatus = "Cancelled"
)

// WorkOrderStatuses is the fixed status enumeration.
var WorkOrderStatuses = []WorkOrderStatus{StatusOpen, StatusInProgress, StatusCompleted, StatusCancelled}

const (
	DefaultAssetStatus       = "Running"
	DefaultHealthScore       = 100
	DefaultWorkOrderPriority = "Normal"
)

type Account struct {
	ID          string   `json:"id"`
	Email       string   `json:"email,omitempty"`
	CompanyName string   `json:"company_name,omitempty"`
	Plan        PlanTier `json:"plan_type" enum:"starter,growth,scale"`
	AssetCount  int      `json:"asset_count"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type Asset struct {
	ID                string  `json:"id"`
	AccountID         string  `json:"account_id"`
	Name              string  `json:"name"`
	Model             string  `json:"model,omitempty"`
	SerialNumber      string  `json:"serial_number,omitempty"`
	Location          string  `json:"location,omitempty"`
	Status            string  `json:"status"`
	HealthScore       int     `json:"health_score"`
	TemplateID        *string `json:"template_id,omitempty"`
	TemplateName      string  `json:"template_name,omitempty"`
	Category          string  `json:"category,omitempty"`
	NextMaintenanceAt *string `json:"next_maintenance_at,omitempty" format:"date-time"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
	UpdatedAt         string  `json:"updated_at" format:"date-time"`
}

type EquipmentTemplate struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	Description  string `json:"description,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

type ChecklistItem struct {
	ID                string `json:"id"`
	TemplateID        string `json:"template_id"`
	Title             string `json:"title"`
	TaskText          string `json:"task_text"`
	FrequencyDays     int    `json:"frequency_days"`
	Priority          string `json:"priority" enum:"Critical,High,Medium,Low"`
	EstimatedDuration int    `json:"estimated_duration"`
	OrderIndex        int    `json:"order_index"`
	Active            bool   `json:"is_active"`
}

type WorkOrder struct {
	ID                  string          `json:"id"`
	AccountID           string          `json:"account_id"`
	AssetID             *string         `json:"asset_id,omitempty"`
	AssetName           string          `json:"asset_name,omitempty"`
	ChecklistTemplateID *string         `json:"checklist_template_id,omitempty"`
	Title               string          `json:"title"`
	Description         string          `json:"description,omitempty"`
	Priority            string          `json:"priority"`
	Status              WorkOrderStatus `json:"status" enum:"Open,In Progress,Completed,Cancelled"`
	DueDate             *string         `json:"due_date,omitempty" format:"date-time"`
	CompletedAt         *string         `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt           string          `json:"created_at" format:"date-time"`
	UpdatedAt           string          `json:"updated_at" format:"date-time"`
	Tasks               []WorkOrderTask `json:"tasks"`
}

type WorkOrderTask struct {
	ID          string  `json:"id"`
	WorkOrderID string  `json:"work_order_id"`
	TaskText    string  `json:"task_text"`
	OrderIndex  int     `json:"order_index"`
	IsCompleted bool    `json:"is_completed"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
	CompletedBy *string `json:"completed_by,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	AccountID  string `json:"account_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

type APIKey struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// StatusCount is one bucket of a grouped count.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}
