package upkeepsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Upkeep HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client authenticated with an API key.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: 10 * time.Second,
	}
}

// Quota reports the asset allowance of the account.
type Quota struct {
	Plan            string `json:"plan_type"`
	CanAddMore      bool   `json:"can_add_more"`
	MaxAssets       int    `json:"max_assets"`
	CurrentAssets   int    `json:"current_assets"`
	RemainingSlots  int    `json:"remaining_slots"`
	UpgradeRequired bool   `json:"upgrade_required"`
}

// Asset represents a piece of equipment (partial).
type Asset struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Status            string  `json:"status"`
	HealthScore       int     `json:"health_score"`
	TemplateID        *string `json:"template_id,omitempty"`
	NextMaintenanceAt *string `json:"next_maintenance_at,omitempty"`
}

// AssetInput is the payload for CreateAsset.
type AssetInput struct {
	Name         string `json:"name"`
	Model        string `json:"model,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Location     string `json:"location,omitempty"`
	Status       string `json:"status,omitempty"`
	HealthScore  *int   `json:"health_score,omitempty"`
	TemplateID   string `json:"template_id,omitempty"`
}

type ScheduledTask struct {
	ChecklistID     string `json:"checklist_id"`
	TaskName        string `json:"task_name"`
	FrequencyDays   int    `json:"frequency_days"`
	Priority        string `json:"priority"`
	DueDate         int64  `json:"due_date"`
	DueDateReadable string `json:"due_date_readable"`
	DaysFromNow     int    `json:"days_from_now"`
}

type Schedule struct {
	AssetName      string          `json:"asset_name"`
	Multiplier     string          `json:"multiplier"`
	Schedule       []ScheduledTask `json:"schedule"`
	TotalScheduled int             `json:"total_scheduled"`
}

type Task struct {
	ID          string  `json:"id"`
	TaskText    string  `json:"task_text"`
	OrderIndex  int     `json:"order_index"`
	IsCompleted bool    `json:"is_completed"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

type WorkOrder struct {
	ID          string  `json:"id"`
	AssetID     *string `json:"asset_id,omitempty"`
	Title       string  `json:"title"`
	Priority    string  `json:"priority"`
	Status      string  `json:"status"`
	DueDate     *string `json:"due_date,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
	Tasks       []Task  `json:"tasks"`
}

// WorkOrderInput is the payload for CreateWorkOrder.
type WorkOrderInput struct {
	AssetID             string   `json:"asset_id,omitempty"`
	ChecklistTemplateID string   `json:"checklist_template_id,omitempty"`
	Title               string   `json:"title"`
	Description         string   `json:"description,omitempty"`
	Priority            string   `json:"priority,omitempty"`
	DueDate             string   `json:"due_date,omitempty"`
	Tasks               []string `json:"tasks,omitempty"`
}

type ToggleResult struct {
	Task          Task      `json:"task"`
	WorkOrder     WorkOrder `json:"work_order"`
	AutoCompleted bool      `json:"auto_completed"`
}

// APIError wraps non-2xx responses. Code and Details are decoded from the
// error envelope when present.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Body    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.Status, e.Body)
}

// Quota returns the account's asset quota.
func (c *Client) Quota(ctx context.Context) (Quota, error) {
	var resp Quota
	err := c.do(ctx, http.MethodGet, "quota", nil, &resp)
	return resp, err
}

// CreateAsset registers an asset. A full quota yields an *APIError with
// status 402 and code quota_exceeded.
func (c *Client) CreateAsset(ctx context.Context, in AssetInput) (Asset, error) {
	var resp Asset
	err := c.do(ctx, http.MethodPost, "assets", in, &resp)
	return resp, err
}

func (c *Client) DeleteAsset(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "assets/"+url.PathEscape(id), nil, nil)
}

// GenerateSchedule plans occurrences for a template. A nil multiplier means
// the server default of 1; a non-positive one is rejected by the server.
func (c *Client) GenerateSchedule(ctx context.Context, templateID, assetName string, multiplier *float64) (Schedule, error) {
	body := map[string]any{"asset_name": assetName}
	if multiplier != nil {
		body["multiplier"] = *multiplier
	}
	var resp Schedule
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("templates/%s/schedule", url.PathEscape(templateID)), body, &resp)
	return resp, err
}

func (c *Client) CreateWorkOrder(ctx context.Context, in WorkOrderInput) (WorkOrder, error) {
	var resp WorkOrder
	err := c.do(ctx, http.MethodPost, "work-orders", in, &resp)
	return resp, err
}

func (c *Client) GetWorkOrder(ctx context.Context, id string) (WorkOrder, error) {
	var resp WorkOrder
	err := c.do(ctx, http.MethodGet, "work-orders/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SetWorkOrderStatus overrides the status of a work order.
func (c *Client) SetWorkOrderStatus(ctx context.Context, id, status string) (WorkOrder, error) {
	var resp WorkOrder
	endpoint := fmt.Sprintf("work-orders/%s/status", url.PathEscape(id))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// ToggleTask marks a task complete or incomplete.
func (c *Client) ToggleTask(ctx context.Context, workOrderID, taskID string, completed bool) (ToggleResult, error) {
	var resp ToggleResult
	endpoint := fmt.Sprintf("work-orders/%s/tasks/%s", url.PathEscape(workOrderID), url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"is_completed": completed}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeAPIError(resp.StatusCode, b)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
