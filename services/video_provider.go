package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	TaskStateWaiting    = "waiting"
	TaskStateQueuing    = "queuing"
	TaskStateGenerating = "generating"
	TaskStateSuccess    = "success"
	TaskStateFail       = "fail"
)

var ErrTaskRejected = errors.New("no taskId returned")

// VideoTask mô tả một job text-to-video (hoặc image-to-video khi có ImageURL)
type VideoTask struct {
	Prompt          string
	ImageURL        string
	AspectRatio     string // portrait | landscape
	NFrames         string // "10" | "15"
	RemoveWatermark bool
}

type TaskStatus struct {
	TaskID    string
	State     string
	ResultURL string
	FailCode  string
	FailMsg   string
}

type VideoProvider interface {
	CreateTask(ctx context.Context, task VideoTask) (string, error)
	TaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
}

// KieClient gọi Kie (Sora 2) qua REST
type KieClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewKieClient(baseURL, apiKey string, httpClient *http.Client) (*KieClient, error) {
	if apiKey == "" {
		return nil, errors.New("missing KIE_API_KEY")
	}
	if baseURL == "" {
		baseURL = "https://api.kie.ai"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &KieClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: httpClient}, nil
}

type kieEnvelope struct {
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e kieEnvelope) message(fallback string) string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Message != "" {
		return e.Message
	}
	return fallback
}

func (c *KieClient) CreateTask(ctx context.Context, task VideoTask) (string, error) {
	if strings.TrimSpace(task.Prompt) == "" {
		return "", errors.New("missing prompt")
	}
	if task.AspectRatio == "" {
		task.AspectRatio = "portrait"
	}
	if task.NFrames == "" {
		task.NFrames = "10"
	}

	input := map[string]interface{}{
		"prompt":           task.Prompt,
		"aspect_ratio":     task.AspectRatio,
		"n_frames":         task.NFrames,
		"size":             "high",
		"remove_watermark": task.RemoveWatermark,
		"upload_method":    "s3",
	}
	model := "sora-2-text-to-video"
	if task.ImageURL != "" {
		model = "sora-2-image-to-video"
		input["image_urls"] = []string{task.ImageURL}
	}
	body, err := json.Marshal(map[string]interface{}{"model": model, "input": input})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/jobs/createTask", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	env, status, raw, err := c.do(req)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 || env.Code != 200 {
		return "", &ProviderError{Provider: "kie", Code: fmt.Sprint(env.Code), Message: env.message("Kie createTask failed"), Status: status}
	}

	var data struct {
		TaskID string `json:"taskId"`
		ID     string `json:"id"`
	}
	_ = json.Unmarshal(env.Data, &data)
	taskID := data.TaskID
	if taskID == "" {
		taskID = data.ID
	}
	if taskID == "" {
		return "", fmt.Errorf("%w: %s", ErrTaskRejected, truncate(string(raw), 200))
	}
	return taskID, nil
}

func (c *KieClient) TaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	if taskID == "" {
		return nil, errors.New("missing taskId")
	}
	endpoint := c.baseURL + "/api/v1/jobs/recordInfo?taskId=" + url.QueryEscape(taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	env, status, _, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 || env.Code != 200 {
		return nil, &ProviderError{Provider: "kie", Code: fmt.Sprint(env.Code), Message: env.message("Kie recordInfo failed"), Status: status}
	}

	var data struct {
		State      string      `json:"state"`
		ResultJSON string      `json:"resultJson"`
		FailCode   interface{} `json:"failCode"`
		FailMsg    string      `json:"failMsg"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &ProviderError{Provider: "kie", Message: "invalid recordInfo data", Status: http.StatusBadGateway}
	}

	out := &TaskStatus{TaskID: taskID, State: data.State, FailMsg: data.FailMsg}
	if data.FailCode != nil {
		out.FailCode = fmt.Sprint(data.FailCode)
	}
	if data.State == TaskStateSuccess && data.ResultJSON != "" {
		var result struct {
			ResultURLs []string `json:"resultUrls"`
		}
		if err := json.Unmarshal([]byte(data.ResultJSON), &result); err == nil && len(result.ResultURLs) > 0 {
			out.ResultURL = result.ResultURLs[0]
		}
	}
	return out, nil
}

// do đọc body; body không phải JSON thì trả ProviderError 502
func (c *KieClient) do(req *http.Request) (kieEnvelope, int, []byte, error) {
	var env kieEnvelope
	resp, err := c.http.Do(req)
	if err != nil {
		return env, 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return env, resp.StatusCode, nil, err
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, resp.StatusCode, raw, &ProviderError{
			Provider: "kie",
			Message:  fmt.Sprintf("non-JSON response (status %d): %s", resp.StatusCode, truncate(string(raw), 200)),
			Status:   http.StatusBadGateway,
		}
	}
	return env, resp.StatusCode, raw, nil
}
