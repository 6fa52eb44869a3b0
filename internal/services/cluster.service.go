package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/platformbuilds/mirador-remedy/internal/config"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

// ClusterService talks to the cluster orchestrator's deployment API for
// restarts, scaling and replica reads, and spawns local processes for script
// steps. It implements the remediation package's InfraClient.
type ClusterService struct {
	endpoint string
	token    string
	client   *http.Client
	logger   logger.Logger
}

func NewClusterService(cfg config.OrchestratorConfig, logger logger.Logger) *ClusterService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ClusterService{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		token:    cfg.Token,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// RestartDeployment asks the orchestrator for a rolling restart.
func (s *ClusterService) RestartDeployment(ctx context.Context, service string) error {
	url := fmt.Sprintf("%s/api/v1/deployments/%s/restart", s.endpoint, service)
	status, _, err := s.do(ctx, "POST", url, nil)
	if err != nil {
		return fmt.Errorf("restart %s: %w", service, err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("restart %s: orchestrator returned status %d", service, status)
	}
	s.logger.Info("Deployment restart requested", "service", service)
	return nil
}

// ScaleDeployment sets the deployment's replica count.
func (s *ClusterService) ScaleDeployment(ctx context.Context, service string, replicas int) error {
	url := fmt.Sprintf("%s/api/v1/deployments/%s/scale", s.endpoint, service)
	body, _ := json.Marshal(map[string]int{"replicas": replicas})
	status, _, err := s.do(ctx, "PUT", url, body)
	if err != nil {
		return fmt.Errorf("scale %s: %w", service, err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("scale %s: orchestrator returned status %d", service, status)
	}
	s.logger.Info("Deployment scaled", "service", service, "replicas", replicas)
	return nil
}

// GetReplicas reads the deployment's current replica count.
func (s *ClusterService) GetReplicas(ctx context.Context, service string) (int, error) {
	url := fmt.Sprintf("%s/api/v1/deployments/%s", s.endpoint, service)
	status, body, err := s.do(ctx, "GET", url, nil)
	if err != nil {
		return 0, fmt.Errorf("get replicas for %s: %w", service, err)
	}
	if status < 200 || status >= 300 {
		return 0, fmt.Errorf("get replicas for %s: orchestrator returned status %d", service, status)
	}

	var payload struct {
		Replicas int `json:"replicas"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("get replicas for %s: decode response: %w", service, err)
	}
	return payload.Replicas, nil
}

// HTTPCall performs an arbitrary request for webhook steps and returns the
// response status. The body is drained and discarded.
func (s *ClusterService) HTTPCall(ctx context.Context, method, url string, headers map[string]string, body []byte) (int, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" && len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// ExecuteProcess runs a local command for script steps. The context bounds
// the run; a non-zero exit is an error carrying the trailing output.
func (s *ClusterService) ExecuteProcess(ctx context.Context, command string, args []string) error {
	cmd := exec.CommandContext(ctx, command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("command %s failed: %w (output: %s)", command, err, tail(string(output), 512))
	}
	s.logger.Info("Script step completed", "command", command)
	return nil
}

func (s *ClusterService) do(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
