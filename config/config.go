package config

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/agentlane/relay"
	"github.com/agentlane/relay/monitoring"
	"github.com/agentlane/relay/registry"
	"github.com/agentlane/relay/routing"
	"github.com/agentlane/relay/utils/env"
)

// Config represents the full application configuration.
type Config struct {
	// Name reported in health summaries. E.g., "relay"
	ServiceName string `yaml:"service_name"`

	// Port to serve the observability endpoints on.
	Port int `yaml:"port"`

	// Consecutive failures before a provider trips its breaker.
	FailureThreshold int `yaml:"failure_threshold"`

	// How long an open breaker rejects attempts before a trial. E.g., 30s
	BreakerTimeout string `yaml:"breaker_timeout"`

	// Deadline for each outbound provider call. E.g., 1m
	CallTimeout string `yaml:"call_timeout"`

	// Minimum blended score for target selection.
	MinTargetScore float64 `yaml:"min_target_score"`

	// Monitoring configuration.
	Monitoring *monitoring.Config `yaml:"monitoring,omitempty"`

	// Statically configured routing backends.
	Backends []*relay.BackendDescriptor `yaml:"backends,omitempty"`

	// MCP servers to expose as routing backends.
	MCPServers []registry.MCPServerConfig `yaml:"mcp_servers,omitempty"`
}

// LoadConfig loads the configuration from the specified path.
func LoadConfig(path string, logger *zap.SugaredLogger) (*Config, error) {
	// Setting default values
	config := Config{
		ServiceName:      "relay",
		Port:             8080,
		FailureThreshold: 5,
		BreakerTimeout:   "30s",
		CallTimeout:      "1m",
		MinTargetScore:   0.3,
		Monitoring:       monitoring.DefaultConfig(),
	}

	// Checks if config is specified via environment variable.
	configSource := env.OptionalStringVariable("CONFIG_SOURCE", path)
	configToken := env.OptionalStringVariable("CONFIG_TOKEN", "")
	configData, err := func(configSource string, configToken string) ([]byte, error) {
		// Handle URL or local path
		if strings.HasPrefix(configSource, "http://") || strings.HasPrefix(configSource, "https://") {
			logger.Infow("Fetching remote config", "url", configSource)
			return fetchRemoteConfig(configSource, configToken)
		}
		logger.Infow("Loading local config", "path", configSource)
		return os.ReadFile(configSource)
	}(configSource, configToken)

	if err != nil {
		return nil, fmt.Errorf("failed to get config data: %v", err)
	}

	// Overrides config with the YAML data.
	if err := yaml.Unmarshal(configData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	// Overrides config with environment variables.
	// Therefore, the values from the environment variables precede the values from the YAML file.
	config.ServiceName = env.OptionalStringVariable("SERVICE_NAME", config.ServiceName)
	config.Port = env.OptionalIntVariable("PORT", config.Port)
	config.FailureThreshold = env.OptionalIntVariable("FAILURE_THRESHOLD", config.FailureThreshold)
	config.BreakerTimeout = env.OptionalStringVariable("BREAKER_TIMEOUT", config.BreakerTimeout)
	config.CallTimeout = env.OptionalStringVariable("CALL_TIMEOUT", config.CallTimeout)

	return &config, nil
}

// RoutingConfig converts the loaded configuration into a router
// configuration, validating thresholds and timeouts.
func (c *Config) RoutingConfig() (*routing.Config, error) {
	breakerTimeout, err := time.ParseDuration(c.BreakerTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid breaker_timeout %q: %v", c.BreakerTimeout, err)
	}

	callTimeout := time.Duration(0)
	if c.CallTimeout != "" {
		callTimeout, err = time.ParseDuration(c.CallTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid call_timeout %q: %v", c.CallTimeout, err)
		}
	}

	routingConfig := routing.DefaultConfig()
	routingConfig.ServiceName = c.ServiceName
	routingConfig.FailureThreshold = c.FailureThreshold
	routingConfig.BreakerTimeout = breakerTimeout
	routingConfig.CallTimeout = callTimeout
	routingConfig.MinTargetScore = c.MinTargetScore
	return routingConfig, nil
}

func fetchRemoteConfig(url string, token string) ([]byte, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch config: HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
