// Package config loads the tool configuration from an optional YAML file,
// an optional .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/model"
)

// DotEnvFile is loaded from the working directory when present. Variables
// already set in the process environment win over the file.
const DotEnvFile = ".env"

// DefaultEnvironments is used when neither the file nor DT_ENVIRONMENTS name
// any environment.
var DefaultEnvironments = []string{"PA", "PROD"}

// Config is the complete tool configuration.
type Config struct {
	Environments []Environment `yaml:"environments"`
	Query        QueryConfig   `yaml:"query"`
	HTTP         HTTPConfig    `yaml:"http"`
	Kafka        KafkaConfig   `yaml:"kafka"`
}

// Environment is one Dynatrace environment. Either APIToken or Auth must be
// set; APIToken wins when both are.
type Environment struct {
	Name     string       `yaml:"name"`
	BaseURL  string       `yaml:"base_url"`
	APIToken string       `yaml:"api_token"`
	Auth     *OAuthConfig `yaml:"auth,omitempty"`
}

// OAuthConfig holds client-credentials settings.
type OAuthConfig struct {
	URL          string `yaml:"url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Scope        string `yaml:"scope"`
	Resource     string `yaml:"resource"`
	Audience     string `yaml:"audience"`
}

// QueryConfig parameterizes the entity queries. Empty field lists fall back to
// the transport default.
type QueryConfig struct {
	RelativeTime       string `yaml:"relative_time"`    // v2 "from"
	V1RelativeTime     string `yaml:"v1_relative_time"` // v1 "relativeTime"
	PageSize           int    `yaml:"page_size"`
	MaxPages           int    `yaml:"max_pages"`
	ProcessFields      string `yaml:"process_fields"`
	ProcessGroupFields string `yaml:"process_group_fields"`
	HostFields         string `yaml:"host_fields"`
}

// HTTPConfig tunes the API client.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// KafkaConfig enables publishing topology documents when Brokers and Topic
// are both set.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled reports whether a Kafka sink is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

// Default returns a Config with defaults and no environments.
func Default() *Config {
	return &Config{
		Query: QueryConfig{
			RelativeTime:   "now-1h",
			V1RelativeTime: "hour",
			PageSize:       50,
			MaxPages:       1000,
		},
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
			Retries: 3,
		},
	}
}

// Load builds the configuration. Precedence, lowest first: defaults, the YAML
// file at path (skipped when path is empty), environment variables. The .env
// file only feeds the environment. Load does not validate; see Validate.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", DotEnvFile, err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if names, ok := getenv("DT_ENVIRONMENTS"); ok {
		envs := make([]Environment, 0)
		for _, name := range splitList(names) {
			env := Environment{Name: name}
			if existing := c.Environment(name); existing != nil {
				env = *existing
			}
			envs = append(envs, env)
		}
		c.Environments = envs
	}
	if len(c.Environments) == 0 {
		for _, name := range DefaultEnvironments {
			c.Environments = append(c.Environments, Environment{Name: name})
		}
	}
	for i := range c.Environments {
		c.Environments[i].applyEnv()
	}

	setString(&c.Query.RelativeTime, "RELATIVE_TIME")
	setString(&c.Query.V1RelativeTime, "V1_RELATIVE_TIME")
	setString(&c.Query.ProcessFields, "PROCESS_FIELDS")
	setString(&c.Query.ProcessGroupFields, "PROCESS_GROUP_FIELDS")
	setString(&c.Query.HostFields, "HOST_FIELDS")
	setString(&c.Kafka.Topic, "KAFKA_TOPIC")
	if brokers, ok := getenv("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(brokers)
	}

	for key, dst := range map[string]*int{
		"PAGE_SIZE":    &c.Query.PageSize,
		"MAX_PAGES":    &c.Query.MaxPages,
		"HTTP_RETRIES": &c.HTTP.Retries,
	} {
		if err := setInt(dst, key); err != nil {
			return err
		}
	}

	if raw, ok := getenv("HTTP_TIMEOUT"); ok {
		d, err := parseDuration(raw)
		if err != nil {
			return fmt.Errorf("HTTP_TIMEOUT: %w", err)
		}
		c.HTTP.Timeout = d
	}
	return nil
}

func (e *Environment) applyEnv() {
	prefix := EnvPrefix(e.Name)
	setString(&e.BaseURL, prefix+"_BASE_URL")
	setString(&e.APIToken, prefix+"_API_TOKEN")

	auth := OAuthConfig{}
	if e.Auth != nil {
		auth = *e.Auth
	}
	setString(&auth.URL, prefix+"_AUTH_URL")
	setString(&auth.ClientID, prefix+"_AUTH_CLIENT_ID")
	setString(&auth.ClientSecret, prefix+"_AUTH_CLIENT_SECRET")
	setString(&auth.Scope, prefix+"_AUTH_SCOPE")
	setString(&auth.Resource, prefix+"_AUTH_RESOURCE")
	setString(&auth.Audience, prefix+"_AUTH_AUDIENCE")
	if auth != (OAuthConfig{}) {
		e.Auth = &auth
	}
}

// Environment returns the environment called name (case-insensitive), or nil.
func (c *Config) Environment(name string) *Environment {
	for i := range c.Environments {
		if strings.EqualFold(c.Environments[i].Name, name) {
			return &c.Environments[i]
		}
	}
	return nil
}

// Fields returns the configured v2 fields parameter per component type.
func (q QueryConfig) Fields() map[model.ComponentType]string {
	return map[model.ComponentType]string{
		model.ComponentProcess:      q.ProcessFields,
		model.ComponentProcessGroup: q.ProcessGroupFields,
		model.ComponentHost:         q.HostFields,
	}
}

// Validate checks everything the fetch command needs.
func (c *Config) Validate() error {
	if len(c.Environments) == 0 {
		return errors.New("no environments configured")
	}
	var errs []error
	for _, env := range c.Environments {
		if err := env.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Query.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page size must be positive, got %d", c.Query.PageSize))
	}
	if c.Query.MaxPages <= 0 {
		errs = append(errs, fmt.Errorf("max pages must be positive, got %d", c.Query.MaxPages))
	}
	if c.HTTP.Retries < 0 {
		errs = append(errs, fmt.Errorf("http retries must not be negative, got %d", c.HTTP.Retries))
	}
	return errors.Join(errs...)
}

// Validate requires a base URL and usable credentials.
func (e Environment) Validate() error {
	prefix := EnvPrefix(e.Name)
	if e.Name == "" {
		return errors.New("environment without a name")
	}
	if e.BaseURL == "" {
		return fmt.Errorf("environment %s: %s_BASE_URL must be configured", e.Name, prefix)
	}
	if e.APIToken != "" {
		return nil
	}
	if e.Auth == nil {
		return fmt.Errorf("environment %s: set %s_API_TOKEN or the %s_AUTH_* client credentials", e.Name, prefix, prefix)
	}
	var missing []string
	for key, value := range map[string]string{
		"_AUTH_URL":           e.Auth.URL,
		"_AUTH_CLIENT_ID":     e.Auth.ClientID,
		"_AUTH_CLIENT_SECRET": e.Auth.ClientSecret,
	} {
		if value == "" {
			missing = append(missing, prefix+key)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("environment %s: missing %s", e.Name, strings.Join(missing, ", "))
	}
	return nil
}

// EnvPrefix returns the variable prefix of an environment name, e.g. "PROD"
// for "Prod" and "EU_WEST" for "eu-west".
func EnvPrefix(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(name))
}

func getenv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func setString(dst *string, key string) {
	if v, ok := getenv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	raw, ok := getenv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

// parseDuration accepts Go durations ("45s") and bare seconds ("45").
func parseDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
