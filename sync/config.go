package sync

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/config"
)

// DefaultTriggeringEvents is used when no triggering event names are
// configured.
const DefaultTriggeringEvents = "identify"

// Config holds the integration settings loaded from YAML.
type Config struct {
	HubSpot HubSpotSettings
	PostHog PostHogSettings
}

type HubSpotSettings struct {
	APIKey string `yaml:"apiKey"`
	// TriggeringEvents is a comma-separated list of event names that
	// trigger a contact upsert.
	TriggeringEvents string `yaml:"triggeringEvents"`
	// AdditionalPropertyMappings is a comma-separated list of src:dst
	// pairs applied after the built-in property table.
	AdditionalPropertyMappings string `yaml:"additionalPropertyMappings"`
	// IgnoredEmails is a comma-separated list of email domains that never
	// trigger a contact upsert, suffix-matched against the domain part.
	IgnoredEmails string `yaml:"ignoredEmails"`
	// DefaultCountry resolves the dialing region for phone normalisation.
	DefaultCountry string `yaml:"defaultCountry"`
}

// PostHogSettings enables score sync. Optional as a group: either all
// three are set or score sync stays off.
type PostHogSettings struct {
	InstanceURL  string `yaml:"instanceURL"`
	APIToken     string `yaml:"apiToken"`
	ProjectToken string `yaml:"projectToken"`
}

// SyncOptions is the parsed, typed form of the string-based settings,
// built once per invocation.
type SyncOptions struct {
	TriggeringEvents []string
	IgnoredDomains   []string
	Mappings         []MappingPair
	DefaultCountry   string
}

// LoadConfig reads integration settings from YAML sources with env-var
// expansion. Later sources override earlier ones.
func LoadConfig(sources ...io.Reader) (Config, error) {
	var result Config
	var options []config.YAMLOption
	for _, s := range sources {
		options = append(options, config.Source(s))
	}
	options = append(options, config.Expand(os.LookupEnv))
	yaml, err := config.NewYAML(options...)
	if err != nil {
		return result, fmt.Errorf("failed to read yaml config %w", err)
	}
	readError := func(key string, cause error) error {
		return fmt.Errorf("failed to read '%s' from yaml config %w", key, cause)
	}
	key := "hubspot"
	err = yaml.Get(key).Populate(&result.HubSpot)
	if err != nil {
		return result, readError(key, err)
	}
	key = "posthog"
	if yaml.Get(key).HasValue() {
		err = yaml.Get(key).Populate(&result.PostHog)
		if err != nil {
			return result, readError(key, err)
		}
	}
	return result, nil
}

// Validate checks the required settings.
func (c Config) Validate() error {
	if c.HubSpot.APIKey == "" {
		return errors.New("a HubSpot API key is required")
	}
	partial := c.PostHog != (PostHogSettings{}) && !c.ScoreSyncEnabled()
	if partial {
		return errors.New("score sync needs instanceURL, apiToken and projectToken all set")
	}
	return nil
}

// ScoreSyncEnabled reports whether the analytics settings are complete.
func (c Config) ScoreSyncEnabled() bool {
	return c.PostHog.InstanceURL != "" && c.PostHog.APIToken != "" && c.PostHog.ProjectToken != ""
}

// SyncOptions parses the comma/colon-separated settings into typed form.
func (c Config) SyncOptions() SyncOptions {
	triggering := c.HubSpot.TriggeringEvents
	if strings.TrimSpace(triggering) == "" {
		triggering = DefaultTriggeringEvents
	}
	return SyncOptions{
		TriggeringEvents: ParseList(triggering),
		IgnoredDomains:   ParseList(c.HubSpot.IgnoredEmails),
		Mappings:         ParseMappingPairs(c.HubSpot.AdditionalPropertyMappings),
		DefaultCountry:   c.HubSpot.DefaultCountry,
	}
}

// ParseList splits a comma-separated list, trimming whitespace and
// dropping empty entries.
func ParseList(s string) []string {
	var result []string
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			result = append(result, entry)
		}
	}
	return result
}

// RuntimeConfig holds the process-level settings read from the
// environment.
type RuntimeConfig struct {
	RedisURL     string `envconfig:"SCORESYNC_REDIS_URL" default:"localhost:6379"`
	ConfigPath   string `envconfig:"SCORESYNC_CONFIG_PATH" default:"scoresync.yaml"`
	CursorPrefix string `envconfig:"SCORESYNC_CURSOR_PREFIX" default:"scoresync"`
	TickSchedule string `envconfig:"SCORESYNC_TICK_SCHEDULE" default:"@every 1m"`
}

// LoadRuntimeConfig reads the runtime settings from the environment.
func LoadRuntimeConfig() (RuntimeConfig, error) {
	var result RuntimeConfig
	err := envconfig.Process("", &result)
	return result, err
}
