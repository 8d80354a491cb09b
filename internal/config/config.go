package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`

	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`

	Auth struct {
		OktaDomain   string `mapstructure:"okta_domain"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		RedirectURL  string `mapstructure:"redirect_url"`
	} `mapstructure:"auth"`

	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`

	// Collaborator endpoints. Empty URLs disable the corresponding client.
	Dispatcher struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"dispatcher"`
	Feedback struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"feedback"`
	Audit struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"audit"`

	Approval struct {
		// LockTimeout bounds the wait for the task row lock before the
		// operation fails as transient.
		LockTimeout time.Duration `mapstructure:"lock_timeout"`
	} `mapstructure:"approval"`

	MCP struct {
		// OrganizationID scopes MCP tool calls to a service-account
		// organization. Empty disables the MCP surface.
		OrganizationID string `mapstructure:"organization_id"`
	} `mapstructure:"mcp"`

	Telemetry struct {
		Exporter string `mapstructure:"exporter"` // none | stdout | otlp
		Endpoint string `mapstructure:"endpoint"`
	} `mapstructure:"telemetry"`
}

// LoadConfig loads the configuration from a file and the environment. If path
// is non-empty it names an explicit config file.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("environment", "DEV")
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("approval.lock_timeout", 5*time.Second)
	viper.SetDefault("telemetry.exporter", "none")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// normalize OKTA issuer url (strip trailing slash if any)
	config.Auth.OktaDomain = normalizeOktaIssuer(config.Auth.OktaDomain)

	return &config, nil
}

// normalizeOktaIssuer ensures the provided Okta issuer string is in a
// predictable form. It removes any trailing slash and leaves the scheme and
// path intact. This allows users to paste the full URL from the Okta admin
// console without worrying about double prefixes.
func normalizeOktaIssuer(input string) string {
	iss := strings.TrimSpace(input)
	if strings.HasSuffix(iss, "/") {
		iss = strings.TrimRight(iss, "/")
	}
	return iss
}
