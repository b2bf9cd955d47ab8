// Package config defines the YAML configuration for the trade capture
// store and a loader supporting hot reload of validation rules.
package config

// Config is the top-level configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Validation ValidationConfig `yaml:"validation"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	CORS     bool   `yaml:"cors"`
}

// StorageConfig configures the audit log backend. The record store itself
// is in-memory by design; only mutation provenance is durable.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// ValidationConfig drives the universal validator set. Required and date
// fields are dotted paths into the trade document; rules are CEL conditions
// evaluated against it.
type ValidationConfig struct {
	RequiredFields   []string     `yaml:"required_fields"`
	AllowEmptyFields []string     `yaml:"allow_empty_fields"`
	DateFields       []string     `yaml:"date_fields"`
	Rules            []RuleConfig `yaml:"rules"`
}

// RuleConfig is one configurable business rule.
type RuleConfig struct {
	Name      string `yaml:"name"`
	Condition string `yaml:"condition"`
	Severity  string `yaml:"severity"` // error (default) or warning
	Message   string `yaml:"message"`
}

// DefaultConfig returns a config with sensible defaults for zero-config
// startup. The required-field set matches the core fields every trade type
// carries; tradeId and priceMaker may be blank on presave payloads since
// the backend fills them in.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     7450,
			LogLevel: "info",
			CORS:     false,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "./tradecapture-audit.db",
		},
		Validation: ValidationConfig{
			RequiredFields: []string{
				"general.tradeId",
				"general.transactionRoles.priceMaker",
				"common.book",
				"common.tradeDate",
				"common.counterparty",
				"common.inputDate",
			},
			AllowEmptyFields: []string{
				"general.tradeId",
				"general.transactionRoles.priceMaker",
			},
			DateFields: []string{
				"common.tradeDate",
				"common.inputDate",
			},
		},
	}
}
