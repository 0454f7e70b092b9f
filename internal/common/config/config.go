// internal/common/config/config.go
package config

import "fmt"

type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Server   ServerConfig            `mapstructure:"server"`
	Decision DecisionConfig          `mapstructure:"decision"`
	Pool     PoolConfig              `mapstructure:"pool"`
	Cache    CacheConfig             `mapstructure:"cache"`
	Audit    AuditConfig             `mapstructure:"audit"`
	Alerts   AlertsConfig            `mapstructure:"alerts"`
	Tracing  TracingConfig           `mapstructure:"tracing"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	Logging  LoggingConfig           `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address            string `mapstructure:"address"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`
	RequestTimeout     int    `mapstructure:"request_timeout"` // milliseconds
	SessionTTL         int    `mapstructure:"session_ttl"`     // milliseconds
	MaxSessions        int    `mapstructure:"max_sessions"`
}

type DecisionConfig struct {
	// TablePath overrides the embedded decision table when set.
	TablePath string `mapstructure:"table_path"`
}

type PoolConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	TTL     int  `mapstructure:"ttl"` // milliseconds
}

type AuditConfig struct {
	PostgresEnabled      bool   `mapstructure:"postgres_enabled"`
	ElasticsearchEnabled bool   `mapstructure:"elasticsearch_enabled"`
	Index                string `mapstructure:"index"`
	QueueSize            int    `mapstructure:"queue_size"`
}

func (a AuditConfig) Enabled() bool {
	return a.PostgresEnabled || a.ElasticsearchEnabled
}

type AlertsConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Region      string   `mapstructure:"region"`
	SNSTopicARN string   `mapstructure:"sns_topic_arn"`
	SESFrom     string   `mapstructure:"ses_from"`
	SESTo       []string `mapstructure:"ses_to"`
	Cooldown    int      `mapstructure:"cooldown"` // milliseconds
}

type TracingConfig struct {
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // single address shorthand
}

func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
