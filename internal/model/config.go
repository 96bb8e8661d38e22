package model

import "time"

// Config holds the complete run configuration
type Config struct {
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Run       RunConfig       `yaml:"run" mapstructure:"run"`
	Wikidata  ServiceConfig   `yaml:"wikidata" mapstructure:"wikidata"`
	Nominatim ServiceConfig   `yaml:"nominatim" mapstructure:"nominatim"`
	NER       NERConfig       `yaml:"ner" mapstructure:"ner"`
	Sink      SinkConfig      `yaml:"sink" mapstructure:"sink"`
	Analytics AnalyticsConfig `yaml:"analytics" mapstructure:"analytics"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// HTTPConfig configures page fetching
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS   bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy     string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy" mapstructure:"no_proxy"`
	Spacing       time.Duration `yaml:"spacing" mapstructure:"spacing"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	BaseURL       string        `yaml:"base_url,omitempty" mapstructure:"base_url"` // wiki mirror origin
}

// CacheConfig configures raw page caching and the article memo
type CacheConfig struct {
	Enabled            bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir                string        `yaml:"dir" mapstructure:"dir"`
	RedisAddr          string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisTTL           time.Duration `yaml:"redis_ttl" mapstructure:"redis_ttl"`
	ArticleCacheSize   int           `yaml:"article_cache_size" mapstructure:"article_cache_size"`
	IgnoreOutlineCache bool          `yaml:"ignore_outline_cache" mapstructure:"ignore_outline_cache"`
	IgnoreArticleCache bool          `yaml:"ignore_article_cache" mapstructure:"ignore_article_cache"`
}

// RunConfig selects the months and days to parse
type RunConfig struct {
	Start        string `yaml:"start" mapstructure:"start"` // m/yyyy
	End          string `yaml:"end" mapstructure:"end"`     // m/yyyy
	StartDay     int    `yaml:"start_day" mapstructure:"start_day"`
	EndDay       int    `yaml:"end_day" mapstructure:"end_day"`
	TopicBudget  int    `yaml:"topic_budget" mapstructure:"topic_budget"`
	EventBudget  int    `yaml:"event_budget" mapstructure:"event_budget"`
	Workers      int    `yaml:"workers" mapstructure:"workers"`
	CrashOnError bool   `yaml:"crash_on_error" mapstructure:"crash_on_error"`
	Sample       int    `yaml:"sample" mapstructure:"sample"`
}

// ServiceConfig configures a rate-limited HTTP query service
type ServiceConfig struct {
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	Spacing  time.Duration `yaml:"spacing" mapstructure:"spacing"`
	Retries  int           `yaml:"retries" mapstructure:"retries"`
}

// NERConfig selects the named-entity recognizer
type NERConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"` // falcon2, openai, none
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Model    string `yaml:"model" mapstructure:"model"`
	BaseURL  string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	APIKey   string `yaml:"-" mapstructure:"api_key"`
}

// SinkConfig selects where topics and events are written
type SinkConfig struct {
	Type          string `yaml:"type" mapstructure:"type"` // jsonl, postgres, neo4j, nats
	Path          string `yaml:"path" mapstructure:"path"`
	PostgresDSN   string `yaml:"postgres_dsn,omitempty" mapstructure:"postgres_dsn"`
	Neo4jURI      string `yaml:"neo4j_uri,omitempty" mapstructure:"neo4j_uri"`
	Neo4jUser     string `yaml:"neo4j_user,omitempty" mapstructure:"neo4j_user"`
	Neo4jPassword string `yaml:"-" mapstructure:"neo4j_password"`
	NATSURL       string `yaml:"nats_url,omitempty" mapstructure:"nats_url"`
	NATSSubject   string `yaml:"nats_subject,omitempty" mapstructure:"nats_subject"`
}

// AnalyticsConfig configures run analytics export
type AnalyticsConfig struct {
	TextfilePath string `yaml:"textfile_path" mapstructure:"textfile_path"`
}

// LogConfig configures diagnostics logging
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "currentevents/0.1 (+https://github.com/ppiankov/currentevents)",
			MaxBodyBytes:  20_000_000,
			Spacing:       500 * time.Millisecond,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled:          true,
			Dir:              "cache",
			RedisTTL:         7 * 24 * time.Hour,
			ArticleCacheSize: 10000,
		},
		Run: RunConfig{
			StartDay:    1,
			EndDay:      31,
			TopicBudget: 2,
			EventBudget: 1,
			Workers:     1,
		},
		Wikidata: ServiceConfig{
			Endpoint: "https://query.wikidata.org/sparql",
			Spacing:  2 * time.Second,
			Retries:  3,
		},
		Nominatim: ServiceConfig{
			Endpoint: "https://nominatim.openstreetmap.org",
			Spacing:  2 * time.Second,
			Retries:  3,
		},
		NER: NERConfig{
			Provider: "falcon2",
			Endpoint: "https://labs.tib.eu/falcon/falcon2/api",
			Model:    "gpt-4o-mini",
		},
		Sink: SinkConfig{
			Type:        "jsonl",
			Path:        "dataset",
			NATSSubject: "currentevents",
		},
		Analytics: AnalyticsConfig{
			TextfilePath: "analytics/currentevents.prom",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
