package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN          string `envconfig:"PG_DSN"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"migrations"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	APISecret string `envconfig:"API_SECRET"`

	Crawler struct {
		Interval time.Duration `envconfig:"CRAWL_INTERVAL" default:"5m"`
		LockTTL  time.Duration `envconfig:"CRAWL_LOCK_TTL" default:"4m"`
		Keywords []string      `envconfig:"CRAWL_KEYWORDS" default:"산불,화재,산림,호우,풍수해,침수,태풍,지진"`
		RSSFeeds []string      `envconfig:"RSS_FEEDS"`
	} `envconfig:""`

	Push struct {
		Interval        time.Duration `envconfig:"PUSH_INTERVAL" default:"1m"`
		LockTTL         time.Duration `envconfig:"PUSH_LOCK_TTL" default:"50s"`
		BatchLimit      int           `envconfig:"PUSH_BATCH_LIMIT" default:"100"`
		VAPIDPublicKey  string        `envconfig:"PUBLIC_VAPID_KEY"`
		VAPIDPrivateKey string        `envconfig:"PRIVATE_VAPID_KEY"`
		Subscriber      string        `envconfig:"VAPID_SUBSCRIBER" default:"mailto:alerts@example.com"`
		TTL             int           `envconfig:"PUSH_TTL" default:"3600"`
	} `envconfig:""`

	Fanout struct {
		Channel string `envconfig:"FANOUT_CHANNEL" default:"news_updates"`
	} `envconfig:""`

	Reader struct {
		StatePath       string        `envconfig:"READER_STATE_PATH" default:"data/readstate.db"`
		RefreshInterval time.Duration `envconfig:"READER_REFRESH_INTERVAL" default:"5m"`
	} `envconfig:""`

	Limits struct {
		SyncWindow int `envconfig:"SYNC_WINDOW" default:"50"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
