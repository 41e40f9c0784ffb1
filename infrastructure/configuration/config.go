package configuration

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"ads-sync/infrastructure/logger"

	"github.com/spf13/viper"
)

type Config struct {
	Database    Database    `json:"database"`
	App         App         `json:"app"`
	Pubsub      Pubsub      `json:"pubsub"`
	ServiceBus  ServiceBus  `json:"serviceBus"`
	RedisClient RedisClient `json:"redisClient"`
	Logger      Logger      `json:"logger"`
	GoogleAds   GoogleAds   `json:"googleAds"`
	Vault       Vault       `json:"vault"`
	RateLimit   RateLimit   `json:"rateLimit"`
	Queue       Queue       `json:"queue"`
	Worker      Worker      `json:"worker"`
	Sync        Sync        `json:"sync"`
	Cache       Cache       `json:"cache"`
	Events      Events      `json:"events"`
}

type App struct {
	Port        int      `json:"port"`
	SecretKey   string   `json:"secretKey"`
	TLSEnabled  bool     `json:"tlsEnabled"`
	TLSCertFile string   `json:"tlsCertFile"`
	TLSKeyFile  string   `json:"tlsKeyFile"`
	AllowOrigin []string `json:"allowOrigin"`
}

type Database struct {
	Psql  Db `json:"psql"`
	Mongo Db `json:"mongo"`
}

type Db struct {
	Name     string `json:"string"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"sslMode"`
}

type Pubsub struct {
	ProjectID string `json:"projectID"`
}

type ServiceBus struct {
	Namespace string `json:"namespace"`
}

type RedisClient struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	Password     string `json:"password"`
	DatabaseName string `json:"databaseName"`
	Username     string `json:"username"`
}

type Logger struct {
	Format string `json:"format"`
	Level  string `json:"level"`
}

type GoogleAds struct {
	ClientID        string   `json:"clientId"`
	ClientSecret    string   `json:"clientSecret"`
	RedirectURI     string   `json:"redirectURI"`
	DeveloperToken  string   `json:"developerToken"`
	LoginCustomerID string   `json:"loginCustomerId"`
	APIVersion      string   `json:"apiVersion"`
	BaseURL         string   `json:"baseURL"`
	Scopes          []string `json:"scopes"`
	TimeoutSeconds  int      `json:"timeoutSeconds"`
}

type Vault struct {
	Secret string `json:"secret"`
}

type RateLimit struct {
	Backend         string  `json:"backend"`
	Key             string  `json:"key"`
	Capacity        int     `json:"capacity"`
	RefillPerSecond float64 `json:"refillPerSecond"`
	MaxWaitMs       int     `json:"maxWaitMs"`
	PollIntervalMs  int     `json:"pollIntervalMs"`
}

type Queue struct {
	Prefix               string `json:"prefix"`
	Attempts             int    `json:"attempts"`
	BackoffMs            int    `json:"backoffMs"`
	KeepCompleted        int    `json:"keepCompleted"`
	KeepCompletedAgeHour int    `json:"keepCompletedAgeHour"`
	KeepFailed           int    `json:"keepFailed"`
	KeepFailedAgeHour    int    `json:"keepFailedAgeHour"`
	LeaseSeconds         int    `json:"leaseSeconds"`
	EnqueueTimeoutMs     int    `json:"enqueueTimeoutMs"`
}

type Worker struct {
	Enabled        bool       `json:"enabled"`
	PollIntervalMs int        `json:"pollIntervalMs"`
	MetricsSync    WorkerPool `json:"metricsSync"`
	Discovery      WorkerPool `json:"discovery"`
}

type WorkerPool struct {
	Concurrency      int `json:"concurrency"`
	MaxJobsPerWindow int `json:"maxJobsPerWindow"`
	WindowSeconds    int `json:"windowSeconds"`
}

type Sync struct {
	SchedulerEnabled        bool   `json:"schedulerEnabled"`
	InitialBackfillDays     int    `json:"initialBackfillDays"`
	ChunkDays               int    `json:"chunkDays"`
	StaleJobMinutes         int    `json:"staleJobMinutes"`
	DailyAt                 string `json:"dailyAt"`
	IntradayEnabled         bool   `json:"intradayEnabled"`
	IntradayIntervalMinutes int    `json:"intradayIntervalMinutes"`
	IncludeAdLevel          bool   `json:"includeAdLevel"`
}

type Cache struct {
	Prefix              string `json:"prefix"`
	AggregateTTLMinutes int    `json:"aggregateTTLMinutes"`
}

type Events struct {
	Backend string `json:"backend"`
	Topic   string `json:"topic"`
}

func (r RateLimit) MaxWait() time.Duration {
	return time.Duration(r.MaxWaitMs) * time.Millisecond
}

func (r RateLimit) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalMs) * time.Millisecond
}

func (q Queue) Backoff() time.Duration {
	return time.Duration(q.BackoffMs) * time.Millisecond
}

func (q Queue) Lease() time.Duration {
	return time.Duration(q.LeaseSeconds) * time.Second
}

func (q Queue) EnqueueTimeout() time.Duration {
	return time.Duration(q.EnqueueTimeoutMs) * time.Millisecond
}

func (w WorkerPool) Window() time.Duration {
	return time.Duration(w.WindowSeconds) * time.Second
}

func (s Sync) StaleAfter() time.Duration {
	return time.Duration(s.StaleJobMinutes) * time.Minute
}

func (s Sync) IntradayInterval() time.Duration {
	return time.Duration(s.IntradayIntervalMinutes) * time.Minute
}

func (c Cache) AggregateTTL() time.Duration {
	return time.Duration(c.AggregateTTLMinutes) * time.Minute
}

var C Config

func init() {
	LoadEnvFromFile("config.env", ".env")
	LoadConfig()
	initDatabase(&C)
	initApp(&C)
	initSecrets(&C)
	applyDefaults(&C)
}

func LoadConfig() {
	name := getConfig()
	viper.SetConfigName(name)
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("../../")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.GetLogger().Warn("Config file not found")
		} else {
			logger.GetLogger().WithField("error", err).Error("Error reading config file")
		}
	}

	logger.GetLogger().WithField("config", name).Info("Config set up successfully")
	if err := viper.Unmarshal(&C); err != nil {
		logger.GetLogger().WithField("error", err).Error("Viper unable to decode into struct")
	}
}

func getConfig() string {
	name := "config"
	env := os.Getenv("ENV")
	if env != "" {
		name = fmt.Sprintf("%s-%s", name, env)
	}
	return name
}

func initDatabase(C *Config) {
	C.Database.Psql.Name = getConfigValue(C.Database.Psql.Name, "DB_NAME", "ads_sync")
	C.Database.Psql.Host = getConfigValue(C.Database.Psql.Host, "DB_HOST", "localhost")
	C.Database.Psql.Port = getConfigValue(C.Database.Psql.Port, "DB_PORT", "5432")
	C.Database.Psql.User = getConfigValue(C.Database.Psql.User, "DB_USER", "postgres")
	C.Database.Psql.Password = getConfigValue(C.Database.Psql.Password, "DB_PASSWORD", "")
	C.Database.Psql.SSLMode = getConfigValue(C.Database.Psql.SSLMode, "DB_SSLMODE", "disable")

	C.Database.Mongo.Host = getConfigValue(C.Database.Mongo.Host, "MONGO_HOST", "")
	C.Database.Mongo.Port = getConfigValue(C.Database.Mongo.Port, "MONGO_PORT", "27017")
	C.Database.Mongo.User = getConfigValue(C.Database.Mongo.User, "MONGO_USER", "")
	C.Database.Mongo.Password = getConfigValue(C.Database.Mongo.Password, "MONGO_PASSWORD", "")
	C.Database.Mongo.Name = getConfigValue(C.Database.Mongo.Name, "MONGO_DB_NAME", "ads_sync")

	C.RedisClient.Host = getConfigValue(C.RedisClient.Host, "REDIS_HOST", "localhost")
	C.RedisClient.Port = getConfigValue(C.RedisClient.Port, "REDIS_PORT", "6379")
	C.RedisClient.Username = getConfigValue(C.RedisClient.Username, "REDIS_USERNAME", "")
	C.RedisClient.Password = getConfigValue(C.RedisClient.Password, "REDIS_PASSWORD", "")
}

func initApp(C *Config) {
	if v := os.Getenv("SECRET_KEY"); v != "" {
		C.App.SecretKey = v
	}
	// APP_PORT -> PORT -> config -> default
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	}
	if v := os.Getenv("TLS_ENABLED"); v != "" {
		switch v {
		case "1", "true", "TRUE", "True":
			C.App.TLSEnabled = true
		case "0", "false", "FALSE", "False":
			C.App.TLSEnabled = false
		}
	}
	if C.App.TLSCertFile == "" {
		C.App.TLSCertFile = os.Getenv("TLS_CERT_FILE")
	}
	if C.App.TLSKeyFile == "" {
		C.App.TLSKeyFile = os.Getenv("TLS_KEY_FILE")
	}
	if v := os.Getenv("WORKER_ENABLED"); v != "" {
		C.Worker.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		C.Sync.SchedulerEnabled = v == "true" || v == "1"
	}
	if C.App.SecretKey == "" {
		logger.GetLogger().Warn("App.SecretKey not set; JWT authentication will fail. Provide SECRET_KEY via environment.")
	}
}

func initSecrets(C *Config) {
	C.Vault.Secret = getConfigValue(C.Vault.Secret, "VAULT_SECRET", "")
	C.GoogleAds.ClientID = getConfigValue(C.GoogleAds.ClientID, "GOOGLE_ADS_CLIENT_ID", "")
	C.GoogleAds.ClientSecret = getConfigValue(C.GoogleAds.ClientSecret, "GOOGLE_ADS_CLIENT_SECRET", "")
	C.GoogleAds.DeveloperToken = getConfigValue(C.GoogleAds.DeveloperToken, "GOOGLE_ADS_DEVELOPER_TOKEN", "")
	C.GoogleAds.LoginCustomerID = getConfigValue(C.GoogleAds.LoginCustomerID, "GOOGLE_ADS_LOGIN_CUSTOMER_ID", "")
	C.Pubsub.ProjectID = getConfigValue(C.Pubsub.ProjectID, "PUBSUB_PROJECT_ID", "")
	C.ServiceBus.Namespace = getConfigValue(C.ServiceBus.Namespace, "SERVICEBUS_NAMESPACE", "")
	if C.Vault.Secret == "" {
		logger.GetLogger().Warn("Vault.Secret not set; credentials cannot be encrypted. Provide VAULT_SECRET via environment.")
	}
}

// applyDefaults fills every tunable left empty by the config file and environment
func applyDefaults(C *Config) {
	if C.App.Port == 0 {
		C.App.Port = 10001
	}
	scheme := "http"
	if C.App.TLSEnabled {
		scheme = "https"
	}
	if C.GoogleAds.RedirectURI == "" {
		C.GoogleAds.RedirectURI = getEnv("GOOGLE_ADS_REDIRECT_URL", fmt.Sprintf("%s://localhost:%d/auth/google-ads/callback", scheme, C.App.Port))
	}
	if C.GoogleAds.APIVersion == "" {
		C.GoogleAds.APIVersion = "v17"
	}
	if C.GoogleAds.BaseURL == "" {
		C.GoogleAds.BaseURL = "https://googleads.googleapis.com"
	}
	if len(C.GoogleAds.Scopes) == 0 {
		C.GoogleAds.Scopes = []string{"https://www.googleapis.com/auth/adwords", "https://www.googleapis.com/auth/userinfo.email"}
	}
	if C.GoogleAds.TimeoutSeconds == 0 {
		C.GoogleAds.TimeoutSeconds = 60
	}

	if C.RateLimit.Backend == "" {
		C.RateLimit.Backend = "redis"
	}
	if C.RateLimit.Key == "" {
		C.RateLimit.Key = "adsync:ratelimit:google_ads"
	}
	if C.RateLimit.Capacity == 0 {
		C.RateLimit.Capacity = 15
	}
	if C.RateLimit.RefillPerSecond == 0 {
		C.RateLimit.RefillPerSecond = 1
	}
	if C.RateLimit.MaxWaitMs == 0 {
		C.RateLimit.MaxWaitMs = 30000
	}
	if C.RateLimit.PollIntervalMs == 0 {
		C.RateLimit.PollIntervalMs = 250
	}

	if C.Queue.Prefix == "" {
		C.Queue.Prefix = "adsync:queue"
	}
	if C.Queue.Attempts == 0 {
		C.Queue.Attempts = 3
	}
	if C.Queue.BackoffMs == 0 {
		C.Queue.BackoffMs = 60000
	}
	if C.Queue.KeepCompleted == 0 {
		C.Queue.KeepCompleted = 100
	}
	if C.Queue.KeepCompletedAgeHour == 0 {
		C.Queue.KeepCompletedAgeHour = 24
	}
	if C.Queue.KeepFailed == 0 {
		C.Queue.KeepFailed = 500
	}
	if C.Queue.KeepFailedAgeHour == 0 {
		C.Queue.KeepFailedAgeHour = 24 * 7
	}
	if C.Queue.LeaseSeconds == 0 {
		C.Queue.LeaseSeconds = 600
	}
	if C.Queue.EnqueueTimeoutMs == 0 {
		C.Queue.EnqueueTimeoutMs = 5000
	}

	if C.Worker.PollIntervalMs == 0 {
		C.Worker.PollIntervalMs = 1000
	}
	defaultPool(&C.Worker.MetricsSync, 3, 10, 60)
	defaultPool(&C.Worker.Discovery, 1, 5, 60)

	if C.Sync.InitialBackfillDays == 0 {
		C.Sync.InitialBackfillDays = 90
	}
	if C.Sync.ChunkDays == 0 {
		C.Sync.ChunkDays = 30
	}
	if C.Sync.StaleJobMinutes == 0 {
		C.Sync.StaleJobMinutes = 60
	}
	if C.Sync.DailyAt == "" {
		C.Sync.DailyAt = "03:00"
	}
	if C.Sync.IntradayIntervalMinutes == 0 {
		C.Sync.IntradayIntervalMinutes = 60
	}

	if C.Cache.Prefix == "" {
		C.Cache.Prefix = "adsync:agg"
	}
	if C.Cache.AggregateTTLMinutes == 0 {
		C.Cache.AggregateTTLMinutes = 30
	}

	if C.Events.Backend == "" {
		C.Events.Backend = getEnv("EVENTS_BACKEND", "none")
	}
	if C.Events.Topic == "" {
		C.Events.Topic = "ads-sync-completed"
	}
}

func defaultPool(p *WorkerPool, concurrency, maxJobs, windowSeconds int) {
	if p.Concurrency == 0 {
		p.Concurrency = concurrency
	}
	if p.MaxJobsPerWindow == 0 {
		p.MaxJobsPerWindow = maxJobs
	}
	if p.WindowSeconds == 0 {
		p.WindowSeconds = windowSeconds
	}
}

// PostgresDSN builds a lib/pq connection string from the Psql settings
func (d Db) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// MongoURI returns an empty string when Mongo is not configured
func (d Db) MongoURI() string {
	if d.Host == "" {
		return ""
	}
	if d.User == "" {
		return fmt.Sprintf("mongodb://%s:%s", d.Host, d.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%s", d.User, d.Password, d.Host, d.Port)
}
