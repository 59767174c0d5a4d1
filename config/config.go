package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port           string
	RequestTimeout time.Duration

	DBType         string // postgres, mysql, sqlite
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBSQLitePath   string
	DBMaxOpenConns int
	DBMaxIdleConns int

	CacheBackend  string // memory, redis, none
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaEnable         bool
	KafkaBrokers        []string
	KafkaTopic          string
	KafkaClientID       string
	KafkaPublishTimeout time.Duration

	ContentServiceURL   string // content metadata lookup, disabled when empty
	ExternalHTTPTimeout time.Duration
}

// AppConfig is a global variable to access configuration
var AppConfig *Config

// LoadConfig initializes configuration from environment variables or defaults
func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found. Using system environment variables.")
	}

	AppConfig = &Config{
		Port:           getEnv("PORT", "3000"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),

		DBType:         strings.ToLower(getEnv("DB_TYPE", "postgres")),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "tracking"),
		DBSQLitePath:   getEnv("DB_SQLITE_PATH", "./data/tracking.db"),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),

		CacheBackend:  strings.ToLower(getEnv("CACHE_BACKEND", "memory")),
		CacheTTL:      getEnvDuration("CACHE_TTL", 10*time.Minute),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		KafkaEnable:         getEnvBool("KAFKA_ENABLE", false),
		KafkaBrokers:        getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "tracking-events"),
		KafkaClientID:       getEnv("KAFKA_CLIENT_ID", "tracking-service"),
		KafkaPublishTimeout: getEnvDuration("KAFKA_PUBLISH_TIMEOUT", 10*time.Second),

		ContentServiceURL:   getEnv("CONTENT_SERVICE_URL", ""),
		ExternalHTTPTimeout: getEnvDuration("EXTERNAL_HTTP_TIMEOUT", 5*time.Second),
	}

	// Validate critical configuration
	if AppConfig.DBType == "postgres" && AppConfig.DBPassword == "" {
		log.Println("Warning: DB_PASSWORD is empty. Update it in your environment.")
	}
	if AppConfig.CacheTTL <= 0 && AppConfig.CacheBackend != "none" {
		log.Println("Warning: CACHE_TTL must be positive, caching disabled.")
		AppConfig.CacheBackend = "none"
	}
	if !AppConfig.KafkaEnable {
		log.Println("Kafka publishing is disabled (KAFKA_ENABLE=false).")
	}

	return AppConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns the default integer value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to int: %v", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to bool: %v", key, err)
		return defaultValue
	}
	return boolValue
}

// getEnvDuration accepts Go duration strings ("90s", "5m") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to duration: %v", key, err)
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}

// getEnvList splits a comma separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
