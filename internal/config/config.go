// Package config reads the engine's environment once at process start into
// an explicit Config struct that is then passed through constructors,
// rather than read ad hoc from os.Getenv at each call site.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every environment-derived setting recognized by the engine
// (spec §6's environment variable table).
type Config struct {
	// Kubernetes
	Namespace          string
	Image              string
	ServiceAccountName string
	RestartPolicy      string
	ImagePullPolicy    string
	JobTTLSeconds      int32

	// PVC
	PVCAccessMode   string
	PVCStorageClass string
	PVCDefaultSizeGi int64

	// Secrets projected into derived pods
	RedisSecretName       string
	MongoSecretName       string
	S3SecretName          string
	MongoURISecretKey     string

	// Security contexts
	InfrastructureSecurityContextEnabled bool
	ExecutorSecurityContextEnabled       bool
	SecurityContextPath                  string
	SecurityContextConfigMapName         string

	// Executor monitoring
	MonitorTimeoutSeconds int
	PollIntervalSeconds   int
	BackoffLimitSeconds   int

	// Broker
	MessageBrokerHost     string
	MessageBrokerPort     string
	MessageBrokerPassword string

	// Object store
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	S3URL              string

	// Persistence
	MongoURI      string
	MongoDatabase string

	// Logging
	LogLevel string

	// API
	Port      string
	JWTSecret string
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// getEnvChain tries multiple environment variable names in order, returning
// the first non-empty value.
func getEnvChain(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

// Load reads the environment exactly once and returns the resulting Config.
func Load() (*Config, error) {
	cfg := &Config{
		Namespace:          getEnv("POIESIS_K8S_NAMESPACE", "poiesis"),
		Image:              getEnv("POIESIS_IMAGE", ""),
		ServiceAccountName: getEnv("POIESIS_SERVICE_ACCOUNT_NAME", "default"),
		RestartPolicy:      getEnv("POIESIS_RESTART_POLICY", "Never"),
		ImagePullPolicy:    getEnv("POIESIS_IMAGE_PULL_POLICY", "IfNotPresent"),
		JobTTLSeconds:      int32(getEnvInt("POIESIS_JOB_TTL", 3600)),

		PVCAccessMode:    getEnv("POIESIS_PVC_ACCESS_MODE", "ReadWriteMany"),
		PVCStorageClass:  getEnv("POIESIS_PVC_STORAGE_CLASS", ""),
		PVCDefaultSizeGi: getEnvInt64("POIESIS_PVC_DEFAULT_SIZE_GI", 1),

		RedisSecretName:   getEnv("POIESIS_REDIS_SECRET_NAME", ""),
		MongoSecretName:   getEnv("POIESIS_MONGO_SECRET_NAME", ""),
		S3SecretName:      getEnv("POIESIS_S3_SECRET_NAME", ""),
		MongoURISecretKey: getEnv("POIESIS_MONGODB_URI_SECRET_KEY", "mongo-uri"),

		InfrastructureSecurityContextEnabled: getEnvBool("POIESIS_INFRASTRUCTURE_SECURITY_CONTEXT_ENABLED", false),
		ExecutorSecurityContextEnabled:       getEnvBool("POIESIS_EXECUTOR_SECURITY_CONTEXT_ENABLED", false),
		SecurityContextPath:                  getEnv("POIESIS_SECURITY_CONTEXT_PATH", "/etc/poiesis/security"),
		SecurityContextConfigMapName:         getEnv("POIESIS_SECURITY_CONTEXT_CONFIGMAP_NAME", "poiesis-security-context"),

		MonitorTimeoutSeconds: getEnvInt("MONITOR_TIMEOUT_SECONDS", 0),
		PollIntervalSeconds:   getEnvInt("POLL_INTERVAL_SECONDS", 5),
		BackoffLimitSeconds:   getEnvInt("BACKOFF_LIMIT", 32),

		MessageBrokerHost:     getEnv("MESSAGE_BROKER_HOST", "localhost"),
		MessageBrokerPort:     getEnv("MESSAGE_BROKER_PORT", "6379"),
		MessageBrokerPassword: getEnv("MESSAGE_BROKER_PASSWORD", ""),

		AWSAccessKeyID:     getEnvChain("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: getEnvChain("AWS_SECRET_ACCESS_KEY"),
		AWSRegion:          getEnv("AWS_REGION", ""),
		S3URL:              getEnv("S3_URL", ""),

		MongoURI:      getEnv("POIESIS_MONGODB_URI", ""),
		MongoDatabase: getEnv("POIESIS_MONGODB_DATABASE", "poiesis"),

		LogLevel: getEnv("LOG_LEVEL", "INFO"),

		Port:      getEnv("PORT", "8080"),
		JWTSecret: getEnv("POIESIS_JWT_SECRET", ""),
	}

	if cfg.Namespace == "" {
		return nil, fmt.Errorf("POIESIS_K8S_NAMESPACE resolved empty")
	}

	return cfg, nil
}
