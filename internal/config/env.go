// Package config loads the settings the servers need from the process
// environment and from the desktop client's JSON configuration file.
//
// Loading never happens at startup. Servers call into this package when a
// tool runs, so a missing credential surfaces as a tool error instead of a
// process that refuses to start.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Qdrant holds the vector database connection settings.
type Qdrant struct {
	// Host of the gRPC endpoint. ENV: QDRANT_HOST
	Host string `env:"QDRANT_HOST,default=localhost"`
	// Port of the gRPC endpoint. ENV: QDRANT_PORT
	Port int `env:"QDRANT_PORT,default=6334"`
	// APIKey is optional. ENV: QDRANT_API_KEY
	APIKey string `env:"QDRANT_API_KEY"`
	// UseTLS enables TLS on the gRPC connection. ENV: QDRANT_USE_TLS
	UseTLS bool `env:"QDRANT_USE_TLS,default=false"`
}

// LangFlow holds the LangFlow REST endpoint and the models used to
// generate components.
type LangFlow struct {
	// APIURL is the flows collection endpoint. ENV: LANGFLOW_API_URL
	APIURL string `env:"LANGFLOW_API_URL,default=http://localhost:7860/api/v1/flows/"`
	// OpenAIAPIKey authenticates component generation. ENV: OPENAI_API_KEY
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	// OpenAIBaseURL overrides the OpenAI endpoint. ENV: OPENAI_BASE_URL
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	// PythonModel writes component code. ENV: LANGFLOW_PYTHON_MODEL
	PythonModel string `env:"LANGFLOW_PYTHON_MODEL,default=gpt-4o-mini"`
	// JSONModel writes the component definition. ENV: LANGFLOW_JSON_MODEL
	JSONModel string `env:"LANGFLOW_JSON_MODEL,default=gpt-4o-mini"`
}

// Redis holds the settings of the shared state store backend.
type Redis struct {
	// Addr like "localhost:6379". ENV: REDIS_ADDR
	Addr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: ULTRAMCP_KEY_PREFIX
	KeyPrefix string `env:"ULTRAMCP_KEY_PREFIX,default=ultramcp:store:"`
	// Namespace separates stores that share a prefix. ENV: ULTRAMCP_NAMESPACE
	Namespace string `env:"ULTRAMCP_NAMESPACE"`
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Files
// that do not exist are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// QdrantFromEnv decodes Qdrant settings from the environment.
func QdrantFromEnv() (Qdrant, error) {
	var c Qdrant
	if err := envdecode.StrictDecode(&c); err != nil {
		return Qdrant{}, fmt.Errorf("invalid Qdrant configuration: %w", err)
	}
	return c, nil
}

// LangFlowFromEnv decodes LangFlow settings from the environment.
func LangFlowFromEnv() (LangFlow, error) {
	var c LangFlow
	if err := envdecode.StrictDecode(&c); err != nil {
		return LangFlow{}, fmt.Errorf("invalid LangFlow configuration: %w", err)
	}
	return c, nil
}

// RedisFromEnv decodes Redis settings from the environment.
func RedisFromEnv() (Redis, error) {
	var c Redis
	if err := envdecode.StrictDecode(&c); err != nil {
		return Redis{}, fmt.Errorf("invalid Redis configuration: %w", err)
	}
	return c, nil
}
