package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. API key (required for embeddings and recommendation generation)
	if os.Getenv("OPENAI_API_KEY") == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required\n"+
			"Get your API key at: https://platform.openai.com/api-keys",
			ErrMissingAPIKey)
	}

	// 2. Model configuration
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: embedding_model cannot be empty", ErrInvalidEmbeddingModel)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 32768 {
		return fmt.Errorf("%w: must be between 1 and 32,768, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	// 3. Retrieval configuration
	if c.RetrievalK < 1 || c.RetrievalK > 50 {
		return fmt.Errorf("%w: must be between 1 and 50, got %d", ErrInvalidRetrievalK, c.RetrievalK)
	}
	if c.SimilarityThreshold < 0.0 || c.SimilarityThreshold > 1.0 {
		return fmt.Errorf("%w: must be between 0.0 and 1.0, got %.2f", ErrInvalidThreshold, c.SimilarityThreshold)
	}

	// 4. Course data
	if c.CourseDataPath == "" {
		return fmt.Errorf("%w: course_data_path cannot be empty", ErrInvalidCoursePath)
	}

	// 5. PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "coursemate_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"hint", "change postgres_password in config.yaml for production deployments")
	}

	// Modern SSL modes only; allow/prefer are deprecated (MITM vulnerable).
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	// 6. Service addresses
	for _, addr := range []struct{ name, value string }{
		{"api_addr", c.APIAddr},
		{"web_addr", c.WebAddr},
	} {
		if _, _, err := net.SplitHostPort(addr.value); err != nil {
			return fmt.Errorf("%w: %s %q: %v", ErrInvalidAddr, addr.name, addr.value, err)
		}
	}

	return nil
}

// ValidateWeb checks only what the web frontend needs: valid bind
// addresses. The frontend proxies to the API and holds no AI or database
// credentials of its own.
func (c *Config) ValidateWeb() error {
	if c == nil {
		return ErrConfigNil
	}
	for _, addr := range []struct{ name, value string }{
		{"api_addr", c.APIAddr},
		{"web_addr", c.WebAddr},
	} {
		if _, _, err := net.SplitHostPort(addr.value); err != nil {
			return fmt.Errorf("%w: %s %q: %v", ErrInvalidAddr, addr.name, addr.value, err)
		}
	}
	return nil
}

// APIBaseURL returns the HTTP base URL for the API service, suitable for the
// web proxy and the supervisor's readiness probe.
func (c *Config) APIBaseURL() string {
	return "http://" + serviceHost(c.APIAddr)
}

// WebBaseURL returns the HTTP base URL for the web service.
func (c *Config) WebBaseURL() string {
	return "http://" + serviceHost(c.WebAddr)
}

// serviceHost rewrites wildcard binds to a loopback host clients can reach.
func serviceHost(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
