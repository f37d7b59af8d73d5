package config

import (
	"fmt"
	"os"
)

// Validate checks the configuration for fatal errors. Called by Load();
// a failure here must abort startup before any collaborator is dialed.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Genkit reads GEMINI_API_KEY itself; we only assert presence so a
	// missing key surfaces immediately instead of on the first model call.
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingAPIKey)
	}

	if c.GenerationModel == "" {
		return fmt.Errorf("%w: generation_model is empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model is empty", ErrInvalidModelName)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: postgres_host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: postgres_db_name is empty", ErrInvalidPostgresDBName)
	}

	return nil
}
