package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct-level `validate` tags
// plus the cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			first := errs[0]
			return fmt.Errorf("invalid value for %s (rule %q)", first.Namespace(), first.Tag())
		}
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if cfg.Resolver.Mode == "http" && cfg.Resolver.Endpoint == "" {
		return fmt.Errorf("resolver: endpoint is required in http mode")
	}

	if cfg.Acquire.LockTimeout >= cfg.Acquire.DownloadTimeout {
		return fmt.Errorf("acquire: lock_timeout (%s) must be shorter than download_timeout (%s)",
			cfg.Acquire.LockTimeout, cfg.Acquire.DownloadTimeout)
	}

	return nil
}
