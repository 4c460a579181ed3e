package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/arcfs/internal/bytesize"
)

// maxArchiveSize caps archive.max_size; decoded archives live in memory.
const maxArchiveSize = 16 * bytesize.GiB

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its struct tags and the cross-field rules the
// tags cannot express. The log level is normalized to uppercase.
func Validate(cfg *Config) error {
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	if cfg.Archive.MaxSize == 0 {
		return fmt.Errorf("archive.max_size must be positive")
	}
	if cfg.Archive.MaxSize > maxArchiveSize {
		return fmt.Errorf("archive.max_size %s exceeds the limit of %s", cfg.Archive.MaxSize, maxArchiveSize)
	}
	return nil
}

// formatValidationErrors renders every failed field as "<field>: <rule>".
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
