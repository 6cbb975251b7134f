package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var s3BucketPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// Validator checks struct tags and the rules that span sections
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(yamlName)
	return &Validator{validate: v}
}

// ValidateConfig performs comprehensive configuration validation
func (v *Validator) ValidateConfig(config *Config) error {
	if err := v.validate.Struct(config); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return formatFieldErrors(fieldErrs)
		}
		return err
	}

	if err := v.validateStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("storage config validation failed: %w", err)
	}

	if err := v.validateSecurityConfig(&config.Security); err != nil {
		return fmt.Errorf("security config validation failed: %w", err)
	}

	return nil
}

// validateStorageConfig checks the settings of the selected transport
func (v *Validator) validateStorageConfig(config *StorageConfig) error {
	switch config.Type {
	case "local":
		if config.Local.Root == "" {
			return errors.New("local.root is required for the local store")
		}
	case "s3":
		if !s3BucketPattern.MatchString(config.S3.Bucket) {
			return fmt.Errorf("invalid S3 bucket name %q", config.S3.Bucket)
		}
		if (config.S3.AccessKey == "") != (config.S3.SecretKey == "") {
			return errors.New("s3 access_key and secret_key must be set together")
		}
	case "ftp":
		if config.FTP.Address == "" {
			return errors.New("ftp.address is required for the ftp store")
		}
	}
	return nil
}

func (v *Validator) validateSecurityConfig(config *SecurityConfig) error {
	if config.EnableAuth && config.JWTSecret == "" {
		return errors.New("jwt_secret is required when auth is enabled")
	}
	return nil
}

// formatFieldErrors reports every failing field by its YAML path
func formatFieldErrors(errs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		path := fe.Namespace()
		if i := strings.Index(path, "."); i >= 0 {
			path = path[i+1:]
		}
		msg := fmt.Sprintf("%s failed %q", path, fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (%s)", fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return errors.New(strings.Join(msgs, "; "))
}

// yamlName reports fields by their YAML key
func yamlName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}
