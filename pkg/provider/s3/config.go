// Package s3 publishes feeds to AWS S3 and S3-compatible stores such as
// MinIO or R2.
package s3

// DefaultAWSRegion is used for AWS S3 when neither the config, the
// environment nor a profile names a region.
const DefaultAWSRegion = "us-east-1"

// Config configures the S3 publisher.
//
// Credentials come from the SDK default chain (environment, shared files,
// profile, instance role) unless AccessKeyID and SecretAccessKey are both
// set. Endpoint selects an S3-compatible store; those usually also need
// ForcePathStyle and never receive the us-east-1 fallback.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string
	Profile  string

	AccessKeyID     string
	SecretAccessKey string

	ForcePathStyle bool
}

// Validate reports the first missing or inconsistent field.
func (c *Config) Validate() error {
	switch {
	case c.Bucket == "":
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	case (c.AccessKeyID == "") != (c.SecretAccessKey == ""):
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// staticCredentials reports whether explicit keys override the chain.
func (c *Config) staticCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// ConfigError is returned by Validate and New for unusable configs.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}

// resolveRegion picks the region after the SDK has resolved explicit, env
// and profile settings.
func resolveRegion(endpoint, sdkRegion string) string {
	switch {
	case sdkRegion != "":
		return sdkRegion
	case endpoint == "":
		return DefaultAWSRegion
	default:
		return ""
	}
}
