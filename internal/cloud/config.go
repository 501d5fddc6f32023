package cloud

import (
	"fmt"
	"strings"
)

// Defaults for the bucket provider.
const (
	DefaultS3Region    = "ap-northeast-2"
	DefaultS3KeyPrefix = "backup"
)

// S3Config holds the long-lived credentials of the bucket provider.
type S3Config struct {
	AccessKeyID     string `json:"accessKeyId" yaml:"access_key_id"`
	SecretAccessKey string `json:"secretAccessKey" yaml:"secret_access_key"`
	Region          string `json:"region" yaml:"region"`
	BucketName      string `json:"bucketName" yaml:"bucket_name"`
	KeyPrefix       string `json:"keyPrefix,omitempty" yaml:"key_prefix"`
	// Endpoint overrides the AWS endpoint for S3 compatible stores.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint"`
	// Insecure disables TLS; only for local test servers.
	Insecure bool `json:"insecure,omitempty" yaml:"insecure"`
}

// DefaultS3Config returns a config with the default region and prefix.
func DefaultS3Config() S3Config {
	return S3Config{Region: DefaultS3Region, KeyPrefix: DefaultS3KeyPrefix}
}

// Validate reports missing required fields.
func (c S3Config) Validate() error {
	var missing []string
	if c.AccessKeyID == "" {
		missing = append(missing, "accessKeyId")
	}
	if c.SecretAccessKey == "" {
		missing = append(missing, "secretAccessKey")
	}
	if c.BucketName == "" {
		missing = append(missing, "bucketName")
	}
	if c.Region == "" && c.Endpoint == "" {
		missing = append(missing, "region")
	}
	if len(missing) > 0 {
		return fmt.Errorf("s3 config missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Redacted returns a copy safe to display.
func (c S3Config) Redacted() S3Config {
	if c.SecretAccessKey != "" {
		c.SecretAccessKey = "********"
	}
	return c
}

// Config selects and configures a provider.
type Config struct {
	Type Type      `json:"type"`
	S3   *S3Config `json:"s3,omitempty"`
	// ClientID is the OAuth application id for token providers.
	ClientID string `json:"clientId,omitempty"`
	// Dir is the target directory of the filesystem provider.
	Dir string `json:"dir,omitempty"`
}

// Validate checks that the config carries what its type needs.
func (c Config) Validate() error {
	switch c.Type {
	case TypeS3:
		if c.S3 == nil {
			return fmt.Errorf("s3 config is required for type %q", c.Type)
		}
		return c.S3.Validate()
	case TypeGoogle, TypeOneDrive:
		return nil
	case TypeFilesystem:
		if c.Dir == "" {
			return fmt.Errorf("dir is required for type %q", c.Type)
		}
		return nil
	default:
		return fmt.Errorf("unknown provider type %q", c.Type)
	}
}
