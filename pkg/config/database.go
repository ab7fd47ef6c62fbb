// pkg/config/database.go
package config

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/snowflakedb/gosnowflake"

	"github.com/David-Botos/snowplan/pkg/model"
)

// SnowflakeConfig holds Snowflake connection parameters
type SnowflakeConfig struct {
	User          string
	Password      string
	Account       string
	Warehouse     string
	Role          string
	Authenticator gosnowflake.AuthType

	// Key-pair auth; the key file must be an unencrypted PEM.
	PrivateKeyPath string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Query timeout
	QueryTimeout time.Duration
}

// loadSnowflake resolves connection parameters. config.yml supplies the
// non-secret defaults; SNOWFLAKE_* environment variables override them and
// are the only source for the password.
func loadSnowflake(fc fileConfig, env envOverride) (*SnowflakeConfig, error) {
	account := getEnv("SNOWFLAKE_ACCOUNT", env.AccountIdentifier)
	if account == "" {
		return nil, model.NewFault(model.KindConfiguration,
			errors.New("snowflake account is required: set environments.<env>.account_identifier or SNOWFLAKE_ACCOUNT"))
	}

	user := getEnv("SNOWFLAKE_USER", fc.User)
	if user == "" {
		return nil, model.NewFault(model.KindConfiguration,
			errors.New("snowflake user is required: set user in config.yml or SNOWFLAKE_USER"))
	}

	password := os.Getenv("SNOWFLAKE_PASSWORD")
	keyPath := getEnv("SNOWFLAKE_PRIVATE_KEY_PATH", fc.PrivateKeyPath)
	if password == "" && keyPath == "" {
		return nil, model.NewFault(model.KindConfiguration,
			errors.New("credentials are required: set SNOWFLAKE_PASSWORD or a private key path"))
	}

	role := getEnv("SNOWFLAKE_ROLE", firstNonEmpty(env.Role, fc.Role))
	warehouse := getEnv("SNOWFLAKE_WAREHOUSE", firstNonEmpty(env.Warehouse, fc.Warehouse))

	// Convert authenticator string to proper type
	defaultAuth := "snowflake"
	if keyPath != "" {
		defaultAuth = "jwt"
	}
	authString := getEnv("SNOWFLAKE_AUTHENTICATOR", defaultAuth)
	var authenticator gosnowflake.AuthType
	switch authString {
	case "snowflake":
		authenticator = gosnowflake.AuthTypeSnowflake
	case "oauth":
		authenticator = gosnowflake.AuthTypeOAuth
	case "externalbrowser":
		authenticator = gosnowflake.AuthTypeExternalBrowser
	case "username_password_mfa":
		authenticator = gosnowflake.AuthTypeUsernamePasswordMFA
	case "jwt":
		authenticator = gosnowflake.AuthTypeJwt
	case "token":
		authenticator = gosnowflake.AuthTypeTokenAccessor
	case "okta":
		authenticator = gosnowflake.AuthTypeOkta
	default:
		authenticator = gosnowflake.AuthTypeSnowflake
	}

	cfg := &SnowflakeConfig{
		User:           user,
		Password:       password,
		Account:        account,
		Warehouse:      warehouse,
		Role:           role,
		Authenticator:  authenticator,
		PrivateKeyPath: keyPath,

		MaxOpenConns:    getEnvAsInt("SNOWFLAKE_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("SNOWFLAKE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: time.Duration(getEnvAsInt("SNOWFLAKE_CONN_MAX_LIFETIME_SECONDS", 600)) * time.Second,
		ConnMaxIdleTime: time.Duration(getEnvAsInt("SNOWFLAKE_CONN_MAX_IDLE_TIME_SECONDS", 300)) * time.Second,
		QueryTimeout:    time.Duration(getEnvAsInt("SNOWFLAKE_QUERY_TIMEOUT_SECONDS", 300)) * time.Second,
	}

	return cfg, nil
}

// LoadPrivateKey reads and parses the RSA key referenced by PrivateKeyPath.
// Returns nil when no key path is configured.
func (c *SnowflakeConfig) LoadPrivateKey() (*rsa.PrivateKey, error) {
	if c.PrivateKeyPath == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", c.PrivateKeyPath, err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", c.PrivateKeyPath)
	}

	switch block.Type {
	case "ENCRYPTED PRIVATE KEY":
		return nil, fmt.Errorf("%s is encrypted; provide an unencrypted PKCS#8 key", c.PrivateKeyPath)
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key %s: %w", c.PrivateKeyPath, err)
		}
		return key, nil
	default:
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key %s: %w", c.PrivateKeyPath, err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key %s is %T, want RSA", c.PrivateKeyPath, key)
		}
		return rsaKey, nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Helper function to parse string slice from environment
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Simple comma-separated parsing
	var result []string
	for _, v := range splitCommaDelimited(value) {
		if v != "" {
			result = append(result, v)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}

// Split comma-delimited string and trim whitespace
func splitCommaDelimited(s string) []string {
	result := make([]string, 0)
	current := ""
	inQuotes := false

	for _, char := range s {
		switch char {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				result = append(result, current)
				current = ""
			} else {
				current += string(char)
			}
		default:
			current += string(char)
		}
	}

	if current != "" {
		result = append(result, current)
	}

	// Trim whitespace
	for i, v := range result {
		result[i] = trimSpace(v)
	}

	return result
}

// Simple whitespace trimming
func trimSpace(s string) string {
	// Remove leading/trailing whitespace and quotes
	result := ""
	for _, c := range s {
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' && c != '"' {
			result += string(c)
		}
	}
	return result
}
