package gcp

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

// ClientOptions builds storage client options from inline JSON or a key file path.
// Both empty means application default credentials.
func ClientOptions(credentialsJSON, credentialsFile string) []option.ClientOption {
	if creds := strings.TrimSpace(credentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	if path := strings.TrimSpace(credentialsFile); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// CredentialsFromEnv treats a value starting with "{" as inline JSON, anything else as a path.
func CredentialsFromEnv() (jsonCreds string, file string) {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return "", ""
	}
	if strings.HasPrefix(creds, "{") {
		return creds, ""
	}
	return "", creds
}
