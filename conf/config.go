// Package conf wraps viper to provide configuration for the hall app.
// Values come from an env-format config file when one is present, with
// fallthrough to process environment variables. The config file, once
// loaded, is treated as immutable for the uptime of the application
// (tests being the exception, via SetEnv/UnsetEnv).
package conf

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

var envVars *viper.Viper

// Tracks whether a config file was found and parsed. When it was not,
// every lookup falls back to the process environment.
var fileLoaded bool

func setup(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("local")
	v.SetConfigType("env")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err == nil {
		fileLoaded = true
	}
	return v
}

func init() {
	locations := []string{
		"/go/src/github.com/unionhall/hall-app/shared_files/decrypted",
		"/etc/hall-app",
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc + "/local.env"); err == nil {
			envVars = setup(loc)
			return
		}
	}
	envVars = viper.New()
}

// GetEnv retrieves the value stored for key. Missing keys return "".
func GetEnv(key string) string {
	if fileLoaded {
		if value := envVars.GetString(key); value != "" {
			return value
		}
	}
	return os.Getenv(key)
}

// LookupEnv reports the value for key and whether it is set, checking
// the config file before the process environment.
func LookupEnv(key string) (string, bool) {
	if fileLoaded {
		if value := envVars.Get(key); value != nil && value != "" {
			return value.(string), true
		}
	}
	return os.LookupEnv(key)
}

// SetEnv overrides a key for the duration of a test. The *testing.T
// parameter is there to ensure callers knowingly use it in test scope.
func SetEnv(protect *testing.T, key, value string) error {
	if fileLoaded {
		envVars.Set(key, value)
		return nil
	}
	return os.Setenv(key, value)
}

// UnsetEnv clears a key set through SetEnv.
func UnsetEnv(protect *testing.T, key string) error {
	if fileLoaded {
		envVars.Set(key, "")
	}
	return os.Unsetenv(key)
}
