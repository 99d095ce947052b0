package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var configFilePath string

// getConfigDir returns ~/.config/spheres/cli
func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "spheres", "cli"), nil
}

// Init loads the TOML config file and SPHERES_* environment overrides.
// A missing file is not an error.
func Init(configPath string) error {
	viper.Reset()

	if configPath == "" {
		dir, err := getConfigDir()
		if err != nil {
			return err
		}
		configPath = filepath.Join(dir, "config.toml")
	}
	configFilePath = configPath

	viper.SetConfigType("toml")
	viper.SetEnvPrefix("SPHERES")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(filepath.Dir(configPath))

	viper.SetConfigFile(configPath)
	if _, err := os.Stat(configPath); err != nil {
		return nil
	}
	return viper.ReadInConfig()
}

func setDefaults(dir string) {
	viper.SetDefault("api.base_url", "http://localhost:8787")
	viper.SetDefault("api.timeout", 30)
	viper.SetDefault("output.format", "text")
	viper.SetDefault("feed.radius", 2000)
	viper.SetDefault("feed.count", 7)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", filepath.Join(dir, "spheres-cli.log"))
}

// GetString returns a string configuration value
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int configuration value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetFloat returns a float configuration value
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}

// Set stores a value and writes the config file back, creating it if needed
func Set(key string, value interface{}) error {
	viper.Set(key, value)
	if err := os.MkdirAll(filepath.Dir(configFilePath), 0700); err != nil {
		return err
	}
	return viper.WriteConfigAs(configFilePath)
}

// Path returns the config file in use
func Path() string {
	return configFilePath
}
