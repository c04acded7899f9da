package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken  string
	CommandPrefix string

	// Google Sheets
	SpreadsheetID   string
	GoogleCredsJSON string // inline service account JSON, takes priority
	GoogleCredsFile string // fallback path to a service account key file

	// Image server
	HTTPPort  int
	ImagesDir string

	// Ngrok
	NgrokControlURL string

	// Daily reminder (local wall clock)
	ReminderHour   int
	ReminderMinute int

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:    os.Getenv("DISCORD_BOT_TOKEN"),
		CommandPrefix:   getEnvOrDefault("COMMAND_PREFIX", "/"),
		SpreadsheetID:   os.Getenv("SPREADSHEET_ID"),
		GoogleCredsJSON: os.Getenv("GOOGLE_CREDS"),
		GoogleCredsFile: getEnvOrDefault("GOOGLE_CREDS_FILE", "service_account.json"),
		ImagesDir:       getEnvOrDefault("IMAGES_DIR", "uploaded_images"),
		NgrokControlURL: getEnvOrDefault("NGROK_CONTROL_URL", "http://localhost:4040"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
	}

	port, err := getEnvInt("PORT", 5000)
	if err != nil {
		return nil, err
	}
	cfg.HTTPPort = port

	hour, err := getEnvInt("REMINDER_HOUR", 22)
	if err != nil {
		return nil, err
	}
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("REMINDER_HOUR must be 0-23, got %d", hour)
	}
	cfg.ReminderHour = hour

	minute, err := getEnvInt("REMINDER_MINUTE", 0)
	if err != nil {
		return nil, err
	}
	if minute < 0 || minute > 59 {
		return nil, fmt.Errorf("REMINDER_MINUTE must be 0-59, got %d", minute)
	}
	cfg.ReminderMinute = minute

	// Validate required fields
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("SPREADSHEET_ID is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
