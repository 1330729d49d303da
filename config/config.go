package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config holds the project config values
type Config struct {
	URL          string `yaml:"dbUri"`
	DatabaseName string `yaml:"dbName"`
	BaseURL      string `yaml:"baseUrl"`
	Port         string `yaml:"port"`
	Environment  string `yaml:"environment"`
	JWTSecret    string `yaml:"-"`

	RedisURL     string   `yaml:"redisUrl"`
	KafkaBrokers []string `yaml:"kafkaBrokers"`
	KafkaTopic   string   `yaml:"kafkaTopic"`

	SendGridAPIKey string `yaml:"-"`
	EmailFrom      string `yaml:"emailFrom"`
	ExpoPushURL    string `yaml:"expoPushUrl"`

	CloudinaryURL    string `yaml:"-"`
	EvidenceFolder   string `yaml:"evidenceFolder"`
	EvidenceMaxBytes int64  `yaml:"evidenceMaxBytes"`

	ReminderSchedule string        `yaml:"reminderSchedule"`
	OverdueSchedule  string        `yaml:"overdueSchedule"`
	ReminderWindow   time.Duration `yaml:"reminderWindow"`
	ReminderCooldown time.Duration `yaml:"reminderCooldown"`
	ScanTimeout      time.Duration `yaml:"scanTimeout"`
	AllowPartyVotes  bool          `yaml:"allowPartyVotes"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		DatabaseName:     "chama",
		Port:             "8080",
		Environment:      "development",
		KafkaTopic:       "chama.disputes.events",
		EmailFrom:        "disputes@chama.app",
		ExpoPushURL:      "https://exp.host/--/api/v2/push/send",
		EvidenceFolder:   "chama-disputes",
		EvidenceMaxBytes: 10 << 20,
		ReminderSchedule: "0 * * * *",
		OverdueSchedule:  "0 3 * * *",
		ReminderWindow:   24 * time.Hour,
		ReminderCooldown: 24 * time.Hour,
		ScanTimeout:      5 * time.Minute,
	}
}

// New sets up all config related services. Values come from the defaults,
// then the environment (after loading an optional .env file).
func New() *Config {
	conf, err := Load("")
	if err != nil {
		// only a config file can fail to load and none was given
		zap.S().Errorw("failed to load config", "error", err)
	}
	return conf
}

// Load layers the defaults, the YAML file at path (if any) and the
// environment, in that order, and installs the global zap logger for the
// resulting environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	conf := Default()
	var fileErr error
	if path != "" {
		fileErr = conf.mergeFile(path)
	}
	conf.mergeEnv()

	//setup zap logger and replace default logger
	logger, err := setLogger(conf.Environment)
	if err != nil {
		logger = zap.NewExample()
	}
	_ = zap.ReplaceGlobals(logger)

	if fileErr != nil {
		return conf, fileErr
	}
	return conf, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	envString("DB_URI", &c.URL)
	envString("DB_NAME", &c.DatabaseName)
	envString("BASE_URL", &c.BaseURL)
	envString("PORT", &c.Port)
	envString("ENVIRONMENT", &c.Environment)
	envString("JWT_SECRET", &c.JWTSecret)
	envString("REDIS_URL", &c.RedisURL)
	envString("KAFKA_TOPIC", &c.KafkaTopic)
	envString("SENDGRID_API_KEY", &c.SendGridAPIKey)
	envString("EMAIL_FROM", &c.EmailFrom)
	envString("EXPO_PUSH_URL", &c.ExpoPushURL)
	envString("CLOUDINARY_URL", &c.CloudinaryURL)
	envString("EVIDENCE_FOLDER", &c.EvidenceFolder)
	envString("REMINDER_SCHEDULE", &c.ReminderSchedule)
	envString("OVERDUE_SCHEDULE", &c.OverdueSchedule)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.KafkaBrokers = append(c.KafkaBrokers, b)
			}
		}
	}
	if v := os.Getenv("EVIDENCE_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.EvidenceMaxBytes = n
		}
	}
	envDuration("REMINDER_WINDOW", &c.ReminderWindow)
	envDuration("REMINDER_COOLDOWN", &c.ReminderCooldown)
	envDuration("SCAN_TIMEOUT", &c.ScanTimeout)
	if v := os.Getenv("ALLOW_PARTY_VOTES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AllowPartyVotes = b
		}
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
		}
	}
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().With("error", err).Error(message)
	body, _ := json.Marshal(map[string]string{"response": fmt.Sprintf("%s, %v", message, err)})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	w.Write(body)
}
