// pkg/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultTimezoneName          = "America/Guatemala"
	defaultBookingURL            = "https://www.clublavilla.com/haz-tu-reserva"
	defaultDataDirectory         = "data"
	defaultQueueFileName         = "data/queue.json"
	defaultUsersFileName         = "data/users.json"
	defaultCourtsFileName        = "courts.yml"
	defaultTestModeFileName      = "data/test_mode.json"
	defaultBookingWindowHours    = 48
	defaultCheckIntervalSeconds  = 30
	defaultPollIntervalSeconds   = 300
	defaultRefreshIntervalMin    = 180
	defaultMetricsListenAddress  = ":9090"
	defaultBrowserWarmupSeconds  = 10
	defaultMaxRetryAttempts      = 3
	defaultStaggerSeconds        = 1.5
	defaultCriticalWaitCeilingS  = 300
	defaultMaxConcurrentChecks   = 3
	defaultPerCourtTimeoutSecond = 30
)

// Config is the immutable process-level configuration snapshot.
type Config struct {
	BotToken              string
	ProductionMode        bool
	Headless              bool
	NaturalNavigation     bool
	SaveScreenshots       bool
	Timezone              *time.Location
	BookingURL            string
	DataDirectory         string
	QueueFile             string
	UsersFile             string
	CourtsFile            string
	TestModeFile          string
	MetricsListenAddress  string
	BookingWindowHours    int
	CheckInterval         time.Duration
	AvailabilityPollEvery time.Duration
	BrowserRefreshEvery   time.Duration
	BrowserWarmupDelay    time.Duration
	MaxRetryAttempts      int
	StaggerDelay          time.Duration
	CriticalWaitCeiling   time.Duration
	MaxConcurrentChecks   int
	PerCourtCheckTimeout  time.Duration
	AdminUserIDs          []int64
	Courts                []Court
}

// Load reads configuration from the environment, falling back to defaults.
// A .env file is honoured when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	timezoneName := envString("BOT_TIMEZONE", defaultTimezoneName)
	location, locationError := time.LoadLocation(timezoneName)
	if locationError != nil {
		location = time.UTC
	}

	courtsFile := envString("COURTS_FILE", defaultCourtsFileName)
	courts, courtsError := LoadCourts(courtsFile)
	if courtsError != nil {
		return nil, courtsError
	}

	cfg := &Config{
		BotToken:              os.Getenv("TELEGRAM_BOT_TOKEN"),
		ProductionMode:        envBool("PRODUCTION_MODE", false),
		Headless:              envBool("BROWSER_HEADLESS", false),
		NaturalNavigation:     envBool("NATURAL_NAVIGATION", true),
		SaveScreenshots:       envBool("SAVE_AVAILABILITY_SCREENSHOTS", false),
		Timezone:              location,
		BookingURL:            envString("BOOKING_URL", defaultBookingURL),
		DataDirectory:         envString("DATA_DIRECTORY", defaultDataDirectory),
		QueueFile:             envString("QUEUE_FILE", defaultQueueFileName),
		UsersFile:             envString("USERS_FILE", defaultUsersFileName),
		CourtsFile:            courtsFile,
		TestModeFile:          envString("TEST_MODE_FILE", defaultTestModeFileName),
		MetricsListenAddress:  envString("METRICS_LISTEN_ADDRESS", defaultMetricsListenAddress),
		BookingWindowHours:    envInt("RESERVATION_BOOKING_WINDOW_HOURS", defaultBookingWindowHours),
		CheckInterval:         time.Duration(envInt("RESERVATION_CHECK_INTERVAL", defaultCheckIntervalSeconds)) * time.Second,
		AvailabilityPollEvery: time.Duration(envInt("AVAILABILITY_POLL_INTERVAL", defaultPollIntervalSeconds)) * time.Second,
		BrowserRefreshEvery:   time.Duration(envInt("BROWSER_REFRESH_INTERVAL", defaultRefreshIntervalMin)) * time.Minute,
		BrowserWarmupDelay:    time.Duration(envInt("BROWSER_WARMUP_SECONDS", defaultBrowserWarmupSeconds)) * time.Second,
		MaxRetryAttempts:      envInt("BROWSER_MAX_RETRY_ATTEMPTS", defaultMaxRetryAttempts),
		StaggerDelay:          time.Duration(defaultStaggerSeconds * float64(time.Second)),
		CriticalWaitCeiling:   time.Duration(envInt("CRITICAL_WAIT_CEILING_SECONDS", defaultCriticalWaitCeilingS)) * time.Second,
		MaxConcurrentChecks:   envInt("MAX_CONCURRENT_CHECKS", defaultMaxConcurrentChecks),
		PerCourtCheckTimeout:  time.Duration(envInt("PER_COURT_CHECK_TIMEOUT_SECONDS", defaultPerCourtTimeoutSecond)) * time.Second,
		AdminUserIDs:          envInt64List("ADMIN_USER_IDS"),
		Courts:                courts,
	}
	return cfg, nil
}

// Court returns the configuration entry for a court number, if present.
func (c *Config) Court(number int) (Court, bool) {
	for _, court := range c.Courts {
		if court.Number == number {
			return court, true
		}
	}
	return Court{}, false
}

// CourtNumbers lists the configured court numbers in declaration order.
func (c *Config) CourtNumbers() []int {
	numbers := make([]int, 0, len(c.Courts))
	for _, court := range c.Courts {
		numbers = append(numbers, court.Number)
	}
	return numbers
}

func envString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return fallback
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func envInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, parseError := strconv.Atoi(value)
	if parseError != nil {
		return fallback
	}
	return parsed
}

func envInt64List(key string) []int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var parsed []int64
	for _, token := range strings.Split(raw, ",") {
		value, parseError := strconv.ParseInt(strings.TrimSpace(token), 10, 64)
		if parseError != nil {
			continue
		}
		parsed = append(parsed, value)
	}
	return parsed
}
