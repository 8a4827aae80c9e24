package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SchedulePolicy selects how many revisions are generated when a study
// item is created.
type SchedulePolicy string

const (
	// PolicyNext generates only the first revision; each completion
	// creates the next one. Exactly one active revision per item.
	PolicyNext SchedulePolicy = "next"
	// PolicyFull precomputes the whole interval batch up front so the
	// user sees the full future calendar immediately.
	PolicyFull SchedulePolicy = "full"
)

// Default values matching the original deployment.
const (
	DefaultScanInterval      = 30 * time.Minute
	DefaultThrottleWindow    = 12 * time.Hour
	DefaultNotificationHour  = 9
	DefaultStartHour         = 8
	DefaultEndHour           = 22
	DefaultMaxPerReminder    = 5
	DefaultRevisionIntervals = "1,3,7,15,30"
)

// Subjects a user can file a study item under.
var Subjects = []string{"Biology", "Chemistry", "Physics", "Other"}

// Config holds all runtime settings, read from the environment
type Config struct {
	TelegramToken string

	// DatabaseURL switches storage to PostgreSQL; when empty the bot
	// uses a local SQLite file at SQLitePath.
	DatabaseURL string
	SQLitePath  string

	// IntervalDays is the Ebbinghaus revision schedule in days.
	IntervalDays []int

	SchedulePolicy SchedulePolicy

	// ScanInterval is the due-scanner tick period.
	ScanInterval time.Duration
	// ThrottleWindow is the minimum time between two reminder attempts
	// for the same revision.
	ThrottleWindow time.Duration

	// Reminders are only sent between StartHour and EndHour (UTC).
	NotificationStartHour int
	NotificationEndHour   int

	// MaxPerReminder caps reminders per user per scan tick.
	MaxPerReminder int

	AdminUserIDs []int64

	LogLevel string
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is not set")
	}

	cfg := &Config{
		TelegramToken:         token,
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		SQLitePath:            envOr("SQLITE_PATH", "data/revbot.db"),
		SchedulePolicy:        PolicyNext,
		ScanInterval:          DefaultScanInterval,
		ThrottleWindow:        DefaultThrottleWindow,
		NotificationStartHour: DefaultStartHour,
		NotificationEndHour:   DefaultEndHour,
		MaxPerReminder:        DefaultMaxPerReminder,
		LogLevel:              envOr("LOG_LEVEL", "info"),
	}

	intervals, err := ParseIntervals(envOr("REVISION_INTERVALS", DefaultRevisionIntervals))
	if err != nil {
		return nil, err
	}
	cfg.IntervalDays = intervals

	switch policy := envOr("SCHEDULE_POLICY", string(PolicyNext)); SchedulePolicy(policy) {
	case PolicyNext, PolicyFull:
		cfg.SchedulePolicy = SchedulePolicy(policy)
	default:
		return nil, fmt.Errorf("invalid SCHEDULE_POLICY %q: must be %q or %q", policy, PolicyNext, PolicyFull)
	}

	if v := os.Getenv("SCAN_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid SCAN_INTERVAL %q", v)
		}
		cfg.ScanInterval = d
	}

	if v := os.Getenv("NOTIFY_THROTTLE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid NOTIFY_THROTTLE %q", v)
		}
		cfg.ThrottleWindow = d
	}

	if h, ok, err := envHour("NOTIFICATION_START_HOUR"); err != nil {
		return nil, err
	} else if ok {
		cfg.NotificationStartHour = h
	}
	if h, ok, err := envHour("NOTIFICATION_END_HOUR"); err != nil {
		return nil, err
	} else if ok {
		cfg.NotificationEndHour = h
	}
	if cfg.NotificationStartHour > cfg.NotificationEndHour {
		return nil, fmt.Errorf("notification hours %d-%d: start is after end",
			cfg.NotificationStartHour, cfg.NotificationEndHour)
	}

	if v := os.Getenv("MAX_PER_REMINDER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid MAX_PER_REMINDER %q", v)
		}
		cfg.MaxPerReminder = n
	}

	if ids := os.Getenv("ADMIN_USER_IDS"); ids != "" {
		for _, idStr := range strings.Split(ids, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid admin user ID %q", idStr)
			}
			cfg.AdminUserIDs = append(cfg.AdminUserIDs, id)
		}
	}

	return cfg, nil
}

// ParseIntervals parses a comma-separated list of day offsets. The list
// must be non-empty and strictly increasing.
func ParseIntervals(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	intervals := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid revision interval %q", p)
		}
		if n < 0 {
			return nil, fmt.Errorf("revision interval %d must not be negative", n)
		}
		if len(intervals) > 0 && n <= intervals[len(intervals)-1] {
			return nil, fmt.Errorf("revision intervals must be strictly increasing, got %d after %d", n, intervals[len(intervals)-1])
		}
		intervals = append(intervals, n)
	}
	if len(intervals) == 0 {
		return nil, fmt.Errorf("revision intervals must not be empty")
	}
	return intervals, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envHour(key string) (int, bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false, nil
	}
	h, err := strconv.Atoi(v)
	if err != nil || h < 0 || h > 23 {
		return 0, false, fmt.Errorf("invalid %s %q: must be 0-23", key, v)
	}
	return h, true, nil
}
