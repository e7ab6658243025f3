package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Deal sources.
const (
	SourceBitrix   = "bitrix"
	SourcePostgres = "postgres"
	SourceCSV      = "csv"
)

// Fetch window modes.
const (
	PeriodLookback = "lookback"
	PeriodYear     = "year"
	PeriodQuarter  = "quarter"
	PeriodMonth    = "month"
	PeriodWeek     = "week"
	PeriodRange    = "range"
)

// dateLayout is the format of PERIOD_FROM and PERIOD_TO.
const dateLayout = "2006-01-02"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Source string `validate:"oneof=bitrix postgres csv"`

	BitrixWebhook string `validate:"required_if=Source bitrix,omitempty,url"`
	LookbackDays  int    `validate:"gte=1"`
	DealLimit     int    `validate:"gte=1"`

	// PeriodMode selects the fetch window. Zero Year/Quarter/Month/Week
	// fields mean the current one.
	PeriodMode    string `validate:"oneof=lookback year quarter month week range"`
	PeriodYear    int    `validate:"gte=0,lte=9999"`
	PeriodQuarter int    `validate:"gte=0,lte=4"`
	PeriodMonth   int    `validate:"gte=0,lte=12"`
	PeriodWeek    int    `validate:"gte=0,lte=53"`
	PeriodFrom    string `validate:"omitempty,datetime=2006-01-02"`
	PeriodTo      string `validate:"omitempty,datetime=2006-01-02"`

	// Timezone is the IANA zone for CRM timestamps without an offset.
	// Empty means the host's local zone.
	Timezone string `validate:"omitempty,timezone"`

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string `validate:"oneof=disable allow prefer require verify-ca verify-full"`
	PostgresMirror   bool

	MaxConcurrency int `validate:"gte=1,lte=16"`
	RateLimitMs    int `validate:"gte=0"`
	MaxRetries     int `validate:"gte=1"`
	RequestTimeout time.Duration

	CSVInputPath  string `validate:"required_if=Source csv"`
	CSVUsersPath  string
	CSVOutputPath string
	StalledCSV    string

	StuckDays int `validate:"gte=0"`

	CompanyConversionMin   float64 `validate:"gte=0,lte=100"`
	ZeroConversionMinDeals int     `validate:"gte=0"`
	CancelRateMax          float64 `validate:"gte=0,lte=100"`
	TrendDeclinePct        float64 `validate:"lte=0"`

	ReportFormat string `validate:"oneof=text json yaml"`
	LogLevel     string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}
	return FromEnv()
}

// LoadFile reads the given env file instead of ./.env.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("config: load %q: %w", path, err)
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() *Config {
	return &Config{
		Source: getEnv("DEAL_SOURCE", SourceBitrix),

		BitrixWebhook: getEnv("BITRIX24_WEBHOOK", ""),
		LookbackDays:  getEnvInt("LOOKBACK_DAYS", 365),
		DealLimit:     getEnvInt("DEAL_LIMIT", 3000),

		PeriodMode:    getEnv("PERIOD_MODE", PeriodLookback),
		PeriodYear:    getEnvInt("PERIOD_YEAR", 0),
		PeriodQuarter: getEnvInt("PERIOD_QUARTER", 0),
		PeriodMonth:   getEnvInt("PERIOD_MONTH", 0),
		PeriodWeek:    getEnvInt("PERIOD_WEEK", 0),
		PeriodFrom:    getEnv("PERIOD_FROM", ""),
		PeriodTo:      getEnv("PERIOD_TO", ""),

		Timezone: getEnv("TIMEZONE", ""),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "funnel"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "funnel123"),
		PostgresDB:       getEnv("POSTGRES_DB", "crm_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresMirror:   getEnvBool("POSTGRES_MIRROR", false),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 350),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		CSVInputPath:  getEnv("CSV_INPUT_PATH", ""),
		CSVUsersPath:  getEnv("CSV_USERS_PATH", ""),
		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", ""),
		StalledCSV:    getEnv("STALLED_CSV_PATH", ""),

		StuckDays: getEnvInt("STUCK_DAYS", 7),

		CompanyConversionMin:   getEnvFloat("ALERT_COMPANY_CONVERSION_MIN", 3),
		ZeroConversionMinDeals: getEnvInt("ALERT_ZERO_CONVERSION_MIN_DEALS", 5),
		CancelRateMax:          getEnvFloat("ALERT_CANCEL_RATE_MAX", 60),
		TrendDeclinePct:        getEnvFloat("ALERT_TREND_DECLINE_PCT", -30),

		ReportFormat: getEnv("REPORT_FORMAT", "text"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks field constraints declared in the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.PeriodMode == PeriodRange && c.PeriodFrom != "" && c.PeriodTo != "" && c.PeriodFrom > c.PeriodTo {
		return fmt.Errorf("config: PERIOD_FROM %s is after PERIOD_TO %s", c.PeriodFrom, c.PeriodTo)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// Location returns the zone named by Timezone, or time.Local when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone: %w", err)
	}
	return loc, nil
}

// Window returns the deal fetch window for PeriodMode. Calendar modes cover
// whole days: from is the first day and to the last day, both at midnight in
// now's location. An unset mode behaves like lookback.
func (c *Config) Window(now time.Time) (from, to time.Time) {
	loc := now.Location()
	year := c.PeriodYear
	if year == 0 {
		year = now.Year()
	}

	switch c.PeriodMode {
	case PeriodYear:
		from = time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
		return from, from.AddDate(1, 0, -1)
	case PeriodQuarter:
		q := c.PeriodQuarter
		if q == 0 {
			q = (int(now.Month())-1)/3 + 1
		}
		from = time.Date(year, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 3, -1)
	case PeriodMonth:
		m := c.PeriodMonth
		if m == 0 {
			m = int(now.Month())
		}
		from = time.Date(year, time.Month(m), 1, 0, 0, 0, 0, loc)
		return from, from.AddDate(0, 1, -1)
	case PeriodWeek:
		isoYear, week := now.ISOWeek()
		if c.PeriodWeek != 0 {
			week = c.PeriodWeek
			if c.PeriodYear != 0 {
				isoYear = c.PeriodYear
			}
		}
		from = isoWeekStart(isoYear, week, loc)
		return from, from.AddDate(0, 0, 6)
	case PeriodRange:
		from, to = now.AddDate(0, 0, -c.LookbackDays), now
		if t, err := time.ParseInLocation(dateLayout, c.PeriodFrom, loc); err == nil {
			from = t
		}
		if t, err := time.ParseInLocation(dateLayout, c.PeriodTo, loc); err == nil {
			to = t
		}
		return from, to
	default:
		return now.AddDate(0, 0, -c.LookbackDays), now
	}
}

// isoWeekStart returns the Monday of ISO week w in isoYear. January 4th
// always falls in week 1.
func isoWeekStart(isoYear, w int, loc *time.Location) time.Time {
	jan4 := time.Date(isoYear, time.January, 4, 0, 0, 0, 0, loc)
	offset := (int(jan4.Weekday()) + 6) % 7
	return jan4.AddDate(0, 0, -offset+(w-1)*7)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
