package config

import (
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"stock-tracker-alerts/internal/types"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var once sync.Once

// InitConfig loads .env, the optional config file and the environment. It is
// safe to call many times; only the first call does the work.
func InitConfig() {
	once.Do(func() {
		if err := godotenv.Load(); err == nil {
			log.Debug("Loaded environment from .env")
		}

		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/stock-tracker")
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				log.Warnf("Failed to read config file: %v", err)
			}
		}

		viper.AutomaticEnv()

		viper.BindEnv("db_path", "DB_PATH")
		viper.BindEnv("pid_file", "PID_FILE")
		viper.BindEnv("check_interval", "CHECK_INTERVAL")
		viper.BindEnv("market_hours_only", "MARKET_HOURS_ONLY")
		viper.BindEnv("run_on_start", "RUN_ON_START")
		viper.BindEnv("market_open", "MARKET_OPEN")
		viper.BindEnv("market_close", "MARKET_CLOSE")
		viper.BindEnv("market_timezone", "MARKET_TIMEZONE")
		viper.BindEnv("rearm_policy", "REARM_POLICY")
		viper.BindEnv("channel_timeout", "CHANNEL_TIMEOUT")
		viper.BindEnv("provider", "PRICE_PROVIDER")
		viper.BindEnv("eodhd_api_key", "EODHD_API_KEY")
		viper.BindEnv("eodhd_exchange", "EODHD_EXCHANGE")
		viper.BindEnv("eodhd_base_url", "EODHD_BASE_URL")
		viper.BindEnv("api_pro_key", "API_PRO_KEY")
		viper.BindEnv("provider_timeout", "PROVIDER_TIMEOUT")
		viper.BindEnv("smtp_server", "SMTP_SERVER")
		viper.BindEnv("smtp_port", "SMTP_PORT")
		viper.BindEnv("sender_email", "SENDER_EMAIL")
		viper.BindEnv("sender_password", "SENDER_PASSWORD")
		viper.BindEnv("recipient_email", "RECIPIENT_EMAIL")
		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("telegram_chat_id", "TELEGRAM_CHAT_ID")
		viper.BindEnv("telegram_api_endpoint", "TELEGRAM_API_ENDPOINT")
		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("lang", "LANG")
		viper.BindEnv("locales_dir", "LOCALES_DIR")

		viper.SetDefault("db_path", "stock_tracker.db")
		viper.SetDefault("pid_file", "stock_tracker.pid")
		viper.SetDefault("check_interval", "1h")
		viper.SetDefault("market_hours_only", true)
		viper.SetDefault("run_on_start", true)
		viper.SetDefault("market_open", "09:00")
		viper.SetDefault("market_close", "17:00")
		viper.SetDefault("market_timezone", "America/New_York")
		viper.SetDefault("rearm_policy", string(types.FireOnEdgeOnly))
		viper.SetDefault("channel_timeout", "10s")
		viper.SetDefault("provider", "eodhd")
		viper.SetDefault("eodhd_exchange", "US")
		viper.SetDefault("eodhd_base_url", "https://eodhd.com/api")
		viper.SetDefault("provider_timeout", "30s")
		viper.SetDefault("smtp_server", "smtp.gmail.com")
		viper.SetDefault("smtp_port", 587)
		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("debug", false)
		viper.SetDefault("lang", "en")
		viper.SetDefault("locales_dir", "locales")
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}

// MailConfig describes the SMTP channel.
type MailConfig struct {
	Server    string
	Port      int
	Sender    string
	Password  string
	Recipient string
}

// Missing lists the unset fields; empty means the channel is usable.
func (c MailConfig) Missing() []string {
	var missing []string
	if c.Server == "" {
		missing = append(missing, "smtp_server")
	}
	if c.Port <= 0 {
		missing = append(missing, "smtp_port")
	}
	if c.Sender == "" {
		missing = append(missing, "sender_email")
	}
	if c.Password == "" {
		missing = append(missing, "sender_password")
	}
	if c.Recipient == "" {
		missing = append(missing, "recipient_email")
	}
	return missing
}

// Attempted reports whether any of the operator supplied fields is set.
func (c MailConfig) Attempted() bool {
	return c.Sender != "" || c.Password != "" || c.Recipient != ""
}

// TelegramConfig describes the Telegram channel. Endpoint is optional and
// points at a self-hosted Bot API server, in tgbotapi.APIEndpoint format.
type TelegramConfig struct {
	Token    string
	ChatID   string
	Endpoint string
}

func (c TelegramConfig) Missing() []string {
	var missing []string
	if c.Token == "" {
		missing = append(missing, "telegram_bot_token")
	}
	if c.ChatID == "" {
		missing = append(missing, "telegram_chat_id")
	}
	return missing
}

func (c TelegramConfig) Attempted() bool {
	return c.Token != "" || c.ChatID != ""
}

// MarketHours is the trading window, as offsets from local midnight.
type MarketHours struct {
	Enabled  bool
	Open     time.Duration
	Close    time.Duration
	Location *time.Location
}

type EODHDConfig struct {
	APIKey   string
	Exchange string
	BaseURL  string
}

// Config is the typed view of every setting.
type Config struct {
	DBPath          string
	PIDFile         string
	CheckInterval   time.Duration
	RunOnStart      bool
	MarketHours     MarketHours
	RearmPolicy     types.RearmPolicy
	ChannelTimeout  time.Duration
	Provider        string
	ProviderTimeout time.Duration
	EODHD           EODHDConfig
	APIProKey       string
	Mail            MailConfig
	Telegram        TelegramConfig
	MetricsPort     int
	Debug           bool
	Lang            string
	LocalesDir      string
}

// Load reads and validates the configuration. Bad values fail; missing
// channel fields do not, they only disable that channel.
func Load() (Config, error) {
	InitConfig()

	c := Config{
		DBPath:          GetString("db_path"),
		PIDFile:         GetString("pid_file"),
		CheckInterval:   GetDuration("check_interval"),
		RunOnStart:      GetBool("run_on_start"),
		ChannelTimeout:  GetDuration("channel_timeout"),
		Provider:        strings.ToLower(GetString("provider")),
		ProviderTimeout: GetDuration("provider_timeout"),
		EODHD: EODHDConfig{
			APIKey:   GetString("eodhd_api_key"),
			Exchange: GetString("eodhd_exchange"),
			BaseURL:  GetString("eodhd_base_url"),
		},
		APIProKey: GetString("api_pro_key"),
		Mail: MailConfig{
			Server:    GetString("smtp_server"),
			Port:      GetInt("smtp_port"),
			Sender:    GetString("sender_email"),
			Password:  GetString("sender_password"),
			Recipient: GetString("recipient_email"),
		},
		Telegram: TelegramConfig{
			Token:    GetString("telegram_bot_token"),
			ChatID:   GetString("telegram_chat_id"),
			Endpoint: GetString("telegram_api_endpoint"),
		},
		MetricsPort: GetInt("metrics_port"),
		Debug:       GetBool("debug"),
		Lang:        GetString("lang"),
		LocalesDir:  GetString("locales_dir"),
	}

	if c.CheckInterval <= 0 {
		return c, errors.Errorf("check_interval must be positive, got %q", GetString("check_interval"))
	}
	if c.ChannelTimeout <= 0 {
		return c, errors.Errorf("channel_timeout must be positive, got %q", GetString("channel_timeout"))
	}
	if c.ProviderTimeout <= 0 {
		return c, errors.Errorf("provider_timeout must be positive, got %q", GetString("provider_timeout"))
	}
	switch c.Provider {
	case "eodhd", "coinpaprika":
	default:
		return c, errors.Errorf("unknown provider %q", c.Provider)
	}

	policy, err := types.ParseRearmPolicy(GetString("rearm_policy"))
	if err != nil {
		return c, err
	}
	c.RearmPolicy = policy

	hours, err := parseMarketHours(GetBool("market_hours_only"), GetString("market_open"), GetString("market_close"), GetString("market_timezone"))
	if err != nil {
		return c, err
	}
	c.MarketHours = hours

	return c, nil
}

func parseMarketHours(enabled bool, open, close, tz string) (MarketHours, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return MarketHours{}, errors.Wrapf(err, "invalid market_timezone %q", tz)
	}
	o, err := parseClock(open)
	if err != nil {
		return MarketHours{}, errors.Wrap(err, "invalid market_open")
	}
	c, err := parseClock(close)
	if err != nil {
		return MarketHours{}, errors.Wrap(err, "invalid market_close")
	}
	if c <= o {
		return MarketHours{}, errors.Errorf("market_close %s must be after market_open %s", close, open)
	}
	return MarketHours{Enabled: enabled, Open: o, Close: c, Location: loc}, nil
}

// parseClock turns "HH:MM" into an offset from midnight.
func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Errorf("expected HH:MM, got %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
