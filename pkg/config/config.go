package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Core      CoreConfig      `json:"core"`
	Render    RenderConfig    `json:"render"`
	Assets    AssetsConfig    `json:"assets"`
	Gateway   GatewayConfig   `json:"gateway"`
	Authority AuthorityConfig `json:"authority"`
	Channels  ChannelsConfig  `json:"channels"`
}

// CoreConfig describes where the core listens and how the connection behaves.
type CoreConfig struct {
	IsWSS               bool   `env:"GSBRIDGE_CORE_IS_WSS"                json:"is_wss"`
	IsHTTPS             bool   `env:"GSBRIDGE_CORE_IS_HTTPS"              json:"is_https"`
	BotID               string `env:"GSBRIDGE_CORE_BOT_ID"                json:"bot_id"`
	Host                string `env:"GSBRIDGE_CORE_HOST"                  json:"host"`
	Port                int    `env:"GSBRIDGE_CORE_PORT"                  json:"port"`
	WSPath              string `env:"GSBRIDGE_CORE_WS_PATH"               json:"ws_path"`
	HTTPPath            string `env:"GSBRIDGE_CORE_HTTP_PATH"             json:"http_path"`
	ReconnectIntervalMS int    `env:"GSBRIDGE_CORE_RECONNECT_INTERVAL_MS" json:"reconnect_interval_ms"`
	ReplyTimeoutSeconds int    `env:"GSBRIDGE_CORE_REPLY_TIMEOUT_SECONDS" json:"reply_timeout_seconds"`
}

// WebSocketURL returns <ws|wss>://host:port/ws_path/bot_id.
func (c CoreConfig) WebSocketURL() string {
	scheme := "ws"
	if c.IsWSS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/%s/%s", scheme, c.Host, c.Port, strings.Trim(c.WSPath, "/"), c.BotID)
}

// HTTPURL returns the core's web console base, <http|https>://host:port/http_path.
func (c CoreConfig) HTTPURL() string {
	scheme := "http"
	if c.IsHTTPS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d/%s", scheme, c.Host, c.Port, strings.Trim(c.HTTPPath, "/"))
}

func (c CoreConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalMS) * time.Millisecond
}

func (c CoreConfig) ReplyTimeout() time.Duration {
	return time.Duration(c.ReplyTimeoutSeconds) * time.Second
}

// RenderConfig holds the compatibility switches that shape how core replies
// are rendered for the host platform.
type RenderConfig struct {
	Dev              bool   `env:"GSBRIDGE_RENDER_DEV"                 json:"dev"`
	FigureSupport    bool   `env:"GSBRIDGE_RENDER_FIGURE_SUPPORT"      json:"figure_support"`
	ImgType          string `env:"GSBRIDGE_RENDER_IMG_TYPE"            json:"img_type"` // "img" | "image"
	Passive          bool   `env:"GSBRIDGE_RENDER_PASSIVE"             json:"passive"`
	UseLastMessageID bool   `env:"GSBRIDGE_RENDER_USE_LAST_MESSAGE_ID" json:"use_last_message_id"`
	PublicURL        string `env:"GSBRIDGE_RENDER_PUBLIC_URL"          json:"public_url"` // base URL assets are served from
	NodeNickname     string `env:"GSBRIDGE_RENDER_NODE_NICKNAME"       json:"node_nickname"`
}

type AssetsConfig struct {
	ImageDir        string `env:"GSBRIDGE_ASSETS_IMAGE_DIR"        json:"image_dir"`
	FileDir         string `env:"GSBRIDGE_ASSETS_FILE_DIR"         json:"file_dir"`
	MaxAgeHours     int    `env:"GSBRIDGE_ASSETS_MAX_AGE_HOURS"    json:"max_age_hours"` // 0 keeps assets forever
	CleanupSchedule string `env:"GSBRIDGE_ASSETS_CLEANUP_SCHEDULE" json:"cleanup_schedule"`
	FetchTimeout    int    `env:"GSBRIDGE_ASSETS_FETCH_TIMEOUT"    json:"fetch_timeout"` // seconds
	MaxFetchBytes   int64  `env:"GSBRIDGE_ASSETS_MAX_FETCH_BYTES"  json:"max_fetch_bytes"`
}

type GatewayConfig struct {
	Host string `env:"GSBRIDGE_GATEWAY_HOST" json:"host"`
	Port int    `env:"GSBRIDGE_GATEWAY_PORT" json:"port"`
}

type AuthorityConfig struct {
	DBPath string         `env:"GSBRIDGE_AUTHORITY_DB_PATH" json:"db_path"`
	Users  map[string]int `json:"users,omitempty"` // "platform:user_id" -> authority
}

type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
	Slack    SlackConfig    `json:"slack"`
}

type DiscordConfig struct {
	Enabled   bool                `env:"GSBRIDGE_CHANNELS_DISCORD_ENABLED"    json:"enabled"`
	Token     string              `env:"GSBRIDGE_CHANNELS_DISCORD_TOKEN"      json:"token"`
	AllowFrom FlexibleStringSlice `env:"GSBRIDGE_CHANNELS_DISCORD_ALLOW_FROM" json:"allow_from"`
}

type TelegramConfig struct {
	Enabled   bool                `env:"GSBRIDGE_CHANNELS_TELEGRAM_ENABLED"    json:"enabled"`
	Token     string              `env:"GSBRIDGE_CHANNELS_TELEGRAM_TOKEN"      json:"token"`
	AllowFrom FlexibleStringSlice `env:"GSBRIDGE_CHANNELS_TELEGRAM_ALLOW_FROM" json:"allow_from"`
}

type SlackConfig struct {
	Enabled   bool                `env:"GSBRIDGE_CHANNELS_SLACK_ENABLED"    json:"enabled"`
	BotToken  string              `env:"GSBRIDGE_CHANNELS_SLACK_BOT_TOKEN"  json:"bot_token"`
	AppToken  string              `env:"GSBRIDGE_CHANNELS_SLACK_APP_TOKEN"  json:"app_token"`
	AllowFrom FlexibleStringSlice `env:"GSBRIDGE_CHANNELS_SLACK_ALLOW_FROM" json:"allow_from"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks the fields the bridge cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Core.Host == "" {
		errs = append(errs, errors.New("core.host is required"))
	}
	if c.Core.Port <= 0 || c.Core.Port > 65535 {
		errs = append(errs, fmt.Errorf("core.port %d out of range", c.Core.Port))
	}
	if c.Core.BotID == "" {
		errs = append(errs, errors.New("core.bot_id is required"))
	}
	if c.Core.ReconnectIntervalMS <= 0 {
		errs = append(errs, errors.New("core.reconnect_interval_ms must be positive"))
	}
	if c.Render.ImgType != "img" && c.Render.ImgType != "image" {
		errs = append(errs, fmt.Errorf("render.img_type must be \"img\" or \"image\", got %q", c.Render.ImgType))
	}
	if c.Channels.Discord.Enabled && c.Channels.Discord.Token == "" {
		errs = append(errs, errors.New("channels.discord.token is required when discord is enabled"))
	}
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.Token == "" {
		errs = append(errs, errors.New("channels.telegram.token is required when telegram is enabled"))
	}
	if c.Channels.Slack.Enabled && (c.Channels.Slack.BotToken == "" || c.Channels.Slack.AppToken == "") {
		errs = append(errs, errors.New("channels.slack.bot_token and app_token are required when slack is enabled"))
	}
	return errors.Join(errs...)
}

// AuthorityDBPath returns the sqlite path with ~ expanded.
func (c *Config) AuthorityDBPath() string {
	return expandHome(c.Authority.DBPath)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
