package config

// DefaultConfig returns the configuration used when no file is present.
// Core and render defaults match what a stock core installation expects.
func DefaultConfig() *Config {
	return &Config{
		Core: CoreConfig{
			IsWSS:               false,
			IsHTTPS:             false,
			BotID:               "koishi",
			Host:                "localhost",
			Port:                8765,
			WSPath:              "ws",
			HTTPPath:            "genshinuid",
			ReconnectIntervalMS: 5000,
			ReplyTimeoutSeconds: 300,
		},
		Render: RenderConfig{
			Dev:              false,
			FigureSupport:    true,
			ImgType:          "img",
			Passive:          true,
			UseLastMessageID: false,
			PublicURL:        "http://localhost:5140/",
			NodeNickname:     "小助手",
		},
		Assets: AssetsConfig{
			ImageDir:        "./data/assets",
			FileDir:         "./data",
			MaxAgeHours:     72,
			CleanupSchedule: "0 4 * * *",
			FetchTimeout:    30,
			MaxFetchBytes:   50 << 20,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 5140,
		},
		Authority: AuthorityConfig{
			DBPath: "~/.gsbridge/authority.db",
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Enabled:   false,
				AllowFrom: FlexibleStringSlice{},
			},
			Telegram: TelegramConfig{
				Enabled:   false,
				AllowFrom: FlexibleStringSlice{},
			},
			Slack: SlackConfig{
				Enabled:   false,
				AllowFrom: FlexibleStringSlice{},
			},
		},
	}
}
