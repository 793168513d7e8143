package config

import "slices"

const redacted = "***"

// secrets lists every credential field of cfg.
func (c *Config) secrets() []*string {
	return []*string{
		&c.Wallet.PrivateKey,
		&c.Wallet.KeyPassword,
		&c.Storage.Postgres.DSN,
		&c.Storage.Postgres.Password,
		&c.Redis.Password,
		&c.S3.AccessKey,
		&c.S3.SecretKey,
		&c.Server.APIKey,
		&c.Notify.TelegramToken,
		&c.Notify.DiscordWebhookURL,
	}
}

// RedactedConfig returns a copy of cfg that is safe to log: set credentials
// read "***" and unset ones stay empty, so the output still shows which are
// configured.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	for _, s := range out.secrets() {
		if *s != "" {
			*s = redacted
		}
	}
	return out
}
