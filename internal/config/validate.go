package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validate checks values that can be verified without touching the network.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, fmt.Errorf("telegram.token is required (or set %s)", EnvBotToken))
	}
	if cfg.Telegram.AdminUserID <= 0 {
		errs = append(errs, fmt.Errorf("telegram.admin_user_id is required (or set %s)", EnvAdminUserID))
	}
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("telegram.group_log: invalid chat id %q", g))
		}
	}

	for _, d := range []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"telegram.command_timeout", cfg.Telegram.CommandTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"broadcast.pace", cfg.Broadcast.Pace},
		{"downloader.timeout", cfg.Downloader.Timeout},
		{"downloader.user_interval", cfg.Downloader.UserInterval},
	} {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "json", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if cfg.Broadcast.ProgressEvery < 0 {
		errs = append(errs, errors.New("broadcast.progress_every must be >= 0"))
	}
	switch strings.TrimSpace(cfg.Broadcast.ParseMode) {
	case "", "HTML", "Markdown", "MarkdownV2":
	default:
		errs = append(errs, fmt.Errorf("broadcast.parse_mode: unknown mode %q", cfg.Broadcast.ParseMode))
	}
	if cfg.Downloader.UserBurst < 0 {
		errs = append(errs, errors.New("downloader.user_burst must be >= 0"))
	}
	if tz := strings.TrimSpace(cfg.Report.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("report.timezone: invalid %q: %w", tz, err))
		}
	}
	return errors.Join(errs...)
}
