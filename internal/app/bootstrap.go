package app

import (
	"strconv"
	"strings"
	"time"

	"igrelay/internal/broadcast"
	"igrelay/internal/config"
	"igrelay/internal/downloader"
	"igrelay/internal/observability"
	"igrelay/internal/report"
	"igrelay/internal/storage"
	logx "igrelay/pkg/logx"
)

// Mapping from the on-disk config to component configs. Durations have
// already been checked by config.Validate, so parse failures fall back to defaults.

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: config.DurationOr(sc.BusyTimeout, time.Second),
	}
}

// mapLogConfig returns the logging config and the Telegram log chat (0 = none).
func mapLogConfig(cfg *config.Config) (logx.Config, int64) {
	lc := cfg.Logging
	out := logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
	chatID, _ := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64)
	return out, chatID
}

func mapBroadcastConfig(cfg *config.Config) broadcast.Config {
	return broadcast.Config{
		Pace:          config.DurationOr(cfg.Broadcast.Pace, broadcast.DefaultPace),
		ProgressEvery: cfg.Broadcast.ProgressEvery,
		ParseMode:     strings.TrimSpace(cfg.Broadcast.ParseMode),
	}
}

func mapDownloaderConfig(cfg *config.Config) downloader.Config {
	return downloader.Config{
		APIURL:  strings.TrimSpace(cfg.Downloader.APIURL),
		Timeout: config.DurationOr(cfg.Downloader.Timeout, downloader.DefaultTimeout),
	}
}

func mapObservabilityConfig(cfg *config.Config) observability.Config {
	oc := cfg.Observability
	return observability.Config{
		Enabled:       oc.Enabled,
		Addr:          oc.Addr,
		Prefix:        oc.Prefix,
		Metrics:       oc.Metrics,
		Token:         oc.Token,
		AllowInsecure: oc.AllowInsecure,
	}
}

func mapReportConfig(cfg *config.Config) report.Config {
	return report.Config{
		Enabled:  cfg.Report.Enabled,
		Spec:     cfg.Report.Spec,
		Timezone: cfg.Report.Timezone,
	}
}

// validateReload rejects hot reloads the running app could not apply.
func validateReload(next *config.Config, rep *report.Service) error {
	return rep.Validate(mapReportConfig(next))
}
