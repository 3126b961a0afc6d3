package config

import (
	"strings"

	logx "igrelay/pkg/logx"
)

// SummarizeConfigChange returns the names of changed sections and log
// fields describing the new values. Secrets are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)
	section := func(name string, differs bool, fields ...logx.Field) {
		if !differs {
			return
		}
		changed = append(changed, name)
		attrs = append(attrs, fields...)
	}

	o, n := oldCfg.Telegram, newCfg.Telegram
	section("telegram",
		o.AdminUserID != n.AdminUserID ||
			trimNE(o.GroupLog, n.GroupLog) ||
			trimNE(o.PollTimeout, n.PollTimeout) ||
			trimNE(o.CommandTimeout, n.CommandTimeout) ||
			trimNE(o.Token, n.Token),
		logx.Bool("telegram.admin_set", n.AdminUserID > 0),
		logx.Bool("telegram.group_log_set", strings.TrimSpace(n.GroupLog) != ""),
		logx.String("telegram.poll_timeout", strings.TrimSpace(n.PollTimeout)),
		logx.Bool("telegram.token_changed", trimNE(o.Token, n.Token)),
	)

	section("logging", oldCfg.Logging != newCfg.Logging,
		logx.String("logging.level", newCfg.Logging.Level),
		logx.Bool("logging.console", newCfg.Logging.Console),
		logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
	)

	section("storage", oldCfg.Storage != newCfg.Storage,
		logx.String("storage.driver", newCfg.Storage.Driver),
		logx.String("storage.path", newCfg.Storage.Path),
	)

	section("broadcast", oldCfg.Broadcast != newCfg.Broadcast,
		logx.String("broadcast.pace", newCfg.Broadcast.Pace),
		logx.Int("broadcast.progress_every", newCfg.Broadcast.ProgressEvery),
		logx.String("broadcast.parse_mode", newCfg.Broadcast.ParseMode),
	)

	section("downloader", oldCfg.Downloader != newCfg.Downloader,
		logx.String("downloader.api_url", newCfg.Downloader.APIURL),
		logx.String("downloader.timeout", newCfg.Downloader.Timeout),
		logx.String("downloader.user_interval", newCfg.Downloader.UserInterval),
	)

	ob, nb := oldCfg.Observability, newCfg.Observability
	section("observability", ob != nb,
		logx.Bool("observability.enabled", nb.Enabled),
		logx.String("observability.addr", nb.Addr),
		logx.Bool("observability.metrics", nb.Metrics),
		logx.Bool("observability.token_set", strings.TrimSpace(nb.Token) != ""),
	)

	section("report", oldCfg.Report != newCfg.Report,
		logx.Bool("report.enabled", newCfg.Report.Enabled),
		logx.String("report.spec", newCfg.Report.Spec),
	)

	return changed, attrs
}

func trimNE(a, b string) bool { return strings.TrimSpace(a) != strings.TrimSpace(b) }

// RestartRequired lists changed sections that only take effect after a restart.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if trimNE(oldCfg.Telegram.Token, newCfg.Telegram.Token) || trimNE(oldCfg.Telegram.PollTimeout, newCfg.Telegram.PollTimeout) {
		out = append(out, "telegram")
	}
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	if oldCfg.Downloader != newCfg.Downloader {
		out = append(out, "downloader")
	}
	return out
}
