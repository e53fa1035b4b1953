//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// FormattedLogMessage detects log messages built with fmt.Sprintf.
//
// Old pattern:
//
//	log.Info(fmt.Sprintf("migrated %d users", n))
//
// New pattern:
//
//	log.Info("migrated users", logger.Int("users", n))
//
// Static messages with typed fields stay searchable in the JSON log file.
func FormattedLogMessage(m dsl.Matcher) {
	m.Import("github.com/tphakala/syncmigrate/internal/logger")

	m.Match(
		`$log.Trace(fmt.Sprintf($*_), $*_)`,
		`$log.Debug(fmt.Sprintf($*_), $*_)`,
		`$log.Info(fmt.Sprintf($*_), $*_)`,
		`$log.Warn(fmt.Sprintf($*_), $*_)`,
		`$log.Error(fmt.Sprintf($*_), $*_)`,
	).
		Where(m["log"].Type.Implements("logger.Logger") && !m.File().PkgPath.Matches(`internal/logger$`)).
		Report("use a static log message and typed logger fields instead of fmt.Sprintf")
}

// ErrorFieldAsString detects errors logged as plain strings.
func ErrorFieldAsString(m dsl.Matcher) {
	m.Match(
		`logger.String($key, $err.Error())`,
	).
		Where(m["err"].Type.Implements("error")).
		Report("use logger.Error($err) so the error keeps its own field")
}
