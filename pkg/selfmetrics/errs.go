package selfmetrics

import "errors"

var (
	// errNoStat indicates that /proc/<pid>/stat was empty or malformed.
	errNoStat = errors.New("selfmetrics: malformed or empty stat")

	// errShortStat indicates that /proc/<pid>/stat had fewer fields than expected.
	errShortStat = errors.New("selfmetrics: short stat")

	// errNoRSS indicates that resident set size could not be determined
	// (neither smaps_rollup nor statm succeeded).
	errNoRSS = errors.New("selfmetrics: no rss")
)
