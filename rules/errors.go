//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// BareErrorInMigrationPath detects fmt.Errorf in packages whose errors are
// classified by category during a run.
//
// Old pattern:
//
//	return fmt.Errorf("write failed: %w", err)
//
// New pattern:
//
//	return errors.New(err).Component("migrate").Category(errors.CategoryDatabase).Build()
//
// The orchestrator and telemetry decide what to skip, retry or report from
// the category.
func BareErrorInMigrationPath(m dsl.Matcher) {
	m.Match(
		`fmt.Errorf($*_)`,
	).
		Where(m.File().PkgPath.Matches(`internal/(migrate|catalog)$`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("wrap errors with the internal/errors builder so they carry a category")
}

// StringsSplitIteration detects strings.Split used only for iteration
// and suggests strings.SplitSeq.
func StringsSplitIteration(m dsl.Matcher) {
	m.Match(
		`for $_, $part := range strings.Split($s, $sep) { $*body }`,
	).
		Report("use for $part := range strings.SplitSeq($s, $sep) to avoid intermediate slice allocation (Go 1.24+)")
}
