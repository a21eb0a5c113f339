// Package sanitizer provides helper functions for cleaning and normalising
// string input before it is validated or persisted.
//
// The helpers cover trimming, case conversion, whitespace normalisation,
// control-character removal, HTML tag stripping and conversion between common
// naming conventions (snake_case, kebab-case, camelCase, …).
//
// The package is completely stateless and depends only on the Go standard
// library. All helpers are implemented as small, focused functions that can be
// freely combined. For convenience the higher-order Apply and Compose helpers
// allow the creation of sanitisation pipelines:
//
//	clean := sanitizer.Compose(
//	    sanitizer.StripHTML,
//	    sanitizer.RemoveControlChars,
//	    sanitizer.TrimToUpper,
//	)
//
//	planID := clean("  <em>monthly_plan</em> ") // "MONTHLY_PLAN"
//
// # Error handling
//
// None of the helpers returns an error – they always fall back to a safe result
// (usually the original input or an empty string) if sanitisation fails.
//
// # Performance
//
// All operations are implemented with efficiency in mind and allocate only what
// is necessary. Because there is no global state the helpers are safe for use
// from multiple goroutines concurrently.
package sanitizer
