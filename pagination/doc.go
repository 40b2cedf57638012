// Package pagination implements the cursor driven window over redirect
// records: Empty, then Loaded, then Exhausted, growing forward only.
package pagination
