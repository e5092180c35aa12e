package resources

import "embed"

// FS holds translations and per-dialect SQL migrations.
//
//go:embed i18n migrations
var FS embed.FS
