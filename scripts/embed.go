// Package scripts embeds the built-in Risor inspection scripts.
package scripts

import "embed"

// FS holds inspect/*.risor.
//
//go:embed inspect/*.risor
var FS embed.FS
