// Package scripts embeds the Risor generators that ship with cderive.
package scripts

import "embed"

// FS holds the shipped generator scripts under generators/.
//
//go:embed generators/*.risor
var FS embed.FS
