// Package web holds the chat page served at "/".
package web

import "embed"

//go:embed templates static
var FS embed.FS
