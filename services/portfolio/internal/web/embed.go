package web

import "embed"

//go:embed templates/*.html
var templateFS embed.FS

//go:embed assets
var assetFS embed.FS

//go:embed content/about.md
var aboutMarkdown []byte
