package web

import "embed"

// Templates embeds the HTML sources for rendered documents.
//
//go:embed templates/reports/*.html
var Templates embed.FS
