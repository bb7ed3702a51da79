// Package web embeds the page templates and the static assets the server
// ships with the binary.
package web

import "embed"

// TemplatesFS holds the layout, pages and htmx partials.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet, client script and logo served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
