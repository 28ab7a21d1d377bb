// Package web embeds the explorer templates and static assets.
package web

import "embed"

// TemplatesFS holds the explorer page and its node partials.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

//go:embed static/*
var StaticFS embed.FS
