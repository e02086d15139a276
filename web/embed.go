// Package web embeds the browser client: a two-object query form that posts
// to /api/v1/positions and renders both trajectories.
package web

import "embed"

// Content holds index.html, app.js and styles.css at its root.
//
//go:embed index.html app.js styles.css
var Content embed.FS
