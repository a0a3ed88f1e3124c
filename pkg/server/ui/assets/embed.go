package assets

import "embed"

//go:embed static
var staticFS embed.FS

// StaticFS returns the embedded dashboard assets.
func StaticFS() embed.FS {
	return staticFS
}
