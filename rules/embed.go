// Package rules ships the built-in transcript scanning rules.
package rules

import "embed"

//go:embed *.yaml
var embedded embed.FS

// FS returns the embedded filesystem with the default transcript rules.
func FS() embed.FS {
	return embedded
}
