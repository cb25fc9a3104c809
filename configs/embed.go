// Package configs provides the embedded configuration template for academykb.
//
// The template is embedded at build time so 'academykb config init' works
// from any distribution. Edit academykb.example.yaml and rebuild to change
// it; keep it in step with config.NewConfig().
package configs

import _ "embed"

// ProjectConfigTemplate is written to academykb.yaml by 'academykb config init'.
//
//go:embed academykb.example.yaml
var ProjectConfigTemplate string
