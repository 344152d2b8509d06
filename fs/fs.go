// Package appfs embeds the static files the binaries need at runtime.
package appfs

import "embed"

const (
	MigrationsDir       = "migrations"
	EmailTemplatesDir   = "assets/templates/email"
	CommonPasswordsPath = "assets/common-passwords.txt"
)

//go:embed migrations/*.sql assets/templates/email/* assets/common-passwords.txt
var FS embed.FS
