// Package guard puts the binaries into test mode. Import it blank from a main package test.
package guard

import (
	"os"

	"github.com/partsdesk/partsdesk/internal/app"
)

func init() {
	if _, set := os.LookupEnv(app.TestModeEnv); !set {
		_ = os.Setenv(app.TestModeEnv, "true")
	}
	app.RefreshTestMode()
}
