package main

import (
	"testing"

	"github.com/partsdesk/partsdesk/internal/app"
	_ "github.com/partsdesk/partsdesk/internal/testing/guard"
)

func TestMainReturnsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	if !app.InTestMode() {
		t.Fatal("guard did not enable test mode")
	}
	main()
}
