// Package credentials carries build-time secrets embedded from .text
// files in this directory: the fallback access point identity and the
// debug console password. Station credentials are NOT here, those live
// in the persisted configuration record and are set through the portal.
package credentials

import (
	_ "embed"
	"strings"
)

var (
	//go:embed ap_ssid.text
	apSSID string
	//go:embed ap_passphrase.text
	apPassphrase string
	//go:embed console_password.text
	consolePass string
)

// APSSID returns the SSID the device advertises in fallback mode.
func APSSID() string {
	return strings.TrimSpace(apSSID)
}

// APPassphrase returns the WPA2 passphrase for the fallback access
// point. Replace ap_passphrase.text before building production images.
func APPassphrase() string {
	return strings.TrimSpace(apPassphrase)
}

// ConsolePassword returns the debug console password.
// Replace console_password.text before building production images.
func ConsolePassword() string {
	return strings.TrimSpace(consolePass)
}
