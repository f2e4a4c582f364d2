package main

import (
	_ "embed"
)

//go:embed index.html
var portalPage string

const pageModeMarker = "%MODE%"

// writePortalPage serves the embedded page with the mode marker
// substituted so the browser knows whether to show the setup form.
func writePortalPage(out []byte, setupMode bool) int {
	mode := "station"
	if setupMode {
		mode = "setup"
	}

	idx := -1
	for i := 0; i+len(pageModeMarker) <= len(portalPage); i++ {
		if portalPage[i:i+len(pageModeMarker)] == pageModeMarker {
			idx = i
			break
		}
	}

	bodyLen := len(portalPage)
	if idx >= 0 {
		bodyLen = bodyLen - len(pageModeMarker) + len(mode)
	}

	n := 0
	n += copyString(out[n:], "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Length: ")
	n += copyInt(out[n:], bodyLen)
	n += copyString(out[n:], "\r\nConnection: close\r\n\r\n")
	if n+bodyLen > len(out) {
		return 0
	}
	if idx < 0 {
		n += copy(out[n:], portalPage)
		return n
	}
	n += copy(out[n:], portalPage[:idx])
	n += copy(out[n:], mode)
	n += copy(out[n:], portalPage[idx+len(pageModeMarker):])
	return n
}
