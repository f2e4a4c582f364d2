package main

import "errors"

// errScanUnsupported marks a scan backend that cannot enumerate
// networks at all, as opposed to one that failed this time. The portal
// answers it with 501 so operators can tell the two apart.
var errScanUnsupported = errors.New("wifi: scan not supported by driver")

// sortScanResults filters out hidden networks and the node's own
// access point, then orders by signal strength, strongest first.
// Duplicate SSIDs keep only the strongest entry. In-place insertion
// sort; scan lists are small.
func sortScanResults(results []scanResult, ownSSID string) []scanResult {
	out := results[:0]
	for _, r := range results {
		if r.SSID == "" || r.SSID == ownSSID {
			continue
		}
		dup := false
		for i := range out {
			if out[i].SSID == r.SSID {
				dup = true
				if r.RSSI > out[i].RSSI {
					out[i].RSSI = r.RSSI
				}
				break
			}
		}
		if !dup {
			out = append(out, r)
		}
	}

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].RSSI > out[j-1].RSSI; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
