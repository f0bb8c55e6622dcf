//go:build !pcap

package main

import (
	"fmt"
	"io"
)

func openPcap(path string, udpPort int) (io.Reader, error) {
	return nil, fmt.Errorf("-pcap requires a build with -tags pcap (got %s)", path)
}
