//go:build pcap

package main

import (
	"io"

	"github.com/emit-sds/l1a-depacketizer/internal/sdp/pcapsource"
)

func openPcap(path string, udpPort int) (io.Reader, error) {
	return pcapsource.Open(path, udpPort)
}
