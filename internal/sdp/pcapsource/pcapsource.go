//go:build pcap

// Package pcapsource opens a recorded downlink capture file and exposes
// its UDP payload bytes, concatenated in capture order, as a single
// io.Reader suitable for depacketizer.New. It is only built with the
// "pcap" build tag, since it links against libpcap.
package pcapsource

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/emit-sds/l1a-depacketizer/internal/monitoring"
)

// Open reads every UDP packet in pcapFile matching udpPort and
// concatenates its payload into a single in-memory byte stream. The
// capture is read once, in full, before returning: the depacketizer's
// input is a finite byte stream (spec.md's explicit ingest Non-goal), so
// there is no benefit to streaming packets one at a time from the file.
func Open(pcapFile string, udpPort int) (*bytes.Reader, error) {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return nil, fmt.Errorf("sdp: opening pcap file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return nil, fmt.Errorf("sdp: setting BPF filter %q: %w", filterStr, err)
	}

	var buf bytes.Buffer
	source := gopacket.NewPacketSource(handle, handle.LinkType())
	start := time.Now()
	count := 0

	for pkt := range source.Packets() {
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		buf.Write(udp.Payload)
		count++
	}

	monitoring.Logf("sdp: pcap ingest complete: %d packets, %d bytes, %v", count, buf.Len(), time.Since(start))
	return bytes.NewReader(buf.Bytes()), nil
}
