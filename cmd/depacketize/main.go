// Command depacketize runs the SDP pipeline once over an input stream:
// CCSDS packet reassembly, frame header decoding, and a final stats
// report. It is a thin flag-driven harness, not a service — grounded on
// cmd/tools/pcap-analyse's Config/flag shape but trimmed drastically
// since this tool has one job instead of a capture/benchmark/export
// pipeline.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/emit-sds/l1a-depacketizer/internal/sdp/config"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/depacketizer"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/packet"
	"github.com/emit-sds/l1a-depacketizer/internal/sdp/statsdb"
)

// Config holds the harness's command-line options.
type Config struct {
	InputPath   string
	PcapPath    string
	PcapPort    int
	ConfigPath  string
	OutputDir   string
	StatsDBPath string
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.InputPath, "in", "", "path to a raw CCSDS packet stream file")
	flag.StringVar(&cfg.PcapPath, "pcap", "", "path to a pcap capture file (requires a pcap-tag build)")
	flag.IntVar(&cfg.PcapPort, "port", 12345, "UDP port to extract from -pcap")
	flag.StringVar(&cfg.ConfigPath, "config", "", "path to a pipeline config JSON file (packet_format, frame_header_format)")
	flag.StringVar(&cfg.OutputDir, "out", "", "directory to write decoded frame files into (optional)")
	flag.StringVar(&cfg.StatsDBPath, "statsdb", "", "sqlite database path to persist the run's stats into (optional)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -in <stream file> [flags]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if cfg.InputPath == "" && cfg.PcapPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	return cfg
}

func main() {
	cfg := parseFlags()

	pipelineCfg := config.EmptyPipelineConfig()
	if cfg.ConfigPath != "" {
		loaded, err := config.LoadPipelineConfig(cfg.ConfigPath)
		if err != nil {
			log.Fatalf("depacketize: loading config: %v", err)
		}
		pipelineCfg = loaded
	}

	r, err := openInput(cfg)
	if err != nil {
		log.Fatalf("depacketize: opening input: %v", err)
	}

	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			log.Fatalf("depacketize: creating output directory: %v", err)
		}
	}

	startedAt := time.Now()
	d := depacketizer.New(r, pipelineCfg)

	for {
		frame, err := d.Next()
		if err != nil {
			if err == packet.ErrEndOfStream {
				break
			}
			log.Printf("depacketize: stopping: %v", err)
			break
		}

		if cfg.OutputDir != "" {
			if err := writeFrame(cfg.OutputDir, frame.Name, frame.Bytes); err != nil {
				log.Printf("depacketize: writing frame %s: %v", frame.Name, err)
			}
		}
	}

	fmt.Println(d.Stats().Report())

	if cfg.StatsDBPath != "" {
		if err := persistRun(cfg.StatsDBPath, d, startedAt); err != nil {
			log.Printf("depacketize: persisting stats: %v", err)
		}
	}
}

func openInput(cfg *Config) (io.Reader, error) {
	if cfg.PcapPath != "" {
		return openPcap(cfg.PcapPath, cfg.PcapPort)
	}
	f, err := os.Open(cfg.InputPath)
	if err != nil {
		return nil, fmt.Errorf("opening stream file %s: %w", cfg.InputPath, err)
	}
	return f, nil
}

func writeFrame(dir, name string, data []byte) error {
	path := filepath.Join(dir, name+".bin")
	return os.WriteFile(path, data, 0o644)
}

func persistRun(path string, d *depacketizer.Depacketizer, startedAt time.Time) error {
	db, err := statsdb.Open(path)
	if err != nil {
		return fmt.Errorf("opening stats database: %w", err)
	}
	defer db.Close()

	if err := db.InsertRun(d.RunID(), startedAt.UnixNano(), d.Stats()); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}
