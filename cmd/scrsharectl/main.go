// Copyright 2019 Lanikai Labs. All rights reserved.

// Command scrsharectl drives a Teacher or Student screen-broadcast session
// from the terminal, plus standalone discovery-protocol probing. It is a
// thin wrapper over the pipeline.Registry control surface; the real work
// lives in the pipeline, internal/discovery, and internal/rtpcodec
// packages.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/lanikai/scrshare/internal/discovery"
	"github.com/lanikai/scrshare/internal/logging"
	"github.com/lanikai/scrshare/internal/render"
	"github.com/lanikai/scrshare/pipeline"
)

var log = logging.DefaultLogger.WithTag("scrsharectl")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "teach":
		err = runTeach(args)
	case "watch":
		err = runWatch(args)
	case "discover":
		err = runDiscover(args)
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "scrsharectl: unknown command %q\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "scrsharectl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`Lanikai scrshare — LAN screen broadcast

Usage:
  scrsharectl teach    [OPTION]...   Capture and broadcast this display
  scrsharectl watch    [OPTION]...   Receive and render a broadcast
  scrsharectl discover [OPTION]...   Announce and list peers on the LAN

Run "scrsharectl <command> -h" for command-specific options.`)
}

func parseNetworkMode(s string) (pipeline.NetworkMode, error) {
	switch s {
	case "", "broadcast":
		return pipeline.Broadcast, nil
	case "multicast":
		return pipeline.Multicast, nil
	default:
		return 0, fmt.Errorf("invalid --mode %q (want broadcast or multicast)", s)
	}
}

func runTeach(args []string) error {
	fs := flag.NewFlagSet("teach", flag.ExitOnError)
	port := fs.IntP("port", "p", 5000, "UDP media port")
	fps := fs.IntP("fps", "f", 15, "Capture and encode frame rate")
	quality := fs.IntP("quality", "q", 28, "QP-like quality knob, 0-51")
	mode := fs.String("mode", "broadcast", "Network mode: broadcast or multicast")
	width := fs.Int("width", 1280, "Capture width")
	height := fs.Int("height", 720, "Capture height")
	name := fs.StringP("name", "n", hostname(), "Name advertised over discovery")
	announce := fs.Bool("announce", true, "Advertise this session over discovery")
	if err := fs.Parse(args); err != nil {
		return err
	}

	networkMode, err := parseNetworkMode(*mode)
	if err != nil {
		return err
	}

	cfg := pipeline.StreamConfig{
		Port:        *port,
		FPS:         *fps,
		Quality:     *quality,
		NetworkMode: networkMode,
		Width:       *width,
		Height:      *height,
		Name:        *name,
	}

	reg := pipeline.NewRegistry()
	if err := reg.StartTeacher(cfg); err != nil {
		return err
	}
	defer reg.StopTeacher()

	if *announce {
		if err := reg.StartDiscovery(*name, true, uint16(*port)); err != nil {
			log.Warn("discovery unavailable: %v", err)
		} else {
			defer reg.StopDiscovery()
		}
	}

	log.Info("teaching on %s:%d (%dx%d@%d, q=%d)", networkMode, *port, *width, *height, *fps, *quality)

	stats := reg.TeacherStats()
	return runUntilSignal(stats)
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	port := fs.IntP("port", "p", 5000, "UDP media port")
	mode := fs.String("mode", "broadcast", "Network mode: broadcast or multicast")
	headless := fs.Bool("headless", false, "Do not open a window; just report stats")
	if err := fs.Parse(args); err != nil {
		return err
	}

	networkMode, err := parseNetworkMode(*mode)
	if err != nil {
		return err
	}

	reg := pipeline.NewRegistry()
	queue, err := reg.StartStudent(pipeline.StreamConfig{
		Port:        *port,
		NetworkMode: networkMode,
	})
	if err != nil {
		return err
	}
	defer reg.StopStudent()

	var surface render.Surface
	if *headless {
		surface = render.NewMemorySurface(0, 0)
	} else {
		surface = newWindowSurface()
	}
	defer surface.Close()

	done := make(chan struct{})
	go render.Loop(queue, surface, done)
	defer close(done)

	log.Info("watching %s:%d", *mode, *port)

	stats := reg.StudentStats()
	return runUntilSignal(stats)
}

func runDiscover(args []string) error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	name := fs.StringP("name", "n", hostname(), "Name advertised over discovery")
	role := fs.String("role", "student", "Role to advertise: teacher or student")
	port := fs.IntP("port", "p", 5000, "Stream port advertised alongside this peer")
	if err := fs.Parse(args); err != nil {
		return err
	}

	isTeacher := *role == "teacher"
	if !isTeacher && *role != "student" {
		return fmt.Errorf("invalid --role %q (want teacher or student)", *role)
	}

	reg := pipeline.NewRegistry()
	if err := reg.StartDiscovery(*name, isTeacher, uint16(*port)); err != nil {
		return err
	}
	defer reg.StopDiscovery()

	if err := reg.Query(); err != nil {
		log.Warn("discover: query failed: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	printPeers("teachers", reg.Teachers())
	printPeers("students", reg.Students())
	return nil
}

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	roleColor    = map[discovery.Role]*color.Color{
		discovery.RoleTeacher: color.New(color.FgYellow),
		discovery.RoleStudent: color.New(color.FgGreen),
	}
)

func printPeers(label string, peers []discovery.PeerInfo) {
	headingColor.Printf("%s:\n", label)
	if len(peers) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, p := range peers {
		c := roleColor[p.Role]
		if c == nil {
			c = color.New(color.Reset)
		}
		c.Printf("  %s  %-20s %s:%d (%s)\n", p.ID, p.Name, p.IP, p.StreamPort, p.Version)
	}
}

func runUntilSignal(stats <-chan pipeline.StatsEvent) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sig:
			return nil
		case ev, ok := <-stats:
			if !ok {
				return nil
			}
			log.Info("fps=%.1f bitrate=%.0fkbps frames=%d latency=%.0fms",
				ev.FPS, ev.BitrateKbps, ev.FrameCount, ev.LatencyMs)
		}
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "scrshare"
	}
	return h
}
