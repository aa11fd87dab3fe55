// Command cube-scan is a diagnostic for the tracker's Bluetooth link.
// It lists advertising peripherals so the right device_name can be put in
// the config, and with -watch connects and prints every orientation.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/cube-scan [--transport tinygo|hci] [--timeout 10s] [--watch NAME]
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fschwaiger/cubetracker/internal/ble"
	"github.com/fschwaiger/cubetracker/internal/side"
)

func main() {
	transport := flag.String("transport", "tinygo", "bluetooth transport: tinygo or hci")
	timeout := flag.Duration("timeout", 10*time.Second, "how long to scan")
	watch := flag.String("watch", "", "connect to the device whose name starts with this and print orientations")
	flag.Parse()

	var adapter ble.Adapter
	switch *transport {
	case "hci":
		adapter = ble.NewHCIAdapter()
	case "tinygo":
		adapter = ble.NewTinyGoAdapter()
	default:
		log.Fatalf("unknown transport %q", *transport)
	}

	if *watch != "" {
		watchDevice(adapter, *watch)
		return
	}

	fmt.Printf("Scanning for %s...\n", *timeout)
	devices, err := ble.ScanForDevices(adapter, *timeout)
	if err != nil {
		log.Fatalf("scan: %v", err)
	}
	if len(devices) == 0 {
		fmt.Println("No devices found.")
		return
	}
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("  %4d dBm  %-20s %s\n", d.RSSI, d.Address, name)
	}
}

// printSink prints session events.
type printSink struct{}

func (printSink) StateChanged(st ble.State, err error) {
	if err != nil {
		fmt.Printf("state: %s (%v)\n", st, err)
		return
	}
	fmt.Printf("state: %s\n", st)
}

func (printSink) SideChanged(s side.Side) {
	fmt.Printf(">>> %s  %s\n", time.Now().Format("15:04:05"), s)
}

func watchDevice(adapter ble.Adapter, name string) {
	session := ble.NewSession(adapter, name, printSink{})

	// Handle Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	if err := session.Connect(); err != nil {
		log.Fatalf("connect: %v", err)
	}
	fmt.Printf("Watching %q. Turn the device; press Ctrl+C to exit.\n", name)

	<-sig
	fmt.Printf("\nLast side: %s. Shutting down...\n", session.LastSide())
	session.Close()
	fmt.Println("Done.")
}
