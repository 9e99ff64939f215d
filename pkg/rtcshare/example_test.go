package rtcshare_test

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bft-labs/rtcshare/pkg/rtcshare"
)

// ExampleNew shares a directory over the local HTTP API.
func ExampleNew() {
	dir, err := os.MkdirTemp("", "rtcshare-example")
	if err != nil {
		fmt.Printf("temp dir: %v\n", err)
		return
	}
	defer os.RemoveAll(dir)

	cfg := rtcshare.DefaultConfig(dir)
	cfg.ListenAddr = "127.0.0.1:0"

	svc, err := rtcshare.New(cfg)
	if err != nil {
		fmt.Printf("failed to create service: %v\n", err)
		return
	}
	if err := svc.Start(context.Background()); err != nil {
		fmt.Printf("failed to start: %v\n", err)
		return
	}
	fmt.Println("Status:", svc.Status())

	_ = svc.Stop()
	fmt.Println("Status:", svc.Status())

	// Output:
	// Status: running
	// Status: stopped
}

// Example_withEventHandler receives lifecycle and relay events.
func Example_withEventHandler() {
	cfg := rtcshare.DefaultConfig("/path/to/share")
	cfg.EnableRelay = true

	svc, err := rtcshare.New(cfg, rtcshare.WithEventHandler(&printingHandler{}))
	if err != nil {
		fmt.Printf("failed to create service: %v\n", err)
		return
	}
	_ = svc
}

type printingHandler struct {
	rtcshare.BaseEventHandler
}

func (h *printingHandler) OnStateChange(event rtcshare.StateChangeEvent) {
	fmt.Printf("State changed: %s -> %s (reason: %s)\n", event.Previous, event.Current, event.Reason)
}

func (h *printingHandler) OnRelayStateChange(event rtcshare.RelayStateEvent) {
	if event.PublicURL != "" {
		fmt.Printf("Reachable at %s\n", event.PublicURL)
	}
}

// Example_pacing slows down peer data channels at runtime.
func Example_pacing() {
	dir, _ := os.MkdirTemp("", "rtcshare-example")
	defer os.RemoveAll(dir)

	svc, err := rtcshare.New(rtcshare.DefaultConfig(dir))
	if err != nil {
		fmt.Printf("failed to create service: %v\n", err)
		return
	}
	svc.SetLimit(250000, 125*time.Millisecond)
	fmt.Println("Status:", svc.Status())

	// Output: Status: stopped
}

// Example_moduleVersions lists sub-module versions.
func Example_moduleVersions() {
	versions := rtcshare.ModuleVersions()
	fmt.Println("wire:", versions["wire"])
	fmt.Println("relay:", versions["relay"])

	// Output:
	// wire: 1.0.0
	// relay: 1.0.0
}
