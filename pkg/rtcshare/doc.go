// Package rtcshare provides an embeddable service that shares a local
// directory with browser clients.
//
// Clients reach the service three ways: the direct HTTP API on a local
// port, a relay proxy that forwards requests over a websocket, and WebRTC
// data channels negotiated through signaling requests on either of the
// first two. All three carry the same application requests (probe,
// readDir, readFile, webrtcSignaling) framed as a JSON header line
// followed by a binary payload.
//
// # Basic Usage
//
//	svc, err := rtcshare.New(rtcshare.DefaultConfig("/path/to/share"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Stop()
//
// # Relay
//
// Set [Config.EnableRelay] to connect to the relay proxy. The service
// identity is kept in .rtcshare.yaml inside the shared directory and is
// created on first use; [Service.PublicURL] returns the URL clients use.
// The relay session reconnects with exponential backoff.
//
// # Events, Metrics and Plugins
//
//	svc, err := rtcshare.New(cfg,
//	    rtcshare.WithLogger(logger),
//	    rtcshare.WithEventHandler(handler),
//	    rtcshare.WithMetrics(prometheus.NewRegistry()),
//	    configwatcher.WithConfigWatcher(configwatcher.Config{Path: path}),
//	)
//
// Plugins receive a [Pacer] that changes the pacing of peer data
// channels without a restart.
//
// # Lifecycle States
//
// A Service is in one of [StateStopped], [StateStarting], [StateRunning],
// [StateStopping] or [StateCrashed]; see [Service.Status].
package rtcshare
