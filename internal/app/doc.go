// Package app wires the KPI dashboard server together: configuration,
// logging, OpenTelemetry, the cached loader, the dashboard and health
// services, the websocket hub and the chi router.
//
// # Initialization Flow
//
//	1. Initialize OpenTelemetry providers and the dashboard instruments
//	2. Resolve paths and build the cached loader
//	3. Create the dashboard service, the websocket hub and the health service
//	4. Set up middleware and routes
//	5. Create the HTTP server
//
// # Usage
//
//	application, err := app.NewApplication(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return application.Run()
//
// Run blocks until SIGINT or SIGTERM, then shuts the server down, closes
// websocket clients and flushes telemetry.
//
// NewDashboard builds the same pipeline without the server for one-shot
// commands such as render and export.
package app
