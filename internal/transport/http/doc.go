// Package http implements the HTTP handlers of the KPI dashboard service.
// Handlers stay thin: they parse and validate the request, call a service
// and format the response.
//
// # Routes
//
//	GET  /api/dashboard/schema            columns, roles, identifiers, time buckets
//	GET  /api/dashboard/sources           data files found in the data directory
//	GET  /api/dashboard/render            render model for a query selection
//	POST /api/dashboard/render            render model for a JSON selection
//	POST /api/dashboard/reload            drop cached loads, notify websocket clients
//	GET  /api/dashboard/export            filtered rows as a CSV attachment
//	GET  /api/dashboard/charts            interactive HTML charts
//	GET  /api/dashboard/charts/{kind}.png trend or comparison chart image
//	GET  /api/health[/live|/ready]        health probes
//	GET  /api/version                     build information
//	GET  /metrics[/stats]                 Prometheus scrape and JSON counters
//
// Query selections repeat list parameters (?id=E1&id=E2&sheet=Q1) and take
// from, to as YYYY-MM-DD.
//
// # Error Handling
//
// All errors follow RFC 7807 Problem Details:
//
//	{
//	    "type": "/errors/validation",
//	    "title": "Bad Request",
//	    "status": 400,
//	    "detail": "invalid date range: from is after to",
//	    "instance": "/api/dashboard/render",
//	    "error_code": "VALIDATION",
//	    "trace_id": "host/abc-000001"
//	}
package http
