// Package shared holds helpers used by more than one package of the
// dashboard. Today that is only testutil: log capture and the KPI fixtures
// the loader, service, HTTP and CLI tests load.
//
// Nothing here may import a domain package; domain code belongs with its
// layer, not in shared.
package shared
