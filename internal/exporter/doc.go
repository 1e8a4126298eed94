// Package exporter writes filtered dataset views as CSV, either to a stream
// (HTTP downloads) or to a file under the export directory.
//
// Example usage:
//
//	// Stream a filtered view
//	err := exporter.WriteView(w, view)
//
//	// Save a copy with a BOM so Excel detects UTF-8
//	writer := exporter.NewCSVWriter(paths, logger)
//	path, err := writer.WriteFile("employee_filtered_data.csv", view, exporter.WriteOptions{BOMPrefix: true})
package exporter
