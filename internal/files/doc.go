// Package files discovers KPI workbooks in the data directory.
//
// Discovery lists every file the loader can read (xlsx, xls, csv, csv.gz,
// csv.lz4, zip, SQLite), newest first, skipping hidden files and the ~$
// lock files Excel leaves next to open workbooks.
//
// Example usage:
//
//	discovery := files.NewDiscovery(paths.DataDir, logger)
//	sources, err := discovery.FindSources("")
//	if latest, ok := files.Latest(sources); ok {
//	    cfg.Data.Source = latest.Path
//	}
package files
