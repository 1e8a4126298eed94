package services

import "errors"

var (
	// ErrNoDataSource means neither the request nor the configuration names
	// a data source.
	ErrNoDataSource = errors.New("no data source")

	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)
