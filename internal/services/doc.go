// Package services implements the business logic layer of the dashboard.
// It sits between the transports (HTTP, websocket, CLI) and the pipeline
// packages so handlers stay thin and the rules are tested in one place.
//
// # Services
//
//	- DashboardService: loads the configured source through the cache,
//	  classifies its columns and renders or exports a selection
//	- HealthService: liveness, readiness and version information
//
// # Error Handling
//
// Services return *errors.AppError values from the application taxonomy
// (LOAD, PARSING, VALIDATION, NOT_FOUND, CONFIG, RENDER). The HTTP error
// handler turns them into RFC 7807 problem documents:
//
//	model, err := svc.Render(ctx, req)
//	if err != nil {
//	    errorHandler.HandleError(w, r, err)
//	    return
//	}
//
// # Testing
//
// Dependencies are interfaces so tests can swap them for mocks:
//
//	l := new(services.MockLoader)
//	l.On("Get", mock.Anything, mock.Anything).Return(nil, loader.ErrFileNotFound)
//	svc := services.NewDashboardService(cfg, nil, l, nil, logger)
package services
