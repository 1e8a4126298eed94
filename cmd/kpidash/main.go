// Command kpidash serves and renders the employee KPI dashboard.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	apierrors "kpidash/internal/errors"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.New(color.FgRed).Sprint("kpidash: "+errorMessage(err)))
		os.Exit(1)
	}
}

// errorMessage spells out field validation failures, which the error
// itself only summarizes.
func errorMessage(err error) string {
	var apiErr *apierrors.APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	details, ok := apiErr.Details.(apierrors.ValidationErrors)
	if !ok || len(details.Errors) == 0 {
		return apiErr.Message
	}

	fields := make([]string, 0, len(details.Errors))
	for _, e := range details.Errors {
		fields = append(fields, e.Message)
	}
	return apiErr.Message + ": " + strings.Join(fields, "; ")
}
