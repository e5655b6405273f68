// Package api exposes the run service over HTTP and gRPC.
package api

import (
	"context"
	"errors"

	"github.com/antonkrylov/saprunner/internal/runstore"
	"github.com/antonkrylov/saprunner/internal/runsvc"
	"github.com/antonkrylov/saprunner/internal/sap"
)

// RunService is what both front ends need from *runsvc.Service.
type RunService interface {
	Run(ctx context.Context, cmd sap.RunCommand) (*runstore.Run, error)
	Get(id string) (*runstore.Run, error)
	List(limit int) []*runstore.Run
	Busy() bool
}

var _ RunService = (*runsvc.Service)(nil)

const unexpectedMessage = "unexpected sap automation error"

// errorClass buckets run errors for both transports.
type errorClass int

const (
	classUnexpected errorClass = iota
	classBadRequest
	classBusy
	classUnavailable
	classNotFound
	classConfig
	classAutomation
	classExtraction
)

func classify(err error) errorClass {
	switch {
	case errors.Is(err, runsvc.ErrBusy):
		return classBusy
	case errors.Is(err, runsvc.ErrClosed):
		return classUnavailable
	case errors.Is(err, runstore.ErrRunNotFound):
		return classNotFound
	}
	switch sap.KindOf(err) {
	case sap.KindValidation:
		return classBadRequest
	case sap.KindConfig:
		return classConfig
	case sap.KindAutomation, sap.KindExportTimeout:
		return classAutomation
	case sap.KindExtraction:
		return classExtraction
	}
	return classUnexpected
}

// publicMessage hides the details of uncategorized errors.
func publicMessage(err error) string {
	if classify(err) == classUnexpected {
		return unexpectedMessage
	}
	return err.Error()
}
