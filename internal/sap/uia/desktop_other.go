//go:build !windows

package uia

import (
	"context"

	"github.com/antonkrylov/saprunner/internal/sap"
)

// NewDesktop returns a Desktop whose queries fail with sap.ErrUnsupportedPlatform.
func NewDesktop() *Desktop {
	return New(unsupported, noInput{})
}

func unsupported(context.Context, Query) ([]byte, error) {
	return nil, sap.ErrUnsupportedPlatform
}

type noInput struct{}

func (noInput) Focus(uintptr) error { return sap.ErrUnsupportedPlatform }

func (noInput) Click(int, int) error { return sap.ErrUnsupportedPlatform }

func (noInput) DoubleClick(int, int) error { return sap.ErrUnsupportedPlatform }
