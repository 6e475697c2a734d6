package pdf

import (
	"context"
	"io"
)

type Provider interface {
	GenerateVoucherInstructions(ctx context.Context, data InstructionsData) (io.Reader, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateVoucherInstructions(ctx context.Context, data InstructionsData) (io.Reader, error) {
	return nil, nil
}
