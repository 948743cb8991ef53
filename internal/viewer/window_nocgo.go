//go:build !cgo

package viewer

import (
	"context"
	"errors"

	"simplemap/internal/simplemap"
)

func Run(_ context.Context, _ *simplemap.SimpleMap, _ Options) error {
	return errors.New("window mode requires cgo (build with CGO_ENABLED=1)")
}
