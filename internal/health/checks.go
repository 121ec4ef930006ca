package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/maxassist/internal/generate"
	"github.com/MrWong99/maxassist/pkg/memory"
)

// ModelStatus is implemented by [*generate.Model].
type ModelStatus interface {
	Status() generate.Status
	LastError() error
}

// ModelCheck reports the generative model's lifecycle. A model that is not
// ready is optional: replies degrade to canned text.
func ModelCheck(m ModelStatus) Checker {
	return Checker{
		Name:     "model",
		Optional: true,
		Check: func(context.Context) error {
			switch st := m.Status(); st {
			case generate.StatusReady:
				return nil
			case generate.StatusError:
				if err := m.LastError(); err != nil {
					return fmt.Errorf("warm-up failed: %w", err)
				}
				return errors.New("warm-up failed")
			default:
				return fmt.Errorf("model %s", st)
			}
		},
	}
}

// ArchiveCheck pings the exchange archive.
func ArchiveCheck(p memory.Pinger) Checker {
	return Checker{
		Name:  "archive",
		Check: p.Ping,
	}
}
