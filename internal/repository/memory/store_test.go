package memory

import (
	"testing"

	"e2e_relay/internal/repository"
	"e2e_relay/internal/repository/repotest"
)

func TestStore(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Store {
		return New()
	})
}
