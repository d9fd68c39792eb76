package bointegration_test

import (
	"testing"

	"github.com/gordian-engine/benor/bointegration"
)

func TestLibp2p(t *testing.T) {
	t.Parallel()

	bointegration.RunIntegrationTest(t, bointegration.Libp2pFactory)
}
