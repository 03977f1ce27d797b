package rewrite

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/routeproxy/internal/codec"
	"github.com/GriffinCanCode/routeproxy/internal/route"
)

const testBase = "/r/"

var testCodec = codec.MustNew(codec.Plain, "")

func address(t *testing.T, raw string) *route.Address {
	t.Helper()
	a, err := route.NewAddress(raw, testCodec, testBase)
	require.NoError(t, err)
	return a
}

// routed is the route the rewriters are expected to emit for abs.
func routed(t *testing.T, typ route.ResourceType, abs string) string {
	t.Helper()
	r, err := route.ToRoute(typ, address(t, abs))
	require.NoError(t, err)
	return r
}

type recordingObserver struct {
	mu      sync.Mutex
	routed  map[route.ResourceType]int
	skipped map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		routed:  make(map[route.ResourceType]int),
		skipped: make(map[string]int),
	}
}

func (o *recordingObserver) ReferenceRouted(t route.ResourceType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routed[t]++
}

func (o *recordingObserver) ReferenceSkipped(_ route.ResourceType, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped[reason]++
}
