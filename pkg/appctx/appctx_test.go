package appctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	frame := &Frame{Tenant: "acme", RequestID: "req-1", Language: "es"}
	ctx := With(context.Background(), frame)

	require.Same(t, frame, From(ctx))
	assert.Equal(t, "acme", Tenant(ctx))
	assert.Equal(t, "es", Language(ctx))
}

func TestAccessorsOutsideRequest(t *testing.T) {
	ctx := context.Background()

	assert.Nil(t, From(ctx))
	assert.Empty(t, Tenant(ctx))
	assert.Nil(t, Handle(ctx))
	assert.Nil(t, Bus(ctx))
	assert.Nil(t, Principal(ctx))
	assert.Empty(t, Language(ctx))

	// SetPrincipal outside a request must not panic.
	SetPrincipal(ctx, "someone")
}

func TestSetPrincipalSharedAcrossDerivedContexts(t *testing.T) {
	frame := &Frame{Tenant: "acme"}
	ctx := With(context.Background(), frame)
	child, cancel := context.WithCancel(ctx)
	defer cancel()

	SetPrincipal(child, "user-record")
	assert.Equal(t, "user-record", Principal(ctx))
}
