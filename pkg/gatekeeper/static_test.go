package gatekeeper

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticAdmission(t *testing.T) {
	gk := NewStatic(StaticConfig{
		Routes:         map[string]string{"alice": "10.0.0.1:1720"},
		StrictRoutes:   true,
		TotalBandwidth: 1280,
		Denied:         []string{"mallory"},
	})
	ctx := context.Background()

	resp, err := gk.Admit(ctx, AdmissionRequest{CallIdentifier: "c1", Destination: "alice", Bandwidth: 640})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:1720", resp.Address)

	_, err = gk.Admit(ctx, AdmissionRequest{CallIdentifier: "c2", Destination: "bob"})
	var rej *RejectError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, RejectCalledPartyNotRegistered, rej.Reason)

	_, err = gk.Admit(ctx, AdmissionRequest{CallIdentifier: "c3", SourceAlias: "Mallory", Answering: true})
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, RejectSecurityDenial, rej.Reason)

	_, err = gk.Admit(ctx, AdmissionRequest{CallIdentifier: "c4", Destination: "alice@x", Bandwidth: 1000})
	require.True(t, errors.As(err, &rej), "бюджет полосы исчерпан")
	assert.Equal(t, RejectRequestDenied, rej.Reason)

	require.NoError(t, gk.Disengage(ctx, DisengageRequest{CallIdentifier: "c1"}))
	assert.Zero(t, gk.Active())

	_, err = gk.Admit(ctx, AdmissionRequest{CallIdentifier: "c4", Destination: "alice@x", Bandwidth: 1000})
	assert.NoError(t, err, "после освобождения полоса доступна")
}
