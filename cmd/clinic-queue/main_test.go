package main

import (
	"context"
	"io"
	"testing"

	"qms/clinic-queue/internal/logging"
	"qms/clinic-queue/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedClinicsSkipsExisting(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	logger := logging.NewWithOutput("error", io.Discard)

	require.NoError(t, seedClinics(ctx, st, []string{"General", "Dental"}, logger))
	require.NoError(t, seedClinics(ctx, st, []string{"General", "Eye"}, logger))

	clinics, err := st.ListClinics(ctx, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(clinics))
	for _, clinic := range clinics {
		names = append(names, clinic.Name)
		assert.True(t, clinic.Active)
	}
	assert.Equal(t, []string{"Dental", "Eye", "General"}, names)
}
