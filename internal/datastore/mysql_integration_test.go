//go:build integration

package datastore

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/nongbuhae/cropdoc/internal/conf"
)

func startMySQL(t *testing.T) conf.MySQLSettings {
	t.Helper()
	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("cropdoc"),
		tcmysql.WithUsername("cropdoc"),
		tcmysql.WithPassword("cropdoc"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(endpoint)
	require.NoError(t, err)

	return conf.MySQLSettings{Host: host, Port: port, Username: "cropdoc", Password: "cropdoc", Database: "cropdoc"}
}

func TestMySQLStore_RoundTrip(t *testing.T) {
	settings := &conf.Settings{}
	settings.Database.Type = "mysql"
	settings.Database.MySQL = startMySQL(t)

	store, err := New(settings)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	ctx := context.Background()
	require.NoError(t, store.UpsertDiseases(ctx, []Disease{{ID: "D7", Crop: "토마토", Name: "잎곰팡이병"}}))

	d, err := store.DiseaseByCropAndName(ctx, "토마토", "잎곰팡이병")
	require.NoError(t, err)
	require.NotNil(t, d)

	first := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		require.NoError(t, store.SaveDiagnosis(ctx, &DiagnosisRecord{
			UserID: "u1", ReferenceCode1: "D7", DiseaseID1: strPtr("D7"),
			CreatedAt: first.Add(time.Duration(i) * time.Hour),
		}))
	}

	desc, err := store.ListDiagnoses(ctx, NewDiagnosisFilters("u1").WithDescending(true))
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.True(t, desc[0].CreatedAt.After(desc[2].CreatedAt))
}
