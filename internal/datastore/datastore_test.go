package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/errors"
)

// createDatabase opens a SQLite store in a temporary directory and closes it
// when the test completes.
func createDatabase(t *testing.T) Interface {
	t.Helper()
	settings := &conf.Settings{}
	settings.Database.Type = "sqlite"
	settings.Database.SQLite.Path = t.TempDir() + "/test.db"

	store, err := New(settings)
	require.NoError(t, err)
	require.NoError(t, store.Open(), "Failed to open database")

	t.Cleanup(func() {
		assert.NoError(t, store.Close(), "Failed to close datastore")
	})
	return store
}

func strPtr(s string) *string { return &s }

func TestNew_UnsupportedType(t *testing.T) {
	settings := &conf.Settings{}
	settings.Database.Type = "postgres"

	_, err := New(settings)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestDiseaseLookups(t *testing.T) {
	store := createDatabase(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDiseases(ctx, []Disease{
		{ID: "D7", Crop: "tomato", Name: "blight", Condition: "humid", Symptoms: "spots", Prevention: "spray"},
		{ID: "D8", Crop: "tomato", Name: "leaf mold"},
	}))

	d, err := store.DiseaseByCropAndName(ctx, "tomato", "blight")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "D7", d.ID)
	assert.Equal(t, "spots", d.Symptoms)

	t.Run("miss returns nil without error", func(t *testing.T) {
		d, err := store.DiseaseByCropAndName(ctx, "tomato", "healthy")
		require.NoError(t, err)
		assert.Nil(t, d)

		d, err = store.DiseaseByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, d)
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		require.NoError(t, store.UpsertDiseases(ctx, []Disease{
			{ID: "D7", Crop: "tomato", Name: "blight", Symptoms: "dark lesions"},
		}))
		d, err := store.DiseaseByID(ctx, "D7")
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, "dark lesions", d.Symptoms)

		n, err := store.CountDiseases(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}

func TestUsers(t *testing.T) {
	store := createDatabase(t)
	ctx := context.Background()

	_, err := store.GetUser(ctx, "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUserNotFound)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, store.SaveUser(ctx, &User{ID: "u1", Nickname: "kim"}))
	require.NoError(t, store.SaveUser(ctx, &User{ID: "u1", Nickname: "park"}))

	u, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "park", u.Nickname)
}

func TestSaveDiagnosis_IdentityChecks(t *testing.T) {
	store := createDatabase(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		record  DiagnosisRecord
		wantErr bool
	}{
		{
			name:   "local primary mirrors id",
			record: DiagnosisRecord{UserID: "u1", ReferenceCode1: "D7", DiseaseID1: strPtr("D7")},
		},
		{
			name:   "external primary without id",
			record: DiagnosisRecord{UserID: "u1", ReferenceCode1: "V000123"},
		},
		{
			name:    "empty primary",
			record:  DiagnosisRecord{UserID: "u1", ReferenceCode1: "  "},
			wantErr: true,
		},
		{
			name:    "mismatched primary id",
			record:  DiagnosisRecord{UserID: "u1", ReferenceCode1: "V1", DiseaseID1: strPtr("D7")},
			wantErr: true,
		},
		{
			name:    "secondary id without code",
			record:  DiagnosisRecord{UserID: "u1", ReferenceCode1: "D7", DiseaseID1: strPtr("D7"), DiseaseID2: strPtr("D8")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.record
			err := store.SaveDiagnosis(ctx, &rec)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrCorruptRecord)
				assert.Zero(t, rec.ID)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, rec.ID)
			assert.Equal(t, time.UTC, rec.CreatedAt.Location())
		})
	}

	records, err := store.ListDiagnoses(ctx, NewDiagnosisFilters("u1"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.NotEmpty(t, r.ReferenceCode1)
		if r.DiseaseID1 != nil {
			assert.Equal(t, r.ReferenceCode1, *r.DiseaseID1)
		}
	}
}

func TestListDiagnoses_Order(t *testing.T) {
	store := createDatabase(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	// The last two share a timestamp so the id decides their order.
	times := []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour), base.Add(2 * time.Hour)}
	for i, ts := range times {
		rec := &DiagnosisRecord{UserID: "u1", ReferenceCode1: "D7", CreatedAt: ts}
		require.NoError(t, store.SaveDiagnosis(ctx, rec), "record %d", i)
	}
	require.NoError(t, store.SaveDiagnosis(ctx, &DiagnosisRecord{UserID: "u2", ReferenceCode1: "D7", CreatedAt: base}))

	asc, err := store.ListDiagnoses(ctx, NewDiagnosisFilters("u1"))
	require.NoError(t, err)
	desc, err := store.ListDiagnoses(ctx, NewDiagnosisFilters("u1").WithDescending(true))
	require.NoError(t, err)

	require.Len(t, asc, 4)
	require.Len(t, desc, 4)
	for i := range asc {
		assert.Equal(t, asc[i].ID, desc[len(desc)-1-i].ID)
	}
	assert.Less(t, asc[2].ID, asc[3].ID)

	_, err = store.ListDiagnoses(ctx, &DiagnosisFilters{})
	assert.Error(t, err)
}

func TestListDiagnoses_CreatedRange(t *testing.T) {
	store := createDatabase(t)
	ctx := context.Background()
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	from := time.Date(2024, 2, 1, 0, 0, 0, 0, seoul)
	until := time.Date(2024, 3, 1, 0, 0, 0, 0, seoul)
	stamps := map[string]time.Time{
		"before":    from.Add(-time.Second),
		"first":     from,
		"leap":      time.Date(2024, 2, 29, 23, 59, 59, 0, seoul),
		"next":      until,
		"utc-early": time.Date(2024, 1, 31, 15, 30, 0, 0, time.UTC), // 2024-02-01 00:30 KST
	}
	for _, ts := range stamps {
		require.NoError(t, store.SaveDiagnosis(ctx, &DiagnosisRecord{UserID: "u1", ReferenceCode1: "D7", CreatedAt: ts}))
	}

	records, err := store.ListDiagnoses(ctx, NewDiagnosisFilters("u1").WithCreatedRange(from, until))
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.False(t, r.CreatedAt.Before(from), "record %s before window", r.CreatedAt)
		assert.True(t, r.CreatedAt.Before(until), "record %s after window", r.CreatedAt)
	}
}

func TestDeleteDiagnosis(t *testing.T) {
	store := createDatabase(t)
	ctx := context.Background()

	rec := &DiagnosisRecord{UserID: "u1", ReferenceCode1: "D7", ImageKey: "diagnosis-abc-leaf.jpg"}
	require.NoError(t, store.SaveDiagnosis(ctx, rec))

	_, err := store.DeleteDiagnosis(ctx, rec.ID, "intruder")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	deleted, err := store.DeleteDiagnosis(ctx, rec.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "diagnosis-abc-leaf.jpg", deleted.ImageKey)

	_, err = store.DeleteDiagnosis(ctx, rec.ID, "u1")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	records, err := store.ListDiagnoses(ctx, NewDiagnosisFilters("u1"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMySQLDSN(t *testing.T) {
	dsn := mysqlDSN(conf.MySQLSettings{Host: "db", Port: "3306", Username: "crop", Password: "pw", Database: "cropdoc"})
	assert.Contains(t, dsn, "crop:pw@tcp(db:3306)/cropdoc")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}
