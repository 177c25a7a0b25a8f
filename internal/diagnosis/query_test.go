package diagnosis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nongbuhae/cropdoc/internal/datastore"
	"github.com/nongbuhae/cropdoc/internal/errors"
)

func strPtr(s string) *string { return &s }

// saveRecord stores a record for userID created at the given instant.
func saveRecord(t *testing.T, h *harness, userID string, createdAt time.Time, diseaseID *string, code string) datastore.DiagnosisRecord {
	t.Helper()
	c1, c2 := 70, 20
	rec := &datastore.DiagnosisRecord{
		UserID:         userID,
		ImageURL:       "https://img.test/" + code,
		ImageKey:       "key-" + code,
		Confidence1:    &c1,
		Confidence2:    &c2,
		ReferenceCode1: code,
		DiseaseID1:     diseaseID,
		CreatedAt:      createdAt,
	}
	require.NoError(t, h.store.SaveDiagnosis(context.Background(), rec))
	return *rec
}

// saveCorruptRecord bypasses the identity checks of SaveDiagnosis.
func saveCorruptRecord(t *testing.T, h *harness, createdAt time.Time) datastore.DiagnosisRecord {
	t.Helper()
	sqlite, ok := h.store.(*datastore.SQLiteStore)
	require.True(t, ok)
	rec := &datastore.DiagnosisRecord{
		UserID:    testUser,
		ImageURL:  "https://img.test/corrupt",
		CreatedAt: createdAt.UTC(),
	}
	require.NoError(t, sqlite.DB.Create(rec).Error)
	return *rec
}

func recordIDs(entries []Entry) []uint {
	ids := make([]uint, 0, len(entries))
	for i := range entries {
		ids = append(ids, entries[i].Record.ID)
	}
	return ids
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    Order
		wantErr bool
	}{
		{"", OrderAsc, false},
		{"ASC", OrderAsc, false},
		{"asc", OrderAsc, false},
		{"DESC", OrderDesc, false},
		{" desc ", OrderDesc, false},
		{"newest", "", true},
		{"ASCENDING", "", true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			got, err := ParseOrder(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMonthWindow(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	t.Run("leap February", func(t *testing.T) {
		from, until, err := MonthWindow(2024, 2, seoul)
		require.NoError(t, err)
		assert.True(t, from.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, seoul)))
		assert.True(t, until.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, seoul)))

		last := time.Date(2024, 2, 29, 23, 59, 59, 0, seoul)
		assert.True(t, !last.Before(from) && last.Before(until))
	})

	t.Run("December rolls into next year", func(t *testing.T) {
		from, until, err := MonthWindow(2023, 12, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), from)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), until)
	})

	t.Run("nil location uses local time", func(t *testing.T) {
		from, _, err := MonthWindow(2024, 6, nil)
		require.NoError(t, err)
		assert.Equal(t, time.Local, from.Location())
	})

	for _, bad := range []struct{ year, month int }{{2024, 0}, {2024, 13}, {0, 5}, {10000, 1}} {
		t.Run(fmt.Sprintf("rejects %d-%d", bad.year, bad.month), func(t *testing.T) {
			_, _, err := MonthWindow(bad.year, bad.month, time.UTC)
			assert.ErrorIs(t, err, errors.ErrInvalidInput)
		})
	}
}

func TestList_OrderAndExpansion(t *testing.T) {
	h := newHarness(t)
	h.external.add("tomato", "잿빛곰팡이병", "K100")
	base := time.Date(2024, 4, 10, 8, 0, 0, 0, time.UTC)

	local := saveRecord(t, h, testUser, base, strPtr("D7"), "D7")
	external := saveRecord(t, h, testUser, base.Add(time.Hour), nil, "K100")
	corrupt := saveCorruptRecord(t, h, base.Add(2*time.Hour))
	missing := saveRecord(t, h, testUser, base.Add(3*time.Hour), nil, "K404")
	saveRecord(t, h, "user-2", base.Add(4*time.Hour), strPtr("D7"), "D7")

	asc, err := h.svc.List(context.Background(), testUser, OrderAsc)
	require.NoError(t, err)
	require.Len(t, asc, 4)
	assert.Equal(t, []uint{local.ID, external.ID, corrupt.ID, missing.ID}, recordIDs(asc))

	require.NoError(t, asc[0].Err)
	require.NotNil(t, asc[0].Descriptor)
	assert.Equal(t, "blight", asc[0].Descriptor.Name)

	require.NoError(t, asc[1].Err)
	require.NotNil(t, asc[1].Descriptor)
	assert.Equal(t, "잿빛곰팡이병", asc[1].Descriptor.Name)
	assert.Equal(t, "https://ncpms.test/full/K100", asc[1].Descriptor.ImageURL)

	assert.Nil(t, asc[2].Descriptor)
	assert.ErrorIs(t, asc[2].Err, errors.ErrCorruptRecord)

	assert.Nil(t, asc[3].Descriptor)
	assert.ErrorIs(t, asc[3].Err, errors.ErrUpstreamUnavailable)

	desc, err := h.svc.List(context.Background(), testUser, OrderDesc)
	require.NoError(t, err)
	assert.Equal(t, []uint{missing.ID, corrupt.ID, external.ID, local.ID}, recordIDs(desc))
}

func TestList_ReversesDiagnosedRecords(t *testing.T) {
	h := newHarness(t)
	h.classifier.predict("blight", 87, "healthy", 10)

	var ids []uint
	for range 3 {
		res, err := h.svc.Diagnose(context.Background(), h.request("tomato"))
		require.NoError(t, err)
		ids = append(ids, res.Record.ID)
	}

	asc, err := h.svc.List(context.Background(), testUser, OrderAsc)
	require.NoError(t, err)
	desc, err := h.svc.List(context.Background(), testUser, OrderDesc)
	require.NoError(t, err)

	assert.Equal(t, ids, recordIDs(asc))
	assert.Equal(t, []uint{ids[2], ids[1], ids[0]}, recordIDs(desc))
}

func TestList_UserChecks(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.List(context.Background(), "", OrderAsc)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = h.svc.List(context.Background(), "ghost", OrderAsc)
	assert.ErrorIs(t, err, errors.ErrUserNotFound)

	entries, err := h.svc.List(context.Background(), "user-2", OrderAsc)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestList_CanceledContext(t *testing.T) {
	h := newHarness(t)
	saveRecord(t, h, testUser, time.Now(), strPtr("D7"), "D7")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.svc.List(ctx, testUser, OrderAsc)
	require.Error(t, err)
}

func TestListMonth_LeapFebruaryInSeoul(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	h := newHarness(t, withLocation(seoul))

	saveRecord(t, h, testUser, time.Date(2024, 1, 31, 23, 59, 59, 0, seoul), strPtr("D7"), "D7")
	first := saveRecord(t, h, testUser, time.Date(2024, 2, 1, 0, 0, 0, 0, seoul), strPtr("D7"), "D7")
	last := saveRecord(t, h, testUser, time.Date(2024, 2, 29, 23, 59, 59, 0, seoul), strPtr("D7"), "D7")
	saveRecord(t, h, testUser, time.Date(2024, 3, 1, 0, 0, 0, 0, seoul), strPtr("D7"), "D7")

	entries, err := h.svc.ListMonth(context.Background(), testUser, 2024, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint{first.ID, last.ID}, recordIDs(entries))
	for _, e := range entries {
		assert.NoError(t, e.Err)
		assert.NotNil(t, e.Descriptor)
	}
}

func TestListMonth_December(t *testing.T) {
	h := newHarness(t)

	eve := saveRecord(t, h, testUser, time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), strPtr("D7"), "D7")
	saveRecord(t, h, testUser, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), strPtr("D7"), "D7")

	entries, err := h.svc.ListMonth(context.Background(), testUser, 2023, 12)
	require.NoError(t, err)
	assert.Equal(t, []uint{eve.ID}, recordIDs(entries))

	_, err = h.svc.ListMonth(context.Background(), testUser, 2023, 13)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestDelete(t *testing.T) {
	t.Run("owner delete cascades to the image", func(t *testing.T) {
		h := newHarness(t)
		rec := saveRecord(t, h, testUser, time.Now(), strPtr("D7"), "D7")

		require.NoError(t, h.svc.Delete(context.Background(), testUser, rec.ID))
		assert.Equal(t, []string{"key-D7"}, h.storage.deleted())
		assert.Empty(t, h.rows(t, testUser))
	})

	t.Run("foreign record is not found", func(t *testing.T) {
		h := newHarness(t)
		rec := saveRecord(t, h, "user-2", time.Now(), strPtr("D7"), "D7")

		err := h.svc.Delete(context.Background(), testUser, rec.ID)
		assert.ErrorIs(t, err, errors.ErrNotFound)
		assert.Empty(t, h.storage.deleted())
		assert.Len(t, h.rows(t, "user-2"), 1)
	})

	t.Run("image delete failure is ignored", func(t *testing.T) {
		h := newHarness(t)
		h.storage.deleteErr = fmt.Errorf("object locked")
		rec := saveRecord(t, h, testUser, time.Now(), strPtr("D7"), "D7")

		require.NoError(t, h.svc.Delete(context.Background(), testUser, rec.ID))
		assert.Empty(t, h.rows(t, testUser))
	})

	t.Run("invalid arguments", func(t *testing.T) {
		h := newHarness(t)
		assert.ErrorIs(t, h.svc.Delete(context.Background(), "", 1), errors.ErrInvalidInput)
		assert.ErrorIs(t, h.svc.Delete(context.Background(), testUser, 0), errors.ErrInvalidInput)
	})
}
