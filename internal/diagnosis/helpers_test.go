package diagnosis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nongbuhae/cropdoc/internal/classifier"
	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/datastore"
	"github.com/nongbuhae/cropdoc/internal/disease"
	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/ncpms"
	"github.com/nongbuhae/cropdoc/internal/notification"
	"github.com/nongbuhae/cropdoc/internal/storage"
)

const testUser = "user-1"

// fakeStorage records uploads and deletes.
type fakeStorage struct {
	mu          sync.Mutex
	uploads     int
	deletes     []string
	deleteCtxOK []bool
	uploadErr   error
	deleteErr   error
}

func (f *fakeStorage) Upload(_ context.Context, u storage.Upload) (storage.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return storage.Object{}, f.uploadErr
	}
	f.uploads++
	key := fmt.Sprintf("diagnosis-%d-%s", f.uploads, u.Filename)
	return storage.Object{Key: key, URL: "https://img.test/" + key}, nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	f.deleteCtxOK = append(f.deleteCtxOK, ctx.Err() == nil)
	return f.deleteErr
}

func (f *fakeStorage) deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

// fakeClassifier returns a fixed prediction.
type fakeClassifier struct {
	mu    sync.Mutex
	pred  classifier.Prediction
	err   error
	block bool
	calls int
}

func (f *fakeClassifier) Classify(ctx context.Context, _ classifier.Image, _ string) (classifier.Prediction, error) {
	f.mu.Lock()
	f.calls++
	block, pred, err := f.block, f.pred, f.err
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return classifier.Prediction{}, ctx.Err()
	}
	return pred, err
}

func (f *fakeClassifier) Close() error { return nil }

func (f *fakeClassifier) predict(name1 string, c1 int, name2 string, c2 int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pred = classifier.Prediction{
		Primary:   classifier.Guess{DiseaseName: name1, Confidence: c1},
		Secondary: classifier.Guess{DiseaseName: name2, Confidence: c2},
	}
}

func (f *fakeClassifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeExternal is an in-memory reference service. Crops not listed in
// crops are unrecognized.
type fakeExternal struct {
	mu         sync.Mutex
	crops      map[string]bool
	hits       map[string]*ncpms.SearchResult // crop + "/" + name
	details    map[string]*ncpms.Detail
	failNames  map[string]error // search failure per disease name
	detailErr  error
	searchLogs []string
}

func newFakeExternal() *fakeExternal {
	return &fakeExternal{
		crops:     map[string]bool{"tomato": true},
		hits:      map[string]*ncpms.SearchResult{},
		details:   map[string]*ncpms.Detail{},
		failNames: map[string]error{},
	}
}

func (f *fakeExternal) add(crop, name, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crops[crop] = true
	f.hits[crop+"/"+name] = &ncpms.SearchResult{ReferenceCode: code, ThumbnailURL: "https://ncpms.test/thumb/" + code}
	f.details[code] = &ncpms.Detail{
		ReferenceCode: code,
		Name:          name,
		Crop:          crop,
		Condition:     "condition of " + name,
		Symptoms:      "symptoms of " + name,
		Prevention:    "prevention of " + name,
		ImageURL:      "https://ncpms.test/full/" + code,
	}
}

func (f *fakeExternal) Search(_ context.Context, crop, name string) (*ncpms.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchLogs = append(f.searchLogs, crop+"/"+name)
	if err, ok := f.failNames[name]; ok {
		return nil, err
	}
	if !f.crops[crop] {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnrecognizedCrop, crop)
	}
	return f.hits[crop+"/"+name], nil
}

func (f *fakeExternal) FetchDetail(_ context.Context, code string) (*ncpms.Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	d, ok := f.details[code]
	if !ok {
		return nil, fmt.Errorf("%w: unknown key %s", errors.ErrUpstreamUnavailable, code)
	}
	return d, nil
}

// fakeNotifier collects notifications.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []*notification.Notification
}

func (f *fakeNotifier) Notify(n *notification.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// failingRecords fails SaveDiagnosis and passes everything else through.
type failingRecords struct {
	datastore.Interface
	err error
}

func (f failingRecords) SaveDiagnosis(context.Context, *datastore.DiagnosisRecord) error {
	return f.err
}

// testClock returns increasing instants one minute apart.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

type harness struct {
	svc        *Service
	store      datastore.Interface
	storage    *fakeStorage
	classifier *fakeClassifier
	external   *fakeExternal
	notifier   *fakeNotifier
	cfg        Config
	deps       Deps
}

type harnessOption func(*harness)

func withLegacyNotFound() harnessOption {
	return func(h *harness) { h.cfg.LegacyNotFound = true }
}

func withRecords(wrap func(datastore.Interface) Records) harnessOption {
	return func(h *harness) { h.deps.Records = wrap(h.store) }
}

func withLocation(loc *time.Location) harnessOption {
	return func(h *harness) { h.cfg.Location = loc }
}

// newHarness wires a Service to a real SQLite store seeded with one user and
// the local disease D7 (tomato blight), a real resolver over a fake
// reference service, and fake storage and classifier.
func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	settings := &conf.Settings{}
	settings.Database.Type = "sqlite"
	settings.Database.SQLite.Path = t.TempDir() + "/cropdoc.db"
	store, err := datastore.New(settings)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	ctx := context.Background()
	require.NoError(t, store.SaveUser(ctx, &datastore.User{ID: testUser, Nickname: "farmer"}))
	require.NoError(t, store.SaveUser(ctx, &datastore.User{ID: "user-2", Nickname: "neighbour"}))
	require.NoError(t, store.UpsertDiseases(ctx, []datastore.Disease{{
		ID: "D7", Crop: "tomato", Name: "blight", EnglishName: "Late blight",
		Condition: "cool and wet", Symptoms: "dark lesions", Prevention: "remove infected leaves",
		ImageURL: "https://local.test/D7.jpg",
	}}))

	h := &harness{
		store:      store,
		storage:    &fakeStorage{},
		classifier: &fakeClassifier{},
		external:   newFakeExternal(),
		notifier:   &fakeNotifier{},
		cfg: Config{
			Crops:           []string{"tomato", "strawberry", "cucumber", "pepper", "paprika", "토마토", "딸기"},
			ListConcurrency: 2,
			Location:        time.UTC,
		},
	}
	resolver := disease.NewResolver(disease.NewLocalStore(store), h.external, 0)
	h.deps = Deps{
		Users:      store,
		Records:    store,
		Storage:    h.storage,
		Classifier: h.classifier,
		Resolver:   resolver,
		Notifier:   h.notifier,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.svc, err = NewService(h.cfg, h.deps)
	require.NoError(t, err)
	clock := &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	h.svc.now = clock.Now
	return h
}

func (h *harness) request(crop string) Request {
	return Request{
		UserID:      testUser,
		Crop:        crop,
		Filename:    "leaf.jpg",
		ContentType: "image/jpeg",
		Data:        []byte{0xFF, 0xD8, 0xFF, 0xE0},
	}
}

func (h *harness) rows(t *testing.T, userID string) []datastore.DiagnosisRecord {
	t.Helper()
	rows, err := h.store.ListDiagnoses(context.Background(), datastore.NewDiagnosisFilters(userID))
	require.NoError(t, err)
	return rows
}
