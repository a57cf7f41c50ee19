package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"medicapp-sync/internal/domain"
	"medicapp-sync/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNetwork struct {
	mu     sync.Mutex
	online bool
}

func (n *fakeNetwork) IsOnline() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *fakeNetwork) set(online bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.online = online
}

// mockDocumentService keeps collections in memory and lets tests inject
// per-operation failures, including fail-N-times-then-succeed.
type mockDocumentService struct {
	mu     sync.Mutex
	docs   map[string]map[string]map[string]interface{}
	nextID int

	listErr   error
	createErr error
	setErr    error
	deleteErr error

	setFailures    int
	createFailures int
}

func newMockDocumentService() *mockDocumentService {
	return &mockDocumentService{
		docs: make(map[string]map[string]map[string]interface{}),
	}
}

func (m *mockDocumentService) collection(name string) map[string]map[string]interface{} {
	if m.docs[name] == nil {
		m.docs[name] = make(map[string]map[string]interface{})
	}
	return m.docs[name]
}

func (m *mockDocumentService) ListCollection(_ context.Context, name string) ([]repository.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	var docs []repository.Document
	for id, fields := range m.collection(name) {
		copied := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			copied[k] = v
		}
		docs = append(docs, repository.Document{ID: id, Fields: copied})
	}
	return docs, nil
}

func (m *mockDocumentService) GetDocument(_ context.Context, collection, id string) (*repository.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields, ok := m.collection(collection)[id]
	if !ok {
		return nil, nil
	}
	return &repository.Document{ID: id, Fields: fields}, nil
}

func (m *mockDocumentService) CreateDocument(_ context.Context, collection string, fields map[string]interface{}) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createFailures > 0 {
		m.createFailures--
		return "", fmt.Errorf("injected create failure")
	}
	if m.createErr != nil {
		return "", m.createErr
	}

	m.nextID++
	id := fmt.Sprintf("srv-%d", m.nextID)

	copied := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	m.collection(collection)[id] = copied

	return id, nil
}

func (m *mockDocumentService) SetDocument(_ context.Context, collection, id string, fields map[string]interface{}, merge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setFailures > 0 {
		m.setFailures--
		return fmt.Errorf("injected set failure")
	}
	if m.setErr != nil {
		return m.setErr
	}

	coll := m.collection(collection)
	existing, ok := coll[id]
	if !ok {
		if merge {
			return fmt.Errorf("document %s not found", id)
		}
		existing = make(map[string]interface{})
	}

	if merge {
		for k, v := range fields {
			existing[k] = v
		}
		coll[id] = existing
		return nil
	}

	replaced := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		replaced[k] = v
	}
	coll[id] = replaced
	return nil
}

func (m *mockDocumentService) DeleteDocument(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}

	delete(m.collection(collection), id)
	return nil
}

func (m *mockDocumentService) doc(collection, id string) map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collection(collection)[id]
}

func (m *mockDocumentService) count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collection(collection))
}

func newTestEngine(t *testing.T, online bool) (*SyncService, repository.Store, *mockDocumentService, *fakeNetwork) {
	t.Helper()

	store, err := repository.OpenLocalStore(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	remote := newMockDocumentService()
	network := &fakeNetwork{online: online}
	engine := NewSyncService(store, remote, network, zap.NewNop())

	return engine, store, remote, network
}

func createReq(firstName string) *domain.CreatePatientRequest {
	return &domain.CreatePatientRequest{
		FirstName:        firstName,
		PaternalLastName: "Ruiz",
		City:             "Oaxaca",
	}
}

func TestCreatePatient_OnlineReconcilesServerID(t *testing.T) {
	engine, store, remote, _ := newTestEngine(t, true)

	patient, err := engine.CreatePatient(context.Background(), createReq("Ana"))
	require.NoError(t, err)

	assert.Equal(t, "srv-1", patient.ID)
	assert.False(t, patient.HasTempID())
	require.NotNil(t, patient.CreatedAt)

	local, err := store.GetPatientByID("srv-1")
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Equal(t, "Ana", local.FirstName)

	all, err := store.GetAllPatients()
	require.NoError(t, err)
	assert.Len(t, all, 1, "no residual temp-id copy")

	queue, err := store.GetSyncQueue()
	require.NoError(t, err)
	assert.Empty(t, queue)

	assert.Equal(t, "Ana", remote.doc("patients", "srv-1")["first_name"])
}

func TestCreatePatient_ValidationRejectedBeforeStore(t *testing.T) {
	engine, store, _, _ := newTestEngine(t, true)

	_, err := engine.CreatePatient(context.Background(), &domain.CreatePatientRequest{
		FirstName: "Ana", // missing required paternal last name
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)

	all, err := store.GetAllPatients()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestOfflineWritesNeverBlock(t *testing.T) {
	engine, store, _, _ := newTestEngine(t, false)
	ctx := context.Background()

	patient, err := engine.CreatePatient(ctx, createReq("Ana"))
	require.NoError(t, err)
	assert.True(t, patient.HasTempID())

	newCity := "Puebla"
	updated, err := engine.UpdatePatient(ctx, patient.ID, &domain.UpdatePatientRequest{City: &newCity})
	require.NoError(t, err)
	assert.Equal(t, "Puebla", updated.City)

	all, err := store.GetAllPatients()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Puebla", all[0].City)

	other, err := engine.CreatePatient(ctx, createReq("Luis"))
	require.NoError(t, err)
	require.NoError(t, engine.DeletePatient(ctx, other.ID))

	all, err = store.GetAllPatients()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreatePatient_OfflineQueuesCreate(t *testing.T) {
	engine, store, _, _ := newTestEngine(t, false)

	patient, err := engine.CreatePatient(context.Background(), createReq("Ana"))
	require.NoError(t, err)
	assert.True(t, patient.HasTempID())

	queue, err := store.GetSyncQueue()
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, domain.OpCreate, queue[0].Kind)
	assert.Equal(t, patient.ID, queue[0].TargetID)
	assert.Contains(t, string(queue[0].Payload), "Ana")
}

func TestReconnectDrainAssignsServerID(t *testing.T) {
	engine, store, _, network := newTestEngine(t, false)
	ctx := context.Background()

	patient, err := engine.CreatePatient(ctx, createReq("Ana"))
	require.NoError(t, err)
	tempID := patient.ID

	network.set(true)
	require.NoError(t, engine.SyncPendingChanges(ctx))

	queue, err := store.GetSyncQueue()
	require.NoError(t, err)
	assert.Empty(t, queue)

	patients, err := engine.GetPatients(ctx)
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, "srv-1", patients[0].ID)
	assert.NotEqual(t, tempID, patients[0].ID)

	gone, err := store.GetPatientByID(tempID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestGetPatients_RemoteFailureFallsBackToLocal(t *testing.T) {
	engine, store, remote, _ := newTestEngine(t, true)

	require.NoError(t, store.SavePatient(&domain.PatientRecord{ID: "p1", FirstName: "Ana", PaternalLastName: "Ruiz"}))

	remote.listErr = fmt.Errorf("remote exploded")

	patients, err := engine.GetPatients(context.Background())
	require.NoError(t, err, "a failed remote read degrades to the local cache")
	require.Len(t, patients, 1)
	assert.Equal(t, "p1", patients[0].ID)
}

func TestGetPatients_OnlineResyncsLocalReplica(t *testing.T) {
	engine, store, remote, _ := newTestEngine(t, true)

	// Stale local entry that no longer exists remotely.
	require.NoError(t, store.SavePatient(&domain.PatientRecord{ID: "stale", FirstName: "Old", PaternalLastName: "X"}))

	_, err := remote.CreateDocument(context.Background(), "patients", map[string]interface{}{
		"first_name": "Carla", "paternal_last_name": "Lopez",
	})
	require.NoError(t, err)

	patients, err := engine.GetPatients(context.Background())
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, "Carla", patients[0].FirstName)

	stale, err := store.GetPatientByID("stale")
	require.NoError(t, err)
	assert.Nil(t, stale)
}

func TestGetPatients_OfflineReadsLocalOnly(t *testing.T) {
	engine, store, remote, _ := newTestEngine(t, false)

	require.NoError(t, store.SavePatient(&domain.PatientRecord{ID: "p1", FirstName: "Ana", PaternalLastName: "Ruiz"}))
	remote.listErr = fmt.Errorf("must not be called")

	patients, err := engine.GetPatients(context.Background())
	require.NoError(t, err)
	assert.Len(t, patients, 1)
}

func TestUpdatePatient_RemoteFailureEnqueues(t *testing.T) {
	engine, store, remote, _ := newTestEngine(t, true)
	ctx := context.Background()

	patient, err := engine.CreatePatient(ctx, createReq("Ana"))
	require.NoError(t, err)

	remote.setErr = fmt.Errorf("remote exploded")

	phone := "5551234567"
	updated, err := engine.UpdatePatient(ctx, patient.ID, &domain.UpdatePatientRequest{Phone: &phone})
	require.NoError(t, err, "the caller is online-unaware; a failed mirror still succeeds locally")
	assert.Equal(t, phone, updated.Phone)

	queue, err := store.GetSyncQueue()
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, domain.OpUpdate, queue[0].Kind)
	assert.Equal(t, patient.ID, queue[0].TargetID)
}

func TestDrain_AtLeastOnceDelivery(t *testing.T) {
	engine, store, remote, network := newTestEngine(t, true)
	ctx := context.Background()

	patient, err := engine.CreatePatient(ctx, createReq("Ana"))
	require.NoError(t, err)

	network.set(false)
	notes := "stable"
	_, err = engine.UpdatePatient(ctx, patient.ID, &domain.UpdatePatientRequest{MedicalNotes: &notes})
	require.NoError(t, err)
	network.set(true)

	const k = 2
	remote.mu.Lock()
	remote.setFailures = k
	remote.mu.Unlock()

	for i := 0; i < k; i++ {
		require.NoError(t, engine.SyncPendingChanges(ctx))

		queue, err := store.GetSyncQueue()
		require.NoError(t, err)
		require.Len(t, queue, 1, "failing entry stays queued after drain %d", i+1)
	}

	require.NoError(t, engine.SyncPendingChanges(ctx))

	queue, err := store.GetSyncQueue()
	require.NoError(t, err)
	assert.Empty(t, queue)
	assert.Equal(t, "stable", remote.doc("patients", patient.ID)["medical_notes"])
}

func TestDrain_FailingEntryDoesNotBlockLaterEntries(t *testing.T) {
	engine, store, remote, network := newTestEngine(t, true)
	ctx := context.Background()

	first, err := engine.CreatePatient(ctx, createReq("Ana"))
	require.NoError(t, err)
	second, err := engine.CreatePatient(ctx, createReq("Luis"))
	require.NoError(t, err)

	network.set(false)
	city := "Puebla"
	_, err = engine.UpdatePatient(ctx, first.ID, &domain.UpdatePatientRequest{City: &city})
	require.NoError(t, err)
	require.NoError(t, engine.DeletePatient(ctx, second.ID))
	network.set(true)

	// Head-of-queue update fails; the delete behind it must still apply.
	remote.mu.Lock()
	remote.setFailures = 1
	remote.mu.Unlock()

	require.NoError(t, engine.SyncPendingChanges(ctx))

	queue, err := store.GetSyncQueue()
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, domain.OpUpdate, queue[0].Kind)

	assert.Nil(t, remote.doc("patients", second.ID), "delete behind the failing entry applied")
}

func TestDrain_FIFOUpdatesMergeInOrder(t *testing.T) {
	engine, store, remote, network := newTestEngine(t, true)
	ctx := context.Background()

	patient, err := engine.CreatePatient(ctx, createReq("Ana"))
	require.NoError(t, err)

	network.set(false)

	phone1, city1 := "1111111111", "Puebla"
	_, err = engine.UpdatePatient(ctx, patient.ID, &domain.UpdatePatientRequest{Phone: &phone1, City: &city1})
	require.NoError(t, err)

	phone2 := "2222222222"
	_, err = engine.UpdatePatient(ctx, patient.ID, &domain.UpdatePatientRequest{Phone: &phone2})
	require.NoError(t, err)

	network.set(true)
	require.NoError(t, engine.SyncPendingChanges(ctx))

	queue, err := store.GetSyncQueue()
	require.NoError(t, err)
	assert.Empty(t, queue)

	doc := remote.doc("patients", patient.ID)
	require.NotNil(t, doc)
	assert.Equal(t, "2222222222", doc["phone"], "second update wins")
	assert.Equal(t, "Puebla", doc["city"], "first update's untouched field survives the merge")
}

func TestDrain_OfflineCreateThenUpdateChains(t *testing.T) {
	engine, store, remote, network := newTestEngine(t, false)
	ctx := context.Background()

	patient, err := engine.CreatePatient(ctx, createReq("Ana"))
	require.NoError(t, err)

	notes := "allergic to penicillin"
	_, err = engine.UpdatePatient(ctx, patient.ID, &domain.UpdatePatientRequest{MedicalNotes: &notes})
	require.NoError(t, err)

	network.set(true)
	require.NoError(t, engine.SyncPendingChanges(ctx))

	queue, err := store.GetSyncQueue()
	require.NoError(t, err)
	assert.Empty(t, queue)

	require.Equal(t, 1, remote.count("patients"))
	doc := remote.doc("patients", "srv-1")
	require.NotNil(t, doc)
	assert.Equal(t, notes, doc["medical_notes"], "update queued behind the create lands on the server id")
}

func TestDrain_TempTargetSurvivesIntoLaterDrain(t *testing.T) {
	engine, store, remote, network := newTestEngine(t, false)
	ctx := context.Background()

	patient, err := engine.CreatePatient(ctx, createReq("Ana"))
	require.NoError(t, err)

	notes := "stable"
	_, err = engine.UpdatePatient(ctx, patient.ID, &domain.UpdatePatientRequest{MedicalNotes: &notes})
	require.NoError(t, err)

	network.set(true)

	// First drain: the create lands, the update behind it fails.
	remote.mu.Lock()
	remote.setFailures = 1
	remote.mu.Unlock()
	require.NoError(t, engine.SyncPendingChanges(ctx))

	queue, err := store.GetSyncQueue()
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "srv-1", queue[0].TargetID, "queued entry was rewritten to the server id")

	// Second drain starts fresh; the rewritten target must resolve.
	require.NoError(t, engine.SyncPendingChanges(ctx))

	queue, err = store.GetSyncQueue()
	require.NoError(t, err)
	assert.Empty(t, queue)
	assert.Equal(t, "stable", remote.doc("patients", "srv-1")["medical_notes"])
}

func TestDeletePatient_TempRecordWithdrawsQueuedOps(t *testing.T) {
	engine, store, remote, _ := newTestEngine(t, false)
	ctx := context.Background()

	patient, err := engine.CreatePatient(ctx, createReq("Ana"))
	require.NoError(t, err)
	require.True(t, patient.HasTempID())

	require.NoError(t, engine.DeletePatient(ctx, patient.ID))

	queue, err := store.GetSyncQueue()
	require.NoError(t, err)
	assert.Empty(t, queue, "a record that never reached the server leaves nothing to replay")
	assert.Equal(t, 0, remote.count("patients"))
}

func TestForceSync_OfflineNoop(t *testing.T) {
	engine, store, remote, _ := newTestEngine(t, false)
	ctx := context.Background()

	_, err := engine.CreatePatient(ctx, createReq("Ana"))
	require.NoError(t, err)

	require.NoError(t, engine.ForceSync(ctx))

	queue, err := store.GetSyncQueue()
	require.NoError(t, err)
	assert.Len(t, queue, 1, "nothing drains while offline")
	assert.Equal(t, 0, remote.count("patients"))
}

func TestGetSyncStatus(t *testing.T) {
	engine, _, _, network := newTestEngine(t, false)
	ctx := context.Background()

	_, err := engine.CreatePatient(ctx, createReq("Ana"))
	require.NoError(t, err)
	_, err = engine.CreatePatient(ctx, createReq("Luis"))
	require.NoError(t, err)

	status, err := engine.GetSyncStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, status.PendingChanges)
	assert.False(t, status.IsOnline)

	network.set(true)
	status, err = engine.GetSyncStatus()
	require.NoError(t, err)
	assert.True(t, status.IsOnline)
}
