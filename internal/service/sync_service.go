package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"medicapp-sync/internal/domain"
	"medicapp-sync/internal/repository"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const patientsCollection = "patients"

// Connectivity is the synchronous view of the network monitor the engine
// consults before every remote attempt.
type Connectivity interface {
	IsOnline() bool
}

// StatusNotifier receives a fresh status snapshot whenever the queue or
// connectivity-relevant state changes. Wired to the websocket manager.
type StatusNotifier interface {
	NotifySyncStatus(status domain.SyncStatus)
}

// SyncService is the offline-tolerant CRUD surface over patients. Every write
// lands in the local store first; the remote mirror either happens inline or
// becomes a queued operation replayed on reconnect.
type SyncService struct {
	store    repository.LocalStore
	remote   repository.DocumentService
	network  Connectivity
	validate *validator.Validate
	logger   *zap.Logger
	notifier StatusNotifier

	// Serializes queue drains. A write issued mid-drain is enqueued and
	// picked up by the next pass, not spliced into the running one.
	drainMu sync.Mutex
}

func NewSyncService(
	store repository.LocalStore,
	remote repository.DocumentService,
	network Connectivity,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		store:    store,
		remote:   remote,
		network:  network,
		validate: validator.New(),
		logger:   logger,
	}
}

func (s *SyncService) SetNotifier(n StatusNotifier) {
	s.notifier = n
}

// GetPatients returns the remote collection when reachable, resynchronizing
// the whole local replica as a side effect. A failed remote read degrades to
// the (possibly stale) local cache instead of erroring.
func (s *SyncService) GetPatients(ctx context.Context) ([]*domain.PatientRecord, error) {
	if !s.network.IsOnline() {
		return s.store.GetAllPatients()
	}

	docs, err := s.remote.ListCollection(ctx, patientsCollection)
	if err != nil {
		s.logger.Warn("remote list failed, serving local cache", zap.Error(err))
		return s.store.GetAllPatients()
	}

	patients := make([]*domain.PatientRecord, 0, len(docs))
	for i := range docs {
		patients = append(patients, patientFromDocument(&docs[i]))
	}

	if err := s.store.ReplaceAllPatients(patients); err != nil {
		return nil, err
	}

	return patients, nil
}

// CreatePatient applies the create locally under a temp id, then mirrors it
// remotely. On remote success the local copy is rekeyed to the server id; on
// remote failure or offline the create is queued and the caller still gets
// the locally-applied record.
func (s *SyncService) CreatePatient(ctx context.Context, req *domain.CreatePatientRequest) (*domain.PatientRecord, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: err}
	}

	record := recordFromCreate(req)
	record.ID = domain.NewTempID()

	if err := s.store.SavePatient(record); err != nil {
		return nil, err
	}

	if !s.network.IsOnline() {
		if err := s.enqueueCreate(record); err != nil {
			return nil, err
		}
		return record, nil
	}

	serverID, err := s.remote.CreateDocument(ctx, patientsCollection, patientFields(record))
	if err != nil {
		s.logger.Warn("remote create failed, queueing", zap.Error(err))
		if err := s.enqueueCreate(record); err != nil {
			return nil, err
		}
		return record, nil
	}

	tempID := record.ID
	record.ID = serverID
	now := time.Now()
	record.CreatedAt = &now
	record.UpdatedAt = &now

	if err := s.store.RekeyPatient(tempID, record); err != nil {
		return nil, err
	}

	return record, nil
}

// UpdatePatient merges the given fields into the local copy first, then
// mirrors the partial update remotely or queues it.
func (s *SyncService) UpdatePatient(ctx context.Context, id string, req *domain.UpdatePatientRequest) (*domain.PatientRecord, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: err}
	}

	record, err := s.store.GetPatientByID(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &NotFoundError{Kind: "patient", ID: id}
	}

	req.ApplyTo(record)
	now := time.Now()
	record.UpdatedAt = &now

	if err := s.store.SavePatient(record); err != nil {
		return nil, err
	}

	fields := req.Fields()

	if !s.network.IsOnline() {
		if err := s.enqueueUpdate(id, fields); err != nil {
			return nil, err
		}
		return record, nil
	}

	if err := s.remote.SetDocument(ctx, patientsCollection, id, fields, true); err != nil {
		s.logger.Warn("remote update failed, queueing", zap.String("id", id), zap.Error(err))
		if err := s.enqueueUpdate(id, fields); err != nil {
			return nil, err
		}
	}

	return record, nil
}

// DeletePatient removes the local copy, then mirrors or queues the remote
// delete. A record that never completed a remote write is simply withdrawn:
// its queued operations are dropped and the remote is left alone.
func (s *SyncService) DeletePatient(ctx context.Context, id string) error {
	record, err := s.store.GetPatientByID(id)
	if err != nil {
		return err
	}

	if err := s.store.DeletePatient(id); err != nil {
		return err
	}

	if record != nil && record.HasTempID() {
		return s.dropQueuedFor(id)
	}

	if !s.network.IsOnline() {
		return s.enqueueDelete(id)
	}

	if err := s.remote.DeleteDocument(ctx, patientsCollection, id); err != nil {
		s.logger.Warn("remote delete failed, queueing", zap.String("id", id), zap.Error(err))
		return s.enqueueDelete(id)
	}

	return nil
}

// SyncPendingChanges drains the queue in FIFO order against the remote store.
// Failures are per-entry: a failing operation stays queued for the next drain
// and later entries are still attempted.
func (s *SyncService) SyncPendingChanges(ctx context.Context) error {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	if !s.network.IsOnline() {
		return nil
	}

	ops, err := s.store.GetSyncQueue()
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	s.logger.Info("draining sync queue", zap.Int("pending", len(ops)))

	// Maps temp ids to server ids assigned earlier in this pass, so updates
	// and deletes queued behind an offline create find their target.
	idMap := make(map[string]string)

	for _, op := range ops {
		if err := s.replay(ctx, op, idMap); err != nil {
			s.logger.Warn("replay failed, leaving queued",
				zap.String("op_id", op.ID),
				zap.String("kind", string(op.Kind)),
				zap.Error(err),
			)
			continue
		}
		if err := s.store.RemoveSyncQueueItem(op.ID); err != nil {
			return err
		}
	}

	s.publishStatus()
	return nil
}

// ForceSync is the caller-triggered drain; it no-ops when offline.
func (s *SyncService) ForceSync(ctx context.Context) error {
	return s.SyncPendingChanges(ctx)
}

func (s *SyncService) GetSyncStatus() (domain.SyncStatus, error) {
	ops, err := s.store.GetSyncQueue()
	if err != nil {
		return domain.SyncStatus{IsOnline: s.network.IsOnline()}, err
	}
	return domain.SyncStatus{
		PendingChanges: len(ops),
		IsOnline:       s.network.IsOnline(),
	}, nil
}

func (s *SyncService) replay(ctx context.Context, op *domain.PendingOperation, idMap map[string]string) error {
	switch op.Kind {
	case domain.OpCreate:
		var record domain.PatientRecord
		if err := json.Unmarshal(op.Payload, &record); err != nil {
			return err
		}

		serverID, err := s.remote.CreateDocument(ctx, op.Collection, patientFields(&record))
		if err != nil {
			return err
		}

		idMap[op.TargetID] = serverID
		// Later entries aimed at the temp id are rewritten in place, so
		// they stay resolvable even if they fail this pass and only get
		// replayed by a later one.
		if err := s.store.RetargetSyncQueue(op.TargetID, serverID); err != nil {
			return err
		}

		record.ID = serverID
		now := time.Now()
		record.CreatedAt = &now
		record.UpdatedAt = &now
		return s.store.RekeyPatient(op.TargetID, &record)

	case domain.OpUpdate:
		var fields map[string]interface{}
		if err := json.Unmarshal(op.Payload, &fields); err != nil {
			return err
		}
		return s.remote.SetDocument(ctx, op.Collection, resolveTarget(op.TargetID, idMap), fields, true)

	case domain.OpDelete:
		return s.remote.DeleteDocument(ctx, op.Collection, resolveTarget(op.TargetID, idMap))
	}

	return nil
}

func (s *SyncService) enqueueCreate(record *domain.PatientRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.store.AddToSyncQueue(&domain.PendingOperation{
		Kind:       domain.OpCreate,
		Collection: patientsCollection,
		TargetID:   record.ID,
		Payload:    payload,
	}); err != nil {
		return err
	}
	s.publishStatus()
	return nil
}

func (s *SyncService) enqueueUpdate(id string, fields map[string]interface{}) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	if err := s.store.AddToSyncQueue(&domain.PendingOperation{
		Kind:       domain.OpUpdate,
		Collection: patientsCollection,
		TargetID:   id,
		Payload:    payload,
	}); err != nil {
		return err
	}
	s.publishStatus()
	return nil
}

func (s *SyncService) enqueueDelete(id string) error {
	if err := s.store.AddToSyncQueue(&domain.PendingOperation{
		Kind:       domain.OpDelete,
		Collection: patientsCollection,
		TargetID:   id,
	}); err != nil {
		return err
	}
	s.publishStatus()
	return nil
}

// dropQueuedFor withdraws every queued operation aimed at a record that never
// reached the remote store.
func (s *SyncService) dropQueuedFor(targetID string) error {
	ops, err := s.store.GetSyncQueue()
	if err != nil {
		return err
	}
	for _, op := range ops {
		if op.TargetID == targetID {
			if err := s.store.RemoveSyncQueueItem(op.ID); err != nil {
				return err
			}
		}
	}
	s.publishStatus()
	return nil
}

func (s *SyncService) publishStatus() {
	if s.notifier == nil {
		return
	}
	status, err := s.GetSyncStatus()
	if err != nil {
		return
	}
	s.notifier.NotifySyncStatus(status)
}

func resolveTarget(id string, idMap map[string]string) string {
	if serverID, ok := idMap[id]; ok {
		return serverID
	}
	return id
}

func recordFromCreate(req *domain.CreatePatientRequest) *domain.PatientRecord {
	return &domain.PatientRecord{
		FirstName:        req.FirstName,
		PaternalLastName: req.PaternalLastName,
		MaternalLastName: req.MaternalLastName,
		BirthDate:        req.BirthDate,
		Sex:              req.Sex,
		Curp:             req.Curp,
		Street:           req.Street,
		Neighborhood:     req.Neighborhood,
		City:             req.City,
		State:            req.State,
		PostalCode:       req.PostalCode,
		Phone:            req.Phone,
		Email:            req.Email,
		MedicalNotes:     req.MedicalNotes,
	}
}

func patientFields(record *domain.PatientRecord) map[string]interface{} {
	raw, _ := json.Marshal(record)

	fields := make(map[string]interface{})
	_ = json.Unmarshal(raw, &fields)

	delete(fields, "id")
	delete(fields, "created_at")
	delete(fields, "updated_at")
	return fields
}

func patientFromDocument(doc *repository.Document) *domain.PatientRecord {
	raw, _ := json.Marshal(doc.Fields)

	var record domain.PatientRecord
	_ = json.Unmarshal(raw, &record)

	record.ID = doc.ID
	if !doc.CreatedAt.IsZero() {
		t := doc.CreatedAt
		record.CreatedAt = &t
	}
	if !doc.UpdatedAt.IsZero() {
		t := doc.UpdatedAt
		record.UpdatedAt = &t
	}
	return &record
}
