package service

import (
	"context"
	"encoding/json"
	"time"

	"medicapp-sync/internal/domain"
	"medicapp-sync/internal/repository"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const recordsCollection = "records"

// RecordService is the pre-hospital form passthrough. Forms write straight to
// the remote store with no queueing; the local copy only backs offline reads.
type RecordService struct {
	store    repository.LocalStore
	remote   repository.DocumentService
	network  Connectivity
	validate *validator.Validate
	logger   *zap.Logger
}

func NewRecordService(
	store repository.LocalStore,
	remote repository.DocumentService,
	network Connectivity,
	logger *zap.Logger,
) *RecordService {
	return &RecordService{
		store:    store,
		remote:   remote,
		network:  network,
		validate: validator.New(),
		logger:   logger,
	}
}

func (s *RecordService) List(ctx context.Context) ([]*domain.PrehospitalRecord, error) {
	if !s.network.IsOnline() {
		return s.store.GetAllRecords()
	}

	docs, err := s.remote.ListCollection(ctx, recordsCollection)
	if err != nil {
		s.logger.Warn("remote record list failed, serving local cache", zap.Error(err))
		return s.store.GetAllRecords()
	}

	records := make([]*domain.PrehospitalRecord, 0, len(docs))
	for i := range docs {
		records = append(records, recordFromDocument(&docs[i]))
	}

	if err := s.store.ReplaceAllRecords(records); err != nil {
		return nil, err
	}

	return records, nil
}

func (s *RecordService) ListByPatient(ctx context.Context, patientID string) ([]*domain.PrehospitalRecord, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var records []*domain.PrehospitalRecord
	for _, r := range all {
		if r.PatientID == patientID {
			records = append(records, r)
		}
	}
	return records, nil
}

func (s *RecordService) Get(ctx context.Context, id string) (*domain.PrehospitalRecord, error) {
	if s.network.IsOnline() {
		doc, err := s.remote.GetDocument(ctx, recordsCollection, id)
		if err == nil && doc != nil {
			record := recordFromDocument(doc)
			if err := s.store.SaveRecord(record); err != nil {
				return nil, err
			}
			return record, nil
		}
		if err != nil {
			s.logger.Warn("remote record get failed, trying local cache",
				zap.String("id", id), zap.Error(err))
		}
	}

	record, err := s.store.GetRecordByID(id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &NotFoundError{Kind: "record", ID: id}
	}
	return record, nil
}

func (s *RecordService) Create(ctx context.Context, req *domain.CreateRecordRequest) (*domain.PrehospitalRecord, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: err}
	}

	record := &domain.PrehospitalRecord{
		PatientID:   req.PatientID,
		FolioNumber: req.FolioNumber,
		ServiceDate: req.ServiceDate,
		ChiefReason: req.ChiefReason,
		Evaluation:  req.Evaluation,
		Treatment:   req.Treatment,
		Transfer:    req.Transfer,
		Sections:    req.Sections,
	}

	id, err := s.remote.CreateDocument(ctx, recordsCollection, recordFields(record))
	if err != nil {
		return nil, err
	}

	record.ID = id
	now := time.Now()
	record.CreatedAt = &now
	record.UpdatedAt = &now

	if err := s.store.SaveRecord(record); err != nil {
		return nil, err
	}

	return record, nil
}

func (s *RecordService) Delete(ctx context.Context, id string) error {
	if err := s.remote.DeleteDocument(ctx, recordsCollection, id); err != nil {
		return err
	}

	return s.store.DeleteRecord(id)
}

func recordFields(record *domain.PrehospitalRecord) map[string]interface{} {
	raw, _ := json.Marshal(record)

	fields := make(map[string]interface{})
	_ = json.Unmarshal(raw, &fields)

	delete(fields, "id")
	delete(fields, "created_at")
	delete(fields, "updated_at")
	return fields
}

func recordFromDocument(doc *repository.Document) *domain.PrehospitalRecord {
	raw, _ := json.Marshal(doc.Fields)

	var record domain.PrehospitalRecord
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
