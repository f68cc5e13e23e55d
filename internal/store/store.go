package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"brewery-production-backend/internal/appctx"
	"brewery-production-backend/internal/apperr"
	"brewery-production-backend/internal/catalog"
	"brewery-production-backend/internal/lock"
	"brewery-production-backend/internal/logging"
	"brewery-production-backend/internal/model"
	"brewery-production-backend/internal/notification"
)

// TankRegistry manages vessels and their equipment records.
type TankRegistry interface {
	RegisterTank(ctx context.Context, in NewTank) (*TankView, error)
	ListTanks(ctx context.Context) ([]TankView, error)
	GetTank(ctx context.Context, id int64) (*TankView, error)
	CompleteCIP(ctx context.Context, id int64) (*TankView, error)
}

// Lifecycle owns lot phases and batch status.
type Lifecycle interface {
	StartBrew(ctx context.Context, in BrewInput) (*BrewResult, error)
	SplitBatch(ctx context.Context, batchID int64, parts []SplitPart) (*SplitResult, error)
	AdvancePhase(ctx context.Context, lotID int64, target model.Phase) (*LotView, error)
	GetLotView(ctx context.Context, lotID int64) (*LotView, error)
	TransferLot(ctx context.Context, lotID, tankID int64) (*LotView, error)
	CompleteLot(ctx context.Context, lotID int64) (*LotView, error)
	GetTimeline(ctx context.Context, batchID int64) ([]model.BatchTimeline, error)
}

type BlendEngine interface {
	ListBlendCandidates(ctx context.Context) ([]BlendCandidate, error)
	CreateBlend(ctx context.Context, in BlendInput) (*BlendResult, error)
}

type Packaging interface {
	StartPackaging(ctx context.Context, in PackagingInput) (*PackagingResult, error)
	RetryTankSyncs(ctx context.Context, limit, maxAttempts int) (RetryReport, error)
}

// Ledger is the append-only inventory movement log.
type Ledger interface {
	CreateItem(ctx context.Context, in NewItem) (*model.InventoryItem, error)
	GetItem(ctx context.Context, id int64) (*model.InventoryItem, error)
	RecordMovement(ctx context.Context, in MovementInput) (*MovementResult, error)
	ReverseMovement(ctx context.Context, entryUUID, notes string) (*MovementResult, error)
	ListMovements(ctx context.Context, itemID int64) (*MovementList, error)
	AdjustBalanceDirect(ctx context.Context, in AdjustInput) (*AdjustResult, error)
	ReconcileBalances(ctx context.Context) ([]BalanceDrift, error)
}

type Subscriptions interface {
	SaveAlertSubscription(ctx context.Context, sub model.AlertSubscription) error
	DeleteAlertSubscription(ctx context.Context, endpoint string) error
}

// Store defines the interface for all database operations.
type Store interface {
	TankRegistry
	Lifecycle
	BlendEngine
	Packaging
	Ledger
	Subscriptions
	ListTenants(ctx context.Context) ([]string, error)
}

// AlertSink receives alerts raised after a commit. Dispatch must not block.
type AlertSink interface {
	Dispatch(alert notification.Alert)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db           *gorm.DB
	logger       *logrus.Logger
	locker       lock.Locker
	packageTypes *catalog.PackageTypes
	recipes      catalog.RecipeCatalog
	alerts       AlertSink
	now          func() time.Time
}

type Option func(*gormStore)

func WithLogger(logger *logrus.Logger) Option {
	return func(s *gormStore) { s.logger = logger }
}

func WithLocker(locker lock.Locker) Option {
	return func(s *gormStore) { s.locker = locker }
}

func WithPackageTypes(types *catalog.PackageTypes) Option {
	return func(s *gormStore) { s.packageTypes = types }
}

func WithRecipes(recipes catalog.RecipeCatalog) Option {
	return func(s *gormStore) { s.recipes = recipes }
}

func WithAlertSink(sink AlertSink) Option {
	return func(s *gormStore) { s.alerts = sink }
}

func WithClock(now func() time.Time) Option {
	return func(s *gormStore) { s.now = now }
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, opts ...Option) Store {
	s := &gormStore{
		db:     db,
		logger: logging.Discard(),
		locker: lock.Noop{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.packageTypes == nil {
		s.packageTypes = catalog.NewPackageTypes(nil)
	}
	if s.recipes == nil {
		s.recipes = catalog.NewGormRecipes(db)
	}
	return s
}

// tenant returns the caller's tenant; every operation requires one.
func tenant(ctx context.Context) (string, error) {
	id, ok := appctx.TenantID(ctx)
	if !ok {
		return "", apperr.ErrTenantRequired
	}
	return id, nil
}

// transaction runs fn atomically. Structured errors pass through, anything
// else becomes INTERNAL; either way nothing fn wrote is kept.
func (s *gormStore) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return apperr.Internal(s.db.WithContext(ctx).Transaction(fn))
}

func (s *gormStore) dispatch(alerts []notification.Alert) {
	if s.alerts == nil {
		return
	}
	for _, a := range alerts {
		s.alerts.Dispatch(a)
	}
}

// nextSequence allocates the next value of a per-tenant counter inside tx.
// The UPDATE takes the row lock, so concurrent allocations serialize.
func nextSequence(tx *gorm.DB, tenantID, name string) (int64, error) {
	seed := model.SequenceCounter{TenantID: tenantID, Name: name}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return 0, fmt.Errorf("seed sequence %s: %w", name, err)
	}
	res := tx.Model(&model.SequenceCounter{}).
		Where("tenant_id = ? AND name = ?", tenantID, name).
		UpdateColumn("value", gorm.Expr("value + 1"))
	if res.Error != nil {
		return 0, fmt.Errorf("bump sequence %s: %w", name, res.Error)
	}
	var counter model.SequenceCounter
	if err := tx.Where("tenant_id = ? AND name = ?", tenantID, name).Take(&counter).Error; err != nil {
		return 0, fmt.Errorf("read sequence %s: %w", name, err)
	}
	return counter.Value, nil
}

func sequenceName(kind string, at time.Time) string {
	return fmt.Sprintf("%s:%d", kind, at.Year())
}

func findLot(tx *gorm.DB, id int64) (*model.Lot, error) {
	var lot model.Lot
	if err := tx.Where("id = ?", id).Take(&lot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.LotNotFound(id)
		}
		return nil, err
	}
	return &lot, nil
}

func findBatch(tx *gorm.DB, id int64) (*model.Batch, error) {
	var batch model.Batch
	if err := tx.Where("id = ?", id).Take(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.BatchNotFound(id)
		}
		return nil, err
	}
	return &batch, nil
}

func findTank(tx *gorm.DB, id int64) (*model.Tank, error) {
	var tank model.Tank
	if err := tx.Where("id = ?", id).Take(&tank).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.TankNotFound(id)
		}
		return nil, err
	}
	return &tank, nil
}

func findItem(tx *gorm.DB, id int64) (*model.InventoryItem, error) {
	var item model.InventoryItem
	if err := tx.Where("id = ?", id).Take(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ItemNotFound(id)
		}
		return nil, err
	}
	return &item, nil
}

// lotBatchIDs returns the member batch ids of a lot, ordered by id.
func lotBatchIDs(tx *gorm.DB, lotID int64) ([]int64, error) {
	var ids []int64
	err := tx.Model(&model.LotBatch{}).Where("lot_id = ?", lotID).Order("batch_id").Pluck("batch_id", &ids).Error
	return ids, err
}

// activeLotIDsForBatches returns the non-completed lots that contain any of
// the batches, ordered by lot id.
func activeLotIDsForBatches(tx *gorm.DB, batchIDs []int64) ([]int64, error) {
	if len(batchIDs) == 0 {
		return nil, nil
	}
	var memberOf []int64
	if err := tx.Model(&model.LotBatch{}).Where("batch_id IN ?", batchIDs).Distinct().Pluck("lot_id", &memberOf).Error; err != nil {
		return nil, err
	}
	if len(memberOf) == 0 {
		return nil, nil
	}
	var active []int64
	err := tx.Model(&model.Lot{}).
		Where("id IN ? AND status = ?", memberOf, model.LotStatusActive).
		Order("id").
		Pluck("id", &active).Error
	return active, err
}

func writeTimeline(tx *gorm.DB, batchIDs []int64, event model.TimelineEventType, title, description, actor string, at time.Time) error {
	if len(batchIDs) == 0 {
		return nil
	}
	rows := make([]model.BatchTimeline, 0, len(batchIDs))
	for _, id := range batchIDs {
		rows = append(rows, model.BatchTimeline{
			BatchID:     id,
			EventType:   event,
			Title:       title,
			Description: description,
			Actor:       actor,
			OccurredAt:  at,
		})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("write %s timeline: %w", event, err)
	}
	return nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// SaveAlertSubscription upserts a push subscription for the caller's tenant.
func (s *gormStore) SaveAlertSubscription(ctx context.Context, sub model.AlertSubscription) error {
	tenantID, err := tenant(ctx)
	if err != nil {
		return err
	}
	if sub.Endpoint == "" || sub.P256DH == "" || sub.Auth == "" {
		return apperr.Validation("endpoint and keys are required")
	}
	sub.TenantID = tenantID
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
	}).Create(&sub).Error
	return apperr.Internal(err)
}

func (s *gormStore) DeleteAlertSubscription(ctx context.Context, endpoint string) error {
	if _, err := tenant(ctx); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&model.AlertSubscription{}).Error
	return apperr.Internal(err)
}

// ListTenants returns every tenant with production or inventory data. It is
// the only read that crosses tenants and is used by maintenance jobs.
func (s *gormStore) ListTenants(ctx context.Context) ([]string, error) {
	db := s.db.WithContext(appctx.SkipTenantScope(ctx))
	seen := make(map[string]struct{})
	for _, m := range []any{&model.Lot{}, &model.InventoryItem{}, &model.TankSync{}} {
		var ids []string
		if err := db.Model(m).Distinct().Pluck("tenant_id", &ids).Error; err != nil {
			return nil, fmt.Errorf("list tenants: %w", err)
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
