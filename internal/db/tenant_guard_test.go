package db

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"brewery-production-backend/config"
	"brewery-production-backend/internal/appctx"
	"brewery-production-backend/internal/logging"
	"brewery-production-backend/internal/model"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gormDB, err := Init(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:" + name + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})
	return gormDB
}

func newTank(name string) *model.Tank {
	return &model.Tank{Name: name, Capacity: decimal.NewFromInt(1000), Status: model.TankStatusAvailable}
}

func TestTenantGuard_ScopesReadsAndWrites(t *testing.T) {
	gormDB := newSQLiteDB(t)
	ctxA := appctx.WithTenant(context.Background(), "brewery-a")
	ctxB := appctx.WithTenant(context.Background(), "brewery-b")

	// creates are stamped with the caller's tenant
	tankA := newTank("FV-1")
	require.NoError(t, gormDB.WithContext(ctxA).Create(tankA).Error)
	assert.Equal(t, "brewery-a", tankA.TenantID)

	tanksB := []*model.Tank{newTank("FV-1"), newTank("BT-1")}
	require.NoError(t, gormDB.WithContext(ctxB).Create(&tanksB).Error)
	assert.Equal(t, "brewery-b", tanksB[1].TenantID)

	var seenByA []model.Tank
	require.NoError(t, gormDB.WithContext(ctxA).Find(&seenByA).Error)
	require.Len(t, seenByA, 1)
	assert.Equal(t, tankA.ID, seenByA[0].ID)

	// another tenant's row is invisible by primary key
	var missing model.Tank
	err := gormDB.WithContext(ctxA).First(&missing, tanksB[0].ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// updates only touch the caller's rows
	res := gormDB.WithContext(ctxA).Model(&model.Tank{}).Where("name = ?", "FV-1").
		Update("status", model.TankStatusInUse)
	require.NoError(t, res.Error)
	assert.Equal(t, int64(1), res.RowsAffected)

	var tankB model.Tank
	require.NoError(t, gormDB.WithContext(ctxB).First(&tankB, tanksB[0].ID).Error)
	assert.Equal(t, model.TankStatusAvailable, tankB.Status)

	// counts are scoped too
	var count int64
	require.NoError(t, gormDB.WithContext(ctxB).Model(&model.Tank{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	// deletes are scoped
	res = gormDB.WithContext(ctxA).Where("name = ?", "BT-1").Delete(&model.Tank{})
	require.NoError(t, res.Error)
	assert.Equal(t, int64(0), res.RowsAffected)
}

func TestTenantGuard_RejectsForeignTenantOnCreate(t *testing.T) {
	gormDB := newSQLiteDB(t)
	ctxA := appctx.WithTenant(context.Background(), "brewery-a")

	tank := newTank("FV-9")
	tank.TenantID = "brewery-b"
	err := gormDB.WithContext(ctxA).Create(tank).Error
	assert.ErrorIs(t, err, ErrCrossTenantWrite)
}

func TestTenantGuard_SkipScope(t *testing.T) {
	gormDB := newSQLiteDB(t)
	require.NoError(t, gormDB.WithContext(appctx.WithTenant(context.Background(), "a")).Create(newTank("T1")).Error)
	require.NoError(t, gormDB.WithContext(appctx.WithTenant(context.Background(), "b")).Create(newTank("T1")).Error)

	ctx := appctx.SkipTenantScope(appctx.WithTenant(context.Background(), "a"))
	var tenants []string
	require.NoError(t, gormDB.WithContext(ctx).Model(&model.Tank{}).Distinct().Order("tenant_id").Pluck("tenant_id", &tenants).Error)
	assert.Equal(t, []string{"a", "b"}, tenants)
}

func TestTenantGuard_SQLShape(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gormDB.Use(NewTenantGuardPlugin()))

	ctx := appctx.WithTenant(context.Background(), "brewery-a")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "lots" WHERE status = $1 AND "lots"."tenant_id" = $2`)).
		WithArgs("ACTIVE", "brewery-a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "lot_code"}).AddRow(1, "L2026-0001"))

	var lots []model.Lot
	require.NoError(t, gormDB.WithContext(ctx).Where("status = ?", model.LotStatusActive).Find(&lots).Error)
	require.Len(t, lots, 1)

	// an explicit tenant filter is not duplicated
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "sequence_counters" WHERE tenant_id = $1 AND name = $2`)).
		WithArgs("brewery-a", "batch:2026").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "name", "value"}))

	var counters []model.SequenceCounter
	require.NoError(t, gormDB.WithContext(ctx).Where("tenant_id = ? AND name = ?", "brewery-a", "batch:2026").Find(&counters).Error)

	assert.NoError(t, mock.ExpectationsWereMet())
}
