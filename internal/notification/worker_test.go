package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"brewery-production-backend/internal/logging"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func subscriptionRows(id int64, endpoint string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "tenant_id", "endpoint", "p256dh", "auth", "created_at"}).
		AddRow(id, "brewery-a", endpoint, "test_p256dh", "test_auth", time.Now())
}

func TestWorkerPool_Dispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{}, logging.Discard())

	wp.Dispatch(Alert{TenantID: "brewery-a", Kind: AlertLowStock, Title: "Low stock"})

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, AlertLowStock, job.Kind)
		assert.Equal(t, "brewery-a", job.TenantID)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for alert to be dispatched")
	}
}

func TestWorkerPool_DispatchNeverBlocks(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{}, logging.Discard())

	// workers are not started, so the queue fills and overflow is dropped
	for i := 0; i < cap(wp.Jobs())+5; i++ {
		wp.Dispatch(Alert{TenantID: "brewery-a", Kind: AlertTankNeedsCIP})
	}
	assert.Len(t, wp.Jobs(), cap(wp.Jobs()))
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends alert to tenant subscribers", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Equal(t, "test_p256dh", sub.Keys.P256dh)

				var got Alert
				assert.NoError(t, json.Unmarshal(payload, &got))
				assert.Equal(t, AlertNegativeStock, got.Kind)
				assert.Equal(t, "Hops below zero", got.Title)
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "alert_subscriptions" WHERE tenant_id = \$1`).
			WithArgs("brewery-a").
			WillReturnRows(subscriptionRows(1, "https://example.com/push"))

		wp.Dispatch(Alert{TenantID: "brewery-a", Kind: AlertNegativeStock, Title: "Hops below zero"})
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "alert_subscriptions" WHERE tenant_id = \$1`).
			WithArgs("brewery-a").
			WillReturnRows(subscriptionRows(7, "https://example.com/expired"))

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "alert_subscriptions" WHERE "alert_subscriptions"."id" = \$1`).
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		wp.Dispatch(Alert{TenantID: "brewery-a", Kind: AlertLowStock})

		require.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("skips tenants without subscribers", func(t *testing.T) {
		var calls atomic.Int32
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				calls.Add(1)
				return nil, nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "alert_subscriptions" WHERE tenant_id = \$1`).
			WithArgs("brewery-b").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		wp.Dispatch(Alert{TenantID: "brewery-b", Kind: AlertTankNeedsCIP})

		require.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(0), calls.Load())
	})
}
