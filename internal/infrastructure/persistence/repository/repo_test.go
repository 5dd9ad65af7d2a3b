package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/trip-approval/internal/domain/entity"
	"github.com/garyjia/trip-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/trip-approval/pkg/database"
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	db            *sqlite.DB
	approvals     *ApprovalRepository
	bookings      *BookingRepository
	notifications *NotificationRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "approval.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = database.NewMigrator(conn.DB, zap.NewNop()).Run(context.Background(), database.SQLiteMigrations())
	require.NoError(t, err)

	logger := zap.NewNop()
	return &testEnv{
		db:            sqlite.NewDB(conn.DB, logger),
		approvals:     NewApprovalRepository(conn.DB, logger),
		bookings:      NewBookingRepository(conn.DB, logger),
		notifications: NewNotificationRepository(conn.DB, logger),
	}
}

func pendingRecord(id, bookingID string, created time.Time) *entity.ApprovalRecord {
	expires := created.Add(24 * time.Hour)
	return &entity.ApprovalRecord{
		ID:           id,
		BookingID:    bookingID,
		RequesterID:  "emp-1",
		ApproverID:   "mgr-1",
		ApprovalType: entity.ApprovalTypeManagerApproval,
		Status:       entity.ApprovalStatusPending,
		ExpiresAt:    &expires,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func strPtr(s string) *string { return &s }
