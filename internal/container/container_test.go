package container

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/trip-approval/internal/domain/entity"
	"github.com/garyjia/trip-approval/internal/infrastructure/clock"
	httpapi "github.com/garyjia/trip-approval/internal/interfaces/http"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "trip.db")
	cfg.Scanner.Interval = time.Hour
	cfg.Notification.RetryInterval = time.Hour
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Notification.Sink = SinkLark
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Database.Driver = DriverPostgres
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	assert.False(t, c.Ready())

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()), "second start must fail")

	require.NotNil(t, c.Services())
	require.NotNil(t, c.Repositories())
	require.NotNil(t, c.HTTPServer())
	require.NotNil(t, c.Exporter())

	health := c.Health(context.Background())
	assert.True(t, health.Overall, health.Components)
	assert.Equal(t, "log", health.Components["notification_sink"].Message)
	assert.Contains(t, health.Components["workers"].Message, "2")

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close(), "second close must fail")
	assert.Error(t, c.Start(context.Background()), "closed container must not restart")
}

func TestContainer_ScannerDisabledRegistersRetryOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scanner.Enabled = false

	c, err := NewContainer(cfg, zap.NewNop(), WithoutWorkers())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	health := c.Health(context.Background())
	assert.True(t, health.Components["workers"].Healthy)
	assert.Contains(t, health.Components["workers"].Message, "1")
}

func TestContainer_EndToEndOverHTTP(t *testing.T) {
	fixed := clock.NewFixed(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	c, err := NewContainer(testConfig(t), zap.NewNop(), WithClock(fixed), WithoutWorkers())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	router := c.HTTPServer().Router()
	call := func(method, path, userID, body string) (int, map[string]interface{}) {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if userID != "" {
			req.Header.Set(httpapi.HeaderUserID, userID)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
		return w.Code, resp
	}

	status, _ := call(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, status)

	status, resp := call(http.MethodPost, "/api/v1/approvals", "",
		`{"booking_id":"b-1","requester":{"id":"u-1","position_level":"STAFF","user_segment":"OCCASIONAL_TRAVELER","manager_id":"m-1"}}`)
	require.Equal(t, http.StatusCreated, status, resp)
	approval := resp["data"].(map[string]interface{})["approval"].(map[string]interface{})
	approvalID := approval["id"].(string)
	assert.Equal(t, "PENDING", approval["status"])

	status, resp = call(http.MethodGet, "/api/v1/approvals/pending", "m-1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, resp["data"], 1)

	status, _ = call(http.MethodPost, "/api/v1/approvals/"+approvalID+"/approve", "someone-else", "")
	assert.Equal(t, http.StatusForbidden, status)

	status, resp = call(http.MethodPost, "/api/v1/approvals/"+approvalID+"/approve", "m-1", `{"notes":"enjoy"}`)
	require.Equal(t, http.StatusOK, status, resp)
	assert.Equal(t, "APPROVED", resp["data"].(map[string]interface{})["status"])

	status, _ = call(http.MethodPost, "/api/v1/approvals/"+approvalID+"/reject", "m-1", "")
	assert.Equal(t, http.StatusConflict, status)

	booking, err := c.Repositories().Booking.GetByID(context.Background(), "b-1")
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusReadyForDispatch, booking.Status)

	c.Dispatcher().Wait()
	first, err := c.Repositories().Notification.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, entity.NotificationStatusSent, first.Status)
	retryable, err := c.Repositories().Notification.ListRetryable(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.Empty(t, retryable)
}

func TestContainer_RunOnceThroughServices(t *testing.T) {
	fixed := clock.NewFixed(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	c, err := NewContainer(testConfig(t), zap.NewNop(), WithClock(fixed), WithoutWorkers())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	ctx := context.Background()
	requester := entity.Requester{ID: "u-1", PositionLevel: entity.PositionStaff, UserSegment: entity.SegmentOccasionalTraveler, ManagerID: "m-1"}
	_, err = c.Services().Approval.CreateBookingWithApproval(ctx, &entity.Booking{ID: "b-1"}, requester)
	require.NoError(t, err)

	fixed.Advance(25 * time.Hour)
	report, err := c.Services().Expiry.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)

	record, err := c.Services().Approval.FindByBookingID(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, entity.ApprovalStatusExpired, record.Status)
}
