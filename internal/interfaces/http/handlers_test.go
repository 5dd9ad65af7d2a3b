package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/trip-approval/internal/application/service"
	"github.com/garyjia/trip-approval/internal/domain/entity"
	"github.com/garyjia/trip-approval/internal/domain/policy"
	"github.com/garyjia/trip-approval/internal/domain/workflow"
	"github.com/garyjia/trip-approval/pkg/utils"
)

type mockApprovalService struct {
	createBookingFunc func(ctx context.Context, booking *entity.Booking, requester entity.Requester) (*service.BookingApproval, error)
	approveFunc       func(ctx context.Context, approvalID, approverID string, notes *string) (*entity.ApprovalRecord, error)
	rejectFunc        func(ctx context.Context, approvalID, approverID string, notes *string) (*entity.ApprovalRecord, error)
	pendingFunc       func(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error)
	mineFunc          func(ctx context.Context, requesterID string) ([]*entity.ApprovalRecord, error)
	historyFunc       func(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error)
	findByIDFunc      func(ctx context.Context, id string) (*entity.ApprovalRecord, error)
	findByBookingFunc func(ctx context.Context, bookingID string) (*entity.ApprovalRecord, error)
}

func (m *mockApprovalService) ResolveApprovalType(requester entity.Requester, isBusinessTrip bool) entity.ApprovalType {
	return policy.ResolveApprovalType(requester, isBusinessTrip)
}

func (m *mockApprovalService) CreateApproval(ctx context.Context, booking *entity.Booking, requester entity.Requester, approvalType entity.ApprovalType) (*entity.ApprovalRecord, error) {
	return nil, errors.New("not implemented")
}

func (m *mockApprovalService) CreateApprovalTx(ctx context.Context, booking *entity.Booking, requester entity.Requester, approvalType entity.ApprovalType) (*entity.ApprovalRecord, error) {
	return nil, errors.New("not implemented")
}

func (m *mockApprovalService) CreateBookingWithApproval(ctx context.Context, booking *entity.Booking, requester entity.Requester) (*service.BookingApproval, error) {
	return m.createBookingFunc(ctx, booking, requester)
}

func (m *mockApprovalService) Approve(ctx context.Context, approvalID, approverID string, notes *string) (*entity.ApprovalRecord, error) {
	return m.approveFunc(ctx, approvalID, approverID, notes)
}

func (m *mockApprovalService) Reject(ctx context.Context, approvalID, approverID string, notes *string) (*entity.ApprovalRecord, error) {
	return m.rejectFunc(ctx, approvalID, approverID, notes)
}

func (m *mockApprovalService) GetPendingForApprover(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error) {
	return m.pendingFunc(ctx, approverID)
}

func (m *mockApprovalService) GetMyRequests(ctx context.Context, requesterID string) ([]*entity.ApprovalRecord, error) {
	return m.mineFunc(ctx, requesterID)
}

func (m *mockApprovalService) GetApproverHistory(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error) {
	return m.historyFunc(ctx, approverID)
}

func (m *mockApprovalService) FindByID(ctx context.Context, id string) (*entity.ApprovalRecord, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockApprovalService) FindByBookingID(ctx context.Context, bookingID string) (*entity.ApprovalRecord, error) {
	return m.findByBookingFunc(ctx, bookingID)
}

func newTestServer(svc service.ApprovalService, health HealthChecker) *Server {
	return NewServer(DefaultServerConfig(), svc, health, utils.NewKVLogger(zap.NewNop()))
}

func doRequest(t *testing.T, s *Server, method, path, userID, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newTestServer(&mockApprovalService{}, func(context.Context) error { return nil })
		w, resp := doRequest(t, s, http.MethodGet, "/health", "", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.Success)
	})

	t.Run("database down", func(t *testing.T) {
		s := newTestServer(&mockApprovalService{}, func(context.Context) error { return errors.New("ping failed") })
		w, resp := doRequest(t, s, http.MethodGet, "/health", "", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.False(t, resp.Success)
		assert.Equal(t, "ping failed", resp.Error)
	})
}

func TestResolveApprovalType(t *testing.T) {
	s := newTestServer(&mockApprovalService{}, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantType   entity.ApprovalType
	}{
		{"executive", `{"position_level":"EXECUTIVE","user_segment":"OCCASIONAL_TRAVELER","is_business_trip":false}`, http.StatusOK, entity.ApprovalTypeAutoApproved},
		{"frequent business trip", `{"position_level":"STAFF","user_segment":"FREQUENT_TRAVELER","is_business_trip":true}`, http.StatusOK, entity.ApprovalTypeCcOnly},
		{"staff personal trip", `{"position_level":"STAFF","user_segment":"OCCASIONAL_TRAVELER","is_business_trip":false}`, http.StatusOK, entity.ApprovalTypeManagerApproval},
		{"unknown level", `{"position_level":"INTERN","user_segment":"FREQUENT_TRAVELER"}`, http.StatusBadRequest, ""},
		{"missing segment", `{"position_level":"STAFF"}`, http.StatusBadRequest, ""},
		{"malformed", `{`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := doRequest(t, s, http.MethodPost, "/api/v1/approvals/resolve", "", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.False(t, resp.Success)
				return
			}
			data := resp.Data.(map[string]interface{})
			assert.Equal(t, string(tt.wantType), data["approval_type"])
		})
	}
}

func TestCreateBooking(t *testing.T) {
	var gotBooking *entity.Booking
	var gotRequester entity.Requester
	svc := &mockApprovalService{
		createBookingFunc: func(ctx context.Context, booking *entity.Booking, requester entity.Requester) (*service.BookingApproval, error) {
			gotBooking, gotRequester = booking, requester
			if requester.ManagerID == "" {
				return nil, fmt.Errorf("%w: no manager assigned for approval workflow", workflow.ErrValidation)
			}
			booking.Status = entity.BookingStatusPendingApproval
			return &service.BookingApproval{
				Booking:      booking,
				ApprovalType: entity.ApprovalTypeManagerApproval,
				Record:       &entity.ApprovalRecord{ID: "a-1", BookingID: booking.ID, Status: entity.ApprovalStatusPending},
			}, nil
		},
	}
	s := newTestServer(svc, nil)

	w, resp := doRequest(t, s, http.MethodPost, "/api/v1/approvals", "",
		`{"booking_id":"b-1","kind":"MULTI_STOP","requester":{"id":"u-1","position_level":"STAFF","user_segment":"OCCASIONAL_TRAVELER","manager_id":"m-1"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, resp.Success)
	assert.Equal(t, "b-1", gotBooking.ID)
	assert.Equal(t, entity.BookingKindMultiStop, gotBooking.Kind)
	assert.Equal(t, "m-1", gotRequester.ManagerID)

	w, resp = doRequest(t, s, http.MethodPost, "/api/v1/approvals", "",
		`{"booking_id":"b-2","requester":{"id":"u-1","position_level":"STAFF","user_segment":"OCCASIONAL_TRAVELER"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(workflow.KindValidation), resp.Code)
	assert.Contains(t, resp.Error, "no manager assigned")

	w, _ = doRequest(t, s, http.MethodPost, "/api/v1/approvals", "",
		`{"requester":{"id":"bad id!","position_level":"STAFF","user_segment":"OCCASIONAL_TRAVELER"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecision_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   workflow.ErrorKind
	}{
		{"not found", fmt.Errorf("approval a-1: %w", workflow.ErrNotFound), http.StatusNotFound, workflow.KindNotFound},
		{"wrong approver", fmt.Errorf("user x: %w", workflow.ErrForbidden), http.StatusForbidden, workflow.KindForbidden},
		{"already processed", fmt.Errorf("approval a-1 already processed: %w", workflow.ErrInvalidTransition), http.StatusConflict, workflow.KindConflict},
		{"storage failure", errors.New("disk I/O error"), http.StatusInternalServerError, workflow.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockApprovalService{
				approveFunc: func(context.Context, string, string, *string) (*entity.ApprovalRecord, error) {
					return nil, tt.err
				},
			}
			s := newTestServer(svc, nil)

			w, resp := doRequest(t, s, http.MethodPost, "/api/v1/approvals/a-1/approve", "m-1", "")
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, string(tt.wantCode), resp.Code)
			if tt.wantStatus == http.StatusInternalServerError {
				assert.NotContains(t, resp.Error, "disk")
			}
		})
	}
}

func TestDecision_PassesCallerAndNotes(t *testing.T) {
	var gotID, gotApprover string
	var gotNotes *string
	svc := &mockApprovalService{
		rejectFunc: func(ctx context.Context, approvalID, approverID string, notes *string) (*entity.ApprovalRecord, error) {
			gotID, gotApprover, gotNotes = approvalID, approverID, notes
			return &entity.ApprovalRecord{ID: approvalID, Status: entity.ApprovalStatusRejected, Notes: notes}, nil
		},
	}
	s := newTestServer(svc, nil)

	w, resp := doRequest(t, s, http.MethodPost, "/api/v1/approvals/a-9/reject", "m-1", `{"notes":"  over budget  "}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, resp.Success)
	assert.Equal(t, "a-9", gotID)
	assert.Equal(t, "m-1", gotApprover)
	require.NotNil(t, gotNotes)
	assert.Equal(t, "over budget", *gotNotes)

	w, _ = doRequest(t, s, http.MethodPost, "/api/v1/approvals/a-9/reject", "m-1", `{"notes":"   "}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, gotNotes)
}

func TestDecision_RequestValidation(t *testing.T) {
	called := false
	svc := &mockApprovalService{
		approveFunc: func(context.Context, string, string, *string) (*entity.ApprovalRecord, error) {
			called = true
			return &entity.ApprovalRecord{}, nil
		},
	}
	s := newTestServer(svc, nil)

	w, _ := doRequest(t, s, http.MethodPost, "/api/v1/approvals/a-1/approve", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	longNotes := fmt.Sprintf(`{"notes":%q}`, strings.Repeat("x", utils.MaxNotesLength+1))
	w, _ = doRequest(t, s, http.MethodPost, "/api/v1/approvals/a-1/approve", "m-1", longNotes)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doRequest(t, s, http.MethodPost, "/api/v1/approvals/a-1/approve", "m-1", `{"notes":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.False(t, called)

	w, _ = doRequest(t, s, http.MethodPost, "/api/v1/approvals/a-1/approve", "m-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
}

func TestQueries(t *testing.T) {
	records := []*entity.ApprovalRecord{{ID: "a-1", ApproverID: "m-1", Status: entity.ApprovalStatusPending}}
	svc := &mockApprovalService{
		pendingFunc: func(ctx context.Context, approverID string) ([]*entity.ApprovalRecord, error) {
			if approverID == "m-1" {
				return records, nil
			}
			return nil, nil
		},
		mineFunc: func(context.Context, string) ([]*entity.ApprovalRecord, error) {
			return nil, nil
		},
		historyFunc: func(context.Context, string) ([]*entity.ApprovalRecord, error) {
			return records, nil
		},
		findByIDFunc: func(ctx context.Context, id string) (*entity.ApprovalRecord, error) {
			if id == "a-1" {
				return records[0], nil
			}
			return nil, fmt.Errorf("approval %s: %w", id, workflow.ErrNotFound)
		},
		findByBookingFunc: func(ctx context.Context, bookingID string) (*entity.ApprovalRecord, error) {
			return nil, fmt.Errorf("approval for booking %s: %w", bookingID, workflow.ErrNotFound)
		},
	}
	s := newTestServer(svc, nil)

	w, resp := doRequest(t, s, http.MethodGet, "/api/v1/approvals/pending", "m-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)

	w, resp = doRequest(t, s, http.MethodGet, "/api/v1/approvals/mine", "u-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, resp.Data)

	w, _ = doRequest(t, s, http.MethodGet, "/api/v1/approvals/history", "m-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doRequest(t, s, http.MethodGet, "/api/v1/approvals/pending", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp = doRequest(t, s, http.MethodGet, "/api/v1/approvals/a-1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a-1", resp.Data.(map[string]interface{})["id"])

	w, _ = doRequest(t, s, http.MethodGet, "/api/v1/approvals/a-404", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doRequest(t, s, http.MethodGet, "/api/v1/approvals/booking/b-1", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	svc := &mockApprovalService{
		findByIDFunc: func(context.Context, string) (*entity.ApprovalRecord, error) {
			panic("boom")
		},
	}
	s := newTestServer(svc, nil)

	w, resp := doRequest(t, s, http.MethodGet, "/api/v1/approvals/a-1", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, resp.Success)
}
