package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"course-push-backend/internal/model"
	"course-push-backend/internal/notification"
)

type dispatchCall struct {
	target  notification.Target
	payload model.NotificationPayload
}

// mockNotifier records every dispatch.
type mockNotifier struct {
	mu       sync.Mutex
	calls    []dispatchCall
	err      error
	notified chan struct{}
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{notified: make(chan struct{}, 16)}
}

func (m *mockNotifier) Dispatch(ctx context.Context, target notification.Target, payload model.NotificationPayload) (*notification.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, dispatchCall{target: target, payload: payload})
	m.mu.Unlock()
	m.notified <- struct{}{}
	if m.err != nil {
		return nil, m.err
	}
	return &notification.Result{Success: true, Total: 1, Successful: 1}, nil
}

func (m *mockNotifier) Calls() []dispatchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dispatchCall(nil), m.calls...)
}

func TestRenderTemplate(t *testing.T) {
	testCases := []struct {
		name string
		tmpl string
		data map[string]any
		want string
	}{
		{name: "string value", tmpl: "Hello {{name}}", data: map[string]any{"name": "Ada"}, want: "Hello Ada"},
		{name: "numeric value", tmpl: "{{count}} records", data: map[string]any{"count": 12}, want: "12 records"},
		{name: "float value", tmpl: "paid {{amount}}", data: map[string]any{"amount": 49.5}, want: "paid 49.5"},
		{name: "missing placeholder removed", tmpl: "Order {{orderId}} is {{status}}", data: map[string]any{"status": "paid"}, want: "Order  is paid"},
		{name: "nil value", tmpl: "x{{v}}y", data: map[string]any{"v": nil}, want: "xy"},
		{name: "unterminated placeholder kept", tmpl: "a {{b", data: nil, want: "a {{b"},
		{
			name: "value containing a placeholder is kept verbatim",
			tmpl: "{{customerName}} bought {{courseName}}",
			data: map[string]any{"customerName": "{{courseName}}", "courseName": "Go 101"},
			want: "{{courseName}} bought Go 101",
		},
		{
			name: "value containing an unknown placeholder is not stripped",
			tmpl: "{{customerName}} bought {{courseName}}",
			data: map[string]any{"customerName": "Ada {{nickname}}", "courseName": "Go 101"},
			want: "Ada {{nickname}} bought Go 101",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, renderTemplate(tc.tmpl, tc.data))
		})
	}
}

func TestRenderTemplate_StableAcrossRuns(t *testing.T) {
	data := map[string]any{"customerName": "{{courseName}}", "courseName": "Go 101", "amount": "{{customerName}}"}
	for i := 0; i < 200; i++ {
		require.Equal(t, "{{courseName}} bought Go 101 for {{customerName}}",
			renderTemplate("{{customerName}} bought {{courseName}} for {{amount}}", data))
	}
}

func TestBuildPayload_NewOrder(t *testing.T) {
	data := map[string]any{
		"orderId":      "A-1001",
		"customerName": "Grace",
		"courseName":   "Go in Practice",
		"amount":       "$99",
	}

	payload, ok := BuildPayload(NewOrder, data)
	require.True(t, ok)
	assert.Equal(t, "New order", payload.Title)
	assert.Equal(t, "Grace bought Go in Practice for $99", payload.Body)
	assert.Equal(t, "order-A-1001", payload.Tag)
	assert.True(t, payload.RequireInteraction)
	assert.NotEmpty(t, payload.Actions)
	assert.Equal(t, "new_order", payload.Data["type"])
	assert.Equal(t, "A-1001", payload.Data["orderId"])
	_, leaked := data["type"]
	assert.False(t, leaked, "caller data must not be modified")
}

func TestBuildPayload_OrderStatusChange(t *testing.T) {
	payload, ok := BuildPayload(OrderStatusChange, map[string]any{"orderId": "A-1", "status": "refunded"})
	require.True(t, ok)
	assert.Equal(t, "Order A-1 is now refunded", payload.Body)
	assert.Equal(t, "order-A-1", payload.Tag)
	assert.False(t, payload.RequireInteraction)
}

func TestBuildPayload_SyncCompleted(t *testing.T) {
	payload, ok := BuildPayload(SyncCompleted, map[string]any{"platform": "hotmart", "count": 3})
	require.True(t, ok)
	assert.Equal(t, "hotmart sync finished with 3 records", payload.Body)
	assert.Equal(t, "sync-hotmart", payload.Tag)
	assert.True(t, payload.Silent)
}

func TestBuildPayload_UnknownType(t *testing.T) {
	_, ok := BuildPayload(Type("course_published"), map[string]any{"x": 1})
	assert.False(t, ok)
}

func TestMapper_Notify(t *testing.T) {
	target := notification.Target{WorkspaceID: "ws-1"}

	t.Run("known type dispatches", func(t *testing.T) {
		n := newMockNotifier()
		m := NewMapper(n, zap.NewNop())

		res, err := m.Notify(context.Background(), target, NewOrder, map[string]any{"orderId": "1"})
		require.NoError(t, err)
		require.NotNil(t, res)
		calls := n.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, target, calls[0].target)
		assert.Equal(t, "order-1", calls[0].payload.Tag)
	})

	t.Run("unknown type is a no-op", func(t *testing.T) {
		n := newMockNotifier()
		m := NewMapper(n, zap.NewNop())

		res, err := m.Notify(context.Background(), target, Type("refund_requested"), map[string]any{"orderId": "1"})
		assert.NoError(t, err)
		assert.Nil(t, res)
		assert.Empty(t, n.Calls())
	})

	t.Run("dispatch error is returned", func(t *testing.T) {
		n := newMockNotifier()
		n.err = errors.New("select dispatch targets: connection refused")
		m := NewMapper(n, zap.NewNop())

		_, err := m.Notify(context.Background(), target, SyncCompleted, nil)
		assert.Error(t, err)
	})
}
