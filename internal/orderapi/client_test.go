package orderapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/affordindia/affordindia-sub004/internal/apperr"
	"github.com/affordindia/affordindia-sub004/models"
)

const orderJSON = `{"_id":"o1","user":{"_id":"u1","name":"Meera","email":"meera@example.com"},
"items":[{"product":"p1","quantity":1,"price":"499.00"}],"status":"pending","paymentStatus":"unpaid",
"total":"499.00","createdAt":"2025-01-01T12:00:00Z"}`

func serve(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, time.Second)
}

func TestListAcceptsOrdersAndData(t *testing.T) {
	for _, key := range []string{"orders", "data"} {
		t.Run(key, func(t *testing.T) {
			c := serve(t, http.StatusOK, `{"success":true,"`+key+`":[`+orderJSON+`]}`)

			orders, err := c.List(context.Background())
			require.NoError(t, err)
			require.Len(t, orders, 1)
			assert.Equal(t, "o1", orders[0].ID)
			assert.True(t, orders[0].User.Resolved)
		})
	}
}

func TestListRejectsMalformedShapes(t *testing.T) {
	cases := map[string]string{
		"NoArray":       `{"success":true}`,
		"NotArray":      `{"success":true,"orders":{"_id":"o1"}}`,
		"BadJSON":       `{"success":`,
		"InvalidDoc":    `{"success":true,"orders":[{"_id":"o1","status":"lost","paymentStatus":"paid"}]}`,
		"MissingID":     `{"success":true,"orders":[{"status":"pending","paymentStatus":"paid"}]}`,
		"FalseNoDetail": `{"success":false}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := serve(t, http.StatusOK, body).List(context.Background())
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"NotFound", http.StatusNotFound, `{"success":false,"error":{"code":"NOT_FOUND","message":"order o1 not found"}}`, apperr.ErrNotFound},
		{"NotFoundNoBody", http.StatusNotFound, ``, apperr.ErrNotFound},
		{"Conflict", http.StatusConflict, `{"success":false,"message":"nope"}`, apperr.ErrInvalidTransition},
		{"CodeWins", http.StatusBadRequest, `{"success":false,"error":{"code":"INVALID_TRANSITION","message":"x"}}`, apperr.ErrInvalidTransition},
		{"Unauthorized", http.StatusUnauthorized, `{"success":false,"error":"token expired"}`, apperr.ErrUnauthorized},
		{"ServerError", http.StatusInternalServerError, `oops`, apperr.ErrUnknown},
		{"BadRequestValidation", http.StatusBadRequest, `{"success":false,"error":{"code":"VALIDATION_FAILURE","message":"bad"}}`, apperr.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := serve(t, tc.status, tc.body).SetStatus(context.Background(), "o1", models.OrderShipped)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestServerMessageIsKept(t *testing.T) {
	c := serve(t, http.StatusConflict, `{"success":false,"error":{"code":"INVALID_TRANSITION","message":"order cannot move from delivered to pending"}}`)

	_, err := c.SetStatus(context.Background(), "o1", models.OrderPending)
	assert.Equal(t, "order cannot move from delivered to pending", apperr.Message(err))
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewClient(srv.URL, time.Second).List(context.Background())
	assert.ErrorIs(t, err, apperr.ErrNetwork)
}

func TestTimeoutIsNetworkFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 50*time.Millisecond).List(context.Background())
	assert.ErrorIs(t, err, apperr.ErrNetwork)
}

func TestRequestsCarryTokenAndBody(t *testing.T) {
	var gotAuth, gotMethod, gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{"success":true,"order":`+orderJSON+`}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second, WithToken("tkn"))
	order, err := c.SetPaymentStatus(context.Background(), "o1", models.PaymentPaid)
	require.NoError(t, err)

	assert.Equal(t, "o1", order.ID)
	assert.Equal(t, "Bearer tkn", gotAuth)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/api/orders/o1/payment", gotPath)
	assert.Equal(t, map[string]string{"paymentStatus": "paid"}, gotBody)
}

func TestUpdateWithoutOrderInReply(t *testing.T) {
	c := serve(t, http.StatusOK, `{"success":true,"message":"Order status updated"}`)

	order, err := c.SetStatus(context.Background(), "o1", models.OrderProcessing)
	require.NoError(t, err)
	assert.Empty(t, order.ID)

	_, err = c.SetPaymentStatus(context.Background(), "o1", models.PaymentPaid)
	assert.NoError(t, err)
}

func TestUpdateRejectsMalformedOrderInReply(t *testing.T) {
	c := serve(t, http.StatusOK, `{"success":true,"order":{"_id":"o1","status":"lost","paymentStatus":"paid"}}`)

	_, err := c.SetStatus(context.Background(), "o1", models.OrderProcessing)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestGetRequiresOrderInReply(t *testing.T) {
	_, err := serve(t, http.StatusOK, `{"success":true}`).Get(context.Background(), "o1")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDelete(t *testing.T) {
	c := serve(t, http.StatusOK, `{"success":true}`)
	assert.NoError(t, c.Delete(context.Background(), "o1"))
}

func TestLogin(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		if r.URL.Path == "/api/admin/login" {
			io.WriteString(w, `{"success":true,"token":"abc"}`)
			return
		}
		io.WriteString(w, `{"success":true,"orders":[]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	require.NoError(t, c.Login(context.Background(), "admin@example.com", "pw"))
	_, err := c.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"", "Bearer abc"}, seen)
}
