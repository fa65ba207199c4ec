package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetVoucher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/reservations/RES-1":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"guest_name":"Ana","guest_email":"ana@example.com","pickup_point_id":"p-1"}`))
		case "/api/v1/reservations/RES-404":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer server.Close()

	client := NewVoucherClient(VoucherConfig{BaseURL: server.URL})

	t.Run("Found", func(t *testing.T) {
		v, err := client.GetVoucher(context.Background(), "RES-1")
		require.NoError(t, err)
		assert.Equal(t, "RES-1", v.ReservationID)
		assert.Equal(t, "Ana", v.GuestName)
		assert.Equal(t, "p-1", v.PickupPointID)
	})

	t.Run("Not Found", func(t *testing.T) {
		_, err := client.GetVoucher(context.Background(), "RES-404")
		assert.True(t, errors.Is(err, ErrVoucherNotFound))
	})

	t.Run("Upstream Error", func(t *testing.T) {
		_, err := client.GetVoucher(context.Background(), "RES-500")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status code")
	})
}
