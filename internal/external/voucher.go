package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrVoucherNotFound is returned when the lookup service has no such reservation
var ErrVoucherNotFound = errors.New("reservation not found")

// VoucherClient looks up guest reservations (vouchers) in the reservation
// service so bookings can be pre-filled
type VoucherClient struct {
	baseURL    string
	httpClient *http.Client
}

type VoucherConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Voucher is the subset of the reservation record a booking needs
type Voucher struct {
	ReservationID string `json:"reservation_id"`
	GuestName     string `json:"guest_name"`
	GuestEmail    string `json:"guest_email"`
	PickupPointID string `json:"pickup_point_id"`
}

func NewVoucherClient(cfg VoucherConfig) *VoucherClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &VoucherClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// GetVoucher fetches one reservation by ID
func (vc *VoucherClient) GetVoucher(ctx context.Context, reservationID string) (*Voucher, error) {
	endpoint := vc.baseURL + "/api/v1/reservations/" + url.PathEscape(reservationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := vc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrVoucherNotFound
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result Voucher
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.ReservationID == "" {
		result.ReservationID = reservationID
	}

	return &result, nil
}
