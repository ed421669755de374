package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chargeslot/backend/services/booking-service/internal/gateway"
	"chargeslot/backend/services/booking-service/internal/models"
	"chargeslot/backend/services/booking-service/internal/repository/memory"
)

const (
	testStation    int64 = 1
	testPillar     int64 = 10
	otherPillar    int64 = 11
	testConnector  int64 = 100
	spareConnector int64 = 101
	otherConnector int64 = 110
	testPrice      int64 = 3500

	driverID      int64 = 1
	otherDriverID int64 = 2
	driverVehicle int64 = 500
	otherVehicle  int64 = 501

	gatewaySecret = "test-hash-secret"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, msg := range n.sent {
		if msg.Type == kind {
			c++
		}
	}
	return c
}

type recordingFeed struct {
	mu        sync.Mutex
	snapshots []models.ChargingSession
}

func (f *recordingFeed) Publish(s *models.ChargingSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, *s)
}

func (f *recordingFeed) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots)
}

type fixture struct {
	ctx      context.Context
	clock    *testClock
	store    *memory.Store
	notifier *recordingNotifier
	feed     *recordingFeed
	gateway  *gateway.Client

	wallet       *WalletService
	reservations *ReservationService
	checkins     *CheckInService
	payments     *PaymentService
	sessions     *SessionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clock := &testClock{now: baseTime}

	store := memory.NewStore()
	store.SetClock(clock.Now)

	catalog := store.Catalog()
	catalog.PutPillar(models.Pillar{ID: testPillar, StationID: testStation, PricePerKWh: testPrice})
	catalog.PutPillar(models.Pillar{ID: otherPillar, StationID: testStation, PricePerKWh: testPrice})
	catalog.PutConnector(models.Connector{ID: testConnector, PillarID: testPillar})
	catalog.PutConnector(models.Connector{ID: spareConnector, PillarID: testPillar})
	catalog.PutConnector(models.Connector{ID: otherConnector, PillarID: otherPillar})
	catalog.PutVehicle(models.Vehicle{ID: driverVehicle, OwnerID: driverID, BatteryCapacityKWh: 60, CurrentSoc: 0.2})
	catalog.PutVehicle(models.Vehicle{ID: otherVehicle, OwnerID: otherDriverID, BatteryCapacityKWh: 40, CurrentSoc: 0.5})

	gw, err := gateway.NewClient(gateway.Config{
		PayURL:    "https://sandbox.pay.example/paymentv2/vpcpay.html",
		Merchant:  "CHARGESLOT",
		Secret:    gatewaySecret,
		ReturnURL: "https://app.example/payments/return",
	})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	feed := &recordingFeed{}

	wallet := NewWalletService(store.Wallets(), logger)
	reservations := NewReservationService(store.Reservations(), catalog, store.Subscriptions(), ReservationConfig{}, logger)
	reservations.now = clock.Now
	checkins := NewCheckInService(store.Reservations(), store.CheckIns(), 5*time.Minute, "https://app.example/checkin", logger)
	checkins.now = clock.Now
	payments := NewPaymentService(store.Payments(), wallet, store.Reservations(), store.Sessions(), gw, notifier, PaymentConfig{}, logger)
	payments.now = clock.Now
	sessions := NewSessionService(store.Sessions(), store.Reservations(), catalog, wallet, payments, nil, feed, SessionConfig{}, logger)
	sessions.now = clock.Now

	return &fixture{
		ctx:          context.Background(),
		clock:        clock,
		store:        store,
		notifier:     notifier,
		feed:         feed,
		gateway:      gw,
		wallet:       wallet,
		reservations: reservations,
		checkins:     checkins,
		payments:     payments,
		sessions:     sessions,
	}
}

func (f *fixture) fund(t *testing.T, userID, amount int64) {
	t.Helper()
	_, err := f.store.Wallets().Credit(f.ctx, userID, amount)
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	w, err := f.wallet.Balance(f.ctx, userID)
	require.NoError(t, err)
	return w.Balance
}

func (f *fixture) reservation(t *testing.T, id int64) *models.Reservation {
	t.Helper()
	res, err := f.store.Reservations().Get(f.ctx, id)
	require.NoError(t, err)
	return res
}

func (f *fixture) connectorStatus(t *testing.T, id int64) models.ConnectorStatus {
	t.Helper()
	c, err := f.store.Catalog().GetConnector(f.ctx, id)
	require.NoError(t, err)
	return c.Status
}

// hold creates a reservation for [now+startIn, now+startIn+length) on the test connector.
func (f *fixture) hold(t *testing.T, userID int64, startIn, length time.Duration) *models.Reservation {
	t.Helper()
	start := f.clock.Now().Add(startIn)
	res, err := f.reservations.Create(f.ctx, CreateReservationInput{
		UserID:      userID,
		StationID:   testStation,
		PillarID:    testPillar,
		ConnectorID: testConnector,
		StartTime:   start,
		EndTime:     start.Add(length),
	})
	require.NoError(t, err)
	return res
}

// putReservation stores a reservation directly in the given status.
func (f *fixture) putReservation(userID int64, status models.ReservationStatus) *models.Reservation {
	start := f.clock.Now().Add(-5 * time.Minute)
	end := start.Add(time.Hour)
	return f.store.Reservations().Put(models.Reservation{
		UserID:      userID,
		StationID:   testStation,
		PillarID:    testPillar,
		ConnectorID: testConnector,
		StartTime:   start,
		EndTime:     end,
		Status:      status,
		HoldFee:     60000,
		ExpiredAt:   end.Add(15 * time.Minute),
	})
}

// signedCallback builds the gateway notification for the payment as the gateway would sign it.
func (f *fixture) signedCallback(p *models.Payment, amount int64, responseCode string) map[string]string {
	params := map[string]string{
		CallbackTxnRef:       p.TxnRef,
		CallbackAmount:       strconv.FormatInt(amount, 10),
		CallbackResponseCode: responseCode,
		CallbackTxnNo:        "GW" + p.TxnRef[:8],
		"bank_code":          "NCB",
	}
	params[gateway.SignatureParam] = f.gateway.Signer().Sign(params)
	return params
}

func int64Ptr(v int64) *int64 { return &v }

func float64Ptr(v float64) *float64 { return &v }
