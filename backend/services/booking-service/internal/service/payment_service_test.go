package service

import (
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargeslot/backend/services/booking-service/internal/gateway"
	"chargeslot/backend/services/booking-service/internal/models"
)

func (f *fixture) payment(t *testing.T, id int64) *models.Payment {
	t.Helper()
	p, err := f.store.Payments().Get(f.ctx, id)
	require.NoError(t, err)
	return p
}

func (f *fixture) topUpIntent(t *testing.T, amount int64) *PaymentResult {
	t.Helper()
	result, err := f.payments.Create(f.ctx, CreatePaymentInput{
		UserID:   driverID,
		Type:     models.PaymentWalletTopup,
		Method:   models.MethodGateway,
		Amount:   amount,
		ClientIP: "10.0.0.7",
	})
	require.NoError(t, err)
	return result
}

func TestCreatePaymentValidation(t *testing.T) {
	f := newFixture(t)
	res := f.hold(t, driverID, time.Hour, time.Hour)

	cases := []struct {
		name string
		in   CreatePaymentInput
		want error
	}{
		{"zero amount", CreatePaymentInput{Type: models.PaymentMembership, Method: models.MethodCash, ReferenceID: int64Ptr(3)}, ErrValidation},
		{"over the limit", CreatePaymentInput{Type: models.PaymentMembership, Method: models.MethodCash, Amount: 100_000_001, ReferenceID: int64Ptr(3)}, ErrValidation},
		{"unknown type", CreatePaymentInput{Type: "GIFT", Method: models.MethodCash, Amount: 100}, ErrValidation},
		{"unknown method", CreatePaymentInput{Type: models.PaymentWalletTopup, Method: "CHEQUE", Amount: 100}, ErrValidation},
		{"top-up from wallet", CreatePaymentInput{Type: models.PaymentWalletTopup, Method: models.MethodLedger, Amount: 100}, ErrValidation},
		{"missing reference", CreatePaymentInput{Type: models.PaymentMembership, Method: models.MethodCash, Amount: 100}, ErrValidation},
		{"hold amount differs from fee", CreatePaymentInput{Type: models.PaymentReservationHold, Method: models.MethodCash, Amount: 100, ReferenceID: int64Ptr(res.ID)}, ErrValidation},
		{"hold of unknown reservation", CreatePaymentInput{Type: models.PaymentReservationHold, Method: models.MethodCash, Amount: 100, ReferenceID: int64Ptr(999)}, ErrNotFound},
		{"charge of unknown session", CreatePaymentInput{Type: models.PaymentSessionCharge, Method: models.MethodCash, Amount: 100, ReferenceID: int64Ptr(999)}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.UserID = driverID
			_, err := f.payments.Create(f.ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.payments.Create(f.ctx, CreatePaymentInput{
		UserID: otherDriverID, Type: models.PaymentReservationHold, Method: models.MethodCash,
		Amount: res.HoldFee, ReferenceID: int64Ptr(res.ID),
	})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, f.store.Payments().Count())
}

func TestLedgerPaymentInsufficientFundsLeavesBalance(t *testing.T) {
	f := newFixture(t)
	f.fund(t, driverID, 100_000)

	_, err := f.payments.Create(f.ctx, CreatePaymentInput{
		UserID:      driverID,
		Type:        models.PaymentMembership,
		Method:      models.MethodLedger,
		Amount:      150_000,
		ReferenceID: int64Ptr(3),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(100_000), f.balance(t, driverID))
	assert.Zero(t, f.store.Payments().Count())
}

func TestLedgerPaymentConfirmsReservationHold(t *testing.T) {
	f := newFixture(t)
	f.fund(t, driverID, 100_000)
	res := f.hold(t, driverID, time.Hour, time.Hour)

	result, err := f.payments.Create(f.ctx, CreatePaymentInput{
		UserID:      driverID,
		Type:        models.PaymentReservationHold,
		Method:      models.MethodLedger,
		Amount:      res.HoldFee,
		ReferenceID: int64Ptr(res.ID),
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentSuccess, result.Payment.Status)
	assert.Empty(t, result.PaymentURL)
	assert.Equal(t, int64(40_000), f.balance(t, driverID))
	assert.Equal(t, models.ReservationScheduled, f.reservation(t, res.ID).Status)
	assert.Equal(t, 1, f.notifier.count(models.NotifyReservationConfirmed))
}

func TestGatewayIntentIsIdempotentWhilePending(t *testing.T) {
	f := newFixture(t)

	first := f.topUpIntent(t, 50_000)
	second := f.topUpIntent(t, 50_000)

	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, first.Payment.TxnRef, second.Payment.TxnRef)
	assert.Equal(t, 1, f.store.Payments().Count())
	assert.Equal(t, models.PaymentPending, first.Payment.Status)
	require.NotNil(t, first.Payment.ExpiresAt)
	assert.Equal(t, baseTime.Add(15*time.Minute), *first.Payment.ExpiresAt)

	redirect, err := url.Parse(first.PaymentURL)
	require.NoError(t, err)
	query := redirect.Query()
	assert.Equal(t, first.Payment.TxnRef, query.Get("txn_ref"))
	assert.Equal(t, "5000000", query.Get("amount"))
	assert.Equal(t, "10.0.0.7", query.Get("ip_addr"))
	assert.NotEmpty(t, query.Get(gateway.SignatureParam))

	params := make(map[string]string, len(query))
	for k := range query {
		params[k] = query.Get(k)
	}
	assert.True(t, f.gateway.Verify(params), "redirect carries a valid signature")

	other := f.topUpIntent(t, 60_000)
	assert.NotEqual(t, first.Payment.ID, other.Payment.ID)
}

func TestDuplicateGatewayCallbackCreditsOnce(t *testing.T) {
	f := newFixture(t)
	intent := f.topUpIntent(t, 50_000)
	callback := f.signedCallback(intent.Payment, 5_000_000, "00")

	require.NoError(t, f.payments.HandleGatewayCallback(f.ctx, callback))
	require.NoError(t, f.payments.HandleGatewayCallback(f.ctx, callback))

	assert.Equal(t, int64(50_000), f.balance(t, driverID))
	assert.Equal(t, 1, f.notifier.count(models.NotifyWalletCredited))

	stored := f.payment(t, intent.Payment.ID)
	assert.Equal(t, models.PaymentSuccess, stored.Status)
	require.NotNil(t, stored.GatewayTxnID)
	assert.Equal(t, callback[CallbackTxnNo], *stored.GatewayTxnID)
}

func TestDuplicateGatewayCallbackConfirmsReservationOnce(t *testing.T) {
	f := newFixture(t)
	res := f.hold(t, driverID, time.Hour, 30*time.Minute)

	intent, err := f.payments.Create(f.ctx, CreatePaymentInput{
		UserID:      driverID,
		Type:        models.PaymentReservationHold,
		Method:      models.MethodGateway,
		Amount:      res.HoldFee,
		ReferenceID: int64Ptr(res.ID),
	})
	require.NoError(t, err)

	callback := f.signedCallback(intent.Payment, res.HoldFee*100, "00")
	for i := 0; i < 3; i++ {
		require.NoError(t, f.payments.HandleGatewayCallback(f.ctx, callback))
	}

	assert.Equal(t, models.ReservationScheduled, f.reservation(t, res.ID).Status)
	assert.Equal(t, 1, f.notifier.count(models.NotifyReservationConfirmed))
}

func TestTamperedCallbackNeverMutates(t *testing.T) {
	f := newFixture(t)
	intent := f.topUpIntent(t, 50_000)

	callback := f.signedCallback(intent.Payment, 5_000_000, "00")
	callback[CallbackAmount] = "9900000"
	err := f.payments.HandleGatewayCallback(f.ctx, callback)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	unsigned := f.signedCallback(intent.Payment, 5_000_000, "00")
	delete(unsigned, gateway.SignatureParam)
	err = f.payments.HandleGatewayCallback(f.ctx, unsigned)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	assert.Equal(t, models.PaymentPending, f.payment(t, intent.Payment.ID).Status)
	assert.Zero(t, f.balance(t, driverID))
}

func TestCallbackAmountMismatch(t *testing.T) {
	f := newFixture(t)
	intent := f.topUpIntent(t, 50_000)

	err := f.payments.HandleGatewayCallback(f.ctx, f.signedCallback(intent.Payment, 50_000, "00"))
	assert.ErrorIs(t, err, ErrAmountMismatch)
	assert.Equal(t, models.PaymentPending, f.payment(t, intent.Payment.ID).Status)
	assert.Zero(t, f.balance(t, driverID))
}

func TestCallbackForUnknownTransaction(t *testing.T) {
	f := newFixture(t)
	ghost := &models.Payment{TxnRef: "0123456789abcdef", Amount: 10}

	err := f.payments.HandleGatewayCallback(f.ctx, f.signedCallback(ghost, 1000, "00"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailedCallbackLeavesWalletUntouched(t *testing.T) {
	f := newFixture(t)
	intent := f.topUpIntent(t, 50_000)

	require.NoError(t, f.payments.HandleGatewayCallback(f.ctx, f.signedCallback(intent.Payment, 5_000_000, "24")))
	assert.Equal(t, models.PaymentFailed, f.payment(t, intent.Payment.ID).Status)
	assert.Zero(t, f.balance(t, driverID))

	// A later success notification for the same transaction still settles it.
	require.NoError(t, f.payments.HandleGatewayCallback(f.ctx, f.signedCallback(intent.Payment, 5_000_000, "00")))
	assert.Equal(t, models.PaymentSuccess, f.payment(t, intent.Payment.ID).Status)
	assert.Equal(t, int64(50_000), f.balance(t, driverID))
}

func TestCashPaymentConfirmedByStaff(t *testing.T) {
	f := newFixture(t)
	res := f.hold(t, driverID, time.Hour, time.Hour)

	intent, err := f.payments.Create(f.ctx, CreatePaymentInput{
		UserID:      driverID,
		Type:        models.PaymentReservationHold,
		Method:      models.MethodCash,
		Amount:      res.HoldFee,
		ReferenceID: int64Ptr(res.ID),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, intent.Payment.Status)
	assert.Empty(t, intent.PaymentURL)
	assert.Equal(t, 1, f.notifier.count(models.NotifyCashPaymentPending))
	assert.Equal(t, models.ReservationPending, f.reservation(t, res.ID).Status)

	f.notifier.mu.Lock()
	staffMsg := f.notifier.sent[0]
	f.notifier.mu.Unlock()
	assert.Equal(t, testStation, staffMsg.StationID)

	const staffID int64 = 77
	confirmed, err := f.payments.ConfirmCash(f.ctx, staffID, intent.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, confirmed.Status)
	assert.Equal(t, models.ReservationScheduled, f.reservation(t, res.ID).Status)

	_, err = f.payments.ConfirmCash(f.ctx, staffID, intent.Payment.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, f.notifier.count(models.NotifyReservationConfirmed))

	gatewayIntent := f.topUpIntent(t, 10_000)
	_, err = f.payments.ConfirmCash(f.ctx, staffID, gatewayIntent.Payment.ID)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.payments.ConfirmCash(f.ctx, staffID, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListMinePayments(t *testing.T) {
	f := newFixture(t)
	for _, amount := range []int64{10_000, 20_000, 30_000} {
		f.topUpIntent(t, amount)
	}

	payments, err := f.payments.ListMine(f.ctx, driverID, 2)
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	none, err := f.payments.ListMine(f.ctx, otherDriverID, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestConcurrentLedgerHoldPaymentsDebitOnce(t *testing.T) {
	f := newFixture(t)
	f.fund(t, driverID, 10_000_000)
	res := f.hold(t, driverID, time.Hour, time.Hour)
	before := f.balance(t, driverID)

	const callers = 64
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		start     = make(chan struct{})
		successes int
		conflicts int
		other     []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.payments.Create(f.ctx, CreatePaymentInput{
				UserID:      driverID,
				Type:        models.PaymentReservationHold,
				Method:      models.MethodLedger,
				Amount:      res.HoldFee,
				ReferenceID: int64Ptr(res.ID),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
	assert.Empty(t, other)
	assert.Equal(t, before-res.HoldFee, f.balance(t, driverID))
	assert.Equal(t, 1, f.store.Payments().Count())
	assert.Equal(t, models.ReservationScheduled, f.reservation(t, res.ID).Status)
	assert.Equal(t, 1, f.notifier.count(models.NotifyReservationConfirmed))
	assert.Zero(t, f.notifier.count(models.NotifyPaymentRefunded))
}

func TestLedgerPaymentInFlightIsConflict(t *testing.T) {
	f := newFixture(t)
	f.fund(t, driverID, 100_000)
	res := f.hold(t, driverID, time.Hour, time.Hour)

	inFlight := &models.Payment{
		TxnRef:      "inflight0001",
		Amount:      res.HoldFee,
		Type:        models.PaymentReservationHold,
		Method:      models.MethodLedger,
		ReferenceID: int64Ptr(res.ID),
		UserID:      driverID,
		Status:      models.PaymentPending,
	}
	_, created, err := f.store.Payments().CreateOrGetPending(f.ctx, inFlight)
	require.NoError(t, err)
	require.True(t, created)

	_, err = f.payments.Create(f.ctx, CreatePaymentInput{
		UserID:      driverID,
		Type:        models.PaymentReservationHold,
		Method:      models.MethodLedger,
		Amount:      res.HoldFee,
		ReferenceID: int64Ptr(res.ID),
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, int64(100_000), f.balance(t, driverID))
	assert.Equal(t, models.ReservationPending, f.reservation(t, res.ID).Status)
}

func TestHoldGatewayIntentExpiresWithReservation(t *testing.T) {
	f := newFixture(t)
	res := f.hold(t, driverID, time.Hour, time.Hour)
	f.clock.Advance(4 * time.Minute)

	intent, err := f.payments.Create(f.ctx, CreatePaymentInput{
		UserID:      driverID,
		Type:        models.PaymentReservationHold,
		Method:      models.MethodGateway,
		Amount:      res.HoldFee,
		ReferenceID: int64Ptr(res.ID),
	})
	require.NoError(t, err)
	require.NotNil(t, intent.Payment.ExpiresAt)
	assert.Equal(t, baseTime.Add(10*time.Minute), *intent.Payment.ExpiresAt)

	f.clock.Advance(6 * time.Minute)
	_, err = f.payments.Create(f.ctx, CreatePaymentInput{
		UserID:      driverID,
		Type:        models.PaymentReservationHold,
		Method:      models.MethodCash,
		Amount:      res.HoldFee,
		ReferenceID: int64Ptr(res.ID),
	})
	assert.ErrorIs(t, err, ErrConflict, "the unpaid hold is due to expire")
}

func TestLateHoldCallbackRefundsOnce(t *testing.T) {
	f := newFixture(t)
	res := f.hold(t, driverID, time.Hour, time.Hour)

	intent, err := f.payments.Create(f.ctx, CreatePaymentInput{
		UserID:      driverID,
		Type:        models.PaymentReservationHold,
		Method:      models.MethodGateway,
		Amount:      res.HoldFee,
		ReferenceID: int64Ptr(res.ID),
	})
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	moved, err := f.store.Reservations().Transition(f.ctx, res.ID, models.ReservationPending, models.ReservationExpired)
	require.NoError(t, err)
	require.True(t, moved)

	callback := f.signedCallback(intent.Payment, res.HoldFee*100, "00")
	require.NoError(t, f.payments.HandleGatewayCallback(f.ctx, callback))
	require.NoError(t, f.payments.HandleGatewayCallback(f.ctx, callback))

	stored := f.payment(t, intent.Payment.ID)
	assert.Equal(t, models.PaymentSuccess, stored.Status)
	assert.True(t, stored.Refunded)
	assert.Equal(t, res.HoldFee, f.balance(t, driverID))
	assert.Equal(t, models.ReservationExpired, f.reservation(t, res.ID).Status)
	assert.Equal(t, 1, f.notifier.count(models.NotifyPaymentRefunded))
	assert.Zero(t, f.notifier.count(models.NotifyReservationConfirmed))
}

func TestLateGatewaySuccessAfterCashIsRefunded(t *testing.T) {
	f := newFixture(t)
	session := f.walkIn(t, models.MethodGateway, nil)
	_, err := f.sessions.ApplyMeterReading(f.ctx, session.ID, 2)
	require.NoError(t, err)
	result, err := f.sessions.Stop(f.ctx, driverID, session.ID)
	require.NoError(t, err)
	require.NotNil(t, result.PaymentID)
	gatewayPayment := f.payment(t, *result.PaymentID)
	amount := result.TotalAmount

	require.NoError(t, f.payments.HandleGatewayCallback(f.ctx, f.signedCallback(gatewayPayment, amount*100, "24")))

	cash, err := f.payments.Create(f.ctx, CreatePaymentInput{
		UserID:      driverID,
		Type:        models.PaymentSessionCharge,
		Method:      models.MethodCash,
		Amount:      amount,
		ReferenceID: int64Ptr(session.ID),
	})
	require.NoError(t, err)
	_, err = f.payments.ConfirmCash(f.ctx, 77, cash.Payment.ID)
	require.NoError(t, err)

	late := f.signedCallback(gatewayPayment, amount*100, "00")
	require.NoError(t, f.payments.HandleGatewayCallback(f.ctx, late))
	require.NoError(t, f.payments.HandleGatewayCallback(f.ctx, late))

	assert.Equal(t, amount, f.balance(t, driverID))
	assert.True(t, f.payment(t, gatewayPayment.ID).Refunded)
	assert.False(t, f.payment(t, cash.Payment.ID).Refunded)
	assert.Equal(t, 1, f.notifier.count(models.NotifySessionPaid))
	assert.Equal(t, 1, f.notifier.count(models.NotifyPaymentRefunded))

	stored, err := f.store.Sessions().Get(f.ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, cash.Payment.ID, *stored.PaymentID)
}
