package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargeslot/backend/services/booking-service/internal/models"
)

func (f *fixture) walkIn(t *testing.T, method models.PaymentMethod, targetSoc *float64) *models.ChargingSession {
	t.Helper()
	session, err := f.sessions.Start(f.ctx, StartSessionInput{
		PillarID:      testPillar,
		ConnectorID:   int64Ptr(testConnector),
		DriverID:      driverID,
		VehicleID:     driverVehicle,
		TargetSoc:     targetSoc,
		PaymentMethod: method,
	})
	require.NoError(t, err)
	return session
}

func TestEstimateCost(t *testing.T) {
	vehicle := &models.Vehicle{BatteryCapacityKWh: 50, CurrentSoc: 0.5}

	assert.Equal(t, int64(87_500), EstimateCost(vehicle, testPrice, nil))
	assert.Equal(t, int64(0), EstimateCost(vehicle, testPrice, float64Ptr(0.4)))
	assert.Equal(t, int64(43_750), EstimateCost(vehicle, testPrice, float64Ptr(0.75)))
}

func TestMeterReadingsAccumulateCharge(t *testing.T) {
	f := newFixture(t)
	f.fund(t, driverID, 130_000)

	session := f.walkIn(t, models.MethodLedger, float64Ptr(0.8))
	assert.Equal(t, models.SessionActive, session.Status)
	assert.Equal(t, testPrice, session.RatePerKWh)
	assert.Equal(t, models.ConnectorOccupied, f.connectorStatus(t, testConnector))

	updated, err := f.sessions.ApplyMeterReading(f.ctx, session.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(35_000), updated.Amount)

	updated, err = f.sessions.ApplyMeterReading(f.ctx, session.ID, 25.5)
	require.NoError(t, err)
	assert.Equal(t, int64(35_000+54_250), updated.Amount)
	assert.InDelta(t, 25.5, updated.EnergyKWh, 1e-9)

	_, err = f.sessions.ApplyMeterReading(f.ctx, session.ID, 20)
	assert.ErrorIs(t, err, ErrValidation)

	stored, err := f.store.Sessions().Get(f.ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(89_250), stored.Amount, "rejected reading leaves the charge unchanged")

	same, err := f.sessions.ApplyMeterReading(f.ctx, session.ID, 25.5)
	require.NoError(t, err)
	assert.Equal(t, int64(89_250), same.Amount)
	assert.Equal(t, 4, f.feed.len(), "start and three applied readings are published")
}

func TestMeterReadingRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.sessions.ApplyMeterReading(f.ctx, 404, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.sessions.ApplyMeterReading(f.ctx, 404, -1)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMeterReadingCannotOverflowCharge(t *testing.T) {
	f := newFixture(t)
	session := f.walkIn(t, models.MethodGateway, nil)

	for _, reading := range []float64{1e16, 1e300, 1000.001} {
		_, err := f.sessions.ApplyMeterReading(f.ctx, session.ID, reading)
		assert.ErrorIs(t, err, ErrValidation, "reading %g", reading)
	}

	stored, err := f.store.Sessions().Get(f.ctx, session.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Amount)
	assert.Zero(t, stored.EnergyKWh)

	f.sessions.cfg.MaxAmount = 100_000
	_, err = f.sessions.ApplyMeterReading(f.ctx, session.ID, 20)
	require.NoError(t, err)
	_, err = f.sessions.ApplyMeterReading(f.ctx, session.ID, 30)
	assert.ErrorIs(t, err, ErrValidation, "105000 is above the charge limit")

	result, err := f.sessions.Stop(f.ctx, driverID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(70_000), result.TotalAmount)
	assert.True(t, result.RequiresPayment)
	require.NotNil(t, result.PaymentID)
}

func TestStartLedgerSessionRequiresEstimatedBalance(t *testing.T) {
	f := newFixture(t)
	f.fund(t, driverID, 100_000)

	_, err := f.sessions.Start(f.ctx, StartSessionInput{
		PillarID:      testPillar,
		ConnectorID:   int64Ptr(testConnector),
		DriverID:      driverID,
		VehicleID:     driverVehicle,
		TargetSoc:     float64Ptr(0.8),
		PaymentMethod: models.MethodLedger,
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, models.ConnectorAvailable, f.connectorStatus(t, testConnector))

	sessions, err := f.sessions.ListMine(f.ctx, driverID, 10)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestStartSessionValidation(t *testing.T) {
	f := newFixture(t)
	scheduled := f.putReservation(driverID, models.ReservationScheduled)

	cases := []struct {
		name string
		in   StartSessionInput
		want error
	}{
		{"unknown method", StartSessionInput{PillarID: testPillar, ConnectorID: int64Ptr(testConnector), VehicleID: driverVehicle, PaymentMethod: "BARTER"}, ErrValidation},
		{"target out of range", StartSessionInput{PillarID: testPillar, ConnectorID: int64Ptr(testConnector), VehicleID: driverVehicle, TargetSoc: float64Ptr(1.2), PaymentMethod: models.MethodCash}, ErrValidation},
		{"unknown vehicle", StartSessionInput{PillarID: testPillar, ConnectorID: int64Ptr(testConnector), VehicleID: 999, PaymentMethod: models.MethodCash}, ErrValidation},
		{"someone else's vehicle", StartSessionInput{PillarID: testPillar, ConnectorID: int64Ptr(testConnector), VehicleID: otherVehicle, PaymentMethod: models.MethodCash}, ErrForbidden},
		{"unknown pillar", StartSessionInput{PillarID: 999, ConnectorID: int64Ptr(testConnector), VehicleID: driverVehicle, PaymentMethod: models.MethodCash}, ErrValidation},
		{"walk-in without connector", StartSessionInput{PillarID: testPillar, VehicleID: driverVehicle, PaymentMethod: models.MethodCash}, ErrValidation},
		{"connector on another pillar", StartSessionInput{PillarID: testPillar, ConnectorID: int64Ptr(otherConnector), VehicleID: driverVehicle, PaymentMethod: models.MethodCash}, ErrValidation},
		{"reservation not checked in", StartSessionInput{ReservationID: int64Ptr(scheduled.ID), PillarID: testPillar, VehicleID: driverVehicle, PaymentMethod: models.MethodCash}, ErrConflict},
		{"reservation on another pillar", StartSessionInput{ReservationID: int64Ptr(scheduled.ID), PillarID: otherPillar, VehicleID: driverVehicle, PaymentMethod: models.MethodCash}, ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.DriverID = driverID
			_, err := f.sessions.Start(f.ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	require.NoError(t, f.store.Catalog().SetConnectorStatus(f.ctx, testConnector, models.ConnectorOccupied))
	_, err := f.sessions.Start(f.ctx, StartSessionInput{
		PillarID: testPillar, ConnectorID: int64Ptr(testConnector), DriverID: driverID,
		VehicleID: driverVehicle, PaymentMethod: models.MethodCash,
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestStopLedgerSessionSettlesImmediately(t *testing.T) {
	f := newFixture(t)
	f.fund(t, driverID, 130_000)
	session := f.walkIn(t, models.MethodLedger, float64Ptr(0.8))

	_, err := f.sessions.ApplyMeterReading(f.ctx, session.ID, 25.5)
	require.NoError(t, err)

	result, err := f.sessions.Stop(f.ctx, driverID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(89_250), result.TotalAmount)
	assert.Equal(t, models.MethodLedger, result.PaymentMethod)
	assert.False(t, result.RequiresPayment)
	require.NotNil(t, result.PaymentID)

	assert.Equal(t, int64(130_000-89_250), f.balance(t, driverID))
	assert.Equal(t, models.ConnectorAvailable, f.connectorStatus(t, testConnector))

	stored, err := f.store.Sessions().Get(f.ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, stored.Status)
	assert.True(t, stored.Paid)
	require.NotNil(t, stored.EndTime)

	vehicle, err := f.store.Catalog().GetVehicle(f.ctx, driverVehicle)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, vehicle.CurrentSoc, 1e-9)

	_, err = f.sessions.Stop(f.ctx, driverID, session.ID)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.sessions.ApplyMeterReading(f.ctx, session.ID, 30)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestStopLedgerSessionWithShortfallRequiresPayment(t *testing.T) {
	f := newFixture(t)
	f.fund(t, driverID, 130_000)
	session := f.walkIn(t, models.MethodLedger, float64Ptr(0.8))

	_, err := f.sessions.ApplyMeterReading(f.ctx, session.ID, 40)
	require.NoError(t, err)

	result, err := f.sessions.Stop(f.ctx, driverID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(140_000), result.TotalAmount)
	assert.True(t, result.RequiresPayment)
	assert.Nil(t, result.PaymentID)
	assert.Equal(t, int64(130_000), f.balance(t, driverID))

	stored, err := f.store.Sessions().Get(f.ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, stored.Status)
	assert.False(t, stored.Paid)

	vehicle, err := f.store.Catalog().GetVehicle(f.ctx, driverVehicle)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, vehicle.CurrentSoc, 1e-9)
}

func TestReservedSessionCompletesAfterCashConfirmation(t *testing.T) {
	f := newFixture(t)
	res := f.putReservation(driverID, models.ReservationVerified)

	session, err := f.sessions.Start(f.ctx, StartSessionInput{
		ReservationID: int64Ptr(res.ID),
		PillarID:      testPillar,
		DriverID:      driverID,
		VehicleID:     driverVehicle,
		PaymentMethod: models.MethodCash,
	})
	require.NoError(t, err)
	assert.Equal(t, testConnector, session.ConnectorID)
	assert.Equal(t, models.ReservationCharging, f.reservation(t, res.ID).Status)

	_, err = f.sessions.ApplyMeterReading(f.ctx, session.ID, 2)
	require.NoError(t, err)

	_, err = f.sessions.Stop(f.ctx, otherDriverID, session.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	result, err := f.sessions.Stop(f.ctx, driverID, session.ID)
	require.NoError(t, err)
	assert.True(t, result.RequiresPayment)
	require.NotNil(t, result.PaymentID)
	assert.Equal(t, models.ReservationPlugged, f.reservation(t, res.ID).Status)
	assert.Equal(t, 1, f.notifier.count(models.NotifyCashPaymentPending))

	_, err = f.payments.ConfirmCash(f.ctx, 77, *result.PaymentID)
	require.NoError(t, err)

	stored, err := f.store.Sessions().Get(f.ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, stored.Paid)
	assert.Equal(t, models.ReservationCompleted, f.reservation(t, res.ID).Status)
	assert.Equal(t, 1, f.notifier.count(models.NotifySessionPaid))
}

func TestZeroChargeStopSkipsSettlement(t *testing.T) {
	f := newFixture(t)
	session := f.walkIn(t, models.MethodGateway, nil)

	result, err := f.sessions.Stop(f.ctx, driverID, session.ID)
	require.NoError(t, err)
	assert.Zero(t, result.TotalAmount)
	assert.False(t, result.RequiresPayment)
	assert.Nil(t, result.PaymentID)
	assert.Zero(t, f.store.Payments().Count())
}

func TestGetSessionChecksOwner(t *testing.T) {
	f := newFixture(t)
	session := f.walkIn(t, models.MethodCash, nil)

	got, err := f.sessions.Get(f.ctx, driverID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	_, err = f.sessions.Get(f.ctx, otherDriverID, session.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.sessions.Get(f.ctx, driverID, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}
