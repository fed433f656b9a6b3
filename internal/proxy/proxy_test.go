package proxy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/bleproxy/internal/backend"
	"github.com/srg/bleproxy/internal/protocol"
	"github.com/srg/bleproxy/internal/testutils"
)

// fakeSubscriber records pushed messages and signals arrivals.
type fakeSubscriber struct {
	messages chan protocol.Message
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{messages: make(chan protocol.Message, 64)}
}

func (s *fakeSubscriber) Push(msg protocol.Message) {
	select {
	case s.messages <- msg:
	default:
	}
}

// waitFor returns the next pushed message of type M, discarding others.
func waitFor[M protocol.Message](t interface {
	Fatalf(format string, args ...interface{})
}, s *fakeSubscriber, timeout time.Duration) M {
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-s.messages:
			if m, ok := msg.(M); ok {
				return m
			}
		case <-deadline:
			var zero M
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

type ProxyTestSuite struct {
	suite.Suite
	backend    *testutils.FakeBackend
	proxy      *Proxy
	subscriber *fakeSubscriber
}

func (suite *ProxyTestSuite) SetupTest() {
	h := testutils.NewTestHelper(suite.T())
	suite.backend = testutils.NewFakeBackend()
	suite.proxy = New(suite.backend, 2, true, h.Logger)
	suite.subscriber = newFakeSubscriber()
}

func (suite *ProxyTestSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = suite.proxy.Shutdown(ctx)
}

func (suite *ProxyTestSuite) subscribeAndWaitForScan() {
	suite.proxy.Subscribe(suite.subscriber)
	suite.Require().Eventually(suite.backend.Scanning, time.Second, 5*time.Millisecond, "scanner MUST start on first subscription")
}

func (suite *ProxyTestSuite) TestScannerLifecycle() {
	// GOAL: Verify the scanner follows the subscriber count
	//
	// TEST SCENARIO: First subscribe starts the scan → second subscribe changes nothing → last unsubscribe stops the scan

	suite.subscribeAndWaitForScan()

	second := newFakeSubscriber()
	suite.proxy.Subscribe(second)
	suite.Assert().Equal(1, suite.backend.ScanCount(), "second subscriber MUST NOT restart the scan")

	suite.proxy.Unsubscribe(second)
	suite.Assert().True(suite.backend.Scanning(), "scan MUST survive while a subscriber remains")

	suite.proxy.Unsubscribe(suite.subscriber)
	suite.Require().Eventually(func() bool { return !suite.backend.Scanning() }, time.Second, 5*time.Millisecond,
		"scan MUST stop when the last subscriber leaves")
}

func (suite *ProxyTestSuite) TestAdvertisementFanOut() {
	// GOAL: Verify scan events reach every subscriber as a batched message in arrival order
	//
	// TEST SCENARIO: Subscribe two clients → emit a full batch of advertisements → both receive one 16-entry batch

	suite.subscribeAndWaitForScan()
	second := newFakeSubscriber()
	suite.proxy.Subscribe(second)

	for i := 0; i < FlushBatchSize; i++ {
		suite.backend.EmitAdvertisement(backend.ScanEvent{
			Address: backend.FormatMAC(uint64(i + 1)),
			RSSI:    -40 - i,
		})
	}

	for _, sub := range []*fakeSubscriber{suite.subscriber, second} {
		batch := waitFor[*protocol.BluetoothLERawAdvertisementsResponse](suite.T(), sub, time.Second)
		suite.Require().Len(batch.Advertisements, FlushBatchSize)
		for i, adv := range batch.Advertisements {
			suite.Assert().Equal(uint64(i+1), adv.Address, "batch MUST preserve arrival order")
		}
	}
}

func (suite *ProxyTestSuite) TestScannerStateMessage() {
	// GOAL: Verify the scanner state snapshot reflects the running scan

	suite.subscribeAndWaitForScan()

	suite.Require().Eventually(func() bool {
		return suite.proxy.ScannerStateMessage().State == protocol.ScannerStateRunning
	}, time.Second, 5*time.Millisecond)
	suite.Assert().Equal(protocol.ScannerModeActive, suite.proxy.ScannerStateMessage().Mode)
}

func (suite *ProxyTestSuite) TestConnectDevice() {
	// GOAL: Verify a successful connect claims a slot and pushes the outcome
	//
	// TEST SCENARIO: Register a peripheral → connect → connected=true push with negotiated MTU

	peripheral := testutils.NewFakePeripheral("00:11:22:33:44:55")
	suite.backend.AddPeripheral(peripheral)
	suite.proxy.Subscribe(suite.subscriber)

	err := suite.proxy.ConnectDevice(0x001122334455, 0)
	suite.Require().NoError(err)

	resp := waitFor[*protocol.BluetoothDeviceConnectionResponse](suite.T(), suite.subscriber, time.Second)
	suite.Assert().Equal(uint64(0x001122334455), resp.Address)
	suite.Assert().True(resp.Connected, "outcome push MUST report connected")
	suite.Assert().Equal(uint32(247), resp.MTU)

	suite.Assert().Equal(1, suite.proxy.StatsSnapshot().ActiveSlots)
}

func (suite *ProxyTestSuite) TestConnectDevice_DuplicateAddress() {
	// GOAL: Verify a second connect for an address already in the index is rejected

	peripheral := testutils.NewFakePeripheral("00:11:22:33:44:55")
	suite.backend.AddPeripheral(peripheral)
	suite.proxy.Subscribe(suite.subscriber)

	suite.Require().NoError(suite.proxy.ConnectDevice(0x001122334455, 0))
	waitFor[*protocol.BluetoothDeviceConnectionResponse](suite.T(), suite.subscriber, time.Second)

	err := suite.proxy.ConnectDevice(0x001122334455, 0)
	suite.Assert().ErrorIs(err, ErrAlreadyConnected)
}

func (suite *ProxyTestSuite) TestConnectDevice_SlotExhaustion() {
	// GOAL: Verify the pool rejects connects beyond its size
	//
	// TEST SCENARIO: Fill both slots → third connect fails with ErrNoFreeSlot

	for i, mac := range []string{"00:00:00:00:00:01", "00:00:00:00:00:02"} {
		suite.backend.AddPeripheral(testutils.NewFakePeripheral(mac))
		suite.Require().NoError(suite.proxy.ConnectDevice(uint64(i+1), 0))
	}
	suite.proxy.Subscribe(suite.subscriber)

	suite.Require().Eventually(func() bool {
		return suite.proxy.StatsSnapshot().ActiveSlots == 2
	}, time.Second, 5*time.Millisecond)

	err := suite.proxy.ConnectDevice(3, 0)
	suite.Assert().ErrorIs(err, ErrNoFreeSlot)
}

func (suite *ProxyTestSuite) TestConnectDevice_BackendFailure() {
	// GOAL: Verify a failed backend connect frees the slot and pushes error=1

	suite.proxy.Subscribe(suite.subscriber)

	// No peripheral registered: the fake backend times out
	suite.Require().NoError(suite.proxy.ConnectDevice(0xDEAD, 0))

	resp := waitFor[*protocol.BluetoothDeviceConnectionResponse](suite.T(), suite.subscriber, time.Second)
	suite.Assert().False(resp.Connected)
	suite.Assert().Equal(int32(1), resp.Error)
	suite.Assert().Zero(suite.proxy.StatsSnapshot().ActiveSlots, "failed connect MUST free the slot")
}

func (suite *ProxyTestSuite) TestConnectDevice_Disabled() {
	h := testutils.NewTestHelper(suite.T())
	passive := New(suite.backend, 1, false, h.Logger)

	err := passive.ConnectDevice(1, 0)
	suite.Assert().ErrorIs(err, ErrConnectionsDisabled)
}

func (suite *ProxyTestSuite) TestDisconnectDevice() {
	// GOAL: Verify disconnect tears down the slot and pushes connected=false
	//
	// TEST SCENARIO: Connect → disconnect → push arrives → slot is free again

	peripheral := testutils.NewFakePeripheral("00:11:22:33:44:55")
	suite.backend.AddPeripheral(peripheral)
	suite.proxy.Subscribe(suite.subscriber)

	suite.Require().NoError(suite.proxy.ConnectDevice(0x001122334455, 0))
	waitFor[*protocol.BluetoothDeviceConnectionResponse](suite.T(), suite.subscriber, time.Second)

	suite.Require().NoError(suite.proxy.DisconnectDevice(0x001122334455))

	resp := waitFor[*protocol.BluetoothDeviceConnectionResponse](suite.T(), suite.subscriber, time.Second)
	suite.Assert().False(resp.Connected)

	suite.Require().Eventually(func() bool {
		return suite.proxy.StatsSnapshot().ActiveSlots == 0
	}, time.Second, 5*time.Millisecond)
}

func (suite *ProxyTestSuite) TestDisconnectDevice_WhileConnecting() {
	// GOAL: Verify disconnecting a device mid-dial cancels the attempt and
	// never attaches the late result to a slot serving another device
	//
	// TEST SCENARIO: Park a dial on a one-slot pool → disconnect → slot frees →
	// connect a second device → the only outcome push belongs to the second one

	h := testutils.NewTestHelper(suite.T())
	gated := testutils.NewFakeBackend()
	gated.ConnectGate = make(chan struct{})
	gated.AddPeripheral(testutils.NewFakePeripheral("00:00:00:00:00:0A"))
	gated.AddPeripheral(testutils.NewFakePeripheral("00:00:00:00:00:0B"))

	p := New(gated, 1, true, h.Logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	}()

	sub := newFakeSubscriber()
	p.Subscribe(sub)

	suite.Require().NoError(p.ConnectDevice(0x0A, 0))
	suite.Require().NoError(p.DisconnectDevice(0x0A))

	ack := waitFor[*protocol.BluetoothDeviceConnectionResponse](suite.T(), sub, time.Second)
	suite.Require().Equal(uint64(0x0A), ack.Address)
	suite.Require().False(ack.Connected)

	suite.Require().Eventually(func() bool {
		return p.StatsSnapshot().ActiveSlots == 0
	}, time.Second, 5*time.Millisecond, "cancelled dial MUST free the slot")

	close(gated.ConnectGate)
	suite.Require().NoError(p.ConnectDevice(0x0B, 0))

	resp := waitFor[*protocol.BluetoothDeviceConnectionResponse](suite.T(), sub, time.Second)
	suite.Assert().Equal(uint64(0x0B), resp.Address, "the abandoned dial MUST NOT push an outcome")
	suite.Assert().True(resp.Connected)
	suite.Assert().Equal(1, p.StatsSnapshot().ActiveSlots)
}

func (suite *ProxyTestSuite) TestDisconnectDevice_UnknownAddress() {
	// GOAL: Verify disconnecting an unknown address is acknowledged, not an error

	suite.proxy.Subscribe(suite.subscriber)

	suite.Require().NoError(suite.proxy.DisconnectDevice(0xBEEF))

	resp := waitFor[*protocol.BluetoothDeviceConnectionResponse](suite.T(), suite.subscriber, time.Second)
	suite.Assert().Equal(uint64(0xBEEF), resp.Address)
	suite.Assert().False(resp.Connected)
}

func (suite *ProxyTestSuite) TestPeripheralInitiatedDisconnect() {
	// GOAL: Verify a link dropped by the peripheral releases the slot and notifies clients

	peripheral := testutils.NewFakePeripheral("00:11:22:33:44:55")
	suite.backend.AddPeripheral(peripheral)
	suite.proxy.Subscribe(suite.subscriber)

	suite.Require().NoError(suite.proxy.ConnectDevice(0x001122334455, 0))
	waitFor[*protocol.BluetoothDeviceConnectionResponse](suite.T(), suite.subscriber, time.Second)

	peripheral.DropAllConnections()

	resp := waitFor[*protocol.BluetoothDeviceConnectionResponse](suite.T(), suite.subscriber, time.Second)
	suite.Assert().False(resp.Connected)
	suite.Require().Eventually(func() bool {
		return suite.proxy.StatsSnapshot().ActiveSlots == 0
	}, time.Second, 5*time.Millisecond)
}

func TestProxyTestSuite(t *testing.T) {
	suite.Run(t, new(ProxyTestSuite))
}
