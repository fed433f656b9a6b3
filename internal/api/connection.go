// Package api implements the native API server: the TCP listener and the
// per-client connection state machine.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/bleproxy/internal/groutine"
	"github.com/srg/bleproxy/internal/protocol"
	"github.com/srg/bleproxy/internal/ringchan"
)

// State is the connection handshake progress.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// readTimeout closes connections that go silent; clients ping well within
// this window.
const readTimeout = 30 * time.Second

// outboundQueueSize bounds the per-client frame queue. A stalled client
// loses its oldest frames rather than back-pressuring the proxy.
const outboundQueueSize = 256

const readBufferSize = 4096

// writeDrainTimeout bounds how long teardown waits for the writer to flush
// queued replies before the socket closes underneath it.
const writeDrainTimeout = 2 * time.Second

// errCloseConnection signals an orderly close from a message handler.
var errCloseConnection = errors.New("close connection")

// Connection is one API client. Request handling is strictly serial: the
// read loop dispatches one frame at a time. Outbound frames pass through a
// single writer goroutine, so direct replies and asynchronous pushes never
// interleave mid-frame.
type Connection struct {
	conn   net.Conn
	server *Server
	logger *logrus.Entry

	state      State
	subscribed bool

	out        *ringchan.RingChannel[[]byte]
	outMu      sync.RWMutex // excludes queueing while the queue closes
	outClosed  bool
	writerDone chan struct{}
	closeOnce  sync.Once
	done       chan struct{}

	unknownTypes uint64
}

func newConnection(conn net.Conn, server *Server) *Connection {
	return &Connection{
		conn:   conn,
		server: server,
		logger: server.logger.WithField("client", conn.RemoteAddr().String()),
		state:      StateConnecting,
		out:        ringchan.NewRingChannel[[]byte](outboundQueueSize),
		writerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Push implements proxy.Subscriber: asynchronous messages are queued for the
// writer without blocking the caller.
func (c *Connection) Push(msg protocol.Message) {
	c.outMu.RLock()
	defer c.outMu.RUnlock()
	if c.outClosed {
		return
	}
	if dropped := c.out.ForceSend(protocol.Frame(msg)); dropped {
		c.logger.Warn("Outbound queue full, dropped oldest frame")
	}
}

// send queues a direct reply. Same path as Push: ordering within the
// connection is queue order.
func (c *Connection) send(msg protocol.Message) {
	c.Push(msg)
}

// serve runs the connection until close. It owns the read loop; the writer
// runs as a sibling goroutine.
func (c *Connection) serve() {
	defer c.teardown()

	groutine.Go(nil, "api-writer-"+c.conn.RemoteAddr().String(), func(context.Context) {
		c.writeLoop()
	})

	buf := make([]byte, 0, readBufferSize)
	chunk := make([]byte, readBufferSize)

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}
		n, err := c.conn.Read(chunk)
		if err != nil {
			if !isClosing(err) {
				c.logger.WithError(err).Debug("Read failed, closing connection")
			}
			return
		}
		buf = append(buf, chunk[:n]...)

		for {
			msgType, payload, consumed, err := protocol.ParseFrame(buf)
			if errors.Is(err, protocol.ErrNeedMore) {
				break
			}
			if err != nil {
				c.logger.WithError(err).Warn("Malformed frame, closing connection")
				return
			}
			buf = buf[consumed:]

			if err := c.dispatch(msgType, payload); err != nil {
				if !errors.Is(err, errCloseConnection) {
					c.logger.WithError(err).Warn("Request handling failed, closing connection")
				}
				return
			}
		}
	}
}

func (c *Connection) writeLoop() {
	defer close(c.writerDone)
	for frame := range c.out.C() {
		if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
			return
		}
		if _, err := c.conn.Write(frame); err != nil {
			if !isClosing(err) {
				c.logger.WithError(err).Debug("Write failed")
			}
			return
		}
	}
}

func (c *Connection) teardown() {
	c.closeOnce.Do(func() {
		if c.subscribed {
			c.server.proxy.Unsubscribe(c)
		}
		c.outMu.Lock()
		c.outClosed = true
		c.out.Close()
		c.outMu.Unlock()

		// Let the writer drain queued replies (the invalid-password
		// response, the disconnect acknowledgement) before the socket
		// goes away.
		select {
		case <-c.writerDone:
		case <-time.After(writeDrainTimeout):
		}
		_ = c.conn.Close()
		close(c.done)
		c.server.forget(c)
		c.logger.WithField("state", c.state.String()).Info("Client disconnected")
	})
}

// dispatch decodes and handles one frame according to the state machine.
func (c *Connection) dispatch(msgType protocol.Type, payload []byte) error {
	msg, err := protocol.Decode(msgType, payload)
	if err != nil {
		return fmt.Errorf("decoding message type %d: %w", msgType, err)
	}
	if msg == nil {
		c.unknownTypes++
		c.logger.WithField("type", uint32(msgType)).Warn("Ignoring unknown message type")
		return nil
	}

	// Hello is only legal as the very first message.
	if _, isHello := msg.(*protocol.HelloRequest); isHello && c.state != StateConnecting {
		return fmt.Errorf("hello received in state %s", c.state)
	}

	switch m := msg.(type) {
	case *protocol.HelloRequest:
		return c.handleHello(m)
	case *protocol.ConnectRequest:
		return c.handleConnect(m)
	case *protocol.DisconnectRequest:
		c.send(&protocol.DisconnectResponse{})
		return errCloseConnection
	case *protocol.DisconnectResponse:
		// Acknowledgement of a server-initiated disconnect
		return errCloseConnection
	case *protocol.PingRequest:
		c.send(&protocol.PingResponse{})
		return nil
	case *protocol.DeviceInfoRequest:
		return c.handleDeviceInfo()
	}

	if c.state != StateAuthenticated {
		return fmt.Errorf("%T requires authentication (state %s)", msg, c.state)
	}

	switch m := msg.(type) {
	case *protocol.ListEntitiesRequest:
		c.send(&protocol.ListEntitiesDoneResponse{})
	case *protocol.SubscribeStatesRequest:
		c.handleSubscribeStates()
	case *protocol.BluetoothDeviceRequest:
		c.handleBluetoothDevice(m)
	case *protocol.BluetoothGATTGetServicesRequest:
		c.send(c.server.proxy.GetServices(context.Background(), m.Address))
	case *protocol.BluetoothGATTReadRequest:
		c.send(c.server.proxy.GATTRead(context.Background(), m.Address, m.Handle))
	case *protocol.BluetoothGATTWriteRequest:
		if resp := c.server.proxy.GATTWrite(context.Background(), m.Address, m.Handle, m.Data, m.Response); resp != nil {
			c.send(resp)
		}
	case *protocol.BluetoothGATTNotifyRequest:
		c.send(c.server.proxy.GATTNotify(context.Background(), m.Address, m.Handle, m.Enable))
	case *protocol.BluetoothGATTReadDescriptorRequest:
		c.send(c.server.proxy.GATTReadDescriptor(context.Background(), m.Address, m.Handle))
	case *protocol.BluetoothGATTWriteDescriptorRequest:
		if resp := c.server.proxy.GATTWriteDescriptor(context.Background(), m.Address, m.Handle, m.Data); resp != nil {
			c.send(resp)
		}
	default:
		// Decoded server-to-client message arriving inbound
		c.unknownTypes++
		c.logger.WithField("type", uint32(msgType)).Warn("Ignoring unexpected message")
	}
	return nil
}

func (c *Connection) handleHello(m *protocol.HelloRequest) error {
	c.logger.WithFields(logrus.Fields{
		"client_info": m.ClientInfo,
		"api_version": fmt.Sprintf("%d.%d", m.APIVersionMajor, m.APIVersionMinor),
	}).Info("Client hello")

	resp := protocol.NewHelloResponse()
	resp.ServerInfo = c.server.serverInfo
	resp.Name = c.server.name
	c.send(resp)

	c.state = StateConnected
	return nil
}

func (c *Connection) handleConnect(m *protocol.ConnectRequest) error {
	switch c.state {
	case StateConnecting:
		return fmt.Errorf("connect before hello")
	case StateAuthenticated:
		// Idempotent re-auth
		c.send(&protocol.ConnectResponse{})
		return nil
	}

	if c.server.password != "" && m.Password != c.server.password {
		c.logger.Warn("Client sent invalid password")
		c.send(&protocol.ConnectResponse{InvalidPassword: true})
		return errCloseConnection
	}

	c.send(&protocol.ConnectResponse{})
	c.state = StateAuthenticated
	c.logger.Info("Client authenticated")
	return nil
}

func (c *Connection) handleDeviceInfo() error {
	switch c.state {
	case StateAuthenticated:
	case StateConnected:
		// Allowed pre-auth only when no password is required
		if c.server.password != "" {
			return fmt.Errorf("device info requires authentication")
		}
	default:
		return fmt.Errorf("device info before hello")
	}

	id, err := c.server.info.Identity(context.Background())
	if err != nil {
		return fmt.Errorf("resolving device identity: %w", err)
	}

	c.send(&protocol.DeviceInfoResponse{
		UsesPassword:               id.UsesPassword,
		Name:                       id.Name,
		MacAddress:                 id.MacAddress,
		EsphomeVersion:             id.EsphomeVersion,
		CompilationTime:            id.CompilationTime,
		Model:                      id.Model,
		Manufacturer:               id.Manufacturer,
		ProjectName:                id.ProjectName,
		ProjectVersion:             id.ProjectVersion,
		FriendlyName:               id.FriendlyName,
		BluetoothProxyFeatureFlags: id.FeatureFlags,
		BluetoothMacAddress:        id.MacAddress,
	})
	return nil
}

func (c *Connection) handleSubscribeStates() {
	if !c.subscribed {
		c.subscribed = true
		c.server.proxy.Subscribe(c)
	}
	// Initial scanner state so the client knows where it stands
	c.send(c.server.proxy.ScannerStateMessage())
}

func (c *Connection) handleBluetoothDevice(m *protocol.BluetoothDeviceRequest) {
	var err error
	switch m.Action {
	case protocol.DeviceRequestConnect:
		err = c.server.proxy.ConnectDevice(m.Address, m.AddressType)
	case protocol.DeviceRequestDisconnect:
		err = c.server.proxy.DisconnectDevice(m.Address)
	default:
		err = fmt.Errorf("unsupported device request action %d", m.Action)
	}

	if err != nil {
		c.logger.WithError(err).WithField("address", m.Address).Warn("Device request failed")
		c.send(&protocol.BluetoothDeviceConnectionResponse{Address: m.Address, Error: 1})
	}
}

// requestDisconnect starts an orderly server-side close: the client is asked
// to disconnect and the connection closes when it acknowledges or the
// deadline passes.
func (c *Connection) requestDisconnect(ctx context.Context) {
	c.send(&protocol.DisconnectRequest{})

	select {
	case <-c.done:
	case <-ctx.Done():
		c.teardown()
	}
}

func isClosing(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
