package membership

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/CamiloWG/adhocfabric/internal/logging"
	"github.com/CamiloWG/adhocfabric/internal/wire"
)

// Announcer owns the discovery-channel UDP socket, serializing the local
// PeerRecord into a DiscoveryPayload and broadcasting it on a fixed
// interval, and separately listening for inbound announcements to ingest.
type Announcer struct {
	registry *Registry
	cfg      Config
	conn     *net.UDPConn
	log      *zap.SugaredLogger
}

// NewAnnouncer binds the single discovery UDP socket used for both
// broadcast and listen.
func NewAnnouncer(registry *Registry, cfg Config) (*Announcer, error) {
	addr := &net.UDPAddr{Port: cfg.DiscoveryPort}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("membership: bind discovery socket: %w", err)
	}
	return &Announcer{registry: registry, cfg: cfg, conn: conn, log: logging.Named("announcer")}, nil
}

// Close releases the discovery socket.
func (a *Announcer) Close() error {
	return a.conn.Close()
}

// Announce serializes the local PeerRecord and sends it to every address in
// BroadcastAddresses. No broadcast address is added implicitly: the subnet
// broadcast is reached only when it is in that list (as in the default).
func (a *Announcer) Announce() error {
	cpu, mem := sampleHostLoad()
	a.registry.RefreshLocal(cpu, mem, time.Now())

	local, ok := a.registry.Get(a.registry.LocalID())
	if !ok {
		return fmt.Errorf("membership: local peer record missing")
	}

	payload := &wire.DiscoveryPayload{
		NodeID:         local.NodeID,
		HostName:       local.HostName,
		AddressText:    local.Address,
		DataPort:       local.DataPort,
		CPULoad:        float32(local.CPULoad),
		MemoryUsage:    float32(local.MemoryUsage),
		Reputation:     float32(local.Reputation),
		TasksCompleted: uint32(local.TasksCompleted),
		TasksFailed:    uint32(local.TasksFailed),
		Status:         local.Status,
	}
	msg, err := wire.NewMessage(wire.Discovery, local.NodeID, time.Now().Unix(), payload.Encode())
	if err != nil {
		return err
	}
	raw, err := msg.Encode()
	if err != nil {
		return err
	}

	var lastErr error
	for _, addr := range a.cfg.BroadcastAddresses {
		dst := &net.UDPAddr{IP: net.ParseIP(addr), Port: a.cfg.DiscoveryPort}
		if _, err := a.conn.WriteToUDP(raw, dst); err != nil {
			// Transient transport error: logged and swallowed, the next
			// interval retries.
			a.log.Warnw("announce failed", "addr", addr, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// RunAnnounceLoop sleeps BroadcastInterval between announcements until ctx
// is cancelled.
func (a *Announcer) RunAnnounceLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.BroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.Announce(); err != nil {
				a.log.Debugw("announce cycle had errors", "error", err)
			}
		}
	}
}

// RunListenLoop reads inbound discovery datagrams and ingests them until ctx
// is cancelled. A short read deadline gives it a 10ms-scale polling idle so
// cancellation is observed promptly.
func (a *Announcer) RunListenLoop(ctx context.Context) error {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_ = a.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
		n, addr, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				a.log.Debugw("discovery read error", "error", err)
				continue
			}
		}

		msg, err := wire.DecodeMessage(buf[:n])
		if err != nil {
			a.log.Debugw("discovery message decode failed", "error", err)
			continue
		}
		if msg.Type == wire.NodeFailure {
			// A failure report from another node is a hint only; the reaper's
			// own timeout is what actually marks a peer failed.
			a.log.Debugw("peer failure hint received", "reporter", msg.SenderID)
			continue
		}
		if msg.Type != wire.Discovery && msg.Type != wire.Heartbeat {
			continue
		}
		payload, err := wire.DecodeDiscoveryPayload(msg.Payload)
		if err != nil {
			a.log.Debugw("discovery payload decode failed", "error", err)
			continue
		}
		if err := a.registry.Ingest(payload, addr.IP.String(), time.Now()); err != nil {
			a.log.Debugw("discovery ingest rejected", "error", err)
		}
	}
}
