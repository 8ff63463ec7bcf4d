package taker

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/citadel-tech/coinswap-go/swapwire"
)

const (
	dialProtocolMinVersion uint32 = 1
	dialProtocolMaxVersion uint32 = 1
)

// Dialer implements offerbook.OfferFetcher and also opens the long-lived
// per-hop connections the orchestrator drives through the Maker Connection
// FSM (spec §4.2 Handshake, §4.3).
type Dialer struct {
	MessageTimeout time.Duration
}

// connect dials host, completes the MakerHello/TakerHello handshake, and
// returns the live connection ready for the first FSM message.
func (d *Dialer) connect(ctx context.Context, host string) (net.Conn, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, fmt.Errorf("taker: dial %s: %w", host, err)
	}

	conn.SetReadDeadline(time.Now().Add(d.MessageTimeout))
	msg, err := swapwire.ReadMessage(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("taker: read MakerHello from %s: %w", host, err)
	}
	makerHello, ok := msg.(*swapwire.MakerHello)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("taker: expected MakerHello from %s, got %s", host, msg.MsgType())
	}
	if !swapwire.VersionRangesOverlap(
		dialProtocolMinVersion, dialProtocolMaxVersion,
		makerHello.MinVersion, makerHello.MaxVersion) {
		conn.Close()
		return nil, fmt.Errorf("taker: no overlapping protocol version with %s", host)
	}

	conn.SetWriteDeadline(time.Now().Add(d.MessageTimeout))
	hello := &swapwire.TakerHello{MinVersion: dialProtocolMinVersion, MaxVersion: dialProtocolMaxVersion}
	if err := swapwire.WriteMessage(conn, hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("taker: send TakerHello to %s: %w", host, err)
	}

	return conn, nil
}

// FetchOffer implements offerbook.OfferFetcher: dial, handshake,
// ReqGiveOffer, read RespOffer, disconnect.
func (d *Dialer) FetchOffer(ctx context.Context, host string) (swapwire.Offer, error) {
	conn, err := d.connect(ctx, host)
	if err != nil {
		return swapwire.Offer{}, err
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(d.MessageTimeout))
	if err := swapwire.WriteMessage(conn, &swapwire.ReqGiveOffer{}); err != nil {
		return swapwire.Offer{}, fmt.Errorf("taker: send ReqGiveOffer to %s: %w", host, err)
	}

	conn.SetReadDeadline(time.Now().Add(d.MessageTimeout))
	msg, err := swapwire.ReadMessage(conn)
	if err != nil {
		return swapwire.Offer{}, fmt.Errorf("taker: read RespOffer from %s: %w", host, err)
	}
	resp, ok := msg.(*swapwire.RespOffer)
	if !ok {
		return swapwire.Offer{}, fmt.Errorf("taker: expected RespOffer from %s, got %s", host, msg.MsgType())
	}

	return resp.Offer, nil
}

func (d *Dialer) writeMessage(conn net.Conn, msg swapwire.Message) error {
	conn.SetWriteDeadline(time.Now().Add(d.MessageTimeout))
	return swapwire.WriteMessage(conn, msg)
}

func (d *Dialer) readMessage(conn net.Conn) (swapwire.Message, error) {
	conn.SetReadDeadline(time.Now().Add(d.MessageTimeout))
	return swapwire.ReadMessage(conn)
}
