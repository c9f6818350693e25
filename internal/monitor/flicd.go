package monitor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// flicd command opcodes.
const (
	flicCmdGetInfo                 byte = 0
	flicCmdCreateConnectionChannel byte = 3
	flicCmdCreateScanWizard        byte = 9
)

// flicd event opcodes.
const (
	flicEvtButtonSingleOrDoubleClickOrHold byte = 7
	flicEvtNewVerifiedButton               byte = 8
	flicEvtGetInfoResponse                 byte = 9
)

// ClickType is the flicd click classification.
type ClickType uint8

// Click types reported by flicd.
const (
	ClickButtonDown ClickType = iota
	ClickButtonUp
	ClickButtonClick
	ClickButtonSingleClick
	ClickButtonDoubleClick
	ClickButtonHold
)

const (
	// flicLatencyNormal is the default connection latency mode.
	flicLatencyNormal byte = 0
	// flicAutoDisconnectNever disables the flicd auto disconnect timer.
	flicAutoDisconnectNever int16 = 511
	// bdAddrLen is the size of a Bluetooth device address.
	bdAddrLen = 6
	// getInfoHeaderLen is the fixed part of GetInfoResponse before the address list.
	getInfoHeaderLen = 15
	// maxPacketLen bounds a flicd frame.
	maxPacketLen = 1 << 15
)

var errShortPacket = errors.New("flicd packet is too short")

// BDAddr is a Bluetooth device address in wire order, least significant byte first.
type BDAddr [bdAddrLen]byte

// String renders the address in the usual colon notation.
func (a BDAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[5], a[4], a[3], a[2], a[1], a[0])
}

// clickEvent is a decoded ButtonSingleOrDoubleClickOrHold event.
type clickEvent struct {
	ConnID    uint32
	ClickType ClickType
	WasQueued bool
	TimeDiff  uint32
}

// flicConn frames flicd packets over a stream. Writes are serialized.
type flicConn struct {
	rw io.ReadWriter

	mu sync.Mutex
}

func newFlicConn(rw io.ReadWriter) *flicConn {
	return &flicConn{rw: rw}
}

// write sends one packet: a little-endian length, the opcode and the payload.
func (c *flicConn) write(opcode byte, payload []byte) error {
	frame := make([]byte, 0, 3+len(payload))
	frame = binary.LittleEndian.AppendUint16(frame, uint16(1+len(payload))) //nolint:gosec // Payloads are tiny.
	frame = append(frame, opcode)
	frame = append(frame, payload...)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.rw.Write(frame); err != nil {
		return fmt.Errorf("write flicd opcode %d: %w", opcode, err)
	}

	return nil
}

// read returns the next non-empty packet.
func (c *flicConn) readPacket() (byte, []byte, error) {
	var header [2]byte

	for {
		if _, err := io.ReadFull(c.rw, header[:]); err != nil {
			return 0, nil, err
		}

		size := int(binary.LittleEndian.Uint16(header[:]))
		if size == 0 {
			continue
		}

		if size > maxPacketLen {
			return 0, nil, fmt.Errorf("flicd packet of %d bytes: %w", size, io.ErrUnexpectedEOF)
		}

		packet := make([]byte, size)
		if _, err := io.ReadFull(c.rw, packet); err != nil {
			return 0, nil, err
		}

		return packet[0], packet[1:], nil
	}
}

func (c *flicConn) getInfo() error {
	return c.write(flicCmdGetInfo, nil)
}

func (c *flicConn) createScanWizard(id uint32) error {
	return c.write(flicCmdCreateScanWizard, binary.LittleEndian.AppendUint32(nil, id))
}

func (c *flicConn) createConnectionChannel(connID uint32, addr BDAddr) error {
	payload := binary.LittleEndian.AppendUint32(nil, connID)
	payload = append(payload, addr[:]...)
	payload = append(payload, flicLatencyNormal)
	payload = binary.LittleEndian.AppendUint16(payload, uint16(flicAutoDisconnectNever))

	return c.write(flicCmdCreateConnectionChannel, payload)
}

// decodeClick parses a ButtonSingleOrDoubleClickOrHold payload.
func decodeClick(payload []byte) (clickEvent, error) {
	const size = 4 + 1 + 1 + 4
	if len(payload) < size {
		return clickEvent{}, errShortPacket
	}

	return clickEvent{
		ConnID:    binary.LittleEndian.Uint32(payload[0:4]),
		ClickType: ClickType(payload[4]),
		WasQueued: payload[5] != 0,
		TimeDiff:  binary.LittleEndian.Uint32(payload[6:10]),
	}, nil
}

// decodeAddr parses a NewVerifiedButton payload.
func decodeAddr(payload []byte) (BDAddr, error) {
	var addr BDAddr

	if len(payload) < bdAddrLen {
		return addr, errShortPacket
	}

	copy(addr[:], payload)

	return addr, nil
}

// decodeVerifiedButtons extracts the verified button list from GetInfoResponse.
func decodeVerifiedButtons(payload []byte) ([]BDAddr, error) {
	if len(payload) < getInfoHeaderLen {
		return nil, errShortPacket
	}

	count := int(binary.LittleEndian.Uint16(payload[13:15]))
	list := payload[getInfoHeaderLen:]

	if len(list) < count*bdAddrLen {
		return nil, errShortPacket
	}

	addrs := make([]BDAddr, count)
	for i := range addrs {
		copy(addrs[i][:], list[i*bdAddrLen:])
	}

	return addrs, nil
}
