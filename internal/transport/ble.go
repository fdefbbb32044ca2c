package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"
)

// bleScanTimeout bounds how long BLE.Open waits to find the target device
// by MAC address before giving up on the current attempt.
const bleScanTimeout = 15 * time.Second

// BLE drives a Bluetooth-LE handheld radio with an embedded KISS TNC
// (§4.2). Open scans for a target MAC, connects, discovers the
// vendor-specific GATT service, subscribes to the notify characteristic,
// and resolves the write characteristic; notifications are fed directly
// to the KISS decoder, which tolerates partial frames across MTU-sized
// chunks.
type BLE struct {
	base

	MAC             string
	ServiceUUID     bluetooth.UUID
	NotifyUUID      bluetooth.UUID
	WriteUUID       bluetooth.UUID

	adapter *bluetooth.Adapter
	device  bluetooth.Device
	writeCh bluetooth.DeviceCharacteristic
}

// NewBLE constructs a BLE transport targeting the handheld at mac, using
// the given GATT service/characteristic UUIDs.
func NewBLE(mac string, service, notify, write bluetooth.UUID) *BLE {
	return &BLE{
		MAC:         mac,
		ServiceUUID: service,
		NotifyUUID:  notify,
		WriteUUID:   write,
		adapter:     bluetooth.DefaultAdapter,
	}
}

func (b *BLE) Open(ctx context.Context) error {
	if err := b.adapter.Enable(); err != nil {
		return &ErrFatal{Err: fmt.Errorf("transport: enable bluetooth adapter: %w", err)}
	}
	return b.runWithReconnect(ctx, b.dial)
}

func (b *BLE) dial(ctx context.Context) (pump func(context.Context) error, closeFn func() error, err error) {
	addr, scanErr := b.scanForTarget(ctx)
	if scanErr != nil {
		return nil, nil, fmt.Errorf("transport: ble scan: %w", scanErr)
	}

	device, connErr := b.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if connErr != nil {
		return nil, nil, fmt.Errorf("transport: ble connect %s: %w", b.MAC, connErr)
	}
	b.device = device

	services, svcErr := device.DiscoverServices([]bluetooth.UUID{b.ServiceUUID})
	if svcErr != nil || len(services) == 0 {
		_ = device.Disconnect()
		return nil, nil, fmt.Errorf("transport: ble discover service: %w", svcErr)
	}

	chars, charErr := services[0].DiscoverCharacteristics([]bluetooth.UUID{b.NotifyUUID, b.WriteUUID})
	if charErr != nil {
		_ = device.Disconnect()
		return nil, nil, fmt.Errorf("transport: ble discover characteristics: %w", charErr)
	}

	var notifyCh, writeCh bluetooth.DeviceCharacteristic
	for _, c := range chars {
		switch c.UUID() {
		case b.NotifyUUID:
			notifyCh = c
		case b.WriteUUID:
			writeCh = c
		}
	}
	b.writeCh = writeCh

	if err := notifyCh.EnableNotifications(func(buf []byte) {
		b.deliverBytes(append([]byte(nil), buf...))
	}); err != nil {
		_ = device.Disconnect()
		return nil, nil, fmt.Errorf("transport: ble enable notifications: %w", err)
	}

	pump = func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}
	closeFn = device.Disconnect
	return pump, closeFn, nil
}

func (b *BLE) scanForTarget(ctx context.Context) (bluetooth.Address, error) {
	found := make(chan bluetooth.Address, 1)
	scanCtx, cancel := context.WithTimeout(ctx, bleScanTimeout)
	defer cancel()

	go func() {
		_ = b.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if strings.EqualFold(result.Address.String(), b.MAC) {
				_ = adapter.StopScan()
				found <- result.Address
			}
		})
	}()

	select {
	case addr := <-found:
		return addr, nil
	case <-scanCtx.Done():
		_ = b.adapter.StopScan()
		return bluetooth.Address{}, fmt.Errorf("timed out looking for %s", b.MAC)
	}
}

// Send writes the frame to the write characteristic in fixed 185-byte
// chunks (a common MTU after negotiation). The MTU actually negotiated
// with the device is not queried.
func (b *BLE) Send(frame []byte) error {
	const defaultChunk = 185
	for len(frame) > 0 {
		n := defaultChunk
		if n > len(frame) {
			n = len(frame)
		}
		if _, err := b.writeCh.WriteWithoutResponse(frame[:n]); err != nil {
			return fmt.Errorf("transport: ble write: %w", err)
		}
		frame = frame[n:]
	}
	return nil
}

func (b *BLE) Close() error {
	b.closed.Store(true)
	return b.device.Disconnect()
}
