package bootloader

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelpernicka/can-sensory/internal/canbus"
	"github.com/pavelpernicka/can-sensory/internal/flash"
	"github.com/pavelpernicka/can-sensory/internal/imagecrc"
)

// startDevice runs a handler's poll loop on its own goroutine so the
// client can speak the full request/response exchange against it.
func startDevice(t *testing.T, cfg Config) (*Client, *flash.Mem) {
	t.Helper()
	host, dev := canbus.NewPipe(64)
	mem := flash.NewMem(flash.DefaultLayout())
	h := NewHandler(dev, mem, mem.Layout(), cfg)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if err := h.Poll(); err != nil {
				return
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()

	t.Cleanup(func() {
		close(done)
		wg.Wait()
		host.Close()
	})

	c := NewClient(host, cfg.DeviceID)
	return c, mem
}

func TestClientPing(t *testing.T) {
	c, _ := startDevice(t, Config{DeviceID: 0x05})
	ctx := context.Background()

	info, err := c.Ping(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x05), info.DeviceID)
	assert.Equal(t, uint8(ProtoVersion), info.Proto)
	assert.False(t, info.Staying)

	info, err = c.Ping(ctx, true)
	require.NoError(t, err)
	assert.True(t, info.Staying)
}

func TestClientFlashCheckBoot(t *testing.T) {
	c, mem := startDevice(t, Config{DeviceID: 0x05})
	ctx := context.Background()

	info, err := c.Check(ctx)
	require.NoError(t, err)
	assert.False(t, info.Valid)

	img := testImage(1000)
	var lastSent int
	require.NoError(t, c.Flash(ctx, img, func(sent, total int) {
		assert.Equal(t, len(img), total)
		lastSent = sent
	}))
	assert.Equal(t, len(img), lastSent)

	info, err = c.Check(ctx)
	require.NoError(t, err)
	assert.True(t, info.Valid)
	assert.False(t, info.Updating)
	assert.Equal(t, uint32(len(img)), info.Size)
	assert.Equal(t, imagecrc.Checksum(img), info.CRC32)
	assert.Equal(t, uint8(0x05), info.DeviceID)

	require.NoError(t, c.BootApp(ctx))
	code, err := c.BootStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, BootErrNone, code)

	// The image really landed in the application region.
	got := make([]byte, len(img))
	require.NoError(t, mem.Read(mem.Layout().AppStart(), got))
	assert.Equal(t, img, got)
}

func TestClientFlashRejectsOversizeImage(t *testing.T) {
	c, mem := startDevice(t, Config{DeviceID: 0x05})

	img := make([]byte, mem.Layout().AppMaxSize()+1)
	err := c.Flash(context.Background(), img, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start")
}

func TestClientScanI2C(t *testing.T) {
	bridge := &fakeBridge{present: map[uint8]bool{0x1E: true, 0x50: true}}
	c, _ := startDevice(t, Config{DeviceID: 0x05, Bridge: bridge})

	addrs, err := c.ScanI2C(context.Background(), I2CScanFirst, I2CScanLast)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0x1E, 0x50}, addrs)
}

func TestClientTimeoutWithoutDevice(t *testing.T) {
	host, _ := canbus.NewPipe(4)
	c := NewClient(host, 0x05)
	c.Timeout = 20 * time.Millisecond

	_, err := c.Ping(context.Background(), false)
	assert.Error(t, err)
}
