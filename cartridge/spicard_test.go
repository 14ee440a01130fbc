package cartridge

import "testing"

func newSpiHarness(t *testing.T) *testHarness {
	t.Helper()
	h := newHarness(t, "")
	dir := t.TempDir()
	h.cart.save = newCard1Save(dir + "/game.sav")
	return h
}

// driveSpiBurst feeds bytes through spiTransfer as one logical burst,
// the way a real CARD1-SPI burst clocks a command followed by its
// address/data bytes, and returns the bytes the device replied with.
func driveSpiBurst(c *Cartridge, count uint32, out []byte) []byte {
	c.spi.count = count
	c.spi.fifoSelect = 1
	c.spi.total = 0 // a fresh chip-select cycle starts the byte count over
	in := make([]byte, len(out))
	for i, b := range out {
		in[i] = c.spiTransfer(b)
	}
	return in
}

func TestSpiWriteEnableDisableStatus(t *testing.T) {
	h := newSpiHarness(t)
	c := h.cart

	driveSpiBurst(c, 1, []byte{0x06}) // write-enable
	if c.spi.status&spiStatusWriteBit == 0 {
		t.Fatalf("expected write-enable bit set after command 0x06")
	}

	got := driveSpiBurst(c, 2, []byte{0x05, 0})
	if got[1]&spiStatusWriteBit == 0 {
		t.Fatalf("read-status reply should report write-enable bit set")
	}

	driveSpiBurst(c, 1, []byte{0x04}) // write-disable
	if c.spi.status&spiStatusWriteBit != 0 {
		t.Fatalf("expected write-enable bit cleared after command 0x04")
	}
}

func TestSpiPageProgramRequiresWriteEnable(t *testing.T) {
	h := newSpiHarness(t)
	c := h.cart

	// Page program without a prior write-enable must not touch the save.
	driveSpiBurst(c, 5, []byte{0x02, 0, 0, 0x10, 0xAB})
	if c.save.readByte(0x10) == 0xAB {
		t.Fatalf("page program should be ignored without write-enable")
	}
}

func TestSpiPageProgramThenReadBack(t *testing.T) {
	h := newSpiHarness(t)
	c := h.cart

	driveSpiBurst(c, 1, []byte{0x06}) // write-enable
	// 0x02 page program: command, 3 address bytes (big-endian, ->0x000010), then data.
	driveSpiBurst(c, 6, []byte{0x02, 0, 0, 0x10, 0xAB, 0xCD})

	if got := c.save.readByte(0x10); got != 0xAB {
		t.Fatalf("save byte at 0x10 = 0x%X, want 0xAB", got)
	}
	if got := c.save.readByte(0x11); got != 0xCD {
		t.Fatalf("save byte at 0x11 = 0x%X, want 0xCD", got)
	}

	// 0x03 read data at the same address.
	got := driveSpiBurst(c, 6, []byte{0x03, 0, 0, 0x10, 0, 0})
	if got[4] != 0xAB || got[5] != 0xCD {
		t.Fatalf("read-data reply = %v, want [.., .., .., .., 0xAB, 0xCD]", got)
	}
}

func TestSpiReadIDBytes(t *testing.T) {
	h := newSpiHarness(t)
	c := h.cart
	c.save.id = 0x1234C2

	got := driveSpiBurst(c, 4, []byte{0x9F, 0, 0, 0})
	if got[1] != byte(c.save.id) || got[2] != byte(c.save.id>>8) || got[3] != byte(c.save.id>>16) {
		t.Fatalf("read-ID reply = %v, want id bytes of 0x%X", got, c.save.id)
	}
}

func TestSpiSectorEraseRequiresWriteEnable(t *testing.T) {
	h := newSpiHarness(t)
	c := h.cart
	c.save.writeByte(5, 0x77)

	driveSpiBurst(c, 4, []byte{0x20, 0, 0, 0}) // erase without write-enable
	if got := c.save.readByte(5); got != 0x77 {
		t.Fatalf("erase without write-enable should be a no-op, got 0x%X", got)
	}

	driveSpiBurst(c, 1, []byte{0x06})
	driveSpiBurst(c, 4, []byte{0x20, 0, 0, 0}) // erase sector 0
	if got := c.save.readByte(5); got != 0xFF {
		t.Fatalf("erased byte = 0x%X, want 0xFF", got)
	}
}

func TestSpiUnknownCommandReturnsZero(t *testing.T) {
	h := newSpiHarness(t)
	c := h.cart
	got := driveSpiBurst(c, 2, []byte{0x77, 0})
	if got[1] != 0 {
		t.Fatalf("unknown command reply byte = 0x%X, want 0", got[1])
	}
}

func TestSpiFifoCntStartEdgeReloadsCountAndSelect(t *testing.T) {
	h := newSpiHarness(t)
	c := h.cart
	c.WriteSpiFifoBlklen(0xFFFFFFFF, 4)
	c.WriteSpiFifoCnt(0xFFFFFFFF, spiFifoCntStartBit|spiDirWrite)

	if c.spi.count != 4 {
		t.Fatalf("spi count after start edge = %d, want 4", c.spi.count)
	}
	if c.spi.fifoSelect&1 == 0 {
		t.Fatalf("expected chip select asserted on start edge")
	}
}

func TestSpiFifoSelectDeselectResetsTotal(t *testing.T) {
	h := newSpiHarness(t)
	c := h.cart
	c.spi.total = 3
	c.WriteSpiFifoSelect(0xFFFFFFFF, 0)
	if c.spi.total != 0 {
		t.Fatalf("deselect should reset the byte-total counter, got %d", c.spi.total)
	}
}

func TestSpiFifoDataIgnoresWrongDirection(t *testing.T) {
	h := newSpiHarness(t)
	c := h.cart
	c.WriteSpiFifoBlklen(0xFFFFFFFF, 4)
	c.WriteSpiFifoCnt(0xFFFFFFFF, spiFifoCntStartBit|spiDirRead) // read direction
	before := c.spi.total

	c.WriteSpiFifoData(0xFF, 0x06) // write attempted during a read burst
	if c.spi.total != before {
		t.Fatalf("WriteSpiFifoData during a read burst should not clock any bytes")
	}
}

func TestSpiFifoIntStatRaisedOnBurstCompletion(t *testing.T) {
	h := newSpiHarness(t)
	c := h.cart
	c.WriteSpiFifoIntMask(0xFFFFFFFF, 1)
	c.WriteSpiFifoBlklen(0xFFFFFFFF, 1)
	c.WriteSpiFifoCnt(0xFFFFFFFF, spiFifoCntStartBit|spiDirWrite)
	c.WriteSpiFifoData(0xFF, 0x04) // single-byte burst: write-disable

	if c.ReadSpiFifoIntStat()&1 == 0 {
		t.Fatalf("expected SPI_FIFO_INT_STAT bit 0 set after the burst completed")
	}
	if len(h.irq.calls) == 0 {
		t.Fatalf("expected an interrupt on burst completion")
	}
}
