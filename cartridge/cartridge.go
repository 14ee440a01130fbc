package cartridge

import (
	"encoding/binary"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// blockSize is the aligned window size cached from the cartridge file.
const blockSize = 0x800 // 2 KiB

// cartIDTable maps a ROM-size bucket (128MB << idx) to the high byte of
// cartId1, per cartridge.cpp's "ids" table.
var cartIDTable = [6]uint32{0x7F, 0xFF, 0xFE, 0xFA, 0xF8, 0xF0}

// Cartridge is a single cartridge session: ROM backing store, save
// store, and the three protocol engines that drive it. A zero value
// with no path opened represents "no cartridge inserted" — every MMIO
// entry point still works, just with no data behind it.
type Cartridge struct {
	scheduler  Scheduler
	interrupts InterruptController
	dma        DMAController
	settings   Settings

	file *os.File
	size uint64

	cartID1 uint32
	cartID2 uint32

	block     [blockSize]byte
	base      uint64
	blockLoad bool // true once a block has ever been cached

	ctrMode bool

	save *saveStore

	cfg9CardPower uint16

	ntr ntrEngine
	ctr ctrEngine
	spi spiEngine
}

// New opens cartPath (if non-empty) and derives its chip IDs and save
// store. An empty or unopenable path yields a Cartridge with no file,
// not an error: every register access still behaves per spec, just
// with cart reads returning 0xFFFFFFFF.
func New(cartPath string, settings Settings, scheduler Scheduler, interrupts InterruptController, dma DMAController, aes AESEngine) *Cartridge {
	cart := &Cartridge{
		scheduler:  scheduler,
		interrupts: interrupts,
		dma:        dma,
		settings:   settings,
	}
	cart.ntr.cart = cart
	cart.ctr.cart = cart
	cart.spi.cart = cart

	if cartPath == "" {
		return cart
	}
	file, err := os.Open(cartPath)
	if err != nil {
		return cart
	}
	cart.file = file

	if settings.CartAutoBoot && aes != nil {
		aes.AutoBoot()
	}
	cart.cfg9CardPower &^= 1 // inserted

	info, err := file.Stat()
	if err != nil {
		file.Close()
		cart.file = nil
		return cart
	}
	cart.size = uint64(info.Size())

	idx := 0
	for idx < 5 && (uint64(0x8000000)<<uint(idx)) < cart.size {
		idx++
	}
	cart.cartID1 = 0x900000C2 | (cartIDTable[idx] << 8)

	comp := cart.ReadCart(0x1FC) >> 16
	if comp&1 != 0 {
		cart.cartID2 = (comp >> 1) & 0x3
	}

	mediaType := byte(cart.ReadCart(0x18C) >> 8)
	if mediaType == 2 {
		cart.cartID1 |= 1 << 27
	}
	log.Printf("Cartridge is type %d, and its IDs are 0x%X and 0x%X\n", mediaType, cart.cartID1, cart.cartID2)

	savePath := derivedSavePath(cartPath)
	if settings.SavePath != "" {
		savePath = filepath.Join(settings.SavePath, filepath.Base(savePath))
	}

	switch mediaType {
	case 1:
		cart.save = newCard1Save(savePath)
	case 2:
		saveBase := uint64(cart.ReadCart(0x200)) << 9
		cart.save = newCard2Save(savePath, saveBase)
	}

	return cart
}

// Close releases the cart file and save mapping. It does not flush —
// the host must call UpdateSave first.
func (c *Cartridge) Close() {
	if c.file != nil {
		c.file.Close()
		c.file = nil
	}
	if c.save != nil {
		c.save.close()
	}
}

// UpdateSave flushes dirty save data to disk. Call periodically, e.g.
// at end of frame.
func (c *Cartridge) UpdateSave() {
	if c.save != nil {
		c.save.flush()
	}
}

// ReadCart returns the 32-bit little-endian word at byteAddr, honoring
// the CARD2 save overlay and the 2KiB block cache.
func (c *Cartridge) ReadCart(byteAddr uint32) uint32 {
	addr := uint64(byteAddr)
	if addr >= c.size {
		return 0xFFFFFFFF
	}

	if c.save != nil && c.save.card2 {
		if base := c.save.base; addr >= base && addr < base+uint64(len(c.save.data)) {
			return c.save.readWord(uint32(addr - base))
		}
	}

	if !c.blockLoad || ((addr ^ c.base) >> 11) != 0 {
		c.base = addr &^ 0x7FF
		if _, err := c.file.Seek(int64(c.base), 0); err == nil {
			n, _ := c.file.Read(c.block[:])
			for i := n; i < len(c.block); i++ {
				c.block[i] = 0
			}
		}
		c.blockLoad = true
	}

	off := uint32(addr-c.base) &^ 0x3
	return binary.LittleEndian.Uint32(c.block[off : off+4])
}

// WriteCfg9CardPower writes the CFG9_CARD_POWER state bits (2..3
// writable). Writing both to 1 auto-clears them to 0.
func (c *Cartridge) WriteCfg9CardPower(mask, value uint16) {
	mask &= 0xC
	c.cfg9CardPower = (c.cfg9CardPower &^ mask) | (value & mask)
	if c.cfg9CardPower&0xC == 0xC {
		c.cfg9CardPower &^= 0xC
	}
}

// ReadCfg9CardPower reads the CFG9_CARD_POWER register.
func (c *Cartridge) ReadCfg9CardPower() uint16 {
	return c.cfg9CardPower
}

// Present reports whether a cartridge file is open.
func (c *Cartridge) Present() bool {
	return c.file != nil
}

func derivedSavePath(cartPath string) string {
	if i := strings.LastIndexByte(cartPath, '.'); i >= 0 {
		return cartPath[:i] + ".sav"
	}
	return cartPath + ".sav"
}
