package cartridge

import (
	"encoding/binary"
	"log"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// card1MaxSize is the largest CARD1 save buffer this subsystem will
// allocate: 8 MiB, 1<<0x17.
const card1MaxSize = 1 << 0x17
const card1DefaultSize = 0x80000  // 512 KiB, no save file present
const card2DefaultSize = 0x100000 // 1 MiB, no save file present

// saveStore owns either a CARD1 (SPI-addressed) or CARD2 (ROM-window
// overlay) save buffer, memory-mapped from the derived .sav path the
// same way chibines/eeprom.go maps its .eeprom file. Exactly one of
// card1/card2 is ever true for a given cartridge.
type saveStore struct {
	path string
	file *os.File
	data mmap.MMap

	card2 bool  // true for CARD2, false for CARD1
	base  uint64 // CARD2 ROM-space window start; 0 for CARD1
	id    uint32 // CARD1 save ID; unused for CARD2

	dirty bool
}

// newCard1Save loads or creates a CARD1 save, sized to the smallest
// power of two that fits the existing file, capped at 8MiB, or 512KiB
// if no file exists yet.
func newCard1Save(path string) *saveStore {
	s := &saveStore{path: path}

	if info, err := os.Stat(path); err == nil {
		size := info.Size()
		sizePow := 0
		for (int64(1) << sizePow) < size && (int64(1)<<sizePow) < card1MaxSize {
			sizePow++
		}
		s.id = (uint32(sizePow) << 16) | 0x22C2
		s.openMapped(1 << sizePow)
		return s
	}

	s.id = 0x1322C2
	s.createMapped(card1DefaultSize)
	return s
}

// newCard2Save loads or creates a CARD2 save, sized verbatim to the
// existing file, or 1MiB if no file exists yet. base is the ROM-space
// offset (from the cartridge header) the save window shadows.
func newCard2Save(path string, base uint64) *saveStore {
	s := &saveStore{path: path, card2: true, base: base}

	if info, err := os.Stat(path); err == nil {
		s.openMapped(int(info.Size()))
		return s
	}

	s.createMapped(card2DefaultSize)
	return s
}

// openMapped maps an existing save file, padding with 0xFF if it is
// smaller than size (CARD1 growing to a power-of-two bucket).
func (s *saveStore) openMapped(size int) {
	file, err := os.OpenFile(s.path, os.O_RDWR, 0644)
	if err != nil {
		log.Printf("Save store: failed to open %s: %v\n", s.path, err)
		s.createMapped(size)
		return
	}

	if info, err := file.Stat(); err == nil && int(info.Size()) < size {
		oldSize := info.Size()
		if err := file.Truncate(int64(size)); err != nil {
			log.Printf("Save store: failed to grow %s: %v\n", s.path, err)
		} else {
			gap := make([]byte, int64(size)-oldSize)
			for i := range gap {
				gap[i] = 0xFF
			}
			if _, err := file.WriteAt(gap, oldSize); err != nil {
				log.Printf("Save store: failed to pad %s: %v\n", s.path, err)
			}
		}
	}

	data, err := mmap.MapRegion(file, size, mmap.RDWR, 0, 0)
	if err != nil {
		log.Printf("Save store: failed to map %s: %v\n", s.path, err)
		file.Close()
		s.createMapped(size)
		return
	}

	s.file = file
	s.data = data
	log.Printf("Save store: loaded %s (%d bytes)\n", s.path, len(data))
}

// createMapped creates a new, 0xFF-filled save file of the given size
// and memory-maps it.
func (s *saveStore) createMapped(size int) {
	file, err := os.Create(s.path)
	if err != nil {
		log.Printf("Save store: failed to create %s: %v\n", s.path, err)
		s.data = blankMMap(size)
		return
	}
	if err := file.Truncate(int64(size)); err != nil {
		log.Printf("Save store: failed to size %s: %v\n", s.path, err)
	}
	if _, err := file.WriteAt([]byte{0xFF}, int64(size)-1); err != nil {
		log.Printf("Save store: failed to seed %s: %v\n", s.path, err)
	}

	data, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		log.Printf("Save store: failed to map %s: %v\n", s.path, err)
		file.Close()
		s.data = blankMMap(size)
		return
	}

	for i := range data {
		data[i] = 0xFF
	}
	s.file = file
	s.data = data
	log.Printf("Save store: created %s (%d bytes)\n", s.path, size)
}

// blankMMap is the fallback when the save file can't be created or
// mapped at all: an in-memory, 0xFF-filled buffer that behaves the
// same as a mapped one except nothing ever reaches disk.
func blankMMap(size int) mmap.MMap {
	buf := make(mmap.MMap, size)
	for i := range buf {
		buf[i] = 0xFF
	}
	return buf
}

func (s *saveStore) size() uint32 {
	return uint32(len(s.data))
}

func (s *saveStore) readByte(addr uint32) byte {
	if addr >= s.size() {
		return 0xFF
	}
	return s.data[addr]
}

func (s *saveStore) writeByte(addr uint32, value byte) {
	if addr >= s.size() {
		return
	}
	s.data[addr] = value
	s.dirty = true
}

func (s *saveStore) readWord(addr uint32) uint32 {
	if addr+4 > s.size() {
		return 0xFFFFFFFF
	}
	return binary.LittleEndian.Uint32(s.data[addr : addr+4])
}

func (s *saveStore) writeWord(addr uint32, value uint32) {
	if addr+4 > s.size() {
		return
	}
	binary.LittleEndian.PutUint32(s.data[addr:addr+4], value)
	s.dirty = true
}

func (s *saveStore) eraseSector(addr uint32) {
	end := addr + 0x1000
	if end > s.size() {
		end = s.size()
	}
	for i := addr; i < end; i++ {
		s.data[i] = 0xFF
	}
	if end > addr {
		s.dirty = true
	}
}

// flush writes the mapped data back to disk if dirty. A real mmap is
// synced to its file with MMap.Flush; if the mapping fell back to an
// in-memory buffer, the file is (re)written in full instead. The dirty
// flag is cleared only when that succeeds.
func (s *saveStore) flush() {
	if !s.dirty {
		return
	}
	if s.file == nil {
		file, err := os.Create(s.path)
		if err != nil {
			return // retry next call
		}
		defer file.Close()
		if _, err := file.Write(s.data); err != nil {
			return
		}
		s.dirty = false
		return
	}
	if err := s.data.Flush(); err != nil {
		return // retry next call
	}
	s.dirty = false
}

func (s *saveStore) close() {
	if s.data != nil {
		s.data.Unmap()
	}
	if s.file != nil {
		s.file.Close()
	}
}
