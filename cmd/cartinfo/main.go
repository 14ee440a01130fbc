// Command cartinfo opens a cartridge image, prints its derived chip
// IDs and media type, and drives a minimal NTRCARD chip-ID exchange to
// demonstrate the subsystem end to end, standing in for the CPU,
// scheduler, and interrupt/DMA controllers a full emulator core would
// otherwise supply.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/jonian/libretro-3beans/cartridge"
)

// stubScheduler runs a callback immediately instead of posting it to a
// real discrete-event scheduler; good enough to drive the cartridge
// through a transfer from the command line.
type stubScheduler struct {
	cart *cartridge.Cartridge
}

func (s *stubScheduler) Schedule(kind cartridge.EventKind, ticks uint64) {
	switch kind {
	case cartridge.NTRWordReady:
		s.cart.NtrWordReady()
	case cartridge.CTRWordReady:
		s.cart.CtrWordReady()
	}
}

type stubInterrupts struct{}

func (stubInterrupts) SendInterrupt(cpu cartridge.CPU, vector uint32) {
	log.Printf("interrupt: cpu=%d vector=0x%X\n", cpu, vector)
}

type stubDMA struct{}

func (stubDMA) SetDRQ(line cartridge.DMALine)   { log.Printf("DRQ set: 0x%X\n", line) }
func (stubDMA) ClearDRQ(line cartridge.DMALine) { log.Printf("DRQ clear: 0x%X\n", line) }

type stubAES struct{}

func (stubAES) AutoBoot() { log.Println("AES auto-boot") }

func main() {
	autoBoot := flag.Bool("auto-boot", false, "trigger the AES auto-boot hook at insertion")
	saveDir := flag.String("save-dir", "", "relocate the save file basename under this directory")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatalln("usage: cartinfo <cart-path>")
	}
	cartPath := flag.Arg(0)
	if _, err := os.Stat(cartPath); err != nil {
		log.Fatalf("cartridge file not found: %v\n", err)
	}

	sched := &stubScheduler{}
	settings := cartridge.Settings{CartAutoBoot: *autoBoot, SavePath: *saveDir}
	cart := cartridge.New(cartPath, settings, sched, stubInterrupts{}, stubDMA{}, stubAES{})
	sched.cart = cart
	defer cart.Close()

	if !cart.Present() {
		log.Println("no cartridge inserted")
		return
	}

	// NTRCARD chip-ID 1 request: opcode 0x90 in NTR_CMD's first byte,
	// 4-byte reply (ROMCNT size field 7).
	cart.WriteNtrCmd(0, 0xFFFFFFFF, 0x90)
	cart.WriteNtrCmd(1, 0xFFFFFFFF, 0)
	cart.WriteNtrRomcnt(0xFFFFFFFF, 0x87000000)
	id1 := cart.ReadNtrData()
	log.Printf("chip ID 1: 0x%08X\n", id1)

	cart.UpdateSave()
}
