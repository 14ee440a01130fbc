package cartridge

// ntrReply selects what ReadNtrData returns once a word becomes ready.
type ntrReply int

const (
	ntrReplyNone ntrReply = iota
	ntrReplyChip1
	ntrReplyChip2
)

// ctrReply selects what CtrWordReady pushes into the CTR FIFO.
type ctrReply int

const (
	ctrReplyNone ctrReply = iota
	ctrReplyChip1
	ctrReplyChip2
	ctrReplyHeader
	ctrReplyRom
	ctrReplyProm
	ctrReplyCard2
)
