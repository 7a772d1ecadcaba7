package regs

// Reg is the byte offset of a 32-bit register within the register block.
type Reg uint32

// Size is the number of bytes of the register block covered by this driver.
const Size = 0x20000

// Register offsets, [E1000 13.4].
const (
	CTL  Reg = 0x00000 // device control
	ICR  Reg = 0x000C0 // interrupt cause read
	IMS  Reg = 0x000D0 // interrupt mask set/read
	IMC  Reg = 0x000D8 // interrupt mask clear
	RCTL Reg = 0x00100 // rx control
	TCTL Reg = 0x00400 // tx control
	TIPG Reg = 0x00410 // tx inter-packet gap

	RDBAL Reg = 0x02800 // rx descriptor base address low
	RDBAH Reg = 0x02804 // rx descriptor base address high
	RDLEN Reg = 0x02808 // rx descriptor length
	RDH   Reg = 0x02810 // rx descriptor head
	RDT   Reg = 0x02818 // rx descriptor tail
	RDTR  Reg = 0x02820 // rx delay timer
	RADV  Reg = 0x0282C // rx interrupt absolute delay timer

	TDBAL Reg = 0x03800 // tx descriptor base address low
	TDBAH Reg = 0x03804 // tx descriptor base address high
	TDLEN Reg = 0x03808 // tx descriptor length
	TDH   Reg = 0x03810 // tx descriptor head
	TDT   Reg = 0x03818 // tx descriptor tail

	MTA Reg = 0x05200 // multicast table array, MTAWords words
	RA  Reg = 0x05400 // receive address low, high at RA+4
)

// MTAWords is the number of words in the multicast table (4096 bits).
const MTAWords = 4096 / 32

// Device control.
const (
	CtlSetLinkUp uint32 = 0x00000040
	CtlReset     uint32 = 0x00400000
)

// Transmit control.
const (
	TctlEnable             uint32 = 0x00000002
	TctlPadShortPackets    uint32 = 0x00000008
	TctlCollisionThreshold        = 4  // shift
	TctlCollisionDistance         = 12 // shift
)

// Receive control.
const (
	RctlEnable       uint32 = 0x00000002
	RctlBroadcast    uint32 = 0x00008000
	RctlBufSize2048  uint32 = 0x00000000
	RctlStripCRC     uint32 = 0x04000000
	RctlBufSizeBytes        = 2048
)

// Interrupt causes, shared by ICR, IMS and IMC.
const (
	IntTxDescWritten uint32 = 1 << 0
	IntLinkChange    uint32 = 1 << 2
	IntRxTimer       uint32 = 1 << 7

	// IntAll acknowledges every cause when written to ICR.
	IntAll uint32 = 0xffffffff
)

// RAValid marks the receive address in RA+4 as valid.
const RAValid uint32 = 1 << 31
