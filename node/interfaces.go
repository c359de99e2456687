package node

// ADC samples the battery voltage. Codes are 10 bit (0..1023).
type ADC interface {
	// Select routes the given input channel to the converter.
	Select(channel uint8) error
	// Power switches the converter on or off.
	Power(on bool) error
	// Start begins a conversion on the selected channel.
	Start() error
	// Read waits for the conversion to finish and returns the code.
	Read() (uint16, error)
}

// Console is the optional debug link to a host computer.
type Console interface {
	Init() error
	// Service handles pending console traffic. It must not block.
	Service()
	// HostAttached reports whether a host is listening. While it is, the node
	// stays awake to keep the console responsive.
	HostAttached() bool
	// Print writes s on a best effort basis.
	Print(s string)
}

// Radio is the transmit side of the radio link.
type Radio interface {
	PowerUp() error
	PowerDown() error
	Transmit(p []byte) error
}

// Watchdog resets the system unless it is fed in time.
type Watchdog interface {
	Feed()
}

// IdentityStore gives access to the persisted sensor identity: the id and
// its check byte.
type IdentityStore interface {
	ReadIdentity() (id, check byte, err error)
}

type nopConsole struct{}

func (nopConsole) Init() error        { return nil }
func (nopConsole) Service()           {}
func (nopConsole) HostAttached() bool { return false }
func (nopConsole) Print(string)       {}

type nopWatchdog struct{}

func (nopWatchdog) Feed() {}
