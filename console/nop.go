package console

// Nop is a console with no host behind it.
type Nop struct{}

func (Nop) Init() error        { return nil }
func (Nop) Service()           {}
func (Nop) HostAttached() bool { return false }
func (Nop) Print(string)       {}
