//go:build !tinygo && !cgo

package hal

// Without the window there is nothing to read keys from; the channel
// stays empty.
type hostKeyboard struct {
	ch chan KeyEvent
}

func newHostKeyboard() *hostKeyboard { return &hostKeyboard{ch: make(chan KeyEvent)} }

func (k *hostKeyboard) Events() <-chan KeyEvent { return k.ch }
func (k *hostKeyboard) poll()                   {}
