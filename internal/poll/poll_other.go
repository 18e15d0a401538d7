//go:build !linux

package poll

import "time"

// Poller is only implemented on Linux.
type Poller struct{}

func New() (*Poller, error) { return nil, ErrUnsupported }

func (p *Poller) Register(int, Interest) error        { return ErrUnsupported }
func (p *Poller) Modify(int, Interest) error          { return ErrUnsupported }
func (p *Poller) Deregister(int) error                { return ErrUnsupported }
func (p *Poller) Interest(int) (Interest, bool)       { return 0, false }
func (p *Poller) Len() int                            { return 0 }
func (p *Poller) Wait(time.Duration) ([]Event, error) { return nil, ErrUnsupported }
func (p *Poller) Close() error                        { return nil }
