package kwp1281

import "time"

// KeepaliveInterval is the period between idle ACK exchanges.
const KeepaliveInterval = 4 * time.Second

// startKeepalive launches the background loop. Caller must hold no lock;
// it reads d.transport/d.state itself, each time re-checking
// commandActive before taking d.mu: one mutex, one atomic flag, no
// second lock.
func (d *Driver) startKeepalive() {
	d.keepaliveStop = make(chan struct{})
	d.keepaliveDone = make(chan struct{})
	go d.keepaliveLoop(d.keepaliveStop, d.keepaliveDone)
}

func (d *Driver) stopKeepalive() {
	if d.keepaliveStop == nil {
		return
	}
	close(d.keepaliveStop)
	<-d.keepaliveDone
	d.keepaliveStop = nil
	d.keepaliveDone = nil
}

func (d *Driver) keepaliveLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if d.commandActive.Load() {
				continue
			}
			if !d.keepaliveTick() {
				return
			}
		}
	}
}

// keepaliveTick performs one ACK exchange. Returns false if the session
// was lost and the loop should exit.
func (d *Driver) keepaliveTick() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateReady {
		return false
	}

	req := ackBlock(d.counter)
	if err := sendBlock(d.transport, req); err != nil {
		d.sessionLost(err)
		d.metrics.IncKeepaliveFailure()
		return false
	}
	d.counter++

	resp, err := recvBlock(d.transport, BlockTimeout, d.logf)
	if err != nil {
		d.sessionLost(err)
		d.metrics.IncKeepaliveFailure()
		return false
	}
	if resp.Title != TitleACK {
		d.logf("keep-alive: unexpected title 0x%02X, continuing", resp.Title)
	}
	d.counter = resp.Counter + 1
	return true
}
