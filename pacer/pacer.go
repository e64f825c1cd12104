// Package pacer implements the wall-clock pacing discipline that divides a
// chunk's transmission time budget across bursts of packets, so that a
// sender transmitting at a configured rate cap neither floods the link nor
// falls needlessly behind schedule.
package pacer

import (
	"time"
)

// PacketBurst is the number of datagrams sent between pacing checks. Bursts
// amortize syscall/timer overhead while still giving fine-grained
// average-rate control.
const PacketBurst = 10

// Pacer paces the emission of nPackets datagrams so that one full pass
// takes approximately duration wall-clock time.
type Pacer struct {
	nPackets int
	nSleeps  int
	duration time.Duration
	start    time.Time
	sent     int
	slept    int

	// sleep is overridable in tests to avoid real wall-clock waits.
	sleep func(time.Duration)
	now   func() time.Time
}

// New creates a Pacer for a chunk of nPackets datagrams to be sent over
// duration.
func New(nPackets int, duration time.Duration) *Pacer {
	nSleeps := (nPackets + PacketBurst - 1) / PacketBurst
	if nSleeps < 1 {
		nSleeps = 1
	}
	return &Pacer{
		nPackets: nPackets,
		nSleeps:  nSleeps,
		duration: duration,
		start:    time.Now(),
		sleep:    time.Sleep,
		now:      time.Now,
	}
}

// AfterPacket is called once for every packet transmitted, with k being the
// 1-based count of packets sent so far in this pass. Every PacketBurst
// calls, it sleeps just long enough that elapsed time tracks
// (k/PacketBurst)/nSleeps of the total duration. It never sleeps a negative
// amount: falling behind schedule is absorbed silently, not compensated by
// speeding up.
func (p *Pacer) AfterPacket(k int) {
	if k%PacketBurst != 0 {
		return
	}
	p.slept++

	targetElapsed := (float64(p.slept) / float64(p.nSleeps)) * float64(p.duration)
	alreadyElapsed := float64(p.now().Sub(p.start))
	sleepDuration := time.Duration(targetElapsed - alreadyElapsed)
	if sleepDuration > 0 {
		p.sleep(sleepDuration)
	}
}

// Finish performs one final sleep so that the total elapsed time for this
// pass is at least duration, covering the remainder left over when
// nPackets isn't a multiple of PacketBurst. Never sleeps a negative amount.
func (p *Pacer) Finish() {
	if p.slept >= p.nSleeps {
		return
	}
	alreadyElapsed := float64(p.now().Sub(p.start))
	sleepDuration := time.Duration(float64(p.duration) - alreadyElapsed)
	if sleepDuration > 0 {
		p.sleep(sleepDuration)
	}
	p.slept = p.nSleeps
}
