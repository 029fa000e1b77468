package player

// enter: rời section cũ thì pause + tua audio về 0; section mới là video thì hẹn Play sau settle delay
func (p *Player) enter(prev, next int) {
	p.stopPlay()
	if prev >= 0 && prev != next && p.isVideo(prev) {
		p.playing = -1
		p.emit(Event{Kind: EventPause, Section: prev, Unit: p.unitOf(prev), RewindAudio: true})
	}
	if !p.isVideo(next) {
		return
	}
	p.playSeq++
	seq := p.playSeq
	p.playTimer = p.clock.AfterFunc(p.opts.SettleDelay, func() {
		p.mu.Lock()
		if p.closed || seq != p.playSeq || p.current != next {
			p.mu.Unlock()
			return
		}
		p.playTimer = nil
		p.playing = next
		u := p.units[p.unitOf(next)]
		p.emit(Event{Kind: EventPlay, Section: next, Unit: p.unitOf(next), Src: u.Src, AudioSrc: u.AudioSrc, Muted: p.muted})
		p.unlockAndFlush()
	})
}

func (p *Player) stopPlay() {
	if p.playTimer != nil {
		p.playTimer.Stop()
		p.playTimer = nil
	}
	p.playSeq++
}
