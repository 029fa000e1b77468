package player

import (
	"math"
	"time"

	"github.com/vnkhanh/edu-reels-backend/metrics"
)

type RejectReason string

const (
	RejectNoQuiz          RejectReason = "no_quiz"
	RejectInvalidUnit     RejectReason = "invalid_unit"
	RejectInvalidOption   RejectReason = "invalid_option"
	RejectAlreadyAnswered RejectReason = "already_answered"
	RejectCoolingDown     RejectReason = "cooling_down"
	RejectOptionDisabled  RejectReason = "option_disabled"
	RejectNotReachable    RejectReason = "not_reachable"
	RejectClosed          RejectReason = "closed"
)

const cooldownStep = time.Second

type AnswerResult struct {
	Accepted      bool         `json:"accepted"`
	Correct       bool         `json:"correct"`
	Reason        RejectReason `json:"reason,omitempty"`
	Explanation   string       `json:"explanation,omitempty"`
	Disabled      []int        `json:"disabled"`
	Cooldown      int          `json:"cooldown"`
	AutoAdvanceTo int          `json:"auto_advance_to"`
}

// Answer chấm câu trả lời cho quiz của unit (đánh số từ 0).
// Bị từ chối thì không đổi trạng thái.
func (p *Player) Answer(unit, option int) AnswerResult {
	p.mu.Lock()
	res := p.answer(unit, option)
	p.unlockAndFlush()

	switch {
	case !res.Accepted:
		metrics.RecordAnswer("rejected")
	case res.Correct:
		metrics.RecordAnswer("correct")
	default:
		metrics.RecordAnswer("incorrect")
	}
	return res
}

func (p *Player) answer(unit, option int) AnswerResult {
	res := AnswerResult{AutoAdvanceTo: -1}
	reject := func(r RejectReason) AnswerResult {
		res.Reason = r
		if unit >= 0 && unit < len(p.disabled) {
			res.Disabled = sortedKeys(p.disabled[unit])
		}
		return res
	}

	switch {
	case p.closed:
		return reject(RejectClosed)
	case !p.hasQuiz:
		return reject(RejectNoQuiz)
	case unit < 0 || unit >= len(p.units):
		return reject(RejectInvalidUnit)
	}
	quiz := p.units[unit].Quiz
	switch {
	case option < 0 || option >= len(quiz.Options):
		return reject(RejectInvalidOption)
	case p.answered[unit]:
		return reject(RejectAlreadyAnswered)
	case 2*unit+1 > p.maxReachable():
		return reject(RejectNotReachable)
	case p.disabled[unit][option]:
		return reject(RejectOptionDisabled)
	case p.opts.CooldownDisablesAll && p.cooldownUnit == unit:
		return reject(RejectCoolingDown)
	}

	res.Accepted = true
	res.Explanation = quiz.Explanation

	if option == quiz.CorrectIndex {
		res.Correct = true
		p.answered[unit] = true
		if p.cooldownUnit == unit {
			p.stopCooldown()
		}
		p.emit(Event{Kind: EventFeedback, Section: 2*unit + 1, Unit: unit, Correct: true, Explanation: quiz.Explanation})
		if target := p.advanceTargetFor(unit); target != p.current {
			res.AutoAdvanceTo = target
			p.scheduleAdvance(unit)
		}
		res.Disabled = sortedKeys(p.disabled[unit])
		return res
	}

	p.disabled[unit][option] = true
	res.Disabled = sortedKeys(p.disabled[unit])
	p.emit(Event{Kind: EventFeedback, Section: 2*unit + 1, Unit: unit, Explanation: quiz.Explanation})
	res.Cooldown = p.startCooldown(unit)
	return res
}

// advanceTargetFor = min(2i+2, MaxReachable), tính theo trạng thái hiện tại
func (p *Player) advanceTargetFor(unit int) int {
	target := 2*unit + 2
	if limit := p.maxReachable(); target > limit {
		target = limit
	}
	return target
}

func (p *Player) scheduleAdvance(unit int) {
	p.cancelAdvance()
	p.advanceSeq++
	seq := p.advanceSeq
	p.advanceTarget = p.advanceTargetFor(unit)
	p.advanceTimer = p.clock.AfterFunc(p.opts.AutoAdvanceDelay, func() {
		p.mu.Lock()
		if p.closed || seq != p.advanceSeq || p.advanceTimer == nil {
			p.mu.Unlock()
			return
		}
		p.advanceTimer = nil
		// kẹp lại theo MaxReachable lúc timer chạy
		target := p.advanceTargetFor(unit)
		if target != p.current {
			p.emit(Event{Kind: EventAutoAdvance, Section: target, Unit: p.unitOf(target)})
			p.goTo(target)
		}
		p.unlockAndFlush()
	})
}

func (p *Player) cancelAdvance() bool {
	if p.advanceTimer == nil {
		return false
	}
	p.advanceTimer.Stop()
	p.advanceTimer = nil
	p.advanceSeq++
	p.emit(Event{Kind: EventAutoAdvance, Section: p.advanceTarget, Unit: p.unitOf(p.advanceTarget), Canceled: true})
	return true
}

// startCooldown đếm ngược N..0 mỗi giây; về 0 thì mở lại input
func (p *Player) startCooldown(unit int) int {
	p.stopCooldown()
	secs := int(math.Ceil(p.opts.Cooldown.Seconds()))
	if secs <= 0 {
		return 0
	}
	p.cooldownSeq++
	seq := p.cooldownSeq
	p.cooldownUnit = unit
	p.cooldownRemaining = secs
	p.emit(Event{Kind: EventCooldown, Section: 2*unit + 1, Unit: unit, Remaining: secs})

	var tick func()
	tick = func() {
		p.mu.Lock()
		if p.closed || seq != p.cooldownSeq {
			p.mu.Unlock()
			return
		}
		p.cooldownRemaining--
		p.emit(Event{Kind: EventCooldown, Section: 2*unit + 1, Unit: unit, Remaining: p.cooldownRemaining})
		if p.cooldownRemaining <= 0 {
			p.cooldownRemaining = 0
			p.cooldownUnit = -1
			p.cooldownTimer = nil
		} else {
			p.cooldownTimer = p.clock.AfterFunc(cooldownStep, tick)
		}
		p.unlockAndFlush()
	}
	p.cooldownTimer = p.clock.AfterFunc(cooldownStep, tick)
	return secs
}

func (p *Player) stopCooldown() {
	if p.cooldownTimer != nil {
		p.cooldownTimer.Stop()
		p.cooldownTimer = nil
	}
	p.cooldownSeq++
	p.cooldownUnit = -1
	p.cooldownRemaining = 0
}
