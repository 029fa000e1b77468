// Package player giữ trạng thái phát feed phía server: section hiện tại,
// chặn cuộn qua quiz chưa trả lời, tự chuyển sau câu đúng và cooldown khi sai.
package player

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

var (
	ErrEmptyFeed     = errors.New("feed has no units")
	ErrMalformedFeed = errors.New("feed quizzes do not match units")
)

type Quiz struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation,omitempty"`
}

// Unit là một cặp (video, quiz) của feed
type Unit struct {
	VideoID  string `json:"video_id"`
	Title    string `json:"title"`
	Src      string `json:"src"`
	AudioSrc string `json:"audio_src,omitempty"`
	Quiz     *Quiz  `json:"quiz,omitempty"`
}

type Options struct {
	AutoAdvanceDelay time.Duration
	Cooldown         time.Duration
	SettleDelay      time.Duration
	// CooldownDisablesAll: trong cooldown khóa mọi option, không chỉ option vừa chọn sai
	CooldownDisablesAll bool
}

func DefaultOptions() Options {
	return Options{
		AutoAdvanceDelay:    time.Second,
		Cooldown:            5 * time.Second,
		SettleDelay:         150 * time.Millisecond,
		CooldownDisablesAll: true,
	}
}

type EventKind string

const (
	EventSection     EventKind = "section"
	EventPlay        EventKind = "play"
	EventPause       EventKind = "pause"
	EventFeedback    EventKind = "feedback"
	EventCooldown    EventKind = "cooldown"
	EventAutoAdvance EventKind = "auto_advance"
	EventMuted       EventKind = "muted"
)

// Event được đẩy tới client qua ws
type Event struct {
	Kind        EventKind `json:"kind"`
	Section     int       `json:"section"`
	Unit        int       `json:"unit"`
	Clamped     bool      `json:"clamped,omitempty"`
	Correct     bool      `json:"correct,omitempty"`
	Explanation string    `json:"explanation,omitempty"`
	Remaining   int       `json:"remaining"`
	RewindAudio bool      `json:"rewind_audio,omitempty"`
	Src         string    `json:"src,omitempty"`
	AudioSrc    string    `json:"audio_src,omitempty"`
	Muted       bool      `json:"muted,omitempty"`
	Canceled    bool      `json:"canceled,omitempty"`
}

type Listener func(Event)

type NavResult struct {
	Section int  `json:"section"`
	Clamped bool `json:"clamped"`
	Changed bool `json:"changed"`
}

// State là ảnh chụp trạng thái để trả về qua API
type State struct {
	Section            int     `json:"section"`
	SectionCount       int     `json:"section_count"`
	MaxReachable       int     `json:"max_reachable"`
	Answered           []bool  `json:"answered"`
	Disabled           [][]int `json:"disabled"`
	CooldownUnit       int     `json:"cooldown_unit"`
	CooldownRemaining  int     `json:"cooldown_remaining"`
	AutoAdvancePending bool    `json:"auto_advance_pending"`
	AutoAdvanceTo      int     `json:"auto_advance_to"`
	PlayingSection     int     `json:"playing_section"`
	Muted              bool    `json:"muted"`
	Units              []Unit  `json:"units"`
}

type Player struct {
	mu       sync.Mutex
	clock    clock.Clock
	opts     Options
	units    []Unit
	hasQuiz  bool
	listener Listener

	current  int
	answered []bool
	disabled []map[int]bool
	muted    bool
	closed   bool
	playing  int

	advanceTimer  *clock.Timer
	advanceTarget int
	advanceSeq    uint64

	cooldownUnit      int
	cooldownRemaining int
	cooldownTimer     *clock.Timer
	cooldownSeq       uint64

	playTimer *clock.Timer
	playSeq   uint64

	outbox []Event
}

func New(units []Unit, clk clock.Clock, opts Options) (*Player, error) {
	if len(units) == 0 {
		return nil, ErrEmptyFeed
	}
	quizzes := 0
	for _, u := range units {
		if u.Quiz == nil {
			continue
		}
		if len(u.Quiz.Options) == 0 || u.Quiz.CorrectIndex < 0 || u.Quiz.CorrectIndex >= len(u.Quiz.Options) {
			return nil, ErrMalformedFeed
		}
		quizzes++
	}
	if quizzes > 0 && quizzes != len(units) {
		return nil, ErrMalformedFeed
	}
	if clk == nil {
		clk = clock.New()
	}
	p := &Player{
		clock:        clk,
		opts:         opts,
		units:        append([]Unit(nil), units...),
		hasQuiz:      quizzes > 0,
		answered:     make([]bool, len(units)),
		disabled:     make([]map[int]bool, len(units)),
		playing:      -1,
		cooldownUnit: -1,
	}
	for i := range p.disabled {
		p.disabled[i] = map[int]bool{}
	}
	return p, nil
}

func (p *Player) SetListener(l Listener) {
	p.mu.Lock()
	p.listener = l
	p.mu.Unlock()
}

// Start báo section đầu tiên và hẹn phát video
func (p *Player) Start() {
	p.mu.Lock()
	p.emit(Event{Kind: EventSection, Section: p.current, Unit: p.unitOf(p.current)})
	p.enter(-1, p.current)
	p.unlockAndFlush()
}

func (p *Player) SectionCount() int {
	if p.hasQuiz {
		return 2 * len(p.units)
	}
	return len(p.units)
}

func (p *Player) MaxReachable() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxReachable()
}

func (p *Player) maxReachable() int {
	last := p.SectionCount() - 1
	if !p.hasQuiz {
		return last
	}
	for i, ok := range p.answered {
		if !ok {
			return 2*i + 1
		}
	}
	return last
}

func (p *Player) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// GoTo chuyển tới section, kẹp trong [0, MaxReachable]. Kẹp lặp lại không đổi kết quả.
func (p *Player) GoTo(section int, userInitiated bool) NavResult {
	p.mu.Lock()
	if p.closed {
		res := NavResult{Section: p.current}
		p.mu.Unlock()
		return res
	}
	if userInitiated {
		p.cancelAdvance()
	}
	res := p.goTo(section)
	p.unlockAndFlush()
	return res
}

// Scroll: mỗi cử chỉ wheel/touch đi đúng một section theo dấu của delta
func (p *Player) Scroll(delta int) NavResult {
	p.mu.Lock()
	if p.closed || delta == 0 {
		res := NavResult{Section: p.current}
		p.mu.Unlock()
		return res
	}
	p.cancelAdvance()
	step := 1
	if delta < 0 {
		step = -1
	}
	res := p.goTo(p.current + step)
	p.unlockAndFlush()
	return res
}

func (p *Player) Next() NavResult { return p.Scroll(1) }
func (p *Player) Prev() NavResult { return p.Scroll(-1) }

// CancelAutoAdvance hủy lần tự chuyển đang chờ; true nếu có lần để hủy
func (p *Player) CancelAutoAdvance() bool {
	p.mu.Lock()
	ok := p.cancelAdvance()
	p.unlockAndFlush()
	return ok
}

func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	if p.muted != muted {
		p.muted = muted
		p.emit(Event{Kind: EventMuted, Section: p.current, Unit: p.unitOf(p.current), Muted: muted})
	}
	p.unlockAndFlush()
}

func (p *Player) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := State{
		Section:            p.current,
		SectionCount:       p.SectionCount(),
		MaxReachable:       p.maxReachable(),
		Answered:           append([]bool(nil), p.answered...),
		Disabled:           make([][]int, len(p.units)),
		CooldownUnit:       p.cooldownUnit,
		CooldownRemaining:  p.cooldownRemaining,
		AutoAdvancePending: p.advanceTimer != nil,
		AutoAdvanceTo:      -1,
		PlayingSection:     p.playing,
		Muted:              p.muted,
		Units:              p.units,
	}
	if p.advanceTimer != nil {
		st.AutoAdvanceTo = p.advanceTarget
	}
	for i, set := range p.disabled {
		st.Disabled[i] = sortedKeys(set)
	}
	return st
}

// Close dừng mọi timer; sau đó player không phát event nữa
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.cancelAdvance()
	p.stopCooldown()
	p.stopPlay()
	p.outbox = nil
}

func (p *Player) goTo(section int) NavResult {
	limit := p.maxReachable()
	target, clamped := section, false
	if target < 0 {
		target, clamped = 0, true
	}
	if target > limit {
		target, clamped = limit, true
	}
	res := NavResult{Section: target, Clamped: clamped, Changed: target != p.current}
	if res.Changed {
		prev := p.current
		p.current = target
		p.emit(Event{Kind: EventSection, Section: target, Unit: p.unitOf(target), Clamped: clamped})
		p.enter(prev, target)
	}
	return res
}

func (p *Player) unitOf(section int) int {
	if p.hasQuiz {
		return section / 2
	}
	return section
}

func (p *Player) isVideo(section int) bool {
	return !p.hasQuiz || section%2 == 0
}

func (p *Player) emit(ev Event) {
	if p.closed {
		return
	}
	p.outbox = append(p.outbox, ev)
}

// unlockAndFlush nhả lock rồi mới gọi listener
func (p *Player) unlockAndFlush() {
	out := p.outbox
	p.outbox = nil
	l := p.listener
	p.mu.Unlock()
	if l == nil {
		return
	}
	for _, ev := range out {
		l(ev)
	}
}

func sortedKeys(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
