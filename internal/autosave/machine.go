// Package autosave 决定编辑器内容何时、以何种频率写入本地存储。
//
// Step 是纯函数：给定当前状态与事件，返回新状态和需要执行的副作用。
// Session 负责执行副作用（计时器与保存），因此状态机可以脱离时间与存储单独测试。
package autosave

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Stage 是编辑中文档的持久化阶段。
type Stage int

const (
	// StageTemp 尚未写入存储，也没有分配文档 ID。
	StageTemp Stage = iota
	// StageDraft 已写入存储但尚未达到正式内容的门槛。
	StageDraft
	// StageNormal 正式内容，本次会话内不会回退。
	StageNormal
)

func (s Stage) String() string {
	switch s {
	case StageDraft:
		return "draft"
	case StageNormal:
		return "normal"
	default:
		return "temp"
	}
}

// MarshalText 让阶段以名称形式出现在 JSON 中。
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Thresholds 是各阶段的写入门槛与防抖延迟，长度均按字符计。
type Thresholds struct {
	// CreateWithTitle 有标题时创建文档所需的正文长度。
	CreateWithTitle int
	// CreateAlone 无论有无标题，创建文档所需的正文长度。
	CreateAlone int
	// CreateIdle 编辑超过 Idle 后创建文档所需的正文长度（严格大于）。
	CreateIdle int
	// UpgradeContent 草稿升级所需的正文长度。
	UpgradeContent int
	// UpgradeWithTitle 有标题时草稿升级所需的正文长度。
	UpgradeWithTitle int
	// Idle 是放宽门槛所需的编辑时长（严格大于）。
	Idle time.Duration

	TempDelay   time.Duration
	DraftDelay  time.Duration
	NormalDelay time.Duration
}

// DefaultThresholds 返回默认门槛。
func DefaultThresholds() Thresholds {
	return Thresholds{
		CreateWithTitle:  30,
		CreateAlone:      50,
		CreateIdle:       10,
		UpgradeContent:   30,
		UpgradeWithTitle: 10,
		Idle:             3 * time.Minute,
		TempDelay:        10 * time.Second,
		DraftDelay:       5 * time.Second,
		NormalDelay:      3 * time.Second,
	}
}

// Delay 返回 stage 阶段的防抖延迟。越不确定的内容等待越久。
func (t Thresholds) Delay(stage Stage) time.Duration {
	switch stage {
	case StageTemp:
		return t.TempDelay
	case StageDraft:
		return t.DraftDelay
	default:
		return t.NormalDelay
	}
}

// ShouldCreate 判断临时内容是否值得写入存储。
func (t Thresholds) ShouldCreate(title, content string, elapsed time.Duration) bool {
	length := utf8.RuneCountInString(content)
	hasTitle := strings.TrimSpace(title) != ""
	switch {
	case length >= t.CreateWithTitle && hasTitle:
		return true
	case length >= t.CreateAlone:
		return true
	case elapsed > t.Idle && length > t.CreateIdle:
		return true
	}
	return false
}

// ShouldUpgrade 判断草稿是否升级为正式内容。
func (t Thresholds) ShouldUpgrade(title, content string, elapsed time.Duration) bool {
	length := utf8.RuneCountInString(content)
	hasTitle := strings.TrimSpace(title) != ""
	switch {
	case length >= t.UpgradeContent:
		return true
	case hasTitle && length >= t.UpgradeWithTitle:
		return true
	case elapsed > t.Idle:
		return true
	}
	return false
}

// State 是单个编辑会话的状态。
type State struct {
	Stage      Stage
	DocumentID string

	Title   string
	Content string
	// SavedTitle 与 SavedContent 是最近一次成功写入的内容，用于判断是否有改动。
	SavedTitle   string
	SavedContent string

	StartedAt   time.Time
	LastSavedAt time.Time
	LastError   string

	Saving        bool
	Pending       bool
	PendingManual bool

	TimerArmed bool
	TimerGen   uint64
}

// Dirty 表示当前内容与最近一次写入的内容不同。
func (s State) Dirty() bool {
	return s.Title != s.SavedTitle || s.Content != s.SavedContent
}

func (s State) elapsed(at time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return at.Sub(s.StartedAt)
}

// Event 是驱动状态机的输入。
type Event interface {
	isEvent()
}

// Edit 是一次内容修改。
type Edit struct {
	Title   string
	Content string
	At      time.Time
}

// TimerFired 表示防抖计时器到期，Gen 与 ScheduleSave 的 Gen 对应。
type TimerFired struct {
	Gen uint64
	At  time.Time
}

// ManualSave 是用户主动保存，跳过所有门槛。
type ManualSave struct {
	At time.Time
}

// Flush 在会话关闭时尝试写入尚未保存的内容，门槛照常生效。
type Flush struct {
	At time.Time
}

// SaveSucceeded 表示一次写入完成，Title 与 Content 为实际写入的内容。
type SaveSucceeded struct {
	DocumentID string
	Title      string
	Content    string
	Manual     bool
	At         time.Time
}

// SaveFailed 表示一次写入失败。
type SaveFailed struct {
	Err    error
	Manual bool
	At     time.Time
}

func (Edit) isEvent()          {}
func (TimerFired) isEvent()    {}
func (ManualSave) isEvent()    {}
func (Flush) isEvent()         {}
func (SaveSucceeded) isEvent() {}
func (SaveFailed) isEvent()    {}

// Effect 是状态机要求执行的副作用。
type Effect interface {
	isEffect()
}

// ScheduleSave 要求在 Delay 后发送 TimerFired{Gen}。之前的计时器已失效。
type ScheduleSave struct {
	Delay time.Duration
	Gen   uint64
}

// CancelTimer 要求停止当前计时器。
type CancelTimer struct{}

// Persist 要求写入内容。DocumentID 为空时创建新文档。
type Persist struct {
	DocumentID string
	Title      string
	Content    string
	Manual     bool
}

// ReportError 要求上报一次写入失败。
type ReportError struct {
	Err error
}

func (ScheduleSave) isEffect() {}
func (CancelTimer) isEffect()  {}
func (Persist) isEffect()      {}
func (ReportError) isEffect()  {}

// Step 根据事件推进状态。
func Step(state State, t Thresholds, event Event) (State, []Effect) {
	var effects []Effect
	switch ev := event.(type) {
	case Edit:
		state.Title, state.Content = ev.Title, ev.Content
		if state.StartedAt.IsZero() {
			state.StartedAt = ev.At
		}
		effects = append(effects, cancelTimer(&state)...)
		if state.Dirty() {
			effects = append(effects, schedule(&state, t.Delay(state.Stage)))
		}

	case TimerFired:
		if !state.TimerArmed || ev.Gen != state.TimerGen {
			return state, nil
		}
		state.TimerArmed = false
		effects = append(effects, autoSave(&state, t, ev.At)...)

	case Flush:
		effects = append(effects, cancelTimer(&state)...)
		effects = append(effects, autoSave(&state, t, ev.At)...)

	case ManualSave:
		effects = append(effects, cancelTimer(&state)...)
		if state.Saving {
			state.PendingManual = true
			return state, effects
		}
		effects = append(effects, persist(&state, true))

	case SaveSucceeded:
		state.Saving = false
		state.DocumentID = ev.DocumentID
		state.SavedTitle, state.SavedContent = ev.Title, ev.Content
		state.LastSavedAt = ev.At
		state.LastError = ""
		switch {
		case ev.Manual:
			state.Stage = StageNormal
		case state.Stage == StageTemp:
			state.Stage = StageDraft
		case state.Stage == StageDraft && t.ShouldUpgrade(ev.Title, ev.Content, state.elapsed(ev.At)):
			state.Stage = StageNormal
		}
		effects = append(effects, afterSave(&state, t)...)

	case SaveFailed:
		state.Saving = false
		if ev.Err != nil {
			state.LastError = ev.Err.Error()
		}
		effects = append(effects, ReportError{Err: ev.Err})
		effects = append(effects, afterSave(&state, t)...)
	}
	return state, effects
}

func autoSave(state *State, t Thresholds, at time.Time) []Effect {
	if state.Saving {
		state.Pending = true
		return nil
	}
	if !state.Dirty() {
		return nil
	}
	if state.Stage == StageTemp && !t.ShouldCreate(state.Title, state.Content, state.elapsed(at)) {
		// 内容已够长但编辑时间不足时，等到放宽门槛的时刻再检查一次
		if utf8.RuneCountInString(state.Content) > t.CreateIdle {
			if wait := t.Idle - state.elapsed(at); wait >= 0 {
				return []Effect{schedule(state, wait+time.Millisecond)}
			}
		}
		return nil
	}
	return []Effect{persist(state, false)}
}

func afterSave(state *State, t Thresholds) []Effect {
	if state.PendingManual {
		state.PendingManual = false
		state.Pending = false
		return []Effect{persist(state, true)}
	}
	if state.Pending && state.Dirty() && !state.TimerArmed {
		state.Pending = false
		return []Effect{schedule(state, t.Delay(state.Stage))}
	}
	state.Pending = false
	return nil
}

func persist(state *State, manual bool) Effect {
	state.Saving = true
	return Persist{
		DocumentID: state.DocumentID,
		Title:      state.Title,
		Content:    state.Content,
		Manual:     manual,
	}
}

func schedule(state *State, delay time.Duration) Effect {
	state.TimerGen++
	state.TimerArmed = true
	return ScheduleSave{Delay: delay, Gen: state.TimerGen}
}

func cancelTimer(state *State) []Effect {
	if !state.TimerArmed {
		return nil
	}
	state.TimerArmed = false
	return []Effect{CancelTimer{}}
}
