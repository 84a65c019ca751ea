package autosave

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gorm.io/datatypes"
)

var errNoSaver = errors.New("autosave: no saver configured")

// Timer 是可取消的计时器。
type Timer interface {
	Stop() bool
}

// Clock 提供当前时间与延迟回调，测试中可替换为手动推进的时钟。
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock 返回基于 time 包的时钟。
func SystemClock() Clock {
	return systemClock{}
}

// SaveRequest 是一次写入请求。
type SaveRequest struct {
	DocumentID        string
	Title             string
	Content           string
	TemplateID        string
	TemplateVariables datatypes.JSON
	Manual            bool
}

// SaveResult 是写入结果。
type SaveResult struct {
	DocumentID string
	UpdatedAt  time.Time
}

// Saver 执行实际的写入。
type Saver interface {
	Save(ctx context.Context, req SaveRequest) (SaveResult, error)
}

// SessionOptions 配置一个编辑会话。
type SessionOptions struct {
	// DocumentID 不为空时表示编辑已有文档，会话直接处于 normal 阶段。
	DocumentID        string
	Title             string
	Content           string
	TemplateID        string
	TemplateVariables datatypes.JSON

	Thresholds *Thresholds
	Clock      Clock
	Saver      Saver
	Logger     *slog.Logger
	// OnError 接收写入失败，错误不会返回给编辑调用方。
	OnError func(error)
}

// Snapshot 是会话状态的只读视图。
type Snapshot struct {
	ID          string    `json:"id"`
	Stage       Stage     `json:"stage"`
	DocumentID  string    `json:"documentId,omitempty"`
	Title       string    `json:"title"`
	Dirty       bool      `json:"dirty"`
	Saving      bool      `json:"saving"`
	LastSavedAt time.Time `json:"lastSavedAt,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
}

// Session 执行状态机产生的副作用。同一会话任意时刻最多只有一次写入在进行。
type Session struct {
	id         string
	thresholds Thresholds
	clock      Clock
	saver      Saver
	logger     *slog.Logger
	onError    func(error)

	mu                sync.Mutex
	state             State
	timer             Timer
	templateID        string
	templateVariables datatypes.JSON
	// settled 在 Saving 变为 false 或会话关闭时广播。
	settled *sync.Cond
	closing bool
	closed  bool
}

// NewSession 创建编辑会话。
func NewSession(id string, opts SessionOptions) *Session {
	thresholds := DefaultThresholds()
	if opts.Thresholds != nil {
		thresholds = *opts.Thresholds
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	state := State{Title: opts.Title, Content: opts.Content}
	if opts.DocumentID != "" {
		state.Stage = StageNormal
		state.DocumentID = opts.DocumentID
		state.SavedTitle, state.SavedContent = opts.Title, opts.Content
	}

	s := &Session{
		id:                id,
		thresholds:        thresholds,
		clock:             clock,
		saver:             opts.Saver,
		logger:            logger.With("session_id", id),
		onError:           opts.OnError,
		state:             state,
		templateID:        opts.TemplateID,
		templateVariables: opts.TemplateVariables,
	}
	s.settled = sync.NewCond(&s.mu)
	return s
}

// ID 返回会话 ID。
func (s *Session) ID() string {
	return s.id
}

// Edit 记录一次内容修改并重新开始防抖计时。
func (s *Session) Edit(title, content string) Snapshot {
	s.dispatch(Edit{Title: title, Content: content, At: s.clock.Now()})
	return s.Snapshot()
}

// SetTemplate 更新随下次写入一起保存的模板信息。
func (s *Session) SetTemplate(templateID string, variables datatypes.JSON) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templateID = templateID
	s.templateVariables = variables
}

// Save 立即保存。已有写入在进行时，会在其完成后紧接着执行。
func (s *Session) Save() Snapshot {
	s.dispatch(ManualSave{At: s.clock.Now()})
	return s.Snapshot()
}

// Close 停止计时器，等待进行中的写入完成，再写入仍未保存的内容。
// 返回时会话不再有进行中的写入，之后的编辑与计时器都会被忽略。
func (s *Session) Close() Snapshot {
	s.mu.Lock()
	if s.closing {
		for !s.closed {
			s.settled.Wait()
		}
		s.mu.Unlock()
		return s.Snapshot()
	}
	s.closing = true
	s.stopTimer()
	s.mu.Unlock()

	// 第一次 Flush 可能只记下 Pending，等进行中的写入结束后再补写一次
	for attempt := 0; attempt < 2; attempt++ {
		s.dispatch(Flush{At: s.clock.Now()})
		s.mu.Lock()
		for s.state.Saving {
			s.settled.Wait()
		}
		dirty := s.state.Dirty()
		s.mu.Unlock()
		if !dirty {
			break
		}
	}

	s.mu.Lock()
	s.closed = true
	s.stopTimer()
	s.settled.Broadcast()
	s.mu.Unlock()

	return s.Snapshot()
}

// Snapshot 返回当前状态。
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:          s.id,
		Stage:       s.state.Stage,
		DocumentID:  s.state.DocumentID,
		Title:       s.state.Title,
		Dirty:       s.state.Dirty(),
		Saving:      s.state.Saving,
		LastSavedAt: s.state.LastSavedAt,
		LastError:   s.state.LastError,
	}
}

// State 返回完整状态副本，主要用于测试与诊断。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) dispatch(event Event) {
	s.mu.Lock()
	if s.closing {
		// 关闭过程中只接收 Close 自己的 Flush 与进行中写入的结果
		switch event.(type) {
		case SaveSucceeded, SaveFailed:
		case Flush:
			if s.closed {
				s.mu.Unlock()
				return
			}
		default:
			s.mu.Unlock()
			return
		}
	}
	next, effects := Step(s.state, s.thresholds, event)
	s.state = next

	var (
		persists []Persist
		failures []error
	)
	for _, effect := range effects {
		switch e := effect.(type) {
		case CancelTimer:
			s.stopTimer()
		case ScheduleSave:
			s.stopTimer()
			if s.closing {
				continue
			}
			gen := e.Gen
			s.timer = s.clock.AfterFunc(e.Delay, func() {
				s.dispatch(TimerFired{Gen: gen, At: s.clock.Now()})
			})
		case Persist:
			persists = append(persists, e)
		case ReportError:
			failures = append(failures, e.Err)
		}
	}
	if !s.state.Saving {
		s.settled.Broadcast()
	}
	s.mu.Unlock()

	if s.onError != nil {
		for _, err := range failures {
			s.onError(err)
		}
	}
	for _, p := range persists {
		s.persist(p)
	}
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// persist 在锁外执行写入，完成后把结果送回状态机。
func (s *Session) persist(p Persist) {
	s.mu.Lock()
	req := SaveRequest{
		DocumentID:        p.DocumentID,
		Title:             p.Title,
		Content:           p.Content,
		TemplateID:        s.templateID,
		TemplateVariables: s.templateVariables,
		Manual:            p.Manual,
	}
	s.mu.Unlock()

	if s.saver == nil {
		s.dispatch(SaveFailed{Err: errNoSaver, Manual: p.Manual, At: s.clock.Now()})
		return
	}

	result, err := s.saver.Save(context.Background(), req)
	if err != nil {
		s.logger.Warn("auto-save failed", "document_id", p.DocumentID, "manual", p.Manual, "error", err)
		s.dispatch(SaveFailed{Err: err, Manual: p.Manual, At: s.clock.Now()})
		return
	}
	s.logger.Debug("content saved", "document_id", result.DocumentID, "manual", p.Manual)
	s.dispatch(SaveSucceeded{
		DocumentID: result.DocumentID,
		Title:      p.Title,
		Content:    p.Content,
		Manual:     p.Manual,
		At:         s.clock.Now(),
	})
}
