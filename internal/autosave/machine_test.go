package autosave

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func persists(effects []Effect) []Persist {
	var out []Persist
	for _, e := range effects {
		if p, ok := e.(Persist); ok {
			out = append(out, p)
		}
	}
	return out
}

func scheduled(effects []Effect) (ScheduleSave, bool) {
	for _, e := range effects {
		if s, ok := e.(ScheduleSave); ok {
			return s, true
		}
	}
	return ScheduleSave{}, false
}

// editAndFire 发送一次编辑并立即触发其计时器。
func editAndFire(t *testing.T, state State, title, content string, at time.Time) (State, []Effect) {
	t.Helper()
	th := DefaultThresholds()
	state, effects := Step(state, th, Edit{Title: title, Content: content, At: at})
	sched, ok := scheduled(effects)
	require.True(t, ok, "edit should schedule a save")
	return Step(state, th, TimerFired{Gen: sched.Gen, At: at.Add(sched.Delay)})
}

func TestCreationThreshold(t *testing.T) {
	cases := []struct {
		name    string
		title   string
		content string
		want    bool
	}{
		{"title and 30 chars", "标题", strings.Repeat("字", 30), true},
		{"title and 29 chars", "标题", strings.Repeat("字", 29), false},
		{"blank title and 30 chars", "   ", strings.Repeat("a", 30), false},
		{"no title 49 chars", "", strings.Repeat("a", 49), false},
		{"no title 50 chars", "", strings.Repeat("a", 50), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, effects := editAndFire(t, State{}, tc.title, tc.content, t0)
			assert.Equal(t, tc.want, len(persists(effects)) == 1)
		})
	}
}

func TestCreationAfterIdle(t *testing.T) {
	th := DefaultThresholds()
	state, _ := Step(State{}, th, Edit{Content: "short", At: t0})

	// 编辑开始 3 分钟后，11 个字符即可创建
	state, effects := Step(state, th, Edit{Content: strings.Repeat("b", 11), At: t0.Add(3*time.Minute + time.Second)})
	sched, ok := scheduled(effects)
	require.True(t, ok)
	_, effects = Step(state, th, TimerFired{Gen: sched.Gen, At: t0.Add(3*time.Minute + 11*time.Second)})
	assert.Len(t, persists(effects), 1)

	// 正好 10 个字符仍然不够
	state, _ = Step(State{}, th, Edit{Content: "x", At: t0})
	state, effects = Step(state, th, Edit{Content: strings.Repeat("c", 10), At: t0.Add(4 * time.Minute)})
	sched, _ = scheduled(effects)
	_, effects = Step(state, th, TimerFired{Gen: sched.Gen, At: t0.Add(5 * time.Minute)})
	assert.Empty(t, persists(effects))
}

func TestBelowThresholdRetriesWhenIdleElapses(t *testing.T) {
	th := DefaultThresholds()
	state, effects := Step(State{}, th, Edit{Content: strings.Repeat("d", 20), At: t0})
	sched, _ := scheduled(effects)

	state, effects = Step(state, th, TimerFired{Gen: sched.Gen, At: t0.Add(10 * time.Second)})
	assert.Empty(t, persists(effects))
	retry, ok := scheduled(effects)
	require.True(t, ok)
	assert.Greater(t, retry.Delay, 2*time.Minute)

	_, effects = Step(state, th, TimerFired{Gen: retry.Gen, At: t0.Add(10*time.Second + retry.Delay)})
	assert.Len(t, persists(effects), 1)
}

func TestDebounceDelayByStage(t *testing.T) {
	th := DefaultThresholds()
	for stage, want := range map[Stage]time.Duration{
		StageTemp:   10 * time.Second,
		StageDraft:  5 * time.Second,
		StageNormal: 3 * time.Second,
	} {
		_, effects := Step(State{Stage: stage}, th, Edit{Content: "x", At: t0})
		sched, ok := scheduled(effects)
		require.True(t, ok, stage.String())
		assert.Equal(t, want, sched.Delay, stage.String())
	}
}

func TestEditRestartsTimer(t *testing.T) {
	th := DefaultThresholds()
	state, first := Step(State{}, th, Edit{Content: "a", At: t0})
	firstSched, _ := scheduled(first)

	state, second := Step(state, th, Edit{Content: "ab", At: t0.Add(time.Second)})
	assert.Contains(t, second, Effect(CancelTimer{}))
	secondSched, _ := scheduled(second)
	assert.NotEqual(t, firstSched.Gen, secondSched.Gen)

	// 旧计时器到期时被忽略
	_, effects := Step(state, th, TimerFired{Gen: firstSched.Gen, At: t0.Add(10 * time.Second)})
	assert.Empty(t, effects)
}

func TestStageTransitions(t *testing.T) {
	th := DefaultThresholds()
	content := strings.Repeat("e", 50)

	state, effects := editAndFire(t, State{}, "", content, t0)
	p := persists(effects)
	require.Len(t, p, 1)
	assert.Empty(t, p[0].DocumentID)
	assert.True(t, state.Saving)

	state, _ = Step(state, th, SaveSucceeded{DocumentID: "doc-1", Title: p[0].Title, Content: p[0].Content, At: t0.Add(11 * time.Second)})
	assert.Equal(t, StageDraft, state.Stage)
	assert.Equal(t, "doc-1", state.DocumentID)
	assert.False(t, state.Dirty())

	state, effects = editAndFire(t, state, "", content+"f", t0.Add(20*time.Second))
	p = persists(effects)
	require.Len(t, p, 1)
	assert.Equal(t, "doc-1", p[0].DocumentID)

	state, _ = Step(state, th, SaveSucceeded{DocumentID: "doc-1", Title: p[0].Title, Content: p[0].Content, At: t0.Add(26 * time.Second)})
	assert.Equal(t, StageNormal, state.Stage)
}

func TestDraftStaysDraftBelowUpgradeThreshold(t *testing.T) {
	th := DefaultThresholds()
	state := State{Stage: StageDraft, DocumentID: "doc-1", StartedAt: t0, SavedContent: "old"}

	state, effects := editAndFire(t, state, "", "tiny", t0.Add(time.Minute))
	p := persists(effects)
	require.Len(t, p, 1)

	state, _ = Step(state, th, SaveSucceeded{DocumentID: "doc-1", Title: "", Content: "tiny", At: t0.Add(time.Minute + 5*time.Second)})
	assert.Equal(t, StageDraft, state.Stage)

	// 有标题时 10 个字符即可升级
	state, effects = editAndFire(t, state, "题", strings.Repeat("g", 10), t0.Add(2*time.Minute))
	p = persists(effects)
	require.Len(t, p, 1)
	state, _ = Step(state, th, SaveSucceeded{DocumentID: "doc-1", Title: p[0].Title, Content: p[0].Content, At: t0.Add(2*time.Minute + 5*time.Second)})
	assert.Equal(t, StageNormal, state.Stage)
}

func TestManualSaveBypassesThresholds(t *testing.T) {
	th := DefaultThresholds()
	state, _ := Step(State{}, th, Edit{Content: "a", At: t0})

	state, effects := Step(state, th, ManualSave{At: t0.Add(time.Second)})
	assert.Contains(t, effects, Effect(CancelTimer{}))
	p := persists(effects)
	require.Len(t, p, 1)
	assert.True(t, p[0].Manual)

	state, _ = Step(state, th, SaveSucceeded{DocumentID: "doc-9", Title: "", Content: "a", Manual: true, At: t0.Add(2 * time.Second)})
	assert.Equal(t, StageNormal, state.Stage)
}

func TestSingleSaveInFlight(t *testing.T) {
	th := DefaultThresholds()
	state, effects := editAndFire(t, State{}, "", strings.Repeat("h", 60), t0)
	require.Len(t, persists(effects), 1)

	// 写入进行中再次到期：不发起新的写入
	state, effects = Step(state, th, Edit{Content: strings.Repeat("h", 61), At: t0.Add(11 * time.Second)})
	sched, _ := scheduled(effects)
	state, effects = Step(state, th, TimerFired{Gen: sched.Gen, At: t0.Add(21 * time.Second)})
	assert.Empty(t, persists(effects))
	assert.True(t, state.Pending)

	// 完成后内容仍有改动，重新计时
	state, effects = Step(state, th, SaveSucceeded{DocumentID: "doc-1", Content: strings.Repeat("h", 60), At: t0.Add(22 * time.Second)})
	assert.False(t, state.Pending)
	next, ok := scheduled(effects)
	require.True(t, ok)
	assert.Equal(t, th.DraftDelay, next.Delay)
}

func TestManualSaveQueuedBehindInFlightSave(t *testing.T) {
	th := DefaultThresholds()
	state, _ := editAndFire(t, State{}, "", strings.Repeat("i", 60), t0)

	state, effects := Step(state, th, ManualSave{At: t0.Add(12 * time.Second)})
	assert.Empty(t, persists(effects))
	assert.True(t, state.PendingManual)

	state, effects = Step(state, th, SaveSucceeded{DocumentID: "doc-1", Content: strings.Repeat("i", 60), At: t0.Add(13 * time.Second)})
	p := persists(effects)
	require.Len(t, p, 1)
	assert.True(t, p[0].Manual)
	assert.Equal(t, "doc-1", p[0].DocumentID)
	assert.True(t, state.Saving)
}

func TestSaveFailureReportsAndKeepsStage(t *testing.T) {
	th := DefaultThresholds()
	state, _ := editAndFire(t, State{}, "", strings.Repeat("j", 60), t0)

	boom := errors.New("disk full")
	state, effects := Step(state, th, SaveFailed{Err: boom, At: t0.Add(11 * time.Second)})
	assert.Contains(t, effects, Effect(ReportError{Err: boom}))
	assert.Equal(t, StageTemp, state.Stage)
	assert.False(t, state.Saving)
	assert.Equal(t, "disk full", state.LastError)
	assert.True(t, state.Dirty())
}
