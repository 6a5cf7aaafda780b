package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/blocklist"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/config"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/platform"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/session"
	"github.com/aohanesian/alpha-date-automation-depl-sub000/pkg/models"
)

// fakeAPI is a scripted platform API double. Error slices are consumed one
// per call; an exhausted slice means success.
type fakeAPI struct {
	mu sync.Mutex

	candidates []models.Candidate
	serveOnce  bool
	served     bool
	fetchErr   error
	blockFetch chan struct{} // when set, fetches wait here

	resolved   map[string]models.LastMessage
	resolveErr error

	chatErrs []error
	chatSent []platform.ChatMessage

	nextDraftID   int64
	createErrs    []error
	draftsCreated []platform.MailDraft
	sendDraftErrs []error
	draftsSent    []int64
	deleteErr     error
	draftsDeleted []int64

	onlineCalls int
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeAPI) EligibleConversations(ctx context.Context, _ platform.Credentials, _ string) ([]models.Candidate, error) {
	f.mu.Lock()
	block := f.blockFetch
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.serveOnce && f.served {
		return nil, nil
	}
	f.served = true
	return append([]models.Candidate(nil), f.candidates...), nil
}

func (f *fakeAPI) LastMessages(_ context.Context, _ platform.Credentials, ids []string) (map[string]models.LastMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	out := make(map[string]models.LastMessage, len(ids))
	for _, id := range ids {
		if m, ok := f.resolved[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (f *fakeAPI) SendChatMessage(_ context.Context, _ platform.Credentials, msg platform.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := popErr(&f.chatErrs); err != nil {
		return err
	}
	f.chatSent = append(f.chatSent, msg)
	return nil
}

func (f *fakeAPI) CreateDraft(_ context.Context, _ platform.Credentials, draft platform.MailDraft) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := popErr(&f.createErrs); err != nil {
		return 0, err
	}
	f.nextDraftID++
	f.draftsCreated = append(f.draftsCreated, draft)
	return f.nextDraftID, nil
}

func (f *fakeAPI) SendDraft(_ context.Context, _ platform.Credentials, _ string, draftID int64, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := popErr(&f.sendDraftErrs); err != nil {
		return err
	}
	f.draftsSent = append(f.draftsSent, draftID)
	return nil
}

func (f *fakeAPI) DeleteDraft(_ context.Context, _ platform.Credentials, draftID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.draftsDeleted = append(f.draftsDeleted, draftID)
	return nil
}

func (f *fakeAPI) SetOnline(context.Context, platform.Credentials, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onlineCalls++
	return nil
}

func (f *fakeAPI) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chatSent)
}

func (f *fakeAPI) onlineCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onlineCalls
}

// testConfig returns tunables suitable for fast tests: no pacing, a long
// idle cooldown so cycles do not spin.
func testConfig() *config.Store {
	cfg := config.Default()
	cfg.RetryCooldownSec = 0
	cfg.MessageDelaySec = 0
	cfg.IdleCooldownSec = 60
	return config.NewStore(cfg)
}

type testRig struct {
	api    *fakeAPI
	blocks *blocklist.Registry
	states *session.Store
	sup    *Supervisor
}

func newTestRig(api *fakeAPI) *testRig {
	cfg := testConfig()
	blocks := blocklist.New()
	states := session.NewStore(cfg)
	states.SetSession("s1", "op@example.com")
	return &testRig{
		api:    api,
		blocks: blocks,
		states: states,
		sup:    NewSupervisor(api, blocks, states, cfg),
	}
}

func chatRequest() StartRequest {
	return StartRequest{
		SessionID:     "s1",
		OperatorEmail: "op@example.com",
		ProfileID:     "p1",
		Kind:          models.KindChat,
		Message:       "Hi!",
		Credentials:   platform.Credentials{Token: "tok"},
	}
}

// twoCandidates scripts a collection of two resolvable counterparts c1, c2.
func twoCandidates(api *fakeAPI) {
	api.candidates = []models.Candidate{
		{ConversationID: "conv-1", CounterpartID: "c1"},
		{ConversationID: "conv-2", CounterpartID: "c2"},
	}
	api.serveOnce = true
	api.resolved = map[string]models.LastMessage{
		"conv-1": {ConversationID: "conv-1", SenderID: "c1", RecipientID: "p1"},
		"conv-2": {ConversationID: "conv-2", SenderID: "c2", RecipientID: "p1"},
	}
}

func (r *testRig) finalState(t *testing.T) models.ProcessingState {
	t.Helper()
	entries := r.states.StatesBySession("s1")
	require.NotEmpty(t, entries)
	return entries[0].State
}

func TestStartValidation(t *testing.T) {
	rig := newTestRig(&fakeAPI{})

	req := chatRequest()
	req.ProfileID = ""
	assert.ErrorIs(t, rig.sup.Start(req), ErrProfileRequired)

	req = chatRequest()
	req.OperatorEmail = ""
	assert.ErrorIs(t, rig.sup.Start(req), ErrOperatorRequired)

	req = chatRequest()
	req.Kind = "pigeon"
	assert.ErrorIs(t, rig.sup.Start(req), ErrUnknownKind)

	req = chatRequest()
	req.Message = ""
	assert.ErrorIs(t, rig.sup.Start(req), ErrMessageRequired)

	req = chatRequest()
	req.Kind = models.KindMail
	req.Message = "too short"
	assert.ErrorIs(t, rig.sup.Start(req), ErrMailTooShort)
}

func TestSingleWorkerPerKeyUnderConcurrentStarts(t *testing.T) {
	api := &fakeAPI{blockFetch: make(chan struct{})}
	rig := newTestRig(api)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rig.sup.Start(chatRequest()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, rig.sup.WorkerCount())

	close(api.blockFetch)
	rig.sup.StopAll()
	assert.Eventually(t, func() bool { return rig.sup.WorkerCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestChatCycleSendsAndBlocks(t *testing.T) {
	api := &fakeAPI{}
	twoCandidates(api)
	rig := newTestRig(api)

	require.NoError(t, rig.sup.Start(chatRequest()))

	assert.Eventually(t, func() bool { return api.sentCount() == 2 }, 5*time.Second, 10*time.Millisecond)

	assert.True(t, rig.blocks.Contains("p1", models.KindChat, "c1"))
	assert.True(t, rig.blocks.Contains("p1", models.KindChat, "c2"))

	st := rig.finalState(t)
	assert.Equal(t, StatusProcessing, st.Status)
	assert.Equal(t, 2, st.Progress.Sent)
	assert.Equal(t, 0, st.Progress.Skipped)
	assert.Equal(t, 2, st.Progress.Total)

	rig.sup.Stop("p1", models.KindChat)
	assert.Eventually(t, func() bool { return rig.sup.WorkerCount() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, StatusStopped, rig.finalState(t).Status)
}

func TestFatalSendStopsWorker(t *testing.T) {
	api := &fakeAPI{}
	twoCandidates(api)
	api.chatErrs = []error{&platform.Error{Kind: platform.KindFatal, Reason: "Not your profile"}}
	rig := newTestRig(api)

	require.NoError(t, rig.sup.Start(chatRequest()))

	assert.Eventually(t, func() bool { return rig.sup.WorkerCount() == 0 }, 5*time.Second, 10*time.Millisecond)

	// No send succeeded, nothing was blocked.
	assert.Equal(t, 0, api.sentCount())
	assert.Equal(t, 0, rig.blocks.Len("p1", models.KindChat))
	assert.Equal(t, "Not your profile", rig.finalState(t).Status)
	assert.Equal(t, StatusReady, rig.sup.Status("p1", models.KindChat))
}

func TestRateLimitedRetriesWithoutSkipping(t *testing.T) {
	api := &fakeAPI{}
	twoCandidates(api)
	api.chatErrs = []error{&platform.Error{Kind: platform.KindRateLimited, Reason: "restriction"}}
	rig := newTestRig(api)

	require.NoError(t, rig.sup.Start(chatRequest()))

	assert.Eventually(t, func() bool { return api.sentCount() == 2 }, 5*time.Second, 10*time.Millisecond)

	st := rig.finalState(t)
	assert.Equal(t, 2, st.Progress.Sent)
	assert.Equal(t, 0, st.Progress.Skipped)

	rig.sup.StopAll()
	assert.Eventually(t, func() bool { return rig.sup.WorkerCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestSoftErrorSkipsCounterpart(t *testing.T) {
	api := &fakeAPI{}
	twoCandidates(api)
	api.chatErrs = []error{&platform.Error{Kind: platform.KindSoft, Reason: "odd"}}
	rig := newTestRig(api)

	require.NoError(t, rig.sup.Start(chatRequest()))

	// c1 soft-fails, c2 succeeds.
	assert.Eventually(t, func() bool { return api.sentCount() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		entries := rig.states.StatesBySession("s1")
		if len(entries) == 0 {
			return false
		}
		st := entries[0].State
		return st.Progress.Sent == 1 && st.Progress.Skipped == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.False(t, rig.blocks.Contains("p1", models.KindChat, "c1"))
	assert.True(t, rig.blocks.Contains("p1", models.KindChat, "c2"))

	rig.sup.StopAll()
	assert.Eventually(t, func() bool { return rig.sup.WorkerCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestBlockedCandidatesAreFiltered(t *testing.T) {
	api := &fakeAPI{}
	twoCandidates(api)
	api.candidates[1].ProfileBlocked = true
	rig := newTestRig(api)
	rig.blocks.Add("p1", models.KindChat, "c1")

	require.NoError(t, rig.sup.Start(chatRequest()))

	// Both candidates filtered before any send; worker idles.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, api.sentCount())

	rig.sup.StopAll()
	assert.Eventually(t, func() bool { return rig.sup.WorkerCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestStopMidCooldownExitsPromptly(t *testing.T) {
	// No candidates: the worker goes straight into the idle cooldown.
	api := &fakeAPI{serveOnce: true, served: true}
	rig := newTestRig(api)

	require.NoError(t, rig.sup.Start(chatRequest()))
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	require.True(t, rig.sup.Stop("p1", models.KindChat))
	assert.Eventually(t, func() bool { return rig.sup.WorkerCount() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, StatusStopped, rig.finalState(t).Status)
}

func TestStopUnknownWorker(t *testing.T) {
	rig := newTestRig(&fakeAPI{})
	assert.False(t, rig.sup.Stop("nope", models.KindChat))
	assert.Equal(t, StatusReady, rig.sup.Status("nope", models.KindChat))
}

func TestClearBlocks(t *testing.T) {
	rig := newTestRig(&fakeAPI{})
	rig.blocks.Add("p1", models.KindChat, "c1")
	rig.blocks.Add("p1", models.KindChat, "c2")

	assert.Equal(t, 2, rig.sup.ClearBlocks("p1", models.KindChat))
	assert.Equal(t, 0, rig.blocks.Len("p1", models.KindChat))
}

func TestHeartbeatRunsWhileProcessing(t *testing.T) {
	api := &fakeAPI{blockFetch: make(chan struct{})}
	rig := newTestRig(api)

	require.NoError(t, rig.sup.Start(chatRequest()))

	// Immediate presence ping on start.
	assert.Eventually(t, func() bool { return api.onlineCount() >= 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, rig.sup.heartbeat.Active())

	close(api.blockFetch)
	rig.sup.StopAll()
	assert.Eventually(t, func() bool { return rig.sup.WorkerCount() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return rig.sup.heartbeat.Active() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHeartbeatRestartKeepsFreshRegistration(t *testing.T) {
	rig := newTestRig(&fakeAPI{})
	hb := rig.sup.heartbeat

	for i := 0; i < 20; i++ {
		hb.Track("p1", platform.Credentials{Token: "tok"})
		hb.Stop("p1")
		hb.Track("p1", platform.Credentials{Token: "tok"})
		require.Equal(t, 1, hb.Active(), "cycle %d", i)
	}

	// Registrations torn down above drain asynchronously; their cleanup
	// must leave the surviving registration in place.
	assert.Never(t, func() bool { return hb.Active() != 1 }, 300*time.Millisecond, 10*time.Millisecond)
	hb.Stop("p1")
}
