package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/sales-playbook/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, sub *Subscription) []Event {
	t.Helper()
	var got []Event
	timeout := time.After(time.Second)
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("subscription was not closed")
			return got
		}
	}
}

func TestBus_PublishWithoutSubscriberIsNoop(t *testing.T) {
	b := NewBus(4)
	b.Publish("job-a", Event{Stage: jobs.StageUploading})
	assert.Zero(t, b.Subscribers("job-a"))

	sub := b.Subscribe("job-a")
	defer sub.Close()
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected buffered event %+v", ev)
	default:
	}
}

func TestBus_IsolatesJobs(t *testing.T) {
	b := NewBus(4)
	subA := b.Subscribe("job-a")
	subB := b.Subscribe("job-b")
	defer subB.Close()

	b.Publish("job-a", Event{Stage: jobs.StageTranscribing, Current: 1, Total: 2})
	b.Publish("job-a", Event{Stage: jobs.StageDone, ResultReference: "an-1"})

	got := drain(t, subA)
	require.Len(t, got, 2)
	assert.Equal(t, "an-1", got[1].ResultReference)

	select {
	case ev := <-subB.C:
		t.Fatalf("job-b received %+v", ev)
	default:
	}
}

func TestBus_MulticastsAndClosesOnTerminal(t *testing.T) {
	b := NewBus(4)
	s1 := b.Subscribe("job")
	s2 := b.Subscribe("job")
	assert.Equal(t, 2, b.Subscribers("job"))

	b.Publish("job", Event{Stage: jobs.StageDetecting, Current: 1, Total: 3})
	b.Publish("job", Event{Stage: jobs.StageDetecting, Error: "boom"})

	for _, s := range []*Subscription{s1, s2} {
		got := drain(t, s)
		require.Len(t, got, 2)
		assert.True(t, got[1].Terminal())
		assert.True(t, got[1].Fatal())
	}
	assert.Zero(t, b.Subscribers("job"))

	s1.Close()
	s2.Close()
}

func TestBus_SubscriptionAfterTeardownSeesNothing(t *testing.T) {
	b := NewBus(4)
	first := b.Subscribe("job")
	b.Publish("job", Event{Stage: jobs.StageDone, ResultReference: "an-1"})
	drain(t, first)

	late := b.Subscribe("job")
	defer late.Close()
	select {
	case ev := <-late.C:
		t.Fatalf("late subscriber got %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_LastUnsubscribeRemovesChannel(t *testing.T) {
	b := NewBus(4)
	s1 := b.Subscribe("job")
	s2 := b.Subscribe("job")

	s1.Close()
	s1.Close()
	assert.Equal(t, 1, b.Subscribers("job"))

	s2.Close()
	assert.Zero(t, b.Subscribers("job"))
	b.Publish("job", Event{Stage: jobs.StageDetecting})
}

func TestBus_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBus(1)
	sub := b.Subscribe("job")
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish("job", Event{Stage: jobs.StageTranscribing, Current: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	ev := <-sub.C
	assert.Equal(t, 0, ev.Current)
}

func TestBus_FullSubscriberStillReceivesTerminalEvent(t *testing.T) {
	b := NewBus(2)
	sub := b.Subscribe("job")

	for i := 0; i < 5; i++ {
		b.Publish("job", Event{Stage: jobs.StageTranscribing, Current: i})
	}
	b.Publish("job", Event{Stage: jobs.StageDetecting, Error: "model overloaded"})

	var got []Event
	for ev := range sub.C {
		got = append(got, ev)
	}
	require.Len(t, got, 3)
	assert.Equal(t, 0, got[0].Current)
	assert.Equal(t, 1, got[1].Current)
	assert.True(t, got[2].Fatal())
	assert.Equal(t, "model overloaded", got[2].Error)
}

func TestBus_ConcurrentSubscribeAndPublish(t *testing.T) {
	b := NewBus(8)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := b.Subscribe("job")
			s.Close()
		}()
		go func() {
			defer wg.Done()
			b.Publish("job", Event{Stage: jobs.StageTranscribing})
		}()
	}
	wg.Wait()
	assert.Zero(t, b.Subscribers("job"))
}

func TestEvent_PartialSuccessIsNotFatal(t *testing.T) {
	ev := Event{Stage: jobs.StageDone, ResultReference: "an-1", Error: "1 of 3 files failed"}
	assert.True(t, ev.Terminal())
	assert.False(t, ev.Fatal())
}

func TestRedisBridge_Decode(t *testing.T) {
	r := NewRedisBridge(nil, NewBus(1), "")

	jobID, ev, err := r.decode(DefaultChannelPrefix+"job-1", `{"stage":"detecting","current":1,"total":2,"message":"m"}`)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, jobs.StageDetecting, ev.Stage)
	assert.Equal(t, 2, ev.Total)

	_, _, err = r.decode("other:job-1", `{}`)
	assert.Error(t, err)
	_, _, err = r.decode(DefaultChannelPrefix, `{}`)
	assert.Error(t, err)
	_, _, err = r.decode(DefaultChannelPrefix+"job-1", `not json`)
	assert.Error(t, err)
}
