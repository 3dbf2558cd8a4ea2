package schedule

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/config"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/console"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 22 * * *", false},   // 10 PM daily
		{"0 12 * * 1-5", false}, // noon weekdays
		{"*/5 * * * *", false},  // every 5 minutes
		{"invalid", true},
		{"0 0 0 * * *", true}, // seconds field not accepted
	}

	for _, tt := range tests {
		_, err := ParseCron(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestEntry_Validate(t *testing.T) {
	e := Entry{Name: "overnight", Cron: "0 22 * * *", Input: "/plans/a.json"}
	if err := e.Validate(); err != nil {
		t.Errorf("valid entry should not error: %v", err)
	}
	if e.MaxDuration != DefaultMaxDuration {
		t.Errorf("MaxDuration = %s, want default", e.MaxDuration)
	}

	tests := []struct {
		name  string
		entry Entry
	}{
		{"no name", Entry{Cron: "* * * * *", Input: "x"}},
		{"no cron", Entry{Name: "a", Input: "x"}},
		{"bad cron", Entry{Name: "a", Cron: "soon", Input: "x"}},
		{"no input", Entry{Name: "a", Cron: "* * * * *"}},
	}
	for _, tt := range tests {
		if err := tt.entry.Validate(); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

func TestFromConfig(t *testing.T) {
	entries := FromConfig([]config.ScheduleConfig{{
		Name:        "nightly",
		Cron:        "0 2 * * *",
		Input:       "/plans/nightly.json",
		MaxDuration: config.Duration{Duration: time.Hour},
	}})
	if len(entries) != 1 || entries[0].Name != "nightly" || entries[0].MaxDuration != time.Hour {
		t.Errorf("entries = %+v", entries)
	}
}

func TestScheduler_NextRun(t *testing.T) {
	sched, err := NewScheduler([]Entry{{Name: "test", Cron: "0 22 * * *", Input: "x"}}, console.Discard())
	if err != nil {
		t.Fatal(err)
	}

	next := sched.NextRun("test")
	if next.IsZero() || !next.After(time.Now()) {
		t.Errorf("NextRun = %s, want a future time", next)
	}
	if !sched.NextRun("missing").IsZero() {
		t.Error("unknown entry should have no next run")
	}
}

func TestScheduler_ShouldRun(t *testing.T) {
	sched, err := NewScheduler([]Entry{{Name: "test", Cron: "* * * * *", Input: "x"}}, console.Discard())
	if err != nil {
		t.Fatal(err)
	}

	sched.lastRun["test"] = time.Now().Add(-2 * time.Minute)
	if !sched.ShouldRun("test") {
		t.Error("should run after cron interval passed")
	}

	sched.MarkRunning("test")
	if sched.ShouldRun("test") {
		t.Error("running entry should not start again")
	}

	sched.MarkComplete("test")
	if sched.ShouldRun("test") {
		t.Error("entry that just finished should wait for the next minute")
	}
}

func TestScheduler_Names(t *testing.T) {
	sched, err := NewScheduler([]Entry{
		{Name: "b", Cron: "* * * * *", Input: "x"},
		{Name: "a", Cron: "* * * * *", Input: "y"},
	}, console.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(sched.Names(), ","); got != "a,b" {
		t.Errorf("Names() = %s", got)
	}
}

func TestScheduler_Start(t *testing.T) {
	sched, err := NewScheduler([]Entry{{Name: "every", Cron: "* * * * *", Input: "plan.json", MaxDuration: time.Hour}}, console.Discard())
	if err != nil {
		t.Fatal(err)
	}
	sched.SetTick(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := make(chan Entry, 4)
	done := make(chan struct{})
	go func() {
		sched.Start(ctx, func(ctx context.Context, e Entry) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("run context should carry the max duration")
			}
			ran <- e
			return nil
		})
		close(done)
	}()

	select {
	case e := <-ran:
		if e.Input != "plan.json" {
			t.Errorf("ran %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled entry never ran")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
