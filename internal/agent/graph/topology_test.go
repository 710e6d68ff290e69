package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handbook-assistant/server/internal/agent/graph/nodes"
	"github.com/handbook-assistant/server/internal/agent/model"
	"github.com/handbook-assistant/server/internal/agent/repo"
)

func noop(context.Context, *model.ConversationState) (model.Update, error) {
	return model.Update{}, nil
}

func pick(target string) Condition {
	return func(context.Context, *model.ConversationState) (string, error) { return target, nil }
}

func TestValidate(t *testing.T) {
	valid := func() *Topology {
		return &Topology{
			Entry:    "a",
			Handlers: map[string]Handler{"a": noop, "b": noop, "c": noop},
			Edges:    map[string]string{"b": nodes.NodeEnd, "c": nodes.NodeEnd},
			Branches: map[string]Branch{"a": {Targets: []string{"b", "c"}, Decide: pick("b")}},
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Topology){
		"missing entry":      func(t *Topology) { t.Entry = "zz" },
		"no outgoing rule":   func(t *Topology) { delete(t.Edges, "b") },
		"two outgoing rules": func(t *Topology) { t.Edges["a"] = "b" },
		"unknown target":     func(t *Topology) { t.Edges["b"] = "zz" },
		"unknown branch target": func(t *Topology) {
			t.Branches["a"] = Branch{Targets: []string{"b", "zz"}, Decide: pick("b")}
		},
		"nil condition": func(t *Topology) { t.Branches["a"] = Branch{Targets: []string{"b"}} },
		"unreachable": func(t *Topology) {
			t.Handlers["d"] = noop
			t.Edges["d"] = nodes.NodeEnd
		},
		"cycle": func(t *Topology) { t.Edges["c"] = "a" },
		"reserved name": func(t *Topology) {
			t.Handlers[nodes.NodeEnd] = noop
		},
		"deeper than limit": func(t *Topology) { t.MaxDepth = 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			top := valid()
			mutate(top)
			assert.ErrorIs(t, top.Validate(), ErrInvalidTopology)
		})
	}
}

func TestLongestPath(t *testing.T) {
	top := &Topology{
		Entry:    "a",
		Handlers: map[string]Handler{"a": noop, "b": noop, "c": noop, "d": noop},
		Edges:    map[string]string{"b": "c", "c": nodes.NodeEnd, "d": nodes.NodeEnd},
		Branches: map[string]Branch{"a": {Targets: []string{"b", "d"}, Decide: pick("b")}},
	}
	n, err := top.LongestPath()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	top.MaxDepth = 3
	require.NoError(t, top.Validate())

	top.Edges["c"] = "a"
	_, err = top.LongestPath()
	assert.ErrorIs(t, err, ErrInvalidTopology)
}

func TestRun_CycleIsRejected(t *testing.T) {
	store := repo.NewMemoryStore(0, 0)
	exec := &Executor{
		topology: &Topology{
			Entry:    "a",
			Handlers: map[string]Handler{"a": noop, "b": noop},
			Edges:    map[string]string{"a": "b", "b": "a"},
		},
		store: store,
		locks: newThreadLocks(),
	}

	_, err := exec.Run(context.Background(), model.QueryInput{ThreadID: "t", Question: "loop"})
	require.ErrorIs(t, err, ErrCycle)
	assert.Zero(t, store.Len())
}

func TestRun_UndeclaredBranchTarget(t *testing.T) {
	store := repo.NewMemoryStore(0, 0)
	exec := &Executor{
		topology: &Topology{
			Entry:    "a",
			Handlers: map[string]Handler{"a": noop, "b": noop},
			Edges:    map[string]string{"b": nodes.NodeEnd},
			Branches: map[string]Branch{"a": {Targets: []string{"b"}, Decide: pick("c")}},
		},
		store: store,
		locks: newThreadLocks(),
	}
	_, err := exec.Run(context.Background(), model.QueryInput{ThreadID: "t", Question: "x"})
	assert.Error(t, err)
	assert.Zero(t, store.Len())
}

func TestThreadLocks(t *testing.T) {
	locks := newThreadLocks()

	unlock, err := locks.lock(context.Background(), "t")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.lock(ctx, "t")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locks.lock(context.Background(), "u")
	require.NoError(t, err, "other threads are not blocked")
	other()

	unlock()
	unlock()
	assert.Zero(t, locks.size())

	again, err := locks.lock(context.Background(), "t")
	require.NoError(t, err)
	again()
}
