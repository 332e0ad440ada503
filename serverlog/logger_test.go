package serverlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionNameNests(t *testing.T) {
	root := NewNop()
	child := root.Session("conn-1")
	grandchild := child.Session("op-3")
	require.Equal(t, "nop.conn-1.op-3", grandchild.SessionName())
}

func TestNopLoggerDoesNotPanic(t *testing.T) {
	l := NewNop()
	require.NotPanics(t, func() {
		l.Info("hello")
		l.With().Error("world")
	})
}
