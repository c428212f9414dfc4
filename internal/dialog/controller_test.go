package dialog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/showdialog/internal/ipc"
)

func TestControllerResolvesOnce(t *testing.T) {
	ctrl := NewController(nil)

	first := ctrl.Handle(context.Background(), ipc.Message{Type: ipc.TypePass, Message: "remote ok"})
	require.Equal(t, ipc.Message{Type: ipc.TypeAck, Message: "resolved pass"}, first)

	second := ctrl.Handle(context.Background(), ipc.Message{Type: ipc.TypeFail})
	require.Equal(t, ipc.Message{Type: ipc.TypeAck, Message: "already resolved"}, second)

	result := <-ctrl.Remote()
	require.Equal(t, Result{Outcome: OutcomePass, Source: SourceRemote, Message: "remote ok"}, result)

	select {
	case extra := <-ctrl.Remote():
		t.Fatalf("unexpected second resolution %+v", extra)
	default:
	}
}

func TestControllerFailAndTimeout(t *testing.T) {
	tests := []struct {
		name string
		msg  ipc.Message
		want Result
	}{
		{
			name: "fail",
			msg:  ipc.Message{Type: ipc.TypeFail, Message: "broken"},
			want: Result{Outcome: OutcomeFail, Source: SourceRemote, Message: "broken"},
		},
		{
			name: "timeout",
			msg:  ipc.Message{Type: ipc.TypeTimeout},
			want: Result{Outcome: OutcomeFail, Source: SourceRemote, Message: "remote timeout"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := NewController(nil)
			resp := ctrl.Handle(context.Background(), tc.msg)
			require.Equal(t, ipc.TypeAck, resp.Type)
			require.Equal(t, tc.want, <-ctrl.Remote())
		})
	}
}

func TestControllerEchoesOtherMessages(t *testing.T) {
	ctrl := NewController(nil)

	resp := ctrl.Handle(context.Background(), ipc.Message{Type: ipc.TypeMessage, Message: "hi", Data: map[string]any{"k": "v"}})
	require.Equal(t, ipc.Message{Type: ipc.TypeAck, Message: "hi", Data: map[string]any{"k": "v"}}, resp)

	resp = ctrl.Handle(context.Background(), ipc.Message{Type: ipc.TypeAck})
	require.Equal(t, ipc.Message{Type: ipc.TypeAck}, resp)

	select {
	case <-ctrl.Remote():
		t.Fatal("echo must not resolve the dialog")
	default:
	}
}

func blockingPresenter() Presenter {
	return PresenterFunc(func(ctx context.Context, _ Inputs) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	})
}

func TestRunPresenterWins(t *testing.T) {
	presenter := PresenterFunc(func(context.Context, Inputs) (Result, error) {
		return Result{Outcome: OutcomePass, Source: SourcePresenter}, nil
	})

	result, err := Run(context.Background(), presenter, Inputs{}, nil)
	require.NoError(t, err)
	require.True(t, result.Passed())
}

func TestRunRemoteWins(t *testing.T) {
	ctrl := NewController(nil)
	go func() {
		time.Sleep(10 * time.Millisecond)
		ctrl.Handle(context.Background(), ipc.Message{Type: ipc.TypeFail, Message: "remote"})
	}()

	result, err := Run(context.Background(), blockingPresenter(), Inputs{}, ctrl.Remote())
	require.NoError(t, err)
	require.Equal(t, Result{Outcome: OutcomeFail, Source: SourceRemote, Message: "remote"}, result)
}

func TestRunCancellationFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Run(ctx, blockingPresenter(), Inputs{}, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, OutcomeFail, result.Outcome)
	require.Equal(t, SourceCancel, result.Source)
}

func TestRunPresenterError(t *testing.T) {
	boom := errors.New("display unavailable")
	presenter := PresenterFunc(func(context.Context, Inputs) (Result, error) {
		return Result{}, boom
	})

	result, err := Run(context.Background(), presenter, Inputs{}, nil)
	require.ErrorIs(t, err, boom)
	require.Equal(t, OutcomeFail, result.Outcome)
}
