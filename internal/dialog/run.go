package dialog

import "context"

type presented struct {
	result Result
	err    error
}

// Run presents inputs and returns whichever resolves first: the presenter or
// a result from remote. remote may be nil. Cancellation fails the dialog and
// returns the context error.
func Run(ctx context.Context, presenter Presenter, inputs Inputs, remote <-chan Result) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	local := make(chan presented, 1)
	go func() {
		result, err := presenter.Present(ctx, inputs)
		local <- presented{result: result, err: err}
	}()

	select {
	case p := <-local:
		if p.err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return cancelled(ctxErr), ctxErr
			}
			return Result{Outcome: OutcomeFail, Source: SourcePresenter, Message: p.err.Error()}, p.err
		}
		return p.result, nil
	case result := <-remote:
		return result, nil
	case <-ctx.Done():
		return cancelled(ctx.Err()), ctx.Err()
	}
}

func cancelled(err error) Result {
	return Result{Outcome: OutcomeFail, Source: SourceCancel, Message: err.Error()}
}
