package dialog

// Outcome is the user's verdict.
type Outcome string

const (
	OutcomePass Outcome = "pass"
	OutcomeFail Outcome = "fail"
)

// Source names what resolved the dialog.
type Source string

const (
	SourcePresenter Source = "presenter"
	SourceRemote    Source = "remote"
	SourceCancel    Source = "cancel"
)

// Result is the resolved dialog.
type Result struct {
	Outcome Outcome
	Source  Source
	Message string
}

// Passed reports whether the outcome is pass.
func (r Result) Passed() bool {
	return r.Outcome == OutcomePass
}

// ExitCode maps pass to 0 and everything else to 1.
func (r Result) ExitCode() int {
	if r.Passed() {
		return 0
	}
	return 1
}
