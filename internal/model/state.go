package model

// ViewState is the single source of truth the presentation layer renders
// from. Transitions are event-driven only:
//
//	loading  -> password | voting | voted | error
//	password -> password | voting | voted | error
//	voting   -> voted
//	voted    -> (terminal)
//	error    -> (terminal)
type ViewState string

const (
	StateLoading  ViewState = "loading"
	StatePassword ViewState = "password"
	StateVoting   ViewState = "voting"
	StateVoted    ViewState = "voted"
	StateError    ViewState = "error"
)

func (s ViewState) Terminal() bool {
	return s == StateVoted || s == StateError
}
