package domain

// AuthStateKind enumerates the flow controller states.
type AuthStateKind int

const (
	// StateUnauthenticated is the initial state: no usable tokens.
	StateUnauthenticated AuthStateKind = iota
	// StateAwaitingCallback means an authorization URL was issued.
	StateAwaitingCallback
	// StateAuthenticated means a token set is stored.
	StateAuthenticated
	// StateRefreshing means a refresh-token exchange is in flight.
	StateRefreshing
	// StateFailed means the last exchange or refresh failed.
	StateFailed
)

// String returns the human readable state name.
func (k AuthStateKind) String() string {
	switch k {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAwaitingCallback:
		return "awaiting_callback"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AuthenticationState is one value of the flow state machine.
// Session is set only while awaiting a callback, Tokens only when
// authenticated and Reason only when failed.
type AuthenticationState struct {
	Kind    AuthStateKind
	Session *PKCESession
	Tokens  *TokenSet
	Reason  error
}

// Unauthenticated returns the initial state.
func Unauthenticated() AuthenticationState {
	return AuthenticationState{Kind: StateUnauthenticated}
}

// AwaitingCallback returns the state holding the pending session.
func AwaitingCallback(session PKCESession) AuthenticationState {
	return AuthenticationState{Kind: StateAwaitingCallback, Session: &session}
}

// Authenticated returns the state holding a token snapshot.
func Authenticated(tokens TokenSet) AuthenticationState {
	return AuthenticationState{Kind: StateAuthenticated, Tokens: &tokens}
}

// Refreshing returns the refresh-in-flight state.
func Refreshing() AuthenticationState {
	return AuthenticationState{Kind: StateRefreshing}
}

// Failed returns the failure state with its reason.
func Failed(reason error) AuthenticationState {
	return AuthenticationState{Kind: StateFailed, Reason: reason}
}

// String returns the state name, with the failure reason when present.
func (s AuthenticationState) String() string {
	if s.Kind == StateFailed && s.Reason != nil {
		return s.Kind.String() + ": " + s.Reason.Error()
	}
	return s.Kind.String()
}
