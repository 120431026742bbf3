package tracing

// Span attribute keys for bb-authd tracing.
// These constants define the semantic conventions for span attributes
// across the session/provider/launcher/ipc/actor/pinentry domains.
const (
	// Session attributes
	AttrSessionID     = "session.id"
	AttrSessionSource = "session.source" // polkit | keyring | pinentry
	AttrSessionState  = "session.state"

	// IPC attributes
	AttrIPCMessageType = "ipc.message.type"
	AttrIPCConnID      = "ipc.conn.id"

	// Provider attributes
	AttrProviderID       = "provider.id"
	AttrProviderKind     = "provider.kind"
	AttrProviderName     = "provider.name"
	AttrProviderPriority = "provider.priority"

	// Launcher attributes
	AttrLaunchCandidateID = "launcher.candidate.id"
	AttrLaunchExec        = "launcher.exec"
	AttrLaunchAttempt     = "launcher.attempt"

	// Actor attributes
	AttrActorPID        = "actor.pid"
	AttrActorConfidence = "actor.confidence"
	AttrActorDisplay    = "actor.display_name"

	// Pinentry attributes
	AttrPinentryFlowCookie = "pinentry.flow_cookie"
	AttrPinentryRetryCount = "pinentry.retry_count"

	// Error attributes
	AttrErrorMessage = "error.message"
	AttrErrorType    = "error.type"
)

// SpanKind constants for categorizing span types.
const (
	SpanKindSession  = "session"
	SpanKindIPC      = "ipc"
	SpanKindProvider = "provider"
	SpanKindLauncher = "launcher"
	SpanKindActor    = "actor"
	SpanKindPinentry = "pinentry"
)

// Span name prefixes for consistent naming.
const (
	SpanPrefixIPCDispatch = "ipc.dispatch."
	SpanPrefixLaunch      = "launcher.launch."
	SpanPrefixResolve     = "actor.resolve"
)

// Event names for span events.
const (
	EventSessionCreated     = "session.created"
	EventSessionTerminal    = "session.terminal"
	EventProviderRegistered = "provider.registered"
	EventProviderElected    = "provider.elected"
	EventLaunchThrottled    = "launcher.throttled"
	EventErrorOccurred      = "error.occurred"
)
