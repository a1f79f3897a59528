package errors

// Registered error codes.
const (
	CodeUnknownScheme    = "E101"
	CodeInvalidPipe      = "E102"
	CodeInvalidSocket    = "E103"
	CodeInvalidPort      = "E104"
	CodePipeUnsupported  = "E105"
	CodeTLSMaterial      = "E110"
	CodeConfigRead       = "E111"
	CodeConfigParse      = "E112"
	CodeConfigValue      = "E113"
	CodeWorkingDir       = "E114"
	CodeListenFailed     = "E120"
	CodeWatchSetupFailed = "E130"
)

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Listen Errors (E100-E109)

	CodeUnknownScheme: {
		Category: CategoryListen,
		Message:  "Unknown listen endpoint scheme (protocol)",
	},
	CodeInvalidPipe: {
		Category: CategoryListen,
		Message:  "Invalid Windows named pipe endpoint",
		Detail:   `Named pipe endpoints must start with \\.\ after the pipe: scheme.`,
	},
	CodeInvalidSocket: {
		Category: CategoryListen,
		Message:  "Invalid UNIX domain socket endpoint",
		Detail:   "UNIX domain socket endpoints need a path after the unix: scheme.",
	},
	CodeInvalidPort: {
		Category: CategoryListen,
		Message:  "Invalid port",
		Detail:   "Ports must be integers between 0 and 65535.",
	},
	CodePipeUnsupported: {
		Category: CategoryListen,
		Message:  "Named pipes are not supported on this platform",
		Detail:   "pipe: endpoints are only available on Windows.",
	},

	// TLS Errors (E110)

	CodeTLSMaterial: {
		Category: CategoryTLS,
		Message:  "TLS certificate material unavailable",
		Detail:   "--https requires readable --cert and --key PEM files.",
	},

	// Config Errors (E111-E119)

	CodeConfigRead: {
		Category: CategoryConfig,
		Message:  "Failed to read config file",
	},
	CodeConfigParse: {
		Category: CategoryConfig,
		Message:  "Failed to parse config file",
	},
	CodeConfigValue: {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
	},
	CodeWorkingDir: {
		Category: CategoryConfig,
		Message:  "Cannot determine the working directory",
		Detail:   "Relative paths such as the served root and serve.json resolve against it.",
	},

	// Runtime Errors (E120-E139)

	CodeListenFailed: {
		Category: CategoryListen,
		Message:  "Failed to listen",
	},
	CodeWatchSetupFailed: {
		Category: CategoryWatch,
		Message:  "Failed to watch pattern",
	},
}
