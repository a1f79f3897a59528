// Package errors provides structured, actionable error messages for serve-dev.
//
// Every startup failure the operator can act on carries a registered code
// that maps to a category, a short message and a longer explanation:
//
//	err := errors.New(errors.CodeUnknownScheme).
//	    WithDetail(`The scheme "ftp:" is not supported.`).
//	    WithSuggestion("Use tcp://host:port, unix:/path/to.sock or pipe:\\\\.\\pipe\\name")
//
//	fmt.Fprint(os.Stderr, err.Format())
//	// Output:
//	// ERROR E101: Unknown listen endpoint scheme (protocol)
//	//
//	//   The scheme "ftp:" is not supported.
//	//
//	//   Hint: Use tcp://host:port, unix:/path/to.sock or pipe:\\.\pipe\name
//
// # Error Categories
//
//   - listen: malformed --listen values and bind failures
//   - config: unreadable or invalid serve.json and flag values
//   - tls: missing or invalid certificate material
//   - watch: watcher setup failures
//
// Errors compare equal under errors.Is when their codes match, so callers
// can test for a class of failure without string matching:
//
//	if errors.HasCode(err, errors.CodeInvalidSocket) { ... }
package errors
