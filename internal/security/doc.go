// Package security provides security validators for protecting against common vulnerabilities.
//
// # Overview
//
// This package implements validators that prevent security issues such as:
//   - Server-Side Request Forgery (SSRF) (CWE-918)
//   - Prompt injection through user-supplied chat messages
//
// All validators are designed to be integrated into tool implementations,
// providing defense-in-depth for AI agent operations.
//
// # Validators
//
// URL Validator: Prevents SSRF attacks by blocking requests to private networks
// and cloud metadata endpoints. Used by the page fetching tool before any
// outbound request is made.
//
//	urlValidator := security.NewURL()
//	if err := urlValidator.Validate(rawURL); err != nil {
//	    return fmt.Errorf("SSRF attempt blocked: %w", err)
//	}
//	// Use SafeTransport for DNS-rebinding protection
//	client := &http.Client{Transport: urlValidator.SafeTransport()}
//
// Blocked targets include:
//   - Private IP ranges (127.0.0.1, 192.168.x.x, 10.x.x.x)
//   - localhost and local domain names
//   - Cloud metadata endpoints (169.254.169.254, metadata.google.internal)
//
// Prompt Validator: Detects common prompt injection patterns in inbound chat
// messages so the server can log an audit trail before the text reaches the
// model.
//
//	promptValidator := security.NewPromptValidator()
//	if result := promptValidator.Validate(userInput); !result.Safe {
//	    logger.Warn("prompt injection patterns detected", "patterns", result.Patterns)
//	}
//
// # Design Philosophy
//
// All validators follow these principles:
//   - Fail-secure: When in doubt, deny access
//   - Explicit allowlists: Use allowlists instead of denylists where possible
//   - Clear error messages: Help developers understand why validation failed
//   - Zero configuration: Work securely out of the box
//
// # Error Handling
//
// Validators intentionally both log and return errors. This is a deliberate
// exception to the "handle errors once" rule: security events require an
// audit trail (via logging) AND must propagate the error to callers so they
// can deny the operation. Removing either side would create a security gap.
//
// # Testing
//
// Each validator includes comprehensive tests covering:
//   - Valid inputs that should pass
//   - Attack vectors that should be blocked
//   - Edge cases and boundary conditions
//
// See *_test.go files for security test coverage.
package security
