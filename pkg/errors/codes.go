package errors

// ErrorCode classifies a department query failure.
type ErrorCode string

const (
	ErrCodeExecutionFailed  ErrorCode = "execution_failed"
	ErrCodeTimeout          ErrorCode = "timeout"
	ErrCodeConnectivity     ErrorCode = "connectivity"
	ErrCodeAuthFailed       ErrorCode = "auth_failed"
	ErrCodePermissionDenied ErrorCode = "permission_denied"
	ErrCodeCancelled        ErrorCode = "cancelled"
	ErrCodeInvalidDate      ErrorCode = "invalid_date"
	ErrCodeConfiguration    ErrorCode = "configuration"
)

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata. Descriptions are shown
// to chat users, so they must never mention tables, columns or query text.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrCodeExecutionFailed: {
		Code:            ErrCodeExecutionFailed,
		Retryable:       false,
		Description:     "The department query failed",
		SuggestedAction: "Find the department's query error in the launchbot logs, then check the table and columns in LAUNCHBOT_DEPARTMENTS_FILE",
	},
	ErrCodeTimeout: {
		Code:            ErrCodeTimeout,
		Retryable:       false,
		Description:     "The department query did not finish in time",
		SuggestedAction: "Raise LAUNCHBOT_QUERY_TIMEOUT or LAUNCHBOT_BATCH_TIMEOUT, or check warehouse load",
	},
	ErrCodeConnectivity: {
		Code:            ErrCodeConnectivity,
		Retryable:       true,
		Description:     "The data warehouse could not be reached",
		SuggestedAction: "Check DATABRICKS_HOST and warehouse state: launchbot serve exposes /health",
	},
	ErrCodeAuthFailed: {
		Code:            ErrCodeAuthFailed,
		Retryable:       false,
		Description:     "The data warehouse rejected the bot's credentials",
		SuggestedAction: "Rotate the access token: launchbot auth set databricks-token",
	},
	ErrCodePermissionDenied: {
		Code:            ErrCodePermissionDenied,
		Retryable:       false,
		Description:     "The bot is not allowed to read this department's data",
		SuggestedAction: "Grant SELECT on the department table to the bot's service principal",
	},
	ErrCodeCancelled: {
		Code:            ErrCodeCancelled,
		Retryable:       false,
		Description:     "The department query was cancelled",
		SuggestedAction: "Check whether the process was shutting down when the request arrived",
	},
	ErrCodeInvalidDate: {
		Code:            ErrCodeInvalidDate,
		Retryable:       false,
		Description:     "The launch date is not a valid YYYY-MM-DD date",
		SuggestedAction: "Resend the command with a date such as 2024-03-15",
	},
	ErrCodeConfiguration: {
		Code:            ErrCodeConfiguration,
		Retryable:       false,
		Description:     "The bot is misconfigured",
		SuggestedAction: "Inspect configuration: launchbot config show",
	},
}

// IsRetryable returns true if the given error code represents a transient, retryable error.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Check the launchbot logs for more details"
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}
