package pipeline

// errors.go turns pipeline failures into operator-facing messages with a
// support code. Typed errors from the step packages are matched first; the
// pattern table below catches wrapped library errors by message.
//
// # Error Codes Reference
//
// # Schema Errors (SCH001-SCH099)
//
//	SCH001 - Missing columns: The export lacks required columns
//	         Action: Check that the Tableau view still exports all seven columns
//
// # Data Errors (DAT001-DAT099)
//
//	DAT001 - No rows: The export contained no usable rows
//	         Action: Check the view filters and the export date
//
//	DAT002 - Export file missing: The CSV to reshape was not found
//	         Action: Run the export step first or point NAME_FILE_ORIGINAL at the file
//	         Patterns: "no such file or directory"
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Upload not configured: Endpoint or token is missing
//	         Action: Set COMBUSTIVEL_API_URL and COMBUSTIVEL_API_TOKEN
//
//	CFG002 - Invalid configuration: Settings failed validation
//	         Action: Review the listed settings in your config file or environment
//	         Patterns: "validation failed", "required environment variable"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Upload rejected: The file or its contents were refused
//	         Action: Check the spreadsheet layout and size, then retry
//
// # Authentication Errors (AUTH001-AUTH099)
//
//	AUTH001 - Unauthorized: The analysis API rejected the token
//	          Action: Renew COMBUSTIVEL_API_TOKEN
//
// # Server Errors (SRV001-SRV099)
//
//	SRV001 - Server error: The analysis API kept failing
//	         Action: Try again later; the spreadsheet is kept on disk
//
//	SRV002 - Unexpected response: The analysis API answered with an unhandled status
//	         Action: Check the API route and contact the API owners
//
// # Network Errors (NET001-NET099)
//
//	NET001 - Unreachable: The analysis API could not be reached
//	         Action: Check the network and COMBUSTIVEL_API_URL
//
//	NET002 - Cancelled: The run was interrupted
//	         Action: Start a new run when ready
//	         Patterns: "context canceled"
//
//	NET003 - Timed out: An operation exceeded its deadline
//	         Action: Raise the timeout or try again later
//	         Patterns: "context deadline exceeded"
//
// # Tableau Errors (TAB001-TAB099)
//
//	TAB001 - Sign-in rejected: Tableau refused the access token
//	         Action: Renew TABLEAU_TOKEN_NAME / TABLEAU_TOKEN_VALUE
//
//	TAB002 - View not found: The configured view is not in the workbook
//	         Action: List views with "fuelsync views" and fix VIEW_ID
//	         Patterns: "not found in workbook"
//
//	TAB003 - Export failed: The Tableau export did not complete
//	         Action: Check the Tableau server and try again
//
// # History Errors (HIS001-HIS099)
//
//	HIS001 - History unavailable: The run history database could not be used
//	         Action: Check HISTORY_DATABASE_URL; runs still complete without it
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Check the log file for the original error

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/fuelsync/internal/history"
	"github.com/JonMunkholm/fuelsync/internal/reshape"
	"github.com/JonMunkholm/fuelsync/internal/tableau"
	"github.com/JonMunkholm/fuelsync/internal/upload"
)

// UserMessage provides operator-facing error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorRule matches errors by type or sentinel.
type errorRule struct {
	match func(error) bool
	msg   UserMessage
}

// errorPattern defines a message pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgTableauAuth = UserMessage{
		Message: "Tableau refused the access token",
		Action:  "Renew TABLEAU_TOKEN_NAME / TABLEAU_TOKEN_VALUE",
		Code:    "TAB001",
	}
	msgViewNotFound = UserMessage{
		Message: "The configured view is not in the workbook",
		Action:  `List views with "fuelsync views" and fix VIEW_ID`,
		Code:    "TAB002",
	}
	msgCancelled = UserMessage{
		Message: "The run was interrupted",
		Action:  "Start a new run when ready",
		Code:    "NET002",
	}
	msgTimeout = UserMessage{
		Message: "An operation exceeded its deadline",
		Action:  "Raise the timeout or try again later",
		Code:    "NET003",
	}
)

// errorRules are checked in order before any pattern. Tableau rules come
// before the cancellation rules because export failures wrap them.
var errorRules = []errorRule{
	{
		match: func(err error) bool { return reshape.IsSchemaError(err) },
		msg: UserMessage{
			Message: "The export lacks required columns",
			Action:  "Check that the Tableau view still exports all seven columns",
			Code:    "SCH001",
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, reshape.ErrNoRows) },
		msg: UserMessage{
			Message: "The export contained no usable rows",
			Action:  "Check the view filters and the export date",
			Code:    "DAT001",
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, upload.ErrConfig) },
		msg: UserMessage{
			Message: "Upload endpoint or token is missing",
			Action:  "Set COMBUSTIVEL_API_URL and COMBUSTIVEL_API_TOKEN",
			Code:    "CFG001",
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, upload.ErrValidation) },
		msg: UserMessage{
			Message: "The file or its contents were refused",
			Action:  "Check the spreadsheet layout and size, then retry",
			Code:    "VAL001",
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, upload.ErrAuth) },
		msg: UserMessage{
			Message: "The analysis API rejected the token",
			Action:  "Renew COMBUSTIVEL_API_TOKEN",
			Code:    "AUTH001",
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, upload.ErrServer) },
		msg: UserMessage{
			Message: "The analysis API kept failing",
			Action:  "Try again later; the spreadsheet is kept on disk",
			Code:    "SRV001",
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, upload.ErrRejected) },
		msg: UserMessage{
			Message: "The analysis API answered with an unhandled status",
			Action:  "Check the API route and contact the API owners",
			Code:    "SRV002",
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, upload.ErrTransient) && !isContextErr(err) },
		msg: UserMessage{
			Message: "The analysis API could not be reached",
			Action:  "Check the network and COMBUSTIVEL_API_URL",
			Code:    "NET001",
		},
	},
	{
		match: func(err error) bool {
			var apiErr *tableau.APIError
			return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
		},
		msg: msgTableauAuth,
	},
	{
		match: func(err error) bool {
			return errors.Is(err, tableau.ErrExport) && !isContextErr(err) && !isViewNotFound(err)
		},
		msg: UserMessage{
			Message: "The Tableau export did not complete",
			Action:  "Check the Tableau server and try again",
			Code:    "TAB003",
		},
	},
	{
		match: func(err error) bool {
			var pgErr *pgconn.PgError
			return errors.As(err, &pgErr) || errors.Is(err, history.ErrRunNotFound)
		},
		msg: UserMessage{
			Message: "The run history database could not be used",
			Action:  "Check HISTORY_DATABASE_URL; runs still complete without it",
			Code:    "HIS001",
		},
	},
}

// errorPatterns maps error message fragments (case-insensitive) to user messages.
// The first matching pattern wins.
var errorPatterns = []errorPattern{
	{pattern: "not found in workbook", msg: msgViewNotFound},
	{
		pattern: "no such file or directory",
		msg: UserMessage{
			Message: "The CSV to reshape was not found",
			Action:  "Run the export step first or point NAME_FILE_ORIGINAL at the file",
			Code:    "DAT002",
		},
	},
	{
		pattern: "validation failed",
		msg: UserMessage{
			Message: "Settings failed validation",
			Action:  "Review the listed settings in your config file or environment",
			Code:    "CFG002",
		},
	},
	{
		pattern: "required environment variable",
		msg: UserMessage{
			Message: "A required setting is missing",
			Action:  "Review the listed settings in your config file or environment",
			Code:    "CFG002",
		},
	},
	{pattern: "context canceled", msg: msgCancelled},
	{pattern: "upload cancelled", msg: msgCancelled},
	{pattern: "context deadline exceeded", msg: msgTimeout},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the log file for the original error",
	Code:    "ERR000",
}

// MapError converts a pipeline error to an operator-facing message.
//
// Example:
//
//	_, err := pipeline.Run(ctx, cfg, deps)
//	msg := MapError(err)
//	// msg.Code == "SCH001" when the export lost a column
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, r := range errorRules {
		if r.match(err) {
			return r.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func isViewNotFound(err error) bool {
	return strings.Contains(err.Error(), "not found in workbook")
}
