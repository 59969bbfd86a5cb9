package progress

import (
	"strconv"
	"strings"
)

// ErrorCategory is the kind of trouble a single output line points at.
type ErrorCategory string

const (
	CategoryAccessForbidden   ErrorCategory = "access_forbidden"
	CategoryNotFound          ErrorCategory = "not_found"
	CategoryPermissionDenied  ErrorCategory = "permission_denied"
	CategoryNetwork           ErrorCategory = "network"
	CategoryMissingDependency ErrorCategory = "missing_dependency"
)

// Message is the human readable text appended to a task's error log.
func (c ErrorCategory) Message() string {
	switch c {
	case CategoryAccessForbidden:
		return "access denied (HTTP 403): the site refused the request, try another network or update yt-dlp"
	case CategoryNotFound:
		return "file or command not found"
	case CategoryPermissionDenied:
		return "permission denied"
	case CategoryNetwork:
		return "network connection problem"
	case CategoryMissingDependency:
		return "missing dependency or module"
	}
	return string(c)
}

type keywordRule struct {
	category ErrorCategory
	// lower holds English keywords matched case-insensitively, exact holds
	// keywords matched as written (Chinese has no case).
	lower []string
	exact []string
}

// Rules are checked in order; the first hit wins. Access-forbidden comes
// first so an "HTTP Error 403" line is never reported as something broader.
var errorRules = []keywordRule{
	{
		category: CategoryAccessForbidden,
		lower:    []string{"http error 403", "forbidden"},
		exact:    []string{"访问被拒绝", "拒绝访问", "禁止访问"},
	},
	{
		category: CategoryNotFound,
		lower:    []string{"no such file", "not found"},
		exact:    []string{"找不到"},
	},
	{
		category: CategoryPermissionDenied,
		lower:    []string{"permission"},
		exact:    []string{"权限"},
	},
	{
		category: CategoryNetwork,
		lower:    []string{"network", "connection"},
		exact:    []string{"网络", "连接"},
	},
	{
		category: CategoryMissingDependency,
		lower:    []string{"module", "package"},
		exact:    []string{"依赖", "模块"},
	},
}

// ClassifyErrorSignal returns the first error category whose keywords appear
// in the line.
func ClassifyErrorSignal(line string) (ErrorCategory, bool) {
	lowered := strings.ToLower(line)
	for _, rule := range errorRules {
		for _, kw := range rule.lower {
			if strings.Contains(lowered, kw) {
				return rule.category, true
			}
		}
		for _, kw := range rule.exact {
			if strings.Contains(line, kw) {
				return rule.category, true
			}
		}
	}
	return "", false
}

// ExitCause explains a non-zero yt-dlp exit from what it wrote before dying.
type ExitCause string

const (
	ExitAccessForbidden     ExitCause = "access_forbidden"
	ExitContentUnavailable  ExitCause = "content_unavailable"
	ExitCopyrightRestricted ExitCause = "copyright_restricted"
	ExitGeneric             ExitCause = "generic"
)

// ClassifyExit inspects the accumulated error output of a failed run.
func ClassifyExit(errorOutput string) ExitCause {
	switch {
	case strings.Contains(errorOutput, "HTTP Error 403"), strings.Contains(errorOutput, "Forbidden"):
		return ExitAccessForbidden
	case strings.Contains(errorOutput, "unavailable"), strings.Contains(errorOutput, "不可用"):
		return ExitContentUnavailable
	case strings.Contains(errorOutput, "copyright"), strings.Contains(errorOutput, "版权"):
		return ExitCopyrightRestricted
	}
	return ExitGeneric
}

// Message renders the user facing explanation for an exit cause.
func (c ExitCause) Message(exitCode int) string {
	switch c {
	case ExitAccessForbidden:
		return "download failed: the site refused access (HTTP 403), possibly region locked or protected; " +
			"try a VPN or proxy, confirm the video is available in your region, or retry later"
	case ExitContentUnavailable:
		return "download failed: the video is unavailable, it may have been removed or made private"
	case ExitCopyrightRestricted:
		return "download failed: the video appears to be copyright restricted"
	}
	return "download failed with exit code " + strconv.Itoa(exitCode)
}
