package model

// ConflictSeverity 冲突级别：error 阻断操作，warning 仅记录
type ConflictSeverity string

const (
	ConflictSeverityWarning ConflictSeverity = "warning"
	ConflictSeverityError   ConflictSeverity = "error"
)

// ConflictInfo 冲突检测结果，计算值，不落库
type ConflictInfo struct {
	Severity ConflictSeverity `json:"severity"`
	Message  string           `json:"message"`
}

// HasBlocking 是否包含 error 级别冲突
func HasBlocking(conflicts []ConflictInfo) bool {
	for _, c := range conflicts {
		if c.Severity == ConflictSeverityError {
			return true
		}
	}
	return false
}

// Messages 取出全部描述，便于塞进错误响应的 details
func Messages(conflicts []ConflictInfo) []string {
	out := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, c.Message)
	}
	return out
}
