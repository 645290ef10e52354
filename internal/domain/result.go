package domain

// Result statuses
const (
	ResultDone  = "done"
	ResultError = "error"
)

// MaxDiagnosticLength bounds the error message stored on a Result
const MaxDiagnosticLength = 200

// Result is the terminal record for one job
type Result struct {
	Prompt         string `json:"prompt"`
	FilenamePrefix string `json:"filename_prefix"`
	Status         string `json:"status"`
	Output         string `json:"output,omitempty"`
	URL            string `json:"url,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Done reports whether the job produced an output
func (r Result) Done() bool {
	return r.Status == ResultDone
}

// DoneResult builds the success record for a job
func DoneResult(job Job, output, url string) Result {
	return Result{
		Prompt:         job.Prompt,
		FilenamePrefix: job.FilenamePrefix,
		Status:         ResultDone,
		Output:         output,
		URL:            url,
	}
}

// ErrorResult builds the failure record for a job
func ErrorResult(job Job, diagnostic string) Result {
	return Result{
		Prompt:         job.Prompt,
		FilenamePrefix: job.FilenamePrefix,
		Status:         ResultError,
		Error:          Truncate(diagnostic, MaxDiagnosticLength),
	}
}

// CountDone returns how many results are done
func CountDone(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Done() {
			n++
		}
	}
	return n
}

// Truncate cuts s to at most max bytes without splitting a rune
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
