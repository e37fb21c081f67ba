package pipeline

import "github.com/On-Jun9/ShutterFix/pkg/types"

type ProgressCallback func(update ProgressUpdate)

type ProgressUpdate struct {
	Type      string            `json:"type"`
	Operation string            `json:"operation,omitempty"`
	Message   string            `json:"message,omitempty"`
	Current   int               `json:"current,omitempty"`
	Total     int               `json:"total,omitempty"`
	Filename  string            `json:"filename,omitempty"`
	Summary   *types.RunSummary `json:"summary,omitempty"`
	Error     string            `json:"error,omitempty"`
}

const (
	UpdateStatus   = "status"
	UpdateProgress = "progress"
	UpdateComplete = "complete"
	UpdateError    = "error"
)

// progressEvery throttles callback updates; the console line is redrawn for
// every record.
const progressEvery = 50

func (p *Pipeline) notify(update ProgressUpdate) {
	if p.progressCallback != nil {
		p.progressCallback(update)
	}
}

// progress returns the per-record reporter handed to long operations.
func (p *Pipeline) progress(op string) types.ProgressFunc {
	return func(current, total int, name string) {
		p.logger.Progress(current, total, name)
		if current == 1 || current == total || current%progressEvery == 0 {
			p.notify(ProgressUpdate{
				Type:      UpdateProgress,
				Operation: op,
				Current:   current,
				Total:     total,
				Filename:  name,
			})
		}
	}
}
