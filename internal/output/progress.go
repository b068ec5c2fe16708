package output

import (
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Progress is a tick based indicator. A nil *Progress is valid and does
// nothing, which is what StartProgress returns when progress is off.
type Progress struct {
	container *mpb.Progress
	bar       *mpb.Bar
	ticks     int
}

// StartProgress opens a bar for total ticks. total <= 0 draws an open ended
// bar that is completed by Done.
func (r *Reporter) StartProgress(name string, total int) *Progress {
	if !r.progress {
		return nil
	}
	container := mpb.New(mpb.WithOutput(r.w), mpb.WithWidth(48))
	bar := container.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name+" "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)
	return &Progress{container: container, bar: bar}
}

func (p *Progress) Tick() {
	if p == nil {
		return
	}
	p.ticks++
	p.bar.Increment()
}

// Done completes the bar at the number of ticks seen and waits for it to
// render.
func (p *Progress) Done() {
	if p == nil {
		return
	}
	p.bar.SetTotal(int64(p.ticks), true)
	p.container.Wait()
}
