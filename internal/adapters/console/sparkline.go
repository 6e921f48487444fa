package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Throughput renders an oscilloscope-style trace of observations/second,
// adapted from internal/tui/views/sparkline.go with thresholds rescaled
// for honeypot traffic volumes instead of production log-line rates.
type Throughput struct {
	Data    []float64
	Width   int
	maxSeen float64
}

func NewThroughput(width int) *Throughput {
	if width <= 0 {
		width = 60
	}
	return &Throughput{Data: make([]float64, width), Width: width}
}

func (t *Throughput) Update(value float64) {
	t.Data = append(t.Data[1:], value)
}

func (t *Throughput) SetWidth(width int) {
	if width <= 0 || width == t.Width {
		return
	}
	old := t.Data
	t.Width = width
	t.Data = make([]float64, width)
	if len(old) > 0 {
		start := 0
		if len(old) > width {
			start = len(old) - width
		}
		copy(t.Data[width-len(old[start:]):], old[start:])
	}
}

var signalChars = []rune{'⎽', '⎼', '─', '⎻', '⎺'}

func (t *Throughput) Render() string {
	green := lipgloss.NewStyle().Foreground(ColorPrimary)
	amber := lipgloss.NewStyle().Foreground(ColorAmber)
	red := lipgloss.NewStyle().Foreground(ColorRed)
	dim := lipgloss.NewStyle().Foreground(ColorDim)
	ghost := lipgloss.NewStyle().Foreground(lipgloss.Color("#252525"))

	var current, maxVal float64
	for _, v := range t.Data {
		if v > maxVal {
			maxVal = v
		}
	}
	if len(t.Data) > 0 {
		current = t.Data[len(t.Data)-1]
	}
	if maxVal > t.maxSeen {
		t.maxSeen = maxVal
	}

	color := green
	if current > 20 {
		color = red
	} else if current > 5 {
		color = amber
	}

	data := t.Data
	if len(data) > t.Width {
		data = data[len(data)-t.Width:]
	}
	if maxVal < 1 {
		maxVal = 1
	}

	var trace strings.Builder
	trace.WriteString(" ")

	for i, v := range data {
		if i > 0 && i%10 == 0 {
			trace.WriteString(ghost.Render("│"))
			continue
		}
		level := 0
		if maxVal > 0 && v > 0 {
			level = int(v / maxVal * float64(len(signalChars)-1))
		}
		if level >= len(signalChars) {
			level = len(signalChars) - 1
		}
		if v == 0 {
			trace.WriteString(dim.Render(string(signalChars[0])))
		} else {
			trace.WriteString(color.Render(string(signalChars[level])))
		}
	}

	trace.WriteString(color.Bold(true).Render(fmt.Sprintf(" ▶ %.1f/s", current)))
	return trace.String()
}
