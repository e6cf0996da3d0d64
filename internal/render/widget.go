package render

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/i474232898/smhi-forecast/internal/weather"
)

// Options controls presentation only.
type Options struct {
	Title             string
	ShowWindDirection bool
	Fade              bool
	// FadePoint is the fraction of rows after which rows start fading out.
	FadePoint      float64
	AnimationSpeed time.Duration
}

// Widget renders forecast state as an HTML fragment for a dashboard.
type Widget struct {
	opts Options
	tmpl *template.Template
}

// NewWidget parses the widget template.
func NewWidget(opts Options) *Widget {
	return &Widget{
		opts: opts,
		tmpl: template.Must(template.New("widget").Parse(widgetTemplate)),
	}
}

type page struct {
	Title             string
	Message           template.HTML
	Notice            string
	Style             template.CSS
	ShowWindDirection bool
	Current           *currentView
	Rows              []rowView
}

type currentView struct {
	Icon          string
	Temp          string
	WindSpeed     string
	WindDirection string
}

type rowView struct {
	Day           string
	Past          bool
	MaxTemp       string
	DayIcon       string
	MinTemp       string
	NightIcon     string
	WindSpeed     string
	WindDirection string
	Rain          string
	Style         template.CSS
}

// Render renders st as seen at now.
func (w *Widget) Render(st weather.State, now time.Time) ([]byte, error) {
	p := page{
		Title:             w.opts.Title,
		ShowWindDirection: w.opts.ShowWindDirection,
		Style:             template.CSS(fmt.Sprintf("transition: opacity %dms", w.opts.AnimationSpeed.Milliseconds())),
	}

	switch {
	case st.Status == weather.StatusUnconfigured:
		p.Message = template.HTML(fmt.Sprintf(
			"Please set the forecast <i>%s</i> in the config.",
			template.HTMLEscapeString(st.MissingField)))
	case st.Forecast == nil && st.Status == weather.StatusHalted:
		p.Message = "Load issue."
	case st.Forecast == nil:
		p.Message = "Loading &hellip;"
	default:
		if st.Status == weather.StatusHalted {
			p.Notice = "Load issue. Showing the last forecast."
		}
		w.fill(&p, st.Forecast, now)
	}

	var buf bytes.Buffer
	if err := w.tmpl.Execute(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (w *Widget) fill(p *page, f *weather.Forecast, now time.Time) {
	if f.Current != nil {
		p.Current = &currentView{
			Icon:          f.CurrentIcon,
			Temp:          formatTemp(f.Current.Temperature),
			WindSpeed:     formatRounded(f.Current.WindSpeed),
			WindDirection: formatRounded(f.Current.WindDirection),
		}
	}

	opacities := fadeOpacities(len(f.Days), w.opts.Fade, w.opts.FadePoint)
	for i, d := range f.Days {
		row := rowView{
			Day:           d.Label,
			Past:          d.Day.Time.Before(now),
			MinTemp:       formatTemp(d.Night.Temperature),
			NightIcon:     d.Night.Icon,
			WindSpeed:     formatRounded(d.Day.WindSpeed),
			WindDirection: formatRounded(d.Day.WindDirection),
			Rain:          strconv.FormatFloat(d.RainTotal, 'f', 1, 64),
		}
		if !row.Past {
			row.MaxTemp = formatTemp(d.Day.Temperature)
			row.DayIcon = d.Day.Icon
		}
		if opacities[i] < 1 {
			row.Style = template.CSS(fmt.Sprintf("opacity: %.2f", opacities[i]))
		}
		p.Rows = append(p.Rows, row)
	}
}

// fadeOpacities returns per-row opacity. Rows from fadePoint*n onwards fade
// linearly towards zero.
func fadeOpacities(n int, fade bool, fadePoint float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	if !fade || fadePoint >= 1 || n == 0 {
		return out
	}
	if fadePoint < 0 {
		fadePoint = 0
	}

	start := float64(n) * fadePoint
	steps := float64(n) - start
	for i := range out {
		if float64(i) >= start {
			out[i] = 1 - 1/steps*(float64(i)-start)
		}
	}
	return out
}

func formatTemp(t *int) string {
	if t == nil {
		return "-"
	}
	return strconv.Itoa(*t)
}

func formatRounded(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(int(math.Round(*v)))
}

// Cache keeps the last rendered widget so that HTTP readers do not render
// on every request.
type Cache struct {
	mu     sync.RWMutex
	widget *Widget
	html   []byte
	now    func() time.Time
}

// NewCache creates a Cache backed by w.
func NewCache(w *Widget) *Cache {
	return &Cache{widget: w, now: time.Now}
}

// Update re-renders st. It is meant to be registered as a state listener.
func (c *Cache) Update(st weather.State) {
	out, err := c.widget.Render(st, c.now())
	if err != nil {
		log.Printf("ERROR: rendering widget: %v", err)
		return
	}
	c.mu.Lock()
	c.html = out
	c.mu.Unlock()
}

// HTML returns the last rendered widget, or nil if nothing was rendered yet.
func (c *Cache) HTML() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.html
}

const widgetTemplate = `<div class="smhi-forecast" style="{{.Style}}">
{{- if .Message}}
<div class="dimmed light small">{{.Message}}</div>
{{- else}}
{{- with .Current}}
<div class="large light">
<span class="medium"><span class="wi wi-strong-wind"></span><span> {{.WindSpeed}}</span><sup>s </sup>
{{- if $.ShowWindDirection}}<span class="wi wi-wind from-{{.WindDirection}}-deg"></span>{{end}}<span>&nbsp;</span></span>
<span class="bright wi w-icon-large {{.Icon}}"></span><span class="bright"> {{.Temp}}&deg;</span>
</div>
{{- end}}
{{- with .Notice}}
<div class="dimmed light xsmall">{{.}}</div>
{{- end}}
<header>{{.Title}}</header>
<table class="small">
{{- range .Rows}}
<tr{{with .Style}} style="{{.}}"{{end}}>
<td class="day">{{.Day}}</td>
{{- if .Past}}
<td class="align-right dimmed"></td>
<td class="dimmed w-icon-small"></td>
{{- else}}
<td class="align-right bright">{{.MaxTemp}}&deg;</td>
<td class="bright w-icon-small"><span class="wi weathericon {{.DayIcon}}"></span></td>
{{- end}}
<td class="align-right">{{.MinTemp}}&deg;</td>
<td class="w-icon-small"><span class="wi weathericon {{.NightIcon}}"></span></td>
<td class="align-right"> {{.WindSpeed}}<sup>s </sup></td>
{{- if $.ShowWindDirection}}
<td class="w-icon-small"><span class="wi wi-wind from-{{.WindDirection}}-deg dimmed"></span></td>
{{- end}}
<td class="align-right"> {{.Rain}}<span class="mm-unit">mm</span></td>
</tr>
{{- end}}
</table>
{{- end}}
</div>
`
