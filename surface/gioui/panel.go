// Package gioui is the graphical control surface: a window with one row per
// parameter of the tree. The window loop must be driven by app.Main on the
// main goroutine; Run blocks on another goroutine until the window is closed.
package gioui

import (
	"context"
	"image"
	"image/color"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"gioui.org/app"
	"gioui.org/font/gofont"
	"gioui.org/io/system"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"gioui.org/x/component"
	"github.com/vsariola/polyhost/params"
	"github.com/vsariola/polyhost/surface"
	"golang.org/x/exp/shiny/materialdesign/icons"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type (
	C = layout.Context
	D = layout.Dimensions

	// Panel is the graphical control surface.
	Panel struct {
		title  string
		logger *slog.Logger
		tree   *params.Tree
		rows   []row
		list   widget.List
		theme  *material.Theme
		icon   *widget.Icon
	}

	row struct {
		index  int
		label  string
		slider widget.Float
		button widget.Clickable
		tip    component.TipArea
	}
)

var (
	backgroundColor = color.NRGBA{R: 18, G: 18, B: 18, A: 255}
	primaryColor    = color.NRGBA{R: 206, G: 147, B: 216, A: 255}
	labelColor      = color.NRGBA{R: 222, G: 222, B: 222, A: 222}
	valueColor      = color.NRGBA{R: 153, G: 153, B: 153, A: 255}
	triggerColor    = color.NRGBA{R: 255, G: 138, B: 128, A: 255}
)

// New creates a panel whose window is titled after the DSP file.
func New(dspPath string, logger *slog.Logger) *Panel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Panel{
		title:  titleFromPath(dspPath),
		logger: logger.With("surface", "gui"),
	}
}

func titleFromPath(path string) string {
	if path == "" {
		return "polyhost"
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + " - polyhost"
}

func (p *Panel) Kind() surface.Kind { return surface.KindGUI }

// BuildFrom creates one row per descriptor, in declaration order.
func (p *Panel) BuildFrom(tree *params.Tree) error {
	p.tree = tree
	caser := cases.Title(language.English)
	p.rows = make([]row, tree.Len())
	for i, d := range tree.Descriptors() {
		p.rows[i] = row{index: i, label: caser.String(strings.ReplaceAll(d.Label, "_", " "))}
	}
	p.list = widget.List{List: layout.List{Axis: layout.Vertical}}
	p.theme = material.NewTheme()
	p.theme.Shaper = text.NewShaper(text.WithCollection(gofont.Collection()))
	p.theme.Palette.Bg = backgroundColor
	p.theme.Palette.Fg = labelColor
	p.theme.Palette.ContrastBg = primaryColor
	icon, err := widget.NewIcon(icons.AlertErrorOutline)
	if err != nil {
		return err
	}
	p.icon = icon
	return nil
}

// Run opens the window and returns when it is destroyed, either by the user or
// because the context was cancelled.
func (p *Panel) Run(ctx context.Context) error {
	w := new(app.Window)
	w.Option(app.Title(p.title), app.Size(unit.Dp(520), unit.Dp(640)))
	cancel := p.tree.Subscribe(func(params.Change) { w.Invalidate() })
	defer cancel()
	stop := context.AfterFunc(ctx, func() { w.Perform(system.ActionClose) })
	defer stop()
	var ops op.Ops
	for {
		switch e := w.Event().(type) {
		case app.DestroyEvent:
			p.logger.Info("window closed")
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			p.Layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}

func (p *Panel) Close() error { return nil }

func (p *Panel) Layout(gtx C) D {
	paint.FillShape(gtx.Ops, backgroundColor, clip.Rect{Max: gtx.Constraints.Max}.Op())
	return material.List(p.theme, &p.list).Layout(gtx, len(p.rows), func(gtx C, i int) D {
		return p.layoutRow(gtx, &p.rows[i])
	})
}

func (p *Panel) layoutRow(gtx C, r *row) D {
	d := p.tree.Descriptor(r.index)
	tooltip := component.PlatformTooltip(p.theme, d.Path)
	return r.tip.Layout(gtx, tooltip, func(gtx C) D {
		return layout.UniformInset(unit.Dp(4)).Layout(gtx, func(gtx C) D {
			return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
				layout.Rigid(func(gtx C) D {
					gtx.Constraints.Min.X = gtx.Dp(unit.Dp(160))
					gtx.Constraints.Max.X = gtx.Constraints.Min.X
					l := material.Body1(p.theme, r.label)
					l.Color = labelColor
					l.MaxLines = 1
					return layout.E.Layout(gtx, l.Layout)
				}),
				layout.Rigid(layout.Spacer{Width: unit.Dp(8)}.Layout),
				layout.Flexed(1, func(gtx C) D {
					if d.Kind == params.Trigger {
						return p.layoutTrigger(gtx, r)
					}
					return p.layoutSlider(gtx, r, d)
				}),
			)
		})
	})
}

func (p *Panel) layoutTrigger(gtx C, r *row) D {
	for r.button.Clicked(gtx) {
		p.write(r, 1)
	}
	btn := material.IconButton(p.theme, &r.button, p.icon, r.label)
	btn.Color = triggerColor
	btn.Background = color.NRGBA{}
	btn.Inset = layout.UniformInset(unit.Dp(6))
	return layout.W.Layout(gtx, btn.Layout)
}

func (p *Panel) write(r *row, v float64) {
	if _, err := p.tree.WriteAt(r.index, v); err != nil {
		p.logger.Warn("could not write parameter", "label", r.label, "err", err)
	}
}

// layoutSlider maps the 0..1 slider onto the range of the descriptor. Discrete
// values are snapped by the tree when written.
func (p *Panel) layoutSlider(gtx C, r *row, d params.Descriptor) D {
	value := p.tree.ValueAt(r.index)
	span := d.Max - d.Min
	if !r.slider.Dragging() && span > 0 {
		r.slider.Value = float32((value - d.Min) / span)
	}
	return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
		layout.Flexed(1, func(gtx C) D {
			gtx.Constraints.Min.Y = gtx.Dp(unit.Dp(32))
			s := material.Slider(p.theme, &r.slider)
			s.Color = primaryColor
			dims := s.Layout(gtx)
			if r.slider.Dragging() {
				v := d.Min + float64(r.slider.Value)*span
				if v != value {
					p.write(r, v)
				}
			}
			return dims
		}),
		layout.Rigid(func(gtx C) D {
			gtx.Constraints.Min = image.Pt(gtx.Dp(unit.Dp(64)), 0)
			l := material.Body2(p.theme, strconv.FormatFloat(p.tree.ValueAt(r.index), 'g', 4, 64))
			l.Color = valueColor
			return layout.E.Layout(gtx, l.Layout)
		}),
	)
}
