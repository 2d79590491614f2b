// Package ui renders the interactive page. The components live in the
// .templ files next to this one.
package ui

//go:generate templ generate

import (
	"fmt"
	"image/color"
	"strconv"

	"github.com/cwbudde/minimizeme/internal/catalog"
	"github.com/cwbudde/minimizeme/internal/opt"
	"github.com/cwbudde/minimizeme/internal/plot"
	"github.com/cwbudde/minimizeme/internal/session"
)

// Form field names shared by the page and the handler that parses it.
const (
	FieldFunction  = "function"
	FieldStartX    = "start_x"
	FieldStartY    = "start_y"
	FieldXMin      = "x_min"
	FieldXMax      = "x_max"
	FieldYMin      = "y_min"
	FieldYMax      = "y_max"
	FieldAzimuth   = "azimuth"
	FieldElevation = "elevation"
	FieldMode      = "mode"
	FieldActive    = "active"
)

// ParamField returns the form field name of a hyperparameter of kind.
func ParamField(kind opt.Kind, key string) string {
	return string(kind) + "." + key
}

// PageData is everything the page shows.
type PageData struct {
	Functions  []FunctionOption
	Function   FunctionView
	Start      catalog.Point
	View       catalog.Bounds
	Azimuth    float64
	Elevation  float64
	Mode       string
	Optimizers []OptimizerForm
	PlotURL    string
	Results    []ResultRow
	Cheatsheet []opt.Description

	Error        string // message of a rejected submission
	SavedRunID   string
	StoreEnabled bool
}

// FunctionOption is one entry of the function selector.
type FunctionOption struct {
	Key      string
	Name     string
	Selected bool
}

// FunctionView describes the selected function.
type FunctionView struct {
	Key        string
	Name       string
	Expression string
	LaTeX      string
	Note       string
}

// OptimizerForm is the row of one optimizer in the control panel.
type OptimizerForm struct {
	Kind   opt.Kind
	Name   string
	Active bool
	Fields []Field
}

// Field is one numeric input.
type Field struct {
	Name  string
	Label string
	Value string
}

// ResultRow is one line of the summary table.
type ResultRow struct {
	Name        string
	Color       string // CSS color matching the plot legend
	Steps       int
	Final       string
	FinalValue  string
	BestValue   string
	Distance    string
	ConvergedAt string
	Error       string
}

// NewPageData builds the page for a session.
func NewPageData(s *session.Session, storeEnabled bool) PageData {
	f := s.Func()
	d := PageData{
		Function: FunctionView{
			Key:        f.Key,
			Name:       f.Name,
			Expression: f.Expression,
			LaTeX:      f.LaTeX(),
			Note:       f.Note,
		},
		Start:        s.Start,
		View:         s.View,
		Azimuth:      s.Azimuth,
		Elevation:    s.Elevation,
		Mode:         string(s.Mode),
		PlotURL:      fmt.Sprintf("/plot.png?v=%d", s.LastAccess.UnixNano()),
		StoreEnabled: storeEnabled,
	}

	for _, fn := range catalog.List() {
		d.Functions = append(d.Functions, FunctionOption{
			Key:      fn.Key,
			Name:     fn.Name,
			Selected: fn.Key == f.Key,
		})
	}

	for _, k := range opt.Kinds() {
		cfg, ok := s.Configs[k]
		if !ok {
			cfg = opt.DefaultConfig(k)
		}
		row := OptimizerForm{Kind: k, Name: k.Name(), Active: s.Active[k]}
		for _, p := range opt.Params(k) {
			v, _ := cfg.Get(p.Key)
			row.Fields = append(row.Fields, Field{
				Name:  ParamField(k, p.Key),
				Label: p.Label,
				Value: FormatFloat(v),
			})
		}
		d.Optimizers = append(d.Optimizers, row)

		if s.Active[k] {
			if desc, ok := opt.Describe(k); ok {
				d.Cheatsheet = append(d.Cheatsheet, desc)
			}
		}
	}

	for i, sum := range s.Summaries {
		row := ResultRow{
			Name:        sum.Kind.Name(),
			Color:       cssColor(plot.TrajectoryColor(i)),
			Steps:       sum.Steps,
			Final:       fmt.Sprintf("(%s, %s)", short(sum.Final.X), short(sum.Final.Y)),
			FinalValue:  short(sum.Final.Z),
			BestValue:   short(sum.Best.Z),
			Distance:    "n/a",
			ConvergedAt: "no",
			Error:       sum.Error,
		}
		if sum.DistanceToMin != nil {
			row.Distance = short(*sum.DistanceToMin)
		}
		if sum.ConvergedAt >= 0 {
			row.ConvergedAt = strconv.Itoa(sum.ConvergedAt)
		}
		d.Results = append(d.Results, row)
	}
	return d
}

// FormatFloat prints v so that parsing it back gives v exactly.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func short(v float64) string {
	return strconv.FormatFloat(v, 'g', 5, 64)
}

func cssColor(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}
