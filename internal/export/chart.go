package export

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"aidflow/internal/types"
)

var (
	historyColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	predictionColor = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	bandColor       = color.RGBA{R: 255, G: 127, B: 14, A: 50}
)

const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 6 * vg.Inch
)

// WriteForecastChart renders the history line, the prediction line, and
// the shaded confidence band as a PNG. The prediction line starts from
// the last observed point so the two segments join.
func (s *Service) WriteForecastChart(w io.Writer, series types.ObservationSeries, result *types.ForecastResult) error {
	if len(series) == 0 || result == nil || len(result.Predictions) == 0 {
		return types.NewAppError(types.ErrCodeValidationInsufficientData,
			"chart requires at least one observation and one prediction", nil)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Aid Forecast: %s", result.Country)
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.X.Label.Text = "Year"
	p.Y.Label.Text = "Aid (thousands USD)"
	p.Add(plotter.NewGrid())

	history := make(plotter.XYs, len(series))
	for i, obs := range series {
		history[i] = plotter.XY{X: float64(obs.Year), Y: obs.Amount}
	}

	lastObs := series[len(series)-1]
	prediction := make(plotter.XYs, 0, len(result.Predictions)+1)
	prediction = append(prediction, plotter.XY{X: float64(lastObs.Year), Y: lastObs.Amount})
	for _, pred := range result.Predictions {
		prediction = append(prediction, plotter.XY{X: float64(pred.Year), Y: pred.Predicted})
	}

	// Band polygon walks the upper bounds forward, then the lowers back.
	band := make(plotter.XYs, 0, 2*len(result.Predictions))
	for _, pred := range result.Predictions {
		band = append(band, plotter.XY{X: float64(pred.Year), Y: pred.Upper})
	}
	for i := len(result.Predictions) - 1; i >= 0; i-- {
		pred := result.Predictions[i]
		band = append(band, plotter.XY{X: float64(pred.Year), Y: pred.Lower})
	}

	polygon, err := plotter.NewPolygon(band)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalExport, "failed to build confidence band", err)
	}
	polygon.Color = bandColor
	polygon.LineStyle.Width = 0
	p.Add(polygon)

	historyLine, err := plotter.NewLine(history)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalExport, "failed to build history line", err)
	}
	historyLine.Color = historyColor
	historyLine.Width = vg.Points(2)
	p.Add(historyLine)
	p.Legend.Add("historical", historyLine)

	predictionLine, err := plotter.NewLine(prediction)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalExport, "failed to build prediction line", err)
	}
	predictionLine.Color = predictionColor
	predictionLine.Width = vg.Points(2)
	predictionLine.Dashes = []vg.Length{vg.Points(5), vg.Points(3)}
	p.Add(predictionLine)
	p.Legend.Add("forecast", predictionLine)

	p.Legend.Top = true
	p.Legend.Left = true

	writer, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalExport, "failed to render chart", err)
	}
	if _, err := writer.WriteTo(w); err != nil {
		return types.NewAppError(types.ErrCodeInternalExport, "failed to write chart", err)
	}
	return nil
}

// ChartFilename derives the PNG download filename for a country.
func (s *Service) ChartFilename(country string) string {
	return fmt.Sprintf("%s_forecast_%s.png", slugify(country), s.clock.Now().Format("20060102"))
}
